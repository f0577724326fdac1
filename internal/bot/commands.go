package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/EgorLis/e13ocrbot/internal/tgapi"
)

const welcomeText = "👋 *Привет!*\n\n" +
	"Я бот для распознавания текста с изображений.\n\n" +
	"📸 *Как пользоваться:*\n" +
	"1. Отправь мне фотографию или изображение-документ\n" +
	"2. Подожди несколько секунд\n" +
	"3. Получи распознанный текст в формате Markdown\n\n" +
	"💡 *Совет:* Для лучшего качества отправляй изображение " +
	"как документ (без сжатия).\n\n" +
	"Поддерживаемые форматы: JPEG, PNG, WebP, GIF."

func (bot *OCRBot) HandleCommand(msg *tgapi.Message) error {
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])
	// в группах команды приходят как /start@botname
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {

	case "/start", "/help":
		_, err := bot.tg.SendMessage(bot.ctx, msg.Chat.ID, welcomeText,
			&tgapi.SendOpts{ParseMode: "Markdown"})
		return err

	case "/status":
		processed, failed := bot.Counters()
		rows := []string{
			fmt.Sprintf("аптайм: %s", bot.Uptime().Round(time.Second)),
			fmt.Sprintf("распознано: %d, ошибок: %d", processed, failed),
			fmt.Sprintf("токен Qwen действителен ещё: %s",
				bot.TokenTTL().Round(time.Minute)),
		}
		_, err := bot.tg.SendMessage(bot.ctx, msg.Chat.ID, strings.Join(rows, "\n"), nil)
		return err

	default:
		bot.say(msg.Chat.ID, "Неизвестная команда. Доступны /start, /help, /status.")
		return nil
	}
}
