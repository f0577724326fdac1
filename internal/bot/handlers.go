package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/EgorLis/e13ocrbot/internal/tgapi"
	"github.com/EgorLis/e13ocrbot/internal/vision"
)

// chunkLen — размер куска при разбиении длинного распознанного текста
// (с запасом от лимита 4096: префиксы и markdown-правки).
const chunkLen = 4000

func (bot *OCRBot) handleUpdate(u *tgapi.Update) {
	msg := u.Message
	if msg == nil {
		return
	}
	if !bot.chatAllowed(msg.Chat.ID) {
		log.Printf("[bot] чат %d не в списке разрешённых, игнорирую", msg.Chat.ID)
		return
	}

	switch {
	case strings.HasPrefix(msg.Text, "/"):
		if err := bot.HandleCommand(msg); err != nil {
			log.Println("[bot] команда:", err)
		}
	case len(msg.Photo) > 0:
		// берём фото максимального разрешения — Telegram сортирует по возрастанию
		photo := msg.Photo[len(msg.Photo)-1]
		bot.startJob(msg.Chat.ID, photo.FileID)
	case msg.Document != nil:
		bot.handleDocument(msg)
	}
}

func (bot *OCRBot) handleDocument(msg *tgapi.Message) {
	mime := msg.Document.MimeType
	if !strings.HasPrefix(mime, "image/") {
		bot.say(msg.Chat.ID, "⚠️ Пожалуйста, отправьте изображение (JPEG, PNG, WebP, GIF).")
		return
	}
	bot.startJob(msg.Chat.ID, msg.Document.FileID)
}

// startJob запускает распознавание в фоне: один чат — одна задача,
// плюс общий лимит параллельности через errgroup.
func (bot *OCRBot) startJob(chatID int64, fileID string) {
	bot.busyMu.Lock()
	if bot.busy[chatID] {
		bot.busyMu.Unlock()
		bot.say(chatID, "⏳ Ещё обрабатываю предыдущее изображение, подождите.")
		return
	}
	bot.busy[chatID] = true
	bot.busyMu.Unlock()

	release := func() {
		bot.busyMu.Lock()
		delete(bot.busy, chatID)
		bot.busyMu.Unlock()
	}

	ok := bot.jobs.TryGo(func() error {
		defer release()
		bot.processImage(bot.ctx, chatID, fileID)
		return nil
	})
	if !ok {
		release()
		bot.say(chatID, "🚦 Очередь обработки заполнена, попробуйте чуть позже.")
	}
}

// processImage — полный цикл: плейсхолдер, скачивание, Vision API, ответ.
func (bot *OCRBot) processImage(ctx context.Context, chatID int64, fileID string) {
	// индикатор "печатает…" в шапке чата на время обработки
	if err := bot.tg.SendChatAction(ctx, chatID, "typing"); err != nil {
		log.Println("[bot] chat action:", err)
	}

	processing, err := bot.tg.SendMessage(ctx, chatID, "⏳ Обрабатываю...", nil)
	if err != nil {
		log.Println("[bot] плейсхолдер:", err)
		return
	}
	edit := func(text string) {
		if err := bot.tg.EditMessageText(ctx, chatID, processing.MessageID, text, nil); err != nil {
			log.Println("[bot] edit:", err)
		}
	}

	imageB64, err := bot.downloadAndEncode(ctx, fileID)
	if err != nil {
		log.Println("[bot] скачивание:", err)
		bot.failed.Add(1)
		edit(userErrorText(err))
		return
	}
	log.Printf("[bot] изображение получено, размер base64: %d символов", len(imageB64))

	text, err := bot.vision.ExtractText(ctx, imageB64)
	if err != nil {
		log.Println("[bot] vision:", err)
		bot.failed.Add(1)
		edit(userErrorText(err))
		return
	}
	bot.processed.Add(1)

	reply := "📝 *Текст:*\n\n" + text
	if utf8.RuneCountInString(reply) <= tgapi.MaxMessageLen {
		bot.editMarkdown(ctx, chatID, processing.MessageID, reply)
		return
	}

	// длинный текст: меняем плейсхолдер на заголовок и шлём кусками
	bot.editMarkdown(ctx, chatID, processing.MessageID,
		"📝 *Текст (разбит на части из-за длины):*")
	for _, chunk := range splitChunks(text, chunkLen) {
		if _, err := bot.tg.SendMessage(ctx, chatID, chunk, nil); err != nil {
			log.Println("[bot] отправка куска:", err)
		}
	}
}

// downloadAndEncode скачивает файл из Telegram и кодирует его в base64
// без префикса.
func (bot *OCRBot) downloadAndEncode(ctx context.Context, fileID string) (string, error) {
	f, err := bot.tg.GetFile(ctx, fileID)
	if err != nil {
		return "", err
	}
	data, err := bot.tg.DownloadFile(ctx, f.FilePath)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// editMarkdown редактирует сообщение с parse_mode=Markdown; если Telegram
// не смог разобрать разметку (OCR-текст бывает с кривыми * и _), повторяет
// как обычный текст.
func (bot *OCRBot) editMarkdown(ctx context.Context, chatID, messageID int64, text string) {
	err := bot.tg.EditMessageText(ctx, chatID, messageID, text,
		&tgapi.SendOpts{ParseMode: "Markdown"})
	if err == nil {
		return
	}
	var apiErr *tgapi.APIError
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
		if err := bot.tg.EditMessageText(ctx, chatID, messageID, text, nil); err == nil {
			return
		}
	}
	log.Println("[bot] edit markdown:", err)
}

func (bot *OCRBot) say(chatID int64, text string) {
	if _, err := bot.tg.SendMessage(bot.ctx, chatID, text, nil); err != nil {
		log.Println("[bot] say:", err)
	}
}

// userErrorText переводит ошибку обработки в сообщение для пользователя.
func userErrorText(err error) string {
	var ue *url.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ue) && ue.Timeout()) {
		return "⏱ Превышено время ожидания ответа от сервера. Попробуйте ещё раз позже."
	}

	var se *vision.StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized:
			return "🔑 Ошибка авторизации. Проверьте токен API."
		case se.Code == http.StatusTooManyRequests:
			return "🚦 Превышен лимит запросов. Попробуйте позже."
		case se.Code >= 500:
			return "🔧 Сервер временно недоступен. Попробуйте позже."
		default:
			return fmt.Sprintf("❌ Ошибка сервера (код %d). Попробуйте позже.", se.Code)
		}
	}

	if errors.Is(err, vision.ErrBadResponse) {
		return "❌ Не удалось обработать ответ от сервера. Попробуйте ещё раз."
	}
	return "❌ Произошла непредвиденная ошибка. Попробуйте позже."
}

// splitChunks режет текст на куски не длиннее n рун, не разрывая руны.
func splitChunks(s string, n int) []string {
	if s == "" {
		return nil
	}
	var out []string
	runes := []rune(s)
	for start := 0; start < len(runes); start += n {
		end := start + n
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}
