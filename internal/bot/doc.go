// Package bot — “склейка” вокруг tgapi, vision и qwencreds, реализующая
// OCR-бота для Telegram. Бот:
//   - слушает апдейты и команды (/start, /help, /status);
//   - принимает фотографии и изображения-документы (с проверкой MIME);
//   - скачивает файл, кодирует в base64 и отправляет в Qwen Vision API;
//   - отвечает распознанным текстом в Markdown, длинные ответы режет
//     на куски (лимит Telegram 4096 символов);
//   - переводит ошибки API в понятные пользователю сообщения;
//   - опционально ограничивает доступ списком чатов (UseConfig) и отдаёт
//     статус через встроенный web-сервер.
//
// Жизненный цикл:
//   - Создать бота через New().
//   - Передать клиентов: SetTelegram(...), SetCreds(...), SetVision(...),
//     (опционально) SetWeb(addr).
//   - (Опционально) UseConfig("conf/botconfig.json") — список чатов.
//   - Запустить Start() и остановить Stop().
//
// Пример:
//
//	b := bot.New()
//	b.SetTelegram(tgapi.Config{Token: token})
//	b.SetCreds(manager)
//	_ = b.SetVision(vision.Config{})
//	_ = b.UseConfig("conf/botconfig.json")
//
//	if err := b.Start(); err != nil { log.Fatal(err) }
//	defer b.Stop()
//
// Обработка идёт в фоне: на чат — одна задача, общий лимит параллельности
// фиксирован. Stop ждёт завершения уже принятых изображений.
package bot
