// Package tgapi реализует минимальный клиент Telegram Bot API поверх
// HTTPS long polling. Клиент умеет проверять токен (getMe), получать
// апдейты через getUpdates с длинным таймаутом, отправлять и редактировать
// сообщения, скачивать файлы, а при сетевых ошибках — переподключаться
// с экспоненциальным backoff.
//
// События (колбэки поля структуры):
//   - OnConnecting, OnConnected, OnUpdate, OnDisconnected, OnError.
//
// Безопасность и устойчивость:
//   - накопившиеся апдейты сбрасываются при подключении (бот отвечает
//     только на свежие сообщения);
//   - offset переставляется за каждый доставленный апдейт, повторной
//     доставки после рестарта нет;
//   - ошибки уровня Bot API приходят типом *APIError (код, описание,
//     retry_after для 429).
//
// Пример:
//
//	tg := tgapi.New(tgapi.Config{Token: token, PollTimeout: 50 * time.Second})
//	tg.OnUpdate = func(u *tgapi.Update) { fmt.Println(u.Message.Text) }
//	ctx := context.Background()
//	if err := tg.Connect(ctx); err != nil { log.Fatal(err) }
//	defer tg.Disconnect()
//
//	_, _ = tg.SendMessage(ctx, chatID, "привет", nil)
package tgapi
