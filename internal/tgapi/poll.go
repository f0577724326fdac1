package tgapi

import (
	"context"
	"errors"
	"time"
)

// pollLoop — цикл getUpdates. Живёт до Disconnect или отмены контекста,
// сетевые ошибки лечит экспоненциальным backoff (1s → 30s), а при 429
// выдерживает паузу retry_after из ответа.
func (tg *Telegram) pollLoop(ctx context.Context) {
	defer func() {
		tg.closed.Store(true)
		if tg.OnDisconnected != nil {
			tg.OnDisconnected()
		}
	}()

	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-tg.stopCh:
			return
		default:
		}

		updates, err := tg.getUpdates(ctx, tg.offset, tg.poll)
		if err != nil {
			if ctx.Err() != nil || tg.closed.Load() {
				return
			}
			if tg.OnError != nil {
				tg.OnError(err)
			}
			// подождём и попробуем снова; при 429 Telegram сам говорит, сколько
			wait := backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = time.Duration(apiErr.RetryAfter) * time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-tg.stopCh:
				return
			case <-time.After(wait):
			}
			if backoff < 30*time.Second {
				backoff *= 2
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
			}
			continue
		}
		backoff = time.Second

		for i := range updates {
			u := &updates[i]
			if u.UpdateID >= tg.offset {
				tg.offset = u.UpdateID + 1
			}
			if tg.closed.Load() {
				return
			}
			if tg.OnUpdate != nil {
				tg.OnUpdate(u)
			}
		}
	}
}
