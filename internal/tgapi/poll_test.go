package tgapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// TestConnectDropsPendingAndDelivers проверяет протокол подключения:
// getMe, сброс накопившихся апдейтов (offset=-1), затем доставка свежих
// апдейтов с продвижением offset.
func TestConnectDropsPendingAndDelivers(t *testing.T) {
	var calls atomic.Int64

	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			ok(w, User{ID: 1, IsBot: true, Username: "e13ocrbot"})

		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			var params struct {
				Offset int64 `json:"offset"`
			}
			_ = json.NewDecoder(r.Body).Decode(&params)

			switch calls.Add(1) {
			case 1:
				// drop pending: должен прийти offset=-1, отдаём "старый" апдейт
				if params.Offset != -1 {
					t.Errorf("first getUpdates offset = %d, want -1", params.Offset)
				}
				ok(w, []Update{{UpdateID: 100, Message: &Message{Text: "stale"}}})
			case 2:
				// цикл: offset уже за сброшенным апдейтом
				if params.Offset != 101 {
					t.Errorf("second getUpdates offset = %d, want 101", params.Offset)
				}
				ok(w, []Update{
					{UpdateID: 101, Message: &Message{Text: "раз"}},
					{UpdateID: 102, Message: &Message{Text: "два"}},
				})
			default:
				if params.Offset != 103 {
					t.Errorf("next getUpdates offset = %d, want 103", params.Offset)
				}
				ok(w, []Update{})
			}
		}
	})

	delivered := make(chan string, 8)
	tg.OnUpdate = func(u *Update) { delivered <- u.Message.Text }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tg.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tg.Disconnect()

	want := []string{"раз", "два"}
	for _, w := range want {
		select {
		case got := <-delivered:
			if got != w {
				t.Fatalf("delivered %q, want %q", got, w)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for update %q", w)
		}
	}

	// "stale" не должен быть доставлен
	select {
	case got := <-delivered:
		t.Fatalf("unexpected extra update %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectFailsOnBadToken(t *testing.T) {
	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": false, "error_code": 401, "description": "Unauthorized",
		})
	})

	if err := tg.Connect(context.Background()); err == nil {
		t.Fatal("Connect succeeded with bad token")
	}
	if tg.IsConnected() {
		t.Fatal("IsConnected = true after failed Connect")
	}
}

func TestPollLoopRecoversAfterError(t *testing.T) {
	var calls atomic.Int64
	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			ok(w, User{ID: 1, IsBot: true})
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			switch calls.Add(1) {
			case 1:
				ok(w, []Update{}) // drop pending
			case 2:
				w.WriteHeader(http.StatusBadGateway) // сетевой сбой
			default:
				ok(w, []Update{{UpdateID: 1, Message: &Message{Text: "после сбоя"}}})
			}
		}
	})

	delivered := make(chan string, 1)
	tg.OnUpdate = func(u *Update) {
		select {
		case delivered <- u.Message.Text:
		default:
		}
	}
	errored := make(chan struct{}, 1)
	tg.OnError = func(error) {
		select {
		case errored <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tg.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tg.Disconnect()

	select {
	case <-errored:
	case <-time.After(3 * time.Second):
		t.Fatal("OnError was not called")
	}
	select {
	case got := <-delivered:
		if got != "после сбоя" {
			t.Fatalf("delivered %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not recover")
	}
}

func TestPollLoopWaitsRetryAfterOn429(t *testing.T) {
	var calls atomic.Int64
	var limited atomic.Int64 // момент ответа 429, unix nano
	var gap atomic.Int64     // пауза до следующего getUpdates

	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			ok(w, User{ID: 1, IsBot: true})
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			switch calls.Add(1) {
			case 1:
				ok(w, []Update{}) // drop pending
			case 2:
				limited.Store(time.Now().UnixNano())
				_ = json.NewEncoder(w).Encode(map[string]any{
					"ok": false, "error_code": 429,
					"description": "Too Many Requests: retry after 1",
					"parameters":  map[string]any{"retry_after": 1},
				})
			default:
				if gap.Load() == 0 {
					gap.Store(time.Now().UnixNano() - limited.Load())
				}
				ok(w, []Update{{UpdateID: 1, Message: &Message{Text: "после лимита"}}})
			}
		}
	})

	delivered := make(chan string, 1)
	tg.OnUpdate = func(u *Update) {
		select {
		case delivered <- u.Message.Text:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := tg.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tg.Disconnect()

	select {
	case got := <-delivered:
		if got != "после лимита" {
			t.Fatalf("delivered %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("poll loop did not resume after 429")
	}
	if g := time.Duration(gap.Load()); g < 900*time.Millisecond {
		t.Fatalf("resumed after %v, want at least retry_after (1s)", g)
	}
}
