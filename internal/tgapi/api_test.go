package tgapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// fakeBotAPI — минимальный сервер Bot API для тестов.
func fakeBotAPI(t *testing.T, handler http.HandlerFunc) *Telegram {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tg := New(Config{
		Token:       "TEST:TOKEN",
		PollTimeout: time.Second,
		BaseURL:     srv.URL,
	})
	return tg
}

func ok(w http.ResponseWriter, result any) {
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func TestGetMe(t *testing.T) {
	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/botTEST:TOKEN/getMe") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		ok(w, User{ID: 42, IsBot: true, Username: "e13ocrbot"})
	})

	me, err := tg.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if me.ID != 42 || me.Username != "e13ocrbot" {
		t.Fatalf("GetMe = %+v", me)
	}
}

func TestSendMessageTooLong(t *testing.T) {
	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not reach the server")
	})

	long := strings.Repeat("й", MaxMessageLen+1)
	_, err := tg.SendMessage(context.Background(), 1, long, nil)
	if !errors.Is(err, ErrMessageTooLong) {
		t.Fatalf("err = %v, want ErrMessageTooLong", err)
	}
}

func TestSendMessagePassesParseMode(t *testing.T) {
	var got map[string]any
	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		ok(w, Message{MessageID: 7, Chat: Chat{ID: 1}})
	})

	m, err := tg.SendMessage(context.Background(), 1, "*hi*", &SendOpts{ParseMode: "Markdown"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if m.MessageID != 7 {
		t.Fatalf("MessageID = %d, want 7", m.MessageID)
	}
	if got["parse_mode"] != "Markdown" {
		t.Fatalf("parse_mode = %v, want Markdown", got["parse_mode"])
	}
	if got["chat_id"] != float64(1) {
		t.Fatalf("chat_id = %v, want 1", got["chat_id"])
	}
}

func TestAPIErrorWithRetryAfter(t *testing.T) {
	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"error_code":  429,
			"description": "Too Many Requests: retry after 17",
			"parameters":  map[string]any{"retry_after": 17},
		})
	})

	_, err := tg.SendMessage(context.Background(), 1, "hi", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Code != 429 || apiErr.RetryAfter != 17 {
		t.Fatalf("apiErr = %+v", apiErr)
	}
}

func TestGetFileAndDownload(t *testing.T) {
	const content = "\xff\xd8\xff jpeg bytes"
	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			ok(w, File{FileID: "abc", FilePath: "photos/file_1.jpg"})
		case strings.HasPrefix(r.URL.Path, "/file/botTEST:TOKEN/"):
			if !strings.HasSuffix(r.URL.Path, "photos/file_1.jpg") {
				t.Errorf("file path = %s", r.URL.Path)
			}
			_, _ = w.Write([]byte(content))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	ctx := context.Background()
	f, err := tg.GetFile(ctx, "abc")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	data, err := tg.DownloadFile(ctx, f.FilePath)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if string(data) != content {
		t.Fatalf("DownloadFile = %q, want %q", data, content)
	}
}

func TestEditMessageText(t *testing.T) {
	var got map[string]any
	tg := fakeBotAPI(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/editMessageText") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		ok(w, true)
	})

	if err := tg.EditMessageText(context.Background(), 1, 7, "new", nil); err != nil {
		t.Fatalf("EditMessageText: %v", err)
	}
	if got["message_id"] != float64(7) {
		t.Fatalf("message_id = %v, want 7", got["message_id"])
	}
}
