package tgapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// MaxMessageLen — жёсткий лимит Telegram на длину одного сообщения.
const MaxMessageLen = 4096

// ErrMessageTooLong — текст длиннее MaxMessageLen; резать должен вызывающий.
var ErrMessageTooLong = fmt.Errorf("message longer than %d chars", MaxMessageLen)

// SendOpts — необязательные параметры отправки/редактирования.
type SendOpts struct {
	ParseMode        string // "Markdown", "MarkdownV2", "HTML" или ""
	ReplyToMessageID int64
}

// ========================= low-level =========================

// call — POST к методу Bot API с JSON-телом; результат декодируется в out.
func (tg *Telegram) call(ctx context.Context, method string, params any, out any) error {
	var body io.Reader
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	url := fmt.Sprintf("%s/bot%s/%s", tg.baseURL, tg.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := tg.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if !env.OK {
		apiErr := &APIError{Code: env.ErrorCode, Description: env.Description}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("%s: result: %w", method, err)
		}
	}
	return nil
}

func (tg *Telegram) getUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	params := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message"},
	}
	var updates []Update
	if err := tg.call(ctx, "getUpdates", params, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// ========================= high-level API =========================

func (tg *Telegram) GetMe(ctx context.Context) (*User, error) {
	var u User
	if err := tg.call(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (tg *Telegram) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOpts) (*Message, error) {
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return nil, ErrMessageTooLong
	}
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	applyOpts(params, opts)
	var m Message
	if err := tg.call(ctx, "sendMessage", params, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (tg *Telegram) EditMessageText(ctx context.Context, chatID, messageID int64, text string, opts *SendOpts) error {
	if utf8.RuneCountInString(text) > MaxMessageLen {
		return ErrMessageTooLong
	}
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	applyOpts(params, opts)
	return tg.call(ctx, "editMessageText", params, nil)
}

// SendChatAction — индикатор "печатает…"/"отправляет фото…" в шапке чата.
func (tg *Telegram) SendChatAction(ctx context.Context, chatID int64, action string) error {
	return tg.call(ctx, "sendChatAction", map[string]any{
		"chat_id": chatID,
		"action":  action,
	}, nil)
}

func (tg *Telegram) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := tg.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DownloadFile скачивает содержимое файла по file_path из GetFile.
func (tg *Telegram) DownloadFile(ctx context.Context, filePath string) ([]byte, error) {
	url := fmt.Sprintf("%s/file/bot%s/%s", tg.baseURL, tg.token, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := tg.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("download file: http %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func applyOpts(params map[string]any, opts *SendOpts) {
	if opts == nil {
		return
	}
	if opts.ParseMode != "" {
		params["parse_mode"] = opts.ParseMode
	}
	if opts.ReplyToMessageID != 0 {
		params["reply_to_message_id"] = opts.ReplyToMessageID
	}
}
