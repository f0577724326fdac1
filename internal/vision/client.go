package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

const (
	defaultURL = "https://portal.qwen.ai/v1/chat/completions"

	// ModelID — vision-модель портала Qwen.
	ModelID = "vision-model"

	DefaultTimeout   = 30 * time.Second
	DefaultMaxTokens = 4096
)

// ocrPrompt — инструкция для Vision API: вытащить весь текст как markdown.
const ocrPrompt = "Извлеки весь видимый текст с изображения.\n\n" +
	"Требования:\n" +
	"1. Сохрани ВСЁ что видишь - комментарии, кнопки, метки, цифры, ссылки\n" +
	"2. Используй markdown для структуры (заголовки, списки, выделение)\n" +
	"3. Особое внимание к цифрам - они должны быть точными\n" +
	"4. Сохрани порядок чтения (сверху вниз, слева направо)\n" +
	"5. Если текст нечёткий - напиши [неразборчиво]\n\n" +
	"Верни только извлечённый текст в markdown, без своих комментариев."

// ErrBadResponse — ответ API пришёл, но разобрать его не удалось.
var ErrBadResponse = errors.New("не удалось разобрать ответ Vision API")

// StatusError — HTTP-ошибка от Vision API; по коду бот выбирает текст для
// пользователя (401/429/5xx).
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("vision api: http %d", e.Code)
}

// TokenSource отдаёт актуальный bearer-токен; реализуется qwencreds.Manager.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Config struct {
	// URL подменяется в тестах; пустая строка — боевой портал.
	URL       string
	Timeout   time.Duration
	MaxTokens int
}

type Client struct {
	http      *http.Client
	url       string
	maxTokens int
	tokens    TokenSource
}

func New(cfg Config, tokens TokenSource) *Client {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		url:       cfg.URL,
		maxTokens: cfg.MaxTokens,
		tokens:    tokens,
	}
}

// структура chat/completions: content — массив из image_url и текста
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractText отправляет base64-изображение (без префикса data:) в Vision API
// и возвращает распознанный текст. 429 и 5xx ретраятся с Fibonacci-backoff,
// остальные ошибки отдаются сразу.
func (c *Client) ExtractText(ctx context.Context, imageB64 string) (string, error) {
	var text string
	b := retry.NewFibonacci(1 * time.Second)
	err := retry.Do(ctx, retry.WithMaxRetries(3, b), func(ctx context.Context) error {
		t, err := c.extractOnce(ctx, imageB64)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && (se.Code == http.StatusTooManyRequests || se.Code >= 500) {
				return retry.RetryableError(err)
			}
			return err
		}
		text = t
		return nil
	})
	return text, err
}

func (c *Client) extractOnce(ctx context.Context, imageB64 string) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("токен Qwen: %w", err)
	}

	payload := chatRequest{
		Model: ModelID,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/jpeg;base64," + imageB64,
				}},
				{Type: "text", Text: ocrPrompt},
			},
		}},
		MaxTokens: c.maxTokens,
	}
	body, err := json.Marshal(&payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	reqID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", reqID)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		log.Printf("[vision] %s: http %d: %s", reqID, resp.StatusCode, raw)
		return "", &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		log.Printf("[vision] %s: битый JSON: %v", reqID, err)
		return "", ErrBadResponse
	}
	if len(out.Choices) == 0 {
		log.Printf("[vision] %s: в ответе нет choices", reqID)
		return "", ErrBadResponse
	}
	return out.Choices[0].Message.Content, nil
}
