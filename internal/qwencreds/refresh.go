package qwencreds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTokenURL = "https://chat.qwen.ai/api/v1/oauth2/token"
	oauthClientID   = "f0304373b74a44d2b584a3fb70ca9e56"
	// User-Agent обязателен: WAF Alibaba Cloud режет дефолтный Go-клиент
	refreshUserAgent = "curl/7.81.0"
)

// ErrRefreshTokenInvalid — refresh_token протух; нужна ручная авторизация
// (команда `qwen` на хосте).
var ErrRefreshTokenInvalid = errors.New("refresh_token недействителен, выполните: qwen")

type refreshResponse struct {
	Status       string `json:"status"`
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ResourceURL  string `json:"resource_url"`
	ExpiresIn    int64  `json:"expires_in"` // секунды
}

// Refresher обменивает refresh_token на свежую пару токенов
// через OAuth2 API Qwen.
type Refresher struct {
	http *http.Client
	url  string
}

func NewRefresher() *Refresher {
	return &Refresher{
		http: &http.Client{Timeout: 30 * time.Second},
		url:  defaultTokenURL,
	}
}

// NewRefresherURL — для тестов, с подменой эндпоинта.
func NewRefresherURL(url string) *Refresher {
	r := NewRefresher()
	r.url = url
	return r
}

// Refresh возвращает новые Creds. expiry_date пересчитывается из expires_in
// в миллисекундный timestamp — так же, как это делает Qwen CLI.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*Creds, error) {
	form := url.Values{
		"client_id":     {oauthClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", refreshUserAgent)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("http %d: %w", resp.StatusCode, ErrRefreshTokenInvalid)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("qwen oauth: http %d: %s", resp.StatusCode, trimBody(raw))
	}

	// WAF может отдать HTML-заглушку вместо JSON
	if ct := resp.Header.Get("Content-Type"); strings.Contains(ct, "text/html") {
		return nil, fmt.Errorf("qwen oauth: HTML вместо JSON (вероятно WAF), длина %d", len(raw))
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, fmt.Errorf("qwen oauth: пустой ответ: %w", ErrRefreshTokenInvalid)
	}

	var body refreshResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("qwen oauth: разбор ответа: %w (%s)", err, trimBody(raw))
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("qwen oauth: неожиданный статус %q", body.Status)
	}

	creds := &Creds{
		AccessToken:  body.AccessToken,
		TokenType:    body.TokenType,
		RefreshToken: body.RefreshToken,
		ResourceURL:  body.ResourceURL,
		ExpiryDate:   time.Now().UnixMilli() + body.ExpiresIn*1000,
	}
	if creds.TokenType == "" {
		creds.TokenType = "Bearer"
	}
	if creds.ResourceURL == "" {
		creds.ResourceURL = "portal.qwen.ai"
	}
	return creds, nil
}

func trimBody(b []byte) string {
	const max = 300
	s := string(b)
	if len(s) > max {
		return s[:max]
	}
	return s
}
