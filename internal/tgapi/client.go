package tgapi

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

type Config struct {
	Token       string        `json:"token"`
	PollTimeout time.Duration `json:"-"`
	// BaseURL подменяется в тестах; пустая строка — боевой api.telegram.org.
	BaseURL string `json:"-"`
}

type Telegram struct {
	token   string
	baseURL string
	poll    time.Duration
	http    *http.Client

	me     *User
	offset int64
	closed atomic.Bool

	stopCh chan struct{}

	// "События" (колбэки поля структуры)
	OnConnecting   func()
	OnConnected    func(me *User)
	OnUpdate       func(*Update)
	OnDisconnected func()
	OnError        func(error)
}

func New(cfg Config) *Telegram {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 50 * time.Second
	}
	return &Telegram{
		token:   cfg.Token,
		baseURL: base,
		poll:    poll,
		// таймаут http-клиента длиннее long poll, иначе он рубит ожидание
		http: &http.Client{Timeout: poll + 15*time.Second},
	}
}

// Connect — проверяет токен через getMe и запускает цикл long poll.
// Контекст можно отменить для мягкой остановки цикла.
func (tg *Telegram) Connect(ctx context.Context) error {
	if tg.OnConnecting != nil {
		tg.OnConnecting()
	}

	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	tg.me = me
	tg.closed.Store(false)
	tg.stopCh = make(chan struct{})

	// скинем накопившиеся апдейты — бот отвечает только на свежие
	if err := tg.dropPending(ctx); err != nil {
		return fmt.Errorf("drop pending: %w", err)
	}

	if tg.OnConnected != nil {
		tg.OnConnected(me)
	}

	go tg.pollLoop(ctx)
	return nil
}

func (tg *Telegram) Disconnect() {
	if tg.closed.Swap(true) {
		return
	}
	if tg.stopCh != nil {
		close(tg.stopCh)
	}
}

func (tg *Telegram) IsConnected() bool {
	return tg.me != nil && !tg.closed.Load()
}

// Me возвращает аккаунт бота после успешного Connect.
func (tg *Telegram) Me() *User {
	return tg.me
}

// dropPending — аналог drop_pending_updates: запрашиваем offset=-1
// (только самый свежий апдейт) и переставляем offset за него.
func (tg *Telegram) dropPending(ctx context.Context) error {
	updates, err := tg.getUpdates(ctx, -1, 0)
	if err != nil {
		return err
	}
	for _, u := range updates {
		if u.UpdateID >= tg.offset {
			tg.offset = u.UpdateID + 1
		}
	}
	return nil
}
