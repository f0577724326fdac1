package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/e13ocrbot/internal/qwencreds"
	"github.com/EgorLis/e13ocrbot/internal/tgapi"
	"github.com/EgorLis/e13ocrbot/internal/vision"
	"github.com/EgorLis/e13ocrbot/internal/web"
)

// maxParallelJobs — сколько изображений распознаём одновременно (все чаты).
const maxParallelJobs = 4

type OCRBot struct {
	tg     *tgapi.Telegram
	vision *vision.Client
	creds  *qwencreds.Manager
	web    *web.Server

	cfg *configStore

	// контекст фоновых задач; живёт от Start до Stop
	ctx    context.Context
	cancel context.CancelFunc

	jobs   errgroup.Group
	busy   map[int64]bool // chatID -> идёт обработка
	busyMu sync.Mutex

	processed atomic.Int64
	failed    atomic.Int64
	startedAt time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func New() *OCRBot {
	b := &OCRBot{
		busy: make(map[int64]bool),
	}
	b.jobs.SetLimit(maxParallelJobs)
	return b
}

func (bot *OCRBot) SetTelegram(cfg tgapi.Config) {
	bot.tg = tgapi.New(cfg)

	bot.tg.OnConnecting = func() { log.Println("[tg] подключение...") }
	bot.tg.OnConnected = func(me *tgapi.User) {
		log.Printf("[tg] подключен как @%s (%d)", me.Username, me.ID)
	}
	bot.tg.OnError = func(err error) { log.Println("[tg] err:", err) }
	bot.tg.OnDisconnected = func() { log.Println("[tg] отключен") }
	bot.tg.OnUpdate = bot.handleUpdate
}

func (bot *OCRBot) SetCreds(m *qwencreds.Manager) {
	bot.creds = m
}

// SetVision требует предварительного SetCreds: клиент берёт токены у менеджера.
func (bot *OCRBot) SetVision(cfg vision.Config) error {
	if bot.creds == nil {
		return errors.New("сначала вызови SetCreds")
	}
	bot.vision = vision.New(cfg, bot.creds)
	return nil
}

func (bot *OCRBot) SetWeb(addr string) {
	bot.web = web.New(addr, bot)
}

func (bot *OCRBot) Start() error {
	if bot == nil {
		return errors.New("бот не инициализирован")
	}
	if bot.tg == nil {
		return errors.New("модуль telegram не инициализирован")
	}
	if bot.creds == nil || bot.vision == nil {
		return errors.New("модуль vision не инициализирован")
	}
	if bot.stopCh != nil {
		return errors.New("уже запущен")
	}

	// стартовая проверка креденшелов: без валидного токена не поднимаемся
	if err := bot.creds.Load(); err != nil {
		return fmt.Errorf("креденшелы Qwen: %w", err)
	}
	log.Printf("[bot] токен Qwen загружен, действителен ещё %s",
		bot.creds.TimeToExpiry().Round(time.Minute))

	bot.stopCh = make(chan struct{})
	bot.startedAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	bot.ctx, bot.cancel = ctx, cancel

	if err := bot.tg.Connect(ctx); err != nil {
		cancel()
		bot.stopCh = nil
		return err
	}

	if err := bot.creds.Start(); err != nil {
		log.Println("[bot] вотчер креденшелов не запустился:", err)
	}

	if bot.web != nil {
		if err := bot.web.Start(); err != nil {
			log.Println("[bot] web:", err)
		}
	}

	// сторож для остановки
	bot.wg.Add(1)
	go func() {
		defer bot.wg.Done()
		<-bot.stopCh
		bot.tg.Disconnect()
		_ = bot.jobs.Wait() // дождёмся обработку уже принятых изображений
		cancel()
		bot.creds.Stop()
		if bot.web != nil {
			if err := bot.web.Stop(); err != nil {
				log.Println("[bot] web stop:", err)
			}
		}
	}()

	return nil
}

func (bot *OCRBot) Stop() {
	bot.mu.Lock()
	ch := bot.stopCh
	bot.stopCh = nil
	bot.mu.Unlock()

	if ch != nil {
		close(ch)
		bot.wg.Wait()
	}
}

// ========================= статус (web.StatusSource) =========================

func (bot *OCRBot) Uptime() time.Duration {
	if bot.startedAt.IsZero() {
		return 0
	}
	return time.Since(bot.startedAt)
}

func (bot *OCRBot) Counters() (processed, failed int64) {
	return bot.processed.Load(), bot.failed.Load()
}

func (bot *OCRBot) TelegramConnected() bool {
	return bot.tg != nil && bot.tg.IsConnected()
}

func (bot *OCRBot) TokenTTL() time.Duration {
	if bot.creds == nil {
		return 0
	}
	return bot.creds.TimeToExpiry()
}
