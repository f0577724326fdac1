package qwencreds

import (
	"context"
	"errors"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sethvargo/go-retry"
)

// Manager держит актуальный токен в памяти и поддерживает его свежим:
//   - следит за файлом через fsnotify (крон на хосте может его перезаписать);
//   - раз в час проверяет срок и при необходимости обновляет сам.
//
// Оба пути пишут один и тот же файл, так что схема совместима со старым
// деплоем "refresh по крону снаружи".
type Manager struct {
	store *Store
	ref   *Refresher

	mu    sync.RWMutex
	creds *Creds

	checkEvery time.Duration

	running   bool
	stopCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	runMu     sync.Mutex
}

func NewManager(store *Store, ref *Refresher) *Manager {
	return &Manager{
		store:      store,
		ref:        ref,
		checkEvery: time.Hour,
	}
}

// Load читает файл и валидирует токен. Первый вызов — при старте бота,
// отсутствие файла или пустой токен там фатальны.
func (m *Manager) Load() error {
	creds, err := m.store.Load()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()
	return nil
}

// Token — текущий access_token. Реализует vision.TokenSource.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()
	if creds == nil || creds.AccessToken == "" {
		// на всякий случай перечитаем файл — вдруг его только что обновили
		if err := m.Load(); err != nil {
			return "", err
		}
		m.mu.RLock()
		creds = m.creds
		m.mu.RUnlock()
	}
	return creds.AccessToken, nil
}

// TimeToExpiry — сколько живёт текущий токен (для /status и /api/status).
func (m *Manager) TimeToExpiry() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.creds == nil {
		return 0
	}
	return m.creds.TimeToExpiry(time.Now())
}

// Start запускает вотчер файла и фоновую проверку срока.
func (m *Manager) Start() error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	// следим за каталогом: крон и редакторы заменяют файл через rename
	if err := watcher.Add(filepath.Dir(m.store.Path())); err != nil {
		watcher.Close()
		return err
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.runCtx, m.runCancel = context.WithCancel(context.Background())

	m.wg.Add(1)
	go m.loop(watcher)
	return nil
}

func (m *Manager) Stop() {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	// обрываем возможное обновление в полёте, иначе Wait ждал бы его таймаут
	m.runCancel()
	m.runMu.Unlock()
	m.wg.Wait()
}

func (m *Manager) loop(watcher *fsnotify.Watcher) {
	defer m.wg.Done()
	defer watcher.Close()

	base := filepath.Base(m.store.Path())
	t := time.NewTicker(m.checkEvery)
	defer t.Stop()

	// стартовая проверка, не дожидаясь первого тика
	m.refreshIfNeeded()

	for {
		select {
		case <-m.stopCh:
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := m.Load(); err != nil {
				log.Println("[creds] перечитать файл:", err)
				continue
			}
			log.Printf("[creds] файл обновлён снаружи, токен действителен ещё %s",
				m.TimeToExpiry().Round(time.Minute))

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Println("[creds] watcher:", err)

		case <-t.C:
			m.refreshIfNeeded()
		}
	}
}

// refreshIfNeeded обновляет токен, если до истечения меньше порога.
// Неудача не фатальна: продолжаем жить на старом токене до следующего тика.
func (m *Manager) refreshIfNeeded() {
	m.mu.RLock()
	creds := m.creds
	m.mu.RUnlock()
	if creds == nil || !creds.NeedsRefresh(time.Now()) {
		return
	}
	if creds.RefreshToken == "" {
		log.Println("[creds] refresh_token отсутствует, обновление невозможно")
		return
	}

	log.Printf("[creds] токен истекает через %s — обновляем",
		creds.TimeToExpiry(time.Now()).Round(time.Second))

	ctx, cancel := context.WithTimeout(m.runCtx, 2*time.Minute)
	defer cancel()

	var fresh *Creds
	b := retry.NewFibonacci(1 * time.Second)
	err := retry.Do(ctx, retry.WithMaxRetries(3, b), func(ctx context.Context) error {
		c, err := m.ref.Refresh(ctx, creds.RefreshToken)
		if err != nil {
			if errors.Is(err, ErrRefreshTokenInvalid) {
				return err // ретраить бессмысленно
			}
			return retry.RetryableError(err)
		}
		fresh = c
		return nil
	})
	if err != nil {
		log.Println("[creds] обновление не удалось:", err)
		return
	}

	if err := m.store.Save(fresh); err != nil {
		log.Println("[creds] сохранить файл:", err)
	}
	m.mu.Lock()
	m.creds = fresh
	m.mu.Unlock()

	log.Printf("[creds] токен обновлён, действителен %s",
		fresh.TimeToExpiry(time.Now()).Round(time.Minute))
}
