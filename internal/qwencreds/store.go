package qwencreds

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
)

// RefreshThreshold — обновляем токен, если до истечения осталось меньше.
const RefreshThreshold = 2 * time.Hour

// ErrNoAccessToken — файл есть, но access_token в нём пустой.
var ErrNoAccessToken = errors.New("access_token отсутствует в файле")

// Creds — содержимое oauth_creds.json в том виде, как его пишет Qwen CLI.
// ExpiryDate — unix-время в миллисекундах.
type Creds struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ResourceURL  string `json:"resource_url"`
	ExpiryDate   int64  `json:"expiry_date"`
}

// TimeToExpiry — сколько осталось до истечения токена (может быть < 0).
func (c *Creds) TimeToExpiry(now time.Time) time.Duration {
	if c.ExpiryDate == 0 {
		return 0
	}
	return time.UnixMilli(c.ExpiryDate).Sub(now)
}

// NeedsRefresh — пора ли обновлять. Без expiry_date считаем, что пора.
func (c *Creds) NeedsRefresh(now time.Time) bool {
	if c.ExpiryDate == 0 {
		return true
	}
	return c.TimeToExpiry(now) <= RefreshThreshold
}

// DefaultPath — ~/.qwen/oauth_creds.json (туда пишет Qwen CLI).
func DefaultPath() string {
	return filepath.Join(xdg.Home, ".qwen", "oauth_creds.json")
}

// Store — файл с креденшелами. Перезаписывается и кроном на хосте,
// и нашим фоновым обновлением, поэтому все операции под мьютексом.
type Store struct {
	mu   sync.Mutex
	path string
}

func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

func (s *Store) Load() (*Creds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var c Creds
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("разбор %s: %w", s.path, err)
	}
	if c.AccessToken == "" {
		return nil, ErrNoAccessToken
	}
	return &c, nil
}

// Save перезаписывает файл и ограничивает доступ владельцем (0600).
func (s *Store) Save(c *Creds) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, b, 0o600); err != nil {
		return err
	}
	return os.Chmod(s.path, 0o600)
}
