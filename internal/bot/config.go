package bot

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// BotConfig — рантайм-конфиг бота. Пустой список allowed_chats означает
// открытый бот (поведение по умолчанию).
type BotConfig struct {
	AllowedChats []int64 `json:"allowed_chats"`
}

type configStore struct {
	mu   sync.Mutex
	path string
	data BotConfig
}

// UseConfig подключает JSON-конфиг; отсутствующий файл создаётся пустым.
func (bot *OCRBot) UseConfig(path string) error {
	bot.cfg = newConfigStore(path)
	if err := bot.cfg.Load(); err != nil {
		return err
	}
	if n := len(bot.cfg.data.AllowedChats); n > 0 {
		log.Printf("[bot] доступ ограничен: %d чатов в списке", n)
	}
	return nil
}

func (bot *OCRBot) chatAllowed(chatID int64) bool {
	if bot.cfg == nil {
		return true
	}
	bot.cfg.mu.Lock()
	defer bot.cfg.mu.Unlock()
	if len(bot.cfg.data.AllowedChats) == 0 {
		return true
	}
	for _, id := range bot.cfg.data.AllowedChats {
		if id == chatID {
			return true
		}
	}
	return false
}

func (cs *configStore) Load() error {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	f := cs.path
	_ = os.MkdirAll(filepath.Dir(f), 0755)
	b, err := os.ReadFile(f)
	if err != nil {
		if os.IsNotExist(err) {
			return cs.save() // создаём пустой
		}
		return err
	}
	return json.Unmarshal(b, &cs.data)
}

func (cs *configStore) save() error {
	b, err := json.MarshalIndent(&cs.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(cs.path, b, 0644)
}

func newConfigStore(path string) *configStore {
	return &configStore{path: path}
}
