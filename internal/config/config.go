// Package config — конфигурация сервиса: переменные окружения с префиксом
// E13 плюс необязательный YAML-файл. Секреты (токен Telegram) приходят
// только через окружение и в образ не зашиваются.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/EgorLis/e13ocrbot/internal/qwencreds"
	"github.com/EgorLis/e13ocrbot/internal/vision"
)

const (
	defaultPollTimeout = 50 * time.Second
	defaultWebAddr     = "0.0.0.0:8080"
	defaultBotConfig   = "conf/botconfig.json"
)

type Config struct {
	TelegramToken string        `mapstructure:"telegram-token"`
	QwenCreds     string        `mapstructure:"qwen-creds"`
	APITimeout    time.Duration `mapstructure:"api-timeout"`
	MaxTokens     int           `mapstructure:"max-tokens"`
	PollTimeout   time.Duration `mapstructure:"poll-timeout"`
	WebEnabled    bool          `mapstructure:"web-enabled"`
	WebAddr       string        `mapstructure:"web-addr"`
	BotConfig     string        `mapstructure:"bot-config"`
}

// Load собирает конфигурацию: значения по умолчанию < файл < окружение.
// configPath может быть пустым — тогда только окружение и дефолты.
func Load(configPath string) (Config, error) {
	var cfg Config

	v := viper.New()
	v.SetEnvPrefix("E13")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("telegram-token", "")
	v.SetDefault("qwen-creds", qwencreds.DefaultPath())
	v.SetDefault("api-timeout", vision.DefaultTimeout)
	v.SetDefault("max-tokens", vision.DefaultMaxTokens)
	v.SetDefault("poll-timeout", defaultPollTimeout)
	v.SetDefault("web-enabled", true)
	v.SetDefault("web-addr", defaultWebAddr)
	v.SetDefault("bot-config", defaultBotConfig)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate — проверки, без которых стартовать бессмысленно.
func (c Config) Validate() error {
	if c.TelegramToken == "" {
		return errors.New("не задана переменная окружения E13_TELEGRAM_TOKEN")
	}
	return nil
}
