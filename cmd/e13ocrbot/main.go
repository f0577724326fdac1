package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/EgorLis/e13ocrbot/internal/bot"
	"github.com/EgorLis/e13ocrbot/internal/config"
	"github.com/EgorLis/e13ocrbot/internal/qwencreds"
	"github.com/EgorLis/e13ocrbot/internal/tgapi"
	"github.com/EgorLis/e13ocrbot/internal/vision"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "путь к YAML-конфигу (необязательно)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	store := qwencreds.NewStore(cfg.QwenCreds)
	if _, err := os.Stat(store.Path()); err != nil {
		log.Fatalf("файл %s не найден — проверь монтирование в docker-compose: %v",
			store.Path(), err)
	}
	manager := qwencreds.NewManager(store, qwencreds.NewRefresher())

	b := bot.New()
	b.SetTelegram(tgapi.Config{
		Token:       cfg.TelegramToken,
		PollTimeout: cfg.PollTimeout,
	})
	b.SetCreds(manager)
	if err := b.SetVision(vision.Config{
		Timeout:   cfg.APITimeout,
		MaxTokens: cfg.MaxTokens,
	}); err != nil {
		log.Fatal(err)
	}
	if cfg.WebEnabled {
		b.SetWeb(cfg.WebAddr)
	}

	if err := b.UseConfig(cfg.BotConfig); err != nil {
		log.Fatal(err)
	}

	log.Println("запуск E13 OCR Bot...")
	if err := b.Start(); err != nil {
		log.Fatal(err)
	}
	defer b.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Println("бот запущен, ожидание сообщений...")
	<-ctx.Done()
	log.Println("остановка...")
}
