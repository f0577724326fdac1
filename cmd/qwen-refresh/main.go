// qwen-refresh — проверка и обновление OAuth-токена Qwen из крона:
//
//	0 * * * * /usr/local/bin/qwen-refresh >> /var/log/qwen_refresh.log 2>&1
//
// Читает oauth_creds.json, и если до истечения access_token осталось меньше
// порога — обновляет его через OAuth2 API и перезаписывает файл (0600).
// Бот умеет обновлять токен и сам; утилита нужна для деплоев, где файл
// обслуживается на хосте.
package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/EgorLis/e13ocrbot/internal/qwencreds"
)

var cli struct {
	Creds     string        `short:"c" help:"Путь к oauth_creds.json." placeholder:"PATH"`
	Force     bool          `short:"f" help:"Обновить токен независимо от срока."`
	Threshold time.Duration `help:"Порог до истечения, при котором обновляем." default:"2h"`
}

func main() {
	kong.Parse(&cli,
		kong.Name("qwen-refresh"),
		kong.Description("Обновление OAuth-токена Qwen (для запуска из cron)."),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.SetFlags(log.LstdFlags)
	log.Println("=== проверка токена Qwen ===")

	store := qwencreds.NewStore(cli.Creds) // пустой путь -> ~/.qwen/oauth_creds.json
	creds, err := store.Load()
	if err != nil {
		log.Fatalf("чтение %s: %v", store.Path(), err)
	}

	remaining := creds.TimeToExpiry(time.Now())
	if !cli.Force && remaining > cli.Threshold {
		log.Printf("токен действителен ещё %s (порог %s) — обновление не требуется",
			remaining.Round(time.Second), cli.Threshold)
		return
	}
	log.Printf("токен истекает через %s — обновляем", remaining.Round(time.Second))

	if creds.RefreshToken == "" {
		log.Fatal("refresh_token отсутствует в файле, выполните авторизацию: qwen")
	}

	fresh, err := qwencreds.NewRefresher().Refresh(ctx, creds.RefreshToken)
	if err != nil {
		if errors.Is(err, qwencreds.ErrRefreshTokenInvalid) {
			log.Fatalf("%v", err)
		}
		log.Fatalf("обновление: %v", err)
	}

	if err := store.Save(fresh); err != nil {
		log.Fatalf("запись %s: %v", store.Path(), err)
	}
	log.Printf("токен обновлён, действителен %s",
		fresh.TimeToExpiry(time.Now()).Round(time.Minute))
}
