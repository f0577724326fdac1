// Package web — небольшой HTTP-сервер статуса для контейнерных проверок
// (healthcheck в compose) и наблюдения за ботом. Токены наружу не отдаёт.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusSource — что бот отдаёт наружу; реализуется bot.OCRBot.
type StatusSource interface {
	Uptime() time.Duration
	Counters() (processed, failed int64)
	TelegramConnected() bool
	TokenTTL() time.Duration
}

type Server struct {
	addr   string
	src    StatusSource
	server *http.Server
	ctx    context.Context
	cancel context.CancelFunc
}

func New(addr string, src StatusSource) *Server {
	if addr == "" {
		addr = "0.0.0.0:8080"
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:   addr,
		src:    src,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start начинает слушать addr; ошибки привязки возвращаются сразу.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/status", s.handleStatus)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	go s.server.Serve(listener)
	return nil
}

// Stop мягко гасит сервер.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": s.src.Uptime().Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	processed, failed := s.src.Counters()
	c.JSON(http.StatusOK, gin.H{
		"uptime":             s.src.Uptime().Round(time.Second).String(),
		"processed":          processed,
		"failed":             failed,
		"telegram_connected": s.src.TelegramConnected(),
		"token_expires_in":   s.src.TokenTTL().Round(time.Minute).String(),
	})
}
