package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lumacart/broadcast/internal/adapters/api"
	"github.com/lumacart/broadcast/internal/adapters/capture"
	router "github.com/lumacart/broadcast/internal/adapters/http"
	"github.com/lumacart/broadcast/internal/adapters/rtc"
	"github.com/lumacart/broadcast/internal/config"
	"github.com/lumacart/broadcast/internal/media"
	"github.com/lumacart/broadcast/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		os.Exit(1)
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	engine, err := capture.NewEngine()
	if err != nil {
		log.Error().Err(err).Msg("failed to init capture engine")
		os.Exit(1)
	}

	ctrl := session.NewController(session.Config{
		Endpoint:             cfg.SFUEndpoint,
		ConnectTimeout:       cfg.ConnectTimeout,
		DisconnectTimeout:    cfg.DisconnectTimeout,
		PublishTimeout:       cfg.PublishTimeout,
		SettleDelay:          cfg.SettleDelay,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, rtc.NewTransport(), engine)

	unsubscribe := ctrl.Subscribe(func(st session.Status) {
		log.Info().
			Str("module", "main").
			Str("state", st.ConnectionState.String()).
			Bool("video", st.IsPublishingVideo).
			Bool("audio", st.IsPublishingAudio).
			Int("viewers", st.RemoteParticipantCount).
			Msg("session status")
	})
	defer unsubscribe()

	handlers := router.NewHandlers(ctrl, media.NewInventory(engine), api.NewClient(cfg.APIBaseURL, cfg.APIToken), cfg.ChatEndpoint)
	r := router.SetupRouter(cfg, handlers)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("broadcaster control surface started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	ctrl.Teardown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Exited gracefully")
}
