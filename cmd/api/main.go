package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"deskwire/api/internal/app"
	"deskwire/api/internal/authpw"
	"deskwire/api/internal/config"
	"deskwire/api/internal/email"
	"deskwire/api/internal/events"
	"deskwire/api/internal/oracle"
	"deskwire/api/internal/presence"
	"deskwire/api/internal/routing"
	"deskwire/api/internal/rules"
	"deskwire/api/internal/search"
	"deskwire/api/internal/session"
	"deskwire/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, dataStore)

	var publisher *events.Publisher
	if strings.TrimSpace(cfg.AMQPURL) != "" {
		publisher, err = events.New(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			log.Fatalf("amqp connection failed: %v", err)
		}
		defer publisher.Close()
		log.Printf("Publishing events to exchange %s", cfg.AMQPExchange)
	}

	mailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
		log.Fatalf("ANTHROPIC_API_KEY is required")
	}
	scorer := oracle.New(cfg.AnthropicAPIKey, cfg.OracleModel, cfg.OracleTimeout)

	ruleService := rules.NewService(dataStore)

	var engineNotifier routing.Notifier
	var hubNotifier presence.Notifier
	if publisher != nil {
		engineNotifier = publisher
		hubNotifier = publisher
	}
	var mailer routing.Mailer
	if mailService.IsConfigured() {
		mailer = mailService
	}
	engine := routing.New(dataStore, ruleService, scorer, engineNotifier, mailer, searchService)

	hub := presence.NewHub(dataStore, hubNotifier)

	authService := authpw.NewService(dataStore)

	var sessions *session.RedisStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		sessions, err = session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer sessions.Close()
		log.Printf("Using Redis for refresh token storage")
	} else {
		log.Printf("Redis not configured, refresh tokens disabled")
	}

	// A nil *RedisStore must not reach the service as a non-nil interface.
	var service *app.Service
	if sessions != nil {
		service = app.NewService(cfg, dataStore, ruleService, engine, hub, sessions, authService, searchService)
	} else {
		service = app.NewService(cfg, dataStore, ruleService, engine, hub, nil, authService, searchService)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Deskwire API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
