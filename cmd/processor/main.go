package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/challenge-forums/processor/internal/app/audit"
	"github.com/challenge-forums/processor/internal/app/boardsync"
	"github.com/challenge-forums/processor/internal/app/chatsync"
	"github.com/challenge-forums/processor/internal/app/dispatch"
	"github.com/challenge-forums/processor/internal/app/identity"
	"github.com/challenge-forums/processor/internal/boards"
	"github.com/challenge-forums/processor/internal/challengeapi"
	"github.com/challenge-forums/processor/internal/chat"
	"github.com/challenge-forums/processor/internal/config"
	"github.com/challenge-forums/processor/internal/normalize"
	"github.com/challenge-forums/processor/internal/platform/dbpool"
	"github.com/challenge-forums/processor/internal/platform/logging"
	"github.com/challenge-forums/processor/internal/platform/metrics"
	"github.com/challenge-forums/processor/internal/platform/natsutil"
	"github.com/challenge-forums/processor/internal/templates"
	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logging.New("error").Fatal("load configuration: %v", err)
	}
	log := logging.New(cfg.LogLevel)

	upstream := challengeapi.New(challengeapi.Config{
		BaseURL:      cfg.ChallengeAPI.BaseURL,
		AuthURL:      cfg.ChallengeAPI.AuthURL,
		Audience:     cfg.ChallengeAPI.Audience,
		ClientID:     cfg.ChallengeAPI.ClientID,
		ClientSecret: cfg.ChallengeAPI.ClientSecret,
		Timeout:      cfg.ChallengeAPI.Timeout,
	})

	var services []dispatch.Syncer
	if cfg.Boards.Enabled {
		lib, err := templates.Load(cfg.TemplateFile)
		if err != nil {
			log.Fatal("load forum templates: %v", err)
		}
		forum := boards.New(boards.Config{
			APIURL:         cfg.Boards.APIURL,
			AdminToken:     cfg.Boards.AdminToken,
			Timeout:        cfg.Boards.Timeout,
			TitleMaxLength: cfg.Boards.TitleMaxLength,
		})
		svc := boardsync.NewService(forum, upstream, lib, log)
		svc.DefaultRole = cfg.Boards.DefaultRole
		services = append(services, svc)
	}
	if cfg.Chat.Enabled {
		rooms := chat.New(chat.Config{
			APIURL:    cfg.Chat.APIURL,
			AuthToken: cfg.Chat.AuthToken,
			UserID:    cfg.Chat.UserID,
			Timeout:   cfg.Chat.Timeout,
		})
		services = append(services, chatsync.NewService(rooms, log))
	}
	if len(services) == 0 {
		log.Warn("no sync services enabled, consuming in no-op mode")
	}

	normalizer := &normalize.Normalizer{
		Topics:  normalize.Topics(cfg.Topics),
		RootURL: cfg.RootURL,
	}
	handler := dispatch.NewHandler(normalizer, services, log)
	if len(services) > 0 {
		handler.Resolver = identity.NewService(upstream, log)
	}

	if cfg.DatabaseURL != "" {
		pool, err := dbpool.New(runCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("connect audit database: %v", err)
		}
		defer pool.Close()
		repo := audit.NewRepository(pool)
		if err := repo.EnsureSchema(runCtx); err != nil {
			log.Fatal("ensure audit schema: %v", err)
		}
		handler.Audit = repo
	}

	client, err := natsutil.ConnectJetStreamWithRetry(cfg.NATSURL, cfg.Topics.All(), cfg.ConnectTimeout)
	if err != nil {
		log.Fatal("connect jetstream: %v", err)
	}
	defer client.Close()

	for _, topic := range cfg.Topics.All() {
		// Failure handling is log-only, so every delivery is acked; the
		// idempotent existence checks make redelivery safe anyway.
		_, err := client.JS.QueueSubscribe(topic, cfg.QueueGroup, func(msg *nats.Msg) {
			handler.Handle(runCtx, msg.Subject, [][]byte{msg.Data})
			_ = msg.Ack()
		}, nats.ManualAck())
		if err != nil {
			log.Fatal("subscribe to %s: %v", topic, err)
		}
		log.Info("consuming %s (queue group %s)", topic, cfg.QueueGroup)
	}

	router := chi.NewRouter()
	router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Handle("/metrics", metrics.DefaultHandler())
	go func() {
		if err := http.ListenAndServe(cfg.HTTPAddr, router); err != nil {
			log.Error("http server: %v", err)
		}
	}()
	log.Info("serving health and metrics on %s", cfg.HTTPAddr)

	<-runCtx.Done()
	log.Info("shutting down")
}
