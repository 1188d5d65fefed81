package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chatapp "marketchat/internal/app/chat"
	"marketchat/internal/domain/catalog"
	"marketchat/internal/domain/chat"
	"marketchat/internal/infra/broker/kafka"
	"marketchat/internal/infra/config"
	"marketchat/internal/infra/directory"
	ginserver "marketchat/internal/infra/http/gin"
	"marketchat/internal/infra/notify"
	"marketchat/internal/infra/obs"
	"marketchat/internal/infra/presence"
	"marketchat/internal/infra/queue"
	memorystore "marketchat/internal/infra/storage/memory"
	mongostore "marketchat/internal/infra/storage/mongo"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env := getenv("APP_ENV", "dev")
	logger := obs.NewLogger(env)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close(logger)

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: app.ready,
	}, ginserver.Handlers{
		Chat:      app.chatHandler,
		Principal: ginserver.PrincipalMiddleware(),
	})

	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil {
				logger.Error("worker stopped", "error", err)
			}
		}()
	}
	if app.inbound != nil {
		go func() {
			if err := app.inbound.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("inbound consumer stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	chatHandler *ginserver.ChatHandler
	worker      queue.Server
	inbound     *kafka.InboundConsumer
	cleanups    []func() error
	readyCheck  func() error
}

func (a *application) ready() error {
	if a.readyCheck != nil {
		return a.readyCheck()
	}
	return nil
}

func (a *application) close(logger *slog.Logger) {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}
}

func buildApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{}

	var conversations chat.ConversationRepository
	var messages chat.MessageRepository
	switch cfg.StoreMode {
	case "mongo":
		client, err := mongostore.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, err
		}
		store := mongostore.NewStore(client.DB)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		conversations = store.Conversations()
		messages = store.Messages()
		app.readyCheck = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
		app.cleanups = append(app.cleanups, func() error {
			return client.DB.Client().Disconnect(context.Background())
		})
	default:
		store := memorystore.NewStore()
		conversations = store.Conversations()
		messages = store.Messages()
		logger.Warn("using in-memory store, data is not durable")
	}

	var registry chatapp.PresenceRegistry
	var presenceWriter ginserver.PresenceWriter
	var dedup chatapp.DedupWindow
	var jobs queue.Client = queue.Disabled{}
	if cfg.RedisAddr != "" {
		redisClient, err := presence.Dial(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		redisRegistry := presence.NewRedisRegistry(redisClient, cfg.PresenceTTL)
		registry, presenceWriter = redisRegistry, redisRegistry
		dedup = presence.NewRedisDedup(redisClient)
		app.cleanups = append(app.cleanups, redisClient.Close)

		client, err := queue.NewAsynqClient(cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		jobs = client
		app.cleanups = append(app.cleanups, client.Close)

		worker, err := queue.NewAsynqServer(cfg.RedisAddr, cfg.WorkerConcurrency, logger)
		if err != nil {
			return nil, err
		}
		app.worker = worker
	} else {
		memoryRegistry := presence.NewMemoryRegistry(cfg.PresenceTTL)
		registry, presenceWriter = memoryRegistry, memoryRegistry
		dedup = presence.NewMemoryDedup()
		logger.Warn("redis not configured, presence is process-local and background jobs run inline")
	}

	var publisher chatapp.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, err
		}
		publisher = &kafka.EventPublisher{Producer: producer, Topic: cfg.KafkaTopicPrefix + "chat.events"}
		app.cleanups = append(app.cleanups, producer.Close)
	} else {
		publisher = logPublisher{logger: logger}
		logger.Warn("kafka not configured, fan-out events are logged only")
	}

	dir := directory.NewMemoryDirectory()
	listings := directory.NewMemoryCatalog()
	if path := getenv("FIXTURES_PATH", ""); path != "" {
		if err := loadFixtures(path, dir, listings); err != nil {
			logger.Warn("fixtures load failed", "path", path, "error", err)
		}
	}

	email := notify.NewSMTPEmail(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		From:     cfg.SMTPFrom,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Enabled:  cfg.EmailEnabled,
	})
	telegram, err := notify.NewTelegram(notify.TelegramConfig{
		Token:   cfg.TelegramToken,
		Enabled: cfg.ChatAppEnabled,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	unread := &chatapp.UnreadAggregator{
		Conversations: conversations,
		Messages:      messages,
		Publisher:     publisher,
		Logger:        logger,
	}
	scheduler := &chatapp.DeliveryScheduler{
		Messages:        messages,
		Presence:        registry,
		Queue:           jobs,
		Logger:          logger,
		Grace:           cfg.DeliveryGrace,
		PresenceTimeout: cfg.PresenceTimeout,
	}
	fanout := &chatapp.BroadcastFanout{
		Publisher: publisher,
		Unread:    unread,
		Queue:     jobs,
		Logger:    logger,
	}
	engine := &chatapp.NotificationDecisionEngine{
		Messages:        messages,
		Presence:        registry,
		Contacts:        dir,
		Transports:      []chatapp.NotificationTransport{email, telegram},
		Dedup:           dedup,
		Queue:           jobs,
		Logger:          logger,
		DedupTTL:        cfg.NotifyDedupTTL,
		PresenceTimeout: cfg.PresenceTimeout,
	}
	service := &chatapp.Service{
		Conversations: conversations,
		Messages:      messages,
		Directory:     dir,
		Catalog:       listings,
		Reactions:     []chatapp.Reaction{scheduler, fanout, engine},
		Logger:        logger,
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.ChatAppEnabled {
		ingest := &chatapp.ChatAppIngest{Service: service, Dedup: dedup, Logger: logger}
		consumer, err := kafka.NewInboundConsumer(cfg.KafkaBrokers, "marketchat", cfg.KafkaTopicPrefix+"chatapp.inbound", ingest.Handle, logger)
		if err != nil {
			return nil, err
		}
		app.inbound = consumer
		app.cleanups = append(app.cleanups, consumer.Close)
	}

	if app.worker != nil {
		handlers := &chatapp.TaskHandlers{
			Service:       service,
			Engine:        engine,
			Unread:        unread,
			Conversations: conversations,
			Messages:      messages,
			Logger:        logger,
		}
		handlers.Register(app.worker)
	}

	app.chatHandler = &ginserver.ChatHandler{
		Service:  service,
		Unread:   unread,
		Presence: presenceWriter,
		Logger:   logger,
	}
	return app, nil
}

// logPublisher stands in for Kafka in local runs.
type logPublisher struct {
	logger *slog.Logger
}

func (p logPublisher) Publish(ctx context.Context, channelKey string, event chatapp.Event) error {
	p.logger.Debug("event", "channel", channelKey, "type", event.Type, "conversation_id", event.ConversationID)
	return nil
}

type fixtures struct {
	Participants []struct {
		Kind   string `json:"kind"`
		ID     string `json:"id"`
		Email  string `json:"email"`
		ChatID string `json:"chat_id"`
	} `json:"participants"`
	Listings []catalog.Summary `json:"listings"`
}

// loadFixtures seeds the in-memory identity and catalog collaborators for
// dev runs.
func loadFixtures(path string, dir *directory.MemoryDirectory, listings *directory.MemoryCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fx fixtures
	if err := json.Unmarshal(raw, &fx); err != nil {
		return err
	}
	for _, p := range fx.Participants {
		dir.Add(chat.Actor{Kind: chat.ActorKind(p.Kind), ID: p.ID}, chatapp.Contact{
			Email:  p.Email,
			ChatID: p.ChatID,
		})
	}
	for _, l := range fx.Listings {
		listings.Put(l)
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
