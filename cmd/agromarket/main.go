package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authsvc "github.com/Lookout84/agromarket/internal/app/services/auth"
	chatsvc "github.com/Lookout84/agromarket/internal/app/services/chat"
	listingssvc "github.com/Lookout84/agromarket/internal/app/services/listings"
	domainauth "github.com/Lookout84/agromarket/internal/domain/auth"
	domainchat "github.com/Lookout84/agromarket/internal/domain/chat"
	domainlistings "github.com/Lookout84/agromarket/internal/domain/listings"
	domainuser "github.com/Lookout84/agromarket/internal/domain/user"
	"github.com/Lookout84/agromarket/internal/infra/broker/kafka"
	"github.com/Lookout84/agromarket/internal/infra/config"
	mongodb "github.com/Lookout84/agromarket/internal/infra/db/mongo"
	ginserver "github.com/Lookout84/agromarket/internal/infra/http/gin"
	"github.com/Lookout84/agromarket/internal/infra/obs"
	"github.com/Lookout84/agromarket/internal/infra/realtime"
	"github.com/Lookout84/agromarket/internal/infra/security"
	"github.com/Lookout84/agromarket/internal/infra/storage/memory"
	"github.com/Lookout84/agromarket/internal/infra/storage/s3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration invalid", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)

	stores, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		logger.Error("storage init failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	hub := realtime.NewHub(logger)
	notifiers := []domainchat.Notifier{hub}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			logger.Error("kafka producer init failed", "error", err, "brokers", cfg.KafkaBrokers)
			os.Exit(1)
		}
		defer producer.Close()
		notifiers = append(notifiers, &kafka.ChatEventPublisher{
			Producer: producer,
			Topic:    cfg.KafkaTopic,
			Logger:   logger,
		})
		logger.Info("chat events mirrored to kafka", "topic", cfg.KafkaTopic)
	}

	var attachments *s3.AttachmentStore
	if cfg.S3Endpoint != "" {
		attachments, err = s3.NewAttachmentStore(cfg.S3Endpoint, cfg.S3UseSSL, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, cfg.S3PublicURL, logger)
		if err != nil {
			logger.Error("attachment store init failed", "error", err)
			os.Exit(1)
		}
	}

	authService := &authsvc.Service{
		Users:      stores.users,
		Sessions:   stores.sessions,
		Hasher:     security.BcryptHasher{},
		Tokens:     security.RandomTokenGenerator{},
		SessionTTL: cfg.SessionTTL,
		Logger:     logger,
	}
	listingService := &listingssvc.Service{
		Listings: stores.listings,
		Users:    stores.users,
		Logger:   logger,
	}
	chatService := &chatsvc.Service{
		Conversations: stores.conversations,
		Messages:      stores.messages,
		Identities:    chatsvc.IdentityFromUsers{Users: stores.users},
		Listings:      chatsvc.ListingsFromRepository{Listings: stores.listings},
		Notifier:      chatsvc.MultiNotifier(notifiers),
		Logger:        logger,
	}

	chatHandler := ginserver.ChatHandler{
		Chat:     chatService,
		Listings: listingService,
		Logger:   logger,
	}
	if attachments != nil {
		chatHandler.Attachments = attachments
	}
	handlers := ginserver.Handlers{
		Auth:           ginserver.AuthHandler{Service: authService, Logger: logger},
		Listing:        ginserver.ListingHandler{Service: listingService, Logger: logger},
		Chat:           chatHandler,
		WS:             ginserver.WSHandler{Hub: hub, Chat: chatService, Logger: logger},
		AuthMiddleware: ginserver.AuthMiddleware{Service: authService, Logger: logger}.Handle,
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready: stores.ready,
	}, handlers)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type storeSet struct {
	users         domainuser.Repository
	sessions      domainauth.SessionStore
	listings      domainlistings.Repository
	conversations domainchat.ConversationStore
	messages      domainchat.MessageLog
	ready         func() error
}

// buildStores picks the persistence backend: Mongo when MONGO_URI is set,
// in-memory otherwise.
func buildStores(ctx context.Context, cfg config.Config, logger *slog.Logger) (storeSet, func(), error) {
	if cfg.MongoURI == "" {
		logger.Info("MONGO_URI not set, using in-memory stores")
		return storeSet{
			users:         memory.NewUserRepository(),
			sessions:      memory.NewSessionStore(),
			listings:      memory.NewListingRepository(),
			conversations: memory.NewConversationStore(),
			messages:      memory.NewMessageLog(),
			ready:         func() error { return nil },
		}, func() {}, nil
	}

	client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		return storeSet{}, nil, err
	}
	cleanup := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Close(closeCtx); err != nil {
			logger.Error("mongo disconnect failed", "error", err)
		}
	}

	users := mongodb.NewUserRepository(client.DB)
	sessions := mongodb.NewSessionRepository(client.DB)
	listings := mongodb.NewListingRepository(client.DB)
	conversations := mongodb.NewConversationRepository(client.DB)
	messages := mongodb.NewMessageRepository(client.DB)

	indexCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	for _, ensure := range []func(context.Context) error{
		users.EnsureIndexes,
		sessions.EnsureIndexes,
		listings.EnsureIndexes,
		conversations.EnsureIndexes,
		messages.EnsureIndexes,
	} {
		if err := ensure(indexCtx); err != nil {
			cleanup()
			return storeSet{}, nil, err
		}
	}
	logger.Info("mongo storage ready", "database", cfg.MongoDB)

	return storeSet{
		users:         users,
		sessions:      sessions,
		listings:      listings,
		conversations: conversations,
		messages:      messages,
		ready: func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		},
	}, cleanup, nil
}
