// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ragchat/internal/config"
	"github.com/capitalize-ai/ragchat/internal/handler"
	"github.com/capitalize-ai/ragchat/internal/llm"
	"github.com/capitalize-ai/ragchat/internal/middleware"
	natsclient "github.com/capitalize-ai/ragchat/internal/nats"
	"github.com/capitalize-ai/ragchat/internal/retrieval"
	"github.com/capitalize-ai/ragchat/internal/service"
	"github.com/capitalize-ai/ragchat/internal/storage"
	"github.com/capitalize-ai/ragchat/internal/store"
	"github.com/capitalize-ai/ragchat/pkg/logger"
	"github.com/capitalize-ai/ragchat/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "ragchat", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	checks := map[string]handler.ReadinessCheck{}

	// Model providers
	bedrockCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.BedrockRegion))
	if err != nil {
		log.Fatal("failed to load AWS config", zap.Error(err))
	}
	registry := llm.NewRegistry(cfg.DefaultModel)
	registry.RegisterBedrock(llm.NewBedrockClient(bedrockCfg))

	if cfg.AnthropicAPIKey != "" {
		client, err := llm.NewAnthropicClient(cfg.AnthropicAPIKey)
		if err != nil {
			log.Warn("failed to create Anthropic client", zap.Error(err))
		} else {
			registry.Register(llm.AnthropicHaikuKey, client, "claude-3-5-haiku-20241022")
		}
	}
	if cfg.OpenAIAPIKey != "" {
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			log.Warn("failed to create OpenAI client", zap.Error(err))
		} else {
			registry.Register(llm.OpenAIMiniKey, client, "gpt-4o-mini")
		}
	}
	log.Info("model registry ready", zap.Strings("models", registry.Keys()), zap.String("default", registry.DefaultKey()))

	// Knowledge base
	var kb retrieval.KnowledgeBase
	kbID := cfg.KnowledgeBaseID
	switch cfg.KBBackend {
	case config.KnowledgeBaseBedrock:
		kbCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KBRegion))
		if err != nil {
			log.Fatal("failed to load AWS config for knowledge base", zap.Error(err))
		}
		kb = retrieval.NewBedrockKnowledgeBase(kbCfg, cfg.RetrievalResults)
	case config.KnowledgeBaseWeaviate:
		w, err := retrieval.NewWeaviateKnowledgeBase(cfg.WeaviateURL, cfg.WeaviateTextProperty, cfg.RetrievalResults)
		if err != nil {
			log.Fatal("failed to create Weaviate client", zap.Error(err))
		}
		kb = w
		if kbID == "" {
			kbID = cfg.WeaviateClass
		}
	case config.KnowledgeBaseNone:
	default:
		log.Fatal("unknown knowledge base backend", zap.String("backend", cfg.KBBackend))
	}
	if kb != nil && kbID == "" {
		log.Warn("knowledge base id not set, knowledge_base mode will fall back to general")
	}

	// Conversation store
	var conversations store.ConversationStore
	switch cfg.StoreBackend {
	case config.StoreDynamo:
		dynamoCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			log.Fatal("failed to load AWS config for DynamoDB", zap.Error(err))
		}
		conversations = store.NewDynamoStore(dynamoCfg, cfg.DynamoTableName)
	case config.StoreRedis:
		rs, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatal("failed to create Redis store", zap.Error(err))
		}
		defer rs.Close()
		conversations = rs
	case config.StoreMemory:
		log.Warn("using in-memory conversation store, history is lost on restart")
		conversations = store.NewMemoryStore()
	default:
		log.Fatal("unknown store backend", zap.String("backend", cfg.StoreBackend))
	}
	checks["store"] = conversations.Ping

	// Object storage
	var objects storage.ObjectStore
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Options{
			Region:    cfg.AWSRegion,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
		if err != nil {
			log.Fatal("failed to create S3 store", zap.Error(err))
		}
		objects = s3Store
		checks["s3"] = s3Store.Ping
	} else {
		log.Warn("S3_BUCKET_NAME not set, stored attachments and uploads are disabled")
	}

	// Turn events
	var publisher service.TurnPublisher
	if cfg.NATSURL != "" {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		turns := natsclient.NewTurnPublisher(natsClient)
		if err := turns.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		publisher = turns
		checks["nats"] = natsClient.Ping
	}

	// Initialize services
	chatSvc := service.NewChatService(service.ChatDeps{
		Registry:      registry,
		KnowledgeBase: kb,
		Store:         conversations,
		Objects:       objects,
		Publisher:     publisher,
	}, service.ChatOptions{
		KnowledgeBaseID:    kbID,
		HistoryWindow:      cfg.HistoryWindow,
		MaxAttachmentBytes: cfg.MaxAttachmentBytes,
		MaxTokens:          cfg.MaxTokens,
		Temperature:        cfg.Temperature,
		PersistTimeout:     cfg.PersistTimeout,
		PersistMaxRetries:  cfg.PersistMaxRetries,
	}, log)
	conversationSvc := service.NewConversationService(conversations, cfg.PersistMaxRetries, log)

	// Initialize handlers
	extractor := middleware.NewIdentityExtractor(cfg.JWTSecret)
	if !extractor.VerifiesSignature() {
		log.Warn("AUTH_JWT_SECRET not set, bearer tokens are decoded without signature verification")
	}
	var uploadHandler *handler.UploadHandler
	if objects != nil {
		uploadSvc := service.NewUploadService(objects, cfg.UploadURLTTL, cfg.UploadMaxBytes, log)
		uploadHandler = handler.NewUploadHandler(uploadSvc, log)
	}

	r := handler.NewRouter(handler.RouterConfig{
		Logger:             log,
		Extractor:          extractor,
		Registry:           registry,
		Health:             handler.NewHealthHandler(checks),
		Chat:               handler.NewChatHandler(chatSvc, extractor, log),
		Conversations:      handler.NewConversationHandler(conversationSvc, log),
		Uploads:            uploadHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRequests:  cfg.RateLimitRequests,
		RateLimitWindow:    cfg.RateLimitWindow,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
