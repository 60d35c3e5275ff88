// Package config provides environment configuration for the chat service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreDynamo = "dynamodb"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Knowledge base backends.
const (
	KnowledgeBaseBedrock  = "bedrock"
	KnowledgeBaseWeaviate = "weaviate"
	KnowledgeBaseNone     = "none"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSAllowedOrigins []string

	// AWS settings
	AWSRegion     string
	BedrockRegion string
	KBRegion      string
	S3Endpoint    string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string

	// Conversation store
	StoreBackend      string
	DynamoTableName   string
	RedisURL          string
	PersistTimeout    time.Duration
	PersistMaxRetries int

	// Knowledge base
	KBBackend            string
	KnowledgeBaseID      string
	RetrievalResults     int
	WeaviateURL          string
	WeaviateClass        string
	WeaviateTextProperty string

	// NATS settings (empty URL disables turn events)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Auth. An empty secret trusts the edge layer and skips signature checks.
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	DefaultModel    string
	MaxTokens       int
	Temperature     float64

	// Chat pipeline
	HistoryWindow      int
	MaxAttachmentBytes int64

	// Uploads
	UploadURLTTL   time.Duration
	UploadMaxBytes int64

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	region := getEnv("AWS_REGION", "us-east-1")

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 5*time.Minute),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),

		// AWS
		AWSRegion:     region,
		BedrockRegion: getEnv("BEDROCK_AWS_REGION", region),
		KBRegion:      getEnv("KB_AWS_REGION", region),
		S3Endpoint:    getEnv("AWS_ENDPOINT_URL_S3", ""),
		S3Bucket:      getEnv("S3_BUCKET_NAME", ""),
		S3AccessKey:   getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:   getEnv("S3_SECRET_KEY", ""),

		// Store
		StoreBackend:      strings.ToLower(getEnv("STORE_BACKEND", StoreDynamo)),
		DynamoTableName:   getEnv("DYNAMODB_TABLE_NAME", "ragchat-chats"),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		PersistTimeout:    getDurationEnv("PERSIST_TIMEOUT", 10*time.Second),
		PersistMaxRetries: getIntEnv("PERSIST_MAX_RETRIES", 3),

		// Knowledge base
		KBBackend:            strings.ToLower(getEnv("KB_BACKEND", KnowledgeBaseBedrock)),
		KnowledgeBaseID:      getEnv("KNOWLEDGE_BASE_ID", ""),
		RetrievalResults:     getIntEnv("RETRIEVAL_RESULTS", 10),
		WeaviateURL:          getEnv("WEAVIATE_URL", "http://localhost:8080"),
		WeaviateClass:        getEnv("WEAVIATE_CLASS", "Passage"),
		WeaviateTextProperty: getEnv("WEAVIATE_TEXT_PROPERTY", "text"),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Auth
		JWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DefaultModel:    getEnv("DEFAULT_MODEL", "nova-lite"),
		MaxTokens:       getIntEnv("MAX_TOKENS", 4096),
		Temperature:     getFloatEnv("TEMPERATURE", 0.7),

		// Chat pipeline
		HistoryWindow:      getIntEnv("HISTORY_WINDOW", 10),
		MaxAttachmentBytes: getInt64Env("MAX_ATTACHMENT_BYTES", 3932160), // 3.75 MiB

		// Uploads
		UploadURLTTL:   getDurationEnv("UPLOAD_URL_TTL", time.Hour),
		UploadMaxBytes: getInt64Env("UPLOAD_MAX_BYTES", 5*1024*1024),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
