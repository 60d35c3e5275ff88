package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "AWS_REGION", "BEDROCK_AWS_REGION", "STORE_BACKEND", "HISTORY_WINDOW", "MAX_ATTACHMENT_BYTES", "DEFAULT_MODEL", "TEMPERATURE", "NATS_URL", "AUTH_JWT_SECRET"} {
		t.Setenv(k, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, "us-east-1", cfg.BedrockRegion)
	assert.Equal(t, StoreDynamo, cfg.StoreBackend)
	assert.Equal(t, KnowledgeBaseBedrock, cfg.KBBackend)
	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, int64(3932160), cfg.MaxAttachmentBytes)
	assert.Equal(t, "nova-lite", cfg.DefaultModel)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.Empty(t, cfg.NATSURL)
	assert.Empty(t, cfg.JWTSecret)
	assert.Equal(t, time.Hour, cfg.UploadURLTTL)
	assert.Equal(t, []string{"https://*", "http://*"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("AWS_REGION", "ap-northeast-1")
	t.Setenv("BEDROCK_AWS_REGION", "us-west-2")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("HISTORY_WINDOW", "4")
	t.Setenv("TEMPERATURE", "0.2")
	t.Setenv("PERSIST_TIMEOUT", "3s")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()

	assert.Equal(t, "ap-northeast-1", cfg.AWSRegion)
	assert.Equal(t, "us-west-2", cfg.BedrockRegion)
	assert.Equal(t, "ap-northeast-1", cfg.KBRegion)
	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, 4, cfg.HistoryWindow)
	assert.InDelta(t, 0.2, cfg.Temperature, 1e-9)
	assert.Equal(t, 3*time.Second, cfg.PersistTimeout)
	assert.True(t, cfg.TracingEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("HISTORY_WINDOW", "ten")
	t.Setenv("MAX_ATTACHMENT_BYTES", "big")
	t.Setenv("TEMPERATURE", "warm")
	t.Setenv("TRACING_ENABLED", "maybe")
	t.Setenv("RATE_LIMIT_WINDOW", "soon")

	cfg := Load()

	assert.Equal(t, 10, cfg.HistoryWindow)
	assert.Equal(t, int64(3932160), cfg.MaxAttachmentBytes)
	assert.InDelta(t, 0.7, cfg.Temperature, 1e-9)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
}
