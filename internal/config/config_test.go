package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv() {
	os.Unsetenv("PORT")
	os.Unsetenv("PUBLIC_BASE_URL")
	os.Unsetenv("FAL_API_KEY")
	os.Unsetenv("FAL_MODEL")
	os.Unsetenv("FAL_BASE_URL")
	os.Unsetenv("WEBHOOK_SECRET")
	os.Unsetenv("DATA_DIR")
	os.Unsetenv("S3_BUCKET")
	os.Unsetenv("S3_REGION")
	os.Unsetenv("AWS_ACCESS_KEY_ID")
	os.Unsetenv("AWS_SECRET_ACCESS_KEY")
	os.Unsetenv("API_TOKENS")
	os.Unsetenv("LOG_FORMAT")
	os.Unsetenv("LOG_LEVEL")
}

func TestLoad_RequiredVariables(t *testing.T) {
	t.Run("missing FAL_API_KEY returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("PUBLIC_BASE_URL", "https://api.example.com")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFalAPIKeyRequired)
	})

	t.Run("missing PUBLIC_BASE_URL returns error", func(t *testing.T) {
		clearEnv()
		t.Setenv("FAL_API_KEY", "test-api-key")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrPublicBaseURLRequired)
	})

	t.Run("all required variables present succeeds", func(t *testing.T) {
		clearEnv()
		t.Setenv("FAL_API_KEY", "test-api-key")
		t.Setenv("PUBLIC_BASE_URL", "https://api.example.com")

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "test-api-key", cfg.FalAPIKey)
		assert.Equal(t, "https://api.example.com", cfg.PublicBaseURL)
	})
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv()
	t.Setenv("FAL_API_KEY", "test-api-key")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "fal-ai/hunyuan-video/video-to-video", cfg.FalModel)
	assert.Equal(t, "https://queue.fal.run", cfg.FalBaseURL)
	assert.Equal(t, "/var/lib/restyle", cfg.DataDir)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.WebhookSecret)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_APITokens(t *testing.T) {
	clearEnv()
	t.Setenv("FAL_API_KEY", "test-api-key")
	t.Setenv("PUBLIC_BASE_URL", "https://api.example.com")
	t.Setenv("API_TOKENS", "tok-abc:user-1,tok-def:user-2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "user-1", cfg.APITokens["tok-abc"])
	assert.Equal(t, "user-2", cfg.APITokens["tok-def"])
}

func TestConfig_S3Enabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.S3Enabled())

	cfg.S3Bucket = "my-bucket"
	assert.False(t, cfg.S3Enabled())

	cfg.S3Region = "eu-west-1"
	assert.True(t, cfg.S3Enabled())
}

func TestConfig_WebhookURL(t *testing.T) {
	cfg := &Config{PublicBaseURL: "https://api.example.com"}
	assert.Equal(t, "https://api.example.com/jobs/webhook", cfg.WebhookURL())

	cfg.PublicBaseURL = "https://api.example.com/"
	assert.Equal(t, "https://api.example.com/jobs/webhook", cfg.WebhookURL())
}

func TestConfig_Validate(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.Validate(), ErrFalAPIKeyRequired)

	cfg.FalAPIKey = "key"
	assert.ErrorIs(t, cfg.Validate(), ErrPublicBaseURLRequired)

	cfg.PublicBaseURL = "https://api.example.com"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := &Config{
		Port:          8080,
		PublicBaseURL: "https://api.example.com",
		FalAPIKey:     "super-secret-key",
		WebhookSecret: "webhook-secret",
	}

	s := cfg.String()
	assert.NotContains(t, s, "super-secret-key")
	assert.NotContains(t, s, "webhook-secret")
	assert.Contains(t, s, "https://api.example.com")
}

func TestNewLogger(t *testing.T) {
	cfg := &Config{LogFormat: "json", LogLevel: "debug"}
	assert.NotNil(t, cfg.NewLogger())

	cfg = &Config{LogFormat: "text", LogLevel: "bogus"}
	assert.NotNil(t, cfg.NewLogger())
}
