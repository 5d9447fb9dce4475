package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseVars() map[string]string {
	return map[string]string{
		"JWT_SECRET":   "secret",
		"DATABASE_URL": "postgres://localhost/kb",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFrom(baseVars())
	require.NoError(t, err)

	assert.Equal(t, 4001, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.ProviderTimeout)
	assert.Equal(t, 15*time.Minute, cfg.PollInterval)
	assert.Equal(t, 24*time.Hour, cfg.PollStaleAfter)
	assert.Equal(t, 50, cfg.PollBatchSize)
	assert.Equal(t, "127.0.0.1:9091", cfg.MetricsAddr)
	assert.False(t, cfg.AccessCheckDisabled)
	assert.False(t, cfg.StripeEnabled())
}

func TestLoadFrom_RequiredKeys(t *testing.T) {
	t.Parallel()

	_, err := LoadFrom(map[string]string{"DATABASE_URL": "postgres://localhost/kb"})
	assert.Error(t, err)

	_, err = LoadFrom(map[string]string{"JWT_SECRET": "secret"})
	assert.Error(t, err)
}

func TestLoadFrom_StripeRequiresWebhookSecretAndPrice(t *testing.T) {
	t.Parallel()

	vars := baseVars()
	vars["STRIPE_SECRET_KEY"] = "sk_test_123"

	_, err := LoadFrom(vars)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_WEBHOOK_SECRET")
	assert.Contains(t, err.Error(), "STRIPE_PRICE_ID")

	vars["STRIPE_WEBHOOK_SECRET"] = "whsec_123"
	vars["STRIPE_PRICE_ID"] = "price_123"
	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	assert.True(t, cfg.StripeEnabled())
}

func TestLoadFrom_ParsesListsAndURLs(t *testing.T) {
	t.Parallel()

	vars := baseVars()
	vars["CORS_ORIGINS"] = "https://a.example, https://b.example"
	vars["PUBLIC_URL"] = "https://kb.example/"
	vars["PROVIDER_TIMEOUT"] = "2s"

	cfg, err := LoadFrom(vars)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, "https://kb.example", cfg.PublicURL)
	assert.Equal(t, 2*time.Second, cfg.ProviderTimeout)
}
