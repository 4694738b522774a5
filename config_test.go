package eduAuth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigNeedsOnlyKeys(t *testing.T) {
	cfg := DefaultConfig()
	require.Error(t, cfg.Validate())

	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte(testSecret)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown environment", mutate: func(c *Config) { c.Environment = "staging" }, wantErr: true},
		{name: "zero access ttl", mutate: func(c *Config) { c.JWT.AccessTTL = 0 }, wantErr: true},
		{name: "refresh shorter than access", mutate: func(c *Config) { c.JWT.RefreshTTL = time.Minute }, wantErr: true},
		{name: "short hs256 key", mutate: func(c *Config) { c.JWT.PrivateKey = []byte("short") }, wantErr: true},
		{name: "ed25519 without keys", mutate: func(c *Config) { c.JWT.SigningMethod = "ed25519" }, wantErr: true},
		{name: "unknown signing method", mutate: func(c *Config) { c.JWT.SigningMethod = "rs256" }, wantErr: true},
		{name: "leeway too large", mutate: func(c *Config) { c.JWT.Leeway = 5 * time.Minute }, wantErr: true},
		{name: "empty refresh prefix", mutate: func(c *Config) { c.Refresh.RedisPrefix = " " }, wantErr: true},
		{name: "negative retention", mutate: func(c *Config) { c.Refresh.Retention = -time.Second }, wantErr: true},
		{name: "state ttl over an hour", mutate: func(c *Config) { c.OAuth.StateTTL = 2 * time.Hour }, wantErr: true},
		{name: "zero state ttl", mutate: func(c *Config) { c.OAuth.StateTTL = 0 }, wantErr: true},
		{name: "empty default role", mutate: func(c *Config) { c.OAuth.DefaultRole = "" }, wantErr: true},
		{name: "redirect host with path", mutate: func(c *Config) { c.OAuth.AllowedRedirectHosts = []string{"app.example/cb"} }, wantErr: true},
		{name: "redirect hosts", mutate: func(c *Config) { c.OAuth.AllowedRedirectHosts = []string{"app.example", "localhost:3000"} }},
		{name: "zero primary timeout", mutate: func(c *Config) { c.StateStore.PrimaryTimeout = 0 }, wantErr: true},
		{name: "zero fallback capacity", mutate: func(c *Config) { c.StateStore.FallbackCapacity = 0 }, wantErr: true},
		{name: "zero sweep interval", mutate: func(c *Config) { c.StateStore.SweepInterval = 0 }, wantErr: true},
		{name: "allow unverified in test", mutate: func(c *Config) { c.Login.AllowUnverified = true }},
		{
			name: "allow unverified in production",
			mutate: func(c *Config) {
				c.Environment = EnvProduction
				c.Login.AllowUnverified = true
			},
			wantErr: true,
		},
		{name: "weak argon2 memory", mutate: func(c *Config) { c.Password.Memory = 1024 }, wantErr: true},
		{name: "short salt", mutate: func(c *Config) { c.Password.SaltLength = 8 }, wantErr: true},
		{
			name: "audit enabled without buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantErr: true,
		},
		{
			name: "histograms without metrics",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestWithConfigCopiesKeyMaterial(t *testing.T) {
	cfg := testConfig()
	cfg.OAuth.AllowedRedirectHosts = []string{"app.example"}

	b := New().WithConfig(cfg)
	cfg.JWT.PrivateKey[0] = 'X'
	cfg.OAuth.AllowedRedirectHosts[0] = "evil.example"

	assert.Equal(t, byte(testSecret[0]), b.config.JWT.PrivateKey[0])
	assert.Equal(t, "app.example", b.config.OAuth.AllowedRedirectHosts[0])
}
