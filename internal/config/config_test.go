package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "mongo", cfg.Database.Backend)
	assert.Equal(t, "chronos", cfg.Database.Database)
	assert.Equal(t, 3, cfg.Ledger.MaxRetries)
	assert.Equal(t, 10*time.Second, cfg.Ledger.OperationTimeout)
	assert.Equal(t, "@every 1h", cfg.Reconciliation.Schedule)
	assert.Equal(t, []string{"127.0.0.1", "::1"}, cfg.Server.TrustedProxies)
	assert.Equal(t, "localhost:6379", cfg.Redis.RedisAddr())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_BACKEND", "memory")
	t.Setenv("LEDGER_MAX_RETRIES", "5")
	t.Setenv("LEDGER_OPERATION_TIMEOUT", "2s")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("RATE_LIMIT_RPS", "7.5")

	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Backend)
	assert.Equal(t, 5, cfg.Ledger.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.Ledger.OperationTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 7.5, cfg.RateLimit.RequestsPerSecond)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "invalid port",
			env:     map[string]string{"SERVER_PORT": "70000"},
			wantErr: "invalid server port",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"DB_BACKEND": "firestore"},
			wantErr: "unsupported database backend",
		},
		{
			name:    "negative retries",
			env:     map[string]string{"LEDGER_MAX_RETRIES": "-1"},
			wantErr: "max retries",
		},
		{
			name:    "zero parallelism",
			env:     map[string]string{"RECONCILIATION_PARALLELISM": "0"},
			wantErr: "parallelism",
		},
		{
			name: "memory backend",
			env:  map[string]string{"DB_BACKEND": "memory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := fromViper(viper.New())
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
