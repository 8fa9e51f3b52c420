package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	configViper := NewViper()
	configViper.Set("operator.signing_secret", "secret")

	cfg, err := Load(configViper)
	require.NoError(t, err)

	assert.Equal(t, defaultHTTPAddress, cfg.HTTPAddress)
	assert.Equal(t, defaultDatabasePath, cfg.DatabasePath)
	assert.Equal(t, defaultLogLevel, cfg.LogLevel)
	assert.Equal(t, defaultProgramID, cfg.ProgramID.String())
	assert.Equal(t, defaultOperatorIssuer, cfg.OperatorIssuer)
	assert.Equal(t, defaultOperatorAudience, cfg.OperatorAudience)
	assert.Equal(t, time.Hour, cfg.OperatorTokenTTL)
	assert.Equal(t, defaultRealtimeBuffer, cfg.RealtimeBufferSize)
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("TIPJAR_OPERATOR_SIGNING_SECRET", "from-env")
	t.Setenv("TIPJAR_DATABASE_PATH", "/tmp/tips.db")
	t.Setenv("TIPJAR_OPERATOR_TOKEN_TTL_MINUTES", "5")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.OperatorSigningSecret)
	assert.Equal(t, "/tmp/tips.db", cfg.DatabasePath)
	assert.Equal(t, 5*time.Minute, cfg.OperatorTokenTTL)
}

func TestLoadRejectsInvalidConfiguration(t *testing.T) {
	testCases := []struct {
		name      string
		overrides map[string]any
	}{
		{name: "missing-secret", overrides: map[string]any{"operator.signing_secret": " "}},
		{name: "missing-database", overrides: map[string]any{"database.path": ""}},
		{name: "malformed-program", overrides: map[string]any{"program.id": "not-a-key"}},
		{name: "zero-program", overrides: map[string]any{"program.id": "11111111111111111111111111111111"}},
		{name: "missing-audience", overrides: map[string]any{"operator.audience": ""}},
		{name: "zero-ttl", overrides: map[string]any{"operator.token_ttl_minutes": 0}},
		{name: "zero-buffer", overrides: map[string]any{"realtime.buffer_size": 0}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			configViper := NewViper()
			configViper.Set("operator.signing_secret", "secret")
			for key, value := range testCase.overrides {
				configViper.Set(key, value)
			}
			_, err := Load(configViper)
			assert.Error(t, err)
		})
	}
}
