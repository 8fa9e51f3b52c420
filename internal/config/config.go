package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"
)

const (
	envPrefix                = "TIPJAR"
	defaultHTTPAddress       = "0.0.0.0:8080"
	defaultDatabasePath      = "tipjar.db"
	defaultLogLevel          = "info"
	defaultProgramID         = "7sLJJYECWzm1iUE2zEPkD7XtdcUp9qHx3HQPoiUGaicY"
	defaultOperatorIssuer    = "tipjar-operator"
	defaultOperatorAudience  = "tipjar-api"
	defaultOperatorTTLMinute = 60
	defaultRealtimeBuffer    = 16
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress           string
	DatabasePath          string
	LogLevel              string
	ProgramID             solana.PublicKey
	OperatorSigningSecret string
	OperatorIssuer        string
	OperatorAudience      string
	OperatorTokenTTL      time.Duration
	RealtimeBufferSize    int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("program.id", defaultProgramID)
	configViper.SetDefault("operator.issuer", defaultOperatorIssuer)
	configViper.SetDefault("operator.audience", defaultOperatorAudience)
	configViper.SetDefault("operator.token_ttl_minutes", defaultOperatorTTLMinute)
	configViper.SetDefault("realtime.buffer_size", defaultRealtimeBuffer)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	programID, err := solana.PublicKeyFromBase58(strings.TrimSpace(configViper.GetString("program.id")))
	if err != nil {
		return AppConfig{}, fmt.Errorf("program.id is not a valid base58 public key: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:           configViper.GetString("http.address"),
		DatabasePath:          configViper.GetString("database.path"),
		LogLevel:              configViper.GetString("log.level"),
		ProgramID:             programID,
		OperatorSigningSecret: configViper.GetString("operator.signing_secret"),
		OperatorIssuer:        configViper.GetString("operator.issuer"),
		OperatorAudience:      configViper.GetString("operator.audience"),
		OperatorTokenTTL:      time.Duration(configViper.GetInt("operator.token_ttl_minutes")) * time.Minute,
		RealtimeBufferSize:    configViper.GetInt("realtime.buffer_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.OperatorSigningSecret) == "" {
		return fmt.Errorf("operator.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.ProgramID.IsZero() {
		return fmt.Errorf("program.id must not be the zero key")
	}
	if strings.TrimSpace(c.OperatorIssuer) == "" {
		return fmt.Errorf("operator.issuer is required")
	}
	if strings.TrimSpace(c.OperatorAudience) == "" {
		return fmt.Errorf("operator.audience is required")
	}
	if c.OperatorTokenTTL <= 0 {
		return fmt.Errorf("operator.token_ttl_minutes must be positive")
	}
	if c.RealtimeBufferSize <= 0 {
		return fmt.Errorf("realtime.buffer_size must be positive")
	}
	return nil
}
