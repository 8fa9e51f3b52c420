package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/config"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/database"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/ledger"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/logging"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/server"
	"github.com/MarcoPoloResearchLab/tipjar/backend/internal/tips"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "tipjar-api",
		Short: "Tip jar backend service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newDeriveCommand(), newOperatorTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("program-id", defaults.GetString("program.id"), "Program id tip addresses are derived under")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("operator.token_ttl_minutes"), "Operator token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Operator signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "program.id", "program-id")
	bindFlag(cmd, "operator.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "operator.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func newDeriveCommand() *cobra.Command {
	var (
		senderValue string
		seed        uint64
	)
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the tip address and nonce for a sender and seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			programID, err := solana.PublicKeyFromBase58(viper.GetString("program.id"))
			if err != nil {
				return fmt.Errorf("invalid program id: %w", err)
			}
			sender, err := solana.PublicKeyFromBase58(senderValue)
			if err != nil {
				return fmt.Errorf("invalid sender: %w", err)
			}
			address, nonce, err := tips.DeriveTipAddress(programID, sender, seed)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "address: %s\nnonce: %d\n", address, nonce)
			return err
		},
	}
	cmd.Flags().StringVar(&senderValue, "sender", "", "Sender public key (base58)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Caller-chosen tip seed")
	_ = cmd.MarkFlagRequired("sender")
	return cmd
}

func newOperatorTokenCommand() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "operator-token",
		Short: "Print a signed operator token for ledger funding",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			issuer, err := newTokenIssuer(appConfig)
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.IssueOperatorToken(cmd.Context(), subject)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\nexpires_in: %d\n", token, expiresIn)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "Operator name recorded in the token subject")
	return cmd
}

func newTokenIssuer(appConfig config.AppConfig) (*auth.TokenIssuer, error) {
	return auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.OperatorSigningSecret),
		Issuer:        appConfig.OperatorIssuer,
		Audience:      appConfig.OperatorAudience,
		TokenTTL:      appConfig.OperatorTokenTTL,
	})
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := ledger.NewStore(ledger.Config{
		Database:   db,
		Clock:      time.Now,
		IDProvider: ledger.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	registry := metrics.New()
	tipsService, err := tips.NewService(tips.ServiceConfig{
		Environment: store,
		ProgramID:   appConfig.ProgramID,
		Clock:       time.Now,
		Logger:      logger,
		Observer:    registry,
	})
	if err != nil {
		return err
	}

	tokenIssuer, err := newTokenIssuer(appConfig)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TipsService:     tipsService,
		Accounts:        store,
		PayerAuthorizer: auth.NewPayerAuthorizer(),
		OperatorTokens:  tokenIssuer,
		Realtime:        server.NewRealtimeDispatcher(appConfig.RealtimeBufferSize),
		Metrics:         registry,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Request contexts end with the signal so open tip streams close on shutdown.
	httpServer := &http.Server{
		Addr:        appConfig.HTTPAddress,
		Handler:     handler,
		BaseContext: func(net.Listener) context.Context { return signalCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("program_id", appConfig.ProgramID.String()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
