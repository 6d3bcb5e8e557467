package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"snacktrack-backend/config"
	"snacktrack-backend/internal/api"
	"snacktrack-backend/internal/audit"
	"snacktrack-backend/internal/db"
	"snacktrack-backend/internal/log"
	"snacktrack-backend/internal/notification"
	"snacktrack-backend/internal/service"
	"snacktrack-backend/internal/store"
)

// Version is set via ldflags during build.
var Version = "dev"

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "snacktrackd",
	Short:         "SnackTrack vending fleet backend",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultPath := os.Getenv("CONFIG_PATH")
	if defaultPath == "" {
		defaultPath = "./config/config.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "path to the YAML config file (env CONFIG_PATH)")

	auditCmd.Flags().Bool("apply", false, "overwrite drifted allocated capacities")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(auditCmd)
}

// setup loads the configuration, initialises logging and opens the store.
func setup(ctx context.Context) (*config.Config, store.Store, error) {
	// An explicitly named config file must exist.
	required := os.Getenv("CONFIG_PATH") != "" || rootCmd.PersistentFlags().Changed("config")
	cfg, err := config.Load(configPath, required)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration from %s: %w", configPath, err)
	}
	log.Init(log.Config{Level: cfg.Log.Level, JSONOutput: cfg.Log.JSON})

	s, err := db.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s store: %w", cfg.Database.Driver, err)
	}
	return cfg, s, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, alert workers and auditor",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		cfg, s, err := setup(ctx)
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		logger := log.WithComponent("main")
		logger.Info().Str("config", configPath).Str("driver", cfg.Database.Driver).Msg("store ready")

		var (
			webpushOptions *webpush.Options
			alerts         notification.Dispatcher = notification.NopDispatcher{}
		)
		if cfg.Push.Enabled() {
			webpushOptions = &webpush.Options{
				VAPIDPublicKey:  cfg.Push.PublicKey,
				VAPIDPrivateKey: cfg.Push.PrivateKey,
				Subscriber:      cfg.Push.Subject,
				TTL:             cfg.Push.TTL,
			}
			pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, s, webpushOptions)
			pool.Start(ctx)
			alerts = pool
		} else {
			logger.Warn().Msg("VAPID keys not configured, push alerts disabled")
		}

		go audit.NewService(cfg.Audit, s).Run(ctx)

		router := api.NewRouter(s, webpushOptions, alerts, api.RouterOptions{
			RateLimitPerSec: cfg.Server.RateLimitPerSec,
			RateLimitBurst:  cfg.Server.RateLimitBurst,
			CacheTTL:        cfg.Server.CacheTTL(),
			Thresholds: service.Thresholds{
				Fullness: cfg.Alerts.FullnessThreshold,
				LowStock: cfg.Alerts.LowStockThreshold,
			},
			Logger: log.WithComponent("http"),
		})
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("HTTP server: %w", err)
		case <-ctx.Done():
		}
		logger.Info().Msg("shutdown signal received, stopping services")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}

		logger.Info().Msg("server gracefully stopped")
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema migrations or indexes and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, s, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		logger := log.WithComponent("main")
		logger.Info().Str("driver", cfg.Database.Driver).Msg("migrations applied")
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Compare allocated capacities with slot assignments and print a report",
	RunE: func(cmd *cobra.Command, args []string) error {
		apply, _ := cmd.Flags().GetBool("apply")

		cfg, s, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close(context.Background())

		report, err := audit.NewService(cfg.Audit, s).AuditOnce(cmd.Context(), apply)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}
