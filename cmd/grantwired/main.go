package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/grantwire/grantwire/internal/app"
	"github.com/grantwire/grantwire/internal/config"
	"github.com/grantwire/grantwire/internal/http"
	"github.com/grantwire/grantwire/internal/observability/logger"
	"github.com/grantwire/grantwire/internal/storage/pg"
)

func main() {
	var (
		flagConfig  = "config.yaml"
		flagEnvFile = ".env"
	)

	root := &cobra.Command{
		Use:   "grantwired",
		Short: "OAuth2 / OIDC authorization server engine",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env es opcional; las env vars pisan el YAML.
			_ = godotenv.Load(flagEnvFile)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", flagConfig, "ruta al config.yaml")
	root.PersistentFlags().StringVar(&flagEnvFile, "env-file", flagEnvFile, "ruta al archivo .env")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Arranca el servidor HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones de PostgreSQL y termina",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flagConfig)
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrate requires storage.driver=postgres (got %q)", cfg.Storage.Driver)
			}
			s, err := pg.New(cmd.Context(), cfg.Storage.Postgres.DSN, pg.Config{})
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}

	root.AddCommand(serveCmd, migrateCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: "grantwired",
	})
	defer logger.Sync()

	container, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer container.Close()

	logger.L().Info("engine ready",
		logger.String("issuer", cfg.Issuer.URL),
		logger.String("storage", cfg.Storage.Driver),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return http.Serve(ctx, http.ServerConfig{
			Addr:            cfg.Server.Addr,
			ReadTimeout:     config.Duration(cfg.Server.ReadTimeout),
			WriteTimeout:    config.Duration(cfg.Server.WriteTimeout),
			ShutdownTimeout: config.Duration(cfg.Server.ShutdownTimeout),
		}, container.Handler)
	})
	return g.Wait()
}
