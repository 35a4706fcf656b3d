package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/matchbook/internal/config"
	"github.com/example/matchbook/internal/logging"
	"github.com/example/matchbook/internal/persona"
)

// runtime is the state shared by every subcommand once configuration has
// been loaded.
type runtime struct {
	cfg    config.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	var (
		envFiles []string
		dsn      string
	)
	rt := &runtime{}

	root := &cobra.Command{
		Use:           "matchbook",
		Short:         "Persona matching and venue reservations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envFiles...); err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if dsn != "" {
				cfg.SQLiteDSN = dsn
			}
			rt.cfg = cfg
			rt.logger = logging.New(cmd.ErrOrStderr(), cfg.LogLevel)
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, ".env files loaded before reading MATCHBOOK_* variables")
	root.PersistentFlags().StringVar(&dsn, "dsn", "", "SQLite database path (overrides MATCHBOOK_SQLITE_DSN)")

	root.AddCommand(newServeCommand(rt), newMigrateCommand(rt), newSeedCommand(rt))
	return root
}

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Migrate, seed the persona catalog and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := buildApp(ctx, rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			if _, err := app.personas.SeedCatalog(ctx, app.catalog); err != nil {
				return fmt.Errorf("seed persona catalog: %w", err)
			}

			server := &http.Server{
				Addr:              rt.cfg.Addr(),
				Handler:           app.handler,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			return serve(ctx, server, rt.logger)
		},
	}
}

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and print the schema status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			storage, applied, err := openStorage(ctx, rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer storage.Close()

			status, err := storage.MigrationStatus(ctx)
			if err != nil {
				return fmt.Errorf("read migration status: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "applied %d migration(s)\n", applied)
			fmt.Fprintf(out, "current version: %s\n", status.CurrentVersion)
			fmt.Fprintf(out, "pending: %d\n", len(status.Pending))
			return nil
		},
	}
}

func newSeedCommand(rt *runtime) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the persona catalog into storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			catalog, err := loadCatalog(catalogPath)
			if err != nil {
				return err
			}

			app, err := buildApp(ctx, rt.cfg, rt.logger)
			if err != nil {
				return err
			}
			defer app.Close()

			count, err := app.personas.SeedCatalog(ctx, catalog)
			if err != nil {
				return fmt.Errorf("seed persona catalog: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d persona(s)\n", count)
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "file", "", "persona catalog YAML (defaults to the built-in catalog)")
	return cmd
}

func loadCatalog(path string) ([]persona.Persona, error) {
	if path == "" {
		return persona.DefaultCatalog()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open persona catalog: %w", err)
	}
	defer f.Close()
	return persona.ParseCatalog(f)
}

func serve(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	shutdownErr := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		shutdownErr <- server.Shutdown(shutdownCtx)
	}()

	logger.Info("matchbook API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	if err := <-shutdownErr; err != nil {
		logger.Error("failed to shutdown server", "error", err)
		return err
	}
	logger.Info("matchbook API stopped")
	return nil
}
