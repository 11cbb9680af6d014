package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/namaste/internal/config"
	"github.com/ehr/namaste/internal/domain/terminology"
	"github.com/ehr/namaste/internal/ingest"
	"github.com/ehr/namaste/internal/platform/db"
	"github.com/ehr/namaste/internal/platform/fhir"
	"github.com/ehr/namaste/internal/platform/middleware"
	"github.com/ehr/namaste/internal/platform/telemetry"
	"github.com/ehr/namaste/migrations"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "terminology-server",
		Short: "NAMAST-E to ICD-11 terminology API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(ingestCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger writes JSON to out, or human-readable lines in development.
func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	logger := zerolog.New(out).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, NoColor: true}).With().Timestamp().Logger()
	}
	return logger
}

func poolConfig(cfg *config.Config) (*db.PoolConfig, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return &db.PoolConfig{
		URL:             cfg.DatabaseURL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "terminology-server",
	}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the terminology API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the Postgres term store",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			migrator, closeFn, err := newMigrator(cmd.Context(), schema, true)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Printf("Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")

			migrator, closeFn, err := newMigrator(cmd.Context(), schema, false)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("Migration status for schema: %s\n", schema)
			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

// newMigrator connects to DATABASE_URL. With verbose set each applied migration is logged.
func newMigrator(ctx context.Context, schema string, verbose bool) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger := zerolog.Nop()
	if verbose {
		logger = newLogger(cfg, os.Stdout)
	}
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	pool, err := db.NewPool(ctx, *pc)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS, schema, logger), pool.Close, nil
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Convert the NAMAST-E mapping CSV into the term file and/or the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			csvPath, _ := cmd.Flags().GetString("csv")
			outPath, _ := cmd.Flags().GetString("out")
			toDB, _ := cmd.Flags().GetBool("db")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg, os.Stdout)

			opts := ingest.Options{CSVPath: csvPath, OutPath: outPath}
			if toDB {
				pc, err := poolConfig(cfg)
				if err != nil {
					return err
				}
				pool, err := db.NewPool(cmd.Context(), *pc)
				if err != nil {
					return err
				}
				defer pool.Close()
				opts.Store = terminology.NewRepoPG(pool)
			}
			if opts.OutPath == "" && opts.Store == nil {
				return fmt.Errorf("nothing to do: set --out or --db")
			}

			rep, err := ingest.Run(cmd.Context(), opts, logger)
			if err != nil {
				return err
			}
			fmt.Printf("Read %d row(s): %d term(s), %d duplicate(s), %d skipped.\n",
				rep.Rows, rep.Terms, rep.Duplicates, rep.Skipped)
			return nil
		},
	}
	cmd.Flags().String("csv", "final_mapping.csv", "Path to the NAMAST-E/ICD-11 mapping CSV")
	cmd.Flags().String("out", "terminology_data.json", "Path of the JSON term file to write (empty to skip)")
	cmd.Flags().Bool("db", false, "Also load the terms into the Postgres store at DATABASE_URL")
	return cmd
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Term store
	ctx := context.Background()
	var repo terminology.Repository
	var pinger db.Pinger
	switch {
	case cfg.UsesPostgres():
		pc, err := poolConfig(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid database config")
		}
		pool, err := db.NewPool(ctx, *pc)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")
		repo = terminology.NewRepoPG(pool)
		pinger = pool
	default:
		repo, err = terminology.NewFileRepo(cfg.DataFile)
		if err != nil {
			logger.Fatal().Err(err).Str("file", cfg.DataFile).Msg("failed to load term file")
		}
	}
	svc := terminology.NewService(repo)

	var metrics *telemetry.Provider
	if cfg.MetricsEnabled {
		metrics = telemetry.NewProvider("terminology-server")
	}
	if n, err := svc.Count(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to count terms")
	} else {
		metrics.SetTermsLoaded(n)
		logger.Info().Int("terms", n).Str("store", cfg.Store).Msg("terms loaded")
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = fhir.JSONSerializer{}

	// Global middleware
	e.Use(middleware.RecoveryWithConfig(middleware.RecoveryConfig{
		Logger: logger,
		OnPanic: func(echo.Context, interface{}) {
			metrics.ObservePanic()
		},
	}))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{terminology.TotalCountHeader, middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	if metrics != nil {
		e.Use(metrics.MetricsMiddleware())
		e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if pinger != nil {
		e.GET("/health/db", db.HealthHandler(pinger))
	}

	terminology.NewHandler(svc, metrics).RegisterRoutes(e)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
