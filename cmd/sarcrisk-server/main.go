package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sarcrisk/sarcrisk/internal/config"
	"github.com/sarcrisk/sarcrisk/internal/domain/assessment"
	"github.com/sarcrisk/sarcrisk/internal/domain/risk"
	"github.com/sarcrisk/sarcrisk/internal/platform/athena"
	"github.com/sarcrisk/sarcrisk/internal/platform/auth"
	"github.com/sarcrisk/sarcrisk/internal/platform/db"
	"github.com/sarcrisk/sarcrisk/internal/platform/fhir"
	"github.com/sarcrisk/sarcrisk/internal/platform/middleware"
	"github.com/sarcrisk/sarcrisk/internal/platform/telemetry"
	"github.com/sarcrisk/sarcrisk/internal/platform/validate"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "sarcrisk-server",
		Short:        "Sarcoma risk scoring API backed by athenahealth",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(assessCmd())
	rootCmd.AddCommand(migrateCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func assessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess <patient.json>...",
		Short: "Score patient files and print their FHIR resources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policyName, _ := cmd.Flags().GetString("policy")
			subtypes, _ := cmd.Flags().GetStringSlice("subtypes")
			positiveOnly, _ := cmd.Flags().GetBool("positive-findings-only")
			legacyBasis, _ := cmd.Flags().GetBool("legacy-basis")

			policy, err := risk.PolicyByName(policyName)
			if err != nil {
				return err
			}
			svc := assessment.NewService(
				risk.DefaultScorer(),
				assessment.NewMapper(assessment.Options{PositiveFindingsOnly: positiveOnly, LegacyBasis: legacyBasis}),
				nil,
				zerolog.New(cmd.ErrOrStderr()).With().Timestamp().Logger(),
				assessment.WithDefaultPolicy(policy),
				assessment.WithDefaultSubtypes(subtypes),
			)
			return runAssess(cmd.Context(), cmd.OutOrStdout(), svc, args)
		},
	}
	cmd.Flags().String("policy", risk.BatchPolicy.Name, "Score policy (batch or orchestration)")
	cmd.Flags().StringSlice("subtypes", []string{"Soft Tissue Sarcoma", "Osteosarcoma"}, "Suspected sarcoma subtypes")
	cmd.Flags().Bool("positive-findings-only", false, "List only positive imaging findings")
	cmd.Flags().Bool("legacy-basis", false, "Emit the fixed five basis references")
	return cmd
}

// runAssess prints, per file, the Patient, the RiskAssessment and every
// Observation as one JSON document per line.
func runAssess(ctx context.Context, w io.Writer, svc *assessment.Service, paths []string) error {
	enc := json.NewEncoder(w)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		var p risk.PatientRecord
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}

		out, err := svc.Assess(ctx, assessment.Input{Patient: p})
		if err != nil {
			return fmt.Errorf("assess %s: %w", path, err)
		}

		docs := []interface{}{out.Records.Patient.ToFHIR(), out.Records.RiskAssessment.ToFHIR()}
		for _, o := range out.Records.Observations {
			docs = append(docs, o.ToFHIR())
		}
		for _, d := range docs {
			if err := enc.Encode(d); err != nil {
				return err
			}
		}
	}
	return nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the assessment archive schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator, schema string) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) to schema %s.\n", count, schema)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	})

	return cmd
}

func withMigrator(ctx context.Context, fn func(context.Context, *db.Migrator, string) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.ArchiveEnabled() {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, db.Migrations(), cfg.DBSchema), cfg.DBSchema)
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func poolConfig(cfg *config.Config) db.PoolConfig {
	return db.PoolConfig{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
		Schema:   cfg.DBSchema,
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	var pool *pgxpool.Pool
	if cfg.ArchiveEnabled() {
		pool, err = db.NewPool(ctx, poolConfig(cfg))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Str("schema", cfg.DBSchema).Msg("connected to database, assessment archive enabled")
	}

	e, err := buildServer(cfg, logger, pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
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

// buildServer wires every component. A nil pool disables the archive and
// its routes.
func buildServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) (*echo.Echo, error) {
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	stateKey, err := oauthStateKey(cfg, logger)
	if err != nil {
		return nil, err
	}

	metrics := telemetry.NewMetrics()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = fhir.ErrorHandler(logger)
	e.Validator = validate.New()

	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(metrics.Middleware())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	limited := []echo.MiddlewareFunc{
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
			IdleTTL:           10 * time.Minute,
		}),
		middleware.RequestTimeout(cfg.RequestTimeout),
	}
	authGroup := e.Group("/auth", limited...)
	apiV1 := e.Group("/api/v1", limited...)
	fhirGroup := e.Group("/fhir", limited...)

	// Athena
	athenaClient := athena.NewClient(athena.Config{
		BaseURL:    cfg.AthenaBaseURL,
		Timeout:    cfg.AthenaTimeout,
		RateLimit:  cfg.AthenaRateLimit,
		RateBurst:  cfg.AthenaRateBurst,
		MaxRetries: cfg.AthenaMaxRetries,
	}, logger, athena.WithObserver(metrics))
	oauthClient := athena.NewOAuthClient(athena.OAuthConfig{
		ClientID:     cfg.AthenaClientID,
		ClientSecret: cfg.AthenaClientSecret,
		RedirectURL:  cfg.AthenaRedirectURI,
		AuthorizeURL: cfg.AthenaAuthorizeURL,
		TokenURL:     cfg.AthenaTokenURL,
		HTTPClient:   &http.Client{Timeout: cfg.AthenaTimeout},
	})
	athena.NewOAuthHandler(oauthClient, auth.NewStateSigner(stateKey, 10*time.Minute), logger).RegisterRoutes(authGroup)

	// Assessment
	opts := []assessment.ServiceOption{
		assessment.WithDefaultPolicy(policy),
		assessment.WithDefaultSubtypes(cfg.DefaultSubtypes),
		assessment.WithRecorder(metrics),
	}
	if pool != nil {
		opts = append(opts, assessment.WithArchive(assessment.NewArchiveRepoPG(pool)))
	}
	svc := assessment.NewService(
		risk.DefaultScorer(),
		assessment.NewMapper(assessment.Options{
			PositiveFindingsOnly: cfg.ImagingPositiveOnly,
			LegacyBasis:          cfg.LegacyBasis,
		}),
		athenaClient,
		logger,
		opts...,
	)
	assessment.NewHandler(svc, logger).RegisterRoutes(apiV1, fhirGroup)

	logger.Info().
		Str("policy", policy.Name).
		Strs("default_subtypes", cfg.DefaultSubtypes).
		Bool("archive", svc.ArchiveEnabled()).
		Msg("assessment service configured")

	return e, nil
}

// oauthStateKey returns the configured signing key. Development falls back
// to a random per-process key.
func oauthStateKey(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	if key := strings.TrimSpace(cfg.OAuthStateKey); key != "" {
		return []byte(key), nil
	}
	if !cfg.IsDev() {
		return nil, fmt.Errorf("OAUTH_STATE_KEY is required outside development")
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate oauth state key: %w", err)
	}
	logger.Warn().Msg("OAUTH_STATE_KEY not set, using a random key; issued states will not survive a restart")
	return key, nil
}
