package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medcalc/medcalc/internal/config"
	"github.com/medcalc/medcalc/internal/domain/calculator"
	"github.com/medcalc/medcalc/internal/domain/conversion"
	"github.com/medcalc/medcalc/internal/platform/apperr"
	"github.com/medcalc/medcalc/internal/platform/auth"
	"github.com/medcalc/medcalc/internal/platform/db"
	"github.com/medcalc/medcalc/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "calc-server",
		Short:        "Clinical calculation and unit conversion service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(computeCmd())
	rootCmd.AddCommand(convertCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and lint the unit catalog and calculator documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runCheck(cmd.OutOrStdout(), cfg)
		},
	}
}

func computeCmd() *cobra.Command {
	var (
		mode      string
		inputJSON string
		sets      []string
	)
	cmd := &cobra.Command{
		Use:   "compute <calculator-id>",
		Short: "Run one calculation against the loaded calculators",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			inputs, err := parseInputs(inputJSON, sets)
			if err != nil {
				return err
			}
			store, err := calculator.NewStore(calculatorsFS(cfg), zerolog.Nop())
			if err != nil {
				return err
			}
			engine := calculator.NewEngine(calculator.Options{ResolveDependencies: cfg.ResolveDependencies})
			svc := calculator.NewService(store, engine, nil, zerolog.Nop())

			calc, err := svc.Compute(cmd.Context(), args[0], inputs, mode)
			if err != nil {
				for _, d := range apperr.DetailsOf(err) {
					fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", d)
				}
				return err
			}
			return writeJSON(cmd.OutOrStdout(), calc)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "Calculation mode")
	cmd.Flags().StringVar(&inputJSON, "inputs", "", "Inputs as a JSON object")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Input as name=value (repeatable)")
	return cmd
}

func convertCmd() *cobra.Command {
	var req conversion.ConvertRequest
	var kind string
	cmd := &cobra.Command{
		Use:   "convert <value> [<from-unit> <to-unit>]",
		Short: "Convert a value between units",
		Long: `Convert a value between units. The unit pair may be omitted for analyte
and electrolyte conversions when --direction is given.`,
		Args: cobra.MatchAll(cobra.RangeArgs(1, 3), func(cmd *cobra.Command, args []string) error {
			if len(args) == 2 {
				return fmt.Errorf("expected both <from-unit> and <to-unit>")
			}
			return nil
		}),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			value, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid value %q: %w", args[0], err)
			}
			req.Value = &value
			if len(args) == 3 {
				req.FromUnit, req.ToUnit = args[1], args[2]
			}
			req.ConversionType = conversion.ConversionType(kind)

			engine, err := loadConversion(cfg, zerolog.Nop())
			if err != nil {
				return err
			}
			res, err := engine.Convert(req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&req.Dimension, "dimension", "", "Dimension for dimensional conversions")
	cmd.Flags().StringVar(&req.Analyte, "analyte", "", "Analyte for analyte and electrolyte conversions")
	cmd.Flags().StringVar(&kind, "type", "", "Conversion type: dimensional, analyte or electrolyte (default auto)")
	cmd.Flags().StringVar(&req.Direction, "direction", "", "Analyte or electrolyte direction: conventional_to_si, si_to_conventional, meq_to_mmol or mmol_to_meq")
	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations for the calculation log",
	}

	// migrate up
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	// migrate status
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			migrator, closeFn, err := openMigrator(ctx)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			writeMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
}

func openMigrator(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func writeMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		roles   []string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token for the admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			key, err := resolveSigningKey(cfg.AuthSigningKey)
			if err != nil {
				return err
			}
			if len(key) == 0 {
				return fmt.Errorf("AUTH_SIGNING_KEY is not set")
			}
			token, err := auth.IssueToken(auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				Audience:   cfg.AuthAudience,
				SigningKey: key,
			}, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "admin", "Token subject")
	cmd.Flags().StringSliceVar(&roles, "role", []string{"admin"}, "Roles to grant (repeatable)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	return cmd
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// Logger
	logger := newLogger(cfg.Env)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise")
	}
	defer a.close()
	logger.Info().
		Int("calculators", a.store.Len()).
		Int("dimensions", len(a.conv.Dimensions())).
		Bool("embedded_calculators", cfg.UsesEmbeddedCalculators()).
		Msg("catalogs loaded")

	e, err := a.routes()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build routes")
	}

	// Calculator hot reload
	if cfg.WatchSchemas {
		w, err := calculator.NewWatcher(cfg.CalculatorsDir, a.svc, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to watch calculators directory")
		}
		go w.Run(ctx)
		logger.Info().Str("dir", cfg.CalculatorsDir).Msg("watching calculator documents")
	}

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
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// runCheck loads both catalogs the way serve does and reports what it found.
// Load failures are returned; lint findings are printed only.
func runCheck(w io.Writer, cfg *config.Config) error {
	engine, err := loadConversion(cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	cat := engine.Catalog()
	for _, warning := range cat.Warnings() {
		fmt.Fprintf(w, "catalog: %s\n", warning)
	}
	fmt.Fprintf(w, "catalog: %d dimensions, %d analytes\n", len(engine.Dimensions()), len(engine.Analytes(conversion.AnalyteFilter{})))

	store, err := calculator.NewStore(calculatorsFS(cfg), zerolog.Nop())
	if err != nil {
		return err
	}
	findings := 0
	for _, s := range store.List() {
		for _, warning := range calculator.Lint(s) {
			fmt.Fprintf(w, "%s: %s\n", s.ID, warning)
			findings++
		}
	}
	fmt.Fprintf(w, "calculators: %d loaded, %d lint finding(s)\n", store.Len(), findings)
	return nil
}

// parseInputs merges a JSON object with name=value assignments. Assignment
// values are read as numbers or booleans when they parse as one.
func parseInputs(raw string, sets []string) (map[string]any, error) {
	inputs := map[string]any{}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			return nil, fmt.Errorf("invalid --inputs JSON: %w", err)
		}
	}
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --set %q, expected name=value", s)
		}
		inputs[name] = scalar(strings.TrimSpace(value))
	}
	return inputs, nil
}

func scalar(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// resolveSigningKey returns the HS256 secret from AUTH_SIGNING_KEY. A value
// prefixed with "hex:" is hex-decoded; anything else is used as raw bytes.
func resolveSigningKey(value string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	if encoded, ok := strings.CutPrefix(value, "hex:"); ok {
		decoded, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid AUTH_SIGNING_KEY hex value: %w", err)
		}
		return decoded, nil
	}
	return []byte(value), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
