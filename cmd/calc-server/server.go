package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medcalc/medcalc/data"
	"github.com/medcalc/medcalc/internal/config"
	"github.com/medcalc/medcalc/internal/domain/calculator"
	"github.com/medcalc/medcalc/internal/domain/conversion"
	"github.com/medcalc/medcalc/internal/platform/apperr"
	"github.com/medcalc/medcalc/internal/platform/auth"
	"github.com/medcalc/medcalc/internal/platform/db"
	"github.com/medcalc/medcalc/internal/platform/middleware"
	"github.com/medcalc/medcalc/internal/platform/openapi"
	"github.com/medcalc/medcalc/internal/platform/telemetry"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds the wired components of a running server.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	conv    *conversion.Engine
	store   *calculator.Store
	svc     *calculator.Service
	metrics *telemetry.Metrics
	pool    *pgxpool.Pool
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func catalogFS(cfg *config.Config) fs.FS {
	if cfg.UsesEmbeddedCatalog() {
		return data.Catalog()
	}
	return os.DirFS(cfg.CatalogDir)
}

func calculatorsFS(cfg *config.Config) fs.FS {
	if cfg.UsesEmbeddedCalculators() {
		return data.Calculators()
	}
	return os.DirFS(cfg.CalculatorsDir)
}

// loadConversion loads the unit and analyte catalog and logs its warnings.
func loadConversion(cfg *config.Config, logger zerolog.Logger) (*conversion.Engine, error) {
	cat, err := conversion.LoadCatalog(catalogFS(cfg))
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	for _, w := range cat.Warnings() {
		logger.Warn().Str("component", "catalog").Msg(w)
	}
	return conversion.NewEngine(cat), nil
}

// newApp builds every component the server needs. A database pool is only
// opened when DATABASE_URL is set; otherwise calculations are audited in
// memory.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	conv, err := loadConversion(cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := calculator.NewStore(calculatorsFS(cfg), logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, conv: conv, store: store, metrics: telemetry.New()}

	var audit calculator.AuditRepository
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		audit = calculator.NewAuditRepoPG(pool)
		logger.Info().Msg("connected to database")
	} else {
		audit = calculator.NewMemoryAuditRepo(cfg.AuditMemorySize)
		logger.Info().Int("size", cfg.AuditMemorySize).Msg("DATABASE_URL not set, keeping calculation history in memory")
	}

	engine := calculator.NewEngine(calculator.Options{ResolveDependencies: cfg.ResolveDependencies})
	a.svc = calculator.NewService(store, engine, audit, logger)
	a.svc.SetRecorder(a.metrics)
	a.metrics.SetCalculatorsLoaded(store.Len())
	return a, nil
}

func (a *app) close() {
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) jwtConfig() (auth.JWTConfig, error) {
	key, err := resolveSigningKey(a.cfg.AuthSigningKey)
	if err != nil {
		return auth.JWTConfig{}, err
	}
	return auth.JWTConfig{
		Issuer:     a.cfg.AuthIssuer,
		Audience:   a.cfg.AuthAudience,
		SigningKey: key,
	}, nil
}

// routes assembles the echo instance with global middleware and all
// handlers.
func (a *app) routes() (*echo.Echo, error) {
	jwtCfg, err := a.jwtConfig()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(e)

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders("/api/docs"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(a.metrics.Middleware())
	e.Use(echomw.BodyLimit(a.cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout, "/metrics", "/health"))

	// Admin authentication
	var adminAuth echo.MiddlewareFunc
	if a.cfg.IsDev() {
		adminAuth = auth.DevAuthMiddleware(jwtCfg)
	} else {
		adminAuth = auth.JWTMiddleware(jwtCfg)
	}

	apiV1 := e.Group("/api/v1")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	convHandler := conversion.NewHandler(a.conv, a.metrics)
	convHandler.RegisterRoutes(apiV1)
	calcHandler := calculator.NewHandler(a.svc)
	calcHandler.RegisterRoutes(apiV1, adminAuth)

	// API document
	openapi.NewGenerator("medcalc API", version, "", calcHandler, convHandler).RegisterRoutes(e.Group("/api"))

	e.GET("/health", a.health)
	e.GET("/metrics", a.metrics.Handler())
	if a.pool != nil {
		e.GET("/health/db", db.PoolHealthHandler(a.pool))
	}
	return e, nil
}

func (a *app) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"calculators": a.store.Len(),
		"dimensions":  len(a.conv.Dimensions()),
		"loadedAt":    a.store.LoadedAt().UTC().Format(time.RFC3339),
	})
}
