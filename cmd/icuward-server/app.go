package main

import (
	"context"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/icuward/internal/config"
	"github.com/ehr/icuward/internal/domain/monitoring"
	"github.com/ehr/icuward/internal/domain/risk"
	"github.com/ehr/icuward/internal/domain/ward"
	"github.com/ehr/icuward/internal/platform/auth"
	"github.com/ehr/icuward/internal/platform/db"
	"github.com/ehr/icuward/internal/platform/events"
	"github.com/ehr/icuward/internal/platform/middleware"
	"github.com/ehr/icuward/internal/platform/sandbox"
	"github.com/ehr/icuward/internal/platform/websocket"
)

// app holds the wired services for one process.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	classifier *risk.Classifier
	ward       *ward.Service
	monitor    *monitoring.Service
	vitals     monitoring.VitalsRepository
	alerts     monitoring.AlertRepository
	simulator  *monitoring.Simulator
	hub        *websocket.Hub
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var (
		beds     ward.BedRepository
		patients ward.PatientRepository
	)
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		logger.Info().Msg("connected to database")
		beds, patients = ward.NewBedRepoPG(pool), ward.NewPatientRepoPG(pool)
		a.vitals, a.alerts = monitoring.NewVitalsRepoPG(pool), monitoring.NewAlertRepoPG(pool)
	default:
		store := ward.NewMemoryStore()
		beds, patients = store.Beds(), store.Patients()
		mem := monitoring.NewMemoryStore()
		a.vitals, a.alerts = mem.Vitals(), mem.Alerts()
	}

	riskCfg := risk.DefaultConfig()
	var predictor risk.Predictor
	if cfg.PredictorURL != "" {
		riskCfg.Timeout = cfg.PredictorTimeout
		predictor = risk.NewHTTPPredictor(cfg.PredictorURL, cfg.PredictorTimeout)
		logger.Info().Str("url", cfg.PredictorURL).Msg("risk predictor configured")
	} else {
		logger.Info().Msg("no risk predictor configured, using rule-based scoring")
	}
	a.classifier = risk.NewClassifier(riskCfg, predictor)

	a.hub = websocket.NewHub(logger)
	publishers := []events.Publisher{a.hub}
	if cfg.RedisURL != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		publishers = append(publishers, events.NewRedisStreamPublisher(client, cfg.EventStream, cfg.EventStreamMaxLen))
		logger.Info().Str("stream", cfg.EventStream).Msg("publishing events to redis")
	}
	bus := events.NewMulti(logger, publishers...)

	a.ward = ward.NewService(beds, patients, ward.NewScorer(ward.DefaultScoringConfig()))
	a.ward.SetPublisher(bus)
	a.ward.SetThresholds(riskCfg.Thresholds)

	a.monitor = monitoring.NewService(a.vitals, a.alerts, a.ward, a.classifier)
	a.monitor.SetPublisher(bus)
	a.monitor.SetThresholds(riskCfg.Thresholds)

	a.simulator = monitoring.NewSimulator(a.monitor, a.ward, cfg.SimulatorInterval, logger)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

func (a *app) Seeder() *sandbox.Seeder {
	return sandbox.NewSeeder(a.ward, a.vitals, a.alerts, a.classifier, a.simulator)
}

func jwtConfig(cfg *config.Config) (auth.JWTConfig, error) {
	key, err := cfg.SigningKey()
	if err != nil {
		return auth.JWTConfig{}, err
	}
	return auth.JWTConfig{Issuer: cfg.AuthIssuer, Audience: cfg.AuthAudience, SigningKey: key}, nil
}

// Router builds the HTTP surface with the global middleware chain.
func (a *app) Router() *echo.Echo {
	cfg := a.cfg
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader, echo.HeaderContentDisposition},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))

	// Validate has already rejected a malformed key.
	jwtCfg, _ := jwtConfig(cfg)
	authMW := auth.JWTMiddleware(jwtCfg)
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	}

	e.GET("/health", db.HealthHandler(a.pool))
	websocket.NewHandler(a.hub, cfg.CORSOrigins).RegisterRoutes(e, authMW)

	apiV1 := e.Group("/api/v1", authMW)
	ward.NewHandler(a.ward).RegisterRoutes(apiV1)
	monitoring.NewHandler(a.monitor).RegisterRoutes(apiV1)
	if cfg.IsDev() {
		sandbox.NewHandler(a.Seeder()).RegisterRoutes(apiV1)
	}

	return e
}
