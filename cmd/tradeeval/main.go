package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"tradeeval/internal/acceptance"
	"tradeeval/internal/audit"
	"tradeeval/internal/cache"
	"tradeeval/internal/calibration"
	"tradeeval/internal/config"
	cronrunner "tradeeval/internal/cron"
	"tradeeval/internal/db"
	"tradeeval/internal/drift"
	"tradeeval/internal/fairness"
	"tradeeval/internal/handler"
	"tradeeval/internal/labeler"
	"tradeeval/internal/logger"
	"tradeeval/internal/metrics"
	"tradeeval/internal/modelstate"
	"tradeeval/internal/narrative"
	"tradeeval/internal/negotiation"
	"tradeeval/internal/notify"
	gormrepository "tradeeval/internal/repository/gorm"
	"tradeeval/internal/risk"
	"tradeeval/internal/service"
	"tradeeval/internal/valuation"

	_ "tradeeval/docs"
)

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("TE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("TE_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := gormrepository.New(dbConn.Gorm)
	reg := metrics.New()

	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(ctx); err != nil {
		logger.Warn("init default feature switches failed", zap.Error(err))
	}

	registry := modelstate.NewRegistry(service.WeightsFromConfig(cfg.Acceptance))
	if err := service.SeedWeights(ctx, store, registry, cfg.Acceptance, logger); err != nil {
		logger.Fatal("load calibrated weights failed", zap.Error(err))
	}
	if snap := registry.Load(); snap != nil {
		reg.SetActiveB0(snap.Weights.B0)
		logger.Info("acceptance model ready",
			zap.Int("weights_version", snap.Weights.Version),
			zap.Float64("b0", snap.Weights.B0),
			zap.Int("segments", len(snap.Segments)),
		)
	}

	auditClient := audit.New(cfg.Audit)
	baseCtx := ctx
	if auditClient != nil {
		baseCtx = audit.WithClient(ctx, auditClient)
	}

	market := valuation.MarketSource(&valuation.RepoSource{Repo: store})
	quoteCache, err := cache.New(cfg.Cache)
	if err != nil {
		logger.Warn("market quote cache disabled", zap.Error(err))
	} else if quoteCache != nil {
		market = valuation.WithCache(market, quoteCache, cfg.Cache.TTL)
	}
	picks, err := valuation.LoadPickCurve(cfg.Valuation.PickCurvePath)
	if err != nil {
		logger.Warn("pick curve unavailable, picks price as unknown", zap.Error(err))
		picks = valuation.NewPickCurve(nil, cfg.Valuation.PickYearDiscount)
	}
	if picks.YearDiscount == 0 {
		picks.YearDiscount = cfg.Valuation.PickYearDiscount
	}

	fairnessEngine := &fairness.Engine{Config: fairness.ConfigFrom(cfg.Fairness)}
	evalSvc := &service.EvaluationService{
		Repo: store,
		Valuator: &valuation.Valuator{
			Market:         market,
			Picks:          picks,
			Weights:        valuation.CompositeFromConfig(cfg.Valuation.Composite),
			TierEdges:      cfg.Valuation.TierEdges,
			LookupTimeout:  cfg.Valuation.LookupTimeout,
			MaxConcurrency: cfg.Valuation.MaxConcurrency,
			Logger:         logger,
			Metrics:        reg,
		},
		Fairness:     fairnessEngine,
		Labeler:      labeler.New(cfg.Negotiation.FairBandLow, cfg.Negotiation.FairBandHigh),
		Veto:         &risk.VetoEvaluator{Config: cfg.Veto},
		Acceptance:   &acceptance.Model{Config: cfg.Acceptance, Registry: registry},
		Toolkit:      &negotiation.Builder{Config: cfg.Negotiation, Fairness: fairnessEngine},
		Settings:     settingsSvc,
		DefaultTeams: cfg.Valuation.DefaultTeams,
		MaxMessages:  cfg.Negotiation.MaxMessages,
		Logger:       logger,
		Metrics:      reg,
	}
	refiner, err := narrative.New(cfg.Narrative, logger)
	switch {
	case errors.Is(err, narrative.ErrNotConfigured):
		logger.Info("narrative refinement not configured; deterministic toolkit only")
	case err != nil:
		logger.Warn("narrative provider init failed", zap.Error(err))
	default:
		evalSvc.Refiner = refiner
	}

	var notifier notify.Notifier
	if tg, err := notify.New(cfg.Alerts); err != nil {
		logger.Warn("telegram alerts disabled", zap.Error(err))
	} else if tg != nil {
		notifier = tg
	}

	monitor := calibration.Monitor{Buckets: cfg.Calibration.Buckets, MinSamples: cfg.Calibration.MinSamples}
	calibrationSvc := &service.CalibrationService{
		Repo:     store,
		Registry: registry,
		Monitor:  monitor,
		Detector: drift.Detector{Config: cfg.Drift, Monitor: monitor},
		Logger:   logger,
		Metrics:  reg,
	}
	alertHub := service.NewAlertHub()
	recalSvc := &service.RecalibrationService{
		Repo:     store,
		Registry: registry,
		Config:   cfg.Recalibration,
		Settings: settingsSvc,
		Notifier: notifier,
		Alerts:   alertHub,
		Logger:   logger,
		Metrics:  reg,
	}
	scanner := &service.AlertScanner{
		Calibration:  calibrationSvc,
		Settings:     settingsSvc,
		Hub:          alertHub,
		Notifier:     notifier,
		LookbackDays: cfg.Recalibration.LookbackDays,
		Logger:       logger,
		Metrics:      reg,
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(handler.MetricsMiddleware(reg))
	engine.Use(audit.RequireBearer(cfg.Server.AuthDisabled))
	engine.Use(audit.Inject(auditClient))
	engine.Use(audit.WriteAudit(auditClient, logger))

	(&handler.HealthHandler{DB: dbConn.Gorm, Registry: registry}).Register(engine)
	handler.RegisterMetrics(engine, reg)
	handler.RegisterDocs(engine)
	(&handler.TradeHandler{
		Evaluation: evalSvc,
		Outcomes:   &service.OutcomeService{Repo: store, Logger: logger, Metrics: reg},
		Logger:     logger,
	}).Register(engine)
	(&handler.CalibrationHandler{Service: calibrationSvc, Hub: alertHub, Logger: logger}).Register(engine)
	(&handler.ModelHandler{Recalibration: recalSvc, Logger: logger}).Register(engine)
	(&handler.MarketHandler{Repo: store}).Register(engine)
	(&handler.SystemSettingsHandler{Settings: settingsSvc}).Register(engine)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	cronRunner := cronrunner.New(logger, baseCtx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add("recalibration", cfg.Cron.Recalibration, recalSvc.Run); err != nil {
			logger.Warn("cron register recalibration failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("drift_scan", cfg.Cron.DriftScan, scanner.Run); err != nil {
			logger.Warn("cron register drift scan failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
