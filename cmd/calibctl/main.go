// Command calibctl inspects calibration health and drives recalibration
// against the trade evaluator database.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tradeeval/internal/calibration"
	"tradeeval/internal/config"
	"tradeeval/internal/db"
	"tradeeval/internal/drift"
	"tradeeval/internal/logger"
	"tradeeval/internal/modelstate"
	gormrepository "tradeeval/internal/repository/gorm"
	"tradeeval/internal/service"
)

type app struct {
	cfg      config.Config
	log      *zap.Logger
	conn     *db.DB
	registry *modelstate.Registry
	calib    *service.CalibrationService
	recal    *service.RecalibrationService
}

func open(ctx context.Context, cfgPath string) (*app, error) {
	envOnly := false
	if raw := os.Getenv("TE_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}
	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Log.Development = false
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(conn); err != nil {
		_ = db.Close(conn)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	store := gormrepository.New(conn.Gorm)
	registry := modelstate.NewRegistry(service.WeightsFromConfig(cfg.Acceptance))
	if err := service.SeedWeights(ctx, store, registry, cfg.Acceptance, log); err != nil {
		_ = db.Close(conn)
		return nil, fmt.Errorf("load weights: %w", err)
	}
	settings := &service.SystemSettingsService{Repo: store}
	if err := settings.EnsureDefaultSwitches(ctx); err != nil {
		log.Warn("init default feature switches failed", zap.Error(err))
	}

	monitor := calibration.Monitor{Buckets: cfg.Calibration.Buckets, MinSamples: cfg.Calibration.MinSamples}
	return &app{
		cfg:      cfg,
		log:      log,
		conn:     conn,
		registry: registry,
		calib: &service.CalibrationService{
			Repo:     store,
			Registry: registry,
			Monitor:  monitor,
			Detector: drift.Detector{Config: cfg.Drift, Monitor: monitor},
			Logger:   log,
		},
		recal: &service.RecalibrationService{
			Repo:     store,
			Registry: registry,
			Config:   cfg.Recalibration,
			Settings: settings,
			Logger:   log,
		},
	}, nil
}

func (a *app) close() {
	_ = a.log.Sync()
	_ = db.Close(a.conn)
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath string
		q       queryFlags
		a       *app
	)
	root := &cobra.Command{
		Use:           "calibctl",
		Short:         "Calibration reports and intercept recalibration",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			a, err = open(cmd.Context(), cfgPath)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a != nil {
				a.close()
			}
		},
	}
	defaultCfg := os.Getenv("TE_CONFIG")
	if defaultCfg == "" {
		defaultCfg = "config/config.yaml"
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", defaultCfg, "config file path")
	q.bind(root)

	appRef := func() *app { return a }
	root.AddCommand(
		reportCmd(appRef, &q),
		segmentsCmd(appRef, &q),
		driftCmd(appRef, &q),
		alertsCmd(appRef, &q),
		interceptsCmd(appRef),
		recalibrateCmd(appRef),
		rollbackCmd(appRef),
	)
	return root
}
