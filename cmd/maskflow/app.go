package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"maskflow/internal/config"
	"maskflow/internal/db"
	"maskflow/internal/logger"
	"maskflow/internal/metrics"
	"maskflow/internal/metrics/datadog"
	"maskflow/internal/metrics/prompush"
	"maskflow/internal/secrets"
	"maskflow/internal/services"
	"maskflow/internal/store"
	"maskflow/internal/workflow"
)

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	store    store.Store
	registry *db.Registry
	conns    *services.ConnectionService
	wfs      *services.WorkflowService
	executor *workflow.Executor
	user     string

	closers []func() error
}

// bindFlags maps persistent flags onto config keys.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	pairs := map[string]string{
		"store.driver":            "store-driver",
		"store.dsn":               "store-dsn",
		"store.bundle":            "bundle",
		"secrets.key":             "secrets-key",
		"engine.page_size":        "page-size",
		"engine.max_concurrent":   "max-concurrent",
		"engine.audit_dir":        "audit-dir",
		"engine.admins":           "admins",
		"logging.level":           "log-level",
		"logging.format":          "log-format",
		"metrics.backend":         "metrics-backend",
		"metrics.pushgateway_url": "pushgateway-url",
		"metrics.datadog_addr":    "datadog-addr",
	}
	for key, flag := range pairs {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("bind --%s: %w", flag, err)
		}
	}
	return nil
}

func newApp(ctx context.Context, cmd *cobra.Command, configFile, user string) (*app, error) {
	v := viper.New()
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, err
	}
	key := cfg.Secrets.Key
	if key == "" {
		if cfg.Store.Driver == "postgres" {
			return nil, fmt.Errorf("secrets.key is required with the postgres store")
		}
		// Memory-store passwords only live for this process.
		if key, err = secrets.GenerateKey(); err != nil {
			return nil, err
		}
	}
	box, err := secrets.NewBox(key)
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.Logging)
	log.SetOutput(cmd.ErrOrStderr())
	a := &app{cfg: cfg, log: log, registry: db.DefaultRegistry(), user: user}

	a.setupMetrics()

	switch cfg.Store.Driver {
	case "postgres":
		gs, err := store.OpenGorm(ctx, cfg.Store.DSN)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store = gs
	default:
		a.store = store.NewMemoryStore()
	}
	a.closers = append(a.closers, a.store.Close)

	a.conns = services.NewConnectionService(log, a.store, box, a.registry, cfg.Engine.ProbeTimeout)
	a.wfs = services.NewWorkflowService(log, a.store, a.store)
	a.executor = workflow.NewExecutor(a.store, box, a.registry, workflow.Options{
		PageSize:        cfg.Engine.PageSize,
		ProgressTimeout: cfg.Engine.ProgressTimeout,
		OpenTimeout:     cfg.Engine.OpenTimeout,
		MaskCacheSize:   cfg.Engine.MaskCacheSize,
		AuditDir:        cfg.Engine.AuditDir,
		Admins:          cfg.Engine.Admins,
		Log:             log,
	})

	if cfg.Store.Bundle != "" {
		b, err := store.LoadBundle(cfg.Store.Bundle)
		if err != nil {
			a.close()
			return nil, err
		}
		res, err := services.Import(ctx, a.conns, a.wfs, user, b)
		if err != nil {
			a.close()
			return nil, err
		}
		log.WithField("connections", res.Connections).WithField("workflows", res.Workflows).
			Infof("loaded bundle %s", cfg.Store.Bundle)
	}
	return a, nil
}

func (a *app) setupMetrics() {
	m := a.cfg.Metrics
	switch m.Backend {
	case "prompush":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			a.log.WithError(err).Warn("metrics: failed to init prom push backend; using nop")
			return
		}
		a.log.Debugf("metrics: url=%v, backend=%v, job_name=%v", m.PushgatewayURL, m.Backend, m.Job)
		metrics.SetBackend(b)
		a.closers = append(a.closers, metrics.Flush)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{Addr: m.DatadogAddr, Namespace: m.Namespace})
		if err != nil {
			a.log.WithError(err).Warn("metrics: failed to init datadog backend; using nop")
			return
		}
		metrics.SetBackend(b)
		a.closers = append(a.closers, metrics.Flush, b.Close)
	}
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.WithError(err).Warn("shutdown")
		}
	}
	a.closers = nil
}
