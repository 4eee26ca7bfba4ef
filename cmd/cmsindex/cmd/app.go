package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Aman-CERP/cmsindex/internal/config"
	"github.com/Aman-CERP/cmsindex/internal/contenttree"
	"github.com/Aman-CERP/cmsindex/internal/diagnostics"
	"github.com/Aman-CERP/cmsindex/internal/events"
	"github.com/Aman-CERP/cmsindex/internal/logging"
	"github.com/Aman-CERP/cmsindex/internal/metrics"
	"github.com/Aman-CERP/cmsindex/internal/query"
	"github.com/Aman-CERP/cmsindex/internal/registry"
	"github.com/Aman-CERP/cmsindex/internal/storage"
)

// app is the wired indexing subsystem for one command invocation.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	gatherer   prometheus.Gatherer
	metrics    *metrics.Metrics
	tree       *contenttree.Store
	reg        *registry.Registry
	builder    *query.Builder
	searcher   *query.Searcher
	dispatcher *events.Dispatcher
	monitor    *diagnostics.Monitor

	stopMonitor context.CancelFunc
	logCleanup  func()
}

// loadConfig loads the configuration and applies the global flags.
func loadConfig(opts *globalOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.dir)
	if err != nil {
		return nil, err
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}
	if opts.forceUnlock {
		cfg.Storage.ForceUnlock = true
	}
	return cfg, nil
}

// setupLogging returns the command logger and its cleanup.
func setupLogging(cfg *config.Config) (*slog.Logger, func()) {
	log, cleanup, err := logging.Setup(cfg.LoggingConfig())
	if err != nil {
		// Unwritable log file: fall back to stderr rather than failing the command.
		lc := cfg.LoggingConfig()
		lc.FilePath = ""
		log, cleanup, _ = logging.Setup(lc)
	}
	return log, cleanup
}

// openApp wires config, logging, metrics, the content tree and the registry.
func openApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	a.log, a.logCleanup = setupLogging(cfg)

	preg := prometheus.NewRegistry()
	a.gatherer = preg
	a.metrics = metrics.New(preg)

	a.tree, err = contenttree.Open(cfg.ContentTreePath())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open content tree: %w", err)
	}

	descs, err := cfg.Descriptors()
	if err != nil {
		a.Close()
		return nil, err
	}
	targets, err := cfg.SearchTargets()
	if err != nil {
		a.Close()
		return nil, err
	}

	a.reg, err = registry.Open(ctx, registry.Config{
		Descriptors:   descs,
		SearchTargets: targets,
		Storage:       storage.Options{ForceUnlock: cfg.Storage.ForceUnlock, Logger: a.log},
		QueueSize:     cfg.Writer.QueueSize,
		Logger:        a.log,
		Metrics:       a.metrics,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	bc := cfg.BuilderConfig()
	bc.Logger = a.log
	a.builder = query.NewBuilder(bc, a.tree)
	a.searcher = query.NewSearcher(a.reg, a.builder, a.metrics, a.log)
	a.dispatcher = events.NewDispatcher(a.reg, a.tree, a.builder, a.log)

	return a, nil
}

// watch starts the on-disk monitor for every open index until Close.
func (a *app) watch(ctx context.Context) error {
	if a.cfg.Storage.Memory {
		return nil
	}
	m, err := diagnostics.NewMonitor(a.log)
	if err != nil {
		return err
	}
	for _, idx := range a.reg.All() {
		if !idx.Available() {
			continue
		}
		if err := m.Watch(idx.Handle); err != nil {
			_ = m.Close()
			return err
		}
	}
	mctx, cancel := context.WithCancel(ctx)
	a.monitor, a.stopMonitor = m, cancel
	go func() { _ = m.Run(mctx) }()
	return nil
}

// Close releases everything openApp acquired. Safe on a partially opened app.
func (a *app) Close() error {
	var errs []error
	if a.stopMonitor != nil {
		a.stopMonitor()
		errs = append(errs, a.monitor.Close())
	}
	if a.reg != nil {
		errs = append(errs, a.reg.Close())
	}
	if a.tree != nil {
		errs = append(errs, a.tree.Close())
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
	return errors.Join(errs...)
}
