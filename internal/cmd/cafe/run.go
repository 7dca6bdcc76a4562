package cafe

import (
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/louisbranch/cafe/internal/platform/cmd"
	"github.com/louisbranch/cafe/internal/platform/i18n/catalog"
	"github.com/louisbranch/cafe/internal/platform/logging"
	"github.com/louisbranch/cafe/internal/platform/timeouts"
	"github.com/louisbranch/cafe/internal/services/cafe/app"
)

// Run executes the scenario command.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	mode, err := logging.ParseMode(cfg.LogMode)
	if err != nil {
		return err
	}
	logger, err := logging.New(mode, cmd.ServiceCafe)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return cmd.RunWithTelemetryAndOptions(ctx, cmd.ServiceCafe, cmd.RunOptions{Logger: logger}, func(ctx context.Context) error {
		return run(ctx, cfg, out, logger)
	})
}

func run(ctx context.Context, cfg Config, out io.Writer, logger *zap.Logger) error {
	if out == nil {
		out = io.Discard
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = timeouts.ScenarioRun
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	backend, err := app.ParseBackend(cfg.Backend)
	if err != nil {
		return err
	}
	unit, err := currency.ParseISO(strings.TrimSpace(cfg.Currency))
	if err != nil {
		return fmt.Errorf("parse currency %q: %w", cfg.Currency, err)
	}
	bundle, err := catalog.LoadEmbedded()
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	sc, err := LoadScenario(cfg.Scenario)
	if err != nil {
		return err
	}

	d, err := app.New(ctx, app.Options{
		Backend:          backend,
		Logger:           logger,
		DeliveryAttempts: cfg.DeliveryAttempts,
	})
	if err != nil {
		return fmt.Errorf("build domain: %w", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("close domain", zap.Error(err))
		}
	}()

	logger.Info("running scenario",
		zap.String("scenario", sc.Name),
		zap.String("backend", string(backend)),
		zap.Int("tables", len(sc.Tables)),
	)
	results, err := RunScenario(ctx, d, sc, logger)
	if err != nil {
		return fmt.Errorf("run scenario %q: %w", sc.Name, err)
	}
	return WriteReport(out, bundle.Printer(cfg.Locale), unit, sc, results, len(d.Bus.DeadLetters()))
}
