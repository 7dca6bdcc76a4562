// Package cafe implements the scenario runner command: it plays YAML scripts
// of café commands against a fresh domain and prints a localized report.
package cafe

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/currency"

	"github.com/louisbranch/cafe/internal/platform/cmd"
	"github.com/louisbranch/cafe/internal/platform/logging"
	"github.com/louisbranch/cafe/internal/services/cafe/app"
)

// Config holds scenario runner configuration. Keys are read with the CAFE_
// prefix, so Backend comes from CAFE_BACKEND.
type Config struct {
	Backend          string        `env:"BACKEND"           envDefault:"memory"`
	Scenario         string        `env:"SCENARIO"`
	LogMode          string        `env:"LOG_MODE"          envDefault:"dev"`
	Locale           string        `env:"LOCALE"            envDefault:"en"`
	Currency         string        `env:"CURRENCY"          envDefault:"USD"`
	DeliveryAttempts int           `env:"DELIVERY_ATTEMPTS" envDefault:"3"`
	Timeout          time.Duration `env:"TIMEOUT"`
}

// ParseConfig parses env defaults and then flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := cmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, "event store backend (memory or sqlite)")
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "path to a scenario yaml file (empty runs the demo)")
	fs.StringVar(&cfg.LogMode, "log-mode", cfg.LogMode, "log mode (dev or prod)")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "report locale")
	fs.StringVar(&cfg.Currency, "currency", cfg.Currency, "ISO 4217 code used to print amounts")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "timeout for the whole scenario (0 uses the default)")
	fs.IntVar(&cfg.DeliveryAttempts, "delivery-attempts", cfg.DeliveryAttempts, "projection delivery attempts per event")
	if err := cmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := app.ParseBackend(c.Backend); err != nil {
		return err
	}
	if _, err := logging.ParseMode(c.LogMode); err != nil {
		return err
	}
	if _, err := currency.ParseISO(strings.TrimSpace(c.Currency)); err != nil {
		return fmt.Errorf("parse currency %q: %w", c.Currency, err)
	}
	if c.DeliveryAttempts <= 0 {
		return fmt.Errorf("delivery attempts must be positive, got %d", c.DeliveryAttempts)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}
