// Package statevault parses configuration and runs the state server.
package statevault

import (
	"context"
	"flag"
	"time"

	"github.com/statevault/statevault/internal/platform/config"
	"github.com/statevault/statevault/internal/platform/otel"
	"github.com/statevault/statevault/internal/services/state/app"
)

// Config holds statevault command configuration.
type Config struct {
	DBPath         string        `env:"STATEVAULT_DB_PATH" envDefault:"data/state.db"`
	HTTPAddr       string        `env:"STATEVAULT_HTTP_ADDR" envDefault:"localhost:8086"`
	PurgeThreshold int           `env:"STATEVAULT_PURGE_THRESHOLD" envDefault:"1000"`
	PurgeCooldown  time.Duration `env:"STATEVAULT_PURGE_COOLDOWN" envDefault:"2s"`
	SweepTimeout   time.Duration `env:"STATEVAULT_SWEEP_TIMEOUT" envDefault:"30s"`
}

// ParseConfig loads environment configuration and applies flag overrides.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Path to the SQLite state database")
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "The admin HTTP server address")
	fs.IntVar(&cfg.PurgeThreshold, "purge-threshold", cfg.PurgeThreshold, "Writes between purge sweeps")
	fs.DurationVar(&cfg.PurgeCooldown, "purge-cooldown", cfg.PurgeCooldown, "Cooldown after each purge sweep")
	fs.DurationVar(&cfg.SweepTimeout, "sweep-timeout", cfg.SweepTimeout, "Deadline for a single purge sweep")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the state server.
func Run(ctx context.Context, cfg Config) error {
	shutdown, err := otel.Setup(ctx, "statevault")
	if err != nil {
		return err
	}
	defer func() {
		_ = shutdown(context.Background())
	}()

	return app.Run(ctx, app.Config{
		DBPath:         cfg.DBPath,
		HTTPAddr:       cfg.HTTPAddr,
		PurgeThreshold: cfg.PurgeThreshold,
		PurgeCooldown:  cfg.PurgeCooldown,
		SweepTimeout:   cfg.SweepTimeout,
	})
}
