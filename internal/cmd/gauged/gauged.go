// Package gauged parses gauged command flags and starts the gauge lifecycle
// daemon.
package gauged

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/kellyenterprises/gaugehub/internal/gauge/service"
	"github.com/kellyenterprises/gaugehub/internal/gauge/storage/sqlite"
	entrypoint "github.com/kellyenterprises/gaugehub/internal/platform/cmd"
)

// Config holds gauged command configuration.
type Config struct {
	DBPath string `env:"GAUGEHUB_DB_PATH" envDefault:"gaugehub.db"`
	// OverdueScanInterval controls how often the daemon sweeps for gauges
	// whose calibration clock has expired.
	OverdueScanInterval time.Duration `env:"GAUGEHUB_OVERDUE_SCAN_INTERVAL" envDefault:"1h"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the sqlite database file")
	fs.DurationVar(&cfg.OverdueScanInterval, "overdue-scan-interval", cfg.OverdueScanInterval, "Interval between overdue calibration sweeps")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the gauge lifecycle daemon.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceGauged, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()

		svc := service.New(store)
		log.Printf("gauged ready, db=%s", cfg.DBPath)

		interval := cfg.OverdueScanInterval
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				scanOverdue(ctx, svc)
			}
		}
	})
}

// scanOverdue logs gauges sitting on the shelf with an expired calibration
// clock. Page through everything; the fleet is small.
func scanOverdue(ctx context.Context, svc *service.Service) {
	var token string
	var overdue int
	for {
		views, next, err := svc.ListGauges(ctx, `overdue = true AND status = "available"`, 100, token)
		if err != nil {
			log.Printf("overdue scan: %v", err)
			return
		}
		for _, view := range views {
			log.Printf("overdue: gauge %s (tag %s) was due %s", view.ID, view.Tag, view.CalibrationDueAt.Format(time.DateOnly))
			overdue++
		}
		if next == "" {
			break
		}
		token = next
	}
	if overdue > 0 {
		log.Printf("overdue scan found %d gauges awaiting calibration", overdue)
	}
}
