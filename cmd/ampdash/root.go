package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jgoulah/ampdash/internal/config"
	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/database"
	"github.com/jgoulah/ampdash/internal/influx"
	"github.com/jgoulah/ampdash/internal/logging"
	"github.com/jgoulah/ampdash/internal/server"
	"github.com/jgoulah/ampdash/pkg/models"
)

var (
	cfgFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:   "ampdash",
	Short: "Monitor household power and price it with a tiered tariff",
	Long: `AmpDash reads power samples from InfluxDB or a local SQLite cache, integrates
them into energy, prices the result with a progressive rate schedule and shows it
in the currency of your choice. Live mode follows a sensor feed over MQTT or Kafka.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "database file (default is ./data.db)")
}

// getConfigPath returns the config file path
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

// getDBPath returns the database file path (local directory)
func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return "data.db"
}

// loadConfig loads the configuration file
func loadConfig() (*config.Config, error) {
	return config.Load(getConfigPath())
}

// saveConfig saves the configuration file
func saveConfig(cfg *config.Config) error {
	return config.Save(getConfigPath(), cfg)
}

// openDB opens the database connection
func openDB() (*database.DB, error) {
	path := getDBPath()

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return database.New(path)
}

// openInflux creates an InfluxDB client from the config
func openInflux(cfg *config.Config) (*influx.Client, error) {
	return influx.New(cfg.Influx, cfg.GetMeasurement())
}

// readingSource is a reading store that also answers time-range queries.
// Both the InfluxDB client and the SQLite cache implement it.
type readingSource interface {
	server.Source
	ReadingsBetween(ctx context.Context, start, stop time.Time) ([]models.Reading, error)
}

var (
	_ readingSource = (*influx.Client)(nil)
	_ readingSource = (*database.DB)(nil)
)

// openSource returns the reading store selected by the config's source field
func openSource(cfg *config.Config) (readingSource, func() error, error) {
	switch cfg.GetSource() {
	case config.SourceInflux:
		c, err := openInflux(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("opening InfluxDB: %w", err)
		}
		return c, c.Close, nil
	case config.SourceSQLite:
		db, err := openDB()
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		return db, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown source: %s (available: influx, sqlite)", cfg.Source)
	}
}

// newLogger builds the process logger, honouring the config's log section
func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Log)
}

// newRateCache builds the exchange-rate cache from the config
func newRateCache(cfg *config.Config, log zerolog.Logger) *currency.Cache {
	fetcher := currency.NewHTTPFetcher(cfg.GetRatesURL())
	return currency.NewCache(fetcher, cfg.GetFallbackRates(), cfg.GetRefreshInterval(), log)
}

// parseDate parses a date string in either YYYY-MM-DD format or relative format (e.g., "7d")
func parseDate(dateStr string) (time.Time, error) {
	// Try absolute date format first
	t, err := time.Parse("2006-01-02", dateStr)
	if err == nil {
		return t, nil
	}

	// Try relative format (e.g., "7d" for 7 days ago)
	if len(dateStr) > 1 && dateStr[len(dateStr)-1] == 'd' {
		daysStr := dateStr[:len(dateStr)-1]
		var days int
		if _, err := fmt.Sscanf(daysStr, "%d", &days); err == nil {
			now := time.Now().UTC()
			return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days), nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD or Nd for N days ago)", dateStr)
}

// parseOptionalDay parses --date, returning nil when it is empty
func parseOptionalDay(dateStr string) (*time.Time, error) {
	if dateStr == "" {
		return nil, nil
	}
	day, err := parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

// parseRange parses --since/--until into [since, until). An empty since
// starts at the unix epoch and an empty until ends now.
func parseRange(sinceStr, untilStr string) (time.Time, time.Time, error) {
	since := time.Unix(0, 0).UTC()
	if sinceStr != "" {
		t, err := parseDate(sinceStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing --since date: %w", err)
		}
		since = t
	}
	until := time.Now().UTC()
	if untilStr != "" {
		t, err := parseDate(untilStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing --until date: %w", err)
		}
		until = t
	}
	if !until.After(since) {
		return time.Time{}, time.Time{}, fmt.Errorf("--until must be after --since")
	}
	return since, until, nil
}
