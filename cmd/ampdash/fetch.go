package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/ampdash/pkg/models"
)

var (
	fetchDate  string
	fetchSince string
	fetchUntil string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Copy readings from InfluxDB into the local database",
	Long: `Queries sensor readings from InfluxDB and stores them in the local SQLite
database, so the dashboard can run offline with source: sqlite.

Without flags every reading in the bucket is copied. Readings that are already
stored are skipped.`,
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDate, "date", "", "Fetch a single day (YYYY-MM-DD or relative like 1d)")
	fetchCmd.Flags().StringVar(&fetchSince, "since", "", "Fetch readings since this date (YYYY-MM-DD or relative like 7d)")
	fetchCmd.Flags().StringVar(&fetchUntil, "until", "", "Fetch readings before this date (YYYY-MM-DD, default: now)")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Fetch started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	if fetchDate != "" && (fetchSince != "" || fetchUntil != "") {
		return fmt.Errorf("--date cannot be combined with --since/--until")
	}

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := openInflux(cfg)
	if err != nil {
		return fmt.Errorf("opening InfluxDB: %w", err)
	}
	defer client.Close()

	// Open database
	db, err := openDB()
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	var readings []models.Reading

	switch {
	case fetchDate != "":
		day, err := parseDate(fetchDate)
		if err != nil {
			return fmt.Errorf("parsing --date: %w", err)
		}
		fmt.Printf("Fetching readings for %s...\n", day.Format("2006-01-02"))
		readings, err = client.Readings(ctx, &day)
		if err != nil {
			return fmt.Errorf("querying readings: %w", err)
		}

	case fetchSince != "" || fetchUntil != "":
		since, until, err := parseRange(fetchSince, fetchUntil)
		if err != nil {
			return err
		}
		fmt.Printf("Fetching readings from %s to %s...\n", since.Format("2006-01-02"), until.Format("2006-01-02"))
		readings, err = client.ReadingsBetween(ctx, since, until)
		if err != nil {
			return fmt.Errorf("querying readings: %w", err)
		}

	default:
		fmt.Println("Fetching all readings...")
		readings, err = client.Readings(ctx, nil)
		if err != nil {
			return fmt.Errorf("querying readings: %w", err)
		}
	}

	if len(readings) == 0 {
		fmt.Println("No readings found")
		return nil
	}

	inserted, err := db.InsertReadings(ctx, readings, "influx")
	if err != nil {
		return fmt.Errorf("storing readings: %w", err)
	}

	total, err := db.Count(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("✓ Stored %s new readings (%s already present, %s total)\n",
		humanize.Comma(int64(inserted)),
		humanize.Comma(int64(len(readings)-inserted)),
		humanize.Comma(int64(total)))
	return nil
}
