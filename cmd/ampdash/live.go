package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jgoulah/ampdash/internal/billing"
	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/database"
	"github.com/jgoulah/ampdash/internal/live"
	"github.com/jgoulah/ampdash/pkg/models"
)

var (
	liveStore    bool
	liveCurrency string
)

var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Follow the live sensor feed",
	Long: `Subscribes to the live sensor feed (MQTT or Kafka, per config) and prints
each reading with the running cost of the buffered window. Stop with Ctrl-C.`,
	RunE: runLive,
}

func init() {
	liveCmd.Flags().BoolVar(&liveStore, "store", false, "Also store every reading in the local database")
	liveCmd.Flags().StringVar(&liveCurrency, "currency", "", "Display currency (default from config)")
	rootCmd.AddCommand(liveCmd)
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := newLogger(cfg)

	schedule, err := cfg.Tariff.Schedule()
	if err != nil {
		return err
	}

	code := liveCurrency
	if code == "" {
		code = cfg.GetDisplayCurrency()
	}

	feed, err := newFeed(cfg, log)
	if err != nil {
		return err
	}
	if feed == nil {
		return fmt.Errorf("no live transport enabled in config (enable mqtt or kafka)")
	}

	var db *database.DB
	if liveStore {
		if db, err = openDB(); err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rates := newRateCache(cfg, log)
	go rates.Run(ctx)

	state := live.NewState(cfg.GetBufferSize())
	state.SetEnabled(true)

	fmt.Printf("Following %s feed (window of %d readings), Ctrl-C to stop\n", cfg.GetLiveTransport(), state.Capacity())

	return feed.Run(ctx, func(r models.Reading) {
		state.Add(r)

		if db != nil {
			if _, err := db.InsertReading(ctx, r, "live"); err != nil {
				fmt.Printf("Warning: could not store reading: %v\n", err)
			}
		}

		report := billing.Calculate(models.PowerSamples(state.Readings()), schedule, rates.Snapshot(), code, billing.ModeCumulative)
		fmt.Printf("%s  %8.1f W  %7.1f V  window %7.3f kWh  %12s  next hour ~%s\n",
			r.Time.Local().Format("15:04:05"), r.Power, r.Voltage,
			report.Summary.TotalKWh,
			currency.Format(report.Summary.TotalCost, report.Currency),
			currency.Format(report.Summary.PredictedNextCost, report.Currency))
	})
}
