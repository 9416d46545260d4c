package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/ampdash/internal/billing"
	"github.com/jgoulah/ampdash/internal/publisher"
	"github.com/jgoulah/ampdash/pkg/models"
)

var (
	publishDate       string
	publishCurrencies string
	publishMode       string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a day's cost summary over MQTT",
	Long: `Prices one day of readings and publishes the summary as a retained JSON
message to <topic_prefix>/cost/<currency> for home-automation dashboards.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().StringVar(&publishDate, "date", "1d", "Day to publish (YYYY-MM-DD or relative like 1d)")
	publishCmd.Flags().StringVar(&publishCurrencies, "currency", "", "Comma separated currencies to publish (default: display currency)")
	publishCmd.Flags().StringVar(&publishMode, "mode", "cumulative", "Cost mode (cumulative or interval)")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	// Load config
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Check if MQTT is configured
	if !cfg.MQTT.Enabled {
		return fmt.Errorf("MQTT is not enabled in config")
	}

	mode, err := billing.ParseMode(publishMode)
	if err != nil {
		return err
	}
	day, err := parseDate(publishDate)
	if err != nil {
		return fmt.Errorf("parsing --date: %w", err)
	}
	schedule, err := cfg.Tariff.Schedule()
	if err != nil {
		return err
	}

	codes := []string{cfg.GetDisplayCurrency()}
	if publishCurrencies != "" {
		codes = codes[:0]
		for _, c := range strings.Split(publishCurrencies, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, strings.ToUpper(c))
			}
		}
	}

	src, closeSrc, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	ctx := context.Background()
	readings, err := src.Readings(ctx, &day)
	if err != nil {
		return fmt.Errorf("querying readings: %w", err)
	}
	if len(readings) == 0 {
		fmt.Printf("No readings for %s\n", day.Format("2006-01-02"))
		return nil
	}

	rates := newRateCache(cfg, newLogger(cfg))
	refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := rates.Refresh(refreshCtx); err != nil {
		fmt.Printf("Warning: using fallback exchange rates: %v\n", err)
	}
	cancel()

	// Create publisher
	pub, err := publisher.New(cfg.MQTT, cfg.GetTopicPrefix())
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	samples := models.PowerSamples(readings)
	published := 0
	for i, code := range codes {
		report := billing.Calculate(samples, schedule, rates.Snapshot(), code, mode)
		payload := publisher.NewCostPayload(day.Format("2006-01-02"), report, time.Now())

		fmt.Printf("[%d/%d] Publishing %s %s to %s... ", i+1, len(codes), payload.TotalCost, payload.Currency, pub.CostTopic(code))
		if err := pub.PublishCost(payload); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			continue
		}
		fmt.Printf("✓\n")
		published++
	}

	fmt.Printf("\nSuccessfully published %d/%d summaries\n", published, len(codes))
	return nil
}
