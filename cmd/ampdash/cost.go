package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/ampdash/internal/billing"
	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/tariff"
	"github.com/jgoulah/ampdash/pkg/models"
)

var (
	costDate      string
	costCurrency  string
	costMode      string
	costBreakdown bool
	costSeries    bool
	costOffline   bool
)

var costCmd = &cobra.Command{
	Use:   "cost",
	Short: "Price stored readings with the tiered tariff",
	Long: `Integrates power readings into energy and prices them with the configured
progressive rate schedule, converted into the display currency.

Modes:
  cumulative  each point is the tiered cost of all energy up to it (default)
  interval    each point is the marginal cost of its own interval`,
	RunE: runCost,
}

func init() {
	costCmd.Flags().StringVar(&costDate, "date", "", "Only price this day (YYYY-MM-DD or relative like 1d)")
	costCmd.Flags().StringVar(&costCurrency, "currency", "", "Display currency (default from config)")
	costCmd.Flags().StringVar(&costMode, "mode", "cumulative", "Cost mode (cumulative or interval)")
	costCmd.Flags().BoolVar(&costBreakdown, "breakdown", false, "Show how the total splits across tiers")
	costCmd.Flags().BoolVar(&costSeries, "series", false, "Show the cost of every sample")
	costCmd.Flags().BoolVar(&costOffline, "offline", false, "Use fallback exchange rates instead of fetching")
	rootCmd.AddCommand(costCmd)
}

func runCost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := newLogger(cfg)

	mode, err := billing.ParseMode(costMode)
	if err != nil {
		return err
	}
	day, err := parseOptionalDay(costDate)
	if err != nil {
		return fmt.Errorf("parsing --date: %w", err)
	}
	schedule, err := cfg.Tariff.Schedule()
	if err != nil {
		return err
	}

	code := costCurrency
	if code == "" {
		code = cfg.GetDisplayCurrency()
	}

	src, closeSrc, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	ctx := context.Background()
	readings, err := src.Readings(ctx, day)
	if err != nil {
		return fmt.Errorf("querying readings: %w", err)
	}
	if len(readings) == 0 {
		fmt.Println("No readings found")
		return nil
	}

	rates := newRateCache(cfg, log)
	if !costOffline {
		refreshCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := rates.Refresh(refreshCtx); err != nil {
			fmt.Printf("Warning: using fallback exchange rates: %v\n", err)
		}
		cancel()
	}

	report := billing.Calculate(models.PowerSamples(readings), schedule, rates.Snapshot(), code, mode)
	printReport(report, schedule, costBreakdown, costSeries)
	return nil
}

// printReport writes a report as a table
func printReport(r billing.Report, schedule tariff.Schedule, breakdown, series bool) {
	s := r.Summary
	cur := currency.Lookup(r.Currency)

	fmt.Printf("\nCost report (%s, %s mode)\n", cur.Name, r.Mode)
	fmt.Println("----------------------------------------")
	fmt.Printf("%-22s  %14.3f kWh\n", "Energy", s.TotalKWh)
	fmt.Printf("%-22s  %18s\n", "Total cost", currency.Format(s.TotalCost, r.Currency))
	if r.Currency != r.BaseCurrency {
		fmt.Printf("%-22s  %18s\n", "Total cost ("+r.BaseCurrency+")", currency.Format(s.TotalCostBase, r.BaseCurrency))
	}
	fmt.Printf("%-22s  %18s\n", "Average per sample", currency.Format(s.AverageCost, r.Currency))
	fmt.Printf("%-22s  %18s  (%.3f kWh)\n", "Predicted next hour", currency.Format(s.PredictedNextCost, r.Currency), s.PredictedNextKWh)
	fmt.Println("----------------------------------------")
	fmt.Printf("%d samples, rate %s 1 = %s %g\n", s.Samples, r.BaseCurrency, r.Currency, r.Rate)

	if breakdown {
		fmt.Printf("\n%-6s  %-16s  %10s  %12s  %14s\n", "Tier", "Range kWh", "Rate", "kWh", "Cost")
		for _, u := range schedule.Breakdown(s.TotalKWh) {
			fmt.Printf("%-6d  %-16s  %10.4f  %12.3f  %14s\n",
				u.Index+1, tierRange(u.Tier), u.Tier.Rate, u.KWh, currency.Format(u.Cost*r.Rate, r.Currency))
		}
	}

	if series {
		fmt.Printf("\n%-20s  %12s  %14s\n", "Time (UTC)", "kWh", "Cost")
		for _, c := range r.Samples {
			fmt.Printf("%-20s  %12.4f  %14s\n",
				c.Timestamp.UTC().Format("2006-01-02 15:04:05"), c.EnergyKWh, currency.Format(c.CostDisplay, r.Currency))
		}
	}
}

func tierRange(t tariff.Tier) string {
	if math.IsInf(t.Upper, 1) {
		return fmt.Sprintf("%g+", t.Lower)
	}
	return fmt.Sprintf("%g-%g", t.Lower, t.Upper)
}
