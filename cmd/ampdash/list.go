package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jgoulah/ampdash/internal/energy"
	"github.com/jgoulah/ampdash/pkg/models"
)

var (
	listDate  string
	listSince string
	listUntil string
	listLimit int
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored readings",
	Long:  `Displays readings from the configured source along with the energy integrated up to each one.`,
	RunE:  runList,
}

func init() {
	listCmd.Flags().StringVar(&listDate, "date", "", "Only show this day (YYYY-MM-DD or relative like 1d)")
	listCmd.Flags().StringVar(&listSince, "since", "", "Only show readings since this date (YYYY-MM-DD or relative like 7d)")
	listCmd.Flags().StringVar(&listUntil, "until", "", "Only show readings before this date (YYYY-MM-DD, default: now)")
	listCmd.Flags().IntVar(&listLimit, "limit", 0, "Only show the last N readings (0 = no limit)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if listDate != "" && (listSince != "" || listUntil != "") {
		return fmt.Errorf("--date cannot be combined with --since/--until")
	}
	day, err := parseOptionalDay(listDate)
	if err != nil {
		return fmt.Errorf("parsing --date: %w", err)
	}

	src, closeSrc, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	ctx := context.Background()
	var readings []models.Reading
	if listSince != "" || listUntil != "" {
		since, until, err := parseRange(listSince, listUntil)
		if err != nil {
			return err
		}
		readings, err = src.ReadingsBetween(ctx, since, until)
		if err != nil {
			return fmt.Errorf("listing readings: %w", err)
		}
	} else {
		readings, err = src.Readings(ctx, day)
		if err != nil {
			return fmt.Errorf("listing readings: %w", err)
		}
	}

	if len(readings) == 0 {
		fmt.Println("No readings found")
		return nil
	}

	series := energy.Integrate(models.PowerSamples(readings))

	start := 0
	if listLimit > 0 && len(readings) > listLimit {
		start = len(readings) - listLimit
		fmt.Printf("Showing last %d of %d readings (--limit flag)\n", listLimit, len(readings))
	}

	fmt.Println("-----------------------------------------------------------------------------")
	fmt.Printf("%-20s  %10s  %9s  %9s  %10s  %12s\n", "Time (UTC)", "Power W", "Current A", "Voltage V", "kWh", "Cumul. kWh")
	fmt.Println("-----------------------------------------------------------------------------")

	for i := start; i < len(readings); i++ {
		r := readings[i]
		fmt.Printf("%-20s  %10.1f  %9.2f  %9.1f  %10.4f  %12.4f\n",
			r.Time.UTC().Format("2006-01-02 15:04:05"), r.Power, r.Current, r.Voltage,
			series[i].IntervalKWh, series[i].CumulativeKWh)
	}

	fmt.Println("-----------------------------------------------------------------------------")
	fmt.Printf("Total: %.3f kWh (%d readings)\n", energy.TotalKWh(series), len(readings))
	return nil
}
