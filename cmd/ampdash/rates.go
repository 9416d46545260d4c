package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jgoulah/ampdash/internal/currency"
)

var ratesAll bool

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Show exchange rates",
	Long:  `Fetches the latest exchange rates relative to the tariff currency. Falls back to the configured rates when the fetch fails.`,
	RunE:  runRates,
}

func init() {
	ratesCmd.Flags().BoolVar(&ratesAll, "all", false, "Show every currency returned, not only the supported ones")
	rootCmd.AddCommand(ratesCmd)
}

func runRates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	rates := newRateCache(cfg, newLogger(cfg))
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := rates.Refresh(ctx); err != nil {
		fmt.Printf("Warning: %v\n", err)
		fmt.Println("Showing fallback rates")
	}

	t := rates.Snapshot()
	if t.FetchedAt.IsZero() {
		fmt.Printf("Base %s (fallback)\n", t.Base)
	} else {
		fmt.Printf("Base %s, fetched %s\n", t.Base, humanize.Time(t.FetchedAt))
	}
	fmt.Println("----------------------------------------")

	if !ratesAll {
		for _, c := range currency.Currencies {
			marker := ""
			if !t.Has(c.Code) {
				marker = " (missing, shown at 1)"
			}
			fmt.Printf("%-4s %-2s %-12s %12.6f%s\n", c.Code, c.Symbol, c.Name, t.Rate(c.Code), marker)
		}
		return nil
	}

	codes := make([]string, 0, len(t.Rates))
	for code := range t.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Printf("%-4s %18s\n", code, humanize.FormatFloat("#,###.######", t.Rates[code]))
	}
	fmt.Printf("%d currencies\n", len(codes))
	return nil
}
