package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var datesCmd = &cobra.Command{
	Use:   "dates",
	Short: "List days that have readings",
	RunE:  runDates,
}

func init() {
	rootCmd.AddCommand(datesCmd)
}

func runDates(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	src, closeSrc, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	dates, err := src.AvailableDates(context.Background())
	if err != nil {
		return fmt.Errorf("listing dates: %w", err)
	}

	if len(dates) == 0 {
		fmt.Println("No data available")
		return nil
	}

	for _, d := range dates {
		fmt.Println(d)
	}
	fmt.Printf("%d days (%s to %s)\n", len(dates), dates[0], dates[len(dates)-1])
	return nil
}
