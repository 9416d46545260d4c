package main

import (
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/jgoulah/ampdash/internal/config"
	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/tariff"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file",
	Long: `Writes a config file with the default residential tariff, fallback exchange
rates and local service addresses. Edit it before running serve.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	if err := saveConfig(defaultConfig()); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("✓ Wrote %s\n", path)
	return nil
}

// defaultConfig returns a config populated with the built-in defaults
func defaultConfig() *config.Config {
	sched := tariff.DefaultSchedule()
	tiers := make([]config.TierConfig, 0, len(sched.Tiers))
	for _, t := range sched.Tiers {
		tc := config.TierConfig{Lower: t.Lower, Rate: t.Rate}
		if !math.IsInf(t.Upper, 1) {
			upper := t.Upper
			tc.Upper = &upper
		}
		tiers = append(tiers, tc)
	}

	return &config.Config{
		Source: config.SourceInflux,
		Influx: config.InfluxConfig{
			URL:         "http://localhost:8086",
			Org:         "home",
			Bucket:      "sensors",
			Measurement: "sensor_data",
		},
		MQTT: config.MQTTConfig{
			Broker:      "localhost:1883",
			Topic:       "sensor/data",
			TopicPrefix: "ampdash",
		},
		Live: config.LiveConfig{
			Transport:  config.TransportMQTT,
			BufferSize: 100,
		},
		Tariff: config.TariffConfig{
			Currency: sched.Currency,
			Tiers:    tiers,
		},
		Currency: config.CurrencyConfig{
			Display:  sched.Currency,
			RatesURL: currency.DefaultRatesURL,
			Fallback: currency.DefaultTable().Rates,
		},
		Server: config.ServerConfig{Addr: ":8080"},
		Log:    config.LogConfig{Level: "info"},
	}
}
