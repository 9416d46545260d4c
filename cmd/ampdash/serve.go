package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jgoulah/ampdash/internal/config"
	"github.com/jgoulah/ampdash/internal/live"
	"github.com/jgoulah/ampdash/internal/metrics"
	"github.com/jgoulah/ampdash/internal/server"
)

var (
	serveAddr string
	serveLive bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard API",
	Long: `Serves sensor readings, cost reports, exchange rates and live mode over HTTP.
Exchange rates are refreshed in the background and the live feed is consumed
from MQTT or Kafka when one is enabled in the config.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config or :8080)")
	serveCmd.Flags().BoolVar(&serveLive, "live", false, "Start with live mode enabled")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := newLogger(cfg)

	schedule, err := cfg.Tariff.Schedule()
	if err != nil {
		return err
	}

	src, closeSrc, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer closeSrc()

	m := metrics.New()
	rates := newRateCache(cfg, log).WithObserver(m)

	state := live.NewState(cfg.GetBufferSize()).WithObserver(m)
	state.SetEnabled(cfg.Live.Enabled || serveLive)

	feed, err := newFeed(cfg, log)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Source:   src,
		Rates:    rates,
		Schedule: schedule,
		Live:     state,
		Metrics:  m,
		Log:      log,
		Currency: cfg.GetDisplayCurrency(),
	})

	addr := serveAddr
	if addr == "" {
		addr = cfg.GetAddr()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, addr, cfg.Server)
	})
	g.Go(func() error {
		return rates.Run(ctx)
	})
	if feed != nil {
		g.Go(func() error {
			return live.Pump(ctx, feed, state)
		})
	}

	log.Info().
		Str("source", cfg.GetSource()).
		Str("currency", cfg.GetDisplayCurrency()).
		Bool("live", state.Enabled()).
		Msg("ampdash running")

	return g.Wait()
}

// newFeed connects the live transport selected in the config. It returns nil
// when no transport is enabled.
func newFeed(cfg *config.Config, log zerolog.Logger) (live.Feed, error) {
	switch cfg.GetLiveTransport() {
	case config.TransportKafka:
		if !cfg.Kafka.Enabled {
			return nil, nil
		}
		feed, err := live.NewKafkaFeed(cfg.Kafka, log)
		if err != nil {
			return nil, fmt.Errorf("creating Kafka feed: %w", err)
		}
		return feed, nil
	case config.TransportMQTT:
		if !cfg.MQTT.Enabled {
			return nil, nil
		}
		feed, err := live.NewMQTTFeed(cfg.MQTT, cfg.GetLiveTopic(), log)
		if err != nil {
			return nil, fmt.Errorf("creating MQTT feed: %w", err)
		}
		return feed, nil
	default:
		return nil, fmt.Errorf("unknown live transport: %s (available: mqtt, kafka)", cfg.Live.Transport)
	}
}
