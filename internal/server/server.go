// Package server exposes sensor readings, cost reports and live mode over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jgoulah/ampdash/internal/config"
	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/live"
	"github.com/jgoulah/ampdash/internal/metrics"
	"github.com/jgoulah/ampdash/internal/tariff"
	"github.com/jgoulah/ampdash/pkg/models"
)

// Source is a store of historical readings
type Source interface {
	Readings(ctx context.Context, day *time.Time) ([]models.Reading, error)
	AvailableDates(ctx context.Context) ([]string, error)
	Field(ctx context.Context, field string) ([]models.FieldValue, error)
}

// Rates provides the current exchange-rate snapshot
type Rates interface {
	Snapshot() currency.Table
	Fresh() bool
	LastError() error
}

// Options wires the server's collaborators
type Options struct {
	Source   Source
	Rates    Rates
	Schedule tariff.Schedule
	Live     *live.State
	Metrics  *metrics.Metrics
	Log      zerolog.Logger
	Currency string // default display currency
}

// Server handles the dashboard API
type Server struct {
	source   Source
	rates    Rates
	schedule tariff.Schedule
	live     *live.State
	metrics  *metrics.Metrics
	log      zerolog.Logger
	currency string
	upgrader websocket.Upgrader
}

// New creates a server from opts
func New(opts Options) *Server {
	if opts.Live == nil {
		opts.Live = live.NewState(live.DefaultBufferSize)
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	if opts.Currency == "" {
		opts.Currency = opts.Schedule.Currency
	}

	return &Server{
		source:   opts.Source,
		rates:    opts.Rates,
		schedule: opts.Schedule,
		live:     opts.Live,
		metrics:  opts.Metrics,
		log:      opts.Log.With().Str("component", "http").Logger(),
		currency: opts.Currency,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Routes builds the HTTP handler
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/sensor", func(r chi.Router) {
			r.Get("/all", s.handleSensorAll)
			r.Get("/date-range", s.handleDateRange)
			r.Get("/voltage", s.handleVoltage)
		})
		r.Get("/cost", s.handleCost)
		r.Get("/rates", s.handleRates)
		r.Get("/tariff", s.handleTariff)
		r.Route("/live", func(r chi.Router) {
			r.Get("/", s.handleLiveState)
			r.Put("/", s.handleSetLive)
			r.Get("/samples", s.handleLiveSamples)
			r.Get("/ws", s.handleLiveWS)
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string, cfg config.ServerConfig) error {
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 60 * time.Second
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		// websocket handlers watch the request context, which ends with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("starting dashboard API")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving HTTP: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down dashboard API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		d := time.Since(start)

		s.metrics.ObserveHTTP(route, status, d)
		s.log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", d).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}
