package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/jgoulah/ampdash/internal/billing"
	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/tariff"
	"github.com/jgoulah/ampdash/pkg/models"
)

const (
	dateLayout   = "2006-01-02"
	noDataMsg    = "No data available for the specified field."
	wsWriteWait  = 10 * time.Second
	wsBacklog    = 64
	wsPingPeriod = 30 * time.Second
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseDay reads the optional ?date= parameter. A nil day means all data.
func parseDay(r *http.Request) (*time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return nil, true
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, false
	}
	return &day, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":      "ok",
		"live":        s.live.Enabled(),
		"rates_fresh": s.rates != nil && s.rates.Fresh(),
	}
	if s.rates != nil {
		if err := s.rates.LastError(); err != nil {
			body["rates_error"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSensorAll(w http.ResponseWriter, r *http.Request) {
	day, ok := parseDay(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	readings, err := s.source.Readings(r.Context(), day)
	if err != nil {
		s.log.Error().Err(err).Msg("querying readings")
		writeError(w, http.StatusInternalServerError, "failed to query readings")
		return
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Server) handleDateRange(w http.ResponseWriter, r *http.Request) {
	dates, err := s.source.AvailableDates(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("querying available dates")
		writeError(w, http.StatusInternalServerError, "failed to query available dates")
		return
	}
	if len(dates) == 0 {
		writeError(w, http.StatusNotFound, noDataMsg)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"available": dates})
}

func (s *Server) handleVoltage(w http.ResponseWriter, r *http.Request) {
	values, err := s.source.Field(r.Context(), "voltage")
	if err != nil {
		s.log.Error().Err(err).Msg("querying voltage")
		writeError(w, http.StatusInternalServerError, "failed to query voltage")
		return
	}
	if values == nil {
		values = []models.FieldValue{}
	}
	writeJSON(w, http.StatusOK, values)
}

// costPoint is one priced sample with amounts rounded to cents
type costPoint struct {
	Timestamp   time.Time `json:"timestamp"`
	EnergyKWh   float64   `json:"energy_kwh"`
	CostBase    float64   `json:"cost_base"`
	CostDisplay float64   `json:"cost"`
}

type tierLine struct {
	Tier  int         `json:"tier"`
	Range tariff.Tier `json:"range"`
	KWh   float64     `json:"kwh"`
	Cost  float64     `json:"cost"`
}

type costSummary struct {
	TotalKWh          float64 `json:"total_kwh"`
	TotalCost         float64 `json:"total_cost"`
	TotalCostBase     float64 `json:"total_cost_base"`
	AverageCost       float64 `json:"average_cost"`
	PredictedNextKWh  float64 `json:"predicted_next_kwh"`
	PredictedNextCost float64 `json:"predicted_next_cost"`
	Samples           int     `json:"samples"`
}

type costResponse struct {
	Date         string      `json:"date,omitempty"`
	BaseCurrency string      `json:"base_currency"`
	Currency     string      `json:"currency"`
	Symbol       string      `json:"symbol"`
	Rate         float64     `json:"rate"`
	Mode         string      `json:"mode"`
	Summary      costSummary `json:"summary"`
	Breakdown    []tierLine  `json:"breakdown"`
	Samples      []costPoint `json:"samples"`
}

func cents(v float64) float64 {
	return currency.Round(v).InexactFloat64()
}

func round3(v float64) float64 {
	return decimal.NewFromFloat(v).Round(3).InexactFloat64()
}

func (s *Server) newCostResponse(rep billing.Report) costResponse {
	sum := rep.Summary
	resp := costResponse{
		BaseCurrency: rep.BaseCurrency,
		Currency:     rep.Currency,
		Symbol:       currency.Lookup(rep.Currency).Symbol,
		Rate:         rep.Rate,
		Mode:         string(rep.Mode),
		Summary: costSummary{
			TotalKWh:          round3(sum.TotalKWh),
			TotalCost:         cents(sum.TotalCost),
			TotalCostBase:     cents(sum.TotalCostBase),
			AverageCost:       cents(sum.AverageCost),
			PredictedNextKWh:  round3(sum.PredictedNextKWh),
			PredictedNextCost: cents(sum.PredictedNextCost),
			Samples:           sum.Samples,
		},
		Breakdown: []tierLine{},
		Samples:   make([]costPoint, 0, len(rep.Samples)),
	}

	for _, u := range s.schedule.Breakdown(sum.TotalKWh) {
		resp.Breakdown = append(resp.Breakdown, tierLine{
			Tier:  u.Index + 1,
			Range: u.Tier,
			KWh:   round3(u.KWh),
			Cost:  cents(u.Cost * rep.Rate),
		})
	}
	for _, c := range rep.Samples {
		resp.Samples = append(resp.Samples, costPoint{
			Timestamp:   c.Timestamp,
			EnergyKWh:   round3(c.EnergyKWh),
			CostBase:    cents(c.CostBase),
			CostDisplay: cents(c.CostDisplay),
		})
	}
	return resp
}

// costParams reads ?currency= and ?mode=, applying the server defaults
func (s *Server) costParams(r *http.Request) (string, billing.Mode, error) {
	code := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))
	if code == "" {
		code = s.currency
	}
	mode, err := billing.ParseMode(r.URL.Query().Get("mode"))
	return code, mode, err
}

func (s *Server) snapshot() currency.Table {
	if s.rates == nil {
		return currency.DefaultTable()
	}
	return s.rates.Snapshot()
}

func (s *Server) handleCost(w http.ResponseWriter, r *http.Request) {
	day, ok := parseDay(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}
	code, mode, err := s.costParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings, err := s.source.Readings(r.Context(), day)
	if err != nil {
		s.log.Error().Err(err).Msg("querying readings for cost")
		writeError(w, http.StatusInternalServerError, "failed to query readings")
		return
	}

	rep := billing.Calculate(models.PowerSamples(readings), s.schedule, s.snapshot(), code, mode)
	resp := s.newCostResponse(rep)
	if day != nil {
		resp.Date = day.Format(dateLayout)
	}
	writeJSON(w, http.StatusOK, resp)
}

type ratesResponse struct {
	Base       string              `json:"base"`
	Rates      map[string]float64  `json:"rates"`
	FetchedAt  *time.Time          `json:"fetched_at,omitempty"`
	Fresh      bool                `json:"fresh"`
	Currencies []currency.Currency `json:"currencies"`
}

func (s *Server) handleRates(w http.ResponseWriter, r *http.Request) {
	t := s.snapshot()
	resp := ratesResponse{
		Base:       t.Base,
		Rates:      t.Rates,
		Fresh:      s.rates != nil && s.rates.Fresh(),
		Currencies: currency.Currencies,
	}
	if !t.FetchedAt.IsZero() {
		resp.FetchedAt = &t.FetchedAt
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTariff(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.schedule)
}

type liveStatus struct {
	Enabled  bool            `json:"enabled"`
	Buffered int             `json:"buffered"`
	Capacity int             `json:"capacity"`
	Latest   *models.Reading `json:"latest,omitempty"`
}

func (s *Server) liveStatus() liveStatus {
	st := liveStatus{
		Enabled:  s.live.Enabled(),
		Buffered: s.live.Len(),
		Capacity: s.live.Capacity(),
	}
	if r, ok := s.live.Latest(); ok {
		st.Latest = &r
	}
	return st
}

func (s *Server) handleLiveState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.liveStatus())
}

func (s *Server) handleSetLive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		writeError(w, http.StatusBadRequest, `body must be {"enabled": true|false}`)
		return
	}

	s.live.SetEnabled(*req.Enabled)
	s.log.Info().Bool("enabled", *req.Enabled).Msg("live mode toggled")
	writeJSON(w, http.StatusOK, s.liveStatus())
}

type liveSamplesResponse struct {
	liveStatus
	Readings []models.Reading `json:"readings"`
	Cost     costResponse     `json:"cost"`
}

func (s *Server) handleLiveSamples(w http.ResponseWriter, r *http.Request) {
	code, mode, err := s.costParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	readings := s.live.Readings()
	rep := billing.Calculate(models.PowerSamples(readings), s.schedule, s.snapshot(), code, mode)
	writeJSON(w, http.StatusOK, liveSamplesResponse{
		liveStatus: s.liveStatus(),
		Readings:   readings,
		Cost:       s.newCostResponse(rep),
	})
}

// handleLiveWS streams live readings to a websocket client until either side
// goes away.
func (s *Server) handleLiveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	readings, unsubscribe := s.live.Subscribe(wsBacklog)
	defer unsubscribe()

	// drain client frames so close messages are noticed
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(wsWriteWait))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case reading, ok := <-readings:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(reading); err != nil {
				s.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		}
	}
}
