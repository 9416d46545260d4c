package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/live"
	"github.com/jgoulah/ampdash/internal/tariff"
	"github.com/jgoulah/ampdash/pkg/models"
)

type stubSource struct {
	readings []models.Reading
	dates    []string
	voltage  []models.FieldValue
	err      error
	lastDay  *time.Time
}

func (s *stubSource) Readings(_ context.Context, day *time.Time) ([]models.Reading, error) {
	s.lastDay = day
	return s.readings, s.err
}

func (s *stubSource) AvailableDates(context.Context) ([]string, error) {
	return s.dates, s.err
}

func (s *stubSource) Field(context.Context, string) ([]models.FieldValue, error) {
	return s.voltage, s.err
}

type stubRates struct {
	table currency.Table
	err   error
}

func (r stubRates) Snapshot() currency.Table { return r.table }
func (r stubRates) Fresh() bool              { return r.err == nil }
func (r stubRates) LastError() error         { return r.err }

func newTestServer(src Source) (*Server, *live.State) {
	state := live.NewState(10)
	srv := New(Options{
		Source:   src,
		Rates:    stubRates{table: currency.DefaultTable()},
		Schedule: tariff.DefaultSchedule(),
		Live:     state,
		Log:      zerolog.Nop(),
	})
	return srv, state
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(&stubSource{})
	rec := do(t, srv.Routes(), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestHealthReportsRateError(t *testing.T) {
	srv := New(Options{
		Source:   &stubSource{},
		Rates:    stubRates{table: currency.DefaultTable(), err: errors.New("rates endpoint unreachable")},
		Schedule: tariff.DefaultSchedule(),
		Log:      zerolog.Nop(),
	})
	rec := do(t, srv.Routes(), http.MethodGet, "/health", "")

	var got map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["rates_fresh"] != false || got["rates_error"] != "rates endpoint unreachable" {
		t.Fatalf("expected stale rates with error, got %v", got)
	}
}

func TestSensorAllFiltersByDate(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	src := &stubSource{readings: []models.Reading{{Time: ts, Power: 500, Voltage: 230}}}
	srv, _ := newTestServer(src)

	rec := do(t, srv.Routes(), http.MethodGet, "/api/sensor/all?date=2024-03-01", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if src.lastDay == nil || src.lastDay.Format("2006-01-02") != "2024-03-01" {
		t.Fatalf("expected day 2024-03-01 to be passed through, got %v", src.lastDay)
	}

	var got []models.Reading
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Power != 500 {
		t.Fatalf("unexpected readings: %+v", got)
	}
}

func TestSensorAllWithoutDateQueriesEverything(t *testing.T) {
	src := &stubSource{}
	srv, _ := newTestServer(src)
	rec := do(t, srv.Routes(), http.MethodGet, "/api/sensor/all", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if src.lastDay != nil {
		t.Fatalf("expected nil day, got %v", src.lastDay)
	}
}

func TestSensorAllRejectsBadDate(t *testing.T) {
	srv, _ := newTestServer(&stubSource{})
	rec := do(t, srv.Routes(), http.MethodGet, "/api/sensor/all?date=03/01/2024", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDateRange(t *testing.T) {
	srv, _ := newTestServer(&stubSource{dates: []string{"2024-03-01", "2024-03-02"}})
	rec := do(t, srv.Routes(), http.MethodGet, "/api/sensor/date-range", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		Available []string `json:"available"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Available) != 2 || got.Available[1] != "2024-03-02" {
		t.Fatalf("unexpected dates: %v", got.Available)
	}
}

func TestDateRangeEmptyIsNotFound(t *testing.T) {
	srv, _ := newTestServer(&stubSource{})
	rec := do(t, srv.Routes(), http.MethodGet, "/api/sensor/date-range", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["error"] != "No data available for the specified field." {
		t.Fatalf("unexpected error body: %v", got)
	}
}

func TestVoltageEmptyIsEmptyList(t *testing.T) {
	srv, _ := newTestServer(&stubSource{})
	rec := do(t, srv.Routes(), http.MethodGet, "/api/sensor/voltage", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Fatalf("expected empty list, got %s", got)
	}
}

func TestSourceErrorIsServerError(t *testing.T) {
	srv, _ := newTestServer(&stubSource{err: errors.New("influx down")})
	for _, path := range []string{"/api/sensor/all", "/api/sensor/date-range", "/api/sensor/voltage", "/api/cost"} {
		rec := do(t, srv.Routes(), http.MethodGet, path, "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", path, rec.Code)
		}
	}
}

func TestCostConvertsAndRounds(t *testing.T) {
	// 150 kW for the first hour is exactly the first tier
	src := &stubSource{readings: []models.Reading{
		{Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Power: 150000},
	}}
	srv, _ := newTestServer(src)

	rec := do(t, srv.Routes(), http.MethodGet, "/api/cost?date=2024-03-01&currency=usd", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got costResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Currency != "USD" || got.Symbol != "$" || got.Mode != "cumulative" {
		t.Fatalf("unexpected header fields: %+v", got)
	}
	if math.Abs(got.Summary.TotalCostBase-487.26) > 1e-9 {
		t.Fatalf("expected base cost 487.26, got %v", got.Summary.TotalCostBase)
	}
	if math.Abs(got.Summary.TotalCost-14.62) > 1e-9 {
		t.Fatalf("expected USD cost 14.62, got %v", got.Summary.TotalCost)
	}
	if len(got.Breakdown) != 1 || got.Breakdown[0].Tier != 1 {
		t.Fatalf("expected one tier line, got %+v", got.Breakdown)
	}
	if got.Date != "2024-03-01" {
		t.Fatalf("expected date echoed, got %q", got.Date)
	}
}

func TestCostUnknownCurrencyUsesIdentity(t *testing.T) {
	src := &stubSource{readings: []models.Reading{
		{Time: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Power: 150000},
	}}
	srv, _ := newTestServer(src)

	rec := do(t, srv.Routes(), http.MethodGet, "/api/cost?currency=JPY", "")
	var got costResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Rate != 1 || math.Abs(got.Summary.TotalCost-487.26) > 1e-9 {
		t.Fatalf("expected identity conversion, got rate %v cost %v", got.Rate, got.Summary.TotalCost)
	}
}

func TestCostRejectsUnknownMode(t *testing.T) {
	srv, _ := newTestServer(&stubSource{})
	rec := do(t, srv.Routes(), http.MethodGet, "/api/cost?mode=hourly", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRates(t *testing.T) {
	srv, _ := newTestServer(&stubSource{})
	rec := do(t, srv.Routes(), http.MethodGet, "/api/rates", "")
	var got ratesResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Base != "THB" || got.Rates["USD"] != 0.03 || len(got.Currencies) != 3 {
		t.Fatalf("unexpected rates: %+v", got)
	}
}

func TestLiveToggleAndSamples(t *testing.T) {
	srv, state := newTestServer(&stubSource{})
	h := srv.Routes()

	rec := do(t, h, http.MethodPut, "/api/live", `{"enabled": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !state.Enabled() {
		t.Fatal("expected live mode enabled")
	}

	state.Add(models.Reading{Time: time.Now(), Power: 1000})
	state.Add(models.Reading{Time: time.Now().Add(time.Minute), Power: 2000})

	rec = do(t, h, http.MethodGet, "/api/live/samples", "")
	var got struct {
		Enabled  bool             `json:"enabled"`
		Buffered int              `json:"buffered"`
		Latest   *models.Reading  `json:"latest"`
		Readings []models.Reading `json:"readings"`
		Cost     costResponse     `json:"cost"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Enabled || got.Buffered != 2 || len(got.Readings) != 2 {
		t.Fatalf("unexpected live samples: %+v", got)
	}
	if got.Latest == nil || got.Latest.Power != 2000 {
		t.Fatalf("expected latest reading of 2000 W, got %+v", got.Latest)
	}
	if got.Cost.Summary.Samples != 2 {
		t.Fatalf("expected cost over 2 samples, got %d", got.Cost.Summary.Samples)
	}

	rec = do(t, h, http.MethodPut, "/api/live", `{"enabled": false}`)
	if rec.Code != http.StatusOK || state.Enabled() {
		t.Fatalf("expected live mode disabled, code %d", rec.Code)
	}
}

func TestLiveToggleRejectsBadBody(t *testing.T) {
	srv, _ := newTestServer(&stubSource{})
	for _, body := range []string{`nope`, `{}`} {
		rec := do(t, srv.Routes(), http.MethodPut, "/api/live", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestLiveWebsocketStreamsReadings(t *testing.T) {
	srv, state := newTestServer(&stubSource{})
	state.SetEnabled(true)

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// the subscription is registered after the handshake, keep feeding until
	// one reading arrives
	done := make(chan struct{})
	defer close(done)
	go func() {
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				state.Add(models.Reading{Time: time.Now(), Power: 750})
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got models.Reading
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Power != 750 {
		t.Fatalf("expected 750 W, got %v", got.Power)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(&stubSource{})
	h := srv.Routes()
	do(t, h, http.MethodGet, "/health", "")

	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `ampdash_http_requests_total{route="/health",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output")
	}
}
