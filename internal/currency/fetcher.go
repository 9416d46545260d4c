package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultRatesURL serves rates relative to THB
const DefaultRatesURL = "https://api.exchangerate-api.com/v4/latest/THB"

// HTTPFetcher loads a rate table from an exchangerate-api style endpoint
type HTTPFetcher struct {
	URL    string
	Client *http.Client
}

// NewHTTPFetcher creates a fetcher for url with a 10 second timeout
func NewHTTPFetcher(url string) *HTTPFetcher {
	if url == "" {
		url = DefaultRatesURL
	}
	return &HTTPFetcher{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type ratesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context) (Table, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return Table{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return Table{}, fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Table{}, fmt.Errorf("HTTP error: status %d, response: %s", resp.StatusCode, string(body))
	}

	var payload ratesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Table{}, fmt.Errorf("parsing response: %w", err)
	}

	rates := make(map[string]float64, len(payload.Rates))
	for code, r := range payload.Rates {
		rates[strings.ToUpper(code)] = r
	}

	return Table{
		Base:      strings.ToUpper(payload.Base),
		Rates:     rates,
		FetchedAt: time.Now(),
	}, nil
}
