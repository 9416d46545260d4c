package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/jgoulah/ampdash/internal/config"
	"github.com/jgoulah/ampdash/pkg/models"
)

// Client runs Flux queries against one bucket
type Client struct {
	client      influxdb2.Client
	org         string
	bucket      string
	measurement string
}

// New creates a client from cfg. No connection is made until the first query.
func New(cfg config.InfluxConfig, measurement string) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("InfluxDB URL is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("InfluxDB bucket is required")
	}
	if measurement == "" {
		measurement = "sensor_data"
	}

	return &Client{
		client:      influxdb2.NewClient(cfg.URL, cfg.Token),
		org:         cfg.Org,
		bucket:      cfg.Bucket,
		measurement: measurement,
	}, nil
}

// Close releases the underlying HTTP resources
func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) query(ctx context.Context, flux string) ([]Row, error) {
	result, err := c.client.QueryAPI(c.org).Query(ctx, flux)
	if err != nil {
		return nil, fmt.Errorf("querying InfluxDB: %w", err)
	}
	defer result.Close()

	var rows []Row
	for result.Next() {
		// the dates query keeps only _time, so read columns defensively
		vals := result.Record().Values()
		t, _ := vals["_time"].(time.Time)
		field, _ := vals["_field"].(string)
		rows = append(rows, Row{Time: t, Field: field, Value: vals["_value"]})
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("reading InfluxDB result: %w", err)
	}
	return rows, nil
}

// Readings returns the pivoted readings of day, or of all time when day is nil
func (c *Client) Readings(ctx context.Context, day *time.Time) ([]models.Reading, error) {
	flux := AllQuery(c.bucket, c.measurement)
	if day != nil {
		flux = DayQuery(c.bucket, c.measurement, *day)
	}

	rows, err := c.query(ctx, flux)
	if err != nil {
		return nil, err
	}
	return Pivot(rows), nil
}

// ReadingsBetween returns the pivoted readings in [start, stop)
func (c *Client) ReadingsBetween(ctx context.Context, start, stop time.Time) ([]models.Reading, error) {
	rows, err := c.query(ctx, RangeQuery(c.bucket, c.measurement, start, stop))
	if err != nil {
		return nil, err
	}
	return Pivot(rows), nil
}

// AvailableDates returns every day that has at least one reading
func (c *Client) AvailableDates(ctx context.Context) ([]string, error) {
	rows, err := c.query(ctx, DatesQuery(c.bucket))
	if err != nil {
		return nil, err
	}

	times := make([]time.Time, len(rows))
	for i, r := range rows {
		times[i] = r.Time
	}
	return UniqueDates(times), nil
}

// Field returns the raw samples of a single field
func (c *Client) Field(ctx context.Context, field string) ([]models.FieldValue, error) {
	rows, err := c.query(ctx, FieldQuery(c.bucket, c.measurement, field))
	if err != nil {
		return nil, err
	}

	out := make([]models.FieldValue, 0, len(rows))
	for _, r := range rows {
		v, ok := toFloat(r.Value)
		if !ok {
			continue
		}
		out = append(out, models.FieldValue{Time: r.Time.UTC(), Field: r.Field, Value: v})
	}
	return out, nil
}
