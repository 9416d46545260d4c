package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/shopspring/decimal"

	"github.com/jgoulah/ampdash/internal/billing"
	"github.com/jgoulah/ampdash/internal/config"
	"github.com/jgoulah/ampdash/internal/currency"
	"github.com/jgoulah/ampdash/internal/live"
)

const connectTimeout = 10 * time.Second

// Publisher sends cost summaries to an MQTT broker
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// New connects to the broker configured in mqttCfg
func New(mqttCfg config.MQTTConfig, topicPrefix string) (*Publisher, error) {
	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is not enabled in config")
	}
	if mqttCfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}
	if topicPrefix == "" {
		topicPrefix = "ampdash"
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(live.BrokerURL(mqttCfg.Broker))
	opts.SetClientID(live.ClientID("", "ampdash_pub"))
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)

	if mqttCfg.Username != "" {
		opts.SetUsername(mqttCfg.Username)
	}
	if mqttCfg.Password != "" {
		opts.SetPassword(mqttCfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("connecting to MQTT broker %s: timed out after %s", mqttCfg.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", err)
	}

	return &Publisher{
		client:      client,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
	}, nil
}

// CostPayload is the retained message describing a day's cost
type CostPayload struct {
	Date              string `json:"date"`
	Currency          string `json:"currency"`
	Mode              string `json:"mode"`
	TotalKWh          string `json:"total_kwh"`
	TotalCost         string `json:"total_cost"`
	AverageCost       string `json:"average_cost"`
	PredictedNextCost string `json:"predicted_next_cost"`
	Samples           int    `json:"samples"`
	PublishedAt       string `json:"published_at"`
}

// NewCostPayload renders a report summary with amounts rounded to cents and
// energy to watt-hours
func NewCostPayload(date string, r billing.Report, now time.Time) CostPayload {
	s := r.Summary
	return CostPayload{
		Date:              date,
		Currency:          r.Currency,
		Mode:              string(r.Mode),
		TotalKWh:          decimal.NewFromFloat(s.TotalKWh).Round(3).String(),
		TotalCost:         currency.Round(s.TotalCost).StringFixed(2),
		AverageCost:       currency.Round(s.AverageCost).StringFixed(2),
		PredictedNextCost: currency.Round(s.PredictedNextCost).StringFixed(2),
		Samples:           s.Samples,
		PublishedAt:       now.UTC().Format(time.RFC3339),
	}
}

// CostTopic returns the topic a summary in code is published to
func (p *Publisher) CostTopic(code string) string {
	return fmt.Sprintf("%s/cost/%s", p.topicPrefix, strings.ToLower(code))
}

// PublishCost sends the summary as a retained JSON message
func (p *Publisher) PublishCost(payload CostPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	token := p.client.Publish(p.CostTopic(payload.Currency), 1, true, body)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publishing to %s: timed out", p.CostTopic(payload.Currency))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.CostTopic(payload.Currency), err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
