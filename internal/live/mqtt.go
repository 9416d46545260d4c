package live

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jgoulah/ampdash/internal/config"
)

// MQTTFeed subscribes to a topic carrying JSON sensor messages
type MQTTFeed struct {
	client mqtt.Client
	topic  string
	log    zerolog.Logger
	handle Handler
}

// BrokerURL normalizes a broker address, assuming tcp:// when no scheme is given
func BrokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}

// ClientID returns the configured client id or a random one
func ClientID(configured, prefix string) string {
	if configured != "" {
		return configured
	}
	return fmt.Sprintf("%s_%s", prefix, strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// NewMQTTFeed prepares a client for the broker described by cfg. The
// connection is made by Run, so an unreachable broker does not block callers.
func NewMQTTFeed(cfg config.MQTTConfig, topic string, log zerolog.Logger) (*MQTTFeed, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}

	f := &MQTTFeed{
		topic: topic,
		log:   log.With().Str("component", "mqtt-feed").Str("topic", topic).Logger(),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(cfg.Broker))
	opts.SetClientID(ClientID(cfg.ClientID, "ampdash"))
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(4 * time.Second)
	opts.SetConnectRetryInterval(time.Second)
	opts.SetMaxReconnectInterval(time.Second)
	// clean sessions drop subscriptions, so subscribe on every (re)connect
	opts.SetOnConnectHandler(f.onConnect)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		f.log.Warn().Err(err).Msg("MQTT connection lost")
	})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	f.client = mqtt.NewClient(opts)
	return f, nil
}

func (f *MQTTFeed) onConnect(c mqtt.Client) {
	f.log.Info().Msg("connected to MQTT broker")

	token := c.Subscribe(f.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		r, err := Decode(msg.Payload(), time.Now().UTC())
		if err != nil {
			f.log.Debug().Err(err).Msg("skipping message")
			return
		}
		f.handle(r)
	})
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		f.log.Error().Err(token.Error()).Msg("subscribe failed")
		return
	}
	f.log.Info().Msg("subscribed")
}

// Run implements Feed. It connects in the background, retrying until the
// broker is reachable or ctx is done.
func (f *MQTTFeed) Run(ctx context.Context, handle Handler) error {
	f.handle = handle
	defer f.Close()

	token := f.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("connecting to MQTT broker: %w", err)
		}
	case <-ctx.Done():
		f.log.Warn().Msg("stopped before the MQTT broker became reachable")
		return nil
	}

	<-ctx.Done()

	if t := f.client.Unsubscribe(f.topic); t.WaitTimeout(time.Second) && t.Error() != nil {
		f.log.Warn().Err(t.Error()).Msg("unsubscribe failed")
	}

	return nil
}

// Close disconnects from the broker and stops pending connection attempts
func (f *MQTTFeed) Close() {
	if f.client != nil {
		f.client.Disconnect(250)
	}
}
