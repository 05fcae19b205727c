package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/roman-kulish/telemetry-uplink/internal/link"
)

const (
	DefaultBroker      = "tcp://localhost:1883"
	DefaultClientID    = "uplink"
	DefaultTopicPrefix = "uplink"

	disconnectQuiesce = 250 // ms
	connectTimeout    = 10 * time.Second
)

var (
	// ErrNotOpen is returned when publishing before the client is connected
	ErrNotOpen = errors.New("mqtt: radio is not open")

	// ErrConnectTimeout is returned when the broker does not acknowledge the connection in time
	ErrConnectTimeout = errors.New("mqtt: connect timeout")
)

// Config is the broker configuration of the bench link
type Config struct {
	Broker      string `yaml:"broker" json:"broker"`           // Broker URL, e.g. tcp://localhost:1883
	ClientID    string `yaml:"clientID" json:"clientID"`       // MQTT client identifier
	TopicPrefix string `yaml:"topicPrefix" json:"topicPrefix"` // Frames go to <topicPrefix>/<peer>
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("mqtt.Config: broker is required")
	}
	if c.TopicPrefix == "" {
		return fmt.Errorf("mqtt.Config: topic prefix is required")
	}
	return nil
}

// Client is the part of the paho client the radio uses
type Client interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// WithClientFactory replaces the paho client constructor
func WithClientFactory(factory func(*paho.ClientOptions) Client) func(r *Radio) {
	return func(r *Radio) {
		r.newClient = factory
	}
}

func newPahoClient(opts *paho.ClientOptions) Client {
	return paho.NewClient(opts)
}

// Radio publishes every frame as a single MQTT message. It stands in for a
// real radio when the pipeline runs on a bench against a broker.
type Radio struct {
	config    *Config
	newClient func(*paho.ClientOptions) Client

	mu     sync.Mutex
	client Client
}

func New(config *Config, options ...func(r *Radio)) (*Radio, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	r := Radio{
		config:    config,
		newClient: newPahoClient,
	}

	for _, option := range options {
		option(&r)
	}

	return &r, nil
}

// Topic returns the topic frames addressed to the peer are published to
func (r *Radio) Topic(peer link.Address) string {
	return fmt.Sprintf("%s/%s", r.config.TopicPrefix, peer)
}

func (r *Radio) Open() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		return nil
	}

	opts := paho.NewClientOptions().
		AddBroker(r.config.Broker).
		SetClientID(r.config.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	client := r.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		client.Disconnect(0)
		return fmt.Errorf("%w: %s", ErrConnectTimeout, r.config.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connecting to %s: %w", r.config.Broker, err)
	}

	r.client = client
	return nil
}

func (r *Radio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		r.client.Disconnect(disconnectQuiesce)
		r.client = nil
	}
	return nil
}

// SendFrame publishes the payload with QoS 0, not retained
func (r *Radio) SendFrame(ctx context.Context, peer link.Address, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	client := r.client
	r.mu.Unlock()

	if client == nil {
		return ErrNotOpen
	}

	token := client.Publish(r.Topic(peer), 0, false, payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt: publishing to %s: %w", r.Topic(peer), err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
