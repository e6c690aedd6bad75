package network

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTOptions configures the MQTT transport.
type MQTTOptions struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration
	Logger   *slog.Logger
}

// MQTTPubSub maps dotted channel topics onto slash-separated MQTT topics.
type MQTTPubSub struct {
	client  mqtt.Client
	qos     byte
	timeout time.Duration
	log     *slog.Logger

	mu     sync.Mutex
	closed bool
}

func NewMQTTPubSub(opts MQTTOptions) (*MQTTPubSub, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker address required")
	}
	if opts.QoS > 2 {
		return nil, fmt.Errorf("mqtt: invalid qos %d", opts.QoS)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("mqtt connection lost", "err", err)
		})
	if opts.Username != "" {
		co.SetUsername(opts.Username)
		co.SetPassword(opts.Password)
	}
	c := mqtt.NewClient(co)
	token := c.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	logger.Info("mqtt transport ready", "broker", opts.Broker)
	return &MQTTPubSub{client: c, qos: opts.QoS, timeout: opts.Timeout, log: logger}, nil
}

func mqttTopic(topic string) string {
	return strings.ReplaceAll(topic, ".", "/")
}

func (p *MQTTPubSub) Publish(topic string, payload []byte) error {
	if topic == "" {
		return ErrEmptyTopic
	}
	if p.isClosed() {
		return ErrClosed
	}
	token := p.client.Publish(mqttTopic(topic), p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqtt publish %s: %w", topic, errPublishTimeout)
	}
	return token.Error()
}

func (p *MQTTPubSub) Subscribe(topic string) (<-chan Message, func(), error) {
	if topic == "" {
		return nil, nil, ErrEmptyTopic
	}
	if p.isClosed() {
		return nil, nil, ErrClosed
	}
	out := make(chan Message, 64)
	var (
		mu   sync.Mutex
		done bool
	)
	handler := func(_ mqtt.Client, m mqtt.Message) {
		mu.Lock()
		defer mu.Unlock()
		if done {
			return
		}
		select {
		case out <- Message{Topic: topic, Payload: append([]byte(nil), m.Payload()...)}:
		default:
		}
	}
	token := p.client.Subscribe(mqttTopic(topic), p.qos, handler)
	if !token.WaitTimeout(p.timeout) {
		return nil, nil, fmt.Errorf("mqtt subscribe %s: %w", topic, errPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}

	cancel := func() {
		if !p.isClosed() {
			p.client.Unsubscribe(mqttTopic(topic)).WaitTimeout(p.timeout)
		}
		mu.Lock()
		defer mu.Unlock()
		if !done {
			done = true
			close(out)
		}
	}
	return out, cancel, nil
}

func (p *MQTTPubSub) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.client.Disconnect(250)
	return nil
}

func (p *MQTTPubSub) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// errPublishTimeout reports itself as temporary so reliable writers retry it.
var errPublishTimeout = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "operation timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
