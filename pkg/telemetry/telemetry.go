// Package telemetry publishes stream status and control-plane events to
// an MQTT broker.
//
// Topics, under a configurable prefix (default "skycam"):
//
//	<prefix>/status         retained; "online" / "offline" (LWT)
//	<prefix>/stream/status  retained; "active" / "stopped"
//	<prefix>/events         one message per control operation
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-skycam/internal/log"
	"github.com/teslashibe/go-skycam/pkg/control"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	defaultTopicPrefix       = "skycam"
	defaultClientID          = "skycam"

	// eventQueue bounds control events waiting for the broker.
	eventQueue = 64
)

// Config configures the broker connection.
type Config struct {
	Broker      string // e.g. tcp://127.0.0.1:1883
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
}

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

func (t Topics) Status() string       { return t.Prefix + "/status" }
func (t Topics) StreamStatus() string { return t.Prefix + "/stream/status" }
func (t Topics) Events() string       { return t.Prefix + "/events" }

// Publisher is a connected MQTT publisher. It is safe for concurrent use.
type Publisher struct {
	client pahomqtt.Client
	cfg    Config
	topics Topics
	logger *slog.Logger

	mu        sync.RWMutex
	connected bool

	events    chan control.Event
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = defaultClientID
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = defaultTopicPrefix
	}
	if c.QoS > 2 {
		c.QoS = 1
	}
}

// Connect dials the broker, registers the offline LWT and announces
// the gateway online.
func Connect(cfg Config, logger *slog.Logger) (*Publisher, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.Component("telemetry")
	}
	topics := Topics{Prefix: cfg.TopicPrefix}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(topics.Status(), presencePayload("offline", cfg.ClientID, "unexpected_disconnect"), cfg.QoS, true)

	p := &Publisher{cfg: cfg, topics: topics, logger: logger}
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connected", "broker", cfg.Broker)
		p.announce("online", "")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost", "error", err)
	})

	p.client = pahomqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	p.setConnected(true)
	p.start()
	return p, nil
}

// newPublisher wraps an existing client. Used by tests.
func newPublisher(client pahomqtt.Client, cfg Config, logger *slog.Logger) *Publisher {
	cfg.applyDefaults()
	p := &Publisher{
		client:    client,
		cfg:       cfg,
		topics:    Topics{Prefix: cfg.TopicPrefix},
		logger:    logger,
		connected: true,
	}
	p.start()
	return p
}

// start launches the event sender.
func (p *Publisher) start() {
	p.events = make(chan control.Event, eventQueue)
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.sendLoop()
}

// sendLoop publishes queued events in order. On stop it sends what is
// already queued and returns.
func (p *Publisher) sendLoop() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.events:
			p.sendEvent(ev)
		case <-p.stop:
			for {
				select {
				case ev := <-p.events:
					p.sendEvent(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) sendEvent(ev control.Event) {
	if err := p.PublishEvent(ev); err != nil {
		p.logger.Warn("failed to publish control event", "id", ev.ID, "error", err)
	}
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}

// IsConnected reports the last known connection state.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client.IsConnected()
}

func (p *Publisher) publish(topic string, payload []byte, retained bool) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}
	token := p.client.Publish(topic, p.cfg.QoS, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

type statusPayload struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// PublishStreamStatus publishes the retained stream status.
func (p *Publisher) PublishStreamStatus(status string) error {
	b, err := json.Marshal(statusPayload{Status: status, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return err
	}
	return p.publish(p.topics.StreamStatus(), b, true)
}

// PublishEvent publishes one control-plane event.
func (p *Publisher) PublishEvent(ev control.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return p.publish(p.topics.Events(), b, false)
}

// HandleEvent is a control.Controller event handler. It queues ev and
// returns at once; the event is dropped with a warning when the queue is
// full or the publisher is closed.
func (p *Publisher) HandleEvent(ev control.Event) {
	select {
	case <-p.stop:
		p.logger.Warn("publisher closed, dropping control event", "id", ev.ID)
		return
	default:
	}
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("event queue full, dropping control event", "id", ev.ID)
	}
}

// HandleStreamStatus is a liveness watch callback. Failures are logged.
func (p *Publisher) HandleStreamStatus(status string) {
	if err := p.PublishStreamStatus(status); err != nil {
		p.logger.Warn("failed to publish stream status", "status", status, "error", err)
	}
}

func (p *Publisher) announce(status, reason string) {
	payload := presencePayload(status, p.cfg.ClientID, reason)
	if err := p.publish(p.topics.Status(), []byte(payload), true); err != nil {
		p.logger.Warn("failed to publish presence", "status", status, "error", err)
	}
}

func presencePayload(status, clientID, reason string) string {
	m := map[string]string{
		"status":    status,
		"client_id": clientID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if reason != "" {
		m["reason"] = reason
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// Close sends the queued events, announces a graceful shutdown and
// disconnects. Later calls do nothing.
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		close(p.stop)
		<-p.done
		if p.IsConnected() {
			p.announce("offline", "graceful_shutdown")
		}
		p.client.Disconnect(defaultDisconnectQuiesce)
		p.setConnected(false)
	})
	return nil
}
