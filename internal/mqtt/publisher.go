// Package mqtt publishes moves read from the board to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/corentings/chess/v2"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/chaz8081/ecbridge/internal/config"
	"github.com/chaz8081/ecbridge/internal/moves"
)

const publishTimeout = 5 * time.Second

// MoveEvent is the JSON payload published for each move.
type MoveEvent struct {
	Move      string    `json:"move"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Promotion string    `json:"promotion,omitempty"`
	Castle    bool      `json:"castle,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMoveEvent describes m.
func NewMoveEvent(m moves.Move, at time.Time) MoveEvent {
	ev := MoveEvent{
		Move:      m.String(),
		From:      m.From.String(),
		To:        m.To.String(),
		Castle:    m.Castle,
		Timestamp: at,
	}
	if m.Promotion != chess.NoPieceType {
		ev.Promotion = m.Promotion.String()
	}
	return ev
}

// Publisher sends MoveEvents to one topic.
type Publisher struct {
	client  mqtt.Client
	publish func(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	topic   string
	broker  string

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPublisher creates a publisher for cfg. It does not connect.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	p := &Publisher{
		topic:  cfg.Topic,
		broker: fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(p.broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		p.setConnected(true)
		slog.Info("[MQTT] connected", "broker", p.broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		p.setConnected(false)
		slog.Warn("[MQTT] connection lost", "error", err)
	})

	p.client = mqtt.NewClient(opts)
	p.publish = p.client.Publish
	return p
}

// Connect waits for the first broker connection. Paho keeps retrying in
// the background, so returning early on ctx does not stop the attempt.
func (p *Publisher) Connect(ctx context.Context) error {
	select {
	case <-p.stopCh:
		return fmt.Errorf("mqtt: publisher stopped")
	default:
	}
	if p.IsConnected() {
		return nil
	}

	token := p.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt: connect %s: %w", p.broker, err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			return fmt.Errorf("mqtt: publisher stopped")
		default:
		}
	}
}

// PublishMove publishes m. Moves are dropped with an error while the
// broker is unreachable.
func (p *Publisher) PublishMove(m moves.Move) error {
	if !p.IsConnected() {
		return fmt.Errorf("mqtt: not connected")
	}

	data, err := json.Marshal(NewMoveEvent(m, time.Now()))
	if err != nil {
		return fmt.Errorf("mqtt: marshal move: %w", err)
	}

	token := p.publish(p.topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish timeout for topic %s", p.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish move: %w", err)
	}
	slog.Debug("[MQTT] published move", "topic", p.topic, "move", m)
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected
}

// Disconnect stops the publisher. Safe to call more than once.
func (p *Publisher) Disconnect() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	if p.client != nil {
		p.client.Disconnect(250)
	}
	p.setConnected(false)
	slog.Info("[MQTT] disconnected")
}

func (p *Publisher) setConnected(v bool) {
	p.mu.Lock()
	p.connected = v
	p.mu.Unlock()
}
