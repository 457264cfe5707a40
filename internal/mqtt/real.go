package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	bufferCapacity = 256
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	log    zerolog.Logger

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool // true once the first connection has been made
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID string, log zerolog.Logger) (*RealPublisher, error) {
	log = log.With().Str("subsystem", "mqtt").Str("broker", broker).Logger()
	p := newPublisher(nil, log)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newPublisher(client paho.Client, log zerolog.Logger) *RealPublisher {
	return &RealPublisher{
		client: client,
		log:    log,
		buf:    newRingBuffer(bufferCapacity, log),
	}
}

// Publish sends a key event. Key events are QoS 0 and not awaited.
func (p *RealPublisher) Publish(event KeyEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicEvents, payload: payload}, false)
}

// PublishCalibration sends the retained calibration report.
func (p *RealPublisher) PublishCalibration(report CalibrationReport) error {
	payload, err := FormatCalibrationPayload(report)
	if err != nil {
		return fmt.Errorf("format calibration payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicCalibration, payload: payload, qos: 1, retained: true}, true)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): shutdown events must not be lost
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}, true)
}

func (p *RealPublisher) publish(msg bufferedMsg, wait bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		p.buf.push(msg)
		return nil
	}
	return p.send(msg, wait)
}

// send must be called with p.mu held. Failed messages are buffered.
func (p *RealPublisher) send(msg bufferedMsg, wait bool) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !wait {
		return nil
	}
	if !token.WaitTimeout(publishTimeout) {
		p.buf.push(msg)
		return fmt.Errorf("publish %s timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		p.buf.push(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	defer p.mu.Unlock()

	reconnect := p.connected
	p.connected = true

	pending := p.buf.drainAll()
	dropped := p.buf.dropped
	p.buf.dropped = 0
	if len(pending) > 0 || dropped > 0 {
		p.log.Info().Int("replayed", len(pending)).Int("dropped", dropped).Msg("replaying buffered messages")
	}
	for _, msg := range pending {
		if err := p.send(msg, true); err != nil {
			p.log.Warn().Err(err).Msg("replay failed")
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED", Retained: true})
		if err := p.send(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: true}, true); err != nil {
			p.log.Warn().Err(err).Msg("reconnect notice failed")
		}
	}
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// IsConnected reports whether the client currently holds a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
