package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/floor-mixer/internal/logger"
	"github.com/sweeney/floor-mixer/internal/logic"
)

// DefaultBufferSize is how many messages are held while the broker is unreachable.
const DefaultBufferSize = 256

// DefaultQueueSize is how many messages may wait for the writer goroutine
// while connected.
const DefaultQueueSize = 64

// writeTimeout bounds how long the writer goroutine waits on one message.
const writeTimeout = 5 * time.Second

// ErrQueueFull is returned when a message is dropped because the broker is
// not keeping up.
var ErrQueueFull = errors.New("publish queue full")

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int
	QueueSize  int

	// Client, if set, is an already connected client used instead of
	// dialing Broker.
	Client paho.Client

	// Responder, if set, is subscribed to the setpoint and request topics.
	Responder Responder

	// OnConnectionChange, if set, is called from the MQTT client's goroutines
	// whenever the connection goes up or down.
	OnConnectionChange func(connected bool)

	Log *logger.Logger
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed in order on reconnect.
// While connected, messages are handed to a single writer goroutine through a
// bounded queue; when the queue is full they are dropped. The publish methods
// never wait for the broker.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	responder Responder
	onChange  func(bool)
	log       *logger.Logger

	queue     chan outbound
	done      chan struct{}
	closeOnce sync.Once

	mu            sync.Mutex
	connected     bool
	everConnected bool
	backlog       *backlog
}

// NewRealPublisher creates a publisher and starts connecting to the broker.
// The initial connection is retried in the background; until it succeeds
// messages are buffered.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.Client != nil {
		p := newPublisher(o)
		p.client = o.Client
		go p.run()
		if o.Client.IsConnected() {
			p.onConnect(o.Client)
		}
		return p, nil
	}
	if o.Broker == "" {
		return nil, fmt.Errorf("no broker configured")
	}
	p := newPublisher(o)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "connection lost"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWriteTimeout(writeTimeout).
		SetBinaryWill(o.Topics.System, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	go p.run()
	token := p.client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		p.Close()
		return nil, fmt.Errorf("connect to broker: %w", token.Error())
	}

	return p, nil
}

func newPublisher(o Options) *RealPublisher {
	size := o.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	depth := o.QueueSize
	if depth <= 0 {
		depth = DefaultQueueSize
	}
	log := o.Log
	if log == nil {
		log = logger.Nop()
	}
	return &RealPublisher{
		topics:    o.Topics,
		responder: o.Responder,
		onChange:  o.OnConnectionChange,
		log:       log,
		queue:     make(chan outbound, depth),
		done:      make(chan struct{}),
		backlog:   newBacklog(size),
	}
}

// Publish sends a control cycle to the MQTT broker.
func (p *RealPublisher) Publish(d logic.Decision) error {
	payload, err := FormatPayload(d)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.send(outbound{topic: p.topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once): lifecycle events matter more than cycles
	return p.send(outbound{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// PublishTelemetry sends a telemetry frame, or drops it while offline.
func (p *RealPublisher) PublishTelemetry(frame []byte) error {
	if !p.IsConnected() {
		return fmt.Errorf("publish telemetry: not connected")
	}
	if !p.enqueue(outbound{topic: p.topics.Telemetry, payload: frame}) {
		return fmt.Errorf("publish telemetry: %w", ErrQueueFull)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close stops the writer goroutine and disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// send queues msg for the writer, or buffers it for the next connection.
func (p *RealPublisher) send(msg outbound) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		msg.queued = time.Now()
		if p.backlog.add(msg) {
			p.log.Warnw("backlog full, dropping oldest", "limit", p.backlog.limit)
		}
		return nil
	}
	if !p.enqueue(msg) {
		return fmt.Errorf("publish %s: %w", msg.topic, ErrQueueFull)
	}
	return nil
}

func (p *RealPublisher) enqueue(msg outbound) bool {
	select {
	case p.queue <- msg:
		return true
	default:
		return false
	}
}

// run writes queued messages one at a time until Close.
func (p *RealPublisher) run() {
	for {
		select {
		case msg := <-p.queue:
			p.write(msg)
		case <-p.done:
			return
		}
	}
}

func (p *RealPublisher) write(msg outbound) {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(writeTimeout) {
		p.log.Warnw("publish timeout", "topic", msg.topic)
		return
	}
	if err := token.Error(); err != nil {
		p.log.Warnw("publish failed", "topic", msg.topic, "err", err)
	}
}

func (p *RealPublisher) onConnect(c paho.Client) {
	if p.responder != nil {
		for topic, handler := range map[string]paho.MessageHandler{
			p.topics.Setpoint: p.handleSetpoint,
			p.topics.Request:  p.handleRequest,
		} {
			token := c.Subscribe(topic, 1, handler)
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				p.log.Errorw("subscribe failed", "topic", topic, "err", token.Error())
			}
		}
	}

	// Messages published during the replay still land in the backlog, so
	// keep draining it until it is empty before going live.
	var replayed, dropped int
	var reconnect bool
	for {
		p.mu.Lock()
		dropped += p.backlog.dropped
		pending := p.backlog.take()
		if len(pending) == 0 {
			reconnect = p.everConnected
			p.connected = true
			p.everConnected = true
			p.mu.Unlock()
			break
		}
		p.mu.Unlock()

		for _, msg := range pending {
			select {
			case p.queue <- msg:
			case <-p.done:
				return
			}
		}
		replayed += len(pending)
	}

	p.log.Infow("connected", "replayed", replayed, "dropped", dropped, "reconnect", reconnect)
	if reconnect {
		p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	}
	if p.onChange != nil {
		p.onChange(true)
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()

	p.log.Warnw("connection lost", "err", err)
	if p.onChange != nil {
		p.onChange(false)
	}
}

func (p *RealPublisher) handleSetpoint(_ paho.Client, msg paho.Message) {
	p.responder.Receive(msg.Payload())
}

func (p *RealPublisher) handleRequest(_ paho.Client, _ paho.Message) {
	if err := p.PublishTelemetry(p.responder.Request()); err != nil {
		p.log.Debugw("telemetry reply dropped", "err", err)
	}
}
