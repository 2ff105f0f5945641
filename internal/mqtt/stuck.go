package mqtt

import (
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// StuckClient is a connected paho.Client whose Publish never returns until
// Release is called, like a TCP connection the broker stopped reading. Only
// the methods a RealPublisher uses are implemented.
type StuckClient struct {
	paho.Client

	mu        sync.Mutex
	published int
	release   chan struct{}
	once      sync.Once
}

// NewStuckClient creates a StuckClient.
func NewStuckClient() *StuckClient {
	return &StuckClient{release: make(chan struct{})}
}

// IsConnected always reports true.
func (c *StuckClient) IsConnected() bool { return true }

// Publish blocks until Release.
func (c *StuckClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	c.published++
	c.mu.Unlock()
	<-c.release
	return doneToken{}
}

// Subscribe succeeds immediately.
func (c *StuckClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	return doneToken{}
}

// Disconnect does nothing.
func (c *StuckClient) Disconnect(quiesce uint) {}

// Published returns how many Publish calls were entered.
func (c *StuckClient) Published() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published
}

// Release unblocks every pending and future Publish.
func (c *StuckClient) Release() {
	c.once.Do(func() { close(c.release) })
}

type doneToken struct{ err error }

var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{}          { return closedDone }
func (t doneToken) Error() error                   { return t.err }
