package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/eddielth/edge-nodes/logger"
)

// Client is a Session over an MQTT 3.1.1 broker connection.
//
// Each Open creates a fresh connection, so one Client serves both the
// transient pattern (Open, Publish, Close every cycle) and the persistent one
// (Open once, Subscribe, Receive until failure).
type Client struct {
	opts      Options
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client
	log       logger.Entry

	mu     sync.Mutex
	client pahomqtt.Client
	inbox  chan Message
	lost   chan error
	done   chan struct{}
}

// NewClient returns a closed session for opts.
func NewClient(opts Options) (*Client, error) {
	if opts.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("MQTT client id cannot be empty")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	return &Client{
		opts:      opts,
		newClient: pahomqtt.NewClient,
		log:       logger.Named("mqtt"),
	}, nil
}

// Open connects to the broker. It is a no-op on an open session.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	inbox := make(chan Message, 1)
	lost := make(chan error, 1)
	done := make(chan struct{})

	opts := buildClientOptions(c.opts)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.log.Error("MQTT connection lost: %v", err)
		select {
		case lost <- err:
		default:
		}
	})

	client := c.newClient(opts)
	token := client.Connect()
	if err := wait(ctx, token, c.opts.ConnectTimeout); err != nil {
		// Stops a connect attempt that is still in flight.
		client.Disconnect(0)
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, c.opts.BrokerURL, err)
	}

	c.client = client
	c.inbox = inbox
	c.lost = lost
	c.done = done

	c.log.Info("connected to MQTT broker %s as %s", c.opts.BrokerURL, c.opts.ClientID)
	return nil
}

// Publish sends payload to topic with the configured QoS.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	client, err := c.current()
	if err != nil {
		return err
	}

	token := client.Publish(topic, c.opts.QoS, false, payload)
	if err := wait(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}

	c.log.Debug("published %d bytes to %s", len(payload), topic)
	return nil
}

// Subscribe routes messages on topic into Receive.
func (c *Client) Subscribe(ctx context.Context, topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	client, inbox, done := c.client, c.inbox, c.done
	c.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	token := client.Subscribe(topic, c.opts.QoS, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		m := Message{Topic: msg.Topic(), Payload: append([]byte(nil), msg.Payload()...)}
		select {
		case inbox <- m:
		case <-done:
		}
	})
	if err := wait(ctx, token, defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.log.Info("subscribed to topic: %s", topic)
	return nil
}

// Receive blocks until a message arrives, the connection drops, the session
// is closed or ctx ends.
func (c *Client) Receive(ctx context.Context) (Message, error) {
	c.mu.Lock()
	client, inbox, lost, done := c.client, c.inbox, c.lost, c.done
	c.mu.Unlock()
	if client == nil {
		return Message{}, ErrNotConnected
	}

	select {
	case msg := <-inbox:
		return msg, nil
	case err := <-lost:
		return Message{}, fmt.Errorf("%w: %w", ErrSessionLost, err)
	case <-done:
		return Message{}, ErrNotConnected
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// Close disconnects from the broker. Closing a closed session is a no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}

	close(c.done)
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.client = nil
	c.inbox = nil
	c.lost = nil

	c.log.Info("disconnected from MQTT broker")
	return nil
}

func (c *Client) current() (pahomqtt.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

// wait blocks on token until it completes, timeout elapses or ctx ends.
func wait(ctx context.Context, token pahomqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-timer.C:
		return fmt.Errorf("timed out after %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
