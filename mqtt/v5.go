package mqtt

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/eddielth/edge-nodes/logger"
)

// V5Publisher is a publish-only transport for MQTT 5 brokers, used by the
// telemetry endpoint's transient open/publish/close pattern.
type V5Publisher struct {
	opts Options
	log  logger.Entry

	mu     sync.Mutex
	cm     *autopaho.ConnectionManager
	cancel context.CancelFunc
}

// NewV5Publisher returns a closed publisher for opts.
func NewV5Publisher(opts Options) (*V5Publisher, error) {
	if opts.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker address cannot be empty")
	}
	if opts.ClientID == "" {
		return nil, fmt.Errorf("MQTT client id cannot be empty")
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	return &V5Publisher{opts: opts, log: logger.Named("mqtt5")}, nil
}

// Open connects and waits for the broker's CONNACK. autopaho keeps retrying
// in the background, so a connection that is not up within ConnectTimeout is
// torn down and reported as a failure.
func (p *V5Publisher) Open(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cm != nil {
		return nil
	}

	brokerURL, err := url.Parse(p.opts.BrokerURL)
	if err != nil {
		return fmt.Errorf("%w: parse broker URL: %w", ErrConnectionFailed, err)
	}

	connCtx, cancel := context.WithCancel(context.Background())
	cfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       uint16(defaultKeepAlive.Seconds()),
		ConnectUsername: p.opts.Username,
		ConnectPassword: []byte(p.opts.Password),
		OnConnectionUp: func(_ *autopaho.ConnectionManager, _ *paho.Connack) {
			p.log.Info("connected to MQTT broker %s as %s", p.opts.BrokerURL, p.opts.ClientID)
		},
		OnConnectError: func(err error) {
			p.log.Warn("MQTT connection error: %v", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.opts.ClientID,
		},
	}

	cm, err := autopaho.NewConnection(connCtx, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	awaitCtx, awaitCancel := context.WithTimeout(ctx, p.opts.ConnectTimeout)
	defer awaitCancel()
	if err := cm.AwaitConnection(awaitCtx); err != nil {
		cancel()
		return fmt.Errorf("%w: %s: %w", ErrConnectionFailed, p.opts.BrokerURL, err)
	}

	p.cm = cm
	p.cancel = cancel
	return nil
}

// Publish sends payload to topic.
func (p *V5Publisher) Publish(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	p.mu.Lock()
	cm := p.cm
	p.mu.Unlock()
	if cm == nil {
		return ErrNotConnected
	}

	pubCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	if _, err := cm.Publish(pubCtx, &paho.Publish{
		Topic:   topic,
		QoS:     p.opts.QoS,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// Close disconnects and stops the connection manager.
func (p *V5Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cm == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
	defer cancel()
	err := p.cm.Disconnect(ctx)
	p.cancel()
	p.cm = nil
	p.cancel = nil

	if err != nil {
		return fmt.Errorf("mqtt disconnect: %w", err)
	}
	p.log.Info("disconnected from MQTT broker")
	return nil
}
