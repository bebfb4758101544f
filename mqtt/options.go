package mqtt

import (
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/eddielth/edge-nodes/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	// defaultDisconnectQuiesce is in milliseconds.
	defaultDisconnectQuiesce = 250
	defaultKeepAlive         = 30 * time.Second
)

// Options is the broker endpoint one session connects to.
type Options struct {
	BrokerURL      string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	Protocol       int
	ConnectTimeout time.Duration
}

// OptionsFromConfig builds session options for clientID. An empty clientID
// gets a random one so co-located devices never collide on the broker.
func OptionsFromConfig(cfg config.MQTTConfig, clientID, role string) (Options, error) {
	if cfg.Broker == "" {
		return Options{}, fmt.Errorf("MQTT broker address cannot be empty")
	}
	if clientID == "" {
		clientID = fmt.Sprintf("edge-%s-%s", role, uuid.NewString()[:8])
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return Options{
		BrokerURL:      cfg.URL(),
		ClientID:       clientID,
		Username:       cfg.Username,
		Password:       cfg.Password,
		QoS:            cfg.QoS,
		Protocol:       cfg.Protocol,
		ConnectTimeout: timeout,
	}, nil
}

// buildClientOptions maps Options onto paho. Reconnection is disabled: a lost
// session must surface to the loop that owns it.
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.BrokerURL)
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.Protocol == 3 || o.Protocol == 4 {
		opts.SetProtocolVersion(uint(o.Protocol))
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetOrderMatters(true)

	return opts
}
