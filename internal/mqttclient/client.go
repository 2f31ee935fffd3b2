package mqttclient

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Options configures the broker connection.
type Options struct {
	BrokerURL      string
	ClientID       string
	ConnectTimeout time.Duration
}

// Client is a publish-only wrapper over the paho client. The bridge is the
// single producer; nothing in the node subscribes.
type Client struct {
	raw mqtt.Client
}

func New(opts Options) (*Client, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(opts.BrokerURL)
	o.SetClientID(opts.ClientID)
	o.SetConnectTimeout(opts.ConnectTimeout)
	o.SetAutoReconnect(true)
	c := mqtt.NewClient(o)

	token := c.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("timed out connecting to broker %s", opts.BrokerURL)
	}
	if token.Error() != nil {
		return nil, token.Error()
	}
	return &Client{raw: c}, nil
}

// Publish sends one payload and waits for the handoff to complete.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	token := c.raw.Publish(topic, qos, retained, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker, allowing in-flight work to finish.
func (c *Client) Close() {
	c.raw.Disconnect(250)
}
