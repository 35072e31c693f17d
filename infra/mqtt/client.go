// Package mqtt pushes station events to an MQTT broker so operator
// dashboards and user apps can follow queue and session changes live.
package mqtt

import (
	"crypto/tls"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher is the broker surface the notifier needs. *PahoClient satisfies
// it; tests substitute a recording fake.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte) error
	Close()
}

// PahoClient wraps the paho client behind the Publisher interface.
type PahoClient struct {
	client mqtt.Client
}

// Connect dials the broker and waits for the session to be established.
func Connect(broker, clientID string, tlsConfig *tls.Config, optsFunc func(*mqtt.ClientOptions)) (*PahoClient, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetTLSConfig(tlsConfig).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	if optsFunc != nil {
		optsFunc(opts)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &PahoClient{client: client}, nil
}

func (c *PahoClient) Publish(topic string, payload []byte, qos byte) error {
	token := c.client.Publish(topic, qos, false, payload)
	token.Wait()
	return token.Error()
}

func (c *PahoClient) Close() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
