package mqtt

import (
	"encoding/json"
	"log"

	"github.com/SamirCosta/RedeSocial/internal/mqttclient"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// Bridge mirrors every committed event to an external broker so consumers
// outside the cluster can follow the write stream. Publishing is
// best-effort and never blocks the caller.
type Bridge struct {
	client      *mqttclient.Client
	topicPrefix string
}

func NewBridge(brokerURL, clientID, topicPrefix string) (*Bridge, error) {
	client, err := mqttclient.New(mqttclient.Options{
		BrokerURL: brokerURL,
		ClientID:  clientID,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Bridge] connected to broker %s", brokerURL)
	return &Bridge{client: client, topicPrefix: topicPrefix}, nil
}

// Publish sends one event to <prefix>/events/<TYPE>.
func (b *Bridge) Publish(event models.FeedEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("[Bridge] failed to encode event: %v", err)
		return
	}

	topic := b.topicPrefix + "/events/" + event.Event
	go func() {
		if err := b.client.Publish(topic, payload, 0, false); err != nil {
			log.Printf("[Bridge] failed to publish to %s: %v", topic, err)
		}
	}()
}

func (b *Bridge) Close() {
	b.client.Close()
}
