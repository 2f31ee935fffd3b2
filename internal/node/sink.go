package node

import (
	"sync"

	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// eventSink is any consumer of committed mutations.
type eventSink interface {
	Publish(event models.FeedEvent)
}

// multiSink fans committed events out to every attached consumer. Sinks
// can attach late (the broker bridge connects in the background).
type multiSink struct {
	mu    sync.RWMutex
	sinks []eventSink
}

func newMultiSink() *multiSink {
	return &multiSink{}
}

func (m *multiSink) Add(sink eventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, sink)
}

func (m *multiSink) Publish(event models.FeedEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, sink := range m.sinks {
		sink.Publish(event)
	}
}
