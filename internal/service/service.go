package service

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/SamirCosta/RedeSocial/pkg/models"
	"github.com/SamirCosta/RedeSocial/pkg/network"
)

// Service port offsets from the base service port.
const (
	PortOffsetPosts    = 0
	PortOffsetMessages = 100
	PortOffsetFollow   = 200
	PortOffsetUsers    = 300
)

// EventQueue receives one replication event per committed local mutation.
type EventQueue interface {
	Enqueue(event models.ReplicationEvent)
}

// EventSink receives every mutation committed on this node for the live
// feed and the broker bridge. Implementations must not block.
type EventSink interface {
	Publish(event models.FeedEvent)
}

// ActionHandler is the capability set of one service: the actions it
// answers and the dispatch that answers them.
type ActionHandler interface {
	Handles() []string
	Dispatch(action string, payload []byte) map[string]any
}

// Worker owns one reply port and routes each request to its handler by
// action name. Handler panics are converted to error replies; the worker
// never takes the process down.
type Worker struct {
	name    string
	address string
	port    int
	handler ActionHandler
	actions map[string]bool
	server  *network.Server
}

func NewWorker(name, address string, port int, handler ActionHandler) *Worker {
	actions := make(map[string]bool)
	for _, action := range handler.Handles() {
		actions[action] = true
	}
	return &Worker{
		name:    name,
		address: address,
		port:    port,
		handler: handler,
		actions: actions,
	}
}

// Start binds the service port and begins answering requests.
func (w *Worker) Start() error {
	addr := fmt.Sprintf("%s:%d", w.address, w.port)
	server := network.NewServer(w.name, addr, network.HandlerFunc(w.handleRequest))
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start %s service: %w", w.name, err)
	}
	w.server = server
	return nil
}

// Stop closes the service port.
func (w *Worker) Stop() {
	if w.server != nil {
		if err := w.server.Stop(); err != nil {
			log.Printf("[%s] error stopping service: %v", w.name, err)
		}
	}
	log.Printf("[%s] service stopped", w.name)
}

// Port returns the bound port. Only valid after Start.
func (w *Worker) Port() int { return w.server.Port() }

func (w *Worker) handleRequest(data []byte) []byte {
	reply := w.process(data)
	out, err := json.Marshal(reply)
	if err != nil {
		log.Printf("[%s] failed to marshal reply: %v", w.name, err)
		out, _ = json.Marshal(models.ErrorReply("internal error"))
	}
	return out
}

func (w *Worker) process(data []byte) (reply map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[%s] panic while handling request: %v", w.name, r)
			reply = models.ErrorReply("internal error: %v", r)
		}
	}()

	var header models.Header
	if err := json.Unmarshal(data, &header); err != nil {
		return models.ErrorReply("malformed request: %v", err)
	}
	if !w.actions[header.Action] {
		return models.ErrorReply("Unknown action: %s", header.Action)
	}

	return w.handler.Dispatch(header.Action, data)
}

// newEvent builds a replication event, stamping the origin wall time.
func newEvent(eventType, entityID string, timestamp int64, data any) models.ReplicationEvent {
	raw, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Service] failed to encode event payload: %v", err)
	}
	return models.ReplicationEvent{
		Type:      eventType,
		EntityID:  entityID,
		Timestamp: timestamp,
		Data:      raw,
	}
}

// commit pushes one committed mutation to the queue and the feed sink.
func commit(queue EventQueue, sink EventSink, event models.ReplicationEvent) {
	if queue != nil {
		queue.Enqueue(event)
	}
	if sink != nil {
		sink.Publish(models.FeedEvent{
			Event:     event.Type,
			EntityID:  event.EntityID,
			Timestamp: event.Timestamp,
			Data:      event.Data,
		})
	}
}
