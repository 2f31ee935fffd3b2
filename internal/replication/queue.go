package replication

import (
	"log"
	"sync"
	"time"

	"github.com/SamirCosta/RedeSocial/internal/cluster"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

const emptyPollSleep = 50 * time.Millisecond

// Queue is the per-node outbound replication FIFO. The service dispatcher
// enqueues one event per committed mutation; a single drainer fans each
// event out to every active data peer, at-least-once, best effort. A
// failed send is not re-enqueued and the queue does not survive restarts.
type Queue struct {
	selfID    string
	peers     *cluster.Peers
	messenger cluster.Messenger

	mu      sync.Mutex
	pending []models.ReplicationEvent

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewQueue(selfID string, peers *cluster.Peers, messenger cluster.Messenger) *Queue {
	return &Queue{
		selfID:    selfID,
		peers:     peers,
		messenger: messenger,
		stopChan:  make(chan struct{}),
	}
}

// Enqueue appends an event for fan-out. Never blocks the caller.
func (q *Queue) Enqueue(event models.ReplicationEvent) {
	q.mu.Lock()
	q.pending = append(q.pending, event)
	q.mu.Unlock()
	log.Printf("[Replication] event queued: %s %s", event.Type, event.EntityID)
}

// Start launches the single drainer worker.
func (q *Queue) Start() {
	log.Printf("[Replication] starting replication queue")
	q.wg.Add(1)
	go q.drain()
}

// Stop ends the drainer. Events still queued are discarded.
func (q *Queue) Stop() {
	close(q.stopChan)
	q.wg.Wait()
	log.Printf("[Replication] replication queue stopped")
}

// Len reports the number of events waiting for fan-out.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) drain() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopChan:
			return
		default:
		}

		event, ok := q.poll()
		if !ok {
			select {
			case <-time.After(emptyPollSleep):
			case <-q.stopChan:
				return
			}
			continue
		}

		q.fanOut(event)
	}
}

func (q *Queue) poll() (models.ReplicationEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return models.ReplicationEvent{}, false
	}
	event := q.pending[0]
	q.pending = q.pending[1:]
	return event, true
}

// fanOut sends one DATA_REPLICATION to every active data peer. Balancers
// never receive replication traffic.
func (q *Queue) fanOut(event models.ReplicationEvent) {
	msg := map[string]any{
		"action":         models.ActionDataReplication,
		"sourceServerId": q.selfID,
		"eventType":      event.Type,
		"entityId":       event.EntityID,
		"timestamp":      event.Timestamp,
		"data":           event.Data,
	}

	targets := q.peers.ActiveDataIDs()
	log.Printf("[Replication] replicating %s to %d peers", event.Type, len(targets))
	for _, id := range targets {
		q.messenger.Send(id, msg)
	}
}
