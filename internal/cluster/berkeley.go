package cluster

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/SamirCosta/RedeSocial/internal/clock"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

const responseWindow = 3 * time.Second

// Berkeley runs coordinator-driven physical-clock averaging. Only the
// current coordinator initiates rounds; every node answers TIME_REQUEST
// and applies CLOCK_ADJUSTMENT. Round-trip delay is not compensated.
type Berkeley struct {
	selfID        string
	peers         *Peers
	messenger     Messenger
	clock         *clock.Manager
	interval      time.Duration
	isCoordinator func() bool

	mu         sync.Mutex
	diffs      map[string]int64
	collecting bool

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewBerkeley(selfID string, peers *Peers, messenger Messenger, clk *clock.Manager, interval time.Duration, isCoordinator func() bool) *Berkeley {
	return &Berkeley{
		selfID:        selfID,
		peers:         peers,
		messenger:     messenger,
		clock:         clk,
		interval:      interval,
		isCoordinator: isCoordinator,
		diffs:         make(map[string]int64),
		stopChan:      make(chan struct{}),
	}
}

// Register installs the clock-sync handlers on the sync endpoint.
func (b *Berkeley) Register(comm *Comm) {
	comm.Handle(models.ActionTimeRequest, b.handleTimeRequest)
	comm.Handle(models.ActionTimeResponse, b.handleTimeResponse)
	comm.Handle(models.ActionClockAdjustment, b.handleClockAdjustment)
}

// Start launches the periodic synchronization tick.
func (b *Berkeley) Start() {
	log.Printf("[Berkeley] scheduling clock synchronization")

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if b.isCoordinator() {
					b.initiateRound()
				}
			case <-b.stopChan:
				return
			}
		}
	}()
}

// Stop ends the periodic tick; a collection window in flight is abandoned.
func (b *Berkeley) Stop() {
	close(b.stopChan)
	b.wg.Wait()
}

// initiateRound broadcasts TIME_REQUEST and schedules the averaging step.
func (b *Berkeley) initiateRound() {
	active := b.peers.ActiveIDs()
	if len(active) == 0 {
		log.Printf("[Berkeley] no active peers to synchronize with")
		return
	}

	log.Printf("[Berkeley] starting clock sync round with %d peers", len(active))

	b.mu.Lock()
	b.diffs = map[string]int64{b.selfID: 0}
	b.collecting = true
	b.mu.Unlock()

	request := map[string]any{
		"action":      models.ActionTimeRequest,
		"coordinator": b.selfID,
		"timestamp":   b.clock.PhysicalNow(),
	}
	for _, id := range active {
		b.messenger.Send(id, request)
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		select {
		case <-time.After(responseWindow):
			b.finishRound()
		case <-b.stopChan:
		}
	}()
}

// finishRound averages the collected differences, fixes the local offset
// and ships each responder its individual adjustment.
func (b *Berkeley) finishRound() {
	b.mu.Lock()
	b.collecting = false
	diffs := b.diffs
	b.mu.Unlock()

	if len(diffs) == 0 || !b.isCoordinator() {
		return
	}

	log.Printf("[Berkeley] computing clock adjustment from %d samples", len(diffs))

	var sum int64
	for _, diff := range diffs {
		sum += diff
	}
	average := sum / int64(len(diffs))
	log.Printf("[Berkeley] average offset: %dms", average)

	b.clock.Adjust(-average)

	for id, diff := range diffs {
		if id == b.selfID {
			continue
		}
		adjustment := average - diff
		log.Printf("[Berkeley] sending clock adjustment to %s: %dms", id, adjustment)
		b.messenger.Send(id, map[string]any{
			"action":      models.ActionClockAdjustment,
			"coordinator": b.selfID,
			"adjustment":  adjustment,
		})
	}
}

func (b *Berkeley) handleTimeRequest(payload []byte) map[string]any {
	var req struct {
		Coordinator string `json:"coordinator"`
		Timestamp   int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return models.ErrorReply("malformed time request: %v", err)
	}

	// The coordinator records its own diff as zero; a node that believes
	// itself coordinator ignores requests carrying its own id.
	if b.isCoordinator() && req.Coordinator == b.selfID {
		return models.OK()
	}

	localTime := b.clock.PhysicalNow()
	diff := localTime - req.Timestamp
	log.Printf("[Berkeley] time request from coordinator %s, difference %dms", req.Coordinator, diff)

	// The measured difference travels in a separate asynchronous send;
	// this reply is only an ack.
	b.messenger.Send(req.Coordinator, map[string]any{
		"action":            models.ActionTimeResponse,
		"serverId":          b.selfID,
		"requestTimestamp":  req.Timestamp,
		"responseTimestamp": localTime,
		"timeDifference":    diff,
	})

	return models.OK()
}

func (b *Berkeley) handleTimeResponse(payload []byte) map[string]any {
	var resp struct {
		ServerID       string `json:"serverId"`
		TimeDifference int64  `json:"timeDifference"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return models.ErrorReply("malformed time response: %v", err)
	}

	if !b.isCoordinator() {
		return models.OK()
	}

	b.mu.Lock()
	if b.collecting {
		b.diffs[resp.ServerID] = resp.TimeDifference
		log.Printf("[Berkeley] time response from %s: %dms", resp.ServerID, resp.TimeDifference)
	} else {
		log.Printf("[Berkeley] discarding late time response from %s", resp.ServerID)
	}
	b.mu.Unlock()

	return models.OK()
}

func (b *Berkeley) handleClockAdjustment(payload []byte) map[string]any {
	var adj struct {
		Coordinator string `json:"coordinator"`
		Adjustment  int64  `json:"adjustment"`
	}
	if err := json.Unmarshal(payload, &adj); err != nil {
		return models.ErrorReply("malformed clock adjustment: %v", err)
	}

	log.Printf("[Berkeley] clock adjustment from coordinator %s: %dms", adj.Coordinator, adj.Adjustment)
	b.clock.Adjust(adj.Adjustment)

	return models.OK()
}
