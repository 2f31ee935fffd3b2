package cluster

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SamirCosta/RedeSocial/pkg/models"
)

const electionTimeout = 5 * time.Second

// Election runs the Bully algorithm: the active node with the highest id
// wins and becomes the clock-sync coordinator. A periodic check finds or
// replaces a dead coordinator.
type Election struct {
	selfID        string
	peers         *Peers
	messenger     Messenger
	checkInterval time.Duration

	isCoordinator      atomic.Bool
	electionInProgress atomic.Bool

	mu            sync.Mutex
	responded     map[string]struct{}
	coordinatorID string

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewElection(selfID string, peers *Peers, messenger Messenger, checkInterval time.Duration) *Election {
	return &Election{
		selfID:        selfID,
		peers:         peers,
		messenger:     messenger,
		checkInterval: checkInterval,
		responded:     make(map[string]struct{}),
		stopChan:      make(chan struct{}),
	}
}

// Register installs the election handlers on the sync endpoint.
func (e *Election) Register(comm *Comm) {
	comm.Handle(models.ActionElection, e.handleElection)
	comm.Handle(models.ActionElectionResponse, e.handleElectionResponse)
	comm.Handle(models.ActionCoordinator, e.handleCoordinator)
	comm.Handle(models.ActionCoordinatorHeartbeat, e.handleHeartbeat)
	comm.Handle(models.ActionCoordinatorPing, e.handleCoordinatorPing)
	comm.Handle(models.ActionIsCoordinator, e.handleIsCoordinator)
}

// IsCoordinator reports whether this node currently holds the role.
func (e *Election) IsCoordinator() bool { return e.isCoordinator.Load() }

// CoordinatorID returns the last known coordinator id, if any.
func (e *Election) CoordinatorID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.coordinatorID
}

// Start launches the periodic coordinator check.
func (e *Election) Start() {
	log.Printf("[Election] starting periodic coordinator check")

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.checkCoordinator()
			case <-e.stopChan:
				return
			}
		}
	}()
}

// Stop ends the periodic check. A response window still pending is
// abandoned.
func (e *Election) Stop() {
	close(e.stopChan)
	e.wg.Wait()
}

func (e *Election) checkCoordinator() {
	if e.IsCoordinator() {
		e.sendHeartbeat()
		return
	}

	coordinator := e.findCoordinator()
	if coordinator == "" {
		log.Printf("[Election] no coordinator found, starting election")
		e.StartElection()
		return
	}

	log.Printf("[Election] pinging coordinator %s", coordinator)
	ping := map[string]any{
		"action":     models.ActionCoordinatorPing,
		"fromServer": e.selfID,
	}
	if _, err := e.messenger.SendWithResponse(coordinator, ping); err != nil {
		log.Printf("[Election] coordinator %s did not answer, starting election", coordinator)
		e.StartElection()
		return
	}
}

// findCoordinator asks every active peer whether it holds the role.
func (e *Election) findCoordinator() string {
	for _, id := range e.peers.ActiveIDs() {
		req := map[string]any{
			"action":     models.ActionIsCoordinator,
			"fromServer": e.selfID,
		}
		reply, err := e.messenger.SendWithResponse(id, req)
		if err != nil {
			continue
		}
		if is, ok := reply["isCoordinator"].(bool); ok && is {
			return id
		}
	}
	return ""
}

func (e *Election) sendHeartbeat() {
	msg := map[string]any{
		"action":        models.ActionCoordinatorHeartbeat,
		"coordinatorId": e.selfID,
	}
	e.messenger.Broadcast(msg)
	log.Printf("[Election] coordinator heartbeat sent")
}

// StartElection begins a Bully round unless one is already in progress.
func (e *Election) StartElection() {
	if !e.electionInProgress.CompareAndSwap(false, true) {
		log.Printf("[Election] election already in progress")
		return
	}

	log.Printf("[Election] starting coordinator election")
	e.mu.Lock()
	e.responded = make(map[string]struct{})
	e.mu.Unlock()

	higher := e.higherIDPeers()
	if len(higher) == 0 {
		e.declareCoordinator()
		return
	}

	msg := map[string]any{
		"action":     models.ActionElection,
		"fromServer": e.selfID,
	}
	for _, id := range higher {
		e.messenger.Send(id, msg)
		log.Printf("[Election] election message sent to %s", id)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		select {
		case <-time.After(electionTimeout):
			e.checkResponses(higher)
		case <-e.stopChan:
		}
	}()
}

func (e *Election) higherIDPeers() []string {
	var higher []string
	for _, id := range e.peers.ActiveIDs() {
		if id > e.selfID {
			higher = append(higher, id)
		}
	}
	return higher
}

func (e *Election) checkResponses(higher []string) {
	e.mu.Lock()
	anyResponse := false
	for _, id := range higher {
		if _, ok := e.responded[id]; ok {
			anyResponse = true
			break
		}
	}
	e.mu.Unlock()

	if anyResponse {
		log.Printf("[Election] a higher-id server answered, awaiting its coordinator announcement")
		e.electionInProgress.Store(false)
		return
	}
	e.declareCoordinator()
}

func (e *Election) declareCoordinator() {
	e.isCoordinator.Store(true)
	e.mu.Lock()
	e.coordinatorID = e.selfID
	e.mu.Unlock()
	log.Printf("[Election] this server is now the coordinator")

	msg := map[string]any{
		"action":        models.ActionCoordinator,
		"coordinatorId": e.selfID,
	}
	for _, id := range e.peers.ActiveIDs() {
		e.messenger.Send(id, msg)
	}

	e.electionInProgress.Store(false)
}

func (e *Election) handleElection(payload []byte) map[string]any {
	var msg struct {
		FromServer string `json:"fromServer"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.ErrorReply("malformed election message: %v", err)
	}
	log.Printf("[Election] election message from %s", msg.FromServer)

	response := map[string]any{
		"action":     models.ActionElectionResponse,
		"fromServer": e.selfID,
	}
	e.messenger.Send(msg.FromServer, response)

	if e.selfID > msg.FromServer {
		go e.StartElection()
	}

	return models.OK()
}

func (e *Election) handleElectionResponse(payload []byte) map[string]any {
	var msg struct {
		FromServer string `json:"fromServer"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.ErrorReply("malformed election response: %v", err)
	}
	log.Printf("[Election] election response from %s", msg.FromServer)

	e.mu.Lock()
	e.responded[msg.FromServer] = struct{}{}
	e.mu.Unlock()

	return models.OK()
}

func (e *Election) handleCoordinator(payload []byte) map[string]any {
	var msg struct {
		CoordinatorID string `json:"coordinatorId"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return models.ErrorReply("malformed coordinator message: %v", err)
	}

	if e.IsCoordinator() && e.selfID < msg.CoordinatorID {
		e.isCoordinator.Store(false)
		log.Printf("[Election] stepping down, %s has a higher id", msg.CoordinatorID)
	}

	e.mu.Lock()
	e.coordinatorID = msg.CoordinatorID
	e.mu.Unlock()
	log.Printf("[Election] %s is now the recognized coordinator", msg.CoordinatorID)

	e.electionInProgress.Store(false)
	return models.OK()
}

func (e *Election) handleHeartbeat(payload []byte) map[string]any {
	var msg struct {
		CoordinatorID string `json:"coordinatorId"`
	}
	if err := json.Unmarshal(payload, &msg); err == nil && msg.CoordinatorID != "" {
		e.mu.Lock()
		e.coordinatorID = msg.CoordinatorID
		e.mu.Unlock()
	}
	return models.OK()
}

func (e *Election) handleCoordinatorPing(payload []byte) map[string]any {
	return models.OK()
}

func (e *Election) handleIsCoordinator(payload []byte) map[string]any {
	return map[string]any{
		"success":       true,
		"isCoordinator": e.IsCoordinator(),
	}
}
