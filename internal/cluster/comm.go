package cluster

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/SamirCosta/RedeSocial/internal/clock"
	"github.com/SamirCosta/RedeSocial/pkg/models"
	"github.com/SamirCosta/RedeSocial/pkg/network"
)

// ErrPeerUnreachable is returned when a synchronous call to a peer times
// out or fails; the peer is marked inactive as a side effect.
var ErrPeerUnreachable = errors.New("peer unreachable")

// ErrUnknownPeer is returned when a target id has no peer-table entry.
var ErrUnknownPeer = errors.New("unknown peer")

const (
	sendTimeout         = 2 * time.Second
	sendResponseTimeout = 3 * time.Second
	retrySuppression    = 10 * time.Second
	bindAttempts        = 5
)

// Messenger is the outbound face of the sync transport. Election,
// discovery, Berkeley sync and the replication queue all speak through it.
type Messenger interface {
	// Send dispatches fire-and-forget in the background. The reply is
	// still awaited (for the clock merge and liveness update) but the
	// caller never blocks.
	Send(targetID string, msg map[string]any)
	// SendWithResponse blocks for one round trip.
	SendWithResponse(targetID string, msg map[string]any) (map[string]any, error)
	// Broadcast sends to every active peer except self.
	Broadcast(msg map[string]any)
}

// HandlerFunc processes one inbound sync payload (already clock-merged)
// and returns the reply envelope.
type HandlerFunc func(payload []byte) map[string]any

// Comm owns the node's sync endpoint: one inbound reply socket serving
// every registered action, plus short-lived outbound sockets for dialing
// peers. Implements Messenger.
type Comm struct {
	selfID   string
	address  string
	basePort int
	peers    *Peers
	clock    *clock.Manager
	client   *network.Client

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	failMu     sync.Mutex
	lastFailed map[string]time.Time

	server    *network.Server
	boundPort int

	wg sync.WaitGroup
}

func NewComm(selfID, address string, basePort int, peers *Peers, clk *clock.Manager) *Comm {
	return &Comm{
		selfID:     selfID,
		address:    address,
		basePort:   basePort,
		peers:      peers,
		clock:      clk,
		client:     network.NewClient(sendResponseTimeout),
		handlers:   make(map[string]HandlerFunc),
		lastFailed: make(map[string]time.Time),
	}
}

// Handle registers the handler for one action. Must be called before Start.
func (c *Comm) Handle(action string, fn HandlerFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[action] = fn
}

// Start binds the inbound socket, walking basePort..basePort+4 with a
// growing backoff. Failing all five attempts is fatal for the node.
// A basePort of 0 binds a single ephemeral port (used by tests).
func (c *Comm) Start() error {
	var lastErr error
	for attempt := 0; attempt < bindAttempts; attempt++ {
		port := c.basePort
		if port != 0 {
			port += attempt
		}
		addr := fmt.Sprintf("%s:%d", c.address, port)
		log.Printf("[Comm] trying to bind sync endpoint on %s (attempt %d of %d)", addr, attempt+1, bindAttempts)

		server := network.NewServer("Comm", addr, network.HandlerFunc(c.handleFrame))
		if err := server.Start(); err != nil {
			lastErr = err
			log.Printf("[Comm] bind attempt %d failed: %v", attempt+1, err)
			if attempt < bindAttempts-1 {
				time.Sleep(time.Duration(attempt+1) * time.Second)
			}
			continue
		}

		c.server = server
		c.boundPort = server.Port()
		log.Printf("[Comm] sync endpoint bound on %s", server.Addr())
		return nil
	}
	return fmt.Errorf("failed to bind sync endpoint after %d attempts: %w", bindAttempts, lastErr)
}

// Stop closes the inbound socket and waits for in-flight senders.
func (c *Comm) Stop() {
	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			log.Printf("[Comm] error stopping sync endpoint: %v", err)
		}
	}
	c.wg.Wait()
}

// BoundPort is the port the inbound socket actually bound.
func (c *Comm) BoundPort() int { return c.boundPort }

// SyncBindAddress is the announce-able endpoint, in tcp://host:port form.
func (c *Comm) SyncBindAddress() string {
	return fmt.Sprintf("tcp://%s:%d", c.address, c.boundPort)
}

func (c *Comm) handleFrame(data []byte) []byte {
	reply := c.dispatch(data)
	reply["logicalTime"] = c.clock.LogicalNow()

	out, err := json.Marshal(reply)
	if err != nil {
		log.Printf("[Comm] failed to marshal reply: %v", err)
		out, _ = json.Marshal(models.ErrorReply("internal error"))
	}
	return out
}

func (c *Comm) dispatch(data []byte) map[string]any {
	var header models.Header
	if err := json.Unmarshal(data, &header); err != nil {
		log.Printf("[Comm] failed to decode message: %v", err)
		return models.ErrorReply("malformed message: %v", err)
	}

	// Merge the Lamport clock before the action is dispatched.
	if header.LogicalTime > 0 {
		c.clock.Merge(header.LogicalTime)
	}

	c.mu.RLock()
	handler, ok := c.handlers[header.Action]
	c.mu.RUnlock()
	if !ok {
		return models.ErrorReply("Unknown action: %s", header.Action)
	}

	return handler(data)
}

// Send dispatches msg to a peer in the background. Attempts toward a peer
// that failed within the last 10s are dropped to damp storms at dead nodes.
func (c *Comm) Send(targetID string, msg map[string]any) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		if since, suppressed := c.recentFailure(targetID); suppressed {
			log.Printf("[Comm] skipping send to %s (last failure %v ago)", targetID, since.Round(time.Millisecond))
			return
		}

		info, ok := c.peers.Get(targetID)
		if !ok {
			log.Printf("[Comm] unknown peer: %s", targetID)
			return
		}

		if _, err := c.roundTrip(info, msg, sendTimeout); err != nil {
			log.Printf("[Comm] send to %s failed: %v", targetID, err)
		}
	}()
}

// SendWithResponse performs one blocking round trip. Unlike Send it always
// attempts, because the caller is waiting on the answer.
func (c *Comm) SendWithResponse(targetID string, msg map[string]any) (map[string]any, error) {
	info, ok := c.peers.Get(targetID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, targetID)
	}
	return c.roundTrip(info, msg, sendResponseTimeout)
}

// Broadcast sends msg to every active peer except self.
func (c *Comm) Broadcast(msg map[string]any) {
	for _, id := range c.peers.ActiveIDs() {
		c.Send(id, msg)
	}
}

func (c *Comm) roundTrip(info models.PeerInfo, msg map[string]any, timeout time.Duration) (map[string]any, error) {
	// Broadcast hands one map to several senders; stamp a copy.
	stamped := make(map[string]any, len(msg)+1)
	for k, v := range msg {
		stamped[k] = v
	}
	stamped["logicalTime"] = c.clock.Tick()

	data, err := json.Marshal(stamped)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", info.Address, info.SyncPort)
	replyData, err := c.client.SendReceiveTimeout(addr, data, timeout)
	if err != nil {
		c.recordFailure(info.ID)
		if c.peers.SetActive(info.ID, false) {
			log.Printf("[Comm] peer %s is not responding", info.ID)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrPeerUnreachable, info.ID, err)
	}

	var reply map[string]any
	if err := json.Unmarshal(replyData, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply from %s: %w", info.ID, err)
	}

	if lt, ok := reply["logicalTime"].(float64); ok {
		c.clock.Merge(uint64(lt))
	}

	c.clearFailure(info.ID)
	if c.peers.SetActive(info.ID, true) {
		log.Printf("[Comm] peer %s is active again", info.ID)
	}

	return reply, nil
}

func (c *Comm) recentFailure(id string) (time.Duration, bool) {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	last, ok := c.lastFailed[id]
	if !ok {
		return 0, false
	}
	since := time.Since(last)
	return since, since < retrySuppression
}

func (c *Comm) recordFailure(id string) {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	c.lastFailed[id] = time.Now()
}

func (c *Comm) clearFailure(id string) {
	c.failMu.Lock()
	defer c.failMu.Unlock()
	delete(c.lastFailed, id)
}
