package balancer

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/SamirCosta/RedeSocial/pkg/models"
	"github.com/SamirCosta/RedeSocial/pkg/network"
)

const forwardTimeout = 5 * time.Second

// Router terminates client connections, picks one live backend round-robin
// and relays the untouched payload to the service port the action maps to.
type Router struct {
	backends *Backends
	address  string
	port     int
	client   *network.Client
	server   *network.Server
}

func NewRouter(backends *Backends, address string, port int) *Router {
	return &Router{
		backends: backends,
		address:  address,
		port:     port,
		client:   network.NewClient(forwardTimeout),
	}
}

// Start binds the client-facing router port.
func (r *Router) Start() error {
	addr := fmt.Sprintf("%s:%d", r.address, r.port)
	server := network.NewServer("Balancer", addr, network.HandlerFunc(r.route))
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start balancer router: %w", err)
	}
	r.server = server
	log.Printf("[Balancer] routing service started on %s", addr)
	return nil
}

// Stop closes the router port.
func (r *Router) Stop() {
	if r.server != nil {
		if err := r.server.Stop(); err != nil {
			log.Printf("[Balancer] error stopping router: %v", err)
		}
	}
	log.Printf("[Balancer] routing service stopped")
}

// Port returns the bound router port. Only valid after Start.
func (r *Router) Port() int { return r.server.Port() }

func (r *Router) route(payload []byte) []byte {
	var header models.Header
	if err := json.Unmarshal(payload, &header); err != nil {
		return errorReply("malformed request: %v", err)
	}

	backend, ok := r.backends.Next()
	if !ok {
		log.Printf("[Balancer] no server available for request %s", header.Action)
		return errorReply("No server available")
	}

	port := backend.ServicePort + PortOffset(header.Action)
	addr := fmt.Sprintf("%s:%d", backend.Address, port)
	log.Printf("[Balancer] forwarding %s to %s (%s)", header.Action, backend.ID, addr)

	reply, err := r.client.SendReceive(addr, payload)
	if err != nil {
		log.Printf("[Balancer] forward to %s failed: %v", backend.ID, err)
		return errorReply("Communication error")
	}
	return reply
}

// PortOffset maps a client action to the service-port offset that owns it.
// Posts and feed reads live on the base port.
func PortOffset(action string) int {
	switch action {
	case models.ActionUserRegister, models.ActionUserRegisterAlias, models.ActionUserLogin:
		return 300
	case models.ActionFollowUser, models.ActionUnfollowUser, models.ActionGetFollowers, models.ActionGetFollowing:
		return 200
	case models.ActionSendMessage, models.ActionMarkAsRead, models.ActionGetConversation, models.ActionGetUnreadMessages:
		return 100
	default:
		return 0
	}
}

func errorReply(format string, args ...any) []byte {
	out, _ := json.Marshal(models.ErrorReply(format, args...))
	return out
}
