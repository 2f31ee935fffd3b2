package node

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/SamirCosta/RedeSocial/internal/balancer"
	"github.com/SamirCosta/RedeSocial/internal/clock"
	"github.com/SamirCosta/RedeSocial/internal/cluster"
	"github.com/SamirCosta/RedeSocial/internal/config"
	"github.com/SamirCosta/RedeSocial/internal/mqtt"
	"github.com/SamirCosta/RedeSocial/internal/replication"
	"github.com/SamirCosta/RedeSocial/internal/repository"
	"github.com/SamirCosta/RedeSocial/internal/service"
	"github.com/SamirCosta/RedeSocial/internal/stream"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// Context carries the shared coordination state every component hangs off:
// peer table, clocks, replication queue and repositories. It is assembled
// once at construction and injected; there is no process-wide registry.
type Context struct {
	Config *config.Config
	Clock  *clock.Manager
	Peers  *cluster.Peers
	Comm   *cluster.Comm
	Queue  *replication.Queue

	Users    *repository.Users
	Posts    *repository.Posts
	Messages *repository.Messages
}

// Node is one process of the system, backend or balancer.
type Node struct {
	ctx *Context

	discovery *cluster.Discovery
	election  *cluster.Election
	berkeley  *cluster.Berkeley
	applier   *replication.Applier

	workers []*service.Worker

	backends *balancer.Backends
	router   *balancer.Router

	hub  *stream.Hub
	sink *multiSink

	logFile *os.File
}

// New assembles a node from its configuration. Every dependency, including
// the replication pipeline, is wired here; nothing accepts traffic until
// Start.
func New(cfg *config.Config) (*Node, error) {
	if err := os.MkdirAll(cfg.DataDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	n := &Node{}

	// Tee the event log next to the node's data.
	logFile, err := os.OpenFile(cfg.LogFilePath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	n.logFile = logFile
	log.SetOutput(io.MultiWriter(os.Stderr, logFile))

	state := loadState(cfg.StateFilePath())
	statePath := cfg.StateFilePath()
	clk := clock.NewManager(state.ClockOffset, func(offset int64) {
		saveState(statePath, nodeState{ClockOffset: offset})
	})
	log.Printf("[Node] %s starting with clock offset %dms", cfg.ServerID, state.ClockOffset)

	peers := cluster.NewPeers(cfg.ServerID)
	// The local entry is present but never targeted by outbound calls.
	peers.Upsert(models.PeerInfo{
		ID:          cfg.ServerID,
		Address:     cfg.ServerAddress,
		SyncPort:    cfg.SyncPort,
		ServicePort: cfg.ServiceBasePort,
		Active:      true,
	})
	for _, seed := range cfg.Seeds {
		if seed.ID == cfg.ServerID {
			continue
		}
		peers.Upsert(models.PeerInfo{
			ID:       seed.ID,
			Address:  seed.Address,
			SyncPort: seed.Port,
			Active:   true,
		})
		log.Printf("[Node] seed server registered: %s at %s:%d", seed.ID, seed.Address, seed.Port)
	}

	comm := cluster.NewComm(cfg.ServerID, cfg.ServerAddress, cfg.SyncPort, peers, clk)

	n.ctx = &Context{
		Config: cfg,
		Clock:  clk,
		Peers:  peers,
		Comm:   comm,
	}

	if cfg.IsBalancer {
		if err := n.wireBalancer(); err != nil {
			logFile.Close()
			return nil, err
		}
	} else {
		if err := n.wireBackend(); err != nil {
			logFile.Close()
			return nil, err
		}
	}

	return n, nil
}

// wireBackend assembles the full coordination stack plus the four service
// dispatchers. The replication queue and applier are attached before any
// listener exists, so no request can commit a mutation that would miss
// fan-out.
func (n *Node) wireBackend() error {
	cfg := n.ctx.Config
	log.Printf("[Node] initializing as application server")

	users, err := repository.NewUsers(filepath.Join(cfg.UserDataDirectory, "users_"+cfg.ServerID+".json"))
	if err != nil {
		return err
	}
	posts, err := repository.NewPosts(filepath.Join(cfg.PostDataDirectory, "posts_"+cfg.ServerID+".json"))
	if err != nil {
		return err
	}
	messages, err := repository.NewMessages(filepath.Join(cfg.MessageDataDirectory, "messages_"+cfg.ServerID+".json"))
	if err != nil {
		return err
	}
	n.ctx.Users, n.ctx.Posts, n.ctx.Messages = users, posts, messages

	n.sink = newMultiSink()
	if cfg.StreamPort > 0 {
		n.hub = stream.NewHub()
		n.sink.Add(n.hub)
	}

	n.ctx.Queue = replication.NewQueue(cfg.ServerID, n.ctx.Peers, n.ctx.Comm)
	n.applier = replication.NewApplier(users, posts, messages, n.sink)
	n.ctx.Comm.Handle(models.ActionDataReplication, n.applier.HandleMessage)

	n.discovery = cluster.NewDiscovery(cfg.ServerID, cfg.ServerAddress, cfg.ServiceBasePort,
		n.ctx.Peers, n.ctx.Comm, n.ctx.Comm.SyncBindAddress, cfg.DiscoveryInterval)
	n.discovery.Register(n.ctx.Comm)

	n.election = cluster.NewElection(cfg.ServerID, n.ctx.Peers, n.ctx.Comm, cfg.CoordinatorCheck)
	n.election.Register(n.ctx.Comm)

	n.berkeley = cluster.NewBerkeley(cfg.ServerID, n.ctx.Peers, n.ctx.Comm, n.ctx.Clock,
		cfg.SyncInterval, n.election.IsCoordinator)
	n.berkeley.Register(n.ctx.Comm)

	now := n.ctx.Clock.AdjustedNow
	base := cfg.ServiceBasePort
	n.workers = []*service.Worker{
		service.NewWorker("Posts", cfg.ServerAddress, base+service.PortOffsetPosts,
			service.NewPostsService(posts, users, n.ctx.Queue, n.sink, now)),
		service.NewWorker("Messages", cfg.ServerAddress, base+service.PortOffsetMessages,
			service.NewMessagesService(messages, users, n.ctx.Queue, n.sink, now)),
		service.NewWorker("Follow", cfg.ServerAddress, base+service.PortOffsetFollow,
			service.NewFollowService(users, n.ctx.Queue, n.sink, now)),
		service.NewWorker("Users", cfg.ServerAddress, base+service.PortOffsetUsers,
			service.NewUsersService(users, n.ctx.Queue, n.sink, now)),
	}

	return nil
}

// wireBalancer assembles the routing table, the router and the reduced
// sync responder. Announcements feed the routing table; liveness flips
// from the peer table follow it.
func (n *Node) wireBalancer() error {
	cfg := n.ctx.Config
	log.Printf("[Node] initializing as load balancer")

	n.backends = balancer.NewBackends()
	n.ctx.Peers.OnActiveChange = func(id string, active bool) {
		if !cluster.IsBalancerID(id) {
			n.backends.SetActive(id, active)
		}
	}

	n.discovery = cluster.NewDiscovery(cfg.ServerID, cfg.ServerAddress, cfg.BalancerPort,
		n.ctx.Peers, n.ctx.Comm, n.ctx.Comm.SyncBindAddress, cfg.DiscoveryInterval)
	n.discovery.OnAnnounce = func(id, address string, servicePort int) {
		if !cluster.IsBalancerID(id) {
			n.backends.Add(id, address, servicePort)
		}
	}
	n.discovery.Register(n.ctx.Comm)

	balancer.RegisterReducedSync(n.ctx.Comm)

	n.router = balancer.NewRouter(n.backends, cfg.ServerAddress, cfg.BalancerPort)
	return nil
}

// Start binds every socket and launches the periodic tasks. The sync
// endpoint comes up first; a bind failure there is fatal.
func (n *Node) Start() error {
	cfg := n.ctx.Config

	if err := n.ctx.Comm.Start(); err != nil {
		return err
	}

	if cfg.IsBalancer {
		if err := n.router.Start(); err != nil {
			return err
		}
	} else {
		n.ctx.Queue.Start()
		for _, worker := range n.workers {
			if err := worker.Start(); err != nil {
				return err
			}
		}
		if n.hub != nil {
			if err := n.hub.Start(cfg.ServerAddress, cfg.StreamPort); err != nil {
				return err
			}
		}
		n.startBridge()

		n.election.Start()
		n.berkeley.Start()
	}

	n.discovery.Start()

	log.Printf("[Node] %s started", cfg.ServerID)
	return nil
}

// startBridge connects the broker bridge in the background so a slow or
// absent broker never delays startup.
func (n *Node) startBridge() {
	cfg := n.ctx.Config
	if cfg.MQTTBrokerURL == "" {
		return
	}
	go func() {
		bridge, err := mqtt.NewBridge(cfg.MQTTBrokerURL, cfg.ServerID, cfg.MQTTTopicPrefix)
		if err != nil {
			log.Printf("[Node] broker bridge unavailable: %v", err)
			return
		}
		n.sink.Add(bridge)
	}()
}

// Stop tears the node down: periodic tasks first, then the listeners.
func (n *Node) Stop() {
	cfg := n.ctx.Config
	log.Printf("[Node] stopping %s...", cfg.ServerID)

	if n.discovery != nil {
		n.discovery.Stop()
	}
	if n.berkeley != nil {
		n.berkeley.Stop()
	}
	if n.election != nil {
		n.election.Stop()
	}
	if n.ctx.Queue != nil {
		n.ctx.Queue.Stop()
	}
	for _, worker := range n.workers {
		worker.Stop()
	}
	if n.router != nil {
		n.router.Stop()
	}
	if n.hub != nil {
		n.hub.Stop()
	}

	n.ctx.Comm.Stop()

	log.Printf("[Node] %s stopped", cfg.ServerID)
	log.SetOutput(os.Stderr)
	if n.logFile != nil {
		n.logFile.Close()
	}
}

// Context exposes the node's coordination context.
func (n *Node) Context() *Context { return n.ctx }
