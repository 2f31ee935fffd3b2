package cluster

import (
	"encoding/json"
	"log"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SamirCosta/RedeSocial/pkg/models"
)

const (
	firstCheckDelay   = 5 * time.Second
	announcementDelay = 8 * time.Second
)

// Discovery announces this node's presence and periodically pings every
// known peer to keep the active flags honest.
type Discovery struct {
	selfID      string
	address     string
	servicePort int
	peers       *Peers
	messenger   Messenger
	syncAddress func() string
	interval    time.Duration

	// OnAnnounce, when set, receives every accepted announcement. The
	// balancer uses it to feed its routing table.
	OnAnnounce func(id, address string, servicePort int)

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewDiscovery(selfID, address string, servicePort int, peers *Peers, messenger Messenger, syncAddress func() string, interval time.Duration) *Discovery {
	return &Discovery{
		selfID:      selfID,
		address:     address,
		servicePort: servicePort,
		peers:       peers,
		messenger:   messenger,
		syncAddress: syncAddress,
		interval:    interval,
		stopChan:    make(chan struct{}),
	}
}

// Register installs the discovery handlers on the sync endpoint.
func (d *Discovery) Register(comm *Comm) {
	comm.Handle(models.ActionServerAnnouncement, d.handleAnnouncement)
	comm.Handle(models.ActionServerPing, d.handlePing)
}

// Start launches the ping sweep and the delayed startup announcement.
func (d *Discovery) Start() {
	log.Printf("[Discovery] starting server discovery")

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-time.After(firstCheckDelay):
		case <-d.stopChan:
			return
		}
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		d.checkPeers()
		for {
			select {
			case <-ticker.C:
				d.checkPeers()
			case <-d.stopChan:
				return
			}
		}
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		select {
		case <-time.After(announcementDelay):
			d.Announce()
		case <-d.stopChan:
		}
	}()
}

// Stop ends the periodic tasks.
func (d *Discovery) Stop() {
	close(d.stopChan)
	d.wg.Wait()
	log.Printf("[Discovery] server discovery stopped")
}

// Announce sends a SERVER_ANNOUNCEMENT to every known peer.
func (d *Discovery) Announce() {
	log.Printf("[Discovery] announcing presence of %s", d.selfID)

	msg := map[string]any{
		"action":        models.ActionServerAnnouncement,
		"serverId":      d.selfID,
		"serverAddress": d.address,
		"serverPort":    d.servicePort,
		"servicePort":   d.servicePort,
		"syncAddress":   d.syncAddress(),
	}

	for _, info := range d.peers.Snapshot() {
		if info.ID != d.selfID {
			d.messenger.Send(info.ID, msg)
		}
	}
}

func (d *Discovery) checkPeers() {
	active, inactive := 0, 0

	for _, info := range d.peers.Snapshot() {
		if info.ID == d.selfID {
			continue
		}

		ping := map[string]any{
			"action":     models.ActionServerPing,
			"fromServer": d.selfID,
		}
		if _, err := d.messenger.SendWithResponse(info.ID, ping); err != nil {
			inactive++
			continue
		}
		active++
	}

	log.Printf("[Discovery] peer check complete: %d active, %d inactive", active, inactive)
}

type announcementPayload struct {
	ServerID      string `json:"serverId"`
	ServerAddress string `json:"serverAddress"`
	ServerPort    int    `json:"serverPort"`
	ServicePort   int    `json:"servicePort"`
	SyncAddress   string `json:"syncAddress"`
}

func (d *Discovery) handleAnnouncement(payload []byte) map[string]any {
	var ann announcementPayload
	if err := json.Unmarshal(payload, &ann); err != nil {
		return models.ErrorReply("malformed announcement: %v", err)
	}

	syncPort, err := extractPort(ann.SyncAddress)
	if err != nil {
		log.Printf("[Discovery] failed to extract sync port from %q: %v", ann.SyncAddress, err)
		return models.ErrorReply("invalid syncAddress: %s", ann.SyncAddress)
	}

	servicePort := ann.ServicePort
	if servicePort == 0 {
		servicePort = ann.ServerPort
	}

	log.Printf("[Discovery] announcement from %s at %s:%d (sync %d)", ann.ServerID, ann.ServerAddress, servicePort, syncPort)

	known := d.peers.Known(ann.ServerID)
	d.peers.Upsert(models.PeerInfo{
		ID:          ann.ServerID,
		Address:     ann.ServerAddress,
		SyncPort:    syncPort,
		ServicePort: servicePort,
		Active:      true,
	})

	if d.OnAnnounce != nil {
		d.OnAnnounce(ann.ServerID, ann.ServerAddress, servicePort)
	}

	if !known {
		log.Printf("[Discovery] new server discovered: %s", ann.ServerID)
		// Announce back so the newcomer fills its table quickly.
		go d.Announce()
	}

	return models.OK()
}

func (d *Discovery) handlePing(payload []byte) map[string]any {
	var ping struct {
		FromServer string `json:"fromServer"`
	}
	_ = json.Unmarshal(payload, &ping)
	log.Printf("[Discovery] ping from %s", ping.FromServer)

	return map[string]any{
		"success":  true,
		"serverId": d.selfID,
		"isActive": true,
	}
}

// extractPort pulls the port from tcp://host:port or host:port.
func extractPort(address string) (int, error) {
	trimmed := strings.TrimPrefix(address, "tcp://")
	if _, portStr, err := net.SplitHostPort(trimmed); err == nil {
		return strconv.Atoi(portStr)
	}
	lastColon := strings.LastIndex(trimmed, ":")
	if lastColon < 0 {
		return 0, strconv.ErrSyntax
	}
	return strconv.Atoi(trimmed[lastColon+1:])
}
