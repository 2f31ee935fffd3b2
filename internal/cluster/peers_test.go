package cluster

import (
	"testing"

	"github.com/SamirCosta/RedeSocial/pkg/models"
)

func TestPeersUpsertAndGet(t *testing.T) {
	peers := NewPeers("server1")

	peers.Upsert(models.PeerInfo{ID: "server2", Address: "127.0.0.1", SyncPort: 6002, ServicePort: 5556, Active: true})

	info, ok := peers.Get("server2")
	if !ok {
		t.Fatal("Expected server2 to be known")
	}
	if info.SyncPort != 6002 || info.ServicePort != 5556 {
		t.Errorf("Unexpected entry: %+v", info)
	}

	// Refresh without a service port keeps the known one.
	peers.Upsert(models.PeerInfo{ID: "server2", Address: "127.0.0.1", SyncPort: 6002, Active: true})
	info, _ = peers.Get("server2")
	if info.ServicePort != 5556 {
		t.Errorf("Expected service port to survive refresh, got %d", info.ServicePort)
	}

	if peers.Known("server9") {
		t.Error("server9 should not be known")
	}
}

func TestPeersSetActive(t *testing.T) {
	peers := NewPeers("server1")
	peers.Upsert(models.PeerInfo{ID: "server2", Address: "127.0.0.1", SyncPort: 6002, Active: true})

	if changed := peers.SetActive("server2", true); changed {
		t.Error("Setting the same value should not report a change")
	}
	if changed := peers.SetActive("server2", false); !changed {
		t.Error("Flipping to inactive should report a change")
	}
	if changed := peers.SetActive("missing", true); changed {
		t.Error("Unknown peer should not report a change")
	}
}

func TestPeersActiveDataIDs(t *testing.T) {
	peers := NewPeers("server1")
	peers.Upsert(models.PeerInfo{ID: "server1", Address: "127.0.0.1", SyncPort: 6001, Active: true})
	peers.Upsert(models.PeerInfo{ID: "server2", Address: "127.0.0.1", SyncPort: 6002, Active: true})
	peers.Upsert(models.PeerInfo{ID: "server3", Address: "127.0.0.1", SyncPort: 6003, Active: false})
	peers.Upsert(models.PeerInfo{ID: "balancer", Address: "127.0.0.1", SyncPort: 6100, Active: true})
	peers.Upsert(models.PeerInfo{ID: "balancer2", Address: "127.0.0.1", SyncPort: 6101, Active: true})

	active := peers.ActiveIDs()
	if len(active) != 3 {
		t.Errorf("Expected 3 active peers (self excluded), got %v", active)
	}

	data := peers.ActiveDataIDs()
	if len(data) != 1 || data[0] != "server2" {
		t.Errorf("Expected only server2 as active data peer, got %v", data)
	}
}

func TestPeersOnActiveChange(t *testing.T) {
	peers := NewPeers("server1")
	var events []string
	peers.OnActiveChange = func(id string, active bool) {
		state := "down"
		if active {
			state = "up"
		}
		events = append(events, id+":"+state)
	}

	peers.Upsert(models.PeerInfo{ID: "server2", Address: "127.0.0.1", SyncPort: 6002, Active: true})
	peers.SetActive("server2", false)
	peers.SetActive("server2", false) // no flip, no event
	peers.SetActive("server2", true)

	want := []string{"server2:up", "server2:down", "server2:up"}
	if len(events) != len(want) {
		t.Fatalf("Expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("Event %d: expected %s, got %s", i, want[i], events[i])
		}
	}
}

func TestIsBalancerID(t *testing.T) {
	cases := map[string]bool{
		"balancer":  true,
		"balancer2": true,
		"server1":   false,
		"bal":       false,
	}
	for id, want := range cases {
		if got := IsBalancerID(id); got != want {
			t.Errorf("IsBalancerID(%q) = %v, want %v", id, got, want)
		}
	}
}
