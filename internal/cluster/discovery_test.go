package cluster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/SamirCosta/RedeSocial/pkg/models"
)

func newTestDiscovery() (*Discovery, *fakeMessenger, *Peers) {
	messenger := newFakeMessenger()
	peers := NewPeers("server1")
	d := NewDiscovery("server1", "127.0.0.1", 5555, peers, messenger,
		func() string { return "tcp://127.0.0.1:6001" }, time.Minute)
	return d, messenger, peers
}

func TestExtractPort(t *testing.T) {
	cases := []struct {
		address string
		want    int
		wantErr bool
	}{
		{"tcp://localhost:6038", 6038, false},
		{"127.0.0.1:6000", 6000, false},
		{"tcp://10.0.0.5:7001", 7001, false},
		{"no-port-here", 0, true},
	}
	for _, c := range cases {
		got, err := extractPort(c.address)
		if c.wantErr {
			if err == nil {
				t.Errorf("extractPort(%q): expected error", c.address)
			}
			continue
		}
		if err != nil {
			t.Errorf("extractPort(%q): %v", c.address, err)
			continue
		}
		if got != c.want {
			t.Errorf("extractPort(%q) = %d, want %d", c.address, got, c.want)
		}
	}
}

func TestDiscoveryHandleAnnouncement(t *testing.T) {
	d, messenger, peers := newTestDiscovery()

	payload, _ := json.Marshal(map[string]any{
		"action":        models.ActionServerAnnouncement,
		"serverId":      "server2",
		"serverAddress": "10.0.0.6",
		"serverPort":    5555,
		"servicePort":   5555,
		"syncAddress":   "tcp://10.0.0.6:6002",
	})

	reply := d.handleAnnouncement(payload)
	if success, _ := reply["success"].(bool); !success {
		t.Fatalf("Expected success, got %v", reply)
	}

	info, ok := peers.Get("server2")
	if !ok {
		t.Fatal("Announced peer must be upserted")
	}
	if info.SyncPort != 6002 || info.ServicePort != 5555 || !info.Active {
		t.Errorf("Unexpected peer entry: %+v", info)
	}

	// A previously-unknown announcer triggers an announce-back.
	deadline := time.Now().Add(time.Second)
	for {
		if len(messenger.sentTo("server2")) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected an announce-back to the new peer")
		}
		time.Sleep(5 * time.Millisecond)
	}
	actions := messenger.actionsSentTo("server2")
	if actions[0] != models.ActionServerAnnouncement {
		t.Errorf("Expected SERVER_ANNOUNCEMENT, got %v", actions)
	}
}

func TestDiscoveryAnnouncementCallback(t *testing.T) {
	d, _, _ := newTestDiscovery()

	var gotID string
	var gotPort int
	d.OnAnnounce = func(id, address string, servicePort int) {
		gotID, gotPort = id, servicePort
	}

	payload, _ := json.Marshal(map[string]any{
		"serverId":      "server3",
		"serverAddress": "10.0.0.7",
		"serverPort":    5560,
		"syncAddress":   "10.0.0.7:6003",
	})
	d.handleAnnouncement(payload)

	// servicePort missing, serverPort is the fallback.
	if gotID != "server3" || gotPort != 5560 {
		t.Errorf("Expected callback (server3, 5560), got (%s, %d)", gotID, gotPort)
	}
}

func TestDiscoveryHandleBadAnnouncement(t *testing.T) {
	d, _, peers := newTestDiscovery()

	payload, _ := json.Marshal(map[string]any{
		"serverId":      "server4",
		"serverAddress": "10.0.0.8",
		"syncAddress":   "not-an-address",
	})
	reply := d.handleAnnouncement(payload)
	if success, _ := reply["success"].(bool); success {
		t.Error("Announcement without a parseable sync port must fail")
	}
	if peers.Known("server4") {
		t.Error("Bad announcement must not create a peer entry")
	}
}

func TestDiscoveryHandlePing(t *testing.T) {
	d, _, _ := newTestDiscovery()

	payload, _ := json.Marshal(map[string]any{"fromServer": "server2"})
	reply := d.handlePing(payload)

	if success, _ := reply["success"].(bool); !success {
		t.Errorf("Expected success, got %v", reply)
	}
	if reply["serverId"] != "server1" {
		t.Errorf("Ping reply must carry the local id, got %v", reply["serverId"])
	}
	if active, _ := reply["isActive"].(bool); !active {
		t.Error("Ping reply must report the node active")
	}
}

func TestDiscoveryAnnounceTargets(t *testing.T) {
	d, messenger, peers := newTestDiscovery()
	peers.Upsert(models.PeerInfo{ID: "server1", Address: "127.0.0.1", SyncPort: 6001, Active: true})
	peers.Upsert(models.PeerInfo{ID: "server2", Address: "127.0.0.1", SyncPort: 6002, Active: true})
	peers.Upsert(models.PeerInfo{ID: "balancer", Address: "127.0.0.1", SyncPort: 6100, Active: false})

	d.Announce()

	if len(messenger.sentTo("server1")) != 0 {
		t.Error("A node must not announce to itself")
	}
	if len(messenger.sentTo("server2")) != 1 {
		t.Error("Expected an announcement to server2")
	}
	// Announcements go to every known peer, active or not.
	if len(messenger.sentTo("balancer")) != 1 {
		t.Error("Expected an announcement to the balancer")
	}
}
