package cluster

import (
	"encoding/json"
	"testing"

	"github.com/SamirCosta/RedeSocial/internal/clock"
	"github.com/SamirCosta/RedeSocial/pkg/models"
)

// startComm binds a Comm on an ephemeral loopback port.
func startComm(t *testing.T, selfID string) (*Comm, *Peers, *clock.Manager) {
	t.Helper()
	peers := NewPeers(selfID)
	clk := clock.NewManager(0, nil)
	comm := NewComm(selfID, "127.0.0.1", 0, peers, clk)
	if err := comm.Start(); err != nil {
		t.Fatalf("failed to start comm: %v", err)
	}
	t.Cleanup(comm.Stop)
	return comm, peers, clk
}

func link(peers *Peers, comm *Comm, id string) {
	peers.Upsert(models.PeerInfo{ID: id, Address: "127.0.0.1", SyncPort: comm.BoundPort(), Active: true})
}

func TestCommRoundTrip(t *testing.T) {
	commA, peersA, clkA := startComm(t, "serverA")
	commB, _, clkB := startComm(t, "serverB")
	link(peersA, commB, "serverB")

	commB.Handle("SERVER_PING", func(payload []byte) map[string]any {
		return map[string]any{"success": true, "serverId": "serverB", "isActive": true}
	})

	reply, err := commA.SendWithResponse("serverB", map[string]any{
		"action":     "SERVER_PING",
		"fromServer": "serverA",
	})
	if err != nil {
		t.Fatalf("SendWithResponse failed: %v", err)
	}
	if success, _ := reply["success"].(bool); !success {
		t.Errorf("Expected success, got %v", reply)
	}

	// Both clocks moved: A ticked on send and merged the reply, B merged
	// the request before dispatch.
	if clkA.LogicalNow() < 2 {
		t.Errorf("Sender clock should have advanced at least twice, got %d", clkA.LogicalNow())
	}
	if clkB.LogicalNow() < 2 {
		t.Errorf("Receiver clock should have merged and answered, got %d", clkB.LogicalNow())
	}

	if info, _ := peersA.Get("serverB"); !info.Active {
		t.Error("Peer must be active after a successful round trip")
	}
}

func TestCommClockMergeOrdering(t *testing.T) {
	commA, peersA, clkA := startComm(t, "serverA")
	commB, _, clkB := startComm(t, "serverB")
	link(peersA, commB, "serverB")

	// Push B's clock ahead so the reply forces a jump on A.
	for i := 0; i < 50; i++ {
		clkB.Tick()
	}

	commB.Handle("SERVER_PING", func(payload []byte) map[string]any {
		return models.OK()
	})

	before := clkA.LogicalNow()
	if _, err := commA.SendWithResponse("serverB", map[string]any{"action": "SERVER_PING"}); err != nil {
		t.Fatalf("SendWithResponse failed: %v", err)
	}

	after := clkA.LogicalNow()
	if after <= before || after <= 50 {
		t.Errorf("Sender clock must jump past the receiver's: before=%d after=%d", before, after)
	}
}

func TestCommUnknownAction(t *testing.T) {
	commA, peersA, _ := startComm(t, "serverA")
	commB, _, _ := startComm(t, "serverB")
	link(peersA, commB, "serverB")

	reply, err := commA.SendWithResponse("serverB", map[string]any{"action": "NO_SUCH_ACTION"})
	if err != nil {
		t.Fatalf("SendWithResponse failed: %v", err)
	}
	if success, _ := reply["success"].(bool); success {
		t.Error("Unknown action must be answered with an error reply")
	}
	if _, ok := reply["error"]; !ok {
		t.Errorf("Expected an error field, got %v", reply)
	}
}

func TestCommUnreachablePeerMarkedInactive(t *testing.T) {
	commA, peersA, _ := startComm(t, "serverA")

	// Point at a port nothing listens on.
	peersA.Upsert(models.PeerInfo{ID: "serverB", Address: "127.0.0.1", SyncPort: 1, Active: true})

	_, err := commA.SendWithResponse("serverB", map[string]any{"action": "SERVER_PING"})
	if err == nil {
		t.Fatal("Expected an error for an unreachable peer")
	}
	if info, _ := peersA.Get("serverB"); info.Active {
		t.Error("Peer must be inactive after a failed call")
	}

	// The failure is recorded for retry suppression: a fire-and-forget
	// Send right after must be dropped without dialing.
	if since, suppressed := commA.recentFailure("serverB"); !suppressed {
		t.Errorf("Expected recent failure to suppress sends, last failure %v ago", since)
	}
}

func TestCommUnknownPeer(t *testing.T) {
	commA, _, _ := startComm(t, "serverA")

	_, err := commA.SendWithResponse("ghost", map[string]any{"action": "SERVER_PING"})
	if err == nil {
		t.Fatal("Expected an error for an unknown peer")
	}
}

func TestCommReplyCarriesLogicalTime(t *testing.T) {
	commB, _, _ := startComm(t, "serverB")
	commB.Handle("SERVER_PING", func(payload []byte) map[string]any {
		return models.OK()
	})

	request, _ := json.Marshal(map[string]any{"action": "SERVER_PING", "logicalTime": 7})
	raw := commB.handleFrame(request)

	var reply map[string]any
	if err := json.Unmarshal(raw, &reply); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	lt, ok := reply["logicalTime"].(float64)
	if !ok {
		t.Fatalf("Reply must carry logicalTime, got %v", reply)
	}
	if uint64(lt) <= 7 {
		t.Errorf("Reply logical time must exceed the received one, got %v", lt)
	}
}
