package cluster

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/SamirCosta/RedeSocial/pkg/models"
)

func electionPeers(self string, ids ...string) *Peers {
	peers := NewPeers(self)
	for _, id := range ids {
		peers.Upsert(models.PeerInfo{ID: id, Address: "127.0.0.1", SyncPort: 6000, Active: true})
	}
	return peers
}

func TestElectionDeclareWhenHighest(t *testing.T) {
	messenger := newFakeMessenger()
	peers := electionPeers("server3", "server1", "server2")
	e := NewElection("server3", peers, messenger, time.Minute)

	e.StartElection()

	if !e.IsCoordinator() {
		t.Fatal("Highest-id node should declare itself coordinator immediately")
	}
	if e.CoordinatorID() != "server3" {
		t.Errorf("Expected coordinator id server3, got %s", e.CoordinatorID())
	}

	// COORDINATOR announcement goes to every active peer.
	for _, id := range []string{"server1", "server2"} {
		actions := messenger.actionsSentTo(id)
		if len(actions) != 1 || actions[0] != models.ActionCoordinator {
			t.Errorf("Expected COORDINATOR sent to %s, got %v", id, actions)
		}
	}
}

func TestElectionChallengesHigherPeers(t *testing.T) {
	messenger := newFakeMessenger()
	peers := electionPeers("server2", "server1", "server3", "server4")
	e := NewElection("server2", peers, messenger, time.Minute)

	e.StartElection()

	if e.IsCoordinator() {
		t.Fatal("Node with higher peers must not declare immediately")
	}
	if got := messenger.actionsSentTo("server3"); len(got) != 1 || got[0] != models.ActionElection {
		t.Errorf("Expected ELECTION sent to server3, got %v", got)
	}
	if got := messenger.actionsSentTo("server4"); len(got) != 1 || got[0] != models.ActionElection {
		t.Errorf("Expected ELECTION sent to server4, got %v", got)
	}
	if got := messenger.actionsSentTo("server1"); len(got) != 0 {
		t.Errorf("Lower-id peer should not be challenged, got %v", got)
	}

	e.Stop()
}

func TestElectionCheckResponses(t *testing.T) {
	messenger := newFakeMessenger()
	peers := electionPeers("server2", "server3")

	// No response from the higher peer: declare.
	e := NewElection("server2", peers, messenger, time.Minute)
	e.electionInProgress.Store(true)
	e.checkResponses([]string{"server3"})
	if !e.IsCoordinator() {
		t.Error("Expected coordinator after silent response window")
	}

	// A response arrived: stand down and wait.
	e2 := NewElection("server2", peers, newFakeMessenger(), time.Minute)
	e2.electionInProgress.Store(true)
	payload, _ := json.Marshal(map[string]any{"action": models.ActionElectionResponse, "fromServer": "server3"})
	e2.handleElectionResponse(payload)
	e2.checkResponses([]string{"server3"})
	if e2.IsCoordinator() {
		t.Error("Node must not declare when a higher peer answered")
	}
	if e2.electionInProgress.Load() {
		t.Error("Election flag should be cleared after the response window")
	}
}

func TestElectionHandleElectionMessage(t *testing.T) {
	messenger := newFakeMessenger()
	peers := electionPeers("server3", "server1")
	e := NewElection("server3", peers, messenger, time.Minute)

	payload, _ := json.Marshal(map[string]any{"action": models.ActionElection, "fromServer": "server1"})
	reply := e.handleElection(payload)

	if success, _ := reply["success"].(bool); !success {
		t.Errorf("Expected success reply, got %v", reply)
	}
	if got := messenger.actionsSentTo("server1"); len(got) == 0 || got[0] != models.ActionElectionResponse {
		t.Errorf("Expected ELECTION_RESPONSE sent back to server1, got %v", got)
	}
}

func TestElectionStepDown(t *testing.T) {
	messenger := newFakeMessenger()
	peers := electionPeers("server2", "server3")
	e := NewElection("server2", peers, messenger, time.Minute)
	e.isCoordinator.Store(true)

	payload, _ := json.Marshal(map[string]any{"action": models.ActionCoordinator, "coordinatorId": "server3"})
	e.handleCoordinator(payload)

	if e.IsCoordinator() {
		t.Error("Node must step down for a higher-id coordinator")
	}
	if e.CoordinatorID() != "server3" {
		t.Errorf("Expected recorded coordinator server3, got %s", e.CoordinatorID())
	}
}

func TestElectionIsCoordinatorReply(t *testing.T) {
	e := NewElection("server1", electionPeers("server1"), newFakeMessenger(), time.Minute)

	reply := e.handleIsCoordinator(nil)
	if is, _ := reply["isCoordinator"].(bool); is {
		t.Error("Fresh node should not report itself coordinator")
	}

	e.isCoordinator.Store(true)
	reply = e.handleIsCoordinator(nil)
	if is, _ := reply["isCoordinator"].(bool); !is {
		t.Error("Coordinator should report itself")
	}
}
