package cluster

import (
	"errors"
	"sync"
)

// fakeMessenger records outbound traffic and serves canned responses.
type fakeMessenger struct {
	mu        sync.Mutex
	sent      []sentMessage
	responses map[string]map[string]any
	failures  map[string]bool
}

type sentMessage struct {
	target string
	msg    map[string]any
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		responses: make(map[string]map[string]any),
		failures:  make(map[string]bool),
	}
}

func (f *fakeMessenger) Send(targetID string, msg map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{target: targetID, msg: msg})
}

func (f *fakeMessenger) SendWithResponse(targetID string, msg map[string]any) (map[string]any, error) {
	f.mu.Lock()
	f.sent = append(f.sent, sentMessage{target: targetID, msg: msg})
	failed := f.failures[targetID]
	resp := f.responses[targetID]
	f.mu.Unlock()

	if failed {
		return nil, errors.New("peer unreachable")
	}
	if resp != nil {
		return resp, nil
	}
	return map[string]any{"success": true}, nil
}

func (f *fakeMessenger) Broadcast(msg map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{target: "*", msg: msg})
}

func (f *fakeMessenger) sentTo(target string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]any
	for _, s := range f.sent {
		if s.target == target {
			out = append(out, s.msg)
		}
	}
	return out
}

func (f *fakeMessenger) actionsSentTo(target string) []string {
	var out []string
	for _, msg := range f.sentTo(target) {
		if a, ok := msg["action"].(string); ok {
			out = append(out, a)
		}
	}
	return out
}
