package node

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// nodeState is the part of a node that survives restarts. The clock offset
// is restored on boot so Berkeley corrections are not lost to a crash.
type nodeState struct {
	ClockOffset int64 `json:"clockOffset"`
}

func loadState(path string) nodeState {
	var state nodeState
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[Node] failed to read state file: %v", err)
		}
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil {
		log.Printf("[Node] failed to decode state file: %v", err)
		return nodeState{}
	}
	return state
}

func saveState(path string, state nodeState) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		log.Printf("[Node] failed to encode state: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("[Node] failed to create state directory: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Printf("[Node] failed to write state file: %v", err)
	}
}
