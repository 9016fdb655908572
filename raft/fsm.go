package raft

import (
	"encoding/json"
	"fmt"
	"io"

	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/types"
	"github.com/hashicorp/raft"
)

// Apply applies a `raft.Log` to the FSM
func (fsm *FSM) Apply(entry *raft.Log) any {
	switch entry.Type {
	case raft.LogCommand:
		var cmd Command
		if err := json.Unmarshal(entry.Data, &cmd); err != nil {
			return fmt.Errorf("could not parse payload: %s", err)
		}
		if err := fsm.ApplyCommand(cmd); err != nil {
			log.Error("raft apply: %v", err)
			return err
		}
	default:
		return fmt.Errorf("unknown raft log type: %#v", entry.Type)
	}
	return nil
}

type fsmSnapshot struct {
	Nodes  map[int32]types.Broker
	Topics map[string]types.Topic
}

// Persist writes the captured state to the snapshot sink
func (s fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s); err != nil {
		sink.Cancel()
		return fmt.Errorf("could not persist FSM snapshot: %s", err)
	}
	return sink.Close()
}

func (s fsmSnapshot) Release() {}

// Snapshot captures the FSM state into a struct that implements the
// raft.FSMSnapshot interface
func (fsm *FSM) Snapshot() (raft.FSMSnapshot, error) {
	fsm.RLock()
	defer fsm.RUnlock()

	snap := fsmSnapshot{
		Nodes:  make(map[int32]types.Broker, len(fsm.Nodes)),
		Topics: make(map[string]types.Topic, len(fsm.Topics)),
	}
	for id, n := range fsm.Nodes {
		snap.Nodes[id] = n
	}
	for name, topic := range fsm.Topics {
		partitions := make(map[int32]types.PartitionState, len(topic.Partitions))
		for index, ps := range topic.Partitions {
			partitions[index] = ps
		}
		topic.Partitions = partitions
		snap.Topics[name] = topic
	}
	return snap, nil
}

// Restore replaces the FSM state from a snapshot
func (fsm *FSM) Restore(rc io.ReadCloser) error {
	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("could not decode snapshot during restore: %s", err)
	}
	fsm.Lock()
	fsm.Nodes = snap.Nodes
	fsm.Topics = snap.Topics
	if fsm.Nodes == nil {
		fsm.Nodes = make(map[int32]types.Broker)
	}
	if fsm.Topics == nil {
		fsm.Topics = make(map[string]types.Topic)
	}
	fsm.Unlock()
	fsm.markChanged()
	log.Info("restored FSM from snapshot: %d nodes, %d topics", len(snap.Nodes), len(snap.Topics))
	return rc.Close()
}
