package cache

import (
	"sync/atomic"

	"github.com/CefBoud/monmeta/types"
	"github.com/google/uuid"
)

// Snapshot is one immutable, internally consistent view of the cluster
// topology. It is built by ApplyUpdate, published once, and never mutated
// afterwards, which is what allows readers to use it without any locking.
// Untouched inner partition maps are shared by reference between successive
// snapshots.
type Snapshot struct {
	// topic name -> partition index -> state
	partitionStates map[string]map[int32]types.PartitionState
	// topic name -> stable topic identifier
	topicIDs map[string]uuid.UUID
	// node id -> broker. Brokers absent from this map are considered
	// unreachable even if some partition state still references them.
	aliveBrokers map[int32]types.Broker
	// types.NoController when unknown
	controllerID int32
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		partitionStates: make(map[string]map[int32]types.PartitionState),
		topicIDs:        make(map[string]uuid.UUID),
		aliveBrokers:    make(map[int32]types.Broker),
		controllerID:    types.NoController,
	}
}

// partitionState looks up one partition's state.
func (s *Snapshot) partitionState(topic string, partition int32) (types.PartitionState, bool) {
	ps, ok := s.partitionStates[topic][partition]
	return ps, ok
}

// hasAliveEndpoint reports whether the broker is alive and advertises the listener.
func (s *Snapshot) hasAliveEndpoint(id int32, listenerName string) bool {
	b, ok := s.aliveBrokers[id]
	if !ok {
		return false
	}
	_, ok = b.Endpoints[listenerName]
	return ok
}

// partitionCount returns the total number of partitions across all topics.
func (s *Snapshot) partitionCount() int {
	n := 0
	for _, partitions := range s.partitionStates {
		n += len(partitions)
	}
	return n
}

// Store holds the currently visible Snapshot. Current never blocks and is safe
// to call from any number of concurrent readers while Publish is in progress;
// Publish is a single atomic replace serialized by the caller.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore returns a Store holding an empty snapshot
func NewStore() *Store {
	s := &Store{}
	s.current.Store(emptySnapshot())
	return s
}

// Publish atomically replaces the visible snapshot
func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}

// Current returns the currently visible snapshot
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}
