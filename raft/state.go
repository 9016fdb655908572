package raft

import (
	"fmt"
	"sync"

	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/types"
)

// FSM is the finite-state-machine of the raft log. It is the cluster's source
// of truth for topology: the brokers' metadata caches are views of this state,
// kept in sync through UpdateMetadata propagation.
type FSM struct {
	NodeID int32
	Nodes  map[int32]types.Broker
	Topics map[string]types.Topic

	// partitions removed since the last drain, kept as delete-sentinel states
	// so the propagation loop can emit them downstream
	pendingDeletes []types.PartitionState

	// changeCh gets a token whenever the topology changes
	changeCh chan struct{}

	sync.RWMutex
}

// NewFSM creates an empty FSM for the given local node id
func NewFSM(nodeID int32) *FSM {
	return &FSM{
		NodeID:   nodeID,
		Nodes:    make(map[int32]types.Broker),
		Topics:   make(map[string]types.Topic),
		changeCh: make(chan struct{}, 1),
	}
}

// ChangeCh signals topology changes to the metadata propagation loop
func (fsm *FSM) ChangeCh() <-chan struct{} {
	return fsm.changeCh
}

func (fsm *FSM) markChanged() {
	select {
	case fsm.changeCh <- struct{}{}:
	default:
	}
}

// StoreNode stores a node (broker) in the FSM
func (fsm *FSM) StoreNode(node types.Broker) {
	fsm.Lock()
	defer fsm.Unlock()
	fsm.Nodes[node.NodeID] = node
	fsm.markChanged()
}

// DeleteNode removes a node from the FSM
func (fsm *FSM) DeleteNode(nodeID int32) {
	fsm.Lock()
	defer fsm.Unlock()
	delete(fsm.Nodes, nodeID)
	fsm.markChanged()
}

// StoreTopic stores a topic in the FSM
func (fsm *FSM) StoreTopic(topic types.Topic) {
	fsm.Lock()
	defer fsm.Unlock()
	if _, ok := fsm.Topics[topic.Name]; !ok {
		fsm.Topics[topic.Name] = types.Topic{
			TopicID:    topic.TopicID,
			Name:       topic.Name,
			Partitions: make(map[int32]types.PartitionState),
			Configs:    topic.Configs,
		}
		fsm.markChanged()
	}
}

// DeleteTopic removes a topic and all its partitions from the FSM
func (fsm *FSM) DeleteTopic(name string) {
	fsm.Lock()
	defer fsm.Unlock()
	topic, ok := fsm.Topics[name]
	if !ok {
		return
	}
	for index := range topic.Partitions {
		fsm.pendingDeletes = append(fsm.pendingDeletes, types.PartitionState{
			Topic:          name,
			PartitionIndex: index,
			LeaderID:       types.LeaderDuringDelete,
		})
	}
	delete(fsm.Topics, name)
	fsm.markChanged()
}

// StorePartition stores a partition in the FSM
func (fsm *FSM) StorePartition(partition types.PartitionState) error {
	fsm.Lock()
	defer fsm.Unlock()
	if _, ok := fsm.Topics[partition.Topic]; !ok {
		return fmt.Errorf("topic %v doesn't exist in raft FSM", partition.Topic)
	}
	fsm.Topics[partition.Topic].Partitions[partition.PartitionIndex] = partition
	log.Debug("StorePartition %v-%v leader %v", partition.Topic, partition.PartitionIndex, partition.LeaderID)
	fsm.markChanged()
	return nil
}

// DeletePartition removes a partition from the FSM. Removing the last
// partition removes the topic as well.
func (fsm *FSM) DeletePartition(tp types.TopicPartition) {
	fsm.Lock()
	defer fsm.Unlock()
	topic, ok := fsm.Topics[tp.Topic]
	if !ok {
		return
	}
	if _, ok := topic.Partitions[tp.Partition]; !ok {
		return
	}
	delete(topic.Partitions, tp.Partition)
	fsm.pendingDeletes = append(fsm.pendingDeletes, types.PartitionState{
		Topic:          tp.Topic,
		PartitionIndex: tp.Partition,
		LeaderID:       types.LeaderDuringDelete,
	})
	if len(topic.Partitions) == 0 {
		delete(fsm.Topics, tp.Topic)
	}
	fsm.markChanged()
}

// TopicExists returns whether a topic exists in the FSM
func (fsm *FSM) TopicExists(name string) bool {
	fsm.RLock()
	defer fsm.RUnlock()
	_, ok := fsm.Topics[name]
	return ok
}

// LiveBrokers returns a copy of the current broker set
func (fsm *FSM) LiveBrokers() []types.Broker {
	fsm.RLock()
	defer fsm.RUnlock()
	brokers := make([]types.Broker, 0, len(fsm.Nodes))
	for _, n := range fsm.Nodes {
		brokers = append(brokers, n)
	}
	return brokers
}

// BuildUpdateRequest assembles an UpdateMetadataRequest from the current
// topology: the full broker set, every topic id mapping, any pending deletions
// followed by the full partition state. Pending deletions are drained in the
// same critical section so a deletion is emitted exactly once.
func (fsm *FSM) BuildUpdateRequest(controllerID int32, controllerEpoch int32, correlationID uint32) *types.UpdateMetadataRequest {
	fsm.Lock()
	defer fsm.Unlock()

	req := &types.UpdateMetadataRequest{
		ControllerID:    controllerID,
		ControllerEpoch: controllerEpoch,
		CorrelationID:   correlationID,
	}
	for _, n := range fsm.Nodes {
		req.LiveBrokers = append(req.LiveBrokers, n)
	}
	// Deletions go first: receivers apply entries in order, so a sentinel for a
	// partition that has since been re-created under the same name must not
	// land after (and wipe out) the re-created state.
	req.PartitionStates = append(req.PartitionStates, fsm.pendingDeletes...)
	fsm.pendingDeletes = nil
	for name, topic := range fsm.Topics {
		req.TopicIDs = append(req.TopicIDs, types.TopicIDMapping{Name: name, TopicID: topic.TopicID})
		for _, ps := range topic.Partitions {
			req.PartitionStates = append(req.PartitionStates, ps)
		}
	}
	return req
}
