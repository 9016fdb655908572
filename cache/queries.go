package cache

import (
	"slices"

	"github.com/CefBoud/monmeta/types"
	"github.com/google/uuid"
)

// Every query below captures exactly one snapshot at entry and computes purely
// from it: a query that races a concurrent update sees either the entirely old
// or the entirely new topology, never a mixture.

// PartitionMetadata is one partition's resolved metadata
type PartitionMetadata struct {
	Err             types.Error
	PartitionIndex  int32
	LeaderID        int32
	LeaderEpoch     int32
	ReplicaNodes    []int32
	IsrNodes        []int32
	OfflineReplicas []int32
}

// TopicMetadata is one topic's resolved metadata
type TopicMetadata struct {
	Err        types.Error
	Name       string
	TopicID    uuid.UUID
	Partitions []PartitionMetadata
}

// TopicsMetadata resolves the requested topics against the current snapshot
// under the given listener. Requested topics absent from the snapshot are
// omitted, not errored (see NonExistingTopics). When errorUnavailableEndpoints
// is set, partitions whose replica or ISR members cannot be reached under the
// listener report ReplicaNotAvailable and keep their full id lists; otherwise
// unreachable members are silently dropped from the returned lists. When
// errorUnavailableListeners is set, an alive leader without the listener
// reports ListenerNotFound instead of LeaderNotAvailable.
func (c *MetadataCache) TopicsMetadata(topics []string, listenerName string, errorUnavailableEndpoints, errorUnavailableListeners bool) []TopicMetadata {
	snapshot := c.store.Current()
	var res []TopicMetadata
	for _, topic := range topics {
		partitions, ok := snapshot.partitionStates[topic]
		if !ok {
			continue
		}
		tm := TopicMetadata{
			Err:        types.ErrNone,
			Name:       topic,
			TopicID:    snapshot.topicIDs[topic],
			Partitions: make([]PartitionMetadata, 0, len(partitions)),
		}
		for index, ps := range partitions {
			tm.Partitions = append(tm.Partitions, partitionMetadata(snapshot, index, ps, listenerName, errorUnavailableEndpoints, errorUnavailableListeners))
		}
		res = append(res, tm)
	}
	return res
}

func partitionMetadata(snapshot *Snapshot, index int32, ps types.PartitionState, listenerName string, errorUnavailableEndpoints, errorUnavailableListeners bool) PartitionMetadata {
	filteredReplicas := filterReachable(snapshot, ps.ReplicaNodes, listenerName)
	filteredIsr := filterReachable(snapshot, ps.IsrNodes, listenerName)

	replicas := filteredReplicas
	isr := filteredIsr
	if errorUnavailableEndpoints {
		// the caller wants the full lists, with the gap surfaced as an error
		replicas = ps.ReplicaNodes
		isr = ps.IsrNodes
	}

	pm := PartitionMetadata{
		PartitionIndex:  index,
		LeaderID:        ps.LeaderID,
		LeaderEpoch:     ps.LeaderEpoch,
		ReplicaNodes:    replicas,
		IsrNodes:        isr,
		OfflineReplicas: ps.OfflineReplicas,
	}

	_, leaderAlive := snapshot.aliveBrokers[ps.LeaderID]
	switch {
	case !leaderAlive:
		pm.Err = types.ErrLeaderNotAvailable
	case !snapshot.hasAliveEndpoint(ps.LeaderID, listenerName):
		if errorUnavailableListeners {
			pm.Err = types.ErrListenerNotFound
		} else {
			pm.Err = types.ErrLeaderNotAvailable
		}
	case errorUnavailableEndpoints && (len(filteredReplicas) < len(ps.ReplicaNodes) || len(filteredIsr) < len(ps.IsrNodes)):
		pm.Err = types.ErrReplicaNotAvailable
	default:
		pm.Err = types.ErrNone
	}
	return pm
}

func filterReachable(snapshot *Snapshot, ids []int32, listenerName string) []int32 {
	res := make([]int32, 0, len(ids))
	for _, id := range ids {
		if snapshot.hasAliveEndpoint(id, listenerName) {
			res = append(res, id)
		}
	}
	return res
}

// AllTopics returns the names of every cached topic, sorted
func (c *MetadataCache) AllTopics() []string {
	snapshot := c.store.Current()
	topics := make([]string, 0, len(snapshot.partitionStates))
	for topic := range snapshot.partitionStates {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// AllPartitions returns the identity of every cached partition
func (c *MetadataCache) AllPartitions() []types.TopicPartition {
	snapshot := c.store.Current()
	res := make([]types.TopicPartition, 0, snapshot.partitionCount())
	for topic, partitions := range snapshot.partitionStates {
		for index := range partitions {
			res = append(res, types.TopicPartition{Topic: topic, Partition: index})
		}
	}
	return res
}

// NonExistingTopics returns the requested names absent from the cache, in
// request order
func (c *MetadataCache) NonExistingTopics(topics []string) []string {
	snapshot := c.store.Current()
	var missing []string
	seen := make(map[string]bool)
	for _, topic := range topics {
		if _, ok := snapshot.partitionStates[topic]; !ok && !seen[topic] {
			missing = append(missing, topic)
			seen[topic] = true
		}
	}
	return missing
}

// ContainsTopic reports whether the topic is cached
func (c *MetadataCache) ContainsTopic(topic string) bool {
	snapshot := c.store.Current()
	_, ok := snapshot.partitionStates[topic]
	return ok
}

// ContainsPartition reports whether the partition is cached
func (c *MetadataCache) ContainsPartition(topic string, partition int32) bool {
	snapshot := c.store.Current()
	_, ok := snapshot.partitionState(topic, partition)
	return ok
}

// TopicID returns the topic's stable identifier, if any
func (c *MetadataCache) TopicID(topic string) (uuid.UUID, bool) {
	snapshot := c.store.Current()
	id, ok := snapshot.topicIDs[topic]
	return id, ok
}

// AliveBroker returns the broker if it is in the alive set
func (c *MetadataCache) AliveBroker(id int32) (types.Broker, bool) {
	snapshot := c.store.Current()
	b, ok := snapshot.aliveBrokers[id]
	return b, ok
}

// AliveBrokers returns every broker in the alive set
func (c *MetadataCache) AliveBrokers() []types.Broker {
	snapshot := c.store.Current()
	res := make([]types.Broker, 0, len(snapshot.aliveBrokers))
	for _, b := range snapshot.aliveBrokers {
		res = append(res, b)
	}
	return res
}

// ControllerID returns the current controller's node id, if one is known
func (c *MetadataCache) ControllerID() (int32, bool) {
	snapshot := c.store.Current()
	if snapshot.controllerID == types.NoController {
		return types.NoController, false
	}
	return snapshot.controllerID, true
}

// PartitionLeaderEndpoint resolves a partition's leader under the listener.
// The result is three-way: nil for an unknown partition, the empty node for a
// leader that is known but unreachable or missing the listener, the resolved
// node otherwise.
func (c *MetadataCache) PartitionLeaderEndpoint(topic string, partition int32, listenerName string) *types.Node {
	snapshot := c.store.Current()
	ps, ok := snapshot.partitionState(topic, partition)
	if !ok {
		return nil
	}
	leader, ok := snapshot.aliveBrokers[ps.LeaderID]
	if !ok {
		return &types.Node{NodeID: types.NoNode}
	}
	node, ok := leader.Endpoint(listenerName)
	if !ok {
		return &types.Node{NodeID: types.NoNode}
	}
	return &node
}

// PartitionReplicaEndpoints resolves every replica of the partition under the
// listener, dropping replicas without a usable endpoint
func (c *MetadataCache) PartitionReplicaEndpoints(topic string, partition int32, listenerName string) map[int32]types.Node {
	snapshot := c.store.Current()
	res := make(map[int32]types.Node)
	ps, ok := snapshot.partitionState(topic, partition)
	if !ok {
		return res
	}
	for _, id := range ps.ReplicaNodes {
		if b, ok := snapshot.aliveBrokers[id]; ok {
			if node, ok := b.Endpoint(listenerName); ok && !node.IsEmpty() {
				res[id] = node
			}
		}
	}
	return res
}

// PartitionInfo is one partition of a ClusterView with its endpoints resolved
type PartitionInfo struct {
	Topic           string
	Partition       int32
	Leader          *types.Node
	Replicas        []types.Node
	Isr             []types.Node
	OfflineReplicas []types.Node
}

// ClusterView is a full, point-in-time picture of the cluster under one listener
type ClusterView struct {
	ClusterID  string
	Nodes      []types.Node
	Controller *types.Node
	Partitions []PartitionInfo
}

// ClusterAsView assembles the whole cluster under the listener: the nodes
// reachable under it, every partition not currently mid-deletion, and the
// controller's resolved node if known. The full scan completes against the
// single snapshot captured at entry.
func (c *MetadataCache) ClusterAsView(clusterID string, listenerName string) ClusterView {
	snapshot := c.store.Current()

	nodesByID := make(map[int32]types.Node, len(snapshot.aliveBrokers))
	nodes := make([]types.Node, 0, len(snapshot.aliveBrokers))
	for id, b := range snapshot.aliveBrokers {
		if node, ok := b.Endpoint(listenerName); ok {
			nodesByID[id] = node
			nodes = append(nodes, node)
		}
	}
	// a replica id with no reachable endpoint still appears, as an id-only node
	node := func(id int32) types.Node {
		if n, ok := nodesByID[id]; ok {
			return n
		}
		return types.Node{NodeID: id}
	}

	view := ClusterView{ClusterID: clusterID, Nodes: nodes}
	if snapshot.controllerID != types.NoController {
		if n, ok := nodesByID[snapshot.controllerID]; ok {
			view.Controller = &n
		}
	}
	for topic, partitions := range snapshot.partitionStates {
		for index, ps := range partitions {
			if ps.LeaderID == types.LeaderDuringDelete {
				continue
			}
			info := PartitionInfo{Topic: topic, Partition: index}
			if n, ok := nodesByID[ps.LeaderID]; ok {
				info.Leader = &n
			}
			for _, id := range ps.ReplicaNodes {
				info.Replicas = append(info.Replicas, node(id))
			}
			for _, id := range ps.IsrNodes {
				info.Isr = append(info.Isr, node(id))
			}
			for _, id := range ps.OfflineReplicas {
				info.OfflineReplicas = append(info.OfflineReplicas, node(id))
			}
			view.Partitions = append(view.Partitions, info)
		}
	}
	return view
}
