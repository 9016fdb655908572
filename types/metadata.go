package types

import (
	"fmt"

	"github.com/google/uuid"
)

// Sentinel node ids used on the wire and in the cache.
const (
	// NoNode is the id of the empty node returned when an endpoint cannot be resolved.
	NoNode int32 = -1
	// NoLeader marks a partition that currently has no leader.
	NoLeader int32 = -1
	// LeaderDuringDelete is the leader id carried by a partition state that
	// instructs the receiver to drop the partition.
	LeaderDuringDelete int32 = -2
	// NoController means no controller is currently known.
	NoController int32 = -1
)

// Endpoint is a network address a broker listens on.
type Endpoint struct {
	Host string
	Port uint32
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Broker is a cluster member. A broker may advertise several endpoints under
// different listener names (e.g. internal vs external traffic).
type Broker struct {
	NodeID    int32
	Rack      string
	Endpoints map[string]Endpoint // listener name -> endpoint
}

// Endpoint resolves the broker under the given listener name into a flat Node.
// The second return value is false when the broker does not advertise that listener.
func (b Broker) Endpoint(listenerName string) (Node, bool) {
	ep, ok := b.Endpoints[listenerName]
	if !ok {
		return Node{NodeID: NoNode}, false
	}
	return Node{NodeID: b.NodeID, Host: ep.Host, Port: ep.Port, Rack: b.Rack}, true
}

// Node is a broker as seen through one listener: a single resolved address.
type Node struct {
	NodeID int32
	Host   string
	Port   uint32
	Rack   string
}

// IsEmpty reports whether the node carries no usable address.
func (n Node) IsEmpty() bool {
	return n.Host == ""
}

// PartitionState represents one partition's replication state
type PartitionState struct {
	Topic           string // Topic Name
	PartitionIndex  int32
	LeaderID        int32
	LeaderEpoch     int32
	ReplicaNodes    []int32
	IsrNodes        []int32
	OfflineReplicas []int32
}

// TopicPartition identifies a single partition
type TopicPartition struct {
	Topic     string
	Partition int32
}

func (tp TopicPartition) String() string {
	return fmt.Sprintf("%s-%d", tp.Topic, tp.Partition)
}

// Topic is a topic as held by the controller's state machine
type Topic struct {
	TopicID    uuid.UUID
	Name       string
	Partitions map[int32]PartitionState
	Configs    map[string]string
}
