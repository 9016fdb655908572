package types

import "github.com/google/uuid"

// TopicIDMapping associates a topic name with its stable identifier. Names may
// be reused after deletion, identifiers are not.
type TopicIDMapping struct {
	Name    string
	TopicID uuid.UUID
}

// UpdateMetadataRequest is the incremental delta the controller pushes to every
// broker. LiveBrokers is a full replacement of the alive set (nil or empty
// means the message carries no liveness information and the previous set is
// kept). TopicIDs merge additively. PartitionStates are a delta over the
// previous partition mapping; an entry whose LeaderID is LeaderDuringDelete
// removes that partition.
type UpdateMetadataRequest struct {
	ControllerID    int32
	ControllerEpoch int32
	CorrelationID   uint32 // for logging/tracing only
	LiveBrokers     []Broker
	TopicIDs        []TopicIDMapping
	PartitionStates []PartitionState
}
