package types

// https://kafka.apache.org/protocol#protocol_error_codes

// Error is a struct to hold the code, message, and retriability status.
// Resolution errors are data: they travel inside responses and query results,
// they are never returned as Go errors.
type Error struct {
	Code        int16
	Message     string
	IsRetriable bool
}

// Define each error as a variable of type Error
var (
	ErrUnknownServerError       = Error{Code: -1, Message: "The server experienced an unexpected error when processing the request.", IsRetriable: false}
	ErrNone                     = Error{Code: 0, Message: "", IsRetriable: false}
	ErrUnknownTopicOrPartition  = Error{Code: 3, Message: "This server does not host this topic-partition.", IsRetriable: true}
	ErrLeaderNotAvailable       = Error{Code: 5, Message: "There is no leader for this topic-partition as we are in the middle of a leadership election.", IsRetriable: true}
	ErrNotLeaderOrFollower      = Error{Code: 6, Message: "For requests intended only for the leader, this error indicates that the broker is not the current leader. For requests intended for any replica, this error indicates that the broker is not a replica of the topic partition.", IsRetriable: true}
	ErrReplicaNotAvailable      = Error{Code: 9, Message: "The replica is not available for the requested topic-partition.", IsRetriable: true}
	ErrStaleControllerEpoch     = Error{Code: 11, Message: "The controller moved to another broker.", IsRetriable: false}
	ErrUnsupportedVersion       = Error{Code: 35, Message: "The version of API is not supported.", IsRetriable: false}
	ErrTopicAlreadyExists       = Error{Code: 36, Message: "Topic with this name already exists.", IsRetriable: false}
	ErrInvalidPartitions        = Error{Code: 37, Message: "Number of partitions is below 1.", IsRetriable: false}
	ErrInvalidReplicationFactor = Error{Code: 38, Message: "Replication factor is below 1 or larger than the number of available brokers.", IsRetriable: false}
	ErrNotController            = Error{Code: 41, Message: "This is not the correct controller for this cluster.", IsRetriable: true}
	ErrListenerNotFound         = Error{Code: 72, Message: "There is no listener on the leader broker that matches the listener on which metadata request was processed.", IsRetriable: true}
)

// ErrorMap associates error codes with corresponding Error structs
var ErrorMap = map[int16]Error{
	-1: ErrUnknownServerError,
	0:  ErrNone,
	3:  ErrUnknownTopicOrPartition,
	5:  ErrLeaderNotAvailable,
	6:  ErrNotLeaderOrFollower,
	9:  ErrReplicaNotAvailable,
	11: ErrStaleControllerEpoch,
	35: ErrUnsupportedVersion,
	36: ErrTopicAlreadyExists,
	37: ErrInvalidPartitions,
	38: ErrInvalidReplicationFactor,
	41: ErrNotController,
	72: ErrListenerNotFound,
}
