package protocol

import (
	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/raft"
	"github.com/CefBoud/monmeta/serde"
	"github.com/CefBoud/monmeta/types"
	"github.com/google/uuid"
)

// DefaultNumPartition is used when a creation request doesn't specify a partition count
var DefaultNumPartition = int32(1)

// CreateTopicsRequestTopic represents the details of a topic to be created.
type CreateTopicsRequestTopic struct {
	Name              string
	NumPartitions     int32
	ReplicationFactor int16
}

// CreateTopicsResponseTopic represents a topic's creation result.
type CreateTopicsResponseTopic struct {
	Name      string
	TopicID   uuid.UUID
	ErrorCode int16
}

// CreateTopics (Api key = 19). Only the controller originates topology
// changes: it appends them to the raft log, and the FSM change triggers
// UpdateMetadata propagation towards every broker's cache.
func (b *Broker) getCreateTopicResponse(req types.Request) []byte {
	decoder := serde.NewDecoder(req.Body)
	var requestTopics []CreateTopicsRequestTopic
	for i, n := 0, decoder.ArrayLen(); i < n; i++ {
		requestTopics = append(requestTopics, CreateTopicsRequestTopic{
			Name:              decoder.String(),
			NumPartitions:     decoder.Int32(),
			ReplicationFactor: int16(decoder.UInt16()),
		})
	}
	log.Debug("CreateTopicsRequest %+v", requestTopics)

	var responseTopics []CreateTopicsResponseTopic
	for _, topic := range requestTopics {
		responseTopics = append(responseTopics, b.createTopic(topic))
	}

	encoder := serde.NewEncoder()
	encoder.PutInt32(req.CorrelationID)
	encoder.EndStruct()
	encoder.PutArrayLen(len(responseTopics))
	for _, t := range responseTopics {
		encoder.PutString(t.Name)
		encoder.PutUUID(t.TopicID)
		encoder.PutInt16(uint16(t.ErrorCode))
	}
	encoder.PutLen()
	return encoder.Bytes()
}

func (b *Broker) createTopic(topic CreateTopicsRequestTopic) CreateTopicsResponseTopic {
	response := CreateTopicsResponseTopic{Name: topic.Name}
	if !b.IsController() {
		response.ErrorCode = types.ErrNotController.Code
		return response
	}
	if b.FSM.TopicExists(topic.Name) {
		response.ErrorCode = types.ErrTopicAlreadyExists.Code
		return response
	}
	if topic.NumPartitions == -1 {
		topic.NumPartitions = DefaultNumPartition
	}
	if topic.NumPartitions < 1 {
		response.ErrorCode = types.ErrInvalidPartitions.Code
		return response
	}
	brokers := b.FSM.LiveBrokers()
	if topic.ReplicationFactor < 1 || int(topic.ReplicationFactor) > len(brokers) {
		response.ErrorCode = types.ErrInvalidReplicationFactor.Code
		return response
	}

	topicID := uuid.New()
	_, err := b.AppendRaftEntry(raft.AddTopic, types.Topic{TopicID: topicID, Name: topic.Name})
	if err != nil {
		log.Error("Error creating topic %v: %v", topic.Name, err)
		response.ErrorCode = types.ErrUnknownServerError.Code
		return response
	}

	for index := int32(0); index < topic.NumPartitions; index++ {
		replicas := assignReplicas(brokers, index, topic.ReplicationFactor)
		partition := types.PartitionState{
			Topic:          topic.Name,
			PartitionIndex: index,
			LeaderID:       replicas[0],
			LeaderEpoch:    0,
			ReplicaNodes:   replicas,
			IsrNodes:       replicas,
		}
		if _, err := b.AppendRaftEntry(raft.AddPartition, partition); err != nil {
			log.Error("Error creating partition %v-%v: %v", topic.Name, index, err)
			response.ErrorCode = types.ErrUnknownServerError.Code
			return response
		}
	}
	response.TopicID = topicID
	return response
}

// assignReplicas spreads a partition's replicas round-robin over the brokers,
// rotating the leader with the partition index
func assignReplicas(brokers []types.Broker, partitionIndex int32, replicationFactor int16) []int32 {
	replicas := make([]int32, 0, replicationFactor)
	for i := 0; i < int(replicationFactor); i++ {
		b := brokers[(int(partitionIndex)+i)%len(brokers)]
		replicas = append(replicas, b.NodeID)
	}
	return replicas
}

// DeleteTopics (Api key = 20)
func (b *Broker) getDeleteTopicResponse(req types.Request) []byte {
	decoder := serde.NewDecoder(req.Body)
	var names []string
	for i, n := 0, decoder.ArrayLen(); i < n; i++ {
		names = append(names, decoder.String())
	}
	log.Debug("DeleteTopicsRequest %+v", names)

	type result struct {
		name string
		code int16
	}
	var results []result
	for _, name := range names {
		code := types.ErrNone.Code
		switch {
		case !b.IsController():
			code = types.ErrNotController.Code
		case !b.FSM.TopicExists(name):
			code = types.ErrUnknownTopicOrPartition.Code
		default:
			if _, err := b.AppendRaftEntry(raft.RemoveTopic, raft.RemoveTopicPayload{Name: name}); err != nil {
				log.Error("Error deleting topic %v: %v", name, err)
				code = types.ErrUnknownServerError.Code
			}
		}
		results = append(results, result{name: name, code: code})
	}

	encoder := serde.NewEncoder()
	encoder.PutInt32(req.CorrelationID)
	encoder.EndStruct()
	encoder.PutArrayLen(len(results))
	for _, r := range results {
		encoder.PutString(r.name)
		encoder.PutInt16(uint16(r.code))
	}
	encoder.PutLen()
	return encoder.Bytes()
}
