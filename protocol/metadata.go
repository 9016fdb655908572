package protocol

import (
	"github.com/CefBoud/monmeta/cache"
	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/serde"
	"github.com/CefBoud/monmeta/types"
)

// Metadata	(Api key = 3)

// MetadataRequest represents a metadata request. An empty topic list means
// "request metadata for all topics".
type MetadataRequest struct {
	Topics []string
}

func (b *Broker) getMetadataResponse(req types.Request) []byte {
	decoder := serde.NewDecoder(req.Body)
	metadataRequest := MetadataRequest{}
	for i, n := 0, decoder.ArrayLen(); i < n; i++ {
		metadataRequest.Topics = append(metadataRequest.Topics, decoder.String())
	}
	log.Debug("metadataRequest %+v", metadataRequest)

	// Everything below resolves against one snapshot of the local cache: the
	// listed brokers, the controller and the per-partition leaders come from
	// the same point in time even if an update lands mid-request.
	topics := metadataRequest.Topics
	if len(topics) == 0 {
		topics = b.Cache.AllTopics()
	}
	topicsMetadata := b.Cache.TopicsMetadata(topics, b.Config.ListenerName, true, true)
	// requested topics the cache doesn't know still get a response entry
	for _, name := range b.Cache.NonExistingTopics(topics) {
		topicsMetadata = append(topicsMetadata, cache.TopicMetadata{
			Err:  types.ErrUnknownTopicOrPartition,
			Name: name,
		})
	}

	controllerID := types.NoController
	if id, ok := b.Cache.ControllerID(); ok {
		controllerID = id
	}

	encoder := serde.NewEncoder()
	encoder.PutInt32(req.CorrelationID)
	encoder.EndStruct()

	encoder.PutInt32(0) // ThrottleTimeMs

	brokers := b.Cache.AliveBrokers()
	reachable := make([]types.Node, 0, len(brokers))
	for _, broker := range brokers {
		if node, ok := broker.Endpoint(b.Config.ListenerName); ok {
			reachable = append(reachable, node)
		}
	}
	encoder.PutArrayLen(len(reachable))
	for _, node := range reachable {
		encoder.PutSignedInt32(node.NodeID)
		encoder.PutString(node.Host)
		encoder.PutInt32(node.Port)
		encoder.PutString(node.Rack)
	}

	encoder.PutString(ClusterID)
	encoder.PutSignedInt32(controllerID)

	encoder.PutArrayLen(len(topicsMetadata))
	for _, tm := range topicsMetadata {
		encoder.PutInt16(uint16(tm.Err.Code))
		encoder.PutString(tm.Name)
		encoder.PutUUID(tm.TopicID)
		encoder.PutBool(false) // IsInternal
		encoder.PutArrayLen(len(tm.Partitions))
		for _, pm := range tm.Partitions {
			encoder.PutInt16(uint16(pm.Err.Code))
			encoder.PutSignedInt32(pm.PartitionIndex)
			encoder.PutSignedInt32(pm.LeaderID)
			encoder.PutSignedInt32(pm.LeaderEpoch)
			encoder.PutInt32Array(pm.ReplicaNodes)
			encoder.PutInt32Array(pm.IsrNodes)
			encoder.PutInt32Array(pm.OfflineReplicas)
		}
	}

	encoder.PutLen()
	return encoder.Bytes()
}
