package protocol

import (
	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/serde"
	"github.com/CefBoud/monmeta/types"
)

// UpdateMetadata (Api key = 6)
//
// Body layout (version 0, classic encoding):
//
//	controller_id INT32, controller_epoch INT32,
//	live_brokers ARRAY[node_id INT32, rack STRING, endpoints ARRAY[listener STRING, host STRING, port INT32]],
//	topic_ids ARRAY[name STRING, topic_id UUID],
//	partition_states ARRAY[topic STRING, partition INT32, leader INT32, leader_epoch INT32,
//	                       replicas ARRAY[INT32], isr ARRAY[INT32], offline ARRAY[INT32]]

// EncodeUpdateMetadataRequestBody writes the request body into the encoder
func EncodeUpdateMetadataRequestBody(encoder *serde.Encoder, req *types.UpdateMetadataRequest) {
	encoder.PutSignedInt32(req.ControllerID)
	encoder.PutSignedInt32(req.ControllerEpoch)

	encoder.PutArrayLen(len(req.LiveBrokers))
	for _, broker := range req.LiveBrokers {
		encoder.PutSignedInt32(broker.NodeID)
		encoder.PutString(broker.Rack)
		encoder.PutArrayLen(len(broker.Endpoints))
		for listener, ep := range broker.Endpoints {
			encoder.PutString(listener)
			encoder.PutString(ep.Host)
			encoder.PutInt32(ep.Port)
		}
	}

	encoder.PutArrayLen(len(req.TopicIDs))
	for _, mapping := range req.TopicIDs {
		encoder.PutString(mapping.Name)
		encoder.PutUUID(mapping.TopicID)
	}

	encoder.PutArrayLen(len(req.PartitionStates))
	for _, ps := range req.PartitionStates {
		encoder.PutString(ps.Topic)
		encoder.PutSignedInt32(ps.PartitionIndex)
		encoder.PutSignedInt32(ps.LeaderID)
		encoder.PutSignedInt32(ps.LeaderEpoch)
		encoder.PutInt32Array(ps.ReplicaNodes)
		encoder.PutInt32Array(ps.IsrNodes)
		encoder.PutInt32Array(ps.OfflineReplicas)
	}
}

// DecodeUpdateMetadataRequest reads a request body. The correlation id lives
// in the frame header and is filled in by the caller.
func DecodeUpdateMetadataRequest(decoder *serde.Decoder) *types.UpdateMetadataRequest {
	req := &types.UpdateMetadataRequest{
		ControllerID:    decoder.Int32(),
		ControllerEpoch: decoder.Int32(),
	}

	for i, n := 0, decoder.ArrayLen(); i < n; i++ {
		broker := types.Broker{
			NodeID:    decoder.Int32(),
			Rack:      decoder.String(),
			Endpoints: make(map[string]types.Endpoint),
		}
		for j, m := 0, decoder.ArrayLen(); j < m; j++ {
			listener := decoder.String()
			broker.Endpoints[listener] = types.Endpoint{Host: decoder.String(), Port: decoder.UInt32()}
		}
		req.LiveBrokers = append(req.LiveBrokers, broker)
	}

	for i, n := 0, decoder.ArrayLen(); i < n; i++ {
		req.TopicIDs = append(req.TopicIDs, types.TopicIDMapping{
			Name:    decoder.String(),
			TopicID: decoder.UUID(),
		})
	}

	for i, n := 0, decoder.ArrayLen(); i < n; i++ {
		req.PartitionStates = append(req.PartitionStates, types.PartitionState{
			Topic:           decoder.String(),
			PartitionIndex:  decoder.Int32(),
			LeaderID:        decoder.Int32(),
			LeaderEpoch:     decoder.Int32(),
			ReplicaNodes:    decoder.Int32Array(),
			IsrNodes:        decoder.Int32Array(),
			OfflineReplicas: decoder.Int32Array(),
		})
	}
	return req
}

func (b *Broker) getUpdateMetadataResponse(req types.Request) []byte {
	decoder := serde.NewDecoder(req.Body)
	updateRequest := DecodeUpdateMetadataRequest(&decoder)
	updateRequest.CorrelationID = req.CorrelationID
	log.Debug("UpdateMetadataRequest from %v: %+v", req.ConnectionAddress, updateRequest)

	deleted := b.Cache.ApplyUpdate(updateRequest)
	if len(deleted) > 0 {
		b.notifyPartitionsDeleted(deleted)
	}

	encoder := serde.NewEncoder()
	encoder.PutInt32(req.CorrelationID)
	encoder.EndStruct()
	encoder.PutInt16(uint16(types.ErrNone.Code))
	encoder.PutLen()
	return encoder.Bytes()
}
