package protocol

import (
	"testing"

	"github.com/CefBoud/monmeta/cache"
	"github.com/CefBoud/monmeta/serde"
	"github.com/CefBoud/monmeta/types"
	"github.com/google/uuid"
)

type decodedMetadataTopic struct {
	errorCode  int16
	name       string
	topicID    [16]byte
	partitions int
}

func decodeMetadataResponse(t *testing.T, raw []byte) (controllerID int32, brokers int, topics []decodedMetadataTopic) {
	t.Helper()
	d := serde.NewDecoder(raw)
	d.UInt32() // frame length
	d.UInt32() // correlation id
	d.EndStruct()
	d.UInt32() // throttle

	brokers = d.ArrayLen()
	for i := 0; i < brokers; i++ {
		d.Int32()      // node id
		_ = d.String() // host
		d.UInt32()     // port
		_ = d.String() // rack
	}
	_ = d.String() // cluster id
	controllerID = d.Int32()

	for i, n := 0, d.ArrayLen(); i < n; i++ {
		topic := decodedMetadataTopic{
			errorCode: int16(d.UInt16()),
			name:      d.String(),
			topicID:   d.UUID(),
		}
		d.Bool() // is internal
		topic.partitions = d.ArrayLen()
		for j := 0; j < topic.partitions; j++ {
			d.UInt16() // error code
			d.Int32()  // partition index
			d.Int32()  // leader
			d.Int32()  // leader epoch
			d.Int32Array()
			d.Int32Array()
			d.Int32Array()
		}
		topics = append(topics, topic)
	}
	return controllerID, brokers, topics
}

func TestMetadataResponseReportsUnknownTopics(t *testing.T) {
	b := &Broker{
		Config: &types.Configuration{NodeID: 1, ListenerName: "PLAINTEXT"},
		Cache:  cache.NewMetadataCache(1),
	}
	ordersID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	b.Cache.ApplyUpdate(&types.UpdateMetadataRequest{
		ControllerID: 1,
		LiveBrokers: []types.Broker{
			{NodeID: 1, Endpoints: map[string]types.Endpoint{"PLAINTEXT": {Host: "host1", Port: 9092}}},
		},
		TopicIDs: []types.TopicIDMapping{{Name: "orders", TopicID: ordersID}},
		PartitionStates: []types.PartitionState{
			{Topic: "orders", PartitionIndex: 0, LeaderID: 1, ReplicaNodes: []int32{1}, IsrNodes: []int32{1}},
		},
	})

	encoder := serde.NewEncoder()
	encoder.PutArrayLen(2)
	encoder.PutString("orders")
	encoder.PutString("ghost")
	raw := b.getMetadataResponse(types.Request{CorrelationID: 7, Body: encoder.Bytes()})

	controllerID, brokers, topics := decodeMetadataResponse(t, raw)
	if controllerID != 1 || brokers != 1 {
		t.Fatalf("controller = %d, brokers = %d", controllerID, brokers)
	}
	if len(topics) != 2 {
		t.Fatalf("got %d topics, want the unknown one reported too", len(topics))
	}
	byName := map[string]decodedMetadataTopic{}
	for _, topic := range topics {
		byName[topic.name] = topic
	}
	if got := byName["orders"]; got.errorCode != types.ErrNone.Code || got.partitions != 1 || got.topicID != [16]byte(ordersID) {
		t.Fatalf("orders entry = %+v", got)
	}
	if got := byName["ghost"]; got.errorCode != types.ErrUnknownTopicOrPartition.Code || got.partitions != 0 {
		t.Fatalf("ghost entry = %+v, want UNKNOWN_TOPIC_OR_PARTITION with no partitions", got)
	}
}
