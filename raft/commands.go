package raft

import (
	"encoding/json"
	"fmt"

	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/types"
)

// CommandType is a raft log command type
type CommandType int

// Commands types that can be applied to the raft log to change the state machine
const (
	AddNode CommandType = iota
	RemoveNode
	AddTopic
	RemoveTopic
	AddPartition
	RemovePartition
)

// Command represents a command type with its payload
type Command struct {
	Kind    CommandType
	Payload json.RawMessage
}

// RemoveNodePayload carries the id of the node leaving the cluster
type RemoveNodePayload struct {
	NodeID int32
}

// RemoveTopicPayload carries the name of the topic being deleted
type RemoveTopicPayload struct {
	Name string
}

// ApplyCommand applies a decoded command to the state machine
func (fsm *FSM) ApplyCommand(cmd Command) error {
	log.Debug("Inside ApplyCommand %v", cmd.Kind)
	switch cmd.Kind {
	case AddNode:
		var node types.Broker
		if err := json.Unmarshal(cmd.Payload, &node); err != nil {
			return fmt.Errorf("could not parse node: %s", err)
		}
		log.Debug("Raft ApplyCommand AddNode: %+v", node)
		fsm.StoreNode(node)

	case RemoveNode:
		var payload RemoveNodePayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return fmt.Errorf("could not parse node removal: %s", err)
		}
		log.Debug("Raft ApplyCommand RemoveNode: %+v", payload)
		fsm.DeleteNode(payload.NodeID)

	case AddTopic:
		var topic types.Topic
		if err := json.Unmarshal(cmd.Payload, &topic); err != nil {
			return fmt.Errorf("could not parse topic: %s", err)
		}
		log.Debug("Raft ApplyCommand AddTopic: %+v", topic)
		fsm.StoreTopic(topic)

	case RemoveTopic:
		var payload RemoveTopicPayload
		if err := json.Unmarshal(cmd.Payload, &payload); err != nil {
			return fmt.Errorf("could not parse topic removal: %s", err)
		}
		log.Debug("Raft ApplyCommand RemoveTopic: %+v", payload)
		fsm.DeleteTopic(payload.Name)

	case AddPartition:
		var partition types.PartitionState
		if err := json.Unmarshal(cmd.Payload, &partition); err != nil {
			return fmt.Errorf("could not parse partition command: %s", err)
		}
		log.Debug("Raft ApplyCommand AddPartition: %+v", partition)
		if err := fsm.StorePartition(partition); err != nil {
			return fmt.Errorf("error applying partition %+v command: %s", partition, err)
		}

	case RemovePartition:
		var tp types.TopicPartition
		if err := json.Unmarshal(cmd.Payload, &tp); err != nil {
			return fmt.Errorf("could not parse partition removal: %s", err)
		}
		log.Debug("Raft ApplyCommand RemovePartition: %+v", tp)
		fsm.DeletePartition(tp)

	default:
		return fmt.Errorf("unknown command type: %#v", cmd.Kind)
	}
	return nil
}

// EncodeLogEntry converts a raft log entry into bytes
func EncodeLogEntry(entryType CommandType, entry any) (res []byte, err error) {
	cmd := Command{Kind: entryType}
	cmd.Payload, err = json.Marshal(entry)
	if err != nil {
		return
	}
	res, err = json.Marshal(cmd)
	return
}
