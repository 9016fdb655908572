package protocol

import (
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/CefBoud/monmeta/logging"
	craft "github.com/CefBoud/monmeta/raft"
	"github.com/CefBoud/monmeta/serde"
	"github.com/CefBoud/monmeta/types"
	"github.com/hashicorp/raft"
	"github.com/hashicorp/serf/serf"
)

func (b *Broker) handleSerfMemberJoin(event serf.MemberEvent) error {
	_, leaderID := b.Raft.LeaderWithID()
	noLeader := leaderID == ""
	if noLeader {
		if b.Config.Bootstrap {
			log.Info("handleSerfMemberJoin: there is no leader, current node will bootstrap")
		} else {
			log.Info("handleSerfMemberJoin: there is no leader, current node WILL NOT bootstrap")
			return nil
		}
	} else {
		if !b.IsController() {
			log.Info("handleSerfMemberJoin: node is not the leader, ignoring join event")
			return nil
		}
	}

	newMembers := make(map[string]serf.Member)
	for _, m := range event.Members {
		if m.Tags["role"] != "broker" {
			log.Info("handleSerfMemberJoin: new member [%v - %v] is not a broker", m.Name, m.Addr)
			continue
		}
		newMembers[m.Tags["raft_addr"]] = m
	}

	raftServers, err := b.getRaftServers()
	if err != nil {
		return err
	}
	for _, server := range raftServers {
		for raftAddr := range newMembers {
			if server.Address == raft.ServerAddress(raftAddr) {
				log.Info("handleSerfMemberJoin: member [%v] already in raft cluster", raftAddr)
				delete(newMembers, raftAddr)
			}
		}
	}
	for raftAddr, m := range newMembers {
		log.Info("handleSerfMemberJoin: adding voter to the raft cluster with addr %s", raftAddr)
		err := b.Raft.AddVoter(raft.ServerID(m.Tags["raft_server_id"]), raft.ServerAddress(m.Tags["raft_addr"]), 0, 0).Error()
		if err != nil {
			log.Error("Failed to add follower: %s", err)
			return err
		}
	}
	// register every joining broker in the topology FSM; the resulting change
	// fans out to all caches through UpdateMetadata
	for _, m := range event.Members {
		if m.Tags["role"] != "broker" {
			continue
		}
		broker, err := brokerFromSerfTags(m)
		if err != nil {
			log.Error("handleSerfMemberJoin: %v", err)
			continue
		}
		if _, err := b.AppendRaftEntry(craft.AddNode, broker); err != nil {
			log.Error("handleSerfMemberJoin: could not register broker %v: %v", broker.NodeID, err)
		}
	}
	return nil
}

func (b *Broker) handleSerfMemberLeft(event serf.MemberEvent) error {
	log.Debug("Inside handleSerfMemberLeft")
	_, leaderID := b.Raft.LeaderWithID()
	if leaderID == "" {
		log.Info("handleSerfMemberLeft: there is no leader. Nothing to do.")
		return nil
	} else if !b.IsController() {
		log.Info("handleSerfMemberLeft: node is not the leader, ignoring left/reap/failed event")
		return nil
	}

	eventMembers := make(map[string]serf.Member)
	for _, m := range event.Members {
		if m.Tags["role"] != "broker" {
			log.Info("handleSerfMemberLeft: member [%v - %v] is not a broker", m.Name, m.Addr)
			continue
		}
		eventMembers[m.Tags["raft_addr"]] = m
	}

	raftServers, err := b.getRaftServers()
	if err != nil {
		return err
	}
	for _, server := range raftServers {
		for raftAddr := range eventMembers {
			if server.Address == raft.ServerAddress(raftAddr) {
				log.Info("handleSerfMemberLeft: removing member [%v] from raft cluster", raftAddr)

				future := b.Raft.RemoveServer(server.ID, 0, 0)
				if err := future.Error(); err != nil {
					log.Error("handleSerfMemberLeft: remove server [%v] from raft error: %s", server.Address, err)
					return err
				}
			}
		}
	}
	// drop the departed brokers from the topology; the shrunk alive set
	// reaches every cache with the next UpdateMetadata
	for _, m := range eventMembers {
		broker, err := brokerFromSerfTags(m)
		if err != nil {
			log.Error("handleSerfMemberLeft: %v", err)
			continue
		}
		if _, err := b.AppendRaftEntry(craft.RemoveNode, craft.RemoveNodePayload{NodeID: broker.NodeID}); err != nil {
			log.Error("handleSerfMemberLeft: could not deregister broker %v: %v", broker.NodeID, err)
		}
	}
	return nil
}

func (b *Broker) monitorLeadership() {
	for {
		select {
		case isLeader := <-b.RaftNotifyCh:
			log.Info("monitorLeadership isLeader: %v", isLeader)
			if isLeader {
				b.controllerMu.Lock()
				b.controllerEpoch++
				b.controllerMu.Unlock()
				// register ourselves and push the full topology on takeover
				if _, err := b.AppendRaftEntry(craft.AddNode, b.localBroker()); err != nil {
					log.Error("monitorLeadership: could not register local broker: %v", err)
				}
			}
		case <-b.ShutDownSignal:
			return
		}
	}
}

func (b *Broker) localBroker() types.Broker {
	endpoints := make(map[string]types.Endpoint, len(b.Config.Listeners))
	for name, ep := range b.Config.Listeners {
		endpoints[name] = ep
	}
	return types.Broker{NodeID: b.Config.NodeID, Rack: b.Config.Rack, Endpoints: endpoints}
}

// propagateMetadata is the controller's fan-out loop: every topology change in
// the FSM turns into one UpdateMetadataRequest pushed to every live broker's
// control address, the controller's own included. The local cache is updated
// through the same request path as everyone else's.
func (b *Broker) propagateMetadata() {
	for {
		select {
		case <-b.FSM.ChangeCh():
			if !b.IsController() {
				continue
			}
			b.controllerMu.Lock()
			b.correlationID++
			correlationID := b.correlationID
			epoch := b.controllerEpoch
			b.controllerMu.Unlock()

			req := b.FSM.BuildUpdateRequest(b.Config.NodeID, epoch, correlationID)
			for _, m := range b.Serf.Members() {
				if m.Tags["role"] != "broker" || m.Status != serf.StatusAlive {
					continue
				}
				addr := m.Tags["control_addr"]
				if err := b.sendUpdateMetadata(addr, req); err != nil {
					log.Error("propagateMetadata: sending to %v failed: %v", addr, err)
				}
			}
		case <-b.ShutDownSignal:
			return
		}
	}
}

// sendUpdateMetadata pushes one UpdateMetadataRequest to a broker's control
// address and waits for its acknowledgement
func (b *Broker) sendUpdateMetadata(addr string, req *types.UpdateMetadataRequest) error {
	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		return fmt.Errorf("dial %v: %v", addr, err)
	}
	defer conn.Close()

	encoder := serde.NewEncoder()
	encoder.PutInt16(updateMetadataKey)
	encoder.PutInt16(0) // api version
	encoder.PutInt32(req.CorrelationID)
	encoder.PutString(fmt.Sprintf("controller-%d", b.Config.NodeID))
	encoder.EndStruct()
	EncodeUpdateMetadataRequestBody(&encoder, req)
	encoder.PutLen()

	if _, err = conn.Write(encoder.Bytes()); err != nil {
		return fmt.Errorf("write %v: %v", addr, err)
	}

	lengthBuffer := make([]byte, 4)
	if _, err = io.ReadFull(conn, lengthBuffer); err != nil {
		return fmt.Errorf("read response length from %v: %v", addr, err)
	}
	body := make([]byte, serde.Encoding.Uint32(lengthBuffer))
	if _, err = io.ReadFull(conn, body); err != nil {
		return fmt.Errorf("read response from %v: %v", addr, err)
	}
	decoder := serde.NewDecoder(body)
	respCorrelationID := decoder.UInt32()
	decoder.EndStruct()
	errCode := int16(decoder.UInt16())
	if errCode != types.ErrNone.Code {
		return fmt.Errorf("broker %v answered UpdateMetadata (correlation id %d) with error %v", addr, respCorrelationID, types.ErrorMap[errCode].Message)
	}
	log.Debug("UpdateMetadata (correlation id %d) acknowledged by %v", respCorrelationID, addr)
	return nil
}
