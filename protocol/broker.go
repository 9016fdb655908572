package protocol

import (
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/CefBoud/monmeta/cache"
	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/raft"
	"github.com/CefBoud/monmeta/serde"
	"github.com/CefBoud/monmeta/types"
	"github.com/CefBoud/monmeta/utils"

	hraft "github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/hashicorp/serf/serf"
)

const (
	// serfEventChSize is the size of the buffered channel to get Serf
	// events. If this is exhausted we will block Serf and Memberlist.
	serfEventChSize = 2048
)

// ClusterID identifies this cluster in metadata responses
var ClusterID = "MonMetaCluster"

// Broker represents one broker agent: the control-plane TCP server, the local
// metadata cache it serves queries from, and the serf/raft machinery that
// makes one broker the controller.
type Broker struct {
	Config         *types.Configuration
	Cache          *cache.MetadataCache
	ShutDownSignal chan bool
	Serf           *serf.Serf  // Serf cluster maintained inside the DC
	Raft           *hraft.Raft // Raft cluster maintained inside the DC
	FSM            *raft.FSM

	RaftNotifyCh <-chan bool // reliable leader transition notifications from the Raft layer

	SerfEventCh chan serf.Event // used to receive events from the serf cluster

	controllerEpoch int32
	correlationID   uint32
	controllerMu    sync.Mutex

	deletionListeners []func([]types.TopicPartition)
	listenersMu       sync.Mutex
}

// NewBroker creates a new Broker instance with the provided configuration
func NewBroker(config *types.Configuration) *Broker {
	return &Broker{
		Config:         config,
		Cache:          cache.NewMetadataCache(config.NodeID),
		ShutDownSignal: make(chan bool),
		RaftNotifyCh:   make(<-chan bool),
		SerfEventCh:    make(chan serf.Event, serfEventChSize),
	}
}

// OnPartitionsDeleted registers a hook invoked with the partitions each
// metadata update deleted, so other subsystems can release per-partition
// resources.
func (b *Broker) OnPartitionsDeleted(fn func([]types.TopicPartition)) {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	b.deletionListeners = append(b.deletionListeners, fn)
}

func (b *Broker) notifyPartitionsDeleted(deleted []types.TopicPartition) {
	b.listenersMu.Lock()
	listeners := b.deletionListeners
	b.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(deleted)
	}
}

// Startup initializes the broker, joins the cluster and listens for incoming
// control-plane connections
func (b *Broker) Startup() {
	var err error
	b.Config.LogDir = filepath.Join(b.Config.LogDir, fmt.Sprintf("MonMeta-%v", b.Config.NodeID))
	b.FSM = raft.NewFSM(b.Config.NodeID)

	err = b.SetupRaft()
	if err != nil {
		log.Panic("Raft Setup failed: %v", err)
	}

	err = b.SetupSerf()
	if err != nil {
		log.Panic("Serf Setup failed: %v", err)
	}

	go b.handleSerfEvent()
	go b.monitorLeadership()
	go b.propagateMetadata()

	// Set up a TCP listener on the specified port
	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", b.Config.BrokerHost, b.Config.BrokerPort))
	if err != nil {
		log.Error("Error starting server: %v\n", err)
		os.Exit(1)
	}
	defer listener.Close()

	log.Info("Server is listening on port %d...\n", b.Config.BrokerPort)

	// Accept and handle incoming connections
	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Error("Error accepting connection: %v\n", err)
			continue
		}
		go b.HandleConnection(conn)
	}
}

// HandleConnection processes incoming requests from a client connection
func (b *Broker) HandleConnection(conn net.Conn) {
	defer conn.Close()
	connectionAddr := conn.RemoteAddr().String()
	log.Debug("Connection established with %s\n", connectionAddr)

	for {
		// First, we read the length, then allocate a byte slice based on it.
		// ReadFull (not Read) is used to ensure the entire request is read. Partial data would result in parsing errors
		lengthBuffer := make([]byte, 4)
		_, err := io.ReadFull(conn, lengthBuffer)
		if err != nil {
			log.Debug("failed to read request's length. Error: %v ", err)
			return
		}
		length := serde.Encoding.Uint32(lengthBuffer)
		buffer := make([]byte, length+4)
		copy(buffer, lengthBuffer)
		_, err = io.ReadFull(conn, buffer[4:])
		if err != nil {
			if err.Error() != "EOF" {
				log.Error("Error reading from connection: %v\n", err)
			}
			break
		}
		req := serde.ParseHeader(buffer, connectionAddr)
		apiKeyHandler := b.APIDispatcher(req.RequestAPIKey)
		if apiKeyHandler.Handler == nil {
			log.Error("unsupported api key %v from %v", req.RequestAPIKey, connectionAddr)
			break
		}
		log.Debug("Received RequestAPIKey: %v | RequestAPIVersion: %v | CorrelationID: %v | Length: %v \n\n", apiKeyHandler.Name, req.RequestAPIVersion, req.CorrelationID, length)
		response := apiKeyHandler.Handler(req)

		_, err = conn.Write(response)
		if err != nil {
			log.Error("Error writing to connection: %v\n", err)
			break
		}
	}
	log.Debug("Connection with %s closed.\n", connectionAddr)
}

// Shutdown gracefully shuts down the broker and its components
func (b *Broker) Shutdown() {
	// close ShutDownSignal so any goroutine waiting on it will run
	close(b.ShutDownSignal)
	log.Info("Broker Shut down...")
	log.Info("Shutting down Serf ...")

	log.Info("Waiting a bit after Serf leaving to allow other servers to be notified")
	if b.IsController() { // raft leader
		raftServers, err := b.getRaftServers()
		if err != nil {
			log.Error("failed to get raft server %v", err)
		} else {
			if len(raftServers) > 2 {
				log.Info("Node is raft leader and there are >2 raft servers, removing self")
				future := b.Raft.RemoveServer(hraft.ServerID(b.Config.RaftID), 0, 0)
				if err := future.Error(); err != nil {
					log.Error("failed to remove self from raft cluster %v", err)
				}
			}
		}
	}

	if err := b.Serf.Leave(); err != nil {
		log.Error("Serf leave failed: %s", err)
	}
	LeaveDrainTime := 5 * time.Second
	time.Sleep(LeaveDrainTime)

	if b.Serf != nil {
		b.Serf.Shutdown()
	}

	if b.Raft != nil {
		future := b.Raft.Shutdown()
		if err := future.Error(); err != nil {
			log.Warn("error shutting down raft:  %v", err)
		}
	}
}

func (b *Broker) getRaftServers() ([]hraft.Server, error) {
	configFuture := b.Raft.GetConfiguration()
	if err := configFuture.Error(); err != nil {
		return nil, fmt.Errorf("getRaftServer: can't get raft configuration error: %s", err)
	}
	return configFuture.Configuration().Servers, nil
}

// AppendRaftEntry add a new entry to the raft log
func (b *Broker) AppendRaftEntry(entryType raft.CommandType, entry any) (any, error) {
	bytes, err := raft.EncodeLogEntry(entryType, entry)
	if err != nil {
		return nil, err
	}
	future := b.Raft.Apply(bytes, 10*time.Second)
	if err := future.Error(); err != nil {
		return nil, err
	}
	log.Info("added entry to raft: %+v", entry)
	return future.Response(), nil
}

// IsController return if the broker is the cluster's controller which is also the raft leader
func (b *Broker) IsController() bool {
	return b.Raft.State() == hraft.Leader
}

// SetupRaft inits Raft for the broker
func (b *Broker) SetupRaft() error {
	raftAddress := b.Config.RaftAddress
	dir := path.Join(b.Config.LogDir, "raft"+b.Config.RaftID)
	err := os.MkdirAll(dir, os.ModePerm)
	if err != nil {
		return fmt.Errorf("could not create data directory: %s", err)
	}

	store, err := raftboltdb.NewBoltStore(path.Join(dir, "bolt"))
	if err != nil {
		return fmt.Errorf("could not create bolt store: %s", err)
	}

	snapshots, err := hraft.NewFileSnapshotStore(path.Join(dir, "snapshot"), 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("could not create snapshot store: %s", err)
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", raftAddress)
	if err != nil {
		return fmt.Errorf("could not resolve address: %s", err)
	}

	transport, err := hraft.NewTCPTransport(raftAddress, tcpAddr, 10, time.Second*10, os.Stderr)
	if err != nil {
		return fmt.Errorf("could not create tcp transport: %s", err)
	}

	raftCfg := hraft.DefaultConfig()
	raftCfg.LogLevel = "INFO"

	if b.Config.RaftID == "" {
		b.Config.RaftID = fmt.Sprintf("raft-broker-%d", b.Config.NodeID)
	}
	nodeID := b.Config.RaftID
	raftCfg.LocalID = hraft.ServerID(nodeID)

	// Set up a channel for reliable leader notifications.
	raftNotifyCh := make(chan bool, 1)
	raftCfg.NotifyCh = raftNotifyCh
	b.RaftNotifyCh = raftNotifyCh

	b.Raft, err = hraft.NewRaft(raftCfg, b.FSM, store, store, snapshots, transport)
	if err != nil {
		return fmt.Errorf("could not create raft instance: %s", err)
	}

	if b.Config.Bootstrap {
		log.Info("bootstrapping raft with nodeID %v ....", nodeID)
		hasState, err := hraft.HasExistingState(store, store, snapshots)
		if err != nil {
			return err
		}
		log.Info("bootstrapping hasState %v", hasState)
		if !hasState {
			future := b.Raft.BootstrapCluster(hraft.Configuration{
				Servers: []hraft.Server{
					{
						ID:      hraft.ServerID(nodeID),
						Address: transport.LocalAddr(),
					},
				},
			})
			if err := future.Error(); err != nil {
				log.Error(" bootstrap cluster error: %s", err)
			}
		}
	}
	return nil
}

// SetupSerf to setup the serf agent and maybe join a serf cluster. The tags
// carry everything the controller needs to register a joining broker: its id,
// rack, control address and advertised listeners.
func (b *Broker) SetupSerf() error {
	var err error
	conf := b.Config.SerfConfig
	conf.Init()
	conf.NodeName = b.Config.RaftID
	bindIP, bindPort, err := net.SplitHostPort(b.Config.SerfAddress)
	if err != nil {
		return err
	}
	log.Debug("SetupSerf: bindIP=%v bindPort=%v", bindIP, bindPort)
	conf.MemberlistConfig.BindAddr = bindIP
	conf.MemberlistConfig.BindPort, err = strconv.Atoi(bindPort)
	if err != nil {
		return err
	}
	conf.Tags["role"] = "broker"
	conf.Tags["ID"] = strconv.Itoa(int(b.Config.NodeID))
	conf.Tags["rack"] = b.Config.Rack
	conf.Tags["control_addr"] = fmt.Sprintf("%s:%d", b.Config.BrokerHost, b.Config.BrokerPort)
	conf.Tags["raft_server_id"] = b.Config.RaftID
	conf.Tags["raft_addr"] = b.Config.RaftAddress
	conf.Tags["serf_addr"] = b.Config.SerfAddress
	for name, ep := range b.Config.Listeners {
		conf.Tags["listener_"+name] = ep.String()
	}

	conf.EventCh = b.SerfEventCh
	conf.SnapshotPath = filepath.Join(b.Config.LogDir, "serf-snapshot")

	if err = utils.EnsurePath(conf.SnapshotPath, false); err != nil {
		return fmt.Errorf("could not serf SnapshotPath dir: %s", err)
	}

	b.Serf, err = serf.Create(conf)

	if len(b.Config.SerfJoinAddress) > 0 {
		existingSerfNodes := strings.Split(b.Config.SerfJoinAddress, ",")
		log.Info("joining serf nodes: %v", existingSerfNodes)
		n, err := b.Serf.Join(existingSerfNodes, true)
		if err != nil {
			log.Error("Couldn't join cluster, starting own: %v\n", err)
		} else {
			log.Info("Serf join: successfully contacted %v node. Members: %v", n, b.Serf.Members())
		}
	}
	return err
}

func (b *Broker) handleSerfEvent() {
	for {
		select {
		case e := <-b.SerfEventCh:
			log.Debug("serf EventType: %v", e.EventType())
			switch e.EventType() {
			case serf.EventMemberJoin:
				b.handleSerfMemberJoin(e.(serf.MemberEvent))
			case serf.EventMemberFailed:
				// a node is moved from `fail` to `reap` (completely ousted from the cluster) after `reconnect_timeout` (defaults to 24h)
				b.handleSerfMemberLeft(e.(serf.MemberEvent))
			case serf.EventMemberReap, serf.EventMemberLeave:
				b.handleSerfMemberLeft(e.(serf.MemberEvent))
			}
		case <-b.ShutDownSignal:
			return
		}
	}
}

// brokerFromSerfTags rebuilds a broker descriptor from a serf member's tags
func brokerFromSerfTags(m serf.Member) (types.Broker, error) {
	id, err := strconv.Atoi(m.Tags["ID"])
	if err != nil {
		return types.Broker{}, fmt.Errorf("unable to parse serf ID tag: %v", err)
	}
	broker := types.Broker{
		NodeID:    int32(id),
		Rack:      m.Tags["rack"],
		Endpoints: make(map[string]types.Endpoint),
	}
	for tag, value := range m.Tags {
		name, ok := strings.CutPrefix(tag, "listener_")
		if !ok {
			continue
		}
		host, port, err := net.SplitHostPort(value)
		if err != nil {
			return types.Broker{}, fmt.Errorf("unable to parse listener tag %v=%v: %v", tag, value, err)
		}
		portInt, err := strconv.Atoi(port)
		if err != nil {
			return types.Broker{}, fmt.Errorf("unable to parse listener port %v: %v", value, err)
		}
		broker.Endpoints[name] = types.Endpoint{Host: host, Port: uint32(portInt)}
	}
	return broker, nil
}
