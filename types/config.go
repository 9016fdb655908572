package types

import "github.com/hashicorp/serf/serf"

// Configuration holds a broker agent's startup settings
type Configuration struct {
	LogDir string

	NodeID int32
	Rack   string

	// BrokerHost/BrokerPort is where the control-plane TCP server binds.
	BrokerHost string
	BrokerPort uint32

	// Listeners are the endpoints this broker advertises to the rest of the
	// cluster, keyed by listener name. ListenerName selects which of them
	// metadata responses resolve endpoints under.
	Listeners    map[string]Endpoint
	ListenerName string

	Bootstrap       bool
	RaftID          string
	RaftAddress     string
	SerfAddress     string
	SerfJoinAddress string
	SerfConfig      *serf.Config

	MetricsAddress string
}
