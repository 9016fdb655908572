package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/hashicorp/serf/serf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/CefBoud/monmeta/cache"
	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/protocol"
	"github.com/CefBoud/monmeta/types"
)

func main() {
	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	var (
		nodeID         int32
		rack           string
		brokerAddr     string
		listeners      []string
		listenerName   string
		raftAddress    string
		serfAddress    string
		serfJoin       string
		bootstrap      bool
		logDir         string
		logLevel       string
		metricsAddress string
	)

	root := &cobra.Command{
		Use:           "monmeta",
		Short:         "MonMeta broker agent: cluster metadata cache and control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.SetLogLevel(strings.ToUpper(logLevel))

			host, port, err := splitHostPort(brokerAddr)
			if err != nil {
				return fmt.Errorf("invalid --broker-address: %v", err)
			}

			endpoints, err := parseListeners(listeners)
			if err != nil {
				return err
			}
			if _, ok := endpoints[listenerName]; !ok {
				// the control address doubles as the default listener
				endpoints[listenerName] = types.Endpoint{Host: host, Port: port}
			}

			config := &types.Configuration{
				LogDir:          logDir,
				NodeID:          nodeID,
				Rack:            rack,
				BrokerHost:      host,
				BrokerPort:      port,
				Listeners:       endpoints,
				ListenerName:    listenerName,
				Bootstrap:       bootstrap,
				RaftAddress:     raftAddress,
				SerfAddress:     serfAddress,
				SerfJoinAddress: serfJoin,
				SerfConfig:      serf.DefaultConfig(),
			}

			cache.RegisterMetrics()
			if metricsAddress != "" {
				go func() {
					http.Handle("/metrics", promhttp.Handler())
					log.Info("serving metrics on %v/metrics", metricsAddress)
					if err := http.ListenAndServe(metricsAddress, nil); err != nil {
						log.Error("metrics server: %v", err)
					}
				}()
			}

			broker := protocol.NewBroker(config)
			broker.OnPartitionsDeleted(func(deleted []types.TopicPartition) {
				log.Info("partitions deleted from metadata: %v", deleted)
			})
			go broker.Startup()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			broker.Shutdown()
			return nil
		},
	}

	root.Flags().Int32Var(&nodeID, "node-id", 1, "unique broker id")
	root.Flags().StringVar(&rack, "rack", "", "rack or availability-zone label")
	root.Flags().StringVar(&brokerAddr, "broker-address", "localhost:9092", "control-plane bind address")
	root.Flags().StringSliceVar(&listeners, "listener", nil, "advertised listener as name://host:port (repeatable)")
	root.Flags().StringVar(&listenerName, "listener-name", "PLAINTEXT", "listener used to resolve endpoints in metadata responses")
	root.Flags().StringVar(&raftAddress, "raft-address", "localhost:9192", "raft bind address")
	root.Flags().StringVar(&serfAddress, "serf-address", "localhost:9292", "serf bind address")
	root.Flags().StringVar(&serfJoin, "join", "", "comma-separated serf addresses of an existing cluster")
	root.Flags().BoolVar(&bootstrap, "bootstrap", false, "bootstrap a new single-node raft cluster")
	root.Flags().StringVar(&logDir, "log-dir", filepath.Join(os.TempDir(), "MonMeta"), "data directory")
	root.Flags().StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	root.Flags().StringVar(&metricsAddress, "metrics-address", "", "address to serve Prometheus metrics on (empty disables)")
	return root
}

func splitHostPort(addr string) (string, uint32, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("bad port in %q: %v", addr, err)
	}
	return host, uint32(port), nil
}

// parseListeners turns name://host:port flags into an endpoint map
func parseListeners(listeners []string) (map[string]types.Endpoint, error) {
	endpoints := make(map[string]types.Endpoint)
	for _, l := range listeners {
		name, addr, ok := strings.Cut(l, "://")
		if !ok {
			return nil, fmt.Errorf("invalid --listener %q, want name://host:port", l)
		}
		host, port, err := splitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid --listener %q: %v", l, err)
		}
		endpoints[name] = types.Endpoint{Host: host, Port: port}
	}
	return endpoints, nil
}
