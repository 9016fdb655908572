package cache

import (
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/CefBoud/monmeta/types"
)

// fixture: brokers 1 and 2 alive with listener "plain", broker 3 alive but
// missing that listener, broker 4 not alive at all. orders-0 is led by 1 with
// replicas {1,2,4}; orders-3 is live but leaderless.
func fixtureCache(t *testing.T) *MetadataCache {
	t.Helper()
	c := NewMetadataCache(1)
	c.ApplyUpdate(&types.UpdateMetadataRequest{
		ControllerID: 1,
		LiveBrokers: []types.Broker{
			testBroker(1, plainListener("host1", 9092)),
			testBroker(2, plainListener("host2", 9092)),
			testBroker(3, map[string]types.Endpoint{"ssl": {Host: "host3", Port: 9093}}),
		},
		TopicIDs: []types.TopicIDMapping{{Name: "orders", TopicID: uuidA}},
		PartitionStates: []types.PartitionState{
			{Topic: "orders", PartitionIndex: 0, LeaderID: 1, LeaderEpoch: 5,
				ReplicaNodes: []int32{1, 2, 4}, IsrNodes: []int32{1, 2}},
			{Topic: "orders", PartitionIndex: 1, LeaderID: 4,
				ReplicaNodes: []int32{4}, IsrNodes: []int32{4}},
			{Topic: "orders", PartitionIndex: 2, LeaderID: 3,
				ReplicaNodes: []int32{3}, IsrNodes: []int32{3}},
			{Topic: "orders", PartitionIndex: 3, LeaderID: types.NoLeader,
				ReplicaNodes: []int32{1, 2}, IsrNodes: []int32{1, 2}},
		},
	})
	return c
}

func partitionByIndex(t *testing.T, tm TopicMetadata, index int32) PartitionMetadata {
	t.Helper()
	for _, pm := range tm.Partitions {
		if pm.PartitionIndex == index {
			return pm
		}
	}
	t.Fatalf("partition %d missing from %+v", index, tm)
	return PartitionMetadata{}
}

func TestTopicsMetadataErrorSelection(t *testing.T) {
	c := fixtureCache(t)

	// lenient mode: unreachable members silently filtered, errors minimized
	res := c.TopicsMetadata([]string{"orders"}, "plain", false, false)
	if len(res) != 1 || res[0].Name != "orders" || res[0].TopicID != uuidA {
		t.Fatalf("unexpected topic result %+v", res)
	}
	p0 := partitionByIndex(t, res[0], 0)
	if p0.Err != types.ErrNone {
		t.Fatalf("partition 0 err = %v, want none", p0.Err)
	}
	if !reflect.DeepEqual(p0.ReplicaNodes, []int32{1, 2}) {
		t.Fatalf("partition 0 replicas = %v, want dead broker 4 filtered out", p0.ReplicaNodes)
	}
	if p1 := partitionByIndex(t, res[0], 1); p1.Err != types.ErrLeaderNotAvailable {
		t.Fatalf("dead leader err = %v, want LEADER_NOT_AVAILABLE", p1.Err)
	}
	if p2 := partitionByIndex(t, res[0], 2); p2.Err != types.ErrLeaderNotAvailable {
		t.Fatalf("missing listener err = %v, want LEADER_NOT_AVAILABLE when not asked for listener errors", p2.Err)
	}
	// leaderless partition, mid-election
	if p3 := partitionByIndex(t, res[0], 3); p3.Err != types.ErrLeaderNotAvailable {
		t.Fatalf("leaderless partition err = %v, want LEADER_NOT_AVAILABLE", p3.Err)
	}

	// errorUnavailableEndpoints: full lists kept, gap surfaced as error
	res = c.TopicsMetadata([]string{"orders"}, "plain", true, false)
	p0 = partitionByIndex(t, res[0], 0)
	if p0.Err != types.ErrReplicaNotAvailable {
		t.Fatalf("partition 0 err = %v, want REPLICA_NOT_AVAILABLE", p0.Err)
	}
	if !reflect.DeepEqual(p0.ReplicaNodes, []int32{1, 2, 4}) {
		t.Fatalf("partition 0 replicas = %v, want the full list", p0.ReplicaNodes)
	}

	// errorUnavailableListeners: alive leader without the listener is distinguishable
	res = c.TopicsMetadata([]string{"orders"}, "plain", false, true)
	if p2 := partitionByIndex(t, res[0], 2); p2.Err != types.ErrListenerNotFound {
		t.Fatalf("missing listener err = %v, want LISTENER_NOT_FOUND", p2.Err)
	}
	// dead leader still wins over listener reporting
	if p1 := partitionByIndex(t, res[0], 1); p1.Err != types.ErrLeaderNotAvailable {
		t.Fatalf("dead leader err = %v, want LEADER_NOT_AVAILABLE", p1.Err)
	}

	// both flags: each partition reports its most specific error
	res = c.TopicsMetadata([]string{"orders"}, "plain", true, true)
	if p0 := partitionByIndex(t, res[0], 0); p0.Err != types.ErrReplicaNotAvailable {
		t.Fatalf("partition 0 err = %v, want REPLICA_NOT_AVAILABLE", p0.Err)
	}
	if p2 := partitionByIndex(t, res[0], 2); p2.Err != types.ErrListenerNotFound {
		t.Fatalf("missing listener err = %v, want LISTENER_NOT_FOUND", p2.Err)
	}

	// absent topics are omitted, not errored
	res = c.TopicsMetadata([]string{"orders", "ghost"}, "plain", true, true)
	if len(res) != 1 {
		t.Fatalf("got %d topics, want the absent one omitted", len(res))
	}
}

func TestNonExistingTopics(t *testing.T) {
	c := fixtureCache(t)
	got := c.NonExistingTopics([]string{"ghost", "orders", "phantom", "ghost"})
	want := []string{"ghost", "phantom"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("NonExistingTopics = %v, want %v", got, want)
	}
}

func TestPartitionLeaderEndpointThreeWay(t *testing.T) {
	c := fixtureCache(t)

	if n := c.PartitionLeaderEndpoint("ghost", 0, "plain"); n != nil {
		t.Fatalf("unknown partition = %+v, want nil", n)
	}
	if n := c.PartitionLeaderEndpoint("orders", 1, "plain"); n == nil || n.NodeID != types.NoNode {
		t.Fatalf("dead leader = %+v, want the empty node", n)
	}
	if n := c.PartitionLeaderEndpoint("orders", 2, "plain"); n == nil || n.NodeID != types.NoNode {
		t.Fatalf("leader without listener = %+v, want the empty node", n)
	}
	if n := c.PartitionLeaderEndpoint("orders", 3, "plain"); n == nil || n.NodeID != types.NoNode {
		t.Fatalf("leaderless partition = %+v, want the empty node", n)
	}
	n := c.PartitionLeaderEndpoint("orders", 0, "plain")
	if n == nil || n.NodeID != 1 || n.Host != "host1" || n.Port != 9092 {
		t.Fatalf("resolved leader = %+v, want node 1 at host1:9092", n)
	}
}

func TestPartitionReplicaEndpoints(t *testing.T) {
	c := fixtureCache(t)
	got := c.PartitionReplicaEndpoints("orders", 0, "plain")
	if len(got) != 2 {
		t.Fatalf("endpoints = %v, want exactly brokers 1 and 2", got)
	}
	if got[1].Host != "host1" || got[2].Host != "host2" {
		t.Fatalf("endpoints = %v, want host1 and host2", got)
	}
	if got := c.PartitionReplicaEndpoints("ghost", 0, "plain"); len(got) != 0 {
		t.Fatalf("unknown partition endpoints = %v, want empty", got)
	}
}

func TestClusterAsView(t *testing.T) {
	c := fixtureCache(t)
	view := c.ClusterAsView("test-cluster", "plain")

	if view.ClusterID != "test-cluster" {
		t.Fatalf("cluster id = %q", view.ClusterID)
	}
	if len(view.Nodes) != 2 {
		t.Fatalf("nodes = %v, want only the two reachable under plain", view.Nodes)
	}
	if view.Controller == nil || view.Controller.NodeID != 1 {
		t.Fatalf("controller = %+v, want node 1", view.Controller)
	}
	if len(view.Partitions) != 4 {
		t.Fatalf("got %d partitions, want 4", len(view.Partitions))
	}
	for _, p := range view.Partitions {
		if p.Topic != "orders" {
			t.Fatalf("unexpected partition %+v", p)
		}
		if p.Partition == 0 {
			if p.Leader == nil || p.Leader.NodeID != 1 {
				t.Fatalf("partition 0 leader = %+v, want node 1", p.Leader)
			}
			// unresolvable replica 4 still listed, id only
			var ids []int32
			for _, n := range p.Replicas {
				ids = append(ids, n.NodeID)
			}
			if !reflect.DeepEqual(ids, []int32{1, 2, 4}) {
				t.Fatalf("partition 0 replica ids = %v", ids)
			}
			for _, n := range p.Replicas {
				if n.NodeID == 4 && n.Host != "" {
					t.Fatalf("dead replica resolved to %+v", n)
				}
			}
		}
	}
}

func TestClusterAsViewSkipsPartitionsMidDeletion(t *testing.T) {
	c := NewMetadataCache(1)
	// publish a snapshot with a delete sentinel still in flight
	c.store.Publish(&Snapshot{
		partitionStates: map[string]map[int32]types.PartitionState{
			"orders": {
				0: {Topic: "orders", PartitionIndex: 0, LeaderID: 1},
				1: {Topic: "orders", PartitionIndex: 1, LeaderID: types.LeaderDuringDelete},
			},
		},
		aliveBrokers: map[int32]types.Broker{1: testBroker(1, plainListener("host1", 9092))},
		controllerID: types.NoController,
	})
	view := c.ClusterAsView("test-cluster", "plain")
	if len(view.Partitions) != 1 || view.Partitions[0].Partition != 0 {
		t.Fatalf("partitions = %+v, want only the live one", view.Partitions)
	}
	if view.Controller != nil {
		t.Fatalf("controller = %+v, want none", view.Controller)
	}
}

func TestAllTopicsSorted(t *testing.T) {
	c := NewMetadataCache(1)
	c.ApplyUpdate(&types.UpdateMetadataRequest{
		PartitionStates: []types.PartitionState{
			{Topic: "zeta", PartitionIndex: 0, LeaderID: 1},
			{Topic: "alpha", PartitionIndex: 0, LeaderID: 1},
			{Topic: "mid", PartitionIndex: 0, LeaderID: 1},
		},
	})
	got := c.AllTopics()
	if !sort.StringsAreSorted(got) || len(got) != 3 {
		t.Fatalf("AllTopics = %v, want all three sorted", got)
	}
}

// Readers racing the writer must always observe an internally consistent
// snapshot: each published state pairs the partition leader with its own alive
// set, so a resolved-then-empty mixture would mean a torn read.
func TestConcurrentReadersSeeConsistentSnapshots(t *testing.T) {
	c := NewMetadataCache(1)
	stateFor := func(id int32, host string) *types.UpdateMetadataRequest {
		return &types.UpdateMetadataRequest{
			ControllerID: id,
			LiveBrokers:  []types.Broker{testBroker(id, plainListener(host, 9092))},
			PartitionStates: []types.PartitionState{
				{Topic: "orders", PartitionIndex: 0, LeaderID: id, ReplicaNodes: []int32{id}, IsrNodes: []int32{id}},
			},
		}
	}
	c.ApplyUpdate(stateFor(1, "host1"))

	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				n := c.PartitionLeaderEndpoint("orders", 0, "plain")
				if n == nil || n.IsEmpty() {
					t.Errorf("torn snapshot observed: %+v", n)
					return
				}
				if (n.NodeID == 1) != (n.Host == "host1") {
					t.Errorf("leader id and host disagree: %+v", n)
					return
				}
			}
		}()
	}
	for i := 0; i < 500; i++ {
		if i%2 == 0 {
			c.ApplyUpdate(stateFor(2, "host2"))
		} else {
			c.ApplyUpdate(stateFor(1, "host1"))
		}
	}
	close(done)
	wg.Wait()
}
