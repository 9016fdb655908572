package cache

import (
	"sort"
	"strings"
	"sync"

	log "github.com/CefBoud/monmeta/logging"
	"github.com/CefBoud/monmeta/types"
	"github.com/google/uuid"
)

// MetadataCache is a per-broker, in-memory, read-optimized view of the cluster
// topology, kept eventually consistent with the controller through incremental
// UpdateMetadata deltas. ApplyUpdate is the only writer; every query operation
// works off a single snapshot captured at entry.
type MetadataCache struct {
	brokerID int32
	store    *Store

	// updateLock serializes the whole read-merge-publish sequence. Readers
	// never take it.
	updateLock sync.Mutex
}

// NewMetadataCache creates an empty cache for the given local broker id
func NewMetadataCache(brokerID int32) *MetadataCache {
	return &MetadataCache{brokerID: brokerID, store: NewStore()}
}

// ApplyUpdate merges one UpdateMetadataRequest into the current snapshot and
// publishes the result. It returns the identities of the partitions the
// request deleted so the caller can release any per-partition resources.
// Malformed requests are applied best-effort field by field, never rejected.
func (c *MetadataCache) ApplyUpdate(req *types.UpdateMetadataRequest) []types.TopicPartition {
	c.updateLock.Lock()
	defer c.updateLock.Unlock()

	prev := c.store.Current()

	// The broker list is a full replacement of the alive set. An absent list
	// means the delta carries no liveness information.
	aliveBrokers := prev.aliveBrokers
	if len(req.LiveBrokers) > 0 {
		aliveBrokers = make(map[int32]types.Broker, len(req.LiveBrokers))
		for _, b := range req.LiveBrokers {
			aliveBrokers[b.NodeID] = b
		}
		c.warnOnInconsistentListeners(aliveBrokers, req.CorrelationID)
	}

	// Topic ids merge additively; entries only disappear together with their topic.
	topicIDs := make(map[string]uuid.UUID, len(prev.topicIDs)+len(req.TopicIDs))
	for name, id := range prev.topicIDs {
		topicIDs[name] = id
	}
	reqTopicIDs := make(map[string]uuid.UUID, len(req.TopicIDs))
	for _, m := range req.TopicIDs {
		topicIDs[m.Name] = m.TopicID
		reqTopicIDs[m.Name] = m.TopicID
	}

	controllerID := types.NoController
	if req.ControllerID >= 0 {
		// Last writer wins: the claimed controller epoch is not cross-checked
		// against previously seen values, it is carried for logging only.
		controllerID = req.ControllerID
	}

	var deleted []types.TopicPartition
	partitionStates := prev.partitionStates
	if len(req.PartitionStates) > 0 {
		// Copy-on-write at topic granularity: the outer map is fresh but inner
		// maps are shared with the previous snapshot until a delta touches them.
		partitionStates = make(map[string]map[int32]types.PartitionState, len(prev.partitionStates))
		for topic, partitions := range prev.partitionStates {
			partitionStates[topic] = partitions
		}
		copied := make(map[string]bool)

		for _, ps := range req.PartitionStates {
			tp := types.TopicPartition{Topic: ps.Topic, Partition: ps.PartitionIndex}
			if ps.LeaderID == types.LeaderDuringDelete {
				deleted = append(deleted, tp)
				partitions, ok := partitionStates[ps.Topic]
				if !ok {
					continue
				}
				if !copied[ps.Topic] {
					partitions = clonePartitions(partitions)
					partitionStates[ps.Topic] = partitions
					copied[ps.Topic] = true
				}
				delete(partitions, ps.PartitionIndex)
				log.Debug("deleted partition %v from metadata cache (correlation id %d)", tp, req.CorrelationID)
				if len(partitions) == 0 {
					// A topic with no partitions left goes away entirely, and
					// its id mapping with it.
					delete(partitionStates, ps.Topic)
					delete(topicIDs, ps.Topic)
					delete(copied, ps.Topic)
					log.Debug("removed topic %v from metadata cache", ps.Topic)
				}
			} else {
				partitions, ok := partitionStates[ps.Topic]
				if !ok {
					partitions = make(map[int32]types.PartitionState)
					partitionStates[ps.Topic] = partitions
					copied[ps.Topic] = true
					// a topic re-created after an earlier delete entry of this
					// same message gets its declared id back
					if _, hasID := topicIDs[ps.Topic]; !hasID {
						if id, declared := reqTopicIDs[ps.Topic]; declared {
							topicIDs[ps.Topic] = id
						}
					}
				} else if !copied[ps.Topic] {
					partitions = clonePartitions(partitions)
					partitionStates[ps.Topic] = partitions
					copied[ps.Topic] = true
				}
				partitions[ps.PartitionIndex] = ps
				log.Debug("cached leader info %+v (correlation id %d)", ps, req.CorrelationID)
			}
		}
	}

	snapshot := &Snapshot{
		partitionStates: partitionStates,
		topicIDs:        topicIDs,
		aliveBrokers:    aliveBrokers,
		controllerID:    controllerID,
	}
	c.store.Publish(snapshot)

	UpdatesApplied.Inc()
	PartitionsDeleted.Add(float64(len(deleted)))
	TopicCount.Set(float64(len(snapshot.partitionStates)))
	PartitionCount.Set(float64(snapshot.partitionCount()))
	BrokerCount.Set(float64(len(snapshot.aliveBrokers)))

	log.Info("applied metadata update from controller %d epoch %d (correlation id %d): %d brokers, %d partition states, %d deletions",
		req.ControllerID, req.ControllerEpoch, req.CorrelationID, len(req.LiveBrokers), len(req.PartitionStates), len(deleted))
	return deleted
}

func clonePartitions(partitions map[int32]types.PartitionState) map[int32]types.PartitionState {
	cloned := make(map[int32]types.PartitionState, len(partitions))
	for index, state := range partitions {
		cloned[index] = state
	}
	return cloned
}

// warnOnInconsistentListeners flags brokers that do not all advertise the same
// listener set. This is an anomaly worth surfacing, not a reason to reject the
// update: the mismatched state is still published.
func (c *MetadataCache) warnOnInconsistentListeners(aliveBrokers map[int32]types.Broker, correlationID uint32) {
	listenerSets := make(map[string][]int32)
	for id, b := range aliveBrokers {
		names := make([]string, 0, len(b.Endpoints))
		for name := range b.Endpoints {
			names = append(names, name)
		}
		sort.Strings(names)
		key := strings.Join(names, ",")
		listenerSets[key] = append(listenerSets[key], id)
	}
	if len(listenerSets) > 1 {
		log.Warn("broker %d: listeners are not identical across alive brokers (correlation id %d): %v",
			c.brokerID, correlationID, listenerSets)
	}
}
