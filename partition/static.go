// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package partition

import "sync"

// StaticScheme is a ReplicationScheme backed by a fixed, in-memory
// partition-to-replica-list map, configured with a LocalHost so the
// scheduler's plan splitter can decide which shards to run in-process.
// It plays the same "concrete default alongside the interface" role as
// plan.SubtableList does for plan.Subtables.
type StaticScheme struct {
	// LocalHost is compared against each partition's replica list to
	// determine HasLocalReplica.
	LocalHost string

	mu       sync.RWMutex
	replicas map[Key][]string
}

// NewStaticScheme returns a StaticScheme whose HasLocalReplica reports
// true for any partition whose replica list contains localHost.
func NewStaticScheme(localHost string) *StaticScheme {
	return &StaticScheme{LocalHost: localHost, replicas: make(map[Key][]string)}
}

// SetReplicas assigns the replica host list for a partition.
func (s *StaticScheme) SetReplicas(key Key, hosts []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replicas[key] = append([]string(nil), hosts...)
}

// ReplicasFor returns the replica host list for a partition, or nil if
// none has been configured.
func (s *StaticScheme) ReplicasFor(key Key) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.replicas[key]...)
}

// HasLocalReplica reports whether one of the partition's replicas is
// LocalHost.
func (s *StaticScheme) HasLocalReplica(key Key) bool {
	for _, h := range s.ReplicasFor(key) {
		if h == s.LocalHost {
			return true
		}
	}
	return false
}
