// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package partition defines the locator abstractions the scheduler uses
// to turn a table reference into the set of shards (partition, host list)
// it must dispatch a query to, plus one concrete in-memory implementation
// of each so the scheduler is exercisable without a real cluster.
package partition

import (
	"fmt"

	"github.com/mastermind1981/eventql/qtree"
)

// Key identifies a single partition of a table. It mirrors the 20-byte
// (SHA-1-class) partition descriptor the wider system derives from a
// table's partitioning scheme.
type Key [20]byte

// String renders the key the way it appears in a shard's tsdb:// table
// reference.
func (k Key) String() string {
	return fmt.Sprintf("%x", [20]byte(k))
}

// Table is a single table's partitioning and replication configuration,
// as returned by Map.FindTable.
type Table interface {
	// Partitioner returns the Partitioner used to enumerate this table's
	// partitions for a given scan predicate.
	Partitioner() Partitioner
}

// Map resolves a (namespace, table key) pair to its Table, the
// scheduler's sole entry point into the partition/table metadata
// collaborator that spec.md places out of scope.
type Map interface {
	// FindTable returns the named table, or ok=false if it does not
	// exist in the given namespace.
	FindTable(namespace, tableKey string) (Table, bool)
}

// Partitioner enumerates the partitions of a table that can satisfy a
// scan, given the scan's (possibly nil) filter predicate for pruning.
type Partitioner interface {
	ListPartitions(where qtree.ValueNode) []Key
}

// ReplicationScheme maps a partition to the hosts that hold a replica of
// it, and reports whether one of those replicas is the local host — the
// signal the plan splitter uses to decide between a local partial
// aggregation and a remote dispatch.
type ReplicationScheme interface {
	ReplicasFor(Key) []string
	HasLocalReplica(Key) bool
}
