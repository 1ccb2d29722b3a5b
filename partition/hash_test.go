// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package partition

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPartitionerDeterministic(t *testing.T) {
	p1 := NewHashPartitioner("events", 4)
	p2 := NewHashPartitioner("events", 4)

	keys1 := p1.ListPartitions(nil)
	keys2 := p2.ListPartitions(nil)

	require.Equal(t, keys1, keys2)
	require.Len(t, keys1, 4)
}

func TestHashPartitionerDistinctShards(t *testing.T) {
	p := NewHashPartitioner("events", 8)
	keys := p.ListPartitions(nil)

	seen := make(map[Key]bool)
	for _, k := range keys {
		require.False(t, seen[k], "duplicate partition key")
		seen[k] = true
	}
}

func TestHashPartitionerDiffersByTable(t *testing.T) {
	a := NewHashPartitioner("events", 1).ListPartitions(nil)
	b := NewHashPartitioner("metrics", 1).ListPartitions(nil)

	require.NotEqual(t, a[0], b[0])
}

func TestStaticSchemeLocalReplica(t *testing.T) {
	scheme := NewStaticScheme("host-a")
	var key Key
	key[0] = 1

	scheme.SetReplicas(key, []string{"host-a", "host-b"})

	require.True(t, scheme.HasLocalReplica(key))
	require.ElementsMatch(t, []string{"host-a", "host-b"}, scheme.ReplicasFor(key))
}

func TestStaticSchemeNoLocalReplica(t *testing.T) {
	scheme := NewStaticScheme("host-a")
	var key Key
	key[0] = 2

	scheme.SetReplicas(key, []string{"host-b", "host-c"})

	require.False(t, scheme.HasLocalReplica(key))
}
