// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package partition

import (
	"encoding/binary"

	"github.com/dchest/siphash"

	"github.com/mastermind1981/eventql/qtree"
)

// hashSipKey is a fixed, non-secret siphash key. Partition keys only need
// to be deterministic across processes, not unpredictable to an
// adversary, so a constant key (rather than a per-cluster secret) keeps
// HashPartitioner reproducible in tests.
var hashSipKey = [16]byte{
	0x65, 0x76, 0x65, 0x6e, 0x74, 0x71, 0x6c, 0x2d,
	0x73, 0x63, 0x68, 0x65, 0x64, 0x75, 0x6c, 0x65,
}

// HashPartitioner derives a fixed number of partitions for a table by
// hashing the table name together with a partition index, producing a
// deterministic Key for each. It ignores the scan predicate: it has no
// column statistics to prune against, so ListPartitions always returns
// every partition it was constructed with.
type HashPartitioner struct {
	TableName string
	NumShards int
}

// NewHashPartitioner returns a HashPartitioner with numShards shards for
// the named table. numShards must be positive.
func NewHashPartitioner(tableName string, numShards int) *HashPartitioner {
	if numShards <= 0 {
		panic("partition: NewHashPartitioner: numShards must be positive")
	}
	return &HashPartitioner{TableName: tableName, NumShards: numShards}
}

// ListPartitions returns the table's shards in deterministic shard-index
// order (shard 0 first).
// The where argument is accepted to satisfy the Partitioner interface and
// for symmetry with a real, predicate-pruning implementation; this
// partitioner does not prune.
func (h *HashPartitioner) ListPartitions(where qtree.ValueNode) []Key {
	keys := make([]Key, h.NumShards)
	for i := 0; i < h.NumShards; i++ {
		keys[i] = shardKey(h.TableName, i)
	}
	return keys
}

func shardKey(tableName string, shard int) Key {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(shard))
	lo, hi := siphash.Hash128(
		binary.LittleEndian.Uint64(hashSipKey[:8]),
		binary.LittleEndian.Uint64(hashSipKey[8:]),
		append([]byte(tableName), buf[:]...),
	)
	var k Key
	binary.LittleEndian.PutUint64(k[0:8], lo)
	binary.LittleEndian.PutUint64(k[8:16], hi)
	binary.LittleEndian.PutUint32(k[16:20], uint32(shard))
	return k
}
