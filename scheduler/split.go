// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package scheduler

import (
	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/eqerr"
	"github.com/mastermind1981/eventql/exec"
	"github.com/mastermind1981/eventql/qtree"
	"github.com/mastermind1981/eventql/tableref"
)

// Split is the plan splitter: it locates tree's SequentialScan, resolves
// its table through PartitionMap, enumerates the table's partitions, and
// returns one shard per partition — a deep clone of tree with the cloned
// scan renamed to that partition's tsdb:// shard URI, marked local or
// remote according to ReplicationScheme. It is the Go counterpart of the
// original's Scheduler::pipelineExpression.
//
// Unlike the original, which discards everything above the located scan
// and hands each shard only the (renamed) scan node itself, Split clones
// and returns the whole of tree: the original's behavior loses any
// SelectExpression or Subquery wrapping a GroupBy's input, which is only
// safe because IsPipelineable already restricted that input to a bare
// scan in every case the original's test suite exercised. Returning the
// full clone keeps Split correct for a pipelineable Subquery/Select
// wrapper too, without changing behavior for the bare-scan case.
func (s *Scheduler) Split(txn engine.Transaction, tree qtree.Node) ([]exec.Shard, error) {
	scan, ok := findSequentialScan(tree)
	if !ok {
		return nil, eqerr.ErrIllegalState.New("can't pipeline query tree: no sequential scan")
	}

	ref := tableref.Parse(scan.TableName)
	if ref.HasPartitionKey() {
		return nil, eqerr.ErrIllegalState.New("can't pipeline query tree: table reference is already partitioned")
	}

	if _, ok := txn.AuthContext(); !ok {
		return nil, eqerr.ErrIllegalState.New("can't pipeline query tree: no authenticated principal")
	}

	table, ok := s.PartitionMap.FindTable(txn.Namespace(), ref.TableKey)
	if !ok {
		return nil, eqerr.ErrTableNotFound.New(ref.TableKey)
	}

	partitions := table.Partitioner().ListPartitions(scan.Where)

	shards := make([]exec.Shard, 0, len(partitions))
	for _, part := range partitions {
		clone := tree.Clone()
		cloneScan, ok := findSequentialScan(clone)
		if !ok {
			return nil, eqerr.ErrIllegalState.New("can't pipeline query tree: scan lost in clone")
		}
		cloneScan.SetTableName(tableref.FormatShardURI(ref.TableKey, part.String()))

		shards = append(shards, exec.Shard{
			IsLocal: s.ReplicationScheme.HasLocalReplica(part),
			Stmt:    clone,
			Hosts:   s.ReplicationScheme.ReplicasFor(part),
		})
	}

	return shards, nil
}
