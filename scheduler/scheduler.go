// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package scheduler ties together the query-tree rewriter, the partition
// locator, the pipelineability oracle, the plan and aggregation
// splitters, and the expression builder into the single entry point a
// query-planning caller drives: Scheduler.Execute. It is the Go
// counterpart of the original source's eventql::Scheduler.
package scheduler

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mastermind1981/eventql/exec"
	"github.com/mastermind1981/eventql/partition"
	"github.com/mastermind1981/eventql/qtree"
)

// Scheduler turns a logical query tree into an executable expression
// tree, deciding along the way which fragments run locally and which are
// dispatched to remote partition replicas.
type Scheduler struct {
	PartitionMap      partition.Map
	ReplicationScheme partition.ReplicationScheme
	Transport         exec.Transport
	MaxConcurrency    int
	Logger            *zap.Logger

	running int64
}

// New returns a Scheduler that resolves tables through pmap, locates
// replicas through repl, and dispatches remote shards through transport.
// maxConcurrency bounds the number of shards a split aggregation runs at
// once (exec.DefaultMaxConcurrency if <= 0).
func New(pmap partition.Map, repl partition.ReplicationScheme, transport exec.Transport, maxConcurrency int, logger *zap.Logger) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = exec.DefaultMaxConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		PartitionMap:      pmap,
		ReplicationScheme: repl,
		Transport:         transport,
		MaxConcurrency:    maxConcurrency,
		Logger:            logger,
	}
}

// RunningCount reports the number of queries currently executing.
func (s *Scheduler) RunningCount() int64 { return atomic.LoadInt64(&s.running) }

// IsPipelineable reports whether a node's rows can be produced
// independently, partition by partition, without first materializing the
// whole input — the property the plan splitter relies on to decide
// whether a GroupBy can be pushed down into a per-shard partial
// aggregation. It mirrors the original's Scheduler::isPipelineable
// exactly: a SequentialScan or a bare SelectExpression is pipelineable, a
// Subquery is pipelineable iff its inner table is, and everything else
// (Limit, OrderBy, GroupBy, Join, ...) is not, because each of those
// needs to see every row of its input before it can produce any output.
func IsPipelineable(n qtree.Node) bool {
	switch v := n.(type) {
	case *qtree.SequentialScan:
		return true
	case *qtree.SelectExpression:
		return true
	case *qtree.Subquery:
		return IsPipelineable(v.Input)
	default:
		return false
	}
}

// scanFinder locates the first SequentialScan encountered in depth-first
// order, the same one node.findNode<SequentialScanNode> performs in the
// original source.
type scanFinder struct {
	found *qtree.SequentialScan
}

func (f *scanFinder) Visit(n qtree.Node) qtree.Visitor {
	if f.found != nil || n == nil {
		return nil
	}
	if scan, ok := n.(*qtree.SequentialScan); ok {
		f.found = scan
		return nil
	}
	return f
}

func findSequentialScan(root qtree.Node) (*qtree.SequentialScan, bool) {
	f := &scanFinder{}
	qtree.Walk(f, root)
	return f.found, f.found != nil
}
