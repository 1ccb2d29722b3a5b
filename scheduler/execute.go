// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package scheduler

import (
	"context"
	"sync/atomic"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/rewrite"
)

// Execute rewrites and lowers the stmtIdx'th statement of plan into an
// engine.ResultCursor, the Go counterpart of the original's
// Scheduler::execute. Nothing runs yet: the returned cursor streams rows
// only once its Execute method is called, same as every other
// engine.TableExpression.
func (s *Scheduler) Execute(ctx context.Context, plan engine.QueryPlan, stmtIdx int) (engine.ResultCursor, error) {
	node := plan.Statement(stmtIdx)
	rewrite.Lift(node)

	txn := plan.Transaction()
	built, err := s.Build(ctx, txn, node)
	if err != nil {
		return nil, err
	}

	return &countingCursor{scheduler: s, inner: built}, nil
}

// countingCursor wraps the built expression tree so RunningCount reflects
// queries actually streaming rows, not just ones that have been built.
type countingCursor struct {
	scheduler *Scheduler
	inner     engine.TableExpression
}

func (c *countingCursor) Execute(ctx context.Context, out engine.RowWriter) error {
	atomic.AddInt64(&c.scheduler.running, 1)
	defer atomic.AddInt64(&c.scheduler.running, -1)
	return c.inner.Execute(ctx, out)
}
