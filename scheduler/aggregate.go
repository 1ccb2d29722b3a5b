// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package scheduler

import (
	"context"
	"strings"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/exec"
	"github.com/mastermind1981/eventql/expression"
	"github.com/mastermind1981/eventql/qtree"
)

// aggregateOpFromFunction recognizes the handful of distributive
// aggregate functions SplitAggregation knows how to push down to shards
// and merge back: COUNT, SUM, AVG, MIN, MAX. Anything else is treated as
// a plain (non-aggregate) select-list expression, matching how the
// original leaves aggregate recognition entirely to the compiler
// collaborator while this module keeps it local to the scheduler so
// package expression doesn't need a compiler dependency of its own.
func aggregateOpFromFunction(name string) (expression.AggregateOp, bool) {
	switch strings.ToLower(name) {
	case "count":
		return expression.OpCount, true
	case "sum":
		return expression.OpSum, true
	case "avg":
		return expression.OpAvg, true
	case "min":
		return expression.OpMin, true
	case "max":
		return expression.OpMax, true
	default:
		return 0, false
	}
}

// buildGroupBySelectList compiles a GroupBy's select list into
// expression.SelectItem values, splitting out the aggregate terms
// SplitAggregation needs to track separately from plain (grouping)
// columns.
func buildGroupBySelectList(txn engine.Transaction, items []qtree.SelectListItem) ([]expression.SelectItem, error) {
	out := make([]expression.SelectItem, len(items))
	for i, item := range items {
		call, isCall := item.Expression.(*qtree.Call)
		if isCall {
			if op, ok := aggregateOpFromFunction(call.Function); ok {
				var arg engine.ValueExpression
				if len(call.Args) > 0 {
					var err error
					arg, err = txn.Compiler().BuildValueExpression(txn, call.Args[0])
					if err != nil {
						return nil, err
					}
				}
				out[i] = expression.SelectItem{
					Alias:     item.Alias,
					Aggregate: &expression.AggregateSpec{Op: op, Arg: arg},
				}
				continue
			}
		}

		plain, err := txn.Compiler().BuildValueExpression(txn, item.Expression)
		if err != nil {
			return nil, err
		}
		out[i] = expression.SelectItem{Alias: item.Alias, Plain: plain}
	}
	return out, nil
}

func buildGroupExpressions(txn engine.Transaction, exprs []qtree.ValueNode) ([]engine.ValueExpression, error) {
	out := make([]engine.ValueExpression, len(exprs))
	for i, e := range exprs {
		ve, err := txn.Compiler().BuildValueExpression(txn, e)
		if err != nil {
			return nil, err
		}
		out[i] = ve
	}
	return out, nil
}

// SplitAggregation builds the distributed-execution form of a GroupBy
// whose input is pipelineable: one PartialGroupBy or remote dispatch per
// partition, fanned out through a PipelinedExpression, re-aggregated by
// a GroupByMerge. It is the Go counterpart of the original's
// Scheduler::buildPipelineGroupByExpression.
func (s *Scheduler) SplitAggregation(ctx context.Context, txn engine.Transaction, node *qtree.GroupBy) (engine.TableExpression, error) {
	auth, _ := txn.AuthContext()

	shards, err := s.Split(txn, node.Input)
	if err != nil {
		return nil, err
	}

	pipelined := exec.NewPipelinedExpression(txn.Namespace(), s.Transport, auth, s.MaxConcurrency, s.Logger)

	for _, shard := range shards {
		shardNode := &qtree.GroupBy{
			SelectList:           node.SelectList,
			GroupExpressions:     node.GroupExpressions,
			Input:                shard.Stmt,
			IsPartialAggregation: true,
		}

		if shard.IsLocal {
			partial, err := s.buildPartialGroupBy(ctx, txn, shardNode)
			if err != nil {
				return nil, err
			}
			pipelined.AddLocalQuery(partial)
		} else {
			pipelined.AddRemoteQuery(shardNode, shard.Hosts)
		}
	}

	selectList, err := buildGroupBySelectList(txn, node.SelectList)
	if err != nil {
		return nil, err
	}
	groupExprs, err := buildGroupExpressions(txn, node.GroupExpressions)
	if err != nil {
		return nil, err
	}

	return &expression.GroupByMerge{
		Shards:     pipelined,
		SelectList: selectList,
		GroupExprs: groupExprs,
	}, nil
}
