// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package scheduler

import (
	"context"
	"fmt"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/eqerr"
	"github.com/mastermind1981/eventql/expression"
	"github.com/mastermind1981/eventql/qtree"
)

// Build lowers a qtree.Node into its executable engine.TableExpression,
// the Go counterpart of the original's Scheduler::buildExpression. Each
// statement node type has its own build method; Build itself is just the
// type-switch dispatch the original expresses as a chain of
// dynamic_casts.
func (s *Scheduler) Build(ctx context.Context, txn engine.Transaction, node qtree.Node) (engine.TableExpression, error) {
	switch n := node.(type) {
	case *qtree.Limit:
		return s.buildLimit(ctx, txn, n)
	case *qtree.SelectExpression:
		return s.buildSelectExpression(txn, n)
	case *qtree.Subquery:
		return s.buildSubquery(ctx, txn, n)
	case *qtree.OrderBy:
		return s.buildOrderBy(ctx, txn, n)
	case *qtree.SequentialScan:
		return s.buildSequentialScan(ctx, txn, n)
	case *qtree.GroupBy:
		return s.buildGroupByDispatch(ctx, txn, n)
	case *qtree.ShowTables:
		return s.buildShowTables(txn, n)
	case *qtree.DescribeTable:
		return s.buildDescribeTable(txn, n)
	case *qtree.Join:
		return s.buildJoin(ctx, txn, n)
	case *qtree.ChartStatement:
		return s.buildChart(ctx, txn, n)
	default:
		return nil, eqerr.ErrRuntime.New(fmt.Sprintf("cannot figure out how to execute that query, sorry -- %T", node))
	}
}

func (s *Scheduler) buildLimit(ctx context.Context, txn engine.Transaction, n *qtree.Limit) (engine.TableExpression, error) {
	input, err := s.Build(ctx, txn, n.Input)
	if err != nil {
		return nil, err
	}
	return expression.NewLimit(input, n.Count, n.Offset), nil
}

func (s *Scheduler) buildSelectExpression(txn engine.Transaction, n *qtree.SelectExpression) (engine.TableExpression, error) {
	selectList, err := buildValueExpressions(txn, n.SelectList)
	if err != nil {
		return nil, err
	}
	return &expression.Select{SelectList: selectList}, nil
}

func (s *Scheduler) buildSubquery(ctx context.Context, txn engine.Transaction, n *qtree.Subquery) (engine.TableExpression, error) {
	input, err := s.Build(ctx, txn, n.Input)
	if err != nil {
		return nil, err
	}
	selectList, err := buildValueExpressions(txn, n.SelectList)
	if err != nil {
		return nil, err
	}
	var where engine.ValueExpression
	if n.Where != nil {
		where, err = txn.Compiler().BuildValueExpression(txn, n.Where)
		if err != nil {
			return nil, err
		}
	}
	return expression.NewSubquery(input, selectList, where), nil
}

func (s *Scheduler) buildOrderBy(ctx context.Context, txn engine.Transaction, n *qtree.OrderBy) (engine.TableExpression, error) {
	input, err := s.Build(ctx, txn, n.Input)
	if err != nil {
		return nil, err
	}
	sortExprs := make([]engine.ValueExpression, len(n.SortSpecs))
	descending := make([]bool, len(n.SortSpecs))
	for i, spec := range n.SortSpecs {
		ve, err := txn.Compiler().BuildValueExpression(txn, spec.Expr)
		if err != nil {
			return nil, err
		}
		sortExprs[i] = ve
		descending[i] = spec.Descending
	}
	return expression.NewOrderBy(input, sortExprs, descending), nil
}

func (s *Scheduler) buildSequentialScan(ctx context.Context, txn engine.Transaction, n *qtree.SequentialScan) (engine.TableExpression, error) {
	expr, ok := txn.TableProvider().BuildSequentialScan(ctx, txn, n)
	if !ok {
		return nil, eqerr.ErrTableNotFound.New(n.TableName)
	}
	return expr, nil
}

// buildGroupByDispatch decides, for a GroupBy that is not itself a
// shard's partial aggregation, whether its input is pipelineable: if so
// it hands off to SplitAggregation to build the distributed form,
// otherwise it falls back to an ordinary in-process GroupBy.
func (s *Scheduler) buildGroupByDispatch(ctx context.Context, txn engine.Transaction, n *qtree.GroupBy) (engine.TableExpression, error) {
	if n.IsPartialAggregation {
		return s.buildPartialGroupBy(ctx, txn, n)
	}
	if IsPipelineable(n.Input) {
		return s.SplitAggregation(ctx, txn, n)
	}
	return s.buildGroupBy(ctx, txn, n)
}

func (s *Scheduler) buildGroupBy(ctx context.Context, txn engine.Transaction, n *qtree.GroupBy) (engine.TableExpression, error) {
	input, err := s.Build(ctx, txn, n.Input)
	if err != nil {
		return nil, err
	}
	selectList, err := buildGroupBySelectList(txn, n.SelectList)
	if err != nil {
		return nil, err
	}
	groupExprs, err := buildGroupExpressions(txn, n.GroupExpressions)
	if err != nil {
		return nil, err
	}
	return expression.NewGroupBy(input, selectList, groupExprs), nil
}

func (s *Scheduler) buildPartialGroupBy(ctx context.Context, txn engine.Transaction, n *qtree.GroupBy) (engine.TableExpression, error) {
	input, err := s.Build(ctx, txn, n.Input)
	if err != nil {
		return nil, err
	}
	selectList, err := buildGroupBySelectList(txn, n.SelectList)
	if err != nil {
		return nil, err
	}
	groupExprs, err := buildGroupExpressions(txn, n.GroupExpressions)
	if err != nil {
		return nil, err
	}
	return expression.NewPartialGroupBy(input, selectList, groupExprs), nil
}

func (s *Scheduler) buildShowTables(txn engine.Transaction, n *qtree.ShowTables) (engine.TableExpression, error) {
	return &expression.ShowTables{}, nil
}

func (s *Scheduler) buildDescribeTable(txn engine.Transaction, n *qtree.DescribeTable) (engine.TableExpression, error) {
	return &expression.DescribeTable{TableName: n.TableName}, nil
}

func (s *Scheduler) buildJoin(ctx context.Context, txn engine.Transaction, n *qtree.Join) (engine.TableExpression, error) {
	selectList, err := buildValueExpressions(txn, n.SelectList)
	if err != nil {
		return nil, err
	}
	var where, joinCond engine.ValueExpression
	if n.Where != nil {
		where, err = txn.Compiler().BuildValueExpression(txn, n.Where)
		if err != nil {
			return nil, err
		}
	}
	if n.JoinCondition != nil {
		joinCond, err = txn.Compiler().BuildValueExpression(txn, n.JoinCondition)
		if err != nil {
			return nil, err
		}
	}
	base, err := s.Build(ctx, txn, n.BaseTable)
	if err != nil {
		return nil, err
	}
	joined, err := s.Build(ctx, txn, n.JoinedTable)
	if err != nil {
		return nil, err
	}

	joinType := expression.InnerJoin
	if n.JoinType == qtree.LeftJoin {
		joinType = expression.LeftJoin
	}

	return &expression.NestedLoopJoin{
		SelectList:     selectList,
		Where:          where,
		JoinCondition:  joinCond,
		JoinType:       joinType,
		InputColumnMap: n.InputColumnMap,
		BaseTable:      base,
		JoinedTable:    joined,
	}, nil
}

func (s *Scheduler) buildChart(ctx context.Context, txn engine.Transaction, n *qtree.ChartStatement) (engine.TableExpression, error) {
	draws := make([]expression.Draw, len(n.DrawStatements))
	for i, d := range n.DrawStatements {
		inputs := make([]engine.TableExpression, len(d.InputTables))
		for j, in := range d.InputTables {
			built, err := s.Build(ctx, txn, in)
			if err != nil {
				return nil, err
			}
			inputs[j] = built
		}
		draws[i] = expression.Draw{InputTables: inputs}
	}
	return &expression.Chart{Draws: draws}, nil
}

func buildValueExpressions(txn engine.Transaction, items []qtree.SelectListItem) ([]engine.ValueExpression, error) {
	out := make([]engine.ValueExpression, len(items))
	for i, item := range items {
		ve, err := txn.Compiler().BuildValueExpression(txn, item.Expression)
		if err != nil {
			return nil, err
		}
		out[i] = ve
	}
	return out, nil
}
