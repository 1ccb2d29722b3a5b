// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package expression

import (
	"context"
	"fmt"
	"sync"

	"github.com/mastermind1981/eventql/engine"
)

// AggregateOp enumerates the aggregate functions GroupBy, PartialGroupBy
// and GroupByMerge understand, named after the teacher's own
// expr.AggregateOp enum (expr/node.go).
type AggregateOp int

const (
	OpCount AggregateOp = iota
	OpSum
	OpAvg
	OpMin
	OpMax
)

// AggregateSpec is one aggregate term of a GroupBy's select list.
type AggregateSpec struct {
	Op  AggregateOp
	Arg engine.ValueExpression // nil for COUNT(*)
}

// SelectItem is one column of a GroupBy's select list: either a plain,
// non-aggregated expression (normally one of the GROUP BY columns) or an
// aggregate term.
type SelectItem struct {
	Alias     string
	Plain     engine.ValueExpression // set when Aggregate is nil
	Aggregate *AggregateSpec         // set for an aggregate column
}

// groupKey is a stable, comparable representation of a row's grouping
// columns, used to bucket rows (or partial-aggregate rows) by group.
func groupKey(exprs []engine.ValueExpression, row engine.Row) (string, error) {
	key := ""
	for _, e := range exprs {
		v, err := e.Eval(row)
		if err != nil {
			return "", err
		}
		key += fmt.Sprintf("%v\x1f", v)
	}
	return key, nil
}

type accumulator struct {
	count int64
	sum   float64
	min   any
	max   any
	first any // for plain, non-aggregate columns
	seen  bool
}

func (a *accumulator) add(v any) {
	a.count++
	if f, ok := toFloat(v); ok {
		a.sum += f
		if !a.seen || f < mustFloat(a.min) {
			a.min = f
		}
		if !a.seen || f > mustFloat(a.max) {
			a.max = f
		}
	}
	if !a.seen {
		a.first = v
	}
	a.seen = true
}

func mustFloat(v any) float64 {
	f, _ := toFloat(v)
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// GroupBy performs a complete, non-distributed aggregation: group Input's
// rows by GroupExprs and reduce SelectList over each group. It is built
// when the scheduler determines a GroupBy's input is not pipelineable
// (scheduler.IsPipelineable returns false).
type GroupBy struct {
	baseExpr
	SelectList []SelectItem
	GroupExprs []engine.ValueExpression
}

// NewGroupBy returns a GroupBy reading from input.
func NewGroupBy(input engine.TableExpression, selectList []SelectItem, groupExprs []engine.ValueExpression) *GroupBy {
	return &GroupBy{baseExpr: baseExpr{Input: input}, SelectList: selectList, GroupExprs: groupExprs}
}

// groupCountAlias is an internal column PartialGroupBy attaches to every
// partial row, carrying the number of input rows folded into that group
// within that shard. GroupByMerge sums it back across shards so a merged
// AVG can divide by the true combined row count rather than the number of
// shard-partials contributing to it.
const groupCountAlias = "__group_count"

func reduceGroups(ctx context.Context, input engine.TableExpression, groupExprs []engine.ValueExpression, selectList []SelectItem, finalize bool) ([]engine.Row, error) {
	type group struct {
		accs  map[string]*accumulator
		count int64
	}
	var order []string
	groups := make(map[string]*group)

	// input may be an exec.PipelinedExpression fanning out several
	// shards concurrently, so the writer guards the group map with a
	// mutex rather than assuming single-goroutine delivery.
	var mu sync.Mutex

	err := input.Execute(ctx, rowFunc(func(row engine.Row) error {
		key, err := groupKey(groupExprs, row)
		if err != nil {
			return err
		}

		mu.Lock()
		defer mu.Unlock()

		g, ok := groups[key]
		if !ok {
			g = &group{accs: make(map[string]*accumulator)}
			groups[key] = g
			order = append(order, key)
		}
		g.count++
		for _, item := range selectList {
			acc, ok := g.accs[item.Alias]
			if !ok {
				acc = &accumulator{}
				g.accs[item.Alias] = acc
			}
			switch {
			case item.Aggregate == nil:
				v, err := item.Plain.Eval(row)
				if err != nil {
					return err
				}
				acc.add(v)
			case item.Aggregate.Arg == nil:
				acc.add(int64(1)) // COUNT(*)
			default:
				v, err := item.Aggregate.Arg.Eval(row)
				if err != nil {
					return err
				}
				acc.add(v)
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}

	out := make([]engine.Row, len(order))
	for i, key := range order {
		g := groups[key]
		row := make(engine.Row, len(selectList)+1)
		for _, item := range selectList {
			row[item.Alias] = reduceColumn(item, g.accs[item.Alias], finalize)
		}
		if !finalize {
			row[groupCountAlias] = g.count
		}
		out[i] = row
	}
	return out, nil
}

func reduceColumn(item SelectItem, acc *accumulator, finalize bool) any {
	if item.Aggregate == nil {
		return acc.first
	}
	switch item.Aggregate.Op {
	case OpCount:
		return acc.count
	case OpSum:
		return acc.sum
	case OpAvg:
		if !finalize {
			return acc.sum // partial: the running sum; the row count rides on groupCountAlias
		}
		if acc.count == 0 {
			return float64(0)
		}
		return acc.sum / float64(acc.count)
	case OpMin:
		return acc.min
	case OpMax:
		return acc.max
	default:
		return nil
	}
}

// rowFunc adapts a plain function to engine.RowWriter.
type rowFunc func(engine.Row) error

func (f rowFunc) WriteRow(row engine.Row) error { return f(row) }

// Execute runs GroupBy to completion, emitting one finalized row per
// distinct GroupExprs value.
func (e *GroupBy) Execute(ctx context.Context, out engine.RowWriter) error {
	rows, err := reduceGroups(ctx, e.Input, e.GroupExprs, e.SelectList, true)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := out.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// PartialGroupBy computes the same grouping as GroupBy but leaves
// distributive aggregates (SUM, COUNT, MIN, MAX) un-finalized and AVG
// expressed as a running sum, so GroupByMerge can combine partials from
// multiple shards correctly. It is what scheduler.SplitAggregation builds
// for each local shard of a split plan.
type PartialGroupBy struct {
	baseExpr
	SelectList []SelectItem
	GroupExprs []engine.ValueExpression
}

// NewPartialGroupBy returns a PartialGroupBy reading from input.
func NewPartialGroupBy(input engine.TableExpression, selectList []SelectItem, groupExprs []engine.ValueExpression) *PartialGroupBy {
	return &PartialGroupBy{baseExpr: baseExpr{Input: input}, SelectList: selectList, GroupExprs: groupExprs}
}

func (e *PartialGroupBy) Execute(ctx context.Context, out engine.RowWriter) error {
	rows, err := reduceGroups(ctx, e.Input, e.GroupExprs, e.SelectList, false)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := out.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// GroupByMerge re-aggregates the partial rows produced by a split plan's
// shards (local PartialGroupBy expressions and remote dispatches alike),
// finishing any AVG columns by dividing their running sum by the merged
// groupCountAlias row count. It is the merge half of scheduler.SplitAggregation,
// named and shaped after the original's GroupByMergeExpression and
// grounded additionally in the pack's logicalplan.Deduplicate merge-node
// shape.
type GroupByMerge struct {
	// Shards streams the partial rows from every shard; normally an
	// *exec.PipelinedExpression.
	Shards     engine.TableExpression
	SelectList []SelectItem
	GroupExprs []engine.ValueExpression
}

func (e *GroupByMerge) Execute(ctx context.Context, out engine.RowWriter) error {
	// Each shard already grouped its own rows; re-running groupKey over
	// the partial rows groups equal keys across shards together, and
	// reduceGroups' finalize=true pass turns the merged running sums
	// into completed SUM values. AVG columns carry a running sum, not an
	// average, through this pass too (mergeSelectList maps OpAvg to
	// OpSum like OpCount) so that finishAverages below can divide by the
	// true combined row count rather than a per-shard average of
	// per-shard averages.
	merged, err := reduceGroups(ctx, e.Shards, e.GroupExprs, mergeSelectList(e.SelectList), true)
	if err != nil {
		return err
	}
	for _, row := range merged {
		// The merge pass sums COUNT partials as float64; restore them to
		// int64, the type GroupBy and PartialGroupBy emit for COUNT.
		for _, item := range e.SelectList {
			if item.Aggregate != nil && item.Aggregate.Op == OpCount {
				n, _ := toFloat(row[item.Alias])
				row[item.Alias] = int64(n)
			}
		}
		finishAverages(e.SelectList, row)
		if err := out.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// mergeSelectList rewrites each aggregate item's Arg to read back the
// shard-partial column (by Alias) instead of re-evaluating the original
// expression, since shard rows already carry the partial value under
// that name. COUNT and AVG columns are both summed across shards rather
// than re-counted or re-averaged: PartialGroupBy already left AVG as a
// running sum, so the merge pass's job is only to add those sums up, and
// groupCountAlias along with them, into the true combined row count
// finishAverages needs.
func mergeSelectList(items []SelectItem) []SelectItem {
	out := make([]SelectItem, 0, len(items)+1)
	for _, item := range items {
		if item.Aggregate == nil {
			out = append(out, SelectItem{Alias: item.Alias, Plain: columnExpression(item.Alias)})
			continue
		}
		mergeOp := item.Aggregate.Op
		if mergeOp == OpCount || mergeOp == OpAvg {
			mergeOp = OpSum
		}
		out = append(out, SelectItem{
			Alias:     item.Alias,
			Aggregate: &AggregateSpec{Op: mergeOp, Arg: columnExpression(item.Alias)},
		})
	}
	out = append(out, SelectItem{
		Alias:     groupCountAlias,
		Aggregate: &AggregateSpec{Op: OpSum, Arg: columnExpression(groupCountAlias)},
	})
	return out
}

// finishAverages divides every AVG column's merged running sum by the
// row's merged groupCountAlias, then drops that internal column. It
// mutates row in place.
func finishAverages(items []SelectItem, row engine.Row) {
	count, _ := toFloat(row[groupCountAlias])
	delete(row, groupCountAlias)
	for _, item := range items {
		if item.Aggregate == nil || item.Aggregate.Op != OpAvg {
			continue
		}
		sum, _ := toFloat(row[item.Alias])
		if count == 0 {
			row[item.Alias] = float64(0)
			continue
		}
		row[item.Alias] = sum / count
	}
}

// columnExpression reads a named column back out of a row; used to
// re-feed a shard's already-computed partial value into the merge
// reduction. It implements engine.ValueExpression.
type columnExpression string

func (c columnExpression) Eval(row engine.Row) (any, error) { return row[string(c)], nil }
func (c columnExpression) Name() string                     { return string(c) }
