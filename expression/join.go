// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package expression

import (
	"context"

	"github.com/mastermind1981/eventql/engine"
)

// JoinType mirrors qtree.JoinType without importing qtree, keeping this
// package's only dependency on the query tree at the scheduler boundary.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// NestedLoopJoin combines BaseTable and JoinedTable row-wise, probing the
// (small) JoinedTable side once per BaseTable row. Cross-partition joins
// are a declared non-goal, so both inputs are always already-local or
// already-pipelined table expressions by the time the scheduler builds
// this node.
type NestedLoopJoin struct {
	SelectList     []engine.ValueExpression
	Where          engine.ValueExpression // nil if there is no filter
	JoinCondition  engine.ValueExpression // nil only for a cross join
	JoinType       JoinType
	InputColumnMap []int
	BaseTable      engine.TableExpression
	JoinedTable    engine.TableExpression
}

func (e *NestedLoopJoin) Execute(ctx context.Context, out engine.RowWriter) error {
	joined, err := collect(ctx, e.JoinedTable)
	if err != nil {
		return err
	}

	return e.BaseTable.Execute(ctx, rowMapWriter(func(baseRow engine.Row) error {
		matched := false
		for _, joinedRow := range joined {
			combined := combineRows(baseRow, joinedRow, e.InputColumnMap)
			if e.JoinCondition != nil {
				ok, err := e.JoinCondition.Eval(combined)
				if err != nil {
					return err
				}
				if truthy, isBool := ok.(bool); isBool && !truthy {
					continue
				}
			}
			matched = true
			if err := e.emit(combined, out); err != nil {
				return err
			}
		}
		if !matched && e.JoinType == LeftJoin {
			combined := combineRows(baseRow, nil, e.InputColumnMap)
			return e.emit(combined, out)
		}
		return nil
	}))
}

func (e *NestedLoopJoin) emit(row engine.Row, out engine.RowWriter) error {
	if e.Where != nil {
		ok, err := e.Where.Eval(row)
		if err != nil {
			return err
		}
		if truthy, isBool := ok.(bool); isBool && !truthy {
			return nil
		}
	}
	projected, err := project(e.SelectList, row)
	if err != nil {
		return err
	}
	return out.WriteRow(projected)
}

// combineRows merges a base row and a (possibly nil, for an unmatched
// LEFT JOIN row) joined row into a single row value expressions can
// evaluate against. InputColumnMap is accepted for parity with the
// original qtree.Join shape but is not needed for the map[string]any row
// representation used here: columns already carry distinct names.
func combineRows(base, joined engine.Row, _ []int) engine.Row {
	out := make(engine.Row, len(base)+len(joined))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range joined {
		out[k] = v
	}
	return out
}
