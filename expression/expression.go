// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package expression implements the executable operator tree the
// scheduler builds from a qtree.Node tree: one concrete
// engine.TableExpression type per qtree statement node, named and shaped
// after the original source's csql::*Expression classes.
package expression

import (
	"context"
	"sort"

	"github.com/mastermind1981/eventql/engine"
)

// baseExpr embeds the already-built input expression a non-leaf
// expression reads from, the same role sneller's plan.Nonterminal plays
// for its Op tree.
type baseExpr struct {
	Input engine.TableExpression
}

// collectingWriter buffers every row written to it; several expressions
// (Limit, OrderBy, NestedLoopJoin) need the complete input before they can
// produce their own output.
type collectingWriter struct {
	rows []engine.Row
}

func (w *collectingWriter) WriteRow(row engine.Row) error {
	w.rows = append(w.rows, row)
	return nil
}

func collect(ctx context.Context, input engine.TableExpression) ([]engine.Row, error) {
	var w collectingWriter
	if err := input.Execute(ctx, &w); err != nil {
		return nil, err
	}
	return w.rows, nil
}

// Limit yields at most Count of its input's rows, skipping the first
// Offset.
type Limit struct {
	baseExpr
	Count  int
	Offset int
}

// NewLimit returns a Limit reading from input.
func NewLimit(input engine.TableExpression, count, offset int) *Limit {
	return &Limit{baseExpr: baseExpr{Input: input}, Count: count, Offset: offset}
}

func (e *Limit) Execute(ctx context.Context, out engine.RowWriter) error {
	rows, err := collect(ctx, e.Input)
	if err != nil {
		return err
	}
	lo := e.Offset
	if lo > len(rows) {
		lo = len(rows)
	}
	hi := lo + e.Count
	if e.Count < 0 || hi > len(rows) {
		hi = len(rows)
	}
	for _, row := range rows[lo:hi] {
		if err := out.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// project is shared by Select, Subquery and NestedLoopJoin: evaluate a select
// list of compiled value expressions against one input row.
func project(selectList []engine.ValueExpression, row engine.Row) (engine.Row, error) {
	out := make(engine.Row, len(selectList))
	for _, ve := range selectList {
		v, err := ve.Eval(row)
		if err != nil {
			return nil, err
		}
		out[ve.Name()] = v
	}
	return out, nil
}

// Select evaluates SelectList once against an empty row and emits the
// single resulting row (the qtree.SelectExpression case: a FROM-less
// projection like "SELECT 1 + 1", the same shape as the original's
// SelectExpression, which is likewise built with no input table).
type Select struct {
	SelectList []engine.ValueExpression
}

func (e *Select) Execute(ctx context.Context, out engine.RowWriter) error {
	projected, err := project(e.SelectList, nil)
	if err != nil {
		return err
	}
	return out.WriteRow(projected)
}

// rowMapWriter adapts a plain function to engine.RowWriter, the same
// lightweight-adapter shape sneller uses for its vm.QuerySink wrappers.
type rowMapWriter func(engine.Row) error

func (f rowMapWriter) WriteRow(row engine.Row) error { return f(row) }

// Subquery evaluates SelectList over Input's rows, additionally dropping
// any row for which Where evaluates falsy (the qtree.Subquery case: a
// derived table with its own filter).
type Subquery struct {
	baseExpr
	SelectList []engine.ValueExpression
	Where      engine.ValueExpression // nil if there is no filter
}

// NewSubquery returns a Subquery reading from input.
func NewSubquery(input engine.TableExpression, selectList []engine.ValueExpression, where engine.ValueExpression) *Subquery {
	return &Subquery{baseExpr: baseExpr{Input: input}, SelectList: selectList, Where: where}
}

func (e *Subquery) Execute(ctx context.Context, out engine.RowWriter) error {
	return e.Input.Execute(ctx, rowMapWriter(func(row engine.Row) error {
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
	}))
}

// OrderBy sorts Input's rows according to SortExprs before writing them
// out. Because sorting requires the whole input, OrderBy (like Limit) is
// an opaque boundary to the pipelineability oracle.
type OrderBy struct {
	baseExpr
	SortExprs  []engine.ValueExpression
	Descending []bool
}

// NewOrderBy returns an OrderBy reading from input.
func NewOrderBy(input engine.TableExpression, sortExprs []engine.ValueExpression, descending []bool) *OrderBy {
	return &OrderBy{baseExpr: baseExpr{Input: input}, SortExprs: sortExprs, Descending: descending}
}

func (e *OrderBy) Execute(ctx context.Context, out engine.RowWriter) error {
	rows, err := collect(ctx, e.Input)
	if err != nil {
		return err
	}

	var sortErr error
	sort.SliceStable(rows, func(i, j int) bool {
		if sortErr != nil {
			return false
		}
		for k, se := range e.SortExprs {
			vi, err := se.Eval(rows[i])
			if err != nil {
				sortErr = err
				return false
			}
			vj, err := se.Eval(rows[j])
			if err != nil {
				sortErr = err
				return false
			}
			cmp := compareValues(vi, vj)
			if cmp == 0 {
				continue
			}
			if e.Descending[k] {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	if sortErr != nil {
		return sortErr
	}

	for _, row := range rows {
		if err := out.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// compareValues provides a total order over the handful of scalar types
// value expressions evaluate to. Incomparable values sort as equal rather
// than panicking: the compiler collaborator is responsible for rejecting
// a query whose ORDER BY terms don't type-check.
func compareValues(a, b any) int {
	switch av := a.(type) {
	case int64:
		if bv, ok := b.(int64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			default:
				return 0
			}
		}
	}
	return 0
}

// ShowTables writes one table_name row for each entry of Tables; it does
// not look up the transaction's namespace itself, and scheduler.Build
// constructs it with Tables empty. A full implementation belongs to the (out-of-scope) physical storage engine,
// so this is left for the TableProvider collaborator to wire in via a
// purpose-built TableExpression if needed. It is provided here only as
// the same kind of stub the original scheduler produces directly
// (ShowTablesExpression took no further arguments either).
type ShowTables struct {
	Tables []string
}

func (e *ShowTables) Execute(ctx context.Context, out engine.RowWriter) error {
	for _, t := range e.Tables {
		if err := out.WriteRow(engine.Row{"table_name": t}); err != nil {
			return err
		}
	}
	return nil
}

// DescribeTable reports the schema of one table, again deferring the
// actual column metadata to whatever TableProvider the caller wires in.
type DescribeTable struct {
	TableName string
	Columns   []ColumnInfo
}

// ColumnInfo is one row of a DescribeTable result.
type ColumnInfo struct {
	Name string
	Type string
}

func (e *DescribeTable) Execute(ctx context.Context, out engine.RowWriter) error {
	for _, c := range e.Columns {
		if err := out.WriteRow(engine.Row{"column_name": c.Name, "column_type": c.Type}); err != nil {
			return err
		}
	}
	return nil
}
