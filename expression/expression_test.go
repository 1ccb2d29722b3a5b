// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package expression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mastermind1981/eventql/engine"
)

// sliceTable is a TableExpression over a fixed row slice, the test double
// every expression in this package is exercised against.
type sliceTable []engine.Row

func (t sliceTable) Execute(ctx context.Context, out engine.RowWriter) error {
	for _, row := range t {
		if err := out.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

// column reads a named field back out of a row, standing in for a compiled
// engine.ValueExpression in these tests.
type column string

func (c column) Eval(row engine.Row) (any, error) { return row[string(c)], nil }
func (c column) Name() string                     { return string(c) }

func collectRows(t *testing.T, expr engine.TableExpression) []engine.Row {
	t.Helper()
	var w collectingWriter
	require.NoError(t, expr.Execute(context.Background(), &w))
	return w.rows
}

func TestLimitSkipsAndBounds(t *testing.T) {
	input := sliceTable{
		{"n": int64(1)}, {"n": int64(2)}, {"n": int64(3)}, {"n": int64(4)},
	}
	limit := NewLimit(input, 2, 1)

	rows := collectRows(t, limit)

	require.Equal(t, []engine.Row{{"n": int64(2)}, {"n": int64(3)}}, rows)
}

func TestLimitOffsetBeyondInputYieldsNothing(t *testing.T) {
	input := sliceTable{{"n": int64(1)}}
	limit := NewLimit(input, 5, 10)

	rows := collectRows(t, limit)

	require.Empty(t, rows)
}

func TestLimitNegativeCountMeansUnbounded(t *testing.T) {
	input := sliceTable{{"n": int64(1)}, {"n": int64(2)}, {"n": int64(3)}}
	limit := NewLimit(input, -1, 1)

	rows := collectRows(t, limit)

	require.Equal(t, []engine.Row{{"n": int64(2)}, {"n": int64(3)}}, rows)
}

func TestSelectIsFromLessAndEmitsOneRow(t *testing.T) {
	sel := &Select{SelectList: []engine.ValueExpression{literalExpr{1}}}

	rows := collectRows(t, sel)

	require.Len(t, rows, 1)
}

type literalExpr struct{ v any }

func (l literalExpr) Eval(engine.Row) (any, error) { return l.v, nil }
func (l literalExpr) Name() string                 { return "?column?" }

func TestSubqueryFiltersAndProjects(t *testing.T) {
	input := sliceTable{
		{"host": "a", "latency": int64(10)},
		{"host": "b", "latency": int64(20)},
	}
	where := boolExpr{column: "host", want: "b"}
	sub := NewSubquery(input, []engine.ValueExpression{column("host")}, where)

	rows := collectRows(t, sub)

	require.Equal(t, []engine.Row{{"host": "b"}}, rows)
}

// boolExpr reports whether a row's named column equals want.
type boolExpr struct {
	column string
	want   any
}

func (b boolExpr) Eval(row engine.Row) (any, error) { return row[b.column] == b.want, nil }
func (b boolExpr) Name() string                     { return "?column?" }

func TestOrderBySortsAscendingAndDescending(t *testing.T) {
	input := sliceTable{
		{"n": int64(3)}, {"n": int64(1)}, {"n": int64(2)},
	}
	asc := NewOrderBy(input, []engine.ValueExpression{column("n")}, []bool{false})
	rows := collectRows(t, asc)
	require.Equal(t, []engine.Row{{"n": int64(1)}, {"n": int64(2)}, {"n": int64(3)}}, rows)

	desc := NewOrderBy(input, []engine.ValueExpression{column("n")}, []bool{true})
	rows = collectRows(t, desc)
	require.Equal(t, []engine.Row{{"n": int64(3)}, {"n": int64(2)}, {"n": int64(1)}}, rows)
}

func TestNestedLoopJoinInner(t *testing.T) {
	base := sliceTable{{"id": int64(1)}, {"id": int64(2)}}
	joined := sliceTable{{"order_id": int64(1), "amount": int64(100)}}

	join := &NestedLoopJoin{
		SelectList:    []engine.ValueExpression{column("id"), column("amount")},
		JoinCondition: eqColumns{"id", "order_id"},
		JoinType:      InnerJoin,
		BaseTable:     base,
		JoinedTable:   joined,
	}

	rows := collectRows(t, join)

	require.Equal(t, []engine.Row{{"id": int64(1), "amount": int64(100)}}, rows)
}

func TestNestedLoopJoinLeftEmitsUnmatched(t *testing.T) {
	base := sliceTable{{"id": int64(1)}, {"id": int64(2)}}
	joined := sliceTable{{"order_id": int64(1), "amount": int64(100)}}

	join := &NestedLoopJoin{
		SelectList:    []engine.ValueExpression{column("id"), column("amount")},
		JoinCondition: eqColumns{"id", "order_id"},
		JoinType:      LeftJoin,
		BaseTable:     base,
		JoinedTable:   joined,
	}

	rows := collectRows(t, join)

	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0]["id"])
	require.Equal(t, int64(100), rows[0]["amount"])
	require.Equal(t, int64(2), rows[1]["id"])
	require.Nil(t, rows[1]["amount"])
}

// eqColumns reports whether two named columns of the combined row are equal.
type eqColumns struct{ left, right string }

func (e eqColumns) Eval(row engine.Row) (any, error) { return row[e.left] == row[e.right], nil }
func (e eqColumns) Name() string                     { return "?column?" }

func TestChartTagsRowsByPanel(t *testing.T) {
	chart := &Chart{
		Draws: []Draw{
			{InputTables: []engine.TableExpression{sliceTable{{"v": int64(1)}}}},
			{InputTables: []engine.TableExpression{sliceTable{{"v": int64(2)}}}},
		},
	}

	rows := collectRows(t, chart)

	require.Len(t, rows, 2)
	require.Equal(t, 0, rows[0]["_panel"])
	require.Equal(t, 1, rows[1]["_panel"])
}
