// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package main

import (
	"fmt"
	"strings"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/qtree"
)

// memCompiler is the in-memory stand-in for the SQL compiler spec.md §1
// places out of scope: it turns a qtree.ValueNode into an evaluable
// engine.ValueExpression by straightforward recursive descent. A
// production compiler would type-check and constant-fold; this one
// exists only to drive the scheduler end to end.
type memCompiler struct{}

func (memCompiler) BuildValueExpression(_ engine.Transaction, node qtree.ValueNode) (engine.ValueExpression, error) {
	return compileValue(node)
}

func compileValue(node qtree.ValueNode) (engine.ValueExpression, error) {
	switch n := node.(type) {
	case *qtree.Literal:
		return literalExpr{value: n.Value}, nil
	case *qtree.ColumnReference:
		return columnExpr(n.Column), nil
	case *qtree.Call:
		args := make([]engine.ValueExpression, len(n.Args))
		for i, a := range n.Args {
			ve, err := compileValue(a)
			if err != nil {
				return nil, err
			}
			args[i] = ve
		}
		return callExpr{function: n.Function, args: args}, nil
	default:
		return nil, fmt.Errorf("eventqld: cannot compile value node %T", node)
	}
}

type literalExpr struct{ value any }

func (e literalExpr) Eval(engine.Row) (any, error) { return e.value, nil }
func (e literalExpr) Name() string                 { return "?column?" }

type columnExpr string

func (e columnExpr) Eval(row engine.Row) (any, error) { return row[string(e)], nil }
func (e columnExpr) Name() string                     { return string(e) }

// callExpr evaluates the handful of scalar functions this demo's query
// trees use: the gte/lte comparisons and logical_and call rewrite.Lift
// emits for a time-suffixed scan, plus gt, lt, eq and logical_or.
type callExpr struct {
	function string
	args     []engine.ValueExpression
}

func (e callExpr) Name() string { return e.function }

func (e callExpr) Eval(row engine.Row) (any, error) {
	vals := make([]any, len(e.args))
	for i, a := range e.args {
		v, err := a.Eval(row)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}

	switch strings.ToLower(e.function) {
	case "gte", "lte", "gt", "lt", "eq":
		if len(vals) != 2 {
			return nil, fmt.Errorf("eventqld: %s wants 2 arguments, got %d", e.function, len(vals))
		}
		return compareFunc(strings.ToLower(e.function), vals[0], vals[1])
	case "logical_and":
		for _, v := range vals {
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil
	case "logical_or":
		for _, v := range vals {
			if truthy(v) {
				return true, nil
			}
		}
		return false, nil
	default:
		return nil, fmt.Errorf("eventqld: unsupported function %q", e.function)
	}
}

func truthy(v any) bool {
	b, ok := v.(bool)
	return ok && b
}

func compareFunc(op string, a, b any) (any, error) {
	af, aok := asInt64(a)
	bf, bok := asInt64(b)
	if !aok || !bok {
		return nil, fmt.Errorf("eventqld: cannot compare %T and %T", a, b)
	}
	switch op {
	case "gte":
		return af >= bf, nil
	case "lte":
		return af <= bf, nil
	case "gt":
		return af > bf, nil
	case "lt":
		return af < bf, nil
	case "eq":
		return af == bf, nil
	}
	return nil, fmt.Errorf("eventqld: unreachable comparison %q", op)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
