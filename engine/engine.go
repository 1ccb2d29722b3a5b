// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package engine defines the narrow interfaces the scheduler uses to talk
// to its external collaborators: the SQL compiler, the physical storage
// engine (via TableProvider), and the per-query transaction context. None
// of these are implemented here — spec.md places the compiler and the
// physical storage engine outside the scheduler's scope, and production
// callers supply their own. Within this module, package expression's
// concrete TableExpression types and package scheduler's orchestration of
// them are its main consumers; packages exec and transport and the
// cmd/eventqld demo use it too.
package engine

import (
	"context"

	"github.com/mastermind1981/eventql/qtree"
)

// Row is a single result row, keyed by output column name.
type Row map[string]any

// RowWriter receives the rows produced by a TableExpression, one at a
// time, in whatever order the expression emits them.
type RowWriter interface {
	WriteRow(row Row) error
}

// ValueExpression is a compiled, evaluable scalar expression, produced by
// Compiler.BuildValueExpression from a qtree.ValueNode.
type ValueExpression interface {
	// Eval evaluates the expression against a single input row.
	Eval(row Row) (any, error)
	// Name is the output column name this expression projects to, i.e.
	// its select-list alias or a synthesized name.
	Name() string
}

// TableExpression is the executable form of a qtree.Node, as produced by
// scheduler.Build. It is the scheduler's sole output type: Scheduler.
// Execute returns one wrapped in a ResultCursor.
type TableExpression interface {
	Execute(ctx context.Context, out RowWriter) error
}

// ResultCursor is the handle returned to the caller of Scheduler.Execute.
// It is deliberately just a TableExpression by another name — callers
// drive it by calling Execute — matching the original source's
// TableExpressionResultCursor, which is a thin wrapper with no added
// behavior of its own.
type ResultCursor interface {
	TableExpression
}

// Compiler turns a qtree.ValueNode into an evaluable ValueExpression. It
// is the logical-planner/expression-compiler collaborator spec.md places
// outside the scheduler's scope.
type Compiler interface {
	BuildValueExpression(txn Transaction, node qtree.ValueNode) (ValueExpression, error)
}

// TableProvider resolves a qtree.SequentialScan against the physical
// storage engine, another out-of-scope collaborator. ok is false if the
// table does not exist.
type TableProvider interface {
	BuildSequentialScan(ctx context.Context, txn Transaction, scan *qtree.SequentialScan) (expr TableExpression, ok bool)
}

// AuthContext is the authenticated principal a Transaction presents to
// remote replicas when the plan splitter fans a query out across shards.
// Its absence on a Transaction is what makes Scheduler.Split refuse to
// pipeline a query (see Open Question 3 in DESIGN.md).
type AuthContext interface {
	Principal() string
}

// Transaction is the per-query execution context supplied by the caller
// of the scheduler.
type Transaction interface {
	Compiler() Compiler
	TableProvider() TableProvider
	Namespace() string
	AuthContext() (AuthContext, bool)
}

// QueryPlan is one parsed, logically-planned statement list plus its
// Transaction, as produced by the (out-of-scope) logical planner.
type QueryPlan interface {
	Statement(i int) qtree.Node
	Transaction() Transaction
}
