// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Command eventqld demonstrates the scheduler end to end: it wires
// in-memory stand-ins for every external collaborator spec.md places out
// of scope (the compiler, the physical storage engine, authentication,
// the partition map) to the real rewrite/partition/scheduler/expression/
// exec/transport packages, and runs one time-suffixed, grouped query
// against a toy in-memory table.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/partition"
	"github.com/mastermind1981/eventql/qtree"
	"github.com/mastermind1981/eventql/scheduler"
	"github.com/mastermind1981/eventql/transport"
)

const demoNamespace = "demo"

type fakeAuth struct{ principal string }

func (a fakeAuth) Principal() string { return a.principal }

type fakeTransaction struct {
	compiler      engine.Compiler
	tableProvider engine.TableProvider
	auth          engine.AuthContext
}

func (t *fakeTransaction) Compiler() engine.Compiler             { return t.compiler }
func (t *fakeTransaction) TableProvider() engine.TableProvider   { return t.tableProvider }
func (t *fakeTransaction) Namespace() string                     { return demoNamespace }
func (t *fakeTransaction) AuthContext() (engine.AuthContext, bool) { return t.auth, t.auth != nil }

type fakeQueryPlan struct {
	statements []qtree.Node
	txn        engine.Transaction
}

func (p *fakeQueryPlan) Statement(i int) qtree.Node       { return p.statements[i] }
func (p *fakeQueryPlan) Transaction() engine.Transaction { return p.txn }

type stdoutWriter struct{}

func (stdoutWriter) WriteRow(row engine.Row) error {
	fmt.Fprintln(os.Stdout, row)
	return nil
}

func main() {
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	const timeBegin = int64(1577836800000000) // 2020-01-01T00:00:00Z, micros
	const timeEnd = int64(1577923200000000)   // 2020-01-02T00:00:00Z, micros

	events := newMemTable("events", []engine.Row{
		{"host": "web-1", "time": timeBegin + 1000, "latency": int64(12)},
		{"host": "web-1", "time": timeBegin + 2000, "latency": int64(18)},
		{"host": "web-2", "time": timeBegin + 3000, "latency": int64(30)},
		{"host": "web-2", "time": timeEnd + 1000, "latency": int64(99)}, // outside the range, excluded
	})

	pmap := &memPartitionMap{
		Namespace: demoNamespace,
		Tables:    map[string]*memTable{"events": events},
	}

	repl := partition.NewStaticScheme("local")
	for _, key := range events.partitions.ListPartitions(nil) {
		repl.SetReplicas(key, []string{"local"})
	}

	txn := &fakeTransaction{
		compiler:      memCompiler{},
		tableProvider: &memTableProvider{Tables: pmap.Tables},
		auth:          fakeAuth{principal: "demo-user"},
	}

	sched := scheduler.New(pmap, repl, transport.NewClient(), 0, logger)

	query := &qtree.GroupBy{
		SelectList: []qtree.SelectListItem{
			{Expression: &qtree.ColumnReference{Column: "host"}, Alias: "host"},
			{Expression: &qtree.Call{Function: "count"}, Alias: "request_count"},
			{Expression: &qtree.Call{Function: "avg", Args: []qtree.ValueNode{&qtree.ColumnReference{Column: "latency"}}}, Alias: "avg_latency"},
		},
		GroupExpressions: []qtree.ValueNode{&qtree.ColumnReference{Column: "host"}},
		Input:            &qtree.SequentialScan{TableName: fmt.Sprintf("events.%d:%d", timeBegin, timeEnd)},
	}

	plan := &fakeQueryPlan{statements: []qtree.Node{query}, txn: txn}

	cursor, err := sched.Execute(context.Background(), plan, 0)
	if err != nil {
		logger.Fatal("building query", zap.Error(err))
	}

	if err := cursor.Execute(context.Background(), stdoutWriter{}); err != nil {
		logger.Fatal("executing query", zap.Error(err))
	}
}
