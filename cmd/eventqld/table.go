// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package main

import (
	"context"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/partition"
	"github.com/mastermind1981/eventql/qtree"
	"github.com/mastermind1981/eventql/tableref"
)

// memTable is the in-memory stand-in for the physical storage engine
// spec.md §1 places out of scope: every row of a table lives in one Go
// slice. It is kept to a single partition (see newMemTable) so the
// split plan this demo drives exercises the scheduler's pipelining logic
// without needing real per-partition physical storage to route rows to.
type memTable struct {
	Name       string
	Rows       []engine.Row
	partitions partition.Partitioner
}

func newMemTable(name string, rows []engine.Row) *memTable {
	return &memTable{Name: name, Rows: rows, partitions: partition.NewHashPartitioner(name, 1)}
}

func (t *memTable) Partitioner() partition.Partitioner { return t.partitions }

// memPartitionMap resolves a (namespace, table key) pair against a fixed
// set of in-memory tables, the one partition.Map implementation this
// demo needs.
type memPartitionMap struct {
	Namespace string
	Tables    map[string]*memTable
}

func (m *memPartitionMap) FindTable(namespace, tableKey string) (partition.Table, bool) {
	if namespace != m.Namespace {
		return nil, false
	}
	t, ok := m.Tables[tableKey]
	return t, ok
}

// memTableProvider implements engine.TableProvider by reading a scan's
// table straight out of memPartitionMap's tables and filtering it with
// the scan's (already-compiled) Where predicate, ignoring any tsdb://
// partition suffix on the table name: with one partition per table
// (memTable.partitions), every shard's rows live in the same slice.
type memTableProvider struct {
	Tables map[string]*memTable
}

func (p *memTableProvider) BuildSequentialScan(ctx context.Context, txn engine.Transaction, scan *qtree.SequentialScan) (engine.TableExpression, bool) {
	ref := tableref.Parse(scan.TableName)
	t, ok := p.Tables[ref.TableKey]
	if !ok {
		return nil, false
	}

	var where engine.ValueExpression
	if scan.Where != nil {
		ve, err := txn.Compiler().BuildValueExpression(txn, scan.Where)
		if err != nil {
			return nil, false
		}
		where = ve
	}

	return &memScan{rows: t.Rows, where: where}, true
}

type memScan struct {
	rows  []engine.Row
	where engine.ValueExpression
}

func (s *memScan) Execute(ctx context.Context, out engine.RowWriter) error {
	for _, row := range s.rows {
		if s.where != nil {
			ok, err := s.where.Eval(row)
			if err != nil {
				return err
			}
			if truthy, isBool := ok.(bool); isBool && !truthy {
				continue
			}
		}
		if err := out.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}
