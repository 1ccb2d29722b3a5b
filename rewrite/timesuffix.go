// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

// Package rewrite implements the query-tree rewrite passes that run before
// the scheduler builds an executable plan. Today that is a single pass:
// lifting a time-suffixed table reference into an explicit WHERE
// predicate plus a bare table name.
package rewrite

import (
	"github.com/mastermind1981/eventql/qtree"
	"github.com/mastermind1981/eventql/tableref"
)

// timeColumn is the column every table in this system is assumed to be
// ordered by, matching the original scheduler's hardcoded "time" column.
const timeColumn = "time"

// Lift walks the tree rooted at root and, for every SequentialScan whose
// table name carries a full time-suffix range (both begin and end
// present), rewrites the scan's table name to the bare table key and ANDs
// a "time BETWEEN begin AND limit" predicate onto its existing WHERE
// clause.
//
// A reference with only one endpoint is left untouched (Open Question 1):
// the original source's TSDBTableRef::parse only ever produces a
// half-populated range for malformed input, so there is nothing
// meaningful to lift.
//
// Lift is idempotent: once a scan's table name has been rewritten to its
// bare key, it no longer parses with a time suffix, so a second Lift pass
// over the same tree is a no-op.
func Lift(root qtree.Node) {
	qtree.Walk(liftVisitor{}, root)
}

type liftVisitor struct{}

func (v liftVisitor) Visit(n qtree.Node) qtree.Visitor {
	if n == nil {
		return nil
	}
	if scan, ok := n.(*qtree.SequentialScan); ok {
		liftScan(scan)
	}
	return v
}

func liftScan(scan *qtree.SequentialScan) {
	ref := tableref.Parse(scan.TableName)
	if !ref.HasFullTimerange() {
		return
	}

	pred := qtree.And(
		qtree.NewTimeComparison("gte", timeColumn, *ref.TimerangeBegin),
		qtree.NewTimeComparison("lte", timeColumn, *ref.TimerangeLimit),
	)

	scan.SetTableName(ref.TableKey)

	if scan.Where != nil {
		scan.SetWhereExpression(qtree.And(scan.Where, pred))
	} else {
		scan.SetWhereExpression(pred)
	}
}
