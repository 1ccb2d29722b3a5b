// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package qtree

// SelectListItem pairs a value expression with its output alias. It is not
// itself a Node — it is the unit the select list of several statement
// nodes is built from.
type SelectListItem struct {
	Expression ValueNode
	Alias      string
}

func cloneSelectList(in []SelectListItem) []SelectListItem {
	out := make([]SelectListItem, len(in))
	for i, item := range in {
		out[i] = SelectListItem{
			Expression: item.Expression.Clone().(ValueNode),
			Alias:      item.Alias,
		}
	}
	return out
}

func walkSelectList(w Visitor, items []SelectListItem) {
	for _, item := range items {
		Walk(w, item.Expression)
	}
}

func rewriteSelectList(r Rewriter, items []SelectListItem) []SelectListItem {
	out := make([]SelectListItem, len(items))
	for i, item := range items {
		out[i] = SelectListItem{
			Expression: Rewrite(r, item.Expression).(ValueNode),
			Alias:      item.Alias,
		}
	}
	return out
}

// Limit restricts a table expression to at most N rows, skipping the first
// Offset of them.
type Limit struct {
	Count  int
	Offset int
	Input  Node
}

func (*Limit) node() {}

func (n *Limit) Clone() Node {
	return &Limit{Count: n.Count, Offset: n.Offset, Input: n.Input.Clone()}
}

func (n *Limit) walk(w Visitor) { Walk(w, n.Input) }

func (n *Limit) rewrite(r Rewriter) Node {
	n.Input = Rewrite(r, n.Input)
	return n
}

// SelectExpression projects a select list without grouping.
type SelectExpression struct {
	SelectList []SelectListItem
}

func (*SelectExpression) node() {}

func (n *SelectExpression) Clone() Node {
	return &SelectExpression{SelectList: cloneSelectList(n.SelectList)}
}

func (n *SelectExpression) walk(w Visitor) { walkSelectList(w, n.SelectList) }

func (n *SelectExpression) rewrite(r Rewriter) Node {
	n.SelectList = rewriteSelectList(r, n.SelectList)
	return n
}

// Subquery wraps an inner table expression with its own select list and an
// optional filter, the way a derived table in a FROM clause is represented.
type Subquery struct {
	SelectList []SelectListItem
	Where      ValueNode // nil if there is no filter
	Input      Node
}

func (*Subquery) node() {}

func (n *Subquery) Clone() Node {
	c := &Subquery{SelectList: cloneSelectList(n.SelectList), Input: n.Input.Clone()}
	if n.Where != nil {
		c.Where = n.Where.Clone().(ValueNode)
	}
	return c
}

func (n *Subquery) walk(w Visitor) {
	walkSelectList(w, n.SelectList)
	if n.Where != nil {
		Walk(w, n.Where)
	}
	Walk(w, n.Input)
}

func (n *Subquery) rewrite(r Rewriter) Node {
	n.SelectList = rewriteSelectList(r, n.SelectList)
	if n.Where != nil {
		n.Where = Rewrite(r, n.Where).(ValueNode)
	}
	n.Input = Rewrite(r, n.Input)
	return n
}

// SortExpr is one ORDER BY term.
type SortExpr struct {
	Expr       ValueNode
	Descending bool
}

// OrderBy sorts the rows produced by Input according to SortSpecs.
type OrderBy struct {
	SortSpecs []SortExpr
	Input     Node
}

func (*OrderBy) node() {}

func (n *OrderBy) Clone() Node {
	specs := make([]SortExpr, len(n.SortSpecs))
	for i, s := range n.SortSpecs {
		specs[i] = SortExpr{Expr: s.Expr.Clone().(ValueNode), Descending: s.Descending}
	}
	return &OrderBy{SortSpecs: specs, Input: n.Input.Clone()}
}

func (n *OrderBy) walk(w Visitor) {
	for _, s := range n.SortSpecs {
		Walk(w, s.Expr)
	}
	Walk(w, n.Input)
}

func (n *OrderBy) rewrite(r Rewriter) Node {
	for i, s := range n.SortSpecs {
		n.SortSpecs[i].Expr = Rewrite(r, s.Expr).(ValueNode)
	}
	n.Input = Rewrite(r, n.Input)
	return n
}

// SequentialScan reads rows from a single table. TableName carries the raw,
// possibly time-suffixed or partition-qualified table reference (see
// package tableref); Where is the predicate pushed down to the scan, used
// both for row filtering and, by the partition locator, for partition
// pruning.
type SequentialScan struct {
	TableName string
	Where     ValueNode // nil if there is no filter
}

func (*SequentialScan) node() {}

func (n *SequentialScan) Clone() Node {
	c := &SequentialScan{TableName: n.TableName}
	if n.Where != nil {
		c.Where = n.Where.Clone().(ValueNode)
	}
	return c
}

func (n *SequentialScan) walk(w Visitor) {
	if n.Where != nil {
		Walk(w, n.Where)
	}
}

// SequentialScan has no children to rewrite, so it does not implement
// nonleaf; its Where clause is mutated directly by SetWhereExpression.

// SetTableName replaces the scan's table reference, e.g. once the time
// suffix rewriter has resolved a suffixed name to its bare table key.
func (n *SequentialScan) SetTableName(name string) { n.TableName = name }

// SetWhereExpression replaces the scan's filter predicate.
func (n *SequentialScan) SetWhereExpression(where ValueNode) { n.Where = where }

// GroupBy aggregates Input's rows according to GroupExpressions, producing
// SelectList. IsPartialAggregation marks a GroupBy as computing only the
// per-shard partial aggregate of a split plan (package scheduler); its
// merge counterpart is expression.GroupByMerge, not a qtree node, since
// merging only exists in the executable tree.
type GroupBy struct {
	SelectList           []SelectListItem
	GroupExpressions     []ValueNode
	Input                Node
	IsPartialAggregation bool
}

func (*GroupBy) node() {}

func (n *GroupBy) Clone() Node {
	groupExprs := make([]ValueNode, len(n.GroupExpressions))
	for i, e := range n.GroupExpressions {
		groupExprs[i] = e.Clone().(ValueNode)
	}
	return &GroupBy{
		SelectList:           cloneSelectList(n.SelectList),
		GroupExpressions:     groupExprs,
		Input:                n.Input.Clone(),
		IsPartialAggregation: n.IsPartialAggregation,
	}
}

func (n *GroupBy) walk(w Visitor) {
	walkSelectList(w, n.SelectList)
	for _, e := range n.GroupExpressions {
		Walk(w, e)
	}
	Walk(w, n.Input)
}

func (n *GroupBy) rewrite(r Rewriter) Node {
	n.SelectList = rewriteSelectList(r, n.SelectList)
	for i, e := range n.GroupExpressions {
		n.GroupExpressions[i] = Rewrite(r, e).(ValueNode)
	}
	n.Input = Rewrite(r, n.Input)
	return n
}

// SetPartialAggregation marks this GroupBy as a per-shard partial
// aggregation, as produced by scheduler.SplitAggregation.
func (n *GroupBy) SetPartialAggregation(partial bool) { n.IsPartialAggregation = partial }

// ShowTables lists the tables visible in the transaction's namespace.
type ShowTables struct{}

func (*ShowTables) node()         {}
func (n *ShowTables) Clone() Node { return &ShowTables{} }
func (n *ShowTables) walk(Visitor) {}

// DescribeTable reports the schema of a single table.
type DescribeTable struct {
	TableName string
}

func (*DescribeTable) node()          {}
func (n *DescribeTable) Clone() Node  { return &DescribeTable{TableName: n.TableName} }
func (n *DescribeTable) walk(Visitor) {}

// JoinType enumerates the join kinds the executor's nested-loop join
// supports; cross-partition joins are a declared non-goal, so Join is
// always built over two already-local (or already-pipelined) inputs.
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// Join combines BaseTable and JoinedTable row-wise.
type Join struct {
	SelectList     []SelectListItem
	Where          ValueNode // nil if there is no filter
	JoinCondition  ValueNode // nil only for a cross join
	JoinType       JoinType
	InputColumnMap []int
	BaseTable      Node
	JoinedTable    Node
}

func (*Join) node() {}

func (n *Join) Clone() Node {
	c := &Join{
		SelectList:     cloneSelectList(n.SelectList),
		JoinType:       n.JoinType,
		InputColumnMap: append([]int(nil), n.InputColumnMap...),
		BaseTable:      n.BaseTable.Clone(),
		JoinedTable:    n.JoinedTable.Clone(),
	}
	if n.Where != nil {
		c.Where = n.Where.Clone().(ValueNode)
	}
	if n.JoinCondition != nil {
		c.JoinCondition = n.JoinCondition.Clone().(ValueNode)
	}
	return c
}

func (n *Join) walk(w Visitor) {
	walkSelectList(w, n.SelectList)
	if n.Where != nil {
		Walk(w, n.Where)
	}
	if n.JoinCondition != nil {
		Walk(w, n.JoinCondition)
	}
	Walk(w, n.BaseTable)
	Walk(w, n.JoinedTable)
}

func (n *Join) rewrite(r Rewriter) Node {
	n.SelectList = rewriteSelectList(r, n.SelectList)
	if n.Where != nil {
		n.Where = Rewrite(r, n.Where).(ValueNode)
	}
	if n.JoinCondition != nil {
		n.JoinCondition = Rewrite(r, n.JoinCondition).(ValueNode)
	}
	n.BaseTable = Rewrite(r, n.BaseTable)
	n.JoinedTable = Rewrite(r, n.JoinedTable)
	return n
}

// DrawStatement is one panel of a ChartStatement, reading from one or more
// input table expressions.
type DrawStatement struct {
	InputTables []Node
}

// ChartStatement renders one or more DrawStatements into a chart; it is the
// one statement kind whose children form a slice of slices rather than a
// flat list.
type ChartStatement struct {
	DrawStatements []DrawStatement
}

func (*ChartStatement) node() {}

func (n *ChartStatement) Clone() Node {
	draws := make([]DrawStatement, len(n.DrawStatements))
	for i, d := range n.DrawStatements {
		inputs := make([]Node, len(d.InputTables))
		for j, in := range d.InputTables {
			inputs[j] = in.Clone()
		}
		draws[i] = DrawStatement{InputTables: inputs}
	}
	return &ChartStatement{DrawStatements: draws}
}

func (n *ChartStatement) walk(w Visitor) {
	for _, d := range n.DrawStatements {
		for _, in := range d.InputTables {
			Walk(w, in)
		}
	}
}

func (n *ChartStatement) rewrite(r Rewriter) Node {
	for i, d := range n.DrawStatements {
		for j, in := range d.InputTables {
			n.DrawStatements[i].InputTables[j] = Rewrite(r, in)
		}
	}
	return n
}
