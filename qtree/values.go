// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package qtree

// Call is a function or operator application, e.g. logical_and(a, b) or
// gte(time, 1500000000000000). The rewrite package builds these directly
// when lifting a time-suffixed table reference into a WHERE predicate.
type Call struct {
	Function string
	Args     []ValueNode
}

func (*Call) node()      {}
func (*Call) valueNode() {}

func (n *Call) Clone() Node {
	args := make([]ValueNode, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.Clone().(ValueNode)
	}
	return &Call{Function: n.Function, Args: args}
}

func (n *Call) walk(w Visitor) {
	for _, a := range n.Args {
		Walk(w, a)
	}
}

func (n *Call) rewrite(r Rewriter) Node {
	for i, a := range n.Args {
		n.Args[i] = Rewrite(r, a).(ValueNode)
	}
	return n
}

// ColumnReference names a column to read from the input row.
type ColumnReference struct {
	Column string
}

func (*ColumnReference) node()          {}
func (*ColumnReference) valueNode()     {}
func (n *ColumnReference) Clone() Node  { return &ColumnReference{Column: n.Column} }
func (n *ColumnReference) walk(Visitor) {}

// Literal is a constant value baked into the tree, e.g. by the time-suffix
// rewriter when it lowers a partition's time bounds into predicate
// constants.
type Literal struct {
	Value any
}

func (*Literal) node()          {}
func (*Literal) valueNode()     {}
func (n *Literal) Clone() Node  { return &Literal{Value: n.Value} }
func (n *Literal) walk(Visitor) {}

// NewTimeComparison builds `fn(ColumnReference{column}, Literal{micros})`,
// the shape the time-suffix rewriter uses for both ends of a lifted range
// predicate.
func NewTimeComparison(fn, column string, micros int64) *Call {
	return &Call{
		Function: fn,
		Args: []ValueNode{
			&ColumnReference{Column: column},
			&Literal{Value: micros},
		},
	}
}

// And combines two predicates with logical_and, the same function name the
// original scheduler's rewriter emits.
func And(left, right ValueNode) *Call {
	return &Call{Function: "logical_and", Args: []ValueNode{left, right}}
}
