// Copyright (c) The eventql Authors.
// Licensed under the GNU Affero General Public License, Version 3.

package transport

import (
	"fmt"

	"gopkg.in/vmihailenco/msgpack.v2"

	"github.com/mastermind1981/eventql/engine"
	"github.com/mastermind1981/eventql/qtree"
)

// nodeDTO is the msgpack-serializable mirror of qtree.Node: a tagged
// union flattened into one struct, since msgpack (like the teacher's own
// ion encoding) has no native support for Go interfaces. Kind selects
// which of the remaining fields are populated.
type nodeDTO struct {
	Kind string `msgpack:"kind"`

	// SequentialScan / DescribeTable
	TableName string `msgpack:"table_name,omitempty"`

	// Limit
	Count  int `msgpack:"count,omitempty"`
	Offset int `msgpack:"offset,omitempty"`

	// GroupBy
	IsPartialAggregation bool `msgpack:"partial,omitempty"`

	// OrderBy
	Descending []bool `msgpack:"descending,omitempty"`

	// Call
	Function string `msgpack:"function,omitempty"`

	// ColumnReference
	Column string `msgpack:"column,omitempty"`

	// Literal
	Value any `msgpack:"value,omitempty"`

	// Value-expression children, used by Call.Args, GroupExpressions,
	// sort expressions and the Where/JoinCondition slots (length 0 or 1).
	Values []nodeDTO `msgpack:"values,omitempty"`

	SelectList []selectItemDTO `msgpack:"select_list,omitempty"`

	// Statement-node children, used by Input/BaseTable/JoinedTable
	// (length 0 or 1) and ChartStatement's draw-statement inputs.
	Children [][]nodeDTO `msgpack:"children,omitempty"`
}

type selectItemDTO struct {
	Expression nodeDTO `msgpack:"expression"`
	Alias      string  `msgpack:"alias,omitempty"`
}

// EncodeNode marshals a qtree.Node subtree into a msgpack byte slice.
func EncodeNode(n qtree.Node) ([]byte, error) {
	dto, err := toDTO(n)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(dto)
}

// DecodeNode unmarshals a msgpack byte slice produced by EncodeNode back
// into a qtree.Node.
func DecodeNode(data []byte) (qtree.Node, error) {
	var dto nodeDTO
	if err := msgpack.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("transport: decoding node: %w", err)
	}
	return fromDTO(dto)
}

func toValueDTO(n qtree.ValueNode) (nodeDTO, error) {
	dto, err := toDTO(n)
	if err != nil {
		return nodeDTO{}, err
	}
	return dto, nil
}

func optionalValueDTOs(n qtree.ValueNode) ([]nodeDTO, error) {
	if n == nil {
		return nil, nil
	}
	dto, err := toValueDTO(n)
	if err != nil {
		return nil, err
	}
	return []nodeDTO{dto}, nil
}

func toSelectListDTO(items []qtree.SelectListItem) ([]selectItemDTO, error) {
	out := make([]selectItemDTO, len(items))
	for i, item := range items {
		dto, err := toValueDTO(item.Expression)
		if err != nil {
			return nil, err
		}
		out[i] = selectItemDTO{Expression: dto, Alias: item.Alias}
	}
	return out, nil
}

func fromSelectListDTO(items []selectItemDTO) ([]qtree.SelectListItem, error) {
	out := make([]qtree.SelectListItem, len(items))
	for i, item := range items {
		n, err := fromDTO(item.Expression)
		if err != nil {
			return nil, err
		}
		vn, ok := n.(qtree.ValueNode)
		if !ok {
			return nil, fmt.Errorf("transport: select list item is not a value node")
		}
		out[i] = qtree.SelectListItem{Expression: vn, Alias: item.Alias}
	}
	return out, nil
}

func toDTO(n qtree.Node) (nodeDTO, error) {
	switch v := n.(type) {
	case *qtree.Limit:
		input, err := toDTO(v.Input)
		if err != nil {
			return nodeDTO{}, err
		}
		return nodeDTO{Kind: "Limit", Count: v.Count, Offset: v.Offset, Children: [][]nodeDTO{{input}}}, nil

	case *qtree.SelectExpression:
		sl, err := toSelectListDTO(v.SelectList)
		if err != nil {
			return nodeDTO{}, err
		}
		return nodeDTO{Kind: "SelectExpression", SelectList: sl}, nil

	case *qtree.Subquery:
		sl, err := toSelectListDTO(v.SelectList)
		if err != nil {
			return nodeDTO{}, err
		}
		where, err := optionalValueDTOs(v.Where)
		if err != nil {
			return nodeDTO{}, err
		}
		input, err := toDTO(v.Input)
		if err != nil {
			return nodeDTO{}, err
		}
		return nodeDTO{Kind: "Subquery", SelectList: sl, Values: where, Children: [][]nodeDTO{{input}}}, nil

	case *qtree.OrderBy:
		values := make([]nodeDTO, len(v.SortSpecs))
		descending := make([]bool, len(v.SortSpecs))
		for i, s := range v.SortSpecs {
			dto, err := toValueDTO(s.Expr)
			if err != nil {
				return nodeDTO{}, err
			}
			values[i] = dto
			descending[i] = s.Descending
		}
		input, err := toDTO(v.Input)
		if err != nil {
			return nodeDTO{}, err
		}
		return nodeDTO{Kind: "OrderBy", Values: values, Descending: descending, Children: [][]nodeDTO{{input}}}, nil

	case *qtree.SequentialScan:
		where, err := optionalValueDTOs(v.Where)
		if err != nil {
			return nodeDTO{}, err
		}
		return nodeDTO{Kind: "SequentialScan", TableName: v.TableName, Values: where}, nil

	case *qtree.GroupBy:
		sl, err := toSelectListDTO(v.SelectList)
		if err != nil {
			return nodeDTO{}, err
		}
		groupExprs := make([]nodeDTO, len(v.GroupExpressions))
		for i, e := range v.GroupExpressions {
			dto, err := toValueDTO(e)
			if err != nil {
				return nodeDTO{}, err
			}
			groupExprs[i] = dto
		}
		input, err := toDTO(v.Input)
		if err != nil {
			return nodeDTO{}, err
		}
		return nodeDTO{
			Kind:                 "GroupBy",
			SelectList:           sl,
			Values:               groupExprs,
			IsPartialAggregation: v.IsPartialAggregation,
			Children:             [][]nodeDTO{{input}},
		}, nil

	case *qtree.ShowTables:
		return nodeDTO{Kind: "ShowTables"}, nil

	case *qtree.DescribeTable:
		return nodeDTO{Kind: "DescribeTable", TableName: v.TableName}, nil

	case *qtree.Join:
		sl, err := toSelectListDTO(v.SelectList)
		if err != nil {
			return nodeDTO{}, err
		}
		where, err := optionalValueDTOs(v.Where)
		if err != nil {
			return nodeDTO{}, err
		}
		joinCond, err := optionalValueDTOs(v.JoinCondition)
		if err != nil {
			return nodeDTO{}, err
		}
		base, err := toDTO(v.BaseTable)
		if err != nil {
			return nodeDTO{}, err
		}
		joined, err := toDTO(v.JoinedTable)
		if err != nil {
			return nodeDTO{}, err
		}
		values := append(where, joinCond...)
		return nodeDTO{
			Kind:       "Join",
			SelectList: sl,
			Values:     values,
			Count:      len(where), // reuse Count as "len(where)" marker to split Values back apart
			Offset:     int(v.JoinType),
			Children:   [][]nodeDTO{{base}, {joined}},
		}, nil

	case *qtree.ChartStatement:
		children := make([][]nodeDTO, len(v.DrawStatements))
		for i, d := range v.DrawStatements {
			inputs := make([]nodeDTO, len(d.InputTables))
			for j, in := range d.InputTables {
				dto, err := toDTO(in)
				if err != nil {
					return nodeDTO{}, err
				}
				inputs[j] = dto
			}
			children[i] = inputs
		}
		return nodeDTO{Kind: "ChartStatement", Children: children}, nil

	case *qtree.Call:
		args := make([]nodeDTO, len(v.Args))
		for i, a := range v.Args {
			dto, err := toValueDTO(a)
			if err != nil {
				return nodeDTO{}, err
			}
			args[i] = dto
		}
		return nodeDTO{Kind: "Call", Function: v.Function, Values: args}, nil

	case *qtree.ColumnReference:
		return nodeDTO{Kind: "ColumnReference", Column: v.Column}, nil

	case *qtree.Literal:
		return nodeDTO{Kind: "Literal", Value: v.Value}, nil

	default:
		return nodeDTO{}, fmt.Errorf("transport: unsupported node type %T", n)
	}
}

func fromDTO(dto nodeDTO) (qtree.Node, error) {
	switch dto.Kind {
	case "Limit":
		input, err := fromDTO(dto.Children[0][0])
		if err != nil {
			return nil, err
		}
		return &qtree.Limit{Count: dto.Count, Offset: dto.Offset, Input: input}, nil

	case "SelectExpression":
		sl, err := fromSelectListDTO(dto.SelectList)
		if err != nil {
			return nil, err
		}
		return &qtree.SelectExpression{SelectList: sl}, nil

	case "Subquery":
		sl, err := fromSelectListDTO(dto.SelectList)
		if err != nil {
			return nil, err
		}
		where, err := optionalValueFromDTO(dto.Values)
		if err != nil {
			return nil, err
		}
		input, err := fromDTO(dto.Children[0][0])
		if err != nil {
			return nil, err
		}
		return &qtree.Subquery{SelectList: sl, Where: where, Input: input}, nil

	case "OrderBy":
		specs := make([]qtree.SortExpr, len(dto.Values))
		for i, v := range dto.Values {
			n, err := fromDTO(v)
			if err != nil {
				return nil, err
			}
			vn, ok := n.(qtree.ValueNode)
			if !ok {
				return nil, fmt.Errorf("transport: sort expression is not a value node")
			}
			specs[i] = qtree.SortExpr{Expr: vn, Descending: dto.Descending[i]}
		}
		input, err := fromDTO(dto.Children[0][0])
		if err != nil {
			return nil, err
		}
		return &qtree.OrderBy{SortSpecs: specs, Input: input}, nil

	case "SequentialScan":
		where, err := optionalValueFromDTO(dto.Values)
		if err != nil {
			return nil, err
		}
		return &qtree.SequentialScan{TableName: dto.TableName, Where: where}, nil

	case "GroupBy":
		sl, err := fromSelectListDTO(dto.SelectList)
		if err != nil {
			return nil, err
		}
		groupExprs := make([]qtree.ValueNode, len(dto.Values))
		for i, v := range dto.Values {
			n, err := fromDTO(v)
			if err != nil {
				return nil, err
			}
			vn, ok := n.(qtree.ValueNode)
			if !ok {
				return nil, fmt.Errorf("transport: group expression is not a value node")
			}
			groupExprs[i] = vn
		}
		input, err := fromDTO(dto.Children[0][0])
		if err != nil {
			return nil, err
		}
		return &qtree.GroupBy{
			SelectList:           sl,
			GroupExpressions:     groupExprs,
			Input:                input,
			IsPartialAggregation: dto.IsPartialAggregation,
		}, nil

	case "ShowTables":
		return &qtree.ShowTables{}, nil

	case "DescribeTable":
		return &qtree.DescribeTable{TableName: dto.TableName}, nil

	case "Join":
		sl, err := fromSelectListDTO(dto.SelectList)
		if err != nil {
			return nil, err
		}
		whereValues := dto.Values[:dto.Count]
		joinValues := dto.Values[dto.Count:]
		where, err := optionalValueFromDTO(whereValues)
		if err != nil {
			return nil, err
		}
		joinCond, err := optionalValueFromDTO(joinValues)
		if err != nil {
			return nil, err
		}
		base, err := fromDTO(dto.Children[0][0])
		if err != nil {
			return nil, err
		}
		joined, err := fromDTO(dto.Children[1][0])
		if err != nil {
			return nil, err
		}
		return &qtree.Join{
			SelectList:    sl,
			Where:         where,
			JoinCondition: joinCond,
			JoinType:      qtree.JoinType(dto.Offset),
			BaseTable:     base,
			JoinedTable:   joined,
		}, nil

	case "ChartStatement":
		draws := make([]qtree.DrawStatement, len(dto.Children))
		for i, inputs := range dto.Children {
			nodes := make([]qtree.Node, len(inputs))
			for j, in := range inputs {
				n, err := fromDTO(in)
				if err != nil {
					return nil, err
				}
				nodes[j] = n
			}
			draws[i] = qtree.DrawStatement{InputTables: nodes}
		}
		return &qtree.ChartStatement{DrawStatements: draws}, nil

	case "Call":
		args := make([]qtree.ValueNode, len(dto.Values))
		for i, v := range dto.Values {
			n, err := fromDTO(v)
			if err != nil {
				return nil, err
			}
			vn, ok := n.(qtree.ValueNode)
			if !ok {
				return nil, fmt.Errorf("transport: call argument is not a value node")
			}
			args[i] = vn
		}
		return &qtree.Call{Function: dto.Function, Args: args}, nil

	case "ColumnReference":
		return &qtree.ColumnReference{Column: dto.Column}, nil

	case "Literal":
		return &qtree.Literal{Value: dto.Value}, nil

	default:
		return nil, fmt.Errorf("transport: unknown node kind %q", dto.Kind)
	}
}

func optionalValueFromDTO(dtos []nodeDTO) (qtree.ValueNode, error) {
	if len(dtos) == 0 {
		return nil, nil
	}
	n, err := fromDTO(dtos[0])
	if err != nil {
		return nil, err
	}
	vn, ok := n.(qtree.ValueNode)
	if !ok {
		return nil, fmt.Errorf("transport: expected value node")
	}
	return vn, nil
}

func encodeStartRequest(req startRequest) ([]byte, error) {
	return msgpack.Marshal(req)
}

func decodeStartRequest(data []byte) (startRequest, error) {
	var req startRequest
	if err := msgpack.Unmarshal(data, &req); err != nil {
		return startRequest{}, fmt.Errorf("transport: decoding request: %w", err)
	}
	return req, nil
}

// EncodeRow marshals a single output row for the framed wire protocol.
func EncodeRow(row engine.Row) ([]byte, error) {
	return msgpack.Marshal(map[string]any(row))
}

// DecodeRow unmarshals a single output row.
func DecodeRow(data []byte) (engine.Row, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("transport: decoding row: %w", err)
	}
	return engine.Row(m), nil
}
