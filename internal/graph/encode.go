package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Expression is the wire form of a graph: a table of values referencing each
// other by id, with Result naming the root. Shared subgraphs are stored once.
type Expression struct {
	Result string               `json:"result"`
	Values map[string]ValueNode `json:"values"`
}

// ValueNode is one entry of an Expression. Exactly one field is set.
type ValueNode struct {
	ConstantValue           *json.RawMessage `json:"constantValue,omitempty"`
	FunctionInvocationValue *Invocation      `json:"functionInvocationValue,omitempty"`
	FunctionDefinitionValue *Definition      `json:"functionDefinitionValue,omitempty"`
	ArgumentReference       string           `json:"argumentReference,omitempty"`
	ArrayValue              *ArrayValue      `json:"arrayValue,omitempty"`
	ValueReference          string           `json:"valueReference,omitempty"`
}

// Invocation calls a named server-side function.
type Invocation struct {
	FunctionName string               `json:"functionName"`
	Arguments    map[string]ValueNode `json:"arguments,omitempty"`
}

// Definition declares a function whose body is a value id.
type Definition struct {
	ArgumentNames []string `json:"argumentNames"`
	Body          string   `json:"body"`
}

// ArrayValue is a list of values.
type ArrayValue struct {
	Values []ValueNode `json:"values"`
}

type encoder struct {
	ids    map[*Node]string
	values map[string]ValueNode
}

// Encode converts the graph rooted at root into its wire form.
func Encode(root *Node) (*Expression, error) {
	if root == nil {
		return nil, fmt.Errorf("encoding graph: nil root")
	}

	e := &encoder{
		ids:    make(map[*Node]string),
		values: make(map[string]ValueNode),
	}

	id, err := e.node(root)
	if err != nil {
		return nil, err
	}

	return &Expression{Result: id, Values: e.values}, nil
}

// Marshal encodes the graph rooted at root as JSON.
func Marshal(root *Node) ([]byte, error) {
	expr, err := Encode(root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(expr)
}

// node stores n (after its dependencies) and returns its id.
func (e *encoder) node(n *Node) (string, error) {
	if id, ok := e.ids[n]; ok {
		return id, nil
	}

	var value ValueNode
	switch n.Op {
	case OpFunction:
		body := n.Ref("body")
		if body == nil {
			return "", fmt.Errorf("encoding graph: function without body")
		}
		bodyID, err := e.node(body)
		if err != nil {
			return "", err
		}
		value.FunctionDefinitionValue = &Definition{
			ArgumentNames: n.Strings("argumentNames"),
			Body:          bodyID,
		}

	case OpList:
		items, err := e.list(n.Args["values"])
		if err != nil {
			return "", err
		}
		value.ArrayValue = &ArrayValue{Values: items}

	case OpArgumentRef:
		value.ArgumentReference = n.String("name")

	default:
		inv := &Invocation{FunctionName: n.Op}
		if len(n.Args) > 0 {
			inv.Arguments = make(map[string]ValueNode, len(n.Args))
		}
		for _, key := range sortedKeys(n.Args) {
			v, err := e.value(n.Args[key])
			if err != nil {
				return "", fmt.Errorf("encoding %s.%s: %w", n.Op, key, err)
			}
			inv.Arguments[key] = v
		}
		value.FunctionInvocationValue = inv
	}

	id := strconv.Itoa(len(e.values))
	e.ids[n] = id
	e.values[id] = value
	return id, nil
}

// value encodes an argument value inline.
func (e *encoder) value(v any) (ValueNode, error) {
	switch t := v.(type) {
	case *Node:
		if t.Op == OpArgumentRef {
			return ValueNode{ArgumentReference: t.String("name")}, nil
		}
		id, err := e.node(t)
		if err != nil {
			return ValueNode{}, err
		}
		return ValueNode{ValueReference: id}, nil

	case []any:
		items, err := e.list(t)
		if err != nil {
			return ValueNode{}, err
		}
		return ValueNode{ArrayValue: &ArrayValue{Values: items}}, nil

	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return ValueNode{}, err
		}
		msg := json.RawMessage(raw)
		return ValueNode{ConstantValue: &msg}, nil
	}
}

func (e *encoder) list(v any) ([]ValueNode, error) {
	raw, _ := v.([]any)
	out := make([]ValueNode, 0, len(raw))
	for _, item := range raw {
		encoded, err := e.value(item)
		if err != nil {
			return nil, err
		}
		out = append(out, encoded)
	}
	return out, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
