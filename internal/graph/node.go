// Package graph builds the lazy expression graph evaluated by the remote
// compute service. Nothing in this package talks to the network: nodes are
// plain values that are encoded by Encode and handed to an adapter.
package graph

import "fmt"

// Node is a single function invocation in the expression graph.
//
// Args values are restricted to *Node, string, bool, float64, int, []string,
// []any (of the same kinds) and nil.
type Node struct {
	Op   string
	Args map[string]any
}

// Pseudo operations with a dedicated wire encoding.
const (
	OpFunction    = "Function"
	OpArgumentRef = "ArgumentRef"
	OpList        = "List"
)

func invoke(op string, args map[string]any) *Node {
	return &Node{Op: op, Args: args}
}

// Ref returns the node argument with the given name, or nil.
func (n *Node) Ref(name string) *Node {
	v, _ := n.Args[name].(*Node)
	return v
}

// String returns the string argument with the given name.
func (n *Node) String(name string) string {
	v, _ := n.Args[name].(string)
	return v
}

// Float returns the numeric argument with the given name.
func (n *Node) Float(name string) float64 {
	switch v := n.Args[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Int returns the numeric argument with the given name truncated to int.
func (n *Node) Int(name string) int {
	return int(n.Float(name))
}

// Bool returns the boolean argument with the given name.
func (n *Node) Bool(name string) bool {
	v, _ := n.Args[name].(bool)
	return v
}

// Strings returns the string list argument with the given name.
func (n *Node) Strings(name string) []string {
	v, _ := n.Args[name].([]string)
	return v
}

// Nodes returns the node list argument with the given name.
func (n *Node) Nodes(name string) []*Node {
	raw, _ := n.Args[name].([]any)
	out := make([]*Node, 0, len(raw))
	for _, v := range raw {
		if child, ok := v.(*Node); ok {
			out = append(out, child)
		}
	}
	return out
}

// List builds a node evaluating to the list of the given values.
func List(values ...*Node) *Node {
	items := make([]any, len(values))
	for i, v := range values {
		items[i] = v
	}
	return invoke(OpList, map[string]any{"values": items})
}

// lambda builds a one-argument function definition. The argument name is
// derived from the nesting depth of the body so that nested functions never
// shadow each other and identical graphs encode identically.
func lambda(build func(arg *Node) *Node) *Node {
	arg := invoke(OpArgumentRef, map[string]any{"name": ""})
	body := build(arg)

	name := fmt.Sprintf("_MAPPING_VAR_%d_0", functionDepth(body, map[*Node]int{}))
	arg.Args["name"] = name

	return invoke(OpFunction, map[string]any{
		"argumentNames": []string{name},
		"body":          body,
	})
}

// functionDepth returns how many function definitions are nested in n.
func functionDepth(n *Node, memo map[*Node]int) int {
	if d, ok := memo[n]; ok {
		return d
	}
	memo[n] = 0

	depth := 0
	for _, child := range children(n) {
		d := functionDepth(child, memo)
		if child.Op == OpFunction {
			d++
		}
		if d > depth {
			depth = d
		}
	}

	memo[n] = depth
	return depth
}

// children returns the node arguments of n in a stable order.
func children(n *Node) []*Node {
	var out []*Node
	for _, key := range sortedKeys(n.Args) {
		switch v := n.Args[key].(type) {
		case *Node:
			out = append(out, v)
		case []any:
			for _, item := range v {
				if child, ok := item.(*Node); ok {
					out = append(out, child)
				}
			}
		}
	}
	return out
}
