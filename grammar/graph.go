package grammar

import (
	"fmt"
	"regexp"
	"strings"
)

// RootName is the name of the synthetic entry rule that offers every declared rule as an alternative.
const RootName = "EXPR"

// NodeID addresses a node inside its Graph.
type NodeID int

const (
	// RootID is the EXPR non-terminal.
	RootID NodeID = 0
	// rootAltID is the Alternate child of EXPR that collects top-level rules.
	rootAltID NodeID = 1
)

type node struct {
	kind     Kind
	value    string
	children []NodeID
	re       *regexp.Regexp // compiled, cursor-anchored form of value for RegEx nodes
}

// Graph is a compiled grammar. Nodes live in an arena and refer to each other by NodeID,
// so recursive rules form index cycles through NonTerminal nodes.
//
// A Graph returned by Compile is never modified again and is safe for concurrent readers.
type Graph struct {
	name  string
	nodes []node
	rules map[string]NodeID
	order []string // rule names in declaration order
}

func newGraph(name string) *Graph {
	g := &Graph{
		name:  name,
		rules: make(map[string]NodeID),
	}
	root := g.newNode(NonTerminal, RootName)
	alt := g.newNode(Alternate, "")
	g.addChild(root, alt)
	g.rules[RootName] = root
	return g
}

func (g *Graph) newNode(kind Kind, value string) NodeID {
	g.nodes = append(g.nodes, node{kind: kind, value: value})
	return NodeID(len(g.nodes) - 1)
}

func (g *Graph) addChild(parent, child NodeID) {
	g.nodes[parent].children = append(g.nodes[parent].children, child)
}

// nonTerminal returns the shared node for name, creating an empty one on first reference.
func (g *Graph) nonTerminal(name string) NodeID {
	if id, ok := g.rules[name]; ok {
		return id
	}
	id := g.newNode(NonTerminal, name)
	g.rules[name] = id
	return id
}

// Name returns the source name the graph was compiled from, if any.
func (g *Graph) Name() string { return g.name }

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Root returns the EXPR entry node.
func (g *Graph) Root() Node { return g.Node(RootID) }

// Node returns a read-only view of the node with the given id.
// It panics if id is out of range, like a slice index would.
func (g *Graph) Node(id NodeID) Node {
	return Node{id: id, n: &g.nodes[id]}
}

// Lookup finds the non-terminal node for a rule name.
func (g *Graph) Lookup(name string) (Node, bool) {
	id, ok := g.rules[name]
	if !ok {
		return Node{}, false
	}
	return g.Node(id), true
}

// Rules returns the declared rule names in declaration order.
func (g *Graph) Rules() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Walk visits every node reachable from the root once, depth first, in child order.
// Returning false from fn skips the children of that node.
func (g *Graph) Walk(fn func(n Node, depth int) bool) {
	seen := make([]bool, len(g.nodes))
	var visit func(id NodeID, depth int)
	visit = func(id NodeID, depth int) {
		if seen[id] {
			return
		}
		seen[id] = true
		n := g.Node(id)
		if !fn(n, depth) {
			return
		}
		for _, child := range n.n.children {
			visit(child, depth+1)
		}
	}
	visit(RootID, 0)
}

// Equal reports whether two graphs have the same nodes, in the same arena order, and the same rules.
func (g *Graph) Equal(other *Graph) bool {
	if g == other {
		return true
	}
	if g == nil || other == nil || len(g.nodes) != len(other.nodes) || len(g.order) != len(other.order) {
		return false
	}
	for i, name := range g.order {
		if other.order[i] != name {
			return false
		}
	}
	for i := range g.nodes {
		a, b := &g.nodes[i], &other.nodes[i]
		if a.kind != b.kind || a.value != b.value || len(a.children) != len(b.children) {
			return false
		}
		for j := range a.children {
			if a.children[j] != b.children[j] {
				return false
			}
		}
	}
	return true
}

// String renders the graph as one line per declared rule, mostly for debugging and tests.
func (g *Graph) String() string {
	var sb strings.Builder
	for _, name := range g.order {
		def := g.Node(g.rules[name]).Child(0)
		fmt.Fprintf(&sb, "%s ::= %s ;\n", name, g.format(def))
	}
	return sb.String()
}

func (g *Graph) format(id NodeID) string {
	n := g.Node(id)
	switch n.Kind() {
	case NonTerminal:
		return n.Value()
	case Terminal:
		return quoteTerminal(n.Value())
	case RegEx:
		return "/" + n.Value() + "/"
	case Concatenate, Alternate:
		sep := ", "
		if n.Kind() == Alternate {
			sep = " | "
		}
		parts := make([]string, 0, n.NumChildren())
		for _, child := range n.n.children {
			parts = append(parts, g.format(child))
		}
		return strings.Join(parts, sep)
	case Optional:
		return "[" + g.format(n.Child(0)) + "]"
	case ZeroOrMore:
		return "{" + g.format(n.Child(0)) + "}"
	case Grouping:
		return "(" + g.format(n.Child(0)) + ")"
	}
	return "?"
}

func quoteTerminal(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return `'` + strings.ReplaceAll(s, `'`, `\'`) + `'`
}

// Node is a read-only view of a graph node.
type Node struct {
	id NodeID
	n  *node
}

func (n Node) ID() NodeID { return n.id }
func (n Node) Kind() Kind { return n.n.kind }
func (n Node) Value() string { return n.n.value }
func (n Node) NumChildren() int { return len(n.n.children) }

// Child returns the id of the i-th child.
func (n Node) Child(i int) NodeID { return n.n.children[i] }

// Children returns a copy of the ordered child ids.
func (n Node) Children() []NodeID {
	out := make([]NodeID, len(n.n.children))
	copy(out, n.n.children)
	return out
}

// Regexp returns the cursor-anchored pattern of a RegEx node, nil for other kinds.
// The returned value is shared; callers must not call Longest on it.
func (n Node) Regexp() *regexp.Regexp { return n.n.re }

// IsZero reports whether n is the zero view returned by a failed Lookup.
func (n Node) IsZero() bool { return n.n == nil }
