package grammar

import (
	"sort"
	"strings"

	"golang.org/x/exp/maps"
)

// check runs the whole-grammar validations that need every rule to be read first.
func (c *compiler) check() error {
	if err := c.checkUndefined(); err != nil {
		return err
	}
	return checkLeftRecursion(c.g, c)
}

func (c *compiler) checkUndefined() error {
	var missing []string
	for _, name := range maps.Keys(c.refs) {
		if _, ok := c.defined[name]; !ok && name != RootName {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	// report at the earliest reference, list the rest
	sort.Slice(missing, func(i, j int) bool { return c.refs[missing[i]] < c.refs[missing[j]] })
	return c.errorAt(c.refs[missing[0]], UndefinedRuleError, "undefined rules: %s", strings.Join(missing, ", "))
}

// nullable computes, for every node, whether it can succeed without consuming input.
// The graph may be cyclic, so this iterates to a fixed point.
func nullable(g *Graph) []bool {
	res := make([]bool, len(g.nodes))
	for changed := true; changed; {
		changed = false
		for id := range g.nodes {
			if res[id] {
				continue
			}
			if nodeNullable(&g.nodes[id], res) {
				res[id] = true
				changed = true
			}
		}
	}
	return res
}

func nodeNullable(n *node, res []bool) bool {
	switch n.kind {
	case Terminal:
		return n.value == ""
	case RegEx:
		return n.re != nil && n.re.MatchString("")
	case Optional, ZeroOrMore:
		return true
	case NonTerminal, Grouping:
		return len(n.children) > 0 && res[n.children[0]]
	case Concatenate:
		for _, child := range n.children {
			if !res[child] {
				return false
			}
		}
		return true
	case Alternate:
		for _, child := range n.children {
			if res[child] {
				return true
			}
		}
	}
	return false
}

// leftmost returns the nodes that may be tried at the same input position as id.
func leftmost(g *Graph, id NodeID, null []bool) []NodeID {
	n := &g.nodes[id]
	switch n.kind {
	case NonTerminal, Grouping, Optional, ZeroOrMore, Alternate:
		return n.children
	case Concatenate:
		for i, child := range n.children {
			if !null[child] {
				return n.children[:i+1]
			}
		}
		return n.children
	}
	return nil
}

// checkLeftRecursion rejects rules that can reach themselves without consuming input:
// a top-down matcher would recurse on them forever.
func checkLeftRecursion(g *Graph, c *compiler) error {
	null := nullable(g)

	var recursive []string
	for _, name := range g.order {
		start := g.rules[name]
		seen := make(map[NodeID]bool)
		stack := append([]NodeID(nil), leftmost(g, start, null)...)
		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if id == start {
				recursive = append(recursive, name)
				break
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			stack = append(stack, leftmost(g, id, null)...)
		}
	}
	if len(recursive) == 0 {
		return nil
	}
	return c.errorAt(c.defined[recursive[0]], LeftRecursionError,
		"left-recursive rules: %s", strings.Join(recursive, ", "))
}

// leftCycle finds a node reachable from the root that can reach itself at the same input
// position. Compiled graphs never have one, since every such cycle passes through a
// left-recursive rule; decoded snapshots are checked with it.
func leftCycle(g *Graph) (NodeID, bool) {
	const (
		unvisited = iota
		onPath
		finished
	)
	null := nullable(g)
	state := make([]uint8, len(g.nodes))

	type frame struct {
		id   NodeID
		next []NodeID
	}
	state[RootID] = onPath
	stack := []frame{{RootID, leftmost(g, RootID, null)}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if len(top.next) == 0 {
			state[top.id] = finished
			stack = stack[:len(stack)-1]
			continue
		}
		child := top.next[0]
		top.next = top.next[1:]
		switch state[child] {
		case onPath:
			return child, true
		case unvisited:
			state[child] = onPath
			stack = append(stack, frame{child, leftmost(g, child, null)})
		}
	}
	return 0, false
}
