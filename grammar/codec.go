package grammar

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

type snapshotNode struct {
	Kind     Kind
	Value    string
	Children []NodeID
}

type snapshot struct {
	Name  string
	Nodes []snapshotNode
	Order []string
}

// GobEncode implements gob.GobEncoder. Only the arena and rule order are stored;
// the name table and compiled patterns are rebuilt on decode.
func (g *Graph) GobEncode() ([]byte, error) {
	s := snapshot{Name: g.name, Order: g.order, Nodes: make([]snapshotNode, len(g.nodes))}
	for i, n := range g.nodes {
		s.Nodes[i] = snapshotNode{Kind: n.kind, Value: n.value, Children: n.children}
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (g *Graph) GobDecode(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	if len(s.Nodes) < 2 || s.Nodes[RootID].Kind != NonTerminal || s.Nodes[RootID].Value != RootName ||
		s.Nodes[rootAltID].Kind != Alternate {
		return fmt.Errorf("grammar snapshot has no %s root", RootName)
	}

	g.name = s.Name
	g.order = s.Order
	g.nodes = make([]node, len(s.Nodes))
	g.rules = make(map[string]NodeID)
	for i, sn := range s.Nodes {
		for _, child := range sn.Children {
			if child < 0 || int(child) >= len(s.Nodes) {
				return fmt.Errorf("grammar snapshot node %d: child %d out of range", i, child)
			}
		}
		if sn.Kind.hasSingleChild() && len(sn.Children) != 1 {
			return fmt.Errorf("grammar snapshot node %d: %s needs one child, has %d", i, sn.Kind, len(sn.Children))
		}
		n := node{kind: sn.Kind, value: sn.Value, children: sn.Children}
		switch sn.Kind {
		case NonTerminal:
			g.rules[sn.Value] = NodeID(i)
		case RegEx:
			re, err := compilePattern(sn.Value)
			if err != nil {
				return fmt.Errorf("grammar snapshot node %d: %w", i, err)
			}
			n.re = re
		}
		g.nodes[i] = n
	}

	for _, name := range g.order {
		if id, ok := g.rules[name]; !ok || id == RootID {
			return fmt.Errorf("grammar snapshot rule %q has no node", name)
		}
	}
	if id, ok := leftCycle(g); ok {
		return fmt.Errorf("grammar snapshot node %d: reaches itself without consuming input", id)
	}
	return nil
}
