// Package export renders a compiled grammar for visualizers and humans.
//
// All renderers are read-only and go through the grammar.Graph accessors. The tree form expands
// each declared rule once under EXPR; a rule referenced from inside another rule is drawn as a leaf,
// which keeps the output finite for recursive grammars.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"golang.org/x/exp/maps"
	"sigs.k8s.io/yaml"

	"github.com/gnolang/gmatch/grammar"
)

// Item emphasis styles understood by the tree viewer.
const (
	KindStyle = "style1"
	NameStyle = "style2"
)

// Item is one styled text fragment of a tree node label.
type Item struct {
	Text     string `json:"text"`
	Emphasis string `json:"emphasis,omitempty"`
}

// TreeNode is a labelled node of the exported tree.
type TreeNode struct {
	Items    []Item     `json:"items"`
	Children []TreeNode `json:"children"`
}

// Document is the top-level object consumed by the tree viewer.
type Document struct {
	Root TreeNode `json:"root"`
	Kind struct {
		Tree bool `json:"tree"`
	} `json:"kind"`
}

// Tree projects g into a Document. The synthetic "root" node has the EXPR rule as its only child.
func Tree(g *grammar.Graph) Document {
	var doc Document
	doc.Kind.Tree = true
	doc.Root = TreeNode{
		Items:    []Item{{Text: "root"}},
		Children: []TreeNode{treeNode(g, g.Root(), true)},
	}
	return doc
}

// treeNode builds the subtree of n. expand tells whether a NonTerminal shows its definition;
// only EXPR passes the permission on to its rules.
func treeNode(g *grammar.Graph, n grammar.Node, expand bool) TreeNode {
	tn := TreeNode{Items: label(n), Children: []TreeNode{}}

	if n.Kind() == grammar.NonTerminal {
		if !expand {
			return tn
		}
		expand = n.ID() == grammar.RootID
	}
	for _, child := range n.Children() {
		tn.Children = append(tn.Children, treeNode(g, g.Node(child), expand))
	}
	return tn
}

func label(n grammar.Node) []Item {
	kind := Item{Text: n.Kind().String(), Emphasis: KindStyle}
	switch {
	case n.Kind() == grammar.NonTerminal:
		return []Item{kind, {Text: n.Value(), Emphasis: NameStyle}}
	case n.Value() == "":
		return []Item{kind, {}}
	}
	return []Item{kind, {Text: ` "` + n.Value() + `"`}}
}

// JSON writes the tree document as JSON.
func JSON(w io.Writer, g *grammar.Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Tree(g))
}

// YAML writes the tree document as YAML, using the same field names as JSON.
func YAML(w io.Writer, g *grammar.Graph) error {
	data, err := yaml.Marshal(Tree(g))
	if err != nil {
		return fmt.Errorf("marshal tree: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// Text writes the tree document as an indented outline, one node per line.
func Text(w io.Writer, g *grammar.Graph) error {
	var sb strings.Builder
	writeOutline(&sb, Tree(g).Root.Children, 0)
	_, err := io.WriteString(w, sb.String())
	return err
}

func writeOutline(sb *strings.Builder, nodes []TreeNode, depth int) {
	for _, n := range nodes {
		sb.WriteString(strings.Repeat("  ", depth))
		for i, item := range n.Items {
			if i > 0 && item.Emphasis == NameStyle {
				sb.WriteByte(' ')
			}
			sb.WriteString(item.Text)
		}
		sb.WriteByte('\n')
		writeOutline(sb, n.Children, depth+1)
	}
}

// DOT writes the full graph in GraphViz format. Unlike the tree forms it draws every node once,
// so recursive references appear as edges back to the rule node.
func DOT(w io.Writer, g *grammar.Graph) error {
	var sb strings.Builder
	name := g.Name()
	if name == "" {
		name = "grammar"
	}
	fmt.Fprintf(&sb, "digraph %q {\n", name)
	sb.WriteString("\tnode [shape=box, fontname=\"monospace\"];\n")

	var edges []string
	g.Walk(func(n grammar.Node, _ int) bool {
		shape := ""
		if n.Kind() == grammar.NonTerminal {
			shape = ", shape=ellipse"
		}
		fmt.Fprintf(&sb, "\tn%d [label=%q%s];\n", n.ID(), dotLabel(n), shape)

		ordered := n.NumChildren() > 1
		for i, child := range n.Children() {
			if ordered {
				edges = append(edges, fmt.Sprintf("\tn%d -> n%d [label=\"%d\"];\n", n.ID(), child, i+1))
				continue
			}
			edges = append(edges, fmt.Sprintf("\tn%d -> n%d;\n", n.ID(), child))
		}
		return true
	})
	for _, e := range edges {
		sb.WriteString(e)
	}
	sb.WriteString("}\n")

	_, err := io.WriteString(w, sb.String())
	return err
}

func dotLabel(n grammar.Node) string {
	switch n.Kind() {
	case grammar.NonTerminal:
		return n.Value()
	case grammar.Terminal:
		return fmt.Sprintf("%q", n.Value())
	case grammar.RegEx:
		return "/" + n.Value() + "/"
	}
	return n.Kind().String()
}

// Format names an output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatDOT  Format = "dot"
	FormatText Format = "text"
)

var writers = map[Format]func(io.Writer, *grammar.Graph) error{
	FormatJSON: JSON,
	FormatYAML: YAML,
	FormatDOT:  DOT,
	FormatText: Text,
}

// Formats returns the supported format names, sorted.
func Formats() []string {
	var out []string
	for _, f := range maps.Keys(writers) {
		out = append(out, string(f))
	}
	sort.Strings(out)
	return out
}

// Write renders g to w in the named format.
func Write(w io.Writer, g *grammar.Graph, format Format) error {
	fn, ok := writers[Format(strings.ToLower(string(format)))]
	if !ok {
		return fmt.Errorf("unknown export format %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
	return fn(w, g)
}
