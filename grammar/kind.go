package grammar

import "fmt"

// Kind identifies the matching behavior of a graph node.
type Kind int

const (
	NonTerminal Kind = iota // named rule, delegates to its definition
	Terminal                // literal text
	RegEx                   // regular expression anchored at the cursor
	Concatenate             // all children in order
	Alternate               // first child that matches
	Optional                // [ ... ]
	ZeroOrMore              // { ... }
	Grouping                // ( ... )
)

var kindNames = [...]string{
	NonTerminal: "NonTerminal",
	Terminal:    "Terminal",
	RegEx:       "RegEx",
	Concatenate: "Concatenate",
	Alternate:   "Alternate",
	Optional:    "Optional",
	ZeroOrMore:  "ZeroOrMore",
	Grouping:    "Grouping",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// MarshalText implements encoding.TextMarshaler so kinds export by name.
func (k Kind) MarshalText() ([]byte, error) {
	if k < 0 || int(k) >= len(kindNames) {
		return nil, fmt.Errorf("unknown node kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	for i, name := range kindNames {
		if name == string(text) {
			*k = Kind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node kind %q", text)
}

// hasSingleChild reports whether nodes of this kind wrap exactly one sub-expression.
func (k Kind) hasSingleChild() bool {
	switch k {
	case NonTerminal, Optional, ZeroOrMore, Grouping:
		return true
	}
	return false
}
