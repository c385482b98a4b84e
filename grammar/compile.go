// Package grammar compiles EBNF-like grammar text into a Graph of typed nodes.
//
// The grammar language:
//
//	rule       = name "::=" expression ";"
//	expression = term { "," term } | term { "|" term }
//	term       = name | terminal | regex | "(" expression ")" | "{" expression "}" | "[" expression "]"
//	terminal   = '"' ... '"' | "'" ... "'"   (backslash escapes the delimiting quote only)
//	regex      = "/" ... "/"                 (backslash escapes "/" only, pattern kept verbatim)
//	name       = /[a-zA-Z][a-zA-Z0-9_]*/
//
// Whitespace between constructs is insignificant. Sequences and choices can not be mixed at one
// nesting level: "a, b | c" is rejected, write "a, (b | c)" or "(a, b) | c" instead.
package grammar

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	defineOp  = "::="
	ruleEnd   = ';'
	seqSep    = ','
	choiceSep = '|'
)

type bracket struct {
	kind        Kind
	open, close byte
}

var brackets = [...]bracket{
	{Grouping, '(', ')'},
	{ZeroOrMore, '{', '}'},
	{Optional, '[', ']'},
}

func openBracket(c byte) (bracket, bool) {
	for _, b := range brackets {
		if b.open == c {
			return b, true
		}
	}
	return bracket{}, false
}

func isCloseBracket(c byte) bool {
	for _, b := range brackets {
		if b.close == c {
			return true
		}
	}
	return false
}

// compiler holds the whole state of one compilation.
type compiler struct {
	name string
	src  string
	pos  int
	g    *Graph

	defined map[string]int // rule name -> offset of its definition
	refs    map[string]int // rule name -> offset of its first reference
}

// Compile builds a Graph from grammar text.
// It returns a *CompileError for malformed grammar and a *PatternError for a bad regex literal;
// no graph is returned in either case.
func Compile(src string) (*Graph, error) {
	return CompileNamed("", src)
}

// CompileNamed is like Compile, name is used in error messages (typically a file name).
func CompileNamed(name, src string) (*Graph, error) {
	c := &compiler{
		name:    name,
		src:     src,
		g:       newGraph(name),
		defined: make(map[string]int),
		refs:    make(map[string]int),
	}

	c.skipSpace()
	for !c.eof() {
		if err := c.parseRule(); err != nil {
			return nil, err
		}
	}

	if err := c.check(); err != nil {
		return nil, err
	}
	return c.g, nil
}

// MustCompile is like Compile but panics on error. Intended for grammars embedded in programs and tests.
func MustCompile(src string) *Graph {
	g, err := Compile(src)
	if err != nil {
		panic("grammar: Compile: " + err.Error())
	}
	return g
}

func (c *compiler) eof() bool { return c.pos >= len(c.src) }

func (c *compiler) skipSpace() {
	for c.pos < len(c.src) {
		r, size := utf8.DecodeRuneInString(c.src[c.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		c.pos += size
	}
}

// advance consumes n bytes and the whitespace after them.
func (c *compiler) advance(n int) {
	c.pos += n
	c.skipSpace()
}

func (c *compiler) accept(lit string) bool {
	if strings.HasPrefix(c.src[c.pos:], lit) {
		c.advance(len(lit))
		return true
	}
	return false
}

func (c *compiler) describeNext() string {
	if c.eof() {
		return "end of input"
	}
	ch := c.src[c.pos]
	switch {
	case ch == '"' || ch == '\'':
		return "terminal"
	case ch == '/':
		return "regex"
	case isIdentStart(ch):
		return fmt.Sprintf("name %q", c.src[c.pos:c.pos+identLen(c.src[c.pos:])])
	}
	r, _ := utf8.DecodeRuneInString(c.src[c.pos:])
	return fmt.Sprintf("%q", r)
}

func (c *compiler) parseRule() error {
	start := c.pos
	if !isIdentStart(c.src[c.pos]) {
		return c.errorAt(c.pos, BadIdentifierError, "expected rule name, found %s", c.describeNext())
	}
	name := c.scanIdentifier()

	if name == RootName {
		return c.errorAt(start, ReservedRuleError, "rule name %q is reserved", name)
	}
	if prev, dup := c.defined[name]; dup {
		return c.errorAt(start, RuleRedefinedError, "rule %q already defined at %s", name, positionAt(c.src, prev))
	}

	id := c.g.nonTerminal(name)
	c.defined[name] = start
	c.g.order = append(c.g.order, name)
	c.g.addChild(rootAltID, id)

	if !c.accept(defineOp) {
		return c.expectedError(defineOp)
	}

	body, err := c.parseExpression()
	if err != nil {
		return err
	}
	c.g.addChild(id, body)

	switch {
	case c.eof():
		return c.eofError(`";"`)
	case c.src[c.pos] == ruleEnd:
		c.advance(1)
		return nil
	case isCloseBracket(c.src[c.pos]):
		return c.errorAt(c.pos, UnmatchedBracketError, "unmatched %q in rule %q", c.src[c.pos], name)
	}
	return c.expectedError(";")
}

func (c *compiler) peekSeparator() (byte, bool) {
	if c.eof() {
		return 0, false
	}
	switch ch := c.src[c.pos]; ch {
	case seqSep, choiceSep:
		return ch, true
	}
	return 0, false
}

// parseExpression reads one nesting level. The first separator fixes the list kind and every
// further term at this level becomes a direct child of the same node.
func (c *compiler) parseExpression() (NodeID, error) {
	first, err := c.parseTerm()
	if err != nil {
		return 0, err
	}

	sep, ok := c.peekSeparator()
	if !ok {
		return first, nil
	}

	kind := Concatenate
	if sep == choiceSep {
		kind = Alternate
	}
	list := c.g.newNode(kind, "")
	c.g.addChild(list, first)

	for {
		next, ok := c.peekSeparator()
		if !ok {
			return list, nil
		}
		if next != sep {
			return 0, c.errorAt(c.pos, MixedSeparatorsError,
				"%q after %q at the same level, use parentheses to group", next, sep)
		}
		c.advance(1)

		term, err := c.parseTerm()
		if err != nil {
			return 0, err
		}
		c.g.addChild(list, term)
	}
}

func (c *compiler) parseTerm() (NodeID, error) {
	const want = "rule name, terminal, regex, or group"
	if c.eof() {
		return 0, c.eofError(want)
	}

	ch := c.src[c.pos]
	switch {
	case ch == '"' || ch == '\'':
		value, err := c.parseTerminal()
		if err != nil {
			return 0, err
		}
		return c.g.newNode(Terminal, value), nil

	case ch == '/':
		return c.parseRegex()

	case isIdentStart(ch):
		start := c.pos
		name := c.scanIdentifier()
		if _, seen := c.refs[name]; !seen {
			c.refs[name] = start
		}
		return c.g.nonTerminal(name), nil
	}

	b, ok := openBracket(ch)
	if !ok {
		if isCloseBracket(ch) || ch == ruleEnd || ch == seqSep || ch == choiceSep {
			return 0, c.errorAt(c.pos, UnexpectedTokenError, "unexpected %q, expected %s", ch, want)
		}
		return 0, c.unexpectedError(want)
	}

	openAt := c.pos
	c.advance(1)
	inner, err := c.parseExpression()
	if err != nil {
		return 0, err
	}
	group := c.g.newNode(b.kind, "")
	c.g.addChild(group, inner)

	if err := c.closeGroup(b, openAt); err != nil {
		return 0, err
	}
	return group, nil
}

func (c *compiler) closeGroup(b bracket, openAt int) error {
	switch {
	case c.eof():
		return c.errorAt(openAt, UnclosedBracketError, "%q is never closed", b.open)
	case c.src[c.pos] == b.close:
		c.advance(1)
		return nil
	case isCloseBracket(c.src[c.pos]):
		return c.errorAt(c.pos, MismatchedBracketError, "%q does not close %q opened at %s",
			c.src[c.pos], b.open, positionAt(c.src, openAt))
	case c.src[c.pos] == ruleEnd:
		return c.errorAt(c.pos, UnclosedBracketError, "expected %q before end of rule, %q opened at %s",
			b.close, b.open, positionAt(c.src, openAt))
	}
	return c.expectedError(string(b.close))
}

// parseTerminal reads a quoted literal. Only the delimiting quote can be escaped.
func (c *compiler) parseTerminal() (string, error) {
	quote := c.src[c.pos]
	start := c.pos
	var sb strings.Builder

	for i := c.pos + 1; i < len(c.src); {
		ch := c.src[i]
		if ch == '\\' && i+1 < len(c.src) && c.src[i+1] == quote {
			sb.WriteByte(quote)
			i += 2
			continue
		}
		if ch == quote {
			c.pos = i
			c.advance(1)
			return sb.String(), nil
		}
		sb.WriteByte(ch)
		i++
	}
	return "", c.errorAt(start, UnterminatedTerminalError, "unterminated terminal starting with %q", quote)
}

// parseRegex reads a /pattern/ literal. The pattern is kept verbatim, `\/` included,
// and compiled anchored at the start of the remaining input.
func (c *compiler) parseRegex() (NodeID, error) {
	start := c.pos
	end := -1
	for i := c.pos + 1; i < len(c.src); i++ {
		if c.src[i] == '\\' && i+1 < len(c.src) && c.src[i+1] == '/' {
			i++
			continue
		}
		if c.src[i] == '/' {
			end = i
			break
		}
	}
	if end < 0 {
		return 0, c.errorAt(start, UnterminatedRegexError, "unterminated regex")
	}

	pattern := c.src[start+1 : end]
	re, err := compilePattern(pattern)
	if err != nil {
		return 0, &PatternError{Pattern: pattern, Source: c.name, Pos: positionAt(c.src, start), Err: err}
	}

	c.pos = end
	c.advance(1)
	id := c.g.newNode(RegEx, pattern)
	c.g.nodes[id].re = re
	return id, nil
}

// compilePattern anchors pattern at the cursor: a match must begin exactly where matching resumes.
// The bare pattern is compiled first so an unbalanced ")" can not escape the anchoring group.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if _, err := regexp.Compile(pattern); err != nil {
		return nil, err
	}
	return regexp.Compile(`\A(?:` + pattern + `)`)
}

func isIdentStart(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || ('0' <= c && c <= '9') || c == '_'
}

func identLen(s string) int {
	if s == "" || !isIdentStart(s[0]) {
		return 0
	}
	n := 1
	for n < len(s) && isIdentChar(s[n]) {
		n++
	}
	return n
}

func (c *compiler) scanIdentifier() string {
	n := identLen(c.src[c.pos:])
	name := c.src[c.pos : c.pos+n]
	c.advance(n)
	return name
}
