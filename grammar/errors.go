package grammar

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrorCode classifies a CompileError.
type ErrorCode int

// Syntax errors raised while reading the grammar text.
const (
	UnexpectedEOFError ErrorCode = iota + 1
	UnexpectedTokenError
	ExpectedLiteralError
	UnterminatedTerminalError
	UnterminatedRegexError
	BadIdentifierError
	MismatchedBracketError
	UnmatchedBracketError
	UnclosedBracketError
	MixedSeparatorsError
)

// Semantic errors raised after the whole text has been read.
const (
	UndefinedRuleError ErrorCode = iota + 101
	RuleRedefinedError
	ReservedRuleError
	LeftRecursionError
)

var codeNames = map[ErrorCode]string{
	UnexpectedEOFError:        "unexpected-eof",
	UnexpectedTokenError:      "unexpected-token",
	ExpectedLiteralError:      "expected-literal",
	UnterminatedTerminalError: "unterminated-terminal",
	UnterminatedRegexError:    "unterminated-regex",
	BadIdentifierError:        "bad-identifier",
	MismatchedBracketError:    "mismatched-bracket",
	UnmatchedBracketError:     "unmatched-bracket",
	UnclosedBracketError:      "unclosed-bracket",
	MixedSeparatorsError:      "mixed-separators",
	UndefinedRuleError:        "undefined-rule",
	RuleRedefinedError:        "rule-redefined",
	ReservedRuleError:         "reserved-rule",
	LeftRecursionError:        "left-recursion",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error-%d", int(c))
}

// Position is a location in grammar source. Line and Col are 1-based, Col counts runes.
type Position struct {
	Offset int
	Line   int
	Col    int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// IsValid reports whether the position refers to a source location.
func (p Position) IsValid() bool { return p.Line > 0 }

// positionAt converts a byte offset into a Position.
func positionAt(src string, offset int) Position {
	if offset > len(src) {
		offset = len(src)
	}
	line := 1 + strings.Count(src[:offset], "\n")
	lineStart := strings.LastIndexByte(src[:offset], '\n') + 1
	return Position{
		Offset: offset,
		Line:   line,
		Col:    utf8.RuneCountInString(src[lineStart:offset]) + 1,
	}
}

// CompileError is returned by Compile when the grammar text is malformed.
type CompileError struct {
	Code   ErrorCode
	Msg    string
	Source string   // source name, may be empty
	Pos    Position // zero for errors that do not point at one place
}

func (e *CompileError) Error() string {
	if !e.Pos.IsValid() {
		if e.Source != "" {
			return e.Source + ": " + e.Msg
		}
		return e.Msg
	}
	if e.Source != "" {
		return fmt.Sprintf("%s:%s: %s", e.Source, e.Pos, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Pos, e.Msg)
}

// PatternError is returned by Compile when a regex literal is not a valid RE2 pattern.
type PatternError struct {
	Pattern string
	Source  string
	Pos     Position
	Err     error
}

func (e *PatternError) Error() string {
	prefix := e.Pos.String()
	if e.Source != "" {
		prefix = e.Source + ":" + prefix
	}
	return fmt.Sprintf("%s: bad regex /%s/: %v", prefix, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

func (c *compiler) errorAt(offset int, code ErrorCode, msg string, params ...any) *CompileError {
	if len(params) > 0 {
		msg = fmt.Sprintf(msg, params...)
	}
	return &CompileError{Code: code, Msg: msg, Source: c.name, Pos: positionAt(c.src, offset)}
}

func (c *compiler) eofError(what string) *CompileError {
	return c.errorAt(c.pos, UnexpectedEOFError, "unexpected end of input, expected %s", what)
}

func (c *compiler) unexpectedError(what string) *CompileError {
	return c.errorAt(c.pos, UnexpectedTokenError, "unexpected %s, expected %s", c.describeNext(), what)
}

func (c *compiler) expectedError(literal string) *CompileError {
	if c.eof() {
		return c.eofError(fmt.Sprintf("%q", literal))
	}
	return c.errorAt(c.pos, ExpectedLiteralError, "expected %q, found %s", literal, c.describeNext())
}
