// Package match evaluates input text against a compiled grammar.Graph using ordered-choice,
// backtracking recursive descent.
//
// Matching decides whether the grammar accepts a prefix of the input and how far that prefix
// reaches; it does not build a parse tree. Every call is an independent depth-first search with
// its own cursor, so a Graph and a Matcher may be shared between goroutines.
//
// Without memoization the search can take exponential time on ambiguous grammars. Options.MaxSteps
// and context cancellation bound it; Options.Memoize turns on packrat memoization of (node, position)
// results, which trades memory for linear time on grammars without side effects.
package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gnolang/gmatch/grammar"
)

// ErrStepBudget is reported (wrapped in *AbortError) when a match visits more nodes than Options.MaxSteps.
var ErrStepBudget = errors.New("step budget exceeded")

// ctxCheckInterval is how many node visits pass between context checks.
const ctxCheckInterval = 1024

// AbortError reports a match that was stopped before it could decide.
type AbortError struct {
	Steps int // nodes visited before stopping
	Pos   int // input offset being tried when stopped
	Err   error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("match aborted at offset %d after %d steps: %v", e.Pos, e.Steps, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Stats describes the work done by one match.
type Stats struct {
	Steps    int
	MemoHits int
}

// Result is the outcome of a match: Accepted with the offset just past the accepted prefix
// (trailing whitespace included), or Rejected.
type Result struct {
	Accepted bool
	End      int
	Stats    Stats
}

// Full reports whether the accepted prefix covers the whole input.
func (r Result) Full(input string) bool {
	return r.Accepted && r.End == len(input)
}

func (r Result) String() string {
	if !r.Accepted {
		return "Rejected"
	}
	return fmt.Sprintf("Accepted{end: %d}", r.End)
}

// Options configures a Matcher. The zero value matches from EXPR with no limits.
type Options struct {
	// Start names the rule to match from. Empty means grammar.RootName.
	Start string
	// MaxSteps bounds node visits per match; 0 means unlimited.
	MaxSteps int
	// Memoize enables packrat memoization.
	Memoize bool
	// Logger receives a Debug entry for every node that matches. Nil disables tracing.
	Logger *zap.Logger
}

// Matcher matches inputs against one graph. It holds no per-match state.
type Matcher struct {
	g       *grammar.Graph
	start   grammar.NodeID
	rootAlt grammar.NodeID
	opts    Options
	logger  *zap.Logger
	trace   bool
}

// New creates a Matcher for g.
func New(g *grammar.Graph, opts Options) (*Matcher, error) {
	if g == nil {
		return nil, errors.New("match: nil grammar")
	}
	if opts.MaxSteps < 0 {
		return nil, fmt.Errorf("match: negative step budget %d", opts.MaxSteps)
	}

	start := grammar.RootID
	if opts.Start != "" && opts.Start != grammar.RootName {
		n, ok := g.Lookup(opts.Start)
		if !ok {
			return nil, fmt.Errorf("match: unknown start rule %q", opts.Start)
		}
		start = n.ID()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Matcher{
		g:       g,
		start:   start,
		rootAlt: g.Root().Child(0),
		opts:    opts,
		logger:  logger,
		trace:   logger.Core().Enabled(zapcore.DebugLevel),
	}, nil
}

// Match matches g from EXPR with default options.
func Match(g *grammar.Graph, input string) Result {
	m, err := New(g, Options{})
	if err != nil {
		return Result{}
	}
	r, _ := m.Match(context.Background(), input)
	return r
}

// Graph returns the graph the matcher was built for.
func (m *Matcher) Graph() *grammar.Graph { return m.g }

// Match skips leading whitespace and matches the start rule. The returned error is non-nil only if
// the match was aborted by the step budget or ctx, in which case the Result is a rejection.
func (m *Matcher) Match(ctx context.Context, input string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, &AbortError{Err: err}
	}

	r := &run{m: m, ctx: ctx, input: input}
	if m.opts.Memoize {
		r.memo = make(map[memoKey]memoEntry)
	}

	end, ok := r.match(m.start, skipSpace(input, 0))
	stats := Stats{Steps: r.steps, MemoHits: r.memoHits}
	if r.err != nil {
		return Result{Stats: stats}, r.err
	}
	if !ok {
		return Result{Stats: stats}, nil
	}
	return Result{Accepted: true, End: end, Stats: stats}, nil
}

type memoKey struct {
	id  grammar.NodeID
	pos int
}

type memoEntry struct {
	end int
	ok  bool
}

// run is the state of one Match call.
type run struct {
	m     *Matcher
	ctx   context.Context
	input string

	steps    int
	memoHits int
	memo     map[memoKey]memoEntry
	err      error // set once, makes every pending call fail fast
}

func (r *run) abort(pos int, err error) {
	r.err = &AbortError{Steps: r.steps, Pos: pos, Err: err}
}

// match tries node id at pos and returns the new cursor. On failure the cursor is pos.
func (r *run) match(id grammar.NodeID, pos int) (int, bool) {
	if r.err != nil {
		return pos, false
	}

	r.steps++
	if r.m.opts.MaxSteps > 0 && r.steps > r.m.opts.MaxSteps {
		r.abort(pos, ErrStepBudget)
		return pos, false
	}
	if r.steps%ctxCheckInterval == 0 {
		if err := r.ctx.Err(); err != nil {
			r.abort(pos, err)
			return pos, false
		}
	}

	key := memoKey{id, pos}
	if r.memo != nil {
		if e, ok := r.memo[key]; ok {
			r.memoHits++
			return e.end, e.ok
		}
	}

	end, ok := r.eval(id, pos)
	if r.err != nil {
		return pos, false
	}
	if r.memo != nil {
		r.memo[key] = memoEntry{end, ok}
	}

	if ok && r.m.trace {
		n := r.m.g.Node(id)
		r.m.logger.Debug("matched",
			zap.Stringer("kind", n.Kind()),
			zap.String("value", n.Value()),
			zap.Int("pos", pos),
			zap.String("text", r.input[pos:end]))
	}
	return end, ok
}

func (r *run) eval(id grammar.NodeID, pos int) (int, bool) {
	n := r.m.g.Node(id)

	switch n.Kind() {
	case grammar.NonTerminal, grammar.Grouping:
		return r.match(n.Child(0), pos)

	case grammar.Terminal:
		lit := n.Value()
		if !strings.HasPrefix(r.input[pos:], lit) {
			return pos, false
		}
		return skipSpace(r.input, pos+len(lit)), true

	case grammar.RegEx:
		// the pattern is compiled with \A, so a match always starts at loc[0] == 0
		loc := n.Regexp().FindStringIndex(r.input[pos:])
		if loc == nil {
			return pos, false
		}
		return skipSpace(r.input, pos+loc[1]), true

	case grammar.Concatenate:
		cur := pos
		for i := 0; i < n.NumChildren(); i++ {
			end, ok := r.match(n.Child(i), cur)
			if !ok {
				return pos, false
			}
			cur = end
		}
		return cur, true

	case grammar.Alternate:
		if id == r.m.rootAlt {
			return r.longest(n, pos)
		}
		for i := 0; i < n.NumChildren(); i++ {
			if end, ok := r.match(n.Child(i), pos); ok {
				return end, true
			}
		}
		return pos, false

	case grammar.Optional:
		if end, ok := r.match(n.Child(0), pos); ok {
			return end, true
		}
		return pos, true

	case grammar.ZeroOrMore:
		cur := pos
		for {
			end, ok := r.match(n.Child(0), cur)
			// an iteration that consumes nothing would repeat forever
			if !ok || end == cur {
				return cur, true
			}
			cur = end
		}
	}

	return pos, false
}

// longest picks among the top-level rules: the one reaching furthest wins, ties go to the
// earlier declaration. Rules themselves keep ordered choice inside.
func (r *run) longest(n grammar.Node, pos int) (int, bool) {
	best, found := pos, false
	for i := 0; i < n.NumChildren(); i++ {
		end, ok := r.match(n.Child(i), pos)
		if r.err != nil {
			return pos, false
		}
		if ok && (!found || end > best) {
			best, found = end, true
		}
	}
	return best, found
}

func skipSpace(s string, pos int) int {
	for pos < len(s) {
		c, size := utf8.DecodeRuneInString(s[pos:])
		if !unicode.IsSpace(c) {
			break
		}
		pos += size
	}
	return pos
}
