package match

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gnolang/gmatch/grammar"
)

const arithmetic = `
Expr   ::= Term, {("+" | "-"), Term} ;
Term   ::= Factor, {("*" | "/"), Factor} ;
Factor ::= Number | ("(", Expr, ")") ;
Number ::= /[0-9]+/ ;
`

type matchCase struct {
	input    string
	accepted bool
	end      int
}

func runCases(t *testing.T, src string, cases []matchCase) {
	t.Helper()

	g, err := grammar.Compile(src)
	require.NoError(t, err)

	for _, tc := range cases {
		res := Match(g, tc.input)
		assert.Equal(t, tc.accepted, res.Accepted, "input %q", tc.input)
		if tc.accepted {
			assert.Equal(t, tc.end, res.End, "input %q", tc.input)
		}
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		grammar string
		cases   []matchCase
	}{
		{
			name:    "digits",
			grammar: `Digit ::= /[0-9]/ ; Number ::= Digit, {Digit} ;`,
			cases: []matchCase{
				{"42a", true, 2},
				{"a42", false, 0},
				{"7", true, 1},
				{"", false, 0},
			},
		},
		{
			name:    "greeting",
			grammar: `Greeting ::= ("hello" | "hi"), [","], "world" ;`,
			cases: []matchCase{
				{"hi, world", true, 9},
				{"hello world", true, 11},
				{"hiworld", true, 7},
				{"hola world", false, 0},
				{"hi,", false, 0},
			},
		},
		// grouped on purpose: an ungrouped "x", A | "x" mixes separators and does not compile
		{
			name:    "right recursion",
			grammar: `A ::= ("x", A) | "x" ;`,
			cases: []matchCase{
				{"x", true, 1},
				{"x x", true, 3},
				{"x x x", true, 5},
				{"xxx", true, 3},
				{"y", false, 0},
			},
		},
		{
			name:    "ordered choice commits to the first match",
			grammar: `S ::= "a" | "ab" ;`,
			cases:   []matchCase{{"ab", true, 1}},
		},
		{
			name:    "ordered choice longer first",
			grammar: `S ::= "ab" | "a" ;`,
			cases:   []matchCase{{"ab", true, 2}, {"ac", true, 1}},
		},
		{
			name:    "failed sequence restores the cursor",
			grammar: `S ::= ["a", "b", "x"], "a", "b", "c" ;`,
			cases:   []matchCase{{"abc", true, 3}, {"abxabc", true, 6}},
		},
		{
			name:    "optional never fails",
			grammar: `S ::= ["z"] ;`,
			cases:   []matchCase{{"abc", true, 0}, {"", true, 0}, {"z", true, 1}},
		},
		{
			name:    "repetition never fails",
			grammar: `S ::= {"z"} ;`,
			cases:   []matchCase{{"abc", true, 0}, {"zzz", true, 3}, {"z z zq", true, 5}},
		},
		{
			name:    "repetition stops on empty iterations",
			grammar: `S ::= {["a"]} ; R ::= {/a*/} ;`,
			cases:   []matchCase{{"b", true, 0}, {"aab", true, 2}},
		},
		{
			name:    "terminals are exact",
			grammar: `S ::= "hello" ;`,
			cases:   []matchCase{{"hello", true, 5}, {"hallo", false, 0}, {"Hello", false, 0}, {"hell", false, 0}},
		},
		{
			name:    "regex is anchored at the cursor",
			grammar: `S ::= "id", /[0-9]+/ ;`,
			cases:   []matchCase{{"id 12", true, 5}, {"id x12", false, 0}},
		},
		{
			name:    "whitespace is skipped around tokens",
			grammar: `Greeting ::= ("hello" | "hi"), [","], "world" ;`,
			cases:   []matchCase{{"   hi , world  ", true, 15}, {"hi,\tworld\n", true, 10}, {"hi,\u00a0world", true, 10}},
		},
		{
			name:    "longest top-level rule wins",
			grammar: `A ::= "a" ; B ::= "a", "b" ;`,
			cases:   []matchCase{{"ab", true, 2}, {"ac", true, 1}},
		},
		{
			name:    "arithmetic",
			grammar: arithmetic,
			cases: []matchCase{
				{"1 + 2 * (3 - 4)", true, 15},
				{"(1)", true, 3},
				{"1 +", true, 2},
				{"(1", false, 0},
				{"+1", false, 0},
			},
		},
		{
			name:    "root referenced from a rule",
			grammar: `A ::= ("(", EXPR, ")") | "x" ;`,
			cases:   []matchCase{{"((x))", true, 5}, {"(x", false, 0}},
		},
		{
			name:    "empty grammar rejects everything",
			grammar: ``,
			cases:   []matchCase{{"", false, 0}, {"x", false, 0}},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runCases(t, tt.grammar, tt.cases)
		})
	}
}

func TestResult(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(`A ::= ("x", A) | "x" ;`)

	for _, input := range []string{"x", "x x", "x x x", "x x x "} {
		assert.True(t, Match(g, input).Full(input), input)
	}

	res := Match(g, "x y")
	assert.True(t, res.Accepted)
	assert.False(t, res.Full("x y"))
	assert.Equal(t, "Accepted{end: 2}", res.String())

	res = Match(g, "y")
	assert.False(t, res.Full("y"))
	assert.Equal(t, "Rejected", res.String())
	assert.Positive(t, res.Stats.Steps)
}

func TestMatchDoesNotModifyGraph(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(arithmetic)
	before := g.String()

	m, err := New(g, Options{Memoize: true})
	require.NoError(t, err)
	for _, input := range []string{"1+2", "(((", "", "3 * (4 - 5) / 6"} {
		_, err := m.Match(context.Background(), input)
		require.NoError(t, err)
	}

	assert.True(t, g.Equal(grammar.MustCompile(arithmetic)))
	assert.Equal(t, before, g.String())
}

func TestNew(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(`Digit ::= /[0-9]/ ; Number ::= Digit, {Digit} ;`)

	_, err := New(nil, Options{})
	assert.Error(t, err)

	_, err = New(g, Options{MaxSteps: -1})
	assert.Error(t, err)

	_, err = New(g, Options{Start: "Letter"})
	assert.ErrorContains(t, err, `"Letter"`)

	m, err := New(g, Options{Start: grammar.RootName})
	require.NoError(t, err)
	assert.Same(t, g, m.Graph())
}

func TestStartRule(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(`Digit ::= /[0-9]/ ; Number ::= Digit, {Digit} ;`)

	m, err := New(g, Options{Start: "Digit"})
	require.NoError(t, err)

	res, err := m.Match(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, Result{Accepted: true, End: 1, Stats: res.Stats}, res)

	m, err = New(g, Options{Start: "Number"})
	require.NoError(t, err)
	res, err = m.Match(context.Background(), "42")
	require.NoError(t, err)
	assert.True(t, res.Full("42"))
}

func TestMemoize(t *testing.T) {
	t.Parallel()

	const src = `S ::= (A, "x") | (A, "y") ; A ::= "a", "b" ;`
	g := grammar.MustCompile(src)

	plain, err := New(g, Options{})
	require.NoError(t, err)
	memo, err := New(g, Options{Memoize: true})
	require.NoError(t, err)

	for _, input := range []string{"a b y", "abx", "ab", "b", ""} {
		want, err := plain.Match(context.Background(), input)
		require.NoError(t, err)
		got, err := memo.Match(context.Background(), input)
		require.NoError(t, err)

		assert.Equal(t, want.Accepted, got.Accepted, input)
		assert.Equal(t, want.End, got.End, input)
		assert.Zero(t, want.Stats.MemoHits)
	}

	res, err := memo.Match(context.Background(), "a b y")
	require.NoError(t, err)
	assert.Equal(t, 5, res.End)
	assert.Positive(t, res.Stats.MemoHits, "A is retried at the same offset")
}

func TestMemoizeAgreesOnArithmetic(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(arithmetic)
	plain, _ := New(g, Options{})
	memo, _ := New(g, Options{Memoize: true})

	inputs := []string{"1", "1+2*3", "((1+2)*(3-4))/5", "1+(2", "*", strings.Repeat("(", 6) + "1" + strings.Repeat(")", 6)}
	for _, input := range inputs {
		want, _ := plain.Match(context.Background(), input)
		got, _ := memo.Match(context.Background(), input)
		assert.Equal(t, want.String(), got.String(), input)
		assert.LessOrEqual(t, got.Stats.Steps, want.Stats.Steps, input)
	}
}

func TestStepBudget(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(`S ::= {"a"} ;`)
	input := strings.Repeat("a", 10)

	m, err := New(g, Options{MaxSteps: 5})
	require.NoError(t, err)

	res, err := m.Match(context.Background(), input)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStepBudget))
	assert.False(t, res.Accepted)

	var aerr *AbortError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, 6, aerr.Steps)
	assert.Equal(t, 1, aerr.Pos)

	m, err = New(g, Options{MaxSteps: 1000})
	require.NoError(t, err)
	res, err = m.Match(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, res.Full(input))
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(`S ::= "a" ;`)
	m, err := New(g, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := m.Match(ctx, "a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Accepted)
}

// cancelAfter reports cancellation once Err has been called more than n times.
type cancelAfter struct {
	context.Context
	mu    sync.Mutex
	n     int
	calls int
}

func (c *cancelAfter) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls > c.n {
		return context.Canceled
	}
	return nil
}

func TestCancelDuringMatch(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(`S ::= {"a"} ;`)
	m, err := New(g, Options{})
	require.NoError(t, err)

	ctx := &cancelAfter{Context: context.Background(), n: 1}
	_, err = m.Match(ctx, strings.Repeat("a", 4096))

	var aerr *AbortError
	require.ErrorAs(t, err, &aerr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ctxCheckInterval, aerr.Steps)
}

func TestDeepRecursion(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(`A ::= ("x", A) | "x" ;`)
	input := strings.Repeat("x ", 20000)

	res := Match(g, input)
	assert.True(t, res.Full(input))
}

func TestConcurrentMatch(t *testing.T) {
	t.Parallel()

	g := grammar.MustCompile(arithmetic)
	m, err := New(g, Options{Memoize: true})
	require.NoError(t, err)

	inputs := map[string]bool{
		"1 + 2 * (3 - 4)": true,
		"(1 + 2":          false,
		"7 / 7":           true,
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		for input, full := range inputs {
			wg.Add(1)
			go func(input string, full bool) {
				defer wg.Done()
				res, err := m.Match(context.Background(), input)
				assert.NoError(t, err)
				assert.Equal(t, full, res.Full(input), input)
			}(input, full)
		}
	}
	wg.Wait()
}

func TestTrace(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	g := grammar.MustCompile(`Greeting ::= ("hello" | "hi"), [","], "world" ;`)

	m, err := New(g, Options{Logger: zap.New(core)})
	require.NoError(t, err)

	_, err = m.Match(context.Background(), "hi, world")
	require.NoError(t, err)

	matched := logs.FilterMessage("matched")
	require.Positive(t, matched.Len())

	var terminals []string
	for _, e := range matched.All() {
		if e.ContextMap()["kind"] == "Terminal" {
			terminals = append(terminals, e.ContextMap()["value"].(string))
		}
	}
	assert.Equal(t, []string{"hi", ",", "world"}, terminals)

	quiet, logs := observer.New(zapcore.InfoLevel)
	m, err = New(g, Options{Logger: zap.New(quiet)})
	require.NoError(t, err)
	_, err = m.Match(context.Background(), "hi, world")
	require.NoError(t, err)
	assert.Zero(t, logs.Len())
}
