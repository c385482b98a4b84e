package formatter

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/gmatch/config"
	"github.com/gnolang/gmatch/grammar"
	"github.com/gnolang/gmatch/match"
	"github.com/gnolang/gmatch/process"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestCompileError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		filename string
		src      string
		expected string
	}{
		{
			name: "mixed separators",
			src:  `A ::= "x", "y" | "z" ;`,
			expected: `error: mixed-separators
 --> <input>:1:16
  |
1 | A ::= "x", "y" | "z" ;
  |                ^
  = '|' after ',' at the same level, use parentheses to group
note: group one of the lists, e.g. a, (b | c)

`,
		},
		{
			name:     "undefined rule on second line",
			filename: "g.ebnf",
			src:      "A ::= \"x\" ;\nB ::= C ;",
			expected: `error: undefined-rule
 --> g.ebnf:2:7
  |
2 | B ::= C ;
  |       ^
  = undefined rules: C

`,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := grammar.CompileNamed(tt.filename, tt.src)
			require.Error(t, err)

			var buf bytes.Buffer
			require.NoError(t, CompileError(&buf, tt.src, err))
			assert.Equal(t, tt.expected, buf.String())
		})
	}
}

func TestCompileErrorTabs(t *testing.T) {
	t.Parallel()

	src := "A ::=\t@ ;"
	_, err := grammar.Compile(src)
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, CompileError(&buf, src, err))
	assert.Contains(t, buf.String(), "error: unexpected-token\n --> <input>:1:7\n  |\n1 | A ::=\t@ ;\n  |         ^\n")
}

func TestCompileErrorPattern(t *testing.T) {
	t.Parallel()

	src := `A ::= /a(/ ;`
	_, err := grammar.Compile(src)
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, CompileError(&buf, src, err))
	out := buf.String()
	assert.Contains(t, out, "error: bad-pattern\n --> <input>:1:7\n")
	assert.Contains(t, out, "  |       ^\n")
	assert.Contains(t, out, "missing closing )")
}

func TestCompileErrorPlain(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, CompileError(&buf, "", errors.New("open grammar.ebnf: no such file")))
	assert.Equal(t, "error: open grammar.ebnf: no such file\n", buf.String())
}

func TestVisualColumn(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, visualColumn("abc", 1))
	assert.Equal(t, 2, visualColumn("abc", 3))
	assert.Equal(t, 8, visualColumn("\tx", 2))
	assert.Equal(t, 9, visualColumn("\tx", 3))
	assert.Equal(t, 8, visualColumn("ab\tc", 4))
	assert.Equal(t, 2, visualColumn("éé", 3))
}

func TestReports(t *testing.T) {
	t.Parallel()

	reports := []process.Report{
		{Path: "a.txt", Result: match.Result{Accepted: true, End: 5}, Full: true, Passed: true, Line: 2, Col: 3},
		{Path: "b.txt", Result: match.Result{Accepted: true, End: 1}, Line: 1, Col: 2},
		{Path: "c.txt"},
		{Path: "d.txt", Err: errors.New("permission denied")},
	}

	var buf bytes.Buffer
	require.NoError(t, Reports(&buf, reports))

	expected := `PASS a.txt: Accepted{end: 5} at 2:3 (full)
FAIL b.txt: Accepted{end: 1} at 1:2
FAIL c.txt: Rejected
FAIL d.txt: error: permission denied
failed 1 passed, 3 failed
`
	assert.Equal(t, expected, buf.String())

	buf.Reset()
	require.NoError(t, Reports(&buf, reports[:1]))
	assert.Equal(t, "PASS a.txt: Accepted{end: 5} at 2:3 (full)\nok 1 passed\n", buf.String())
}

func TestCases(t *testing.T) {
	t.Parallel()

	results := []process.CaseResult{
		{Case: config.Case{Name: "greeting"}, Passed: true},
		{Case: config.Case{Name: "farewell"}, Reason: "expected end 3, got 2"},
	}

	var buf bytes.Buffer
	require.NoError(t, Cases(&buf, results))
	assert.Equal(t, "PASS greeting\nFAIL farewell: expected end 3, got 2\nfailed 1 passed, 1 failed\n", buf.String())

	buf.Reset()
	require.NoError(t, Cases(&buf, nil))
	assert.Equal(t, "ok 0 passed\n", buf.String())
}
