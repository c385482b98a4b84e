package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, ".gmatch.yaml", `
name: numbers
grammar: numbers.ebnf
start: Number
max_steps: 10000
memoize: true
timeout: 30s
full: true
cases:
  - name: two digits
    input: "42"
    expect: full
  - name: prefix
    input: "42a"
    expect: accept
    end: 2
  - name: from file
    file: inputs/letters.txt
    expect: reject
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "numbers", cfg.Name)
	assert.Equal(t, "Number", cfg.Start)
	assert.Equal(t, 10000, cfg.MaxSteps)
	assert.True(t, cfg.Memoize)
	assert.True(t, cfg.Full)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, filepath.Join(dir, "numbers.ebnf"), cfg.GrammarPath())

	require.Len(t, cfg.Cases, 3)
	assert.Equal(t, ExpectFull, cfg.Cases[0].Expect)
	assert.Nil(t, cfg.Cases[0].End)
	require.NotNil(t, cfg.Cases[1].End)
	assert.Equal(t, 2, *cfg.Cases[1].End)

	require.NoError(t, os.Mkdir(filepath.Join(dir, "inputs"), 0o755))
	writeFile(t, filepath.Join(dir, "inputs"), "letters.txt", "abc")

	input, err := cfg.CaseInput(cfg.Cases[2])
	require.NoError(t, err)
	assert.Equal(t, "abc", input)

	input, err = cfg.CaseInput(cfg.Cases[0])
	require.NoError(t, err)
	assert.Equal(t, "42", input)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"unknown field", "name: x\ngrammer: a.ebnf\n", "grammer"},
		{"bad yaml", "name: [x\n", "parse"},
		{"bad timeout", "timeout: soon\n", "parse"},
		{"negative steps", "max_steps: -1\n", "max_steps"},
		{"bad expectation", "cases:\n  - name: a\n    expect: maybe\n", "maybe"},
		{"input and file", "cases:\n  - name: a\n    input: x\n    file: y\n    expect: full\n", "mutually exclusive"},
		{"end on reject", "cases:\n  - name: a\n    expect: reject\n    end: 1\n", "end given"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := writeFile(t, t.TempDir(), "cfg.yaml", tt.content)
			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWriteRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), DefaultPath)
	want := Default()
	require.NoError(t, Write(path, want))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "timeout: 5m0s")

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want.Name, got.Name)
	assert.Equal(t, want.Grammar, got.Grammar)
	assert.Equal(t, want.Timeout, got.Timeout)
	assert.Equal(t, want.Cases, got.Cases)
}

func TestGrammarPath(t *testing.T) {
	t.Parallel()

	abs := filepath.Join(t.TempDir(), "g.ebnf")
	assert.Equal(t, abs, Config{Grammar: abs, dir: "/elsewhere"}.GrammarPath())
	assert.Equal(t, "g.ebnf", Config{Grammar: "g.ebnf"}.GrammarPath())
	assert.Equal(t, filepath.Join("conf", "g.ebnf"), Config{Grammar: "g.ebnf", dir: "conf"}.GrammarPath())
}
