// Package config reads and writes the .gmatch.yaml project file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file looked up when no path is given.
const DefaultPath = ".gmatch.yaml"

// Expectation is the outcome a test case asserts.
type Expectation string

const (
	ExpectAccept Expectation = "accept" // some prefix is accepted
	ExpectFull   Expectation = "full"   // the whole input is accepted
	ExpectReject Expectation = "reject"
)

// Case is one input with its expected result. Exactly one of Input and File is set;
// File is relative to the configuration file.
type Case struct {
	Name   string      `yaml:"name"`
	Input  string      `yaml:"input,omitempty"`
	File   string      `yaml:"file,omitempty"`
	Expect Expectation `yaml:"expect"`
	End    *int        `yaml:"end,omitempty"`
}

// Config represents a grammar project: the grammar file, how to match it, and its test cases.
type Config struct {
	Name     string        `yaml:"name"`
	Grammar  string        `yaml:"grammar"`
	Start    string        `yaml:"start,omitempty"`
	MaxSteps int           `yaml:"max_steps,omitempty"`
	Memoize  bool          `yaml:"memoize,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	Full     bool          `yaml:"full,omitempty"`
	Cases    []Case        `yaml:"cases,omitempty"`

	dir string
}

// Default returns the configuration written by "gmatch init".
func Default() Config {
	return Config{
		Name:    "gmatch",
		Grammar: "grammar.ebnf",
		Timeout: 5 * time.Minute,
		Cases: []Case{
			{Name: "greeting", Input: "hello, world", Expect: ExpectFull},
			{Name: "farewell", Input: "goodbye", Expect: ExpectReject},
		},
	}
}

// Load reads and validates the configuration at path.
func Load(path string) (Config, error) {
	var cfg Config

	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Write stores cfg at path, replacing any existing file.
func Write(path string, cfg Config) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Validate checks the fields that can not be checked by decoding alone.
func (c Config) Validate() error {
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must not be negative, got %d", c.MaxSteps)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}

	var errs []error
	for i, tc := range c.Cases {
		if err := tc.validate(); err != nil {
			errs = append(errs, fmt.Errorf("case %d (%s): %w", i+1, tc.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (tc Case) validate() error {
	if tc.Input != "" && tc.File != "" {
		return errors.New("input and file are mutually exclusive")
	}
	switch tc.Expect {
	case ExpectAccept, ExpectFull, ExpectReject:
	default:
		return fmt.Errorf("expect must be one of accept, full, reject, got %q", tc.Expect)
	}
	if tc.End != nil && tc.Expect == ExpectReject {
		return errors.New("end given for a rejected case")
	}
	return nil
}

// GrammarPath returns the grammar file, resolved against the configuration file's directory.
func (c Config) GrammarPath() string {
	return c.resolve(c.Grammar)
}

func (c Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}

// CaseInput returns the text a case is matched against.
func (c Config) CaseInput(tc Case) (string, error) {
	if tc.File == "" {
		return tc.Input, nil
	}
	data, err := os.ReadFile(c.resolve(tc.File))
	if err != nil {
		return "", fmt.Errorf("case %s: %w", tc.Name, err)
	}
	return string(data), nil
}
