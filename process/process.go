// Package process matches many input files against one grammar.
package process

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/gnolang/gmatch/match"
)

// Evaluator matches one input file.
type Evaluator interface {
	Evaluate(ctx context.Context, path string) (Report, error)
}

// Report is the outcome for one input file.
type Report struct {
	Path   string
	Result match.Result
	Full   bool // the whole input was accepted
	Passed bool // accepted, and full if full matches were required
	Line   int  // 1-based position of Result.End, when accepted
	Col    int
	Err    error // evaluation failed; Result is meaningless
}

// Options controls directory processing.
type Options struct {
	// Extensions limits directory walks to these file extensions (".txt"). Empty means every regular file.
	// Paths named explicitly are always processed.
	Extensions []string
	// Workers bounds concurrent evaluations. Zero means runtime.NumCPU().
	Workers int
	// Progress receives a progress bar for directories. Nil disables it.
	Progress io.Writer
}

func (o Options) wants(path string) bool {
	if len(o.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(path)
	for _, e := range o.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Files processes each path in turn and returns all reports, sorted by path.
func Files(ctx context.Context, logger *zap.Logger, ev Evaluator, paths []string, opts Options) ([]Report, error) {
	var all []Report
	for _, path := range paths {
		reports, err := Path(ctx, logger, ev, path, opts)
		all = append(all, reports...)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return all, err
		}
	}
	sortReports(all)
	return all, nil
}

// Path processes a file, or every wanted file below a directory using a bounded worker pool.
// On cancellation it returns the reports finished so far together with ctx.Err().
func Path(ctx context.Context, logger *zap.Logger, ev Evaluator, path string, opts Options) ([]Report, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", path, err)
	}
	if !info.IsDir() {
		return []Report{evaluate(ctx, logger, ev, path)}, ctx.Err()
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && opts.wants(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", path, err)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionSetDescription(path),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	}

	results := make(chan Report, len(files))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

dispatch:
	for _, fp := range files {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(fp string) {
			defer wg.Done()
			defer func() { <-sem }()

			results <- evaluate(ctx, logger, ev, fp)
			if bar != nil {
				_ = bar.Add(1)
			}
		}(fp)
	}
	wg.Wait()
	close(results)

	reports := make([]Report, 0, len(files))
	for r := range results {
		reports = append(reports, r)
	}
	sortReports(reports)

	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(opts.Progress)
	}
	return reports, ctx.Err()
}

func evaluate(ctx context.Context, logger *zap.Logger, ev Evaluator, path string) Report {
	r, err := ev.Evaluate(ctx, path)
	if err != nil {
		logger.Error("Error processing file", zap.String("file", path), zap.Error(err))
		return Report{Path: path, Err: err}
	}
	r.Path = path
	return r
}

func sortReports(reports []Report) {
	sort.SliceStable(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })
}

// matcherEvaluator is the Evaluator backed by a match.Matcher.
type matcherEvaluator struct {
	m    *match.Matcher
	full bool
}

// NewEvaluator returns an Evaluator that reads a file and matches its content with m.
// With full set, a report only passes if the whole file is accepted.
func NewEvaluator(m *match.Matcher, full bool) Evaluator {
	return &matcherEvaluator{m: m, full: full}
}

func (e *matcherEvaluator) Evaluate(ctx context.Context, path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	return Input(ctx, e.m, string(data), e.full)
}

// Input matches one in-memory input and fills a Report without a path.
func Input(ctx context.Context, m *match.Matcher, input string, full bool) (Report, error) {
	res, err := m.Match(ctx, input)
	if err != nil {
		return Report{}, err
	}

	r := Report{Result: res, Full: res.Full(input)}
	r.Passed = res.Accepted && (!full || r.Full)
	if res.Accepted {
		r.Line, r.Col = lineCol(input, res.End)
	}
	return r, nil
}

// lineCol converts a byte offset into a 1-based line and rune column.
func lineCol(s string, offset int) (int, int) {
	if offset > len(s) {
		offset = len(s)
	}
	before := s[:offset]
	line := strings.Count(before, "\n") + 1
	start := strings.LastIndexByte(before, '\n') + 1
	return line, len([]rune(before[start:])) + 1
}
