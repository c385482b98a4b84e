// Package formatter renders compile errors and match results for the terminal.
package formatter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/template"

	"github.com/fatih/color"

	"github.com/gnolang/gmatch/grammar"
)

const tabWidth = 8

var (
	errorStyle   = color.New(color.FgRed, color.Bold)
	codeStyle    = color.New(color.FgYellow, color.Bold)
	fileStyle    = color.New(color.FgCyan, color.Bold)
	lineStyle    = color.New(color.FgHiBlue, color.Bold)
	messageStyle = color.New(color.FgRed, color.Bold)
	noteStyle    = color.New(color.FgGreen, color.Bold)
	passStyle    = color.New(color.FgGreen, color.Bold)
	failStyle    = color.New(color.FgRed, color.Bold)
)

// diagnostic is the template data for one positioned error.
type diagnostic struct {
	Code            string
	Filename        string
	Line            int
	Column          int
	Message         string
	Note            string
	MaxLineNumWidth int
	Padding         string
	SnippetLines    []string
}

const diagnosticTemplate = `{{header .Code .MaxLineNumWidth .Filename .Line .Column}}` +
	`{{snippet .SnippetLines .Line .MaxLineNumWidth .Padding}}` +
	`{{caret .Message .Padding .Line .Column .SnippetLines}}` +
	`{{if .Note}}{{note .Note}}{{end}}` + "\n"

var diagnosticTmpl = template.Must(template.New("diagnostic").Funcs(template.FuncMap{
	"header":  header,
	"snippet": codeSnippet,
	"caret":   caretAndMessage,
	"note":    note,
}).Parse(diagnosticTemplate))

// CompileError writes err with a snippet of src pointing at the error position.
// Errors that carry no grammar position are written as a single line.
func CompileError(w io.Writer, src string, err error) error {
	d, ok := newDiagnostic(src, err)
	if !ok {
		_, werr := fmt.Fprintf(w, "%s%s\n", errorStyle.Sprint("error: "), err)
		return werr
	}

	var buf bytes.Buffer
	if err := diagnosticTmpl.Execute(&buf, d); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

func newDiagnostic(src string, err error) (diagnostic, bool) {
	var (
		d    diagnostic
		pos  grammar.Position
		cerr *grammar.CompileError
		perr *grammar.PatternError
	)
	switch {
	case errors.As(err, &cerr):
		d = diagnostic{Code: cerr.Code.String(), Filename: cerr.Source, Message: cerr.Msg}
		pos = cerr.Pos
		if cerr.Code == grammar.MixedSeparatorsError {
			d.Note = `group one of the lists, e.g. a, (b | c)`
		}
	case errors.As(err, &perr):
		d = diagnostic{Code: "bad-pattern", Filename: perr.Source, Message: perr.Err.Error()}
		pos = perr.Pos
	default:
		return d, false
	}
	if !pos.IsValid() {
		return d, false
	}

	if d.Filename == "" {
		d.Filename = "<input>"
	}
	d.Line, d.Column = pos.Line, pos.Col
	d.SnippetLines = strings.Split(src, "\n")
	d.MaxLineNumWidth = len(fmt.Sprintf("%d", d.Line))
	d.Padding = strings.Repeat(" ", d.MaxLineNumWidth+1)
	return d, true
}

func header(code string, maxLineNumWidth int, filename string, line, column int) string {
	s := errorStyle.Sprint("error: ")
	s += codeStyle.Sprintf("%s\n", code)
	s += lineStyle.Sprintf("%s--> ", strings.Repeat(" ", maxLineNumWidth))
	s += fileStyle.Sprintf("%s:%d:%d", filename, line, column)
	return s + "\n"
}

func codeSnippet(lines []string, line, maxLineNumWidth int, padding string) string {
	s := lineStyle.Sprintf("%s|\n", padding)
	if line < 1 || line > len(lines) {
		return s
	}
	lineNum := fmt.Sprintf("%*d", maxLineNumWidth, line)
	s += lineStyle.Sprintf("%s | ", lineNum)
	return s + strings.TrimRight(lines[line-1], "\r") + "\n"
}

func caretAndMessage(message, padding string, line, column int, lines []string) string {
	s := lineStyle.Sprintf("%s| ", padding)
	if line < 1 || line > len(lines) {
		return s + messageStyle.Sprintf("%s\n", message)
	}

	s += strings.Repeat(" ", visualColumn(lines[line-1], column))
	s += messageStyle.Sprint("^") + "\n"
	s += lineStyle.Sprintf("%s= ", padding)
	s += messageStyle.Sprintf("%s\n", message)
	return s
}

func note(text string) string {
	return noteStyle.Sprint("note: ") + text + "\n"
}

// visualColumn returns the display offset of the 1-based rune column, expanding tabs.
func visualColumn(line string, column int) int {
	visual, col := 0, 1
	for _, ch := range line {
		if col >= column {
			break
		}
		if ch == '\t' {
			visual += tabWidth - visual%tabWidth
		} else {
			visual++
		}
		col++
	}
	return visual
}
