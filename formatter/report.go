package formatter

import (
	"bufio"
	"fmt"
	"io"

	"github.com/gnolang/gmatch/process"
)

const (
	passLabel = "PASS"
	failLabel = "FAIL"
)

func status(passed bool) string {
	if passed {
		return passStyle.Sprint(passLabel)
	}
	return failStyle.Sprint(failLabel)
}

// Reports writes one line per input file followed by a summary.
func Reports(w io.Writer, reports []process.Report) error {
	bw := bufio.NewWriter(w)
	failed := 0
	for _, r := range reports {
		if !r.Passed {
			failed++
		}
		switch {
		case r.Err != nil:
			fmt.Fprintf(bw, "%s %s: %s%s\n", status(false), fileStyle.Sprint(r.Path), errorStyle.Sprint("error: "), r.Err)
		case r.Result.Accepted:
			fmt.Fprintf(bw, "%s %s: %s at %d:%d", status(r.Passed), fileStyle.Sprint(r.Path), r.Result, r.Line, r.Col)
			if r.Full {
				fmt.Fprint(bw, " (full)")
			}
			fmt.Fprintln(bw)
		default:
			fmt.Fprintf(bw, "%s %s: %s\n", status(false), fileStyle.Sprint(r.Path), r.Result)
		}
	}
	summary(bw, len(reports)-failed, failed)
	return bw.Flush()
}

// Cases writes one line per configured test case followed by a summary.
func Cases(w io.Writer, results []process.CaseResult) error {
	bw := bufio.NewWriter(w)
	failed := 0
	for _, r := range results {
		fmt.Fprintf(bw, "%s %s", status(r.Passed), r.Case.Name)
		if !r.Passed {
			failed++
			fmt.Fprintf(bw, ": %s", messageStyle.Sprint(r.Reason))
		}
		fmt.Fprintln(bw)
	}
	summary(bw, len(results)-failed, failed)
	return bw.Flush()
}

func summary(w io.Writer, passed, failed int) {
	if failed == 0 {
		fmt.Fprintf(w, "%s %d passed\n", passStyle.Sprint("ok"), passed)
		return
	}
	fmt.Fprintf(w, "%s %d passed, %d failed\n", failStyle.Sprint("failed"), passed, failed)
}
