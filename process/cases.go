package process

import (
	"context"
	"fmt"

	"github.com/gnolang/gmatch/config"
	"github.com/gnolang/gmatch/match"
)

// CaseResult is the outcome of one configured test case.
type CaseResult struct {
	Case   config.Case
	Result match.Result
	Passed bool
	Reason string // why the case failed, empty when it passed
	Err    error
}

// Cases runs every test case of cfg with m. Cases are independent: a failing or aborted case
// does not stop the others. Only cancellation of ctx ends the run early.
func Cases(ctx context.Context, m *match.Matcher, cfg config.Config) ([]CaseResult, error) {
	results := make([]CaseResult, 0, len(cfg.Cases))
	for _, tc := range cfg.Cases {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, runCase(ctx, m, cfg, tc))
	}
	return results, nil
}

func runCase(ctx context.Context, m *match.Matcher, cfg config.Config, tc config.Case) CaseResult {
	cr := CaseResult{Case: tc}

	input, err := cfg.CaseInput(tc)
	if err != nil {
		cr.Err = err
		cr.Reason = err.Error()
		return cr
	}

	res, err := m.Match(ctx, input)
	if err != nil {
		cr.Err = err
		cr.Reason = err.Error()
		return cr
	}
	cr.Result = res
	cr.Reason = check(tc, res, input)
	cr.Passed = cr.Reason == ""
	return cr
}

func check(tc config.Case, res match.Result, input string) string {
	switch tc.Expect {
	case config.ExpectReject:
		if res.Accepted {
			return fmt.Sprintf("expected rejection, got %s", res)
		}
		return ""
	case config.ExpectFull:
		if !res.Full(input) {
			return fmt.Sprintf("expected full match of %d bytes, got %s", len(input), res)
		}
	case config.ExpectAccept:
		if !res.Accepted {
			return "expected acceptance, got Rejected"
		}
	}
	if tc.End != nil && res.End != *tc.End {
		return fmt.Sprintf("expected end %d, got %d", *tc.End, res.End)
	}
	return ""
}
