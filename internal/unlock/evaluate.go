package unlock

import (
	"fmt"
	"time"

	dErrors "kairos/pkg/domain-errors"
)

// Input is everything evaluation needs. Callers resolve Now and Approvals.
type Input struct {
	CreatedAt time.Time
	LastPing  time.Time
	Approvals int
	Now       time.Time
}

// Result is the outcome of one rule, with child results for MULTI_CONDITION.
type Result struct {
	Type           Type     `json:"type"`
	Description    string   `json:"description"`
	Satisfied      bool     `json:"satisfied"`
	ReleasePercent int      `json:"releasePercent"`
	Reason         string   `json:"reason,omitempty"`
	Children       []Result `json:"children,omitempty"`
}

// Decision aggregates top-level rules with OR semantics: any satisfied rule
// satisfies the capsule. ReleasePercent is the largest release among satisfied
// rules.
type Decision struct {
	Satisfied      bool     `json:"satisfied"`
	ReleasePercent int      `json:"releasePercent"`
	Results        []Result `json:"results"`
	Reasons        []string `json:"reasons,omitempty"`
}

// Evaluate runs every rule against in.
func Evaluate(rules []Rule, in Input) (Decision, error) {
	d := Decision{Results: make([]Result, 0, len(rules))}
	for _, r := range rules {
		res, err := evaluate(r, in, 0)
		if err != nil {
			return Decision{}, err
		}
		d.Results = append(d.Results, res)
		if res.Satisfied {
			d.Satisfied = true
			d.ReleasePercent = max(d.ReleasePercent, res.ReleasePercent)
		} else if res.Reason != "" {
			d.Reasons = append(d.Reasons, res.Reason)
		}
	}
	if d.Satisfied {
		d.Reasons = nil
	}
	return d, nil
}

func evaluate(r Rule, in Input, depth int) (Result, error) {
	if depth >= MaxDepth {
		return Result{}, dErrors.New(dErrors.CodeValidation, "MULTI_CONDITION nested too deeply")
	}
	switch v := r.(type) {
	case TimeLock:
		due := in.CreatedAt.Add(days(v.Days))
		return deadline(v, in.Now, due, "time lock opens"), nil
	case DeadManSwitch:
		due := in.LastPing.Add(days(v.Days))
		return deadline(v, in.Now, due, "inactivity window ends"), nil
	case Threshold:
		res := Result{Type: v.Type(), Description: v.Describe()}
		if in.Approvals >= v.Count {
			res.Satisfied, res.ReleasePercent = true, 100
		} else {
			res.Reason = fmt.Sprintf("%s: %d of %d approvals received", v.Type(), in.Approvals, v.Count)
		}
		return res, nil
	case StagedRelease:
		return staged(v, in), nil
	case MultiCondition:
		return multi(v, in, depth)
	default:
		return Result{}, dErrors.New(dErrors.CodeUnsupportedRule, fmt.Sprintf("unsupported unlock rule %T", r))
	}
}

func deadline(r Rule, now, due time.Time, what string) Result {
	res := Result{Type: r.Type(), Description: r.Describe()}
	if !now.Before(due) {
		res.Satisfied, res.ReleasePercent = true, 100
		return res
	}
	res.Reason = fmt.Sprintf("%s: %s in %s", r.Type(), what, remaining(due.Sub(now)))
	return res
}

// staged sums every stage whose inactivity boundary has passed, capped at 100.
func staged(r StagedRelease, in Input) Result {
	res := Result{Type: r.Type(), Description: r.Describe()}
	elapsed := in.Now.Sub(in.LastPing)
	var next time.Duration = -1
	for _, st := range r.Stages {
		boundary := days(st.AfterDays)
		if elapsed >= boundary {
			res.ReleasePercent += st.Percent
		} else if next < 0 || boundary < next {
			next = boundary
		}
	}
	res.ReleasePercent = min(res.ReleasePercent, 100)
	res.Satisfied = res.ReleasePercent > 0
	if !res.Satisfied && next >= 0 {
		res.Reason = fmt.Sprintf("%s: first stage in %s", r.Type(), remaining(next-elapsed))
	}
	return res
}

// multi joins children. AND releases the smallest child percent, OR the largest.
func multi(r MultiCondition, in Input, depth int) (Result, error) {
	res := Result{Type: r.Type(), Description: r.Describe()}
	if r.Operator != OperatorAnd && r.Operator != OperatorOr {
		return Result{}, dErrors.New(dErrors.CodeValidation, "MULTI_CONDITION operator must be AND or OR")
	}
	if len(r.Conditions) == 0 {
		return Result{}, dErrors.New(dErrors.CodeValidation, "MULTI_CONDITION requires at least one condition")
	}

	allSatisfied, anySatisfied := true, false
	minPct, maxPct := 100, 0
	var unmet []string
	for _, c := range r.Conditions {
		child, err := evaluate(c, in, depth+1)
		if err != nil {
			return Result{}, err
		}
		res.Children = append(res.Children, child)
		if child.Satisfied {
			anySatisfied = true
			maxPct = max(maxPct, child.ReleasePercent)
			minPct = min(minPct, child.ReleasePercent)
		} else {
			allSatisfied = false
			if child.Reason != "" {
				unmet = append(unmet, child.Reason)
			}
		}
	}

	switch r.Operator {
	case OperatorAnd:
		res.Satisfied = allSatisfied
		if allSatisfied {
			res.ReleasePercent = minPct
		}
	case OperatorOr:
		res.Satisfied = anySatisfied
		if anySatisfied {
			res.ReleasePercent = maxPct
		}
	}
	if !res.Satisfied {
		res.Reason = fmt.Sprintf("%s (%s): %d unmet", r.Type(), r.Operator, len(unmet))
		if len(unmet) > 0 {
			res.Reason += ": " + unmet[0]
		}
	}
	return res, nil
}

func days(n int) time.Duration {
	return time.Duration(n) * Day
}

func remaining(d time.Duration) string {
	if d >= Day {
		return fmt.Sprintf("%d days", int(d/Day)+boolToInt(d%Day != 0))
	}
	return d.Round(time.Minute).String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
