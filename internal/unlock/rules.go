// Package unlock models unlock rules and decides whether a capsule's release
// conditions hold. Evaluation is pure: no I/O, no clock reads.
package unlock

import (
	"fmt"
	"slices"
	"time"

	dErrors "kairos/pkg/domain-errors"
)

// Type is the wire tag of a rule variant.
type Type string

const (
	TypeTimeLock       Type = "TIME_LOCK"
	TypeDeadManSwitch  Type = "DEAD_MAN_SWITCH"
	TypeThreshold      Type = "THRESHOLD"
	TypeStagedRelease  Type = "STAGED_RELEASE"
	TypeMultiCondition Type = "MULTI_CONDITION"
)

// Operator joins the children of a MultiCondition.
type Operator string

const (
	OperatorAnd Operator = "AND"
	OperatorOr  Operator = "OR"
)

const (
	Day = 24 * time.Hour

	// MaxDays keeps day arithmetic far away from time.Duration overflow.
	MaxDays = 36_500
	// MaxDepth bounds MultiCondition nesting.
	MaxDepth = 8
)

// Rule is one unlock trigger. The set of variants is closed.
type Rule interface {
	Type() Type
	Describe() string
	validate(depth int) error
}

// TimeLock holds until Days have passed since the capsule was created.
type TimeLock struct {
	Days        int
	Description string
}

// DeadManSwitch holds once the owner has been silent for Days.
type DeadManSwitch struct {
	Days        int
	Description string
}

// Threshold holds once Count distinct beneficiaries approved in the current epoch.
type Threshold struct {
	Count       int
	Description string
}

// Stage releases Percent of the payload once AfterDays of inactivity elapsed.
type Stage struct {
	AfterDays int `json:"afterDays"`
	Percent   int `json:"percent"`
}

// StagedRelease releases the payload progressively as inactivity grows.
type StagedRelease struct {
	Stages      []Stage
	Description string
}

// MultiCondition combines child rules with AND or OR.
type MultiCondition struct {
	Operator    Operator
	Conditions  []Rule
	Description string
}

func (TimeLock) Type() Type       { return TypeTimeLock }
func (DeadManSwitch) Type() Type  { return TypeDeadManSwitch }
func (Threshold) Type() Type      { return TypeThreshold }
func (StagedRelease) Type() Type  { return TypeStagedRelease }
func (MultiCondition) Type() Type { return TypeMultiCondition }

func (r TimeLock) Describe() string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("Unlock %d days after creation", r.Days)
}

func (r DeadManSwitch) Describe() string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("Unlock after %d days of inactivity", r.Days)
}

func (r Threshold) Describe() string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("Unlock after %d beneficiary approvals", r.Count)
}

func (r StagedRelease) Describe() string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("Release in %d stages of inactivity", len(r.Stages))
}

func (r MultiCondition) Describe() string {
	if r.Description != "" {
		return r.Description
	}
	return fmt.Sprintf("%d conditions joined by %s", len(r.Conditions), r.Operator)
}

func (r TimeLock) validate(int) error      { return validateDays(TypeTimeLock, r.Days) }
func (r DeadManSwitch) validate(int) error { return validateDays(TypeDeadManSwitch, r.Days) }

func (r Threshold) validate(int) error {
	if r.Count < 1 {
		return dErrors.New(dErrors.CodeValidation, "THRESHOLD count must be at least 1")
	}
	return nil
}

func (r StagedRelease) validate(int) error {
	if len(r.Stages) == 0 {
		return dErrors.New(dErrors.CodeValidation, "STAGED_RELEASE requires at least one stage")
	}
	for i, st := range r.Stages {
		if err := validateDays(TypeStagedRelease, st.AfterDays); err != nil {
			return err
		}
		if st.Percent < 1 || st.Percent > 100 {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("STAGED_RELEASE stage %d percent must be between 1 and 100", i))
		}
	}
	return nil
}

func (r MultiCondition) validate(depth int) error {
	if depth >= MaxDepth {
		return dErrors.New(dErrors.CodeValidation, "MULTI_CONDITION nested too deeply")
	}
	if r.Operator != OperatorAnd && r.Operator != OperatorOr {
		return dErrors.New(dErrors.CodeValidation, "MULTI_CONDITION operator must be AND or OR")
	}
	if len(r.Conditions) == 0 {
		return dErrors.New(dErrors.CodeValidation, "MULTI_CONDITION requires at least one condition")
	}
	for _, child := range r.Conditions {
		if child == nil {
			return dErrors.New(dErrors.CodeUnsupportedRule, "unsupported unlock rule")
		}
		if err := child.validate(depth + 1); err != nil {
			return err
		}
	}
	return nil
}

func validateDays(t Type, days int) error {
	if days < 0 || days > MaxDays {
		return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s days must be between 0 and %d", t, MaxDays))
	}
	return nil
}

// Validate checks a rule list as configured on a capsule. An empty list is
// valid here; seal enforces presence.
func Validate(rules []Rule) error {
	for _, r := range rules {
		if r == nil {
			return dErrors.New(dErrors.CodeUnsupportedRule, "unsupported unlock rule")
		}
		if err := r.validate(0); err != nil {
			return err
		}
	}
	return nil
}

// Walk visits every rule in the tree depth first.
func Walk(rules []Rule, fn func(Rule)) {
	for _, r := range rules {
		if r == nil {
			continue
		}
		fn(r)
		if mc, ok := r.(MultiCondition); ok {
			Walk(mc.Conditions, fn)
		}
	}
}

// Clone deep-copies a rule tree. Stage and condition slices are not shared
// with the source.
func Clone(rules []Rule) Rules {
	if rules == nil {
		return nil
	}
	out := make(Rules, len(rules))
	for i, r := range rules {
		switch v := r.(type) {
		case StagedRelease:
			v.Stages = slices.Clone(v.Stages)
			out[i] = v
		case MultiCondition:
			v.Conditions = Clone(v.Conditions)
			out[i] = v
		default:
			out[i] = r
		}
	}
	return out
}

// MinThreshold returns the smallest THRESHOLD count in the tree, or 0 when the
// tree has none.
func MinThreshold(rules []Rule) int {
	minCount := 0
	Walk(rules, func(r Rule) {
		if t, ok := r.(Threshold); ok && (minCount == 0 || t.Count < minCount) {
			minCount = t.Count
		}
	})
	return minCount
}

// MaxThreshold returns the largest THRESHOLD count in the tree.
func MaxThreshold(rules []Rule) int {
	maxCount := 0
	Walk(rules, func(r Rule) {
		if t, ok := r.(Threshold); ok && t.Count > maxCount {
			maxCount = t.Count
		}
	})
	return maxCount
}
