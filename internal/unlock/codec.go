package unlock

import (
	"encoding/json"
	"fmt"

	dErrors "kairos/pkg/domain-errors"
)

// envelope is the persisted and wire shape of a rule.
type envelope struct {
	Type        Type            `json:"type"`
	Params      json.RawMessage `json:"params"`
	Description string          `json:"description"`
}

type daysParams struct {
	Days int `json:"days"`
}

type countParams struct {
	Count int `json:"count"`
}

type stagesParams struct {
	Stages []Stage `json:"stages"`
}

type multiParams struct {
	Operator   Operator          `json:"operator"`
	Conditions []json.RawMessage `json:"conditions"`
}

// Rules is an ordered rule list that (un)marshals through the tagged envelope.
type Rules []Rule

func (rs Rules) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(rs))
	for _, r := range rs {
		b, err := Marshal(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return json.Marshal(out)
}

func (rs *Rules) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "unlock rules must be a JSON array")
	}
	decoded := make(Rules, 0, len(raw))
	for _, item := range raw {
		r, err := decode(item, 0)
		if err != nil {
			return err
		}
		decoded = append(decoded, r)
	}
	*rs = decoded
	return nil
}

// Marshal encodes one rule as {"type","params","description"}.
func Marshal(r Rule) ([]byte, error) {
	env, err := toEnvelope(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Unmarshal decodes one rule. Unknown types fail with an unsupported-rule error.
func Unmarshal(data []byte) (Rule, error) {
	return decode(data, 0)
}

func toEnvelope(r Rule) (envelope, error) {
	var params any
	var desc string
	switch v := r.(type) {
	case TimeLock:
		params, desc = daysParams{Days: v.Days}, v.Description
	case DeadManSwitch:
		params, desc = daysParams{Days: v.Days}, v.Description
	case Threshold:
		params, desc = countParams{Count: v.Count}, v.Description
	case StagedRelease:
		params, desc = stagesParams{Stages: v.Stages}, v.Description
	case MultiCondition:
		children := make([]json.RawMessage, 0, len(v.Conditions))
		for _, c := range v.Conditions {
			b, err := Marshal(c)
			if err != nil {
				return envelope{}, err
			}
			children = append(children, b)
		}
		params, desc = multiParams{Operator: v.Operator, Conditions: children}, v.Description
	default:
		return envelope{}, dErrors.New(dErrors.CodeUnsupportedRule, fmt.Sprintf("unsupported unlock rule %T", r))
	}
	p, err := json.Marshal(params)
	if err != nil {
		return envelope{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode rule params")
	}
	return envelope{Type: r.Type(), Params: p, Description: desc}, nil
}

func decode(data []byte, depth int) (Rule, error) {
	if depth >= MaxDepth {
		return nil, dErrors.New(dErrors.CodeValidation, "MULTI_CONDITION nested too deeply")
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, "malformed unlock rule")
	}
	params := env.Params
	if len(params) == 0 || string(params) == "null" {
		params = []byte("{}")
	}

	switch env.Type {
	case TypeTimeLock:
		var p daysParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, badParams(env.Type, err)
		}
		return TimeLock{Days: p.Days, Description: env.Description}, nil
	case TypeDeadManSwitch:
		var p daysParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, badParams(env.Type, err)
		}
		return DeadManSwitch{Days: p.Days, Description: env.Description}, nil
	case TypeThreshold:
		var p countParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, badParams(env.Type, err)
		}
		return Threshold{Count: p.Count, Description: env.Description}, nil
	case TypeStagedRelease:
		var p stagesParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, badParams(env.Type, err)
		}
		return StagedRelease{Stages: p.Stages, Description: env.Description}, nil
	case TypeMultiCondition:
		var p multiParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, badParams(env.Type, err)
		}
		children := make([]Rule, 0, len(p.Conditions))
		for _, raw := range p.Conditions {
			child, err := decode(raw, depth+1)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return MultiCondition{Operator: p.Operator, Conditions: children, Description: env.Description}, nil
	default:
		return nil, dErrors.New(dErrors.CodeUnsupportedRule, fmt.Sprintf("unsupported unlock rule type %q", env.Type))
	}
}

func badParams(t Type, err error) error {
	return dErrors.Wrap(err, dErrors.CodeValidation, fmt.Sprintf("invalid params for %s", t))
}
