package unlock

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "kairos/pkg/domain-errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		rules []Rule
		code  dErrors.Code
	}{
		{"negative days", []Rule{TimeLock{Days: -1}}, dErrors.CodeValidation},
		{"too many days", []Rule{DeadManSwitch{Days: MaxDays + 1}}, dErrors.CodeValidation},
		{"zero threshold", []Rule{Threshold{Count: 0}}, dErrors.CodeValidation},
		{"stage percent out of range", []Rule{StagedRelease{Stages: []Stage{{AfterDays: 1, Percent: 101}}}}, dErrors.CodeValidation},
		{"no stages", []Rule{StagedRelease{}}, dErrors.CodeValidation},
		{"empty multi", []Rule{MultiCondition{Operator: OperatorAnd}}, dErrors.CodeValidation},
		{"nil rule", []Rule{nil}, dErrors.CodeUnsupportedRule},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.rules)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}

	t.Run("valid tree passes", func(t *testing.T) {
		require.NoError(t, Validate([]Rule{
			DeadManSwitch{Days: 90},
			MultiCondition{Operator: OperatorOr, Conditions: []Rule{Threshold{Count: 2}, TimeLock{Days: 10}}},
		}))
	})

	t.Run("depth is bounded", func(t *testing.T) {
		var r Rule = TimeLock{Days: 1}
		for i := 0; i < MaxDepth+1; i++ {
			r = MultiCondition{Operator: OperatorAnd, Conditions: []Rule{r}}
		}
		assert.True(t, dErrors.HasCode(Validate([]Rule{r}), dErrors.CodeValidation))
	})
}

func TestThresholdBounds(t *testing.T) {
	rules := []Rule{
		Threshold{Count: 3},
		MultiCondition{Operator: OperatorAnd, Conditions: []Rule{Threshold{Count: 2}, DeadManSwitch{Days: 5}}},
	}
	assert.Equal(t, 2, MinThreshold(rules))
	assert.Equal(t, 3, MaxThreshold(rules))
	assert.Equal(t, 0, MinThreshold([]Rule{DeadManSwitch{Days: 5}}))
}

func TestCodec(t *testing.T) {
	t.Run("decodes the client wire shape", func(t *testing.T) {
		var rs Rules
		err := json.Unmarshal([]byte(`[
			{"type":"DEAD_MAN_SWITCH","params":{"days":90},"description":"Unlock after 90 days of inactivity"},
			{"type":"THRESHOLD","params":{"count":2},"description":""},
			{"type":"STAGED_RELEASE","params":{"stages":[{"afterDays":30,"percent":50}]},"description":""},
			{"type":"MULTI_CONDITION","params":{"operator":"AND","conditions":[{"type":"TIME_LOCK","params":{"days":7},"description":""}]},"description":""}
		]`), &rs)
		require.NoError(t, err)
		require.Len(t, rs, 4)
		assert.Equal(t, DeadManSwitch{Days: 90, Description: "Unlock after 90 days of inactivity"}, rs[0])
		assert.Equal(t, Threshold{Count: 2}, rs[1])
		assert.Equal(t, StagedRelease{Stages: []Stage{{AfterDays: 30, Percent: 50}}}, rs[2])
		assert.Equal(t, MultiCondition{Operator: OperatorAnd, Conditions: []Rule{TimeLock{Days: 7}}}, rs[3])
	})

	t.Run("encodes type params description", func(t *testing.T) {
		b, err := Marshal(Threshold{Count: 2, Description: "two heirs"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"THRESHOLD","params":{"count":2},"description":"two heirs"}`, string(b))
	})

	t.Run("unknown type is unsupported", func(t *testing.T) {
		_, err := Unmarshal([]byte(`{"type":"ORACLE","params":{}}`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedRule))
	})

	t.Run("unknown nested type is unsupported", func(t *testing.T) {
		_, err := Unmarshal([]byte(`{"type":"MULTI_CONDITION","params":{"operator":"OR","conditions":[{"type":"ORACLE"}]}}`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupportedRule))
	})

	t.Run("wrong param shape is a validation error", func(t *testing.T) {
		_, err := Unmarshal([]byte(`{"type":"TIME_LOCK","params":{"days":"soon"}}`))
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestCloneDoesNotShareNestedSlices(t *testing.T) {
	staged := StagedRelease{Stages: []Stage{{AfterDays: 10, Percent: 25}, {AfterDays: 60, Percent: 75}}}
	src := Rules{
		staged,
		MultiCondition{Operator: OperatorAnd, Conditions: []Rule{staged, Threshold{Count: 2}}},
	}

	cp := Clone(src)
	require.Equal(t, src, cp)

	cp[0].(StagedRelease).Stages[0].Percent = 99
	cp[1].(MultiCondition).Conditions[0].(StagedRelease).Stages[1].AfterDays = 1
	cp[1].(MultiCondition).Conditions[1] = TimeLock{Days: 1}

	assert.Equal(t, 25, src[0].(StagedRelease).Stages[0].Percent)
	assert.Equal(t, 60, src[1].(MultiCondition).Conditions[0].(StagedRelease).Stages[1].AfterDays)
	assert.Equal(t, Threshold{Count: 2}, src[1].(MultiCondition).Conditions[1])
	assert.Nil(t, Clone(nil))
}
