package sealer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	dErrors "kairos/pkg/domain-errors"
)

// TestSealOpenProperties checks round trip and passphrase separation for
// arbitrary inputs. Property: Open(Seal(p, k), k) == p and Open(Seal(p, k), k') fails.
func TestSealOpenProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)
	sl := New(WithIterations(200))

	properties.Property("open inverts seal", prop.ForAll(
		func(plain []byte, pass string) bool {
			blob, err := sl.Seal(plain, pass)
			if err != nil {
				return false
			}
			got, err := sl.Open(blob, pass)
			return err == nil && string(got) == string(plain)
		},
		gen.SliceOf(gen.UInt8()),
		gen.AnyString(),
	))

	properties.Property("a different passphrase never opens", prop.ForAll(
		func(plain []byte, pass, other string) bool {
			if pass == other {
				return true
			}
			blob, err := sl.Seal(plain, pass)
			if err != nil {
				return false
			}
			got, err := sl.Open(blob, other)
			return got == nil && dErrors.HasCode(err, dErrors.CodeIntegrity)
		},
		gen.SliceOf(gen.UInt8()),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
