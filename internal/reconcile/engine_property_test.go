//go:build property
// +build property

package reconcile_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/conneroisu/pybootstrap/internal/reconcile"
)

func genPin() gopter.Gen {
	return gen.IntRange(10, 13).Map(func(minor int) string {
		return fmt.Sprintf("3.%d", minor)
	})
}

// TestReconcileConverges checks that any reconciliation is followed by a
// fast-path run, whatever the manifest contents and pin history.
func TestReconcileConverges(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("second run performs no subprocess call", prop.ForAll(
		func(requirements string, pins []string) bool {
			f := newFixture(t)
			f.write(t, "requirements.txt", requirements)

			for _, pin := range pins {
				f.write(t, ".python-version", pin+"\n")
				if _, err := f.engine.Reconcile(context.Background()); err != nil {
					return false
				}
			}
			if _, err := f.engine.Reconcile(context.Background()); err != nil {
				return false
			}

			f.runner.Reset()
			probes := f.probe.Calls()
			result, err := f.engine.Reconcile(context.Background())
			if err != nil {
				return false
			}
			return result.Action == reconcile.ActionReuse &&
				f.runner.Calls() == 0 &&
				f.probe.Calls() == probes
		},
		gen.AlphaString(),
		gen.SliceOfN(3, genPin()),
	))

	properties.Property("persisted hash equals the plan fingerprint", prop.ForAll(
		func(requirements string) bool {
			f := newFixture(t)
			f.write(t, "requirements.txt", requirements)

			plan, err := f.engine.Plan(context.Background())
			if err != nil {
				return false
			}
			if _, err := f.engine.Reconcile(context.Background()); err != nil {
				return false
			}
			st, _ := f.engine.Store().Load(context.Background())
			return st.Hash == plan.Fingerprint
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
