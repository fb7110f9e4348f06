//go:build property

package watcher

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDebouncerProperties validates batching invariants of the debouncer.
func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(9876)
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	properties.Property("a burst yields one sorted batch with one event per path", prop.ForAll(
		func(ids []int) bool {
			if len(ids) == 0 {
				return true
			}

			d := NewDebouncer(50 * time.Millisecond)
			stop := make(chan struct{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				d.run(ctx, stop)
			}()
			defer func() {
				close(stop)
				<-done
			}()

			unique := map[string]bool{}
			for _, id := range ids {
				path := fmt.Sprintf("file-%02d.txt", id)
				unique[path] = true
				d.Add(ChangeEvent{Type: EventTypeModified, Path: path})
			}

			select {
			case events := <-d.Output():
				if len(events) != len(unique) {
					return false
				}
				return sort.SliceIsSorted(events, func(i, j int) bool { return events[i].Path < events[j].Path })
			case <-time.After(2 * time.Second):
				return false
			}
		},
		gen.SliceOfN(20, gen.IntRange(0, 9)),
	))

	properties.TestingRun(t)
}
