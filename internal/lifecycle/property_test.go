package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/kuhlman-labs/migration-accelerator/internal/cache"
	"github.com/kuhlman-labs/migration-accelerator/internal/models"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestFormattedDurationRoundTrip checks ParseHHMMSS(FormattedDuration(ms)) == ms/1000
func TestFormattedDurationRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("duration survives formatting", prop.ForAll(
		func(ms int64) bool {
			secs, err := ParseHHMMSS(FormattedDuration(&ms))
			return err == nil && secs == ms/1000
		},
		gen.Int64Range(0, 1<<42),
	))

	properties.TestingRun(t)
}

// Operations applied by the single-flight property.
const (
	opStart = iota
	opCancel
	opFinish
)

// TestSingleFlight checks that no sequence of start, cancel and finish
// leaves more than one migration in progress.
func TestSingleFlight(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("at most one migration is in progress", prop.ForAll(
		func(ops []int) bool {
			store, err := cache.NewSQLStore(":memory:")
			if err != nil {
				return false
			}
			defer store.Close()

			finish := make(chan struct{})
			uploader := &fakeUploader{upload: func(ctx context.Context) (json.RawMessage, error) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-finish:
					return json.RawMessage(`{"message":"Success"}`), nil
				}
			}}
			ctrl, err := New(Options{
				Cache:    NewLocalCache(store),
				Uploader: uploader,
				User:     migrator(),
				Logger:   testLogger(),
			})
			if err != nil {
				return false
			}

			ctx := context.Background()
			defer func() {
				ctrl.Cancel(ctx)
				ctrl.Wait()
			}()
			for _, op := range ops {
				_, busy := ctrl.Current()
				switch op {
				case opStart:
					req := startRequest()
					_, err := ctrl.Start(ctx, req)
					if busy != errors.Is(err, ErrBusy) {
						return false
					}
					if !busy && err != nil {
						return false
					}
				case opCancel:
					ctrl.Cancel(ctx)
					ctrl.Wait()
				case opFinish:
					if busy {
						finish <- struct{}{}
						ctrl.Wait()
					}
				}

				inProgress := countStatus(ctrl.History(), models.StatusInProgress)
				_, hasCurrent := ctrl.Current()
				if inProgress > 1 {
					return false
				}
				if hasCurrent != (inProgress == 1) {
					return false
				}
				if hasCurrent != (ctrl.Phase() == PhaseInProgress) {
					return false
				}
			}

			return true
		},
		gen.SliceOf(gen.IntRange(opStart, opFinish)),
	))

	properties.TestingRun(t)
}
