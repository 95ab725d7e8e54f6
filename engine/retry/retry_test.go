package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/prisma-engines-go/engine"
)

type recorder struct {
	waits []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDo_WarmingUsesBudget(t *testing.T) {
	for _, budget := range []int{0, 1, 4} {
		rec := &recorder{}
		calls := 0
		outcome := Do(context.Background(), func(context.Context) engine.Outcome {
			calls++
			return engine.Retryable(engine.RetryEngineWarming, "Please wait until the engine is ready")
		}, WithBudget(budget), WithSleep(rec.sleep))

		assert.Equal(t, budget+1, calls)
		assert.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
		assert.Len(t, rec.waits, budget)
		for _, w := range rec.waits {
			assert.Equal(t, 5000*time.Millisecond, w)
		}
	}
}

func TestDo_WarmingClears(t *testing.T) {
	rec := &recorder{}
	calls := 0
	outcome := Do(context.Background(), func(context.Context) engine.Outcome {
		calls++
		if calls < 3 {
			return engine.Retryable(engine.RetryEngineWarming, "wait")
		}
		return engine.Success([]byte(`{"ok":true}`))
	}, WithBudget(5), WithSleep(rec.sleep))

	assert.True(t, outcome.OK())
	assert.Equal(t, 3, calls)
}

func TestDo_TextBusyRetriedOnceRegardlessOfBudget(t *testing.T) {
	rec := &recorder{}
	calls := 0
	outcome := Do(context.Background(), func(context.Context) engine.Outcome {
		calls++
		return engine.Retryable(engine.RetryTextBusy, "Command failed with exit code 26 (ETXTBSY)")
	}, WithBudget(0), WithSleep(rec.sleep))

	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, rec.waits)
	assert.Equal(t, engine.RetryTextBusy, outcome.Retry)
}

func TestDo_NonRetryablePropagatesImmediately(t *testing.T) {
	rec := &recorder{}
	calls := 0
	outcome := Do(context.Background(), func(context.Context) engine.Outcome {
		calls++
		return engine.ValidationFailure("boom", "P1012", nil)
	}, WithBudget(3), WithSleep(rec.sleep))

	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.waits)
	assert.Equal(t, engine.OutcomeValidationError, outcome.Kind)
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome := Do(ctx, func(context.Context) engine.Outcome {
		return engine.Retryable(engine.RetryEngineWarming, "wait")
	}, WithBudget(2), WithWarmupBackoff(time.Hour))

	require.Equal(t, engine.OutcomeTransportFailure, outcome.Kind)
	assert.ErrorIs(t, outcome.Err, context.Canceled)
}
