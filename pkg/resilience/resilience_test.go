package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/trec-ranker/pkg/errors"
)

func TestIsolateRecoversPanic(t *testing.T) {
	err := Isolate("topic 301", func() error {
		var m map[string]int
		m["boom"]++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrTaskFailed)
	assert.Contains(t, err.Error(), "topic 301")
}

func TestIsolateWrapsError(t *testing.T) {
	cause := errors.New("bad projection")
	err := Isolate("topic 302", func() error { return cause })
	assert.ErrorIs(t, err, apperrors.ErrTaskFailed)
	assert.ErrorIs(t, err, cause)
}

func TestIsolatePassesSuccess(t *testing.T) {
	assert.NoError(t, Isolate("ok", func() error { return nil }))
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "connect", fastRetry(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("refused")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	cause := errors.New("bad password")
	err := Retry(context.Background(), "connect", fastRetry(), func(ctx context.Context) error {
		calls++
		return Permanent(cause)
	})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 1, calls)
}

func TestRetryExhausts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "connect", fastRetry(), func(ctx context.Context) error {
		calls++
		return errors.New("refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}
