package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeouts_WithDefaults(t *testing.T) {
	assert.Equal(t, Timeouts{
		Navigation: DefaultNavigationTimeout,
		Fill:       DefaultFillTimeout,
		Settle:     DefaultSettleTimeout,
	}, Timeouts{}.withDefaults())

	custom := Timeouts{Navigation: time.Second, Fill: 2 * time.Second, Settle: 3 * time.Second}
	assert.Equal(t, custom, custom.withDefaults())
}

func TestNewPage_TimeoutsAreAlwaysSet(t *testing.T) {
	p := NewPage(nil, false)
	assert.Equal(t, Timeouts{}.withDefaults(), p.timeouts)

	p.WithTimeouts(Timeouts{Fill: time.Second})
	assert.Equal(t, time.Second, p.timeouts.Fill)
	assert.Equal(t, DefaultNavigationTimeout, p.timeouts.Navigation)
}

func TestWithin(t *testing.T) {
	blockUntilDone := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	t.Run("blocked operation is cut off", func(t *testing.T) {
		start := time.Now()

		err := within(context.Background(), 20*time.Millisecond, "navigate https://x", blockUntilDone)

		require.ErrorIs(t, err, ErrWaitTimeout)
		assert.Contains(t, err.Error(), "navigate https://x")
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("operation sees the deadline", func(t *testing.T) {
		var deadline time.Time
		var ok bool
		_ = within(context.Background(), time.Minute, "fill field", func(ctx context.Context) error {
			deadline, ok = ctx.Deadline()
			return nil
		})
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
	})

	t.Run("success", func(t *testing.T) {
		assert.NoError(t, within(context.Background(), time.Second, "fill field", func(context.Context) error {
			return nil
		}))
	})

	t.Run("operation error is kept", func(t *testing.T) {
		err := within(context.Background(), time.Second, "fill field", func(context.Context) error {
			return ErrLabelWithoutControl
		})
		assert.ErrorIs(t, err, ErrLabelWithoutControl)
		assert.NotErrorIs(t, err, ErrWaitTimeout)
	})

	t.Run("cancelled parent is not a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := within(ctx, time.Second, "navigate https://x", blockUntilDone)

		assert.True(t, errors.Is(err, context.Canceled))
		assert.NotErrorIs(t, err, ErrWaitTimeout)
	})
}
