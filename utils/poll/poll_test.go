package poll

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	testingclock "k8s.io/utils/clock/testing"
)

func TestUntilImmediateSuccess(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	start := clk.Now()
	calls := 0
	err := Until(context.Background(), clk, time.Second, time.Minute, func() (bool, error) {
		calls++
		return true, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, time.Duration(0), clk.Since(start))
}

func TestUntilEventualSuccess(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	start := clk.Now()
	calls := 0
	err := Until(context.Background(), clk, 2*time.Second, time.Minute, func() (bool, error) {
		calls++
		return calls == 4, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, 6*time.Second, clk.Since(start))
}

func TestUntilTimeoutBounds(t *testing.T) {
	table := []struct {
		interval time.Duration
		timeout  time.Duration
	}{
		{interval: time.Second, timeout: 15 * time.Minute},
		{interval: 2 * time.Second, timeout: 15 * time.Minute},
		{interval: 7 * time.Second, timeout: 5 * time.Minute},
	}

	for _, e := range table {
		clk := testingclock.NewFakeClock(time.Now())
		start := clk.Now()
		err := Until(context.Background(), clk, e.interval, e.timeout, func() (bool, error) {
			return false, nil
		})
		elapsed := clk.Since(start)
		assert.True(t, errors.Is(err, ErrTimeout))
		assert.True(t, elapsed >= e.timeout, "expired early after %s", elapsed)
		assert.True(t, elapsed <= e.timeout+e.interval, "expired late after %s", elapsed)
	}
}

func TestUntilConditionError(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	boom := errors.New("boom")
	err := Until(context.Background(), clk, time.Second, Unbounded, func() (bool, error) {
		return false, boom
	})
	assert.Equal(t, boom, err)
}

func TestUntilUnboundedCancelled(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Until(ctx, clk, time.Second, Unbounded, func() (bool, error) {
		calls++
		if calls == 1000 {
			cancel()
		}
		return false, nil
	})
	assert.Equal(t, context.Canceled, err)
	assert.Equal(t, 1000, calls)
}

func TestSettle(t *testing.T) {
	clk := testingclock.NewFakeClock(time.Now())
	start := clk.Now()
	assert.NoError(t, Settle(context.Background(), clk, 5*time.Second))
	assert.Equal(t, 5*time.Second, clk.Since(start))
}
