package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduler/internal/clock"
	redisclient "github.com/hackgods/clinic-scheduler/internal/redis"
)

type refusingLocker struct{}

func (refusingLocker) WithLock(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func newEngine(t *testing.T, opts ...Option) (*Engine, *clock.Fixed) {
	t.Helper()
	store, _ := newStore(t)
	clk := clock.NewFixed(base)
	opts = append([]Option{WithClock(clk)}, opts...)
	return NewEngine(store, zerolog.Nop(), opts...), clk
}

func TestEngine_DispatchesOnlyWhenDue(t *testing.T) {
	e, clk := newEngine(t)
	ctx := context.Background()

	var fired []string
	e.Handle("reminder", func(ctx context.Context, job Job) error {
		fired = append(fired, job.ID)
		return nil
	})

	require.NoError(t, e.Schedule(ctx, Job{ID: "reminder_1", Kind: "reminder", FireAt: base.Add(2 * time.Hour)}))

	n, err := e.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(2 * time.Hour)
	n, err = e.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"reminder_1"}, fired)

	// claimed jobs do not fire twice
	n, err = e.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_RescheduleSupersedes(t *testing.T) {
	e, clk := newEngine(t)
	ctx := context.Background()

	var fireTimes []time.Time
	e.Handle("reminder", func(ctx context.Context, job Job) error {
		fireTimes = append(fireTimes, job.FireAt)
		return nil
	})

	require.NoError(t, e.Schedule(ctx, Job{ID: "reminder_1", Kind: "reminder", FireAt: base.Add(time.Hour)}))
	require.NoError(t, e.Schedule(ctx, Job{ID: "reminder_1", Kind: "reminder", FireAt: base.Add(3 * time.Hour)}))

	clk.Advance(time.Hour)
	n, err := e.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	clk.Advance(2 * time.Hour)
	n, err = e.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, fireTimes, 1)
	assert.True(t, fireTimes[0].Equal(base.Add(3*time.Hour)))
}

func TestEngine_CancelPreventsDispatch(t *testing.T) {
	e, clk := newEngine(t)
	ctx := context.Background()

	e.Handle("reminder", func(ctx context.Context, job Job) error {
		t.Fatal("cancelled job dispatched")
		return nil
	})

	require.NoError(t, e.Schedule(ctx, Job{ID: "reminder_1", Kind: "reminder", FireAt: base.Add(time.Minute)}))
	require.NoError(t, e.Cancel(ctx, "reminder_1"))

	clk.Advance(time.Hour)
	n, err := e.RunDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_HandlerFailureDoesNotStopBatch(t *testing.T) {
	e, clk := newEngine(t, WithBatchSize(1))
	ctx := context.Background()

	var calls int
	e.Handle("k", func(ctx context.Context, job Job) error {
		calls++
		return errors.New("boom")
	})

	require.NoError(t, e.Schedule(ctx, Job{ID: "a", Kind: "k", FireAt: base}))
	require.NoError(t, e.Schedule(ctx, Job{ID: "b", Kind: "k", FireAt: base}))
	require.NoError(t, e.Schedule(ctx, Job{ID: "c", Kind: "unknown", FireAt: base}))

	clk.Advance(time.Second)
	n, err := e.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, calls)
}

func TestEngine_RecurringTaskHonoursInterval(t *testing.T) {
	e, clk := newEngine(t)
	ctx := context.Background()

	var runs atomic.Int32
	e.Every("no_show", time.Minute, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	e.RunRecurring(ctx)
	assert.EqualValues(t, 1, runs.Load())

	clk.Advance(30 * time.Second)
	e.RunRecurring(ctx)
	assert.EqualValues(t, 1, runs.Load())

	clk.Advance(30 * time.Second)
	e.RunRecurring(ctx)
	assert.EqualValues(t, 2, runs.Load())
}

func TestEngine_RecurringTaskSkippedWhenLockHeld(t *testing.T) {
	e, _ := newEngine(t, WithLocker(refusingLocker{}))

	e.Every("auto_cancel", time.Minute, func(ctx context.Context) error {
		t.Fatal("task ran without the lock")
		return nil
	})

	e.RunRecurring(context.Background())
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e, _ := newEngine(t, WithPollInterval(10*time.Millisecond))

	var runs atomic.Int32
	e.Every("tick", time.Nanosecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngine_ScheduleRejectsIncompleteJob(t *testing.T) {
	e, _ := newEngine(t)
	assert.ErrorIs(t, e.Schedule(context.Background(), Job{Kind: "k", FireAt: base}), ErrInvalidJob)
}

func TestEngine_UndecodableJobDoesNotDropBatch(t *testing.T) {
	store, rdb := newStore(t)
	clk := clock.NewFixed(base)
	e := NewEngine(store, zerolog.Nop(), WithClock(clk))
	ctx := context.Background()

	var fired []string
	e.Handle("k", func(ctx context.Context, job Job) error {
		fired = append(fired, job.ID)
		return nil
	})

	require.NoError(t, e.Schedule(ctx, Job{ID: "a", Kind: "k", FireAt: base}))
	require.NoError(t, rdb.HSet(ctx, "jobs:data", "broken", "{not json").Err())
	require.NoError(t, rdb.ZAdd(ctx, "jobs:due", redis.Z{Score: float64(base.UnixMilli()), Member: "broken"}).Err())
	require.NoError(t, e.Schedule(ctx, Job{ID: "b", Kind: "k", FireAt: base}))

	clk.Advance(time.Second)
	n, err := e.RunDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"a", "b"}, fired)
}
