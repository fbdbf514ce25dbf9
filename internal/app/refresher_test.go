package app

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tick fires every d; cron.Every cannot go below one second.
type tick time.Duration

func (d tick) Next(t time.Time) time.Time { return t.Add(time.Duration(d)) }

func fastRefresher(job RefreshFunc, onDone func(error)) *Refresher {
	r := NewRefresher(time.Second, job, onDone)
	r.schedule = tick(10 * time.Millisecond)
	return r
}

func TestRefresher_RunsAndReports(t *testing.T) {
	var runs, failures atomic.Int32
	r := fastRefresher(func(ctx context.Context) error {
		if runs.Add(1)%2 == 0 {
			return errors.New("flaky")
		}
		return nil
	}, func(err error) {
		if err != nil {
			failures.Add(1)
		}
	})

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()
	require.Eventually(t, func() bool { return failures.Load() >= 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, r.Running())
}

func TestRefresher_StartTwice(t *testing.T) {
	r := fastRefresher(func(ctx context.Context) error { return nil }, nil)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()
	assert.Error(t, r.Start(context.Background()))
}

func TestRefresher_StopCancelsInFlightAndWaits(t *testing.T) {
	started := make(chan struct{}, 1)
	var finished atomic.Bool
	r := fastRefresher(func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}, func(error) { t.Error("cancelled runs are not reported") })

	require.NoError(t, r.Start(context.Background()))
	<-started
	r.Stop()

	assert.True(t, finished.Load(), "Stop waits for the running refresh")
	assert.False(t, r.Running())
	r.Stop()
}

func TestRefresher_NoOverlap(t *testing.T) {
	var active, maxActive atomic.Int32
	r := fastRefresher(func(ctx context.Context) error {
		n := active.Add(1)
		for {
			m := maxActive.Load()
			if n <= m || maxActive.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		active.Add(-1)
		return nil
	}, nil)

	require.NoError(t, r.Start(context.Background()))
	time.Sleep(200 * time.Millisecond)
	r.Stop()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestRefresher_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := fastRefresher(func(ctx context.Context) error { return nil }, nil)
	require.NoError(t, r.Start(ctx))

	cancel()
	require.Eventually(t, func() bool { return !r.Running() }, time.Second, 5*time.Millisecond)
}
