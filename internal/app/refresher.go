package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/example/pm/internal/logging"
)

// RefreshFunc reloads a collection.
type RefreshFunc func(ctx context.Context) error

// Refresher runs a RefreshFunc on a fixed interval while a screen is mounted.
// Runs never overlap; a tick that arrives mid-refresh is skipped.
type Refresher struct {
	schedule cron.Schedule
	job      RefreshFunc
	onDone   func(error)

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

// NewRefresher creates a refresher firing every interval. onDone, if set,
// receives the result of each run.
func NewRefresher(interval time.Duration, job RefreshFunc, onDone func(error)) *Refresher {
	return &Refresher{
		schedule: cron.Every(interval),
		job:      job,
		onDone:   onDone,
	}
}

// Start schedules the job. Cancelling ctx stops the refresher as Stop does.
func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return fmt.Errorf("refresher already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(r.schedule, cron.FuncJob(func() { r.run(runCtx) }))
	c.Start()

	r.cron = c
	r.cancel = cancel

	go func() {
		<-runCtx.Done()
		r.Stop()
	}()
	return nil
}

func (r *Refresher) run(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := r.job(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		logging.Warn(ctx, "background_refresh_failed", zap.Error(err))
	} else {
		logging.Debug(ctx, "background_refresh")
	}
	if r.onDone != nil {
		r.onDone(err)
	}
}

// Stop cancels any in-flight refresh and waits for it to return.
// It is safe to call more than once.
func (r *Refresher) Stop() {
	r.mu.Lock()
	c, cancel := r.cron, r.cancel
	r.cron, r.cancel = nil, nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
}

// Running reports whether the refresher is scheduled.
func (r *Refresher) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cron != nil
}
