package worker

import (
	"context"
	"sync"
	"time"

	"adslot-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Locker is a cross-instance mutual exclusion lease
type Locker interface {
	AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

// JobFunc performs one pass of a periodic job and reports how many items it touched
type JobFunc func(ctx context.Context) (int, error)

type job struct {
	name     string
	interval time.Duration
	run      JobFunc
}

// JobRunner runs periodic maintenance jobs (draft expiry, slot reconciliation,
// rollup aggregation). When a Locker is set, each pass runs on at most one instance.
type JobRunner struct {
	locker Locker
	jobs   []job
	logger *zap.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewJobRunner creates a job runner. locker may be nil.
func NewJobRunner(locker Locker) *JobRunner {
	return &JobRunner{
		locker: locker,
		logger: util.GetLogger(),
	}
}

// Add registers a job. Jobs must be added before Start.
func (r *JobRunner) Add(name string, interval time.Duration, fn JobFunc) {
	r.jobs = append(r.jobs, job{name: name, interval: interval, run: fn})
}

// Start launches one ticker loop per job
func (r *JobRunner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	for _, j := range r.jobs {
		if j.interval <= 0 {
			r.logger.Warn("Job disabled", zap.String("job", j.name))
			continue
		}
		r.wg.Add(1)
		go r.loop(ctx, j)
	}
	r.logger.Info("Job runner started", zap.Int("jobs", len(r.jobs)))
}

// Stop cancels all loops and waits for in-flight passes to finish
func (r *JobRunner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("Job runner stopped")
}

func (r *JobRunner) loop(ctx context.Context, j job) {
	defer r.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runOnce(ctx, j)
		}
	}
}

// runOnce executes a single pass, returning false if another instance holds the lease
func (r *JobRunner) runOnce(ctx context.Context, j job) bool {
	if r.locker != nil {
		key := "lock:job:" + j.name
		token := uuid.NewString()
		acquired, err := r.locker.AcquireLock(ctx, key, token, j.interval)
		switch {
		case err != nil:
			r.logger.Warn("Job lock unavailable, running without it",
				zap.String("job", j.name), zap.Error(err))
		case !acquired:
			util.JobRunsTotal.WithLabelValues(j.name, "skipped").Inc()
			return false
		default:
			defer func() {
				if err := r.locker.ReleaseLock(context.Background(), key, token); err != nil {
					r.logger.Warn("Failed to release job lock", zap.String("job", j.name), zap.Error(err))
				}
			}()
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, j.interval)
	defer cancel()

	n, err := j.run(runCtx)
	if err != nil {
		util.JobRunsTotal.WithLabelValues(j.name, "error").Inc()
		r.logger.Error("Job failed", zap.String("job", j.name), zap.Error(err))
		return true
	}

	util.JobRunsTotal.WithLabelValues(j.name, "ok").Inc()
	if n > 0 {
		r.logger.Info("Job finished", zap.String("job", j.name), zap.Int("affected", n))
	}
	return true
}
