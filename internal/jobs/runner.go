// Package jobs runs queued background work: a pool of workers claims jobs
// from the store, dispatches them by type, and writes progress counters back
// so pollers can observe long batches.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// ErrCancelled marks a handler aborted by a cooperative cancel request.
var ErrCancelled = eris.New("jobs: job cancelled")

const defaultPollInterval = 2 * time.Second

// Store is the queue surface the runner needs.
type Store interface {
	ClaimNextJob(ctx context.Context) (*model.Job, error)
	UpdateJobProgress(ctx context.Context, id string, processed, total int) error
	CompleteJob(ctx context.Context, id string, output []byte) error
	FailJob(ctx context.Context, id string, errText string) error
	IsJobCancelled(ctx context.Context, id string) (bool, error)
}

// HandlerFunc executes one claimed job. progress may be called after each
// unit of work; the runner throttles the resulting writes. The returned
// output is marshalled onto the job row on completion.
type HandlerFunc func(ctx context.Context, job *model.Job, progress func(processed, total int)) (output any, err error)

// Runner claims and executes queued jobs with a fixed worker pool.
type Runner struct {
	store            Store
	handlers         map[model.JobType]HandlerFunc
	workers          int
	progressInterval int
	pollInterval     time.Duration
	log              *zap.Logger
}

// NewRunner builds a runner from the jobs configuration. Register handlers
// before calling Run.
func NewRunner(st Store, cfg config.JobsConfig) *Runner {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	interval := cfg.ProgressInterval
	if interval <= 0 {
		interval = 10
	}
	return &Runner{
		store:            st,
		handlers:         map[model.JobType]HandlerFunc{},
		workers:          workers,
		progressInterval: interval,
		pollInterval:     defaultPollInterval,
		log:              zap.L().Named("jobs"),
	}
}

// Register installs the handler for a job type, replacing any previous one.
func (r *Runner) Register(t model.JobType, h HandlerFunc) {
	r.handlers[t] = h
}

// Run blocks, executing jobs until the context is cancelled. Queue errors
// are logged and retried on the next poll; only context cancellation stops
// the pool.
func (r *Runner) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		worker := i
		g.Go(func() error {
			return r.workLoop(gCtx, worker)
		})
	}
	err := g.Wait()
	if eris.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunOnce claims and executes at most one job. Returns false when the queue
// was empty. Used by tests and the synchronous CLI path.
func (r *Runner) RunOnce(ctx context.Context) (bool, error) {
	job, err := r.store.ClaimNextJob(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	r.execute(ctx, job)
	return true, nil
}

func (r *Runner) workLoop(ctx context.Context, worker int) error {
	log := r.log.With(zap.Int("worker", worker))
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		job, err := r.store.ClaimNextJob(ctx)
		if err != nil {
			log.Warn("claim failed", zap.Error(err))
			job = nil
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.pollInterval):
			}
			continue
		}
		r.execute(ctx, job)
	}
}

// execute runs one job end to end and records its terminal state. Handler
// panics are not recovered; a crashed worker should crash loudly.
func (r *Runner) execute(ctx context.Context, job *model.Job) {
	log := r.log.With(zap.String("job_id", job.ID), zap.String("type", string(job.Type)))

	handler, ok := r.handlers[job.Type]
	if !ok {
		log.Error("no handler registered")
		if err := r.store.FailJob(ctx, job.ID, "no handler registered for job type "+string(job.Type)); err != nil {
			log.Error("fail write failed", zap.Error(err))
		}
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	started := time.Now()
	log.Info("job started")

	output, err := handler(jobCtx, job, r.progressFunc(jobCtx, cancel, job.ID))

	switch {
	case eris.Is(err, ErrCancelled) || (jobCtx.Err() != nil && ctx.Err() == nil):
		// Cancel requests already flipped the row to cancelled; nothing to
		// write back.
		log.Info("job cancelled", zap.Duration("elapsed", time.Since(started)))
	case err != nil:
		log.Warn("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(started)))
		if werr := r.store.FailJob(ctx, job.ID, err.Error()); werr != nil {
			log.Error("fail write failed", zap.Error(werr))
		}
	default:
		raw, merr := json.Marshal(output)
		if merr != nil {
			raw = []byte("{}")
		}
		if werr := r.store.CompleteJob(ctx, job.ID, raw); werr != nil {
			log.Error("complete write failed", zap.Error(werr))
			return
		}
		log.Info("job complete", zap.Duration("elapsed", time.Since(started)))
	}
}

// progressFunc throttles progress writes to every Nth item (always writing
// the final one) and piggybacks the cooperative cancellation check on each
// write. A detected cancel request cancels the job context.
func (r *Runner) progressFunc(ctx context.Context, cancel context.CancelFunc, jobID string) func(processed, total int) {
	return func(processed, total int) {
		if processed%r.progressInterval != 0 && processed != total {
			return
		}
		if err := r.store.UpdateJobProgress(ctx, jobID, processed, total); err != nil {
			r.log.Warn("progress write failed", zap.String("job_id", jobID), zap.Error(err))
		}
		cancelled, err := r.store.IsJobCancelled(ctx, jobID)
		if err != nil {
			r.log.Warn("cancel check failed", zap.String("job_id", jobID), zap.Error(err))
			return
		}
		if cancelled {
			cancel()
		}
	}
}
