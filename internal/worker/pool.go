// Package worker polls the job queue and drives claimed jobs through the
// processing pipeline.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"log/slog"

	"github.com/resibo-ph/resibo/internal/common"
	"github.com/resibo-ph/resibo/internal/entity"
	"github.com/resibo-ph/resibo/internal/pipeline"
	"github.com/resibo-ph/resibo/internal/repository"
)

// Runner produces a pipeline result for one claimed job.
type Runner interface {
	ProcessFile(ctx context.Context, job *entity.Job) (*entity.PipelineResult, *entity.Receipt, error)
}

// finalizeTimeout bounds the status write after a job finishes or times out.
const finalizeTimeout = 10 * time.Second

// Pool runs a fixed number of workers. Each worker claims one queued job at a
// time, so a job is processed exactly once regardless of pool size. The upload
// handler calls Wake to cut the polling latency on enqueue.
type Pool struct {
	jobs   repository.JobRepository
	runner Runner
	cfg    common.WorkerConfig
	logger *slog.Logger

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup
}

func NewPool(jobs repository.JobRepository, runner Runner, cfg common.WorkerConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Count < 1 {
		cfg.Count = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Pool{
		jobs:   jobs,
		runner: runner,
		cfg:    cfg,
		logger: logger,
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
	}
}

// Start launches the workers. Call Stop to shut them down.
func (p *Pool) Start() {
	p.logger.Info("starting worker pool", "count", p.cfg.Count, "poll_interval", p.cfg.PollInterval)
	for i := 0; i < p.cfg.Count; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Wake nudges an idle worker without waiting for the next poll tick.
func (p *Pool) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Stop waits for in-flight jobs to finish before returning.
func (p *Pool) Stop() {
	close(p.stop)
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) run(id int) {
	defer p.wg.Done()

	log := p.logger.With("worker", id)
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.drain(log)
		case <-p.wake:
			p.drain(log)
		}
	}
}

// drain claims and processes jobs until the queue is empty or a stop is
// requested.
func (p *Pool) drain(log *slog.Logger) {
	for {
		select {
		case <-p.stop:
			return
		default:
		}

		claimCtx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
		job, err := p.jobs.ClaimNext(claimCtx)
		cancel()
		if err != nil {
			log.Error("claim failed", "error", err)
			return
		}
		if job == nil {
			return
		}
		p.process(log, job)
	}
}

func (p *Pool) process(log *slog.Logger, job *entity.Job) {
	log = log.With("job_id", job.ID, "filename", job.Filename)
	log.Info("processing job")

	ctx := context.Background()
	var cancel context.CancelFunc = func() {}
	if p.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
	}
	result, receipt, err := p.runner.ProcessFile(ctx, job)
	cancel()

	finCtx, finCancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer finCancel()

	if err != nil {
		message := "processing failed"
		var undecodable *pipeline.ErrUndecodableImage
		switch {
		case errors.As(err, &undecodable):
			message = undecodable.Error()
		case errors.Is(err, context.DeadlineExceeded):
			message = "processing timed out"
		}
		log.Warn("job failed", "error", err, "message", message)
		if failErr := p.jobs.Fail(finCtx, job.ID, message); failErr != nil {
			log.Error("recording failure failed", "error", failErr)
		}
		return
	}

	if err := p.jobs.Complete(finCtx, job.ID, result, receipt); err != nil {
		log.Error("recording completion failed", "error", err)
		return
	}
	log.Info("job completed", "receipt_id", receipt.ID, "category", receipt.Category)
}
