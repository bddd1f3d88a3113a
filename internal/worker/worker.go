// Package worker polls the job queue and runs extractions in the background.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/orchestrator"
	"github.com/jmylchreest/gleaner/internal/repository"
)

// Processor runs one extraction request end to end.
type Processor interface {
	ProcessRequest(ctx context.Context, req orchestrator.Request) *models.OrchestrationResult
}

// Worker processes background extraction jobs.
type Worker struct {
	jobRepo      repository.JobRepository
	processor    Processor
	pollInterval time.Duration
	concurrency  int
	jobTimeout   time.Duration
	stop         chan struct{}
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
	JobTimeout   time.Duration
}

// New creates a new worker.
func New(jobRepo repository.JobRepository, processor Processor, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 3
	}
	if cfg.JobTimeout == 0 {
		cfg.JobTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		jobRepo:      jobRepo,
		processor:    processor,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		jobTimeout:   cfg.JobTimeout,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker"),
	}
}

// Start begins processing jobs.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
}

// Stop gracefully stops the worker, waiting for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processNextJob(ctx, workerID)
		}
	}
}

func (w *Worker) processNextJob(ctx context.Context, workerID int) {
	job, err := w.jobRepo.ClaimPending(ctx)
	if err != nil {
		w.logger.Error("failed to claim job", "worker_id", workerID, "error", err)
		return
	}
	if job == nil {
		return // No pending jobs
	}

	w.logger.Info("processing job", "worker_id", workerID, "job_id", job.ID, "url", job.URL)
	w.processJob(ctx, job)
}

func (w *Worker) processJob(ctx context.Context, job *models.Job) {
	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	result := w.processor.ProcessRequest(jobCtx, orchestrator.Request{
		Instruction:  job.Instruction,
		TargetURL:    job.URL,
		ProviderHint: job.Provider,
	})

	resultData, err := json.Marshal(result)
	if err != nil {
		w.failJob(ctx, job, "failed to encode result: "+err.Error())
		return
	}

	now := time.Now()
	job.ResultJSON = string(resultData)
	job.CompletedAt = &now
	if result.Success {
		job.Status = models.JobStatusCompleted
	} else {
		// Partial state is still stored; the status and message flag the failure.
		job.Status = models.JobStatusFailed
		job.ErrorMessage = result.Error
	}

	if err := w.jobRepo.Update(ctx, job); err != nil {
		w.logger.Error("failed to update job", "job_id", job.ID, "error", err)
		return
	}

	w.logger.Info("finished job", "job_id", job.ID, "status", job.Status,
		"items", len(result.Data), "issues", len(result.Issues))
}

func (w *Worker) failJob(ctx context.Context, job *models.Job, errMsg string) {
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.ErrorMessage = errMsg
	job.CompletedAt = &now

	if err := w.jobRepo.Update(ctx, job); err != nil {
		w.logger.Error("failed to update job", "job_id", job.ID, "error", err)
	}

	w.logger.Error("job failed", "job_id", job.ID, "error", errMsg)
}
