package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/orchestrator"
)

type fakeJobRepo struct {
	mu      sync.Mutex
	pending []*models.Job
	updated []*models.Job
	claimed chan string
	err     error
}

func newFakeJobRepo(jobs ...*models.Job) *fakeJobRepo {
	return &fakeJobRepo{pending: jobs, claimed: make(chan string, 16)}
}

func (r *fakeJobRepo) Create(ctx context.Context, job *models.Job) error { return nil }

func (r *fakeJobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return nil, nil
}

func (r *fakeJobRepo) Update(ctx context.Context, job *models.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *job
	r.updated = append(r.updated, &copied)
	return nil
}

func (r *fakeJobRepo) ClaimPending(ctx context.Context) (*models.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if len(r.pending) == 0 {
		return nil, nil
	}
	job := r.pending[0]
	r.pending = r.pending[1:]
	job.Status = models.JobStatusProcessing
	r.claimed <- job.ID
	return job, nil
}

func (r *fakeJobRepo) MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	return 0, nil
}

func (r *fakeJobRepo) lastUpdate() *models.Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.updated) == 0 {
		return nil
	}
	return r.updated[len(r.updated)-1]
}

type fakeProcessor struct {
	mu       sync.Mutex
	result   *models.OrchestrationResult
	requests []orchestrator.Request
}

func (p *fakeProcessor) ProcessRequest(ctx context.Context, req orchestrator.Request) *models.OrchestrationResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.result
}

func successResult() *models.OrchestrationResult {
	return &models.OrchestrationResult{
		Success:   true,
		RequestID: "req-1",
		Data: []models.ExtractedItem{
			{"name": "Widget"},
		},
	}
}

func TestProcessJobCompletes(t *testing.T) {
	repo := newFakeJobRepo()
	proc := &fakeProcessor{result: successResult()}
	w := New(repo, proc, Config{}, nil)

	job := &models.Job{
		ID:          "job-1",
		Instruction: "get product names",
		URL:         "https://example.com/products",
		Provider:    "anthropic",
		Status:      models.JobStatusProcessing,
		CreatedAt:   time.Now(),
	}
	w.processJob(context.Background(), job)

	updated := repo.lastUpdate()
	if updated == nil {
		t.Fatal("job was never updated")
	}
	if updated.Status != models.JobStatusCompleted {
		t.Errorf("status = %q, want %q", updated.Status, models.JobStatusCompleted)
	}
	if updated.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}

	var stored models.OrchestrationResult
	if err := json.Unmarshal([]byte(updated.ResultJSON), &stored); err != nil {
		t.Fatalf("ResultJSON is not valid JSON: %v", err)
	}
	if len(stored.Data) != 1 {
		t.Errorf("stored data has %d items, want 1", len(stored.Data))
	}

	if len(proc.requests) != 1 {
		t.Fatalf("processor called %d times, want 1", len(proc.requests))
	}
	req := proc.requests[0]
	if req.Instruction != job.Instruction || req.TargetURL != job.URL || req.ProviderHint != "anthropic" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestProcessJobStoresFailureWithPartialState(t *testing.T) {
	repo := newFakeJobRepo()
	proc := &fakeProcessor{result: &models.OrchestrationResult{
		Success:   false,
		RequestID: "req-2",
		Selectors: map[string]string{"name": "h2"},
		Data:      []models.ExtractedItem{},
		Error:     "extraction failed: no items",
	}}
	w := New(repo, proc, Config{}, nil)

	job := &models.Job{ID: "job-2", Instruction: "x", URL: "https://example.com", CreatedAt: time.Now()}
	w.processJob(context.Background(), job)

	updated := repo.lastUpdate()
	if updated == nil {
		t.Fatal("job was never updated")
	}
	if updated.Status != models.JobStatusFailed {
		t.Errorf("status = %q, want %q", updated.Status, models.JobStatusFailed)
	}
	if updated.ErrorMessage != "extraction failed: no items" {
		t.Errorf("error message = %q", updated.ErrorMessage)
	}
	if updated.ResultJSON == "" {
		t.Error("failed job should still store the partial result envelope")
	}
}

func TestProcessNextJobEmptyQueue(t *testing.T) {
	repo := newFakeJobRepo()
	proc := &fakeProcessor{result: successResult()}
	w := New(repo, proc, Config{}, nil)

	w.processNextJob(context.Background(), 0)

	if len(proc.requests) != 0 {
		t.Error("processor should not run with an empty queue")
	}
	if repo.lastUpdate() != nil {
		t.Error("no job should be updated with an empty queue")
	}
}

func TestProcessNextJobClaimError(t *testing.T) {
	repo := newFakeJobRepo()
	repo.err = errors.New("database locked")
	proc := &fakeProcessor{result: successResult()}
	w := New(repo, proc, Config{}, nil)

	w.processNextJob(context.Background(), 0)

	if len(proc.requests) != 0 {
		t.Error("processor should not run when claim fails")
	}
}

func TestStartStopProcessesQueuedJob(t *testing.T) {
	job := &models.Job{ID: "job-3", Instruction: "x", URL: "https://example.com", Status: models.JobStatusPending, CreatedAt: time.Now()}
	repo := newFakeJobRepo(job)
	proc := &fakeProcessor{result: successResult()}
	w := New(repo, proc, Config{PollInterval: 5 * time.Millisecond, Concurrency: 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	select {
	case id := <-repo.claimed:
		if id != "job-3" {
			t.Errorf("claimed job %q, want job-3", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker never claimed the queued job")
	}

	w.Stop()

	if updated := repo.lastUpdate(); updated == nil || updated.Status != models.JobStatusCompleted {
		t.Errorf("job not completed after Stop: %+v", updated)
	}
}
