package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/gleaner/internal/llm"
	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/orchestrator"
)

type fakeProcessor struct {
	result   *models.OrchestrationResult
	requests []orchestrator.Request
}

func (p *fakeProcessor) ProcessRequest(ctx context.Context, req orchestrator.Request) *models.OrchestrationResult {
	p.requests = append(p.requests, req)
	return p.result
}

type fakeJobRepo struct {
	created []*models.Job
	jobs    map[string]*models.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*models.Job)}
}

func (r *fakeJobRepo) Create(ctx context.Context, job *models.Job) error {
	r.created = append(r.created, job)
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	return r.jobs[id], nil
}

func (r *fakeJobRepo) Update(ctx context.Context, job *models.Job) error { return nil }

func (r *fakeJobRepo) ClaimPending(ctx context.Context) (*models.Job, error) { return nil, nil }

func (r *fakeJobRepo) MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	return 0, nil
}

func TestExtractHappyPath(t *testing.T) {
	proc := &fakeProcessor{result: &models.OrchestrationResult{
		Success:   true,
		RequestID: "req-1",
		Data:      []models.ExtractedItem{{"name": "Widget"}},
	}}
	h := NewExtractHandler(proc, nil)

	body := `{"instruction":"get products","url":"https://example.com","provider":"anthropic","maxItems":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Extract(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var got models.OrchestrationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if !got.Success || len(got.Data) != 1 {
		t.Errorf("unexpected envelope: %+v", got)
	}

	if len(proc.requests) != 1 {
		t.Fatalf("processor called %d times, want 1", len(proc.requests))
	}
	preq := proc.requests[0]
	if preq.Instruction != "get products" || preq.TargetURL != "https://example.com" ||
		preq.ProviderHint != "anthropic" || preq.MaxItems != 5 {
		t.Errorf("unexpected request: %+v", preq)
	}
}

func TestExtractValidation(t *testing.T) {
	h := NewExtractHandler(&fakeProcessor{}, nil)

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{"instruction":`},
		{"unknown field", `{"instruction":"x","url":"https://example.com","bogus":1}`},
		{"missing instruction", `{"url":"https://example.com"}`},
		{"missing url", `{"instruction":"x"}`},
		{"bad scheme", `{"instruction":"x","url":"ftp://example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Extract(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestExtractFailureWithNoData(t *testing.T) {
	proc := &fakeProcessor{result: &models.OrchestrationResult{
		Success: false,
		Data:    []models.ExtractedItem{},
		Error:   "fetch failed",
	}}
	h := NewExtractHandler(proc, nil)

	body := `{"instruction":"x","url":"https://example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Extract(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
}

func TestJobsCreate(t *testing.T) {
	repo := newFakeJobRepo()
	h := NewJobsHandler(repo, nil)

	body := `{"instruction":"get products","url":"https://example.com","provider":"openai"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Create(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if len(repo.created) != 1 {
		t.Fatalf("created %d jobs, want 1", len(repo.created))
	}
	job := repo.created[0]
	if job.ID == "" {
		t.Error("job has no id")
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("status = %q, want pending", job.Status)
	}
	if job.Provider != "openai" {
		t.Errorf("provider = %q, want openai", job.Provider)
	}

	var resp models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.ID != job.ID {
		t.Errorf("response id = %q, want %q", resp.ID, job.ID)
	}
}

func TestJobsGet(t *testing.T) {
	repo := newFakeJobRepo()
	now := time.Now()
	repo.jobs["job-1"] = &models.Job{
		ID:          "job-1",
		Instruction: "x",
		URL:         "https://example.com",
		Status:      models.JobStatusCompleted,
		ResultJSON:  `{"success":true,"data":[{"name":"Widget"}]}`,
		CreatedAt:   now,
		CompletedAt: &now,
	}

	r := chi.NewRouter()
	r.Get("/api/v1/jobs/{id}", NewJobsHandler(repo, nil).Get)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/job-1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		ID     string          `json:"id"`
		Status string          `json:"status"`
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.ID != "job-1" || resp.Status != models.JobStatusCompleted {
		t.Errorf("unexpected job: %+v", resp)
	}
	if len(resp.Result) == 0 {
		t.Error("completed job response missing result")
	}
}

func TestJobsGetNotFound(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/api/v1/jobs/{id}", NewJobsHandler(newFakeJobRepo(), nil).Get)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestProvidersList(t *testing.T) {
	gw := llm.NewGateway(nil)
	gw.Register(llm.DefaultProviderConfig(llm.ProviderOllama))
	gw.Register(llm.DefaultProviderConfig(llm.ProviderAnthropic))

	h := NewProvidersHandler(gw, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Providers []string `json:"providers"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if len(resp.Providers) != 2 || resp.Providers[0] != "anthropic" {
		t.Errorf("providers = %v", resp.Providers)
	}
}

func TestValidateKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"pong"},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":1}}`))
	}))
	defer srv.Close()

	cfg := llm.DefaultProviderConfig(llm.ProviderOpenAI)
	cfg.BaseURL = srv.URL
	cfg.Model = "gpt-4o-mini"
	gw := llm.NewGateway(nil)
	gw.Register(cfg)

	r := chi.NewRouter()
	r.Post("/api/v1/providers/{provider}/validate-key", NewProvidersHandler(gw, nil).ValidateKey)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/providers/openai/validate-key",
		strings.NewReader(`{"apiKey":"sk-test"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var validation llm.KeyValidation
	if err := json.Unmarshal(rec.Body.Bytes(), &validation); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if !validation.Valid || validation.Provider != "openai" {
		t.Errorf("validation = %+v", validation)
	}
}

func TestValidateKeyMissingKey(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/api/v1/providers/{provider}/validate-key", NewProvidersHandler(llm.NewGateway(nil), nil).ValidateKey)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/providers/openai/validate-key",
		strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := NewHealthHandler(nil)

	rec := httptest.NewRecorder()
	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", rec.Code)
	}
	var resp struct {
		Status  string `json:"status"`
		Version struct {
			Version string `json:"version"`
		} `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Status != "ok" || resp.Version.Version == "" {
		t.Errorf("unexpected health body: %s", rec.Body.String())
	}
}
