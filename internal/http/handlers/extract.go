package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/jmylchreest/gleaner/internal/models"
	"github.com/jmylchreest/gleaner/internal/orchestrator"
)

// Processor runs one extraction request end to end.
type Processor interface {
	ProcessRequest(ctx context.Context, req orchestrator.Request) *models.OrchestrationResult
}

// ExtractRequest is the body for synchronous and queued extractions.
type ExtractRequest struct {
	Instruction      string `json:"instruction"`
	URL              string `json:"url"`
	Provider         string `json:"provider,omitempty"`
	FallbackProvider string `json:"fallbackProvider,omitempty"`
	Model            string `json:"model,omitempty"`
	MaxItems         int    `json:"maxItems,omitempty"`
}

func (req *ExtractRequest) validate() string {
	if req.Instruction == "" {
		return "instruction is required"
	}
	if req.URL == "" {
		return "url is required"
	}
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "url must be a valid http or https URL"
	}
	return ""
}

// ExtractHandler runs extractions inline and returns the full envelope.
type ExtractHandler struct {
	processor Processor
	logger    *slog.Logger
}

// NewExtractHandler creates the synchronous extraction handler.
func NewExtractHandler(processor Processor, logger *slog.Logger) *ExtractHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractHandler{processor: processor, logger: logger.With("component", "extract-handler")}
}

func (h *ExtractHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result := h.processor.ProcessRequest(r.Context(), orchestrator.Request{
		Instruction:      req.Instruction,
		TargetURL:        req.URL,
		ProviderHint:     req.Provider,
		FallbackProvider: req.FallbackProvider,
		Model:            req.Model,
		MaxItems:         req.MaxItems,
	})

	// Failures still carry partial state; the envelope says what went wrong.
	status := http.StatusOK
	if !result.Success && len(result.Data) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}
