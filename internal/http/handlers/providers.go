package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/gleaner/internal/llm"
)

// ProvidersHandler exposes the registered model providers.
type ProvidersHandler struct {
	gateway *llm.Gateway
	logger  *slog.Logger
}

// NewProvidersHandler creates the providers handler.
func NewProvidersHandler(gateway *llm.Gateway, logger *slog.Logger) *ProvidersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProvidersHandler{gateway: gateway, logger: logger.With("component", "providers-handler")}
}

// List returns the registered provider names.
func (h *ProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": h.gateway.Providers()})
}

type validateKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// ValidateKey checks an API key against the named provider with a live call.
func (h *ProvidersHandler) ValidateKey(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req validateKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "apiKey is required")
		return
	}

	validation := h.gateway.ValidateAPIKey(r.Context(), provider, req.APIKey)
	h.logger.Info("validated provider key", "provider", provider, "valid", validation.Valid)
	writeJSON(w, http.StatusOK, validation)
}
