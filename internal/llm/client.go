package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Usage holds token accounting for one call.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Response is the gateway's answer to a query. Text may legitimately be
// empty; an empty response is not an error. Provider names the provider
// that actually produced the answer, which matters after a fallback.
type Response struct {
	Text         string `json:"text"`
	Usage        Usage  `json:"usage"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	FinishReason string `json:"finishReason,omitempty"` // "stop", "length", ...
}

// IsTruncated returns true if the response was cut off at max tokens.
func (r *Response) IsTruncated() bool {
	return r.FinishReason == "length"
}

// Client makes the actual HTTP calls to provider APIs.
type Client struct {
	logger *slog.Logger
	http   *http.Client
}

// NewClient creates a wire client. A nil logger disables call logging.
func NewClient(logger *slog.Logger) *Client {
	return &Client{logger: logger, http: &http.Client{}}
}

// Call sends one chat request to the provider described by cfg and parses
// the response according to the provider's API format.
func (c *Client) Call(ctx context.Context, cfg ProviderConfig, prompt string, opts Options) (*Response, error) {
	if cfg.APIKey == "" && cfg.AuthType != AuthTypeNone {
		return nil, fmt.Errorf("no API key available for provider %s", cfg.Name)
	}

	model := opts.Model
	if model == "" {
		model = cfg.Model
	}
	if model == "" {
		return nil, fmt.Errorf("no model configured for provider %s", cfg.Name)
	}

	if opts.Temperature == 0 {
		opts.Temperature = 0.2
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.Timeout == 0 {
		opts.Timeout = 120 * time.Second
	}

	reqBody := buildRequestBody(cfg, model, prompt, opts)
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	apiURL := cfg.ChatURL()

	if c.logger != nil {
		c.logger.Debug("making LLM API request",
			"provider", cfg.Name,
			"model", model,
			"api_url", apiURL,
			"prompt_length", len(prompt),
			"temperature", opts.Temperature,
			"max_tokens", opts.MaxTokens,
		)
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, apiURL, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	setAuthHeaders(req, cfg)

	resp, err := c.http.Do(req)
	if err != nil {
		if c.logger != nil {
			c.logger.Error("LLM API request failed", "provider", cfg.Name, "error", err)
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if c.logger != nil {
			c.logger.Error("LLM API error",
				"provider", cfg.Name,
				"status_code", resp.StatusCode,
				"response", string(body),
			)
		}
		err := fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
		return nil, Classify(err, cfg.Name, model, resp.StatusCode)
	}

	result, err := parseResponse(cfg.APIFormat, body)
	if err != nil {
		return nil, err
	}

	result.Model = model
	result.Provider = cfg.Name

	if result.IsTruncated() && c.logger != nil {
		c.logger.Warn("LLM output truncated",
			"provider", cfg.Name,
			"model", model,
			"output_tokens", result.Usage.OutputTokens,
			"max_tokens", opts.MaxTokens,
		)
	}

	return result, nil
}

// buildRequestBody assembles the chat request for the provider's API format.
func buildRequestBody(cfg ProviderConfig, model, prompt string, opts Options) map[string]any {
	reqBody := map[string]any{
		"model":       model,
		"temperature": opts.Temperature,
		"max_tokens":  opts.MaxTokens,
	}

	switch cfg.APIFormat {
	case APIFormatAnthropic:
		// Anthropic carries the system prompt at the top level.
		if opts.SystemPrompt != "" {
			reqBody["system"] = opts.SystemPrompt
		}
		reqBody["messages"] = []map[string]string{
			{"role": "user", "content": prompt},
		}
	default:
		messages := make([]map[string]string, 0, 2)
		if opts.SystemPrompt != "" {
			messages = append(messages, map[string]string{"role": "system", "content": opts.SystemPrompt})
		}
		messages = append(messages, map[string]string{"role": "user", "content": prompt})
		reqBody["messages"] = messages

		// response_format is only understood by OpenAI-compatible APIs.
		// Anthropic and Ollama rely on prompt instructions for JSON output.
		if opts.JSONMode && cfg.APIFormat == APIFormatOpenAI {
			reqBody["response_format"] = map[string]string{"type": "json_object"}
		}
		if cfg.APIFormat == APIFormatOllama {
			reqBody["stream"] = false
		}
	}

	return reqBody
}

// setAuthHeaders applies the provider's authentication scheme to a request.
func setAuthHeaders(req *http.Request, cfg ProviderConfig) {
	switch cfg.AuthType {
	case AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	case AuthTypeAPIKey:
		headerName := cfg.AuthHeader
		if headerName == "" {
			headerName = "x-api-key"
		}
		req.Header.Set(headerName, cfg.APIKey)
	case AuthTypeNone:
		// No auth needed
	}

	for k, v := range cfg.ExtraHeaders {
		req.Header.Set(k, v)
	}
}

// parseResponse extracts text and token usage from the provider's response
// format. Exported via the client for testing only.
func parseResponse(apiFormat string, body []byte) (*Response, error) {
	switch apiFormat {
	case APIFormatAnthropic:
		return parseAnthropicFormat(body)
	case APIFormatOllama:
		return parseOllamaFormat(body)
	default:
		return parseOpenAIFormat(body)
	}
}

// parseAnthropicFormat parses the Anthropic messages response format.
func parseAnthropicFormat(body []byte) (*Response, error) {
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		StopReason string `json:"stop_reason"` // "end_turn", "max_tokens", "stop_sequence"
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse Anthropic response: %w", err)
	}

	result := &Response{
		Usage: Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	}
	if len(resp.Content) > 0 {
		result.Text = resp.Content[0].Text
	}

	// Normalize Anthropic's stop_reason to OpenAI-style finish_reason.
	switch resp.StopReason {
	case "max_tokens":
		result.FinishReason = "length"
	case "end_turn", "stop_sequence":
		result.FinishReason = "stop"
	default:
		result.FinishReason = resp.StopReason
	}

	return result, nil
}

// parseOllamaFormat parses the Ollama chat response format.
func parseOllamaFormat(body []byte) (*Response, error) {
	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		DoneReason      string `json:"done_reason"` // "stop", "length"
		PromptEvalCount int    `json:"prompt_eval_count"`
		EvalCount       int    `json:"eval_count"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse Ollama response: %w", err)
	}

	return &Response{
		Text:         resp.Message.Content,
		Usage:        Usage{InputTokens: resp.PromptEvalCount, OutputTokens: resp.EvalCount},
		FinishReason: resp.DoneReason,
	}, nil
}

// parseOpenAIFormat parses the OpenAI-compatible chat completion format,
// used by OpenAI, OpenRouter and most gateways.
func parseOpenAIFormat(body []byte) (*Response, error) {
	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"` // "stop", "length", "content_filter"
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAI response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from LLM")
	}

	return &Response{
		Text:         resp.Choices[0].Message.Content,
		Usage:        Usage{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens},
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
