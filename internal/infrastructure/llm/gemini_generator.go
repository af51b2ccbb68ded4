package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"graphgen/internal/domain/entity"
	"graphgen/internal/domain/repository"
	"graphgen/internal/infrastructure/metrics"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel   = "gemini-2.0-flash"
)

type GeminiGenerator struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ repository.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator returns a client for the generateContent endpoint. A zero
// timeout leaves the call bounded only by the caller's context.
func NewGeminiGenerator(apiKey, baseURL, model string, timeout time.Duration) *GeminiGenerator {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &GeminiGenerator{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (g *GeminiGenerator) Model() string {
	return g.model
}

func (g *GeminiGenerator) Generate(ctx context.Context, req entity.GenerationRequest) (entity.GenerationResponse, error) {
	metrics.IncLLMRequest(g.model)

	body := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: req.Prompt()}},
		}},
		Tools: toolsFor(req),
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"TEXT"},
		},
	}

	resp, err := g.makeRequest(ctx, body)
	if err != nil {
		return entity.GenerationResponse{}, err
	}

	out, err := g.parseResponse(resp)
	if err != nil {
		metrics.IncError("llm", "parse_response")
		return entity.GenerationResponse{}, fmt.Errorf("%w: failed to parse gemini response: %v", entity.ErrNetwork, err)
	}
	return out, nil
}

func toolsFor(req entity.GenerationRequest) []tool {
	var tools []tool
	if req.Has(entity.CapabilitySearch) {
		tools = append(tools, tool{GoogleSearch: &struct{}{}})
	}
	if req.Has(entity.CapabilityCodeExecution) {
		tools = append(tools, tool{CodeExecution: &struct{}{}})
	}
	return tools
}

func (g *GeminiGenerator) makeRequest(ctx context.Context, request generateContentRequest) (*generateContentResponse, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		metrics.IncError("llm", "marshal_request")
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		metrics.IncError("llm", "create_request")
		return nil, fmt.Errorf("%w: failed to create request: %v", entity.ErrNetwork, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.IncError("llm", "http_do")
		return nil, fmt.Errorf("%w: gemini request failed: %w", entity.ErrNetwork, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Printf("close body err: %s", err)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		metrics.IncError("llm", fmt.Sprintf("api_error_%d", resp.StatusCode))
		return nil, statusError(resp.StatusCode, body)
	}

	var response generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		metrics.IncError("llm", "decode_response")
		return nil, fmt.Errorf("%w: failed to decode response: %v", entity.ErrNetwork, err)
	}

	return &response, nil
}

// statusError classifies a non-200 reply into the error taxonomy.
func statusError(code int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	var apiErr errorResponse
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
		msg = apiErr.Error.Message
	}

	var kind error
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = entity.ErrAuth
	case http.StatusTooManyRequests:
		kind = entity.ErrQuota
	default:
		kind = entity.ErrNetwork
	}
	return fmt.Errorf("%w: gemini api error: %d - %s", kind, code, msg)
}

func (g *GeminiGenerator) parseResponse(resp *generateContentResponse) (entity.GenerationResponse, error) {
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return entity.GenerationResponse{}, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return entity.GenerationResponse{}, errors.New("invalid response format: no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return entity.GenerationResponse{}, fmt.Errorf("invalid response format: no content (finish reason %q)", candidate.FinishReason)
	}

	out := entity.GenerationResponse{
		Model:     g.model,
		RequestID: uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		if p.Text != "" {
			text.WriteString(p.Text)
		}
		if p.ExecutableCode != nil && p.ExecutableCode.Code != "" {
			out.RawText = p.ExecutableCode.Code
		}
		if p.CodeExecutionResult != nil {
			out.CodeOutputs = append(out.CodeOutputs, p.CodeExecutionResult.Output)
		}
	}
	out.Text = text.String()

	if gm := candidate.GroundingMetadata; gm != nil && gm.SearchEntryPoint != nil {
		out.SearchSummary = gm.SearchEntryPoint.RenderedContent
	}

	if out.RawText == "" {
		out.RawText = extractCodeBlock(out.Text)
	}

	return out, nil
}

// extractCodeBlock returns the first fenced python block in content, or the
// first untagged block when no python block exists.
func extractCodeBlock(content string) string {
	var (
		blocks  []codeBlock
		current *codeBlock
		lines   []string
	)

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			if current != nil {
				current.body = strings.Join(lines, "\n")
				blocks = append(blocks, *current)
				current = nil
				continue
			}
			current = &codeBlock{lang: strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))}
			lines = lines[:0]
			continue
		}
		if current != nil {
			lines = append(lines, line)
		}
	}
	if current != nil {
		current.body = strings.Join(lines, "\n")
		blocks = append(blocks, *current)
	}

	for _, b := range blocks {
		if b.lang == "python" || b.lang == "py" {
			return b.body
		}
	}
	for _, b := range blocks {
		if b.lang == "" {
			return b.body
		}
	}
	return ""
}

type codeBlock struct {
	lang string
	body string
}
