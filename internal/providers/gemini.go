package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

const (
	GeminiName         = "gemini"
	geminiDefaultModel = "gemini-2.5-flash"
)

// GeminiConfig holds configuration for the Gemini backend.
type GeminiConfig struct {
	Name       string
	APIKey     string
	Model      string
	RateLimit  float64
	BaseURL    string       // optional (tests)
	HTTPClient *http.Client // optional (tests)
}

// GeminiBackend streams content from the Gemini API.
type GeminiBackend struct {
	name      string
	apiKey    string
	model     string
	rateLimit float64
	limiter   *rate.Limiter
	client    *genai.Client
}

// NewGeminiBackend creates a Gemini backend. No request is made.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	if cfg.Name == "" {
		cfg.Name = GeminiName
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiBackend{
		name:      cfg.Name,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		rateLimit: cfg.RateLimit,
		limiter:   newLimiter(cfg.RateLimit),
		client:    client,
	}, nil
}

// Name returns the backend identifier.
func (b *GeminiBackend) Name() string {
	return b.name
}

// Model returns the configured default model.
func (b *GeminiBackend) Model() string {
	return b.model
}

// ListModels returns models supporting content generation.
func (b *GeminiBackend) ListModels(ctx context.Context) ([]string, error) {
	var models []string
	for m, err := range b.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("%s models list failed: %w", b.name, mapGeminiError(b.name, err))
		}
		if !supportsGenerate(m.SupportedActions) {
			continue
		}
		models = append(models, strings.TrimPrefix(m.Name, "models/"))
	}
	sort.Strings(models)
	return preferModel(models, b.model), nil
}

func supportsGenerate(actions []string) bool {
	if len(actions) == 0 {
		return true
	}
	for _, a := range actions {
		if a == "generateContent" {
			return true
		}
	}
	return false
}

// Stream sends a generation request and forwards non-thought text parts.
func (b *GeminiBackend) Stream(ctx context.Context, req *StreamRequest, onChunk func(string) error) error {
	if req == nil {
		return fmt.Errorf("request is required")
	}
	model := req.Model
	if model == "" {
		model = b.model
	}
	if err := waitLimiter(ctx, b.limiter); err != nil {
		return err
	}

	parts := []*genai.Part{}
	for _, img := range req.Images {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: imageMIME(img), Data: img}})
	}
	if req.Prompt != "" {
		parts = append(parts, &genai.Part{Text: req.Prompt})
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	config := &genai.GenerateContentConfig{
		ThinkingConfig: &genai.ThinkingConfig{IncludeThoughts: false},
	}
	if !req.Think {
		config.ThinkingConfig.ThinkingBudget = genai.Ptr[int32](0)
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	for resp, err := range b.client.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return mapGeminiError(b.name, err)
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, p := range cand.Content.Parts {
				if p.Thought || p.Text == "" {
					continue
				}
				if err := onChunk(p.Text); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ClearHistory is a no-op: every request carries its full context.
func (b *GeminiBackend) ClearHistory() {}

func mapGeminiError(name string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.Code) {
			return &UnavailableError{Backend: name, StatusCode: apiErr.Code, Message: apiErr.Message}
		}
		return fmt.Errorf("%s error (status %d): %s", name, apiErr.Code, apiErr.Message)
	}
	return err
}

var _ Backend = (*GeminiBackend)(nil)
