package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/h2non/filetype"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"
)

const (
	OllamaName    = "ollama"
	OpenAIName    = "openai"
	OllamaBaseURL = "http://localhost:11434/v1/"

	// Ollama ignores the key but the SDK requires one.
	ollamaPlaceholderKey = "ollama"
)

// OpenAIConfig holds configuration for an OpenAI-compatible backend.
type OpenAIConfig struct {
	Name       string        // registry name, defaults to the type
	Type       string        // "ollama" or "openai"
	APIKey     string
	BaseURL    string        // defaults to OllamaBaseURL for ollama
	Model      string        // default model
	RateLimit  float64       // requests per second, 0 = unlimited
	MaxRetries int           // SDK transport retries
	Timeout    time.Duration // HTTP timeout, 0 = none (streams are long)
	HTTPClient *http.Client  // optional (tests)
}

// OpenAIBackend streams chat completions from Ollama or any OpenAI-compatible
// endpoint using the official SDK.
type OpenAIBackend struct {
	name      string
	typ       string
	apiKey    string
	baseURL   string
	model     string
	rateLimit float64
	limiter   *rate.Limiter
	client    openai.Client
}

// NewOpenAIBackend creates an OpenAI-compatible backend.
func NewOpenAIBackend(cfg OpenAIConfig) *OpenAIBackend {
	if cfg.Type == "" {
		cfg.Type = OllamaName
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Type
	}
	if cfg.Type == OllamaName {
		if cfg.BaseURL == "" {
			cfg.BaseURL = OllamaBaseURL
		}
		if cfg.APIKey == "" {
			cfg.APIKey = ollamaPlaceholderKey
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIBackend{
		name:      cfg.Name,
		typ:       cfg.Type,
		apiKey:    cfg.APIKey,
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		rateLimit: cfg.RateLimit,
		limiter:   newLimiter(cfg.RateLimit),
		client:    openai.NewClient(opts...),
	}
}

// Name returns the backend identifier.
func (b *OpenAIBackend) Name() string {
	return b.name
}

// Model returns the configured default model.
func (b *OpenAIBackend) Model() string {
	return b.model
}

// ListModels returns the served models, with the configured default first.
func (b *OpenAIBackend) ListModels(ctx context.Context) ([]string, error) {
	page, err := b.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s models list failed: %w", b.name, b.mapError(err))
	}
	if page == nil {
		return nil, fmt.Errorf("%s models list returned nil response", b.name)
	}

	models := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return preferModel(models, b.model), nil
}

// Stream sends a chat completion request and forwards content deltas.
func (b *OpenAIBackend) Stream(ctx context.Context, req *StreamRequest, onChunk func(string) error) error {
	if req == nil {
		return fmt.Errorf("request is required")
	}
	model := req.Model
	if model == "" {
		model = b.model
	}
	if model == "" {
		return ErrEmptyModel
	}
	if err := waitLimiter(ctx, b.limiter); err != nil {
		return err
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, userMessage(req.Prompt, req.Images))

	var opts []option.RequestOption
	if b.typ == OllamaName {
		opts = append(opts, option.WithJSONSet("think", req.Think))
	}

	stream := b.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}, opts...)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := onChunk(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return b.mapError(err)
	}
	return nil
}

// ClearHistory is a no-op: every request carries its full context.
func (b *OpenAIBackend) ClearHistory() {}

func userMessage(prompt string, images [][]byte) openai.ChatCompletionMessageParamUnion {
	if len(images) == 0 {
		return openai.UserMessage(prompt)
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(images)+1)
	if prompt != "" {
		parts = append(parts, openai.TextContentPart(prompt))
	}
	for _, img := range images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL(img),
		}))
	}
	return openai.UserMessage(parts)
}

func dataURL(img []byte) string {
	return "data:" + imageMIME(img) + ";base64," + base64.StdEncoding.EncodeToString(img)
}

func imageMIME(img []byte) string {
	kind, err := filetype.Match(img)
	if err != nil || kind == filetype.Unknown || kind.MIME.Value == "" {
		return "image/png"
	}
	return kind.MIME.Value
}

func (b *OpenAIBackend) mapError(err error) error {
	return mapOpenAIError(b.name, err)
}

func mapOpenAIError(name string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if transientStatus(apiErr.StatusCode) {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &UnavailableError{
				Backend:    name,
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Message,
				RetryAfter: retryAfter,
			}
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s error (status %d): %s", name, apiErr.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%s error (status %d)", name, apiErr.StatusCode)
	}
	return err
}

// preferModel moves want to the front of models when present.
func preferModel(models []string, want string) []string {
	want = strings.TrimSpace(want)
	if want == "" {
		return models
	}
	for i, m := range models {
		if m == want {
			out := append([]string{m}, models[:i]...)
			return append(out, models[i+1:]...)
		}
	}
	return models
}

var _ Backend = (*OpenAIBackend)(nil)
