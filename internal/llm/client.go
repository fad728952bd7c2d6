package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client sends one prompt and returns the model's text.
type Client interface {
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateJSON asks for JSON output and strips fences and chatter around it.
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
	GetModel(tier ModelTier) string
	Close() error
}

// ErrNoModel means the configuration names no model for the requested tier.
var ErrNoModel = errors.New("no model configured")

// NewClient opens a client for config.Provider. Only Gemini needs apiKey.
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultGeminiConfig()
	}
	switch config.Provider {
	case ProviderOllama:
		return NewOllamaClient(config)
	case ProviderGemini, "":
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", config.Provider)
	}
}

// GeminiClient implements Client on the Gemini API.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient connects with an API key.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, config: config}, nil
}

// modelFor builds a model handle per call so concurrent calls never share
// mutable generation settings.
func (c *GeminiClient) modelFor(tier ModelTier, asJSON bool) (*genai.GenerativeModel, error) {
	name := c.config.GetModel(tier)
	if name == "" {
		return nil, &Error{Provider: ProviderGemini, Message: "invalid configuration", Cause: fmt.Errorf("%w for tier %s", ErrNoModel, tier)}
	}
	model := c.client.GenerativeModel(name)
	model.SetTemperature(c.config.Temperature)
	model.SetCandidateCount(1)
	if c.config.MaxOutputTokens > 0 {
		model.SetMaxOutputTokens(c.config.MaxOutputTokens)
	}
	if asJSON {
		model.ResponseMIMEType = "application/json"
	}
	return model, nil
}

func (c *GeminiClient) generate(ctx context.Context, prompt string, tier ModelTier, asJSON bool) (string, error) {
	model, err := c.modelFor(tier, asJSON)
	if err != nil {
		return "", err
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			// A blocked answer is an answer: retrying the same prompt gets the same block.
			return "", &Error{Provider: ProviderGemini, Message: "response blocked: " + blocked.Error()}
		}
		return "", classify(ctx, ProviderGemini, "generate request failed", err)
	}
	return responseText(resp)
}

// GenerateContent returns the model's plain text answer.
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.generate(ctx, prompt, tier, false)
}

// GenerateJSON returns the JSON value in the model's answer.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	text, err := c.generate(ctx, prompt, tier, true)
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

func (c *GeminiClient) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// responseText joins the text parts of the first candidate. A response with
// nothing to read is a terminal Error with no cause.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &Error{Provider: ProviderGemini, Message: "empty response"}
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", &Error{Provider: ProviderGemini, Message: fmt.Sprintf("empty response (finish reason %s)", candidate.FinishReason)}
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", &Error{Provider: ProviderGemini, Message: "response has no text"}
	}
	return b.String(), nil
}
