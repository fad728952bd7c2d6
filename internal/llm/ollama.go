package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	ollama "github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaClient implements Client against a local Ollama server.
type OllamaClient struct {
	client *ollama.Client
	config *Config
}

// NewOllamaClient connects to the server named by OLLAMA_HOST (default localhost:11434).
func NewOllamaClient(config *Config) (*OllamaClient, error) {
	base := envconfig.Host()
	if base == nil {
		return nil, errors.New("failed to create Ollama client: no host configured")
	}
	return NewOllamaClientWithBase(config, base, nil), nil
}

// NewOllamaClientWithBase connects to an explicit server URL.
func NewOllamaClientWithBase(config *Config, base *url.URL, httpClient *http.Client) *OllamaClient {
	recording := &http.Client{}
	if httpClient != nil {
		*recording = *httpClient
	}
	recording.Transport = statusTransport{next: recording.Transport}
	return &OllamaClient{client: ollama.NewClient(base, recording), config: config}
}

// The Ollama client turns an {"error": ...} body into a plain error and drops
// the HTTP status, so the transport records it on the request's context.
type statusKey struct{}

type statusTransport struct {
	next http.RoundTripper
}

func (t statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.next
	if next == nil {
		next = http.DefaultTransport
	}
	resp, err := next.RoundTrip(req)
	if resp != nil {
		if code, ok := req.Context().Value(statusKey{}).(*int); ok {
			*code = resp.StatusCode
		}
	}
	return resp, err
}

func (c *OllamaClient) generate(ctx context.Context, prompt string, tier ModelTier, format json.RawMessage) (string, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return "", &Error{Provider: ProviderOllama, Message: "invalid configuration", Cause: fmt.Errorf("%w for tier %s", ErrNoModel, tier)}
	}

	stream := false
	var status int
	var response strings.Builder
	err := c.client.Generate(context.WithValue(ctx, statusKey{}, &status), &ollama.GenerateRequest{
		Model:  modelName,
		Prompt: prompt,
		Stream: &stream,
		Format: format,
		Options: c.options(),
	}, func(res ollama.GenerateResponse) error {
		response.WriteString(res.Response)
		return nil
	})
	if err != nil {
		var statusErr ollama.StatusError
		if errors.As(err, &statusErr) {
			status = statusErr.StatusCode
		}
		if status >= http.StatusBadRequest {
			return "", &Error{
				Provider:   ProviderOllama,
				Message:    "generate request failed",
				StatusCode: status,
				Transient:  ctx.Err() == nil && transientHTTPStatus(status),
				Cause:      err,
			}
		}
		return "", classify(ctx, ProviderOllama, "generate request failed", err)
	}

	text := StripThinkBlock(response.String())
	if text == "" {
		return "", &Error{Provider: ProviderOllama, Message: "empty response"}
	}
	return text, nil
}

func (c *OllamaClient) options() map[string]any {
	opts := map[string]any{"temperature": c.config.Temperature}
	if c.config.MaxOutputTokens > 0 {
		opts["num_predict"] = c.config.MaxOutputTokens
	}
	return opts
}

// GenerateContent returns the model's plain text answer.
func (c *OllamaClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	return c.generate(ctx, prompt, tier, nil)
}

// GenerateJSON asks the server for JSON-constrained output.
func (c *OllamaClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	text, err := c.generate(ctx, prompt, tier, json.RawMessage(`"json"`))
	if err != nil {
		return "", err
	}
	return CleanJSONBlock(text), nil
}

func (c *OllamaClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (c *OllamaClient) Close() error {
	return nil
}
