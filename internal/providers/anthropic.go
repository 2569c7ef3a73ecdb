package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const anthropicVersion = "2023-06-01"

// AnthropicAdapter calls the Anthropic Messages API.
type AnthropicAdapter struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewAnthropicAdapter creates an Anthropic adapter. An empty endpoint uses
// the public API.
func NewAnthropicAdapter(endpoint, model, apiKey string, client *http.Client) *AnthropicAdapter {
	if endpoint == "" {
		endpoint = "https://api.anthropic.com/v1/messages"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &AnthropicAdapter{endpoint: endpoint, model: model, apiKey: apiKey, client: client}
}

// Name returns the adapter name.
func (a *AnthropicAdapter) Name() string { return "anthropic" }

// Complete sends the prompt as a single user message and returns the first
// text block of the response.
func (a *AnthropicAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	body, _ := sjson.Set("{}", "model", a.model)
	body, _ = sjson.Set(body, "max_tokens", 300)
	body, _ = sjson.Set(body, "messages.0.role", "user")
	body, _ = sjson.Set(body, "messages.0.content", prompt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		return "", wrapErr(a.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", wrapErr(a.Name(), err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := gjson.GetBytes(respBody, "error.message").String()
		return "", &Error{
			Kind: classifyStatus(resp.StatusCode), Provider: a.Name(),
			Status: resp.StatusCode, Err: fmt.Errorf("upstream: %s", detail),
		}
	}

	text := gjson.GetBytes(respBody, "content.0.text").String()
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: errEmptyCompletion}
	}
	return text, nil
}

// maxResponseBytes bounds upstream response reads.
const maxResponseBytes = 1 * 1024 * 1024

var errEmptyCompletion = fmt.Errorf("empty completion")

var _ Adapter = (*AnthropicAdapter)(nil)
