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

// OpenAIAdapter calls an OpenAI-compatible Chat Completions endpoint.
// Works against the public API and compatible gateways.
type OpenAIAdapter struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewOpenAIAdapter creates an OpenAI adapter. An empty endpoint uses the
// public API.
func NewOpenAIAdapter(endpoint, model, apiKey string, client *http.Client) *OpenAIAdapter {
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if client == nil {
		client = &http.Client{}
	}
	return &OpenAIAdapter{endpoint: endpoint, model: model, apiKey: apiKey, client: client}
}

// Name returns the adapter name.
func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete sends the prompt as a single user message.
func (a *OpenAIAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	body, _ := sjson.Set("{}", "model", a.model)
	body, _ = sjson.Set(body, "max_tokens", 300)
	body, _ = sjson.Set(body, "messages.0.role", "user")
	body, _ = sjson.Set(body, "messages.0.content", prompt)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(body))
	if err != nil {
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

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

	text := gjson.GetBytes(respBody, "choices.0.message.content").String()
	if strings.TrimSpace(text) == "" {
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: errEmptyCompletion}
	}
	return text, nil
}

var _ Adapter = (*OpenAIAdapter)(nil)
