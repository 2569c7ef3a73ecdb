package providers

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// BedrockAdapter invokes an Anthropic model through AWS Bedrock with SigV4
// request signing. Credentials come from the default AWS credential chain.
type BedrockAdapter struct {
	region string
	model  string
	awsCfg aws.Config
	signer *v4.Signer
	client *http.Client
}

// NewBedrockAdapter creates a Bedrock adapter for the given region/model.
func NewBedrockAdapter(ctx context.Context, region, model string, client *http.Client) (*BedrockAdapter, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	if client == nil {
		client = &http.Client{}
	}
	return &BedrockAdapter{
		region: region,
		model:  model,
		awsCfg: awsCfg,
		signer: v4.NewSigner(),
		client: client,
	}, nil
}

// Name returns the adapter name.
func (a *BedrockAdapter) Name() string { return "bedrock" }

// Complete invokes the model and returns the first text block.
func (a *BedrockAdapter) Complete(ctx context.Context, prompt string) (string, error) {
	body, _ := sjson.Set("{}", "anthropic_version", "bedrock-2023-05-31")
	body, _ = sjson.Set(body, "max_tokens", 300)
	body, _ = sjson.Set(body, "messages.0.role", "user")
	body, _ = sjson.Set(body, "messages.0.content", prompt)

	endpoint := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com/model/%s/invoke",
		a.region, url.PathEscape(a.model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(body)))
	if err != nil {
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	creds, err := a.awsCfg.Credentials.Retrieve(ctx)
	if err != nil {
		// Credential failures are configuration problems, not transient.
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: err}
	}
	payloadHash := sha256.Sum256([]byte(body))
	if err := a.signer.SignHTTP(ctx, creds, req, hex.EncodeToString(payloadHash[:]),
		"bedrock", a.region, time.Now()); err != nil {
		return "", &Error{Kind: KindUnknown, Provider: a.Name(), Err: err}
	}

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
		detail := gjson.GetBytes(respBody, "message").String()
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

var _ Adapter = (*BedrockAdapter)(nil)
