package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"

	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const defaultTimeout = 30 * time.Second

// ErrEmptyResponse is returned when the model produced no usable choice.
var ErrEmptyResponse = errors.New("empty model response")

// Options configures the OpenAI-compatible client.
type Options struct {
	APIKey   string
	Endpoint string
	Timeout  time.Duration
}

// Client implements ports.ChatClient on top of the OpenAI chat completions API.
// Calls are never retried here; callers decide what a failure means.
type Client struct {
	client  openai.Client
	timeout time.Duration
	logger  *slog.Logger
}

var _ ports.ChatClient = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(opts Options, logger *slog.Logger) *Client {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.Endpoint != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.Endpoint))
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		client:  openai.NewClient(reqOpts...),
		timeout: timeout,
		logger:  logging.OrDiscard(logger),
	}
}

// CompleteJSON asks for a JSON object and returns the raw message content.
// Content that is not valid JSON is reported as an error.
func (c *Client) CompleteJSON(ctx context.Context, req ports.ChatRequest) ([]byte, error) {
	content, err := c.complete(ctx, req, true)
	if err != nil {
		return nil, err
	}
	raw := []byte(stripCodeFence(content))
	if !json.Valid(raw) {
		return nil, fmt.Errorf("model returned malformed json (%d bytes)", len(raw))
	}
	return raw, nil
}

// CompleteText returns the trimmed free-text answer.
func (c *Client) CompleteText(ctx context.Context, req ports.ChatRequest) (string, error) {
	content, err := c.complete(ctx, req, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

func (c *Client) complete(ctx context.Context, req ports.ChatRequest, jsonMode bool) (string, error) {
	if c == nil {
		return "", fmt.Errorf("llm client is nil")
	}
	if strings.TrimSpace(req.Model) == "" {
		return "", fmt.Errorf("llm request has no model")
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(req.Prompt),
					},
				},
			},
		},
		Temperature: openai.Float(req.Temperature),
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	started := time.Now()
	response, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	c.logger.Debug("completion done", "model", req.Model, "json", jsonMode, "elapsed", time.Since(started))

	if len(response.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	content := response.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// stripCodeFence removes a ```json fence some models wrap around JSON output.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
