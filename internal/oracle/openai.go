package oracle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/itsmostafa/pagetree/internal/logger"
)

const defaultModel = "gpt-4o-mini"

// OpenAIConfig holds configuration for the OpenAI oracle.
type OpenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string        // Optional (tests, proxies)
	Attempts   int           // Total attempts per request, including the first
	RetryDelay time.Duration // Base delay between attempts
	Timeout    time.Duration // Per-request timeout
	HTTPClient *http.Client  // Optional (tests)
	Logger     *logger.Logger
}

// OpenAI implements Oracle with the official OpenAI SDK. Transient failures
// (timeouts, rate limits, server errors) are retried; everything else is
// returned to the caller on the first attempt.
type OpenAI struct {
	client     openai.Client
	model      string
	attempts   uint
	retryDelay time.Duration
	timeout    time.Duration
	log        *logger.Logger
}

// NewOpenAI creates an OpenAI oracle. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAI{
		client:     openai.NewClient(opts...),
		model:      cfg.Model,
		attempts:   uint(cfg.Attempts),
		retryDelay: cfg.RetryDelay,
		timeout:    cfg.Timeout,
		log:        logger.OrNop(cfg.Logger),
	}, nil
}

// Model returns the model identifier.
func (o *OpenAI) Model() string {
	return o.model
}

// Ask sends the request as a single user message at temperature 0.
func (o *OpenAI) Ask(ctx context.Context, req Request) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt()),
		},
		Temperature: openai.Float(0),
	}

	return retry.DoWithData(
		func() (string, error) {
			resp, err := o.client.Chat.Completions.New(ctx, params)
			if err != nil {
				return "", err
			}
			if len(resp.Choices) == 0 {
				return "", errNoChoices
			}
			return resp.Choices[0].Message.Content, nil
		},
		retry.Context(ctx),
		retry.Attempts(o.attempts),
		retry.Delay(o.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			o.log.Warn("oracle request failed, retrying", "attempt", n+1, "model", o.model, "error", err)
		}),
	)
}

var errNoChoices = errors.New("no choices in response")

// isTransient reports whether err is worth another attempt.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errNoChoices) {
		return true
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests ||
			apiErr.StatusCode == http.StatusRequestTimeout ||
			apiErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
