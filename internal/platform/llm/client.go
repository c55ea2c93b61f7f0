package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wisenet/wisenet-backend/internal/platform/envutil"
	"github.com/wisenet/wisenet-backend/internal/platform/httpx"
	"github.com/wisenet/wisenet-backend/internal/platform/logger"
)

// Client is the language-model interface used by the graph engines. The
// model name selects a provider route (see registry.go); every call carries
// its own timeout via ctx.
type Client interface {
	Complete(ctx context.Context, prompt, modelName string) (string, error)
	CompleteJSON(ctx context.Context, prompt, modelName string) (json.RawMessage, error)
}

type client struct {
	log        *logger.Logger
	registry   *Registry
	httpClient *http.Client
	maxRetries int

	temperature float64
	topP        float64
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("llm: logger required")
	}

	timeoutSec := envutil.Int("LLM_HTTP_TIMEOUT_SECONDS", 180)

	return &client{
		log:         log.With("client", "LLMClient"),
		registry:    NewRegistryFromEnv(),
		httpClient:  &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries:  envutil.Int("LLM_MAX_RETRIES", 3),
		temperature: envutil.Float("LLM_TEMPERATURE", 0.7),
		topP:        envutil.Float("LLM_TOP_P", 0.5),
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	TopP        float64       `json:"top_p,omitempty"`
	N           int           `json:"n,omitempty"`
}

type chatCompletionsResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type llmHTTPError struct {
	StatusCode int
	Body       string
}

func (e *llmHTTPError) Error() string {
	return fmt.Sprintf("llm http error (%d): %s", e.StatusCode, e.Body)
}

func (e *llmHTTPError) HTTPStatusCode() int { return e.StatusCode }

func (c *client) Complete(ctx context.Context, prompt, modelName string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", nil
	}

	route := c.registry.Resolve(modelName)
	req := chatCompletionsRequest{
		Model:       route.ModelID,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
		TopP:        c.topP,
		N:           1,
	}

	var resp chatCompletionsResponse
	if err := c.do(ctx, route, "/v1/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *client) CompleteJSON(ctx context.Context, prompt, modelName string) (json.RawMessage, error) {
	text, err := c.Complete(ctx, prompt, modelName)
	if err != nil {
		return nil, err
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *client) do(ctx context.Context, route Route, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, route, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("llm decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			return err
		}

		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("LLM request retrying",
			"provider", route.Provider,
			"model", route.ModelID,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

func (c *client) doOnce(ctx context.Context, route Route, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, route.BaseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	if route.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+route.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &llmHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}
