package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"exambank/internal/config"
)

var (
	ErrNoResponse    = errors.New("no response from LLM")
	ErrUnparsable    = errors.New("LLM response does not match the requested type")
	ErrNotConfigured = errors.New("LLM client is not configured")
)

// plainOutput is prepended to every system prompt; answers are consumed by
// code, not read by people.
const plainOutput = "DO AS YOU ARE TOLD AND RESPOND ONLY WITH WHAT IS ASKED FROM YOU. " +
	"DO NOT EXPLAIN OR SAY WHAT YOU ARE DOING (e.g. here is the..., below is..., sure here is..., etc.). " +
	"DO NOT WRITE ANY SYMBOLS LIKE - OR \\n OR CHANGE LETTER FORMATTING WITH ** AND SIMILAR. " +
	"YOUR ANSWER IS READ BY A TEXT PROCESSING PROGRAM SO THE TEXT SHOULD BE PLAIN. "

// Prompter is the part of the client the pipeline depends on.
type Prompter interface {
	Prompt(ctx context.Context, req Request) (Response, error)
}

// Client is an OpenAI-compatible chat completions client.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
	log         *zap.Logger
}

// NewClient creates a client from config.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.APIKey == "" || cfg.Model == "" {
		return nil, ErrNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
		log:         logger.Named("llm"),
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream"`
	Messages    []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Prompt sends one system + user exchange and parses the reply into the
// requested response type. MaxLen bounds the answer in characters; roughly
// four characters fit in a token.
func (c *Client) Prompt(ctx context.Context, req Request) (Response, error) {
	rid := uuid.New().String()
	start := time.Now()

	maxTokens := req.MaxLen / 4
	if maxTokens < 1 {
		maxTokens = 1
	}

	c.log.Info("llm.prompt.request",
		zap.String("req_id", rid),
		zap.String("model", c.model),
		zap.String("type", string(req.Type)),
		zap.Int("max_tokens", maxTokens),
		zap.Int("text_len", len(req.User)),
	)

	body := chatRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   maxTokens,
		Messages: []chatMessage{
			{Role: "system", Content: plainOutput + req.System},
			{Role: "user", Content: req.User},
		},
	}

	raw, err := c.post(ctx, body)
	if err != nil {
		c.log.Error("llm.prompt.http_error",
			zap.String("req_id", rid), zap.Error(err),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
		return Response{}, err
	}

	var cc chatResponse
	if err := json.Unmarshal(raw, &cc); err != nil {
		return Response{}, fmt.Errorf("decode chat response: %w", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("llm.prompt.no_choices", zap.String("req_id", rid))
		return Response{}, ErrNoResponse
	}

	content := strings.TrimSpace(cc.Choices[0].Message.Content)
	resp, err := Parse(req.Type, content)
	if err != nil {
		c.log.Warn("llm.prompt.unparsable",
			zap.String("req_id", rid), zap.String("content", content), zap.Error(err))
		return Response{}, err
	}

	c.log.Info("llm.prompt.ok",
		zap.String("req_id", rid),
		zap.Int("prompt_tokens", cc.Usage.PromptTokens),
		zap.Int("completion_tokens", cc.Usage.CompletionTokens),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return resp, nil
}

func (c *Client) post(ctx context.Context, body chatRequest) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect to LLM provider: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read LLM response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		detail := string(respBody)
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		}
		return nil, fmt.Errorf("LLM provider returned %d: %s", resp.StatusCode, detail)
	}
	return respBody, nil
}
