// Package llm completes chat conversations through an OpenAI-compatible API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("hierctx.llm")

var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid llm configuration")

	// ErrEmptyResponse is returned when the model produced no choices.
	ErrEmptyResponse = errors.New("llm returned no completion")
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completer produces the assistant's next message.
type Completer interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Config configures the chat model.
type Config struct {
	// BaseURL of an OpenAI-compatible API. Empty uses api.openai.com.
	BaseURL string `koanf:"base_url"`

	Model  string `koanf:"model"`
	APIKey string `koanf:"api_key"`

	Temperature float64 `koanf:"temperature"`
	MaxTokens   int     `koanf:"max_tokens"`

	// RateLimit is the sustained number of requests per second.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`

	Timeout time.Duration `koanf:"timeout"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.RateLimit == 0 {
		c.RateLimit = 2
	}
	if c.Burst == 0 {
		c.Burst = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be in [0, 2], got %v", ErrInvalidConfig, c.Temperature)
	}
	if c.RateLimit < 0 || c.Burst < 0 {
		return fmt.Errorf("%w: rate limit and burst must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ChatModel is a Completer backed by langchaingo's OpenAI client.
type ChatModel struct {
	model   llms.Model
	config  Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// New creates a chat model.
func New(cfg Config, logger *zap.Logger) (*ChatModel, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	token := cfg.APIKey
	if token == "" {
		token = "placeholder"
	}
	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}
	return NewWithModel(model, cfg, logger), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, cfg Config, logger *zap.Logger) *ChatModel {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	return &ChatModel{
		model:   model,
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:  logger,
	}
}

// Complete sends messages and returns the first choice's content.
func (m *ChatModel) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, span := tracer.Start(ctx, "ChatModel.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", m.config.Model),
		attribute.Int("messages", len(messages)),
	)

	if err := m.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.TextParts(chatRole(msg.Role), msg.Content))
	}
	opts := []llms.CallOption{llms.WithTemperature(m.config.Temperature)}
	if m.config.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(m.config.MaxTokens))
	}

	start := time.Now()
	resp, err := m.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("generating completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, "empty response")
		return "", ErrEmptyResponse
	}

	m.logger.Debug("completion generated",
		zap.String("model", m.config.Model),
		zap.Int("messages", len(messages)),
		zap.Duration("duration", time.Since(start)),
	)
	span.SetStatus(codes.Ok, "completed")
	return resp.Choices[0].Content, nil
}

func chatRole(r Role) schema.ChatMessageType {
	switch r {
	case RoleSystem:
		return schema.ChatMessageTypeSystem
	case RoleAssistant:
		return schema.ChatMessageTypeAI
	default:
		return schema.ChatMessageTypeHuman
	}
}
