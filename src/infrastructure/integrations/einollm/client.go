// Package einollm adapts hosted chat models to the text-generation capability
// through CloudWeGo Eino.
package einollm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Provider identifies a hosted model vendor
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

type Config struct {
	Provider Provider
	Model    string
	APIKey   string
	// BaseURL points the client at a compatible endpoint
	BaseURL string
	// MaxTokens caps the response length. Anthropic rejects requests without it.
	MaxTokens int
}

const DefaultMaxTokens = 2048

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return DefaultMaxTokens
}

// NewChatModel creates the Eino chat model for cfg
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		maxTokens := cfg.maxTokens()
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			Model:     cfg.Model,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			MaxTokens: &maxTokens,
		})

	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic API key is required")
		}
		conf := &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.maxTokens(),
		}
		if cfg.BaseURL != "" {
			conf.BaseURL = &cfg.BaseURL
		}
		return claude.NewChatModel(ctx, conf)

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s (supported: openai, anthropic)", cfg.Provider)
	}
}

// Client generates text with an Eino chat model
type Client struct {
	chat model.BaseChatModel
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	chat, err := NewChatModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithModel(chat), nil
}

// NewWithModel wraps an existing chat model
func NewWithModel(chat model.BaseChatModel) *Client {
	return &Client{chat: chat}
}

func messages(system, prompt string) []*schema.Message {
	var msgs []*schema.Message
	if strings.TrimSpace(system) != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	return append(msgs, schema.UserMessage(prompt))
}

// Generate returns the complete response for prompt
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.chat.Generate(ctx, messages(system, prompt))
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return "", fmt.Errorf("generate: empty response")
	}
	return resp.Content, nil
}

// GenerateStream yields response chunks as they arrive
func (c *Client) GenerateStream(ctx context.Context, system, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream, err := c.chat.Stream(ctx, messages(system, prompt))
		if err != nil {
			yield("", fmt.Errorf("stream: %w", err))
			return
		}
		defer stream.Close()

		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("recv stream: %w", err))
				return
			}
			if chunk.Content == "" {
				continue
			}
			if !yield(chunk.Content, nil) {
				return
			}
		}
	}
}
