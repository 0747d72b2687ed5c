// Package anthropic implements summary.Backend on the Anthropic Messages API.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	// DefaultMaxTokens bounds the summary length.
	DefaultMaxTokens = 1024

	httpTimeout = 120 * time.Second
)

// Client sends summarization prompts to Claude.
type Client struct {
	client    sdk.Client
	maxTokens int64
}

// New creates a new Claude client with the given API key. Extra options are
// appended after the defaults, so tests can override the base URL.
func New(apiKey string, opts ...option.RequestOption) *Client {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: httpTimeout}),
	}
	return &Client{
		client:    sdk.NewClient(append(base, opts...)...),
		maxTokens: DefaultMaxTokens,
	}
}

// Invoke sends prompt as a single user message and returns the text blocks of
// the reply, concatenated.
func (c *Client) Invoke(ctx context.Context, modelID, prompt string) ([]byte, error) {
	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return []byte(b.String()), nil
}
