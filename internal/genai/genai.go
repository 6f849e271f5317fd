// Package genai provides the language-model backed NLU collaborator for
// Bookline using the OpenAI API.
//
// The booking flow depends only on the ClientInterface contract: intent
// classification plus name/email extraction, any of which may come back
// empty. Callers treat empty results as "not provided yet" and re-prompt.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Intent is the coarse classification of a single user turn.
type Intent string

const (
	// IntentBookRequest means the user wants to book an appointment.
	IntentBookRequest Intent = "book_request"
	// IntentCancel means the user wants to stop the conversation.
	IntentCancel Intent = "cancel"
	// IntentOther covers everything else, including unclassifiable input.
	IntentOther Intent = "other"
)

// System prompts for the NLU calls. Wording follows the original booking
// assistant: responses must contain the extracted value and nothing else,
// or NONE when the input carries no such value.
const (
	intentSystemPrompt = "You classify a single message sent to an appointment booking assistant. " +
		"Respond with exactly one word: BOOK if the user wants to book, schedule or ask about an appointment or meeting; " +
		"CANCEL if the user wants to stop, quit or say goodbye; OTHER for anything else."
	nameSystemPrompt = "Extract the person's name from the user input. Your response will only contain the name, nothing else. " +
		"If no name is present, respond with exactly NONE."
	emailSystemPrompt = "Extract the email address from the user input. Your response will only contain the email address, nothing else. " +
		"If no email address is present, respond with exactly NONE."
)

// ClientInterface defines the NLU operations the booking flow depends on.
// Implementations may be model-backed or rule-based; the flow only relies on
// the contract that any call may return an empty result.
type ClientInterface interface {
	// ClassifyIntent classifies what the user wants from one turn.
	ClassifyIntent(ctx context.Context, text string) (Intent, error)

	// ExtractName pulls a person name out of free text, or "" if none.
	ExtractName(ctx context.Context, text string) (string, error)

	// ExtractEmail pulls an email address out of free text, or "" if none.
	ExtractEmail(ctx context.Context, text string) (string, error)
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  openai.ChatModel
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key to use.
func WithAPIKey(key string) Option {
	return func(o *Opts) {
		o.APIKey = key
	}
}

// WithModel overrides the chat model used for NLU calls.
func WithModel(model openai.ChatModel) Option {
	return func(o *Opts) {
		o.Model = model
	}
}

// Client wraps the OpenAI chat completion service behind ClientInterface.
type Client struct {
	client openai.Client
	model  openai.ChatModel
}

// NewClient creates a GenAI client, applying any provided options. Falls
// back to the OPENAI_API_KEY environment variable when no key option is set.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GenAI NewClient: no API key configured")
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}

	slog.Debug("GenAI client created", "model", cfg.Model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// ClassifyIntent classifies a user turn into book/cancel/other.
func (c *Client) ClassifyIntent(ctx context.Context, text string) (Intent, error) {
	raw, err := c.complete(ctx, intentSystemPrompt, text)
	if err != nil {
		slog.Error("GenAI ClassifyIntent failed", "error", err)
		return IntentOther, err
	}
	intent := ParseIntent(raw)
	slog.Debug("GenAI ClassifyIntent succeeded", "intent", intent)
	return intent, nil
}

// ExtractName extracts a person name from the text, or "" when absent.
func (c *Client) ExtractName(ctx context.Context, text string) (string, error) {
	raw, err := c.complete(ctx, nameSystemPrompt, text)
	if err != nil {
		slog.Error("GenAI ExtractName failed", "error", err)
		return "", err
	}
	return normalizeExtraction(raw), nil
}

// ExtractEmail extracts an email address from the text, or "" when absent.
func (c *Client) ExtractEmail(ctx context.Context, text string) (string, error) {
	raw, err := c.complete(ctx, emailSystemPrompt, text)
	if err != nil {
		slog.Error("GenAI ExtractEmail failed", "error", err)
		return "", err
	}
	return normalizeExtraction(raw), nil
}

// complete runs one system+user chat completion and returns the first choice.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

// ParseIntent maps a raw classifier reply onto an Intent. Anything the model
// produces outside the expected vocabulary collapses to IntentOther.
func ParseIntent(raw string) Intent {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "BOOK":
		return IntentBookRequest
	case "CANCEL":
		return IntentCancel
	default:
		return IntentOther
	}
}

// normalizeExtraction trims an extraction reply and maps the NONE marker to
// the empty "not provided" result.
func normalizeExtraction(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.EqualFold(value, "NONE") {
		return ""
	}
	return value
}
