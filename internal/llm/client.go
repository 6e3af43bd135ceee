// Package llm wraps the Gemini API for chat generation, structured JSON
// generation, and retrieval embeddings.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/marketlens/marketlens/internal/config"
)

// EmbeddingDims is the dimensionality of gemini-embedding-001 vectors.
const EmbeddingDims = 768

// Role identifies the author of a chat message.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a conversation sent to the model.
type ChatMessage struct {
	Role    string
	Content string
}

// Generator produces model completions. Implemented by Client and by
// test fakes.
type Generator interface {
	Generate(ctx context.Context, system string, msgs []ChatMessage) (string, error)
	GenerateJSON(ctx context.Context, system string, msgs []ChatMessage) (string, error)
}

// Embedder produces retrieval embeddings.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}

// Client talks to the Gemini API.
type Client struct {
	client     *genai.Client
	model      string
	embedModel string
	logger     *slog.Logger
}

// New creates a Gemini client from configuration.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Client{
		client:     client,
		model:      cfg.Model,
		embedModel: cfg.EmbeddingModel,
		logger:     logger,
	}, nil
}

// Generate runs one chat completion with an optional system instruction.
func (c *Client) Generate(ctx context.Context, system string, msgs []ChatMessage) (string, error) {
	return c.generate(ctx, system, msgs, "")
}

// GenerateJSON runs a completion constrained to a JSON response body.
func (c *Client) GenerateJSON(ctx context.Context, system string, msgs []ChatMessage) (string, error) {
	return c.generate(ctx, system, msgs, "application/json")
}

// buildContents converts chat messages into API content turns. Assistant
// messages map to the model role, everything else to the user role.
func buildContents(msgs []ChatMessage) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return contents
}

func (c *Client) generate(ctx context.Context, system string, msgs []ChatMessage, mimeType string) (string, error) {
	contents := buildContents(msgs)

	cfg := &genai.GenerateContentConfig{}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if mimeType != "" {
		cfg.ResponseMIMEType = mimeType
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("generation failed: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned empty response")
	}
	return text, nil
}

// EmbedQuery embeds text for use as a search query.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, "RETRIEVAL_QUERY")
}

// EmbedDocument embeds text for storage in the retrieval index.
func (c *Client) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, text, "RETRIEVAL_DOCUMENT")
}

func (c *Client) embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := c.client.Models.EmbedContent(ctx,
		c.embedModel,
		contents,
		&genai.EmbedContentConfig{
			TaskType: taskType,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return result.Embeddings[0].Values, nil
}
