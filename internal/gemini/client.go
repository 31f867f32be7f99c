package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/MikeSquared-Agency/sensei/internal/llm"
)

const defaultModel = "gemini-1.5-flash"

// Client generates text with Google Gemini.
type Client struct {
	client *genai.Client
	model  string
}

var (
	_ llm.Generator    = (*Client)(nil)
	_ llm.ModelChecker = (*Client)(nil)
)

func NewClient(ctx context.Context, apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{client: cl, model: model}, nil
}

func (c *Client) Model() string {
	return c.model
}

// SupportsModel reports whether model is a Gemini model id, with or without
// the "models/" prefix.
func (c *Client) SupportsModel(model string) bool {
	return strings.HasPrefix(strings.TrimPrefix(model, "models/"), "gemini-")
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *Client) GenerateText(ctx context.Context, req llm.Request) (string, error) {
	name := req.Model
	if name == "" {
		name = c.model
	}
	m := c.client.GenerativeModel(name)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.Temperature != nil {
		m.SetTemperature(float32(*req.Temperature))
	}
	if req.MaxTokens > 0 {
		m.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	resp, err := m.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response content")
	}
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
