package completion

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// GeminiConfig configures the Gemini API gateway.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini calls generateContent through the google.golang.org/genai SDK.
type Gemini struct {
	client *genai.Client
}

// NewGemini builds the gateway against the Gemini API backend.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: empty api key")
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: cfg.BaseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &Gemini{client: c}, nil
}

// Complete sends the history as contents with the system prompt as the
// system instruction.
func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", fail("gemini", err)
	}
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxOutputTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, geminiContents(req.History), cfg)
	if err != nil {
		return "", fail("gemini", err)
	}
	text := ""
	if resp != nil {
		text = resp.Text()
	}
	if strings.TrimSpace(text) == "" {
		return "", fail("gemini", errEmpty)
	}
	return text, nil
}

func geminiContents(history []Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(history))
	for _, t := range history {
		role := genai.RoleUser
		if t.Role == RoleAssistant {
			role = genai.RoleModel
		}
		parts := make([]*genai.Part, 0, 2)
		if t.Text != "" {
			parts = append(parts, &genai.Part{Text: t.Text})
		}
		if t.Image != nil {
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{
				MIMEType: t.Image.ContentType,
				Data:     t.Image.Data,
			}})
		}
		if len(parts) == 0 {
			parts = append(parts, &genai.Part{Text: ""})
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}
