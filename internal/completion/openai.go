package completion

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIConfig configures the OpenAI chat completions gateway.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a proxy or a test server.
	BaseURL string
	// HTTPClient overrides the transport; nil uses the SDK default.
	HTTPClient *http.Client
}

// OpenAI calls the chat completions endpoint through the official SDK.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI builds the gateway. SDK retries are disabled.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: empty api key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &OpenAI{client: openai.NewClient(opts...)}, nil
}

// Complete sends the system prompt followed by the history and returns the
// first choice's content.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", fail("openai", err)
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: openAIMessages(req),
	}
	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fail("openai", err)
	}
	if resp == nil || len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fail("openai", errEmpty)
	}
	return resp.Choices[0].Message.Content, nil
}

func openAIMessages(req Request) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+1)
	if req.SystemPrompt != "" {
		out = append(out, openai.SystemMessage(req.SystemPrompt))
	}
	for _, t := range req.History {
		switch {
		case t.Role == RoleAssistant:
			out = append(out, openai.AssistantMessage(t.Text))
		case t.Image != nil:
			parts := []openai.ChatCompletionContentPartUnionParam{}
			if t.Text != "" {
				parts = append(parts, openai.TextContentPart(t.Text))
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: t.Image.DataURL(),
			}))
			out = append(out, openai.UserMessage(parts))
		default:
			out = append(out, openai.UserMessage(t.Text))
		}
	}
	return out
}
