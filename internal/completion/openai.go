package completion

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"

	"github.com/ashureev/agentdesk/internal/domain"
)

// OpenAI calls the Chat Completions API, directly or through Azure.
type OpenAI struct {
	client              *openai.Client
	model               string
	temperature         float64
	maxCompletionTokens int64
}

// NewOpenAI uses api.openai.com. An empty key falls back to OPENAI_API_KEY.
func NewOpenAI(apiKey, model string, opts ...option.RequestOption) *OpenAI {
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if model == "" {
		model = openai.ChatModelGPT4oMini
	}
	client := openai.NewClient(opts...)
	return &OpenAI{client: &client, model: model, temperature: 0.7, maxCompletionTokens: 5000}
}

// NewAzure uses an Azure OpenAI deployment.
func NewAzure(apiKey, endpoint, apiVersion, deployment string) (*OpenAI, error) {
	if apiKey == "" || endpoint == "" || deployment == "" {
		return nil, errors.New("azure provider requires AZURE_OPENAI_API_KEY, AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_DEPLOYMENT_NAME")
	}
	client := openai.NewClient(
		azure.WithEndpoint(endpoint, apiVersion),
		azure.WithAPIKey(apiKey),
	)
	return &OpenAI{client: &client, model: deployment, temperature: 0.7, maxCompletionTokens: 5000}, nil
}

// Complete sends the persona context, history and message.
func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	for _, m := range chatTurns(req.History) {
		if m.Role == domain.RoleAssistant {
			messages = append(messages, openai.AssistantMessage(m.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(m.Content))
	}
	messages = append(messages, openai.UserMessage(req.Message))

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               o.model,
		Temperature:         openai.Float(o.temperature),
		MaxCompletionTokens: openai.Int(o.maxCompletionTokens),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", classifyStatus(apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("%w: openai api error: %w", ErrTransient, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrTransient)
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", ErrContentPolicy
	}
	return choice.Message.Content, nil
}
