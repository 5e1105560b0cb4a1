package generation

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/samcharles93/precis/internal/tokenizer"
)

const summarizeInstruction = "Summarize the following text in a few sentences. " +
	"Keep names, numbers and dates. Reply with the summary only."

// openAIModel adapts an OpenAI-compatible chat endpoint to the token-level
// Model contract: input ids are decoded to text and the reply is encoded
// back with the model's own tokenizer.
type openAIModel struct {
	client *openai.Client
	model  string
	tok    tokenizer.Tokenizer
}

func openOpenAI(cfg Config, tok tokenizer.Tokenizer) (*openAIModel, error) {
	if tok == nil {
		return nil, fmt.Errorf("generation: openai backend needs a tokenizer")
	}
	chatModel := strings.TrimSpace(cfg.ChatModel)
	if chatModel == "" {
		chatModel = openai.GPT4oMini
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		clientCfg.BaseURL = strings.TrimRight(endpoint, "/")
	}
	clientCfg.HTTPClient = cfg.httpClient()
	return &openAIModel{
		client: openai.NewClientWithConfig(clientCfg),
		model:  chatModel,
		tok:    tok,
	}, nil
}

func (m *openAIModel) Generate(ctx context.Context, input tokenizer.Encoding, opts Options) ([]int, error) {
	text, err := m.tok.Decode(input.IDs, tokenizer.DecodeOptions{SkipSpecialTokens: true})
	if err != nil {
		return nil, fmt.Errorf("generation: decode input: %w", err)
	}

	resp, err := m.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: m.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizeInstruction},
			{Role: openai.ChatMessageRoleUser, Content: strings.TrimSpace(text)},
		},
		MaxTokens:   opts.MaxLength,
		N:           opts.NumBeams,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("generation: chat completion returned no choices")
	}

	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	enc, err := m.tok.Encode(reply, tokenizer.EncodeOptions{
		MaxLength:        opts.MaxLength,
		Truncation:       true,
		AddSpecialTokens: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generation: encode reply: %w", err)
	}
	return enc.IDs, nil
}

func (m *openAIModel) Close() error { return nil }
