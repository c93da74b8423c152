package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIFactory creates sessions on OpenAI or any OpenAI-compatible API
type OpenAIFactory struct {
	apiKey  string
	baseURL string
}

// NewOpenAIFactory creates a factory. An empty baseURL means api.openai.com.
func NewOpenAIFactory(apiKey, baseURL string) *OpenAIFactory {
	return &OpenAIFactory{apiKey: apiKey, baseURL: baseURL}
}

// Create builds a client and a session seeded with the system message
func (f *OpenAIFactory) Create(ctx context.Context, model string, opts Options) (Session, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("%w: API_KEY or OPENAI_API_KEY is required", ErrMissingCredential)
	}

	cfg := openai.DefaultConfig(f.apiKey)
	if f.baseURL != "" {
		cfg.BaseURL = strings.TrimRight(f.baseURL, "/")
	}

	s := &openAISession{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
	if opts.SystemInstruction != "" {
		s.history = append(s.history, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: opts.SystemInstruction,
		})
	}
	return s, nil
}

type openAISession struct {
	client  *openai.Client
	model   string
	history []openai.ChatCompletionMessage
}

func (s *openAISession) SendStream(ctx context.Context, text string) Stream {
	return singleUse(func(yield func(string, error) bool) {
		userMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text}

		messages := make([]openai.ChatCompletionMessage, 0, len(s.history)+1)
		messages = append(messages, s.history...)
		messages = append(messages, userMsg)

		stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:    s.model,
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to open stream: %w", err))
			return
		}
		defer stream.Close()

		var reply strings.Builder
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield("", fmt.Errorf("failed to read stream: %w", err))
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			fragment := resp.Choices[0].Delta.Content
			if fragment == "" {
				continue
			}
			reply.WriteString(fragment)
			if !yield(fragment, nil) {
				return
			}
		}

		s.history = append(s.history, userMsg, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: reply.String(),
		})
	})
}
