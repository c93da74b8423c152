package backend

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiFactory creates chat sessions on the Gemini API
type GeminiFactory struct {
	apiKey string
}

// NewGeminiFactory creates a factory; the key is checked when a session is created
func NewGeminiFactory(apiKey string) *GeminiFactory {
	return &GeminiFactory{apiKey: apiKey}
}

// Create opens a Gemini chat configured with the system instruction
func (f *GeminiFactory) Create(ctx context.Context, model string, opts Options) (Session, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("%w: API_KEY or GEMINI_API_KEY is required", ErrMissingCredential)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  f.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	var genCfg *genai.GenerateContentConfig
	if opts.SystemInstruction != "" {
		genCfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(opts.SystemInstruction, genai.RoleUser),
		}
	}

	chat, err := client.Chats.Create(ctx, model, genCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	return &geminiSession{chat: chat}, nil
}

type geminiSession struct {
	chat *genai.Chat
}

// SendStream relies on genai.Chat to record the turn in its history
func (s *geminiSession) SendStream(ctx context.Context, text string) Stream {
	return singleUse(func(yield func(string, error) bool) {
		for resp, err := range s.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				yield("", fmt.Errorf("gemini stream failed: %w", err))
				return
			}
			fragment := resp.Text()
			if fragment == "" {
				continue
			}
			if !yield(fragment, nil) {
				return
			}
		}
	})
}
