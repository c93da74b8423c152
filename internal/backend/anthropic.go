package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com/v1"
	anthropicVersion    = "2023-06-01"
	anthropicMaxTokens  = 4096
)

// AnthropicRequest represents the request body for Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

// AnthropicMessage represents a message in the conversation
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicEvent is the data payload of one server-sent event
type AnthropicEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// AnthropicFactory creates sessions on the Anthropic Messages API
type AnthropicFactory struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewAnthropicFactory creates a factory. An empty baseURL means api.anthropic.com.
func NewAnthropicFactory(apiKey, baseURL string, httpClient *http.Client) *AnthropicFactory {
	if baseURL == "" {
		baseURL = defaultAnthropicURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &AnthropicFactory{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Create starts a session; the system instruction travels with every request
func (f *AnthropicFactory) Create(ctx context.Context, model string, opts Options) (Session, error) {
	if f.apiKey == "" {
		return nil, fmt.Errorf("%w: API_KEY or ANTHROPIC_API_KEY is required", ErrMissingCredential)
	}
	return &anthropicSession{
		factory: f,
		model:   model,
		system:  opts.SystemInstruction,
	}, nil
}

type anthropicSession struct {
	factory *AnthropicFactory
	model   string
	system  string
	history []AnthropicMessage
}

// SendStream records the turn in the history only after message_stop
func (s *anthropicSession) SendStream(ctx context.Context, text string) Stream {
	return singleUse(func(yield func(string, error) bool) {
		userMsg := AnthropicMessage{Role: "user", Content: text}

		messages := make([]AnthropicMessage, 0, len(s.history)+1)
		messages = append(messages, s.history...)
		messages = append(messages, userMsg)

		jsonData, err := json.Marshal(AnthropicRequest{
			Model:     s.model,
			MaxTokens: anthropicMaxTokens,
			System:    s.system,
			Messages:  messages,
			Stream:    true,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to marshal request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.factory.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			yield("", fmt.Errorf("failed to create request: %w", err))
			return
		}
		req.Header.Set("content-type", "application/json")
		req.Header.Set("x-api-key", s.factory.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)
		req.Header.Set("accept", "text/event-stream")

		resp, err := s.factory.httpClient.Do(req)
		if err != nil {
			yield("", fmt.Errorf("failed to send request: %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			yield("", fmt.Errorf("API error: %s - %s", resp.Status, strings.TrimSpace(string(body))))
			return
		}

		var reply strings.Builder
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			data, ok := strings.CutPrefix(scanner.Text(), "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "" {
				continue
			}

			var evt AnthropicEvent
			if err := json.Unmarshal([]byte(data), &evt); err != nil {
				yield("", fmt.Errorf("failed to decode event: %w", err))
				return
			}

			switch {
			case evt.Error != nil:
				yield("", fmt.Errorf("anthropic error: %s", evt.Error.Message))
				return
			case evt.Type == "content_block_delta" && evt.Delta != nil && evt.Delta.Text != "":
				reply.WriteString(evt.Delta.Text)
				if !yield(evt.Delta.Text, nil) {
					return
				}
			case evt.Type == "message_stop":
				s.history = append(s.history, userMsg, AnthropicMessage{
					Role:    "assistant",
					Content: reply.String(),
				})
				return
			}
		}

		err = scanner.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		yield("", fmt.Errorf("failed to read stream: %w", err))
	})
}
