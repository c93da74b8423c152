package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string              `json:"model"`
	Messages []map[string]string `json:"messages"`
	Stream   bool                `json:"stream"`
}

// OllamaResponse is one line of the Ollama /api/chat NDJSON stream
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// OllamaFactory creates sessions on a local Ollama server. No credential is needed.
type OllamaFactory struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaFactory creates a factory for the server at baseURL.
// A nil client means an http.Client without timeout, since replies are streamed.
func NewOllamaFactory(baseURL string, httpClient *http.Client) *OllamaFactory {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaFactory{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Create starts a session whose history begins with the system instruction
func (f *OllamaFactory) Create(ctx context.Context, model string, opts Options) (Session, error) {
	if f.baseURL == "" {
		return nil, fmt.Errorf("ollama URL not set")
	}
	s := &ollamaSession{
		factory: f,
		model:   model,
	}
	if opts.SystemInstruction != "" {
		s.history = append(s.history, map[string]string{
			"role":    "system",
			"content": opts.SystemInstruction,
		})
	}
	return s, nil
}

type ollamaSession struct {
	factory *OllamaFactory
	model   string
	history []map[string]string
}

// SendStream records the turn in the history only when the reply completed
func (s *ollamaSession) SendStream(ctx context.Context, text string) Stream {
	return singleUse(func(yield func(string, error) bool) {
		userMsg := map[string]string{"role": "user", "content": text}

		messages := make([]map[string]string, 0, len(s.history)+1)
		messages = append(messages, s.history...)
		messages = append(messages, userMsg)

		jsonData, err := json.Marshal(OllamaRequest{
			Model:    s.model,
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			yield("", fmt.Errorf("failed to marshal request: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.factory.baseURL+"/api/chat", bytes.NewBuffer(jsonData))
		if err != nil {
			yield("", fmt.Errorf("failed to create request: %w", err))
			return
		}
		req.Header.Set("content-type", "application/json")

		resp, err := s.factory.httpClient.Do(req)
		if err != nil {
			yield("", fmt.Errorf("failed to send request (is Ollama running?): %w", err))
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			yield("", fmt.Errorf("API error: %s - %s", resp.Status, strings.TrimSpace(string(body))))
			return
		}

		var reply strings.Builder
		dec := json.NewDecoder(resp.Body)
		for {
			var chunk OllamaResponse
			if err := dec.Decode(&chunk); err != nil {
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				yield("", fmt.Errorf("failed to read stream: %w", err))
				return
			}
			if chunk.Error != "" {
				yield("", fmt.Errorf("ollama error: %s", chunk.Error))
				return
			}
			if chunk.Message.Content != "" {
				reply.WriteString(chunk.Message.Content)
				if !yield(chunk.Message.Content, nil) {
					return
				}
			}
			if chunk.Done {
				break
			}
		}

		s.history = append(s.history, userMsg, map[string]string{
			"role":    "assistant",
			"content": reply.String(),
		})
	})
}
