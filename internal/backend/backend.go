// Package backend creates chat sessions against hosted and local model APIs.
//
// A Session is created once per process with a fixed system instruction and
// keeps the conversation context on its side. Each SendStream call returns a
// Stream: a lazy sequence of text fragments that can be consumed only once.
package backend

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"ZyroChat/internal/config"
)

var (
	// ErrMissingCredential is returned by Create when a hosted backend has no API key
	ErrMissingCredential = errors.New("API key not set")
	// ErrStreamConsumed is yielded when a Stream is ranged over a second time
	ErrStreamConsumed = errors.New("stream already consumed")
)

// Stream yields response fragments in arrival order. A non-nil error ends the stream.
type Stream = iter.Seq2[string, error]

// Options configures a new session
type Options struct {
	SystemInstruction string
}

// Session is a long-lived conversation with a model
type Session interface {
	// SendStream sends text and returns the reply as a single-use fragment stream.
	// Nothing is sent until the stream is consumed.
	SendStream(ctx context.Context, text string) Stream
}

// Factory creates sessions bound to one model
type Factory interface {
	Create(ctx context.Context, model string, opts Options) (Session, error)
}

// NewFactory returns the factory for the configured backend
func NewFactory(cfg config.Config) (Factory, error) {
	switch cfg.Backend {
	case config.BackendGemini:
		return NewGeminiFactory(cfg.APIKey), nil
	case config.BackendOpenAI:
		return NewOpenAIFactory(cfg.APIKey, cfg.BaseURL), nil
	case config.BackendOllama:
		return NewOllamaFactory(cfg.OllamaURL, nil), nil
	case config.BackendAnthropic:
		return NewAnthropicFactory(cfg.APIKey, cfg.BaseURL, nil), nil
	default:
		return nil, fmt.Errorf("%w: %s", config.ErrUnknownBackend, cfg.Backend)
	}
}

// singleUse guards seq so that only the first range over it reaches the backend
func singleUse(seq Stream) Stream {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if !used.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}
		seq(yield)
	}
}
