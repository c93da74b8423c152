package chatbot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"ZyroChat/internal/persona"
	"ZyroChat/internal/session"
)

// LineReader reads one line of user input per call
type LineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

// Run starts the plain line-oriented chat on the terminal
func (cb *ChatBot) Run(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	return cb.RunWith(ctx, line, os.Stdout)
}

// RunWith runs the chat loop over an arbitrary line source
func (cb *ChatBot) RunWith(ctx context.Context, in LineReader, out io.Writer) error {
	fmt.Fprintf(out, "=== %s ===\n", persona.Name)
	fmt.Fprintln(out, persona.Tagline)
	fmt.Fprintln(out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(out)

	if !cb.HasSession() {
		fmt.Fprintf(out, "Error: %s\n", cb.Err())
		return nil
	}

	for _, msg := range cb.Messages() {
		printMessage(out, msg)
	}

	for {
		input, err := in.Prompt("You: ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				break
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		in.AppendHistory(input)

		if strings.HasPrefix(input, "/") {
			if cb.handleCommand(input, out) {
				break
			}
			continue
		}

		stream, ok := cb.Submit(ctx, input)
		if !ok {
			continue
		}

		fmt.Fprint(out, "Zyro: ")
		p := &streamPrinter{cb: cb, out: out}
		cb.Consume(stream, p.render)
		if cb.Err() != "" {
			fmt.Fprintf(out, "\nError: %s\n\n", cb.Err())
			continue
		}
		fmt.Fprint(out, "\n\n")
	}

	fmt.Fprintln(out, "Goodbye!")
	return nil
}

// handleCommand handles slash commands and reports whether to quit
func (cb *ChatBot) handleCommand(cmd string, out io.Writer) bool {
	switch strings.Fields(cmd)[0] {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Fprintln(out, "Available commands:")
		fmt.Fprintln(out, "  /quit, /exit - Exit the chat")
		fmt.Fprintln(out, "  /help        - Show this help message")
		return false

	default:
		fmt.Fprintf(out, "Unknown command: %s (try /help)\n", cmd)
		return false
	}
}

// streamPrinter writes only the part of the streaming message not yet shown
type streamPrinter struct {
	cb      *ChatBot
	out     io.Writer
	printed int
}

func (p *streamPrinter) render() {
	if !p.cb.Loading() {
		return
	}
	last, ok := p.cb.conv.Last()
	if !ok || last.Role != session.RoleAssistant {
		return
	}
	if len(last.Content) > p.printed {
		fmt.Fprint(p.out, last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

func printMessage(out io.Writer, msg session.Message) {
	switch msg.Role {
	case session.RoleUser:
		fmt.Fprintf(out, "You: %s\n\n", msg.Content)
	default:
		fmt.Fprintf(out, "Zyro: %s\n\n", msg.Content)
	}
}
