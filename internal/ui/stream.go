package ui

import (
	"iter"

	tea "github.com/charmbracelet/bubbletea"

	"ZyroChat/internal/backend"
)

// fragmentMsg delivers one fragment of the reply
type fragmentMsg struct {
	Fragment string
}

// streamErrMsg signals that the stream failed
type streamErrMsg struct {
	Err error
}

// streamDoneMsg signals that the stream ended normally
type streamDoneMsg struct{}

// pump turns a Stream into a chain of tea.Msgs. The next fragment is only
// pulled once Update has applied the previous one, so fragments reach the
// conversation in arrival order.
type pump struct {
	next func() (string, error, bool)
	stop func()
}

func newPump(s backend.Stream) *pump {
	next, stop := iter.Pull2(s)
	return &pump{next: next, stop: stop}
}

// cmd waits for the next fragment on a tea goroutine
func (p *pump) cmd() tea.Cmd {
	return func() tea.Msg {
		fragment, err, ok := p.next()
		if !ok {
			p.stop()
			return streamDoneMsg{}
		}
		if err != nil {
			p.stop()
			return streamErrMsg{Err: err}
		}
		return fragmentMsg{Fragment: fragment}
	}
}
