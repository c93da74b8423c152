package chatbot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ZyroChat/internal/backend"
	"ZyroChat/internal/persona"
	"ZyroChat/internal/session"
	"ZyroChat/internal/telemetry"
)

func TestMain(m *testing.M) {
	// started by the opencensus dependency of the genai client at init
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// script is one scripted reply: fragments followed by an optional error
type script struct {
	fragments []string
	err       error
}

type fakeSession struct {
	replies []script
	sent    []string
}

func (s *fakeSession) SendStream(_ context.Context, text string) backend.Stream {
	s.sent = append(s.sent, text)
	var reply script
	if len(s.replies) > 0 {
		reply = s.replies[0]
		s.replies = s.replies[1:]
	}
	return func(yield func(string, error) bool) {
		for _, f := range reply.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if reply.err != nil {
			yield("", reply.err)
		}
	}
}

type fakeFactory struct {
	session *fakeSession
	err     error
	model   string
	opts    backend.Options
}

func (f *fakeFactory) Create(_ context.Context, model string, opts backend.Options) (backend.Session, error) {
	f.model = model
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func newBot(t *testing.T, replies ...script) (*ChatBot, *fakeSession) {
	t.Helper()
	sess := &fakeSession{replies: replies}
	cb := New(context.Background(), &fakeFactory{session: sess}, Options{Model: "test-model"})
	require.True(t, cb.HasSession())
	return cb, sess
}

func roles(msgs []session.Message) []session.Role {
	out := make([]session.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func TestNewPassesModelAndInstruction(t *testing.T) {
	f := &fakeFactory{session: &fakeSession{}}
	cb := New(context.Background(), f, Options{
		Model:             "gemini-2.5-flash",
		SystemInstruction: persona.SystemInstruction,
		Greeting:          persona.Greeting,
	})

	assert.Equal(t, "gemini-2.5-flash", f.model)
	assert.Equal(t, persona.SystemInstruction, f.opts.SystemInstruction)
	assert.Empty(t, cb.Err())
	msgs := cb.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, session.RoleAssistant, msgs[0].Role)
	assert.Equal(t, persona.Greeting, msgs[0].Content)
}

func TestInitWithoutCredential(t *testing.T) {
	f := &fakeFactory{err: backend.ErrMissingCredential}
	cb := New(context.Background(), f, Options{Greeting: persona.Greeting})

	assert.False(t, cb.HasSession())
	assert.Contains(t, cb.Err(), "Failed to initialize AI session")
	assert.Contains(t, cb.Err(), backend.ErrMissingCredential.Error())
	assert.Empty(t, cb.Messages())
	assert.False(t, cb.CanSend("hello"))

	stream, ok := cb.Submit(context.Background(), "hello")
	assert.False(t, ok)
	assert.Nil(t, stream)
	assert.Empty(t, cb.Messages())
	assert.False(t, cb.Loading())
}

func TestSubmitBlankIsNoop(t *testing.T) {
	cb, sess := newBot(t)

	for _, text := range []string{"", "   ", "\n\t "} {
		_, ok := cb.Submit(context.Background(), text)
		assert.False(t, ok)
	}
	assert.Empty(t, cb.Messages())
	assert.Empty(t, sess.sent)
	assert.False(t, cb.Loading())
}

func TestSubmitWhileLoadingIsNoop(t *testing.T) {
	cb, sess := newBot(t, script{fragments: []string{"a"}})

	_, ok := cb.Submit(context.Background(), "first")
	require.True(t, ok)
	before := cb.Messages()

	_, ok = cb.Submit(context.Background(), "second")
	assert.False(t, ok)
	assert.Equal(t, before, cb.Messages())
	assert.Equal(t, []string{"first"}, sess.sent)
	assert.True(t, cb.Loading())
}

func TestSuccessfulExchange(t *testing.T) {
	cb, _ := newBot(t, script{fragments: []string{"Hel", "lo!"}})

	stream, ok := cb.Submit(context.Background(), "What is gravity?")
	require.True(t, ok)
	assert.True(t, cb.Loading())

	msgs := cb.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "What is gravity?", msgs[0].Content)
	assert.Equal(t, session.RoleAssistant, msgs[1].Role)
	assert.Empty(t, msgs[1].Content)

	var seen []string
	cb.Consume(stream, func() {
		last := cb.Messages()[len(cb.Messages())-1]
		seen = append(seen, last.Content)
	})

	assert.Equal(t, []string{"Hel", "Hello!", "Hello!"}, seen)
	assert.False(t, cb.Loading())
	assert.Empty(t, cb.Err())

	msgs = cb.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []session.Role{session.RoleUser, session.RoleAssistant}, roles(msgs))
	assert.Equal(t, "Hello!", msgs[1].Content)
}

func TestStreamFailsWithoutFragments(t *testing.T) {
	cb, _ := newBot(t, script{err: errors.New("network down")})
	before := len(cb.Messages())

	stream, ok := cb.Submit(context.Background(), "hi")
	require.True(t, ok)
	cb.Consume(stream, nil)

	msgs := cb.Messages()
	assert.Len(t, msgs, before+1)
	assert.Equal(t, session.RoleUser, msgs[len(msgs)-1].Role)
	assert.Equal(t, "Sorry, something went wrong: network down", cb.Err())
	assert.False(t, cb.Loading())
}

func TestStreamFailureDiscardsPartialText(t *testing.T) {
	cb, _ := newBot(t, script{fragments: []string{"Par", "tial"}, err: errors.New("reset")})

	stream, ok := cb.Submit(context.Background(), "hi")
	require.True(t, ok)
	cb.Consume(stream, nil)

	msgs := cb.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)
}

func TestStreamErrorFallbackDescription(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"nil", nil},
		{"empty", errors.New("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb, _ := newBot(t, script{fragments: []string{"par"}})
			stream, ok := cb.Submit(context.Background(), "hi")
			require.True(t, ok)
			require.NotNil(t, stream)

			cb.OnChunk("par")
			cb.OnStreamError(tt.err)

			assert.Equal(t, "Sorry, something went wrong: An unknown error occurred.", cb.Err())
			assert.False(t, cb.Loading())
			msgs := cb.Messages()
			require.Len(t, msgs, 1)
			assert.Equal(t, session.RoleUser, msgs[0].Role)
		})
	}
}

func TestRetryAfterErrorClearsBanner(t *testing.T) {
	cb, _ := newBot(t,
		script{err: errors.New("timeout")},
		script{fragments: []string{"ok"}},
	)

	stream, _ := cb.Submit(context.Background(), "one")
	cb.Consume(stream, nil)
	require.NotEmpty(t, cb.Err())

	stream, ok := cb.Submit(context.Background(), "two")
	require.True(t, ok)
	assert.Empty(t, cb.Err())
	cb.Consume(stream, nil)

	msgs := cb.Messages()
	assert.Equal(t, []session.Role{session.RoleUser, session.RoleUser, session.RoleAssistant}, roles(msgs))
	assert.Equal(t, "ok", msgs[2].Content)
}

func TestOrderFollowsSubmissions(t *testing.T) {
	cb, _ := newBot(t,
		script{fragments: []string{"a1"}},
		script{fragments: []string{"a", "2"}},
		script{fragments: []string{"a3"}},
	)

	for _, q := range []string{"q1", "q2", "q3"} {
		stream, ok := cb.Submit(context.Background(), q)
		require.True(t, ok)
		cb.Consume(stream, nil)
	}

	var contents []string
	for _, m := range cb.Messages() {
		contents = append(contents, m.Content)
	}
	assert.Equal(t, []string{"q1", "a1", "q2", "a2", "q3", "a3"}, contents)
	assert.Equal(t, []session.Role{
		session.RoleUser, session.RoleAssistant,
		session.RoleUser, session.RoleAssistant,
		session.RoleUser, session.RoleAssistant,
	}, roles(cb.Messages()))
}

func TestChunkWithoutExchangeIsDropped(t *testing.T) {
	cb, _ := newBot(t)
	cb.OnChunk("stray")
	assert.Empty(t, cb.Messages())
}

type recorder struct {
	recs []telemetry.Exchange
}

func (r *recorder) RecordExchange(_ context.Context, ex telemetry.Exchange) error {
	r.recs = append(r.recs, ex)
	return nil
}

func TestExchangesAreRecorded(t *testing.T) {
	rec := &recorder{}
	sess := &fakeSession{replies: []script{
		{fragments: []string{"Hel", "lo!"}},
		{err: errors.New("boom")},
	}}
	cb := New(context.Background(), &fakeFactory{session: sess}, Options{
		Backend:  "gemini",
		Model:    "gemini-2.5-flash",
		Recorder: rec,
	})

	stream, _ := cb.Submit(context.Background(), "hi")
	cb.Consume(stream, nil)
	require.Len(t, rec.recs, 1)

	stream, _ = cb.Submit(context.Background(), "again")
	cb.Consume(stream, nil)
	require.Len(t, rec.recs, 2)

	ok := rec.recs[0]
	assert.Equal(t, telemetry.Digest("hi"), ok.PromptDigest)
	assert.Equal(t, 2, ok.Fragments)
	assert.Equal(t, 6, ok.Bytes)
	assert.Equal(t, "gemini", ok.Backend)
	assert.Empty(t, ok.Error)
	assert.NotEmpty(t, ok.ID)

	failed := rec.recs[1]
	assert.Equal(t, telemetry.Digest("again"), failed.PromptDigest)
	assert.Equal(t, "boom", failed.Error)
}

func TestExchangeSurvivesStoreClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.db")
	store, err := telemetry.OpenStore(path)
	require.NoError(t, err)

	sess := &fakeSession{replies: []script{{fragments: []string{"Hello!"}}}}
	cb := New(context.Background(), &fakeFactory{session: sess}, Options{
		Backend:  "gemini",
		Model:    "gemini-2.5-flash",
		Recorder: store,
	})
	stream, ok := cb.Submit(context.Background(), "hi")
	require.True(t, ok)
	cb.Consume(stream, nil)
	require.NoError(t, store.Close())

	store, err = telemetry.OpenStore(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Exchanges(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Fragments)
	assert.Equal(t, telemetry.Digest("hi"), got[0].PromptDigest)
}

// lines feeds scripted input to RunWith
type lines struct {
	input   []string
	history []string
}

func (l *lines) Prompt(string) (string, error) {
	if len(l.input) == 0 {
		return "", io.EOF
	}
	next := l.input[0]
	l.input = l.input[1:]
	return next, nil
}

func (l *lines) AppendHistory(item string) {
	l.history = append(l.history, item)
}

func TestRunWithStreamsReplies(t *testing.T) {
	sess := &fakeSession{replies: []script{
		{fragments: []string{"Hel", "lo!"}},
		{err: errors.New("quota exceeded")},
	}}
	cb := New(context.Background(), &fakeFactory{session: sess}, Options{Greeting: persona.Greeting})

	in := &lines{input: []string{"hi", "  ", "/help", "again", "/quit", "never"}}
	var out bytes.Buffer
	require.NoError(t, cb.RunWith(context.Background(), in, &out))

	text := out.String()
	assert.Contains(t, text, "Zyro: "+persona.Greeting)
	assert.Contains(t, text, "Zyro: Hello!\n")
	assert.Contains(t, text, "Available commands:")
	assert.Contains(t, text, "Error: Sorry, something went wrong: quota exceeded")
	assert.Contains(t, text, "Goodbye!")
	assert.Equal(t, []string{"hi", "again"}, sess.sent)
	assert.Equal(t, []string{"hi", "/help", "again", "/quit"}, in.history)
	assert.Equal(t, []string{"never"}, in.input)
}

func TestRunWithoutSessionShowsError(t *testing.T) {
	cb := New(context.Background(), &fakeFactory{err: backend.ErrMissingCredential}, Options{})

	in := &lines{input: []string{"hi"}}
	var out bytes.Buffer
	require.NoError(t, cb.RunWith(context.Background(), in, &out))

	assert.Contains(t, out.String(), "Failed to initialize AI session")
	assert.Equal(t, []string{"hi"}, in.input)
}
