package session

import (
	"errors"
	"time"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	// ErrAssistantOpen is returned when an assistant message is opened while another one is still streaming
	ErrAssistantOpen = errors.New("an assistant message is already open")
	// ErrNoOpenMessage is returned when a fragment arrives with no open assistant message
	ErrNoOpenMessage = errors.New("no open assistant message")
)

// Message represents a single chat message
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the ordered list of messages shown to the user.
// It is owned by a single event loop and is not safe for concurrent use.
type Conversation struct {
	messages []Message
	open     bool
}

// NewConversation creates an empty conversation
func NewConversation() *Conversation {
	return &Conversation{messages: []Message{}}
}

// AppendUser appends a user message
func (c *Conversation) AppendUser(content string) {
	c.messages = append(c.messages, Message{
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// AppendAssistant appends a complete assistant message, such as a greeting
func (c *Conversation) AppendAssistant(content string) error {
	if c.open {
		return ErrAssistantOpen
	}
	c.messages = append(c.messages, Message{
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now(),
	})
	return nil
}

// OpenAssistant appends an empty assistant message that receives streamed fragments
func (c *Conversation) OpenAssistant() error {
	if c.open {
		return ErrAssistantOpen
	}
	c.messages = append(c.messages, Message{
		Role:      RoleAssistant,
		Timestamp: time.Now(),
	})
	c.open = true
	return nil
}

// AppendToOpen grows the open assistant message by fragment
func (c *Conversation) AppendToOpen(fragment string) error {
	if !c.open {
		return ErrNoOpenMessage
	}
	c.messages[len(c.messages)-1].Content += fragment
	return nil
}

// CloseOpen finalizes the open assistant message, keeping its text
func (c *Conversation) CloseOpen() {
	c.open = false
}

// DiscardOpen removes the open assistant message along with any text it accumulated.
// It reports whether a message was removed.
func (c *Conversation) DiscardOpen() bool {
	if !c.open {
		return false
	}
	c.messages = c.messages[:len(c.messages)-1]
	c.open = false
	return true
}

// IsOpen reports whether an assistant message is currently streaming
func (c *Conversation) IsOpen() bool {
	return c.open
}

// Len returns the number of messages
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent message
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Messages returns a copy of the message list
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}
