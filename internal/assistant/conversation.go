package assistant

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rain2recharge/r2r/internal/assessment"
)

// Transcript senders.
const (
	SenderUser  = "user"
	SenderModel = "model"
)

// previewLength is the number of runes kept in a summary preview.
const previewLength = 50

// NoMessagesPreview is the summary preview of a conversation without user turns.
const NoMessagesPreview = "No messages yet"

// Message is one entry of the display transcript.
type Message struct {
	ID          string       `json:"id"`
	Sender      string       `json:"sender"`
	Text        string       `json:"text"`
	Timestamp   time.Time    `json:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Suggestions []string     `json:"suggestions,omitempty"`
}

// Conversation is the complete state of one chat. It is a value: operations
// return an updated copy and never mutate their argument.
//
// History is what gets sent to the endpoint and starts with the persona
// prompt. Transcript is what the user sees and starts with a greeting.
type Conversation struct {
	ID         string       `json:"id"`
	History    []Content    `json:"history"`
	Transcript []Message    `json:"transcript"`
	Context    ContextHints `json:"context"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// NewConversation returns a primed conversation whose transcript opens with
// the greeting for step.
func NewConversation(step assessment.Step, now time.Time) Conversation {
	conv := Conversation{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC(),
	}
	return reseed(conv, step, now)
}

// InitializeConversation resets History to the single priming entry. Calling
// it on an already primed conversation yields the same History.
func InitializeConversation(conv Conversation) Conversation {
	out := conv.clone()
	out.History = []Content{textContent(RoleUser, PersonaPrompt)}
	return out
}

// ClearHistory re-primes the conversation and replaces the transcript with a
// fresh greeting for step. Context hints are kept.
func ClearHistory(conv Conversation, step assessment.Step, now time.Time) Conversation {
	return reseed(conv, step, now)
}

func reseed(conv Conversation, step assessment.Step, now time.Time) Conversation {
	out := InitializeConversation(conv)
	out.Transcript = []Message{{
		ID:        uuid.NewString(),
		Sender:    SenderModel,
		Text:      Greeting(step),
		Timestamp: now.UTC(),
	}}
	return out
}

// Primed reports whether History starts with the persona prompt.
func (c Conversation) Primed() bool {
	return len(c.History) > 0 && c.History[0].Text() == PersonaPrompt
}

// ConversationSummary is a read-only digest of a conversation.
type ConversationSummary struct {
	UserTurns   int       `json:"userTurns"`
	LastMessage string    `json:"lastMessage"`
	Timestamp   time.Time `json:"timestamp"`
}

// Summary counts user turns and previews the most recent one.
func Summary(conv Conversation, now time.Time) ConversationSummary {
	s := ConversationSummary{LastMessage: NoMessagesPreview, Timestamp: now.UTC()}
	last := ""
	for _, m := range conv.Transcript {
		if m.Sender == SenderUser {
			s.UserTurns++
			last = m.Text
		}
	}
	if s.UserTurns > 0 {
		s.LastMessage = preview(last)
	}
	return s
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewLength {
		return text
	}
	r := []rune(text)
	return string(r[:previewLength]) + "..."
}

func (c Conversation) clone() Conversation {
	out := c
	out.History = make([]Content, len(c.History))
	for i, h := range c.History {
		out.History[i] = Content{Role: h.Role, Parts: append([]Part(nil), h.Parts...)}
	}
	out.Transcript = make([]Message, len(c.Transcript))
	for i, m := range c.Transcript {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
		m.Suggestions = append([]string(nil), m.Suggestions...)
		out.Transcript[i] = m
	}
	return out
}
