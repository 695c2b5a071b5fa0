package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrEmptyMessage is returned by Send when the user text is blank.
var ErrEmptyMessage = errors.New("message is empty")

var errNoCandidates = errors.New("response contained no candidates")

// Generator issues one generateContent call.
type Generator interface {
	GenerateContent(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// Clock abstracts time for testing.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Reply is the structured result of one Send.
type Reply struct {
	Success     bool         `json:"success"`
	Message     string       `json:"message"`
	Suggestions []string     `json:"suggestions,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// Assistant turns user utterances into generateContent calls. It holds no
// conversation state; every call takes and returns a Conversation.
type Assistant struct {
	gen   Generator
	clock Clock
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithClock overrides the clock used for message timestamps.
func WithClock(c Clock) Option {
	return func(a *Assistant) { a.clock = c }
}

func New(gen Generator, opts ...Option) *Assistant {
	a := &Assistant{gen: gen, clock: realClock{}}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Now returns the assistant clock's current time.
func (a *Assistant) Now() time.Time { return a.clock.Now() }

// Send appends the user turn, calls the endpoint with the whole history and,
// on success, appends the model turn. Endpoint failures never surface as a Go
// error: the returned Reply carries a canned fallback and the error text, and
// the conversation keeps the user turn in both History and Transcript.
func (a *Assistant) Send(ctx context.Context, conv Conversation, text string, hints ContextHints) (Conversation, Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return conv, Reply{}, ErrEmptyMessage
	}

	out := conv.clone()
	if !out.Primed() {
		out = InitializeConversation(out)
	}
	now := a.clock.Now().UTC()

	merged := out.Context.Merge(hints)
	out.History = append(out.History, textContent(RoleUser, FormatPrompt(text, merged)))
	out.Transcript = append(out.Transcript, Message{
		ID:        uuid.NewString(),
		Sender:    SenderUser,
		Text:      text,
		Timestamp: now,
	})

	replyText, err := a.generate(ctx, out.History)
	if err != nil {
		slog.Warn("assistant request failed, using fallback", "conversation", out.ID, "error", err)
		return out, Reply{
			Success:     false,
			Message:     FallbackMessage(text),
			Suggestions: append([]string(nil), FallbackSuggestions...),
			Error:       err.Error(),
		}, nil
	}

	reply := Reply{
		Success:     true,
		Message:     replyText,
		Suggestions: ExtractSuggestions(replyText),
		Attachments: ExtractAttachments(text, replyText),
	}
	out.History = append(out.History, textContent(RoleModel, replyText))
	out.Transcript = append(out.Transcript, Message{
		ID:          uuid.NewString(),
		Sender:      SenderModel,
		Text:        replyText,
		Timestamp:   a.clock.Now().UTC(),
		Attachments: reply.Attachments,
		Suggestions: reply.Suggestions,
	})
	return out, reply, nil
}

func (a *Assistant) generate(ctx context.Context, history []Content) (string, error) {
	resp, err := a.gen.GenerateContent(ctx, GenerateRequest{
		Contents:         history,
		GenerationConfig: DefaultGenerationConfig,
		SafetySettings:   DefaultSafetySettings,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 {
		return "", errNoCandidates
	}
	text := resp.Candidates[0].Content.Text()
	if strings.TrimSpace(text) == "" {
		return "", errors.New("first candidate has no text")
	}
	return text, nil
}
