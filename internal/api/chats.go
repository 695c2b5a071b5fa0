package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rain2recharge/r2r/internal/assessment"
	"github.com/rain2recharge/r2r/internal/assistant"
	"github.com/rain2recharge/r2r/internal/storage"
)

// ConversationStore persists conversations. Implemented by storage.Store.
type ConversationStore interface {
	SaveConversation(c storage.Conversation) error
	GetConversation(id string) (storage.Conversation, error)
	ListConversations(limit int) ([]storage.Conversation, error)
	DeleteConversation(id string) error
}

// Chats loads, updates and saves assistant conversations. Sends to the same
// conversation are serialized; a second send waits for the first.
type Chats struct {
	store     ConversationStore
	assistant *assistant.Assistant

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewChats(store ConversationStore, a *assistant.Assistant) *Chats {
	return &Chats{
		store:     store,
		assistant: a,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (c *Chats) lock(id string) func() {
	c.mu.Lock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	c.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Create starts a conversation greeted for step and stores it.
func (c *Chats) Create(step assessment.Step, hints assistant.ContextHints) (assistant.Conversation, error) {
	conv := assistant.NewConversation(step, c.assistant.Now())
	conv.Context = hints
	if err := c.save(conv); err != nil {
		return assistant.Conversation{}, err
	}
	return conv, nil
}

// Get returns the stored conversation or storage.ErrNotFound.
func (c *Chats) Get(id string) (assistant.Conversation, error) {
	row, err := c.store.GetConversation(id)
	if err != nil {
		return assistant.Conversation{}, err
	}
	return decodeConversation(row)
}

// List returns up to limit conversations, most recently updated first.
func (c *Chats) List(limit int) ([]assistant.Conversation, error) {
	rows, err := c.store.ListConversations(limit)
	if err != nil {
		return nil, err
	}
	out := make([]assistant.Conversation, 0, len(rows))
	for _, row := range rows {
		conv, err := decodeConversation(row)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, nil
}

// Delete removes a conversation. Its lock entry is kept: callers already
// queued on it must share the mutex with any caller that arrives later.
func (c *Chats) Delete(id string) error {
	unlock := c.lock(id)
	defer unlock()

	return c.store.DeleteConversation(id)
}

// Send runs one assistant turn and stores the result. Assistant failures are
// reported in the Reply; the returned error covers storage and bad input.
func (c *Chats) Send(ctx context.Context, id, text string, hints assistant.ContextHints) (assistant.Conversation, assistant.Reply, error) {
	unlock := c.lock(id)
	defer unlock()

	conv, err := c.Get(id)
	if err != nil {
		return assistant.Conversation{}, assistant.Reply{}, err
	}
	next, reply, err := c.assistant.Send(ctx, conv, text, hints)
	if err != nil {
		return conv, reply, err
	}
	if err := c.save(next); err != nil {
		return conv, reply, err
	}
	return next, reply, nil
}

// Clear re-primes the conversation and re-seeds the greeting for step.
func (c *Chats) Clear(id string, step assessment.Step) (assistant.Conversation, error) {
	unlock := c.lock(id)
	defer unlock()

	conv, err := c.Get(id)
	if err != nil {
		return assistant.Conversation{}, err
	}
	conv = assistant.ClearHistory(conv, step, c.assistant.Now())
	if err := c.save(conv); err != nil {
		return assistant.Conversation{}, err
	}
	return conv, nil
}

// Summary digests the stored conversation.
func (c *Chats) Summary(id string) (assistant.ConversationSummary, error) {
	conv, err := c.Get(id)
	if err != nil {
		return assistant.ConversationSummary{}, err
	}
	return assistant.Summary(conv, c.assistant.Now()), nil
}

func (c *Chats) save(conv assistant.Conversation) error {
	row, err := encodeConversation(conv)
	if err != nil {
		return err
	}
	row.UpdatedAt = c.assistant.Now().UTC()
	if err := c.store.SaveConversation(row); err != nil {
		return fmt.Errorf("saving conversation %s: %w", conv.ID, err)
	}
	return nil
}

func encodeConversation(conv assistant.Conversation) (storage.Conversation, error) {
	history, err := json.Marshal(conv.History)
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("marshalling history: %w", err)
	}
	transcript, err := json.Marshal(conv.Transcript)
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("marshalling transcript: %w", err)
	}
	hints, err := json.Marshal(conv.Context)
	if err != nil {
		return storage.Conversation{}, fmt.Errorf("marshalling context: %w", err)
	}
	return storage.Conversation{
		ID:             conv.ID,
		CreatedAt:      conv.CreatedAt,
		HistoryJSON:    string(history),
		TranscriptJSON: string(transcript),
		ContextJSON:    string(hints),
	}, nil
}

func decodeConversation(row storage.Conversation) (assistant.Conversation, error) {
	conv := assistant.Conversation{ID: row.ID, CreatedAt: row.CreatedAt}
	if err := json.Unmarshal([]byte(row.HistoryJSON), &conv.History); err != nil {
		return conv, fmt.Errorf("parsing history of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.TranscriptJSON), &conv.Transcript); err != nil {
		return conv, fmt.Errorf("parsing transcript of %s: %w", row.ID, err)
	}
	if err := json.Unmarshal([]byte(row.ContextJSON), &conv.Context); err != nil {
		return conv, fmt.Errorf("parsing context of %s: %w", row.ID, err)
	}
	return conv, nil
}
