package assistant

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rain2recharge/r2r/internal/assessment"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type mockClock struct{ now time.Time }

func (c *mockClock) Now() time.Time { return c.now }

type mockGenerator struct {
	reply string
	err   error
	resp  *GenerateResponse
	reqs  []GenerateRequest
}

func (m *mockGenerator) GenerateContent(_ context.Context, req GenerateRequest) (GenerateResponse, error) {
	m.reqs = append(m.reqs, req)
	if m.err != nil {
		return GenerateResponse{}, m.err
	}
	if m.resp != nil {
		return *m.resp, nil
	}
	return GenerateResponse{Candidates: []Candidate{{Content: textContent(RoleModel, m.reply)}}}, nil
}

func newTestAssistant(gen Generator) *Assistant {
	return New(gen, WithClock(&mockClock{now: testNow}))
}

func TestFormatPrompt(t *testing.T) {
	tests := []struct {
		name  string
		hints ContextHints
		want  string
	}{
		{"no hints", ContextHints{}, "x"},
		{"location only", ContextHints{Location: "Austin"}, "Location: Austin\n\nUser question: x"},
		{
			"all hints",
			ContextHints{CurrentSystem: "none", RoofArea: "2000 sq ft", PropertySize: "0.3 acres", Location: "Austin"},
			"Location: Austin\nProperty size: 0.3 acres\nRoof area: 2000 sq ft\nCurrent system: none\n\nUser question: x",
		},
		{"sparse", ContextHints{RoofArea: "1500 sq ft"}, "Roof area: 1500 sq ft\n\nUser question: x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatPrompt("x", tt.hints); got != tt.want {
				t.Errorf("FormatPrompt = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestContextHints_Merge(t *testing.T) {
	base := ContextHints{Location: "Austin", RoofArea: "1000 sq ft"}
	got := base.Merge(ContextHints{RoofArea: "2000 sq ft", CurrentSystem: "barrel"})
	want := ContextHints{Location: "Austin", RoofArea: "2000 sq ft", CurrentSystem: "barrel"}
	if got != want {
		t.Errorf("Merge = %+v, want %+v", got, want)
	}
	if !(ContextHints{}).IsEmpty() || want.IsEmpty() {
		t.Error("IsEmpty mismatch")
	}
}

func TestHintsFromRecord(t *testing.T) {
	h := HintsFromRecord(assessment.Record{
		Location: &assessment.Location{Address: "123 Oak St"},
		Property: &assessment.PropertyDetails{HouseType: assessment.HouseSingleFamily, RoofSizeSqFt: 2000, LotSizeAcres: 0.3},
	})
	if h.Location != "123 Oak St" || h.RoofArea != "2000 sq ft" || h.PropertySize != "0.30 acres (single-family)" {
		t.Errorf("HintsFromRecord = %+v", h)
	}
	if !HintsFromRecord(assessment.Record{}).IsEmpty() {
		t.Error("expected empty hints for empty record")
	}
}

func TestInitializeConversation_Idempotent(t *testing.T) {
	conv := InitializeConversation(Conversation{})
	again := InitializeConversation(conv)
	if len(again.History) != 1 || again.History[0].Text() != PersonaPrompt {
		t.Fatalf("History = %+v", again.History)
	}
	if again.History[0].Role != RoleUser {
		t.Errorf("persona role = %q, want %q (the wire format has no system role)", again.History[0].Role, RoleUser)
	}
	if !reflect.DeepEqual(conv.History, again.History) {
		t.Error("InitializeConversation is not idempotent")
	}
}

func TestNewConversation_Greeting(t *testing.T) {
	conv := NewConversation(assessment.StepFeasibility, testNow)
	if conv.ID == "" {
		t.Error("expected id")
	}
	if len(conv.Transcript) != 1 {
		t.Fatalf("transcript len = %d, want 1", len(conv.Transcript))
	}
	first := conv.Transcript[0]
	if first.Sender != SenderModel {
		t.Errorf("first sender = %q, want model", first.Sender)
	}
	if first.Text != Greeting(assessment.StepFeasibility) {
		t.Errorf("greeting = %q", first.Text)
	}
	if Greeting(assessment.Step(0)) != genericGreeting {
		t.Error("unknown step should use generic greeting")
	}
}

func TestSend_Success(t *testing.T) {
	gen := &mockGenerator{reply: "A cistern system usually pays back fast. What do you prefer?"}
	a := newTestAssistant(gen)
	conv := NewConversation(assessment.StepLocation, testNow)

	next, reply, err := a.Send(context.Background(), conv, "  How much does it cost?  ", ContextHints{Location: "Austin"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !reply.Success || reply.Message != gen.reply || reply.Error != "" {
		t.Errorf("reply = %+v", reply)
	}

	if len(next.Transcript) != len(conv.Transcript)+2 {
		t.Fatalf("transcript grew by %d, want 2", len(next.Transcript)-len(conv.Transcript))
	}
	user, model := next.Transcript[1], next.Transcript[2]
	if user.Sender != SenderUser || user.Text != "How much does it cost?" {
		t.Errorf("user turn = %+v", user)
	}
	if model.Sender != SenderModel || model.Text != gen.reply {
		t.Errorf("model turn = %+v", model)
	}

	if len(gen.reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(gen.reqs))
	}
	req := gen.reqs[0]
	if len(req.Contents) != 2 || req.Contents[0].Text() != PersonaPrompt {
		t.Fatalf("contents = %+v", req.Contents)
	}
	if got := req.Contents[1].Text(); got != "Location: Austin\n\nUser question: How much does it cost?" {
		t.Errorf("outgoing turn = %q", got)
	}
	if req.GenerationConfig != DefaultGenerationConfig || len(req.SafetySettings) != 4 {
		t.Errorf("generation parameters = %+v / %+v", req.GenerationConfig, req.SafetySettings)
	}

	if len(next.History) != 3 || next.History[2].Role != RoleModel {
		t.Errorf("history = %+v", next.History)
	}

	types := make(map[string]bool)
	for _, att := range reply.Attachments {
		types[att.Type] = true
	}
	if !types[AttachmentCalculator] || !types[AttachmentPoll] || types[AttachmentComparison] {
		t.Errorf("attachments = %+v", reply.Attachments)
	}

	// The input value is untouched.
	if len(conv.Transcript) != 1 || len(conv.History) != 1 {
		t.Error("Send mutated its input conversation")
	}
}

func TestSend_FullHistoryCarried(t *testing.T) {
	gen := &mockGenerator{reply: "Sure."}
	a := newTestAssistant(gen)
	conv := NewConversation(assessment.StepLocation, testNow)

	conv, _, _ = a.Send(context.Background(), conv, "first", ContextHints{})
	conv, _, _ = a.Send(context.Background(), conv, "second", ContextHints{})

	last := gen.reqs[len(gen.reqs)-1]
	var texts []string
	for _, c := range last.Contents {
		texts = append(texts, c.Text())
	}
	want := []string{PersonaPrompt, "first", "Sure.", "second"}
	if !reflect.DeepEqual(texts, want) {
		t.Errorf("contents = %q, want %q", texts, want)
	}
	if len(conv.Transcript) != 5 {
		t.Errorf("transcript len = %d, want 5", len(conv.Transcript))
	}
}

func TestSend_ConversationContextMerged(t *testing.T) {
	gen := &mockGenerator{reply: "ok"}
	a := newTestAssistant(gen)
	conv := NewConversation(assessment.StepLocation, testNow)
	conv.Context = ContextHints{Location: "Denver", RoofArea: "900 sq ft"}

	if _, _, err := a.Send(context.Background(), conv, "hi", ContextHints{Location: "Austin"}); err != nil {
		t.Fatal(err)
	}
	got := gen.reqs[0].Contents[1].Text()
	want := "Location: Austin\nRoof area: 900 sq ft\n\nUser question: hi"
	if got != want {
		t.Errorf("outgoing turn = %q, want %q", got, want)
	}
}

func TestSend_EmptyMessage(t *testing.T) {
	gen := &mockGenerator{reply: "x"}
	a := newTestAssistant(gen)
	conv := NewConversation(assessment.StepLocation, testNow)

	next, _, err := a.Send(context.Background(), conv, "   ", ContextHints{})
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	if len(next.Transcript) != 1 || len(gen.reqs) != 0 {
		t.Error("blank message should not mutate or call the endpoint")
	}
}

func TestSend_FallbackOnTransportError(t *testing.T) {
	gen := &mockGenerator{err: errors.New("dial tcp: connection refused")}
	a := newTestAssistant(gen)
	conv := NewConversation(assessment.StepLocation, testNow)

	next, reply, err := a.Send(context.Background(), conv, "What's the ROI timeline?", ContextHints{})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if reply.Success {
		t.Error("expected success=false")
	}
	if reply.Message != FallbackRules[3].Message {
		t.Errorf("message = %q, want ROI fallback", reply.Message)
	}
	if !reflect.DeepEqual(reply.Suggestions, FallbackSuggestions) {
		t.Errorf("suggestions = %v", reply.Suggestions)
	}
	if !strings.Contains(reply.Error, "connection refused") {
		t.Errorf("error = %q", reply.Error)
	}

	if len(next.Transcript) != 2 {
		t.Fatalf("transcript len = %d, want 2", len(next.Transcript))
	}
	if last := next.Transcript[1]; last.Sender != SenderUser || last.Text != "What's the ROI timeline?" {
		t.Errorf("last turn = %+v", last)
	}
	if len(next.History) != 2 {
		t.Fatalf("history len = %d, want 2 (persona + unanswered question)", len(next.History))
	}
	if got := next.History[1]; got.Role != RoleUser || got.Text() != "What's the ROI timeline?" {
		t.Errorf("history[1] = %+v", got)
	}
}

func TestSend_FallbackOnBadResponses(t *testing.T) {
	tests := []struct {
		name string
		gen  *mockGenerator
	}{
		{"status error", &mockGenerator{err: &StatusError{Status: 500}}},
		{"no candidates", &mockGenerator{resp: &GenerateResponse{}}},
		{"empty text", &mockGenerator{reply: "  "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAssistant(tt.gen)
			conv := NewConversation(assessment.StepLocation, testNow)
			next, reply, err := a.Send(context.Background(), conv, "hello", ContextHints{})
			if err != nil {
				t.Fatalf("Send: %v", err)
			}
			if reply.Success || reply.Message != GenericFallback || reply.Error == "" {
				t.Errorf("reply = %+v", reply)
			}
			if len(next.Transcript) != 2 {
				t.Errorf("transcript len = %d, want 2", len(next.Transcript))
			}
		})
	}
}

func TestSend_TranscriptAppendOnly(t *testing.T) {
	gen := &mockGenerator{}
	a := newTestAssistant(gen)
	conv := NewConversation(assessment.StepLocation, testNow)

	outcomes := []error{nil, errors.New("boom"), nil, errors.New("boom"), errors.New("boom")}
	for i, outcome := range outcomes {
		gen.err = outcome
		gen.reply = "reply"
		before := append([]Message(nil), conv.Transcript...)
		beforeHistory := append([]Content(nil), conv.History...)

		next, _, err := a.Send(context.Background(), conv, "question", ContextHints{})
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		want := 2
		if outcome != nil {
			want = 1
		}
		if len(next.Transcript)-len(before) != want {
			t.Errorf("send %d grew transcript by %d, want %d", i, len(next.Transcript)-len(before), want)
		}
		if len(next.History)-len(beforeHistory) != want {
			t.Errorf("send %d grew history by %d, want %d", i, len(next.History)-len(beforeHistory), want)
		}
		for j := range before {
			if next.Transcript[j].ID != before[j].ID {
				t.Fatalf("send %d reordered message %d", i, j)
			}
		}
		for j := range beforeHistory {
			if next.History[j].Role != beforeHistory[j].Role || next.History[j].Text() != beforeHistory[j].Text() {
				t.Fatalf("send %d changed history entry %d", i, j)
			}
		}
		conv = next
	}
}

func TestClearHistory(t *testing.T) {
	gen := &mockGenerator{reply: "ok"}
	a := newTestAssistant(gen)
	conv := NewConversation(assessment.StepLocation, testNow)
	conv.Context = ContextHints{Location: "Austin"}
	conv, _, _ = a.Send(context.Background(), conv, "hi", ContextHints{})

	cleared := ClearHistory(conv, assessment.StepResults, testNow)
	if len(cleared.History) != 1 || !cleared.Primed() {
		t.Errorf("history = %+v", cleared.History)
	}
	if len(cleared.Transcript) != 1 || cleared.Transcript[0].Text != Greeting(assessment.StepResults) {
		t.Errorf("transcript = %+v", cleared.Transcript)
	}
	if cleared.ID != conv.ID || cleared.Context != conv.Context {
		t.Error("ClearHistory should keep id and context")
	}
}

func TestSummary(t *testing.T) {
	conv := NewConversation(assessment.StepLocation, testNow)
	s := Summary(conv, testNow)
	if s.UserTurns != 0 || s.LastMessage != NoMessagesPreview || !s.Timestamp.Equal(testNow) {
		t.Errorf("empty summary = %+v", s)
	}

	gen := &mockGenerator{reply: "ok"}
	a := newTestAssistant(gen)
	long := strings.Repeat("a", 60)
	conv, _, _ = a.Send(context.Background(), conv, "short one", ContextHints{})
	conv, _, _ = a.Send(context.Background(), conv, long, ContextHints{})

	s = Summary(conv, testNow)
	if s.UserTurns != 2 {
		t.Errorf("UserTurns = %d, want 2", s.UserTurns)
	}
	if want := strings.Repeat("a", 50) + "..."; s.LastMessage != want {
		t.Errorf("LastMessage = %q, want %q", s.LastMessage, want)
	}
}
