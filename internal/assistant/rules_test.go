package assistant

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractSuggestions_Dedup(t *testing.T) {
	got := ExtractSuggestions("The COST of the system and your ROI depend on roof size.")
	if len(got) > MaxSuggestions {
		t.Errorf("len = %d, want <= %d", len(got), MaxSuggestions)
	}
	seen := make(map[string]bool)
	for _, s := range got {
		if seen[s] {
			t.Errorf("duplicate suggestion %q", s)
		}
		seen[s] = true
	}
	want := []string{"Show cost breakdown", "Calculate my ROI", "Available rebates", "Compare system types"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractSuggestions mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractSuggestions_CostAndROIOnly(t *testing.T) {
	got := ExtractSuggestions("cost and roi")
	want := []string{"Show cost breakdown", "Calculate my ROI", "Available rebates", "Show payback timeline"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExtractSuggestions mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractSuggestions_NoMatch(t *testing.T) {
	if got := ExtractSuggestions("Hello!"); len(got) != 0 {
		t.Errorf("expected no suggestions, got %v", got)
	}
}

func TestSuggestionRules_Triggers(t *testing.T) {
	for _, rule := range SuggestionRules {
		got := ExtractSuggestions("about " + rule.Trigger)
		if len(got) == 0 || got[0] != rule.Labels[0] {
			t.Errorf("trigger %q produced %v", rule.Trigger, got)
		}
	}
}

func TestExtractAttachments(t *testing.T) {
	tests := []struct {
		name    string
		message string
		reply   string
		want    []string
	}{
		{"none", "hello", "hi there", nil},
		{"calculator from message", "my savings?", "sure", []string{AttachmentCalculator}},
		{"calculator from reply", "hello", "the roi is good", []string{AttachmentCalculator}},
		{"comparison only from message", "compare tanks", "ok", []string{AttachmentComparison}},
		{"comparison ignores reply", "hello", "a system", nil},
		{"poll from reply", "hello", "Which do you prefer", []string{AttachmentPoll}},
		{"poll ignores message", "what now", "ok", nil},
		{"all", "compare cost", "what works", []string{AttachmentCalculator, AttachmentComparison, AttachmentPoll}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, a := range ExtractAttachments(tt.message, tt.reply) {
				got = append(got, a.Type)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("attachment types mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPollAttachment_FixedOptions(t *testing.T) {
	atts := ExtractAttachments("", "what")
	if len(atts) != 1 || atts[0].Question == "" || len(atts[0].Options) != 4 {
		t.Fatalf("poll = %+v", atts)
	}
	atts[0].Options[0] = "changed"
	if AttachmentRules[2].Attachment.Options[0] == "changed" {
		t.Error("ExtractAttachments leaked the rule table slice")
	}
}

func TestFallbackMessage(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"What does it COST?", FallbackRules[0].Message},
		{"which system?", FallbackRules[1].Message},
		{"maintenance tips", FallbackRules[2].Message},
		{"What's the ROI timeline?", FallbackRules[3].Message},
		{"cost of system maintenance", FallbackRules[0].Message},
		{"hello", GenericFallback},
	}
	for _, tt := range tests {
		if got := FallbackMessage(tt.text); got != tt.want {
			t.Errorf("FallbackMessage(%q) = %q", tt.text, got)
		}
	}
	if len(FallbackSuggestions) != 3 {
		t.Errorf("FallbackSuggestions len = %d, want 3", len(FallbackSuggestions))
	}
}
