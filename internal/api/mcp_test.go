package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rain2recharge/r2r/internal/assessment"
	"github.com/rain2recharge/r2r/internal/assistant"
	"github.com/rain2recharge/r2r/internal/geocoding"
)

// --- helpers ---

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func callTool(t *testing.T, h func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := h(context.Background(), makeCallToolRequest(name, args))
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", name, err)
	}
	return result
}

func toolState(t *testing.T, result *mcp.CallToolResult) assessment.State {
	t.Helper()
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", toolText(t, result))
	}
	var state assessment.State
	if err := json.Unmarshal([]byte(toolText(t, result)), &state); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	return state
}

// --- tests ---

func TestMCPTool_WizardFlow(t *testing.T) {
	env := newTestEnv(t, "")

	state := toolState(t, callTool(t, mcpGetAssessment(env.deps), "get_assessment", nil))
	if state.CurrentStep != assessment.StepLocation {
		t.Fatalf("initial step = %d", state.CurrentStep)
	}

	state = toolState(t, callTool(t, mcpSetLocation(env.deps), "set_location", map[string]interface{}{
		"address": "123 Oak St",
		"lat":     30.27,
		"lng":     -97.74,
	}))
	if state.CurrentStep != assessment.StepProperty || state.Record.Location.Coordinates == nil {
		t.Errorf("after set_location = %+v", state)
	}

	state = toolState(t, callTool(t, mcpSetProperty(env.deps), "set_property", map[string]interface{}{
		"house_type":     "single-family",
		"roof_size_sqft": 2000.0,
		"lot_size_acres": 0.3,
	}))
	if state.CurrentStep != assessment.StepClimate {
		t.Errorf("after set_property step = %d", state.CurrentStep)
	}

	state = toolState(t, callTool(t, mcpAdvance(env.deps), "advance_assessment", nil))
	if state.CurrentStep != assessment.StepFeasibility || state.Record.Climate == nil {
		t.Errorf("after advance = %+v", state)
	}

	// The default assessment backs the resource.
	contents, err := mcpResourceAssessment(env.deps)(context.Background(), makeReadResourceRequest("assessment://current"))
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if !strings.Contains(tc.Text, "123 Oak St") || tc.MIMEType != "application/json" {
		t.Errorf("resource = %+v", tc)
	}
}

func TestMCPTool_AssessmentIDsAreIndependent(t *testing.T) {
	env := newTestEnv(t, "")
	callTool(t, mcpSetLocation(env.deps), "set_location", map[string]interface{}{"assessment_id": "other", "address": "1 Elm St"})

	state := toolState(t, callTool(t, mcpGetAssessment(env.deps), "get_assessment", nil))
	if state.Record.Location != nil {
		t.Error("default assessment should be untouched")
	}
	state = toolState(t, callTool(t, mcpGetAssessment(env.deps), "get_assessment", map[string]interface{}{"assessment_id": "other"}))
	if state.Record.Location == nil || state.Record.Location.Address != "1 Elm St" {
		t.Errorf("other assessment = %+v", state.Record)
	}
}

func TestMCPTool_Errors(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name string
		h    func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args map[string]interface{}
	}{
		{"location missing address", mcpSetLocation(env.deps), map[string]interface{}{}},
		{"location half coordinates", mcpSetLocation(env.deps), map[string]interface{}{"address": "x", "lat": 1.0}},
		{"property invalid", mcpSetProperty(env.deps), map[string]interface{}{"house_type": "castle", "roof_size_sqft": 2000.0, "lot_size_acres": 0.3}},
		{"property missing roof", mcpSetProperty(env.deps), map[string]interface{}{"house_type": "townhouse", "lot_size_acres": 0.3}},
		{"advance incomplete", mcpAdvance(env.deps), nil},
		{"ask blank", mcpAskAssistant(env.deps), map[string]interface{}{"message": " "}},
		{"search blank", mcpSearchAddress(env.deps), map[string]interface{}{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := callTool(t, tt.h, tt.name, tt.args)
			if !result.IsError {
				t.Errorf("expected tool error, got %q", toolText(t, result))
			}
		})
	}
}

func TestMCPTool_AskAssistant(t *testing.T) {
	env := newTestEnv(t, "")
	env.gen.reply = "A cistern suits a 2000 sq ft roof."

	result := callTool(t, mcpAskAssistant(env.deps), "ask_assistant", map[string]interface{}{"message": "Which tank?"})
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	var out struct {
		ConversationID string `json:"conversation_id"`
		Success        bool   `json:"success"`
		Message        string `json:"message"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatal(err)
	}
	if out.ConversationID == "" || !out.Success || out.Message != env.gen.reply {
		t.Errorf("result = %+v", out)
	}

	// A follow-up on the same conversation extends it.
	callTool(t, mcpAskAssistant(env.deps), "ask_assistant", map[string]interface{}{"message": "And cost?", "conversation_id": out.ConversationID})
	conv, err := env.deps.Chats.Get(out.ConversationID)
	if err != nil {
		t.Fatal(err)
	}
	if len(conv.Transcript) != 5 {
		t.Errorf("transcript len = %d, want 5", len(conv.Transcript))
	}
}

func TestMCPTool_AskAssistantFallback(t *testing.T) {
	env := newTestEnv(t, "")
	env.gen.err = errors.New("quota exceeded")

	result := callTool(t, mcpAskAssistant(env.deps), "ask_assistant", map[string]interface{}{"message": "maintenance?"})
	if result.IsError {
		t.Fatalf("assistant failure should not be a tool error: %s", toolText(t, result))
	}
	var reply assistant.Reply
	if err := json.Unmarshal([]byte(toolText(t, result)), &reply); err != nil {
		t.Fatal(err)
	}
	if reply.Success || reply.Message != assistant.FallbackMessage("maintenance") || !strings.Contains(reply.Error, "quota") {
		t.Errorf("reply = %+v", reply)
	}
}

func TestMCPTool_SearchAddress(t *testing.T) {
	env := newTestEnv(t, "")
	env.geo.err = errors.New("down")

	result := callTool(t, mcpSearchAddress(env.deps), "search_address", map[string]interface{}{"query": "denver"})
	var places []geocoding.Place
	if err := json.Unmarshal([]byte(toolText(t, result)), &places); err != nil {
		t.Fatal(err)
	}
	if len(places) != 1 || !strings.Contains(places[0].Address, "Denver") {
		t.Errorf("places = %+v", places)
	}
}

func TestNewMCPServer(t *testing.T) {
	env := newTestEnv(t, "")
	if s := NewMCPServer(env.deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
