package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rain2recharge/r2r/internal/assessment"
	"github.com/rain2recharge/r2r/internal/assistant"
	"github.com/rain2recharge/r2r/internal/geocoding"
)

// DefaultAssessmentID is used by MCP tools when no id is given and backs the
// assessment://current resource.
const DefaultAssessmentID = "default"

// NewMCPServer creates an MCP server exposing the wizard, the assistant and
// geocoding as tools.
func NewMCPServer(deps Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"r2r",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("Rain2Recharge: rainwater harvesting assessment wizard, water-systems assistant and address lookup."),
		server.WithRecovery(),
	)

	idParam := mcp.WithString("assessment_id", mcp.Description("Assessment id (default \""+DefaultAssessmentID+"\")"))

	s.AddTool(
		mcp.NewTool("get_assessment",
			mcp.WithDescription("Return the assessment record, current step and inferred step."),
			idParam,
		),
		mcpGetAssessment(deps),
	)

	s.AddTool(
		mcp.NewTool("set_location",
			mcp.WithDescription("Set the property address (wizard step 1). Coordinates are optional."),
			idParam,
			mcp.WithString("address", mcp.Description("Display address"), mcp.Required()),
			mcp.WithNumber("lat", mcp.Description("Latitude")),
			mcp.WithNumber("lng", mcp.Description("Longitude")),
		),
		mcpSetLocation(deps),
	)

	s.AddTool(
		mcp.NewTool("set_property",
			mcp.WithDescription("Set property details (wizard step 2)."),
			idParam,
			mcp.WithString("house_type", mcp.Description("single-family, townhouse, multi-family or commercial"), mcp.Required()),
			mcp.WithNumber("roof_size_sqft", mcp.Description("Roof area in square feet (500-5000)"), mcp.Required()),
			mcp.WithNumber("lot_size_acres", mcp.Description("Lot size in acres (0.1-2.0)"), mcp.Required()),
		),
		mcpSetProperty(deps),
	)

	s.AddTool(
		mcp.NewTool("advance_assessment",
			mcp.WithDescription("Move the wizard to the next step. Leaving the property step loads climate data and lands on feasibility."),
			idParam,
		),
		mcpAdvance(deps),
	)

	s.AddTool(
		mcp.NewTool("ask_assistant",
			mcp.WithDescription("Ask the water-systems assistant a question. Starts a new conversation when conversation_id is empty."),
			mcp.WithString("message", mcp.Description("The question"), mcp.Required()),
			mcp.WithString("conversation_id", mcp.Description("Existing conversation id")),
			idParam,
		),
		mcpAskAssistant(deps),
	)

	s.AddTool(
		mcp.NewTool("search_address",
			mcp.WithDescription("Look up addresses matching a free-text query."),
			mcp.WithString("query", mcp.Description("Address or place name"), mcp.Required()),
		),
		mcpSearchAddress(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"assessment://current",
			"Current Assessment",
			mcp.WithResourceDescription("The default assessment state as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceAssessment(deps),
	)

	return s
}

func mcpAccumulator(deps Deps, req mcp.CallToolRequest) (*assessment.Accumulator, error) {
	id := strings.TrimSpace(req.GetString("assessment_id", ""))
	if id == "" {
		id = DefaultAssessmentID
	}
	return deps.Assessments.Get(id)
}

func mcpJSON(v any) *mcp.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err))
	}
	return mcpText(string(b))
}

func mcpGetAssessment(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		acc, err := mcpAccumulator(deps, req)
		if err != nil {
			return mcpError(fmt.Sprintf("loading assessment: %v", err)), nil
		}
		return mcpJSON(acc.Snapshot()), nil
	}
}

func mcpSetLocation(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		address, err := req.RequireString("address")
		if err != nil || strings.TrimSpace(address) == "" {
			return mcpError("address is required"), nil
		}
		loc := assessment.Location{Address: strings.TrimSpace(address)}

		args := req.GetArguments()
		_, hasLat := args["lat"]
		_, hasLng := args["lng"]
		if hasLat != hasLng {
			return mcpError("lat and lng must be given together"), nil
		}
		if hasLat {
			loc.Coordinates = &assessment.Coordinates{
				Lat: req.GetFloat("lat", 0),
				Lng: req.GetFloat("lng", 0),
			}
		}

		acc, err := mcpAccumulator(deps, req)
		if err != nil {
			return mcpError(fmt.Sprintf("loading assessment: %v", err)), nil
		}
		if err := acc.SetLocation(ctx, loc); err != nil {
			return mcpError(fmt.Sprintf("failed to save location: %v", err)), nil
		}
		return mcpJSON(acc.Snapshot()), nil
	}
}

func mcpSetProperty(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		houseType, err := req.RequireString("house_type")
		if err != nil {
			return mcpError("house_type is required"), nil
		}
		roof, err := req.RequireFloat("roof_size_sqft")
		if err != nil {
			return mcpError("roof_size_sqft is required"), nil
		}
		lot, err := req.RequireFloat("lot_size_acres")
		if err != nil {
			return mcpError("lot_size_acres is required"), nil
		}
		details := assessment.PropertyDetails{
			HouseType:    assessment.HouseType(houseType),
			RoofSizeSqFt: roof,
			LotSizeAcres: lot,
		}
		if err := details.Validate(); err != nil {
			return mcpError(err.Error()), nil
		}

		acc, err := mcpAccumulator(deps, req)
		if err != nil {
			return mcpError(fmt.Sprintf("loading assessment: %v", err)), nil
		}
		if err := acc.SetProperty(ctx, details); err != nil {
			return mcpError(fmt.Sprintf("failed to save property: %v", err)), nil
		}
		return mcpJSON(acc.Snapshot()), nil
	}
}

func mcpAdvance(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		acc, err := mcpAccumulator(deps, req)
		if err != nil {
			return mcpError(fmt.Sprintf("loading assessment: %v", err)), nil
		}
		if _, err := acc.Advance(ctx); err != nil {
			if errors.Is(err, assessment.ErrStepIncomplete) {
				return mcpError(fmt.Sprintf("cannot advance: %v", err)), nil
			}
			return mcpError(fmt.Sprintf("advance failed: %v", err)), nil
		}
		return mcpJSON(acc.Snapshot()), nil
	}
}

func mcpAskAssistant(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil || strings.TrimSpace(message) == "" {
			return mcpError("message is required"), nil
		}

		acc, err := mcpAccumulator(deps, req)
		if err != nil {
			return mcpError(fmt.Sprintf("loading assessment: %v", err)), nil
		}
		state := acc.Snapshot()
		hints := assistant.HintsFromRecord(state.Record)

		convID := req.GetString("conversation_id", "")
		if convID == "" {
			conv, err := deps.Chats.Create(state.CurrentStep, hints)
			if err != nil {
				return mcpError(fmt.Sprintf("failed to start conversation: %v", err)), nil
			}
			convID = conv.ID
		}

		_, reply, err := deps.Chats.Send(ctx, convID, message, hints)
		if err != nil {
			return mcpError(fmt.Sprintf("assistant failed: %v", err)), nil
		}

		return mcpJSON(struct {
			ConversationID string `json:"conversation_id"`
			assistant.Reply
		}{convID, reply}), nil
	}
}

func mcpSearchAddress(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcpError("query is required"), nil
		}
		places := deps.Geocoder.Search(ctx, query)
		if places == nil {
			places = []geocoding.Place{}
		}
		return mcpJSON(places), nil
	}
}

func mcpResourceAssessment(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		acc, err := deps.Assessments.Get(DefaultAssessmentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load assessment: %w", err)
		}

		b, err := json.Marshal(acc.Snapshot())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal assessment: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
