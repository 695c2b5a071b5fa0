package assistant

import (
	"fmt"
	"strings"

	"github.com/rain2recharge/r2r/internal/assessment"
)

// PersonaPrompt primes every conversation. It is sent as the first history
// entry and never shown in the transcript.
const PersonaPrompt = `You are the Rain2Recharge assistant, an expert in rainwater harvesting, groundwater recharge and residential water systems.

Expertise:
- Rainwater collection system design, tank sizing and filtration
- Recharge pits, percolation trenches and soil infiltration
- Installation costs, rebates, payback and return on investment
- Maintenance schedules and seasonal care
- Local water regulations and permits

Style:
- Be friendly, practical and concise; prefer short paragraphs and bullet lists
- Use US units (gallons, square feet, inches of rainfall) unless asked otherwise
- When numbers depend on the user's property, say which inputs you assumed
- If a question is outside water sustainability, steer back politely`

// ContextHints carries optional facts about the user's property that are
// rendered ahead of each question.
type ContextHints struct {
	Location      string `json:"location,omitempty"`
	PropertySize  string `json:"propertySize,omitempty"`
	RoofArea      string `json:"roofArea,omitempty"`
	CurrentSystem string `json:"currentSystem,omitempty"`
}

// IsEmpty reports whether no hint is set.
func (h ContextHints) IsEmpty() bool {
	return h == ContextHints{}
}

// Merge returns h overlaid with every non-empty field of o.
func (h ContextHints) Merge(o ContextHints) ContextHints {
	if o.Location != "" {
		h.Location = o.Location
	}
	if o.PropertySize != "" {
		h.PropertySize = o.PropertySize
	}
	if o.RoofArea != "" {
		h.RoofArea = o.RoofArea
	}
	if o.CurrentSystem != "" {
		h.CurrentSystem = o.CurrentSystem
	}
	return h
}

func (h ContextHints) lines() []string {
	var lines []string
	if h.Location != "" {
		lines = append(lines, "Location: "+h.Location)
	}
	if h.PropertySize != "" {
		lines = append(lines, "Property size: "+h.PropertySize)
	}
	if h.RoofArea != "" {
		lines = append(lines, "Roof area: "+h.RoofArea)
	}
	if h.CurrentSystem != "" {
		lines = append(lines, "Current system: "+h.CurrentSystem)
	}
	return lines
}

// FormatPrompt renders the outgoing user turn. Without hints the text is sent
// as is; otherwise one line per present hint precedes "User question: <text>".
func FormatPrompt(text string, hints ContextHints) string {
	lines := hints.lines()
	if len(lines) == 0 {
		return text
	}
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	sb.WriteString("\nUser question: ")
	sb.WriteString(text)
	return sb.String()
}

// HintsFromRecord derives context hints from a wizard record.
func HintsFromRecord(r assessment.Record) ContextHints {
	var h ContextHints
	if r.Location != nil {
		h.Location = r.Location.Address
	}
	if r.Property != nil {
		h.PropertySize = fmt.Sprintf("%.2f acres (%s)", r.Property.LotSizeAcres, r.Property.HouseType)
		h.RoofArea = fmt.Sprintf("%.0f sq ft", r.Property.RoofSizeSqFt)
	}
	return h
}

const genericGreeting = "Hi! I'm your Rain2Recharge assistant. Ask me anything about rainwater harvesting, system costs or maintenance."

var stepGreetings = map[assessment.Step]string{
	assessment.StepLocation:    "Hi! I can help you get started. Where is your property located? Rainfall varies a lot by region, so location shapes everything else.",
	assessment.StepProperty:    "Great, I have your location. Tell me about your property: the roof size and lot size determine how much water you can collect.",
	assessment.StepClimate:     "I'm looking at the climate for your area. Ask me how rainfall patterns affect harvesting while that loads.",
	assessment.StepFeasibility: "Your feasibility analysis is ready. Want me to walk you through the numbers or explain the system options?",
	assessment.StepResults:     "Your assessment is complete! I can explain your results, compare systems or help you plan installation.",
}

// Greeting returns the opening assistant message for a conversation started
// at the given wizard step. Unknown steps get a generic opener.
func Greeting(step assessment.Step) string {
	if g, ok := stepGreetings[step]; ok {
		return g
	}
	return genericGreeting
}
