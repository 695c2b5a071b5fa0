package assistant

import "strings"

// SuggestionRule maps a trigger substring of a reply to follow-up labels.
type SuggestionRule struct {
	Trigger string
	Labels  []string
}

// MaxSuggestions caps the number of follow-up chips returned with a reply.
const MaxSuggestions = 4

// SuggestionRules is scanned in order against the lowercased reply text.
var SuggestionRules = []SuggestionRule{
	{Trigger: "cost", Labels: []string{"Show cost breakdown", "Calculate my ROI", "Available rebates"}},
	{Trigger: "system", Labels: []string{"Compare system types", "Which system fits my roof?"}},
	{Trigger: "roi", Labels: []string{"Calculate my ROI", "Show payback timeline", "Compare financing options"}},
	{Trigger: "install", Labels: []string{"Find local installers", "Installation timeline"}},
	{Trigger: "maintenance", Labels: []string{"Maintenance schedule", "Seasonal checklist"}},
	{Trigger: "regulation", Labels: []string{"Check local permits", "Water rights in my area"}},
}

// ExtractSuggestions unions the labels of every matching rule, dropping
// duplicates and keeping at most MaxSuggestions in first-seen order.
func ExtractSuggestions(reply string) []string {
	lower := strings.ToLower(reply)
	seen := make(map[string]bool)
	var out []string
	for _, rule := range SuggestionRules {
		if !strings.Contains(lower, rule.Trigger) {
			continue
		}
		for _, label := range rule.Labels {
			if seen[label] {
				continue
			}
			seen[label] = true
			out = append(out, label)
			if len(out) == MaxSuggestions {
				return out
			}
		}
	}
	return out
}

// Attachment types.
const (
	AttachmentCalculator = "calculator"
	AttachmentComparison = "comparison"
	AttachmentPoll       = "poll"
)

// Attachment is a structured hint block rendered next to a model turn.
type Attachment struct {
	Type        string   `json:"type"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Question    string   `json:"question,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Where an attachment rule looks for its triggers.
const (
	MatchMessage = 1 << iota
	MatchReply
)

// AttachmentRule emits Attachment when any trigger appears in the scanned text.
type AttachmentRule struct {
	Triggers   []string
	Scope      int
	Attachment Attachment
}

// AttachmentRules is evaluated in order; each rule contributes at most once.
var AttachmentRules = []AttachmentRule{
	{
		Triggers: []string{"cost", "roi", "savings"},
		Scope:    MatchMessage | MatchReply,
		Attachment: Attachment{
			Type:        AttachmentCalculator,
			Title:       "Savings calculator",
			Description: "Estimate installation cost, yearly savings and payback for your property.",
		},
	},
	{
		Triggers: []string{"system", "compare"},
		Scope:    MatchMessage,
		Attachment: Attachment{
			Type:        AttachmentComparison,
			Title:       "System comparison",
			Description: "Rain barrels, above-ground tanks, underground cisterns and recharge pits side by side.",
		},
	},
	{
		Triggers: []string{"what", "prefer"},
		Scope:    MatchReply,
		Attachment: Attachment{
			Type:     AttachmentPoll,
			Question: "What matters most to you in a rainwater system?",
			Options:  []string{"Lowest upfront cost", "Maximum water savings", "Minimal maintenance", "Groundwater recharge"},
		},
	},
}

// ExtractAttachments applies AttachmentRules to the user message and reply.
func ExtractAttachments(message, reply string) []Attachment {
	msg := strings.ToLower(message)
	rep := strings.ToLower(reply)
	var out []Attachment
	for _, rule := range AttachmentRules {
		if rule.matches(msg, rep) {
			a := rule.Attachment
			a.Options = append([]string(nil), a.Options...)
			out = append(out, a)
		}
	}
	return out
}

func (r AttachmentRule) matches(msg, rep string) bool {
	for _, t := range r.Triggers {
		if r.Scope&MatchMessage != 0 && strings.Contains(msg, t) {
			return true
		}
		if r.Scope&MatchReply != 0 && strings.Contains(rep, t) {
			return true
		}
	}
	return false
}

// FallbackRule picks a canned paragraph when the endpoint cannot answer.
type FallbackRule struct {
	Trigger string
	Message string
}

// FallbackRules is checked in order against the lowercased user text.
var FallbackRules = []FallbackRule{
	{
		Trigger: "cost",
		Message: "A typical residential rainwater harvesting system costs between $2,500 and $8,000 installed, depending on tank size, filtration and whether the tank sits above or below ground. Many cities and water districts offer rebates that cover 20% or more of the cost. Complete your assessment for an estimate based on your roof and lot size.",
	},
	{
		Trigger: "system",
		Message: "The main options are rain barrels for small gardens, above-ground tanks for household irrigation, underground cisterns for larger capacity, and recharge pits that return water to the aquifer. The right choice depends on your roof area, local rainfall and how you plan to use the water.",
	},
	{
		Trigger: "maintenance",
		Message: "Rainwater systems need little upkeep: clean gutters and first-flush diverters every season, check screens and filters after heavy storms, and inspect the tank once a year for sediment. Recharge pits should be cleared of silt before the rainy season.",
	},
	{
		Trigger: "roi",
		Message: "Most residential systems pay for themselves in 5 to 12 years. Payback is faster with a large roof, high rainfall, high local water rates and available rebates. Your feasibility report shows the payback period estimated for your property.",
	},
}

// GenericFallback is returned when no fallback rule matches.
const GenericFallback = "I'm having trouble reaching the assistant right now. In the meantime, your assessment results cover collection potential, costs and payback for your property. Please try your question again in a moment."

// FallbackSuggestions accompany every fallback reply.
var FallbackSuggestions = []string{
	"Tell me about system costs",
	"What maintenance is required?",
	"How long is the payback period?",
}

// FallbackMessage returns the canned paragraph for the user's text.
func FallbackMessage(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range FallbackRules {
		if strings.Contains(lower, rule.Trigger) {
			return rule.Message
		}
	}
	return GenericFallback
}
