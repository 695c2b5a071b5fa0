package assistant

import "strings"

// Roles used in generateContent history entries.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is one text segment of a Content entry.
type Part struct {
	Text string `json:"text"`
}

// Content is a single history entry in the generateContent wire format.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Text concatenates all parts.
func (c Content) Text() string {
	if len(c.Parts) == 1 {
		return c.Parts[0].Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

func textContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

type GenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type SafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GenerateRequest is the body of a generateContent call.
type GenerateRequest struct {
	Contents         []Content        `json:"contents"`
	GenerationConfig GenerationConfig `json:"generationConfig"`
	SafetySettings   []SafetySetting  `json:"safetySettings"`
}

// GenerateResponse is the subset of the generateContent response we read.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

// DefaultGenerationConfig is sent with every request.
var DefaultGenerationConfig = GenerationConfig{
	Temperature:     0.7,
	TopK:            40,
	TopP:            0.95,
	MaxOutputTokens: 1024,
}

const blockMediumAndAbove = "BLOCK_MEDIUM_AND_ABOVE"

// DefaultSafetySettings blocks medium-and-above harassment, hate speech,
// sexually explicit and dangerous content.
var DefaultSafetySettings = []SafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: blockMediumAndAbove},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: blockMediumAndAbove},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: blockMediumAndAbove},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: blockMediumAndAbove},
}
