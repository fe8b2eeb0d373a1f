package intelligence

import (
	"sort"
	"strings"
)

// Capability is a named chat tool the assistant can offer.
type Capability struct {
	Name        string       `json:"name"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
	Intents     []IntentType `json:"intents"` // empty means every intent
	Priority    int          `json:"priority"`
}

func (c Capability) serves(intent IntentType) bool {
	if len(c.Intents) == 0 {
		return true
	}
	for _, i := range c.Intents {
		if i == intent {
			return true
		}
	}
	return false
}

const DefaultSuggestionLimit = 3

var capabilities = []Capability{
	{
		Name:        "roi_calculator",
		Label:       "ROI calculator",
		Description: "Estimate time and cost savings from automating a workflow.",
		Intents:     []IntentType{IntentConsulting},
		Priority:    1,
	},
	{
		Name:        "workshop_planner",
		Label:       "Workshop planner",
		Description: "Sketch an agenda and format for a team training session.",
		Intents:     []IntentType{IntentWorkshop},
		Priority:    1,
	},
	{
		Name:        "meeting_booking",
		Label:       "Book a call",
		Description: "Pick a slot for a short discovery call.",
		Intents:     []IntentType{IntentConsulting, IntentWorkshop},
		Priority:    2,
	},
	{
		Name:        "document_analysis",
		Label:       "Document analysis",
		Description: "Upload a brief or process document for a quick review.",
		Intents:     []IntentType{IntentConsulting},
		Priority:    3,
	},
	{
		Name:        "proposal_export",
		Label:       "Proposal export",
		Description: "Export the discussion as a one-page proposal PDF.",
		Intents:     []IntentType{IntentConsulting, IntentWorkshop},
		Priority:    4,
	},
	{
		Name:        "search",
		Label:       "Web search",
		Description: "Look up current information during the chat.",
		Priority:    5,
	},
	{
		Name:        "voice",
		Label:       "Voice",
		Description: "Talk to the assistant instead of typing.",
		Priority:    6,
	},
	{
		Name:        "screen_share",
		Label:       "Screen share",
		Description: "Share a screen so the assistant can see what you see.",
		Priority:    7,
	},
	{
		Name:        "webcam",
		Label:       "Webcam",
		Description: "Show a whiteboard or object over the camera.",
		Priority:    8,
	},
}

var capabilityIndex = func() map[string]Capability {
	idx := make(map[string]Capability, len(capabilities))
	for _, c := range capabilities {
		idx[c.Name] = c
	}
	return idx
}()

// Capabilities returns a copy of the full catalogue.
func Capabilities() []Capability {
	out := make([]Capability, len(capabilities))
	copy(out, capabilities)
	return out
}

// KnownCapability reports whether name is in the catalogue.
func KnownCapability(name string) bool {
	_, ok := capabilityIndex[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// SuggestTools returns up to limit capabilities serving intent that have not
// been used yet, lowest priority value first.
func SuggestTools(intent IntentType, used []string, limit int) []Capability {
	if limit <= 0 {
		limit = DefaultSuggestionLimit
	}

	seen := make(map[string]bool, len(used))
	for _, u := range used {
		seen[strings.ToLower(strings.TrimSpace(u))] = true
	}

	out := make([]Capability, 0, limit)
	for _, c := range capabilities {
		if seen[c.Name] || !c.serves(intent) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
