// Package intelligence holds the rule-based classifiers the chat assistant
// runs on every visitor message: intent, role, tool suggestion and lead
// scoring. Everything here is a pure function over strings and static tables.
package intelligence

import (
	"strings"
)

type IntentType string

const (
	IntentConsulting IntentType = "consulting"
	IntentWorkshop   IntentType = "workshop"
	IntentOther      IntentType = "other"
)

// ParseIntentType maps free text to a known intent, defaulting to other.
func ParseIntentType(s string) IntentType {
	switch IntentType(strings.ToLower(strings.TrimSpace(s))) {
	case IntentConsulting:
		return IntentConsulting
	case IntentWorkshop:
		return IntentWorkshop
	default:
		return IntentOther
	}
}

type Intent struct {
	Type       IntentType `json:"type"`
	Confidence float64    `json:"confidence"`
	Matches    []string   `json:"matches"`
}

var workshopKeywords = []string{
	"workshop",
	"training",
	"train my team",
	"course",
	"bootcamp",
	"hands-on",
	"session for my team",
	"teach",
	"upskill",
	"curriculum",
}

var consultingKeywords = []string{
	"consult",
	"consulting",
	"consultant",
	"strategy",
	"roadmap",
	"implement",
	"implementation",
	"integrate",
	"integration",
	"automation",
	"automate",
	"advisory",
	"audit",
	"build",
	"proof of concept",
	"poc",
	"hire",
}

// DetectIntent classifies a chat message as consulting, workshop or other.
func DetectIntent(text string) Intent {
	lower := strings.ToLower(text)

	workshop := matchKeywords(lower, workshopKeywords)
	consulting := matchKeywords(lower, consultingKeywords)

	var (
		kind    IntentType
		matches []string
	)
	switch {
	case len(workshop) == 0 && len(consulting) == 0:
		return Intent{Type: IntentOther, Matches: []string{}}
	case len(workshop) > len(consulting):
		kind, matches = IntentWorkshop, workshop
	case len(consulting) > len(workshop):
		kind, matches = IntentConsulting, consulting
	case containsWord(lower, "workshop"):
		kind, matches = IntentWorkshop, workshop
	default:
		kind, matches = IntentConsulting, consulting
	}

	confidence := 0.5 + 0.15*float64(len(matches))
	if confidence > 1 {
		confidence = 1
	}
	return Intent{Type: kind, Confidence: confidence, Matches: matches}
}

// matchKeywords returns the keywords found in lower as whole words or
// phrases. Where several keywords start at the same position only the
// longest counts, so "consulting" is one hit and not consult+consulting.
func matchKeywords(lower string, keywords []string) []string {
	longest := make(map[int]int)
	for k, kw := range keywords {
		for _, i := range wordIndexes(lower, kw) {
			if cur, ok := longest[i]; !ok || len(kw) > len(keywords[cur]) {
				longest[i] = k
			}
		}
	}
	hit := make([]bool, len(keywords))
	for _, k := range longest {
		hit[k] = true
	}
	var found []string
	for k, kw := range keywords {
		if hit[k] {
			found = append(found, kw)
		}
	}
	return found
}

func containsWord(s, phrase string) bool {
	return len(wordIndexes(s, phrase)) > 0
}

// wordIndexes finds phrase in s starting at a word boundary. The end is
// left open so "consult" also matches "consulted", except for short phrases
// like "poc" which must end on a boundary too.
func wordIndexes(s, phrase string) []int {
	var out []int
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], phrase)
		if i < 0 {
			break
		}
		i += from
		end := i + len(phrase)
		startOK := i == 0 || !isWordByte(s[i-1])
		endOK := len(phrase) > 3 || end == len(s) || !isWordByte(s[end])
		if startOK && endOK {
			out = append(out, i)
		}
		from = i + 1
	}
	return out
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
