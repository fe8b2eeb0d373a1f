package llm

import (
	"fmt"
	"strings"

	"github.com/RichardoC/leadline/internal/intelligence"
	"github.com/RichardoC/leadline/internal/models"
)

const persona = `You are the assistant on an AI consulting and training studio's website.
You help visitors figure out whether they need consulting (strategy, implementation,
automation projects) or a workshop (hands-on team training), answer questions about
how engagements work, and invite qualified visitors to leave their contact details or
book a short call. Keep answers under 150 words, plain text, friendly and specific.
Never invent prices, client names or case studies.`

// systemPrompt adds what we know about the visitor to the persona.
func systemPrompt(c *models.ConversationContext, suggestions []intelligence.Capability) string {
	var b strings.Builder
	b.WriteString(persona)

	if c != nil {
		if c.Role != "" {
			fmt.Fprintf(&b, "\n\nThe visitor described their role as %q (%s). Adjust depth and vocabulary to that.", c.Role, c.RoleCategory)
		}
		switch intelligence.IntentType(c.Intent) {
		case intelligence.IntentConsulting:
			b.WriteString("\n\nThey appear interested in a consulting engagement. Ask about the problem, timeline and team.")
		case intelligence.IntentWorkshop:
			b.WriteString("\n\nThey appear interested in a workshop. Ask about team size, experience level and goals.")
		}
	}

	if len(suggestions) > 0 {
		b.WriteString("\n\nTools you can offer in this chat if they fit the conversation:")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "\n- %s: %s", s.Label, s.Description)
		}
	}
	return b.String()
}

const summaryInstruction = `Summarize the following website chat between a visitor and our assistant
for a sales follow-up. Use at most three sentences. Mention the visitor's goal, their role or
company if stated, and any concrete next step. Reply with the summary only.`

func transcript(history []models.Message) string {
	var b strings.Builder
	for _, m := range history {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}
