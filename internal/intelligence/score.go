package intelligence

import "strings"

// LeadSignals is everything ScoreLead looks at.
type LeadSignals struct {
	Email            string
	Company          string
	RoleCategory     RoleCategory
	Intent           IntentType
	CapabilitiesUsed []string
}

var freeMailDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"icloud.com":     true,
	"me.com":         true,
	"aol.com":        true,
	"proton.me":      true,
	"protonmail.com": true,
	"gmx.com":        true,
	"gmx.de":         true,
	"web.de":         true,
	"mail.com":       true,
}

// BusinessEmail reports whether email is on a non free-mail domain.
func BusinessEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return false
	}
	return !freeMailDomains[strings.ToLower(email[at+1:])]
}

// ScoreLead rates a lead from 0 to 100.
func ScoreLead(s LeadSignals) int {
	score := 0
	if BusinessEmail(s.Email) {
		score += 20
	}
	if strings.TrimSpace(s.Company) != "" {
		score += 15
	}

	switch s.RoleCategory {
	case RoleExecutive:
		score += 25
	case RoleTechnicalLeader:
		score += 20
	case RoleProduct, RoleMarketing, RolePeople:
		score += 10
	case "":
	default:
		score += 5
	}

	switch s.Intent {
	case IntentConsulting:
		score += 20
	case IntentWorkshop:
		score += 15
	}

	usage := 5 * len(s.CapabilitiesUsed)
	if usage > 20 {
		usage = 20
	}
	score += usage

	if score > 100 {
		score = 100
	}
	return score
}
