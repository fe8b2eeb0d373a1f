package intelligence

import (
	"regexp"
	"sort"
	"strings"
)

type RoleCategory string

const (
	RoleExecutive       RoleCategory = "executive"
	RoleTechnicalLeader RoleCategory = "technical_leader"
	RolePractitioner    RoleCategory = "practitioner"
	RoleProduct         RoleCategory = "product"
	RoleMarketing       RoleCategory = "marketing"
	RolePeople          RoleCategory = "people"
	RoleConsultant      RoleCategory = "consultant"
	RoleStudent         RoleCategory = "student"
	RoleOther           RoleCategory = "other"
)

// Role is what DetectRole learned about the visitor. The zero value means
// no role was mentioned.
type Role struct {
	Title      string       `json:"title"`
	Category   RoleCategory `json:"category"`
	Seniority  string       `json:"seniority,omitempty"`
	Confidence float64      `json:"confidence"`
}

func (r Role) Empty() bool { return r.Title == "" }

var roleTitles = map[string]RoleCategory{
	"ceo":                     RoleExecutive,
	"chief executive officer": RoleExecutive,
	"founder":                 RoleExecutive,
	"co-founder":              RoleExecutive,
	"cofounder":               RoleExecutive,
	"owner":                   RoleExecutive,
	"president":               RoleExecutive,
	"managing director":       RoleExecutive,
	"coo":                     RoleExecutive,
	"cfo":                     RoleExecutive,

	"cto":                      RoleTechnicalLeader,
	"chief technology officer": RoleTechnicalLeader,
	"cio":                      RoleTechnicalLeader,
	"vp engineering":           RoleTechnicalLeader,
	"vp of engineering":        RoleTechnicalLeader,
	"head of engineering":      RoleTechnicalLeader,
	"head of data":             RoleTechnicalLeader,
	"engineering manager":      RoleTechnicalLeader,
	"tech lead":                RoleTechnicalLeader,

	"developer":          RolePractitioner,
	"engineer":           RolePractitioner,
	"software engineer":  RolePractitioner,
	"software developer": RolePractitioner,
	"data scientist":     RolePractitioner,
	"data engineer":      RolePractitioner,
	"ml engineer":        RolePractitioner,
	"analyst":            RolePractitioner,

	"product manager": RoleProduct,
	"product owner":   RoleProduct,
	"head of product": RoleProduct,
	"pm":              RoleProduct,

	"cmo":               RoleMarketing,
	"marketing manager": RoleMarketing,
	"head of marketing": RoleMarketing,
	"marketer":          RoleMarketing,
	"marketing":         RoleMarketing,

	"hr":                       RolePeople,
	"hr manager":               RolePeople,
	"head of people":           RolePeople,
	"people partner":           RolePeople,
	"l&d":                      RolePeople,
	"learning and development": RolePeople,

	"consultant": RoleConsultant,
	"student":    RoleStudent,
}

// longest first so "software engineer" wins over "engineer"
var sortedRoleTitles = func() []string {
	titles := make([]string, 0, len(roleTitles))
	for t := range roleTitles {
		titles = append(titles, t)
	}
	sort.Slice(titles, func(i, j int) bool {
		if len(titles[i]) != len(titles[j]) {
			return len(titles[i]) > len(titles[j])
		}
		return titles[i] < titles[j]
	})
	return titles
}()

var seniorityModifiers = map[string]string{
	"senior":    "senior",
	"sr":        "senior",
	"lead":      "senior",
	"principal": "senior",
	"staff":     "senior",
	"junior":    "junior",
	"jr":        "junior",
}

var rolePattern = regexp.MustCompile(`(?i)\b(i am|i'm|im|as|my role is|my title is|i work as|working as)\s+(an?\s+|the\s+)?([a-z][a-z0-9 &/-]{0,60})`)

// triggers that name a role even when the title is not in the table
var explicitRoleTriggers = map[string]bool{
	"my role is":  true,
	"my title is": true,
	"i work as":   true,
	"working as":  true,
}

// words that follow "i'm a" or "as a" without being a job title
var nonTitleWords = map[string]bool{
	"bit":         true,
	"big":         true,
	"huge":        true,
	"little":      true,
	"result":      true,
	"matter":      true,
	"whole":       true,
	"team":        true,
	"company":     true,
	"business":    true,
	"startup":     true,
	"group":       true,
	"fan":         true,
	"first":       true,
	"quick":       true,
	"new":         true,
	"small":       true,
	"reminder":    true,
	"follow-up":   true,
	"example":     true,
	"side":        true,
	"rule":        true,
	"consequence": true,
	"part":        true,
	"bonus":       true,
	"looking":     true,
	"happy":       true,
	"interested":  true,
	"curious":     true,
	"trying":      true,
}

var titleTerminators = []string{" at ", " for ", " in ", " of ", " with ", " and ", " from ", " who ", " that "}

// DetectRole looks for a self-described job title in text. Titles from the
// table win; otherwise the first plausible unknown title is returned with
// category other. After "i am", "i'm", "im" and "as" an unknown title needs
// an article ("i'm a plumber") so names and phrases like "as soon as" are
// not taken for titles.
func DetectRole(text string) Role {
	var fallback Role
	for pos := 0; pos < len(text); {
		loc := rolePattern.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			break
		}
		trigger := strings.ToLower(text[pos+loc[2] : pos+loc[3]])
		hasArticle := loc[4] >= 0
		rest := strings.ToLower(strings.TrimSpace(text[pos+loc[6] : pos+loc[7]]))
		// resume at the title so a trigger inside it still gets a look
		pos += loc[6]

		seniority := ""
		if first, after, ok := strings.Cut(rest, " "); ok {
			if s, found := seniorityModifiers[first]; found {
				seniority, rest = s, after
			}
		}

		if title, ok := matchTitle(rest); ok {
			category := roleTitles[title]
			return Role{
				Title:      title,
				Category:   category,
				Seniority:  senioritySuffix(category, seniority),
				Confidence: 0.9,
			}
		}

		if !fallback.Empty() || !(explicitRoleTriggers[trigger] || hasArticle) {
			continue
		}
		if title := cutTitle(rest); title != "" && !nonTitleWords[strings.Fields(title)[0]] {
			fallback = Role{Title: title, Category: RoleOther, Seniority: seniority, Confidence: 0.5}
		}
	}
	return fallback
}

func matchTitle(rest string) (string, bool) {
	for _, title := range sortedRoleTitles {
		if !strings.HasPrefix(rest, title) {
			continue
		}
		if len(rest) == len(title) || !isWordByte(rest[len(title)]) {
			return title, true
		}
	}
	return "", false
}

func cutTitle(rest string) string {
	padded := rest + " "
	end := len(rest)
	for _, term := range titleTerminators {
		if i := strings.Index(padded, term); i >= 0 && i < end {
			end = i
		}
	}
	title := strings.TrimSpace(rest[:end])
	if len(title) > 40 {
		title = strings.TrimSpace(title[:40])
	}
	return title
}

func senioritySuffix(category RoleCategory, modifier string) string {
	switch category {
	case RoleExecutive:
		return "executive"
	case RoleTechnicalLeader:
		return "leadership"
	}
	return modifier
}
