package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Message struct {
	ID        string    `json:"id" db:"id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Role      string    `json:"role" db:"role"` // user, assistant, or system
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ConversationContext is the per-session snapshot of what the assistant has
// learned about the visitor so far.
type ConversationContext struct {
	SessionID        string     `json:"session_id" db:"session_id"`
	Role             string     `json:"role" db:"role"`
	RoleCategory     string     `json:"role_category" db:"role_category"`
	Intent           string     `json:"intent" db:"intent"`
	CapabilitiesUsed StringList `json:"capabilities_used" db:"capabilities_used"`
	LeadID           string     `json:"lead_id,omitempty" db:"lead_id"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// HasCapability reports whether name was already used in this session.
func (c *ConversationContext) HasCapability(name string) bool {
	for _, used := range c.CapabilitiesUsed {
		if strings.EqualFold(used, name) {
			return true
		}
	}
	return false
}

// StringList is stored as a JSON array in a TEXT column so the same schema
// works on postgres and sqlite.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported type %T for StringList", src)
	}
	if len(raw) == 0 {
		*l = StringList{}
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("failed to decode string list: %w", err)
	}
	*l = out
	return nil
}
