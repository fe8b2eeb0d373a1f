package models

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
)

// ValidationError describes a single invalid input field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found in one input.
type ValidationErrors []*ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}
	return "invalid input: " + strings.Join(parts, "; ")
}

// Fields maps field name to message, for JSON error bodies.
func (v ValidationErrors) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, e := range v {
		out[e.Field] = e.Message
	}
	return out
}

func (v *ValidationErrors) add(field, format string, args ...interface{}) {
	*v = append(*v, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// err returns nil when nothing was collected so callers can `return v.err()`.
func (v ValidationErrors) err() error {
	if len(v) == 0 {
		return nil
	}
	sort.SliceStable(v, func(i, j int) bool { return v[i].Field < v[j].Field })
	return v
}

// Invalid builds a single-field validation error.
func Invalid(field, message string) error {
	return ValidationErrors{{Field: field, Message: message}}
}

// NormalizeEmail trims and lowercases an address and checks its syntax.
func NormalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return email, false
	}
	return email, true
}

func runeLen(s string) int {
	return len([]rune(s))
}
