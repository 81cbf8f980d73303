// Package naming decides whether candidate entity names are acceptable and
// resolves the uniqueness scope a name competes in. It is purely local:
// validation never touches storage.
package naming

import (
	"fmt"
	"strings"
	"unicode"
)

// DefaultMaxLength caps name length when no explicit policy is configured.
const DefaultMaxLength = 100

// Reasons a candidate name can be rejected.
const (
	ReasonEmpty            = "empty"
	ReasonTooLong          = "too_long"
	ReasonInvalidCharacter = "invalid_character"
)

// NameError reports a malformed candidate name. It is always produced before
// any transaction is opened and is never retried.
type NameError struct {
	Reason string
	Name   string
}

func (e *NameError) Error() string {
	switch e.Reason {
	case ReasonEmpty:
		return "name cannot be empty"
	case ReasonTooLong:
		return "name is too long"
	default:
		return fmt.Sprintf("name contains invalid characters: %q", e.Name)
	}
}

// Policy validates candidate names. The zero value uses DefaultMaxLength.
type Policy struct {
	// MaxLength is the maximum accepted rune count of the raw name.
	MaxLength int
}

// Validate checks a candidate name and returns its normalized form. The
// original spelling is preserved for display; the normalized form is what
// uniqueness comparisons use.
func (p Policy) Validate(name string) (string, error) {
	max := p.MaxLength
	if max <= 0 {
		max = DefaultMaxLength
	}

	if strings.TrimSpace(name) == "" {
		return "", &NameError{Reason: ReasonEmpty, Name: name}
	}
	if len([]rune(name)) > max {
		return "", &NameError{Reason: ReasonTooLong, Name: name}
	}
	for _, r := range name {
		// Space is fine; other control characters (including newlines,
		// tabs and DEL) are not. Printable Unicode is accepted as-is.
		if r != ' ' && (unicode.IsControl(r) || r == 0x7f) {
			return "", &NameError{Reason: ReasonInvalidCharacter, Name: name}
		}
	}
	return Normalize(name), nil
}

// Normalize lowercases a name, trims it, and collapses interior whitespace
// runs to single spaces. Two names are "the same" iff their normalized forms
// are equal.
func Normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// ItemScope is the single global uniqueness scope all item names share.
func ItemScope() string {
	return "item"
}

// FeatureScope returns the uniqueness scope for a feature name. Features
// owned by different items never collide, and standalone features have a
// scope of their own.
func FeatureScope(itemID string) string {
	return "feature:" + itemID
}
