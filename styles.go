package apistyles

import (
	"fmt"
	"strings"
)

// Style identifies one of the two remote API styles.
type Style string

const (
	// StyleTurnBased sends the full running message list with every call to a
	// stateless completion endpoint.
	StyleTurnBased Style = "chat"

	// StyleManaged lets the service hold conversation state, continued through a
	// previous response identifier.
	StyleManaged Style = "responses"
)

// Styles lists every known style in display order.
var Styles = []Style{StyleTurnBased, StyleManaged}

// String implements fmt.Stringer.
func (s Style) String() string {
	return string(s)
}

// Title is a short human readable name for the style.
func (s Style) Title() string {
	switch s {
	case StyleTurnBased:
		return "Turn-based message list"
	case StyleManaged:
		return "Managed iteration"
	default:
		return string(s)
	}
}

// ParseStyle accepts a style name or one of its common aliases.
func ParseStyle(s string) (Style, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chat", "completions", "chat-completions", "turn", "turn-based":
		return StyleTurnBased, nil
	case "responses", "response", "managed", "iterative":
		return StyleManaged, nil
	default:
		return "", fmt.Errorf("unknown API style %q (want %q or %q)", s, StyleTurnBased, StyleManaged)
	}
}

// Set implements pflag.Value so a Style can be bound directly to a flag.
func (s *Style) Set(v string) error {
	parsed, err := ParseStyle(v)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Type implements pflag.Value.
func (s *Style) Type() string {
	return "style"
}
