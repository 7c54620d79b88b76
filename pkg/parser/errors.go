package parser

import (
	"errors"
	"fmt"
	"strings"

	"fabrik/pkg/token"
)

// Sentinel parse-error kinds (§7).
var (
	ErrUnexpectedToken = errors.New("unexpected-token")
	ErrExpectedToken    = errors.New("expected-token")
)

// Error is a fatal parse error. It formats a caret-pointer source
// snippet when Source is available, matching the teacher's diagnostic
// style of pairing a message with a pointed-to location.
type Error struct {
	Kind     error
	Token    token.Token
	Expected string
	Context  string
	Source   string
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s at %s", e.Kind, e.Token.Pos)
	if e.Context != "" {
		fmt.Fprintf(&sb, " (in %s)", e.Context)
	}
	if e.Expected != "" {
		fmt.Fprintf(&sb, ": expected %s, got %s %q", e.Expected, e.Token.Kind, e.Token.Lexeme)
	} else {
		fmt.Fprintf(&sb, ": got %s %q", e.Token.Kind, e.Token.Lexeme)
	}
	if snippet := e.snippet(); snippet != "" {
		sb.WriteString("\n")
		sb.WriteString(snippet)
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Kind }

func (e *Error) snippet() string {
	if e.Source == "" {
		return ""
	}
	lines := strings.Split(e.Source, "\n")
	idx := e.Token.Pos.Line - 1
	if idx < 0 || idx >= len(lines) {
		return ""
	}
	line := lines[idx]
	col := e.Token.Pos.Column - 1
	if col < 0 {
		col = 0
	}
	if col > len(line) {
		col = len(line)
	}
	return fmt.Sprintf("  %s\n  %s^", line, strings.Repeat(" ", col))
}
