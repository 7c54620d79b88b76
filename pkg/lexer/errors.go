package lexer

import (
	"errors"
	"fmt"

	"fabrik/pkg/token"
)

// Sentinel lexer error kinds, wrapped with source position via Error.
var (
	ErrUnterminatedString = errors.New("unterminated string")
	ErrUnknownCharacter    = errors.New("unknown character")
	ErrMalformedNumber     = errors.New("malformed number")
)

// Error is a fatal lexical error carrying the source position it
// occurred at, per §7 ("carry span").
type Error struct {
	Kind error
	Pos  token.Position
	Text string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Text)
}

func (e *Error) Unwrap() error { return e.Kind }
