package lexer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabrik/pkg/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeKeywordsAndIdentifiers(t *testing.T) {
	toks, err := New("schema Order { }", Hooks{}).Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []token.Kind{token.KwSchema, token.Identifier, token.LBrace, token.RBrace, token.EOF}, kinds(toks))
}

func TestTokenizeNumbers(t *testing.T) {
	toks, err := New("42 3.14 1_000", Hooks{}).Tokenize()
	require.NoError(t, err)
	require.Len(t, toks, 4)
	assert.Equal(t, token.Int, toks[0].Kind)
	assert.Equal(t, "42", toks[0].Lexeme)
	assert.Equal(t, token.Decimal, toks[1].Kind)
	assert.Equal(t, "3.14", toks[1].Lexeme)
	assert.Equal(t, token.Int, toks[2].Kind)
	assert.Equal(t, "1000", toks[2].Lexeme)
}

func TestTokenizeRangeOperatorNotConfusedWithDecimal(t *testing.T) {
	toks, err := New("1..5", Hooks{}).Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []token.Kind{token.Int, token.DotDot, token.Int, token.EOF}, kinds(toks))
}

func TestTokenizeStringWithEscapes(t *testing.T) {
	toks, err := New(`"hello\nworld\""`, Hooks{}).Tokenize()
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "hello\nworld\"", toks[0].Lexeme)
}

func TestTokenizeUnterminatedStringErrors(t *testing.T) {
	_, err := New(`"oops`, Hooks{}).Tokenize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnterminatedString))
}

func TestTokenizeSkipsLineAndBlockComments(t *testing.T) {
	src := "let x = 1 // comment\n# also a comment\n/* block\ncomment */ let y = 2"
	toks, err := New(src, Hooks{}).Tokenize()
	require.NoError(t, err)
	assert.NotContains(t, kinds(toks), token.Illegal)
}

func TestTokenizeOperators(t *testing.T) {
	toks, err := New("== != <= >= => .. ?", Hooks{}).Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []token.Kind{
		token.Eq, token.NotEq, token.LtEq, token.GtEq, token.Arrow, token.DotDot, token.Question, token.EOF,
	}, kinds(toks))
}

func TestTokenizeUnknownCharacterErrors(t *testing.T) {
	_, err := New("$", Hooks{}).Tokenize()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCharacter))
}

func TestTokenizeHonorsPluginKeywordHook(t *testing.T) {
	hooks := Hooks{Keywords: map[string]token.Kind{"widget": token.Identifier + 1000}}
	toks, err := New("widget", hooks).Tokenize()
	require.NoError(t, err)
	assert.Equal(t, token.Identifier+1000, toks[0].Kind)
}

func TestTokenizeTracksLineAndColumn(t *testing.T) {
	toks, err := New("a\nb", Hooks{}).Tokenize()
	require.NoError(t, err)
	// a, newline, b, EOF
	require.Len(t, toks, 4)
	assert.Equal(t, 1, toks[0].Pos.Line)
	assert.Equal(t, 2, toks[2].Pos.Line)
}
