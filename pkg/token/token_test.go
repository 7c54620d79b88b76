package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "schema", KwSchema.String())
	assert.Equal(t, "=>", Arrow.String())
	assert.Equal(t, "Kind(9999)", Kind(9999).String())
}

func TestKeywordsTableCoversEveryKeywordKind(t *testing.T) {
	for word, kind := range Keywords {
		assert.Equal(t, word, kindNames[kind])
	}
}

func TestPositionString(t *testing.T) {
	p := Position{Line: 3, Column: 7}
	assert.Equal(t, "3:7", p.String())
}

func TestTokenString(t *testing.T) {
	tok := Token{Kind: Identifier, Lexeme: "total", Pos: Position{Line: 1, Column: 1}}
	assert.Equal(t, `IDENT("total")@1:1`, tok.String())
}
