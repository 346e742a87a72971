package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupIdent(t *testing.T) {
	tests := []struct {
		ident string
		want  TokenType
	}{
		{"select", SELECT},
		{"SELECT", SELECT},
		{"Where", WHERE},
		{"using", USING},
		{"PCOLLECTION", IDENT},
		{"c1", IDENT},
		{"first", IDENT},
	}

	for _, tt := range tests {
		t.Run(tt.ident, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupIdent(tt.ident))
		})
	}
}

func TestTokenTypeString(t *testing.T) {
	assert.Equal(t, "SELECT", SELECT.String())
	assert.Equal(t, "||", DPIPE.String())
	assert.Equal(t, "EOF", EOF.String())
	assert.Equal(t, "TOKEN(5000)", TokenType(5000).String())
}

func TestClassification(t *testing.T) {
	assert.True(t, IsKeyword(FROM))
	assert.True(t, IsKeyword(WHERE))
	assert.False(t, IsKeyword(IDENT))
	assert.True(t, IsOperator(PLUS))
	assert.False(t, IsOperator(SELECT))
}

func TestPosition(t *testing.T) {
	assert.False(t, Position{}.IsValid())
	assert.Equal(t, "-", Position{}.String())
	assert.Equal(t, "2:7", Position{Line: 2, Column: 7, Offset: 12}.String())
}
