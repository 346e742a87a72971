package parser

import (
	"fmt"

	"github.com/leapstack-labs/flowsql/pkg/token"
)

// ParseError represents a parsing error with position information.
type ParseError struct {
	Pos     token.Position
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Pos.Line, e.Pos.Column, e.Message)
}

// Common error messages.
const (
	ErrUnexpectedToken        = "unexpected token %s, expected %s"
	ErrUnexpectedInput        = "unexpected %s after end of statement"
	ErrUnterminatedString     = "unterminated string literal"
	ErrUnterminatedIdentifier = "unterminated quoted identifier"
	ErrIllegalCharacter       = "illegal character %q"
	ErrExpectedExpression     = "expected expression, got %s"
	ErrExpectedIdentifier     = "expected identifier, got %s"
	ErrEmptyQuery             = "empty query"
)
