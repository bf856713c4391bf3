package parser

import (
	"fmt"

	"github.com/genezhang/clickgraph/cypher/lexer"
	"github.com/genezhang/clickgraph/sql/cerrors"
)

// ParseError is returned by Parse on any malformed query. It satisfies the
// error interface and wraps a cerrors.ErrParse *errors.Error so callers can
// still test with cerrors.ErrParse.Is(err).
type ParseError struct {
	Position cerrors.Position
	Message  string
	Expected string
	cause    error
}

func (e *ParseError) Error() string {
	if e.Expected != "" {
		return fmt.Sprintf("parse error at line %d, column %d: %s (expected %s)",
			e.Position.Line, e.Position.Column, e.Message, e.Expected)
	}
	return fmt.Sprintf("parse error at line %d, column %d: %s", e.Position.Line, e.Position.Column, e.Message)
}

func (e *ParseError) Unwrap() error { return e.cause }

func newParseError(tok lexer.Token, message, expected string) *ParseError {
	pos := cerrors.Position{Offset: tok.Offset, Line: tok.Line, Column: tok.Column}
	return &ParseError{
		Position: pos,
		Message:  message,
		Expected: expected,
		cause:    cerrors.ErrParse.New(fmt.Sprintf("%d:%d", pos.Line, pos.Column), message),
	}
}

// newParseErrorWithCause builds a ParseError around a specific cerrors kind
// rather than the generic ErrParse — used where spec §7/§8.3 name a
// dedicated kind (e.g. ErrInvalidZeroHops) that callers test for directly
// with Kind.Is(err), instead of the catch-all parse-error kind.
func newParseErrorWithCause(tok lexer.Token, message string, cause error) *ParseError {
	pos := cerrors.Position{Offset: tok.Offset, Line: tok.Line, Column: tok.Column}
	return &ParseError{
		Position: pos,
		Message:  message,
		cause:    cause,
	}
}
