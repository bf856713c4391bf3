// Package cerrors defines the closed sum of error kinds the engine can
// surface, following the teacher's auth package convention of declaring one
// *errors.Kind per failure mode instead of ad-hoc fmt.Errorf calls.
package cerrors

import "gopkg.in/src-d/go-errors.v1"

var (
	// ErrParse is raised by cypher/parser on any malformed query.
	ErrParse = errors.NewKind("parse error at %s: %s")

	// ErrUnknownSchema is raised when a schema name has no catalog entry.
	ErrUnknownSchema = errors.NewKind("unknown schema %q")
	// ErrUnknownLabel is raised when a node label has no mapping in the
	// active schema.
	ErrUnknownLabel = errors.NewKind("unknown label %q in schema %q")
	// ErrUnknownRelationshipType is raised when a relationship type has no
	// mapping in the active schema.
	ErrUnknownRelationshipType = errors.NewKind("unknown relationship type %q in schema %q")
	// ErrPropertyNotFound is raised when a cypher property has no physical
	// column mapping for the given label.
	ErrPropertyNotFound = errors.NewKind("property %q not found on label %q")

	// ErrAliasNotInScope is raised when a WITH/RETURN/ORDER BY references an
	// alias that was not carried forward by the preceding projection
	// boundary.
	ErrAliasNotInScope = errors.NewKind("alias %q not in scope")
	// ErrMissingIDColumn is a catalog error: the plan needs an id column for
	// an alias whose mapping does not declare one. This must never be
	// silently defaulted to "id".
	ErrMissingIDColumn = errors.NewKind("catalog entry for alias %q declares no id column")

	// ErrInvalidRangeMinGreaterThanMax is raised at parse time for *N..M
	// with N > M.
	ErrInvalidRangeMinGreaterThanMax = errors.NewKind("variable-length range has min %d greater than max %d")
	// ErrInvalidZeroHops is raised at parse time for *0 or *0..N.
	ErrInvalidZeroHops = errors.NewKind("variable-length range must have at least 1 hop")

	// ErrUnsupportedFeature is raised for syntax the parser recognizes but
	// the rest of the pipeline does not yet implement.
	ErrUnsupportedFeature = errors.NewKind("unsupported feature: %s")
	// ErrBackend wraps an error returned by the backing store.
	ErrBackend = errors.NewKind("backend error: %s")
	// ErrExecutionTimeout is raised when a request exceeds its configured
	// wall-time ceiling.
	ErrExecutionTimeout = errors.NewKind("execution exceeded timeout of %s")
	// ErrInternal is reserved for invariant violations that indicate a bug
	// in the engine itself (e.g. a relationship alias missing from a
	// join-column map). These must be loud, never papered over with a
	// default column name.
	ErrInternal = errors.NewKind("internal error: %s")

	// ErrValidation aggregates catalog registration failures (see
	// sql/catalog.Catalog.LoadSchema), reported via go-multierror so every
	// missing column is surfaced at once rather than one at a time.
	ErrValidation = errors.NewKind("schema validation failed: %s")
	// ErrNotFound is raised by administrative operations on an unknown
	// schema name (remove).
	ErrNotFound = errors.NewKind("schema %q not found")
	// ErrCannotRemoveDefault is raised when an administrative caller tries
	// to remove the canonical "default" schema.
	ErrCannotRemoveDefault = errors.NewKind("cannot remove the default schema")
)

// Position locates a parse error within the original query text.
type Position struct {
	Offset int
	Line   int
	Column int
}
