package render

import (
	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/sql/cerrors"
	"github.com/genezhang/clickgraph/sql/visit"
)

// varLenRedirect records that a node alias's properties are not available
// through an ordinary table join — they're exposed by a variable-length
// CTE instead (spec §4.4.2's "alias preservation": the outer query keeps
// referencing the Cypher-level alias, the physical source is just the CTE's
// end_-prefixed columns). cols maps a physical column name (the one a plain
// join would have exposed) to the CTE's exported name for it.
type varLenRedirect struct {
	cteName      string
	idCol        string // the CTE column standing in for the node's id column
	physicalID   string // the node's real id column, as an already-resolved ColumnRef would name it
	cols         map[string]string
}

// pathVarInfo records what an enclosing variable-length relationship's path
// capture resolves to, for length(p)/nodes(p)/relationships(p) rewriting
// (spec §4.4.2's path-variable exposure, §4.4.4's path-function rewriter).
type pathVarInfo struct {
	// fixedHops is set (hopsKnown true) for an exact hop count (min == max):
	// length(p) is then just that literal, no CTE column needed.
	hopsKnown bool
	fixedHops uint32

	cteName        string // set when hopsKnown is false: hop_count/path_nodes live here
	hopCountCol    string
	pathNodesCol   string
}

// propertyResolver rewrites every remaining alias.field reference to its
// physical (or CTE-redirected) column, and every path-function call to its
// render-form equivalent. This is the WHERE/ORDER BY/JOIN-ON counterpart of
// the analyzer's propertyTagger (spec §4.3 step 5), which only ever touches
// Projection/GroupBy items — filters pushed into a GraphRel and ORDER BY
// terms reach render still carrying raw alias.field nodes.
type propertyResolver struct {
	visit.BaseRewriter
	ctx *Context
	err error
}

func (ctx *Context) recordAlias(alias, label string) {
	if ctx.aliasLabels == nil {
		ctx.aliasLabels = map[string]string{}
	}
	ctx.aliasLabels[alias] = label
}

func (ctx *Context) recordVarLenRedirect(alias string, r varLenRedirect) {
	if ctx.varLenRedirects == nil {
		ctx.varLenRedirects = map[string]varLenRedirect{}
	}
	ctx.varLenRedirects[alias] = r
}

func (ctx *Context) recordPathVar(name string, info pathVarInfo) {
	if ctx.pathVars == nil {
		ctx.pathVars = map[string]pathVarInfo{}
	}
	ctx.pathVars[name] = info
}

func (r *propertyResolver) rewrite(e ast.Expr) ast.Expr {
	out := visit.Rewrite(e, r)
	return out
}

// TransformColumnRef redirects an already-resolved ColumnRef (the analyzer's
// bare-aggregate rewriting, e.g. COUNT(v) -> v.id_column, runs before render
// and has no notion of a variable-length CTE) to the CTE's end_id column
// when its alias was redirected. Any other ColumnRef — the common case,
// already pointing at a real table that's still in the FROM chain —
// passes through unchanged.
func (r *propertyResolver) TransformColumnRef(e ast.Expr) ast.Expr {
	if r.err != nil {
		return e
	}
	redirect, ok := r.ctx.varLenRedirects[e.Alias]
	if !ok {
		return e
	}
	if e.ColumnName == redirect.physicalID {
		return ast.Expr{Kind: ast.ExprColumnRef, Alias: redirect.cteName, ColumnName: redirect.idCol}
	}
	if col, ok := redirect.cols[e.ColumnName]; ok {
		return ast.Expr{Kind: ast.ExprColumnRef, Alias: redirect.cteName, ColumnName: col}
	}
	return e
}

func (r *propertyResolver) TransformPropertyAccess(e ast.Expr) ast.Expr {
	if r.err != nil || e.Field == "" {
		return e
	}
	if redirect, ok := r.ctx.varLenRedirects[e.Alias]; ok {
		col, ok := redirect.cols[e.Field]
		if !ok {
			r.err = cerrors.ErrPropertyNotFound.New(e.Field, e.Alias)
			return e
		}
		return ast.Expr{Kind: ast.ExprColumnRef, Alias: redirect.cteName, ColumnName: col}
	}
	label := r.ctx.aliasLabels[e.Alias]
	col, err := r.ctx.Schema.ResolveProperty(label, e.Field)
	if err != nil {
		r.err = err
		return e
	}
	return ast.Expr{Kind: ast.ExprColumnRef, Alias: e.Alias, ColumnName: col}
}

// TransformScalarFnCall rewrites length(p)/nodes(p)/relationships(p) to
// their render-form equivalents (spec §4.4.2's path-variable exposure). Any
// other scalar/aggregate call passes through unchanged — the analyzer's
// propertyTagger already resolved bare-alias arguments during projection
// tagging.
func (r *propertyResolver) TransformScalarFnCall(e ast.Expr) ast.Expr {
	if r.err != nil || e.Kind != ast.ExprPathFunc {
		return e
	}
	if len(e.Args) != 1 || e.Args[0].Field != "" {
		return e
	}
	pathVar := e.Args[0].Alias
	info, ok := r.ctx.pathVars[pathVar]
	if !ok {
		r.err = cerrors.ErrUnsupportedFeature.New("path variable " + pathVar + " not bound by a variable-length relationship")
		return e
	}
	switch e.FuncName {
	case "length":
		if info.hopsKnown {
			return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: int64(info.fixedHops)}
		}
		return ast.Expr{Kind: ast.ExprColumnRef, Alias: info.cteName, ColumnName: info.hopCountCol}
	case "nodes":
		if info.hopsKnown {
			// A fixed hop count never materialized a path_nodes column (its
			// length is already known statically); there is nothing to
			// project, so this degrades to an empty-array sentinel like
			// relationships(p) below rather than a CTE lookup.
			return ast.Expr{Kind: ast.ExprListLiteral}
		}
		return ast.Expr{Kind: ast.ExprColumnRef, Alias: info.cteName, ColumnName: info.pathNodesCol}
	case "relationships":
		// Deferred per spec §9's open question: materializing the edge list
		// would need an additional path_rels CTE column threaded through
		// every recursive case. Not yet worth the complexity; every query
		// this engine answers today only inspects path length/nodes.
		return ast.Expr{Kind: ast.ExprListLiteral}
	default:
		return e
	}
}
