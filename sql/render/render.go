// Package render lowers an analyzed logical plan into a RenderPlan — an
// SQL-shaped intermediate representation with an ordered CTE list, a main
// FROM, an ordered JOIN list, filter/group/order terms, and pagination
// (spec §3.3, §4.4). It is the hardest subsystem in the pipeline: variable-
// length relationships become chained-join or recursive CTEs depending on
// their VarLengthSpec, multi-type relationship disjunctions become
// UNION ALL CTEs, and every expression surviving from the logical plan is
// rewritten from logical to render form via sql/visit (path functions,
// CTE-column prefixing, remaining alias.field property resolution).
//
// The chained-join-vs-recursive-CTE split and the base/recursive-case/
// UNION ALL shape of the recursive generator are modeled directly on
// other_examples/...chainsaw__pkg-cypher-transpiler.go's
// generateSingleHopSQL/generateMultiHopSQL, generalized from its one fixed
// two-table schema to an arbitrary catalog-resolved one.
package render

import (
	"fmt"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/sql/analyzer"
	"github.com/genezhang/clickgraph/sql/catalog"
	"github.com/genezhang/clickgraph/sql/cerrors"
	"github.com/genezhang/clickgraph/sql/plan"
)

// JoinKind discriminates the render-form join shapes. It does not reuse
// plan.JoinKind directly since render must also express an ARRAY JOIN
// (UNWIND's natural ClickHouse-family lowering), which has no analogue in
// the logical plan's inner/left distinction.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
	// JoinArray is a ClickHouse-style ARRAY JOIN: UNWIND's lowering.
	JoinArray
)

// FromKind discriminates whether a FromItem names a physical table or an
// earlier CTE in the same RenderPlan.
type FromKind int

const (
	FromTable FromKind = iota
	FromCTE
)

// FromItem is one source in a FROM or JOIN clause.
type FromItem struct {
	Kind    FromKind
	Table   string // schema-qualified physical table; set when Kind == FromTable
	CTEName string // set when Kind == FromCTE
	Alias   string // the alias downstream expressions reference
}

// ArrayJoin is an UNWIND lowering: ARRAY JOIN expr AS alias.
type ArrayJoin struct {
	Expr  ast.Expr
	Alias string
}

// Join is one FROM-clause join entry. Array is set (From/On unused) iff
// Kind == JoinArray.
type Join struct {
	Kind  JoinKind
	From  FromItem
	On    ast.Expr
	Array *ArrayJoin
}

// ProjectionColumn is one output column: a render-form expression plus its
// output alias (empty if the item carries no AS).
type ProjectionColumn struct {
	Expr  ast.Expr
	Alias string
}

// OrderColumn is one ORDER BY term in render form.
type OrderColumn struct {
	Expr       ast.Expr
	Descending bool
}

// CteContent is RawSQL or Structured (spec §3.3). RawSQL already holds the
// CTE's full `name AS (...)` text (used for recursive CTEs, whose shape
// does not decompose cleanly into nested RenderPlans); Structured wraps a
// RenderPlan the emitter recurses into and wraps itself.
type CteContent interface{ isCteContent() }

// RawSQL is pre-serialized CTE text, emitted verbatim by the emitter.
type RawSQL string

func (RawSQL) isCteContent() {}

// Structured is a non-recursive CTE whose body is itself a RenderPlan.
type Structured struct{ Plan *RenderPlan }

func (Structured) isCteContent() {}

// CTE is one named common table expression.
type CTE struct {
	Name      string
	Recursive bool
	Content   CteContent
}

// RenderPlan is the SQL-shaped IR the emitter serializes (spec §3.3).
type RenderPlan struct {
	CTEs       []*CTE
	From       FromItem
	Joins      []*Join
	Where      []ast.Expr
	GroupBy    []ast.Expr
	Projection []ProjectionColumn
	Distinct   bool
	OrderBy    []OrderColumn
	Skip       *int64
	Limit      *int64
}

// Context bundles the render-wide parameters every CTE-scoped rewriting
// function needs, keeping their own parameter lists at the ≤2 spec §4.4.5
// requires (context plus expression). Schema is threaded explicitly rather
// than read from an ambient field, per §4.4.2's "schema propagation" rule:
// a missing endpoint column must fail loudly, never fall back to a
// placeholder name.
type Context struct {
	Schema           *catalog.GraphSchema
	VarLengthCeiling uint32

	// OuterExprs is every expression appearing in the final WHERE,
	// GROUP BY, ORDER BY and projection list, collected once up front so
	// the variable-length CTE generator's property-projection pass (the
	// "two-pass analysis" of spec §4.4.2) has a single place to scan for
	// start_/end_ property needs instead of threading the outer query
	// through every recursive call.
	OuterExprs []ast.Expr

	cteSeq int

	// aliasLabels, varLenRedirects and pathVars accumulate as buildChain
	// walks the plan, so the final property-resolution pass below has
	// everything it needs without re-walking the plan tree itself.
	aliasLabels     map[string]string
	varLenRedirects map[string]varLenRedirect
	pathVars        map[string]pathVarInfo

	// shortestPathHop/allShortestPathFilter are set by buildVarLengthRel
	// when it lowers a shortestPath()/allShortestPaths() wrapper, since
	// those affect the RenderPlan's outer ORDER BY/LIMIT/WHERE rather than
	// anything buildChain's own return values carry (spec §4.4.3).
	shortestPathHop       *ast.Expr
	allShortestPathFilter *ast.Expr
}

func (c *Context) nextCTEName(prefix string) string {
	c.cteSeq++
	return fmt.Sprintf("%s_%d", prefix, c.cteSeq)
}

// Build lowers an analyzed plan into a RenderPlan.
func Build(res *analyzer.Result, schema *catalog.GraphSchema, varLengthCeiling uint32) (*RenderPlan, error) {
	if varLengthCeiling == 0 {
		varLengthCeiling = 100 // spec §6.5 default
	}
	ctx := &Context{Schema: schema, VarLengthCeiling: varLengthCeiling}

	rp := &RenderPlan{}
	node := res.Plan

peelOuter:
	for {
		switch t := node.(type) {
		case *plan.Limit:
			v := t.Count
			rp.Limit = &v
			node = t.Input
		case *plan.Skip:
			v := t.Count
			rp.Skip = &v
			node = t.Input
		case *plan.OrderBy:
			for _, k := range t.Keys {
				rp.OrderBy = append(rp.OrderBy, OrderColumn{Expr: k.Expr, Descending: k.Descending})
			}
			node = t.Input
		default:
			break peelOuter
		}
	}

	node, wheres := peelFilters(node)
	rp.Where = append(rp.Where, wheres...)

	switch t := node.(type) {
	case *plan.Projection:
		for _, item := range t.Items {
			rp.Projection = append(rp.Projection, ProjectionColumn{Expr: item.Expr, Alias: item.Alias})
		}
		rp.Distinct = t.Distinct
		node = t.Input
	case *plan.GroupBy:
		rp.GroupBy = append(rp.GroupBy, t.Keys...)
		for _, item := range t.Aggregates {
			rp.Projection = append(rp.Projection, ProjectionColumn{Expr: item.Expr, Alias: item.Alias})
		}
		node = t.Input
	default:
		return nil, fmt.Errorf("render: expected a projection boundary at the plan root, got %T", node)
	}

	node, wheres = peelFilters(node)
	rp.Where = append(rp.Where, wheres...)

	for _, w := range rp.Where {
		ctx.OuterExprs = append(ctx.OuterExprs, w)
	}
	ctx.OuterExprs = append(ctx.OuterExprs, rp.GroupBy...)
	for _, p := range rp.Projection {
		ctx.OuterExprs = append(ctx.OuterExprs, p.Expr)
	}
	for _, o := range rp.OrderBy {
		ctx.OuterExprs = append(ctx.OuterExprs, o.Expr)
	}

	from, joins, ctes, chainWheres, err := ctx.buildChain(node, res)
	if err != nil {
		return nil, err
	}
	rp.From = from
	rp.Joins = joins
	rp.CTEs = ctes
	rp.Where = append(rp.Where, chainWheres...)

	resolver := &propertyResolver{ctx: ctx}
	for i := range rp.Where {
		rp.Where[i] = resolver.rewrite(rp.Where[i])
	}
	for i := range rp.GroupBy {
		rp.GroupBy[i] = resolver.rewrite(rp.GroupBy[i])
	}
	for i := range rp.Projection {
		rp.Projection[i].Expr = resolver.rewrite(rp.Projection[i].Expr)
	}
	for i := range rp.OrderBy {
		rp.OrderBy[i].Expr = resolver.rewrite(rp.OrderBy[i].Expr)
	}
	for _, j := range rp.Joins {
		j.On = resolver.rewrite(j.On)
	}
	if resolver.err != nil {
		return nil, resolver.err
	}

	if ctx.shortestPathHop != nil {
		rp.OrderBy = append(rp.OrderBy, OrderColumn{Expr: *ctx.shortestPathHop})
		one := int64(1)
		rp.Limit = &one
	}
	if ctx.allShortestPathFilter != nil {
		rp.Where = append(rp.Where, *ctx.allShortestPathFilter)
	}

	return rp, nil
}

// peelFilters strips leading *plan.Filter layers (predicates the analyzer's
// pushdown pass could not place inside any GraphRel, e.g. a WITH-level
// filter over an aggregate alias), returning the first non-Filter node and
// every predicate collected along the way, outermost first.
func peelFilters(n plan.Node) (plan.Node, []ast.Expr) {
	var wheres []ast.Expr
	for {
		f, ok := n.(*plan.Filter)
		if !ok {
			return n, wheres
		}
		wheres = append(wheres, f.Predicate)
		n = f.Input
	}
}

func eqExpr(leftAlias, leftCol, rightAlias, rightCol string) ast.Expr {
	l := ast.Expr{Kind: ast.ExprColumnRef, Alias: leftAlias, ColumnName: leftCol}
	r := ast.Expr{Kind: ast.ExprColumnRef, Alias: rightAlias, ColumnName: rightCol}
	return ast.Expr{Kind: ast.ExprBinaryOp, Op: "=", Left: &l, Right: &r}
}

func trueExpr() ast.Expr {
	return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: true}
}

func (ctx *Context) scanFromItem(alias, label string) (FromItem, error) {
	if label == "" {
		return FromItem{}, cerrors.ErrUnsupportedFeature.New("unlabeled node pattern at alias " + alias)
	}
	nm, err := ctx.Schema.ResolveNode(label)
	if err != nil {
		return FromItem{}, err
	}
	ctx.recordAlias(alias, label)
	return FromItem{Kind: FromTable, Table: nm.SourceTable, Alias: alias}, nil
}
