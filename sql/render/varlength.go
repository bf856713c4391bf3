package render

import (
	"fmt"
	"strings"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/sql/catalog"
	"github.com/genezhang/clickgraph/sql/cerrors"
	"github.com/genezhang/clickgraph/sql/plan"
	"github.com/genezhang/clickgraph/sql/visit"
)

// buildVarLengthRel lowers a variable-length GraphRel to exactly one CTE
// (spec §4.4.2). An exact hop count (min == max) gets a chained-join CTE —
// a straight-line join chain with pairwise inequality predicates to rule
// out cycles, no WITH RECURSIVE. Everything else, including
// shortestPath()/allShortestPaths() regardless of their own bounds (spec
// §4.4.3), gets a recursive CTE: a base case of one hop, a recursive case
// extending it by one, bounded by effMax and a has()-based cycle check.
//
// The left alias keeps whatever join the chain built before this GraphRel
// was reached — it is not re-derived here. The right alias, by contrast,
// is never given its own table join: it is resolved entirely through the
// CTE's end_-prefixed columns, registered in ctx.varLenRedirects so the
// render-wide property resolver can redirect alias.field lookups there
// instead of the schema (spec §4.4.2's "alias preservation" rule, applied
// by skipping the join rather than renaming it).
func (ctx *Context) buildVarLengthRel(gr *plan.GraphRel, leftFrom FromItem, leftJoins []*Join, leftCTEs []*CTE, leftWheres []ast.Expr) (FromItem, []*Join, []*CTE, []ast.Expr, error) {
	spec := gr.VarLength
	effMin := uint32(1)
	if spec.Min != nil {
		effMin = *spec.Min
	}
	effMax := ctx.VarLengthCeiling
	if spec.Max != nil {
		effMax = *spec.Max
	}
	if effMin == 0 {
		return FromItem{}, nil, nil, nil, cerrors.ErrInvalidZeroHops.New()
	}
	if effMin > effMax {
		return FromItem{}, nil, nil, nil, cerrors.ErrInvalidRangeMinGreaterThanMax.New(effMin, effMax)
	}

	leftLabel := findScanLabel(gr.Left, gr.LeftAlias)
	leftNode, err := ctx.Schema.ResolveNode(leftLabel)
	if err != nil {
		return FromItem{}, nil, nil, nil, err
	}
	rightLabel := findScanLabel(gr.Right, gr.RightAlias)
	rightNode, err := ctx.Schema.ResolveNode(rightLabel)
	if err != nil {
		return FromItem{}, nil, nil, nil, err
	}

	relType := ""
	if len(gr.Types) > 0 {
		relType = gr.Types[0]
	}
	rm, err := ctx.Schema.ResolveRel(relType)
	if err != nil {
		return FromItem{}, nil, nil, nil, err
	}
	fromCol, toCol := rm.FromIDColumn, rm.ToIDColumn
	if gr.Direction == ast.DirIncoming {
		fromCol, toCol = toCol, fromCol
	}

	needed := append(append([]ast.Expr{}, ctx.OuterExprs...), gr.Filters...)
	endCols := neededPhysicalColumns(needed, gr.RightAlias, rightNode)

	recursive := effMin != effMax || gr.ShortestPath || gr.AllShortestPath

	var cte *CTE
	if recursive {
		cte, err = ctx.buildRecursiveCTE(gr, effMax, leftNode, rightNode, rm, fromCol, toCol, endCols)
	} else {
		cte, err = ctx.buildChainedJoinCTE(gr, effMin, leftNode, rightNode, rm, fromCol, toCol, endCols)
	}
	if err != nil {
		return FromItem{}, nil, nil, nil, err
	}

	cols := make(map[string]string, len(endCols))
	for _, c := range endCols {
		cols[c] = "end_" + c
	}
	ctx.recordVarLenRedirect(gr.RightAlias, varLenRedirect{cteName: cte.Name, idCol: "end_id", physicalID: rightNode.IDColumn, cols: cols})

	if gr.PathVar != "" {
		if recursive {
			ctx.recordPathVar(gr.PathVar, pathVarInfo{cteName: cte.Name, hopCountCol: "hop_count", pathNodesCol: "path_nodes"})
		} else {
			ctx.recordPathVar(gr.PathVar, pathVarInfo{hopsKnown: true, fixedHops: effMin})
		}
	}

	on := eqExpr(gr.LeftAlias, leftNode.IDColumn, cte.Name, "start_id")
	if recursive && effMin > 1 {
		gte := ast.Expr{
			Kind: ast.ExprBinaryOp, Op: ">=",
			Left:  &ast.Expr{Kind: ast.ExprColumnRef, Alias: cte.Name, ColumnName: "hop_count"},
			Right: &ast.Expr{Kind: ast.ExprLiteral, LiteralValue: int64(effMin)},
		}
		on = andExpr(on, gte)
	}
	for _, f := range gr.Filters {
		on = andExpr(on, f)
	}

	kind := JoinInner
	if gr.IsOptional {
		kind = JoinLeft
	}
	cteJoin := &Join{Kind: kind, From: FromItem{Kind: FromCTE, CTEName: cte.Name, Alias: cte.Name}, On: on}

	joins := append(append([]*Join{}, leftJoins...), cteJoin)
	ctes := append(append([]*CTE{}, leftCTEs...), cte)
	wheres := append([]ast.Expr{}, leftWheres...)

	if gr.ShortestPath {
		hop := ast.Expr{Kind: ast.ExprColumnRef, Alias: cte.Name, ColumnName: "hop_count"}
		ctx.shortestPathHop = &hop
	}
	if gr.AllShortestPath {
		// ast.Expr has no scalar-subquery kind; a bare ColumnRef with no
		// Alias is the convention used here and honored by the emitter for
		// "emit ColumnName verbatim, no alias prefix" (spec §4.5 leaves
		// literal SQL fragments like this to the render stage that built
		// them, not to expression rendering proper).
		sub := ast.Expr{Kind: ast.ExprColumnRef, ColumnName: fmt.Sprintf("(SELECT MIN(hop_count) FROM %s)", cte.Name)}
		filter := ast.Expr{
			Kind: ast.ExprBinaryOp, Op: "=",
			Left:  &ast.Expr{Kind: ast.ExprColumnRef, Alias: cte.Name, ColumnName: "hop_count"},
			Right: &sub,
		}
		ctx.allShortestPathFilter = &filter
	}

	return leftFrom, joins, ctes, wheres, nil
}

// neededPhysicalColumns scans exprs for every alias.field or already-
// resolved alias.column reference against alias, returning the distinct
// physical column names (via nm's PropertyMap for the former, taken as-is
// for the latter). This is the "first pass" of spec §4.4.2's two-pass
// property-projection analysis: it runs before either CTE generator so they
// know exactly which columns to carry through, instead of exposing every
// column on the node.
func neededPhysicalColumns(exprs []ast.Expr, alias string, nm catalog.NodeMapping) []string {
	seen := map[string]bool{}
	var cols []string
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, e := range exprs {
		visit.Walk(e, func(n ast.Expr) bool {
			switch {
			case n.Kind == ast.ExprColumnRef && n.Alias == alias:
				add(n.ColumnName)
			case n.Kind == ast.ExprPropertyAccess && n.Alias == alias && n.Field != "":
				if col, ok := nm.PropertyMap[n.Field]; ok {
					add(col)
				}
			}
			return true
		})
	}
	return cols
}

// buildChainedJoinCTE builds the exact-hop-count CTE (spec §4.4.2): n+1
// node joins, n edge joins, no recursion, with a pairwise inequality
// predicate across every node alias in the chain to rule out revisiting a
// node (the simple, materially faster case that must be chosen whenever
// min == max). Intermediate and final nodes are assumed to share the right
// endpoint's label — true for the homogeneous chains (e.g. repeated
// FOLLOWS between Users) this lowering targets; a chain whose relationship
// type links two different labels end to end would need per-hop label
// resolution this does not attempt.
func (ctx *Context) buildChainedJoinCTE(gr *plan.GraphRel, n uint32, leftNode, rightNode catalog.NodeMapping, rm catalog.RelMapping, fromCol, toCol string, endCols []string) (*CTE, error) {
	name := ctx.nextCTEName("hops_" + gr.RelAlias)

	nodeTable := func(i uint32) string {
		if i == 0 {
			return leftNode.SourceTable
		}
		return rightNode.SourceTable
	}
	nodeID := func(i uint32) string {
		if i == 0 {
			return leftNode.IDColumn
		}
		return rightNode.IDColumn
	}
	nodeAlias := func(i uint32) string { return fmt.Sprintf("cn%d", i) }
	edgeAlias := func(i uint32) string { return fmt.Sprintf("ce%d", i) }

	selectCols := []string{
		fmt.Sprintf("%s.%s AS start_id", nodeAlias(0), nodeID(0)),
		fmt.Sprintf("%s.%s AS end_id", nodeAlias(n), nodeID(n)),
	}
	for _, col := range endCols {
		selectCols = append(selectCols, fmt.Sprintf("%s.%s AS end_%s", nodeAlias(n), col, col))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s AS (\n  SELECT %s\n", name, strings.Join(selectCols, ", "))
	fmt.Fprintf(&b, "  FROM %s AS %s\n", nodeTable(0), nodeAlias(0))
	for i := uint32(1); i <= n; i++ {
		fmt.Fprintf(&b, "  JOIN %s AS %s ON %s.%s = %s.%s\n", rm.SourceTable, edgeAlias(i), nodeAlias(i-1), nodeID(i-1), edgeAlias(i), fromCol)
		fmt.Fprintf(&b, "  JOIN %s AS %s ON %s.%s = %s.%s\n", nodeTable(i), nodeAlias(i), edgeAlias(i), toCol, nodeAlias(i), nodeID(i))
	}

	var conds []string
	for i := uint32(0); i <= n; i++ {
		for j := i + 1; j <= n; j++ {
			conds = append(conds, fmt.Sprintf("%s.%s <> %s.%s", nodeAlias(i), nodeID(i), nodeAlias(j), nodeID(j)))
		}
	}
	if len(conds) > 0 {
		fmt.Fprintf(&b, "  WHERE %s\n", strings.Join(conds, " AND "))
	}
	b.WriteString(")")

	return &CTE{Name: name, Recursive: false, Content: RawSQL(b.String())}, nil
}

// buildRecursiveCTE builds the range/unbounded variable-length CTE (spec
// §4.4.2/§4.4.3): a base case of one hop, a recursive case extending the
// path by one hop via arrayConcat/has() cycle prevention, bounded by
// effMax. The final effective_min bound is applied by the caller as an
// outer join conjunct rather than inside this CTE, since it doesn't affect
// which rows the recursion produces — only which of those rows the outer
// query keeps.
func (ctx *Context) buildRecursiveCTE(gr *plan.GraphRel, effMax uint32, leftNode, rightNode catalog.NodeMapping, rm catalog.RelMapping, fromCol, toCol string, endCols []string) (*CTE, error) {
	name := ctx.nextCTEName("path_" + gr.RelAlias)

	baseCols := []string{
		fmt.Sprintf("e.%s AS start_id", fromCol),
		fmt.Sprintf("e.%s AS end_id", toCol),
		"1 AS hop_count",
		fmt.Sprintf("[e.%s, e.%s] AS path_nodes", fromCol, toCol),
	}
	recCols := []string{
		"p.start_id",
		fmt.Sprintf("e.%s AS end_id", toCol),
		"p.hop_count + 1 AS hop_count",
		fmt.Sprintf("arrayConcat(p.path_nodes, [e.%s]) AS path_nodes", toCol),
	}
	for _, col := range endCols {
		baseCols = append(baseCols, fmt.Sprintf("n1.%s AS end_%s", col, col))
		recCols = append(recCols, fmt.Sprintf("n1.%s AS end_%s", col, col))
	}

	var base strings.Builder
	fmt.Fprintf(&base, "SELECT %s\n", strings.Join(baseCols, ", "))
	fmt.Fprintf(&base, "  FROM %s AS e\n", rm.SourceTable)
	fmt.Fprintf(&base, "  JOIN %s AS n1 ON n1.%s = e.%s", rightNode.SourceTable, rightNode.IDColumn, toCol)

	var rec strings.Builder
	fmt.Fprintf(&rec, "SELECT %s\n", strings.Join(recCols, ", "))
	fmt.Fprintf(&rec, "  FROM %s AS p\n", name)
	fmt.Fprintf(&rec, "  JOIN %s AS e ON e.%s = p.end_id\n", rm.SourceTable, fromCol)
	fmt.Fprintf(&rec, "  JOIN %s AS n1 ON n1.%s = e.%s\n", rightNode.SourceTable, rightNode.IDColumn, toCol)
	fmt.Fprintf(&rec, "  WHERE p.hop_count < %d AND NOT has(p.path_nodes, e.%s)", effMax, toCol)

	body := fmt.Sprintf("%s AS (\n  %s\n  UNION ALL\n  %s\n) SETTINGS max_recursive_cte_evaluation_depth = %d", name, base.String(), rec.String(), effMax)
	return &CTE{Name: name, Recursive: true, Content: RawSQL(body)}, nil
}
