package render

import (
	"fmt"
	"strings"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/sql/analyzer"
	"github.com/genezhang/clickgraph/sql/plan"
)

// buildChain walks the graph-pattern subtree below the projection boundary
// (Scan/ViewScan/GraphRel, possibly wrapped in Unwind/Call/Filter) and
// produces the FROM item, ordered JOIN list, and any CTEs it needed.
// Leading/embedded Filter layers that were not pushed into a GraphRel are
// returned separately rather than silently dropped.
func (ctx *Context) buildChain(n plan.Node, res *analyzer.Result) (FromItem, []*Join, []*CTE, []ast.Expr, error) {
	switch t := n.(type) {
	case *plan.Filter:
		from, joins, ctes, wheres, err := ctx.buildChain(t.Input, res)
		if err != nil {
			return FromItem{}, nil, nil, nil, err
		}
		return from, joins, ctes, append(wheres, t.Predicate), nil

	case *plan.Scan:
		from, err := ctx.scanFromItem(t.TableAlias, t.Label)
		return from, nil, nil, nil, err

	case *plan.ViewScan:
		ctx.recordAlias(t.TableAlias, t.Label)
		return FromItem{Kind: FromTable, Table: t.SourceTable, Alias: t.TableAlias}, nil, nil, nil, nil

	case *plan.Unwind:
		from, joins, ctes, wheres, err := ctx.buildChain(t.Input, res)
		if err != nil {
			return FromItem{}, nil, nil, nil, err
		}
		joins = append(joins, &Join{Kind: JoinArray, Array: &ArrayJoin{Expr: t.Expr, Alias: t.Alias}})
		return from, joins, ctes, wheres, nil

	case *plan.Call:
		return ctx.buildCall(t, res)

	case *plan.GraphRel:
		return ctx.buildGraphRel(t, res)

	default:
		return FromItem{}, nil, nil, nil, fmt.Errorf("render: unsupported plan node %T below the projection boundary", n)
	}
}

// buildCall lowers a CALL clause to an algorithm CTE (spec §4.2's "sentinel
// plan variant ... translated to an algorithm-specific CTE"). The CTE body
// is a raw call into the backing store's table-function surface, since the
// algorithm's internal shape (iteration count, damping factor, convergence)
// is opaque to the render planner by design — it does not decompose into
// FROM/JOIN/WHERE.
func (ctx *Context) buildCall(c *plan.Call, res *analyzer.Result) (FromItem, []*Join, []*CTE, []ast.Expr, error) {
	name := ctx.nextCTEName(c.ProcName)
	args := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		args = append(args, literalText(a))
	}
	body := fmt.Sprintf("%s AS (\n  SELECT * FROM %s(%s)\n)", name, c.ProcName, strings.Join(args, ", "))
	cte := &CTE{Name: name, Content: RawSQL(body)}

	if c.Input == nil {
		return FromItem{Kind: FromCTE, CTEName: name, Alias: name}, nil, []*CTE{cte}, nil, nil
	}

	from, joins, ctes, wheres, err := ctx.buildChain(c.Input, res)
	if err != nil {
		return FromItem{}, nil, nil, nil, err
	}
	joins = append(joins, &Join{Kind: JoinInner, From: FromItem{Kind: FromCTE, CTEName: name, Alias: name}, On: trueExpr()})
	return from, joins, append(ctes, cte), wheres, nil
}

// literalText renders a literal argument as SQL text. CALL arguments are
// algorithm configuration constants (iteration count, damping factor), not
// user data, so this is not a SQL-injection surface the way a projected
// value would be.
func literalText(e ast.Expr) string {
	if e.Kind != ast.ExprLiteral {
		return fmt.Sprintf("%v", e)
	}
	switch v := e.LiteralValue.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// buildGraphRel lowers one GraphRel. Variable-length relationships delegate
// to the CTE generators in varlength.go; regular ones produce the two-join
// sequence spec §4.4.1 describes, or a UNION ALL CTE first when the
// relationship type list has more than one entry.
func (ctx *Context) buildGraphRel(gr *plan.GraphRel, res *analyzer.Result) (FromItem, []*Join, []*CTE, []ast.Expr, error) {
	leftFrom, leftJoins, leftCTEs, leftWheres, err := ctx.buildChain(gr.Left, res)
	if err != nil {
		return FromItem{}, nil, nil, nil, err
	}

	if gr.VarLength != nil {
		return ctx.buildVarLengthRel(gr, leftFrom, leftJoins, leftCTEs, leftWheres)
	}

	kind := JoinInner
	if gr.IsOptional {
		kind = JoinLeft
	}

	rightFrom, err := ctx.scanFromItem(gr.RightAlias, rightLabelOf(gr, res))
	if err != nil {
		return FromItem{}, nil, nil, nil, err
	}

	var relFrom FromItem
	var extraCTEs []*CTE
	var onLeft, onRight ast.Expr
	if len(gr.Types) > 1 {
		cte, err := ctx.buildMultiTypeUnionCTE(gr)
		if err != nil {
			return FromItem{}, nil, nil, nil, err
		}
		extraCTEs = append(extraCTEs, cte)
		relFrom = FromItem{Kind: FromCTE, CTEName: cte.Name, Alias: gr.RelAlias}
		ln, err := ctx.Schema.ResolveNode(findScanLabel(gr.Left, gr.LeftAlias))
		if err != nil {
			return FromItem{}, nil, nil, nil, err
		}
		rn, err := ctx.Schema.ResolveNode(rightLabelOf(gr, res))
		if err != nil {
			return FromItem{}, nil, nil, nil, err
		}
		onLeft = eqExpr(gr.LeftAlias, ln.IDColumn, gr.RelAlias, "from_id")
		onRight = eqExpr(gr.RelAlias, "to_id", gr.RightAlias, rn.IDColumn)
	} else {
		relType := ""
		if len(gr.Types) == 1 {
			relType = gr.Types[0]
		}
		rm, err := ctx.Schema.ResolveRel(relType)
		if err != nil {
			return FromItem{}, nil, nil, nil, err
		}
		relFrom = FromItem{Kind: FromTable, Table: rm.SourceTable, Alias: gr.RelAlias}
		entries := res.Joins[gr]
		if len(entries) == 2 {
			onLeft, onRight = entries[0].On, entries[1].On
		} else {
			onLeft, onRight, err = ctx.fallbackJoinOns(gr)
			if err != nil {
				return FromItem{}, nil, nil, nil, err
			}
		}
	}

	joins := append(append([]*Join{}, leftJoins...),
		&Join{Kind: kind, From: relFrom, On: onLeft},
		&Join{Kind: kind, From: rightFrom, On: onRight},
	)

	wheres := append([]ast.Expr{}, leftWheres...)
	for _, f := range gr.Filters {
		joins[len(joins)-1].On = andExpr(joins[len(joins)-1].On, f)
	}

	return leftFrom, joins, append(leftCTEs, extraCTEs...), wheres, nil
}

func (ctx *Context) fallbackJoinOns(gr *plan.GraphRel) (ast.Expr, ast.Expr, error) {
	relType := ""
	if len(gr.Types) > 0 {
		relType = gr.Types[0]
	}
	rm, err := ctx.Schema.ResolveRel(relType)
	if err != nil {
		return ast.Expr{}, ast.Expr{}, err
	}
	fromCol, toCol := rm.FromIDColumn, rm.ToIDColumn
	if gr.Direction == ast.DirIncoming {
		fromCol, toCol = toCol, fromCol
	}
	leftNode, err := ctx.Schema.ResolveNode(rm.FromLabel)
	if err != nil {
		return ast.Expr{}, ast.Expr{}, err
	}
	rightNode, err := ctx.Schema.ResolveNode(rm.ToLabel)
	if err != nil {
		return ast.Expr{}, ast.Expr{}, err
	}
	return eqExpr(gr.LeftAlias, leftNode.IDColumn, gr.RelAlias, fromCol),
		eqExpr(gr.RelAlias, toCol, gr.RightAlias, rightNode.IDColumn), nil
}

// rightLabelOf finds the label declared for gr's right-hand node by
// searching gr.Right for the Scan the planbuilder built for that alias. It
// has no fallback: res is not consulted, and "" is returned when no such
// Scan is found.
func rightLabelOf(gr *plan.GraphRel, res *analyzer.Result) string {
	return findScanLabel(gr.Right, gr.RightAlias)
}

// findScanLabel searches n for the Scan/ViewScan carrying alias, returning
// its declared label. A multi-hop chain's right-hand alias of one hop may
// be several GraphRel levels below where the search starts, so this walks
// the whole subtree rather than inspecting only the immediate child.
func findScanLabel(n plan.Node, alias string) string {
	if n == nil {
		return ""
	}
	switch t := n.(type) {
	case *plan.Scan:
		if t.TableAlias == alias {
			return t.Label
		}
	case *plan.ViewScan:
		if t.TableAlias == alias {
			return t.Label
		}
	}
	for _, c := range n.Children() {
		if label := findScanLabel(c, alias); label != "" {
			return label
		}
	}
	return ""
}

// buildMultiTypeUnionCTE builds the UNION ALL CTE spec §4.4.1 describes for
// a disjunctive relationship type list ([:A|B|C]): one SELECT per type,
// aliased uniformly onto (from_id, to_id), unioned without duplicates
// dropped (callers get the set union of matches per spec §8.3).
func (ctx *Context) buildMultiTypeUnionCTE(gr *plan.GraphRel) (*CTE, error) {
	name := ctx.nextCTEName("rel_" + gr.RelAlias)
	var parts []string
	for _, relType := range gr.Types {
		rm, err := ctx.Schema.ResolveRel(relType)
		if err != nil {
			return nil, err
		}
		fromCol, toCol := rm.FromIDColumn, rm.ToIDColumn
		if gr.Direction == ast.DirIncoming {
			fromCol, toCol = toCol, fromCol
		}
		parts = append(parts, fmt.Sprintf("SELECT %s AS from_id, %s AS to_id FROM %s", fromCol, toCol, rm.SourceTable))
	}
	body := fmt.Sprintf("%s AS (\n  %s\n)", name, strings.Join(parts, "\n  UNION ALL\n  "))
	return &CTE{Name: name, Content: RawSQL(body)}, nil
}

func andExpr(a, b ast.Expr) ast.Expr {
	if a.Kind == ast.ExprLiteral && a.LiteralValue == true {
		return b
	}
	left, right := a, b
	return ast.Expr{Kind: ast.ExprBinaryOp, Op: "AND", Left: &left, Right: &right}
}
