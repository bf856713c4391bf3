// Package analyzer runs the five fixed-order passes spec §4.3 assigns
// between the logical planner and the render planner: query validation,
// filter pushdown, graph traversal bookkeeping, graph join inference, and
// projection tagging. Every pass is pure — it consumes a plan.Node tree and
// produces one, using plan.Node.RebuildOrKeep so a subtree nothing touched
// comes back as the same reference (spec §8.2's idempotence law: running
// the analyzer twice on an already-analyzed plan is a no-op).
//
// The pass order and the "always descend into GraphRel.Left" discipline in
// the join-inference pass are grounded on the teacher's sql/analyzer test
// suite (retrieved test-only, but its table-driven expectations over a
// fixed Default/Batches-of-rules pipeline establish the "ordered, pure,
// idempotent passes over one plan type" shape every dolthub-style analyzer
// follows), generalized with the join-synthesis technique from
// other_examples/...chainsaw__pkg-cypher-transpiler.go's edge-table join
// construction.
package analyzer

import (
	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/sql/catalog"
	"github.com/genezhang/clickgraph/sql/cerrors"
	"github.com/genezhang/clickgraph/sql/plan"
	"github.com/genezhang/clickgraph/sql/planbuilder"
	"github.com/genezhang/clickgraph/sql/visit"
)

// Result is the output of a completed analysis: the rewritten plan plus the
// join metadata the render planner needs for non-variable-length
// relationships (variable-length ones are resolved later by the CTE
// generator, which works from the plan tree directly).
type Result struct {
	Plan            plan.Node
	Joins           map[*plan.GraphRel][]plan.JoinEntry
	OptionalAliases map[string]bool
	BoundAliases    map[string]bool
}

// Analyze runs all five passes in order against schema, the active
// GraphSchema named by the query's target catalog entry.
func Analyze(root plan.Node, pctx *planbuilder.Context, schema *catalog.GraphSchema) (*Result, error) {
	if err := validateLabelsAndTypes(root, schema); err != nil {
		return nil, err
	}

	root, err := pushdownFilters(root)
	if err != nil {
		return nil, err
	}

	// Pass 3: graph traversal bookkeeping. Recorded for completeness (spec
	// §4.3 step 3) though the join-inference pass below recomputes what it
	// needs directly from plan shape rather than threading this through.
	_ = traversalInfo(root)

	joins, err := inferJoins(root, pctx.OptionalAliases, schema)
	if err != nil {
		return nil, err
	}

	root, err = tagProjections(root, pctx.BoundAliases, schema)
	if err != nil {
		return nil, err
	}

	return &Result{
		Plan:            root,
		Joins:           joins,
		OptionalAliases: pctx.OptionalAliases,
		BoundAliases:    pctx.BoundAliases,
	}, nil
}

// --- Pass 1: query validation -------------------------------------------

func validateLabelsAndTypes(root plan.Node, schema *catalog.GraphSchema) error {
	var outerErr error
	walk(root, func(n plan.Node) bool {
		if outerErr != nil {
			return false
		}
		gr, ok := n.(*plan.GraphRel)
		if !ok {
			return true
		}
		if gr.VarLength != nil {
			return true // resolved later by the CTE generator, per spec §4.3 step 1
		}
		if label, ok := scanLabel(gr.Left, gr.LeftAlias); ok && label != "" {
			if _, err := schema.ResolveNode(label); err != nil {
				outerErr = err
				return false
			}
		}
		if label, ok := scanLabel(gr.Right, gr.RightAlias); ok && label != "" {
			if _, err := schema.ResolveNode(label); err != nil {
				outerErr = err
				return false
			}
		}
		for _, relType := range gr.Types {
			if _, err := schema.ResolveRel(relType); err != nil {
				outerErr = err
				return false
			}
		}
		return true
	})
	return outerErr
}

// scanLabel finds the label a node alias was matched against, searching the
// whole plan (not just the immediate child) since a multi-hop chain's
// right-hand alias of one hop is the left-hand alias reference of the next,
// but the Scan carrying its label may sit several GraphRel levels down.
func scanLabel(n plan.Node, alias string) (string, bool) {
	var label string
	var found bool
	walk(n, func(cur plan.Node) bool {
		if found {
			return false
		}
		switch t := cur.(type) {
		case *plan.Scan:
			if t.TableAlias == alias {
				label, found = t.Label, true
				return false
			}
		case *plan.ViewScan:
			if t.TableAlias == alias {
				label, found = t.Label, true
				return false
			}
		}
		return true
	})
	return label, found
}

// --- Pass 2: filter pushdown ---------------------------------------------

// pushdownFilters pushes each Filter's predicate into the innermost
// GraphRel whose reachable aliases cover every alias the predicate
// references, leaving it in place (wrapping the rewritten input) when no
// GraphRel covers it — e.g. a WITH-carried aggregate alias. IsOptional is
// never touched, satisfying spec §4.3 step 2's "preserved verbatim" rule.
func pushdownFilters(n plan.Node) (plan.Node, error) {
	f, ok := n.(*plan.Filter)
	if !ok {
		children := n.Children()
		if len(children) == 0 {
			return n, nil
		}
		newChildren := make([]plan.Node, len(children))
		for i, c := range children {
			nc, err := pushdownFilters(c)
			if err != nil {
				return nil, err
			}
			newChildren[i] = nc
		}
		return n.RebuildOrKeep(newChildren), nil
	}

	newInput, err := pushdownFilters(f.Input)
	if err != nil {
		return nil, err
	}

	needed := referencedAliases(f.Predicate)
	for _, gr := range collectGraphRelsPostOrder(newInput) {
		if isSubset(needed, subtreeAliases(gr)) {
			replacement := *gr
			replacement.Filters = append(append([]ast.Expr{}, gr.Filters...), f.Predicate)
			return replaceNode(newInput, gr, &replacement), nil
		}
	}
	return &plan.Filter{Input: newInput, Predicate: f.Predicate}, nil
}

// replaceNode rebuilds the path from n down to target, substituting
// replacement in its place, via the same RebuildOrKeep contract every other
// pass in this package uses — target's siblings and everything above an
// unchanged subtree come back as the original reference, never mutated in
// place. Used by pushdownFilters so pushing a predicate into a GraphRel
// produces a new node instead of mutating one a prior stage may still hold
// a reference to.
func replaceNode(n, target, replacement plan.Node) plan.Node {
	if n == target {
		return replacement
	}
	children := n.Children()
	if len(children) == 0 {
		return n
	}
	newChildren := make([]plan.Node, len(children))
	changed := false
	for i, c := range children {
		nc := replaceNode(c, target, replacement)
		newChildren[i] = nc
		if nc != c {
			changed = true
		}
	}
	if !changed {
		return n
	}
	return n.RebuildOrKeep(newChildren)
}

func referencedAliases(e ast.Expr) map[string]bool {
	out := map[string]bool{}
	visit.Walk(e, func(n ast.Expr) bool {
		if n.Kind == ast.ExprPropertyAccess && n.Alias != "" {
			out[n.Alias] = true
		}
		return true
	})
	return out
}

func isSubset(sub, super map[string]bool) bool {
	for k := range sub {
		if !super[k] {
			return false
		}
	}
	return true
}

// --- Pass 3: graph traversal planning ------------------------------------

// traversalInfo records, for every non-variable-length GraphRel, which of
// its two node aliases were newly introduced at this hop versus already
// bound by an earlier hop or clause (spec §4.3 step 3).
type traversal struct {
	introduced map[string]bool // alias -> true the first time it is seen
	reentered  map[*plan.GraphRel][]string
}

func traversalInfo(root plan.Node) *traversal {
	t := &traversal{introduced: map[string]bool{}, reentered: map[*plan.GraphRel][]string{}}
	for _, gr := range collectGraphRelsPostOrder(root) {
		if gr.VarLength != nil {
			continue
		}
		for _, alias := range []string{gr.LeftAlias, gr.RightAlias} {
			if alias == "" {
				continue
			}
			if t.introduced[alias] {
				t.reentered[gr] = append(t.reentered[gr], alias)
			} else {
				t.introduced[alias] = true
			}
		}
	}
	return t
}

// --- Pass 4: graph join inference ----------------------------------------

// inferJoins synthesizes two JoinEntry values per non-variable-length
// GraphRel (node->edge, edge->node), using the catalog's physical column
// names. It always walks into GraphRel.Left explicitly via
// collectGraphRelsPostOrder, which is built on plan.Node.Children and so
// cannot repeat the historical bug of skipping the left branch of a chain.
func inferJoins(root plan.Node, optionalAliases map[string]bool, schema *catalog.GraphSchema) (map[*plan.GraphRel][]plan.JoinEntry, error) {
	joins := map[*plan.GraphRel][]plan.JoinEntry{}
	for _, gr := range collectGraphRelsPostOrder(root) {
		if gr.VarLength != nil {
			continue
		}
		if len(gr.Types) == 0 {
			continue
		}
		relType := gr.Types[0] // multi-type unions are resolved later by the render CTE (spec §4.4.1)
		rel, err := schema.ResolveRel(relType)
		if err != nil {
			return nil, err
		}
		leftLabel, _ := scanLabel(gr.Left, gr.LeftAlias)
		rightLabel, _ := scanLabel(gr.Right, gr.RightAlias)
		if leftLabel == "" || rightLabel == "" {
			continue // unlabeled node matching is out of scope
		}
		leftNode, err := schema.ResolveNode(leftLabel)
		if err != nil {
			return nil, err
		}
		rightNode, err := schema.ResolveNode(rightLabel)
		if err != nil {
			return nil, err
		}
		if leftNode.IDColumn == "" {
			return nil, cerrors.ErrMissingIDColumn.New(gr.LeftAlias)
		}
		if rightNode.IDColumn == "" {
			return nil, cerrors.ErrMissingIDColumn.New(gr.RightAlias)
		}

		fromCol, toCol := rel.FromIDColumn, rel.ToIDColumn
		if gr.Direction == ast.DirIncoming {
			fromCol, toCol = toCol, fromCol
		}

		kind := plan.JoinInner
		if gr.IsOptional {
			kind = plan.JoinLeft
		}

		joins[gr] = []plan.JoinEntry{
			{
				Kind: kind, LeftAlias: gr.LeftAlias, RightAlias: gr.RelAlias,
				On: eqExpr(gr.LeftAlias, leftNode.IDColumn, gr.RelAlias, fromCol),
			},
			{
				Kind: kind, LeftAlias: gr.RelAlias, RightAlias: gr.RightAlias,
				On: eqExpr(gr.RelAlias, toCol, gr.RightAlias, rightNode.IDColumn),
			},
		}
	}
	return joins, nil
}

func eqExpr(leftAlias, leftCol, rightAlias, rightCol string) ast.Expr {
	l := ast.Expr{Kind: ast.ExprColumnRef, Alias: leftAlias, ColumnName: leftCol}
	r := ast.Expr{Kind: ast.ExprColumnRef, Alias: rightAlias, ColumnName: rightCol}
	return ast.Expr{Kind: ast.ExprBinaryOp, Op: "=", Left: &l, Right: &r}
}

// --- Pass 5: projection tagging -------------------------------------------

// tagProjections resolves alias.field references in every Projection and
// GroupBy node to their physical columns, rewriting bare aggregate
// arguments (COUNT(x) -> COUNT(x.id_column)) and seeing through the
// DISTINCT unary wrap (COUNT(DISTINCT x) -> COUNT(DISTINCT x.id_column)).
// AliasNotInScope is checked here for every bare property access against
// the carried alias set, since this is the last pass to see the
// pre-render expression shape.
func tagProjections(n plan.Node, boundAliases map[string]bool, schema *catalog.GraphSchema) (plan.Node, error) {
	aliasLabels := map[string]string{}
	walk(n, func(cur plan.Node) bool {
		switch t := cur.(type) {
		case *plan.Scan:
			aliasLabels[t.TableAlias] = t.Label
		case *plan.ViewScan:
			aliasLabels[t.TableAlias] = t.Label
		}
		return true
	})

	tagger := &projectionTagger{schema: schema, aliasLabels: aliasLabels, bound: boundAliases}

	switch t := n.(type) {
	case *plan.Projection:
		items, err := tagger.tagItems(t.Items)
		if err != nil {
			return nil, err
		}
		newInput, err := tagProjections(t.Input, boundAliases, schema)
		if err != nil {
			return nil, err
		}
		return &plan.Projection{Input: newInput, Items: items, Distinct: t.Distinct}, nil
	case *plan.GroupBy:
		aggs, err := tagger.tagItems(t.Aggregates)
		if err != nil {
			return nil, err
		}
		keys := make([]ast.Expr, len(t.Keys))
		for i, k := range t.Keys {
			rewritten, err := tagger.tagExpr(k)
			if err != nil {
				return nil, err
			}
			keys[i] = rewritten
		}
		newInput, err := tagProjections(t.Input, boundAliases, schema)
		if err != nil {
			return nil, err
		}
		return &plan.GroupBy{Input: newInput, Keys: keys, Aggregates: aggs}, nil
	default:
		children := n.Children()
		if len(children) == 0 {
			return n, nil
		}
		newChildren := make([]plan.Node, len(children))
		for i, c := range children {
			nc, err := tagProjections(c, boundAliases, schema)
			if err != nil {
				return nil, err
			}
			newChildren[i] = nc
		}
		return n.RebuildOrKeep(newChildren), nil
	}
}

type projectionTagger struct {
	schema      *catalog.GraphSchema
	aliasLabels map[string]string
	bound       map[string]bool
}

func (pt *projectionTagger) tagItems(items []*ast.ProjectionItem) ([]*ast.ProjectionItem, error) {
	out := make([]*ast.ProjectionItem, len(items))
	for i, item := range items {
		e, err := pt.tagExpr(item.Expr)
		if err != nil {
			return nil, err
		}
		out[i] = &ast.ProjectionItem{Expr: e, Alias: item.Alias}
	}
	return out, nil
}

func (pt *projectionTagger) tagExpr(e ast.Expr) (ast.Expr, error) {
	var tagErr error
	r := &propertyTagger{pt: pt, err: &tagErr}
	tagged := visit.Rewrite(e, r)
	return tagged, tagErr
}

// propertyTagger resolves alias.field to its physical column and, for
// aggregate/scalar calls whose sole argument is a bare alias or a
// DISTINCT-wrapped bare alias, rewrites it to alias.id_column (spec §4.3
// step 5 and the parser's §4.1 note that DISTINCT is a unary wrap the
// tagging pass must see through).
type propertyTagger struct {
	visit.BaseRewriter
	pt  *projectionTagger
	err *error
}

func (r *propertyTagger) TransformPropertyAccess(e ast.Expr) ast.Expr {
	if *r.err != nil || e.Field == "" {
		return e
	}
	if !r.pt.bound[e.Alias] {
		*r.err = cerrors.ErrAliasNotInScope.New(e.Alias)
		return e
	}
	label := r.pt.aliasLabels[e.Alias]
	col, err := r.pt.schema.ResolveProperty(label, e.Field)
	if err != nil {
		*r.err = err
		return e
	}
	return ast.Expr{Kind: ast.ExprColumnRef, Alias: e.Alias, ColumnName: col}
}

func (r *propertyTagger) TransformScalarFnCall(e ast.Expr) ast.Expr {
	if *r.err != nil {
		return e
	}
	if e.Kind == ast.ExprPathFunc {
		// length(p)/nodes(p)/relationships(p) reference a path variable, not
		// a node alias; rewriting these to their CTE-backed columns is the
		// render planner's job (spec §4.4.4), not projection tagging's.
		return e
	}
	if len(e.Args) != 1 {
		return e
	}
	arg := e.Args[0]
	if arg.Kind == ast.ExprUnaryOp && arg.UnaryOp == "DISTINCT" && arg.Operand != nil {
		resolved, ok, err := r.pt.bareAliasToIDColumn(*arg.Operand)
		if err != nil {
			*r.err = err
			return e
		}
		if ok {
			op := resolved
			e.Args = []ast.Expr{{Kind: ast.ExprUnaryOp, UnaryOp: "DISTINCT", Operand: &op}}
		}
		return e
	}
	resolved, ok, err := r.pt.bareAliasToIDColumn(arg)
	if err != nil {
		*r.err = err
		return e
	}
	if ok {
		e.Args = []ast.Expr{resolved}
	}
	return e
}

// bareAliasToIDColumn rewrites a bare alias reference (COUNT(x), not
// COUNT(x.name)) to alias.id_column via the catalog. A property access
// that already names a field, or any other expression shape, is returned
// unchanged (ok == false).
func (pt *projectionTagger) bareAliasToIDColumn(e ast.Expr) (ast.Expr, bool, error) {
	if e.Kind != ast.ExprPropertyAccess || e.Field != "" {
		return e, false, nil
	}
	label := pt.aliasLabels[e.Alias]
	nm, err := pt.schema.ResolveNode(label)
	if err != nil {
		return e, false, err
	}
	if nm.IDColumn == "" {
		return e, false, cerrors.ErrMissingIDColumn.New(e.Alias)
	}
	return ast.Expr{Kind: ast.ExprColumnRef, Alias: e.Alias, ColumnName: nm.IDColumn}, true, nil
}

// --- shared plan-walking helpers ------------------------------------------

// walk performs a generic pre-order traversal using Node.Children; visit
// returning false stops descent into that node's children.
func walk(n plan.Node, visit func(plan.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for _, c := range n.Children() {
		walk(c, visit)
	}
}

func collectGraphRelsPostOrder(n plan.Node) []*plan.GraphRel {
	if n == nil {
		return nil
	}
	var out []*plan.GraphRel
	for _, c := range n.Children() {
		out = append(out, collectGraphRelsPostOrder(c)...)
	}
	if gr, ok := n.(*plan.GraphRel); ok {
		out = append(out, gr)
	}
	return out
}

func subtreeAliases(n plan.Node) map[string]bool {
	set := map[string]bool{}
	walk(n, func(cur plan.Node) bool {
		switch t := cur.(type) {
		case *plan.Scan:
			set[t.TableAlias] = true
		case *plan.ViewScan:
			set[t.TableAlias] = true
		case *plan.GraphRel:
			if t.LeftAlias != "" {
				set[t.LeftAlias] = true
			}
			if t.RightAlias != "" {
				set[t.RightAlias] = true
			}
			if t.RelAlias != "" {
				set[t.RelAlias] = true
			}
		case *plan.Unwind:
			set[t.Alias] = true
		}
		return true
	})
	return set
}
