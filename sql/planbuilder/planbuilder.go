// Package planbuilder lowers a parsed ast.Query into the initial logical
// plan.Node tree (spec §4.2), before the analyzer resolves catalog mappings
// and infers joins. It is the one place responsible for the left-
// accumulation discipline spec §4.2 calls out as a recurring bug class:
// folding a multi-hop path, or chaining a later MATCH against an alias
// bound earlier, must always nest the plan built so far as Left, never
// discard it for a bare scan. The fold/accumulate shape follows
// other_examples/...chainsaw__pkg-cypher-transpiler.go's pattern-to-join
// walk, generalized to Cypher's richer clause set.
package planbuilder

import (
	"fmt"

	"github.com/mitchellh/hashstructure"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/sql/plan"
)

// Context carries the alias bookkeeping the analyzer needs alongside the
// plan tree: which aliases were introduced under an OPTIONAL MATCH (and so
// must tolerate NULL), and which aliases are currently in scope (carried by
// the most recent WITH projection boundary, or never yet bounded by one;
// RETURN does not change this set).
type Context struct {
	OptionalAliases map[string]bool
	BoundAliases    map[string]bool
}

// Build lowers q into a plan.Node tree and the Context the analyzer needs
// to validate alias scoping and optional-null handling.
func Build(q *ast.Query) (plan.Node, *Context, error) {
	b := &builder{
		scans:    map[string]*plan.Scan{},
		optional: map[string]bool{},
		bound:    map[string]bool{},
	}
	for _, clause := range q.Clauses {
		switch c := clause.(type) {
		case *ast.Match:
			b.applyMatch(c)
		case *ast.With:
			b.applyWith(c)
		case *ast.Return:
			b.applyReturn(c)
		case *ast.Unwind:
			b.applyUnwind(c)
		case *ast.Call:
			b.applyCall(c)
		default:
			return nil, nil, fmt.Errorf("planbuilder: unrecognized clause type %T", clause)
		}
		b.clauseIdx++
	}
	return b.current, &Context{OptionalAliases: b.optional, BoundAliases: b.bound}, nil
}

type builder struct {
	scans     map[string]*plan.Scan
	optional  map[string]bool
	bound     map[string]bool
	current   plan.Node
	lastAlias string
	clauseIdx int
}

func (b *builder) applyMatch(m *ast.Match) {
	for pidx, pp := range m.Patterns {
		firstAlias := b.resolveAlias(&pp.Nodes[0].Alias, pp.Nodes[0].Anonymous, "n", pidx, 0)

		switch {
		case b.current != nil && b.bound[firstAlias]:
			b.current = b.foldPattern(pp, m.Optional, pidx, b.current, firstAlias)
		case b.current == nil:
			b.current = b.foldPattern(pp, m.Optional, pidx, nil, "")
		default:
			branch := b.foldPattern(pp, m.Optional, pidx, nil, "")
			b.current = &plan.GraphRel{
				Left: b.current, Right: branch,
				LeftAlias: b.lastAlias, RightAlias: firstAlias,
				IsOptional: m.Optional,
			}
		}

		for _, np := range pp.Nodes {
			b.bound[np.Alias] = true
		}
	}
	if !isAbsentExpr(m.Where) {
		b.current = &plan.Filter{Input: b.current, Predicate: m.Where}
	}
}

// isAbsentExpr reports whether e is the zero-value Expr used to mean "no
// expression here", e.g. an unset Match.Where or With.Where. This is
// indistinguishable from a literal bare `NULL`, which cannot occur as a
// whole WHERE predicate in practice, so the ambiguity is harmless; ast.Expr
// contains a map field and so cannot be compared with ==.
func isAbsentExpr(e ast.Expr) bool {
	return e.Kind == ast.ExprLiteral && e.LiteralValue == nil
}

// foldPattern folds one path pattern left to right, producing nested
// GraphRel nodes whose Left is always the plan accumulated so far. If seed
// is non-nil, it is used in place of a fresh scan for the pattern's first
// node (the alias is already bound by an earlier clause or pattern), which
// is how a later MATCH correctly joins against everything matched so far
// rather than starting a disconnected scan.
func (b *builder) foldPattern(pp *ast.PathPattern, optional bool, pidx int, seed plan.Node, seedAlias string) plan.Node {
	var acc plan.Node
	var leftAlias string

	if seed != nil {
		acc, leftAlias = seed, seedAlias
	} else {
		firstAlias := b.resolveAlias(&pp.Nodes[0].Alias, pp.Nodes[0].Anonymous, "n", pidx, 0)
		acc = b.getOrCreateScan(firstAlias, pp.Nodes[0].Labels)
		leftAlias = firstAlias
	}

	for i, rel := range pp.Rels {
		rightNode := pp.Nodes[i+1]
		rightAlias := b.resolveAlias(&rightNode.Alias, rightNode.Anonymous, "n", pidx, i+1)
		rightScan := b.getOrCreateScan(rightAlias, rightNode.Labels)
		relAlias := b.resolveAlias(&rel.Alias, rel.Anonymous, "r", pidx, i)

		if optional {
			b.optional[rightAlias] = true
			b.optional[relAlias] = true
		}

		gr := &plan.GraphRel{
			Left: acc, Right: rightScan,
			LeftAlias: leftAlias, RightAlias: rightAlias, RelAlias: relAlias,
			Types: rel.Types, Direction: rel.Direction, VarLength: rel.VarLength,
			IsOptional: optional,
		}
		// A path capture (`p = ...`) or shortestPath()/allShortestPaths()
		// wrapper is only given render-level path semantics for the
		// single-relationship patterns spec §4.4.2/§4.4.3 describe; longer
		// chains under the same wrapper don't carry it.
		if len(pp.Rels) == 1 && pp.PathVar != "" {
			gr.PathVar = pp.PathVar
		}
		if len(pp.Rels) == 1 && (pp.ShortestPath || pp.AllShortestPath) {
			gr.ShortestPath = pp.ShortestPath
			gr.AllShortestPath = pp.AllShortestPath
		}
		acc = gr
		leftAlias = rightAlias
	}

	b.lastAlias = leftAlias
	return acc
}

func (b *builder) getOrCreateScan(alias string, labels []string) *plan.Scan {
	if existing, ok := b.scans[alias]; ok {
		return existing
	}
	label := ""
	if len(labels) > 0 {
		label = labels[0]
	}
	s := &plan.Scan{TableAlias: alias, Label: label}
	b.scans[alias] = s
	return s
}

// resolveAlias returns *alias if already set, otherwise derives and stores
// a deterministic synthetic one from the clause/pattern/element position so
// repeated parses of the same query text produce the same plan (spec §8.3's
// determinism invariant).
func (b *builder) resolveAlias(alias *string, anonymous bool, kind string, patternIdx, elementIdx int) string {
	if *alias != "" {
		return *alias
	}
	h, err := hashstructure.Hash(struct {
		Kind    string
		Clause  int
		Pattern int
		Element int
	}{kind, b.clauseIdx, patternIdx, elementIdx}, nil)
	if err != nil {
		// hashstructure only errors on unsupported field types; our struct
		// has none, so this path is unreachable in practice.
		h = uint64(b.clauseIdx)<<32 | uint64(patternIdx)<<16 | uint64(elementIdx)
	}
	synthetic := fmt.Sprintf("_%s%x", kind, h&0xffffffff)
	*alias = synthetic
	return synthetic
}

func (b *builder) applyWith(w *ast.With) {
	b.current = b.projectionChain(b.current, w.Items, w.Distinct, w.Where, w.Order, w.Skip, w.Limit)

	nextBound := map[string]bool{}
	for _, item := range w.Items {
		switch {
		case item.Alias != "":
			nextBound[item.Alias] = true
		case item.Expr.Kind == ast.ExprPropertyAccess && item.Expr.Field == "":
			// bare `WITH u` pass-through carries the alias forward unchanged.
			nextBound[item.Expr.Alias] = true
		}
	}
	b.bound = nextBound
}

func (b *builder) applyReturn(r *ast.Return) {
	b.current = b.projectionChain(b.current, r.Items, r.Distinct, ast.Expr{}, r.Order, r.Skip, r.Limit)
}

func (b *builder) projectionChain(input plan.Node, items []*ast.ProjectionItem, distinct bool, where ast.Expr, order []*ast.OrderItem, skip, limit *int64) plan.Node {
	var node plan.Node
	if anyAggregate(items) {
		node = &plan.GroupBy{Input: input, Keys: nonAggregateKeys(items), Aggregates: items}
	} else {
		node = &plan.Projection{Input: input, Items: items, Distinct: distinct}
	}
	if !isAbsentExpr(where) {
		node = &plan.Filter{Input: node, Predicate: where}
	}
	if len(order) > 0 {
		node = &plan.OrderBy{Input: node, Keys: order}
	}
	if skip != nil {
		node = &plan.Skip{Input: node, Count: *skip}
	}
	if limit != nil {
		node = &plan.Limit{Input: node, Count: *limit}
	}
	return node
}

func (b *builder) applyUnwind(u *ast.Unwind) {
	b.current = &plan.Unwind{Input: b.current, Expr: u.Expr, Alias: u.Alias}
	b.bound[u.Alias] = true
}

func (b *builder) applyCall(c *ast.Call) {
	b.current = &plan.Call{Input: b.current, ProcName: c.ProcName, Args: c.Args}
}

func anyAggregate(items []*ast.ProjectionItem) bool {
	for _, item := range items {
		if exprHasAggregate(item.Expr) {
			return true
		}
	}
	return false
}

func nonAggregateKeys(items []*ast.ProjectionItem) []ast.Expr {
	var keys []ast.Expr
	for _, item := range items {
		if !exprHasAggregate(item.Expr) {
			keys = append(keys, item.Expr)
		}
	}
	return keys
}

func exprHasAggregate(e ast.Expr) bool {
	if e.Kind == ast.ExprAggregateCall {
		return true
	}
	found := false
	walkChildren(e, func(child ast.Expr) {
		if exprHasAggregate(child) {
			found = true
		}
	})
	return found
}

func walkChildren(e ast.Expr, visit func(ast.Expr)) {
	switch e.Kind {
	case ast.ExprFuncCall, ast.ExprPathFunc:
		for _, a := range e.Args {
			visit(a)
		}
	case ast.ExprBinaryOp:
		if e.Left != nil {
			visit(*e.Left)
		}
		if e.Right != nil {
			visit(*e.Right)
		}
	case ast.ExprUnaryOp:
		if e.Operand != nil {
			visit(*e.Operand)
		}
	case ast.ExprCase:
		for _, wb := range e.WhenThen {
			visit(wb.When)
			visit(wb.Then)
		}
		if e.Else != nil {
			visit(*e.Else)
		}
	}
}
