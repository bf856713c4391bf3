// Package plan defines the logical plan tree (spec §3.2): the algebraic
// lowering of a Cypher query's patterns and clauses into scans, graph
// relationships, joins, projections, filters, grouping, and CTEs. Node
// naming and the "rebuild only if a child changed" contract follow the
// shape visible in the teacher's sql/transform and sql/plan test suites
// (table-driven expectations over plan.New* constructors and a
// WithChildren-style rebuild contract), since the teacher's own
// implementation files for those packages were not retrieved.
package plan

import (
	"github.com/genezhang/clickgraph/cypher/ast"
)

// Node is the uniform interface every logical plan variant implements.
// RebuildOrKeep is the spec §3.2 contract: if newChildren differ from the
// node's current children, it returns a structurally identical new node
// with the children substituted; otherwise it returns the receiver
// unchanged. This cheap reference-equality shortcut is what lets analyzer
// passes skip rebuilding subtrees they didn't touch (spec §8.2's
// idempotence law: "rebuild_or_keep returns the original shared plan
// reference when no child was transformed").
type Node interface {
	Children() []Node
	RebuildOrKeep(children []Node) Node
}

func sameChildren(old, new []Node) bool {
	if len(old) != len(new) {
		return false
	}
	for i := range old {
		if old[i] != new[i] {
			return false
		}
	}
	return true
}

// Scan is a labeled node source before catalog resolution (built by the
// planbuilder and by tests; no pass replaces it with a ViewScan, and the
// later stages resolve its label through the catalog directly).
type Scan struct {
	TableAlias string
	Label      string
	IDColumn   string
}

func (s *Scan) Children() []Node { return nil }
func (s *Scan) RebuildOrKeep([]Node) Node { return s }

// ViewScan is a catalog-resolved scan: same role as Scan but tied to a
// resolved physical table (spec §3.2).
type ViewScan struct {
	TableAlias  string
	SourceTable string
	IDColumn    string
	Label       string
}

func (v *ViewScan) Children() []Node { return nil }
func (v *ViewScan) RebuildOrKeep([]Node) Node { return v }

// GraphRel is the node/relationship/node triple that is the unit of
// pattern matching (spec §3.2). Left must be the accumulated plan so far
// when folding a multi-hop path left to right — losing this accumulation
// is the recurring bug class spec §4.2 calls out, so Left is always set
// explicitly by whoever builds the GraphRel; nothing in this package derives
// it.
type GraphRel struct {
	Left, Right           Node
	LeftAlias, RightAlias string
	RelAlias              string
	Types                 []string
	Direction             ast.Direction
	VarLength             *ast.VarLengthSpec
	IsOptional            bool
	Filters               []ast.Expr

	// PathVar, ShortestPath, AllShortestPath carry the enclosing path
	// pattern's `p = ...` capture and shortestPath()/allShortestPaths()
	// wrapping (spec §4.4.3). Only meaningful when VarLength is set.
	PathVar         string
	ShortestPath    bool
	AllShortestPath bool
}

func (g *GraphRel) Children() []Node { return []Node{g.Left, g.Right} }

func (g *GraphRel) RebuildOrKeep(children []Node) Node {
	if sameChildren(g.Children(), children) {
		return g
	}
	cp := *g
	cp.Left, cp.Right = children[0], children[1]
	return &cp
}

// Filter applies a predicate to its input.
type Filter struct {
	Input     Node
	Predicate ast.Expr
}

func (f *Filter) Children() []Node { return []Node{f.Input} }
func (f *Filter) RebuildOrKeep(children []Node) Node {
	if sameChildren(f.Children(), children) {
		return f
	}
	cp := *f
	cp.Input = children[0]
	return &cp
}

// Projection is a WITH/RETURN projection boundary.
type Projection struct {
	Input    Node
	Items    []*ast.ProjectionItem
	Distinct bool
}

func (p *Projection) Children() []Node { return []Node{p.Input} }
func (p *Projection) RebuildOrKeep(children []Node) Node {
	if sameChildren(p.Children(), children) {
		return p
	}
	cp := *p
	cp.Input = children[0]
	return &cp
}

// GroupBy groups by keys with the given aggregate projection items.
type GroupBy struct {
	Input      Node
	Keys       []ast.Expr
	Aggregates []*ast.ProjectionItem
}

func (g *GroupBy) Children() []Node { return []Node{g.Input} }
func (g *GroupBy) RebuildOrKeep(children []Node) Node {
	if sameChildren(g.Children(), children) {
		return g
	}
	cp := *g
	cp.Input = children[0]
	return &cp
}

// OrderBy sorts its input.
type OrderBy struct {
	Input Node
	Keys  []*ast.OrderItem
}

func (o *OrderBy) Children() []Node { return []Node{o.Input} }
func (o *OrderBy) RebuildOrKeep(children []Node) Node {
	if sameChildren(o.Children(), children) {
		return o
	}
	cp := *o
	cp.Input = children[0]
	return &cp
}

// Skip discards the first N rows of its input.
type Skip struct {
	Input Node
	Count int64
}

func (s *Skip) Children() []Node { return []Node{s.Input} }
func (s *Skip) RebuildOrKeep(children []Node) Node {
	if sameChildren(s.Children(), children) {
		return s
	}
	cp := *s
	cp.Input = children[0]
	return &cp
}

// Limit caps the number of rows of its input.
type Limit struct {
	Input Node
	Count int64
}

func (l *Limit) Children() []Node { return []Node{l.Input} }
func (l *Limit) RebuildOrKeep(children []Node) Node {
	if sameChildren(l.Children(), children) {
		return l
	}
	cp := *l
	cp.Input = children[0]
	return &cp
}

// Unwind expands a list expression into one row per element, binding Alias.
type Unwind struct {
	Input Node
	Expr  ast.Expr
	Alias string
}

func (u *Unwind) Children() []Node { return []Node{u.Input} }
func (u *Unwind) RebuildOrKeep(children []Node) Node {
	if sameChildren(u.Children(), children) {
		return u
	}
	cp := *u
	cp.Input = children[0]
	return &cp
}

// Cte wraps Input as a named common table expression referenced by later
// plan nodes.
type Cte struct {
	Input Node
	Name  string
}

func (c *Cte) Children() []Node { return []Node{c.Input} }
func (c *Cte) RebuildOrKeep(children []Node) Node {
	if sameChildren(c.Children(), children) {
		return c
	}
	cp := *c
	cp.Input = children[0]
	return &cp
}

// JoinKind distinguishes inner from left-outer joins.
type JoinKind int

const (
	JoinInner JoinKind = iota
	JoinLeft
)

// JoinEntry is one synthesized join produced by the analyzer's graph-join
// inference pass (spec §4.3 step 4).
type JoinEntry struct {
	Kind       JoinKind
	LeftAlias  string
	RightAlias string
	On         ast.Expr
}

// GraphJoins attaches the analyzer-inferred join list to a plan subtree.
type GraphJoins struct {
	Input Node
	Joins []JoinEntry
}

func (g *GraphJoins) Children() []Node { return []Node{g.Input} }
func (g *GraphJoins) RebuildOrKeep(children []Node) Node {
	if sameChildren(g.Children(), children) {
		return g
	}
	cp := *g
	cp.Input = children[0]
	return &cp
}

// Union combines multiple plan branches, e.g. one per type in a
// multi-type relationship disjunction.
type Union struct {
	Inputs []Node
	All    bool
}

func (u *Union) Children() []Node { return append([]Node(nil), u.Inputs...) }
func (u *Union) RebuildOrKeep(children []Node) Node {
	if sameChildren(u.Children(), children) {
		return u
	}
	cp := *u
	cp.Inputs = children
	return &cp
}

// Call is the sentinel plan variant for a CALL clause, lowered by the
// render stage to an algorithm-specific CTE (spec §4.2). Input is nil when
// CALL is the first clause of the query; otherwise it threads through
// whatever plan preceded it.
type Call struct {
	Input    Node
	ProcName string
	Args     []ast.Expr
}

func (c *Call) Children() []Node {
	if c.Input == nil {
		return nil
	}
	return []Node{c.Input}
}

func (c *Call) RebuildOrKeep(children []Node) Node {
	if sameChildren(c.Children(), children) {
		return c
	}
	cp := *c
	if len(children) > 0 {
		cp.Input = children[0]
	}
	return &cp
}
