package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/src-d/go-errors.v1"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/sql/cerrors"
)

func TestParseSimpleMatchReturn(t *testing.T) {
	q, err := Parse(`MATCH (u:User) RETURN u.name LIMIT 3`)
	require.NoError(t, err)
	require.Len(t, q.Clauses, 2)

	m, ok := q.Clauses[0].(*ast.Match)
	require.True(t, ok)
	require.False(t, m.Optional)
	require.Len(t, m.Patterns, 1)
	require.Len(t, m.Patterns[0].Nodes, 1)
	require.Equal(t, "u", m.Patterns[0].Nodes[0].Alias)
	require.Equal(t, []string{"User"}, m.Patterns[0].Nodes[0].Labels)

	r, ok := q.Clauses[1].(*ast.Return)
	require.True(t, ok)
	require.NotNil(t, r.Limit)
	require.Equal(t, int64(3), *r.Limit)
	require.Len(t, r.Items, 1)
	require.Equal(t, "u", r.Items[0].Expr.Alias)
	require.Equal(t, "name", r.Items[0].Expr.Field)
}

func TestParseWhereBeforeOptionalMatch(t *testing.T) {
	// Grammar note in spec §4.1: WHERE trailing a MATCH must be consumed
	// before the parser attempts the following OPTIONAL MATCH keyword.
	q, err := Parse(`MATCH (u:User) WHERE u.name = 'Alice' OPTIONAL MATCH (u)-[:FOLLOWS]->(v:User) RETURN u.name, v.name`)
	require.NoError(t, err)
	require.Len(t, q.Clauses, 3)

	first, ok := q.Clauses[0].(*ast.Match)
	require.True(t, ok)
	require.False(t, first.Optional)
	require.NotNil(t, first.Where)
	require.Equal(t, "=", first.Where.Op)

	second, ok := q.Clauses[1].(*ast.Match)
	require.True(t, ok)
	require.True(t, second.Optional)
	require.Len(t, second.Patterns[0].Rels, 1)
	require.Equal(t, []string{"FOLLOWS"}, second.Patterns[0].Rels[0].Types)
	require.Equal(t, ast.DirOutgoing, second.Patterns[0].Rels[0].Direction)
}

func TestParseCountDistinctIsUnaryWrap(t *testing.T) {
	q, err := Parse(`MATCH (u:User) RETURN COUNT(DISTINCT u) AS c`)
	require.NoError(t, err)
	r := q.Clauses[1].(*ast.Return)
	require.Len(t, r.Items, 1)
	item := r.Items[0]
	require.Equal(t, "c", item.Alias)
	require.Equal(t, ast.ExprAggregateCall, item.Expr.Kind)
	require.Equal(t, ast.AggCount, item.Expr.AggFunc)
	require.Len(t, item.Expr.Args, 1)
	arg := item.Expr.Args[0]
	require.Equal(t, ast.ExprUnaryOp, arg.Kind)
	require.Equal(t, "DISTINCT", arg.UnaryOp)
	require.Equal(t, "u", arg.Operand.Alias)
}

func TestParseVarLengthRanges(t *testing.T) {
	cases := []struct {
		query      string
		wantMin    *uint32
		wantMax    *uint32
		shouldFail bool
		wantKind   *errors.Kind
	}{
		{query: `MATCH (a)-[:R*]-(b) RETURN a`, wantMin: nil, wantMax: nil},
		{query: `MATCH (a)-[:R*2]-(b) RETURN a`, wantMin: u32p(2), wantMax: u32p(2)},
		{query: `MATCH (a)-[:R*1..3]-(b) RETURN a`, wantMin: u32p(1), wantMax: u32p(3)},
		{query: `MATCH (a)-[:R*..3]-(b) RETURN a`, wantMin: nil, wantMax: u32p(3)},
		{query: `MATCH (a)-[:R*2..]-(b) RETURN a`, wantMin: u32p(2), wantMax: nil},
		{query: `MATCH (a)-[:R*0]-(b) RETURN a`, shouldFail: true, wantKind: cerrors.ErrInvalidZeroHops},
		{query: `MATCH (a)-[:R*5..2]-(b) RETURN a`, shouldFail: true, wantKind: cerrors.ErrInvalidRangeMinGreaterThanMax},
	}
	for _, c := range cases {
		q, err := Parse(c.query)
		if c.shouldFail {
			require.Error(t, err, c.query)
			require.True(t, c.wantKind.Is(err), "%s: want %v, got %v", c.query, c.wantKind, err)
			continue
		}
		require.NoError(t, err, c.query)
		m := q.Clauses[0].(*ast.Match)
		spec := m.Patterns[0].Rels[0].VarLength
		require.NotNil(t, spec, c.query)
		require.Equal(t, c.wantMin, spec.Min, c.query)
		require.Equal(t, c.wantMax, spec.Max, c.query)
	}
}

func TestParseDirections(t *testing.T) {
	q, err := Parse(`MATCH (a)<-[:R]-(b) RETURN a`)
	require.NoError(t, err)
	m := q.Clauses[0].(*ast.Match)
	require.Equal(t, ast.DirIncoming, m.Patterns[0].Rels[0].Direction)

	q, err = Parse(`MATCH (a)-[:R]-(b) RETURN a`)
	require.NoError(t, err)
	m = q.Clauses[0].(*ast.Match)
	require.Equal(t, ast.DirEither, m.Patterns[0].Rels[0].Direction)
}

func TestParseShortestPath(t *testing.T) {
	q, err := Parse(`MATCH p = shortestPath((a:User)-[:FOLLOWS*]-(b:User)) RETURN p`)
	require.NoError(t, err)
	m := q.Clauses[0].(*ast.Match)
	require.True(t, m.Patterns[0].ShortestPath)
	require.Equal(t, "p", m.Patterns[0].PathVar)
}

func TestParseMultiHopPattern(t *testing.T) {
	// Regression: a three-node chain must keep both relationships and all
	// three node slots, not collapse the middle hop.
	q, err := Parse(`MATCH (a)-[:R1]->(b)-[:R2]->(c) RETURN a, b, c`)
	require.NoError(t, err)
	m := q.Clauses[0].(*ast.Match)
	require.Len(t, m.Patterns[0].Nodes, 3)
	require.Len(t, m.Patterns[0].Rels, 2)
}

func TestParseErrorHasPosition(t *testing.T) {
	_, err := Parse(`MATCH (u:User RETURN u`)
	require.Error(t, err)
	pe, ok := err.(*ParseError)
	require.True(t, ok)
	require.Greater(t, pe.Position.Line, 0)
}

func u32p(v uint32) *uint32 { return &v }
