package planbuilder

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genezhang/clickgraph/cypher/parser"
	"github.com/genezhang/clickgraph/sql/plan"
)

func build(t *testing.T, query string) (plan.Node, *Context) {
	t.Helper()
	q, err := parser.Parse(query)
	require.NoError(t, err)
	root, ctx, err := Build(q)
	require.NoError(t, err)
	return root, ctx
}

func TestSimpleMatchReturnProducesScanAndProjection(t *testing.T) {
	root, _ := build(t, "MATCH (u:User) RETURN u.name LIMIT 3")

	limit, ok := root.(*plan.Limit)
	require.True(t, ok)
	require.Equal(t, int64(3), limit.Count)

	proj, ok := limit.Input.(*plan.Projection)
	require.True(t, ok)
	require.Len(t, proj.Items, 1)

	scan, ok := proj.Input.(*plan.Scan)
	require.True(t, ok)
	require.Equal(t, "u", scan.TableAlias)
	require.Equal(t, "User", scan.Label)
}

func TestMultiHopPatternAccumulatesLeft(t *testing.T) {
	root, _ := build(t, "MATCH (a:User)-[:FOLLOWS]->(b:User)-[:FOLLOWS]->(c:User) RETURN a.name")

	proj, ok := root.(*plan.Projection)
	require.True(t, ok)

	second, ok := proj.Input.(*plan.GraphRel)
	require.True(t, ok)
	require.Equal(t, "b", second.LeftAlias)
	require.Equal(t, "c", second.RightAlias)

	first, ok := second.Left.(*plan.GraphRel)
	require.True(t, ok, "second hop's Left must be the first GraphRel, not a bare scan")
	require.Equal(t, "a", first.LeftAlias)
	require.Equal(t, "b", first.RightAlias)
}

func TestOptionalMatchChainsAgainstBoundAlias(t *testing.T) {
	root, ctx := build(t, "MATCH (u:User) WHERE u.name = 'Alice' OPTIONAL MATCH (u)-[:FOLLOWS]->(v:User) RETURN u.name, v.name")

	proj, ok := root.(*plan.Projection)
	require.True(t, ok)

	rel, ok := proj.Input.(*plan.GraphRel)
	require.True(t, ok)
	require.True(t, rel.IsOptional)
	require.Equal(t, "u", rel.LeftAlias)
	require.Equal(t, "v", rel.RightAlias)

	// The optional hop's Left must be the filtered first MATCH, not a fresh
	// scan of u, since u was already bound.
	filter, ok := rel.Left.(*plan.Filter)
	require.True(t, ok)
	scan, ok := filter.Input.(*plan.Scan)
	require.True(t, ok)
	require.Equal(t, "u", scan.TableAlias)

	require.True(t, ctx.OptionalAliases["v"])
	require.False(t, ctx.OptionalAliases["u"])
}

func TestWithBoundaryRestrictsCarriedAliases(t *testing.T) {
	root, ctx := build(t, "MATCH (u:User)-[:FOLLOWS]->(v:User) WITH u, count(v) AS n RETURN u.name, n")

	_, ok := root.(*plan.Projection)
	require.True(t, ok)

	// Only the WITH-carried aliases remain bound afterward.
	require.True(t, ctx.BoundAliases["u"])
	require.True(t, ctx.BoundAliases["n"])
	require.False(t, ctx.BoundAliases["v"])
}

func TestWithAggregateProducesGroupBy(t *testing.T) {
	root, _ := build(t, "MATCH (u:User)-[:FOLLOWS]->(v:User) WITH u, count(v) AS n RETURN u.name, n")

	proj := root.(*plan.Projection)
	group, ok := proj.Input.(*plan.GroupBy)
	require.True(t, ok)
	require.Len(t, group.Keys, 1)
	require.Len(t, group.Aggregates, 2)
}

func TestAnonymousNodesGetDeterministicSyntheticAliases(t *testing.T) {
	root1, _ := build(t, "MATCH (:User)-[:FOLLOWS]->(b:User) RETURN b.name")
	root2, _ := build(t, "MATCH (:User)-[:FOLLOWS]->(b:User) RETURN b.name")

	proj1 := root1.(*plan.Projection)
	rel1 := proj1.Input.(*plan.GraphRel)
	proj2 := root2.(*plan.Projection)
	rel2 := proj2.Input.(*plan.GraphRel)

	require.Equal(t, rel1.LeftAlias, rel2.LeftAlias, "identical query text must produce identical synthetic aliases")
	require.NotEmpty(t, rel1.LeftAlias)
}

func TestUnwindThreadsThroughPriorPlan(t *testing.T) {
	root, ctx := build(t, "MATCH (u:User) UNWIND u.tags AS tag RETURN tag")

	proj := root.(*plan.Projection)
	unwind, ok := proj.Input.(*plan.Unwind)
	require.True(t, ok)
	require.Equal(t, "tag", unwind.Alias)
	require.True(t, ctx.BoundAliases != nil)

	_, ok = unwind.Input.(*plan.Scan)
	require.True(t, ok)
}
