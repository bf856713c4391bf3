package analyzer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/cypher/parser"
	"github.com/genezhang/clickgraph/sql/catalog"
	"github.com/genezhang/clickgraph/sql/cerrors"
	"github.com/genezhang/clickgraph/sql/plan"
	"github.com/genezhang/clickgraph/sql/planbuilder"
)

func socialSchema() *catalog.GraphSchema {
	return &catalog.GraphSchema{
		Name: "social",
		Nodes: map[string]catalog.NodeMapping{
			"User": {SourceTable: "social.users", IDColumn: "user_id", PropertyMap: map[string]string{"name": "full_name"}},
		},
		Relationships: map[string]catalog.RelMapping{
			"FOLLOWS": {
				SourceTable: "social.user_follows", FromIDColumn: "follower_id", ToIDColumn: "followed_id",
				FromLabel: "User", ToLabel: "User", PropertyMap: map[string]string{},
			},
		},
	}
}

func analyze(t *testing.T, query string, schema *catalog.GraphSchema) (*Result, error) {
	t.Helper()
	q, err := parser.Parse(query)
	require.NoError(t, err)
	root, pctx, err := planbuilder.Build(q)
	require.NoError(t, err)
	return Analyze(root, pctx, schema)
}

func TestAnalyzeResolvesPropertyToPhysicalColumn(t *testing.T) {
	res, err := analyze(t, "MATCH (u:User) RETURN u.name LIMIT 3", socialSchema())
	require.NoError(t, err)

	limit := res.Plan.(*plan.Limit)
	proj := limit.Input.(*plan.Projection)
	require.Equal(t, ast.ExprColumnRef, proj.Items[0].Expr.Kind)
	require.Equal(t, "full_name", proj.Items[0].Expr.ColumnName)
	require.Equal(t, "u", proj.Items[0].Expr.Alias)
}

func TestAnalyzeUnknownLabelFails(t *testing.T) {
	_, err := analyze(t, "MATCH (c:Company) RETURN c.name", socialSchema())
	require.Error(t, err)
	require.True(t, cerrors.ErrUnknownLabel.Is(err))
}

func TestAnalyzeUnknownPropertyFails(t *testing.T) {
	_, err := analyze(t, "MATCH (u:User) RETURN u.nonexistent", socialSchema())
	require.Error(t, err)
	require.True(t, cerrors.ErrPropertyNotFound.Is(err))
}

func TestFilterPushesDownIntoGraphRel(t *testing.T) {
	res, err := analyze(t, "MATCH (u:User)-[:FOLLOWS]->(v:User) WHERE u.name = 'Alice' RETURN v.name", socialSchema())
	require.NoError(t, err)

	proj := res.Plan.(*plan.Projection)
	gr, ok := proj.Input.(*plan.GraphRel)
	require.True(t, ok, "no stray Filter should remain wrapping the GraphRel")
	require.Len(t, gr.Filters, 1)
}

func TestOptionalMatchProducesLeftJoins(t *testing.T) {
	res, err := analyze(t, "MATCH (u:User) OPTIONAL MATCH (u)-[:FOLLOWS]->(v:User) RETURN u.name, v.name", socialSchema())
	require.NoError(t, err)

	var gr *plan.GraphRel
	for rel := range res.Joins {
		gr = rel
	}
	require.NotNil(t, gr)
	entries := res.Joins[gr]
	require.Len(t, entries, 2)
	for _, e := range entries {
		require.Equal(t, plan.JoinLeft, e.Kind)
	}
}

func TestInnerMatchProducesInnerJoins(t *testing.T) {
	res, err := analyze(t, "MATCH (u:User)-[:FOLLOWS]->(v:User) RETURN u.name, v.name", socialSchema())
	require.NoError(t, err)

	require.Len(t, res.Joins, 1)
	for _, entries := range res.Joins {
		for _, e := range entries {
			require.Equal(t, plan.JoinInner, e.Kind)
		}
	}
}

func TestThreeHopChainProducesJoinsForBothHops(t *testing.T) {
	// Regression for the historical bug (spec §4.3 step 4): a JOIN missed
	// on the second of three hops because the left child went unvisited.
	res, err := analyze(t, "MATCH (a:User)-[:FOLLOWS]->(b:User)-[:FOLLOWS]->(c:User) RETURN a.name", socialSchema())
	require.NoError(t, err)
	require.Len(t, res.Joins, 2, "both hops of a three-node chain must produce join entries")
}

func TestCountDistinctArgumentRewrittenToIDColumn(t *testing.T) {
	res, err := analyze(t, "MATCH (u:User)-[:FOLLOWS]->(v:User) RETURN count(DISTINCT v) AS n", socialSchema())
	require.NoError(t, err)

	group := res.Plan.(*plan.GroupBy)
	agg := group.Aggregates[0].Expr
	require.Equal(t, ast.ExprAggregateCall, agg.Kind)
	distinctWrap := agg.Args[0]
	require.Equal(t, "DISTINCT", distinctWrap.UnaryOp)
	require.Equal(t, ast.ExprColumnRef, distinctWrap.Operand.Kind)
	require.Equal(t, "user_id", distinctWrap.Operand.ColumnName)
}

func TestAliasNotInScopeAfterWith(t *testing.T) {
	_, err := analyze(t, "MATCH (u:User)-[:FOLLOWS]->(v:User) WITH u RETURN v.name", socialSchema())
	require.Error(t, err)
	require.True(t, cerrors.ErrAliasNotInScope.Is(err))
}

func TestVarLengthRelationshipSkipsValidationAndJoinInference(t *testing.T) {
	res, err := analyze(t, "MATCH (u:User)-[:FOLLOWS*1..3]->(v:User) RETURN u.name", socialSchema())
	require.NoError(t, err)
	require.Len(t, res.Joins, 0, "variable-length relationships are resolved by the render CTE generator, not join inference")
}
