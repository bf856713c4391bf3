package render

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/cypher/parser"
	"github.com/genezhang/clickgraph/sql/analyzer"
	"github.com/genezhang/clickgraph/sql/catalog"
	"github.com/genezhang/clickgraph/sql/planbuilder"
	"github.com/genezhang/clickgraph/sql/visit"
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

func buildRenderPlan(t *testing.T, query string, schema *catalog.GraphSchema) (*RenderPlan, error) {
	t.Helper()
	q, err := parser.Parse(query)
	require.NoError(t, err)
	root, pctx, err := planbuilder.Build(q)
	require.NoError(t, err)
	res, err := analyzer.Analyze(root, pctx, schema)
	require.NoError(t, err)
	return Build(res, schema, 0)
}

func exprContainsLiteral(e ast.Expr, v interface{}) bool {
	found := false
	visit.Walk(e, func(n ast.Expr) bool {
		if n.Kind == ast.ExprLiteral && n.LiteralValue == v {
			found = true
		}
		return true
	})
	return found
}

func TestRenderSimpleScanAndLimit(t *testing.T) {
	rp, err := buildRenderPlan(t, "MATCH (u:User) RETURN u.name LIMIT 3", socialSchema())
	require.NoError(t, err)

	require.Equal(t, FromTable, rp.From.Kind)
	require.Equal(t, "social.users", rp.From.Table)
	require.Equal(t, "u", rp.From.Alias)
	require.Empty(t, rp.Joins)
	require.Len(t, rp.Projection, 1)
	require.Equal(t, ast.ExprColumnRef, rp.Projection[0].Expr.Kind)
	require.Equal(t, "full_name", rp.Projection[0].Expr.ColumnName)
	require.Equal(t, "u", rp.Projection[0].Expr.Alias)
	require.NotNil(t, rp.Limit)
	require.EqualValues(t, 3, *rp.Limit)
}

func TestRenderInnerJoinChainPushesFilterIntoOn(t *testing.T) {
	rp, err := buildRenderPlan(t, "MATCH (u:User)-[:FOLLOWS]->(v:User) WHERE u.name = 'Alice' RETURN v.name", socialSchema())
	require.NoError(t, err)

	require.Equal(t, "u", rp.From.Alias)
	require.Len(t, rp.Joins, 2)
	for _, j := range rp.Joins {
		require.Equal(t, JoinInner, j.Kind)
	}
	require.Empty(t, rp.Where, "the pushed filter should live on the last join's ON, not WHERE")
	require.True(t, exprContainsLiteral(rp.Joins[1].On, "Alice"))
}

func TestRenderOptionalMatchProducesLeftJoins(t *testing.T) {
	rp, err := buildRenderPlan(t, "MATCH (u:User) OPTIONAL MATCH (u)-[:FOLLOWS]->(v:User) RETURN u.name, v.name", socialSchema())
	require.NoError(t, err)

	require.Len(t, rp.Joins, 2)
	for _, j := range rp.Joins {
		require.Equal(t, JoinLeft, j.Kind)
	}
}

func TestRenderCountDistinctRewritesToIDColumn(t *testing.T) {
	rp, err := buildRenderPlan(t, "MATCH (u:User) RETURN COUNT(DISTINCT u) AS c", socialSchema())
	require.NoError(t, err)

	require.Len(t, rp.Projection, 1)
	require.Equal(t, "c", rp.Projection[0].Alias)
	agg := rp.Projection[0].Expr
	require.Equal(t, ast.ExprAggregateCall, agg.Kind)
	require.Len(t, agg.Args, 1)
	require.Equal(t, ast.ExprUnaryOp, agg.Args[0].Kind)
	require.Equal(t, "DISTINCT", agg.Args[0].UnaryOp)
	require.Equal(t, ast.ExprColumnRef, agg.Args[0].Operand.Kind)
	require.Equal(t, "user_id", agg.Args[0].Operand.ColumnName)
}

func TestRenderMultiTypeRelationshipBuildsUnionCTE(t *testing.T) {
	schema := socialSchema()
	schema.Relationships["BLOCKS"] = catalog.RelMapping{
		SourceTable: "social.user_blocks", FromIDColumn: "blocker_id", ToIDColumn: "blocked_id",
		FromLabel: "User", ToLabel: "User", PropertyMap: map[string]string{},
	}
	rp, err := buildRenderPlan(t, "MATCH (u:User)-[:FOLLOWS|BLOCKS]->(v:User) RETURN v.name", schema)
	require.NoError(t, err)

	require.Len(t, rp.CTEs, 1)
	raw, ok := rp.CTEs[0].Content.(RawSQL)
	require.True(t, ok)
	require.Contains(t, string(raw), "UNION ALL")
	require.Contains(t, string(raw), "social.user_follows")
	require.Contains(t, string(raw), "social.user_blocks")
}
