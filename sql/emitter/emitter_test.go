package emitter

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genezhang/clickgraph/cypher/parser"
	"github.com/genezhang/clickgraph/sql/analyzer"
	"github.com/genezhang/clickgraph/sql/catalog"
	"github.com/genezhang/clickgraph/sql/planbuilder"
	"github.com/genezhang/clickgraph/sql/render"
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

func emitQuery(t *testing.T, query string, schema *catalog.GraphSchema) (string, error) {
	t.Helper()
	q, err := parser.Parse(query)
	require.NoError(t, err)
	root, pctx, err := planbuilder.Build(q)
	require.NoError(t, err)
	res, err := analyzer.Analyze(root, pctx, schema)
	require.NoError(t, err)
	rp, err := render.Build(res, schema, 0)
	require.NoError(t, err)
	return Emit(rp)
}

func TestEmitSimpleScanPreservesSchemaQualifiedTable(t *testing.T) {
	sql, err := emitQuery(t, "MATCH (u:User) RETURN u.name LIMIT 3", socialSchema())
	require.NoError(t, err)

	require.Contains(t, sql, "FROM social.users AS u")
	require.Contains(t, sql, "SELECT u.full_name")
	require.Contains(t, sql, "LIMIT 3")
	require.NotContains(t, sql, "WITH")
}

func TestEmitInnerJoinChain(t *testing.T) {
	sql, err := emitQuery(t, "MATCH (u:User)-[:FOLLOWS]->(v:User) WHERE u.name = 'Alice' RETURN v.name", socialSchema())
	require.NoError(t, err)

	require.Contains(t, sql, "JOIN social.user_follows AS")
	require.Contains(t, sql, "JOIN social.users AS v")
	require.Contains(t, sql, "'Alice'")
	require.NotContains(t, sql, "LEFT JOIN")
}

func TestEmitOptionalMatchUsesLeftJoin(t *testing.T) {
	sql, err := emitQuery(t, "MATCH (u:User) OPTIONAL MATCH (u)-[:FOLLOWS]->(v:User) RETURN u.name, v.name", socialSchema())
	require.NoError(t, err)

	require.Contains(t, sql, "LEFT JOIN")
}

func TestEmitExactHopCountProducesPlainCTE(t *testing.T) {
	sql, err := emitQuery(t, "MATCH (u:User)-[:FOLLOWS*2]->(v:User) RETURN v.name", socialSchema())
	require.NoError(t, err)

	require.Contains(t, sql, "WITH ")
	require.NotContains(t, sql, "WITH RECURSIVE")
	require.Contains(t, sql, "<>")
}

func TestEmitRangeVarLengthProducesRecursiveCTE(t *testing.T) {
	sql, err := emitQuery(t, "MATCH (u:User)-[:FOLLOWS*1..3]->(v:User) RETURN v.name", socialSchema())
	require.NoError(t, err)

	require.Contains(t, sql, "WITH RECURSIVE")
	require.Contains(t, sql, "UNION ALL")
	require.Contains(t, sql, "SETTINGS max_recursive_cte_evaluation_depth = 3")
	require.Contains(t, sql, "arrayConcat(")
	require.Contains(t, sql, "has(")
}

func TestEmitCountDistinctAggregate(t *testing.T) {
	sql, err := emitQuery(t, "MATCH (u:User) RETURN COUNT(DISTINCT u) AS c", socialSchema())
	require.NoError(t, err)

	require.Contains(t, sql, "COUNT(DISTINCT u.user_id)")
	require.Contains(t, sql, "AS c")
}

func TestEmitLiteralEscapesQuotes(t *testing.T) {
	sql, err := emitQuery(t, `MATCH (u:User) WHERE u.name = 'O\'Brien' RETURN u.name`, socialSchema())
	require.NoError(t, err)

	require.Contains(t, sql, "'O''Brien'")
}
