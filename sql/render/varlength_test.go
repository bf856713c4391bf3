package render

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRenderExactHopCountUsesChainedJoinNotRecursive(t *testing.T) {
	rp, err := buildRenderPlan(t, "MATCH (u:User)-[:FOLLOWS*2]->(v:User) RETURN u.name, v.name", socialSchema())
	require.NoError(t, err)

	require.Len(t, rp.CTEs, 1)
	cte := rp.CTEs[0]
	require.False(t, cte.Recursive)
	raw, ok := cte.Content.(RawSQL)
	require.True(t, ok)
	text := string(raw)
	require.NotContains(t, text, "UNION ALL")
	require.Contains(t, text, "cn0")
	require.Contains(t, text, "cn1")
	require.Contains(t, text, "cn2")
	require.Contains(t, text, "ce1")
	require.Contains(t, text, "ce2")
	require.Contains(t, text, "<>")

	require.Len(t, rp.Joins, 1, "a variable-length relationship contributes exactly one join: to its CTE")
	require.Equal(t, FromCTE, rp.Joins[0].From.Kind)
	require.Equal(t, cte.Name, rp.Joins[0].From.CTEName)
}

func TestRenderRangeVarLengthUsesRecursiveCTE(t *testing.T) {
	rp, err := buildRenderPlan(t, "MATCH (u:User)-[:FOLLOWS*1..3]->(v:User) WHERE u.name = 'Alice' RETURN v.name", socialSchema())
	require.NoError(t, err)

	require.Len(t, rp.CTEs, 1)
	cte := rp.CTEs[0]
	require.True(t, cte.Recursive)
	raw, ok := cte.Content.(RawSQL)
	require.True(t, ok)
	text := string(raw)
	require.Contains(t, text, "UNION ALL")
	require.Contains(t, text, "hop_count")
	require.Contains(t, text, "path_nodes")
	require.Contains(t, text, "has(")
	require.Contains(t, text, "arrayConcat(")
	require.Contains(t, text, "SETTINGS max_recursive_cte_evaluation_depth = 3")

	require.Len(t, rp.Joins, 1)
	require.True(t, exprContainsLiteral(rp.Joins[0].On, "Alice"), "the pushed WHERE u.name = 'Alice' should end up ANDed onto the CTE join")
}

func TestRenderShortestPathAddsOrderAndLimit(t *testing.T) {
	rp, err := buildRenderPlan(t, "MATCH p = shortestPath((u:User)-[:FOLLOWS*]->(v:User)) RETURN length(p)", socialSchema())
	require.NoError(t, err)

	require.Len(t, rp.CTEs, 1)
	require.True(t, rp.CTEs[0].Recursive)
	require.NotNil(t, rp.Limit)
	require.EqualValues(t, 1, *rp.Limit)
	require.Len(t, rp.OrderBy, 1)
	require.Equal(t, "hop_count", rp.OrderBy[0].Expr.ColumnName)

	require.Len(t, rp.Projection, 1)
	require.Equal(t, "hop_count", rp.Projection[0].Expr.ColumnName)
}

func TestRenderAllShortestPathsAddsMinHopFilter(t *testing.T) {
	rp, err := buildRenderPlan(t, "MATCH p = allShortestPaths((u:User)-[:FOLLOWS*]->(v:User)) RETURN v.name", socialSchema())
	require.NoError(t, err)

	require.Len(t, rp.CTEs, 1)
	require.True(t, rp.CTEs[0].Recursive)

	found := false
	for _, w := range rp.Where {
		if w.Op == "=" && w.Right != nil && w.Right.ColumnName != "" {
			found = true
		}
	}
	require.True(t, found, "expected an outer WHERE hop_count = (SELECT MIN(hop_count) ...) filter")
}
