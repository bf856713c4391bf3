package visit

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/genezhang/clickgraph/cypher/ast"
)

type aliasRewriter struct {
	BaseRewriter
	from, to string
}

func (a *aliasRewriter) TransformPropertyAccess(e ast.Expr) ast.Expr {
	if e.Alias == a.from {
		e.Alias = a.to
	}
	return e
}

func prop(alias, field string) ast.Expr {
	return ast.Expr{Kind: ast.ExprPropertyAccess, Alias: alias, Field: field}
}

func TestRewriteAliasOnlyTouchesMatchingNodes(t *testing.T) {
	expr := ast.Expr{
		Kind: ast.ExprBinaryOp,
		Op:   "AND",
		Left: exprPtr(ast.Expr{
			Kind: ast.ExprBinaryOp, Op: "=",
			Left: exprPtr(prop("u", "name")), Right: exprPtr(ast.Expr{Kind: ast.ExprLiteral, LiteralValue: "Alice"}),
		}),
		Right: exprPtr(ast.Expr{
			Kind: ast.ExprBinaryOp, Op: "=",
			Left: exprPtr(prop("v", "name")), Right: exprPtr(ast.Expr{Kind: ast.ExprLiteral, LiteralValue: "Bob"}),
		}),
	}

	out := Rewrite(expr, &aliasRewriter{from: "u", to: "cte_u"})
	require.Equal(t, "cte_u", out.Left.Left.Alias)
	require.Equal(t, "v", out.Right.Left.Alias)
}

func TestWalkCollectsDistinctPropertyAccesses(t *testing.T) {
	expr := ast.Expr{
		Kind: ast.ExprBinaryOp, Op: "AND",
		Left:  exprPtr(prop("u", "name")),
		Right: exprPtr(prop("u", "name")),
	}
	found := CollectPropertyAccesses(expr, map[string]bool{"u": true})
	require.Len(t, found, 1)
	require.Equal(t, "name", found[0].Field)
}

func exprPtr(e ast.Expr) *ast.Expr { return &e }
