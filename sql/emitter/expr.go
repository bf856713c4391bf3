// Package emitter serializes a render.RenderPlan into the target OLAP
// dialect's SQL text (spec §4.5, §6.2). It performs no schema lookups — by
// the time a RenderPlan reaches here, every alias.field reference has
// already been resolved to a physical column by sql/render.
package emitter

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/sql/cerrors"
)

// emitExpr renders one expression tree to SQL text, grounded on the same
// ExprKind switch sql/visit's Rewrite dispatches on.
func emitExpr(e ast.Expr) (string, error) {
	switch e.Kind {
	case ast.ExprLiteral:
		return emitLiteral(e.LiteralValue)

	case ast.ExprColumnRef:
		if e.Alias == "" {
			return e.ColumnName, nil
		}
		return quoteIdent(e.Alias) + "." + quoteIdent(e.ColumnName), nil

	case ast.ExprPropertyAccess:
		return "", cerrors.ErrUnsupportedFeature.New(fmt.Sprintf("unresolved property access %s.%s reached the emitter", e.Alias, e.Field))

	case ast.ExprParameter:
		return "{" + e.ParamName + "}", nil

	case ast.ExprWildcard:
		return "*", nil

	case ast.ExprFuncCall:
		args, err := emitExprList(e.Args)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%s)", e.FuncName, strings.Join(args, ", ")), nil

	case ast.ExprAggregateCall:
		args, err := emitExprList(e.Args)
		if err != nil {
			return "", err
		}
		name, err := aggFuncName(e.AggFunc)
		if err != nil {
			return "", err
		}
		if len(args) == 0 {
			args = []string{"*"}
		}
		return fmt.Sprintf("%s(%s)", name, strings.Join(args, ", ")), nil

	case ast.ExprBinaryOp:
		left, err := emitExpr(*e.Left)
		if err != nil {
			return "", err
		}
		right, err := emitExpr(*e.Right)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s %s %s)", left, e.Op, right), nil

	case ast.ExprUnaryOp:
		operand, err := emitExpr(*e.Operand)
		if err != nil {
			return "", err
		}
		if e.UnaryOp == "DISTINCT" {
			return "DISTINCT " + operand, nil
		}
		return fmt.Sprintf("%s %s", e.UnaryOp, operand), nil

	case ast.ExprCase:
		return emitCase(e)

	case ast.ExprListLiteral:
		items, err := emitExprList(e.List)
		if err != nil {
			return "", err
		}
		return "[" + strings.Join(items, ", ") + "]", nil

	case ast.ExprMapLiteral:
		return "", cerrors.ErrUnsupportedFeature.New("map literal emission")

	case ast.ExprSubscript:
		target, err := emitExpr(*e.Target)
		if err != nil {
			return "", err
		}
		idx, err := emitExpr(*e.Index)
		if err != nil {
			return "", err
		}
		// Cypher subscripts are 0-based; the target dialect's array
		// indexing is 1-based, so every subscript shifts by one at
		// emission time rather than earlier in the pipeline, keeping the
		// AST's indices Cypher-native everywhere except here.
		return fmt.Sprintf("%s[%s + 1]", target, idx), nil

	case ast.ExprSlice:
		return emitSlice(e)

	case ast.ExprIn:
		return emitIn(e)

	case ast.ExprExists:
		return "", cerrors.ErrUnsupportedFeature.New("EXISTS subquery emission")

	case ast.ExprPathFunc:
		return "", cerrors.ErrUnsupportedFeature.New(fmt.Sprintf("path function %s(...) reached the emitter unrewritten", e.FuncName))

	default:
		return "", cerrors.ErrUnsupportedFeature.New(fmt.Sprintf("expression kind %d", e.Kind))
	}
}

func emitExprList(exprs []ast.Expr) ([]string, error) {
	out := make([]string, 0, len(exprs))
	for _, e := range exprs {
		s, err := emitExpr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func emitCase(e ast.Expr) (string, error) {
	var b strings.Builder
	b.WriteString("CASE")
	if e.CaseOperand != nil {
		s, err := emitExpr(*e.CaseOperand)
		if err != nil {
			return "", err
		}
		b.WriteString(" " + s)
	}
	for _, wt := range e.WhenThen {
		when, err := emitExpr(wt.When)
		if err != nil {
			return "", err
		}
		then, err := emitExpr(wt.Then)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, " WHEN %s THEN %s", when, then)
	}
	if e.Else != nil {
		s, err := emitExpr(*e.Else)
		if err != nil {
			return "", err
		}
		b.WriteString(" ELSE " + s)
	}
	b.WriteString(" END")
	return b.String(), nil
}

func emitSlice(e ast.Expr) (string, error) {
	target, err := emitExpr(*e.Target)
	if err != nil {
		return "", err
	}
	from := "1"
	if e.From != nil {
		s, err := emitExpr(*e.From)
		if err != nil {
			return "", err
		}
		from = fmt.Sprintf("(%s + 1)", s)
	}
	if e.To == nil {
		return fmt.Sprintf("arraySlice(%s, %s)", target, from), nil
	}
	to, err := emitExpr(*e.To)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("arraySlice(%s, %s, (%s) - (%s))", target, from, to, from), nil
}

func emitIn(e ast.Expr) (string, error) {
	target, err := emitExpr(*e.InTarget)
	if err != nil {
		return "", err
	}
	if e.InSubquery != nil {
		return "", cerrors.ErrUnsupportedFeature.New("IN subquery emission")
	}
	items, err := emitExprList(e.InList)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s IN (%s)", target, strings.Join(items, ", ")), nil
}

func aggFuncName(f ast.AggFunc) (string, error) {
	switch f {
	case ast.AggCount:
		return "COUNT", nil
	case ast.AggSum:
		return "SUM", nil
	case ast.AggAvg:
		return "AVG", nil
	case ast.AggMin:
		return "MIN", nil
	case ast.AggMax:
		return "MAX", nil
	case ast.AggCollect:
		// ClickHouse's array-aggregate equivalent of Cypher's collect().
		return "groupArray", nil
	default:
		return "", cerrors.ErrUnsupportedFeature.New(fmt.Sprintf("aggregate function %d", f))
	}
}

// emitLiteral formats a literal value as SQL text. Strings, bools and lists
// are handled explicitly; any other value (numbers) is formatted with
// cast.ToStringE.
func emitLiteral(v interface{}) (string, error) {
	if v == nil {
		return "NULL", nil
	}
	switch t := v.(type) {
	case string:
		return quoteStringLiteral(t), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case []interface{}:
		items := make([]string, 0, len(t))
		for _, item := range t {
			s, err := emitLiteral(item)
			if err != nil {
				return "", err
			}
			items = append(items, s)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		s, err := cast.ToStringE(v)
		if err != nil {
			return "", cerrors.ErrUnsupportedFeature.New(fmt.Sprintf("literal value of type %T", v))
		}
		return s, nil
	}
}

func quoteStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
