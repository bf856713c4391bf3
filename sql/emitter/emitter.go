package emitter

import (
	"fmt"
	"strings"

	"github.com/genezhang/clickgraph/sql/cerrors"
	"github.com/genezhang/clickgraph/sql/render"
)

// Emit serializes a RenderPlan into a single SQL string in the target OLAP
// dialect (spec §4.5, §6.2). No schema lookups happen here — every
// alias.field reference the render planner left behind is already a
// physical column reference by the time a plan reaches this package.
func Emit(rp *render.RenderPlan) (string, error) {
	var b strings.Builder

	if len(rp.CTEs) > 0 {
		if err := emitWithClause(&b, rp.CTEs); err != nil {
			return "", err
		}
	}

	if err := emitSelectBody(&b, rp); err != nil {
		return "", err
	}

	return b.String(), nil
}

func emitWithClause(b *strings.Builder, ctes []*render.CTE) error {
	recursive := false
	for _, c := range ctes {
		if c.Recursive {
			recursive = true
			break
		}
	}
	b.WriteString("WITH ")
	if recursive {
		b.WriteString("RECURSIVE ")
	}
	parts := make([]string, 0, len(ctes))
	for _, c := range ctes {
		s, err := emitCTE(c)
		if err != nil {
			return err
		}
		parts = append(parts, s)
	}
	b.WriteString(strings.Join(parts, ",\n"))
	b.WriteString("\n")
	return nil
}

// emitCTE renders one CTE entry. RawSQL already carries its own
// `name AS (...)` wrapping (spec §4.5's "emitted verbatim" contract,
// needed by the recursive-CTE generator whose base/recursive-case/UNION
// ALL/SETTINGS shape does not decompose into a nested RenderPlan); a
// Structured CTE is a nested RenderPlan the emitter recurses into and
// wraps itself.
func emitCTE(c *render.CTE) (string, error) {
	switch content := c.Content.(type) {
	case render.RawSQL:
		return string(content), nil
	case render.Structured:
		var inner strings.Builder
		if err := emitSelectBody(&inner, content.Plan); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s AS (\n  %s\n)", c.Name, inner.String()), nil
	default:
		return "", cerrors.ErrUnsupportedFeature.New(fmt.Sprintf("CTE content type %T", c.Content))
	}
}

func emitSelectBody(b *strings.Builder, rp *render.RenderPlan) error {
	b.WriteString("SELECT ")
	if rp.Distinct {
		b.WriteString("DISTINCT ")
	}
	cols, err := emitProjection(rp.Projection)
	if err != nil {
		return err
	}
	b.WriteString(strings.Join(cols, ", "))

	from, err := emitFromItem(rp.From)
	if err != nil {
		return err
	}
	fmt.Fprintf(b, "\nFROM %s", from)

	for _, j := range rp.Joins {
		s, err := emitJoin(j)
		if err != nil {
			return err
		}
		b.WriteString("\n" + s)
	}

	if len(rp.Where) > 0 {
		conds, err := emitExprList(rp.Where)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "\nWHERE %s", strings.Join(conds, " AND "))
	}

	if len(rp.GroupBy) > 0 {
		cols, err := emitExprList(rp.GroupBy)
		if err != nil {
			return err
		}
		fmt.Fprintf(b, "\nGROUP BY %s", strings.Join(cols, ", "))
	}

	if len(rp.OrderBy) > 0 {
		parts := make([]string, 0, len(rp.OrderBy))
		for _, o := range rp.OrderBy {
			s, err := emitExpr(o.Expr)
			if err != nil {
				return err
			}
			if o.Descending {
				s += " DESC"
			}
			parts = append(parts, s)
		}
		fmt.Fprintf(b, "\nORDER BY %s", strings.Join(parts, ", "))
	}

	if rp.Limit != nil {
		fmt.Fprintf(b, "\nLIMIT %d", *rp.Limit)
	}
	if rp.Skip != nil {
		fmt.Fprintf(b, "\nOFFSET %d", *rp.Skip)
	}

	return nil
}

func emitProjection(cols []render.ProjectionColumn) ([]string, error) {
	if len(cols) == 0 {
		return []string{"*"}, nil
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		s, err := emitExpr(c.Expr)
		if err != nil {
			return nil, err
		}
		if c.Alias != "" {
			s += " AS " + quoteIdent(c.Alias)
		}
		out = append(out, s)
	}
	return out, nil
}

func emitFromItem(f render.FromItem) (string, error) {
	switch f.Kind {
	case render.FromTable:
		return fmt.Sprintf("%s AS %s", f.Table, quoteIdent(f.Alias)), nil
	case render.FromCTE:
		return fmt.Sprintf("%s AS %s", quoteIdent(f.CTEName), quoteIdent(f.Alias)), nil
	default:
		return "", cerrors.ErrUnsupportedFeature.New(fmt.Sprintf("from-item kind %d", f.Kind))
	}
}

func emitJoin(j *render.Join) (string, error) {
	if j.Kind == render.JoinArray {
		expr, err := emitExpr(j.Array.Expr)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ARRAY JOIN %s AS %s", expr, quoteIdent(j.Array.Alias)), nil
	}

	kw := "JOIN"
	if j.Kind == render.JoinLeft {
		kw = "LEFT JOIN"
	}
	from, err := emitFromItem(j.From)
	if err != nil {
		return "", err
	}
	on, err := emitExpr(j.On)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %s ON %s", kw, from, on), nil
}
