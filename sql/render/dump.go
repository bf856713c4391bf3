package render

import (
	"fmt"
	"strings"
)

// Dump renders a RenderPlan as an indented text tree, independent of SQL
// serialization — the plan-inspection counterpart to sql/emitter.Emit used
// by engine.Engine.Explain (spec §6.4's "inspect a plan independent of
// execution"). No production sql.Node.String()/TreePrinter survived
// retrieval from the teacher to ground an exact format on, so this follows
// the plainest idiom available in the pack: one line per clause, nested
// CTEs indented under their own heading.
func Dump(rp *RenderPlan) string {
	var b strings.Builder
	dumpPlan(&b, rp, 0)
	return b.String()
}

func dumpPlan(b *strings.Builder, rp *RenderPlan, depth int) {
	indent := strings.Repeat("  ", depth)

	for _, c := range rp.CTEs {
		kind := "cte"
		if c.Recursive {
			kind = "recursive cte"
		}
		fmt.Fprintf(b, "%s%s %s:\n", indent, kind, c.Name)
		switch content := c.Content.(type) {
		case RawSQL:
			fmt.Fprintf(b, "%s  <raw sql, %d bytes>\n", indent, len(content))
		case Structured:
			dumpPlan(b, content.Plan, depth+2)
		}
	}

	fmt.Fprintf(b, "%sfrom: %s\n", indent, dumpFromItem(rp.From))
	for _, j := range rp.Joins {
		fmt.Fprintf(b, "%sjoin: %s\n", indent, dumpJoin(j))
	}
	if len(rp.Where) > 0 {
		fmt.Fprintf(b, "%swhere: %d condition(s)\n", indent, len(rp.Where))
	}
	if len(rp.GroupBy) > 0 {
		fmt.Fprintf(b, "%sgroup by: %d term(s)\n", indent, len(rp.GroupBy))
	}
	if len(rp.OrderBy) > 0 {
		fmt.Fprintf(b, "%sorder by: %d term(s)\n", indent, len(rp.OrderBy))
	}
	if rp.Distinct {
		fmt.Fprintf(b, "%sdistinct\n", indent)
	}
	fmt.Fprintf(b, "%sproject: %d column(s)\n", indent, len(rp.Projection))
	if rp.Skip != nil {
		fmt.Fprintf(b, "%sskip: %d\n", indent, *rp.Skip)
	}
	if rp.Limit != nil {
		fmt.Fprintf(b, "%slimit: %d\n", indent, *rp.Limit)
	}
}

func dumpFromItem(f FromItem) string {
	switch f.Kind {
	case FromTable:
		return fmt.Sprintf("%s AS %s", f.Table, f.Alias)
	case FromCTE:
		return fmt.Sprintf("cte:%s AS %s", f.CTEName, f.Alias)
	default:
		return "<unknown>"
	}
}

func dumpJoin(j *Join) string {
	switch j.Kind {
	case JoinArray:
		return fmt.Sprintf("ARRAY JOIN ... AS %s", j.Array.Alias)
	case JoinLeft:
		return fmt.Sprintf("LEFT %s", dumpFromItem(j.From))
	default:
		return dumpFromItem(j.From)
	}
}
