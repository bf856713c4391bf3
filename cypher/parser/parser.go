// Package parser implements a recursive-descent parser over cypher/lexer's
// token stream, producing a cypher/ast.Query. The technique (hand-written
// descent with explicit lookahead, no generated grammar) follows
// google-badwolf/bql/grammar's LL(k) parser for BQL, adapted to Cypher's
// clause and pattern grammar.
package parser

import (
	"strconv"
	"strings"

	"github.com/genezhang/clickgraph/cypher/ast"
	"github.com/genezhang/clickgraph/cypher/lexer"
	"github.com/genezhang/clickgraph/sql/cerrors"
)

// defaultVarLengthCeiling is the default ceiling on variable-length hop
// counts. The parser stores the ceiling it is given but never compares hop
// counts against it: a bound above the ceiling is neither rejected nor
// warned about here. Callers needing a different ceiling pass one to
// ParseWithOptions via Options.
const defaultVarLengthCeiling = 100

// Options configures parsing. A VarLengthCeiling of 0 selects
// defaultVarLengthCeiling.
type Options struct {
	VarLengthCeiling uint32
}

// Parse turns a Cypher query string into a Query AST, or returns a
// *ParseError.
func Parse(query string) (*ast.Query, error) {
	return ParseWithOptions(query, Options{VarLengthCeiling: defaultVarLengthCeiling})
}

// ParseWithOptions is Parse with an explicit configuration.
func ParseWithOptions(query string, opts Options) (*ast.Query, error) {
	if opts.VarLengthCeiling == 0 {
		opts.VarLengthCeiling = defaultVarLengthCeiling
	}
	toks := lexer.Tokenize(query)
	if len(toks) > 0 && toks[len(toks)-1].Kind == lexer.ItemError {
		bad := toks[len(toks)-1]
		return nil, newParseError(bad, bad.Text, "")
	}
	p := &parser{toks: toks, ceiling: opts.VarLengthCeiling}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if p.cur().Kind != lexer.ItemEOF {
		return nil, newParseError(p.cur(), "unexpected trailing input", "end of query")
	}
	return q, nil
}

type parser struct {
	toks    []lexer.Token
	pos     int
	ceiling uint32
}

func (p *parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *parser) peek(n int) lexer.Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}
func (p *parser) advance() lexer.Token {
	t := p.cur()
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind lexer.TokenKind, expected string) (lexer.Token, error) {
	if p.cur().Kind != kind {
		return lexer.Token{}, newParseError(p.cur(), "unexpected token "+tokenDesc(p.cur()), expected)
	}
	return p.advance(), nil
}

func tokenDesc(t lexer.Token) string {
	if t.Kind == lexer.ItemEOF {
		return "end of query"
	}
	if t.Text == "" {
		return "token"
	}
	return "'" + t.Text + "'"
}

// parseQuery parses the full ordered sequence of clauses.
func (p *parser) parseQuery() (*ast.Query, error) {
	q := &ast.Query{}
	for p.cur().Kind != lexer.ItemEOF {
		clause, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		q.Clauses = append(q.Clauses, clause)
	}
	return q, nil
}

func (p *parser) parseClause() (ast.Clause, error) {
	switch p.cur().Kind {
	case lexer.ItemOptional:
		p.advance()
		if _, err := p.expect(lexer.ItemMatch, "MATCH"); err != nil {
			return nil, err
		}
		return p.parseMatchBody(true)
	case lexer.ItemMatch:
		p.advance()
		return p.parseMatchBody(false)
	case lexer.ItemWith:
		p.advance()
		return p.parseWith()
	case lexer.ItemReturn:
		p.advance()
		return p.parseReturn()
	case lexer.ItemUnwind:
		p.advance()
		return p.parseUnwind()
	case lexer.ItemCall:
		p.advance()
		return p.parseCall()
	default:
		return nil, newParseError(p.cur(), "unexpected token "+tokenDesc(p.cur()), "MATCH, OPTIONAL MATCH, WITH, RETURN, UNWIND, or CALL")
	}
}

// parseMatchBody parses the pattern list and the WHERE that may trail a
// MATCH. Per spec §4.1, WHERE must be consumed here before the caller's loop
// tries OPTIONAL MATCH again, since real queries place WHERE between a
// MATCH and a following OPTIONAL MATCH.
func (p *parser) parseMatchBody(optional bool) (ast.Clause, error) {
	patterns, err := p.parsePatternList()
	if err != nil {
		return nil, err
	}
	m := &ast.Match{Patterns: patterns, Optional: optional}
	if p.cur().Kind == lexer.ItemWhere {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		m.Where = where
	}
	return m, nil
}

func (p *parser) parsePatternList() ([]*ast.PathPattern, error) {
	var patterns []*ast.PathPattern
	for {
		pp, err := p.parsePathPattern()
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, pp)
		if p.cur().Kind == lexer.ItemComma {
			p.advance()
			continue
		}
		break
	}
	return patterns, nil
}

func (p *parser) parsePathPattern() (*ast.PathPattern, error) {
	pathVar := ""
	if p.cur().Kind == lexer.ItemIdentifier && p.peek(1).Kind == lexer.ItemEquals {
		pathVar = p.advance().Text
		p.advance() // '='
	}

	shortest, allShortest := false, false
	switch {
	case p.cur().Kind == lexer.ItemShortestPath:
		p.advance()
		shortest = true
	case p.cur().Kind == lexer.ItemAllShortestPaths:
		p.advance()
		allShortest = true
	}

	wrapped := shortest || allShortest
	if wrapped {
		if _, err := p.expect(lexer.ItemLParen, "("); err != nil {
			return nil, err
		}
	}

	pp := &ast.PathPattern{PathVar: pathVar, ShortestPath: shortest, AllShortestPath: allShortest}

	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	pp.Nodes = append(pp.Nodes, node)

	for p.cur().Kind == lexer.ItemDash || p.cur().Kind == lexer.ItemArrowLeft {
		rel, err := p.parseRelPattern()
		if err != nil {
			return nil, err
		}
		node, err := p.parseNodePattern()
		if err != nil {
			return nil, err
		}
		pp.Rels = append(pp.Rels, rel)
		pp.Nodes = append(pp.Nodes, node)
	}

	if wrapped {
		if _, err := p.expect(lexer.ItemRParen, ")"); err != nil {
			return nil, err
		}
	}

	return pp, nil
}

func (p *parser) parseNodePattern() (*ast.NodePattern, error) {
	if _, err := p.expect(lexer.ItemLParen, "("); err != nil {
		return nil, err
	}
	np := &ast.NodePattern{}
	if p.cur().Kind == lexer.ItemIdentifier {
		np.Alias = p.advance().Text
	} else {
		np.Anonymous = true
	}
	for p.cur().Kind == lexer.ItemColon {
		p.advance()
		label, err := p.expect(lexer.ItemIdentifier, "label")
		if err != nil {
			return nil, err
		}
		np.Labels = append(np.Labels, label.Text)
	}
	if p.cur().Kind == lexer.ItemLBrace {
		props, err := p.parsePropertyMap()
		if err != nil {
			return nil, err
		}
		np.Properties = props
	}
	if _, err := p.expect(lexer.ItemRParen, ")"); err != nil {
		return nil, err
	}
	return np, nil
}

func (p *parser) parseRelPattern() (*ast.RelPattern, error) {
	leftArrow, rightArrow := false, false

	switch p.cur().Kind {
	case lexer.ItemArrowLeft:
		p.advance()
		leftArrow = true
	case lexer.ItemDash:
		p.advance()
	default:
		return nil, newParseError(p.cur(), "unexpected token "+tokenDesc(p.cur()), "relationship pattern")
	}

	rp := &ast.RelPattern{}
	if p.cur().Kind == lexer.ItemLBracket {
		p.advance()
		if p.cur().Kind == lexer.ItemIdentifier {
			rp.Alias = p.advance().Text
		} else {
			rp.Anonymous = true
		}
		if p.cur().Kind == lexer.ItemColon {
			p.advance()
			t, err := p.expect(lexer.ItemIdentifier, "relationship type")
			if err != nil {
				return nil, err
			}
			rp.Types = append(rp.Types, t.Text)
			for p.cur().Kind == lexer.ItemPipe {
				p.advance()
				t, err := p.expect(lexer.ItemIdentifier, "relationship type")
				if err != nil {
					return nil, err
				}
				rp.Types = append(rp.Types, t.Text)
			}
		}
		if p.cur().Kind == lexer.ItemStar {
			p.advance()
			spec, err := p.parseVarLengthSpec()
			if err != nil {
				return nil, err
			}
			rp.VarLength = spec
		}
		if p.cur().Kind == lexer.ItemLBrace {
			props, err := p.parsePropertyMap()
			if err != nil {
				return nil, err
			}
			rp.Properties = props
		}
		if _, err := p.expect(lexer.ItemRBracket, "]"); err != nil {
			return nil, err
		}
	} else {
		rp.Anonymous = true
	}

	switch p.cur().Kind {
	case lexer.ItemArrowRight:
		p.advance()
		rightArrow = true
	case lexer.ItemDash:
		p.advance()
	default:
		return nil, newParseError(p.cur(), "unexpected token "+tokenDesc(p.cur()), "relationship pattern terminator")
	}

	switch {
	case rightArrow && !leftArrow:
		rp.Direction = ast.DirOutgoing
	case leftArrow && !rightArrow:
		rp.Direction = ast.DirIncoming
	default:
		rp.Direction = ast.DirEither
	}
	return rp, nil
}

func (p *parser) parseVarLengthSpec() (*ast.VarLengthSpec, error) {
	spec := &ast.VarLengthSpec{}

	parseUint := func() (uint32, error) {
		t, err := p.expect(lexer.ItemNumber, "integer")
		if err != nil {
			return 0, err
		}
		n, convErr := strconv.ParseUint(t.Text, 10, 32)
		if convErr != nil {
			return 0, newParseError(t, "invalid hop count "+t.Text, "integer")
		}
		return uint32(n), nil
	}

	switch {
	case p.cur().Kind == lexer.ItemNumber:
		n1, err := parseUint()
		if err != nil {
			return nil, err
		}
		if p.cur().Kind == lexer.ItemDotDot {
			p.advance()
			if p.cur().Kind == lexer.ItemNumber {
				n2, err := parseUint()
				if err != nil {
					return nil, err
				}
				spec.Min, spec.Max = &n1, &n2
			} else {
				spec.Min = &n1
			}
		} else {
			spec.Min, spec.Max = &n1, &n1
		}
	case p.cur().Kind == lexer.ItemDotDot:
		p.advance()
		n2, err := parseUint()
		if err != nil {
			return nil, err
		}
		spec.Max = &n2
	default:
		// bare '*': both bounds left unspecified
	}

	if spec.Min != nil && *spec.Min == 0 {
		return nil, newParseErrorWithCause(p.cur(), "variable-length relationship requires at least 1 hop", cerrors.ErrInvalidZeroHops.New())
	}
	if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
		return nil, newParseErrorWithCause(p.cur(), "variable-length range has min greater than max", cerrors.ErrInvalidRangeMinGreaterThanMax.New(*spec.Min, *spec.Max))
	}
	return spec, nil
}

func (p *parser) parsePropertyMap() (map[string]ast.Expr, error) {
	if _, err := p.expect(lexer.ItemLBrace, "{"); err != nil {
		return nil, err
	}
	props := map[string]ast.Expr{}
	if p.cur().Kind == lexer.ItemRBrace {
		p.advance()
		return props, nil
	}
	for {
		key, err := p.expect(lexer.ItemIdentifier, "property name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.ItemColon, ":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		props[key.Text] = val
		if p.cur().Kind == lexer.ItemComma {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expect(lexer.ItemRBrace, "}"); err != nil {
		return nil, err
	}
	return props, nil
}

func (p *parser) parseWith() (ast.Clause, error) {
	w := &ast.With{}
	if p.cur().Kind == lexer.ItemDistinct {
		p.advance()
		w.Distinct = true
	}
	items, err := p.parseProjectionItems()
	if err != nil {
		return nil, err
	}
	w.Items = items
	if p.cur().Kind == lexer.ItemWhere {
		p.advance()
		where, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		w.Where = where
	}
	order, skip, limit, err := p.parseTail()
	if err != nil {
		return nil, err
	}
	w.Order, w.Skip, w.Limit = order, skip, limit
	return w, nil
}

func (p *parser) parseReturn() (ast.Clause, error) {
	r := &ast.Return{}
	if p.cur().Kind == lexer.ItemDistinct {
		p.advance()
		r.Distinct = true
	}
	items, err := p.parseProjectionItems()
	if err != nil {
		return nil, err
	}
	r.Items = items
	order, skip, limit, err := p.parseTail()
	if err != nil {
		return nil, err
	}
	r.Order, r.Skip, r.Limit = order, skip, limit
	return r, nil
}

func (p *parser) parseTail() ([]*ast.OrderItem, *int64, *int64, error) {
	var order []*ast.OrderItem
	var skip, limit *int64

	if p.cur().Kind == lexer.ItemOrder {
		p.advance()
		if _, err := p.expect(lexer.ItemBy, "BY"); err != nil {
			return nil, nil, nil, err
		}
		for {
			e, err := p.parseExpr()
			if err != nil {
				return nil, nil, nil, err
			}
			oi := &ast.OrderItem{Expr: e}
			if p.cur().Kind == lexer.ItemAsc {
				p.advance()
			} else if p.cur().Kind == lexer.ItemDesc {
				p.advance()
				oi.Descending = true
			}
			order = append(order, oi)
			if p.cur().Kind == lexer.ItemComma {
				p.advance()
				continue
			}
			break
		}
	}
	if p.cur().Kind == lexer.ItemSkip {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, nil, nil, err
		}
		skip = &n
	}
	if p.cur().Kind == lexer.ItemLimit {
		p.advance()
		n, err := p.parseIntLiteral()
		if err != nil {
			return nil, nil, nil, err
		}
		limit = &n
	}
	return order, skip, limit, nil
}

func (p *parser) parseIntLiteral() (int64, error) {
	t, err := p.expect(lexer.ItemNumber, "integer")
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.ParseInt(t.Text, 10, 64)
	if convErr != nil {
		return 0, newParseError(t, "invalid integer "+t.Text, "integer")
	}
	return n, nil
}

func (p *parser) parseProjectionItems() ([]*ast.ProjectionItem, error) {
	var items []*ast.ProjectionItem
	for {
		if p.cur().Kind == lexer.ItemStar {
			p.advance()
			items = append(items, &ast.ProjectionItem{Expr: ast.Expr{Kind: ast.ExprWildcard}})
		} else {
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := &ast.ProjectionItem{Expr: e}
			if p.cur().Kind == lexer.ItemAs {
				p.advance()
				alias, err := p.expect(lexer.ItemIdentifier, "alias")
				if err != nil {
					return nil, err
				}
				item.Alias = alias.Text
			}
			items = append(items, item)
		}
		if p.cur().Kind == lexer.ItemComma {
			p.advance()
			continue
		}
		break
	}
	return items, nil
}

func (p *parser) parseUnwind() (ast.Clause, error) {
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.ItemAs, "AS"); err != nil {
		return nil, err
	}
	alias, err := p.expect(lexer.ItemIdentifier, "alias")
	if err != nil {
		return nil, err
	}
	return &ast.Unwind{Expr: e, Alias: alias.Text}, nil
}

func (p *parser) parseCall() (ast.Clause, error) {
	name, err := p.expect(lexer.ItemIdentifier, "procedure name")
	if err != nil {
		return nil, err
	}
	procName := name.Text
	for p.cur().Kind == lexer.ItemDot {
		p.advance()
		part, err := p.expect(lexer.ItemIdentifier, "identifier")
		if err != nil {
			return nil, err
		}
		procName += "." + part.Text
	}
	c := &ast.Call{ProcName: procName}
	if p.cur().Kind == lexer.ItemLParen {
		p.advance()
		if p.cur().Kind != lexer.ItemRParen {
			for {
				e, err := p.parseExpr()
				if err != nil {
					return nil, err
				}
				c.Args = append(c.Args, e)
				if p.cur().Kind == lexer.ItemComma {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expect(lexer.ItemRParen, ")"); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// --- Expressions, precedence-climbing, weakest to strongest binding ---

func (p *parser) parseExpr() (ast.Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (ast.Expr, error) {
	left, err := p.parseXor()
	if err != nil {
		return ast.Expr{}, err
	}
	for p.cur().Kind == lexer.ItemOr {
		p.advance()
		right, err := p.parseXor()
		if err != nil {
			return ast.Expr{}, err
		}
		left = binOp("OR", left, right)
	}
	return left, nil
}

func (p *parser) parseXor() (ast.Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return ast.Expr{}, err
	}
	for p.cur().Kind == lexer.ItemXor {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return ast.Expr{}, err
		}
		left = binOp("XOR", left, right)
	}
	return left, nil
}

func (p *parser) parseAnd() (ast.Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return ast.Expr{}, err
	}
	for p.cur().Kind == lexer.ItemAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return ast.Expr{}, err
		}
		left = binOp("AND", left, right)
	}
	return left, nil
}

func (p *parser) parseNot() (ast.Expr, error) {
	if p.cur().Kind == lexer.ItemNot {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.Expr{Kind: ast.ExprUnaryOp, UnaryOp: "NOT", Operand: &operand}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[lexer.TokenKind]string{
	lexer.ItemEquals:    "=",
	lexer.ItemNotEquals: "<>",
	lexer.ItemLess:      "<",
	lexer.ItemLessEq:    "<=",
	lexer.ItemGreater:   ">",
	lexer.ItemGreaterEq: ">=",
}

func (p *parser) parseComparison() (ast.Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return ast.Expr{}, err
	}
	for {
		if op, ok := comparisonOps[p.cur().Kind]; ok {
			p.advance()
			right, err := p.parseAdditive()
			if err != nil {
				return ast.Expr{}, err
			}
			left = binOp(op, left, right)
			continue
		}
		if p.cur().Kind == lexer.ItemIn {
			p.advance()
			right, err := p.parseInRHS()
			if err != nil {
				return ast.Expr{}, err
			}
			right.InTarget = &left
			left = right
			continue
		}
		if p.cur().Kind == lexer.ItemIs {
			p.advance()
			negate := false
			if p.cur().Kind == lexer.ItemNot {
				p.advance()
				negate = true
			}
			if _, err := p.expect(lexer.ItemNull, "NULL"); err != nil {
				return ast.Expr{}, err
			}
			op := "IS NULL"
			if negate {
				op = "IS NOT NULL"
			}
			left = ast.Expr{Kind: ast.ExprUnaryOp, UnaryOp: op, Operand: &left}
			continue
		}
		break
	}
	return left, nil
}

func (p *parser) parseInRHS() (ast.Expr, error) {
	e := ast.Expr{Kind: ast.ExprIn}
	if p.cur().Kind == lexer.ItemLBracket {
		p.advance()
		if p.cur().Kind != lexer.ItemRBracket {
			for {
				item, err := p.parseExpr()
				if err != nil {
					return ast.Expr{}, err
				}
				e.InList = append(e.InList, item)
				if p.cur().Kind == lexer.ItemComma {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expect(lexer.ItemRBracket, "]"); err != nil {
			return ast.Expr{}, err
		}
		return e, nil
	}
	if p.cur().Kind == lexer.ItemLParen && isSubqueryStart(p.peek(1).Kind) {
		p.advance()
		sub, err := p.parseQuery()
		if err != nil {
			return ast.Expr{}, err
		}
		if _, err := p.expect(lexer.ItemRParen, ")"); err != nil {
			return ast.Expr{}, err
		}
		e.InSubquery = sub
		return e, nil
	}
	single, err := p.parseExpr()
	if err != nil {
		return ast.Expr{}, err
	}
	e.InList = []ast.Expr{single}
	return e, nil
}

func isSubqueryStart(k lexer.TokenKind) bool {
	return k == lexer.ItemMatch || k == lexer.ItemOptional || k == lexer.ItemWith || k == lexer.ItemReturn
}

func (p *parser) parseAdditive() (ast.Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return ast.Expr{}, err
	}
	for p.cur().Kind == lexer.ItemPlus || p.cur().Kind == lexer.ItemDash {
		op := "+"
		if p.cur().Kind == lexer.ItemDash {
			op = "-"
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return ast.Expr{}, err
		}
		left = binOp(op, left, right)
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (ast.Expr, error) {
	left, err := p.parsePower()
	if err != nil {
		return ast.Expr{}, err
	}
	for p.cur().Kind == lexer.ItemStar || p.cur().Kind == lexer.ItemSlash || p.cur().Kind == lexer.ItemPercent {
		op := map[lexer.TokenKind]string{lexer.ItemStar: "*", lexer.ItemSlash: "/", lexer.ItemPercent: "%"}[p.cur().Kind]
		p.advance()
		right, err := p.parsePower()
		if err != nil {
			return ast.Expr{}, err
		}
		left = binOp(op, left, right)
	}
	return left, nil
}

func (p *parser) parsePower() (ast.Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return ast.Expr{}, err
	}
	if p.cur().Kind == lexer.ItemCaret {
		p.advance()
		right, err := p.parsePower()
		if err != nil {
			return ast.Expr{}, err
		}
		return binOp("^", left, right), nil
	}
	return left, nil
}

func (p *parser) parseUnary() (ast.Expr, error) {
	if p.cur().Kind == lexer.ItemDash {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.Expr{Kind: ast.ExprUnaryOp, UnaryOp: "-", Operand: &operand}, nil
	}
	if p.cur().Kind == lexer.ItemDistinct {
		p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.Expr{Kind: ast.ExprUnaryOp, UnaryOp: "DISTINCT", Operand: &operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (ast.Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return ast.Expr{}, err
	}
	for {
		switch p.cur().Kind {
		case lexer.ItemDot:
			p.advance()
			field, err := p.expect(lexer.ItemIdentifier, "property name")
			if err != nil {
				return ast.Expr{}, err
			}
			if e.Kind == ast.ExprPropertyAccess && e.Field == "" {
				e = ast.Expr{Kind: ast.ExprPropertyAccess, Alias: e.Alias, Field: field.Text}
			} else {
				// Property access on a non-bare-variable target; keep the
				// target for the render stage to resolve structurally.
				target := e
				e = ast.Expr{Kind: ast.ExprPropertyAccess, Field: field.Text, Target: &target}
			}
		case lexer.ItemLBracket:
			p.advance()
			target := e
			if p.cur().Kind == lexer.ItemDotDot {
				p.advance()
				var to *ast.Expr
				if p.cur().Kind != lexer.ItemRBracket {
					toExpr, err := p.parseExpr()
					if err != nil {
						return ast.Expr{}, err
					}
					to = &toExpr
				}
				e = ast.Expr{Kind: ast.ExprSlice, Target: &target, To: to}
			} else {
				fromExpr, err := p.parseExpr()
				if err != nil {
					return ast.Expr{}, err
				}
				if p.cur().Kind == lexer.ItemDotDot {
					p.advance()
					var to *ast.Expr
					if p.cur().Kind != lexer.ItemRBracket {
						toExpr, err := p.parseExpr()
						if err != nil {
							return ast.Expr{}, err
						}
						to = &toExpr
					}
					e = ast.Expr{Kind: ast.ExprSlice, Target: &target, From: &fromExpr, To: to}
				} else {
					e = ast.Expr{Kind: ast.ExprSubscript, Target: &target, Index: &fromExpr}
				}
			}
			if _, err := p.expect(lexer.ItemRBracket, "]"); err != nil {
				return ast.Expr{}, err
			}
		default:
			return e, nil
		}
	}
}

var pathFuncNames = map[string]bool{"length": true, "nodes": true, "relationships": true}

func (p *parser) parsePrimary() (ast.Expr, error) {
	tok := p.cur()
	switch tok.Kind {
	case lexer.ItemNumber:
		p.advance()
		return numberLiteral(tok.Text), nil
	case lexer.ItemString:
		p.advance()
		return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: tok.Text}, nil
	case lexer.ItemTrue:
		p.advance()
		return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: true}, nil
	case lexer.ItemFalse:
		p.advance()
		return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: false}, nil
	case lexer.ItemNull:
		p.advance()
		return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: nil}, nil
	case lexer.ItemParameter:
		p.advance()
		return ast.Expr{Kind: ast.ExprParameter, ParamName: tok.Text}, nil
	case lexer.ItemStar:
		p.advance()
		return ast.Expr{Kind: ast.ExprWildcard}, nil
	case lexer.ItemLParen:
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return ast.Expr{}, err
		}
		if _, err := p.expect(lexer.ItemRParen, ")"); err != nil {
			return ast.Expr{}, err
		}
		return e, nil
	case lexer.ItemLBracket:
		p.advance()
		e := ast.Expr{Kind: ast.ExprListLiteral}
		if p.cur().Kind != lexer.ItemRBracket {
			for {
				item, err := p.parseExpr()
				if err != nil {
					return ast.Expr{}, err
				}
				e.List = append(e.List, item)
				if p.cur().Kind == lexer.ItemComma {
					p.advance()
					continue
				}
				break
			}
		}
		if _, err := p.expect(lexer.ItemRBracket, "]"); err != nil {
			return ast.Expr{}, err
		}
		return e, nil
	case lexer.ItemLBrace:
		props, err := p.parsePropertyMap()
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.Expr{Kind: ast.ExprMapLiteral, Map: props}, nil
	case lexer.ItemCase:
		return p.parseCase()
	case lexer.ItemExists:
		return p.parseExists()
	case lexer.ItemIdentifier:
		return p.parseIdentifierExpr()
	default:
		return ast.Expr{}, newParseError(tok, "unexpected token "+tokenDesc(tok), "expression")
	}
}

func numberLiteral(text string) ast.Expr {
	if strings.ContainsAny(text, ".eE") {
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: f}
		}
	}
	if n, err := strconv.ParseInt(text, 10, 64); err == nil {
		return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: n}
	}
	f, _ := strconv.ParseFloat(text, 64)
	return ast.Expr{Kind: ast.ExprLiteral, LiteralValue: f}
}

func (p *parser) parseCase() (ast.Expr, error) {
	p.advance() // CASE
	e := ast.Expr{Kind: ast.ExprCase}
	if p.cur().Kind != lexer.ItemWhen {
		operand, err := p.parseExpr()
		if err != nil {
			return ast.Expr{}, err
		}
		e.CaseOperand = &operand
	}
	for p.cur().Kind == lexer.ItemWhen {
		p.advance()
		when, err := p.parseExpr()
		if err != nil {
			return ast.Expr{}, err
		}
		if _, err := p.expect(lexer.ItemThen, "THEN"); err != nil {
			return ast.Expr{}, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return ast.Expr{}, err
		}
		e.WhenThen = append(e.WhenThen, ast.CaseBranch{When: when, Then: then})
	}
	if p.cur().Kind == lexer.ItemElse {
		p.advance()
		elseExpr, err := p.parseExpr()
		if err != nil {
			return ast.Expr{}, err
		}
		e.Else = &elseExpr
	}
	if _, err := p.expect(lexer.ItemEnd, "END"); err != nil {
		return ast.Expr{}, err
	}
	return e, nil
}

func (p *parser) parseExists() (ast.Expr, error) {
	p.advance() // EXISTS
	if _, err := p.expect(lexer.ItemLParen, "("); err != nil {
		return ast.Expr{}, err
	}
	pattern, err := p.parsePathPattern()
	if err != nil {
		return ast.Expr{}, err
	}
	if _, err := p.expect(lexer.ItemRParen, ")"); err != nil {
		return ast.Expr{}, err
	}
	return ast.Expr{Kind: ast.ExprExists, ExistsPattern: pattern}, nil
}

func (p *parser) parseIdentifierExpr() (ast.Expr, error) {
	name := p.advance().Text

	if p.cur().Kind == lexer.ItemLParen {
		p.advance()
		lower := strings.ToLower(name)
		if pathFuncNames[lower] {
			args, err := p.parseArgList()
			if err != nil {
				return ast.Expr{}, err
			}
			return ast.Expr{Kind: ast.ExprPathFunc, FuncName: lower, Args: args}, nil
		}
		if aggFunc, ok := aggFuncByName(name); ok {
			// DISTINCT, if present, is a unary wrap around the single
			// argument handled by parseArgList itself; recognized later by
			// projection tagging, not stored as a flag on the aggregate node.
			args, err := p.parseArgList()
			if err != nil {
				return ast.Expr{}, err
			}
			return ast.Expr{Kind: ast.ExprAggregateCall, AggFunc: aggFunc, FuncName: name, Args: args}, nil
		}
		args, err := p.parseArgList()
		if err != nil {
			return ast.Expr{}, err
		}
		return ast.Expr{Kind: ast.ExprFuncCall, FuncName: name, Args: args}, nil
	}

	// Bare variable reference; Field is populated by a subsequent '.' in
	// parsePostfix if one follows.
	return ast.Expr{Kind: ast.ExprPropertyAccess, Alias: name}, nil
}

func (p *parser) parseArgList() ([]ast.Expr, error) {
	var args []ast.Expr
	if p.cur().Kind == lexer.ItemRParen {
		p.advance()
		return args, nil
	}
	if p.cur().Kind == lexer.ItemDistinct {
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, ast.Expr{Kind: ast.ExprUnaryOp, UnaryOp: "DISTINCT", Operand: &inner})
	} else if p.cur().Kind == lexer.ItemStar {
		p.advance()
		args = append(args, ast.Expr{Kind: ast.ExprWildcard})
	} else {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	for p.cur().Kind == lexer.ItemComma {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}
	if _, err := p.expect(lexer.ItemRParen, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

func aggFuncByName(name string) (ast.AggFunc, bool) {
	switch strings.ToUpper(name) {
	case "COUNT":
		return ast.AggCount, true
	case "SUM":
		return ast.AggSum, true
	case "AVG":
		return ast.AggAvg, true
	case "MIN":
		return ast.AggMin, true
	case "MAX":
		return ast.AggMax, true
	case "COLLECT":
		return ast.AggCollect, true
	}
	return ast.AggNone, false
}

func binOp(op string, l, r ast.Expr) ast.Expr {
	return ast.Expr{Kind: ast.ExprBinaryOp, Op: op, Left: &l, Right: &r}
}
