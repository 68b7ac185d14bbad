package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
)

// parser is a hand-rolled recursive-descent / precedence-climbing parser
// over the token stream produced by aqlLexer. See lexer.go for why the
// grammar isn't expressed via participle's struct-tag DSL.
type parser struct {
	toks []lexer.Token
	pos  int
}

// Parse parses AQL text into a Program (spec §4.6).
func Parse(input string) (*Program, error) {
	toks, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	prog, err := p.parseProgram()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, p.errf("unexpected trailing input %q", p.cur().Value)
	}
	return prog, nil
}

func (p *parser) atEnd() bool         { return p.pos >= len(p.toks) }
func (p *parser) cur() lexer.Token    { return p.toks[p.pos] }
func (p *parser) advance() lexer.Token {
	t := p.cur()
	p.pos++
	return t
}

func (p *parser) isKeyword(kw string) bool {
	return !p.atEnd() && p.cur().Type == identType && strings.EqualFold(p.cur().Value, kw)
}

func (p *parser) isOp(op string) bool {
	return !p.atEnd() && p.cur().Value == op
}

func (p *parser) isIdent() bool { return !p.atEnd() && p.cur().Type == identType }

func (p *parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return p.errf("expected %q", kw)
	}
	p.advance()
	return nil
}

func (p *parser) expectOp(op string) error {
	if !p.isOp(op) {
		return p.errf("expected %q", op)
	}
	p.advance()
	return nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	pos := "EOF"
	if !p.atEnd() {
		pos = fmt.Sprintf("line %d col %d", p.cur().Pos.Line, p.cur().Pos.Column)
	}
	msg := "aql parse error at " + pos + ": " + format
	return kverrs.InvalidArgument.New(msg, args...)
}

func (p *parser) parseIntLiteral() (int, error) {
	if p.atEnd() || p.cur().Type != intType {
		return 0, p.errf("expected integer")
	}
	n, err := strconv.Atoi(p.advance().Value)
	if err != nil {
		return 0, kverrs.InvalidArgument.Wrap(err)
	}
	return n, nil
}

func (p *parser) parseProgram() (*Program, error) {
	var ctes []*CTEDef
	for p.isKeyword("WITH") {
		p.advance()
		if !p.isIdent() {
			return nil, p.errf("expected CTE name")
		}
		name := p.advance().Value
		if err := p.expectKeyword("AS"); err != nil {
			return nil, err
		}
		if err := p.expectOp("("); err != nil {
			return nil, err
		}
		body, err := p.parseQueryBody()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		ctes = append(ctes, &CTEDef{Name: name, Body: body})
		if p.isOp(",") {
			p.advance()
		}
	}
	body, err := p.parseQueryBody()
	if err != nil {
		return nil, err
	}
	return &Program{CTEs: ctes, Query: body}, nil
}

func (p *parser) parseQueryBody() (*QueryBody, error) {
	qb := &QueryBody{}
	if !p.isKeyword("FOR") {
		return nil, p.errf("expected FOR")
	}
	for p.isKeyword("FOR") {
		fc, err := p.parseForClause()
		if err != nil {
			return nil, err
		}
		qb.Fors = append(qb.Fors, fc)
	}

clauses:
	for {
		switch {
		case p.isKeyword("FILTER"):
			p.advance()
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			qb.Clauses = append(qb.Clauses, &FilterClause{Expr: e})
		case p.isKeyword("LET"):
			p.advance()
			if !p.isIdent() {
				return nil, p.errf("expected LET variable name")
			}
			v := p.advance().Value
			if err := p.expectOp("="); err != nil {
				return nil, err
			}
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			qb.Clauses = append(qb.Clauses, &LetClause{Var: v, Expr: e})
		default:
			break clauses
		}
	}

	if p.isKeyword("COLLECT") {
		cc, err := p.parseCollect()
		if err != nil {
			return nil, err
		}
		qb.Collect = cc
	}

	if p.isKeyword("SORT") {
		p.advance()
		for {
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			desc := false
			switch {
			case p.isKeyword("ASC"):
				p.advance()
			case p.isKeyword("DESC"):
				p.advance()
				desc = true
			}
			qb.Sort = append(qb.Sort, &SortTerm{Expr: e, Desc: desc})
			if p.isOp(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if p.isKeyword("LIMIT") {
		p.advance()
		n1, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		offset, count := 0, n1
		if p.isOp(",") {
			p.advance()
			n2, err := p.parseIntLiteral()
			if err != nil {
				return nil, err
			}
			offset, count = n1, n2
		}
		qb.Limit = &LimitClause{Offset: offset, Count: count}
	}

	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	ret, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	qb.Return = ret
	return qb, nil
}

func (p *parser) parseForClause() (*ForClause, error) {
	if err := p.expectKeyword("FOR"); err != nil {
		return nil, err
	}
	if !p.isIdent() {
		return nil, p.errf("expected FOR variable")
	}
	fc := &ForClause{Var: p.advance().Value}

	if p.isOp(",") {
		p.advance()
		if !p.isIdent() {
			return nil, p.errf("expected edge variable")
		}
		fc.EdgeVar = p.advance().Value
		if p.isOp(",") {
			p.advance()
			if !p.isIdent() {
				return nil, p.errf("expected path variable")
			}
			fc.PathVar = p.advance().Value
		}
	}

	if err := p.expectKeyword("IN"); err != nil {
		return nil, err
	}

	if p.isKeyword("VECTOR_SEARCH") {
		spec, err := p.parseVectorSearchArgs()
		if err != nil {
			return nil, err
		}
		fc.VectorSearch = spec
		return fc, nil
	}

	if !p.atEnd() && p.cur().Type == intType {
		minDepth, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(".."); err != nil {
			return nil, err
		}
		maxDepth, err := p.parseIntLiteral()
		if err != nil {
			return nil, err
		}
		var direction string
		switch {
		case p.isKeyword("OUTBOUND"):
			direction = "OUTBOUND"
		case p.isKeyword("INBOUND"):
			direction = "INBOUND"
		case p.isKeyword("ANY"):
			direction = "ANY"
		default:
			return nil, p.errf("expected OUTBOUND, INBOUND, or ANY")
		}
		p.advance()
		start, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		graph := ""
		if p.isKeyword("GRAPH") {
			p.advance()
			if p.atEnd() || p.cur().Type != stringType {
				return nil, p.errf("expected graph name string")
			}
			graph = unquote(p.advance().Value)
		}
		fc.Traversal = &TraversalSpec{MinDepth: minDepth, MaxDepth: maxDepth, Direction: direction, Start: start, Graph: graph}
		return fc, nil
	}

	if !p.isIdent() {
		return nil, p.errf("expected collection or CTE name")
	}
	fc.Source = p.advance().Value
	return fc, nil
}

// parseVectorSearchArgs parses VECTOR_SEARCH(collection, "field", query,
// k) — a function-call-shaped source in a FOR's IN clause, not a general
// expression, so it gets its own small recursive-descent rule rather
// than folding into parsePrimary's FuncCallExpr path.
func (p *parser) parseVectorSearchArgs() (*VectorSearchSpec, error) {
	if err := p.expectKeyword("VECTOR_SEARCH"); err != nil {
		return nil, err
	}
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	if !p.isIdent() {
		return nil, p.errf("expected collection name in VECTOR_SEARCH")
	}
	collection := p.advance().Value
	if err := p.expectOp(","); err != nil {
		return nil, err
	}
	if p.atEnd() || p.cur().Type != stringType {
		return nil, p.errf("expected vector field name string in VECTOR_SEARCH")
	}
	field := unquote(p.advance().Value)
	if err := p.expectOp(","); err != nil {
		return nil, err
	}
	queryExpr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(","); err != nil {
		return nil, err
	}
	kExpr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return &VectorSearchSpec{Collection: collection, Field: field, Query: queryExpr, K: kExpr}, nil
}

func (p *parser) parseCollect() (*CollectClause, error) {
	if err := p.expectKeyword("COLLECT"); err != nil {
		return nil, err
	}
	cc := &CollectClause{}

	if p.isIdent() && !p.isKeyword("AGGREGATE") && !p.isKeyword("INTO") {
		for {
			if !p.isIdent() {
				break
			}
			v := p.advance().Value
			if err := p.expectOp("="); err != nil {
				return nil, err
			}
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			cc.Groups = append(cc.Groups, GroupTerm{Var: v, Expr: e})
			if p.isOp(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if p.isKeyword("AGGREGATE") {
		p.advance()
		for {
			if !p.isIdent() {
				return nil, p.errf("expected aggregate variable")
			}
			v := p.advance().Value
			if err := p.expectOp("="); err != nil {
				return nil, err
			}
			if !p.isIdent() {
				return nil, p.errf("expected aggregate function")
			}
			fn := strings.ToUpper(p.advance().Value)
			if err := p.expectOp("("); err != nil {
				return nil, err
			}
			var arg Expr
			if !p.isOp(")") {
				var err error
				arg, err = p.parseOr()
				if err != nil {
					return nil, err
				}
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			cc.Aggregates = append(cc.Aggregates, AggTerm{Var: v, Func: fn, Expr: arg})
			if p.isOp(",") {
				p.advance()
				continue
			}
			break
		}
	}

	if p.isKeyword("INTO") {
		p.advance()
		if !p.isIdent() {
			return nil, p.errf("expected INTO variable")
		}
		cc.Into = p.advance().Value
	}

	if p.isKeyword("HAVING") {
		p.advance()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		cc.Having = e
	}
	return cc, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("OR") {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "OR", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("AND") {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "AND", L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.isKeyword("NOT") {
		p.advance()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "NOT", X: x}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	op := ""
	switch {
	case p.isOp("=="):
		op = "=="
	case p.isOp("!="):
		op = "!="
	case p.isOp("<="):
		op = "<="
	case p.isOp(">="):
		op = ">="
	case p.isOp("<"):
		op = "<"
	case p.isOp(">"):
		op = ">"
	case p.isKeyword("IN"):
		op = "IN"
	}
	if op == "" {
		return left, nil
	}
	p.advance()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	return &BinaryExpr{Op: op, L: left, R: right}, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		op := p.advance().Value
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("%") {
		op := p.advance().Value
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.isOp("-") {
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", X: x}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (Expr, error) {
	base, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		if p.isOp(".") {
			p.advance()
			if !p.isIdent() {
				return nil, p.errf("expected field name after '.'")
			}
			base = &MemberExpr{Base: base, Field: p.advance().Value}
			continue
		}
		if p.isOp("[") {
			p.advance()
			idx, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			base = &IndexExpr{Base: base, Index: idx}
			continue
		}
		break
	}
	return base, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.atEnd() {
		return nil, p.errf("unexpected end of query")
	}
	tok := p.cur()

	switch {
	case p.isOp("("):
		save := p.pos
		p.advance()
		if p.isKeyword("FOR") {
			if body, err := p.parseQueryBody(); err == nil {
				if cerr := p.expectOp(")"); cerr == nil {
					return &SubqueryExpr{Body: body}, nil
				}
			}
			p.pos = save
			p.advance()
		}
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return e, nil

	case tok.Type == stringType:
		p.advance()
		return &LiteralExpr{Value: StringVal(unquote(tok.Value))}, nil

	case tok.Type == floatType:
		p.advance()
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, kverrs.InvalidArgument.Wrap(err)
		}
		return &LiteralExpr{Value: DoubleVal(f)}, nil

	case tok.Type == intType:
		p.advance()
		n, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, kverrs.InvalidArgument.Wrap(err)
		}
		return &LiteralExpr{Value: IntVal(n)}, nil

	case p.isOp("["):
		p.advance()
		var elems []Expr
		if !p.isOp("]") {
			for {
				e, err := p.parseOr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, e)
				if p.isOp(",") {
					p.advance()
					continue
				}
				break
			}
		}
		if err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return &ArrayExpr{Elems: elems}, nil

	case p.isOp("{"):
		p.advance()
		fields := map[string]Expr{}
		var order []string
		if !p.isOp("}") {
			for {
				var key string
				shorthand := false
				switch {
				case p.isIdent():
					key = p.advance().Value
					shorthand = !p.isOp(":")
				case !p.atEnd() && p.cur().Type == stringType:
					key = unquote(p.advance().Value)
				default:
					return nil, p.errf("expected object key")
				}
				var e Expr
				if shorthand {
					e = &IdentExpr{Name: key}
				} else {
					if err := p.expectOp(":"); err != nil {
						return nil, err
					}
					var err error
					e, err = p.parseOr()
					if err != nil {
						return nil, err
					}
				}
				fields[key] = e
				order = append(order, key)
				if p.isOp(",") {
					p.advance()
					continue
				}
				break
			}
		}
		if err := p.expectOp("}"); err != nil {
			return nil, err
		}
		return &ObjectExpr{Fields: fields, Order: order}, nil

	case p.isKeyword("TRUE"):
		p.advance()
		return &LiteralExpr{Value: BoolVal(true)}, nil

	case p.isKeyword("FALSE"):
		p.advance()
		return &LiteralExpr{Value: BoolVal(false)}, nil

	case p.isKeyword("NULL"):
		p.advance()
		return &LiteralExpr{Value: Null()}, nil

	case tok.Type == identType:
		name := p.advance().Value
		if p.isOp("(") {
			p.advance()
			var args []Expr
			if !p.isOp(")") {
				for {
					a, err := p.parseOr()
					if err != nil {
						return nil, err
					}
					args = append(args, a)
					if p.isOp(",") {
						p.advance()
						continue
					}
					break
				}
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return &FuncCallExpr{Name: strings.ToUpper(name), Args: args}, nil
		}
		return &IdentExpr{Name: name}, nil
	}

	return nil, p.errf("unexpected token %q", tok.Value)
}
