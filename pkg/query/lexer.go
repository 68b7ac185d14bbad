package query

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
)

// aqlLexer tokenizes AQL text. Parsing itself is hand-rolled recursive
// descent (parser.go) rather than participle's declarative struct-tag
// grammar, since AQL's operator precedence and backtracking needs
// (subquery-in-parens vs. grouped expression, traversal vs. plain FOR)
// are more directly expressed as a small precedence-climbing parser; the
// lexer is exactly the piece participle is built to own.
var aqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\r\n]+`},
	{Name: "Comment", Pattern: `//[^\n]*`},
	{Name: "String", Pattern: `"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'`},
	{Name: "Float", Pattern: `[0-9]+\.[0-9]+`},
	{Name: "Int", Pattern: `[0-9]+`},
	{Name: "Range", Pattern: `\.\.`},
	{Name: "Eq", Pattern: `==`},
	{Name: "Ne", Pattern: `!=`},
	{Name: "Le", Pattern: `<=`},
	{Name: "Ge", Pattern: `>=`},
	{Name: "Ident", Pattern: `[A-Za-z_@][A-Za-z0-9_]*`},
	{Name: "Punct", Pattern: `[-+*/%(),.\[\]{}=<>:]`},
})

var whitespaceType = symbolType("Whitespace")
var commentType = symbolType("Comment")
var identType = symbolType("Ident")
var stringType = symbolType("String")
var floatType = symbolType("Float")
var intType = symbolType("Int")

func symbolType(name string) lexer.TokenType {
	t, ok := aqlLexer.Symbols()[name]
	if !ok {
		panic("query: unknown lexer symbol " + name)
	}
	return t
}

// unquote strips the surrounding quote characters and resolves the
// small backslash-escape set AQL string literals support.
func unquote(raw string) string {
	if len(raw) < 2 {
		return raw
	}
	inner := raw[1 : len(raw)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			i++
			switch inner[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(inner[i])
			}
			continue
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}

// tokenize runs the lexer to completion, dropping whitespace and
// comments, so the parser only ever sees meaningful tokens.
func tokenize(input string) ([]lexer.Token, error) {
	lx, err := aqlLexer.Lex("", strings.NewReader(input))
	if err != nil {
		return nil, kverrs.InvalidArgument.Wrap(err)
	}
	var out []lexer.Token
	for {
		tok, err := lx.Next()
		if err != nil {
			return nil, kverrs.InvalidArgument.Wrap(err)
		}
		if tok.EOF() {
			break
		}
		if tok.Type == whitespaceType || tok.Type == commentType {
			continue
		}
		out = append(out, tok)
	}
	return out, nil
}
