package query

import "testing"

func TestParseSimpleForFilterReturn(t *testing.T) {
	prog, err := Parse(`FOR u IN users FILTER u.age >= 18 RETURN u`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Query.Fors) != 1 || prog.Query.Fors[0].Var != "u" || prog.Query.Fors[0].Source != "users" {
		t.Fatalf("unexpected FOR clause: %+v", prog.Query.Fors)
	}
	if len(prog.Query.Clauses) != 1 {
		t.Fatalf("expected one clause, got %d", len(prog.Query.Clauses))
	}
	fc, ok := prog.Query.Clauses[0].(*FilterClause)
	if !ok {
		t.Fatalf("expected FilterClause, got %T", prog.Query.Clauses[0])
	}
	be, ok := fc.Expr.(*BinaryExpr)
	if !ok || be.Op != ">=" {
		t.Fatalf("expected >= binary expr, got %+v", fc.Expr)
	}
	if _, ok := prog.Query.Return.(*IdentExpr); !ok {
		t.Fatalf("expected ident return, got %T", prog.Query.Return)
	}
}

func TestParseWithCTE(t *testing.T) {
	prog, err := Parse(`WITH recent AS (FOR o IN orders FILTER o.status == "open" RETURN o) FOR r IN recent RETURN r`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.CTEs) != 1 || prog.CTEs[0].Name != "recent" {
		t.Fatalf("unexpected CTEs: %+v", prog.CTEs)
	}
	if len(prog.CTEs[0].Body.Fors) != 1 || prog.CTEs[0].Body.Fors[0].Source != "orders" {
		t.Fatalf("unexpected CTE body: %+v", prog.CTEs[0].Body)
	}
	if prog.Query.Fors[0].Source != "recent" {
		t.Fatalf("expected main query to scan the CTE, got %+v", prog.Query.Fors[0])
	}
}

func TestParseCollectAggregateHaving(t *testing.T) {
	prog, err := Parse(`FOR o IN orders COLLECT customer = o.customer AGGREGATE total = SUM(o.amount) HAVING total > 100 RETURN {customer, total}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cc := prog.Query.Collect
	if cc == nil {
		t.Fatalf("expected COLLECT clause")
	}
	if len(cc.Groups) != 1 || cc.Groups[0].Var != "customer" {
		t.Fatalf("unexpected group terms: %+v", cc.Groups)
	}
	if len(cc.Aggregates) != 1 || cc.Aggregates[0].Var != "total" || cc.Aggregates[0].Func != "SUM" {
		t.Fatalf("unexpected aggregate terms: %+v", cc.Aggregates)
	}
	if cc.Having == nil {
		t.Fatalf("expected HAVING expr")
	}
	obj, ok := prog.Query.Return.(*ObjectExpr)
	if !ok || len(obj.Order) != 2 {
		t.Fatalf("expected two-field object return, got %+v", prog.Query.Return)
	}
}

func TestParseSortDescLimit(t *testing.T) {
	prog, err := Parse(`FOR u IN users SORT u.name DESC LIMIT 10 RETURN u`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Query.Sort) != 1 || !prog.Query.Sort[0].Desc {
		t.Fatalf("expected single descending sort term, got %+v", prog.Query.Sort)
	}
	if prog.Query.Limit == nil || prog.Query.Limit.Count != 10 || prog.Query.Limit.Offset != 0 {
		t.Fatalf("unexpected limit clause: %+v", prog.Query.Limit)
	}
}

func TestParseLimitWithOffset(t *testing.T) {
	prog, err := Parse(`FOR u IN users LIMIT 5, 20 RETURN u`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if prog.Query.Limit.Offset != 5 || prog.Query.Limit.Count != 20 {
		t.Fatalf("unexpected offset limit: %+v", prog.Query.Limit)
	}
}

func TestParseTraversal(t *testing.T) {
	prog, err := Parse(`FOR v, e IN 1..3 OUTBOUND "users/1" GRAPH "social" RETURN v`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fc := prog.Query.Fors[0]
	if fc.Var != "v" || fc.EdgeVar != "e" {
		t.Fatalf("unexpected traversal vars: %+v", fc)
	}
	if fc.Traversal == nil {
		t.Fatalf("expected traversal spec")
	}
	if fc.Traversal.MinDepth != 1 || fc.Traversal.MaxDepth != 3 || fc.Traversal.Direction != "OUTBOUND" {
		t.Fatalf("unexpected traversal spec: %+v", fc.Traversal)
	}
	if fc.Traversal.Graph != "social" {
		t.Fatalf("expected graph name social, got %q", fc.Traversal.Graph)
	}
	lit, ok := fc.Traversal.Start.(*LiteralExpr)
	if !ok || lit.Value.String() != "users/1" {
		t.Fatalf("unexpected traversal start: %+v", fc.Traversal.Start)
	}
}

func TestParseJoinShape(t *testing.T) {
	prog, err := Parse(`FOR a IN accounts FOR b IN balances FILTER a._key == b.account RETURN {a, b}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Query.Fors) != 2 {
		t.Fatalf("expected two FOR clauses, got %d", len(prog.Query.Fors))
	}
	fc, ok := prog.Query.Clauses[0].(*FilterClause)
	if !ok {
		t.Fatalf("expected filter clause")
	}
	be, ok := fc.Expr.(*BinaryExpr)
	if !ok || be.Op != "==" {
		t.Fatalf("unexpected join predicate: %+v", fc.Expr)
	}
	lm, ok := be.L.(*MemberExpr)
	if !ok || lm.Field != "_key" {
		t.Fatalf("unexpected join predicate left side: %+v", be.L)
	}
}

func TestParseSubqueryInLet(t *testing.T) {
	prog, err := Parse(`FOR u IN users LET o = (FOR x IN orders FILTER x.user == u._key RETURN x) RETURN {u, o}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(prog.Query.Clauses) != 1 {
		t.Fatalf("expected one LET clause, got %d", len(prog.Query.Clauses))
	}
	lc, ok := prog.Query.Clauses[0].(*LetClause)
	if !ok || lc.Var != "o" {
		t.Fatalf("expected LET o, got %+v", prog.Query.Clauses[0])
	}
	sub, ok := lc.Expr.(*SubqueryExpr)
	if !ok {
		t.Fatalf("expected subquery expr, got %T", lc.Expr)
	}
	if len(sub.Body.Fors) != 1 || sub.Body.Fors[0].Source != "orders" {
		t.Fatalf("unexpected subquery body: %+v", sub.Body)
	}
}

func TestParseGroupedExpressionNotMistakenForSubquery(t *testing.T) {
	prog, err := Parse(`FOR u IN users RETURN (u.a + u.b) * 2`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	be, ok := prog.Query.Return.(*BinaryExpr)
	if !ok || be.Op != "*" {
		t.Fatalf("expected top-level multiply, got %+v", prog.Query.Return)
	}
	if _, ok := be.L.(*BinaryExpr); !ok {
		t.Fatalf("expected grouped addition on the left, got %+v", be.L)
	}
}

func TestParseArithmeticPrecedence(t *testing.T) {
	prog, err := Parse(`FOR u IN users RETURN 1 + 2 * 3`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	be, ok := prog.Query.Return.(*BinaryExpr)
	if !ok || be.Op != "+" {
		t.Fatalf("expected top-level + binding loosest, got %+v", prog.Query.Return)
	}
	rhs, ok := be.R.(*BinaryExpr)
	if !ok || rhs.Op != "*" {
		t.Fatalf("expected nested multiply on the right, got %+v", be.R)
	}
}

func TestParseArrayAndInOperator(t *testing.T) {
	prog, err := Parse(`FOR u IN users FILTER u.role IN ["admin", "owner"] RETURN u`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fc, ok := prog.Query.Clauses[0].(*FilterClause)
	if !ok {
		t.Fatalf("expected filter clause")
	}
	be, ok := fc.Expr.(*BinaryExpr)
	if !ok || be.Op != "IN" {
		t.Fatalf("expected IN binary expr, got %+v", fc.Expr)
	}
	arr, ok := be.R.(*ArrayExpr)
	if !ok || len(arr.Elems) != 2 {
		t.Fatalf("unexpected array literal: %+v", be.R)
	}
}

func TestParseFunctionCall(t *testing.T) {
	prog, err := Parse(`FOR u IN users FILTER LOWER(u.name) == "ada" RETURN u`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fc, ok := prog.Query.Clauses[0].(*FilterClause)
	if !ok {
		t.Fatalf("expected filter clause")
	}
	be, ok := fc.Expr.(*BinaryExpr)
	if !ok {
		t.Fatalf("expected binary expr, got %+v", fc.Expr)
	}
	call, ok := be.L.(*FuncCallExpr)
	if !ok || call.Name != "LOWER" || len(call.Args) != 1 {
		t.Fatalf("unexpected function call: %+v", be.L)
	}
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse(`FOR u IN users RETURN u EXTRA`)
	if err == nil {
		t.Fatalf("expected parse error for trailing garbage")
	}
}

func TestParseRequiresFor(t *testing.T) {
	_, err := Parse(`RETURN 1`)
	if err == nil {
		t.Fatalf("expected parse error for missing FOR")
	}
}

func TestParseVectorSearch(t *testing.T) {
	prog, err := Parse(`FOR d IN VECTOR_SEARCH(docs, "embedding", [0.1, 0.2, 0.3], 5) FILTER d.published == true RETURN d`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	fc := prog.Query.Fors[0]
	if fc.Var != "d" {
		t.Fatalf("unexpected FOR var: %q", fc.Var)
	}
	if fc.VectorSearch == nil {
		t.Fatalf("expected a VectorSearch spec")
	}
	if fc.VectorSearch.Collection != "docs" || fc.VectorSearch.Field != "embedding" {
		t.Fatalf("unexpected vector search spec: %+v", fc.VectorSearch)
	}
	arr, ok := fc.VectorSearch.Query.(*ArrayExpr)
	if !ok || len(arr.Elems) != 3 {
		t.Fatalf("unexpected query vector: %+v", fc.VectorSearch.Query)
	}
	kLit, ok := fc.VectorSearch.K.(*LiteralExpr)
	if !ok || kLit.Value.String() != "5" {
		t.Fatalf("unexpected k argument: %+v", fc.VectorSearch.K)
	}
	if len(prog.Query.Clauses) != 1 {
		t.Fatalf("expected one FILTER clause, got %d", len(prog.Query.Clauses))
	}
}
