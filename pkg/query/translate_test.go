package query

import (
	"testing"

	"github.com/cuemby/warrendb/pkg/types"
)

func mustTranslate(t *testing.T, src string) *types.Query {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	q, err := Translate(prog)
	if err != nil {
		t.Fatalf("translate %q: %v", src, err)
	}
	return q
}

func TestTranslateSimpleEqualityToConjunctive(t *testing.T) {
	q := mustTranslate(t, `FOR u IN users FILTER u.age == 30 RETURN u`)

	if q.Kind != types.QueryConjunctive {
		t.Fatalf("expected QueryConjunctive, got %v", q.Kind)
	}
	if q.Collection != "users" || q.ReturnVar != "u" {
		t.Fatalf("unexpected collection/var: %+v", q)
	}
	if len(q.Predicates) != 1 || q.Predicates[0].Field != "age" || q.Predicates[0].Op != "==" {
		t.Fatalf("unexpected predicates: %+v", q.Predicates)
	}
}

func TestTranslateRangeComparisonBecomesRangePredicate(t *testing.T) {
	q := mustTranslate(t, `FOR u IN users FILTER u.age >= 18 RETURN u`)

	if len(q.Predicates) != 0 {
		t.Fatalf("expected no equality predicates, got %+v", q.Predicates)
	}
	if len(q.RangePredicates) != 1 {
		t.Fatalf("expected one range predicate, got %+v", q.RangePredicates)
	}
	rp := q.RangePredicates[0]
	if rp.Field != "age" || !rp.IncludeLower {
		t.Fatalf("unexpected range predicate: %+v", rp)
	}
}

func TestTranslateMirroredComparisonFlipsOperator(t *testing.T) {
	q := mustTranslate(t, `FOR u IN users FILTER 18 <= u.age RETURN u`)

	if len(q.RangePredicates) != 1 {
		t.Fatalf("expected one range predicate, got %+v", q.RangePredicates)
	}
	rp := q.RangePredicates[0]
	if rp.Field != "age" || !rp.IncludeLower {
		t.Fatalf("expected mirrored >= to become a lower-bound range, got %+v", rp)
	}
}

func TestTranslateNonFieldFilterBecomesPostFilter(t *testing.T) {
	q := mustTranslate(t, `FOR u IN users FILTER STARTS_WITH(u.name, "a") RETURN u`)

	if len(q.Predicates) != 0 || len(q.RangePredicates) != 0 {
		t.Fatalf("expected no structural predicates, got preds=%+v ranges=%+v", q.Predicates, q.RangePredicates)
	}
	if q.PostFilter == nil {
		t.Fatalf("expected a post-filter expression")
	}
	if q.PostFilter.Kind != types.ExprCall || q.PostFilter.Func != "STARTS_WITH" {
		t.Fatalf("unexpected post-filter shape: %+v", q.PostFilter)
	}
}

func TestTranslateOrBecomesDisjuncts(t *testing.T) {
	q := mustTranslate(t, `FOR u IN users FILTER u.status == "active" OR u.status == "pending" RETURN u`)

	if q.Kind != types.QueryDisjunctive {
		t.Fatalf("expected QueryDisjunctive, got %v", q.Kind)
	}
	if len(q.Disjuncts) != 2 {
		t.Fatalf("expected 2 disjuncts, got %+v", q.Disjuncts)
	}
	for _, d := range q.Disjuncts {
		if len(d) != 1 || d[0].Field != "status" {
			t.Fatalf("unexpected disjunct branch: %+v", d)
		}
	}
}

func TestTranslateJoinSplitsFilterByVariable(t *testing.T) {
	q := mustTranslate(t, `FOR o IN orders FOR c IN customers FILTER o.customer_id == c.id FILTER o.total > 100 RETURN {o, c}`)

	if q.Kind != types.QueryJoin {
		t.Fatalf("expected QueryJoin, got %v", q.Kind)
	}
	if q.ForNodes[0].Var != "o" || q.ForNodes[0].Collection != "orders" {
		t.Fatalf("unexpected left FOR: %+v", q.ForNodes[0])
	}
	if q.ForNodes[1].Var != "c" || q.ForNodes[1].Collection != "customers" {
		t.Fatalf("unexpected right FOR: %+v", q.ForNodes[1])
	}
	if q.JoinFilter == nil {
		t.Fatalf("expected a join filter touching both variables")
	}
	if len(q.OneSided) != 1 {
		t.Fatalf("expected one one-sided filter, got %+v", q.OneSided)
	}
}

func TestTranslateVectorSearchProducesVectorGeoQuery(t *testing.T) {
	q := mustTranslate(t, `FOR d IN VECTOR_SEARCH(docs, "embedding", [0.1, 0.2, 0.3], 5) RETURN d`)

	if q.Kind != types.QueryVectorGeo {
		t.Fatalf("expected QueryVectorGeo, got %v", q.Kind)
	}
	if q.Collection != "docs" || q.VectorField != "embedding" {
		t.Fatalf("unexpected vector target: %+v", q)
	}
	if q.TopK != 5 {
		t.Fatalf("expected TopK=5, got %d", q.TopK)
	}
	if len(q.VectorQuery) != 3 || q.VectorQuery[1] != 0.2 {
		t.Fatalf("unexpected query vector: %+v", q.VectorQuery)
	}
}

func TestTranslateLimitAndSort(t *testing.T) {
	q := mustTranslate(t, `FOR u IN users FILTER u.age == 30 SORT u.name DESC LIMIT 5, 10 RETURN u`)

	if q.Limit == nil || q.Limit.Offset != 5 || q.Limit.Count != 10 {
		t.Fatalf("unexpected limit: %+v", q.Limit)
	}
	if q.OrderBy == nil || q.OrderBy.Field != "name" || !q.OrderBy.Descending {
		t.Fatalf("unexpected order by: %+v", q.OrderBy)
	}
}

func TestTranslateCTEPreservesQueryText(t *testing.T) {
	prog, err := Parse(`WITH recent AS (FOR o IN orders FILTER o.status == "open" RETURN o) FOR r IN recent RETURN r`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	q, err := Translate(prog)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(q.CTEs) != 1 || q.CTEs[0].Name != "recent" {
		t.Fatalf("unexpected CTEs: %+v", q.CTEs)
	}
	if q.CTEs[0].QueryText == "" {
		t.Fatalf("expected a non-empty rendered query text for the CTE")
	}
	if q.Collection != "recent" {
		t.Fatalf("expected outer query to scan the CTE, got %+v", q.Collection)
	}
}

func TestTranslateMissingForClauseErrors(t *testing.T) {
	// The parser itself requires at least one FOR clause, so build a
	// QueryBody by hand to exercise translateBody's own guard.
	body := &QueryBody{Return: &LiteralExpr{Value: IntVal(1)}}
	if _, err := translateBody(body); err == nil {
		t.Fatalf("expected an error for a query with no FOR clause")
	}
}
