package query

import (
	"strings"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/types"
)

// Translate reduces a parsed Program to exactly one types.Query shape
// plus its CTE list (spec §4.6.1). Each CTE's own body is translated
// recursively; the CTE's text is preserved for cache-key purposes and
// lazy inlining decisions (spec §4.6.4).
func Translate(prog *Program) (*types.Query, error) {
	ctes := make([]types.CTE, 0, len(prog.CTEs))
	for _, c := range prog.CTEs {
		ctes = append(ctes, types.CTE{Name: c.Name, QueryText: renderQueryBody(c.Body)})
	}
	q, err := translateBody(prog.Query)
	if err != nil {
		return nil, err
	}
	q.CTEs = ctes
	return q, nil
}

// renderQueryBody is a best-effort textual rendering of a CTE body, used
// only as a cache/debug key — it does not need to round-trip through
// the parser.
func renderQueryBody(b *QueryBody) string {
	var sb strings.Builder
	for _, f := range b.Fors {
		sb.WriteString("FOR ")
		sb.WriteString(f.Var)
		sb.WriteString(" IN ")
		sb.WriteString(f.Source)
		sb.WriteString(" ")
	}
	sb.WriteString("RETURN ...")
	return sb.String()
}

func translateBody(b *QueryBody) (*types.Query, error) {
	if len(b.Fors) == 0 {
		return nil, kverrs.InvalidArgument.New("query has no FOR clause")
	}

	if len(b.Fors) == 1 && b.Fors[0].VectorSearch != nil {
		return translateVectorGeo(b)
	}

	if len(b.Fors) == 1 && b.Fors[0].Traversal != nil {
		return translateTraversal(b)
	}

	if len(b.Fors) >= 2 {
		return translateJoin(b)
	}

	return translateSingleSource(b)
}

func translateSingleSource(b *QueryBody) (*types.Query, error) {
	source := b.Fors[0]
	varName := source.Var

	var filterExprs []Expr
	var lets []types.LetBinding
	for _, c := range b.Clauses {
		switch cl := c.(type) {
		case *FilterClause:
			filterExprs = append(filterExprs, cl.Expr)
		case *LetClause:
			e, err := translateExpr(cl.Expr)
			if err != nil {
				return nil, err
			}
			lets = append(lets, types.LetBinding{
				Var:            cl.Var,
				Expr:           e,
				PreExtractable: isConstantExpr(cl.Expr),
			})
		}
	}

	ret, err := translateExpr(b.Return)
	if err != nil {
		return nil, err
	}

	q := &types.Query{
		Collection: source.Source,
		ReturnVar:  varName,
		Lets:       lets,
		Return:     ret,
	}
	if b.Sort != nil {
		if len(b.Sort) > 0 {
			q.OrderBy = &types.OrderBy{Field: fieldPathOf(b.Sort[0].Expr, varName), Descending: b.Sort[0].Desc}
		}
	}
	if b.Limit != nil {
		q.Limit = &types.Limit{Offset: b.Limit.Offset, Count: b.Limit.Count, Set: true}
	}
	if b.Collect != nil {
		cs, err := translateCollect(b.Collect)
		if err != nil {
			return nil, err
		}
		q.Collect = cs
	}

	if len(filterExprs) == 0 {
		q.Kind = types.QueryConjunctive
		return q, nil
	}

	combined := andAll(filterExprs)
	if containsOr(combined) {
		disjuncts, postFilter, ok := toDNF(combined, varName)
		if ok {
			q.Kind = types.QueryDisjunctive
			q.Disjuncts = disjuncts
			if postFilter != nil {
				pf, err := translateExpr(postFilter)
				if err != nil {
					return nil, err
				}
				q.PostFilter = pf
			}
			return q, nil
		}
	}

	preds, ranges, postFilter, err := classifyConjuncts(combined, varName)
	if err != nil {
		return nil, err
	}
	q.Kind = types.QueryConjunctive
	q.Predicates = preds
	q.RangePredicates = ranges
	if postFilter != nil {
		pf, err := translateExpr(postFilter)
		if err != nil {
			return nil, err
		}
		q.PostFilter = pf
	}
	return q, nil
}

func translateJoin(b *QueryBody) (*types.Query, error) {
	if len(b.Fors) != 2 {
		return nil, kverrs.InvalidArgument.New("join queries support exactly 2 FOR clauses, got %d", len(b.Fors))
	}
	left, right := b.Fors[0], b.Fors[1]

	var joinFilter *Expr
	var oneSided []Expr
	var lets []types.LetBinding
	for _, c := range b.Clauses {
		switch cl := c.(type) {
		case *FilterClause:
			vars := exprVars(cl.Expr)
			touchesLeft := vars[left.Var]
			touchesRight := vars[right.Var]
			switch {
			case touchesLeft && touchesRight:
				e := cl.Expr
				joinFilter = &e
			case touchesLeft || touchesRight:
				oneSided = append(oneSided, cl.Expr)
			}
		case *LetClause:
			e, err := translateExpr(cl.Expr)
			if err != nil {
				return nil, err
			}
			lets = append(lets, types.LetBinding{Var: cl.Var, Expr: e, PreExtractable: isConstantExpr(cl.Expr)})
		}
	}

	ret, err := translateExpr(b.Return)
	if err != nil {
		return nil, err
	}

	q := &types.Query{
		Kind: types.QueryJoin,
		ForNodes: [2]types.ForNode{
			{Var: left.Var, Collection: left.Source},
			{Var: right.Var, Collection: right.Source},
		},
		Lets:   lets,
		Return: ret,
	}
	if joinFilter != nil {
		jf, err := translateExpr(*joinFilter)
		if err != nil {
			return nil, err
		}
		q.JoinFilter = jf
	}
	for _, os := range oneSided {
		e, err := translateExpr(os)
		if err != nil {
			return nil, err
		}
		q.OneSided = append(q.OneSided, e)
	}
	if b.Sort != nil && len(b.Sort) > 0 {
		q.OrderBy = &types.OrderBy{Field: fieldPathOf(b.Sort[0].Expr, ""), Descending: b.Sort[0].Desc}
	}
	if b.Limit != nil {
		q.Limit = &types.Limit{Offset: b.Limit.Offset, Count: b.Limit.Count, Set: true}
	}
	if b.Collect != nil {
		cs, err := translateCollect(b.Collect)
		if err != nil {
			return nil, err
		}
		q.Collect = cs
	}
	return q, nil
}

func translateTraversal(b *QueryBody) (*types.Query, error) {
	fc := b.Fors[0]
	spec := fc.Traversal

	var filterExprs []Expr
	for _, c := range b.Clauses {
		if fcl, ok := c.(*FilterClause); ok {
			filterExprs = append(filterExprs, fcl.Expr)
		}
	}

	ret, err := translateExpr(b.Return)
	if err != nil {
		return nil, err
	}

	startLit, ok := spec.Start.(*LiteralExpr)
	if !ok {
		return nil, kverrs.InvalidArgument.New("traversal start vertex must be a literal PK")
	}

	var dir types.Direction
	switch spec.Direction {
	case "OUTBOUND":
		dir = types.DirOut
	case "INBOUND":
		dir = types.DirIn
	default:
		dir = types.DirAny
	}

	q := &types.Query{
		Kind:      types.QueryTraversal,
		VarVertex: fc.Var,
		VarEdge:   fc.EdgeVar,
		VarPath:   fc.PathVar,
		MinDepth:  spec.MinDepth,
		MaxDepth:  spec.MaxDepth,
		TravDir:   dir,
		StartPK:   startLit.Value.String(),
		Graph:     spec.Graph,
		Return:    ret,
	}
	for _, fe := range filterExprs {
		e, err := translateExpr(fe)
		if err != nil {
			return nil, err
		}
		q.OneSided = append(q.OneSided, e)
	}
	if b.Limit != nil {
		q.Limit = &types.Limit{Offset: b.Limit.Offset, Count: b.Limit.Count, Set: true}
	}
	return q, nil
}

// translateVectorGeo builds the VectorGeoQuery shape (spec §4.6.1 shape
// 5): a VECTOR_SEARCH probe feeding structural FILTERs evaluated over
// the KNN candidate set, treating the combined filter as the "geo
// expression" callable the spec describes (§4.6.1's note that
// VectorGeo/ContentGeo treat such filters as an external predicate —
// here it's whatever function the FILTER clause calls, geo or not).
func translateVectorGeo(b *QueryBody) (*types.Query, error) {
	fc := b.Fors[0]
	spec := fc.VectorSearch

	vec, ok := literalFloatArray(spec.Query)
	if !ok {
		return nil, kverrs.InvalidArgument.New("VECTOR_SEARCH's query vector must be a literal array of numbers")
	}
	kLit, ok := spec.K.(*LiteralExpr)
	if !ok {
		return nil, kverrs.InvalidArgument.New("VECTOR_SEARCH's k argument must be a literal integer")
	}

	ret, err := translateExpr(b.Return)
	if err != nil {
		return nil, err
	}

	q := &types.Query{
		Kind:        types.QueryVectorGeo,
		Collection:  spec.Collection,
		VectorField: spec.Field,
		VectorQuery: vec,
		TopK:        int(kLit.Value.asFloat()),
		ReturnVar:   fc.Var,
		Return:      ret,
	}

	var filterExprs []Expr
	for _, c := range b.Clauses {
		if fcl, ok := c.(*FilterClause); ok {
			filterExprs = append(filterExprs, fcl.Expr)
		}
	}
	if len(filterExprs) > 0 {
		ge, err := translateExpr(andAll(filterExprs))
		if err != nil {
			return nil, err
		}
		q.GeoExpr = ge
	}

	if b.Limit != nil {
		q.Limit = &types.Limit{Offset: b.Limit.Offset, Count: b.Limit.Count, Set: true}
	}
	return q, nil
}

// literalFloatArray recognizes a constant numeric array literal, the
// only query-vector shape VECTOR_SEARCH accepts today; a computed
// vector expression (e.g. built from a bound variable) is a known
// simplification left unsupported.
func literalFloatArray(e Expr) ([]float64, bool) {
	arr, ok := e.(*ArrayExpr)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(arr.Elems))
	for i, el := range arr.Elems {
		lit, ok := el.(*LiteralExpr)
		if !ok || !lit.Value.isNumeric() {
			return nil, false
		}
		out[i] = lit.Value.asFloat()
	}
	return out, true
}

func translateCollect(c *CollectClause) (*types.CollectSpec, error) {
	cs := &types.CollectSpec{}
	if len(c.Groups) > 0 {
		g := c.Groups[0]
		e, err := translateExpr(g.Expr)
		if err != nil {
			return nil, err
		}
		cs.GroupVar = g.Var
		cs.GroupExpr = e
	}
	for _, a := range c.Aggregates {
		var e *types.Expr
		if a.Expr != nil {
			var err error
			e, err = translateExpr(a.Expr)
			if err != nil {
				return nil, err
			}
		}
		cs.Aggregates = append(cs.Aggregates, types.AggregateSpec{Var: a.Var, Func: a.Func, Expr: e})
	}
	if c.Having != nil {
		h, err := translateExpr(c.Having)
		if err != nil {
			return nil, err
		}
		cs.Having = h
	}
	return cs, nil
}

// translateExpr converts a parsed Expr into the wire-friendly
// types.Expr tagged tree, used for CollectSpec/Return/PostFilter/LET
// payloads that cross the translate/execute boundary.
func translateExpr(e Expr) (*types.Expr, error) {
	switch n := e.(type) {
	case *LiteralExpr:
		return &types.Expr{Kind: types.ExprLiteral, Literal: n.Value.ToInterface()}, nil
	case *IdentExpr:
		return &types.Expr{Kind: types.ExprVariable, Variable: n.Name}, nil
	case *MemberExpr:
		base, path, ok := flattenMember(n)
		if ok {
			return &types.Expr{Kind: types.ExprField, FieldBase: base, FieldPath: path}, nil
		}
		left, err := translateExpr(n.Base)
		if err != nil {
			return nil, err
		}
		return &types.Expr{Kind: types.ExprBinary, Op: ".", Left: left, Right: &types.Expr{Kind: types.ExprLiteral, Literal: n.Field}}, nil
	case *IndexExpr:
		left, err := translateExpr(n.Base)
		if err != nil {
			return nil, err
		}
		right, err := translateExpr(n.Index)
		if err != nil {
			return nil, err
		}
		return &types.Expr{Kind: types.ExprBinary, Op: "[]", Left: left, Right: right}, nil
	case *UnaryExpr:
		x, err := translateExpr(n.X)
		if err != nil {
			return nil, err
		}
		return &types.Expr{Kind: types.ExprUnary, UnaryOp: n.Op, Operand: x}, nil
	case *BinaryExpr:
		l, err := translateExpr(n.L)
		if err != nil {
			return nil, err
		}
		r, err := translateExpr(n.R)
		if err != nil {
			return nil, err
		}
		return &types.Expr{Kind: types.ExprBinary, Op: n.Op, Left: l, Right: r}, nil
	case *FuncCallExpr:
		args := make([]*types.Expr, len(n.Args))
		for i, a := range n.Args {
			te, err := translateExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = te
		}
		return &types.Expr{Kind: types.ExprCall, Func: n.Name, Args: args}, nil
	case *ArrayExpr:
		elems := make([]*types.Expr, len(n.Elems))
		for i, el := range n.Elems {
			te, err := translateExpr(el)
			if err != nil {
				return nil, err
			}
			elems[i] = te
		}
		return &types.Expr{Kind: types.ExprArray, Elements: elems}, nil
	case *ObjectExpr:
		kv := make(map[string]*types.Expr, len(n.Fields))
		for k, v := range n.Fields {
			te, err := translateExpr(v)
			if err != nil {
				return nil, err
			}
			kv[k] = te
		}
		return &types.Expr{Kind: types.ExprObject, ObjectKV: kv}, nil
	case *SubqueryExpr:
		return &types.Expr{Kind: types.ExprSubquery, SubqueryText: renderQueryBody(n.Body)}, nil
	}
	return nil, kverrs.Internal.New("unhandled expression node %T during translation", e)
}

func flattenMember(m *MemberExpr) (base string, path []string, ok bool) {
	var fields []string
	var cur Expr = m
	for {
		switch n := cur.(type) {
		case *MemberExpr:
			fields = append([]string{n.Field}, fields...)
			cur = n.Base
		case *IdentExpr:
			return n.Name, fields, true
		default:
			return "", nil, false
		}
	}
}

func fieldPathOf(e Expr, _ string) string {
	if m, ok := e.(*MemberExpr); ok {
		if _, path, ok := flattenMember(m); ok {
			return strings.Join(path, ".")
		}
	}
	if id, ok := e.(*IdentExpr); ok {
		return id.Name
	}
	return ""
}

func andAll(exprs []Expr) Expr {
	if len(exprs) == 0 {
		return nil
	}
	out := exprs[0]
	for _, e := range exprs[1:] {
		out = &BinaryExpr{Op: "AND", L: out, R: e}
	}
	return out
}

func containsOr(e Expr) bool {
	switch n := e.(type) {
	case *BinaryExpr:
		if n.Op == "OR" {
			return true
		}
		return containsOr(n.L) || containsOr(n.R)
	case *UnaryExpr:
		return containsOr(n.X)
	}
	return false
}

func exprVars(e Expr) map[string]bool {
	out := map[string]bool{}
	var walk func(Expr)
	walk = func(e Expr) {
		switch n := e.(type) {
		case *IdentExpr:
			out[n.Name] = true
		case *MemberExpr:
			walk(n.Base)
		case *IndexExpr:
			walk(n.Base)
			walk(n.Index)
		case *UnaryExpr:
			walk(n.X)
		case *BinaryExpr:
			walk(n.L)
			walk(n.R)
		case *FuncCallExpr:
			for _, a := range n.Args {
				walk(a)
			}
		case *ArrayExpr:
			for _, el := range n.Elems {
				walk(el)
			}
		case *ObjectExpr:
			for _, v := range n.Fields {
				walk(v)
			}
		}
	}
	walk(e)
	return out
}

func isConstantExpr(e Expr) bool {
	switch n := e.(type) {
	case *LiteralExpr:
		return true
	case *UnaryExpr:
		return isConstantExpr(n.X)
	case *BinaryExpr:
		return isConstantExpr(n.L) && isConstantExpr(n.R)
	case *ArrayExpr:
		for _, el := range n.Elems {
			if !isConstantExpr(el) {
				return false
			}
		}
		return true
	}
	return false
}

// toDNF converts an OR/AND expression tree over varName's fields into
// DNF disjuncts of simple equality predicates, when every branch is
// expressible that way; ok=false asks the caller to fall back to a
// conjunctive plan that keeps the OR as part of its post-filter (still
// correct, just unindexed for the OR).
func toDNF(e Expr, varName string) (disjuncts [][]types.Predicate, postFilter Expr, ok bool) {
	branches := splitOr(e)
	out := make([][]types.Predicate, 0, len(branches))
	for _, branch := range branches {
		preds, _, extra, err := classifyConjuncts(branch, varName)
		if err != nil || extra != nil || len(preds) == 0 {
			return nil, e, false
		}
		out = append(out, preds)
	}
	return out, nil, true
}

func splitOr(e Expr) []Expr {
	if b, ok := e.(*BinaryExpr); ok && b.Op == "OR" {
		return append(splitOr(b.L), splitOr(b.R)...)
	}
	return []Expr{e}
}

// classifyConjuncts splits an AND-only expression tree into equality
// predicates, range predicates, and a residual post-filter for anything
// that isn't a simple `field OP literal` comparator (spec §4.6.2).
func classifyConjuncts(e Expr, varName string) ([]types.Predicate, []types.RangePredicate, Expr, error) {
	var preds []types.Predicate
	var ranges []types.RangePredicate
	var residual Expr

	addResidual := func(x Expr) {
		if residual == nil {
			residual = x
		} else {
			residual = &BinaryExpr{Op: "AND", L: residual, R: x}
		}
	}

	var walk func(Expr)
	walk = func(e Expr) {
		if b, ok := e.(*BinaryExpr); ok && b.Op == "AND" {
			walk(b.L)
			walk(b.R)
			return
		}
		if neg, ok := e.(*UnaryExpr); ok && neg.Op == "NOT" {
			if field, op, val, iok := asFieldLiteralComparison(neg.X); iok {
				p, rangeP := toPredicateOrRange(field, invertOp(op), val)
				if rangeP != nil {
					addResidual(e)
					return
				}
				preds = append(preds, p)
				return
			}
			addResidual(e)
			return
		}
		if field, op, val, ok := asFieldLiteralComparison(e); ok {
			p, rangeP := toPredicateOrRange(field, op, val)
			if rangeP != nil {
				ranges = append(ranges, *rangeP)
				return
			}
			preds = append(preds, p)
			return
		}
		addResidual(e)
	}
	walk(e)
	return preds, ranges, residual, nil
}

// asFieldLiteralComparison recognizes `var.field OP literal` (or the
// mirrored `literal OP var.field`), returning the field path joined by
// '.', the comparator, and the literal value.
func asFieldLiteralComparison(e Expr) (field string, op string, val Value, ok bool) {
	b, isBin := e.(*BinaryExpr)
	if !isBin {
		return "", "", Value{}, false
	}
	switch b.Op {
	case "==", "!=", "<", "<=", ">", ">=", "IN":
	default:
		return "", "", Value{}, false
	}
	if m, mok := b.L.(*MemberExpr); mok {
		if lit, lok := b.R.(*LiteralExpr); lok {
			if _, path, fok := flattenMember(m); fok {
				return strings.Join(path, "."), b.Op, lit.Value, true
			}
		}
	}
	if m, mok := b.R.(*MemberExpr); mok {
		if lit, lok := b.L.(*LiteralExpr); lok {
			if _, path, fok := flattenMember(m); fok {
				return strings.Join(path, "."), mirrorOp(b.Op), lit.Value, true
			}
		}
	}
	return "", "", Value{}, false
}

func mirrorOp(op string) string {
	switch op {
	case "<":
		return ">"
	case "<=":
		return ">="
	case ">":
		return "<"
	case ">=":
		return "<="
	default:
		return op
	}
}

func invertOp(op string) string {
	switch op {
	case "==":
		return "!="
	case "!=":
		return "=="
	case "<":
		return ">="
	case "<=":
		return ">"
	case ">":
		return "<="
	case ">=":
		return "<"
	default:
		return op
	}
}

func toPredicateOrRange(field, op string, val Value) (types.Predicate, *types.RangePredicate) {
	switch op {
	case "<", "<=":
		return types.Predicate{}, &types.RangePredicate{Field: field, Upper: val.ToInterface(), IncludeUpper: op == "<="}
	case ">", ">=":
		return types.Predicate{}, &types.RangePredicate{Field: field, Lower: val.ToInterface(), IncludeLower: op == ">="}
	default:
		return types.Predicate{Field: field, Op: op, Value: val.ToInterface(), Negated: op == "!="}, nil
	}
}
