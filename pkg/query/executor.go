package query

import (
	"context"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/types"
)

// EntityStore is the narrow seam the executor uses to read collection
// rows. pkg/engine supplies the concrete implementation over pkg/kv;
// pkg/query never imports it directly, matching the layering already
// used for SubqueryExecutor and SecIndex.
type EntityStore interface {
	Get(collection, pk string) (types.Entity, bool, error)
	ScanCollection(collection string, visit func(types.Entity) (more bool, err error)) error
}

// GraphIndex is the slice of pkg/graphindex.Manager the traversal
// executor needs.
type GraphIndex interface {
	Neighbors(graph, vertex string, dir types.Direction) ([]types.Edge, error)
}

// VectorIndex is the slice of pkg/vectorindex.Manager the VectorGeo
// executor needs.
type VectorIndex interface {
	SearchKNN(collection string, query []float32, k int, whitelist []string) ([]types.VectorHit, error)
}

// Deps bundles every external dependency Execute needs to run a
// translated, optimized types.Query.
type Deps struct {
	Entities EntityStore
	SecIdx   SecIndex
	Graph    GraphIndex
	VectorIdx VectorIndex
	Funcs    FuncRegistry
	MaxProbe int
	// Subquery executes a nested AQL body against the parent scope; used
	// for LET/RETURN subquery expressions and CTE bodies alike.
	Subquery SubqueryExecutor
}

// TraversalMetrics mirrors spec §4.6.3's required traversal counters.
type TraversalMetrics struct {
	EdgesExpanded             int
	PrunedLastLevel           int
	FilterShortCircuits       int
	FrontierProcessedPerDepth []int
}

// JoinMetrics makes a join's execution strategy and its early-out
// observable (spec §4.6.1 scenario 2), rather than leaving the
// hash-vs-nested-loop choice and any LIMIT short-circuit invisible to
// the caller.
type JoinMetrics struct {
	// BuildSide is the FOR variable hashed into the build-side map, or
	// "" when no equality join field was recognized and the executor
	// fell back to a nested-loop scan.
	BuildSide       string
	ProbesEvaluated int
	PairsEmitted    int
	EarlyOut        bool
}

// ExecMetrics carries whichever metrics a query shape produces; only
// the field matching q.Kind is populated.
type ExecMetrics struct {
	Traversal *TraversalMetrics
	Join      *JoinMetrics
}

// Execute runs q (already translated + optimized) to completion,
// returning row objects ready for JSON projection via Return. ctx is
// checked for cancellation between rows, matching spec §5's
// "checks the deadline between tuples" contract.
func Execute(ctx context.Context, q *types.Query, deps Deps) ([]map[string]Value, *ExecMetrics, error) {
	if deps.Funcs == nil {
		deps.Funcs = DefaultFuncRegistry()
	}
	switch q.Kind {
	case types.QueryConjunctive:
		rows, err := executeConjunctive(ctx, q, deps)
		return rows, nil, err
	case types.QueryDisjunctive:
		rows, err := executeDisjunctive(ctx, q, deps)
		return rows, nil, err
	case types.QueryJoin:
		rows, jm, err := executeJoin(ctx, q, deps)
		return rows, &ExecMetrics{Join: jm}, err
	case types.QueryTraversal:
		rows, tm, err := executeTraversal(ctx, q, deps)
		return rows, &ExecMetrics{Traversal: tm}, err
	case types.QueryVectorGeo:
		rows, err := executeVectorGeo(ctx, q, deps)
		return rows, nil, err
	default:
		return nil, nil, kverrs.InvalidArgument.New("unsupported query kind %q", q.Kind)
	}
}

func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return kverrs.Cancelled.New("query execution cancelled")
	default:
		return nil
	}
}

// candidatePKs resolves q's leading predicate (already ordered cheapest
// first by the optimizer) to a candidate PK list, falling back to a
// full collection scan when no usable index exists.
func candidatePKs(q *types.Query, deps Deps) ([]string, bool, error) {
	if len(q.Predicates) > 0 {
		lead := q.Predicates[0]
		if !lead.Negated && deps.SecIdx != nil && deps.SecIdx.HasEquality(q.Collection, lead.Field) {
			pks, err := deps.SecIdx.ScanKeysEqual(q.Collection, lead.Field, lead.Value)
			if err != nil {
				return nil, false, err
			}
			return pks, true, nil
		}
	}
	if len(q.RangePredicates) > 0 {
		lead := q.RangePredicates[0]
		if deps.SecIdx != nil && deps.SecIdx.HasRange(q.Collection, lead.Field) {
			desc := q.OrderBy != nil && q.OrderBy.Field == lead.Field && q.OrderBy.Descending
			limit := 0
			if q.Limit != nil && q.Limit.Set {
				limit = q.Limit.Offset + q.Limit.Count
			}
			pks, err := deps.SecIdx.ScanKeysRange(q.Collection, lead.Field, lead.Lower, lead.Upper, lead.IncludeLower, lead.IncludeUpper, limit, desc)
			if err != nil {
				return nil, false, err
			}
			return pks, true, nil
		}
	}
	return nil, false, nil
}

func executeConjunctive(ctx context.Context, q *types.Query, deps Deps) ([]map[string]Value, error) {
	var survivors []*EvalContext

	emit := func(e types.Entity) (bool, error) {
		if err := checkCancel(ctx); err != nil {
			return false, err
		}
		rowCtx, keep, err := filterRow(e, q, deps)
		if err != nil {
			return false, err
		}
		if keep {
			survivors = append(survivors, rowCtx)
		}
		return true, nil
	}

	pks, indexed, err := candidatePKs(q, deps)
	if err != nil {
		return nil, err
	}
	if indexed {
		for _, pk := range pks {
			ent, ok, err := deps.Entities.Get(q.Collection, pk)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if more, err := emit(ent); err != nil {
				return nil, err
			} else if !more {
				break
			}
		}
	} else {
		if err := deps.Entities.ScanCollection(q.Collection, emit); err != nil {
			return nil, err
		}
	}

	return produceRows(survivors, q)
}

// executeDisjunctive resolves an OR-of-equality-branches query. When
// every branch has a usable equality index it unions the per-branch
// index scans; when any branch doesn't, an indexed union would silently
// drop that branch's rows, so it falls back to a full collection scan
// and evaluates every branch as a post-filter OR instead — the same
// scan-when-unindexed contract executeConjunctive already honors.
func executeDisjunctive(ctx context.Context, q *types.Query, deps Deps) ([]map[string]Value, error) {
	allIndexed := len(q.Disjuncts) > 0
	for _, branch := range q.Disjuncts {
		if len(branch) == 0 || deps.SecIdx == nil || !deps.SecIdx.HasEquality(q.Collection, branch[0].Field) {
			allIndexed = false
			break
		}
	}

	var survivors []*EvalContext

	if allIndexed {
		seen := map[string]bool{}
		var pks []string
		for _, branch := range q.Disjuncts {
			lead := branch[0]
			branchPKs, err := deps.SecIdx.ScanKeysEqual(q.Collection, lead.Field, lead.Value)
			if err != nil {
				return nil, err
			}
			for _, pk := range branchPKs {
				if !seen[pk] {
					seen[pk] = true
					pks = append(pks, pk)
				}
			}
		}
		for _, pk := range pks {
			if err := checkCancel(ctx); err != nil {
				return nil, err
			}
			ent, ok, err := deps.Entities.Get(q.Collection, pk)
			if err != nil {
				return nil, err
			}
			if !ok || !matchesAnyDisjunct(ent, q.Disjuncts) {
				continue
			}
			rowCtx, keep, err := filterRow(ent, q, deps)
			if err != nil {
				return nil, err
			}
			if keep {
				survivors = append(survivors, rowCtx)
			}
		}
		return produceRows(survivors, q)
	}

	if err := deps.Entities.ScanCollection(q.Collection, func(e types.Entity) (bool, error) {
		if err := checkCancel(ctx); err != nil {
			return false, err
		}
		if !matchesAnyDisjunct(e, q.Disjuncts) {
			return true, nil
		}
		rowCtx, keep, err := filterRow(e, q, deps)
		if err != nil {
			return false, err
		}
		if keep {
			survivors = append(survivors, rowCtx)
		}
		return true, nil
	}); err != nil {
		return nil, err
	}
	return produceRows(survivors, q)
}

// matchesAnyDisjunct reports whether e satisfies at least one OR
// branch, every predicate within a branch ANDed together (spec
// §4.6.2's DNF shape).
func matchesAnyDisjunct(e types.Entity, disjuncts [][]types.Predicate) bool {
	for _, branch := range disjuncts {
		if matchesAllPredicates(e, branch) {
			return true
		}
	}
	return false
}

func matchesAllPredicates(e types.Entity, preds []types.Predicate) bool {
	for _, p := range preds {
		v := fieldValue(e, p.Field)
		match := Equal(v, FromInterface(p.Value))
		if p.Negated {
			match = !match
		}
		if !match {
			return false
		}
	}
	return true
}

// filterRow binds the row variable, applies LETs, and the query's
// remaining predicates/range bounds/post-filter. It returns the
// resulting scope without evaluating RETURN — COLLECT queries need the
// scope intact to group by, not a projected row.
func filterRow(e types.Entity, q *types.Query, deps Deps) (*EvalContext, bool, error) {
	rowVar := q.ReturnVar
	if rowVar == "" {
		rowVar = "__row__"
	}
	ctx := NewEvalContext(map[string]Value{rowVar: FromInterface(map[string]interface{}(e.Fields))}, deps.Funcs, deps.Subquery)

	for _, p := range q.Predicates {
		v := fieldValue(e, p.Field)
		match := Equal(v, FromInterface(p.Value))
		if p.Negated {
			match = !match
		}
		if !match {
			return nil, false, nil
		}
	}
	for _, rp := range q.RangePredicates {
		v := fieldValue(e, rp.Field)
		if rp.Lower != nil {
			cmp, ok := Compare(v, FromInterface(rp.Lower))
			if !ok || cmp < 0 || (cmp == 0 && !rp.IncludeLower) {
				return nil, false, nil
			}
		}
		if rp.Upper != nil {
			cmp, ok := Compare(v, FromInterface(rp.Upper))
			if !ok || cmp > 0 || (cmp == 0 && !rp.IncludeUpper) {
				return nil, false, nil
			}
		}
	}

	ctx, err := applyLets(ctx, q.Lets)
	if err != nil {
		return nil, false, err
	}

	if q.PostFilter != nil {
		pf, err := evalTypesExpr(q.PostFilter, ctx)
		if err != nil {
			return nil, false, err
		}
		if !pf.Truthy() {
			return nil, false, nil
		}
	}

	return ctx, true, nil
}

func applyLets(ctx *EvalContext, lets []types.LetBinding) (*EvalContext, error) {
	for _, l := range lets {
		v, err := evalTypesExpr(l.Expr, ctx)
		if err != nil {
			return nil, err
		}
		ctx = ctx.WithVar(l.Var, v)
	}
	return ctx, nil
}

// produceRows evaluates RETURN over every surviving scope, running the
// COLLECT/AGGREGATE group-by pass first when the query has one (spec
// §4.6.3), then applies ORDER BY/LIMIT.
func produceRows(ctxs []*EvalContext, q *types.Query) ([]map[string]Value, error) {
	if q.Collect != nil {
		rows, err := collectGroups(ctxs, q)
		if err != nil {
			return nil, err
		}
		return finalizeRows(rows, q)
	}
	rows := make([]map[string]Value, 0, len(ctxs))
	for _, c := range ctxs {
		ret, err := evalTypesExpr(q.Return, c)
		if err != nil {
			return nil, err
		}
		rows = append(rows, map[string]Value{"": ret})
	}
	return finalizeRows(rows, q)
}

// collectGroups implements COLLECT var = expr [AGGREGATE ...] [HAVING
// ...], grouping surviving scopes by GroupExpr's value, computing each
// aggregate over its group's member scopes, then evaluating HAVING and
// RETURN against a fresh scope carrying only the group var and
// aggregate vars (spec §4.6.3).
func collectGroups(ctxs []*EvalContext, q *types.Query) ([]map[string]Value, error) {
	cs := q.Collect
	type group struct {
		key     Value
		members []*EvalContext
	}
	order := make([]string, 0)
	groups := map[string]*group{}

	for _, c := range ctxs {
		var keyVal Value
		if cs.GroupExpr != nil {
			v, err := evalTypesExpr(cs.GroupExpr, c)
			if err != nil {
				return nil, err
			}
			keyVal = v
		}
		ks := keyVal.String()
		g, ok := groups[ks]
		if !ok {
			g = &group{key: keyVal}
			groups[ks] = g
			order = append(order, ks)
		}
		g.members = append(g.members, c)
	}

	var rows []map[string]Value
	for _, ks := range order {
		g := groups[ks]
		vars := map[string]Value{}
		if cs.GroupVar != "" {
			vars[cs.GroupVar] = g.key
		}
		for _, agg := range cs.Aggregates {
			v, err := computeAggregate(agg, g.members)
			if err != nil {
				return nil, err
			}
			vars[agg.Var] = v
		}
		var funcs FuncRegistry
		var sub SubqueryExecutor
		if len(g.members) > 0 {
			funcs, sub = g.members[0].funcs, g.members[0].subquery
		}
		groupCtx := NewEvalContext(vars, funcs, sub)

		if cs.Having != nil {
			keep, err := evalTypesExpr(cs.Having, groupCtx)
			if err != nil {
				return nil, err
			}
			if !keep.Truthy() {
				continue
			}
		}

		ret, err := evalTypesExpr(q.Return, groupCtx)
		if err != nil {
			return nil, err
		}
		rows = append(rows, map[string]Value{"": ret})
	}
	return rows, nil
}

func computeAggregate(agg types.AggregateSpec, members []*EvalContext) (Value, error) {
	switch agg.Func {
	case "COUNT":
		return IntVal(int64(len(members))), nil
	case "SUM", "AVG", "MIN", "MAX":
		var vals []Value
		for _, c := range members {
			if agg.Expr == nil {
				continue
			}
			v, err := evalTypesExpr(agg.Expr, c)
			if err != nil {
				return Null(), err
			}
			vals = append(vals, v)
		}
		return reduceNumeric(agg.Func, vals)
	default:
		return Null(), kverrs.InvalidArgument.New("unsupported aggregate function %q", agg.Func)
	}
}

func reduceNumeric(fn string, vals []Value) (Value, error) {
	if len(vals) == 0 {
		if fn == "SUM" {
			return IntVal(0), nil
		}
		return Null(), nil
	}
	switch fn {
	case "SUM", "AVG":
		var sum float64
		allInt := true
		for _, v := range vals {
			sum += v.asFloat()
			if v.kind != kindInt {
				allInt = false
			}
		}
		if fn == "AVG" {
			return DoubleVal(sum / float64(len(vals))), nil
		}
		if allInt {
			return IntVal(int64(sum)), nil
		}
		return DoubleVal(sum), nil
	case "MIN", "MAX":
		best := vals[0]
		for _, v := range vals[1:] {
			cmp, ok := Compare(v, best)
			if !ok {
				continue
			}
			if (fn == "MIN" && cmp < 0) || (fn == "MAX" && cmp > 0) {
				best = v
			}
		}
		return best, nil
	}
	return Null(), kverrs.Internal.New("unreachable aggregate function %q", fn)
}

func fieldValue(e types.Entity, path string) Value {
	return FromInterface(lookupPath(e.Fields, path))
}

func lookupPath(m map[string]interface{}, path string) interface{} {
	cur := interface{}(m)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			seg := path[start:i]
			obj, ok := cur.(map[string]interface{})
			if !ok {
				return nil
			}
			cur, ok = obj[seg]
			if !ok {
				return nil
			}
			start = i + 1
		}
	}
	return cur
}

// evalTypesExpr bridges the translate-time types.Expr wire form back
// to an evaluable query.Expr before delegating to Eval. Only the
// node shapes translate.go actually emits are handled.
func evalTypesExpr(e *types.Expr, ctx *EvalContext) (Value, error) {
	if e == nil {
		return Null(), nil
	}
	qe, err := fromTypesExpr(e)
	if err != nil {
		return Null(), err
	}
	return Eval(qe, ctx)
}

func fromTypesExpr(e *types.Expr) (Expr, error) {
	switch e.Kind {
	case types.ExprLiteral:
		return &LiteralExpr{Value: FromInterface(e.Literal)}, nil
	case types.ExprVariable:
		if e.Variable == "" {
			return &IdentExpr{Name: "__row__"}, nil
		}
		return &IdentExpr{Name: e.Variable}, nil
	case types.ExprField:
		var base Expr = &IdentExpr{Name: e.FieldBase}
		for _, f := range e.FieldPath {
			base = &MemberExpr{Base: base, Field: f}
		}
		return base, nil
	case types.ExprBinary:
		if e.Op == "." {
			base, err := fromTypesExpr(e.Left)
			if err != nil {
				return nil, err
			}
			field, _ := e.Right.Literal.(string)
			return &MemberExpr{Base: base, Field: field}, nil
		}
		if e.Op == "[]" {
			base, err := fromTypesExpr(e.Left)
			if err != nil {
				return nil, err
			}
			idx, err := fromTypesExpr(e.Right)
			if err != nil {
				return nil, err
			}
			return &IndexExpr{Base: base, Index: idx}, nil
		}
		l, err := fromTypesExpr(e.Left)
		if err != nil {
			return nil, err
		}
		r, err := fromTypesExpr(e.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: e.Op, L: l, R: r}, nil
	case types.ExprUnary:
		x, err := fromTypesExpr(e.Operand)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: e.UnaryOp, X: x}, nil
	case types.ExprCall:
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			v, err := fromTypesExpr(a)
			if err != nil {
				return nil, err
			}
			args[i] = v
		}
		return &FuncCallExpr{Name: e.Func, Args: args}, nil
	case types.ExprArray:
		elems := make([]Expr, len(e.Elements))
		for i, el := range e.Elements {
			v, err := fromTypesExpr(el)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return &ArrayExpr{Elems: elems}, nil
	case types.ExprObject:
		fields := make(map[string]Expr, len(e.ObjectKV))
		order := make([]string, 0, len(e.ObjectKV))
		for k, v := range e.ObjectKV {
			qv, err := fromTypesExpr(v)
			if err != nil {
				return nil, err
			}
			fields[k] = qv
			order = append(order, k)
		}
		return &ObjectExpr{Fields: fields, Order: order}, nil
	case types.ExprSubquery:
		return &LiteralExpr{Value: StringVal(e.SubqueryText)}, nil
	}
	return nil, kverrs.Internal.New("unhandled wire expression kind %q", e.Kind)
}

func finalizeRows(rows []map[string]Value, q *types.Query) ([]map[string]Value, error) {
	if q.OrderBy != nil {
		SortValues(rows, func(r map[string]Value) Value { return r[""] }, q.OrderBy.Descending)
	}
	if q.Limit != nil && q.Limit.Set {
		start := q.Limit.Offset
		if start > len(rows) {
			start = len(rows)
		}
		end := start + q.Limit.Count
		if q.Limit.Count <= 0 || end > len(rows) {
			end = len(rows)
		}
		rows = rows[start:end]
	}
	return rows, nil
}

func executeJoin(ctx context.Context, q *types.Query, deps Deps) ([]map[string]Value, *JoinMetrics, error) {
	left, right := q.ForNodes[0], q.ForNodes[1]

	var leftRows, rightRows []types.Entity
	if err := deps.Entities.ScanCollection(left.Collection, func(e types.Entity) (bool, error) {
		leftRows = append(leftRows, e)
		return true, nil
	}); err != nil {
		return nil, nil, err
	}
	if err := deps.Entities.ScanCollection(right.Collection, func(e types.Entity) (bool, error) {
		rightRows = append(rightRows, e)
		return true, nil
	}); err != nil {
		return nil, nil, err
	}

	leftField, rightField, hashable := joinEqualityFields(q.JoinFilter, left.Var, right.Var)
	metrics := &JoinMetrics{}

	var survivors []*EvalContext
	earlyOutLimit := -1
	if q.Collect == nil && q.OrderBy == nil && q.Limit != nil && q.Limit.Set {
		earlyOutLimit = q.Limit.Offset + q.Limit.Count
	}

	emitPair := func(l, r types.Entity) (bool, error) {
		if err := checkCancel(ctx); err != nil {
			return false, err
		}
		pairCtx, keep, err := filterJoinPair(l, r, left.Var, right.Var, q, deps)
		if err != nil {
			return false, err
		}
		if keep {
			survivors = append(survivors, pairCtx)
			metrics.PairsEmitted++
			if earlyOutLimit > 0 && len(survivors) >= earlyOutLimit {
				metrics.EarlyOut = true
				return false, nil
			}
		}
		return true, nil
	}

	if hashable {
		build := map[interface{}][]types.Entity{}
		buildSide, probeSide, buildVar := rightRows, leftRows, right.Var
		buildField, probeField := rightField, leftField
		if len(leftRows) <= len(rightRows) {
			buildSide, probeSide, buildVar = leftRows, rightRows, left.Var
			buildField, probeField = leftField, rightField
		}
		metrics.BuildSide = buildVar
		for _, e := range buildSide {
			key := lookupPath(e.Fields, buildField)
			build[key] = append(build[key], e)
		}
	probeLoop:
		for _, probe := range probeSide {
			metrics.ProbesEvaluated++
			key := lookupPath(probe.Fields, probeField)
			for _, match := range build[key] {
				var l, r types.Entity
				if buildVar == left.Var {
					l, r = match, probe
				} else {
					l, r = probe, match
				}
				more, err := emitPair(l, r)
				if err != nil {
					return nil, nil, err
				}
				if !more {
					break probeLoop
				}
			}
		}
	} else {
	outerLoop:
		for _, l := range leftRows {
			for _, r := range rightRows {
				metrics.ProbesEvaluated++
				more, err := emitPair(l, r)
				if err != nil {
					return nil, nil, err
				}
				if !more {
					break outerLoop
				}
			}
		}
	}

	rows, err := produceRows(survivors, q)
	return rows, metrics, err
}

// joinEqualityFields recognizes a `leftVar.path == rightVar.path`
// equality join condition (or the mirrored `rightVar.path ==
// leftVar.path`), returning the field path to read from each side
// independently — unlike a same-name check, this lets `FOR o IN orders
// FOR u IN users FILTER o.user_id == u._key` hash-join even though the
// two sides name different fields.
func joinEqualityFields(filter *types.Expr, leftVar, rightVar string) (leftField, rightField string, ok bool) {
	if filter == nil || filter.Kind != types.ExprBinary || filter.Op != "==" {
		return "", "", false
	}
	if lf, lok := fieldOfVar(filter.Left, leftVar); lok {
		if rf, rok := fieldOfVar(filter.Right, rightVar); rok {
			return lf, rf, true
		}
	}
	if lf, lok := fieldOfVar(filter.Left, rightVar); lok {
		if rf, rok := fieldOfVar(filter.Right, leftVar); rok {
			return rf, lf, true
		}
	}
	return "", "", false
}

// fieldOfVar returns e's field path when e is a field reference rooted
// at wantVar, e.g. fieldOfVar(u._key, "u") -> ("_key", true).
func fieldOfVar(e *types.Expr, wantVar string) (string, bool) {
	if e == nil || e.Kind != types.ExprField || e.FieldBase != wantVar {
		return "", false
	}
	path := ""
	for i, f := range e.FieldPath {
		if i > 0 {
			path += "."
		}
		path += f
	}
	return path, true
}

// filterJoinPair binds both join variables, applies the join and
// one-sided filters plus LETs, and returns the resulting scope without
// evaluating RETURN — mirrors filterRow's deferred-projection shape so
// both feed the same produceRows/COLLECT path.
func filterJoinPair(l, r types.Entity, leftVar, rightVar string, q *types.Query, deps Deps) (*EvalContext, bool, error) {
	vars := map[string]Value{
		leftVar:  FromInterface(map[string]interface{}(l.Fields)),
		rightVar: FromInterface(map[string]interface{}(r.Fields)),
	}
	ctx := NewEvalContext(vars, deps.Funcs, deps.Subquery)

	for _, os := range q.OneSided {
		v, err := evalTypesExpr(os, ctx)
		if err != nil {
			return nil, false, err
		}
		if !v.Truthy() {
			return nil, false, nil
		}
	}
	if q.JoinFilter != nil {
		v, err := evalTypesExpr(q.JoinFilter, ctx)
		if err != nil {
			return nil, false, err
		}
		if !v.Truthy() {
			return nil, false, nil
		}
	}

	ctx, err := applyLets(ctx, q.Lets)
	if err != nil {
		return nil, false, err
	}
	return ctx, true, nil
}

func executeTraversal(ctx context.Context, q *types.Query, deps Deps) ([]map[string]Value, *TraversalMetrics, error) {
	metrics := &TraversalMetrics{}
	visited := map[string]bool{q.StartPK: true}
	frontier := []string{q.StartPK}

	type hit struct {
		vertex string
		depth  int
	}
	var hits []hit
	if q.MinDepth <= 0 {
		hits = append(hits, hit{vertex: q.StartPK, depth: 0})
	}

	for depth := 1; depth <= q.MaxDepth && len(frontier) > 0; depth++ {
		if err := checkCancel(ctx); err != nil {
			return nil, nil, err
		}
		var next []string
		for _, v := range frontier {
			edges, err := deps.Graph.Neighbors(q.Graph, v, q.TravDir)
			if err != nil {
				return nil, nil, err
			}
			metrics.EdgesExpanded += len(edges)
			for _, e := range edges {
				other := e.To
				if q.TravDir == types.DirIn {
					other = e.From
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				next = append(next, other)
			}
		}
		metrics.FrontierProcessedPerDepth = append(metrics.FrontierProcessedPerDepth, len(next))
		if depth >= q.MinDepth {
			for _, v := range next {
				hits = append(hits, hit{vertex: v, depth: depth})
			}
		}
		if depth == q.MaxDepth {
			metrics.PrunedLastLevel = len(next)
		}
		frontier = next
	}

	var rows []map[string]Value
	for _, h := range hits {
		ent, ok, err := deps.Entities.Get(vertexCollection(h.vertex), h.vertex)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			continue
		}
		vars := map[string]Value{q.VarVertex: FromInterface(map[string]interface{}(ent.Fields))}
		c := NewEvalContext(vars, deps.Funcs, deps.Subquery)

		keep := true
		for _, os := range q.OneSided {
			v, err := evalTypesExpr(os, c)
			if err != nil {
				return nil, nil, err
			}
			if !v.Truthy() {
				keep = false
				metrics.FilterShortCircuits++
				break
			}
		}
		if !keep {
			continue
		}
		ret, err := evalTypesExpr(q.Return, c)
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, map[string]Value{"": ret})
	}

	if q.Limit != nil && q.Limit.Set {
		start := q.Limit.Offset
		if start > len(rows) {
			start = len(rows)
		}
		end := start + q.Limit.Count
		if q.Limit.Count <= 0 || end > len(rows) {
			end = len(rows)
		}
		rows = rows[start:end]
	}

	return rows, metrics, nil
}

// executeVectorGeo runs a VECTOR_SEARCH probe, then applies GeoExpr as
// a post-filter over each candidate before projecting RETURN (spec
// §4.6.1 shape 5). Candidates arrive from the HNSW index pre-sorted by
// distance; GeoExpr filtering never reorders them.
func executeVectorGeo(ctx context.Context, q *types.Query, deps Deps) ([]map[string]Value, error) {
	if deps.VectorIdx == nil {
		return nil, kverrs.InvalidArgument.New("no vector index configured for VECTOR_SEARCH")
	}
	qv := make([]float32, len(q.VectorQuery))
	for i, f := range q.VectorQuery {
		qv[i] = float32(f)
	}
	hits, err := deps.VectorIdx.SearchKNN(q.Collection, qv, q.TopK, nil)
	if err != nil {
		return nil, err
	}

	varName := q.ReturnVar
	if varName == "" {
		varName = "__row__"
	}

	var rows []map[string]Value
	for _, h := range hits {
		if err := checkCancel(ctx); err != nil {
			return nil, err
		}
		ent, ok, err := deps.Entities.Get(q.Collection, h.PK)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		vars := map[string]Value{varName: FromInterface(map[string]interface{}(ent.Fields))}
		c := NewEvalContext(vars, deps.Funcs, deps.Subquery)

		if q.GeoExpr != nil {
			keep, err := evalTypesExpr(q.GeoExpr, c)
			if err != nil {
				return nil, err
			}
			if !keep.Truthy() {
				continue
			}
		}
		ret, err := evalTypesExpr(q.Return, c)
		if err != nil {
			return nil, err
		}
		rows = append(rows, map[string]Value{"": ret})
	}
	return finalizeRows(rows, q)
}

// vertexCollection extracts the collection name from a PK formatted
// "collection:uuid" (types.Key), the convention entities are keyed by.
func vertexCollection(pk string) string {
	for i := 0; i < len(pk); i++ {
		if pk[i] == ':' {
			return pk[:i]
		}
	}
	return pk
}
