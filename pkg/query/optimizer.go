package query

import (
	"sort"

	"github.com/cuemby/warrendb/pkg/types"
)

// SecIndex is the narrow slice of pkg/secindex.Manager the optimizer
// and executor need — kept as an interface here so pkg/query never
// imports pkg/secindex directly (pkg/engine wires the concrete type in,
// the same seam pattern as EvalContext.subquery).
type SecIndex interface {
	HasEquality(collection, column string) bool
	HasRange(collection, column string) bool
	ScanKeysEqual(collection, column string, value interface{}) ([]string, error)
	ScanKeysRange(collection, column string, lower, upper interface{}, includeLower, includeUpper bool, limit int, descending bool) ([]string, error)
	EstimateCountEqual(collection, column string, value interface{}, cap int) (types.Estimation, error)
}

const defaultMaxProbe = 1000

// Optimize orders q's equality predicates by sampled cardinality and
// picks an execution mode for `explain` (spec §4.6.2). It mutates
// q.Predicates in place (cheapest first) and returns the chosen Plan.
func Optimize(q *types.Query, idx SecIndex, maxProbe int, allowFullScan bool) *types.Plan {
	if maxProbe <= 0 {
		maxProbe = defaultMaxProbe
	}

	switch q.Kind {
	case types.QueryConjunctive:
		return optimizeConjunctive(q, idx, maxProbe, allowFullScan)
	case types.QueryDisjunctive:
		return &types.Plan{Mode: types.ModeIndexOptimized}
	case types.QueryJoin:
		return &types.Plan{Mode: types.ModeIndexOptimized}
	case types.QueryTraversal:
		return &types.Plan{Mode: types.ModeIndexOptimized}
	default:
		return &types.Plan{Mode: types.ModeIndexOptimized}
	}
}

func optimizeConjunctive(q *types.Query, idx SecIndex, maxProbe int, allowFullScan bool) *types.Plan {
	if len(q.Predicates) == 0 {
		if len(q.RangePredicates) > 0 && idx != nil && idx.HasRange(q.Collection, q.RangePredicates[0].Field) {
			mode := types.ModeIndexOptimized
			if q.OrderBy != nil && q.OrderBy.Field == q.RangePredicates[0].Field {
				mode = types.ModeIndexRangeAware
			}
			return &types.Plan{Mode: mode, LeadField: q.RangePredicates[0].Field}
		}
		if !allowFullScan {
			return &types.Plan{Mode: types.ModeFullScanFallback}
		}
		return &types.Plan{Mode: types.ModeFullScanFallback}
	}

	type sampled struct {
		pred types.Predicate
		est  types.Estimation
		idx  int
	}
	samples := make([]sampled, 0, len(q.Predicates))
	for i, p := range q.Predicates {
		if p.Negated || idx == nil || !idx.HasEquality(q.Collection, p.Field) {
			samples = append(samples, sampled{pred: p, est: types.Estimation{Count: maxProbe, Capped: true}, idx: i})
			continue
		}
		est, err := idx.EstimateCountEqual(q.Collection, p.Field, p.Value, maxProbe)
		if err != nil {
			est = types.Estimation{Count: maxProbe, Capped: true}
		}
		samples = append(samples, sampled{pred: p, est: est, idx: i})
	}

	estimations := make([]types.FieldEstimation, len(samples))
	for i, s := range samples {
		estimations[i] = types.FieldEstimation{Field: s.pred.Field, Est: s.est}
	}

	sort.SliceStable(samples, func(i, j int) bool {
		if samples[i].est.Capped != samples[j].est.Capped {
			return !samples[i].est.Capped
		}
		return samples[i].est.Count < samples[j].est.Count
	})

	ordered := make([]types.Predicate, len(samples))
	for i, s := range samples {
		ordered[i] = s.pred
	}
	q.Predicates = ordered

	mode := types.ModeIndexOptimized
	leadField := ordered[0].Field
	if q.OrderBy != nil && q.OrderBy.Field == leadField {
		mode = types.ModeIndexRangeAware
	} else if len(ordered) > 1 {
		allCheap := true
		for _, s := range samples {
			if s.est.Capped {
				allCheap = false
				break
			}
		}
		if allCheap {
			mode = types.ModeIndexParallel
		}
	}
	if idx == nil || !idx.HasEquality(q.Collection, leadField) {
		if !allowFullScan {
			mode = types.ModeFullScanFallback
		} else {
			mode = types.ModeFullScanFallback
		}
	}

	return &types.Plan{Mode: mode, LeadField: leadField, Estimations: estimations}
}
