package timeseries

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/log"
	"github.com/cuemby/warrendb/pkg/types"
)

const (
	nsRaw   = "ts:"
	nsChunk = "tsc:"
)

// Store is the time-series store (spec §4.4), layered over pkg/kv.
type Store struct {
	store kv.Store
}

// New builds a Store over an already-open kv.Store.
func New(store kv.Store) *Store {
	return &Store{store: store}
}

func padTS(ts int64) string { return fmt.Sprintf("%020d", ts) }

func rawKey(metric, entity string, ts int64) []byte {
	return []byte(nsRaw + metric + ":" + entity + ":" + padTS(ts))
}

func rawPrefix(metric, entity string) []byte {
	if entity == "" {
		return []byte(nsRaw + metric + ":")
	}
	return []byte(nsRaw + metric + ":" + entity + ":")
}

func chunkKey(metric, entity string, first, last int64) []byte {
	return []byte(nsChunk + metric + ":" + entity + ":" + padTS(first) + ":" + padTS(last))
}

func chunkPrefix(metric, entity string) []byte {
	if entity == "" {
		return []byte(nsChunk + metric + ":")
	}
	return []byte(nsChunk + metric + ":" + entity + ":")
}

// parseChunkKey extracts metric and entity from a tsc: key, assuming
// neither contains a ':' (the same assumption the raw key layout makes).
func parseChunkKey(k []byte) (metric, entity string, ok bool) {
	s := string(k)
	s = strings.TrimPrefix(s, nsChunk)
	// trailing ":first(20):last(20)"
	const tsWidth = 20
	suffixLen := 1 + tsWidth + 1 + tsWidth
	if len(s) <= suffixLen {
		return "", "", false
	}
	s = s[:len(s)-suffixLen]
	idx := strings.Index(s, ":")
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}

type chunkValue struct {
	Compression string            `json:"compression"`
	Count       int               `json:"count"`
	Tags        map[string]string `json:"tags,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Data        []byte            `json:"data"`
}

// PutPoint writes a single raw row (spec §4.4 "write path").
func (s *Store) PutPoint(p types.Point) error {
	if p.Metric == "" || p.Entity == "" {
		return kverrs.InvalidArgument.New("metric and entity are required")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return kverrs.Internal.Wrap(err)
	}
	return s.store.Put(rawKey(p.Metric, p.Entity, p.Timestamp), data)
}

// PutPoints groups batch by (metric, entity), sorts each group by
// timestamp ascending, and writes either raw rows or one Gorilla chunk
// per group depending on compression (spec §4.4 "write path").
func (s *Store) PutPoints(batch []types.Point, compression string) error {
	type groupKey struct{ metric, entity string }
	groups := make(map[groupKey][]types.Point)
	for _, p := range batch {
		if p.Metric == "" || p.Entity == "" {
			return kverrs.InvalidArgument.New("metric and entity are required")
		}
		gk := groupKey{p.Metric, p.Entity}
		groups[gk] = append(groups[gk], p)
	}

	var ops []kv.Op
	for gk, points := range groups {
		sort.Slice(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

		if compression != "gorilla" {
			for _, p := range points {
				data, err := json.Marshal(p)
				if err != nil {
					return kverrs.Internal.Wrap(err)
				}
				ops = append(ops, kv.PutOp(rawKey(gk.metric, gk.entity, p.Timestamp), data))
			}
			continue
		}

		samples := make([]gorillaSample, len(points))
		for i, p := range points {
			samples[i] = gorillaSample{TS: p.Timestamp, Value: p.Value}
		}
		encoded := encodeGorilla(samples)
		cv := chunkValue{
			Compression: "gorilla",
			Count:       len(points),
			Tags:        points[0].Tags,
			Metadata:    points[0].Metadata,
			Data:        encoded,
		}
		data, err := json.Marshal(cv)
		if err != nil {
			return kverrs.Internal.Wrap(err)
		}
		first, last := points[0].Timestamp, points[len(points)-1].Timestamp
		ops = append(ops, kv.PutOp(chunkKey(gk.metric, gk.entity, first, last), data))
	}
	if len(ops) == 0 {
		return nil
	}
	return s.store.WriteBatch(ops)
}

func matchesTags(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Query scans raw and chunked rows within [From,To], merges, sorts by
// timestamp ascending, and applies Limit (spec §4.4 "read path").
func (s *Store) Query(opts types.TSQueryOptions) ([]types.Point, error) {
	if opts.Metric == "" {
		return nil, kverrs.InvalidArgument.New("metric is required")
	}
	var out []types.Point

	if err := s.store.ScanPrefix(rawPrefix(opts.Metric, opts.Entity), func(_, v []byte) bool {
		var p types.Point
		if err := json.Unmarshal(v, &p); err != nil {
			log.WithComponent("timeseries").Warn().Err(err).Msg("skipping malformed raw point")
			return true
		}
		if p.Timestamp >= opts.From && p.Timestamp <= opts.To && matchesTags(p.Tags, opts.Tags) {
			out = append(out, p)
		}
		return true
	}); err != nil {
		return nil, err
	}

	if err := s.store.ScanPrefix(chunkPrefix(opts.Metric, opts.Entity), func(k, v []byte) bool {
		var cv chunkValue
		if err := json.Unmarshal(v, &cv); err != nil {
			log.WithComponent("timeseries").Warn().Err(err).Msg("skipping malformed chunk")
			return true
		}
		_, entity, ok := parseChunkKey(k)
		if !ok {
			entity = opts.Entity
		}
		samples, err := decodeGorilla(cv.Data, cv.Count)
		if err != nil {
			log.WithComponent("timeseries").Warn().Err(err).Msg("skipping undecodable chunk")
			return true
		}
		if !matchesTags(cv.Tags, opts.Tags) {
			return true
		}
		for _, sm := range samples {
			if sm.TS >= opts.From && sm.TS <= opts.To {
				out = append(out, types.Point{
					Metric: opts.Metric, Entity: entity, Timestamp: sm.TS, Value: sm.Value,
					Tags: cv.Tags, Metadata: cv.Metadata,
				})
			}
		}
		return true
	}); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Aggregate reuses Query and reduces the result (spec §4.4).
func (s *Store) Aggregate(opts types.TSQueryOptions) (types.Aggregate, error) {
	points, err := s.Query(opts)
	if err != nil {
		return types.Aggregate{}, err
	}
	return reduce(points), nil
}

func reduce(points []types.Point) types.Aggregate {
	if len(points) == 0 {
		return types.Aggregate{}
	}
	agg := types.Aggregate{Min: points[0].Value, Max: points[0].Value, FirstTS: points[0].Timestamp, LastTS: points[0].Timestamp}
	for _, p := range points {
		if p.Value < agg.Min {
			agg.Min = p.Value
		}
		if p.Value > agg.Max {
			agg.Max = p.Value
		}
		agg.Sum += p.Value
		agg.Count++
		if p.Timestamp < agg.FirstTS {
			agg.FirstTS = p.Timestamp
		}
		if p.Timestamp > agg.LastTS {
			agg.LastTS = p.Timestamp
		}
	}
	agg.Avg = agg.Sum / float64(agg.Count)
	return agg
}

// DeleteOld removes every point/chunk across all metrics whose last
// timestamp is strictly less than cutoffMs (spec §4.4 "retention").
// Chunks are removed atomically as a whole (never partially).
func (s *Store) DeleteOld(cutoffMs int64) error {
	return s.deleteOld("", cutoffMs)
}

// DeleteOldForMetric scopes DeleteOld to one metric.
func (s *Store) DeleteOldForMetric(metric string, cutoffMs int64) error {
	if metric == "" {
		return kverrs.InvalidArgument.New("metric is required")
	}
	return s.deleteOld(metric, cutoffMs)
}

func (s *Store) deleteOld(metric string, cutoffMs int64) error {
	rawNS := []byte(nsRaw)
	chunkNS := []byte(nsChunk)
	if metric != "" {
		rawNS = []byte(nsRaw + metric + ":")
		chunkNS = []byte(nsChunk + metric + ":")
	}

	var ops []kv.Op
	if err := s.store.ScanPrefix(rawNS, func(k, v []byte) bool {
		var p types.Point
		if err := json.Unmarshal(v, &p); err != nil {
			return true
		}
		if p.Timestamp < cutoffMs {
			ops = append(ops, kv.DeleteOp(append([]byte(nil), k...)))
		}
		return true
	}); err != nil {
		return err
	}
	if err := s.store.ScanPrefix(chunkNS, func(k, v []byte) bool {
		var cv chunkValue
		if err := json.Unmarshal(v, &cv); err != nil {
			return true
		}
		samples, err := decodeGorilla(cv.Data, cv.Count)
		if err != nil || len(samples) == 0 {
			return true
		}
		last := samples[len(samples)-1].TS
		if last < cutoffMs {
			ops = append(ops, kv.DeleteOp(append([]byte(nil), k...)))
		}
		return true
	}); err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return s.store.WriteBatch(ops)
}

// ContinuousAggregate computes per-window {min,max,sum,count,avg} over
// [from,to] for metric/entity and writes one synthetic point per window,
// at the window's end, into the derived metric
// "{metric}__agg_{windowMs}ms" (spec §4.4).
func (s *Store) ContinuousAggregate(metric, entity string, from, to, windowMs int64) error {
	if windowMs <= 0 {
		return kverrs.InvalidArgument.New("window must be positive")
	}
	points, err := s.Query(types.TSQueryOptions{Metric: metric, Entity: entity, From: from, To: to})
	if err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	derived := fmt.Sprintf("%s__agg_%dms", metric, windowMs)
	buckets := make(map[int64][]types.Point)
	for _, p := range points {
		windowEnd := ((p.Timestamp / windowMs) + 1) * windowMs
		buckets[windowEnd] = append(buckets[windowEnd], p)
	}

	var out []types.Point
	for windowEnd, bucket := range buckets {
		agg := reduce(bucket)
		out = append(out, types.Point{
			Metric:    derived,
			Entity:    entity,
			Timestamp: windowEnd,
			Value:     agg.Avg,
			Metadata: map[string]string{
				"min":   fmt.Sprintf("%g", agg.Min),
				"max":   fmt.Sprintf("%g", agg.Max),
				"sum":   fmt.Sprintf("%g", agg.Sum),
				"count": fmt.Sprintf("%d", agg.Count),
			},
		})
	}
	return s.PutPoints(out, "none")
}
