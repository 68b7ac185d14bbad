// Package engine wires the KV backbone and every derived index into
// the single facade the outside world talks to (spec §6): execute,
// upsert, delete, create_index/drop_index, vector_init/vector_search,
// ts_put/ts_query/ts_aggregate, cdc_list, checkpoint/restore.
package engine

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/cuemby/warrendb/pkg/cdc"
	"github.com/cuemby/warrendb/pkg/cursor"
	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/events"
	"github.com/cuemby/warrendb/pkg/graphindex"
	"github.com/cuemby/warrendb/pkg/health"
	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/log"
	"github.com/cuemby/warrendb/pkg/query"
	"github.com/cuemby/warrendb/pkg/saga"
	"github.com/cuemby/warrendb/pkg/secindex"
	"github.com/cuemby/warrendb/pkg/timeseries"
	"github.com/cuemby/warrendb/pkg/types"
	"github.com/cuemby/warrendb/pkg/vectorindex"
)

// Config holds every knob Engine.New needs to assemble the storage
// backbone and the query layer's tuning parameters (spec §6's
// "Configuration" enumeration, `storage.*`/`query.*` subset).
type Config struct {
	StorePath        string
	MaxSampleProbe   int
	AllowFullScanDef bool
	CTEBudgetBytes   int64
}

// Engine owns the KV backbone and every derived index manager, and is
// the sole entry point mutations and queries pass through (spec §2
// "Mutations flow bottom-up through the SAGA coordinator").
type Engine struct {
	store    kv.Store
	storeCfg kv.Config
	entities *entityStore
	secIdx   *secindex.Manager
	vecIdx   *vectorindex.Manager
	graphIdx *graphindex.Manager
	cdcLog   *cdc.Log
	ts       *timeseries.Store
	funcs    query.FuncRegistry
	events   *events.Broker

	maxProbe      int
	allowFullScan bool
	cteBudget     int64
}

// Events returns the engine's event broker. Callers Subscribe to it to
// observe entity, index, vector, and checkpoint lifecycle events as
// they happen, without polling the CDC log.
func (e *Engine) Events() *events.Broker {
	return e.events
}

// New opens the store at cfg.StorePath and builds every index manager
// over it.
func New(cfg Config) (*Engine, error) {
	storeCfg := kv.DefaultConfig(cfg.StorePath)
	store, err := kv.Open(storeCfg)
	if err != nil {
		return nil, err
	}
	secIdx, err := secindex.New(store)
	if err != nil {
		return nil, err
	}
	maxProbe := cfg.MaxSampleProbe
	if maxProbe <= 0 {
		maxProbe = 1000
	}
	broker := events.NewBroker()
	broker.Start()
	e := &Engine{
		store:         store,
		storeCfg:      storeCfg,
		entities:      newEntityStore(store),
		secIdx:        secIdx,
		vecIdx:        vectorindex.NewManager(),
		graphIdx:      graphindex.New(store),
		cdcLog:        cdc.New(store),
		ts:            timeseries.New(store),
		funcs:         query.DefaultFuncRegistry(),
		events:        broker,
		maxProbe:      maxProbe,
		allowFullScan: cfg.AllowFullScanDef,
		cteBudget:     cfg.CTEBudgetBytes,
	}
	return e, nil
}

// Close releases the underlying store's file handles and stops the
// event broker.
func (e *Engine) Close() error {
	e.events.Stop()
	return e.store.Close()
}

// publish fires an event on the engine's broker without blocking the
// caller if nobody is subscribed.
func (e *Engine) publish(typ events.EventType, message string) {
	e.events.Publish(&events.Event{Type: typ, Message: message})
}

func (e *Engine) hasVector(collection string) bool {
	for _, c := range e.vecIdx.Collections() {
		if c == collection {
			return true
		}
	}
	return false
}

func nowMs() int64 { return time.Now().UnixMilli() }

// Upsert creates or replaces collection's entity at pk (spec §6
// `upsert`). Entity write, secondary index update, and optional vector
// index update run under a SAGA: the entity+CDC write is one atomic KV
// batch, then each derived index updates in turn with a compensation
// registered for rollback on any later failure. Note the CDC event
// itself is never retracted by compensation — it remains an honest
// record that a write was attempted and then undone, the same way an
// audit log isn't rewritten after the fact.
func (e *Engine) Upsert(collection, pk string, fields map[string]interface{}) (types.Entity, types.ChangeEvent, error) {
	if pk == "" {
		pk = uuid.NewString()
	}
	old, hadOld, err := e.entities.get(collection, pk)
	if err != nil {
		return types.Entity{}, types.ChangeEvent{}, err
	}
	newEntity := types.Entity{PK: pk, Collection: collection, Fields: fields}

	value, err := encodeEntityValue(fields)
	if err != nil {
		return types.Entity{}, types.ChangeEvent{}, err
	}
	event := types.ChangeEvent{
		Type:      types.ChangePut,
		Key:       types.Key(collection, pk),
		Value:     fields,
		WallClock: nowMs(),
	}
	recorded, err := e.cdcLog.Record(event, kv.PutOp(entityKey(collection, pk), value))
	if err != nil {
		return types.Entity{}, types.ChangeEvent{}, err
	}

	coord := saga.New()
	coord.AddStep("store", saga.CaptureOldValue(old.Fields, hadOld, func(v interface{}) error {
		b, err := encodeEntityValue(v.(map[string]interface{}))
		if err != nil {
			return err
		}
		return e.store.Put(entityKey(collection, pk), b)
	}, func() error {
		return e.store.Delete(entityKey(collection, pk))
	}))

	if err := e.secIdx.Put(newEntity); err != nil {
		_ = coord.Compensate()
		return types.Entity{}, types.ChangeEvent{}, err
	}
	coord.AddStep("secindex", saga.CaptureOldValue(old, hadOld, func(v interface{}) error {
		return e.secIdx.Put(v.(types.Entity))
	}, func() error {
		return e.secIdx.Erase(newEntity)
	}))

	if e.hasVector(collection) {
		if err := e.vecIdx.AddEntity(collection, newEntity); err != nil {
			_ = coord.Compensate()
			return types.Entity{}, types.ChangeEvent{}, err
		}
		coord.AddStep("vectorindex", saga.CaptureOldValue(old, hadOld, func(v interface{}) error {
			return e.vecIdx.AddEntity(collection, v.(types.Entity))
		}, func() error {
			return e.vecIdx.RemoveByPK(collection, pk)
		}))
	}

	coord.Commit()
	e.publish(events.EventEntityUpserted, types.Key(collection, pk))
	return newEntity, recorded, nil
}

// Delete destroys collection's entity at pk, emitting a DELETE event
// and removing every derived index entry in the same SAGA (spec §6
// `delete`, §4.7's "destroyed by delete" lifecycle note).
func (e *Engine) Delete(collection, pk string) (types.ChangeEvent, error) {
	old, hadOld, err := e.entities.get(collection, pk)
	if err != nil {
		return types.ChangeEvent{}, err
	}
	if !hadOld {
		return types.ChangeEvent{}, kverrs.NotFound.New("no entity %q in collection %q", pk, collection)
	}

	event := types.ChangeEvent{
		Type:      types.ChangeDelete,
		Key:       types.Key(collection, pk),
		WallClock: nowMs(),
	}
	recorded, err := e.cdcLog.Record(event, kv.DeleteOp(entityKey(collection, pk)))
	if err != nil {
		return types.ChangeEvent{}, err
	}

	coord := saga.New()
	coord.AddStep("store", func() error {
		b, err := encodeEntityValue(old.Fields)
		if err != nil {
			return err
		}
		return e.store.Put(entityKey(collection, pk), b)
	})

	if err := e.secIdx.Erase(old); err != nil {
		_ = coord.Compensate()
		return types.ChangeEvent{}, err
	}
	coord.AddStep("secindex", func() error { return e.secIdx.Put(old) })

	if e.hasVector(collection) {
		if err := e.vecIdx.RemoveByPK(collection, pk); err != nil {
			_ = coord.Compensate()
			return types.ChangeEvent{}, err
		}
		coord.AddStep("vectorindex", func() error { return e.vecIdx.AddEntity(collection, old) })
	}

	coord.Commit()
	e.publish(events.EventEntityDeleted, types.Key(collection, pk))
	return recorded, nil
}

// CreateIndex builds a new secondary index (spec §6 `create_index`).
func (e *Engine) CreateIndex(kind types.IndexKind, collection string, columns []string) error {
	var err error
	switch kind {
	case types.IndexEquality:
		if len(columns) != 1 {
			return kverrs.InvalidArgument.New("equality index requires exactly one column")
		}
		err = e.secIdx.CreateEquality(collection, columns[0])
	case types.IndexRange:
		if len(columns) != 1 {
			return kverrs.InvalidArgument.New("range index requires exactly one column")
		}
		err = e.secIdx.CreateRange(collection, columns[0])
	case types.IndexComposite:
		err = e.secIdx.CreateComposite(collection, columns)
	default:
		return kverrs.InvalidArgument.New("unsupported index kind %q for create_index", kind)
	}
	if err == nil {
		e.publish(events.EventIndexCreated, collection)
	}
	return err
}

// DropIndex removes a previously created secondary index (spec §6
// `drop_index`).
func (e *Engine) DropIndex(kind types.IndexKind, collection string, columns []string) error {
	var err error
	switch kind {
	case types.IndexEquality:
		if len(columns) != 1 {
			return kverrs.InvalidArgument.New("equality index requires exactly one column")
		}
		err = e.secIdx.DropEquality(collection, columns[0])
	case types.IndexRange:
		if len(columns) != 1 {
			return kverrs.InvalidArgument.New("range index requires exactly one column")
		}
		err = e.secIdx.DropRange(collection, columns[0])
	case types.IndexComposite:
		err = e.secIdx.DropComposite(collection, columns)
	default:
		return kverrs.InvalidArgument.New("unsupported index kind %q for drop_index", kind)
	}
	if err == nil {
		e.publish(events.EventIndexDropped, collection)
	}
	return err
}

// RebuildIndex reinserts collection's entire extent through every
// already-registered secondary index (and its vector index, if any),
// used by the reconciler to repair a drifted index without dropping and
// recreating its descriptor. Existing index entries are not dropped
// first: entries missing for an entity are written back, but an entry
// left over for a value the entity no longer holds stays in place.
func (e *Engine) RebuildIndex(collection string) error {
	var rebuildErr error
	err := e.entities.ScanCollection(collection, func(ent types.Entity) (bool, error) {
		if err := e.secIdx.Put(ent); err != nil {
			rebuildErr = err
			return false, err
		}
		if e.hasVector(collection) {
			if err := e.vecIdx.AddEntity(collection, ent); err != nil {
				rebuildErr = err
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if rebuildErr == nil {
		e.publish(events.EventIndexRebuilt, collection)
	}
	return rebuildErr
}

// TSDeleteOld prunes every metric's points older than cutoffMs, the
// retention sweep spec §4.4 describes but leaves to a scheduler to call.
func (e *Engine) TSDeleteOld(cutoffMs int64) error {
	return e.ts.DeleteOld(cutoffMs)
}

// TSContinuousAggregate rolls up [from, to) into windowMs-wide buckets
// for metric/entity, persisted as a derived metric (spec §4.4).
func (e *Engine) TSContinuousAggregate(metric, entity string, from, to, windowMs int64) error {
	return e.ts.ContinuousAggregate(metric, entity, from, to, windowMs)
}

// CDCDeleteBefore prunes change events with sequence < cutoff, the
// retention sweep spec §4.5 describes but leaves to a scheduler to call.
func (e *Engine) CDCDeleteBefore(cutoff uint64) error {
	return e.cdcLog.DeleteBefore(cutoff)
}

// Stats is a point-in-time snapshot of engine-owned state, consumed by
// pkg/metrics' collector.
type Stats struct {
	StoreBytes    int64
	CDCSequence   uint64
	IndexCount    int
	VectorCollections int
}

// Snapshot gathers Stats without mutating anything.
func (e *Engine) Snapshot() (Stats, error) {
	size, err := e.store.ApproximateSize()
	if err != nil {
		return Stats{}, err
	}
	seq, err := e.cdcLog.LatestSequence()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		StoreBytes:        size,
		CDCSequence:       seq,
		IndexCount:        len(e.secIdx.Descriptors()),
		VectorCollections: len(e.vecIdx.Collections()),
	}, nil
}

// VectorInit allocates collection's HNSW index (spec §6 `vector_init`).
func (e *Engine) VectorInit(cfg types.VectorConfig) error {
	if err := e.vecIdx.Init(cfg); err != nil {
		return err
	}
	e.publish(events.EventVectorInitialized, cfg.Collection)
	return nil
}

// VectorSearch runs a top-k similarity search (spec §6 `vector_search`).
func (e *Engine) VectorSearch(collection string, query []float32, k int, whitelist []string) ([]types.VectorHit, error) {
	return e.vecIdx.SearchKNN(collection, query, k, whitelist)
}

// SaveVectorIndex persists collection's HNSW index to path (spec §6's
// persisted state layout, `<data_dir>/vector_index/<collection>.hnsw`).
func (e *Engine) SaveVectorIndex(collection, path string) error {
	return e.vecIdx.Save(collection, path)
}

// AddEdge indexes an edge into the named graph (spec §3 "Graph";
// consumed by VarEdge/traversal query shapes).
func (e *Engine) AddEdge(graph string, edge types.Edge) error {
	return e.graphIdx.AddEdge(graph, edge)
}

// RemoveEdge drops an edge from the named graph.
func (e *Engine) RemoveEdge(graph string, edge types.Edge) error {
	return e.graphIdx.RemoveEdge(graph, edge)
}

// TSPut appends one time-series point (spec §6 `ts_put`).
func (e *Engine) TSPut(p types.Point) error {
	return e.ts.PutPoint(p)
}

// TSPutBatch appends a batch of points with the given chunk compression.
func (e *Engine) TSPutBatch(points []types.Point, compression string) error {
	return e.ts.PutPoints(points, compression)
}

// TSQuery reads raw points (spec §6 `ts_query`).
func (e *Engine) TSQuery(opts types.TSQueryOptions) ([]types.Point, error) {
	return e.ts.Query(opts)
}

// TSAggregate reduces a window to min/max/avg/sum/count (spec §6
// `ts_aggregate`).
func (e *Engine) TSAggregate(opts types.TSQueryOptions) (types.Aggregate, error) {
	return e.ts.Aggregate(opts)
}

// CDCList reads change events from fromSequence (spec §6 `cdc_list`).
func (e *Engine) CDCList(fromSequence uint64, limit int, keyPrefix string, changeType types.ChangeType, longPollMs int) ([]types.ChangeEvent, error) {
	return e.cdcLog.List(fromSequence, limit, keyPrefix, changeType, longPollMs)
}

// Descriptors returns every registered secondary index descriptor,
// consumed by the reconciler to find which collections need periodic
// rebuilds.
func (e *Engine) Descriptors() []types.IndexDescriptor {
	return e.secIdx.Descriptors()
}

// CDCLatestSequence returns the highest sequence number recorded in the
// change log, consumed by the scheduler to compute a retention cutoff.
func (e *Engine) CDCLatestSequence() (uint64, error) {
	return e.cdcLog.LatestSequence()
}

// Checkpoint writes a physically consistent snapshot to dir (spec §6
// `checkpoint`). Vector indexes, being file-based and outside the KV
// store, are saved alongside under dir/vector_index/.
func (e *Engine) Checkpoint(dir string) error {
	if err := e.store.Checkpoint(dir); err != nil {
		return err
	}
	var result *multierror.Error
	for _, collection := range e.vecIdx.Collections() {
		path := dir + "/vector_index/" + collection + ".hnsw"
		if err := e.vecIdx.Save(collection, path); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}
	e.publish(events.EventCheckpointSaved, dir)
	return nil
}

// Restore replaces the live KV store with the snapshot in dir (spec §6
// `restore`), then rebuilds every index manager over the restored
// store. Vector index state is not restored here — HNSW blobs live
// under dir/vector_index/ and are reloaded by re-running VectorInit
// with LoadPath set to that path, a deliberate separation matching
// spec §6's persisted-state layout note that vector blobs are stored
// apart from the KV files.
func (e *Engine) Restore(dir string) error {
	if err := e.store.Close(); err != nil {
		return err
	}
	restored, err := kv.Restore(e.storeCfg, dir)
	if err != nil {
		return err
	}
	e.store = restored
	e.entities = newEntityStore(restored)
	secIdx, err := secindex.New(restored)
	if err != nil {
		return err
	}
	e.secIdx = secIdx
	e.graphIdx = graphindex.New(restored)
	e.cdcLog = cdc.New(restored)
	e.ts = timeseries.New(restored)
	e.publish(events.EventRestoreCompleted, dir)
	return nil
}

// Health reports a shallow liveness signal per owned component (spec §6
// implies a healthy/not-healthy distinction for the collaborator's
// health endpoint to surface).
type Health struct {
	StoreOK bool
	Details map[string]string
	Results map[string]health.Result
}

// checkers builds the set of component probes backing Healthy. Each is
// a cheap, non-mutating call against the component it names.
func (e *Engine) checkers() map[string]health.Checker {
	return map[string]health.Checker{
		"store": &health.FuncChecker{
			CheckName: "store",
			Probe: func(ctx context.Context) error {
				_, err := e.store.ApproximateSize()
				return err
			},
		},
		"cdc": &health.FuncChecker{
			CheckName: "cdc",
			Probe: func(ctx context.Context) error {
				_, err := e.cdcLog.LatestSequence()
				return err
			},
		},
		"vector": &health.FuncChecker{
			CheckName: "vector",
			Probe: func(ctx context.Context) error {
				// Collections() only walks in-memory manager state, so a
				// healthy return here just confirms the manager itself
				// hasn't wedged; it doesn't round-trip any index data.
				e.vecIdx.Collections()
				return nil
			},
		},
	}
}

// Healthy probes every owned component and reports what it finds, both
// as the per-component health.Result set and a flattened summary for
// callers that just want a store-up/store-down signal.
func (e *Engine) Healthy() Health {
	results := health.RunAll(context.Background(), e.checkers())
	h := Health{Details: map[string]string{}, Results: results}
	for name, res := range results {
		if res.Healthy {
			h.Details[name] = "ok"
		} else {
			h.Details[name] = res.Message
		}
	}
	h.StoreOK = results["store"].Healthy
	return h
}

// ExecuteOptions mirrors spec §6's execute() option bag.
type ExecuteOptions struct {
	Explain       bool
	AllowFullScan bool
	UseCursor     bool
	Cursor        string
	LimitOverride int
}

// Execute parses, translates, optimizes, and runs aqlText, applying
// cursor-based continuation when requested (spec §6 `execute`).
func (e *Engine) Execute(ctx context.Context, aqlText string, opts ExecuteOptions) (*types.Result, error) {
	prog, err := query.Parse(aqlText)
	if err != nil {
		return nil, err
	}
	q, err := query.Translate(prog)
	if err != nil {
		return nil, err
	}

	entStore := &cteEntityStore{real: e.entities, ctes: map[string][]types.Entity{}}
	for _, cteDef := range prog.CTEs {
		rows, err := e.runBody(ctx, cteDef.Body, entStore)
		if err != nil {
			return nil, err
		}
		entStore.ctes[cteDef.Name] = rowsToEntities(cteDef.Name, rows)
	}

	if opts.LimitOverride > 0 {
		if q.Limit == nil {
			q.Limit = &types.Limit{Set: true}
		}
		q.Limit.Count = opts.LimitOverride
		q.Limit.Set = true
	}

	allowFullScan := opts.AllowFullScan || e.allowFullScan

	if opts.UseCursor && opts.Cursor != "" {
		sortCol := ""
		if q.OrderBy != nil {
			sortCol = q.OrderBy.Field
		}
		cur, err := cursor.Decode(opts.Cursor)
		if err != nil {
			return nil, err
		}
		if err := cursor.Validate(cur, sortCol); err != nil {
			return nil, err
		}
		if q.OrderBy != nil && (q.Kind == types.QueryConjunctive || q.Kind == types.QueryDisjunctive) && q.ReturnVar != "" {
			op := ">"
			if q.OrderBy.Descending {
				op = "<"
			}
			cursorExpr := &types.Expr{
				Kind: types.ExprBinary,
				Op:   op,
				Left: &types.Expr{Kind: types.ExprField, FieldBase: q.ReturnVar, FieldPath: strings.Split(q.OrderBy.Field, ".")},
				Right: &types.Expr{Kind: types.ExprLiteral, Literal: cur.LastValue},
			}
			if q.PostFilter != nil {
				q.PostFilter = &types.Expr{Kind: types.ExprBinary, Op: "AND", Left: q.PostFilter, Right: cursorExpr}
			} else {
				q.PostFilter = cursorExpr
			}
		}
	}

	plan := query.Optimize(q, e.secIdx, e.maxProbe, allowFullScan)
	if plan.Mode == types.ModeFullScanFallback && !allowFullScan {
		return nil, kverrs.InvalidArgument.New("query %q has no usable index and allow_full_scan is false", aqlText)
	}

	deps := query.Deps{
		Entities:  entStore,
		SecIdx:    e.secIdx,
		Graph:     e.graphIdx,
		VectorIdx: e.vecIdx,
		Funcs:     e.funcs,
		MaxProbe:  e.maxProbe,
	}
	deps.Subquery = e.subqueryExecutor(ctx, entStore)

	rows, _, err := query.Execute(ctx, q, deps)
	if err != nil {
		return nil, err
	}

	items := make([]map[string]interface{}, 0, len(rows))
	for _, r := range rows {
		v := r[""].ToInterface()
		item, ok := v.(map[string]interface{})
		if !ok {
			item = map[string]interface{}{"value": v}
		}
		items = append(items, item)
	}

	res := &types.Result{Items: items}
	if opts.Explain {
		res.PlanInfo = plan
	}

	limit := 0
	if q.Limit != nil && q.Limit.Set {
		limit = q.Limit.Count
	}
	if opts.UseCursor && limit > 0 && len(items) >= limit && q.OrderBy != nil {
		res.HasMore = true
		last := items[len(items)-1]
		nextCur := cursor.Cursor{
			SortColumn:     q.OrderBy.Field,
			LastValue:      lookupDotted(last, q.OrderBy.Field),
			Direction:      "ASC",
			EffectiveLimit: limit,
		}
		if q.OrderBy.Descending {
			nextCur.Direction = "DESC"
		}
		tok, err := cursor.Encode(nextCur)
		if err != nil {
			return nil, err
		}
		res.NextCursor = tok
	}

	return res, nil
}

// runBody translates and executes a standalone *query.QueryBody (a CTE
// definition), reusing entStore so later CTEs can reference earlier
// ones by name.
func (e *Engine) runBody(ctx context.Context, body *query.QueryBody, entStore *cteEntityStore) ([]map[string]query.Value, error) {
	q, err := query.Translate(&query.Program{Query: body})
	if err != nil {
		return nil, err
	}
	query.Optimize(q, e.secIdx, e.maxProbe, true)
	deps := query.Deps{
		Entities:  entStore,
		SecIdx:    e.secIdx,
		Graph:     e.graphIdx,
		VectorIdx: e.vecIdx,
		Funcs:     e.funcs,
		MaxProbe:  e.maxProbe,
	}
	deps.Subquery = e.subqueryExecutor(ctx, entStore)
	rows, _, err := query.Execute(ctx, q, deps)
	return rows, err
}

// rowsToEntities assigns synthetic PKs to a materialized CTE's
// projected rows so a later FOR clause can scan them like any other
// collection (spec §4.6.4). Object-shaped rows keep their fields
// verbatim; a non-object row (e.g. `RETURN o.amount`) is wrapped under
// a single "value" field so `.value` still reaches it.
func rowsToEntities(name string, rows []map[string]query.Value) []types.Entity {
	out := make([]types.Entity, 0, len(rows))
	for i, r := range rows {
		v := r[""].ToInterface()
		fields, ok := v.(map[string]interface{})
		if !ok {
			fields = map[string]interface{}{"value": v}
		}
		out = append(out, types.Entity{PK: types.Key(name, itoa(i)), Collection: name, Fields: fields})
	}
	return out
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	n := i
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}

// subqueryExecutor builds the SubqueryExecutor callback LET/RETURN
// subqueries call through (spec §4.6.4). Known simplification: the
// nested body runs uncorrelated with the parent scope — outer bindings
// are not injected into the subquery's own row scope, so only
// subqueries that don't reference parent FOR variables are supported
// today. Correlated subqueries (referencing an outer loop variable)
// need the executor to thread an outer-scope overlay into filterRow,
// tracked as a follow-up.
func (e *Engine) subqueryExecutor(ctx context.Context, entStore *cteEntityStore) query.SubqueryExecutor {
	return func(body *query.QueryBody, _ map[string]query.Value) ([]query.Value, error) {
		rows, err := e.runBody(ctx, body, entStore)
		if err != nil {
			return nil, err
		}
		out := make([]query.Value, len(rows))
		for i, r := range rows {
			out[i] = r[""]
		}
		return out, nil
	}
}

func lookupDotted(m map[string]interface{}, path string) interface{} {
	cur := interface{}(m)
	for _, seg := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur, ok = obj[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

func init() {
	log.WithComponent("engine").Debug().Msg("engine package loaded")
}
