package types

// ExprKind tags the arm of an Expr tagged variant (spec §9 "Expression
// trees").
type ExprKind string

const (
	ExprLiteral    ExprKind = "literal"
	ExprVariable   ExprKind = "variable"
	ExprField      ExprKind = "field"
	ExprBinary     ExprKind = "binary"
	ExprUnary      ExprKind = "unary"
	ExprCall       ExprKind = "call"
	ExprArray      ExprKind = "array"
	ExprObject     ExprKind = "object"
	ExprSubquery   ExprKind = "subquery"
	ExprQuantifier ExprKind = "quantifier"
)

// Expr is a depth-first-foldable expression tree node. Exactly one of the
// kind-specific fields is populated, selected by Kind.
type Expr struct {
	Kind ExprKind `json:"kind"`

	// ExprLiteral
	Literal interface{} `json:"literal,omitempty"`

	// ExprVariable: bare FOR-loop variable reference, e.g. "u"
	Variable string `json:"variable,omitempty"`

	// ExprField: variable.path.to.field
	FieldBase string   `json:"field_base,omitempty"`
	FieldPath []string `json:"field_path,omitempty"`

	// ExprBinary
	Op    string `json:"op,omitempty"`
	Left  *Expr  `json:"left,omitempty"`
	Right *Expr  `json:"right,omitempty"`

	// ExprUnary
	UnaryOp string `json:"unary_op,omitempty"`
	Operand *Expr  `json:"operand,omitempty"`

	// ExprCall
	Func string  `json:"func,omitempty"`
	Args []*Expr `json:"args,omitempty"`

	// ExprArray / ExprObject
	Elements []*Expr          `json:"elements,omitempty"`
	ObjectKV map[string]*Expr `json:"object_kv,omitempty"`

	// ExprSubquery: opaque AQL text translated lazily by the planner
	SubqueryText string `json:"subquery_text,omitempty"`

	// ExprQuantifier: ANY/ALL over a subquery's result stream
	QuantifierKind string `json:"quantifier_kind,omitempty"` // "ANY" | "ALL"
	QuantifierBody *Expr  `json:"quantifier_body,omitempty"`
}

// Predicate is a simple comparator against an indexable column:
// `field OP literal`.
type Predicate struct {
	Field string `json:"field"`
	Op    string `json:"op"` // ==, !=, <, <=, >, >=, IN
	Value interface{} `json:"value"`
	Negated bool `json:"negated"`
}

// RangePredicate bounds an ordered column.
type RangePredicate struct {
	Field        string      `json:"field"`
	Lower        interface{} `json:"lower,omitempty"`
	Upper        interface{} `json:"upper,omitempty"`
	IncludeLower bool        `json:"include_lower"`
	IncludeUpper bool        `json:"include_upper"`
}

// OrderBy names a sort column and direction.
type OrderBy struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// Limit caps and offsets a result stream.
type Limit struct {
	Offset int `json:"offset"`
	Count  int `json:"count"`
	Set    bool `json:"set"`
}

// LetBinding is one `LET v = expr` clause.
type LetBinding struct {
	Var            string `json:"var"`
	Expr           *Expr  `json:"expr"`
	PreExtractable bool   `json:"pre_extractable"`
}

// CollectSpec is a `COLLECT ... AGGREGATE ... HAVING` clause.
type CollectSpec struct {
	GroupVar   string           `json:"group_var"`
	GroupExpr  *Expr            `json:"group_expr"`
	Aggregates []AggregateSpec  `json:"aggregates"`
	Having     *Expr            `json:"having,omitempty"`
}

// AggregateSpec is one `var = FUNC(expr)` aggregate in a COLLECT clause.
type AggregateSpec struct {
	Var  string `json:"var"`
	Func string `json:"func"` // COUNT, SUM, AVG, MIN, MAX
	Expr *Expr  `json:"expr,omitempty"`
}

// QueryKind tags the arm of the Query tagged variant (spec §4.6.1, §9).
type QueryKind string

const (
	QueryConjunctive QueryKind = "conjunctive"
	QueryDisjunctive QueryKind = "disjunctive"
	QueryJoin        QueryKind = "join"
	QueryTraversal   QueryKind = "traversal"
	QueryVectorGeo   QueryKind = "vector_geo"
	QueryContentGeo  QueryKind = "content_geo"
)

// ForNode is one `FOR var IN collection` clause of a join query.
type ForNode struct {
	Var        string `json:"var"`
	Collection string `json:"collection"`
}

// Query is a tagged variant: exactly one arm is populated, selected by
// Kind. CTEs attach at the top level via CTEs, independent of Kind.
type Query struct {
	Kind QueryKind `json:"kind"`

	// Shared across most arms
	Collection      string           `json:"collection,omitempty"`
	Predicates      []Predicate      `json:"predicates,omitempty"`
	RangePredicates []RangePredicate `json:"range_predicates,omitempty"`
	Lets            []LetBinding     `json:"lets,omitempty"`
	OrderBy         *OrderBy         `json:"order_by,omitempty"`
	Limit           *Limit           `json:"limit,omitempty"`
	Return          *Expr            `json:"return,omitempty"`

	// QueryDisjunctive
	Disjuncts  [][]Predicate `json:"disjuncts,omitempty"`
	PostFilter *Expr         `json:"post_filter,omitempty"`

	// QueryJoin
	ForNodes   [2]ForNode  `json:"for_nodes,omitempty"`
	JoinFilter *Expr       `json:"join_filter,omitempty"`
	OneSided   []*Expr     `json:"one_sided,omitempty"`
	ReturnVar  string      `json:"return_var,omitempty"`

	// QueryTraversal
	VarVertex string    `json:"var_vertex,omitempty"`
	VarEdge   string    `json:"var_edge,omitempty"`
	VarPath   string    `json:"var_path,omitempty"`
	MinDepth  int       `json:"min_depth,omitempty"`
	MaxDepth  int       `json:"max_depth,omitempty"`
	TravDir   Direction `json:"direction,omitempty"`
	StartPK   string    `json:"start_pk,omitempty"`
	Graph     string    `json:"graph,omitempty"`

	// QueryVectorGeo / QueryContentGeo
	VectorField string  `json:"vector_field,omitempty"`
	VectorQuery []float64 `json:"vector_query,omitempty"`
	TopK        int     `json:"top_k,omitempty"`
	GeoExpr     *Expr   `json:"geo_expr,omitempty"`

	Collect *CollectSpec `json:"collect,omitempty"`
	CTEs    []CTE        `json:"ctes,omitempty"`
}

// CTE is one `WITH name AS (...)` binding.
type CTE struct {
	Name      string `json:"name"`
	QueryText string `json:"query_text"`
	RefCount  int    `json:"ref_count"`
}

// PlanMode enumerates the execution strategies `explain` reports
// (spec §4.6.2).
type PlanMode string

const (
	ModeIndexOptimized   PlanMode = "index_optimized"
	ModeIndexRangeAware  PlanMode = "index_range_aware"
	ModeIndexParallel    PlanMode = "index_parallel"
	ModeFullScanFallback PlanMode = "full_scan_fallback"
)

// Plan is the result of translating and optimizing a query, returned to
// the caller when `explain` is requested.
type Plan struct {
	Mode        PlanMode     `json:"mode"`
	LeadField   string       `json:"lead_field,omitempty"`
	Estimations []FieldEstimation `json:"estimations,omitempty"`
}

// FieldEstimation pairs a predicate field with its sampled cardinality.
type FieldEstimation struct {
	Field string    `json:"field"`
	Est   Estimation `json:"estimate"`
}

// Result is the envelope returned by Execute (spec §6).
type Result struct {
	Items      []map[string]interface{} `json:"items"`
	HasMore    bool                      `json:"has_more"`
	NextCursor string                    `json:"next_cursor,omitempty"`
	PlanInfo   *Plan                     `json:"plan,omitempty"`
}
