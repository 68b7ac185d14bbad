package query

// Program is a fully parsed AQL query: zero or more CTE definitions
// (spec §4.6.4 "WITH") plus the main query body.
type Program struct {
	CTEs  []*CTEDef
	Query *QueryBody
}

// CTEDef is one WITH name AS (...) binding.
type CTEDef struct {
	Name string
	Body *QueryBody
}

// QueryBody is one FOR...RETURN pipeline (also used for subqueries and
// CTE bodies).
type QueryBody struct {
	Fors    []*ForClause
	Clauses []Clause // FILTER/LET in textual order
	Collect *CollectClause
	Sort    []*SortTerm
	Limit   *LimitClause
	Return  Expr
}

// ForClause is one FOR binding: a plain collection/CTE scan, a graph
// traversal, or a VECTOR_SEARCH probe (spec §4.6.1 shapes 1-5).
type ForClause struct {
	Var          string
	EdgeVar      string // traversal only; "" if unused
	PathVar      string // traversal only; "" if unused
	Source       string // plain scan: collection or CTE name
	Traversal    *TraversalSpec
	VectorSearch *VectorSearchSpec
}

// TraversalSpec is the BFS shape's parameters (spec §4.6.1 shape 4).
type TraversalSpec struct {
	MinDepth  int
	MaxDepth  int
	Direction string // OUTBOUND | INBOUND | ANY
	Start     Expr
	Graph     string
}

// VectorSearchSpec is VECTOR_SEARCH(collection, "field", query, k)'s
// parsed arguments — the VectorGeoQuery shape (spec §4.6.1 shape 5).
type VectorSearchSpec struct {
	Collection string
	Field      string
	Query      Expr
	K          Expr
}

// Clause is FILTER or LET, evaluated in declared order.
type Clause interface{ clauseNode() }

type FilterClause struct{ Expr Expr }
type LetClause struct {
	Var  string
	Expr Expr
}

func (*FilterClause) clauseNode() {}
func (*LetClause) clauseNode()    {}

// CollectClause implements COLLECT/AGGREGATE (spec §4.6.3).
type CollectClause struct {
	Groups     []GroupTerm
	Aggregates []AggTerm
	Into       string
	Having     Expr
}

type GroupTerm struct {
	Var  string
	Expr Expr
}

type AggTerm struct {
	Var  string
	Func string // COUNT | SUM | AVG | MIN | MAX
	Expr Expr   // nil for COUNT(*)
}

type SortTerm struct {
	Expr Expr
	Desc bool
}

type LimitClause struct {
	Offset int
	Count  int
}

// Expr is any node in the expression AST (spec §4.6.5).
type Expr interface{ exprNode() }

type LiteralExpr struct{ Value Value }
type IdentExpr struct{ Name string }
type MemberExpr struct {
	Base  Expr
	Field string
}
type IndexExpr struct {
	Base  Expr
	Index Expr
}
type UnaryExpr struct {
	Op string // "-" | "NOT"
	X  Expr
}
type BinaryExpr struct {
	Op   string // + - * / % == != < <= > >= AND OR IN
	L, R Expr
}
type FuncCallExpr struct {
	Name string
	Args []Expr
}
type ArrayExpr struct{ Elems []Expr }
type ObjectExpr struct {
	Order  []string
	Fields map[string]Expr
}
type SubqueryExpr struct{ Body *QueryBody }

func (*LiteralExpr) exprNode()  {}
func (*IdentExpr) exprNode()    {}
func (*MemberExpr) exprNode()   {}
func (*IndexExpr) exprNode()    {}
func (*UnaryExpr) exprNode()    {}
func (*BinaryExpr) exprNode()   {}
func (*FuncCallExpr) exprNode() {}
func (*ArrayExpr) exprNode()    {}
func (*ObjectExpr) exprNode()   {}
func (*SubqueryExpr) exprNode() {}
