package query

import kverrs "github.com/cuemby/warrendb/pkg/errs"

// SubqueryExecutor runs a nested QueryBody (a LET-bound or FOR-bound
// subquery) against the current variable scope and returns its
// projected rows. The query engine supplies the real implementation
// (engine.go); evaluation itself only needs this narrow seam so
// value.go/eval.go stay free of pkg/kv and friends.
type SubqueryExecutor func(body *QueryBody, outer map[string]Value) ([]Value, error)

// EvalContext carries everything Eval needs beyond the expression
// itself: the current variable bindings, the function registry, and
// the subquery callback.
type EvalContext struct {
	vars     map[string]Value
	funcs    FuncRegistry
	subquery SubqueryExecutor
}

// NewEvalContext builds a root evaluation context.
func NewEvalContext(vars map[string]Value, funcs FuncRegistry, subquery SubqueryExecutor) *EvalContext {
	if vars == nil {
		vars = map[string]Value{}
	}
	if funcs == nil {
		funcs = DefaultFuncRegistry()
	}
	return &EvalContext{vars: vars, funcs: funcs, subquery: subquery}
}

// WithVar returns a new context with name bound to v, leaving ctx
// itself untouched — each FOR iteration and LET binding gets its own
// scope rather than mutating a shared map across rows.
func (c *EvalContext) WithVar(name string, v Value) *EvalContext {
	next := make(map[string]Value, len(c.vars)+1)
	for k, existing := range c.vars {
		next[k] = existing
	}
	next[name] = v
	return &EvalContext{vars: next, funcs: c.funcs, subquery: c.subquery}
}

// Lookup returns the current binding for name.
func (c *EvalContext) Lookup(name string) (Value, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Vars exposes the raw binding map, read-only by convention, for
// callers that need to snapshot scope (e.g. before entering a
// subquery).
func (c *EvalContext) Vars() map[string]Value { return c.vars }

// Eval reduces an expression AST node to a Value (spec §4.6.5).
func Eval(e Expr, ctx *EvalContext) (Value, error) {
	switch n := e.(type) {
	case *LiteralExpr:
		return n.Value, nil

	case *IdentExpr:
		v, ok := ctx.Lookup(n.Name)
		if !ok {
			return Null(), kverrs.NotFound.New("undefined variable %q", n.Name)
		}
		return v, nil

	case *MemberExpr:
		base, err := Eval(n.Base, ctx)
		if err != nil {
			return Null(), err
		}
		return memberAccess(base, n.Field), nil

	case *IndexExpr:
		base, err := Eval(n.Base, ctx)
		if err != nil {
			return Null(), err
		}
		idx, err := Eval(n.Index, ctx)
		if err != nil {
			return Null(), err
		}
		return indexAccess(base, idx)

	case *UnaryExpr:
		return evalUnary(n, ctx)

	case *BinaryExpr:
		return evalBinary(n, ctx)

	case *FuncCallExpr:
		fn, ok := ctx.funcs[n.Name]
		if !ok {
			return Null(), kverrs.InvalidArgument.New("unknown function %q", n.Name)
		}
		args := make([]Value, len(n.Args))
		for i, a := range n.Args {
			v, err := Eval(a, ctx)
			if err != nil {
				return Null(), err
			}
			args[i] = v
		}
		return fn(args, ctx)

	case *ArrayExpr:
		out := make([]Value, len(n.Elems))
		for i, el := range n.Elems {
			v, err := Eval(el, ctx)
			if err != nil {
				return Null(), err
			}
			out[i] = v
		}
		return ArrayVal(out), nil

	case *ObjectExpr:
		out := make(map[string]Value, len(n.Order))
		for _, k := range n.Order {
			v, err := Eval(n.Fields[k], ctx)
			if err != nil {
				return Null(), err
			}
			out[k] = v
		}
		return ObjectVal(out), nil

	case *SubqueryExpr:
		if ctx.subquery == nil {
			return Null(), kverrs.Internal.New("subquery evaluation requested with no executor wired")
		}
		rows, err := ctx.subquery(n.Body, ctx.vars)
		if err != nil {
			return Null(), err
		}
		return ArrayVal(rows), nil
	}
	return Null(), kverrs.Internal.New("unhandled expression node %T", e)
}

func evalUnary(n *UnaryExpr, ctx *EvalContext) (Value, error) {
	x, err := Eval(n.X, ctx)
	if err != nil {
		return Null(), err
	}
	switch n.Op {
	case "NOT":
		return BoolVal(!x.Truthy()), nil
	case "-":
		if !x.isNumeric() {
			return Null(), kverrs.Runtime.New("unary '-' operand is not numeric")
		}
		if x.kind == kindInt {
			return IntVal(-x.i64), nil
		}
		return DoubleVal(-x.f64), nil
	}
	return Null(), kverrs.Internal.New("unknown unary operator %q", n.Op)
}

func evalBinary(n *BinaryExpr, ctx *EvalContext) (Value, error) {
	switch n.Op {
	case "AND":
		l, err := Eval(n.L, ctx)
		if err != nil {
			return Null(), err
		}
		if !l.Truthy() {
			return BoolVal(false), nil
		}
		r, err := Eval(n.R, ctx)
		if err != nil {
			return Null(), err
		}
		return BoolVal(r.Truthy()), nil

	case "OR":
		l, err := Eval(n.L, ctx)
		if err != nil {
			return Null(), err
		}
		if l.Truthy() {
			return BoolVal(true), nil
		}
		r, err := Eval(n.R, ctx)
		if err != nil {
			return Null(), err
		}
		return BoolVal(r.Truthy()), nil
	}

	l, err := Eval(n.L, ctx)
	if err != nil {
		return Null(), err
	}
	r, err := Eval(n.R, ctx)
	if err != nil {
		return Null(), err
	}

	switch n.Op {
	case "==":
		return BoolVal(Equal(l, r)), nil
	case "!=":
		return BoolVal(!Equal(l, r)), nil
	case "<", "<=", ">", ">=":
		cmp, ok := Compare(l, r)
		if !ok {
			return BoolVal(false), nil
		}
		switch n.Op {
		case "<":
			return BoolVal(cmp < 0), nil
		case "<=":
			return BoolVal(cmp <= 0), nil
		case ">":
			return BoolVal(cmp > 0), nil
		default:
			return BoolVal(cmp >= 0), nil
		}
	case "IN":
		return BoolVal(In(l, r)), nil
	case "+", "-", "*", "/", "%":
		return Arith(n.Op, l, r)
	}
	return Null(), kverrs.Internal.New("unknown binary operator %q", n.Op)
}

func memberAccess(base Value, field string) Value {
	if base.kind != kindObject {
		return Null()
	}
	v, ok := base.object[field]
	if !ok {
		return Null()
	}
	return v
}

func indexAccess(base, idx Value) (Value, error) {
	switch base.kind {
	case kindArray:
		if !idx.isNumeric() {
			return Null(), kverrs.Runtime.New("array index must be numeric")
		}
		i := int(idx.asFloat())
		if i < 0 || i >= len(base.arr) {
			return Null(), nil
		}
		return base.arr[i], nil
	case kindObject:
		if idx.kind != kindString {
			return Null(), kverrs.Runtime.New("object index must be a string")
		}
		v, ok := base.object[idx.str]
		if !ok {
			return Null(), nil
		}
		return v, nil
	default:
		return Null(), nil
	}
}
