package query

import (
	"math"
	"strings"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
)

// Func is one entry in the expression-function registry (spec §6: "an
// in-process map from function name to a strict-argument handler").
type Func func(args []Value, ctx *EvalContext) (Value, error)

// FuncRegistry is looked up by the upper-cased function name parsed
// out of a FuncCallExpr.
type FuncRegistry map[string]Func

// DefaultFuncRegistry returns the built-in function set every Engine
// starts from. Callers may copy and extend it before constructing an
// EvalContext.
func DefaultFuncRegistry() FuncRegistry {
	return FuncRegistry{
		"CONCAT":    fnConcat,
		"LOWER":     fnLower,
		"UPPER":     fnUpper,
		"SUBSTRING": fnSubstring,
		"LENGTH":    fnLength,
		"TRIM":      fnTrim,

		"ABS":   fnAbs,
		"CEIL":  fnCeil,
		"FLOOR": fnFloor,
		"ROUND": fnRound,
		"SQRT":  fnSqrt,
		"POW":   fnPow,

		"IS_STRING": fnIsKind(kindString),
		"IS_NUMBER": fnIsNumber,
		"IS_BOOL":   fnIsKind(kindBool),
		"IS_ARRAY":  fnIsKind(kindArray),
		"IS_OBJECT": fnIsKind(kindObject),
		"IS_NULL":   fnIsKind(kindNull),

		"FULLTEXT": fnFulltext,
		"BM25":     fnBM25,
	}
}

func argErr(name string, want int, got int) error {
	return kverrs.InvalidArgument.New("%s expects %d argument(s), got %d", name, want, got)
}

func fnConcat(args []Value, _ *EvalContext) (Value, error) {
	var b strings.Builder
	for _, a := range args {
		b.WriteString(a.String())
	}
	return StringVal(b.String()), nil
}

func fnLower(args []Value, _ *EvalContext) (Value, error) {
	if len(args) != 1 {
		return Null(), argErr("LOWER", 1, len(args))
	}
	return StringVal(strings.ToLower(args[0].String())), nil
}

func fnUpper(args []Value, _ *EvalContext) (Value, error) {
	if len(args) != 1 {
		return Null(), argErr("UPPER", 1, len(args))
	}
	return StringVal(strings.ToUpper(args[0].String())), nil
}

func fnTrim(args []Value, _ *EvalContext) (Value, error) {
	if len(args) != 1 {
		return Null(), argErr("TRIM", 1, len(args))
	}
	return StringVal(strings.TrimSpace(args[0].String())), nil
}

func fnLength(args []Value, _ *EvalContext) (Value, error) {
	if len(args) != 1 {
		return Null(), argErr("LENGTH", 1, len(args))
	}
	switch args[0].kind {
	case kindString:
		return IntVal(int64(len([]rune(args[0].str)))), nil
	case kindArray:
		return IntVal(int64(len(args[0].arr))), nil
	case kindObject:
		return IntVal(int64(len(args[0].object))), nil
	default:
		return IntVal(0), nil
	}
}

func fnSubstring(args []Value, _ *EvalContext) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Null(), kverrs.InvalidArgument.New("SUBSTRING expects 2 or 3 arguments, got %d", len(args))
	}
	s := []rune(args[0].String())
	if !args[1].isNumeric() {
		return Null(), kverrs.InvalidArgument.New("SUBSTRING offset must be numeric")
	}
	start := int(args[1].asFloat())
	if start < 0 {
		start = 0
	}
	if start > len(s) {
		start = len(s)
	}
	end := len(s)
	if len(args) == 3 {
		if !args[2].isNumeric() {
			return Null(), kverrs.InvalidArgument.New("SUBSTRING length must be numeric")
		}
		n := int(args[2].asFloat())
		if start+n < end {
			end = start + n
		}
	}
	return StringVal(string(s[start:end])), nil
}

func fnAbs(args []Value, _ *EvalContext) (Value, error) {
	v, err := requireNumeric("ABS", args)
	if err != nil {
		return Null(), err
	}
	if v.kind == kindInt {
		if v.i64 < 0 {
			return IntVal(-v.i64), nil
		}
		return v, nil
	}
	return DoubleVal(math.Abs(v.f64)), nil
}

func fnCeil(args []Value, _ *EvalContext) (Value, error) {
	v, err := requireNumeric("CEIL", args)
	if err != nil {
		return Null(), err
	}
	return DoubleVal(math.Ceil(v.asFloat())), nil
}

func fnFloor(args []Value, _ *EvalContext) (Value, error) {
	v, err := requireNumeric("FLOOR", args)
	if err != nil {
		return Null(), err
	}
	return DoubleVal(math.Floor(v.asFloat())), nil
}

func fnRound(args []Value, _ *EvalContext) (Value, error) {
	v, err := requireNumeric("ROUND", args)
	if err != nil {
		return Null(), err
	}
	return DoubleVal(math.Round(v.asFloat())), nil
}

func fnSqrt(args []Value, _ *EvalContext) (Value, error) {
	v, err := requireNumeric("SQRT", args)
	if err != nil {
		return Null(), err
	}
	if v.asFloat() < 0 {
		return Null(), kverrs.Runtime.New("SQRT of a negative number")
	}
	return DoubleVal(math.Sqrt(v.asFloat())), nil
}

func fnPow(args []Value, _ *EvalContext) (Value, error) {
	if len(args) != 2 {
		return Null(), argErr("POW", 2, len(args))
	}
	if !args[0].isNumeric() || !args[1].isNumeric() {
		return Null(), kverrs.InvalidArgument.New("POW arguments must be numeric")
	}
	return DoubleVal(math.Pow(args[0].asFloat(), args[1].asFloat())), nil
}

func requireNumeric(name string, args []Value) (Value, error) {
	if len(args) != 1 {
		return Null(), argErr(name, 1, len(args))
	}
	if !args[0].isNumeric() {
		return Null(), kverrs.InvalidArgument.New("%s argument must be numeric", name)
	}
	return args[0], nil
}

func fnIsKind(k valueKind) Func {
	return func(args []Value, _ *EvalContext) (Value, error) {
		if len(args) != 1 {
			return Null(), argErr("IS_*", 1, len(args))
		}
		return BoolVal(args[0].kind == k), nil
	}
}

func fnIsNumber(args []Value, _ *EvalContext) (Value, error) {
	if len(args) != 1 {
		return Null(), argErr("IS_NUMBER", 1, len(args))
	}
	return BoolVal(args[0].isNumeric()), nil
}

// fnFulltext evaluates FULLTEXT(field, query[, limit]) row by row: a
// case-insensitive whole-token match that is true when every query
// token appears among field's tokens (tokens are runs of ASCII letters
// and digits). The translator has no full-text pushdown, so FULLTEXT
// is always evaluated here, never answered from an index.
func fnFulltext(args []Value, ctx *EvalContext) (Value, error) {
	if len(args) < 2 {
		return Null(), kverrs.InvalidArgument.New("FULLTEXT expects at least 2 arguments, got %d", len(args))
	}
	isSep := func(r rune) bool { return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') }
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(args[0].String()), isSep) {
		tokens[tok] = true
	}
	terms := strings.FieldsFunc(strings.ToLower(args[1].String()), isSep)
	if len(terms) == 0 {
		return BoolVal(false), nil
	}
	for _, term := range terms {
		if !tokens[term] {
			return BoolVal(false), nil
		}
	}
	return BoolVal(true), nil
}

// fnBM25 returns the value its object argument carries under
// "__bm25_score", or 0 when there is none. Nothing in the executor
// computes or sets that score, so a row carries it only when the stored
// document itself has a "__bm25_score" field.
func fnBM25(args []Value, _ *EvalContext) (Value, error) {
	if len(args) != 1 {
		return Null(), argErr("BM25", 1, len(args))
	}
	if args[0].kind != kindObject {
		return DoubleVal(0), nil
	}
	score, ok := args[0].object["__bm25_score"]
	if !ok {
		return DoubleVal(0), nil
	}
	return score, nil
}
