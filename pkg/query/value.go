package query

import (
	"fmt"
	"sort"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
)

// Value is the dynamic runtime value every expression reduces to (spec
// §4.6.5): string, int64, double, bool, null, array, or object.
type Value struct {
	kind   valueKind
	str    string
	i64    int64
	f64    float64
	b      bool
	arr    []Value
	object map[string]Value
}

type valueKind int

const (
	kindNull valueKind = iota
	kindString
	kindInt
	kindDouble
	kindBool
	kindArray
	kindObject
)

func Null() Value                  { return Value{kind: kindNull} }
func StringVal(s string) Value     { return Value{kind: kindString, str: s} }
func IntVal(i int64) Value         { return Value{kind: kindInt, i64: i} }
func DoubleVal(f float64) Value    { return Value{kind: kindDouble, f64: f} }
func BoolVal(b bool) Value         { return Value{kind: kindBool, b: b} }
func ArrayVal(v []Value) Value     { return Value{kind: kindArray, arr: v} }
func ObjectVal(m map[string]Value) Value { return Value{kind: kindObject, object: m} }

func (v Value) IsNull() bool { return v.kind == kindNull }

// FromInterface builds a Value from a decoded JSON-ish interface{}
// (as produced by encoding/json unmarshaling into interface{}).
func FromInterface(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return Null()
	case string:
		return StringVal(t)
	case bool:
		return BoolVal(t)
	case int:
		return IntVal(int64(t))
	case int64:
		return IntVal(t)
	case float64:
		return DoubleVal(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = FromInterface(e)
		}
		return ArrayVal(out)
	case map[string]interface{}:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			out[k] = FromInterface(e)
		}
		return ObjectVal(out)
	case []string:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = StringVal(e)
		}
		return ArrayVal(out)
	default:
		return StringVal(fmt.Sprintf("%v", t))
	}
}

// ToInterface converts back to a plain interface{} tree (for JSON
// re-marshaling of RETURN projections).
func (v Value) ToInterface() interface{} {
	switch v.kind {
	case kindNull:
		return nil
	case kindString:
		return v.str
	case kindInt:
		return v.i64
	case kindDouble:
		return v.f64
	case kindBool:
		return v.b
	case kindArray:
		out := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.ToInterface()
		}
		return out
	case kindObject:
		out := make(map[string]interface{}, len(v.object))
		for k, e := range v.object {
			out[k] = e.ToInterface()
		}
		return out
	}
	return nil
}

func (v Value) isNumeric() bool { return v.kind == kindInt || v.kind == kindDouble }

func (v Value) asFloat() float64 {
	if v.kind == kindInt {
		return float64(v.i64)
	}
	return v.f64
}

// Arith applies a binary arithmetic operator (spec §4.6.5 "Arithmetic:
// usual; division by zero surfaces as a runtime error").
func Arith(op string, l, r Value) (Value, error) {
	if !l.isNumeric() || !r.isNumeric() {
		return Null(), kverrs.Runtime.New("arithmetic operand is not numeric")
	}
	bothInt := l.kind == kindInt && r.kind == kindInt
	switch op {
	case "+":
		if bothInt {
			return IntVal(l.i64 + r.i64), nil
		}
		return DoubleVal(l.asFloat() + r.asFloat()), nil
	case "-":
		if bothInt {
			return IntVal(l.i64 - r.i64), nil
		}
		return DoubleVal(l.asFloat() - r.asFloat()), nil
	case "*":
		if bothInt {
			return IntVal(l.i64 * r.i64), nil
		}
		return DoubleVal(l.asFloat() * r.asFloat()), nil
	case "/":
		if bothInt {
			if r.i64 == 0 {
				return Null(), kverrs.Runtime.New("division by zero")
			}
			if l.i64%r.i64 == 0 {
				return IntVal(l.i64 / r.i64), nil
			}
			return DoubleVal(float64(l.i64) / float64(r.i64)), nil
		}
		if r.asFloat() == 0 {
			return Null(), kverrs.Runtime.New("division by zero")
		}
		return DoubleVal(l.asFloat() / r.asFloat()), nil
	case "%":
		if bothInt {
			if r.i64 == 0 {
				return Null(), kverrs.Runtime.New("division by zero")
			}
			return IntVal(l.i64 % r.i64), nil
		}
		return Null(), kverrs.Runtime.New("modulo requires integer operands")
	}
	return Null(), kverrs.Runtime.New("unknown arithmetic operator %q", op)
}

// Equal implements JSON-equality comparison (spec §4.6.5 "Comparisons on
// mixed types follow JSON equality").
func Equal(l, r Value) bool {
	if l.isNumeric() && r.isNumeric() {
		return l.asFloat() == r.asFloat()
	}
	if l.kind != r.kind {
		return false
	}
	switch l.kind {
	case kindNull:
		return true
	case kindString:
		return l.str == r.str
	case kindBool:
		return l.b == r.b
	case kindArray:
		if len(l.arr) != len(r.arr) {
			return false
		}
		for i := range l.arr {
			if !Equal(l.arr[i], r.arr[i]) {
				return false
			}
		}
		return true
	case kindObject:
		if len(l.object) != len(r.object) {
			return false
		}
		for k, v := range l.object {
			rv, ok := r.object[k]
			if !ok || !Equal(v, rv) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values for <, <=, >, >=, and SORT. Numeric vs
// numeric compares by value; string vs string lexicographically;
// anything else is incomparable and reports ok=false.
func Compare(l, r Value) (cmp int, ok bool) {
	if l.isNumeric() && r.isNumeric() {
		lf, rf := l.asFloat(), r.asFloat()
		switch {
		case lf < rf:
			return -1, true
		case lf > rf:
			return 1, true
		default:
			return 0, true
		}
	}
	if l.kind == kindString && r.kind == kindString {
		switch {
		case l.str < r.str:
			return -1, true
		case l.str > r.str:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

// In implements the IN set-membership operator over an array literal.
func In(needle Value, haystack Value) bool {
	if haystack.kind != kindArray {
		return false
	}
	for _, e := range haystack.arr {
		if Equal(needle, e) {
			return true
		}
	}
	return false
}

// Truthy implements boolean coercion for FILTER/AND/OR/NOT.
func (v Value) Truthy() bool {
	switch v.kind {
	case kindNull:
		return false
	case kindBool:
		return v.b
	case kindInt:
		return v.i64 != 0
	case kindDouble:
		return v.f64 != 0
	case kindString:
		return v.str != ""
	case kindArray:
		return len(v.arr) != 0
	case kindObject:
		return len(v.object) != 0
	}
	return false
}

func (v Value) String() string {
	switch v.kind {
	case kindNull:
		return "null"
	case kindString:
		return v.str
	case kindInt:
		return fmt.Sprintf("%d", v.i64)
	case kindDouble:
		return fmt.Sprintf("%g", v.f64)
	case kindBool:
		return fmt.Sprintf("%t", v.b)
	default:
		return fmt.Sprintf("%v", v.ToInterface())
	}
}

// SortValues sorts a slice of rows by a key extractor, ascending unless
// desc is true; incomparable pairs are treated as equal (stable).
func SortValues(rows []map[string]Value, key func(map[string]Value) Value, desc bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		cmp, ok := Compare(key(rows[i]), key(rows[j]))
		if !ok {
			return false
		}
		if desc {
			return cmp > 0
		}
		return cmp < 0
	})
}
