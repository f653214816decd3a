// Package value implements the JSON-like tagged value union shared by the
// symbolic IR, the in-memory backend and the Lua backend. It mirrors the
// loose typing rules of the Redis scripting bridge: integers and floats
// compare by numeric value, and only null and false are falsey.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the active branch of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindStr
	KindList
	KindMap
)

// Value is a tagged union covering null, bool, int, float, string, ordered
// list and string-keyed map — the full JSON value space used across the
// IR, both backends and the compiled closures.
type Value struct {
	Kind Kind
	Bool bool
	Int  int64
	Flt  float64
	Str  string
	List []Value
	Map  map[string]Value
}

func Null() Value                { return Value{Kind: KindNull} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, Flt: f} }
func Str(s string) Value         { return Value{Kind: KindStr, Str: s} }
func List(vs ...Value) Value     { return Value{Kind: KindList, List: vs} }
func Map(m map[string]Value) Value {
	return Value{Kind: KindMap, Map: m}
}

func (v Value) IsNull() bool { return v.Kind == KindNull }

// Truthy implements the scripting bridge's truthiness: only null and the
// boolean false are falsey, zero and the empty string are truthy.
func (v Value) Truthy() bool {
	switch v.Kind {
	case KindNull:
		return false
	case KindBool:
		return v.Bool
	default:
		return true
	}
}

func (v Value) isNumeric() bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func (v Value) numeric() float64 {
	if v.Kind == KindInt {
		return float64(v.Int)
	}
	return v.Flt
}

// Equal implements the loose equality rules: int and float compare by
// numeric value, everything else must share a kind.
func Equal(a, b Value) bool {
	if a.isNumeric() && b.isNumeric() {
		return a.numeric() == b.numeric()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindStr:
		return a.Str == b.Str
	case KindList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if !Equal(a.List[i], b.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.Map) != len(b.Map) {
			return false
		}
		for k, av := range a.Map {
			bv, ok := b.Map[k]
			if !ok || !Equal(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Compare orders two values for lt/le/gt/ge. Numeric values compare
// numerically; strings compare lexically. Mixed kinds are not orderable
// and Compare panics, matching the scripting bridge which only ever
// compares like-typed operands in generated scripts.
func Compare(a, b Value) int {
	if a.isNumeric() && b.isNumeric() {
		af, bf := a.numeric(), b.numeric()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	if a.Kind == KindStr && b.Kind == KindStr {
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		default:
			return 0
		}
	}
	panic(fmt.Sprintf("cannot compare %v and %v", a, b))
}

// Add implements the IR's "add" binary op: numeric addition when both
// sides are numeric, otherwise string concatenation when either side is a
// string.
func Add(a, b Value) Value {
	if a.isNumeric() && b.isNumeric() {
		if a.Kind == KindInt && b.Kind == KindInt {
			return Int(a.Int + b.Int)
		}
		return Float(a.numeric() + b.numeric())
	}
	if a.Kind == KindStr || b.Kind == KindStr {
		return Str(ToDisplayString(a) + ToDisplayString(b))
	}
	panic(fmt.Sprintf("cannot add %v and %v", a, b))
}

// Sub implements the IR's "sub" binary op, numeric only.
func Sub(a, b Value) Value {
	if a.Kind == KindInt && b.Kind == KindInt {
		return Int(a.Int - b.Int)
	}
	return Float(a.numeric() - b.numeric())
}

// ToNumber mirrors Lua's tonumber()/the memory backend's ToNum: integer if
// the string parses cleanly as one, otherwise a double.
func ToNumber(v Value) (Value, error) {
	var s string
	switch v.Kind {
	case KindStr:
		s = v.Str
	case KindInt, KindFloat:
		return v, nil
	default:
		return Value{}, fmt.Errorf("cannot convert %v to number", v)
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("value %q is not a number: %w", s, err)
	}
	return Float(f), nil
}

// ToDisplayString renders a value for string-context use (concatenation,
// redis.call argument marshalling); it does not attempt the scalar-only
// tostring() contract below.
func ToDisplayString(v Value) string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Flt, 'f', -1, 64)
	case KindStr:
		return v.Str
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToString implements the scripting bridge's tostring(): "nil" for null,
// lowercase booleans, and plain numeric/string rendering. Lists and maps
// are intentionally unsupported — see the Open Question in DESIGN.md.
func ToString(v Value) (string, error) {
	switch v.Kind {
	case KindNull:
		return "nil", nil
	case KindBool:
		if v.Bool {
			return "true", nil
		}
		return "false", nil
	case KindInt:
		return strconv.FormatInt(v.Int, 10), nil
	case KindFloat:
		return strconv.FormatFloat(v.Flt, 'f', -1, 64), nil
	case KindStr:
		return v.Str, nil
	default:
		return "", fmt.Errorf("tostring of %s is not supported", TypeName(v))
	}
}

// TypeName implements the scripting bridge's type(): boolean/table/
// number/string/nil.
func TypeName(v Value) string {
	switch v.Kind {
	case KindBool:
		return "boolean"
	case KindInt, KindFloat:
		return "number"
	case KindStr:
		return "string"
	case KindList, KindMap:
		return "table"
	default:
		return "nil"
	}
}

// AsIntString implements the project-specific asintstr helper: floor the
// numeric value and render as an integer string. Negative inputs floor
// toward negative infinity, matching Lua's math.floor rather than the
// truncating int(float(...)) discrepancy called out in DESIGN.md.
func AsIntString(v Value) (string, error) {
	var f float64
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10), nil
	case KindFloat:
		f = v.Flt
	case KindStr:
		n, err := ToNumber(v)
		if err != nil {
			return "", err
		}
		return AsIntString(n)
	default:
		return "", fmt.Errorf("asintstr: value %v is not numeric", v)
	}
	return strconv.FormatInt(int64(math.Floor(f)), 10), nil
}

// ToJSON converts a Value into a plain `any` tree suitable for
// encoding/json, sorting map keys on encode to make output deterministic
// (cjson.encode's sort_keys=True behaviour).
func ToJSON(v Value) (any, error) {
	switch v.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return v.Bool, nil
	case KindInt:
		return v.Int, nil
	case KindFloat:
		return v.Flt, nil
	case KindStr:
		return v.Str, nil
	case KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			j, err := ToJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = j
		}
		return out, nil
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			j, err := ToJSON(e)
			if err != nil {
				return nil, err
			}
			out[k] = j
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

// FromJSON converts a plain `any` tree (as produced by encoding/json) into
// a Value, distinguishing integer and floating-point JSON numbers.
func FromJSON(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return Str(t), nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := t.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(f), nil
	case float64:
		return Float(t), nil
	case []any:
		out := make([]Value, len(t))
		for i, e := range t {
			v, err := FromJSON(e)
			if err != nil {
				return Value{}, err
			}
			out[i] = v
		}
		return List(out...), nil
	case map[string]any:
		out := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromJSON(e)
			if err != nil {
				return Value{}, err
			}
			out[k] = v
		}
		return Map(out), nil
	default:
		return Value{}, fmt.Errorf("unsupported JSON type %T", x)
	}
}

// Encode implements cjson.encode: compact, sorted-key JSON text.
func Encode(v Value) (string, error) {
	j, err := ToJSON(v)
	if err != nil {
		return "", err
	}
	return encodeSorted(j)
}

func encodeSorted(x any) (string, error) {
	switch t := x.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return "", err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			vs, err := encodeSorted(t[k])
			if err != nil {
				return "", err
			}
			buf = append(buf, vs...)
		}
		buf = append(buf, '}')
		return string(buf), nil
	case []any:
		buf := []byte{'['}
		for i, e := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			vs, err := encodeSorted(e)
			if err != nil {
				return "", err
			}
			buf = append(buf, vs...)
		}
		buf = append(buf, ']')
		return string(buf), nil
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// Decode implements cjson.decode: JSON text into a Value, preserving the
// int/float distinction via json.Number.
func Decode(text string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return Value{}, fmt.Errorf("cjson.decode: %w", err)
	}
	return FromJSON(raw)
}

// IsEmptyCollection reports whether v is an empty list or empty map — the
// two JSON shapes the Lua scripting bridge cannot distinguish from each
// other, which both backends must normalise to null at the closure
// boundary (spec.md §4.2, §4.4, §8 Property 4).
func IsEmptyCollection(v Value) bool {
	switch v.Kind {
	case KindList:
		return len(v.List) == 0
	case KindMap:
		return len(v.Map) == 0
	default:
		return false
	}
}
