// Package symbolic is the fluent builder that produces ir.Sequence trees.
// It mirrors redipy's symbolic/*.py module split: this file is the
// expression algebra (Expr, operators, literals, calls); vars.go holds
// the name-bearing bindings (args/keys/locals/loop variables); seq.go
// holds the statement-sequence builder (Context, branches, loops).
package symbolic

import (
	"github.com/mnorrsken/scriptkv/internal/ir"
	"github.com/mnorrsken/scriptkv/internal/value"
)

// Expr is any buildable expression: a literal, a variable reference, or a
// composed operator/call tree. Compile lowers it to the immutable ir.Expr
// the backends consume.
type Expr interface {
	Compile() ir.Expr

	Add(other Mixed) Expr
	Sub(other Mixed) Expr
	Eq(other Mixed) Expr
	Ne(other Mixed) Expr
	Lt(other Mixed) Expr
	Le(other Mixed) Expr
	Gt(other Mixed) Expr
	Ge(other Mixed) Expr
	Not() Expr
	And(other Mixed) Expr
	Or(other Mixed) Expr
}

// Mixed accepts either a built Expr or a raw Go literal (nil, bool, int,
// int64, float64, string, or a []Mixed list) wherever the original API
// accepted "MixedType".
type Mixed any

// exprBase implements the operator-building methods shared by every Expr
// so concrete node types only need to implement Compile.
type exprBase struct{ self Expr }

func (e exprBase) Add(other Mixed) Expr { return &binOp{ir.OpAdd, e.self, Lit(other)} }
func (e exprBase) Sub(other Mixed) Expr { return &binOp{ir.OpSub, e.self, Lit(other)} }
func (e exprBase) Eq(other Mixed) Expr  { return &binOp{ir.OpEq, e.self, Lit(other)} }
func (e exprBase) Ne(other Mixed) Expr  { return &binOp{ir.OpNe, e.self, Lit(other)} }
func (e exprBase) Lt(other Mixed) Expr  { return &binOp{ir.OpLt, e.self, Lit(other)} }
func (e exprBase) Le(other Mixed) Expr  { return &binOp{ir.OpLe, e.self, Lit(other)} }
func (e exprBase) Gt(other Mixed) Expr  { return &binOp{ir.OpGt, e.self, Lit(other)} }
func (e exprBase) Ge(other Mixed) Expr  { return &binOp{ir.OpGe, e.self, Lit(other)} }
func (e exprBase) And(other Mixed) Expr { return &binOp{ir.OpAnd, e.self, Lit(other)} }
func (e exprBase) Or(other Mixed) Expr  { return &binOp{ir.OpOr, e.self, Lit(other)} }
func (e exprBase) Not() Expr            { return &notOp{e.self} }

// literal wraps a raw JSON-ish value as an Expr.
type literal struct {
	exprBase
	v   value.Value
	typ ir.ValueType
}

// Lit converts a raw Go value (or an already-built Expr) into an Expr,
// mirroring lit_helper in the source project.
func Lit(v Mixed) Expr {
	if e, ok := v.(Expr); ok {
		return e
	}
	lv, typ := toValueType(v)
	l := &literal{v: lv, typ: typ}
	l.exprBase.self = l
	return l
}

func toValueType(v any) (value.Value, ir.ValueType) {
	switch t := v.(type) {
	case nil:
		return value.Null(), ir.TypeNone
	case bool:
		return value.Bool(t), ir.TypeBool
	case int:
		return value.Int(int64(t)), ir.TypeInt
	case int64:
		return value.Int(t), ir.TypeInt
	case float64:
		return value.Float(t), ir.TypeFloat
	case string:
		return value.Str(t), ir.TypeStr
	case []Mixed:
		vs := make([]value.Value, len(t))
		for i, e := range t {
			vs[i], _ = toValueType(e)
		}
		return value.List(vs...), ir.TypeList
	case []string:
		vs := make([]value.Value, len(t))
		for i, e := range t {
			vs[i] = value.Str(e)
		}
		return value.List(vs...), ir.TypeList
	default:
		panic("symbolic: unsupported literal type")
	}
}

func (l *literal) Compile() ir.Expr {
	return ir.Val{Value: l.v, Type: l.typ}
}

// constant is a named opaque value resolved by the backend.
type constant struct {
	exprBase
	raw string
}

// Constant builds a backend-resolved named constant, e.g. a Redis log
// level.
func Constant(raw string) Expr {
	c := &constant{raw: raw}
	c.exprBase.self = c
	return c
}

func (c *constant) Compile() ir.Expr { return ir.Constant{Raw: c.raw} }

type notOp struct{ arg Expr }

func (n *notOp) Compile() ir.Expr { return ir.Unary{Op: "not", Arg: n.arg.Compile()} }
func (n *notOp) Add(o Mixed) Expr { return exprBase{n}.Add(o) }
func (n *notOp) Sub(o Mixed) Expr { return exprBase{n}.Sub(o) }
func (n *notOp) Eq(o Mixed) Expr  { return exprBase{n}.Eq(o) }
func (n *notOp) Ne(o Mixed) Expr  { return exprBase{n}.Ne(o) }
func (n *notOp) Lt(o Mixed) Expr  { return exprBase{n}.Lt(o) }
func (n *notOp) Le(o Mixed) Expr  { return exprBase{n}.Le(o) }
func (n *notOp) Gt(o Mixed) Expr  { return exprBase{n}.Gt(o) }
func (n *notOp) Ge(o Mixed) Expr  { return exprBase{n}.Ge(o) }
func (n *notOp) And(o Mixed) Expr { return exprBase{n}.And(o) }
func (n *notOp) Or(o Mixed) Expr  { return exprBase{n}.Or(o) }
func (n *notOp) Not() Expr        { return &notOp{n} }

type binOp struct {
	op    ir.BinOp
	left  Expr
	right Expr
}

func (b *binOp) Compile() ir.Expr {
	return ir.Binary{Op: b.op, Left: b.left.Compile(), Right: b.right.Compile()}
}
func (b *binOp) Add(o Mixed) Expr { return exprBase{b}.Add(o) }
func (b *binOp) Sub(o Mixed) Expr { return exprBase{b}.Sub(o) }
func (b *binOp) Eq(o Mixed) Expr  { return exprBase{b}.Eq(o) }
func (b *binOp) Ne(o Mixed) Expr  { return exprBase{b}.Ne(o) }
func (b *binOp) Lt(o Mixed) Expr  { return exprBase{b}.Lt(o) }
func (b *binOp) Le(o Mixed) Expr  { return exprBase{b}.Le(o) }
func (b *binOp) Gt(o Mixed) Expr  { return exprBase{b}.Gt(o) }
func (b *binOp) Ge(o Mixed) Expr  { return exprBase{b}.Ge(o) }
func (b *binOp) And(o Mixed) Expr { return exprBase{b}.And(o) }
func (b *binOp) Or(o Mixed) Expr  { return exprBase{b}.Or(o) }
func (b *binOp) Not() Expr        { return &notOp{b} }

// Strs builds a Concat expression joining each part's string rendering.
func Strs(parts ...Mixed) Expr {
	es := make([]Expr, len(parts))
	for i, p := range parts {
		es[i] = Lit(p)
	}
	c := &concat{parts: es}
	c.exprBase.self = c
	return c
}

type concat struct {
	exprBase
	parts []Expr
}

func (c *concat) Compile() ir.Expr {
	parts := make([]ir.Expr, len(c.parts))
	for i, p := range c.parts {
		parts[i] = p.Compile()
	}
	return ir.Concat{Parts: parts}
}

// Call builds a named function invocation. NoAdjust mirrors the IR flag
// of the same name: set it true only when the call must bypass the Lua
// backend's per-command adjustment patches.
func Call(name string, noAdjust bool, args ...Mixed) Expr {
	es := make([]Expr, len(args))
	for i, a := range args {
		es[i] = Lit(a)
	}
	c := &call{name: name, args: es, noAdjust: noAdjust}
	c.exprBase.self = c
	return c
}

type call struct {
	exprBase
	name     string
	args     []Expr
	noAdjust bool
}

func (c *call) Compile() ir.Expr {
	args := make([]ir.Expr, len(c.args))
	for i, a := range c.args {
		args[i] = a.Compile()
	}
	return ir.Call{Name: c.name, Args: args, NoAdjust: c.noAdjust}
}

// FindFn builds string.find(haystack, needle[, startIndex]).
func FindFn(haystack, needle Mixed, startIndex Mixed) Expr {
	if startIndex == nil {
		return Call("string.find", false, haystack, needle)
	}
	return Call("string.find", false, haystack, needle, startIndex)
}

// FromJSON builds cjson.decode(arg).
func FromJSON(arg Mixed) Expr { return Call("cjson.decode", false, arg) }

// ToJSON builds cjson.encode(arg).
func ToJSON(arg Mixed) Expr { return Call("cjson.encode", false, arg) }

// ToNum builds tonumber(arg).
func ToNum(arg Mixed) Expr { return Call("tonumber", false, arg) }

// ToStr builds tostring(arg).
func ToStr(arg Mixed) Expr { return Call("tostring", false, arg) }

// AsIntStr builds asintstr(arg), the project-specific floor-to-int helper.
func AsIntStr(arg Mixed) Expr { return Call("asintstr", false, arg) }

// RedisFn builds redis.call(name, key, args...).
func RedisFn(name string, key *KeyVariable, args ...Mixed) Expr {
	full := append([]Mixed{name, key}, args...)
	return Call("redis.call", false, full...)
}

// LogLevel enumerates the redis.log() severities.
type LogLevel string

const (
	LogDebug   LogLevel = "debug"
	LogVerbose LogLevel = "verbose"
	LogNotice  LogLevel = "notice"
	LogWarning LogLevel = "warning"
)

var logLevelConstants = map[LogLevel]string{
	LogDebug:   "redis.LOG_DEBUG",
	LogVerbose: "redis.LOG_VERBOSE",
	LogNotice:  "redis.LOG_NOTICE",
	LogWarning: "redis.LOG_WARNING",
}

// LogFn builds redis.log(level, message).
func LogFn(level LogLevel, message Mixed) Expr {
	raw, ok := logLevelConstants[level]
	if !ok {
		panic("symbolic: unknown log level " + string(level))
	}
	return Call("redis.log", false, Constant(raw), message)
}
