// Package ir defines the typed intermediate representation shared by the
// symbolic builder and both execution backends. Nodes are immutable once
// produced by Context.Compile; see internal/symbolic for construction.
package ir

import "github.com/mnorrsken/scriptkv/internal/value"

// RefKind distinguishes the four name-bearing reference kinds a script can
// declare: positional args, positional keys, plain locals, and the 0-based
// loop counter a for-loop introduces.
type RefKind string

const (
	RefArg   RefKind = "arg"
	RefKey   RefKind = "key"
	RefVar   RefKind = "var"
	RefIndex RefKind = "index"
)

// RefID names a previously declared binding. Readable is only populated
// for RefArg/RefKey and carries the user-facing name used for debugging
// and for Lua-comment annotation.
type RefID struct {
	Kind     RefKind
	Name     string
	Readable string
}

// ValueType tags the literal kind carried by a Val expression.
type ValueType string

const (
	TypeStr   ValueType = "str"
	TypeInt   ValueType = "int"
	TypeFloat ValueType = "float"
	TypeBool  ValueType = "bool"
	TypeList  ValueType = "list"
	TypeNone  ValueType = "none"
)

// BinOp enumerates the IR's binary operators.
type BinOp string

const (
	OpAdd BinOp = "add"
	OpSub BinOp = "sub"
	OpAnd BinOp = "and"
	OpOr  BinOp = "or"
	OpEq  BinOp = "eq"
	OpNe  BinOp = "ne"
	OpLt  BinOp = "lt"
	OpGt  BinOp = "gt"
	OpLe  BinOp = "le"
	OpGe  BinOp = "ge"
)

// Expr is any IR node that produces a value without an observable side
// effect other than a Call's function invocation.
type Expr interface {
	isExpr()
}

// Ref reads a previously declared arg/key/var/index binding.
type Ref struct{ ID RefID }

// LoadJSONArg reads the i-th element of the invocation's positional JSON
// argument vector (0-based).
type LoadJSONArg struct{ Index int }

// LoadKeyArg reads the i-th element of the invocation's positional key
// vector (0-based).
type LoadKeyArg struct{ Index int }

// Val is a literal of one of the six ValueType kinds.
type Val struct {
	Value value.Value
	Type  ValueType
}

// Constant is a named opaque value resolved by the backend, e.g. a Redis
// log-level code.
type Constant struct{ Raw string }

// Unary applies a unary operator, currently only logical negation.
type Unary struct {
	Op  string // "not"
	Arg Expr
}

// Binary applies one of the BinOp operators to two operands.
type Binary struct {
	Op    BinOp
	Left  Expr
	Right Expr
}

// ArrayAt indexes into a named array-valued binding (0-based at IR level).
type ArrayAt struct {
	Var   RefID
	Index Expr
}

// ArrayLen reads the length of a named array-valued binding.
type ArrayLen struct{ Var RefID }

// Concat joins a list of expressions into a single string.
type Concat struct{ Parts []Expr }

// Call invokes a named function. NoAdjust, once true, tells the Lua
// backend this Call has already been rewritten by an adjustment patch and
// must not be rewritten again.
type Call struct {
	Name     string
	Args     []Expr
	NoAdjust bool
}

func (Ref) isExpr()         {}
func (LoadJSONArg) isExpr() {}
func (LoadKeyArg) isExpr()  {}
func (Val) isExpr()         {}
func (Constant) isExpr()    {}
func (Unary) isExpr()       {}
func (Binary) isExpr()      {}
func (ArrayAt) isExpr()     {}
func (ArrayLen) isExpr()    {}
func (Concat) isExpr()      {}
func (Call) isExpr()        {}
