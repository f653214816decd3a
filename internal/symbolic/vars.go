package symbolic

import (
	"fmt"

	"github.com/mnorrsken/scriptkv/internal/ir"
)

// variable is the common base for every name-bearing binding (arg, key,
// local, loop index/value). It is an Expr (a variable reads as its own
// value) and additionally supports indexing/length for array-valued
// bindings and assignment.
type variable struct {
	exprBase
	index int
}

func (v *variable) SetIndex(i int) { v.index = i }
func (v *variable) GetIndex() int  { return v.index }

// Len builds an ArrayLen expression over this binding.
func (v *variable) lenExpr(ref ir.RefID) Expr {
	a := &arrayLen{ref: ref}
	a.exprBase.self = a
	return a
}

// at builds an ArrayAt expression over this binding.
func (v *variable) atExpr(ref ir.RefID, index Mixed) Expr {
	a := &arrayAt{ref: ref, index: Lit(index)}
	a.exprBase.self = a
	return a
}

type arrayAt struct {
	exprBase
	ref   ir.RefID
	index Expr
}

func (a *arrayAt) Compile() ir.Expr {
	return ir.ArrayAt{Var: a.ref, Index: a.index.Compile()}
}

type arrayLen struct {
	exprBase
	ref ir.RefID
}

func (a *arrayLen) Compile() ir.Expr { return ir.ArrayLen{Var: a.ref} }

// JSONArg is a positional named argument declared by Context.AddArg.
type JSONArg struct {
	variable
	name string
}

func newJSONArg(name string) *JSONArg {
	a := &JSONArg{name: name}
	a.exprBase.self = a
	return a
}

func (a *JSONArg) ref() ir.RefID {
	return ir.RefID{Kind: ir.RefArg, Name: fmt.Sprintf("arg_%d", a.index), Readable: a.name}
}

func (a *JSONArg) Compile() ir.Expr { return ir.Ref{ID: a.ref()} }
func (a *JSONArg) At(index Mixed) Expr { return a.atExpr(a.ref(), index) }
func (a *JSONArg) Len() Expr           { return a.lenExpr(a.ref()) }

func (a *JSONArg) declare() ir.Declare {
	return ir.Declare{
		Target: a.ref(),
		Value:  ir.LoadJSONArg{Index: a.index},
	}
}

// KeyVariable is a positional named key declared by Context.AddKey.
type KeyVariable struct {
	variable
	name string
}

func newKeyVariable(name string) *KeyVariable {
	k := &KeyVariable{name: name}
	k.exprBase.self = k
	return k
}

func (k *KeyVariable) ref() ir.RefID {
	return ir.RefID{Kind: ir.RefKey, Name: fmt.Sprintf("key_%d", k.index), Readable: k.name}
}

func (k *KeyVariable) Compile() ir.Expr { return ir.Ref{ID: k.ref()} }

func (k *KeyVariable) declare() ir.Declare {
	return ir.Declare{
		Target: k.ref(),
		Value:  ir.LoadKeyArg{Index: k.index},
	}
}

// LocalVariable is a script-local binding declared by Context.AddLocal or
// Sequence loop machinery.
type LocalVariable struct {
	variable
	init Expr
}

func newLocalVariable(init Mixed) *LocalVariable {
	l := &LocalVariable{init: Lit(init)}
	l.exprBase.self = l
	return l
}

func (l *LocalVariable) ref() ir.RefID {
	return ir.RefID{Kind: ir.RefVar, Name: fmt.Sprintf("var_%d", l.index)}
}

func (l *LocalVariable) Compile() ir.Expr  { return ir.Ref{ID: l.ref()} }
func (l *LocalVariable) At(index Mixed) Expr { return l.atExpr(l.ref(), index) }
func (l *LocalVariable) Len() Expr           { return l.lenExpr(l.ref()) }

func (l *LocalVariable) declare() ir.Declare {
	return ir.Declare{Target: l.ref(), Value: l.init.Compile()}
}

// Assign builds a statement assigning val to this local.
func (l *LocalVariable) Assign(val Mixed) Stmt {
	expr := Lit(val)
	target := l.ref()
	return stmtFn(func() ir.Stmt {
		return ir.Assign{Target: target, Value: expr.Compile()}
	})
}

// SetAt builds a statement assigning val to index of this local, which
// must hold a list value.
func (l *LocalVariable) SetAt(index, val Mixed) Stmt {
	ix := Lit(index)
	expr := Lit(val)
	target := l.ref()
	return stmtFn(func() ir.Stmt {
		return ir.AssignAt{Target: target, Index: ix.Compile(), Value: expr.Compile()}
	})
}

// indexVariable is the 0-based loop counter of a for-loop.
type indexVariable struct{ variable }

func newIndexVariable() *indexVariable {
	v := &indexVariable{}
	v.exprBase.self = v
	return v
}

func (v *indexVariable) ref() ir.RefID {
	return ir.RefID{Kind: ir.RefIndex, Name: fmt.Sprintf("ix_%d", v.index)}
}
func (v *indexVariable) Compile() ir.Expr { return ir.Ref{ID: v.ref()} }

// valueVariable is the element binding of a for-loop.
type valueVariable struct{ variable }

func newValueVariable() *valueVariable {
	v := &valueVariable{}
	v.exprBase.self = v
	return v
}

func (v *valueVariable) ref() ir.RefID {
	return ir.RefID{Kind: ir.RefVar, Name: fmt.Sprintf("val_%d", v.index)}
}
func (v *valueVariable) Compile() ir.Expr    { return ir.Ref{ID: v.ref()} }
func (v *valueVariable) At(index Mixed) Expr { return v.atExpr(v.ref(), index) }
func (v *valueVariable) Len() Expr           { return v.lenExpr(v.ref()) }
