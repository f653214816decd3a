package symbolic

import (
	"fmt"

	"github.com/mnorrsken/scriptkv/internal/ir"
)

// Stmt is a buildable statement; Sequence.Add accepts either a Stmt or an
// Expr (the latter becomes an ExprStmt, i.e. "evaluate for side effect").
type Stmt interface {
	compile() ir.Stmt
}

// stmtFn adapts a plain closure to the Stmt interface, mirroring the
// source project's CmdHelper.
type stmtFn func() ir.Stmt

func (f stmtFn) compile() ir.Stmt { return f() }

// DuplicateNameError is returned by AddArg/AddKey when the readable name
// was already registered.
type DuplicateNameError struct{ Name string }

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("symbolic: duplicate name %q", e.Name)
}

// Sequence is an ordered, appendable list of statements. Every builder
// method (If/For/While) returns fresh child Sequences that share the
// parent Context's scope and loop-counter allocation.
type Sequence struct {
	ctx  *Context
	cmds []Stmt
}

func newSequence(ctx *Context) *Sequence {
	return &Sequence{ctx: ctx}
}

// Add appends a statement, or wraps a bare expression as a for-effect
// statement.
func (s *Sequence) Add(term any) {
	switch t := term.(type) {
	case Stmt:
		s.cmds = append(s.cmds, t)
	case Expr:
		expr := t
		s.cmds = append(s.cmds, stmtFn(func() ir.Stmt {
			return ir.ExprStmt{Expr: expr.Compile()}
		}))
	default:
		panic("symbolic: Add requires a Stmt or an Expr")
	}
}

func (s *Sequence) compileCmds() []ir.Stmt {
	out := make([]ir.Stmt, len(s.cmds))
	for i, c := range s.cmds {
		out[i] = c.compile()
	}
	return out
}

func (s *Sequence) compile() ir.Sequence {
	return ir.Sequence{Kind: ir.SeqPlain, Cmds: s.compileCmds()}
}

// If appends a branch and returns its then/else sub-sequences.
func (s *Sequence) If(cond Mixed) (then *Sequence, els *Sequence) {
	c := Lit(cond)
	then = newSequence(s.ctx)
	els = newSequence(s.ctx)
	s.cmds = append(s.cmds, stmtFn(func() ir.Stmt {
		return ir.Branch{Cond: c.Compile(), Then: then.compile(), Else: els.compile()}
	}))
	return then, els
}

// For appends a for-loop over array and returns its body sequence along
// with the 0-based index and element bindings.
func (s *Sequence) For(array Mixed) (body *Sequence, index Expr, val Expr) {
	arr := Lit(array)
	loopIx := s.ctx.nextLoop()
	ixVar := newIndexVariable()
	ixVar.SetIndex(loopIx)
	valVar := newValueVariable()
	valVar.SetIndex(loopIx)
	body = newSequence(s.ctx)
	s.cmds = append(s.cmds, stmtFn(func() ir.Stmt {
		return ir.For{
			Array: arr.Compile(),
			Index: ixVar.ref(),
			Value: valVar.ref(),
			Body:  body.compile(),
		}
	}))
	return body, ixVar, valVar
}

// While appends a while-loop and returns its body sequence.
func (s *Sequence) While(cond Mixed) (body *Sequence) {
	c := Lit(cond)
	body = newSequence(s.ctx)
	s.cmds = append(s.cmds, stmtFn(func() ir.Stmt {
		return ir.While{Cond: c.Compile(), Body: body.compile()}
	}))
	return body
}

// Context is the root script builder: Sequence plus the arg/key/local
// namespaces and loop-counter allocation. Built via NewContext.
type Context struct {
	Sequence
	argNames  map[string]bool
	keyNames  map[string]bool
	args      []string
	keys      []string
	locals    []*LocalVariable
	loopCount int
}

// NewContext returns a fresh builder with empty locals/args/keys.
func NewContext() *Context {
	ctx := &Context{
		argNames: map[string]bool{},
		keyNames: map[string]bool{},
	}
	ctx.Sequence.ctx = ctx
	return ctx
}

func (c *Context) nextLoop() int {
	n := c.loopCount
	c.loopCount++
	return n
}

// AddArg declares a new positional JSON argument and returns its handle.
func (c *Context) AddArg(readable string) (*JSONArg, error) {
	if c.argNames[readable] {
		return nil, &DuplicateNameError{Name: readable}
	}
	arg := newJSONArg(readable)
	arg.SetIndex(len(c.args))
	c.args = append(c.args, readable)
	c.argNames[readable] = true
	c.Add(stmtFn(func() ir.Stmt { return arg.declare() }))
	return arg, nil
}

// AddKey declares a new positional key and returns its handle.
func (c *Context) AddKey(readable string) (*KeyVariable, error) {
	if c.keyNames[readable] {
		return nil, &DuplicateNameError{Name: readable}
	}
	key := newKeyVariable(readable)
	key.SetIndex(len(c.keys))
	c.keys = append(c.keys, readable)
	c.keyNames[readable] = true
	c.Add(stmtFn(func() ir.Stmt { return key.declare() }))
	return key, nil
}

// AddLocal declares a new script-local variable initialised to init.
func (c *Context) AddLocal(init Mixed) *LocalVariable {
	local := newLocalVariable(init)
	local.SetIndex(len(c.locals))
	c.locals = append(c.locals, local)
	c.Add(stmtFn(func() ir.Stmt { return local.declare() }))
	return local
}

// SetReturnValue appends a return statement; pass nil for a valueless
// return.
func (c *Context) SetReturnValue(value Mixed) {
	if value == nil {
		c.Add(stmtFn(func() ir.Stmt { return ir.Return{Value: nil} }))
		return
	}
	expr := Lit(value)
	c.Add(stmtFn(func() ir.Stmt { return ir.Return{Value: expr.Compile()} }))
}

// Compile produces the finished script IR, carrying the arg/key ordering
// in declaration order; it performs no validation. Name-resolution errors (an undeclared
// var/index/arg/key reference) cannot occur by construction here since
// every Expr is built against a concrete binding handle; this mirrors the
// source project, which likewise only raises UnknownRefId for malformed
// IR assembled outside the builder.
func (c *Context) Compile() ir.Sequence {
	return ir.Sequence{
		Kind: ir.SeqScript,
		Cmds: c.compileCmds(),
		ArgV: append([]string(nil), c.args...),
		KeyV: append([]string(nil), c.keys...),
	}
}
