package memexec

import (
	"github.com/mnorrsken/scriptkv/internal/ir"
	"github.com/mnorrsken/scriptkv/internal/value"
)

type exprFn func(s *execState) (value.Value, error)
type cmdFn func(s *execState) error

// compileCtx tracks local-slot allocation for one top-level script
// compile, the Go counterpart of the source project's CmdContext.
// RefVar and RefIndex bindings share this flat namespace, matching how
// the original treats "var" and "index" assign targets identically.
type compileCtx struct {
	localNames map[string]int
	localCount int
}

func newCompileCtx() *compileCtx {
	return &compileCtx{localNames: map[string]int{}}
}

func (c *compileCtx) declare(name string) int {
	ix := c.localCount
	c.localCount++
	c.localNames[name] = ix
	return ix
}

// Program is a compiled, runnable script.
type Program struct {
	run      cmdFn
	frame    int
	keyOrder []string
	argOrder []string
}

// Compile lowers a SeqScript ir.Sequence into a runnable Program.
func Compile(seq ir.Sequence) *Program {
	if seq.Kind != ir.SeqScript {
		panic("memexec: Compile requires a script-kind sequence")
	}
	ctx := newCompileCtx()
	cmds := compileCmds(ctx, seq.Cmds)
	return &Program{
		run:      func(s *execState) error { return runAll(cmds, s) },
		frame:    ctx.localCount,
		keyOrder: seq.KeyV,
		argOrder: seq.ArgV,
	}
}

// Run executes the program once against fresh keys/args bindings.
func (p *Program) Run(
	keys map[string]string, args map[string]value.Value,
	registry *Registry, machine *Machine,
) (value.Value, error) {
	s := &execState{registry: registry, machine: machine, keys: keys, args: args}
	s.pushFrame(p.frame)
	for _, k := range p.keyOrder {
		s.keyv = append(s.keyv, keys[k])
	}
	for _, a := range p.argOrder {
		s.argv = append(s.argv, args[a])
	}
	if err := p.run(s); err != nil {
		return value.Null(), err
	}
	if !s.hasRet {
		return value.Null(), nil
	}
	if value.IsEmptyCollection(s.ret) {
		return value.Null(), nil
	}
	return s.ret, nil
}

func runAll(cmds []cmdFn, s *execState) error {
	for _, c := range cmds {
		if err := c(s); err != nil {
			return err
		}
	}
	return nil
}

func compileCmds(ctx *compileCtx, stmts []ir.Stmt) []cmdFn {
	out := make([]cmdFn, len(stmts))
	for i, st := range stmts {
		out[i] = compileStmt(ctx, st)
	}
	return out
}

func compileSeq(ctx *compileCtx, seq ir.Sequence) cmdFn {
	cmds := compileCmds(ctx, seq.Cmds)
	return func(s *execState) error { return runAll(cmds, s) }
}

func compileStmt(ctx *compileCtx, st ir.Stmt) cmdFn {
	switch c := st.(type) {
	case ir.Declare:
		return compileAssign(ctx, c.Target, c.Value, true)
	case ir.Assign:
		return compileAssign(ctx, c.Target, c.Value, false)
	case ir.AssignAt:
		return compileAssignAt(ctx, c)
	case ir.ExprStmt:
		e := compileExpr(ctx, c.Expr)
		return func(s *execState) error { _, err := e(s); return err }
	case ir.Branch:
		cond := compileExpr(ctx, c.Cond)
		then := compileSeq(ctx, c.Then)
		els := compileSeq(ctx, c.Else)
		return func(s *execState) error {
			v, err := cond(s)
			if err != nil {
				return err
			}
			if v.Truthy() {
				return then(s)
			}
			return els(s)
		}
	case ir.For:
		return compileFor(ctx, c)
	case ir.While:
		cond := compileExpr(ctx, c.Cond)
		body := compileSeq(ctx, c.Body)
		return func(s *execState) error {
			for {
				v, err := cond(s)
				if err != nil {
					return err
				}
				if !v.Truthy() {
					return nil
				}
				if err := body(s); err != nil {
					return err
				}
			}
		}
	case ir.Return:
		if c.Value == nil {
			return func(s *execState) error {
				s.ret, s.hasRet = value.Null(), true
				return nil
			}
		}
		e := compileExpr(ctx, c.Value)
		return func(s *execState) error {
			v, err := e(s)
			if err != nil {
				return err
			}
			s.ret, s.hasRet = v, true
			return nil
		}
	default:
		panic("memexec: unknown statement kind")
	}
}

func compileAssign(ctx *compileCtx, target ir.RefID, value_ ir.Expr, declare bool) cmdFn {
	rhs := compileExpr(ctx, value_)
	switch target.Kind {
	case ir.RefVar, ir.RefIndex:
		var ix int
		if declare {
			ix = ctx.declare(target.Name)
		} else {
			ix = ctx.localNames[target.Name]
		}
		return func(s *execState) error {
			v, err := rhs(s)
			if err != nil {
				return err
			}
			s.top().locals[ix] = v
			return nil
		}
	case ir.RefArg:
		name := target.Name
		return func(s *execState) error {
			v, err := rhs(s)
			if err != nil {
				return err
			}
			s.top().argNames[name] = v
			return nil
		}
	case ir.RefKey:
		name := target.Name
		return func(s *execState) error {
			v, err := rhs(s)
			if err != nil {
				return err
			}
			s.top().keyNames[name] = value.ToDisplayString(v)
			return nil
		}
	default:
		panic("memexec: unknown ref kind in assign")
	}
}

func compileAssignAt(ctx *compileCtx, c ir.AssignAt) cmdFn {
	if c.Target.Kind != ir.RefVar {
		panic("memexec: cannot assign to position of non-local target")
	}
	ix := ctx.localNames[c.Target.Name]
	idxFn := compileExpr(ctx, c.Index)
	rhs := compileExpr(ctx, c.Value)
	return func(s *execState) error {
		raw := s.top().locals[ix]
		arr, ok := raw.(value.Value)
		if !ok {
			return &UninitVariableError{Name: c.Target.Name}
		}
		ixv, err := idxFn(s)
		if err != nil {
			return err
		}
		elem, err := rhs(s)
		if err != nil {
			return err
		}
		n := int(ixv.Int)
		if ixv.Kind == value.KindFloat {
			n = int(ixv.Flt)
		}
		if n == len(arr.List) {
			arr.List = append(arr.List, elem)
		} else {
			arr.List[n] = elem
		}
		s.top().locals[ix] = arr
		return nil
	}
}

func compileFor(ctx *compileCtx, c ir.For) cmdFn {
	if c.Index.Kind != ir.RefIndex || c.Value.Kind != ir.RefVar {
		panic("memexec: malformed for-loop bindings")
	}
	ixSlot := ctx.declare(c.Index.Name)
	valSlot := ctx.declare(c.Value.Name)
	arrFn := compileExpr(ctx, c.Array)
	body := compileSeq(ctx, c.Body)
	return func(s *execState) error {
		arr, err := arrFn(s)
		if err != nil {
			return err
		}
		for i, v := range arr.List {
			s.top().locals[ixSlot] = value.Int(int64(i))
			s.top().locals[valSlot] = v
			if err := body(s); err != nil {
				return err
			}
		}
		return nil
	}
}

func compileExpr(ctx *compileCtx, e ir.Expr) exprFn {
	switch x := e.(type) {
	case ir.Ref:
		return compileRef(ctx, x.ID)
	case ir.LoadJSONArg:
		ix := x.Index
		return func(s *execState) (value.Value, error) { return s.argv[ix], nil }
	case ir.LoadKeyArg:
		ix := x.Index
		return func(s *execState) (value.Value, error) { return value.Str(s.keyv[ix]), nil }
	case ir.Val:
		v := x.Value
		if v.Kind == value.KindList {
			// Decode a fresh copy on every evaluation so that AssignAt on a
			// local never writes through to the literal held by the IR.
			encoded, err := value.Encode(v)
			if err != nil {
				panic("memexec: literal list is not encodable: " + err.Error())
			}
			return func(s *execState) (value.Value, error) { return value.Decode(encoded) }
		}
		return func(s *execState) (value.Value, error) { return v, nil }
	case ir.Constant:
		raw := x.Raw
		return func(s *execState) (value.Value, error) {
			c, ok := constants[raw]
			if !ok {
				return value.Null(), &UnknownFunctionError{Name: raw}
			}
			return c, nil
		}
	case ir.Unary:
		arg := compileExpr(ctx, x.Arg)
		return func(s *execState) (value.Value, error) {
			v, err := arg(s)
			if err != nil {
				return value.Null(), err
			}
			return value.Bool(!v.Truthy()), nil
		}
	case ir.Binary:
		return compileBinary(ctx, x)
	case ir.ArrayAt:
		ref := compileRef(ctx, x.Var)
		ixFn := compileExpr(ctx, x.Index)
		return func(s *execState) (value.Value, error) {
			arr, err := ref(s)
			if err != nil {
				return value.Null(), err
			}
			ixv, err := ixFn(s)
			if err != nil {
				return value.Null(), err
			}
			n := int(ixv.Int)
			if ixv.Kind == value.KindFloat {
				n = int(ixv.Flt)
			}
			if n < 0 || n >= len(arr.List) {
				return value.Null(), &TypeMismatchError{Detail: "array index out of range"}
			}
			return arr.List[n], nil
		}
	case ir.ArrayLen:
		ref := compileRef(ctx, x.Var)
		return func(s *execState) (value.Value, error) {
			arr, err := ref(s)
			if err != nil {
				return value.Null(), err
			}
			return value.Int(int64(len(arr.List))), nil
		}
	case ir.Concat:
		parts := make([]exprFn, len(x.Parts))
		for i, p := range x.Parts {
			parts[i] = compileExpr(ctx, p)
		}
		return func(s *execState) (value.Value, error) {
			out := ""
			for _, p := range parts {
				v, err := p(s)
				if err != nil {
					return value.Null(), err
				}
				out += value.ToDisplayString(v)
			}
			return value.Str(out), nil
		}
	case ir.Call:
		return compileCall(ctx, x)
	default:
		panic("memexec: unknown expression kind")
	}
}

var constants = map[string]value.Value{
	"redis.LOG_DEBUG":   value.Str("DEBUG"),
	"redis.LOG_VERBOSE": value.Str("VERBOSE"),
	"redis.LOG_NOTICE":  value.Str("NOTICE"),
	"redis.LOG_WARNING": value.Str("WARNING"),
}

func compileRef(ctx *compileCtx, ref ir.RefID) exprFn {
	switch ref.Kind {
	case ir.RefVar, ir.RefIndex:
		name := ref.Name
		ix, known := ctx.localNames[name]
		return func(s *execState) (value.Value, error) {
			if !known {
				return value.Null(), &UninitVariableError{Name: name}
			}
			raw := s.top().locals[ix]
			if raw == uninit {
				return value.Null(), &UninitVariableError{Name: name}
			}
			return raw.(value.Value), nil
		}
	case ir.RefArg:
		name := ref.Name
		readable := ref.Readable
		return func(s *execState) (value.Value, error) {
			v, ok := s.top().argNames[name]
			if !ok {
				return value.Null(), &UnknownFunctionError{Name: "unknown argument " + readable}
			}
			return v, nil
		}
	case ir.RefKey:
		name := ref.Name
		readable := ref.Readable
		return func(s *execState) (value.Value, error) {
			v, ok := s.top().keyNames[name]
			if !ok {
				return value.Null(), &UnknownFunctionError{Name: "unknown key " + readable}
			}
			return value.Str(v), nil
		}
	default:
		panic("memexec: unknown ref kind")
	}
}

func compileBinary(ctx *compileCtx, x ir.Binary) exprFn {
	lhs := compileExpr(ctx, x.Left)
	rhs := compileExpr(ctx, x.Right)
	op := x.Op
	return func(s *execState) (value.Value, error) {
		l, err := lhs(s)
		if err != nil {
			return value.Null(), err
		}
		switch op {
		case ir.OpAnd:
			if !l.Truthy() {
				return l, nil
			}
			return rhs(s)
		case ir.OpOr:
			if l.Truthy() {
				return l, nil
			}
			return rhs(s)
		}
		r, err := rhs(s)
		if err != nil {
			return value.Null(), err
		}
		switch op {
		case ir.OpAdd:
			return value.Add(l, r), nil
		case ir.OpSub:
			return value.Sub(l, r), nil
		case ir.OpEq:
			return value.Bool(value.Equal(l, r)), nil
		case ir.OpNe:
			return value.Bool(!value.Equal(l, r)), nil
		case ir.OpLt:
			return value.Bool(value.Compare(l, r) < 0), nil
		case ir.OpLe:
			return value.Bool(value.Compare(l, r) <= 0), nil
		case ir.OpGt:
			return value.Bool(value.Compare(l, r) > 0), nil
		case ir.OpGe:
			return value.Bool(value.Compare(l, r) >= 0), nil
		default:
			return value.Null(), &TypeMismatchError{Detail: "unknown binary operator"}
		}
	}
}

func compileCall(ctx *compileCtx, x ir.Call) exprFn {
	args := make([]exprFn, len(x.Args))
	for i, a := range x.Args {
		args[i] = compileExpr(ctx, a)
	}
	name := x.Name
	return func(s *execState) (value.Value, error) {
		vals := make([]value.Value, len(args))
		for i, a := range args {
			v, err := a(s)
			if err != nil {
				return value.Null(), err
			}
			vals[i] = v
		}
		if name == "redis.call" {
			if len(vals) < 1 {
				return value.Null(), &ArgCountMismatchError{Name: name, Got: len(vals)}
			}
			cmdName := value.ToDisplayString(vals[0])
			return s.registry.RedisCall(s.machine, cmdName, vals[1:])
		}
		return s.registry.CallFn(name, vals)
	}
}
