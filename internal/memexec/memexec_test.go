package memexec

import (
	"testing"

	"github.com/mnorrsken/scriptkv/internal/ir"
	"github.com/mnorrsken/scriptkv/internal/symbolic"
	"github.com/mnorrsken/scriptkv/internal/value"
)

func arithmeticBranchSeq(t *testing.T) (*Program, *symbolic.Context) {
	t.Helper()
	ctx := symbolic.NewContext()
	a, err := ctx.AddArg("a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ctx.AddArg("b")
	if err != nil {
		t.Fatal(err)
	}
	c := ctx.AddLocal(5)
	d := ctx.AddLocal(0.0)
	then, els := ctx.If(a.Add(b).Ge(10))
	then.Add(c.Assign(a.Sub(b)))
	then.Add(d.Assign(2.5))
	els.Add(d.Assign(7.5))
	ctx.SetReturnValue(c.Add(d))
	return Compile(ctx.Compile()), ctx
}

func TestArithmeticBranch(t *testing.T) {
	prog, _ := arithmeticBranchSeq(t)
	cases := []struct {
		a, b float64
		want float64
	}{
		{2, 4, 12.5},
		{3, 7, -1.5},
		{13, 2, 13.5},
	}
	for _, c := range cases {
		rt := NewRuntime(nil)
		result, err := rt.RunScript(prog, nil, map[string]value.Value{
			"a": value.Float(c.a),
			"b": value.Float(c.b),
		})
		if err != nil {
			t.Fatalf("a=%v b=%v: %v", c.a, c.b, err)
		}
		got, err := value.ToNumber(result)
		if err != nil {
			t.Fatalf("a=%v b=%v: result not numeric: %v", c.a, c.b, err)
		}
		num := got.Flt
		if got.Kind == value.KindInt {
			num = float64(got.Int)
		}
		if num != c.want {
			t.Fatalf("a=%v b=%v: got %v, want %v", c.a, c.b, num, c.want)
		}
	}
}

func monotonicSetterProgram(t *testing.T) *Program {
	t.Helper()
	ctx := symbolic.NewContext()
	k, err := ctx.AddKey("k")
	if err != nil {
		t.Fatal(err)
	}
	a, err := ctx.AddArg("a")
	if err != nil {
		t.Fatal(err)
	}
	cur := symbolic.RedisFn("get", k)
	then, _ := ctx.If(symbolic.ToNum(cur.Or(0)).Le(a))
	then.Add(symbolic.RedisFn("set", k, a))
	r := ctx.AddLocal(symbolic.RedisFn("get", k))
	notNil, _ := ctx.If(r.Ne(nil))
	notNil.Add(r.Assign(symbolic.ToNum(r)))
	ctx.SetReturnValue(r)
	return Compile(ctx.Compile())
}

func TestMonotonicSetter(t *testing.T) {
	prog := monotonicSetterProgram(t)
	rt := NewRuntime(nil)

	run := func(key string, a float64) value.Value {
		result, err := rt.RunScript(prog, map[string]string{"k": key}, map[string]value.Value{"a": value.Float(a)})
		if err != nil {
			t.Fatalf("run(%s,%v): %v", key, a, err)
		}
		return result
	}

	cases := []struct {
		key  string
		a    float64
		want float64
	}{
		{"foo", 1, 1},
		{"foo", 3, 3},
		{"foo", 2, 3},
		{"bar", 5, 5},
		{"bar", 2, 5},
	}
	for _, c := range cases {
		got := run(c.key, c.a)
		num, err := value.ToNumber(got)
		if err != nil {
			t.Fatalf("key=%s a=%v: not numeric: %v", c.key, c.a, err)
		}
		n := num.Flt
		if num.Kind == value.KindInt {
			n = float64(num.Int)
		}
		if n != c.want {
			t.Fatalf("key=%s a=%v: got %v, want %v", c.key, c.a, n, c.want)
		}
	}

	foo, err := rt.Call("get", value.Str("foo"))
	if err != nil || foo.Str != "3" {
		t.Fatalf("get(foo) = %v, %v, want \"3\"", foo, err)
	}
	bar, err := rt.Call("get", value.Str("bar"))
	if err != nil || bar.Str != "5" {
		t.Fatalf("get(bar) = %v, %v, want \"5\"", bar, err)
	}
}

// TestUninitVariableDetection exercises Property 6: reading a local
// before its first assignment raises UninitVariableError. The symbolic
// builder always gives AddLocal an initial value, so the only way to
// reach an unassigned slot is a local declared inside a branch that
// never runs — built here directly against the IR, bypassing the
// builder, to reach the compiler's declare-before-read guard.
func TestUninitVariableDetection(t *testing.T) {
	varRef := ir.RefID{Kind: ir.RefVar, Name: "var_0"}
	seq := ir.Sequence{
		Kind: ir.SeqScript,
		Cmds: []ir.Stmt{
			ir.Branch{
				Cond: ir.Val{Type: ir.TypeBool, Value: value.Bool(false)},
				Then: ir.Sequence{Kind: ir.SeqPlain, Cmds: []ir.Stmt{
					ir.Declare{Target: varRef, Value: ir.Val{Type: ir.TypeInt, Value: value.Int(0)}},
				}},
				Else: ir.Sequence{Kind: ir.SeqPlain},
			},
			ir.Return{Value: ir.Ref{ID: varRef}},
		},
	}
	prog := Compile(seq)

	rt := NewRuntime(nil)
	_, err := rt.RunScript(prog, nil, nil)
	if _, ok := err.(*UninitVariableError); !ok {
		t.Fatalf("expected *UninitVariableError, got %T: %v", err, err)
	}
}

// TestPipelineAtomicity exercises Property 5: a pipeline's queued
// commands apply as one atomic batch on Commit, and Abort with queued,
// unexecuted commands raises UnexecutedPipelineError without mutating the
// parent state.
func TestPipelineAtomicity(t *testing.T) {
	rt := NewRuntime(nil)

	pipe := rt.Pipeline()
	pipe.Queue("set", value.Str("x"), value.Str("1"))
	pipe.Queue("set", value.Str("y"), value.Str("2"))
	if _, err := pipe.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	x, err := rt.Call("get", value.Str("x"))
	if err != nil || x.Str != "1" {
		t.Fatalf("get(x) = %v, %v, want \"1\"", x, err)
	}
	y, err := rt.Call("get", value.Str("y"))
	if err != nil || y.Str != "2" {
		t.Fatalf("get(y) = %v, %v, want \"2\"", y, err)
	}

	abandoned := rt.Pipeline()
	abandoned.Queue("set", value.Str("z"), value.Str("3"))
	err = abandoned.Abort()
	var unexec *UnexecutedPipelineError
	if err == nil {
		t.Fatal("expected UnexecutedPipelineError from Abort with queued commands")
	} else if !isUnexecutedPipelineError(err, &unexec) {
		t.Fatalf("expected UnexecutedPipelineError, got %T: %v", err, err)
	}

	z, err := rt.Call("exists", value.Str("z"))
	if err != nil {
		t.Fatal(err)
	}
	if z.Int != 0 {
		t.Fatal("aborted pipeline must not have mutated parent state")
	}
}

func isUnexecutedPipelineError(err error, target **UnexecutedPipelineError) bool {
	e, ok := err.(*UnexecutedPipelineError)
	if ok {
		*target = e
	}
	return ok
}
