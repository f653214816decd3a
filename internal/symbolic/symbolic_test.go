package symbolic

import (
	"testing"

	"github.com/mnorrsken/scriptkv/internal/ir"
)

func TestContextCompileProducesScriptSequence(t *testing.T) {
	ctx := NewContext()
	k, err := ctx.AddKey("k")
	if err != nil {
		t.Fatal(err)
	}
	a, err := ctx.AddArg("a")
	if err != nil {
		t.Fatal(err)
	}
	ctx.Add(RedisFn("set", k, a))
	ctx.SetReturnValue(1)

	seq := ctx.Compile()
	if seq.Kind != ir.SeqScript {
		t.Fatalf("expected SeqScript, got %v", seq.Kind)
	}
	if len(seq.KeyV) != 1 || seq.KeyV[0] != "k" {
		t.Fatalf("expected KeyV = [k], got %v", seq.KeyV)
	}
	if len(seq.ArgV) != 1 || seq.ArgV[0] != "a" {
		t.Fatalf("expected ArgV = [a], got %v", seq.ArgV)
	}
	// Declare key, declare arg, the set() expr-stmt, the return.
	if len(seq.Cmds) != 4 {
		t.Fatalf("expected 4 statements, got %d: %#v", len(seq.Cmds), seq.Cmds)
	}
}

func TestAddKeyDuplicateName(t *testing.T) {
	ctx := NewContext()
	if _, err := ctx.AddKey("k"); err != nil {
		t.Fatal(err)
	}
	_, err := ctx.AddKey("k")
	if _, ok := err.(*DuplicateNameError); !ok {
		t.Fatalf("expected *DuplicateNameError, got %T: %v", err, err)
	}
}

func TestAddArgDuplicateName(t *testing.T) {
	ctx := NewContext()
	if _, err := ctx.AddArg("a"); err != nil {
		t.Fatal(err)
	}
	_, err := ctx.AddArg("a")
	if _, ok := err.(*DuplicateNameError); !ok {
		t.Fatalf("expected *DuplicateNameError, got %T: %v", err, err)
	}
}

func TestRedisFnArgLayout(t *testing.T) {
	k, err := NewContext().AddKey("k")
	if err != nil {
		t.Fatal(err)
	}
	compiled := RedisFn("set", k, "v", "GET").Compile().(ir.Call)
	if compiled.Name != "redis.call" {
		t.Fatalf("expected redis.call, got %s", compiled.Name)
	}
	if len(compiled.Args) != 4 {
		t.Fatalf("expected 4 args (name,key,value,flag), got %d", len(compiled.Args))
	}
	name := compiled.Args[0].(ir.Val)
	if name.Value.Str != "set" {
		t.Fatalf("expected args[0] to be the command name literal, got %v", name)
	}
}

func TestFindFnOmitsStartIndexWhenNil(t *testing.T) {
	compiled := FindFn("haystack", "needle", nil).Compile().(ir.Call)
	if len(compiled.Args) != 2 {
		t.Fatalf("expected 2 args without a start index, got %d", len(compiled.Args))
	}
	compiled = FindFn("haystack", "needle", 3).Compile().(ir.Call)
	if len(compiled.Args) != 3 {
		t.Fatalf("expected 3 args with a start index, got %d", len(compiled.Args))
	}
}
