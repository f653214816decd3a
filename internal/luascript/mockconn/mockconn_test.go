package mockconn_test

import (
	"context"
	"testing"

	"github.com/mnorrsken/scriptkv/internal/luascript"
	"github.com/mnorrsken/scriptkv/internal/luascript/mockconn"
	"github.com/mnorrsken/scriptkv/internal/memexec"
	"github.com/mnorrsken/scriptkv/internal/symbolic"
	"github.com/mnorrsken/scriptkv/internal/value"
)

func monotonicSetterSeq(t *testing.T) *symbolic.Context {
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
	return ctx
}

// TestMonotonicSetterEquivalence exercises Property 1 (backend
// equivalence) for seed scenario 2: the memory backend and the Lua
// backend (run here over mockconn rather than a real server, since both
// ultimately dispatch through the same internal/memexec command
// implementations) must agree on every call's result and on the final
// state of every key.
func TestMonotonicSetterEquivalence(t *testing.T) {
	seq := monotonicSetterSeq(t).Compile()

	memProg := memexec.Compile(seq)
	memRT := memexec.NewRuntime(nil)

	luaProg, err := luascript.Compile(seq)
	if err != nil {
		t.Fatal(err)
	}
	luaRT := memexec.NewRuntime(nil)
	conn := mockconn.New(luaRT.Machine(), memexec.NewRegistry(nil))
	backend := luascript.NewBackend(conn)
	ctx := context.Background()
	exec, err := backend.Bind(ctx, luaProg)
	if err != nil {
		t.Fatal(err)
	}

	calls := []struct {
		key string
		a   float64
	}{
		{"foo", 1}, {"foo", 3}, {"foo", 2}, {"bar", 5}, {"bar", 2},
	}
	for _, c := range calls {
		keys := map[string]string{"k": c.key}
		args := map[string]value.Value{"a": value.Float(c.a)}

		memResult, err := memRT.RunScript(memProg, keys, args)
		if err != nil {
			t.Fatalf("memory backend, key=%s a=%v: %v", c.key, c.a, err)
		}
		luaResult, err := exec(ctx, keys, args)
		if err != nil {
			t.Fatalf("lua backend, key=%s a=%v: %v", c.key, c.a, err)
		}
		if !value.Equal(memResult, luaResult) {
			t.Fatalf("key=%s a=%v: memory=%v, lua=%v", c.key, c.a, memResult, luaResult)
		}
	}

	for _, key := range []string{"foo", "bar"} {
		memGet, err := memRT.Call("get", value.Str(key))
		if err != nil {
			t.Fatal(err)
		}
		luaGet, err := luaRT.Call("get", value.Str(key))
		if err != nil {
			t.Fatal(err)
		}
		if !value.Equal(memGet, luaGet) {
			t.Fatalf("final get(%s): memory=%v, lua=%v", key, memGet, luaGet)
		}
	}
}

func zsetDrainSeq(t *testing.T) *symbolic.Context {
	t.Helper()
	ctx := symbolic.NewContext()
	k, err := ctx.AddKey("k")
	if err != nil {
		t.Fatal(err)
	}
	prefix, err := ctx.AddArg("prefix")
	if err != nil {
		t.Fatal(err)
	}
	popped := symbolic.RedisFn("zpopmin", k, 5)
	kept := ctx.AddLocal([]symbolic.Mixed{})
	count := ctx.AddLocal(0)
	body, _, val := ctx.For(popped)
	member := val.(interface {
		At(index symbolic.Mixed) symbolic.Expr
	}).At(0)
	match, _ := body.If(symbolic.FindFn(member, prefix, 1).Ne(nil))
	match.Add(kept.SetAt(count, member))
	match.Add(count.Assign(count.Add(1)))
	ctx.SetReturnValue(kept)
	return ctx
}

// TestSortedSetDrainEquivalence exercises Property 1 on seed scenario 4's
// shape: zpopmin draining with a for-loop and a prefix filter, comparing
// memory and Lua (mockconn) results over identical seed state.
func TestSortedSetDrainEquivalence(t *testing.T) {
	seq := zsetDrainSeq(t).Compile()

	memProg := memexec.Compile(seq)
	memRT := memexec.NewRuntime(nil)
	memRT.Machine().ZAdd("zset", map[string]float64{
		"a_one": 1, "a_two": 2, "b_one": 3, "b_two": 4,
	})

	luaProg, err := luascript.Compile(seq)
	if err != nil {
		t.Fatal(err)
	}
	luaRT := memexec.NewRuntime(nil)
	luaRT.Machine().ZAdd("zset", map[string]float64{
		"a_one": 1, "a_two": 2, "b_one": 3, "b_two": 4,
	})
	conn := mockconn.New(luaRT.Machine(), memexec.NewRegistry(nil))
	backend := luascript.NewBackend(conn)
	ctx := context.Background()
	exec, err := backend.Bind(ctx, luaProg)
	if err != nil {
		t.Fatal(err)
	}

	keys := map[string]string{"k": "zset"}
	args := map[string]value.Value{"prefix": value.Str("a_")}

	memResult, err := memRT.RunScript(memProg, keys, args)
	if err != nil {
		t.Fatal(err)
	}
	luaResult, err := exec(ctx, keys, args)
	if err != nil {
		t.Fatal(err)
	}
	if !value.Equal(memResult, luaResult) {
		t.Fatalf("memory=%v, lua=%v", memResult, luaResult)
	}
}
