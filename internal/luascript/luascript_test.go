package luascript

import (
	"context"
	"strings"
	"testing"

	"github.com/mnorrsken/scriptkv/internal/symbolic"
	"github.com/mnorrsken/scriptkv/internal/value"
)

func monotonicSetterSeq(t *testing.T) (*symbolic.KeyVariable, *symbolic.JSONArg, *symbolic.Context) {
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
	return k, a, ctx
}

// TestEmissionDeterminism exercises Property 2: compiling the same IR
// twice produces the same script text.
func TestEmissionDeterminism(t *testing.T) {
	_, _, ctx := monotonicSetterSeq(t)
	seq := ctx.Compile()

	first, err := Compile(seq)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Compile(seq)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimRight(first.Text, " \t\n") != strings.TrimRight(second.Text, " \t\n") {
		t.Fatalf("expected deterministic emission, got:\n---\n%s\n---\n%s\n---", first.Text, second.Text)
	}
}

// TestKeyvArgvOrderPreserved checks Program.KeyOrder/ArgOrder match the
// declaration order from the symbolic builder, and that the emitted text
// carries the KEYV/ARGV comment bands.
func TestKeyvArgvOrderPreserved(t *testing.T) {
	_, _, ctx := monotonicSetterSeq(t)
	prog, err := Compile(ctx.Compile())
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.KeyOrder) != 1 || prog.KeyOrder[0] != "k" {
		t.Fatalf("expected KeyOrder = [k], got %v", prog.KeyOrder)
	}
	if len(prog.ArgOrder) != 1 || prog.ArgOrder[0] != "a" {
		t.Fatalf("expected ArgOrder = [a], got %v", prog.ArgOrder)
	}
	if !strings.Contains(prog.Text, "KEYV") || !strings.Contains(prog.Text, "ARGV") {
		t.Fatalf("expected KEYV/ARGV comment bands in emitted text:\n%s", prog.Text)
	}
}

// TestIncrByRewrittenToFloat checks the adjustment table rewrites incrby
// to incrbyfloat at emission time (spec.md §5's adjustment patch list),
// which is also why memexec's own incrby registry entry must return a
// float-formatted string rather than a bare integer.
func TestIncrByRewrittenToFloat(t *testing.T) {
	ctx := symbolic.NewContext()
	k, err := ctx.AddKey("k")
	if err != nil {
		t.Fatal(err)
	}
	ctx.Add(symbolic.RedisFn("incrby", k, 1))
	ctx.SetReturnValue(nil)

	prog, err := Compile(ctx.Compile())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(prog.Text, `"incrby"`) {
		t.Fatalf("expected incrby to be rewritten away, got:\n%s", prog.Text)
	}
	if !strings.Contains(prog.Text, "incrbyfloat") {
		t.Fatalf("expected incrby rewritten to incrbyfloat, got:\n%s", prog.Text)
	}
}

// TestServerErrorAnnotatesLine checks that a reported user_script error
// renders a snippet around the offending line.
func TestServerErrorAnnotatesLine(t *testing.T) {
	script := "line one\nline two\nline three\n"
	se := &ServerError{Err: errStub("user_script:2: boom"), Script: script}
	msg := se.Error()
	if !strings.Contains(msg, "line two") {
		t.Fatalf("expected annotated snippet to include the offending line, got:\n%s", msg)
	}
	if !strings.Contains(msg, "->") {
		t.Fatalf("expected a line marker, got:\n%s", msg)
	}
}

type errStub string

func (e errStub) Error() string { return string(e) }

// stubConn is a minimal Conn that always replies with a fixed string,
// used to exercise Backend.Bind's boundary normalisation without either
// real transport.
type stubConn struct{ reply *string }

func (c *stubConn) WithPrefix(key string) string { return key }

func (c *stubConn) Load(_ context.Context, script string) (ScriptHandle, error) {
	return ScriptHandle{Text: script}, nil
}

func (c *stubConn) Eval(_ context.Context, _ ScriptHandle, _, _ []string) (*string, error) {
	return c.reply, nil
}

// TestBindNormalisesEmptyTableToNull exercises Property 4: an empty-table
// reply collapses to JSON null at the Bind boundary.
func TestBindNormalisesEmptyTableToNull(t *testing.T) {
	reply := "{}"
	b := NewBackend(&stubConn{reply: &reply})
	_, _, ctx := monotonicSetterSeq(t)
	prog, err := Compile(ctx.Compile())
	if err != nil {
		t.Fatal(err)
	}
	exec, err := b.Bind(context.Background(), prog)
	if err != nil {
		t.Fatal(err)
	}
	result, err := exec(context.Background(), map[string]string{"k": "x"}, map[string]value.Value{"a": value.Int(1)})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsNull() {
		t.Fatalf("expected empty-table reply to normalise to null, got %v", result)
	}
}
