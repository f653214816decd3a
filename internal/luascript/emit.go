// Package luascript pretty-prints the symbolic IR to Lua source text and
// binds the result to a transport (a real Redis server via go-redis, or an
// in-process emulator) behind a single Executable closure, mirroring
// redipy's LuaBackend/RedisConnection split (original_source/src/redipy/
// redis/lua.py, redis/conn.py). Both this package and internal/memexec
// compile the same ir.Sequence; their job is to agree on every observable
// result, never to out-run each other in feature coverage.
package luascript

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mnorrsken/scriptkv/internal/ir"
	"github.com/mnorrsken/scriptkv/internal/value"
)

const (
	keyvHook  = "--[[ KEYV"
	argvHook  = "--[[ ARGV"
	hookEnd   = "]]"
	helperPkg = "helpers"
)

// Program is a compiled script: its Lua text plus the positional
// key/argument name ordering the closure wrapper needs to build KEYS/ARGV
// vectors from a name-keyed invocation.
type Program struct {
	Text     string
	KeyOrder []string
	ArgOrder []string
}

// Compile pretty-prints a script-kind sequence to Lua text.
func Compile(seq ir.Sequence) (*Program, error) {
	if seq.Kind != ir.SeqScript {
		return nil, fmt.Errorf("luascript: Compile requires a script-kind sequence, got %q", seq.Kind)
	}
	p := newPrinter()
	script := p.compileRoot(seq)
	lines := p.finish(script)
	text := strings.Join(lines, "\n") + "\n"
	return &Program{
		Text:     text,
		KeyOrder: append([]string(nil), seq.KeyV...),
		ArgOrder: append([]string(nil), seq.ArgV...),
	}, nil
}

// printer accumulates the set of helper short-names referenced while
// emitting one script, the Go counterpart of LuaFnHook's _helpers set.
type printer struct {
	helpers map[string]bool
}

func newPrinter() *printer { return &printer{helpers: map[string]bool{}} }

func (p *printer) compileRoot(seq ir.Sequence) []string {
	var lines []string
	lines = append(lines, keyvHook)
	lines = append(lines, seq.KeyV...)
	lines = append(lines, hookEnd)
	lines = append(lines, argvHook)
	lines = append(lines, seq.ArgV...)
	lines = append(lines, hookEnd)
	for _, cmd := range seq.Cmds {
		lines = append(lines, p.compileStmt(cmd)...)
	}
	return lines
}

// finish prepends the helpers block built while walking the script, the
// counterpart of LuaFnHook.build_helpers/finish.
func (p *printer) finish(script []string) []string {
	if len(p.helpers) == 0 {
		return script
	}
	var lines []string
	lines = append(lines, "-- HELPERS START --")
	lines = append(lines, fmt.Sprintf("local %s = {}", helperPkg))
	lines = append(lines, p.buildHelpers()...)
	lines = append(lines, "-- HELPERS END --")
	return append(lines, script...)
}

func (p *printer) buildHelpers() []string {
	names := make([]string, 0, len(p.helpers))
	for n := range p.helpers {
		names = append(names, n)
	}
	sort.Strings(names)
	var lines []string
	for _, short := range names {
		def, ok := helperDefs[short]
		if !ok {
			panic("luascript: no definition registered for helper " + short)
		}
		lines = append(lines, fmt.Sprintf("function %s.%s (%s)", helperPkg, short, def.params))
		lines = append(lines, indentLines(def.body, 2)...)
		lines = append(lines, "end")
	}
	return lines
}

func indentLines(lines []string, n int) []string {
	pad := strings.Repeat(" ", n)
	out := make([]string, len(lines))
	for i, l := range lines {
		if l == "" {
			out[i] = l
			continue
		}
		out[i] = pad + l
	}
	return out
}

func (p *printer) compileSequence(seq ir.Sequence) []string {
	var body []string
	for _, cmd := range seq.Cmds {
		body = append(body, p.compileStmt(cmd)...)
	}
	return indentLines(body, 2)
}

func refName(ref ir.RefID) string { return ref.Name }

func (p *printer) compileStmt(c ir.Stmt) []string {
	switch s := c.(type) {
	case ir.Declare:
		return []string{p.compileBinding(s.Target, s.Value, true)}
	case ir.Assign:
		return []string{p.compileBinding(s.Target, s.Value, false)}
	case ir.AssignAt:
		if s.Target.Kind != ir.RefVar {
			panic("luascript: AssignAt target must be a local variable")
		}
		return []string{fmt.Sprintf(
			"%s[%s + 1] = %s",
			refName(s.Target), p.compileExpr(s.Index, false), p.compileExpr(s.Value, false),
		)}
	case ir.ExprStmt:
		return []string{p.compileExpr(s.Expr, true)}
	case ir.Branch:
		lines := []string{fmt.Sprintf("if %s then", p.compileExpr(s.Cond, false))}
		lines = append(lines, p.compileSequence(s.Then)...)
		elseLines := p.compileSequence(s.Else)
		if len(elseLines) > 0 {
			lines = append(lines, "else")
			lines = append(lines, elseLines...)
		}
		return append(lines, "end")
	case ir.For:
		if s.Index.Kind != ir.RefIndex || s.Value.Kind != ir.RefVar {
			panic("luascript: malformed for-loop bindings")
		}
		header := fmt.Sprintf(
			"for %s, %s in ipairs(%s) do",
			refName(s.Index), refName(s.Value), p.compileExpr(s.Array, false),
		)
		lines := []string{header}
		lines = append(lines, p.compileSequence(s.Body)...)
		return append(lines, "end")
	case ir.While:
		lines := []string{fmt.Sprintf("while %s do", p.compileExpr(s.Cond, false))}
		lines = append(lines, p.compileSequence(s.Body)...)
		return append(lines, "end")
	case ir.Return:
		if s.Value == nil {
			return nil
		}
		return []string{fmt.Sprintf("return cjson.encode(%s)", p.compileExpr(s.Value, false))}
	default:
		panic(fmt.Sprintf("luascript: unknown statement kind %T", c))
	}
}

func (p *printer) compileBinding(target ir.RefID, rhs ir.Expr, declare bool) string {
	decl := ""
	if declare {
		decl = "local "
	}
	suffix := ""
	if target.Kind == ir.RefArg || target.Kind == ir.RefKey {
		suffix = "  -- " + target.Readable
	}
	return fmt.Sprintf("%s%s = %s%s", decl, refName(target), p.compileExpr(rhs, false), suffix)
}

// compileExpr renders e to Lua text. asStmt is true only for the direct
// expression of an ExprStmt: a handful of adjustment patches (the
// `expr or nil`/`expr ~= false` normalisations) only matter when the
// result is actually consumed, so a bare statement call skips them.
func (p *printer) compileExpr(e ir.Expr, asStmt bool) string {
	switch x := e.(type) {
	case ir.Ref:
		if x.ID.Kind == ir.RefIndex {
			return fmt.Sprintf("(%s - 1)", x.ID.Name)
		}
		return x.ID.Name
	case ir.LoadJSONArg:
		return fmt.Sprintf("cjson.decode(ARGV[%d])", x.Index+1)
	case ir.LoadKeyArg:
		return fmt.Sprintf("(KEYS[%d])", x.Index+1)
	case ir.Val:
		return p.compileVal(x)
	case ir.Constant:
		return x.Raw
	case ir.Unary:
		if x.Op != "not" {
			panic("luascript: unknown unary operator " + x.Op)
		}
		return fmt.Sprintf("(not %s)", p.compileExpr(x.Arg, false))
	case ir.Binary:
		return p.compileBinary(x)
	case ir.ArrayAt:
		return fmt.Sprintf("%s[%s + 1]", refName(x.Var), p.compileExpr(x.Index, false))
	case ir.ArrayLen:
		return fmt.Sprintf("#%s", refName(x.Var))
	case ir.Concat:
		parts := make([]string, len(x.Parts))
		for i, part := range x.Parts {
			parts[i] = p.compileExpr(part, false)
		}
		return "(" + strings.Join(parts, " .. ") + ")"
	case ir.Call:
		return p.compileCall(x, asStmt)
	default:
		panic(fmt.Sprintf("luascript: unknown expression kind %T", e))
	}
}

var binOpText = map[ir.BinOp]string{
	ir.OpAdd: "+",
	ir.OpSub: "-",
	ir.OpAnd: "and",
	ir.OpOr:  "or",
	ir.OpEq:  "==",
	ir.OpNe:  "~=",
	ir.OpLt:  "<",
	ir.OpGt:  ">",
	ir.OpLe:  "<=",
	ir.OpGe:  ">=",
}

func (p *printer) compileBinary(b ir.Binary) string {
	op, ok := binOpText[b.Op]
	if !ok {
		panic("luascript: unknown binary operator " + string(b.Op))
	}
	return fmt.Sprintf("(%s %s %s)", p.compileExpr(b.Left, false), op, p.compileExpr(b.Right, false))
}

func (p *printer) compileVal(v ir.Val) string {
	switch v.Type {
	case ir.TypeNone:
		return "nil"
	case ir.TypeBool:
		if v.Value.Bool {
			return "true"
		}
		return "false"
	case ir.TypeInt:
		return strconv.FormatInt(v.Value.Int, 10)
	case ir.TypeFloat:
		return strconv.FormatFloat(v.Value.Flt, 'g', -1, 64)
	case ir.TypeStr:
		return quoteLua(v.Value.Str)
	case ir.TypeList:
		encoded, err := value.Encode(v.Value)
		if err != nil {
			panic("luascript: literal list is not encodable: " + err.Error())
		}
		return fmt.Sprintf("cjson.decode(%s)", quoteLua(encoded))
	default:
		panic("luascript: unknown literal type " + string(v.Type))
	}
}

// quoteLua renders s as a double-quoted Lua string literal, escaping
// backslashes first, then quotes, then embedded newlines, mirroring LuaBackend's own
// literal-string handling in compile_expr.
func quoteLua(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return `"` + s + `"`
}
