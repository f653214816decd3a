package luascript

import (
	"github.com/mnorrsken/scriptkv/internal/ir"
	"github.com/mnorrsken/scriptkv/internal/value"
)

// helperDef is one Lua helper function's signature and body, registered
// on demand the first time an adjustment patch references it and emitted
// once per script by printer.buildHelpers.
type helperDef struct {
	params string
	body   []string
}

// helperDefs mirrors HELPER_FNS in redis/lua.py, expanded to cover the
// fuller adjustment table this project's bridge needs (a dict-shaped
// hgetall helper alongside the pair-list one, and the asintstr/
// nil_or_index helpers the source only builds inline).
var helperDefs = map[string]helperDef{
	"pairlist_scores": {
		params: "arr",
		body: []string{
			"local res = {}",
			"local key = nil",
			"for ix, elem in ipairs(arr) do",
			"  if ix % 2 == 1 then",
			"    key = elem",
			"  else",
			"    res[#res + 1] = {key, elem}",
			"  end",
			"end",
			"return res",
		},
	},
	"pairlist_dict": {
		params: "arr",
		body: []string{
			"local res = {}",
			"local key = nil",
			"for ix, elem in ipairs(arr) do",
			"  if ix % 2 == 1 then",
			"    key = elem",
			"  else",
			"    res[key] = elem",
			"  end",
			"end",
			"return res",
		},
	},
	"nil_or_index": {
		params: "val",
		body: []string{
			"if val == false or val == nil then",
			"  return nil",
			"end",
			"return val - 1",
		},
	},
	"asintstr": {
		params: "val",
		body: []string{
			"return string.format(\"%d\", math.floor(tonumber(val)))",
		},
	},
}

// redisCommandName reports the literal command-name string a redis.call
// invocation dispatches on, the `Args[0]` every symbolic.RedisFn call
// carries. Panics if the IR was built some other way — the symbolic
// builder is the only producer of "redis.call" nodes.
func redisCommandName(c ir.Call) string {
	lit, ok := c.Args[0].(ir.Val)
	if !ok || lit.Type != ir.TypeStr {
		panic("luascript: redis.call's first argument must be a string literal")
	}
	return lit.Value.Str
}

// hasSetGetFlag reports whether a `set` call's option arguments include
// the "GET" flag, compared case-insensitively, mirroring the option-parsing
// loop in memexec's own "set" RedisFn (internal/memexec/registry.go).
func hasSetGetFlag(args []ir.Expr) bool {
	for _, a := range args {
		lit, ok := a.(ir.Val)
		if !ok || lit.Type != ir.TypeStr {
			continue
		}
		if upperASCII(lit.Value.Str) == "GET" {
			return true
		}
	}
	return false
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// registerHelper records that short (a key of helperDefs) is used by the
// current script and returns its fully qualified Lua name.
func (p *printer) registerHelper(short string) string {
	if _, ok := helperDefs[short]; !ok {
		panic("luascript: no such helper " + short)
	}
	p.helpers[short] = true
	return helperPkg + "." + short
}

// compileCall renders a Call, first applying its adjustment patch (if
// any and if not already applied) exactly once. This is the Go
// counterpart of LuaFnHook.adjust_function/adjust_redis_fn: each patch
// either rewrites the command-name literal in place, or wraps the call in
// a normalising expression/helper invocation.
func (p *printer) compileCall(c ir.Call, asStmt bool) string {
	if c.NoAdjust {
		return p.renderCallPlain(c)
	}
	switch {
	case c.Name == "redis.call":
		return p.compileExpr(p.adjustRedisCall(c, asStmt), false)
	case c.Name == "string.find":
		args := c.Args
		if len(args) > 2 {
			// The IR's start index is 0-based; Lua's string.find takes a
			// 1-based one.
			args = append([]ir.Expr(nil), args...)
			args[2] = ir.Binary{Op: ir.OpAdd, Left: args[2], Right: ir.Val{Type: ir.TypeInt, Value: value.Int(1)}}
		}
		inner := ir.Call{Name: "string.find", Args: args, NoAdjust: true}
		wrapped := ir.Call{Name: p.registerHelper("nil_or_index"), Args: []ir.Expr{inner}, NoAdjust: true}
		return p.renderCallPlain(wrapped)
	case c.Name == "asintstr":
		wrapped := ir.Call{Name: p.registerHelper("asintstr"), Args: c.Args, NoAdjust: true}
		return p.renderCallPlain(wrapped)
	default:
		return p.renderCallPlain(ir.Call{Name: c.Name, Args: c.Args, NoAdjust: true})
	}
}

// adjustRedisCall implements the per-command table from the adjustment
// patch list: get/lpop/rpop/hget normalise the bridge's false-for-missing
// to JSON null, set (without the GET option) normalises its OK/failure
// reply to a plain boolean, zpopmax/zpopmin/hgetall pass their flat wire
// reply through a pairing helper, and incrby/hincrby are rewritten to
// their float-returning variant so both backends agree on result shape.
func (p *printer) adjustRedisCall(c ir.Call, asStmt bool) ir.Expr {
	name := redisCommandName(c)
	inner := ir.Call{Name: "redis.call", Args: c.Args, NoAdjust: true}

	switch name {
	case "get", "lpop", "rpop", "hget":
		if asStmt {
			return inner
		}
		return ir.Binary{Op: ir.OpOr, Left: inner, Right: ir.Val{Type: ir.TypeNone}}
	case "set":
		if asStmt || hasSetGetFlag(c.Args[3:]) {
			return inner
		}
		return ir.Binary{Op: ir.OpNe, Left: inner, Right: ir.Val{Type: ir.TypeBool, Value: value.Bool(false)}}
	case "zpopmax", "zpopmin":
		return ir.Call{Name: p.registerHelper("pairlist_scores"), Args: []ir.Expr{inner}, NoAdjust: true}
	case "hgetall":
		return ir.Call{Name: p.registerHelper("pairlist_dict"), Args: []ir.Expr{inner}, NoAdjust: true}
	case "incrby":
		return ir.Call{Name: "redis.call", Args: renameCommand(c.Args, "incrbyfloat"), NoAdjust: true}
	case "hincrby":
		return ir.Call{Name: "redis.call", Args: renameCommand(c.Args, "hincrbyfloat"), NoAdjust: true}
	default:
		return inner
	}
}

func renameCommand(args []ir.Expr, newName string) []ir.Expr {
	out := append([]ir.Expr(nil), args...)
	out[0] = ir.Val{Type: ir.TypeStr, Value: value.Str(newName)}
	return out
}

func (p *printer) renderCallPlain(c ir.Call) string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = p.compileExpr(a, false)
	}
	out := c.Name + "("
	for i, a := range args {
		if i > 0 {
			out += ", "
		}
		out += a
	}
	return out + ")"
}
