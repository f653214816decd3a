// Package mockconn implements luascript.Conn by running emitted Lua text
// in-process with gopher-lua, dispatching every redis.call/pcall straight
// into the same internal/memexec Machine/Registry the memory backend
// compiles its closures against. This is what lets the equivalence
// between the two backends (both backends must agree on every
// observable result) be checked without a running Redis server: compile
// one IR sequence, run it through both a memexec.Program and a Backend
// bound to a MockConn sharing the same Machine, and compare.
//
// Grounded on the teacher's own Lua scripting handler
// (mnorrsken-pg-kv-backend/internal/handler/lua.go): the redis table
// setup (call/pcall/error_reply/status_reply/log/sha1hex), the KEYS/ARGV
// table population, and the false-for-nil reply convention are all the
// same shape, adapted from RESP values to value.Value and rewired onto
// internal/memexec instead of the teacher's storage.Operations.
package mockconn

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	lua "github.com/yuin/gopher-lua"

	"github.com/mnorrsken/scriptkv/internal/luascript"
	"github.com/mnorrsken/scriptkv/internal/memexec"
	"github.com/mnorrsken/scriptkv/internal/value"
)

// MockConn is an in-process luascript.Conn. It does not pool or share
// *lua.LState across calls: each Eval gets a fresh interpreter, matching
// the teacher's one-state-per-invocation pattern (a compiled script has
// no persistent Lua-side state between calls, only the shared Machine
// carries state forward).
type MockConn struct {
	machine  *memexec.Machine
	registry *memexec.Registry
	prefix   string
}

// New builds a MockConn that executes scripts against machine using
// registry's command/function dispatch — ordinarily the very same
// Machine and Registry a Runtime already holds, so that a script run
// through the Lua path and the same script run through memexec.Program
// observe and mutate identical state.
func New(machine *memexec.Machine, registry *memexec.Registry) *MockConn {
	return &MockConn{machine: machine, registry: registry}
}

// WithPrefix matches luascript.Conn; MockConn applies no prefix, since
// the emulated store has no separate namespace concept.
func (c *MockConn) WithPrefix(key string) string { return key }

// Load computes a SHA1 for script so the caller's ScriptHandle looks
// exactly like one produced by RedisConn, but the text itself is what
// gets rerun every call — MockConn has no server-side script cache to
// miss.
func (c *MockConn) Load(_ context.Context, script string) (luascript.ScriptHandle, error) {
	sum := sha1.Sum([]byte(script))
	return luascript.ScriptHandle{SHA1: hex.EncodeToString(sum[:]), Text: script}, nil
}

// Eval runs h.Text against a fresh Lua state wired to KEYS/ARGV/redis/
// cjson, returning the script's single string return value (already
// cjson-encoded by the emitted `return cjson.encode(...)` line) or nil.
func (c *MockConn) Eval(_ context.Context, h luascript.ScriptHandle, keys, args []string) (*string, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	defer L.Close()

	c.installRedis(L)
	installCJSON(L)

	keyTable := L.NewTable()
	for i, k := range keys {
		L.RawSetInt(keyTable, i+1, lua.LString(k))
	}
	L.SetGlobal("KEYS", keyTable)

	argTable := L.NewTable()
	for i, a := range args {
		L.RawSetInt(argTable, i+1, lua.LString(a))
	}
	L.SetGlobal("ARGV", argTable)

	if err := L.DoString(h.Text); err != nil {
		return nil, fmt.Errorf("%v", err)
	}

	if L.GetTop() == 0 {
		return nil, nil
	}
	result := L.Get(-1)
	L.Pop(1)
	switch v := result.(type) {
	case *lua.LNilType:
		return nil, nil
	case lua.LString:
		s := string(v)
		return &s, nil
	default:
		return nil, fmt.Errorf("mockconn: script returned %T at top level, want a string", result)
	}
}

func (c *MockConn) installRedis(L *lua.LState) {
	t := L.NewTable()
	L.SetField(t, "call", L.NewFunction(c.redisCall))
	L.SetField(t, "pcall", L.NewFunction(c.redisPCall))
	L.SetField(t, "error_reply", L.NewFunction(redisErrorReply))
	L.SetField(t, "status_reply", L.NewFunction(redisStatusReply))
	L.SetField(t, "log", L.NewFunction(redisLog))
	L.SetField(t, "sha1hex", L.NewFunction(redisSha1Hex))
	L.SetField(t, "LOG_DEBUG", lua.LNumber(0))
	L.SetField(t, "LOG_VERBOSE", lua.LNumber(1))
	L.SetField(t, "LOG_NOTICE", lua.LNumber(2))
	L.SetField(t, "LOG_WARNING", lua.LNumber(3))
	L.SetGlobal("redis", t)
}

func (c *MockConn) redisCall(L *lua.LState) int {
	result, errMsg := c.dispatch(L)
	if errMsg != "" {
		L.RaiseError("%s", errMsg)
		return 0
	}
	L.Push(result)
	return 1
}

func (c *MockConn) redisPCall(L *lua.LState) int {
	result, errMsg := c.dispatch(L)
	if errMsg != "" {
		t := L.NewTable()
		L.SetField(t, "err", lua.LString(errMsg))
		L.Push(t)
		return 1
	}
	L.Push(result)
	return 1
}

// dispatch implements the redis.call/pcall argument convention: the
// first argument is the command name, the rest (key first) go straight
// to Registry.RedisCall — the same calling convention memexec's own
// compiler uses internally, so this is not a reimplementation of Redis
// semantics, just a Lua-callable front door onto the one that exists.
func (c *MockConn) dispatch(L *lua.LState) (lua.LValue, string) {
	nargs := L.GetTop()
	if nargs == 0 {
		return lua.LNil, "ERR wrong number of arguments for redis.call"
	}
	cmdName := L.CheckString(1)
	args := make([]value.Value, nargs-1)
	for i := 2; i <= nargs; i++ {
		args[i-2] = luaToValue(L.Get(i))
	}
	result, err := c.rawCall(cmdName, args)
	if err != nil {
		return lua.LNil, err.Error()
	}
	return valueToLua(L, result), ""
}

// rawCall returns the raw, unpaired wire-shaped reply for name: almost
// every command's registry entry already matches Redis' real reply
// shape (flat arrays, bare integers/strings), so those dispatch straight
// through. zpopmax/zpopmin are the one exception — memexec's own
// registry entries pre-pair them for the memory backend's convenience,
// but the emitted Lua text expects a flat reply and does its own pairing
// via the pairlist_scores helper, so this bypasses the registry and
// flattens Machine's result itself.
func (c *MockConn) rawCall(name string, args []value.Value) (value.Value, error) {
	switch name {
	case "zpopmax", "zpopmin":
		if len(args) == 0 {
			return value.Null(), fmt.Errorf("ERR wrong number of arguments for '%s' command", name)
		}
		key := value.ToDisplayString(args[0])
		n := 1
		if len(args) > 1 {
			nv, err := value.ToNumber(args[1])
			if err != nil {
				return value.Null(), err
			}
			n = numToInt(nv)
		}
		var members []memexec.ScoredMember
		if name == "zpopmax" {
			members = c.machine.ZPopMax(key, n)
		} else {
			members = c.machine.ZPopMin(key, n)
		}
		flat := make([]value.Value, 0, len(members)*2)
		for _, m := range members {
			flat = append(flat, value.Str(m.Member), value.Str(formatScore(m.Score)))
		}
		return value.List(flat...), nil
	default:
		return c.registry.RedisCall(c.machine, name, args)
	}
}

func numToInt(v value.Value) int {
	if v.Kind == value.KindFloat {
		return int(v.Flt)
	}
	return int(v.Int)
}

func formatScore(f float64) string {
	if !math.IsInf(f, 0) && f == math.Trunc(f) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func redisErrorReply(L *lua.LState) int {
	msg := L.CheckString(1)
	t := L.NewTable()
	L.SetField(t, "err", lua.LString(msg))
	L.Push(t)
	return 1
}

func redisStatusReply(L *lua.LState) int {
	msg := L.CheckString(1)
	t := L.NewTable()
	L.SetField(t, "ok", lua.LString(msg))
	L.Push(t)
	return 1
}

func redisLog(L *lua.LState) int { return 0 }

func redisSha1Hex(L *lua.LState) int {
	s := L.CheckString(1)
	sum := sha1.Sum([]byte(s))
	L.Push(lua.LString(hex.EncodeToString(sum[:])))
	return 1
}

func installCJSON(L *lua.LState) {
	t := L.NewTable()
	L.SetField(t, "encode", L.NewFunction(cjsonEncode))
	L.SetField(t, "decode", L.NewFunction(cjsonDecode))
	L.SetGlobal("cjson", t)
}

func cjsonDecode(L *lua.LState) int {
	s := L.CheckString(1)
	v, err := value.Decode(s)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(valueToLua(L, v))
	return 1
}

// cjsonEncode special-cases an empty table to the literal "{}" that the
// real cjson library emits for any empty table regardless of whether the
// caller meant a list or a map — the ambiguity Bind's `{}`-to-null
// normalisation exists to resolve.
func cjsonEncode(L *lua.LState) int {
	arg := L.Get(1)
	if t, ok := arg.(*lua.LTable); ok && isEmptyTable(t) {
		L.Push(lua.LString("{}"))
		return 1
	}
	v := luaToValue(arg)
	s, err := value.Encode(v)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(lua.LString(s))
	return 1
}

func isEmptyTable(t *lua.LTable) bool {
	empty := true
	t.ForEach(func(_, _ lua.LValue) { empty = false })
	return empty
}

// luaToValue converts a Lua value received from script text (a redis.call
// argument, or cjson.decode's input) into value.Value.
func luaToValue(v lua.LValue) value.Value {
	switch t := v.(type) {
	case lua.LString:
		return value.Str(string(t))
	case lua.LNumber:
		f := float64(t)
		if f == math.Trunc(f) {
			return value.Int(int64(f))
		}
		return value.Float(f)
	case lua.LBool:
		return value.Bool(bool(t))
	case *lua.LNilType:
		return value.Null()
	case *lua.LTable:
		return luaTableToValue(t)
	default:
		return value.Str(v.String())
	}
}

func luaTableToValue(t *lua.LTable) value.Value {
	n := t.Len()
	count := 0
	isArray := true
	t.ForEach(func(k, _ lua.LValue) {
		count++
		num, ok := k.(lua.LNumber)
		if !ok || float64(int(num)) != float64(num) || int(num) < 1 {
			isArray = false
		}
	})
	if isArray && count == n {
		out := make([]value.Value, n)
		for i := 1; i <= n; i++ {
			out[i-1] = luaToValue(t.RawGetInt(i))
		}
		return value.List(out...)
	}
	out := map[string]value.Value{}
	t.ForEach(func(k, v lua.LValue) {
		out[k.String()] = luaToValue(v)
	})
	return value.Map(out)
}

// valueToLua converts a redis.call reply to the Lua shape a real Redis
// client library bridge would hand the script: a missing value becomes
// false (not nil — real Redis's Lua bridge makes this exact substitution
// for a nil bulk reply, which is why the adjustment patches in
// internal/luascript/patches.go normalise it back to JSON null only where
// the command table says a caller expects a value).
func valueToLua(L *lua.LState, v value.Value) lua.LValue {
	switch v.Kind {
	case value.KindNull:
		return lua.LFalse
	case value.KindBool:
		return lua.LBool(v.Bool)
	case value.KindInt:
		return lua.LNumber(v.Int)
	case value.KindFloat:
		return lua.LNumber(v.Flt)
	case value.KindStr:
		return lua.LString(v.Str)
	case value.KindList:
		t := L.NewTable()
		for i, e := range v.List {
			L.RawSetInt(t, i+1, valueToLua(L, e))
		}
		return t
	case value.KindMap:
		t := L.NewTable()
		for k, e := range v.Map {
			L.SetField(t, k, valueToLua(L, e))
		}
		return t
	default:
		return lua.LNil
	}
}
