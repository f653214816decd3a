package luascript

import (
	"context"
	"fmt"

	"github.com/mnorrsken/scriptkv/internal/value"
)

// ScriptHandle identifies a script loaded onto a Conn, carrying whatever
// the transport needs to re-invoke it (a SHA1 for EVALSHA, or just the
// text itself for the in-process emulator).
type ScriptHandle struct {
	SHA1 string
	Text string
}

// Conn is the narrow transport the Lua backend binds against: load a
// script once, then invoke it by key/arg vectors any number of times.
// RedisConn implements it against a real server over go-redis/v9;
// mockconn.MockConn implements it in-process against the same
// internal/memexec state machine the memory backend runs on, which is
// what lets Property 1 (the two backends must agree) be tested without a
// running Redis at all.
type Conn interface {
	// WithPrefix composes a user-facing key with whatever keyspace
	// prefix this connection applies, mirroring RedisConnection's
	// with_prefix.
	WithPrefix(key string) string
	// Load registers script's text and returns a handle for repeated
	// invocation.
	Load(ctx context.Context, script string) (ScriptHandle, error)
	// Eval runs the script identified by h with the given positional
	// key and argument vectors (already string-encoded: keys as plain
	// strings, args as cjson-compatible JSON text). A nil result means
	// the script returned no value.
	Eval(ctx context.Context, h ScriptHandle, keys, args []string) (*string, error)
}

// Executable runs a bound script given its arguments by readable name,
// matching the symbolic builder's key/arg naming rather than position.
type Executable func(ctx context.Context, keys map[string]string, args map[string]value.Value) (value.Value, error)

// Backend binds compiled Programs to a single Conn.
type Backend struct {
	conn Conn
}

// NewBackend builds a Backend that runs every bound script against conn.
func NewBackend(conn Conn) *Backend { return &Backend{conn: conn} }

// Bind loads prog onto the backend's Conn and returns a callable closure,
// the Go counterpart of LuaBackend.create_executable: it resolves the
// program's KeyOrder/ArgOrder into positional vectors on every call, and
// normalises the `{}` empty-table marker back to a JSON null at the
// boundary (spec.md §8 Property 4 — a Lua table can't tell an empty list
// from an empty map, so an empty reply is always ambiguous and must
// collapse to null rather than guessing a shape).
func (b *Backend) Bind(ctx context.Context, prog *Program) (Executable, error) {
	handle, err := b.conn.Load(ctx, prog.Text)
	if err != nil {
		return nil, fmt.Errorf("luascript: bind: %w", err)
	}
	return func(ctx context.Context, keys map[string]string, args map[string]value.Value) (value.Value, error) {
		keyVec := make([]string, len(prog.KeyOrder))
		for i, name := range prog.KeyOrder {
			k, ok := keys[name]
			if !ok {
				return value.Null(), fmt.Errorf("luascript: missing key argument %q", name)
			}
			keyVec[i] = b.conn.WithPrefix(k)
		}
		argVec := make([]string, len(prog.ArgOrder))
		for i, name := range prog.ArgOrder {
			a, ok := args[name]
			if !ok {
				return value.Null(), fmt.Errorf("luascript: missing positional argument %q", name)
			}
			encoded, err := value.Encode(a)
			if err != nil {
				return value.Null(), fmt.Errorf("luascript: encoding argument %q: %w", name, err)
			}
			argVec[i] = encoded
		}
		raw, err := b.conn.Eval(ctx, handle, keyVec, argVec)
		if err != nil {
			return value.Null(), &ServerError{Err: err, Script: prog.Text}
		}
		if raw == nil {
			return value.Null(), nil
		}
		if *raw == "{}" {
			return value.Null(), nil
		}
		return value.Decode(*raw)
	}, nil
}
