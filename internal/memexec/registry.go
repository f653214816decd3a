package memexec

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/mnorrsken/scriptkv/internal/value"
)

// ArgcSpec constrains how many arguments a registered function accepts,
// mirroring the source project's ArgcSpec TypedDict: Count is the base
// arity, AtLeast allows any count >= Count, AtMost allows any count in
// [Count, AtMost].
type ArgcSpec struct {
	Count   int
	AtLeast bool
	AtMost  int // 0 means unset
}

func (s ArgcSpec) describe() string {
	switch {
	case s.AtLeast:
		return fmt.Sprintf("at least %d", s.Count)
	case s.AtMost > 0:
		return fmt.Sprintf("between %d and %d", s.Count, s.AtMost)
	default:
		return fmt.Sprintf("exactly %d", s.Count)
	}
}

func (s ArgcSpec) check(name string, argc int) error {
	if argc == s.Count {
		return nil
	}
	if s.AtMost > 0 && argc >= s.Count && argc <= s.AtMost {
		return nil
	}
	if s.AtLeast && argc > s.Count {
		return nil
	}
	return &ArgCountMismatchError{Name: name, Got: argc, Spec: s}
}

// GeneralFn is a plugin-registered general function, the Go counterpart
// of the source project's LocalGeneralFunction.
type GeneralFn struct {
	Name string
	Argc ArgcSpec
	Call func(args []value.Value) (value.Value, error)
}

// RedisFn is a plugin-registered redis.call command implementation.
type RedisFn struct {
	Name string
	Argc ArgcSpec
	Call func(m *Machine, key string, args []value.Value) (value.Value, error)
}

// Registry dispatches general-function and redis-command calls. Both
// families are populated once by registerGeneralFns/registerRedisFns
// below (grounded in memory/gfun.py and memory/rfun.py respectively).
type Registry struct {
	general map[string]GeneralFn
	redis   map[string]RedisFn
}

// NewRegistry builds the standard registry of general and redis
// functions. logf receives (level, message) pairs from redis.log.
func NewRegistry(logf func(level, message string)) *Registry {
	r := &Registry{general: map[string]GeneralFn{}, redis: map[string]RedisFn{}}
	registerGeneralFns(r, logf)
	registerRedisFns(r)
	return r
}

// CallFn dispatches a general function call, the Go counterpart of
// call_fn.
func (r *Registry) CallFn(name string, args []value.Value) (value.Value, error) {
	fn, ok := r.general[name]
	if !ok {
		return value.Null(), &UnknownFunctionError{Name: name}
	}
	if err := fn.Argc.check(name, len(args)); err != nil {
		return value.Null(), err
	}
	return fn.Call(args)
}

// RedisCall dispatches a redis.call invocation, the Go counterpart of
// redis_fn.
func (r *Registry) RedisCall(m *Machine, name string, args []value.Value) (value.Value, error) {
	fn, ok := r.redis[name]
	if !ok {
		return value.Null(), &UnknownCommandError{Name: name}
	}
	if len(args) < 1 {
		return value.Null(), &ArgCountMismatchError{Name: name, Got: 0}
	}
	key := value.ToDisplayString(args[0])
	rest := args[1:]
	if err := fn.Argc.check(name, len(rest)); err != nil {
		return value.Null(), err
	}
	return fn.Call(m, key, rest)
}

func registerGeneralFns(r *Registry, logf func(level, message string)) {
	add := func(fn GeneralFn) { r.general[fn.Name] = fn }

	add(GeneralFn{
		Name: "string.find",
		Argc: ArgcSpec{Count: 2, AtMost: 3},
		Call: func(args []value.Value) (value.Value, error) {
			haystack := value.ToDisplayString(args[0])
			needle := value.ToDisplayString(args[1])
			start := 0
			if len(args) > 2 {
				n, err := value.ToNumber(args[2])
				if err != nil {
					return value.Null(), err
				}
				start = int(n.Int)
				if n.Kind == value.KindFloat {
					start = int(n.Flt)
				}
			}
			if start < 0 {
				start = 0
			}
			if start > len(haystack) {
				return value.Null(), nil
			}
			ix := strings.Index(haystack[start:], needle)
			if ix < 0 {
				return value.Null(), nil
			}
			return value.Int(int64(ix + start)), nil
		},
	})

	add(GeneralFn{
		Name: "cjson.decode",
		Argc: ArgcSpec{Count: 1},
		Call: func(args []value.Value) (value.Value, error) {
			return value.Decode(value.ToDisplayString(args[0]))
		},
	})

	add(GeneralFn{
		Name: "cjson.encode",
		Argc: ArgcSpec{Count: 1},
		Call: func(args []value.Value) (value.Value, error) {
			s, err := value.Encode(args[0])
			if err != nil {
				return value.Null(), err
			}
			return value.Str(s), nil
		},
	})

	add(GeneralFn{
		Name: "tonumber",
		Argc: ArgcSpec{Count: 1},
		Call: func(args []value.Value) (value.Value, error) {
			return value.ToNumber(args[0])
		},
	})

	add(GeneralFn{
		Name: "tostring",
		Argc: ArgcSpec{Count: 1},
		Call: func(args []value.Value) (value.Value, error) {
			s, err := value.ToString(args[0])
			if err != nil {
				return value.Null(), err
			}
			return value.Str(s), nil
		},
	})

	add(GeneralFn{
		Name: "asintstr",
		Argc: ArgcSpec{Count: 1},
		Call: func(args []value.Value) (value.Value, error) {
			s, err := value.AsIntString(args[0])
			if err != nil {
				return value.Null(), err
			}
			return value.Str(s), nil
		},
	})

	add(GeneralFn{
		Name: "type",
		Argc: ArgcSpec{Count: 1},
		Call: func(args []value.Value) (value.Value, error) {
			return value.Str(value.TypeName(args[0])), nil
		},
	})

	add(GeneralFn{
		Name: "redis.log",
		Argc: ArgcSpec{Count: 2},
		Call: func(args []value.Value) (value.Value, error) {
			if logf != nil {
				logf(value.ToDisplayString(args[0]), value.ToDisplayString(args[1]))
			}
			return value.Null(), nil
		},
	})
}

func asFloat(v value.Value) (float64, error) {
	n, err := value.ToNumber(v)
	if err != nil {
		return 0, err
	}
	if n.Kind == value.KindInt {
		return float64(n.Int), nil
	}
	return n.Flt, nil
}

func asIntArg(v value.Value) (int, error) {
	f, err := asFloat(v)
	if err != nil {
		return 0, err
	}
	return int(math.Floor(f)), nil
}

func scoredPairs(ms []ScoredMember) value.Value {
	if len(ms) == 0 {
		return value.Null()
	}
	out := make([]value.Value, len(ms))
	for i, m := range ms {
		out[i] = value.List(value.Str(m.Member), value.Str(formatScore(m.Score)))
	}
	return value.List(out...)
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func registerRedisFns(r *Registry) {
	add := func(fn RedisFn) { r.redis[fn.Name] = fn }

	add(RedisFn{
		Name: "set",
		Argc: ArgcSpec{Count: 1, AtLeast: true},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			val := value.ToDisplayString(args[0])
			opts := SetOpts{Mode: SetAlways}
			rest := args[1:]
			for i := 0; i < len(rest); i++ {
				switch strings.ToUpper(value.ToDisplayString(rest[i])) {
				case "XX":
					if opts.Mode == SetIfMissing {
						return value.Null(), &ModeConflictError{Detail: "SET with both NX and XX"}
					}
					opts.Mode = SetIfExists
				case "NX":
					if opts.Mode == SetIfExists {
						return value.Null(), &ModeConflictError{Detail: "SET with both NX and XX"}
					}
					opts.Mode = SetIfMissing
				case "GET":
					opts.ReturnPrevious = true
				case "PX":
					i++
					ms, err := asFloat(rest[i])
					if err != nil {
						return value.Null(), err
					}
					d := durationFromMillis(ms)
					opts.ExpireIn = &d
				case "KEEPTTL":
					opts.KeepTTL = true
				}
			}
			prev, wrote := m.Set(key, val, opts)
			if opts.ReturnPrevious {
				if prev == nil {
					return value.Null(), nil
				}
				return value.Str(*prev), nil
			}
			if !wrote {
				return value.Bool(false), nil
			}
			return value.Bool(true), nil
		},
	})

	add(RedisFn{
		Name: "get",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			v := m.Get(key)
			if v == nil {
				return value.Null(), nil
			}
			return value.Str(*v), nil
		},
	})

	add(RedisFn{
		Name: "lpush",
		Argc: ArgcSpec{Count: 1, AtLeast: true},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return value.Int(int64(m.LPush(key, displayAll(args)...))), nil
		},
	})

	add(RedisFn{
		Name: "rpush",
		Argc: ArgcSpec{Count: 1, AtLeast: true},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return value.Int(int64(m.RPush(key, displayAll(args)...))), nil
		},
	})

	add(RedisFn{
		Name: "lpop",
		Argc: ArgcSpec{Count: 0, AtMost: 1},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return popResult(m.LPop(key, optCount(args)))
		},
	})

	add(RedisFn{
		Name: "rpop",
		Argc: ArgcSpec{Count: 0, AtMost: 1},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return popResult(m.RPop(key, optCount(args)))
		},
	})

	add(RedisFn{
		Name: "llen",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return value.Int(int64(m.LLen(key))), nil
		},
	})

	add(RedisFn{
		Name: "zadd",
		Argc: ArgcSpec{Count: 2},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			score, err := asFloat(args[0])
			if err != nil {
				return value.Null(), err
			}
			member := value.ToDisplayString(args[1])
			return value.Int(int64(m.ZAdd(key, map[string]float64{member: score}))), nil
		},
	})

	add(RedisFn{
		Name: "zpopmax",
		Argc: ArgcSpec{Count: 0, AtMost: 1},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			n := 1
			if len(args) > 0 {
				c, err := asIntArg(args[0])
				if err != nil {
					return value.Null(), err
				}
				n = c
			}
			return scoredPairs(m.ZPopMax(key, n)), nil
		},
	})

	add(RedisFn{
		Name: "zpopmin",
		Argc: ArgcSpec{Count: 0, AtMost: 1},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			n := 1
			if len(args) > 0 {
				c, err := asIntArg(args[0])
				if err != nil {
					return value.Null(), err
				}
				n = c
			}
			return scoredPairs(m.ZPopMin(key, n)), nil
		},
	})

	add(RedisFn{
		Name: "zcard",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return value.Int(int64(m.ZCard(key))), nil
		},
	})

	add(RedisFn{
		Name: "exists",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			if m.Exists(key) {
				return value.Int(1), nil
			}
			return value.Int(0), nil
		},
	})

	add(RedisFn{
		Name: "del",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			if m.Del(key) {
				return value.Int(1), nil
			}
			return value.Int(0), nil
		},
	})

	add(RedisFn{
		Name: "incrby",
		Argc: ArgcSpec{Count: 1},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			delta, err := asFloat(args[0])
			if err != nil {
				return value.Null(), err
			}
			n, err := m.IncrBy(key, delta)
			if err != nil {
				return value.Null(), err
			}
			// The Lua backend always rewrites incrby to incrbyfloat to get
			// a uniform floating-point reply; mirror that here rather than
			// returning a bare integer so both backends agree.
			return value.Str(formatNumber(n)), nil
		},
	})

	add(RedisFn{
		Name: "incrbyfloat",
		Argc: ArgcSpec{Count: 1},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			delta, err := asFloat(args[0])
			if err != nil {
				return value.Null(), err
			}
			n, err := m.IncrBy(key, delta)
			if err != nil {
				return value.Null(), err
			}
			return value.Str(formatNumber(n)), nil
		},
	})

	add(RedisFn{
		Name: "hset",
		Argc: ArgcSpec{Count: 2, AtLeast: true},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			if len(args)%2 != 0 {
				return value.Null(), &ArgCountMismatchError{Name: "hset", Got: len(args) + 1}
			}
			fields := map[string]string{}
			for i := 0; i < len(args); i += 2 {
				fields[value.ToDisplayString(args[i])] = value.ToDisplayString(args[i+1])
			}
			return value.Int(int64(m.HSet(key, fields))), nil
		},
	})

	add(RedisFn{
		Name: "hget",
		Argc: ArgcSpec{Count: 1},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			v := m.HGet(key, value.ToDisplayString(args[0]))
			if v == nil {
				return value.Null(), nil
			}
			return value.Str(*v), nil
		},
	})

	add(RedisFn{
		Name: "hmget",
		Argc: ArgcSpec{Count: 1, AtLeast: true},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			vs := m.HMGet(key, displayAll(args))
			out := make([]value.Value, len(vs))
			for i, v := range vs {
				if v == nil {
					out[i] = value.Null()
				} else {
					out[i] = value.Str(*v)
				}
			}
			return value.List(out...), nil
		},
	})

	add(RedisFn{
		Name: "hdel",
		Argc: ArgcSpec{Count: 1, AtLeast: true},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return value.Int(int64(m.HDel(key, displayAll(args)))), nil
		},
	})

	add(RedisFn{
		Name: "hkeys",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return strList(m.HKeys(key)), nil
		},
	})

	add(RedisFn{
		Name: "hvals",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return strList(m.HVals(key)), nil
		},
	})

	add(RedisFn{
		Name: "hgetall",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			fields, vals := m.HGetAll(key)
			out := make([]value.Value, 0, len(fields)*2)
			for i, f := range fields {
				out = append(out, value.Str(f), value.Str(vals[i]))
			}
			return value.List(out...), nil
		},
	})

	add(RedisFn{
		Name: "hlen",
		Argc: ArgcSpec{Count: 0},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			return value.Int(int64(m.HLen(key))), nil
		},
	})

	add(RedisFn{
		Name: "hincrby",
		Argc: ArgcSpec{Count: 2},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			delta, err := asFloat(args[1])
			if err != nil {
				return value.Null(), err
			}
			n, err := m.HIncrBy(key, value.ToDisplayString(args[0]), delta)
			if err != nil {
				return value.Null(), err
			}
			return value.Str(formatNumber(n)), nil
		},
	})

	add(RedisFn{
		Name: "hincrbyfloat",
		Argc: ArgcSpec{Count: 2},
		Call: func(m *Machine, key string, args []value.Value) (value.Value, error) {
			delta, err := asFloat(args[1])
			if err != nil {
				return value.Null(), err
			}
			n, err := m.HIncrBy(key, value.ToDisplayString(args[0]), delta)
			if err != nil {
				return value.Null(), err
			}
			return value.Str(formatNumber(n)), nil
		},
	})
}

func displayAll(args []value.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = value.ToDisplayString(a)
	}
	return out
}

func strList(ss []string) value.Value {
	out := make([]value.Value, len(ss))
	for i, s := range ss {
		out[i] = value.Str(s)
	}
	return value.List(out...)
}

func optCount(args []value.Value) *int {
	if len(args) == 0 {
		return nil
	}
	n, err := asIntArg(args[0])
	if err != nil {
		return nil
	}
	return &n
}

func popResult(single *string, multi []string, wasEmpty bool) (value.Value, error) {
	if wasEmpty {
		return value.Null(), nil
	}
	if single != nil {
		return value.Str(*single), nil
	}
	if multi == nil {
		return value.Null(), nil
	}
	return strList(multi), nil
}
