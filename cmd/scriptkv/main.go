// Command scriptkv builds the monotonic-setter demo script with the
// symbolic builder and runs it against whichever backend is configured,
// wiring together every layer of the module the way a real caller would:
// config, metrics, symbolic, and one of memexec/luascript.
package main

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mnorrsken/scriptkv/internal/config"
	"github.com/mnorrsken/scriptkv/internal/luascript"
	"github.com/mnorrsken/scriptkv/internal/luascript/mockconn"
	"github.com/mnorrsken/scriptkv/internal/memexec"
	"github.com/mnorrsken/scriptkv/internal/metrics"
	"github.com/mnorrsken/scriptkv/internal/symbolic"
	"github.com/mnorrsken/scriptkv/internal/value"
)

// buildMonotonicSetter builds: if tonumber(get(k) or 0) <= a then set(k,a)
// end; r = get(k); if r ~= nil then r = tonumber(r) end; return r.
func buildMonotonicSetter() *symbolic.Context {
	ctx := symbolic.NewContext()
	k, err := ctx.AddKey("k")
	if err != nil {
		log.Fatalf("scriptkv: building demo script: %v", err)
	}
	a, err := ctx.AddArg("a")
	if err != nil {
		log.Fatalf("scriptkv: building demo script: %v", err)
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

func main() {
	cfg := config.Load()

	metricsSrv := metrics.NewServer(cfg.MetricsAddr)
	if err := metricsSrv.Start(); err != nil {
		log.Fatalf("scriptkv: starting metrics server: %v", err)
	}
	log.Printf("metrics server listening on %s", cfg.MetricsAddr)
	defer metricsSrv.Stop()

	seq := buildMonotonicSetter().Compile()
	ctx := context.Background()

	runDemo := func(name string, run func(a float64) (value.Value, error)) {
		for _, a := range []float64{1, 3, 2} {
			start := time.Now()
			result, err := run(a)
			metrics.RecordScript(name, time.Since(start), err)
			if err != nil {
				log.Fatalf("scriptkv: %s backend: %v", name, err)
			}
			log.Printf("%s backend: set(%v) -> %s", name, a, value.ToDisplayString(result))
		}
	}

	switch cfg.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer client.Close()
		conn := luascript.NewRedisConn(client, cfg.KeyPrefix)
		backend := luascript.NewBackend(conn)
		prog, err := luascript.Compile(seq)
		if err != nil {
			log.Fatalf("scriptkv: compiling Lua script: %v", err)
		}
		exec, err := backend.Bind(ctx, prog)
		if err != nil {
			log.Fatalf("scriptkv: binding Lua script: %v", err)
		}
		runDemo("redis", func(a float64) (value.Value, error) {
			return exec(ctx, map[string]string{"k": "demo:counter"}, map[string]value.Value{"a": value.Float(a)})
		})

	case "mock":
		rt := memexec.NewRuntime(nil)
		conn := mockconn.New(rt.Machine(), memexec.NewRegistry(nil))
		backend := luascript.NewBackend(conn)
		prog, err := luascript.Compile(seq)
		if err != nil {
			log.Fatalf("scriptkv: compiling Lua script: %v", err)
		}
		exec, err := backend.Bind(ctx, prog)
		if err != nil {
			log.Fatalf("scriptkv: binding Lua script: %v", err)
		}
		runDemo("mock", func(a float64) (value.Value, error) {
			return exec(ctx, map[string]string{"k": "demo:counter"}, map[string]value.Value{"a": value.Float(a)})
		})

	default:
		rt := memexec.NewRuntime(nil)
		prog := memexec.Compile(seq)
		runDemo("memory", func(a float64) (value.Value, error) {
			return rt.RunScript(prog, map[string]string{"k": "demo:counter"}, map[string]value.Value{"a": value.Float(a)})
		})
	}
}
