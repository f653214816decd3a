package memexec

import (
	"sync"

	"github.com/mnorrsken/scriptkv/internal/ir"
	"github.com/mnorrsken/scriptkv/internal/value"
)

// Runtime is the memory backend's entry point: one root State plus the
// shared function Registry, serialized behind a single mutex so that
// every script runs atomically with respect to every other script or
// direct command, per spec.md's concurrency model. Grounded on the
// source project's LocalRuntime.
type Runtime struct {
	mu       sync.Mutex
	state    *State
	machine  *Machine
	registry *Registry
}

// NewRuntime builds a fresh runtime over an empty store. logf, if
// non-nil, receives redis.log(level, message) calls.
func NewRuntime(logf func(level, message string)) *Runtime {
	st := NewState()
	return &Runtime{
		state:    st,
		machine:  NewMachine(st),
		registry: NewRegistry(logf),
	}
}

// RunScript executes an already compiled prog against the root state, holding the runtime lock for the duration — scripts
// are atomic with respect to all other activity on this runtime.
func (rt *Runtime) RunScript(
	prog *Program, keys map[string]string, args map[string]value.Value,
) (value.Value, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return prog.Run(keys, args, rt.registry, rt.machine)
}

// Call invokes a single redis command directly (outside of any script),
// the equivalent of the source project's individual RedisAPI methods
// (get/set/lpush/...) used by callers that don't need the DSL.
func (rt *Runtime) Call(name string, args ...value.Value) (value.Value, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.registry.RedisCall(rt.machine, name, args)
}

// Machine exposes the runtime's command surface directly, for callers
// (e.g. the CLI) that want typed access instead of going through Call.
func (rt *Runtime) Machine() *Machine { return rt.machine }

// Pipeline opens a queued-command overlay against the runtime's current
// state. Commands queued via Pipeline.Queue only run at Commit, and
// Commit merges the overlay into the root state atomically. Leaving a
// Pipeline with queued, uncommitted commands is an error — mirrors
// LocalRuntime.pipeline's "unexecuted commands" check.
func (rt *Runtime) Pipeline() *Pipeline {
	rt.mu.Lock()
	child := rt.state.NewChild()
	return &Pipeline{
		rt:      rt,
		state:   child,
		machine: NewMachine(child),
	}
}

// Pipeline queues redis.call-shaped operations against a child State and
// applies them to the parent runtime in one atomic Commit, grounded on
// LocalPipeline.
type Pipeline struct {
	rt      *Runtime
	state   *State
	machine *Machine
	queue   []func() (value.Value, error)
	results []value.Value
	closed  bool
}

// Queue appends a redis command to the pipeline, to be run at Commit.
// args[0] is the key, matching registry.RedisCall's own convention.
func (p *Pipeline) Queue(name string, args ...value.Value) {
	p.queue = append(p.queue, func() (value.Value, error) {
		return p.rt.registry.RedisCall(p.machine, name, args)
	})
}

// HasQueue reports whether commands are still queued and uncommitted.
func (p *Pipeline) HasQueue() bool { return len(p.queue) > 0 }

// Commit runs every queued command against the child state, applies the
// child state onto the parent runtime's root state, and releases the
// runtime lock acquired by Pipeline(). It must be called exactly once.
func (p *Pipeline) Commit() ([]value.Value, error) {
	defer p.release()
	cmds := p.queue
	p.queue = nil
	results := make([]value.Value, 0, len(cmds))
	for _, cmd := range cmds {
		v, err := cmd()
		if err != nil {
			return nil, err
		}
		results = append(results, v)
	}
	p.rt.state.Apply(p.state)
	return results, nil
}

// Abort releases the pipeline's lock without applying it, raising
// UnexecutedPipelineError if commands were still queued — a caller
// abandoning a pipeline mid-build is almost always a bug.
func (p *Pipeline) Abort() error {
	defer p.release()
	if len(p.queue) > 0 {
		return &UnexecutedPipelineError{Pending: len(p.queue)}
	}
	return nil
}

func (p *Pipeline) release() {
	if p.closed {
		return
	}
	p.closed = true
	p.rt.mu.Unlock()
}

// CompileScript is a convenience wrapper so callers don't need to import
// the ir package directly just to compile a symbolic.Context's output.
func CompileScript(seq ir.Sequence) *Program { return Compile(seq) }
