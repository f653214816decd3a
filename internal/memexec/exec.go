package memexec

import "github.com/mnorrsken/scriptkv/internal/value"

// uninit is the sentinel stored in a fresh local slot before its
// declare statement runs; reading it raises UninitVariableError. It
// mirrors the source project's UNINIT marker.
type uninitType struct{}

var uninit = uninitType{}

// frame is one call frame's argument/key name bindings plus its local
// variable slots, mirroring the (arg_names, key_names, stack) triple of
// the source project's ExecState, one entry per nested script/seq
// invocation.
type frame struct {
	argNames map[string]value.Value
	keyNames map[string]string
	locals   []any // value.Value or uninit
}

// execState is the mutable state threaded through a single compiled
// script invocation: the positional KEYS/ARGV vectors, a stack of
// frames (one per nested declare scope), the runtime's Registry and
// Machine, and the return-value slot.
type execState struct {
	keyv   []string
	argv   []value.Value
	frames []*frame

	registry *Registry
	machine  *Machine

	ret    value.Value
	hasRet bool

	keys map[string]string
	args map[string]value.Value
}

func (s *execState) top() *frame { return s.frames[len(s.frames)-1] }

func (s *execState) pushFrame(size int) {
	locals := make([]any, size)
	for i := range locals {
		locals[i] = uninit
	}
	s.frames = append(s.frames, &frame{
		argNames: map[string]value.Value{},
		keyNames: map[string]string{},
		locals:   locals,
	})
}

func (s *execState) popFrame() { s.frames = s.frames[:len(s.frames)-1] }
