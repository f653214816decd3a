package memexec

import "fmt"

// UninitVariableError is raised when a script reads a local before it
// has been declared, mirroring the source project's UNINIT sentinel
// check in compile_expr's get_var.
type UninitVariableError struct{ Name string }

func (e *UninitVariableError) Error() string {
	return fmt.Sprintf("memexec: %s is uninitialized", e.Name)
}

// UnknownFunctionError is raised by call_fn-equivalent dispatch for a
// general function name with no registered implementation.
type UnknownFunctionError struct{ Name string }

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("memexec: unknown function %s", e.Name)
}

// UnknownCommandError is raised by redis_fn-equivalent dispatch for a
// command name with no registered implementation.
type UnknownCommandError struct{ Name string }

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("memexec: unknown redis command %s", e.Name)
}

// ArgCountMismatchError is raised when a call's argument count violates
// its ArgcSpec, mirroring LocalRuntime.require_argc.
type ArgCountMismatchError struct {
	Name string
	Got  int
	Spec ArgcSpec
}

func (e *ArgCountMismatchError) Error() string {
	return fmt.Sprintf(
		"memexec: %s got %d arguments, want %s", e.Name, e.Got, e.Spec.describe())
}

// TypeMismatchError is raised when a value's runtime kind does not
// match what an operator or command requires (e.g. indexing a non-list).
type TypeMismatchError struct{ Detail string }

func (e *TypeMismatchError) Error() string { return "memexec: type mismatch: " + e.Detail }

// UnexecutedPipelineError is raised when a pipeline's context exits
// with queued, uncommitted commands still pending.
type UnexecutedPipelineError struct{ Pending int }

func (e *UnexecutedPipelineError) Error() string {
	return fmt.Sprintf("memexec: unexecuted commands in pipeline (%d pending)", e.Pending)
}

// ModeConflictError is raised for contradictory redis.call option flags
// (e.g. both NX and XX given to SET).
type ModeConflictError struct{ Detail string }

func (e *ModeConflictError) Error() string { return "memexec: mode conflict: " + e.Detail }
