package ir

// SeqKind distinguishes the three Sequence shapes.
type SeqKind string

const (
	SeqPlain    SeqKind = "seq"
	SeqScript   SeqKind = "script"
	SeqFunction SeqKind = "function"
)

// Sequence is an ordered list of statements. A SeqScript is the root of a
// compiled script and additionally declares its positional arg/key
// ordering. SeqFunction is reserved and unimplemented — see DESIGN.md.
type Sequence struct {
	Kind SeqKind
	Cmds []Stmt

	// SeqScript only.
	ArgV []string
	KeyV []string

	// SeqFunction only.
	Argc int
}
