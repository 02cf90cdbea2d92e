package buildgraph

import "fmt"

// ResultKind tags a step Result.
type ResultKind uint8

const (
	// ResultNone means the step had nothing to do.
	ResultNone ResultKind = iota
	// ResultErr aborts the remaining steps of the task.
	ResultErr
	// ResultIntermediate hands an artifact to the next step.
	ResultIntermediate
	// ResultFinal means the step produced its output on disk.
	ResultFinal
)

func (k ResultKind) String() string {
	switch k {
	case ResultNone:
		return "none"
	case ResultErr:
		return "err"
	case ResultIntermediate:
		return "intermediate"
	case ResultFinal:
		return "final"
	default:
		return "unknown"
	}
}

// Result is what a step function returns.
type Result struct {
	kind     ResultKind
	message  string
	artifact any
}

func None() Result                { return Result{kind: ResultNone} }
func Final() Result               { return Result{kind: ResultFinal} }
func Err(msg string) Result       { return Result{kind: ResultErr, message: msg} }
func Intermediate(a any) Result   { return Result{kind: ResultIntermediate, artifact: a} }
func (r Result) Kind() ResultKind { return r.kind }
func (r Result) Message() string  { return r.message }
func (r Result) Artifact() any    { return r.artifact }
func (r Result) Failed() bool     { return r.kind == ResultErr }

// Errf formats an Err result.
func Errf(format string, args ...any) Result {
	return Err(fmt.Sprintf(format, args...))
}
