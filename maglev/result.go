// Reduce results returned by the per-instruction visitors.

package maglev

import "github.com/ketrewq/v8/ir"

type reduceKind uint8

const (
	reduceDone reduceKind = iota
	reduceDoneWithValue
	reduceDoneWithAbort
	reduceFail
)

// ReduceResult is the outcome of one reduction step. Fail means a
// speculative fast path does not apply and the caller must fall through
// to a strictly more general lowering; DoneWithAbort means the remaining
// code on this path is unreachable and the caller must stop emitting.
type ReduceResult struct {
	kind  reduceKind
	value *ir.Node
}

// Done reports successful reduction with no produced value.
func Done() ReduceResult { return ReduceResult{kind: reduceDone} }

// DoneWithValue reports successful reduction producing value.
func DoneWithValue(value *ir.Node) ReduceResult {
	return ReduceResult{kind: reduceDoneWithValue, value: value}
}

// DoneWithAbort reports that control cannot continue past this point.
func DoneWithAbort() ReduceResult { return ReduceResult{kind: reduceDoneWithAbort} }

// Fail reports that the attempted fast path does not apply.
func Fail() ReduceResult { return ReduceResult{kind: reduceFail} }

// IsDone reports whether the reduction succeeded (with or without a
// value).
func (r ReduceResult) IsDone() bool {
	return r.kind == reduceDone || r.kind == reduceDoneWithValue
}

// IsDoneWithValue reports whether the reduction produced a value.
func (r ReduceResult) IsDoneWithValue() bool { return r.kind == reduceDoneWithValue }

// IsDoneWithAbort reports whether the path is unreachable.
func (r ReduceResult) IsDoneWithAbort() bool { return r.kind == reduceDoneWithAbort }

// IsFail reports whether the fast path did not apply.
func (r ReduceResult) IsFail() bool { return r.kind == reduceFail }

// Value returns the produced node; panics unless IsDoneWithValue.
func (r ReduceResult) Value() *ir.Node {
	if r.kind != reduceDoneWithValue {
		panic("maglev: reading value of valueless reduce result")
	}
	return r.value
}
