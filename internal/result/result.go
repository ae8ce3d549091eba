// Package result provides Result, the four-state outcome every cart and
// checkout observer consumes: Loading, Success, Empty and Error.
//
// A Result is an immutable value. Producers decide emptiness with their own
// domain rule and pick the matching constructor; observers branch with Match
// or Proceed, which take one handler per state so that a missing case is a
// compile error rather than a silent fallthrough.
package result

import (
	"encoding/json"
	"fmt"
)

type State uint8

const (
	StateLoading State = iota
	StateSuccess
	StateEmpty
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateEmpty:
		return "empty"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Result is the outcome of an operation producing T. The zero value is Loading.
type Result[T any] struct {
	state   State
	payload T
	present bool
	err     error
}

func Loading[T any]() Result[T] {
	return Result[T]{state: StateLoading}
}

func Success[T any](payload T) Result[T] {
	return Result[T]{state: StateSuccess, payload: payload, present: true}
}

// Empty marks data that arrived but is empty by the producer's rule. The
// payload may still carry residual fields such as a zero total.
func Empty[T any](payload T) Result[T] {
	return Result[T]{state: StateEmpty, payload: payload, present: true}
}

// Error records a failure. A nil cause is a programming error and panics.
// last, when non-nil, is the last good payload to keep on display.
func Error[T any](cause error, last *T) Result[T] {
	if cause == nil {
		panic("result: Error called with nil cause")
	}
	r := Result[T]{state: StateError, err: cause}
	if last != nil {
		r.payload = *last
		r.present = true
	}
	return r
}

func (r Result[T]) State() State { return r.state }

func (r Result[T]) IsLoading() bool { return r.state == StateLoading }

func (r Result[T]) IsSuccess() bool { return r.state == StateSuccess }

func (r Result[T]) IsEmpty() bool { return r.state == StateEmpty }

func (r Result[T]) IsError() bool { return r.state == StateError }

// Payload returns the carried value and whether there is one. Loading never
// has a payload; Success always has one.
func (r Result[T]) Payload() (T, bool) {
	return r.payload, r.present
}

// Err returns the cause of an Error result and nil otherwise.
func (r Result[T]) Err() error {
	return r.err
}

// Message is the human-readable cause, verbatim, or "".
func (r Result[T]) Message() string {
	if r.err == nil {
		return ""
	}
	return r.err.Error()
}

func (r Result[T]) payloadPtr() *T {
	if !r.present {
		return nil
	}
	p := r.payload
	return &p
}

// Match folds r into a value of type R. All four handlers are required.
func Match[T, R any](
	r Result[T],
	loading func() R,
	success func(T) R,
	empty func(*T) R,
	failed func(error, *T) R,
) R {
	switch r.state {
	case StateSuccess:
		return success(r.payload)
	case StateEmpty:
		return empty(r.payloadPtr())
	case StateError:
		return failed(r.err, r.payloadPtr())
	default:
		return loading()
	}
}

// Proceed runs the handler for r's state. All four handlers are required;
// pass NoEmpty where the producer guarantees Empty is never emitted.
func (r Result[T]) Proceed(
	loading func(),
	success func(T),
	empty func(*T),
	failed func(error, *T),
) {
	switch r.state {
	case StateSuccess:
		success(r.payload)
	case StateEmpty:
		empty(r.payloadPtr())
	case StateError:
		failed(r.err, r.payloadPtr())
	default:
		loading()
	}
}

// Map converts the payload of r with f. State and cause are kept, and a
// missing payload stays missing.
func Map[T, R any](r Result[T], f func(T) R) Result[R] {
	out := Result[R]{state: r.state, err: r.err, present: r.present}
	if r.present {
		out.payload = f(r.payload)
	}
	return out
}

// NoEmpty is the empty handler for call sites that do not expect Empty.
// Receiving one anyway is a contract violation.
func NoEmpty[T any](*T) {
	panic("result: unexpected Empty state")
}

type wire[T any] struct {
	State   string `json:"state"`
	Payload *T     `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (r Result[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(wire[T]{
		State:   r.state.String(),
		Payload: r.payloadPtr(),
		Error:   r.Message(),
	})
}

func (r Result[T]) String() string {
	if r.err != nil {
		return fmt.Sprintf("%s(%v)", r.state, r.err)
	}
	return r.state.String()
}
