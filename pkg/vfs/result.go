package vfs

// Result is the uniform outcome of every adapter and facade call.
type Result[T any] struct {
	Success   bool       `json:"success"`
	Kind      ErrorKind  `json:"errorKind,omitempty"`
	Message   string     `json:"message,omitempty"`
	Solutions []string   `json:"recoverySolutions,omitempty"`
	Backend   BackendTag `json:"backend,omitempty"`
	Payload   T          `json:"payload"`

	err *Error
}

// Void is the payload of operations that return nothing.
type Void = struct{}

func OK[T any](payload T) Result[T] {
	return Result[T]{Success: true, Payload: payload}
}

// Fail builds a failed result from any error.
func Fail[T any](err error) Result[T] {
	e := asError(err)
	if e == nil {
		e = newError(KindInternal, "unknown failure")
	}
	return Result[T]{
		Kind:      e.Kind,
		Message:   e.Error(),
		Solutions: e.Solutions,
		err:       e,
	}
}

// Err returns nil for a successful result and a *Error otherwise. The error
// carries the result's recovery solutions, including those added after the
// adapter failed.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	if r.err != nil {
		e := *r.err
		e.Solutions = r.Solutions
		return &e
	}
	return &Error{Kind: r.Kind, Message: r.Message, Solutions: r.Solutions}
}

func (r Result[T]) annotate(backend BackendTag) Result[T] {
	r.Backend = backend
	if !r.Success && len(r.Solutions) == 0 {
		r.Solutions = DefaultSolutions(r.Kind, backend)
	}
	return r
}

// failAs re-types a failed result.
func failAs[U, T any](r Result[T]) Result[U] {
	return Result[U]{
		Kind:      r.Kind,
		Message:   r.Message,
		Solutions: r.Solutions,
		Backend:   r.Backend,
		err:       r.err,
	}
}
