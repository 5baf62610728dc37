package repo

// Kind tags an Outcome variant. Consumers switch over it exhaustively; there
// is no open hierarchy to subclass.
type Kind int

const (
	// KindIdle is the zero value: no request in flight, nothing to show.
	KindIdle Kind = iota
	// KindLoading means a request started and no data has arrived yet.
	KindLoading
	// KindSuccess carries a value.
	KindSuccess
	// KindFailure carries an error.
	KindFailure
)

// Outcome is the tagged union emitted on live sequences: exactly one of
// Value or Err is meaningful, selected by Kind.
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// Loading returns a loading outcome.
func Loading[T any]() Outcome[T] {
	return Outcome[T]{Kind: KindLoading}
}

// Success wraps a value.
func Success[T any](v T) Outcome[T] {
	return Outcome[T]{Kind: KindSuccess, Value: v}
}

// Failure wraps an error.
func Failure[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: KindFailure, Err: err}
}
