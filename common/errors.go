package common

import "fmt"

// Kind classifies an error into the taxonomy from the error-handling design:
// it tells the state-machine driver how to react (retry, abort, schedule a
// cancel, or surface to the user) without needing to inspect error strings.
type Kind int

const (
	// KindValidation covers invalid proofs/signatures, out-of-network
	// addresses, out-of-bounds amounts, and unexpected message variants.
	// Fatal to the current transition; the persisted state is unaffected.
	KindValidation Kind = iota
	// KindTransport covers framing errors, timeouts, and disconnects.
	// Retried with bounded backoff by the caller.
	KindTransport
	// KindWallet covers insufficient funds, unreachable RPC, and rejected
	// broadcasts.
	KindWallet
	// KindCancelled is a user-requested abort before a point of no return.
	KindCancelled
	// KindProtocolAbort is counterparty misbehaviour discovered after a
	// point of no return; it triggers the cancel/refund timeline.
	KindProtocolAbort
	// KindStorage covers CAS failures, corruption, and flush failures.
	// Fatal: the swap halts without advancing state.
	KindStorage
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindTransport:
		return "transport"
	case KindWallet:
		return "wallet"
	case KindCancelled:
		return "cancelled"
	case KindProtocolAbort:
		return "protocol-abort"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged error. Every error that crosses a state-machine
// transition boundary should be, or wrap, one of these so the driver can
// decide what to do with it via Is/As instead of string matching.
type Error struct {
	Kind Kind
	Err  error
}

// NewError wraps err with the given taxonomy kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf builds a taxonomy-tagged error from a format string.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

// Unwrap allows errors.Is/errors.As to see through to the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so callers can
// write errors.Is(err, common.NewError(common.KindCancelled, nil)) or,
// more conveniently, use the Kind-checking helpers below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsKind reports whether err is (or wraps) a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ae, ok := err.(*Error); ok {
			e = ae
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}

// ErrCancelled is returned by transitions that observe the cancellation flag
// at a suspension point.
var ErrCancelled = NewError(KindCancelled, fmt.Errorf("cancelled by user"))

// ErrUnexpectedMessage is returned by receive(X) when the delivered message
// does not match the state's expected variant. The state is left unchanged
// and the swap remains resumable.
var ErrUnexpectedMessage = NewError(KindValidation, fmt.Errorf("unexpected message type"))
