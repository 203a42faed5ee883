package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrAlreadySold      = errors.New("listing already sold")
	ErrSelfPurchase     = errors.New("cannot purchase own listing")
	ErrInvalidBidder    = errors.New("listing owner cannot bid or offer")
	ErrListingClosed    = errors.New("listing closed for sale actions")
	ErrBidTooLow        = errors.New("bid does not beat current head")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrAlreadyResolved  = errors.New("offer already resolved")
	ErrAlreadyFinalized = errors.New("auction already finalized")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidSelection = errors.New("selection not among proposed options")
	ErrInvalidState     = errors.New("invalid state for operation")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrLockHeld         = errors.New("lock already held")
	ErrRateLimited      = errors.New("rate limited")
)

// ErrorKind partitions engine errors into the classes callers act on:
// validation problems are caller-correctable and never retried, authorization
// failures are fatal to the request, conflicts are normal outcomes under
// concurrency, and unavailability is the only retryable class.
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindAuthorization ErrorKind = "authorization"
	KindConflict      ErrorKind = "conflict"
	KindNotFound      ErrorKind = "not_found"
	KindRateLimited   ErrorKind = "rate_limited"
	KindUnavailable   ErrorKind = "unavailable"
	KindInternal      ErrorKind = "internal"
)

// Kind classifies err into an ErrorKind, unwrapping as needed. Unknown errors
// classify as internal.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrBidTooLow),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidSelection),
		errors.Is(err, ErrSelfPurchase),
		errors.Is(err, ErrInvalidBidder):
		return KindValidation
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, ErrAlreadySold),
		errors.Is(err, ErrAlreadyResolved),
		errors.Is(err, ErrAlreadyFinalized),
		errors.Is(err, ErrListingClosed),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrLockHeld):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrStoreUnavailable):
		return KindUnavailable
	default:
		return KindInternal
	}
}
