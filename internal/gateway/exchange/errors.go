package exchange

import (
	"errors"
	"fmt"
)

// ErrorClass buckets venue failures into the retry policy they get.
type ErrorClass int

const (
	// ClassTransient: network failures, rate limits, venue 5xx. Retried with
	// bounded backoff; reconciliation re-attempts next cycle on exhaustion.
	ClassTransient ErrorClass = iota
	// ClassValidation: bad price/qty/notional. Never retried; the offending
	// layer is skipped for the cycle.
	ClassValidation
	// ClassInsufficientBalance: skip all new placements this cycle and raise
	// a notification.
	ClassInsufficientBalance
	// ClassUnknownOrder: amend/cancel on an order the venue no longer knows.
	// Treated as already resolved.
	ClassUnknownOrder
	// ClassFatal: credentials, signature, permissions. Prevents startup.
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassValidation:
		return "validation"
	case ClassInsufficientBalance:
		return "insufficient_balance"
	case ClassUnknownOrder:
		return "unknown_order"
	case ClassFatal:
		return "fatal"
	}
	return "unknown"
}

// VenueError wraps a venue failure with its classification.
type VenueError struct {
	Class ErrorClass
	Code  int64
	Op    string
	Err   error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s failed (%s, code=%d): %v", e.Op, e.Class, e.Code, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// Classify returns the error class, defaulting to transient so unknown
// failures stay retryable instead of silently dropping actions.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTransient
	}
	var ve *VenueError
	if errors.As(err, &ve) {
		return ve.Class
	}
	return ClassTransient
}
