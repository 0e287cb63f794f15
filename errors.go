package posthog

import (
	"errors"
	"fmt"
	"net"
)

// Error Variables
var (
	ErrInconclusiveMatch        = errors.New("inconclusive local evaluation")
	ErrRequiresServerEvaluation = errors.New("flag requires server-side evaluation")
	ErrInvalidDate              = errors.New("invalid date")
	ErrFlagNotFound             = errors.New("feature flag not found")
	ErrQuotaLimited             = errors.New("feature flags quota limited")
	ErrServerComputation        = errors.New("error computing flags on server")
)

// InconclusiveMatchError means local data cannot decide a condition: a
// property is missing from the bag, an operator is not supported locally, or
// a flag dependency is circular or unknown. It signals fallback to remote
// evaluation, never a resolved false.
type InconclusiveMatchError struct {
	Reason string
}

func (e *InconclusiveMatchError) Error() string { return e.Reason }

func (e *InconclusiveMatchError) Is(target error) bool { return target == ErrInconclusiveMatch }

// RequiresServerEvaluationError means the flag is structurally never
// evaluated locally, e.g. flags with experience continuity enabled.
type RequiresServerEvaluationError struct {
	Reason string
}

func (e *RequiresServerEvaluationError) Error() string { return e.Reason }

func (e *RequiresServerEvaluationError) Is(target error) bool {
	return target == ErrRequiresServerEvaluation
}

// InvalidDateError is a hard error for malformed date input, distinct from
// an inconclusive match.
type InvalidDateError struct {
	Reason string
}

func (e *InvalidDateError) Error() string { return e.Reason }

func (e *InvalidDateError) Is(target error) bool { return target == ErrInvalidDate }

// HTTPStatusError reports a non-2xx response from the remote evaluation
// collaborator. It only feeds the "$feature_flag_called" error tag.
type HTTPStatusError struct {
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("remote flag evaluation returned status %d", e.StatusCode)
}

// errorTag maps a remote evaluation failure to the tag attached to the
// "$feature_flag_called" event for observability.
func errorTag(err error) string {
	if err == nil {
		return ""
	}
	var statusErr *HTTPStatusError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrFlagNotFound):
		return "flag_missing"
	case errors.Is(err, ErrQuotaLimited):
		return "quota_limited"
	case errors.As(err, &statusErr):
		return fmt.Sprintf("http_status_%d", statusErr.StatusCode)
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case isConnectionError(err):
		return "connection_error"
	case errors.Is(err, ErrServerComputation):
		return "computation_error"
	default:
		return "unknown"
	}
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
