package thinking

import "fmt"

// StageError is the base error type for reasoning-stage failures.
type StageError struct {
	Message string
	Cause   error
}

func (e *StageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by the underlying LLM
// provider.
type ProviderError struct {
	StageError
	Provider   string
	StatusCode int
	Retryable  bool
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ StageError }
type AbortError struct{ StageError }
type NetworkError struct{ StageError }
type EmptyOutputError struct{ StageError }

// IsRetryable returns true if the error is safe to retry at the
// provider-call level. Empty output is not retryable: the loop
// controller treats it as a terminal thinking failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *AuthenticationError:
		return false
	case *AccessDeniedError:
		return false
	case *ContextLengthError:
		return false
	case *ContentFilterError:
		return false
	case *EmptyOutputError:
		return false
	case *AbortError:
		return false
	case *RateLimitError:
		return true
	case *ServerError:
		return true
	case *NetworkError:
		return true
	case *RequestTimeoutError:
		return true
	case *ProviderError:
		return e.Retryable
	default:
		// Unknown errors default to retryable.
		return true
	}
}
