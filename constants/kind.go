package constants

// Kind classifies a per-document failure.
type Kind string

const (
	KindNetwork         Kind = "NETWORK_ERROR"
	KindRateLimited     Kind = "RATE_LIMITED"
	KindAuthentication  Kind = "AUTHENTICATION_FAILED"
	KindUnsupported     Kind = "UNSUPPORTED_FORMAT"
	KindInvalidDocument Kind = "INVALID_DOCUMENT"
	KindTimedOut        Kind = "TIMED_OUT"
	KindCacheCorruption Kind = "CACHE_CORRUPTION"
	KindCancelled       Kind = "CANCELLED"
	KindInternal        Kind = "INTERNAL"
)

// Retryable kinds are retried by the scheduler with backoff.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindRateLimited
}

// BackendFatal kinds can never succeed against the same backend in this run.
func (k Kind) BackendFatal() bool {
	return k == KindAuthentication
}
