package auth

import "errors"

var (
	// ErrValidation is returned for malformed local input. The request
	// never reaches the network.
	ErrValidation = errors.New("invalid input")

	// ErrInvalidCredentials is returned when the remote service rejects a
	// credential pair. Never retried automatically.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNetwork is returned when the remote service is unreachable or a
	// request times out.
	ErrNetwork = errors.New("network unreachable")

	// ErrTokenRefreshFailed is returned when a silent token refresh is
	// rejected by the remote service.
	ErrTokenRefreshFailed = errors.New("token refresh failed")

	// ErrPermissionFetchFailed is returned when the grants endpoint is
	// unavailable. Callers resolve to least privilege instead of blocking.
	ErrPermissionFetchFailed = errors.New("permission fetch failed")

	// ErrQueueReplayFailed is returned when a pending action exhausts its
	// retry budget during replay.
	ErrQueueReplayFailed = errors.New("queued action exhausted retries")

	// ErrStorage is returned when durable storage is unavailable.
	ErrStorage = errors.New("storage unavailable")
)
