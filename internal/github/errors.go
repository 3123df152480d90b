package github

import "errors"

// ErrInvalidToken is returned when GitHub rejects the access token. It is
// fatal: callers must not retry and should surface the condition to the user.
var ErrInvalidToken = errors.New("invalid or expired github token")

// ErrUnavailable wraps server-side and network faults, including retry
// exhaustion. Callers may treat it as a transient service-unavailable
// condition.
var ErrUnavailable = errors.New("github api unavailable")
