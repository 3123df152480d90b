package ai

import "errors"

// The error taxonomy of the summarization backend. ErrInvalidAPIKey is
// fatal: it aborts the entire batch. ErrRateLimited is retried on a fixed
// delay schedule. ErrEndpoint and ErrNetwork mark the item as a retryable
// failure; ErrEmptyContent marks it as a terminal one.
var (
	ErrInvalidAPIKey = errors.New("ai api key invalid or expired")
	ErrRateLimited   = errors.New("ai backend rate limited")
	ErrEndpoint      = errors.New("ai backend endpoint fault")
	ErrNetwork       = errors.New("ai backend network fault")
	ErrEmptyContent  = errors.New("ai response empty or too short")
)

// ErrAlreadyRunning is returned when a summary batch is requested while
// another one is still in progress.
var ErrAlreadyRunning = errors.New("a summary task is already running")
