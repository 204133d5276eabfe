package domain

import "errors"

// Sentinel errors for domain operations
var (
	// ErrStoryNotFound indicates the requested story does not exist
	ErrStoryNotFound = errors.New("story not found")

	// ErrServerOffline indicates the story server is unreachable
	ErrServerOffline = errors.New("story server is unreachable")

	// ErrAuthFailed indicates the session token is invalid or expired
	ErrAuthFailed = errors.New("authentication token is invalid")

	// ErrNotAuthenticated indicates an operation that requires a signed-in
	// user was attempted in guest mode
	ErrNotAuthenticated = errors.New("not authenticated")
)
