package shared

import "errors"

// Session and credential errors.
var (
	// ErrInvalidSession indicates the token does not resolve to a session.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpired indicates the session TTL has elapsed.
	ErrSessionExpired = errors.New("session has expired")
	// ErrAccessForbidden indicates an authenticated principal lacks the required permission.
	ErrAccessForbidden = errors.New("access forbidden")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserBlocked indicates the user is blocked from signing in.
	ErrUserBlocked = errors.New("user blocked")
	// ErrPasswordHash indicates password hashing failed; distinct from a credential mismatch.
	ErrPasswordHash = errors.New("password hash failure")
)

// Storage errors.
var (
	// ErrEntryNotFound indicates the requested entry does not exist.
	ErrEntryNotFound = errors.New("entry not found")
	// ErrEntryAlreadyExists indicates a unique constraint was violated.
	ErrEntryAlreadyExists = errors.New("entry already exists")
	// ErrEntryUpdate indicates an update touched no rows or was rejected.
	ErrEntryUpdate = errors.New("entry update failed")
	// ErrEntryDelete indicates a delete touched no rows or was rejected.
	ErrEntryDelete = errors.New("entry delete failed")
	// ErrStorage is the catch-all for transport and connection failures.
	ErrStorage = errors.New("storage failure")
)
