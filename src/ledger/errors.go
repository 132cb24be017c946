package ledger

import "errors"

var (
	ErrSignalNotFound    = errors.New("signal not found")
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrSignalNotTradable rejects executions against signals that are not
	// active (paused, expired, cancelled, already executed, or past expiry
	// but not yet swept).
	ErrSignalNotTradable = errors.New("signal is not tradable")

	// ErrInvalidExecutionRequest covers malformed execution fields
	// (non-positive sizes, missing prices). Never persisted.
	ErrInvalidExecutionRequest = errors.New("invalid execution request")

	// ErrAlreadyInState marks a transition request whose target status is
	// the entity's current status. Distinguishable from a genuine illegal
	// transition so sweepers and manual actions can coexist.
	ErrAlreadyInState = errors.New("already in desired state")

	// ErrLockTimeout is transient: the caller timed out waiting for the
	// per-user serialization scope and nothing was applied, so a retry is
	// always safe.
	ErrLockTimeout = errors.New("timed out waiting for user lock")
)
