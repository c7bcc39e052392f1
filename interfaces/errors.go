package interfaces

import "errors"

var (
	// ErrNotEnoughShares is returned when fewer than two share nodes acknowledged a share.
	ErrNotEnoughShares = errors.New("not enough shares")

	// ErrShareIntegrity is returned when the node responses do not interpolate to the social share.
	ErrShareIntegrity = errors.New("something went wrong")

	// ErrNullSecret is returned when the reconstructed polynomial has no secret.
	ErrNullSecret = errors.New("secret is null")

	// ErrSignTimeout is returned when a sign request was not settled in time.
	ErrSignTimeout = errors.New("sign request timed out")

	// ErrQueueClosed is returned for sign requests pending when the queue shuts down.
	ErrQueueClosed = errors.New("sign queue closed")
)
