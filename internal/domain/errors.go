package domain

import "errors"

var (
	// ErrTestNotFound indicates the referenced test does not exist in the store.
	ErrTestNotFound = errors.New("test not found")
	// ErrAttemptNotFound indicates the referenced attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrUnknownSubmissionReason is returned when an attempt is submitted with
	// a reason outside the known set.
	ErrUnknownSubmissionReason = errors.New("unknown submission reason")
	// ErrAttemptAlreadyScored is returned when scoring an attempt that already
	// reached a terminal status.
	ErrAttemptAlreadyScored = errors.New("attempt already scored")
)
