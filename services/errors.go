package services

import "errors"

var (
	// ErrStoreUnavailable means no usable backing connection exists. Callers
	// should disable mutation affordances; the call is not retried here.
	ErrStoreUnavailable = errors.New("chat store is not available")

	// ErrInvalidArgument marks empty identifiers and similar programmer
	// errors that should not occur through normal flow.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTurnInProgress is returned when a turn is already running. Turns
	// are never queued.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrBlankMessage rejects empty or whitespace-only input.
	ErrBlankMessage = errors.New("message is blank")

	// ErrAlreadySelected rejects re-selecting the active chat.
	ErrAlreadySelected = errors.New("chat is already selected")
)
