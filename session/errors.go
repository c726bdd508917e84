package session

import "errors"

var (
	// ErrReceiverClosed indicates the receiver no longer accepts fragments.
	ErrReceiverClosed = errors.New("receiver is closed")

	// ErrSenderClosed indicates the sender no longer sends frames.
	ErrSenderClosed = errors.New("sender is closed")

	// ErrNoDestination indicates no remote is configured and no receiver
	// has announced itself yet.
	ErrNoDestination = errors.New("sender has no destination")
)
