package assistant

import "errors"

var (
	// ErrInvalidTransition indicates a reply was asked to move to a state
	// its current status does not allow. This is a concurrency bug upstream,
	// never something to retry.
	ErrInvalidTransition = errors.New("invalid reply transition")
	// ErrReplyWithoutBody indicates a ready reply is missing its content.
	ErrReplyWithoutBody = errors.New("ready reply missing body")
)
