package conversation

import "errors"

var (
	// ErrUpstream wraps every failed language model call.
	ErrUpstream = errors.New("conversation: language model call failed")

	// ErrExtraction means the card photo could not be read.
	ErrExtraction = errors.New("conversation: could not extract card details")

	// ErrContentBlocked means the provider's safety filter refused the prompt or the answer.
	ErrContentBlocked = errors.New("conversation: blocked by provider safety filter")

	ErrUnsupportedAttachment = errors.New("conversation: attachment type not supported by provider")
)
