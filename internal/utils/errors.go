package utils

import "errors"

var (
	ErrChatNotFound     = errors.New("chat not found")
	ErrNotParticipant   = errors.New("user is not a participant of this chat")
	ErrInvalidRole      = errors.New("invalid role")
	ErrRoleMismatch     = errors.New("sender and receiver roles do not match the chat")
	ErrEmptyContent     = errors.New("message content is required")
	ErrContentTooLong   = errors.New("message content is too long")
	ErrMissingToken     = errors.New("authentication token required")
	ErrInvalidTokenType = errors.New("unexpected signing method")
)
