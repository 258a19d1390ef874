package utils

import "time"

// Application Constants
const (
	AppName    = "RideChat"
	AppVersion = "1.0.0"

	// Pagination
	DefaultPageSize = 20
	MaxPageSize     = 100
	MinPageSize     = 1

	// Authentication
	JWTAccessTokenTTL = 24 * time.Hour

	// Chat
	MaxMessageLength  = 1000
	ChatCacheTTL      = 30 * time.Minute
	DefaultStoreLimit = 10 * time.Second
)

// HTTP Status Messages
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error Messages
const (
	ErrInvalidToken     = "invalid token"
	ErrInternalServer   = "internal server error"
	ErrUnauthorized     = "unauthorized"
	ErrForbidden        = "forbidden"
	ErrValidationFailed = "validation failed"
)

// Cache Keys
const (
	CacheChatPrefix = "chat:"
)

// Event Types
const (
	EventChatCreated     = "chat_created"
	EventChatDeleted     = "chat_deleted"
	EventMessageSent     = "message_sent"
	EventMessagesRead    = "messages_read"
	EventClientConnected = "client_connected"
	EventClientReplaced  = "client_replaced"
	EventClientGone      = "client_disconnected"
)
