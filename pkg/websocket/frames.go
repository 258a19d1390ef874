package websocket

import (
	"encoding/json"
	"errors"
	"fmt"

	"ridechat/internal/models"
	"ridechat/internal/validators"
)

type FrameType string

const (
	FrameConnection  FrameType = "connection"
	FrameChatMessage FrameType = "chat_message"
	FrameTyping      FrameType = "typing"
	FrameError       FrameType = "error"
)

// Error codes carried in the optional code field of error frames.
const (
	CodeInvalidFrame      = "invalid_frame"
	CodeUnknownType       = "unknown_type"
	CodeChatNotFound      = "chat_not_found"
	CodeNotParticipant    = "not_participant"
	CodePersistenceFailed = "persistence_failed"
)

const (
	msgConnected        = "Connected to chat server"
	msgProcessingFailed = "failed to process message"
	msgUnknownType      = "unknown message type"
	msgChatNotFound     = "chat not found"
	msgSendFailed       = "failed to send message"
)

// Close codes sent when the handshake is rejected.
const (
	CloseAuthRequired = 4001
	CloseAuthFailed   = 4002

	reasonAuthRequired = "Authentication required"
	reasonAuthFailed   = "Authentication failed"
)

var (
	ErrMalformedFrame   = errors.New("malformed frame")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

// InboundFrame is a frame a client may send. The set of implementations is
// closed: ChatMessageFrame and TypingFrame.
type InboundFrame interface {
	frameType() FrameType
}

type ChatMessageFrame struct {
	ChatID     string `json:"chat_id" validate:"required,object_id"`
	ReceiverID string `json:"receiver_identity" validate:"required,object_id"`
	Content    string `json:"content" validate:"required,not_blank,max=1000"`
}

func (*ChatMessageFrame) frameType() FrameType { return FrameChatMessage }

type TypingFrame struct {
	ChatID     string `json:"chat_id" validate:"required,object_id"`
	ReceiverID string `json:"receiver_identity" validate:"required,object_id"`
	IsTyping   *bool  `json:"is_typing" validate:"required"`
}

func (*TypingFrame) frameType() FrameType { return FrameTyping }

type inboundEnvelope struct {
	Type FrameType `json:"type"`
}

// DecodeInbound parses raw into one of the inbound frame types and checks
// its required fields.
func DecodeInbound(raw []byte) (InboundFrame, error) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	var frame InboundFrame
	switch envelope.Type {
	case FrameChatMessage:
		frame = &ChatMessageFrame{}
	case FrameTyping:
		frame = &TypingFrame{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, envelope.Type)
	}

	if err := json.Unmarshal(raw, frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if err := validators.ValidateStruct(frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	return frame, nil
}

// Outbound frames

type ConnectionFrame struct {
	Type     FrameType   `json:"type"`
	Message  string      `json:"message"`
	Identity string      `json:"identity"`
	Role     models.Role `json:"role"`
}

type ChatMessageEvent struct {
	Type               FrameType       `json:"type"`
	ChatID             string          `json:"chat_id"`
	Message            *models.Message `json:"message"`
	IsSentConfirmation bool            `json:"is_sent_confirmation,omitempty"`
}

type TypingEvent struct {
	Type       FrameType   `json:"type"`
	ChatID     string      `json:"chat_id"`
	SenderID   string      `json:"sender_identity"`
	SenderRole models.Role `json:"sender_role"`
	IsTyping   bool        `json:"is_typing"`
}

type ErrorFrame struct {
	Type    FrameType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
}

func newConnectionFrame(identity *models.Identity) *ConnectionFrame {
	return &ConnectionFrame{
		Type:     FrameConnection,
		Message:  msgConnected,
		Identity: identity.UserID.Hex(),
		Role:     identity.Role,
	}
}

func newErrorFrame(message, code string) *ErrorFrame {
	return &ErrorFrame{Type: FrameError, Message: message, Code: code}
}
