package websocket

import (
	"context"
	"errors"

	"ridechat/internal/models"
	"ridechat/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// handleChatMessage persists the message, confirms it to the sender and
// pushes it to the receiver when the receiver is connected.
func (h *Handler) handleChatMessage(client *Client, f *ChatMessageFrame) *frameError {
	chatID, err := primitive.ObjectIDFromHex(f.ChatID)
	if err != nil {
		return errInvalidFrame
	}
	receiverID, err := primitive.ObjectIDFromHex(f.ReceiverID)
	if err != nil {
		return errInvalidFrame
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.HandlerTimeout)
	defer cancel()

	message, err := h.chats.SendMessage(ctx, &models.SendMessageInput{
		ChatID:     chatID,
		SenderID:   client.UserID,
		SenderRole: client.Role,
		ReceiverID: receiverID,
		Content:    f.Content,
	})
	if err != nil {
		return h.chatFailure(client, chatID, err)
	}

	receiver, online := h.registry.Lookup(receiverID)
	if !online {
		h.metrics.recordDelivery("message", "offline")
		h.logger.WithChatID(chatID).WithField("receiver", receiverID.Hex()).Debug("Receiver offline, message stored only")
	}

	// The sender may have reconnected while the store call ran; confirm to
	// whichever connection is current.
	if sender, ok := h.registry.Lookup(client.UserID); ok {
		h.send(sender, &ChatMessageEvent{
			Type:               FrameChatMessage,
			ChatID:             chatID.Hex(),
			Message:            message,
			IsSentConfirmation: true,
		}, "confirmation")
	}

	if online {
		h.send(receiver, &ChatMessageEvent{
			Type:    FrameChatMessage,
			ChatID:  chatID.Hex(),
			Message: message,
		}, "message")
	}

	return nil
}

func (h *Handler) chatFailure(client *Client, chatID primitive.ObjectID, err error) *frameError {
	log := h.logger.WithUserID(client.UserID).WithChatID(chatID).WithError(err)

	switch {
	case errors.Is(err, utils.ErrChatNotFound):
		return errChatNotFound
	case errors.Is(err, utils.ErrNotParticipant), errors.Is(err, utils.ErrRoleMismatch):
		log.Warn("Rejected message outside chat pair")
		return errNotParticipant
	case errors.Is(err, utils.ErrEmptyContent), errors.Is(err, utils.ErrContentTooLong), errors.Is(err, utils.ErrInvalidRole):
		return errInvalidFrame
	default:
		log.Error("Failed to persist chat message")
		return errPersistenceFailed
	}
}

// handleTyping relays a typing indicator. Nothing is stored and an offline
// receiver simply misses it.
func (h *Handler) handleTyping(client *Client, f *TypingFrame) *frameError {
	receiverID, err := primitive.ObjectIDFromHex(f.ReceiverID)
	if err != nil {
		return errInvalidFrame
	}

	receiver, ok := h.registry.Lookup(receiverID)
	if !ok {
		h.metrics.recordDelivery("typing", "offline")
		return nil
	}

	h.send(receiver, &TypingEvent{
		Type:       FrameTyping,
		ChatID:     f.ChatID,
		SenderID:   client.UserID.Hex(),
		SenderRole: client.Role,
		IsTyping:   *f.IsTyping,
	}, "typing")

	return nil
}
