package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/internal/utils"
	"ridechat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatService interface {
	// Realtime
	SendMessage(ctx context.Context, input *models.SendMessageInput) (*models.Message, error)

	// Chat management
	CreateChat(ctx context.Context, caller *models.Identity, request *models.CreateChatRequest) (*models.Chat, bool, error)
	GetChat(ctx context.Context, caller *models.Identity, chatID primitive.ObjectID) (*models.Chat, error)
	GetRiderChats(ctx context.Context, riderID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error)
	GetDriverChats(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error)
	MarkMessagesAsRead(ctx context.Context, caller *models.Identity, chatID primitive.ObjectID) (int64, error)
	DeleteChat(ctx context.Context, caller *models.Identity, chatID primitive.ObjectID) error
}

type chatService struct {
	chatRepo interfaces.ChatRepository
	logger   *logger.Logger
	now      func() time.Time
}

func NewChatService(chatRepo interfaces.ChatRepository, logger *logger.Logger) ChatService {
	return &chatService{
		chatRepo: chatRepo,
		logger:   logger,
		now:      time.Now,
	}
}

// SendMessage persists one message from input.SenderID to input.ReceiverID.
// The receiver role is the complement of the sender role, and the pair must
// match the chat's rider and driver in that orientation.
func (s *chatService) SendMessage(ctx context.Context, input *models.SendMessageInput) (*models.Message, error) {
	// Content is stored as sent; trimming only decides emptiness and length.
	trimmed := strings.TrimSpace(input.Content)
	if trimmed == "" {
		return nil, utils.ErrEmptyContent
	}
	if utf8.RuneCountInString(trimmed) > utils.MaxMessageLength {
		return nil, utils.ErrContentTooLong
	}
	if !input.SenderRole.IsValid() {
		return nil, utils.ErrInvalidRole
	}
	receiverRole := input.SenderRole.Complement()

	header, err := s.chatRepo.GetChatHeader(ctx, input.ChatID)
	if err != nil {
		return nil, err
	}

	if err := checkPair(header, input.SenderID, input.SenderRole, input.ReceiverID); err != nil {
		return nil, err
	}

	message := &models.Message{
		ID:           primitive.NewObjectID(),
		Sender:       input.SenderID,
		SenderRole:   input.SenderRole,
		Receiver:     input.ReceiverID,
		ReceiverRole: receiverRole,
		Content:      input.Content,
		Read:         false,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.chatRepo.AppendMessage(ctx, input.ChatID, message); err != nil {
		return nil, err
	}

	s.logger.LogChatEvent(input.ChatID, utils.EventMessageSent, map[string]interface{}{
		"message_id":    message.ID.Hex(),
		"sender_role":   message.SenderRole.String(),
		"receiver_role": message.ReceiverRole.String(),
	})

	return message, nil
}

// CreateChat returns the chat for the requested triple, creating it when
// needed. The caller must be the rider or the driver of the triple.
func (s *chatService) CreateChat(ctx context.Context, caller *models.Identity, request *models.CreateChatRequest) (*models.Chat, bool, error) {
	riderID, err := primitive.ObjectIDFromHex(request.RiderID)
	if err != nil {
		return nil, false, fmt.Errorf("invalid rider_id: %w", err)
	}
	driverID, err := primitive.ObjectIDFromHex(request.DriverID)
	if err != nil {
		return nil, false, fmt.Errorf("invalid driver_id: %w", err)
	}
	rideID, err := primitive.ObjectIDFromHex(request.RideID)
	if err != nil {
		return nil, false, fmt.Errorf("invalid ride_id: %w", err)
	}

	if riderID == driverID {
		return nil, false, utils.ErrRoleMismatch
	}

	pending := &models.ChatHeader{RiderID: riderID, DriverID: driverID}
	if role, ok := pending.RoleOf(caller.UserID); !ok || role != caller.Role {
		return nil, false, utils.ErrNotParticipant
	}

	chat, created, err := s.chatRepo.FindOrCreateChat(ctx, riderID, driverID, rideID)
	if err != nil {
		return nil, false, err
	}

	if created {
		s.logger.LogChatEvent(chat.ID, utils.EventChatCreated, map[string]interface{}{
			"ride_id":    rideID.Hex(),
			"created_by": caller.UserID.Hex(),
		})
	}

	return chat, created, nil
}

func (s *chatService) GetChat(ctx context.Context, caller *models.Identity, chatID primitive.ObjectID) (*models.Chat, error) {
	chat, err := s.chatRepo.GetChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if err := checkMember(chat.Header(), caller); err != nil {
		return nil, err
	}

	return chat, nil
}

func (s *chatService) GetRiderChats(ctx context.Context, riderID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error) {
	return s.chatRepo.GetChatsByRider(ctx, riderID, params)
}

func (s *chatService) GetDriverChats(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error) {
	return s.chatRepo.GetChatsByDriver(ctx, driverID, params)
}

// MarkMessagesAsRead flags the caller's unread incoming messages. Only the
// receiver of a message can ever mark it read.
func (s *chatService) MarkMessagesAsRead(ctx context.Context, caller *models.Identity, chatID primitive.ObjectID) (int64, error) {
	header, err := s.chatRepo.GetChatHeader(ctx, chatID)
	if err != nil {
		return 0, err
	}

	if err := checkMember(header, caller); err != nil {
		return 0, err
	}

	modified, err := s.chatRepo.MarkMessagesAsRead(ctx, chatID, caller.UserID)
	if err != nil {
		return 0, err
	}

	if modified > 0 {
		s.logger.LogChatEvent(chatID, utils.EventMessagesRead, map[string]interface{}{
			"reader": caller.UserID.Hex(),
		})
	}

	return modified, nil
}

func (s *chatService) DeleteChat(ctx context.Context, caller *models.Identity, chatID primitive.ObjectID) error {
	header, err := s.chatRepo.GetChatHeader(ctx, chatID)
	if err != nil {
		return err
	}

	if err := checkMember(header, caller); err != nil {
		return err
	}

	if err := s.chatRepo.DeleteChat(ctx, chatID); err != nil {
		return err
	}

	s.logger.LogChatEvent(chatID, utils.EventChatDeleted, map[string]interface{}{
		"deleted_by": caller.UserID.Hex(),
	})

	return nil
}

// checkMember requires caller to hold its own role in the chat.
func checkMember(header *models.ChatHeader, caller *models.Identity) error {
	role, ok := header.RoleOf(caller.UserID)
	if !ok {
		return utils.ErrNotParticipant
	}
	if role != caller.Role {
		return utils.ErrRoleMismatch
	}
	return nil
}

// checkPair requires sender to hold senderRole and receiver to hold the
// complementary role.
func checkPair(header *models.ChatHeader, sender primitive.ObjectID, senderRole models.Role, receiver primitive.ObjectID) error {
	if err := checkMember(header, &models.Identity{UserID: sender, Role: senderRole}); err != nil {
		return err
	}
	if header.ParticipantFor(senderRole.Complement()) != receiver {
		return utils.ErrRoleMismatch
	}
	return nil
}

// IsParticipantError reports whether err is a rejection of the caller's
// place in a chat rather than a lookup or storage failure.
func IsParticipantError(err error) bool {
	return errors.Is(err, utils.ErrNotParticipant) || errors.Is(err, utils.ErrRoleMismatch)
}
