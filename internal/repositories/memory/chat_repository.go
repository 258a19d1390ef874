// Package memory is an in-process ChatRepository for tests and local runs
// without MongoDB.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type chatRepository struct {
	mu    sync.RWMutex
	chats map[primitive.ObjectID]*models.Chat
}

func NewChatRepository() interfaces.ChatRepository {
	return &chatRepository{
		chats: make(map[primitive.ObjectID]*models.Chat),
	}
}

func (r *chatRepository) FindOrCreateChat(ctx context.Context, riderID, driverID, rideID primitive.ObjectID) (*models.Chat, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, chat := range r.chats {
		if chat.RiderID == riderID && chat.DriverID == driverID && chat.RideID == rideID {
			return copyChat(chat), false, nil
		}
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	chat := &models.Chat{
		ID:            primitive.NewObjectID(),
		RiderID:       riderID,
		DriverID:      driverID,
		RideID:        rideID,
		Messages:      []models.Message{},
		LastMessageAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.chats[chat.ID] = chat

	return copyChat(chat), true, nil
}

func (r *chatRepository) GetChatByID(ctx context.Context, id primitive.ObjectID) (*models.Chat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, ok := r.chats[id]
	if !ok {
		return nil, utils.ErrChatNotFound
	}
	return copyChat(chat), nil
}

func (r *chatRepository) GetChatHeader(ctx context.Context, id primitive.ObjectID) (*models.ChatHeader, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chat, ok := r.chats[id]
	if !ok {
		return nil, utils.ErrChatNotFound
	}
	return chat.Header(), nil
}

func (r *chatRepository) DeleteChat(ctx context.Context, id primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.chats[id]; !ok {
		return utils.ErrChatNotFound
	}
	delete(r.chats, id)
	return nil
}

func (r *chatRepository) GetChatsByRider(ctx context.Context, riderID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error) {
	return r.page(func(c *models.Chat) bool { return c.RiderID == riderID }, params)
}

func (r *chatRepository) GetChatsByDriver(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error) {
	return r.page(func(c *models.Chat) bool { return c.DriverID == driverID }, params)
}

func (r *chatRepository) AppendMessage(ctx context.Context, chatID primitive.ObjectID, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return utils.ErrChatNotFound
	}
	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	chat.Messages = append(chat.Messages, *message)
	chat.LastMessageAt = message.CreatedAt
	chat.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *chatRepository) MarkMessagesAsRead(ctx context.Context, chatID, receiverID primitive.ObjectID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	chat, ok := r.chats[chatID]
	if !ok {
		return 0, utils.ErrChatNotFound
	}

	var modified int64
	for i := range chat.Messages {
		if chat.Messages[i].Receiver == receiverID && !chat.Messages[i].Read {
			chat.Messages[i].Read = true
			modified = 1
		}
	}
	if modified > 0 {
		chat.UpdatedAt = time.Now().UTC()
	}
	return modified, nil
}

// page mirrors the MongoDB listing: newest first by the requested sort
// field, then skip and limit.
func (r *chatRepository) page(keep func(*models.Chat) bool, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error) {
	r.mu.RLock()
	headers := make([]*models.ChatHeader, 0)
	for _, chat := range r.chats {
		if keep(chat) {
			headers = append(headers, chat.Header())
		}
	}
	r.mu.RUnlock()

	sortKey := func(h *models.ChatHeader) time.Time {
		if params.Sort == "created_at" {
			return h.CreatedAt
		}
		return h.LastMessageAt
	}
	sort.Slice(headers, func(i, j int) bool {
		if params.Order == "asc" {
			return sortKey(headers[i]).Before(sortKey(headers[j]))
		}
		return sortKey(headers[i]).After(sortKey(headers[j]))
	})

	total := int64(len(headers))
	start := params.GetSkip()
	if start > len(headers) {
		start = len(headers)
	}
	end := start + params.GetLimit()
	if end > len(headers) {
		end = len(headers)
	}

	return headers[start:end], total, nil
}

func copyChat(chat *models.Chat) *models.Chat {
	clone := *chat
	clone.Messages = append([]models.Message{}, chat.Messages...)
	return &clone
}
