package interfaces

import (
	"context"

	"ridechat/internal/models"
	"ridechat/internal/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatRepository interface {
	// Chat lifecycle
	FindOrCreateChat(ctx context.Context, riderID, driverID, rideID primitive.ObjectID) (*models.Chat, bool, error)
	GetChatByID(ctx context.Context, id primitive.ObjectID) (*models.Chat, error)
	GetChatHeader(ctx context.Context, id primitive.ObjectID) (*models.ChatHeader, error)
	DeleteChat(ctx context.Context, id primitive.ObjectID) error

	// Listing
	GetChatsByRider(ctx context.Context, riderID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error)
	GetChatsByDriver(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error)

	// Messages
	AppendMessage(ctx context.Context, chatID primitive.ObjectID, message *models.Message) error
	MarkMessagesAsRead(ctx context.Context, chatID, receiverID primitive.ObjectID) (int64, error)
}
