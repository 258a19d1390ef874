package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/repositories/interfaces"
	"ridechat/internal/services"
	"ridechat/internal/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type chatRepository struct {
	chatsCollection *mongo.Collection
	cache           services.CacheService
	cacheTTL        time.Duration
}

// NewChatRepository stores chats with their messages embedded. cache may be
// nil, in which case every header lookup goes to MongoDB.
func NewChatRepository(collection *mongo.Collection, cache services.CacheService, cacheTTL time.Duration) interfaces.ChatRepository {
	if cacheTTL <= 0 {
		cacheTTL = utils.ChatCacheTTL
	}
	return &chatRepository{
		chatsCollection: collection,
		cache:           cache,
		cacheTTL:        cacheTTL,
	}
}

var headerProjection = bson.M{"messages": 0}

// FindOrCreateChat returns the chat for the rider/driver/ride triple,
// creating it when it does not exist yet. The boolean reports creation.
func (r *chatRepository) FindOrCreateChat(ctx context.Context, riderID, driverID, rideID primitive.ObjectID) (*models.Chat, bool, error) {
	filter := bson.M{
		"rider_id":  riderID,
		"driver_id": driverID,
		"ride_id":   rideID,
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	update := bson.M{
		"$setOnInsert": bson.M{
			"rider_id":        riderID,
			"driver_id":       driverID,
			"ride_id":         rideID,
			"messages":        bson.A{},
			"last_message_at": now,
			"created_at":      now,
			"updated_at":      now,
		},
	}

	result, err := r.chatsCollection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, false, fmt.Errorf("failed to create chat: %w", err)
	}
	// A concurrent upsert for the same triple loses on the unique index and
	// falls through to the read below.
	created := err == nil && result.UpsertedCount > 0

	var chat models.Chat
	if err := r.chatsCollection.FindOne(ctx, filter).Decode(&chat); err != nil {
		return nil, false, fmt.Errorf("failed to load chat: %w", err)
	}
	if chat.Messages == nil {
		chat.Messages = []models.Message{}
	}

	r.cacheHeader(ctx, chat.Header())

	return &chat, created, nil
}

func (r *chatRepository) GetChatByID(ctx context.Context, id primitive.ObjectID) (*models.Chat, error) {
	var chat models.Chat
	err := r.chatsCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if chat.Messages == nil {
		chat.Messages = []models.Message{}
	}

	return &chat, nil
}

// GetChatHeader loads the participants of a chat without its history.
func (r *chatRepository) GetChatHeader(ctx context.Context, id primitive.ObjectID) (*models.ChatHeader, error) {
	// Try cache first
	if header := r.getHeaderFromCache(ctx, id); header != nil {
		return header, nil
	}

	var header models.ChatHeader
	opts := options.FindOne().SetProjection(headerProjection)
	err := r.chatsCollection.FindOne(ctx, bson.M{"_id": id}, opts).Decode(&header)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, utils.ErrChatNotFound
		}
		return nil, fmt.Errorf("failed to get chat header: %w", err)
	}

	r.cacheHeader(ctx, &header)

	return &header, nil
}

func (r *chatRepository) DeleteChat(ctx context.Context, id primitive.ObjectID) error {
	result, err := r.chatsCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}

	r.invalidateHeaderCache(ctx, id)

	if result.DeletedCount == 0 {
		return utils.ErrChatNotFound
	}
	return nil
}

func (r *chatRepository) GetChatsByRider(ctx context.Context, riderID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error) {
	return r.findHeadersWithFilter(ctx, bson.M{"rider_id": riderID}, params)
}

func (r *chatRepository) GetChatsByDriver(ctx context.Context, driverID primitive.ObjectID, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error) {
	return r.findHeadersWithFilter(ctx, bson.M{"driver_id": driverID}, params)
}

// AppendMessage pushes message onto the chat history in a single update so
// concurrent senders never overwrite each other.
func (r *chatRepository) AppendMessage(ctx context.Context, chatID primitive.ObjectID, message *models.Message) error {
	if message.ID.IsZero() {
		message.ID = primitive.NewObjectID()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	result, err := r.chatsCollection.UpdateOne(
		ctx,
		bson.M{"_id": chatID},
		bson.M{
			"$push": bson.M{"messages": message},
			"$set": bson.M{
				"last_message_at": message.CreatedAt,
				"updated_at":      time.Now().UTC(),
			},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	if result.MatchedCount == 0 {
		return utils.ErrChatNotFound
	}

	// Cached headers only back participant checks, so a stale
	// last_message_at there is harmless.
	return nil
}

// MarkMessagesAsRead flags every unread message addressed to receiverID.
// It returns the number of chats modified (0 or 1).
func (r *chatRepository) MarkMessagesAsRead(ctx context.Context, chatID, receiverID primitive.ObjectID) (int64, error) {
	opts := options.Update().SetArrayFilters(options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"m.receiver": receiverID, "m.read": false},
		},
	})

	result, err := r.chatsCollection.UpdateOne(
		ctx,
		bson.M{"_id": chatID},
		bson.M{
			"$set": bson.M{
				"messages.$[m].read": true,
				"updated_at":         time.Now().UTC(),
			},
		},
		opts,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages as read: %w", err)
	}
	if result.MatchedCount == 0 {
		return 0, utils.ErrChatNotFound
	}

	return result.ModifiedCount, nil
}

func (r *chatRepository) findHeadersWithFilter(ctx context.Context, filter bson.M, params *utils.PaginationParams) ([]*models.ChatHeader, int64, error) {
	// Get total count
	total, err := r.chatsCollection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count chats: %w", err)
	}

	opts := params.GetSortOptions()
	opts.SetProjection(headerProjection)

	cursor, err := r.chatsCollection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find chats: %w", err)
	}
	defer cursor.Close(ctx)

	headers := make([]*models.ChatHeader, 0)
	for cursor.Next(ctx) {
		var header models.ChatHeader
		if err := cursor.Decode(&header); err != nil {
			return nil, 0, fmt.Errorf("failed to decode chat: %w", err)
		}
		headers = append(headers, &header)
	}
	if err := cursor.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate chats: %w", err)
	}

	return headers, total, nil
}

// Cache operations. Failures are ignored: MongoDB stays authoritative.
func (r *chatRepository) cacheHeader(ctx context.Context, header *models.ChatHeader) {
	if r.cache != nil {
		r.cache.Set(ctx, chatCacheKey(header.ID), header, r.cacheTTL)
	}
}

func (r *chatRepository) getHeaderFromCache(ctx context.Context, chatID primitive.ObjectID) *models.ChatHeader {
	if r.cache == nil {
		return nil
	}

	var header models.ChatHeader
	if err := r.cache.Get(ctx, chatCacheKey(chatID), &header); err != nil {
		return nil
	}

	return &header
}

func (r *chatRepository) invalidateHeaderCache(ctx context.Context, chatID primitive.ObjectID) {
	if r.cache != nil {
		r.cache.Delete(ctx, chatCacheKey(chatID))
	}
}

func chatCacheKey(chatID primitive.ObjectID) string {
	return utils.CacheChatPrefix + chatID.Hex()
}
