package handlers

import (
	"errors"
	"net/http"

	"ridechat/internal/middleware"
	"ridechat/internal/models"
	"ridechat/internal/services"
	"ridechat/internal/utils"
	"ridechat/internal/validators"
	"ridechat/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatHandler struct {
	chatService services.ChatService
	logger      *logger.Logger
}

func NewChatHandler(chatService services.ChatService, logger *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		logger:      logger,
	}
}

// GetRiderChats lists the authenticated rider's chats, most recent first
func (h *ChatHandler) GetRiderChats(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c, "last_message_at", "created_at")
	chats, total, err := h.chatService.GetRiderChats(c.Request.Context(), identity.UserID, params)
	if err != nil {
		h.serverError(c, err, "Failed to list rider chats")
		return
	}

	utils.PaginatedResponse(c, "Chats retrieved successfully", chats, params, total)
}

// GetDriverChats lists the authenticated driver's chats, most recent first
func (h *ChatHandler) GetDriverChats(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	params := utils.GetPaginationParams(c, "last_message_at", "created_at")
	chats, total, err := h.chatService.GetDriverChats(c.Request.Context(), identity.UserID, params)
	if err != nil {
		h.serverError(c, err, "Failed to list driver chats")
		return
	}

	utils.PaginatedResponse(c, "Chats retrieved successfully", chats, params, total)
}

// GetChat returns one chat with its full message history
func (h *ChatHandler) GetChat(c *gin.Context) {
	identity, chatID, ok := h.chatRequest(c)
	if !ok {
		return
	}

	chat, err := h.chatService.GetChat(c.Request.Context(), identity, chatID)
	if err != nil {
		h.chatError(c, err, "Failed to get chat")
		return
	}

	utils.SuccessResponse(c, "Chat retrieved successfully", chat)
}

// CreateChat returns the chat for a rider, driver and ride, creating it on
// first use
func (h *ChatHandler) CreateChat(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var request models.CreateChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request body")
		return
	}

	if err := validators.ValidateStruct(&request); err != nil {
		var validationErrors validators.ValidationErrors
		if errors.As(err, &validationErrors) {
			utils.ValidationErrorResponse(c, validationErrors.Details())
			return
		}
		utils.BadRequestResponse(c, err.Error())
		return
	}

	chat, created, err := h.chatService.CreateChat(c.Request.Context(), identity, &request)
	if err != nil {
		if errors.Is(err, utils.ErrRoleMismatch) {
			utils.BadRequestResponse(c, "Rider and driver must be different users")
			return
		}
		h.chatError(c, err, "Failed to create chat")
		return
	}

	if created {
		utils.CreatedResponse(c, "Chat created successfully", chat)
		return
	}
	utils.SuccessResponse(c, "Chat already exists", chat)
}

// MarkMessagesAsRead marks every message addressed to the caller as read
func (h *ChatHandler) MarkMessagesAsRead(c *gin.Context) {
	identity, chatID, ok := h.chatRequest(c)
	if !ok {
		return
	}

	modified, err := h.chatService.MarkMessagesAsRead(c.Request.Context(), identity, chatID)
	if err != nil {
		h.chatError(c, err, "Failed to mark messages as read")
		return
	}

	utils.SuccessResponse(c, "Messages marked as read", gin.H{"updated": modified > 0})
}

// DeleteChat removes a chat and its history
func (h *ChatHandler) DeleteChat(c *gin.Context) {
	identity, chatID, ok := h.chatRequest(c)
	if !ok {
		return
	}

	if err := h.chatService.DeleteChat(c.Request.Context(), identity, chatID); err != nil {
		h.chatError(c, err, "Failed to delete chat")
		return
	}

	utils.SuccessResponse(c, "Chat deleted successfully", nil)
}

// chatRequest reads the caller and the :chat_id parameter, writing the
// error response itself when either is missing.
func (h *ChatHandler) chatRequest(c *gin.Context) (*models.Identity, primitive.ObjectID, bool) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return nil, primitive.NilObjectID, false
	}

	chatID, err := validators.ParseObjectID(c.Param("chat_id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid chat ID")
		return nil, primitive.NilObjectID, false
	}

	return identity, chatID, true
}

func (h *ChatHandler) chatError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, utils.ErrChatNotFound):
		utils.NotFoundResponse(c, "Chat")
	case services.IsParticipantError(err):
		utils.ForbiddenResponse(c, "You are not a participant of this chat")
	default:
		h.serverError(c, err, message)
	}
}

func (h *ChatHandler) serverError(c *gin.Context, err error, message string) {
	h.logger.WithRequestID(c.GetString("request_id")).WithError(err).Error(message)
	utils.ErrorResponse(c, http.StatusInternalServerError, "CHAT_OPERATION_FAILED", message)
}
