package routes

import (
	handlers "ridechat/internal/handlers/shared"
	"ridechat/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupChatRoutes sets up the chat history routes. Live messaging runs over
// the WebSocket endpoint; these routes cover everything around it.
func SetupChatRoutes(r *gin.RouterGroup, chatHandler *handlers.ChatHandler, verifier middleware.TokenVerifier) {
	chats := r.Group("/chats")
	chats.Use(middleware.AuthRequired(verifier))
	{
		chats.GET("/rider", middleware.RiderRequired(), chatHandler.GetRiderChats)
		chats.GET("/driver", middleware.DriverRequired(), chatHandler.GetDriverChats)

		chats.POST("", chatHandler.CreateChat)
		chats.GET("/:chat_id", chatHandler.GetChat)
		chats.PUT("/:chat_id/read", chatHandler.MarkMessagesAsRead)
		chats.DELETE("/:chat_id", chatHandler.DeleteChat)
	}
}
