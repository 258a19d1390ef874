package middleware

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ridechat/internal/models"
	"ridechat/internal/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Context keys set by AuthRequired.
const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
	ContextIdentity = "identity"
)

// TokenVerifier resolves a bearer token to a chat identity.
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (*models.Identity, error)
}

// AuthRequired middleware validates the bearer token and sets user context
func AuthRequired(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.UnauthorizedResponse(c, "Authorization header required")
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			utils.UnauthorizedResponse(c, "Bearer token required")
			c.Abort()
			return
		}

		identity, err := verifier.ValidateToken(c.Request.Context(), tokenString)
		if err != nil {
			message := utils.ErrInvalidToken
			if errors.Is(err, utils.ErrInvalidRole) {
				message = "Chat access is limited to riders and drivers"
			}
			utils.UnauthorizedResponse(c, message)
			c.Abort()
			return
		}

		// Set user context
		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextUserRole, identity.Role)
		c.Set(ContextIdentity, identity)

		c.Next()
	}
}

// RoleRequired middleware ensures the authenticated user holds role
func RoleRequired(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetIdentity(c)
		if !ok {
			utils.UnauthorizedResponse(c, "User role not found")
			c.Abort()
			return
		}

		if identity.Role != role {
			utils.ForbiddenResponse(c, fmt.Sprintf("%s access required", role))
			c.Abort()
			return
		}

		c.Next()
	}
}

// DriverRequired middleware ensures user is a driver
func DriverRequired() gin.HandlerFunc {
	return RoleRequired(models.RoleDriver)
}

// RiderRequired middleware ensures user is a rider
func RiderRequired() gin.HandlerFunc {
	return RoleRequired(models.RoleRider)
}

// GetIdentity returns the identity set by AuthRequired.
func GetIdentity(c *gin.Context) (*models.Identity, bool) {
	value, exists := c.Get(ContextIdentity)
	if !exists {
		return nil, false
	}
	identity, ok := value.(*models.Identity)
	return identity, ok
}

// GetUserID returns the authenticated user's id, if any.
func GetUserID(c *gin.Context) (primitive.ObjectID, bool) {
	value, exists := c.Get(ContextUserID)
	if !exists {
		return primitive.NilObjectID, false
	}
	userID, ok := value.(primitive.ObjectID)
	return userID, ok
}
