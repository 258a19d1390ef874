package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/utils"
	"ridechat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AuthService turns bearer tokens into chat identities.
type AuthService interface {
	ValidateToken(ctx context.Context, token string) (*models.Identity, error)
	GenerateAccessToken(ctx context.Context, userID primitive.ObjectID, role models.Role) (string, error)
}

type authService struct {
	jwtSecret string
	tokenTTL  time.Duration
	logger    *logger.Logger
}

func NewAuthService(jwtSecret string, tokenTTL time.Duration, logger *logger.Logger) AuthService {
	return &authService{
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
		logger:    logger,
	}
}

// ValidateToken verifies the signature and expiry of token and maps its
// user_type claim onto a chat role. Tokens for any other role (admins,
// support staff) are rejected with utils.ErrInvalidRole.
func (s *authService) ValidateToken(ctx context.Context, token string) (*models.Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, utils.ErrMissingToken
	}

	claims, err := utils.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	role, ok := models.ParseRole(claims.UserType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", utils.ErrInvalidRole, claims.UserType)
	}

	return &models.Identity{
		UserID: claims.UserID,
		Role:   role,
	}, nil
}

func (s *authService) GenerateAccessToken(ctx context.Context, userID primitive.ObjectID, role models.Role) (string, error) {
	if !role.IsValid() {
		return "", utils.ErrInvalidRole
	}

	token, err := utils.GenerateAccessToken(userID, role.String(), s.jwtSecret, s.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
