package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridechat/internal/models"
	"ridechat/internal/utils"
	"ridechat/pkg/logger"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "test-secret"

func TestValidateTokenMapsRole(t *testing.T) {
	auth := NewAuthService(testSecret, time.Hour, logger.NewNop())
	userID := primitive.NewObjectID()

	cases := map[string]models.Role{
		"driver":   models.RoleDriver,
		"rider":    models.RoleRider,
		"user":     models.RoleRider,
		"Customer": models.RoleRider,
	}
	for claim, want := range cases {
		token, err := utils.GenerateAccessToken(userID, claim, testSecret, time.Hour)
		if err != nil {
			t.Fatalf("sign %q: %v", claim, err)
		}
		identity, err := auth.ValidateToken(context.Background(), token)
		if err != nil {
			t.Fatalf("ValidateToken(%q): %v", claim, err)
		}
		if identity.Role != want || identity.UserID != userID {
			t.Fatalf("claim %q -> %+v, want role %s", claim, identity, want)
		}
	}
}

func TestValidateTokenRejects(t *testing.T) {
	auth := NewAuthService(testSecret, time.Hour, logger.NewNop())

	if _, err := auth.ValidateToken(context.Background(), "  "); !errors.Is(err, utils.ErrMissingToken) {
		t.Fatalf("empty token err = %v", err)
	}

	admin, _ := utils.GenerateAccessToken(primitive.NewObjectID(), "admin", testSecret, time.Hour)
	if _, err := auth.ValidateToken(context.Background(), admin); !errors.Is(err, utils.ErrInvalidRole) {
		t.Fatalf("admin token err = %v", err)
	}

	forged, _ := utils.GenerateAccessToken(primitive.NewObjectID(), "rider", "other-secret", time.Hour)
	if _, err := auth.ValidateToken(context.Background(), forged); err == nil {
		t.Fatalf("token signed with another secret was accepted")
	}
}

func TestGenerateAccessTokenRoundTrip(t *testing.T) {
	auth := NewAuthService(testSecret, time.Hour, logger.NewNop())
	userID := primitive.NewObjectID()

	token, err := auth.GenerateAccessToken(context.Background(), userID, models.RoleDriver)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	identity, err := auth.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if identity.UserID != userID || identity.Role != models.RoleDriver {
		t.Fatalf("identity = %+v", identity)
	}

	if _, err := auth.GenerateAccessToken(context.Background(), userID, models.Role("admin")); !errors.Is(err, utils.ErrInvalidRole) {
		t.Fatalf("invalid role err = %v", err)
	}
}
