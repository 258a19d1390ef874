package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Chat struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RiderID       primitive.ObjectID `json:"rider_id" bson:"rider_id" validate:"required"`
	DriverID      primitive.ObjectID `json:"driver_id" bson:"driver_id" validate:"required"`
	RideID        primitive.ObjectID `json:"ride_id" bson:"ride_id" validate:"required"`
	Messages      []Message          `json:"messages,omitempty" bson:"messages"`
	LastMessageAt time.Time          `json:"last_message_at" bson:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

// ChatHeader is a chat without its message history. It is what the gateway
// needs to check participants, and what gets cached.
type ChatHeader struct {
	ID            primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	RiderID       primitive.ObjectID `json:"rider_id" bson:"rider_id"`
	DriverID      primitive.ObjectID `json:"driver_id" bson:"driver_id"`
	RideID        primitive.ObjectID `json:"ride_id" bson:"ride_id"`
	LastMessageAt time.Time          `json:"last_message_at" bson:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at" bson:"updated_at"`
}

type CreateChatRequest struct {
	RiderID  string `json:"rider_id" validate:"required,object_id"`
	DriverID string `json:"driver_id" validate:"required,object_id"`
	RideID   string `json:"ride_id" validate:"required,object_id"`
}

func (c *Chat) Header() *ChatHeader {
	return &ChatHeader{
		ID:            c.ID,
		RiderID:       c.RiderID,
		DriverID:      c.DriverID,
		RideID:        c.RideID,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

// RoleOf reports which side of the chat userID is on.
func (h *ChatHeader) RoleOf(userID primitive.ObjectID) (Role, bool) {
	switch userID {
	case h.RiderID:
		return RoleRider, true
	case h.DriverID:
		return RoleDriver, true
	default:
		return "", false
	}
}

func (h *ChatHeader) IsParticipant(userID primitive.ObjectID) bool {
	_, ok := h.RoleOf(userID)
	return ok
}

// ParticipantFor returns the participant holding role.
func (h *ChatHeader) ParticipantFor(role Role) primitive.ObjectID {
	if role == RoleDriver {
		return h.DriverID
	}
	return h.RiderID
}
