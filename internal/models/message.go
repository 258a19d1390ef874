package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Message struct {
	ID           primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Sender       primitive.ObjectID `json:"sender" bson:"sender"`
	SenderRole   Role               `json:"sender_role" bson:"sender_role"`
	Receiver     primitive.ObjectID `json:"receiver" bson:"receiver"`
	ReceiverRole Role               `json:"receiver_role" bson:"receiver_role"`
	Content      string             `json:"content" bson:"content"`
	Read         bool               `json:"read" bson:"read"`
	CreatedAt    time.Time          `json:"created_at" bson:"created_at"`
}

// SendMessageInput carries one chat message from an authenticated sender.
// The receiver role is always derived from the sender role.
type SendMessageInput struct {
	ChatID     primitive.ObjectID
	SenderID   primitive.ObjectID
	SenderRole Role
	ReceiverID primitive.ObjectID
	Content    string
}
