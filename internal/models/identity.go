package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Identity is an authenticated chat participant.
type Identity struct {
	UserID primitive.ObjectID `json:"identity"`
	Role   Role               `json:"role"`
}
