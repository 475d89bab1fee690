package events

import "github.com/google/uuid"

// PaymentSucceeded confirms a payment and triggers the ownership grant.
// MessageID is taken from the delivery, not the body.
type PaymentSucceeded struct {
	UserID    uuid.UUID `json:"userId"`
	GameID    uuid.UUID `json:"gameId"`
	MessageID string    `json:"-"`
}
