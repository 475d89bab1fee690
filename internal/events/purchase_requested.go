package events

import (
	"time"

	"github.com/google/uuid"
)

const EventTypePurchaseRequested = "GamePurchaseRequested"

// PurchaseRequested signals a user's intent to buy, awaiting external
// payment confirmation. It lives only on the queue.
type PurchaseRequested struct {
	EventType   string    `json:"eventType"`
	UserID      uuid.UUID `json:"userId"`
	GameID      uuid.UUID `json:"gameId"`
	Price       float64   `json:"price"`
	RequestedAt time.Time `json:"requestedAt"`
}
