package ownership

import (
	"time"

	"github.com/google/uuid"
)

// Record is a durable proof that a user owns a game.
type Record struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	GameID      uuid.UUID
	PurchasedAt time.Time
}

// NewRecord builds a Record with a fresh id and purchase timestamp.
func NewRecord(userID, gameID uuid.UUID) *Record {
	return &Record{
		ID:          uuid.New(),
		UserID:      userID,
		GameID:      gameID,
		PurchasedAt: time.Now().UTC(),
	}
}

// OwnedGame is the flat projection of a record joined with its game.
type OwnedGame struct {
	GameID      uuid.UUID
	Title       string
	Description string
	Category    string
	PurchasedAt time.Time
}
