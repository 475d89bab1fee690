package game

import (
	"time"

	"github.com/google/uuid"
)

// Game is the authoritative catalog record.
type Game struct {
	ID          uuid.UUID
	Title       string
	Price       float64
	Description string
	Category    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New builds a Game with a fresh id and creation timestamps.
func New(title string, price float64, description, category string) *Game {
	now := time.Now().UTC()
	return &Game{
		ID:          uuid.New(),
		Title:       title,
		Price:       price,
		Description: description,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Filter narrows a catalog listing.
type Filter struct {
	Title    string
	MinPrice *float64
	MaxPrice *float64
	Page     int
	PageSize int
}

// Offset returns the row offset for the requested page.
func (f Filter) Offset() int {
	page := f.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * f.PageSize
}
