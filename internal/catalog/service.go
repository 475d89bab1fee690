// Package catalog orchestrates the game catalog and the purchase pipeline
// across the relational store, the search index, and the message queue.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gameplatform/games-service/internal/events"
	"github.com/gameplatform/games-service/internal/game"
	"github.com/gameplatform/games-service/internal/ownership"
	"github.com/gameplatform/games-service/internal/search"
)

var (
	ErrTitleTaken    = errors.New("a game with this title already exists")
	ErrGameNotFound  = errors.New("game not found")
	ErrAlreadyOwned  = errors.New("user already owns this game")
	ErrInvalidGame   = errors.New("invalid game")
	ErrInvalidPaging = errors.New("invalid page parameters")
)

// maxPrice bounds the accepted game price.
const maxPrice = 10_000

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// SearchIndex is the slice of the search index the service drives.
type SearchIndex interface {
	Add(ctx context.Context, doc search.Document) error
	Update(ctx context.Context, doc search.Document) error
	Delete(ctx context.Context, id string) error
	IncrementPopularity(ctx context.Context, id string) error
	Search(ctx context.Context, q search.Query) ([]search.Document, int64, error)
	PopularitySorted(ctx context.Context, page, pageSize int) ([]search.Document, int64, error)
	RecommendByCategories(ctx context.Context, categories []string) ([]search.Document, error)
}

// PurchasePublisher emits purchase-requested events.
type PurchasePublisher interface {
	PublishPurchaseRequested(ctx context.Context, ev events.PurchaseRequested, messageID, correlationID string) error
}

// Service is the orchestrator for catalog writes, reads, and the purchase
// pipeline. It holds its collaborators behind interfaces and is safe for
// concurrent use.
type Service struct {
	games     game.Repository
	owns      ownership.Repository
	index     SearchIndex
	publisher PurchasePublisher
	logger    *slog.Logger
}

func NewService(
	games game.Repository,
	owns ownership.Repository,
	index SearchIndex,
	publisher PurchasePublisher,
	logger *slog.Logger,
) *Service {
	return &Service{
		games:     games,
		owns:      owns,
		index:     index,
		publisher: publisher,
		logger:    logger,
	}
}

// GameView is the read shape of a catalog entry.
type GameView struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
}

// GamePage is one page of a catalog listing.
type GamePage struct {
	Items    []GameView `json:"items"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
	Total    int64      `json:"total"`
}

// CreateGameInput carries the fields of a new game.
type CreateGameInput struct {
	Title       string
	Price       float64
	Description string
	Category    string
}

// UpdateGameInput carries a full replacement of a game's fields.
type UpdateGameInput struct {
	ID          uuid.UUID
	Title       string
	Price       float64
	Description string
	Category    string
}

func validateGameFields(title string, price float64) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrInvalidGame)
	}
	if price <= 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidGame)
	}
	if price > maxPrice {
		return fmt.Errorf("%w: price must not exceed %d", ErrInvalidGame, maxPrice)
	}
	return nil
}

// CreateGame persists a new game and mirrors it into the search index with
// popularity zero.
func (s *Service) CreateGame(ctx context.Context, in CreateGameInput) (*game.Game, error) {
	if err := validateGameFields(in.Title, in.Price); err != nil {
		return nil, err
	}

	exists, err := s.games.TitleExists(ctx, in.Title)
	if err != nil {
		return nil, fmt.Errorf("check title: %w", err)
	}
	if exists {
		return nil, ErrTitleTaken
	}

	g := game.New(in.Title, in.Price, in.Description, in.Category)
	if err := s.games.Insert(ctx, g); err != nil {
		return nil, fmt.Errorf("persist game: %w", err)
	}
	s.logger.Info("game persisted", "gameId", g.ID, "title", g.Title)

	if err := s.index.Add(ctx, toDocument(g)); err != nil {
		return nil, fmt.Errorf("index game: %w", err)
	}
	s.logger.Info("game indexed", "gameId", g.ID)

	return g, nil
}

func (s *Service) GetGame(ctx context.Context, id uuid.UUID) (*game.Game, error) {
	g, err := s.games.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, fmt.Errorf("get game: %w", err)
	}
	return g, nil
}

// ListGames serves browse/search traffic from the search index.
func (s *Service) ListGames(ctx context.Context, title string, minPrice, maxPriceFilter *float64, page, pageSize int) (GamePage, error) {
	page, pageSize, err := normalizePaging(page, pageSize)
	if err != nil {
		return GamePage{}, err
	}

	docs, total, err := s.index.Search(ctx, search.Query{
		Title:    title,
		MinPrice: minPrice,
		MaxPrice: maxPriceFilter,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return GamePage{}, fmt.Errorf("search games: %w", err)
	}

	return GamePage{
		Items:    toViews(docs),
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// UpdateGame replaces a game's fields in the store and the index.
func (s *Service) UpdateGame(ctx context.Context, in UpdateGameInput) error {
	if err := validateGameFields(in.Title, in.Price); err != nil {
		return err
	}

	g, err := s.games.GetByID(ctx, in.ID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return ErrGameNotFound
		}
		return fmt.Errorf("get game: %w", err)
	}

	taken, err := s.games.TitleTakenByOther(ctx, in.Title, in.ID)
	if err != nil {
		return fmt.Errorf("check title: %w", err)
	}
	if taken {
		return ErrTitleTaken
	}

	g.Title = in.Title
	g.Price = in.Price
	g.Description = in.Description
	g.Category = in.Category

	if err := s.games.Update(ctx, g); err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	s.logger.Info("game updated", "gameId", g.ID)

	if err := s.index.Update(ctx, toDocument(g)); err != nil {
		return fmt.Errorf("update index: %w", err)
	}

	return nil
}

func (s *Service) DeleteGame(ctx context.Context, id uuid.UUID) error {
	if err := s.games.Delete(ctx, id); err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return ErrGameNotFound
		}
		return fmt.Errorf("delete game: %w", err)
	}
	s.logger.Info("game removed", "gameId", id)

	if err := s.index.Delete(ctx, id.String()); err != nil {
		return fmt.Errorf("delete from index: %w", err)
	}

	return nil
}

// PurchaseTicket acknowledges an accepted purchase request; ownership is
// granted later by the confirmation pipeline.
type PurchaseTicket struct {
	GameID uuid.UUID `json:"gameId"`
	Status string    `json:"status"`
}

const StatusPending = "pending"

// RequestPurchase validates the request and publishes a purchase-requested
// event carrying the game's current price. It never creates an ownership
// record; a publish failure propagates to the caller.
func (s *Service) RequestPurchase(ctx context.Context, userID, gameID uuid.UUID) (PurchaseTicket, error) {
	g, err := s.games.GetByID(ctx, gameID)
	if err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return PurchaseTicket{}, ErrGameNotFound
		}
		return PurchaseTicket{}, fmt.Errorf("get game: %w", err)
	}

	owned, err := s.owns.Exists(ctx, userID, gameID)
	if err != nil {
		return PurchaseTicket{}, fmt.Errorf("check ownership: %w", err)
	}
	if owned {
		return PurchaseTicket{}, ErrAlreadyOwned
	}

	ev := events.PurchaseRequested{
		EventType:   events.EventTypePurchaseRequested,
		UserID:      userID,
		GameID:      gameID,
		Price:       g.Price,
		RequestedAt: time.Now().UTC(),
	}

	messageID := uuid.NewString()
	if err := s.publisher.PublishPurchaseRequested(ctx, ev, messageID, userID.String()); err != nil {
		return PurchaseTicket{}, fmt.Errorf("publish purchase request: %w", err)
	}

	s.logger.Info("purchase requested",
		"messageId", messageID,
		"userId", userID,
		"gameId", gameID,
		"price", g.Price,
	)

	return PurchaseTicket{GameID: gameID, Status: StatusPending}, nil
}

// ConfirmPurchase materializes ownership for a confirmed payment. The insert
// is idempotent on (userId, gameId); the popularity increment only happens
// when a record was actually created, so redeliveries cannot drift the
// counter.
func (s *Service) ConfirmPurchase(ctx context.Context, ev events.PaymentSucceeded) error {
	rec := ownership.NewRecord(ev.UserID, ev.GameID)

	inserted, err := s.owns.Insert(ctx, rec)
	if err != nil {
		return fmt.Errorf("persist ownership: %w", err)
	}

	if !inserted {
		s.logger.Info("ownership already recorded, skipping popularity increment",
			"userId", ev.UserID,
			"gameId", ev.GameID,
			"messageId", ev.MessageID,
		)
		return nil
	}
	s.logger.Info("ownership recorded", "userId", ev.UserID, "gameId", ev.GameID)

	if err := s.index.IncrementPopularity(ctx, ev.GameID.String()); err != nil {
		return fmt.Errorf("increment popularity: %w", err)
	}
	s.logger.Info("popularity incremented", "gameId", ev.GameID)

	return nil
}

// UserGames lists the caller's owned games as a flat join projection.
func (s *Service) UserGames(ctx context.Context, userID uuid.UUID) ([]ownership.OwnedGame, error) {
	owned, err := s.owns.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list owned games: %w", err)
	}
	return owned, nil
}

// PopularGames lists the catalog most-purchased first.
func (s *Service) PopularGames(ctx context.Context, page, pageSize int) (GamePage, error) {
	page, pageSize, err := normalizePaging(page, pageSize)
	if err != nil {
		return GamePage{}, err
	}

	docs, total, err := s.index.PopularitySorted(ctx, page, pageSize)
	if err != nil {
		return GamePage{}, fmt.Errorf("popularity listing: %w", err)
	}

	return GamePage{
		Items:    toViews(docs),
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// RecommendedGames suggests games from the categories the user already buys,
// excluding games they own.
func (s *Service) RecommendedGames(ctx context.Context, userID uuid.UUID) ([]GameView, error) {
	owned, err := s.owns.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list owned games: %w", err)
	}

	ownedIDs := make(map[string]struct{}, len(owned))
	var categories []string
	seen := make(map[string]struct{})
	for _, og := range owned {
		ownedIDs[og.GameID.String()] = struct{}{}
		if _, ok := seen[og.Category]; !ok && og.Category != "" {
			seen[og.Category] = struct{}{}
			categories = append(categories, og.Category)
		}
	}

	docs, err := s.index.RecommendByCategories(ctx, categories)
	if err != nil {
		return nil, fmt.Errorf("recommend games: %w", err)
	}

	var views []GameView
	for _, d := range docs {
		if _, owns := ownedIDs[d.ID]; owns {
			continue
		}
		if v, ok := toView(d); ok {
			views = append(views, v)
		}
	}

	return views, nil
}

func normalizePaging(page, pageSize int) (int, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return 0, 0, fmt.Errorf("%w: page size must be between 1 and %d", ErrInvalidPaging, maxPageSize)
	}
	return page, pageSize, nil
}

func toDocument(g *game.Game) search.Document {
	return search.Document{
		ID:          g.ID.String(),
		Title:       g.Title,
		Price:       g.Price,
		Description: g.Description,
		Category:    g.Category,
		CreatedAt:   g.CreatedAt,
		Popularity:  0,
	}
}

func toViews(docs []search.Document) []GameView {
	views := make([]GameView, 0, len(docs))
	for _, d := range docs {
		if v, ok := toView(d); ok {
			views = append(views, v)
		}
	}
	return views
}

func toView(d search.Document) (GameView, bool) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return GameView{}, false
	}
	return GameView{
		ID:          id,
		Title:       d.Title,
		Price:       d.Price,
		Description: d.Description,
		Category:    d.Category,
	}, true
}
