// Package httpapi exposes the catalog and purchase operations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gameplatform/games-service/internal/catalog"
	"github.com/gameplatform/games-service/internal/game"
	"github.com/gameplatform/games-service/internal/ownership"
)

// CatalogService is the slice of the orchestrator the handlers call.
type CatalogService interface {
	CreateGame(ctx context.Context, in catalog.CreateGameInput) (*game.Game, error)
	GetGame(ctx context.Context, id uuid.UUID) (*game.Game, error)
	ListGames(ctx context.Context, title string, minPrice, maxPrice *float64, page, pageSize int) (catalog.GamePage, error)
	UpdateGame(ctx context.Context, in catalog.UpdateGameInput) error
	DeleteGame(ctx context.Context, id uuid.UUID) error
	RequestPurchase(ctx context.Context, userID, gameID uuid.UUID) (catalog.PurchaseTicket, error)
	UserGames(ctx context.Context, userID uuid.UUID) ([]ownership.OwnedGame, error)
	PopularGames(ctx context.Context, page, pageSize int) (catalog.GamePage, error)
	RecommendedGames(ctx context.Context, userID uuid.UUID) ([]catalog.GameView, error)
}

type Handler struct {
	svc CatalogService
}

func NewHandler(svc CatalogService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type gameRequest struct {
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
}

func (h *Handler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	g, err := h.svc.CreateGame(r.Context(), catalog.CreateGameInput{
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toGameResponse(g))
}

func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	g, err := h.svc.GetGame(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toGameResponse(g))
}

func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	minPrice, err := parsePrice(q.Get("minPrice"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid minPrice")
		return
	}
	maxPrice, err := parsePrice(q.Get("maxPrice"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid maxPrice")
		return
	}

	page, err := h.svc.ListGames(r.Context(), q.Get("title"), minPrice, maxPrice,
		parseInt(q.Get("page"), 1), parseInt(q.Get("pageSize"), 10))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) UpdateGame(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	var req gameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	err = h.svc.UpdateGame(r.Context(), catalog.UpdateGameInput{
		ID:          id,
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) DeleteGame(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid game id")
		return
	}

	if err := h.svc.DeleteGame(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type purchaseRequest struct {
	GameID uuid.UUID `json:"gameId"`
}

// Purchase accepts the request and returns a pending ticket; ownership
// arrives later through the payment pipeline.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GameID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "gameId is required")
		return
	}

	ticket, err := h.svc.RequestPurchase(r.Context(), UserID(r.Context()), req.GameID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ticket)
}

type ownedGameResponse struct {
	GameID      uuid.UUID `json:"gameId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	PurchasedAt string    `json:"purchasedAt"`
}

func (h *Handler) MyGames(w http.ResponseWriter, r *http.Request) {
	owned, err := h.svc.UserGames(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]ownedGameResponse, 0, len(owned))
	for _, og := range owned {
		out = append(out, ownedGameResponse{
			GameID:      og.GameID,
			Title:       og.Title,
			Description: og.Description,
			Category:    og.Category,
			PurchasedAt: og.PurchasedAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) PopularGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := h.svc.PopularGames(r.Context(), parseInt(q.Get("page"), 1), parseInt(q.Get("pageSize"), 10))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *Handler) RecommendedGames(w http.ResponseWriter, r *http.Request) {
	views, err := h.svc.RecommendedGames(r.Context(), UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if views == nil {
		views = []catalog.GameView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

type gameResponse struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Price       float64   `json:"price"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
}

func toGameResponse(g *game.Game) gameResponse {
	return gameResponse{
		ID:          g.ID,
		Title:       g.Title,
		Price:       g.Price,
		Description: g.Description,
		Category:    g.Category,
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrInvalidGame), errors.Is(err, catalog.ErrInvalidPaging):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrGameNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, catalog.ErrTitleTaken), errors.Is(err, catalog.ErrAlreadyOwned):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func parsePrice(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
