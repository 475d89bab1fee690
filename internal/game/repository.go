// Package game persists catalog records in Postgres.
package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var ErrNotFound = errors.New("game not found")

// DBPool is the subset of *pgxpool.Pool the repository relies on, kept as an
// interface so pgxmock can stand in for the real pool.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	TitleExists(ctx context.Context, title string) (bool, error)
	TitleTakenByOther(ctx context.Context, title string, id uuid.UUID) (bool, error)
	Insert(ctx context.Context, g *Game) error
	GetByID(ctx context.Context, id uuid.UUID) (*Game, error)
	List(ctx context.Context, f Filter) ([]Game, int64, error)
	Update(ctx context.Context, g *Game) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) TitleExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM games WHERE title=$1)`, title,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select title exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) TitleTakenByOther(ctx context.Context, title string, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM games WHERE lower(title)=lower($1) AND id <> $2)`, title, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select title taken: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, g *Game) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO games (id, title, price, description, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.Title, g.Price, g.Description, g.Category, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Game, error) {
	var g Game
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, price, description, category, created_at, updated_at
		FROM games WHERE id=$1
	`, id)
	if err := row.Scan(&g.ID, &g.Title, &g.Price, &g.Description, &g.Category, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select game: %w", err)
	}
	return &g, nil
}

// List returns a filtered page of games plus the total match count.
func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]Game, int64, error) {
	where := make([]string, 0, 3)
	args := make([]any, 0, 5)

	if f.Title != "" {
		args = append(args, "%"+f.Title+"%")
		where = append(where, fmt.Sprintf("title ILIKE $%d", len(args)))
	}
	if f.MinPrice != nil {
		args = append(args, *f.MinPrice)
		where = append(where, fmt.Sprintf("price >= $%d", len(args)))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		where = append(where, fmt.Sprintf("price <= $%d", len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM games`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count games: %w", err)
	}

	args = append(args, f.PageSize)
	limitArg := len(args)
	args = append(args, f.Offset())
	offsetArg := len(args)

	rows, err := r.pool.Query(ctx, fmt.Sprintf(`
		SELECT id, title, price, description, category, created_at, updated_at
		FROM games%s
		ORDER BY title
		LIMIT $%d OFFSET $%d
	`, clause, limitArg, offsetArg), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		var g Game
		if err := rows.Scan(&g.ID, &g.Title, &g.Price, &g.Description, &g.Category, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate games: %w", err)
	}

	return games, total, nil
}

func (r *PostgresRepository) Update(ctx context.Context, g *Game) error {
	g.UpdatedAt = time.Now().UTC()
	tag, err := r.pool.Exec(ctx, `
		UPDATE games
		SET title=$2, price=$3, description=$4, category=$5, updated_at=$6
		WHERE id=$1
	`, g.ID, g.Title, g.Price, g.Description, g.Category, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM games WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete game: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
