// Package ownership persists user-game ownership records in Postgres.
package ownership

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBPool is the slice of *pgxpool.Pool behavior this repository needs.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	// Insert stores a record. It reports whether a row was actually created;
	// false means the (user, game) pair already existed.
	Insert(ctx context.Context, rec *Record) (bool, error)
	Exists(ctx context.Context, userID, gameID uuid.UUID) (bool, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]OwnedGame, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Insert relies on the (user_id, game_id) uniqueness constraint: a redelivered
// confirmation hits the conflict branch and becomes a no-op.
func (r *PostgresRepository) Insert(ctx context.Context, rec *Record) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_games (id, user_id, game_id, purchased_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, game_id) DO NOTHING
	`, rec.ID, rec.UserID, rec.GameID, rec.PurchasedAt)
	if err != nil {
		return false, fmt.Errorf("insert ownership: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, userID, gameID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_games WHERE user_id=$1 AND game_id=$2)`,
		userID, gameID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select ownership exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]OwnedGame, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ug.game_id, g.title, g.description, g.category, ug.purchased_at
		FROM user_games ug
		JOIN games g ON g.id = ug.game_id
		WHERE ug.user_id=$1
		ORDER BY ug.purchased_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("select owned games: %w", err)
	}
	defer rows.Close()

	var owned []OwnedGame
	for rows.Next() {
		var og OwnedGame
		if err := rows.Scan(&og.GameID, &og.Title, &og.Description, &og.Category, &og.PurchasedAt); err != nil {
			return nil, fmt.Errorf("scan owned game: %w", err)
		}
		owned = append(owned, og)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owned games: %w", err)
	}

	return owned, nil
}
