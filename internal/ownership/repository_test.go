package ownership

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestInsertCreatesRow(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	rec := NewRecord(uuid.New(), uuid.New())
	mock.ExpectExec(`INSERT INTO user_games`).
		WithArgs(rec.ID, rec.UserID, rec.GameID, rec.PurchasedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := repo.Insert(context.Background(), rec)
	require.NoError(t, err)
	assert.True(t, inserted)
}

func TestInsertConflictIsNoOp(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	rec := NewRecord(uuid.New(), uuid.New())
	mock.ExpectExec(`INSERT INTO user_games`).
		WithArgs(rec.ID, rec.UserID, rec.GameID, rec.PurchasedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := repo.Insert(context.Background(), rec)
	require.NoError(t, err)
	assert.False(t, inserted)
}

func TestExists(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	userID, gameID := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM user_games WHERE user_id=\$1 AND game_id=\$2\)`).
		WithArgs(userID, gameID).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.Exists(context.Background(), userID, gameID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListForUser(t *testing.T) {
	mock := newMock(t)
	repo := NewPostgresRepository(mock)

	userID := uuid.New()
	gameID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT ug.game_id, g.title, g.description, g.category, ug.purchased_at`).
		WithArgs(userID).
		WillReturnRows(pgxmock.NewRows([]string{"game_id", "title", "description", "category", "purchased_at"}).
			AddRow(gameID, "Chrono", "rpg classic", "RPG", now))

	owned, err := repo.ListForUser(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, gameID, owned[0].GameID)
	assert.Equal(t, "Chrono", owned[0].Title)
}
