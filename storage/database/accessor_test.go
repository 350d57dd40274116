package database_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mycourse/storage/database"
	testutil "github.com/trezcool/mycourse/tests"
)

func TestAccessor(t *testing.T) {
	ctx := context.Background()
	db := database.NewAccessor(testutil.PrepareDB(t))
	assert.False(t, db.IsPostgres())

	created := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	n, err := db.Command(ctx, `
		INSERT INTO users (id, full_name, email, email_confirmed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		"u1", "Ada", "ada@test.com", true, created, created)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	t.Run("query", func(t *testing.T) {
		ds, err := db.Query(ctx, "SELECT id, full_name, email_confirmed, access_failed_count, created_at, last_login FROM users")
		require.NoError(t, err)
		table := ds.Table(0)
		assert.Equal(t, []string{"id", "full_name", "email_confirmed", "access_failed_count", "created_at", "last_login"}, table.Columns)
		require.Equal(t, 1, table.Len())

		row := table.First()
		assert.Equal(t, "u1", row.String("id"))
		assert.Equal(t, "Ada", row.String("full_name"))
		assert.True(t, row.Bool("email_confirmed"))
		assert.Equal(t, 0, row.Int("access_failed_count"))
		assert.True(t, created.Equal(row.Time("created_at")))
		assert.True(t, row.IsNull("last_login"))
		assert.True(t, row.Time("last_login").IsZero())
		assert.True(t, row.IsNull("unknown"))

		assert.Equal(t, 0, ds.Table(1).Len())
		assert.Nil(t, ds.Table(1).First())
	})

	t.Run("scalar", func(t *testing.T) {
		val, err := db.Scalar(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", "ada@test.com")
		require.NoError(t, err)
		assert.EqualValues(t, 1, val)

		_, err = db.Scalar(ctx, "SELECT id FROM users WHERE email = ?", "nobody@test.com")
		assert.True(t, errors.Is(err, sql.ErrNoRows))
	})

	t.Run("transaction rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := db.InTx(ctx, func(tx *database.Accessor) error {
			if _, err := tx.Command(ctx, "UPDATE users SET full_name = ? WHERE id = ?", "Grace", "u1"); err != nil {
				return err
			}
			return boom
		})
		assert.Equal(t, boom, err)

		val, err := db.Scalar(ctx, "SELECT full_name FROM users WHERE id = ?", "u1")
		require.NoError(t, err)
		assert.Equal(t, "Ada", val)
	})

	t.Run("unique violation", func(t *testing.T) {
		_, err := db.Command(ctx, `
			INSERT INTO users (id, full_name, email, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			"u2", "Ada", "ada@test.com", created, created)
		assert.True(t, database.IsUniqueViolation(err))
		assert.False(t, database.IsUniqueViolation(errors.New("boom")))
		assert.False(t, database.IsUniqueViolation(nil))
	})
}

func TestSqliteDSN(t *testing.T) {
	dsn := database.SqliteDSN("data/app.db")
	assert.Contains(t, dsn, "file:data/app.db?")
	assert.Contains(t, dsn, "foreign_keys%281%29")
}

func TestContainsPattern(t *testing.T) {
	tests := map[string]string{
		"go":       "%go%",
		"100%":     `%100\%%`,
		"snake_ca": `%snake\_ca%`,
		`C:\dir`:   `%C:\\dir%`,
	}
	for in, want := range tests {
		assert.Equal(t, want, database.ContainsPattern(in), in)
	}
}
