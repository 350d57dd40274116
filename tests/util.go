package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap/zaptest"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/user"
	"github.com/trezcool/mycourse/services/logger"
	"github.com/trezcool/mycourse/storage/database"
)

// AppConfig returns the default settings in test mode.
func AppConfig() *core.Config {
	conf := core.NewConfig()
	conf.TestMode = true
	return conf
}

// Logger writes to the test log.
func Logger(t *testing.T, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zaptest.NewLogger(t), conf)
}

// PrepareDB opens a migrated sqlite database in a temp dir. It is closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := sqlx.Open(database.EngineSqlite, database.SqliteDSN(path))
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB, database.EngineSqlite); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	return db
}

// CreateUser saves an active, confirmed user.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	roles []string,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		FullName:       name,
		Email:          email,
		EmailConfirmed: true,
		IsActive:       true,
		Roles:          roles,
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateCourse saves a course of author priced 10 EUR, in the given status.
func CreateCourse(t *testing.T, repo course.Repository, title string, author user.User, status string) course.Course {
	t.Helper()
	ctx := context.Background()
	c, err := repo.CreateCourse(ctx, course.Course{
		Title:        title,
		ImagePath:    course.DefaultImagePath,
		Author:       author.FullName,
		AuthorID:     author.ID,
		Email:        author.Email,
		FullPrice:    core.NewMoney(10, "EUR"),
		CurrentPrice: core.NewMoney(10, "EUR"),
		Status:       course.StatusDraft,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	if status != course.StatusDraft {
		c.Status = status
		if c, err = repo.UpdateCourse(ctx, c); err != nil {
			t.Fatalf("CreateCourse() failed: %v", err)
		}
	}
	return c
}
