// Package gormrepos maps the course tables with gorm.
package gormrepos

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/storage/database"
)

type (
	courseRecord struct {
		ID                   int64 `gorm:"primaryKey"`
		Title                string
		Description          string
		ImagePath            string
		Author               string
		AuthorID             *string
		Email                string
		Rating               float64
		FullPriceAmount      float64
		FullPriceCurrency    string
		CurrentPriceAmount   float64
		CurrentPriceCurrency string
		Status               string
		RowVersion           int64
		Lessons              []lessonRecord `gorm:"foreignKey:CourseID"`
	}

	lessonRecord struct {
		ID          int64 `gorm:"primaryKey"`
		CourseID    int64
		Title       string
		Description string
		Duration    string // hh:mm:ss
		Position    int
		RowVersion  int64
	}

	subscriptionRecord struct {
		CourseID      int64  `gorm:"primaryKey;autoIncrement:false"`
		UserID        string `gorm:"primaryKey"`
		PaymentDate   time.Time
		PaymentType   string
		PaidAmount    float64
		PaidCurrency  string
		TransactionID string
		Vote          *int
	}
)

func (courseRecord) TableName() string       { return "courses" }
func (lessonRecord) TableName() string       { return "lessons" }
func (subscriptionRecord) TableName() string { return "subscriptions" }

// DBContext exposes the course tables. Course queries exclude deleted courses.
type DBContext struct {
	db *gorm.DB
}

// NewDBContext opens gorm over an already opened connection of the given engine.
func NewDBContext(sqlDB *sql.DB, engine string) (*DBContext, error) {
	var dialector gorm.Dialector
	switch engine {
	case database.EngineSqlite:
		dialector = &sqlite.Dialector{Conn: sqlDB}
	case database.EnginePostgres:
		dialector = postgres.New(postgres.Config{Conn: sqlDB})
	default:
		return nil, fmt.Errorf("unsupported database engine %q", engine)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		NowFunc:                func() time.Time { return time.Now().UTC() },
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "opening gorm")
	}
	return &DBContext{db: db}, nil
}

func notDeleted(db *gorm.DB) *gorm.DB {
	return db.Where("courses.status <> ?", course.StatusDeleted)
}

func (dbc *DBContext) Courses(ctx context.Context) *gorm.DB {
	return dbc.db.WithContext(ctx).Model(&courseRecord{}).Scopes(notDeleted)
}

// Lessons only returns the lessons of non-deleted courses.
func (dbc *DBContext) Lessons(ctx context.Context) *gorm.DB {
	return dbc.db.WithContext(ctx).Model(&lessonRecord{}).
		Where("course_id IN (?)", dbc.Courses(ctx).Select("id"))
}

func (dbc *DBContext) Subscriptions(ctx context.Context) *gorm.DB {
	return dbc.db.WithContext(ctx).Model(&subscriptionRecord{})
}

// Transaction runs fn in a transaction, see gorm.DB.Transaction.
func (dbc *DBContext) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return dbc.db.WithContext(ctx).Transaction(fn)
}

// DB returns a session bound to ctx.
func (dbc *DBContext) DB(ctx context.Context) *gorm.DB {
	return dbc.db.WithContext(ctx)
}
