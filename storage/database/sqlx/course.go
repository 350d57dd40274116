package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/storage/database"
)

const courseColumns = `id, title, description, image_path, author, author_id, email, rating,
	full_price_amount, full_price_currency, current_price_amount, current_price_currency, status, row_version`

const lessonColumns = `id, course_id, title, description, duration, position, row_version`

// column names by course.QueryFilter.OrderBy
var courseOrderColumns = map[string]string{
	"title":         "title",
	"rating":        "rating",
	"current_price": "current_price_amount",
	"id":            "id",
}

type courseRepository struct {
	db *database.Accessor
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(db *database.Accessor) *courseRepository {
	return &courseRepository{db: db}
}

func courseFromRow(row database.DataRow) course.Course {
	return course.Course{
		ID:           row.Int64("id"),
		Title:        row.String("title"),
		Description:  row.String("description"),
		ImagePath:    row.String("image_path"),
		Author:       row.String("author"),
		AuthorID:     row.String("author_id"),
		Email:        row.String("email"),
		Rating:       row.Float64("rating"),
		FullPrice:    core.NewMoney(row.Float64("full_price_amount"), row.String("full_price_currency")),
		CurrentPrice: core.NewMoney(row.Float64("current_price_amount"), row.String("current_price_currency")),
		Status:       row.String("status"),
		RowVersion:   row.Int64("row_version"),
	}
}

func lessonFromRow(row database.DataRow) course.Lesson {
	duration, _ := course.ParseDuration(row.String("duration"))
	return course.Lesson{
		ID:          row.Int64("id"),
		CourseID:    row.Int64("course_id"),
		Title:       row.String("title"),
		Description: row.String("description"),
		Duration:    duration,
		Order:       row.Int("position"),
		RowVersion:  row.Int64("row_version"),
	}
}

// nullString stores empty strings as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// searchOperator is case-insensitive on both engines.
func (repo *courseRepository) searchOperator() string {
	if repo.db.IsPostgres() {
		return "ILIKE"
	}
	return "LIKE"
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter) ([]course.Course, int, error) {
	where := []string{"status <> ?"}
	args := []interface{}{course.StatusDeleted}
	if filter.PublishedOnly {
		where = append(where, "status = ?")
		args = append(args, course.StatusPublished)
	}
	if filter.AuthorID != "" {
		where = append(where, "author_id = ?")
		args = append(args, filter.AuthorID)
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("title %s ?%s", repo.searchOperator(), database.LikeEscape))
		args = append(args, database.ContainsPattern(filter.Search))
	}
	cond := strings.Join(where, " AND ")

	orderBy := "rating DESC"
	if col, ok := courseOrderColumns[strings.ToLower(filter.OrderBy)]; ok {
		orderBy = core.DBOrdering{Field: col, Ascending: filter.Ascending}.String()
	}
	if !strings.HasPrefix(orderBy, "id ") {
		orderBy += ", id"
	}

	query := fmt.Sprintf("SELECT %s FROM courses WHERE %s ORDER BY %s", courseColumns, cond, orderBy)
	pageArgs := append([]interface{}(nil), args...)
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		pageArgs = append(pageArgs, filter.Limit, filter.Offset)
	}

	ds, err := repo.db.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	table := ds.Table(0)
	courses := make([]course.Course, 0, table.Len())
	for _, row := range table.Rows {
		courses = append(courses, courseFromRow(row))
	}

	total := len(courses)
	if filter.Limit > 0 {
		cnt, err := repo.db.Scalar(ctx, "SELECT COUNT(*) FROM courses WHERE "+cond, args...)
		if err != nil {
			return nil, 0, errors.Wrap(err, "counting courses")
		}
		total = database.DataRow{"count": cnt}.Int("count")
	}
	return courses, total, nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id int64, withLessons bool) (course.Course, error) {
	query := fmt.Sprintf("SELECT %s FROM courses WHERE id = ? AND status <> ?", courseColumns)
	ds, err := repo.db.Query(ctx, query, id, course.StatusDeleted)
	if err != nil {
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	row := ds.Table(0).First()
	if row == nil {
		return course.Course{}, course.ErrNotFound
	}
	c := courseFromRow(row)

	if withLessons {
		query = fmt.Sprintf("SELECT %s FROM lessons WHERE course_id = ? ORDER BY position, id", lessonColumns)
		ds, err = repo.db.Query(ctx, query, id)
		if err != nil {
			return course.Course{}, errors.Wrap(err, "querying lessons")
		}
		lessons := ds.Table(0)
		c.Lessons = make([]course.Lesson, 0, lessons.Len())
		for _, row := range lessons.Rows {
			c.Lessons = append(c.Lessons, lessonFromRow(row))
		}
	}
	return c, nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	id, err := repo.db.Scalar(ctx, `
		INSERT INTO courses (title, description, image_path, author, author_id, email, rating,
			full_price_amount, full_price_currency, current_price_amount, current_price_currency, status, row_version)
		VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, 1)
		RETURNING id`,
		c.Title, c.Description, c.ImagePath, c.Author, nullString(c.AuthorID), c.Email,
		c.FullPrice.Amount, c.FullPrice.Currency, c.CurrentPrice.Amount, c.CurrentPrice.Currency, c.Status,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return course.Course{}, course.ErrTitleUnavailable
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	c.ID = database.DataRow{"id": id}.Int64("id")
	c.RowVersion = 1
	c.Rating = 0
	return c, nil
}

// rowVersionConflict tells a stale row version apart from a missing row, after an UPDATE matched nothing.
func (repo *courseRepository) rowVersionConflict(ctx context.Context, exists string, id interface{}, notFound error) error {
	if _, err := repo.db.Scalar(ctx, exists, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound
		}
		return errors.Wrap(err, "checking row version")
	}
	return course.ErrOptimisticConcurrency
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	affected, err := repo.db.Command(ctx, `
		UPDATE courses SET title = ?, description = ?, image_path = ?, email = ?,
			full_price_amount = ?, full_price_currency = ?, current_price_amount = ?, current_price_currency = ?,
			status = ?, row_version = row_version + 1
		WHERE id = ? AND row_version = ? AND status <> ?`,
		c.Title, c.Description, c.ImagePath, c.Email,
		c.FullPrice.Amount, c.FullPrice.Currency, c.CurrentPrice.Amount, c.CurrentPrice.Currency,
		c.Status, c.ID, c.RowVersion, course.StatusDeleted,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return course.Course{}, course.ErrTitleUnavailable
		}
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	if affected == 0 {
		return course.Course{}, repo.rowVersionConflict(ctx,
			"SELECT id FROM courses WHERE id = ? AND status <> 'deleted'", c.ID, course.ErrNotFound)
	}
	c.RowVersion++
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id int64) error {
	affected, err := repo.db.Command(ctx,
		"UPDATE courses SET status = ?, row_version = row_version + 1 WHERE id = ? AND status <> ?",
		course.StatusDeleted, id, course.StatusDeleted)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if affected == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo *courseRepository) IsTitleAvailable(ctx context.Context, title string, excludeID int64) (bool, error) {
	_, err := repo.db.Scalar(ctx,
		"SELECT id FROM courses WHERE LOWER(title) = LOWER(?) AND id <> ? AND status <> ? LIMIT 1",
		title, excludeID, course.StatusDeleted)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "checking title")
	}
	return false, nil
}

func (repo *courseRepository) GetCourseAuthorID(ctx context.Context, id int64) (string, error) {
	ds, err := repo.db.Query(ctx, "SELECT author_id FROM courses WHERE id = ? AND status <> ?", id, course.StatusDeleted)
	if err != nil {
		return "", errors.Wrap(err, "finding course author")
	}
	row := ds.Table(0).First()
	if row == nil {
		return "", course.ErrNotFound
	}
	if row.IsNull("author_id") {
		return "", nil
	}
	return row.String("author_id"), nil
}

func (repo *courseRepository) CountCoursesByAuthor(ctx context.Context, authorID string) (int, error) {
	cnt, err := repo.db.Scalar(ctx,
		"SELECT COUNT(*) FROM courses WHERE author_id = ? AND status <> ?", authorID, course.StatusDeleted)
	if err != nil {
		return 0, errors.Wrap(err, "counting author courses")
	}
	return database.DataRow{"count": cnt}.Int("count"), nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id int64) (course.Lesson, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM lessons
		WHERE id = ? AND course_id IN (SELECT id FROM courses WHERE status <> ?)`, lessonColumns)
	ds, err := repo.db.Query(ctx, query, id, course.StatusDeleted)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "finding lesson")
	}
	row := ds.Table(0).First()
	if row == nil {
		return course.Lesson{}, course.ErrLessonNotFound
	}
	return lessonFromRow(row), nil
}

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	id, err := repo.db.Scalar(ctx, `
		INSERT INTO lessons (course_id, title, description, duration, position, row_version)
		VALUES (?, ?, ?, ?, ?, 1)
		RETURNING id`,
		l.CourseID, l.Title, l.Description, course.FormatDuration(l.Duration), l.Order,
	)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	l.ID = database.DataRow{"id": id}.Int64("id")
	l.RowVersion = 1
	return l, nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	affected, err := repo.db.Command(ctx, `
		UPDATE lessons SET title = ?, description = ?, duration = ?, position = ?, row_version = row_version + 1
		WHERE id = ? AND row_version = ?`,
		l.Title, l.Description, course.FormatDuration(l.Duration), l.Order, l.ID, l.RowVersion,
	)
	if err != nil {
		return course.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if affected == 0 {
		return course.Lesson{}, repo.rowVersionConflict(ctx, "SELECT id FROM lessons WHERE id = ?", l.ID, course.ErrLessonNotFound)
	}
	l.RowVersion++
	return l, nil
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, id int64) error {
	affected, err := repo.db.Command(ctx, "DELETE FROM lessons WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	if affected == 0 {
		return course.ErrLessonNotFound
	}
	return nil
}

func (repo *courseRepository) IsSubscribed(ctx context.Context, courseID int64, userID string) (bool, error) {
	_, err := repo.db.Scalar(ctx,
		"SELECT course_id FROM subscriptions WHERE course_id = ? AND user_id = ?", courseID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "checking subscription")
	}
	return true, nil
}

func (repo *courseRepository) CreateSubscription(ctx context.Context, s course.Subscription) error {
	_, err := repo.db.Command(ctx, `
		INSERT INTO subscriptions (course_id, user_id, payment_date, payment_type, paid_amount, paid_currency, transaction_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.CourseID, s.UserID, s.PaymentDate.UTC(), s.PaymentType, s.Paid.Amount, s.Paid.Currency, s.TransactionID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return course.ErrAlreadySubscribed
		}
		return errors.Wrap(err, "inserting subscription")
	}
	return nil
}

func (repo *courseRepository) GetVote(ctx context.Context, courseID int64, userID string) (*int, error) {
	ds, err := repo.db.Query(ctx,
		"SELECT vote FROM subscriptions WHERE course_id = ? AND user_id = ?", courseID, userID)
	if err != nil {
		return nil, errors.Wrap(err, "finding vote")
	}
	row := ds.Table(0).First()
	if row == nil {
		return nil, course.ErrNotSubscribed
	}
	if row.IsNull("vote") {
		return nil, nil
	}
	vote := row.Int("vote")
	return &vote, nil
}

func (repo *courseRepository) SetVote(ctx context.Context, courseID int64, userID string, vote int) error {
	return repo.db.InTx(ctx, func(tx *database.Accessor) error {
		affected, err := tx.Command(ctx,
			"UPDATE subscriptions SET vote = ? WHERE course_id = ? AND user_id = ?", vote, courseID, userID)
		if err != nil {
			return errors.Wrap(err, "saving vote")
		}
		if affected == 0 {
			return course.ErrNotSubscribed
		}
		_, err = tx.Command(ctx, `
			UPDATE courses SET rating = COALESCE(
				(SELECT AVG(vote) FROM subscriptions WHERE course_id = ? AND vote IS NOT NULL), 0)
			WHERE id = ?`, courseID, courseID)
		return errors.Wrap(err, "updating course rating")
	})
}
