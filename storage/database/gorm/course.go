package gormrepos

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/storage/database"
)

var courseOrderColumns = map[string]string{
	"title":         "title",
	"rating":        "rating",
	"current_price": "current_price_amount",
	"id":            "id",
}

type courseRepository struct {
	dbc *DBContext
}

var _ course.Repository = (*courseRepository)(nil) // interface compliance check

func NewCourseRepository(dbc *DBContext) *courseRepository {
	return &courseRepository{dbc: dbc}
}

func (rec courseRecord) toCourse() course.Course {
	c := course.Course{
		ID:           rec.ID,
		Title:        rec.Title,
		Description:  rec.Description,
		ImagePath:    rec.ImagePath,
		Author:       rec.Author,
		Email:        rec.Email,
		Rating:       rec.Rating,
		FullPrice:    core.NewMoney(rec.FullPriceAmount, rec.FullPriceCurrency),
		CurrentPrice: core.NewMoney(rec.CurrentPriceAmount, rec.CurrentPriceCurrency),
		Status:       rec.Status,
		RowVersion:   rec.RowVersion,
	}
	if rec.AuthorID != nil {
		c.AuthorID = *rec.AuthorID
	}
	if rec.Lessons != nil {
		c.Lessons = make([]course.Lesson, 0, len(rec.Lessons))
		for _, l := range rec.Lessons {
			c.Lessons = append(c.Lessons, l.toLesson())
		}
	}
	return c
}

func (rec lessonRecord) toLesson() course.Lesson {
	duration, _ := course.ParseDuration(rec.Duration)
	return course.Lesson{
		ID:          rec.ID,
		CourseID:    rec.CourseID,
		Title:       rec.Title,
		Description: rec.Description,
		Duration:    duration,
		Order:       rec.Position,
		RowVersion:  rec.RowVersion,
	}
}

func (repo *courseRepository) QueryCourses(ctx context.Context, filter course.QueryFilter) ([]course.Course, int, error) {
	query := repo.dbc.Courses(ctx)
	if filter.PublishedOnly {
		query = query.Where("status = ?", course.StatusPublished)
	}
	if filter.AuthorID != "" {
		query = query.Where("author_id = ?", filter.AuthorID)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(title) LIKE ?"+database.LikeEscape, database.ContainsPattern(strings.ToLower(filter.Search)))
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	col, ok := courseOrderColumns[strings.ToLower(filter.OrderBy)]
	if !ok {
		col, filter.Ascending = "rating", false
	}
	query = query.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: !filter.Ascending})
	if col != "id" {
		query = query.Order("id")
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	var recs []courseRecord
	if err := query.Find(&recs).Error; err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	courses := make([]course.Course, 0, len(recs))
	for _, rec := range recs {
		courses = append(courses, rec.toCourse())
	}
	return courses, int(total), nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, id int64, withLessons bool) (course.Course, error) {
	query := repo.dbc.Courses(ctx)
	if withLessons {
		query = query.Preload("Lessons", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") })
	}

	var rec courseRecord
	if err := query.Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "finding course")
	}
	c := rec.toCourse()
	if withLessons && c.Lessons == nil {
		c.Lessons = []course.Lesson{}
	}
	return c, nil
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	rec := courseRecord{
		Title:                c.Title,
		Description:          c.Description,
		ImagePath:            c.ImagePath,
		Author:               c.Author,
		Email:                c.Email,
		FullPriceAmount:      c.FullPrice.Amount,
		FullPriceCurrency:    c.FullPrice.Currency,
		CurrentPriceAmount:   c.CurrentPrice.Amount,
		CurrentPriceCurrency: c.CurrentPrice.Currency,
		Status:               c.Status,
		RowVersion:           1,
	}
	if c.AuthorID != "" {
		rec.AuthorID = &c.AuthorID
	}
	if err := repo.dbc.DB(ctx).Create(&rec).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return course.Course{}, course.ErrTitleUnavailable
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return rec.toCourse(), nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	res := repo.dbc.Courses(ctx).
		Where("id = ? AND row_version = ?", c.ID, c.RowVersion).
		Updates(map[string]interface{}{
			"title":                  c.Title,
			"description":            c.Description,
			"image_path":             c.ImagePath,
			"email":                  c.Email,
			"full_price_amount":      c.FullPrice.Amount,
			"full_price_currency":    c.FullPrice.Currency,
			"current_price_amount":   c.CurrentPrice.Amount,
			"current_price_currency": c.CurrentPrice.Currency,
			"status":                 c.Status,
			"row_version":            gorm.Expr("row_version + 1"),
		})
	if res.Error != nil {
		if database.IsUniqueViolation(res.Error) {
			return course.Course{}, course.ErrTitleUnavailable
		}
		return course.Course{}, errors.Wrap(res.Error, "updating course")
	}
	if res.RowsAffected == 0 {
		var cnt int64
		if err := repo.dbc.Courses(ctx).Where("id = ?", c.ID).Count(&cnt).Error; err != nil {
			return course.Course{}, errors.Wrap(err, "checking row version")
		}
		if cnt == 0 {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, course.ErrOptimisticConcurrency
	}
	c.RowVersion++
	return c, nil
}

func (repo *courseRepository) DeleteCourse(ctx context.Context, id int64) error {
	res := repo.dbc.Courses(ctx).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      course.StatusDeleted,
		"row_version": gorm.Expr("row_version + 1"),
	})
	if res.Error != nil {
		return errors.Wrap(res.Error, "deleting course")
	}
	if res.RowsAffected == 0 {
		return course.ErrNotFound
	}
	return nil
}

func (repo *courseRepository) IsTitleAvailable(ctx context.Context, title string, excludeID int64) (bool, error) {
	var cnt int64
	err := repo.dbc.Courses(ctx).
		Where("LOWER(title) = LOWER(?) AND id <> ?", title, excludeID).
		Count(&cnt).Error
	if err != nil {
		return false, errors.Wrap(err, "checking title")
	}
	return cnt == 0, nil
}

func (repo *courseRepository) GetCourseAuthorID(ctx context.Context, id int64) (string, error) {
	var rec courseRecord
	if err := repo.dbc.Courses(ctx).Select("id", "author_id").Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", course.ErrNotFound
		}
		return "", errors.Wrap(err, "finding course author")
	}
	if rec.AuthorID == nil {
		return "", nil
	}
	return *rec.AuthorID, nil
}

func (repo *courseRepository) CountCoursesByAuthor(ctx context.Context, authorID string) (int, error) {
	var cnt int64
	if err := repo.dbc.Courses(ctx).Where("author_id = ?", authorID).Count(&cnt).Error; err != nil {
		return 0, errors.Wrap(err, "counting author courses")
	}
	return int(cnt), nil
}

func (repo *courseRepository) GetLesson(ctx context.Context, id int64) (course.Lesson, error) {
	var rec lessonRecord
	if err := repo.dbc.Lessons(ctx).Where("id = ?", id).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return course.Lesson{}, course.ErrLessonNotFound
		}
		return course.Lesson{}, errors.Wrap(err, "finding lesson")
	}
	return rec.toLesson(), nil
}

func (repo *courseRepository) CreateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	rec := lessonRecord{
		CourseID:    l.CourseID,
		Title:       l.Title,
		Description: l.Description,
		Duration:    course.FormatDuration(l.Duration),
		Position:    l.Order,
		RowVersion:  1,
	}
	if err := repo.dbc.DB(ctx).Create(&rec).Error; err != nil {
		return course.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return rec.toLesson(), nil
}

func (repo *courseRepository) UpdateLesson(ctx context.Context, l course.Lesson) (course.Lesson, error) {
	res := repo.dbc.DB(ctx).Model(&lessonRecord{}).
		Where("id = ? AND row_version = ?", l.ID, l.RowVersion).
		Updates(map[string]interface{}{
			"title":       l.Title,
			"description": l.Description,
			"duration":    course.FormatDuration(l.Duration),
			"position":    l.Order,
			"row_version": gorm.Expr("row_version + 1"),
		})
	if res.Error != nil {
		return course.Lesson{}, errors.Wrap(res.Error, "updating lesson")
	}
	if res.RowsAffected == 0 {
		var cnt int64
		if err := repo.dbc.DB(ctx).Model(&lessonRecord{}).Where("id = ?", l.ID).Count(&cnt).Error; err != nil {
			return course.Lesson{}, errors.Wrap(err, "checking row version")
		}
		if cnt == 0 {
			return course.Lesson{}, course.ErrLessonNotFound
		}
		return course.Lesson{}, course.ErrOptimisticConcurrency
	}
	l.RowVersion++
	return l, nil
}

func (repo *courseRepository) DeleteLesson(ctx context.Context, id int64) error {
	res := repo.dbc.DB(ctx).Where("id = ?", id).Delete(&lessonRecord{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "deleting lesson")
	}
	if res.RowsAffected == 0 {
		return course.ErrLessonNotFound
	}
	return nil
}

func (repo *courseRepository) IsSubscribed(ctx context.Context, courseID int64, userID string) (bool, error) {
	var cnt int64
	err := repo.dbc.Subscriptions(ctx).Where("course_id = ? AND user_id = ?", courseID, userID).Count(&cnt).Error
	if err != nil {
		return false, errors.Wrap(err, "checking subscription")
	}
	return cnt > 0, nil
}

func (repo *courseRepository) CreateSubscription(ctx context.Context, s course.Subscription) error {
	rec := subscriptionRecord{
		CourseID:      s.CourseID,
		UserID:        s.UserID,
		PaymentDate:   s.PaymentDate.UTC(),
		PaymentType:   s.PaymentType,
		PaidAmount:    s.Paid.Amount,
		PaidCurrency:  s.Paid.Currency,
		TransactionID: s.TransactionID,
	}
	if err := repo.dbc.DB(ctx).Create(&rec).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return course.ErrAlreadySubscribed
		}
		return errors.Wrap(err, "inserting subscription")
	}
	return nil
}

func (repo *courseRepository) GetVote(ctx context.Context, courseID int64, userID string) (*int, error) {
	var rec subscriptionRecord
	err := repo.dbc.Subscriptions(ctx).Where("course_id = ? AND user_id = ?", courseID, userID).Take(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, course.ErrNotSubscribed
		}
		return nil, errors.Wrap(err, "finding vote")
	}
	return rec.Vote, nil
}

func (repo *courseRepository) SetVote(ctx context.Context, courseID int64, userID string, vote int) error {
	return repo.dbc.Transaction(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&subscriptionRecord{}).
			Where("course_id = ? AND user_id = ?", courseID, userID).
			Update("vote", vote)
		if res.Error != nil {
			return errors.Wrap(res.Error, "saving vote")
		}
		if res.RowsAffected == 0 {
			return course.ErrNotSubscribed
		}

		var rating float64
		err := tx.Model(&subscriptionRecord{}).
			Select("COALESCE(AVG(vote), 0)").
			Where("course_id = ? AND vote IS NOT NULL", courseID).
			Scan(&rating).Error
		if err != nil {
			return errors.Wrap(err, "computing rating")
		}
		err = tx.Model(&courseRecord{}).Where("id = ?", courseID).Update("rating", rating).Error
		return errors.Wrap(err, "updating course rating")
	})
}
