package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/user"
)

// RunCourseRepositoryTests checks the behaviour every course.Repository must share.
func RunCourseRepositoryTests(t *testing.T, repo course.Repository, users user.Repository) {
	ctx := context.Background()
	author := CreateUser(t, users, "Ada Lovelace", "ada@test.com", "", []string{user.RoleTeacher})
	student := CreateUser(t, users, "Alan Turing", "alan@test.com", "", nil)

	golang := CreateCourse(t, repo, "Learning Go the hard way", author, course.StatusPublished)
	rust := CreateCourse(t, repo, "Rust for Gophers", author, course.StatusPublished)
	draft := CreateCourse(t, repo, "Draft: Zig internals", author, course.StatusDraft)
	deleted := CreateCourse(t, repo, "Forgotten course", author, course.StatusDraft)
	require.NoError(t, repo.DeleteCourse(ctx, deleted.ID))

	t.Run("create", func(t *testing.T) {
		assert.NotZero(t, golang.ID)
		assert.Equal(t, int64(2), golang.RowVersion) // created, then published

		_, err := repo.CreateCourse(ctx, course.Course{Title: "LEARNING GO THE HARD WAY", Author: "x", Status: course.StatusDraft})
		assert.Equal(t, course.ErrTitleUnavailable, err)

		// deleted titles can be reused
		_, err = repo.CreateCourse(ctx, course.Course{
			Title: "Forgotten course", Author: "x", Status: course.StatusDraft,
			FullPrice: core.NewMoney(0, "EUR"), CurrentPrice: core.NewMoney(0, "EUR"),
		})
		assert.NoError(t, err)
	})

	t.Run("query", func(t *testing.T) {
		courses, total, err := repo.QueryCourses(ctx, course.QueryFilter{PublishedOnly: true, OrderBy: "title", Ascending: true})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, courses, 2)
		assert.Equal(t, golang.ID, courses[0].ID)
		assert.Equal(t, rust.ID, courses[1].ID)

		courses, total, err = repo.QueryCourses(ctx, course.QueryFilter{PublishedOnly: true, OrderBy: "title", Limit: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		require.Len(t, courses, 1)
		assert.Equal(t, rust.ID, courses[0].ID)

		courses, _, err = repo.QueryCourses(ctx, course.QueryFilter{Search: "rust", PublishedOnly: true})
		require.NoError(t, err)
		require.Len(t, courses, 1)
		assert.Equal(t, rust.ID, courses[0].ID)

		// wildcards are matched literally
		for _, search := range []string{"%", "_", `\`, "Go%hard", "Rust_for"} {
			courses, total, err = repo.QueryCourses(ctx, course.QueryFilter{Search: search, PublishedOnly: true})
			require.NoError(t, err)
			assert.Zero(t, total, search)
			assert.Empty(t, courses, search)
		}

		courses, total, err = repo.QueryCourses(ctx, course.QueryFilter{AuthorID: author.ID, OrderBy: "title", Ascending: true})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		require.Len(t, courses, 3)
		assert.Equal(t, draft.ID, courses[0].ID)

		cnt, err := repo.CountCoursesByAuthor(ctx, author.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, cnt)
	})

	t.Run("get", func(t *testing.T) {
		c, err := repo.GetCourse(ctx, golang.ID, false)
		require.NoError(t, err)
		assert.Equal(t, "Learning Go the hard way", c.Title)
		assert.Equal(t, author.ID, c.AuthorID)
		assert.Equal(t, core.NewMoney(10, "EUR"), c.CurrentPrice)

		_, err = repo.GetCourse(ctx, deleted.ID, false)
		assert.Equal(t, course.ErrNotFound, err)
		_, err = repo.GetCourse(ctx, 9999, false)
		assert.Equal(t, course.ErrNotFound, err)

		authorID, err := repo.GetCourseAuthorID(ctx, golang.ID)
		require.NoError(t, err)
		assert.Equal(t, author.ID, authorID)
		_, err = repo.GetCourseAuthorID(ctx, deleted.ID)
		assert.Equal(t, course.ErrNotFound, err)
	})

	t.Run("title availability", func(t *testing.T) {
		ok, err := repo.IsTitleAvailable(ctx, "rust for gophers", 0)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = repo.IsTitleAvailable(ctx, "rust for gophers", rust.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.IsTitleAvailable(ctx, "Brand new title", 0)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("update with row version", func(t *testing.T) {
		c, err := repo.GetCourse(ctx, draft.ID, false)
		require.NoError(t, err)
		c.Description = "All about comptime"
		c.CurrentPrice = core.NewMoney(5.5, "EUR")

		updated, err := repo.UpdateCourse(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, c.RowVersion+1, updated.RowVersion)

		// stale version
		_, err = repo.UpdateCourse(ctx, c)
		assert.Equal(t, course.ErrOptimisticConcurrency, err)

		c.ID = 9999
		_, err = repo.UpdateCourse(ctx, c)
		assert.Equal(t, course.ErrNotFound, err)

		updated.Title = "Rust for gophers"
		_, err = repo.UpdateCourse(ctx, updated)
		assert.Equal(t, course.ErrTitleUnavailable, err)

		c, err = repo.GetCourse(ctx, draft.ID, false)
		require.NoError(t, err)
		assert.Equal(t, "All about comptime", c.Description)
		assert.Equal(t, 5.5, c.CurrentPrice.Amount)
	})

	t.Run("lessons", func(t *testing.T) {
		second, err := repo.CreateLesson(ctx, course.Lesson{CourseID: golang.ID, Title: "Goroutines", Order: 2})
		require.NoError(t, err)
		first, err := repo.CreateLesson(ctx, course.Lesson{CourseID: golang.ID, Title: "Hello, world", Order: 1, Duration: 90 * time.Second})
		require.NoError(t, err)

		c, err := repo.GetCourse(ctx, golang.ID, true)
		require.NoError(t, err)
		require.Len(t, c.Lessons, 2)
		assert.Equal(t, first.ID, c.Lessons[0].ID)
		assert.Equal(t, second.ID, c.Lessons[1].ID)
		assert.Equal(t, 90*time.Second, c.TotalDuration())

		first.Duration = time.Hour + 2*time.Minute + 3*time.Second
		first.Order = 3
		updated, err := repo.UpdateLesson(ctx, first)
		require.NoError(t, err)
		_, err = repo.UpdateLesson(ctx, first)
		assert.Equal(t, course.ErrOptimisticConcurrency, err)

		l, err := repo.GetLesson(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, updated.RowVersion, l.RowVersion)
		assert.Equal(t, "01:02:03", course.FormatDuration(l.Duration))

		c, err = repo.GetCourse(ctx, golang.ID, true)
		require.NoError(t, err)
		assert.Equal(t, second.ID, c.Lessons[0].ID)

		require.NoError(t, repo.DeleteLesson(ctx, second.ID))
		assert.Equal(t, course.ErrLessonNotFound, repo.DeleteLesson(ctx, second.ID))
		_, err = repo.GetLesson(ctx, second.ID)
		assert.Equal(t, course.ErrLessonNotFound, err)
	})

	t.Run("subscriptions and votes", func(t *testing.T) {
		ok, err := repo.IsSubscribed(ctx, rust.ID, student.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = repo.GetVote(ctx, rust.ID, student.ID)
		assert.Equal(t, course.ErrNotSubscribed, err)
		assert.Equal(t, course.ErrNotSubscribed, repo.SetVote(ctx, rust.ID, student.ID, 4))

		sub := course.Subscription{
			CourseID:      rust.ID,
			UserID:        student.ID,
			PaymentDate:   time.Now().UTC(),
			PaymentType:   "Paypal",
			Paid:          core.NewMoney(10, "EUR"),
			TransactionID: "TX-1",
		}
		require.NoError(t, repo.CreateSubscription(ctx, sub))
		assert.Equal(t, course.ErrAlreadySubscribed, repo.CreateSubscription(ctx, sub))

		ok, err = repo.IsSubscribed(ctx, rust.ID, student.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		vote, err := repo.GetVote(ctx, rust.ID, student.ID)
		require.NoError(t, err)
		assert.Nil(t, vote)

		sub.UserID = author.ID
		require.NoError(t, repo.CreateSubscription(ctx, sub))
		require.NoError(t, repo.SetVote(ctx, rust.ID, student.ID, 4))
		require.NoError(t, repo.SetVote(ctx, rust.ID, author.ID, 5))

		vote, err = repo.GetVote(ctx, rust.ID, student.ID)
		require.NoError(t, err)
		require.NotNil(t, vote)
		assert.Equal(t, 4, *vote)

		c, err := repo.GetCourse(ctx, rust.ID, false)
		require.NoError(t, err)
		assert.InDelta(t, 4.5, c.Rating, 0.001)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, course.ErrNotFound, repo.DeleteCourse(ctx, deleted.ID))
		assert.Equal(t, course.ErrNotFound, repo.DeleteCourse(ctx, 9999))
	})
}
