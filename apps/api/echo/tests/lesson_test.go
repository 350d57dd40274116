package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/user"
	"github.com/trezcool/mycourse/tests"
)

func lessonPath(id int64, suffix ...string) string {
	p := fmt.Sprintf("/api/lessons/%d", id)
	if len(suffix) > 0 {
		p += suffix[0]
	}
	return p
}

func Test_lessonApi(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	student := f.createUser(t, "Student")
	stranger := f.createUser(t, "Stranger")
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusPublished)
	require.NoError(t, f.courseRepo.CreateSubscription(ctxBg, course.Subscription{
		CourseID: c.ID, UserID: student.ID, PaymentType: "Stub",
		Paid: core.NewMoney(10, "EUR"), TransactionID: "tx-1",
	}))
	authorToken, studentToken, strangerToken := f.getToken(t, teacher), f.getToken(t, student), f.getToken(t, stranger)

	var lesson course.LessonDetail
	t.Run("create", func(t *testing.T) {
		body := marchallObj(t, course.LessonCreateInput{CourseID: c.ID, Title: "Hello, world"})
		tests := []httpTest{
			{name: "anonymous", body: body, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
			{name: "subscribers cannot create", token: studentToken, body: body, wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)},
			{
				name: "required fields", token: authorToken, body: []byte(`{}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"course_id": "this field is required", "title": "this field is required"}),
			},
			{name: "created", token: authorToken, body: body, wantCode: http.StatusCreated},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.method = http.MethodPost
				tt.path = "/api/lessons"
				rec := f.serve(tt)
				checkCodeAndData(t, tt, rec)
				if rec.Code == http.StatusCreated {
					decode(t, rec, &lesson)
				}
			})
		}
		require.NotZero(t, lesson.ID)
		assert.Equal(t, c.ID, lesson.CourseID)
		assert.Equal(t, "00:00:00", lesson.Duration)
	})

	t.Run("retrieve", func(t *testing.T) {
		tests := []httpTest{
			{name: "author", token: authorToken, wantCode: http.StatusOK, wantData: marchallObj(t, lesson)},
			{name: "subscriber", token: studentToken, wantCode: http.StatusOK, wantData: marchallObj(t, lesson)},
			{name: "stranger", token: strangerToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)},
			{
				name: "unknown lesson", path: lessonPath(9999), token: authorToken, wantCode: http.StatusNotFound,
				wantData: marchallObj(t, httpErr{Error: course.ErrLessonNotFound.Error()}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if tt.path == "" {
					tt.path = lessonPath(lesson.ID)
				}
				checkCodeAndData(t, tt, f.serve(tt))
			})
		}

		rec := f.serve(httpTest{path: coursePath(c.ID)})
		require.Equal(t, http.StatusOK, rec.Code)
		var detail course.CourseDetail
		decode(t, rec, &detail)
		require.Len(t, detail.Lessons, 1)
		assert.Equal(t, lesson.ID, detail.Lessons[0].ID)
	})

	t.Run("edit", func(t *testing.T) {
		rec := f.serve(httpTest{path: lessonPath(lesson.ID, "/edit"), token: studentToken})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.serve(httpTest{path: lessonPath(lesson.ID, "/edit"), token: authorToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var in course.LessonEditInput
		decode(t, rec, &in)
		assert.Equal(t, int64(1), in.RowVersion)

		in.Description = "Our first program"
		in.Duration = "00:12:30"
		bad := in
		bad.Duration = "12 minutes"

		tests := []httpTest{
			{
				name: "invalid duration", body: marchallObj(t, bad), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"duration": "duration must be formatted as hh:mm:ss"}),
			},
			{name: "edited", body: marchallObj(t, in), wantCode: http.StatusOK},
			{
				name: "stale row version", body: marchallObj(t, in), wantCode: http.StatusConflict,
				wantData: marchallObj(t, httpErr{Error: course.ErrOptimisticConcurrency.Error()}),
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.method = http.MethodPut
				tt.path = lessonPath(lesson.ID)
				tt.token = authorToken
				checkCodeAndData(t, tt, f.serve(tt))
			})
		}

		rec = f.serve(httpTest{path: lessonPath(lesson.ID), token: studentToken})
		require.Equal(t, http.StatusOK, rec.Code)
		var got course.LessonDetail
		decode(t, rec, &got)
		assert.Equal(t, "Our first program", got.Description)
		assert.Equal(t, "00:12:30", got.Duration)
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.serve(httpTest{method: http.MethodDelete, path: lessonPath(lesson.ID), token: studentToken})
		assert.Equal(t, http.StatusForbidden, rec.Code)

		rec = f.serve(httpTest{method: http.MethodDelete, path: lessonPath(lesson.ID), token: authorToken})
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = f.serve(httpTest{path: lessonPath(lesson.ID), token: authorToken})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
