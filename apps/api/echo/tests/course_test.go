package tests

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/mycourse/apps/api/echo"
	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/payment"
	"github.com/trezcool/mycourse/core/user"
	"github.com/trezcool/mycourse/services/email"
	"github.com/trezcool/mycourse/tests"
)

var (
	errPermissionDenied = httpErr{Error: "permission denied"}
	errCourseNotFound   = httpErr{Error: course.ErrNotFound.Error()}
)

func coursePath(id int64, suffix ...string) string {
	p := fmt.Sprintf("/api/courses/%d", id)
	if len(suffix) > 0 {
		p += suffix[0]
	}
	return p
}

func Test_courseApi_create(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	busy := f.createUser(t, "Busy Teacher", user.RoleTeacher)
	for i := 0; i < 5; i++ {
		testutil.CreateCourse(t, f.courseRepo, fmt.Sprintf("Busy course number %d", i), busy, course.StatusDraft)
	}
	student := f.createUser(t, "Student")
	body := func(title string) []byte { return marchallObj(t, course.CreateInput{Title: title}) }

	tests := []httpTest{
		{name: "anonymous", body: body("Learning Go the hard way"), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "teachers only", token: f.getToken(t, student), body: body("Learning Go the hard way"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "course limit reached", token: f.getToken(t, busy), body: body("Learning Go the hard way"),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{
			name: "title too short", token: f.getToken(t, teacher), body: body("Go"),
			wantCode: http.StatusBadRequest,
		},
		{name: "created", token: f.getToken(t, teacher), body: body("  Learning Go the hard way "), wantCode: http.StatusCreated},
		{
			name: "title taken", token: f.getToken(t, teacher), body: body("LEARNING GO THE HARD WAY"),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"title": course.ErrTitleUnavailable.Error()}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPost
			tt.path = "/api/courses"
			rec := f.serve(tt)
			checkCodeAndData(t, tt, rec)
			if rec.Code != http.StatusCreated {
				return
			}

			var got course.CourseDetail
			decode(t, rec, &got)
			assert.NotZero(t, got.ID)
			assert.Equal(t, "Learning Go the hard way", got.Title)
			assert.Equal(t, "Teacher", got.Author)
			assert.Equal(t, course.DefaultImagePath, got.ImagePath)
			assert.Empty(t, got.Lessons)
		})
	}

	rec := f.serve(httpTest{path: "/api/courses/mine", token: f.getToken(t, teacher)})
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []course.CourseView
	decode(t, rec, &mine)
	require.Len(t, mine, 1)
	assert.Equal(t, "Learning Go the hard way", mine[0].Title)
}

func Test_courseApi_isTitleAvailable(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusDraft)
	token := f.getToken(t, teacher)

	tests := []httpTest{
		{name: "taken", path: "/api/courses/title-available?title=learning+go+the+hard+way", wantData: []byte(`false`)},
		{name: "own title", path: fmt.Sprintf("/api/courses/title-available?title=learning+go+the+hard+way&id=%d", c.ID), wantData: []byte(`true`)},
		{name: "free", path: "/api/courses/title-available?title=Rust+for+Gophers", wantData: []byte(`true`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.token = token
			tt.wantCode = http.StatusOK
			checkCodeAndData(t, tt, f.serve(tt))
		})
	}
}

func Test_courseApi_list(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	golang := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusPublished)
	rust := testutil.CreateCourse(t, f.courseRepo, "Rust for Gophers", teacher, course.StatusPublished)
	testutil.CreateCourse(t, f.courseRepo, "Draft: Zig internals", teacher, course.StatusDraft)

	tt := httpTest{path: "/api/courses?order_by=title&ascending=true"}
	rec := f.serve(tt)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Header().Get("Cache-Control"), "public")

	var list course.CourseList
	decode(t, rec, &list)
	assert.Equal(t, 2, list.TotalCount)
	require.Len(t, list.Courses, 2)
	assert.Equal(t, golang.ID, list.Courses[0].ID)
	assert.Equal(t, rust.ID, list.Courses[1].ID)

	cached := f.serve(tt)
	require.Equal(t, http.StatusOK, cached.Code)
	assert.Equal(t, "HIT", cached.Header().Get("X-Cache"))
	assert.Equal(t, rec.Body.String(), cached.Body.String())

	// authenticated requests bypass the response cache
	tt.token = f.getToken(t, teacher)
	rec = f.serve(tt)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))

	rec = f.serve(httpTest{path: "/api/courses?search=rust"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	list = course.CourseList{}
	decode(t, rec, &list)
	require.Len(t, list.Courses, 1)
	assert.Equal(t, rust.ID, list.Courses[0].ID)
}

func Test_courseApi_retrieve(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	student := f.createUser(t, "Student")
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusPublished)

	tests := []httpTest{
		{name: "unknown course", path: coursePath(9999), wantCode: http.StatusNotFound, wantData: marchallObj(t, errCourseNotFound)},
		{name: "malformed id", path: "/api/courses/abc", wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})},
		{name: "anonymous", path: coursePath(c.ID), wantCode: http.StatusOK, extra: [2]bool{false, false}},
		{name: "author", path: coursePath(c.ID), token: f.getToken(t, teacher), wantCode: http.StatusOK, extra: [2]bool{true, false}},
		{name: "student", path: coursePath(c.ID), token: f.getToken(t, student), wantCode: http.StatusOK, extra: [2]bool{false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.serve(tt)
			checkCodeAndData(t, tt, rec)
			want, ok := tt.extra.([2]bool)
			if !ok {
				return
			}

			var got CourseDetailResponse
			decode(t, rec, &got)
			assert.Equal(t, c.ID, got.ID)
			assert.Equal(t, "Learning Go the hard way", got.Title)
			assert.Equal(t, core.NewMoney(10, "EUR"), got.CurrentPrice)
			assert.Equal(t, want[0], got.IsAuthor)
			assert.Equal(t, want[1], got.IsSubscribed)
		})
	}
}

func Test_courseApi_edit(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	other := f.createUser(t, "Other Teacher", user.RoleTeacher)
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusDraft)
	token := f.getToken(t, teacher)

	rec := f.serve(httpTest{path: coursePath(c.ID, "/edit"), token: f.getToken(t, other)})
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied)}, rec)

	rec = f.serve(httpTest{path: coursePath(c.ID, "/edit"), token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	var in course.EditInput
	decode(t, rec, &in)
	assert.Equal(t, c.RowVersion, in.RowVersion)
	assert.Equal(t, teacher.Email, in.Email)

	in.Description = "  Channels, goroutines and a lot of patience. "
	in.CurrentPrice = core.NewMoney(19.99, "EUR")
	in.FullPrice = core.NewMoney(29.99, "EUR")
	in.Status = course.StatusPublished

	tests := []httpTest{
		{name: "not the author", token: f.getToken(t, other), body: marchallObj(t, in), wantCode: http.StatusForbidden},
		{name: "edited", token: token, body: marchallObj(t, in), wantCode: http.StatusOK},
		{
			name: "stale row version", token: token, body: marchallObj(t, in), wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: course.ErrOptimisticConcurrency.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.method = http.MethodPut
			tt.path = coursePath(c.ID)
			rec := f.serve(tt)
			checkCodeAndData(t, tt, rec)
			if tt.name != "edited" {
				return
			}

			var got course.CourseDetail
			decode(t, rec, &got)
			assert.Equal(t, "Channels, goroutines and a lot of patience.", got.Description)
			assert.Equal(t, core.NewMoney(19.99, "EUR"), got.CurrentPrice)
		})
	}

	// published now
	rec = f.serve(httpTest{path: "/api/courses"})
	require.Equal(t, http.StatusOK, rec.Code)
	var list course.CourseList
	decode(t, rec, &list)
	assert.Equal(t, 1, list.TotalCount)
}

func Test_courseApi_editWithImage(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusDraft)
	in := course.NewEditInput(c)

	newMultipart := func(t *testing.T, img []byte) (*bytes.Buffer, string) {
		var body bytes.Buffer
		w := multipart.NewWriter(&body)
		require.NoError(t, w.WriteField("data", string(marchallObj(t, in))))
		fw, err := w.CreateFormFile("image", "cover.png")
		require.NoError(t, err)
		_, err = fw.Write(img)
		require.NoError(t, err)
		require.NoError(t, w.Close())
		return &body, w.FormDataContentType()
	}

	var pic bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 40, 30))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	require.NoError(t, png.Encode(&pic, img))

	tests := []struct {
		name     string
		image    []byte
		wantCode int
	}{
		{name: "not an image", image: []byte("plain text"), wantCode: http.StatusBadRequest},
		{name: "png", image: pic.Bytes(), wantCode: http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := newMultipart(t, tc.image)
			req := httptest.NewRequest(http.MethodPut, coursePath(c.ID), body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("Authorization", "Bearer "+f.getToken(t, teacher))
			rec := httptest.NewRecorder()
			f.app.ServeHTTP(rec, req)
			require.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			if rec.Code != http.StatusOK {
				return
			}

			var got course.CourseDetail
			decode(t, rec, &got)
			assert.NotEqual(t, course.DefaultImagePath, got.ImagePath)
			assert.Contains(t, got.ImagePath, "/courses/")
		})
	}
}

func Test_courseApi_destroy(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusPublished)
	token := f.getToken(t, teacher)

	// warm up the cache
	require.Equal(t, http.StatusOK, f.serve(httpTest{path: coursePath(c.ID)}).Code)

	rec := f.serve(httpTest{method: http.MethodDelete, path: coursePath(c.ID), token: f.getToken(t, f.createUser(t, "Student"))})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.serve(httpTest{method: http.MethodDelete, path: coursePath(c.ID), token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp SuccessResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Success)

	rec = f.serve(httpTest{path: coursePath(c.ID)})
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errCourseNotFound)}, rec)

	// the title can be reused
	rec = f.serve(httpTest{
		method: http.MethodPost, path: "/api/courses", token: token,
		body: marchallObj(t, course.CreateInput{Title: "Learning Go the hard way"}),
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func Test_courseApi_subscription(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	student := f.createUser(t, "Student")
	stranger := f.createUser(t, "Stranger")
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusPublished)
	token := f.getToken(t, student)
	customID := payment.CustomID(c.ID, student.ID)

	// pay
	rec := f.serve(httpTest{path: coursePath(c.ID, "/pay"), token: token})
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, PaymentURLResponse{URL: "https://pay.test/checkout?ref=" + customID}),
	}, rec)

	rec = f.serve(httpTest{path: coursePath(9999, "/pay"), token: token})
	checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errCourseNotFound)}, rec)

	// subscribe
	tests := []httpTest{
		{
			name: "missing token", path: coursePath(c.ID, "/subscribe"), token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"token": "this field is required"}),
		},
		{
			name: "malformed token", path: coursePath(c.ID, "/subscribe?token=garbage"), token: token,
			wantCode: http.StatusBadGateway, wantData: marchallObj(t, httpErr{Error: "the payment could not be processed, try again later"}),
		},
		{
			name: "someone else's payment", path: coursePath(c.ID, "/subscribe?token="+customID), token: f.getToken(t, stranger),
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: course.ErrPaymentMismatch.Error()}),
		},
		{name: "subscribed", path: coursePath(c.ID, "/subscribe?token="+customID), token: token, wantCode: http.StatusCreated},
		{
			name: "already subscribed", path: coursePath(c.ID, "/subscribe?token="+customID), token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: course.ErrAlreadySubscribed.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.serve(tt)
			checkCodeAndData(t, tt, rec)
			if rec.Code != http.StatusCreated {
				return
			}

			var in course.SubscribeInput
			decode(t, rec, &in)
			assert.Equal(t, c.ID, in.CourseID)
			assert.Equal(t, student.ID, in.UserID)
			assert.Equal(t, "tx-"+customID, in.TransactionID)
		})
	}

	f.txLog.mu.Lock()
	require.Len(t, f.txLog.logged, 1)
	assert.Equal(t, "tx-"+customID, f.txLog.logged[0].TransactionID)
	f.txLog.mu.Unlock()

	rec = f.serve(httpTest{path: coursePath(c.ID, "/pay"), token: token})
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, httpErr{Error: course.ErrAlreadySubscribed.Error()}),
	}, rec)

	rec = f.serve(httpTest{path: coursePath(c.ID), token: token})
	require.Equal(t, http.StatusOK, rec.Code)
	var detail CourseDetailResponse
	decode(t, rec, &detail)
	assert.True(t, detail.IsSubscribed)
	assert.False(t, detail.IsAuthor)
}

func Test_courseApi_vote(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	student := f.createUser(t, "Student")
	stranger := f.createUser(t, "Stranger")
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusPublished)
	require.NoError(t, f.courseRepo.CreateSubscription(ctxBg, course.Subscription{
		CourseID: c.ID, UserID: student.ID, PaymentDate: time.Now().UTC(), PaymentType: "Stub",
		Paid: core.NewMoney(10, "EUR"), TransactionID: "tx-1",
	}))
	token := f.getToken(t, student)

	tests := []httpTest{
		{
			name: "not subscribed", token: f.getToken(t, stranger),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errPermissionDenied),
		},
		{name: "no vote yet", token: token, wantCode: http.StatusOK, wantData: []byte(`{"vote":null}`)},
		{name: "out of range", method: http.MethodPut, token: token, body: []byte(`{"vote":6}`), wantCode: http.StatusBadRequest},
		{name: "voted", method: http.MethodPut, token: token, body: []byte(`{"vote":4}`), wantCode: http.StatusOK, wantData: []byte(`{"vote":4}`)},
		{name: "vote changed", method: http.MethodPut, token: token, body: []byte(`{"vote":2}`), wantCode: http.StatusOK},
		{name: "current vote", token: token, wantCode: http.StatusOK, wantData: []byte(`{"vote":2}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.path = coursePath(c.ID, "/vote")
			checkCodeAndData(t, tt, f.serve(tt))
		})
	}
}

func Test_courseApi_sendQuestion(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	student := f.createUser(t, "Student")
	c := testutil.CreateCourse(t, f.courseRepo, "Learning Go the hard way", teacher, course.StatusPublished)
	token := f.getToken(t, student)
	question := marchallObj(t, course.QuestionInput{Question: "Is there a chapter about generics?"})

	tests := []httpTest{
		{name: "anonymous", body: question, wantCode: http.StatusUnauthorized},
		{
			name: "empty question", token: token, body: []byte(`{"question":"  "}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question": "this field is required"}),
		},
		{name: "unknown course", path: coursePath(9999, "/question"), token: token, body: question, wantCode: http.StatusNotFound},
		{
			name: "sent", token: token, body: question, wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: "Your question was sent to the course author."}),
		},
		{
			name: "mail server down", token: token, body: question, extra: true, wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: "could not send the message, try again later"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emailsvc.ClearSentMessages()
			f.mail.fail = tt.extra == true
			defer func() { f.mail.fail = false }()

			tt.method = http.MethodPost
			if tt.path == "" {
				tt.path = coursePath(c.ID, "/question")
			}
			checkCodeAndData(t, tt, f.serve(tt))

			msg, sent := emailsvc.LastSentMessage()
			if tt.name != "sent" {
				assert.False(t, sent)
				return
			}
			require.True(t, sent)
			assert.Equal(t, "course_question", msg.TemplateName)
			assert.Equal(t, teacher.Email, msg.To[0].Address)
			require.NotNil(t, msg.ReplyTo)
			assert.Equal(t, student.Email, msg.ReplyTo.Address)
		})
	}
}

func Test_home(t *testing.T) {
	f := setup(t)
	teacher := f.createUser(t, "Teacher", user.RoleTeacher)
	for _, title := range []string{"Learning Go the hard way", "Rust for Gophers", "Zig for the curious"} {
		testutil.CreateCourse(t, f.courseRepo, title, teacher, course.StatusPublished)
	}
	testutil.CreateCourse(t, f.courseRepo, "Draft: unfinished", teacher, course.StatusDraft)

	rec := f.serve(httpTest{path: "/"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))

	var home HomeResponse
	decode(t, rec, &home)
	assert.Len(t, home.BestRating, f.conf.Courses().InHome)
	require.Len(t, home.MostRecent, f.conf.Courses().InHome)
	assert.Equal(t, "Zig for the curious", home.MostRecent[0].Title)

	rec = f.serve(httpTest{path: "/"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
}
