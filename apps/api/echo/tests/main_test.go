package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	. "github.com/trezcool/mycourse/apps/api/echo"
	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/authz"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/payment"
	"github.com/trezcool/mycourse/core/user"
	"github.com/trezcool/mycourse/services/cache"
	"github.com/trezcool/mycourse/services/email"
	"github.com/trezcool/mycourse/services/image"
	"github.com/trezcool/mycourse/services/recaptcha"
	"github.com/trezcool/mycourse/storage/database"
	"github.com/trezcool/mycourse/storage/database/sqlx"
	"github.com/trezcool/mycourse/tests"
)

const strongPwd = "Sup3r-Secret!"

var ctxBg = context.Background()

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error string `json:"error"`
}

// gatewayStub treats the payment token as the custom id of the payment.
type gatewayStub struct{}

func (gatewayStub) GetPaymentURL(_ context.Context, in course.PayInput) (string, error) {
	return "https://pay.test/checkout?ref=" + payment.CustomID(in.CourseID, in.UserID), nil
}

func (gatewayStub) CapturePayment(_ context.Context, token string) (course.SubscribeInput, error) {
	courseID, userID, err := payment.ParseCustomID(token)
	if err != nil {
		return course.SubscribeInput{}, payment.NewError("stub", "capture", err)
	}
	return course.SubscribeInput{
		CourseID:      courseID,
		UserID:        userID,
		PaymentDate:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		PaymentType:   "Stub",
		Paid:          core.NewMoney(10, "EUR"),
		TransactionID: "tx-" + token,
	}, nil
}

type txLogStub struct {
	mu     sync.Mutex
	logged []course.SubscribeInput
}

func (l *txLogStub) LogTransaction(_ context.Context, in course.SubscribeInput) error {
	l.mu.Lock()
	l.logged = append(l.logged, in)
	l.mu.Unlock()
	return nil
}

// failingMail fails the synchronous sends when fail is set.
type failingMail struct {
	core.EmailService
	fail bool
}

func (m *failingMail) Send(ctx context.Context, msg *core.EmailMessage) error {
	if m.fail {
		return core.NewSendError(errors.New("connection refused"))
	}
	return m.EmailService.Send(ctx, msg)
}

type fixture struct {
	conf       *core.Config
	app        *Server
	usrRepo    user.Repository
	courseRepo course.Repository
	mail       *failingMail
	txLog      *txLogStub
}

func setup(t *testing.T) fixture {
	t.Helper()
	conf := testutil.AppConfig()
	conf.Debug = false
	conf.Images.Root = t.TempDir()
	logger := testutil.Logger(t, conf)

	english := en.New()
	translator, _ := ut.New(english, english).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	course.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)
	emailsvc.ClearSentMessages()

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)
	courseRepo := sqlxrepos.NewCourseRepository(database.NewAccessor(db))

	// set up services
	memCache := cachesvc.NewMemoryCache(conf.Cache.SizeLimit)
	t.Cleanup(func() { _ = memCache.Close() })
	mail := &failingMail{EmailService: emailsvc.NewConsoleServiceMock(conf, logger)}
	txLog := new(txLogStub)

	usrSvc := user.NewService(conf, usrRepo, mail, logger)
	courseSvc := course.NewCachedService(conf, course.NewService(conf, course.Deps{
		Repo:     courseRepo,
		Images:   imagesvc.NewPersister(conf),
		Payments: gatewayStub{},
		TxLogger: txLog,
		MailSvc:  mail,
		Logger:   logger,
	}), memCache, logger)
	lessonSvc := course.NewCachedLessonService(conf, course.NewLessonService(courseRepo, logger), memCache, logger)

	// set up server
	app := NewServer(conf, logger, &Deps{
		UserSvc:    usrSvc,
		CourseSvc:  courseSvc,
		LessonSvc:  lessonSvc,
		Authorizer: authz.NewAuthorizer(courseSvc),
		Captcha:    recaptcha.NewVerifier(conf, logger),
		Cache:      memCache,
		Validate:   validate,
		Translator: translator,
	})

	return fixture{
		conf:       conf,
		app:        app,
		usrRepo:    usrRepo,
		courseRepo: courseRepo,
		mail:       mail,
		txLog:      txLog,
	}
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func (f fixture) serve(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	f.app.ServeHTTP(rec, req)
	return rec
}

func (f fixture) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(f.conf, NewUserClaims(f.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func (f fixture) createUser(t *testing.T, name string, roles ...string) user.User {
	email := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@mycourse.test"
	return testutil.CreateUser(t, f.usrRepo, name, email, strongPwd, roles)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	if _, ok := j2.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode(%s) failed: %v", rec.Body.String(), err)
	}
}
