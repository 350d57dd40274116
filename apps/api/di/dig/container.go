package dig_container

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/trezcool/mycourse/apps/api/echo"
	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/authz"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/payment"
	"github.com/trezcool/mycourse/core/user"
	cachesvc "github.com/trezcool/mycourse/services/cache"
	emailsvc "github.com/trezcool/mycourse/services/email"
	imagesvc "github.com/trezcool/mycourse/services/image"
	logsvc "github.com/trezcool/mycourse/services/logger"
	"github.com/trezcool/mycourse/services/payment/paypal"
	"github.com/trezcool/mycourse/services/payment/stripe"
	"github.com/trezcool/mycourse/services/recaptcha"
	"github.com/trezcool/mycourse/services/tracing"
	"github.com/trezcool/mycourse/services/txlog"
	"github.com/trezcool/mycourse/storage/database"
	gormrepos "github.com/trezcool/mycourse/storage/database/gorm"
	sqlxrepos "github.com/trezcool/mycourse/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// ClosersParam holds the resources to release when the application stops.
	ClosersParam struct {
		dig.In
		Closers []io.Closer `group:"closers"`
	}

	cacheResult struct {
		dig.Out
		Cache  core.Cache
		Closer io.Closer `group:"closers"`
	}

	txLoggerResult struct {
		dig.Out
		Logger course.TransactionLogger
		Closer io.Closer `group:"closers"`
	}

	dbResult struct {
		dig.Out
		DB     *sqlx.DB
		Closer io.Closer `group:"closers"`
	}

	courseServiceParams struct {
		dig.In
		Conf     *core.Config
		Repo     course.Repository
		Images   course.ImagePersister
		Payments course.PaymentGateway
		TxLogger course.TransactionLogger
		MailSvc  core.EmailService
		Logger   core.Logger
		Cache    core.Cache
	}

	serverDepsParams struct {
		dig.In
		UserSvc    user.ServiceInterface
		CourseSvc  course.ServiceInterface
		LessonSvc  course.LessonServiceInterface
		Authorizer *authz.Authorizer
		Captcha    echoapi.CaptchaVerifier
		Cache      core.Cache
		Validate   *validator.Validate
		Translator ut.Translator
	}
)

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	logger := logsvc.NewRollbarLogger(zl.Named("api"), conf)
	logger.Enable(conf.RollbarToken != "" && !conf.Debug)
	return logger
}

func newDBLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) dbResult {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, conf.Database.Engine); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return dbResult{DB: db, Closer: db}
}

func newCourseRepository(conf *core.Config, db *sqlx.DB) (course.Repository, error) {
	switch conf.Persistence {
	case "gorm":
		dbc, err := gormrepos.NewDBContext(db.DB, conf.Database.Engine)
		if err != nil {
			return nil, errors.Wrap(err, "opening gorm context")
		}
		return gormrepos.NewCourseRepository(dbc), nil
	case "", "sqlx":
		return sqlxrepos.NewCourseRepository(database.NewAccessor(db)), nil
	}
	return nil, errors.Errorf("unknown persistence %q", conf.Persistence)
}

func newCache(conf *core.Config) (cacheResult, error) {
	switch conf.Cache.Engine {
	case "redis":
		rc, err := cachesvc.NewRedisCache(conf)
		if err != nil {
			return cacheResult{}, errors.Wrap(err, "connecting to redis")
		}
		return cacheResult{Cache: cachesvc.Traced(rc), Closer: rc}, nil
	case "", "memory":
		mc := cachesvc.NewMemoryCache(conf.Cache.SizeLimit)
		return cacheResult{Cache: cachesvc.Traced(mc), Closer: mc}, nil
	}
	return cacheResult{}, errors.Errorf("unknown cache engine %q", conf.Cache.Engine)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	switch conf.Email.Backend {
	case "smtp":
		return emailsvc.NewSMTPService(conf, logger)
	case "sendgrid":
		return emailsvc.NewSendgridService(conf, logger)
	}
	return emailsvc.NewConsoleService(conf, logger)
}

func newPaymentGateway(conf *core.Config) (course.PaymentGateway, error) {
	switch {
	case strings.EqualFold(conf.PaymentGateway, payment.TypeStripe):
		return stripe.NewGateway(conf), nil
	case conf.PaymentGateway == "", strings.EqualFold(conf.PaymentGateway, payment.TypePaypal):
		return paypal.NewGateway(conf), nil
	}
	return nil, errors.Errorf("unknown payment gateway %q", conf.PaymentGateway)
}

func newTransactionLogger(conf *core.Config) (txLoggerResult, error) {
	l, err := txlog.NewLocalTransactionLogger(conf)
	if err != nil {
		return txLoggerResult{}, errors.Wrap(err, "opening transactions log")
	}
	return txLoggerResult{Logger: l, Closer: l}, nil
}

func newTracingProvider(conf *core.Config) (*tracing.Provider, error) {
	return tracing.NewProvider(context.Background(), conf)
}

func newCourseService(p courseServiceParams) course.ServiceInterface {
	svc := course.NewService(p.Conf, course.Deps{
		Repo:     p.Repo,
		Images:   p.Images,
		Payments: p.Payments,
		TxLogger: p.TxLogger,
		MailSvc:  p.MailSvc,
		Logger:   p.Logger,
	})
	return course.NewCachedService(p.Conf, svc, p.Cache, p.Logger)
}

func newLessonService(conf *core.Config, repo course.Repository, cache core.Cache, logger core.Logger) course.LessonServiceInterface {
	return course.NewCachedLessonService(conf, course.NewLessonService(repo, logger), cache, logger)
}

func newAuthorizer(courses course.ServiceInterface) *authz.Authorizer {
	return authz.NewAuthorizer(courses)
}

func newServerDeps(p serverDepsParams) *echoapi.Deps {
	return &echoapi.Deps{
		UserSvc:    p.UserSvc,
		CourseSvc:  p.CourseSvc,
		LessonSvc:  p.LessonSvc,
		Authorizer: p.Authorizer,
		Captcha:    p.Captcha,
		Cache:      p.Cache,
		Validate:   p.Validate,
		Translator: p.Translator,
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newTracingProvider))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(newCourseRepository))
	must(c.Provide(newCache))
	must(c.Provide(newEmailService))
	must(c.Provide(imagesvc.NewPersister, dig.As(new(course.ImagePersister))))
	must(c.Provide(newPaymentGateway))
	must(c.Provide(newTransactionLogger))
	must(c.Provide(recaptcha.NewVerifier, dig.As(new(echoapi.CaptchaVerifier))))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(newCourseService))
	must(c.Provide(newLessonService))
	must(c.Provide(newAuthorizer))
	must(c.Provide(newServerDeps))
	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
