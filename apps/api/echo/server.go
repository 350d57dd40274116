package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/mycourse/core"
	"github.com/trezcool/mycourse/core/authz"
	"github.com/trezcool/mycourse/core/course"
	"github.com/trezcool/mycourse/core/user"
)

type (
	// CaptchaVerifier rejects registrations made by bots.
	CaptchaVerifier interface {
		Verify(ctx context.Context, token, remoteIP string) error
	}

	Deps struct {
		UserSvc    user.ServiceInterface
		CourseSvc  course.ServiceInterface
		LessonSvc  course.LessonServiceInterface
		Authorizer *authz.Authorizer
		Captcha    CaptchaVerifier
		Cache      core.Cache
		Validate   *validator.Validate
		Translator ut.Translator
	}

	Server struct {
		conf     *core.Config
		logger   core.Logger
		deps     *Deps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(conf *core.Config, logger core.Logger, deps *Deps) *Server {
	s := &Server{
		conf:     conf,
		logger:   logger,
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	s.app.HideBanner = true
	s.app.Server.ReadTimeout = s.conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = s.conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.conf.Debug || s.conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(securityHeaders(s.conf.Debug))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.logger, s.deps.Translator)
	s.app.Debug = s.conf.Debug

	s.app.Static("/courses", filepath.Join(s.conf.Images.Root, "courses"))

	home := &homeApi{svc: s.deps.CourseSvc}
	s.app.GET("/", home.home, responseCache(s.deps.Cache, s.conf.HomeCache, s.logger))

	g := s.app.Group("/api")
	jwt := middleware.JWTWithConfig(jwtConfig(s.conf))
	optJWT := optionalJWT(s.conf)
	adminOnly := requirePolicy(s.deps.Authorizer, authz.RolePolicy(user.RoleAdministrator), noResource)
	listCache := responseCache(s.deps.Cache, core.ResponseCacheProfile{
		Duration:        s.conf.HomeCache.Duration,
		VaryByQueryKeys: listVaryByQueryKeys,
	}, s.logger)

	registerUserAPI(g, jwt, &userApi{
		conf:       s.conf,
		svc:        s.deps.UserSvc,
		captcha:    s.deps.Captcha,
		validate:   s.deps.Validate,
		translator: s.deps.Translator,
		logger:     s.logger,
	})
	registerAdminAPI(g, jwt, adminOnly, &adminApi{svc: s.deps.UserSvc, validate: s.deps.Validate})
	registerCourseAPI(g, jwt, optJWT, listCache, &courseApi{
		conf:     s.conf,
		svc:      s.deps.CourseSvc,
		az:       s.deps.Authorizer,
		validate: s.deps.Validate,
	})
	registerLessonAPI(g, jwt, &lessonApi{svc: s.deps.LessonSvc, az: s.deps.Authorizer, validate: s.deps.Validate})
}

// Start blocks until the server stops. Failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
