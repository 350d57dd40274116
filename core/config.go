package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // sqlite | postgres
		Path          string // sqlite only
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	CoursesOrderOptions struct {
		By        string
		Ascending bool
		Allow     []string
	}

	// CoursesOptions drive course listing and caching. They can be reloaded at runtime, see Config.Watch.
	CoursesOptions struct {
		PerPage       int
		InHome        int
		CachedPages   int
		CacheDuration time.Duration
		Order         CoursesOrderOptions
	}

	CacheConfig struct {
		Engine           string // memory | redis
		SizeLimit        int
		RedisAddr        string
		RedisPassword    string
		RedisDB          int
		RedisDialTimeout time.Duration
	}

	ResponseCacheProfile struct {
		Duration        time.Duration
		VaryByQueryKeys []string
	}

	UsersConfig struct {
		AssignAdministratorRoleOnRegistration string
		MaxFailedAccessAttempts               int
		LockoutDuration                       time.Duration
		RequireConfirmedAccount               bool
	}

	EmailConfig struct {
		Backend        string // console | smtp | sendgrid
		SendgridAPIKey string
	}

	SMTPConfig struct {
		Host     string
		Port     int
		Security string // none | starttls | tls
		Username string
		Password string
	}

	PaypalConfig struct {
		ClientID  string
		Secret    string
		Sandbox   bool
		BrandName string
	}

	StripeConfig struct {
		PublicKey  string
		PrivateKey string
	}

	RecaptchaConfig struct {
		Enabled   bool
		SiteKey   string
		SecretKey string
		VerifyURL string
	}

	ImagesConfig struct {
		Root    string
		Width   int
		Height  int
		Quality int
	}

	TracingConfig struct {
		Enabled     bool
		Endpoint    string
		SampleRatio float64
	}

	Config struct {
		Env                 string
		Build               string
		AppName             string
		Debug               bool
		TestMode            bool
		SecretKey           string
		FrontendBaseURL     string
		RollbarToken        string
		Persistence         string // sqlx | gorm
		PaymentGateway      string // paypal | stripe
		TransactionsLogPath string

		Server        ServerConfig
		Database      DatabaseConfig
		Cache         CacheConfig
		HomeCache     ResponseCacheProfile
		Users         UsersConfig
		Email         EmailConfig
		SMTP          SMTPConfig
		Paypal        PaypalConfig
		Stripe        StripeConfig
		Recaptcha     RecaptchaConfig
		Images        ImagesConfig
		Tracing       TracingConfig
		defaultFromEm string

		v       *viper.Viper
		mu      sync.RWMutex
		courses CoursesOptions
	}
)

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "MyCourse")
	v.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:8000")
	v.SetDefault("defaultFromEmail", "MyCourse <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("persistence", "sqlx")
	v.SetDefault("transactions.logPath", filepath.Join("data", "transactions.log"))

	v.SetDefault("server.host", "0.0.0.0:8000")
	v.SetDefault("server.debugHost", "0.0.0.0:4000")
	v.SetDefault("server.readTimeout", 5*time.Second)
	v.SetDefault("server.writeTimeout", 5*time.Second)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("database.engine", "sqlite")
	v.SetDefault("database.path", filepath.Join("data", "mycourse.db"))
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "mycourse")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("courses.perPage", 10)
	v.SetDefault("courses.inHome", 3)
	v.SetDefault("courses.cachedPages", 5)
	v.SetDefault("courses.cacheDuration", 60*time.Second)
	v.SetDefault("courses.order.by", "rating")
	v.SetDefault("courses.order.ascending", false)
	v.SetDefault("courses.order.allow", []string{"title", "rating", "current_price"})

	v.SetDefault("cache.engine", "memory")
	v.SetDefault("cache.sizeLimit", 1000)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.dialTimeout", 2*time.Second)

	v.SetDefault("responseCache.home.duration", 60*time.Second)
	v.SetDefault("responseCache.home.varyByQueryKeys", []string{"page"})

	v.SetDefault("users.assignAdministratorRoleOnRegistration", "")
	v.SetDefault("users.lockout.maxFailedAttempts", 5)
	v.SetDefault("users.lockout.duration", 5*time.Minute)
	v.SetDefault("users.requireConfirmedAccount", true)

	v.SetDefault("email.backend", "console")
	v.SetDefault("email.sendgridApiKey", "")
	v.SetDefault("smtp.host", "localhost")
	v.SetDefault("smtp.port", 25)
	v.SetDefault("smtp.security", "none")
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")

	v.SetDefault("payments.gateway", "paypal")
	v.SetDefault("paypal.clientId", "")
	v.SetDefault("paypal.secret", "")
	v.SetDefault("paypal.sandbox", true)
	v.SetDefault("paypal.brandName", "MyCourse")
	v.SetDefault("stripe.publicKey", "")
	v.SetDefault("stripe.privateKey", "")

	v.SetDefault("recaptcha.enabled", false)
	v.SetDefault("recaptcha.siteKey", "")
	v.SetDefault("recaptcha.secretKey", "")
	v.SetDefault("recaptcha.verifyURL", "https://www.google.com/recaptcha/api/siteverify")

	v.SetDefault("images.root", "wwwroot")
	v.SetDefault("images.width", 300)
	v.SetDefault("images.height", 300)
	v.SetDefault("images.quality", 70)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sampleRatio", 1.0)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	// optional settings file
	settingsPath := os.Getenv("CONFIG_FILE")
	if settingsPath == "" {
		settingsPath = filepath.Join("config", "settings.yaml")
	}
	if _, err := os.Stat(settingsPath); err == nil {
		v.SetConfigFile(settingsPath)
		if err := v.ReadInConfig(); err != nil {
			log.Fatalf("config.ReadInConfig(%s): %v", settingsPath, err)
		}
	}

	conf := &Config{
		Env:                 env,
		Build:               v.GetString("build"),
		AppName:             v.GetString("appName"),
		Debug:               v.GetBool("debug"),
		TestMode:            v.GetBool("testMode"),
		SecretKey:           v.GetString("secretKey"),
		FrontendBaseURL:     strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		RollbarToken:        v.GetString("rollbarToken"),
		Persistence:         v.GetString("persistence"),
		PaymentGateway:      v.GetString("payments.gateway"),
		TransactionsLogPath: v.GetString("transactions.logPath"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ReadTimeout:               v.GetDuration("server.readTimeout"),
			WriteTimeout:              v.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Path:          v.GetString("database.path"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Cache: CacheConfig{
			Engine:           v.GetString("cache.engine"),
			SizeLimit:        v.GetInt("cache.sizeLimit"),
			RedisAddr:        v.GetString("cache.redis.addr"),
			RedisPassword:    v.GetString("cache.redis.password"),
			RedisDB:          v.GetInt("cache.redis.db"),
			RedisDialTimeout: v.GetDuration("cache.redis.dialTimeout"),
		},
		HomeCache: ResponseCacheProfile{
			Duration:        v.GetDuration("responseCache.home.duration"),
			VaryByQueryKeys: v.GetStringSlice("responseCache.home.varyByQueryKeys"),
		},
		Users: UsersConfig{
			AssignAdministratorRoleOnRegistration: CleanString(v.GetString("users.assignAdministratorRoleOnRegistration"), true),
			MaxFailedAccessAttempts:               v.GetInt("users.lockout.maxFailedAttempts"),
			LockoutDuration:                       v.GetDuration("users.lockout.duration"),
			RequireConfirmedAccount:               v.GetBool("users.requireConfirmedAccount"),
		},
		Email: EmailConfig{
			Backend:        v.GetString("email.backend"),
			SendgridAPIKey: v.GetString("email.sendgridApiKey"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("smtp.host"),
			Port:     v.GetInt("smtp.port"),
			Security: v.GetString("smtp.security"),
			Username: v.GetString("smtp.username"),
			Password: v.GetString("smtp.password"),
		},
		Paypal: PaypalConfig{
			ClientID:  v.GetString("paypal.clientId"),
			Secret:    v.GetString("paypal.secret"),
			Sandbox:   v.GetBool("paypal.sandbox"),
			BrandName: v.GetString("paypal.brandName"),
		},
		Stripe: StripeConfig{
			PublicKey:  v.GetString("stripe.publicKey"),
			PrivateKey: v.GetString("stripe.privateKey"),
		},
		Recaptcha: RecaptchaConfig{
			Enabled:   v.GetBool("recaptcha.enabled"),
			SiteKey:   v.GetString("recaptcha.siteKey"),
			SecretKey: v.GetString("recaptcha.secretKey"),
			VerifyURL: v.GetString("recaptcha.verifyURL"),
		},
		Images: ImagesConfig{
			Root:    v.GetString("images.root"),
			Width:   v.GetInt("images.width"),
			Height:  v.GetInt("images.height"),
			Quality: v.GetInt("images.quality"),
		},
		Tracing: TracingConfig{
			Enabled:     v.GetBool("tracing.enabled"),
			Endpoint:    v.GetString("tracing.endpoint"),
			SampleRatio: v.GetFloat64("tracing.sampleRatio"),
		},
		defaultFromEm: v.GetString("defaultFromEmail"),
		v:             v,
	}
	conf.courses = readCoursesOptions(v)
	return conf
}

func readCoursesOptions(v *viper.Viper) CoursesOptions {
	return CoursesOptions{
		PerPage:       v.GetInt("courses.perPage"),
		InHome:        v.GetInt("courses.inHome"),
		CachedPages:   v.GetInt("courses.cachedPages"),
		CacheDuration: v.GetDuration("courses.cacheDuration"),
		Order: CoursesOrderOptions{
			By:        v.GetString("courses.order.by"),
			Ascending: v.GetBool("courses.order.ascending"),
			Allow:     v.GetStringSlice("courses.order.allow"),
		},
	}
}

// Courses returns the current courses options.
func (c *Config) Courses() CoursesOptions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	opts := c.courses
	opts.Order.Allow = append([]string(nil), c.courses.Order.Allow...)
	return opts
}

// SetCourses replaces the courses options.
func (c *Config) SetCourses(opts CoursesOptions) {
	c.mu.Lock()
	c.courses = opts
	c.mu.Unlock()
}

// Watch reloads the courses options whenever the settings file changes.
func (c *Config) Watch(logger Logger) {
	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return
	}
	c.v.OnConfigChange(func(e fsnotify.Event) {
		c.SetCourses(readCoursesOptions(c.v))
		logger.Info(fmt.Sprintf("courses options reloaded from %s", e.Name))
	})
	c.v.WatchConfig()
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEm)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
