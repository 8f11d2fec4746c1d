package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	appControllers "github.com/yigit/problemportal/internal/app/controllers"
	appMigrations "github.com/yigit/problemportal/internal/app/migrations"
	appRepos "github.com/yigit/problemportal/internal/app/repositories"
	appRoutes "github.com/yigit/problemportal/internal/app/routes"
	appServices "github.com/yigit/problemportal/internal/app/services"
	"github.com/yigit/problemportal/internal/config"
	"github.com/yigit/problemportal/internal/db"
	appMiddleware "github.com/yigit/problemportal/internal/middleware"
	pkgAuth "github.com/yigit/problemportal/internal/pkg/auth"
	"github.com/yigit/problemportal/internal/pkg/csvmirror"
	"github.com/yigit/problemportal/internal/pkg/email"
	"github.com/yigit/problemportal/internal/pkg/filestorage"
	"github.com/yigit/problemportal/internal/pkg/logger"
	"github.com/yigit/problemportal/internal/pkg/otp"
	"github.com/yigit/problemportal/internal/seed"
)

// maxUploadMemory bounds the multipart form kept in memory per request.
const maxUploadMemory = 32 << 20

// Dependencies holds all the application dependencies
type Dependencies struct {
	Repos          *appRepos.Repositories
	FileStorage    *filestorage.LocalStorage
	MirrorService  appServices.MirrorService
	ProblemService appServices.ProblemService
	StudentService appServices.StudentService
	ImportService  appServices.ImportService
	AuthService    *appServices.AuthService
	Sessions       *pkgAuth.SessionService
	AuthMiddleware *appMiddleware.AuthMiddleware
	Controllers    appRoutes.Controllers
	// Redis is nil when OTP codes are kept in memory.
	Redis  *redis.Client
	Logger zerolog.Logger
}

// ConfigPath returns the config file location, CONFIG_PATH overriding the
// default configs/config.yaml.
func ConfigPath() string {
	return config.GetEnv("CONFIG_PATH", filepath.Join("configs", "config.yaml"))
}

// LoadConfigAndSetupLogger loads configuration and initializes the logger.
func LoadConfigAndSetupLogger() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig(ConfigPath())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	lgr := logger.Configure(logger.ConfigFromStrings(cfg.Logging.Level, cfg.Logging.Format))
	lgr.Info().Str("logLevel", cfg.Logging.Level).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupDatabase connects to the configured backend, brings the schema up to
// date and seeds the default admin.
func SetupDatabase(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (*db.DB, error) {
	lgr.Info().Msg("Establishing database connection...")
	database, err := db.Connect(ctx, db.Options{
		URL:             cfg.Database.URL,
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger.Component("db"))
	if err != nil {
		return nil, err
	}

	lgr.Info().Msg("Ensuring database schema...")
	if err := appMigrations.NewMigrator(database, logger.Component("migrations")).EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("schema setup failed: %w", err)
	}
	lgr.Info().Str("backend", database.Backend()).Msg("Database schema is up to date.")

	adminRepo := appRepos.NewAdminRepository(logger.Component("repositories"))
	seedOpts := seed.Options{AdminID: cfg.Seed.AdminID, AdminPassword: cfg.Seed.AdminPassword}
	if err := seed.CreateDefaultData(ctx, database, adminRepo, seedOpts, lgr); err != nil {
		lgr.Error().Err(err).Msg("Failed to create default data, proceeding anyway...")
	}

	return database, nil
}

// NewMirrorService builds the CSV mirror for the configured paths.
func NewMirrorService(cfg *config.Config, database *db.DB, repos *appRepos.Repositories) appServices.MirrorService {
	exporter := csvmirror.NewExporter(cfg.Mirror.ProblemsCSV, cfg.Mirror.StudentsCSV, logger.Component("csvmirror"))
	return appServices.NewMirrorService(database, repos.ProblemRepository, repos.StudentRepository, exporter, logger.Component("mirror"))
}

// newOTPStore picks the shared redis store when configured, else memory.
func newOTPStore(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (otp.Store, *redis.Client, error) {
	if cfg.Redis.Addr == "" {
		lgr.Warn().Msg("Redis not configured, keeping verification codes in memory")
		return otp.NewMemoryStore(), nil, nil
	}

	client, err := otp.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	lgr.Info().Str("addr", cfg.Redis.Addr).Msg("Verification codes stored in redis")
	return otp.NewRedisStore(client, "portal:otp:"), client, nil
}

// BuildDependencies initializes application repositories, services, and controllers.
func BuildDependencies(ctx context.Context, cfg *config.Config, database *db.DB, lgr zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{Logger: lgr}

	deps.Repos = appRepos.NewRepositories(logger.Component("repositories"))

	var err error
	deps.FileStorage, err = filestorage.NewLocalStorage(cfg.Server.UploadsPath, logger.Component("filestorage"))
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to initialize file storage")
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}

	otpStore, redisClient, err := newOTPStore(ctx, cfg, lgr)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize otp store: %w", err)
	}
	deps.Redis = redisClient

	emailService := email.NewEmailService(email.SMTPConfig{
		Host:      cfg.SMTP.Host,
		Port:      cfg.SMTP.Port,
		Username:  cfg.SMTP.Username,
		Password:  cfg.SMTP.Password,
		FromName:  cfg.SMTP.FromName,
		FromEmail: cfg.SMTPFromEmail(),
	}, logger.Component("email"))

	deps.Sessions = pkgAuth.NewSessionService(pkgAuth.SessionConfig{
		SecretKey: cfg.Server.SessionSecret,
		TTL:       cfg.Server.SessionTTL,
	})

	deps.MirrorService = NewMirrorService(cfg, database, deps.Repos)
	deps.ProblemService = appServices.NewProblemService(database, deps.Repos.ProblemRepository, deps.FileStorage, deps.MirrorService, logger.Component("problems"))
	deps.StudentService = appServices.NewStudentService(database, deps.Repos.StudentRepository, deps.MirrorService, logger.Component("students"))
	deps.ImportService = appServices.NewImportService(database, deps.Repos.StudentRepository, deps.Repos.ProblemRepository, deps.MirrorService, logger.Component("import"))
	deps.AuthService = appServices.NewAuthService(
		database,
		deps.Repos.StudentRepository,
		deps.Repos.AdminRepository,
		deps.Sessions,
		otp.NewManager(otpStore, cfg.OTP.TTL, cfg.OTP.Length),
		emailService,
		deps.MirrorService,
		logger.Component("auth"),
	)

	deps.AuthMiddleware = appMiddleware.NewAuthMiddleware(deps.Sessions)

	deps.Controllers = appRoutes.Controllers{
		Auth:    appControllers.NewAuthController(deps.AuthService, cfg.Server.CookieSecure, logger.Component("auth")),
		Problem: appControllers.NewProblemController(deps.ProblemService, deps.StudentService),
		Student: appControllers.NewStudentController(deps.StudentService),
		Upload:  appControllers.NewUploadController(deps.FileStorage, logger.Component("uploads")),
		Mirror:  appControllers.NewMirrorController(deps.MirrorService, deps.ImportService),
	}

	// Bring the mirrors in line with the database at startup
	appServices.RefreshAll(ctx, deps.MirrorService, lgr)

	return deps, nil
}

// SetupRouter configures the Gin engine with middleware and routes.
func SetupRouter(cfg *config.Config, deps *Dependencies, lgr zerolog.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		lgr.Info().Msg("Setting Gin mode to release")
	} else {
		gin.SetMode(gin.DebugMode)
		lgr.Info().Msg("Setting Gin mode to debug")
	}

	router := gin.New()
	router.Use(gin.Recovery(), appMiddleware.RequestLogger(logger.Component("http")))
	router.MaxMultipartMemory = maxUploadMemory

	appRoutes.SetupRouter(router, deps.Controllers, deps.AuthMiddleware)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong", "status": "success", "time": time.Now().UTC()})
	})

	return router
}
