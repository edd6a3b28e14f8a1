package main

import (
	"bufio"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/jainuniversity/campus-portal/internal/api"
	"github.com/jainuniversity/campus-portal/internal/audit"
	"github.com/jainuniversity/campus-portal/internal/backup"
	"github.com/jainuniversity/campus-portal/internal/config"
	"github.com/jainuniversity/campus-portal/internal/database"
	"github.com/jainuniversity/campus-portal/internal/logging"
	"github.com/jainuniversity/campus-portal/internal/metrics"
	"github.com/jainuniversity/campus-portal/internal/models"
	"github.com/jainuniversity/campus-portal/internal/ratelimit"
	"github.com/jainuniversity/campus-portal/internal/repository"
	"github.com/jainuniversity/campus-portal/internal/security"
	"github.com/jainuniversity/campus-portal/internal/service"
)

type Application struct {
	config         *config.Config
	log            *zap.Logger
	db             *sql.DB
	mongoClient    *mongo.Client
	redisClient    *redis.Client
	store          repository.AccountStore
	authService    *service.AuthService
	accountService *service.AccountService
	auditLogger    *audit.Logger
	auditMonitor   *audit.Monitor
	backupMgr      *backup.Manager
	rateLimiter    ratelimit.Limiter
	memoryLimiter  *ratelimit.RateLimiter
	metrics        *metrics.Metrics
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := initializeApplication(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer app.cleanup()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "serve":
		err = app.serve(ctx)
	case "create-admin":
		err = app.createAdmin(ctx, bufio.NewScanner(os.Stdin))
	case "backup":
		err = app.runBackup(ctx)
	case "audit":
		err = app.showAuditLog()
	default:
		err = fmt.Errorf("unknown command %q (want serve, create-admin, backup or audit)", command)
	}
	if err != nil {
		log.Error("command failed", zap.String("command", command), zap.Error(err))
		app.cleanup()
		os.Exit(1)
	}
}

// initializeApplication sets up all application components
func initializeApplication(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Application, error) {
	app := &Application{config: cfg, log: log, metrics: metrics.New()}

	keyManager, err := security.NewKeyManager(cfg.AppEncryptionKey, cfg.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key manager: %w", err)
	}

	if err := app.openStore(ctx, keyManager); err != nil {
		app.cleanup()
		return nil, err
	}

	app.auditLogger, err = audit.NewLogger(app.db, cfg.AuditLogPath, cfg.AuditAsyncMode, log)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}
	app.auditMonitor = audit.NewMonitor(app.auditLogger, log)

	if err := app.openRateLimiter(ctx); err != nil {
		app.cleanup()
		return nil, err
	}

	hasher, err := security.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	tokens, err := security.NewTokenService(keyManager.TokenKey(), cfg.TokenTTL)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	policy := security.LockoutPolicy{Threshold: cfg.MaxLoginAttempts, Duration: cfg.LockDuration}
	app.authService = service.NewAuthService(app.store, hasher, tokens, policy, app.rateLimiter, app.auditLogger, app.metrics, log)
	app.accountService = service.NewAccountService(app.store, hasher, app.auditLogger, log)

	if app.db != nil {
		app.backupMgr, err = backup.NewManager(app.db, cfg.BackupDir, cfg.BackupEncryptionKey, cfg.BackupRetentionDays, log)
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to initialize backup manager: %w", err)
		}
	}

	return app, nil
}

func (app *Application) openStore(ctx context.Context, keyManager *security.KeyManager) error {
	cfg := app.config

	switch cfg.StoreDriver {
	case config.StoreMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("mongo connection failed: %w", err)
		}
		app.mongoClient = client

		repo := repository.NewMongoAccountRepository(client.Database(cfg.MongoDatabase))
		if err := repo.Ping(connectCtx); err != nil {
			return err
		}
		if err := repo.EnsureIndexes(connectCtx); err != nil {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
		app.store = repo

	default:
		db, err := database.Connect(database.DefaultConfig(cfg.DBPath, cfg.DBEncryptionKey))
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		app.db = db

		if err := database.Migrate(db); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		encryptor, err := security.NewFieldEncryptor(keyManager.AppKey())
		if err != nil {
			return fmt.Errorf("failed to initialize field encryptor: %w", err)
		}
		app.store = repository.NewAccountRepository(db, encryptor)
	}

	app.log.Info("credential store ready", zap.String("driver", cfg.StoreDriver))
	return nil
}

func (app *Application) openRateLimiter(ctx context.Context) error {
	cfg := app.config

	if cfg.RateLimitBackend == config.RateLimitRedis {
		app.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := app.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		limiter, err := ratelimit.NewRedisLimiter(app.redisClient, cfg.RateLimitBurst, cfg.RateLimitWindow)
		if err != nil {
			return err
		}
		app.rateLimiter = limiter
		return nil
	}

	app.memoryLimiter = ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	app.rateLimiter = app.memoryLimiter
	return nil
}

// cleanup releases every open resource. Safe to call more than once.
func (app *Application) cleanup() {
	if app.auditLogger != nil {
		if err := app.auditLogger.Close(); err != nil {
			app.log.Warn("failed to close audit logger", zap.Error(err))
		}
		app.auditLogger = nil
	}

	if app.db != nil {
		app.db.Close()
		app.db = nil
	}

	if app.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = app.mongoClient.Disconnect(ctx)
		cancel()
		app.mongoClient = nil
	}

	if app.redisClient != nil {
		app.redisClient.Close()
		app.redisClient = nil
	}
}

func (app *Application) serve(ctx context.Context) error {
	cfg := app.config

	if app.backupMgr != nil {
		go app.backupMgr.StartAutomatedBackups(ctx, cfg.BackupInterval)
	}
	if app.memoryLimiter != nil {
		go app.memoryLimiter.StartCleanupWorker(ctx, 10*time.Minute)
	}
	go app.auditMonitor.Run(ctx, 5*time.Minute)

	srv := api.NewServer(app.authService, app.accountService, app.store, app.rateLimiter, app.metrics, app.log, api.Options{
		ClientURL:  cfg.ClientURL,
		Production: cfg.IsProduction(),
		SessionTTL: cfg.TokenTTL,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.log.Info("http server listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("env", cfg.Environment),
		)
		if err := httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// createAdmin provisions an administrator from the terminal. Admin accounts
// cannot be self-registered over HTTP.
func (app *Application) createAdmin(ctx context.Context, scanner *bufio.Scanner) error {
	fmt.Println("=== Create Administrator ===")

	prompt := func(label string) string {
		fmt.Printf("%s: ", label)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	req := models.RegisterRequest{
		BusinessID: prompt("Admin ID"),
		Username:   prompt("Username"),
		FullName:   prompt("Full name"),
		Email:      prompt("Email"),
		Password:   prompt("Password"),
		Profile: models.Profile{
			Professional: &models.ProfessionalInfo{IsMainAdmin: true},
		},
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	account, err := app.accountService.Register(ctx, nil, models.RoleAdmin, req, true)
	if err != nil {
		return err
	}

	fmt.Printf("Administrator created (ID: %s)\n", account.ID)
	return nil
}

func (app *Application) runBackup(ctx context.Context) error {
	if app.backupMgr == nil {
		return fmt.Errorf("backups are only available for the %s store", config.StoreSQLCipher)
	}

	path, err := app.backupMgr.CreateBackup(ctx)
	if err != nil {
		return err
	}
	if err := app.backupMgr.VerifyBackup(path); err != nil {
		return err
	}
	removed, err := app.backupMgr.CleanOldBackups()
	if err != nil {
		return err
	}

	fmt.Printf("Backup created and verified: %s (%d expired removed)\n", path, removed)
	return nil
}

func (app *Application) showAuditLog() error {
	events, err := app.auditLogger.QueryLogs(audit.QueryFilters{ActionPrefix: "LOGIN_", Limit: 20})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Println("No audit logs found")
		return nil
	}

	for _, event := range events {
		fmt.Printf("[%s] %s %s role=%s user=%s ip=%s success=%v\n",
			event.Timestamp.Format("2006-01-02 15:04:05"),
			event.Level,
			event.Action,
			event.Role,
			event.UserID,
			event.IPAddress,
			event.Success,
		)
		if event.ErrorMsg != "" {
			fmt.Printf("  error: %s\n", event.ErrorMsg)
		}
	}
	return nil
}
