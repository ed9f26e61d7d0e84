package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sma-entry-sync/internal/autosave"
	"github.com/noah-isme/sma-entry-sync/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-entry-sync/internal/middleware"
	"github.com/noah-isme/sma-entry-sync/internal/models"
	"github.com/noah-isme/sma-entry-sync/internal/repository"
	"github.com/noah-isme/sma-entry-sync/internal/service"
	"github.com/noah-isme/sma-entry-sync/internal/syncer"
	"github.com/noah-isme/sma-entry-sync/pkg/cache"
	"github.com/noah-isme/sma-entry-sync/pkg/config"
	"github.com/noah-isme/sma-entry-sync/pkg/database"
	"github.com/noah-isme/sma-entry-sync/pkg/jobs"
	"github.com/noah-isme/sma-entry-sync/pkg/localstore"
	"github.com/noah-isme/sma-entry-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-entry-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-entry-sync/pkg/middleware/requestid"
)

type attendanceStore interface {
	BatchUpsert(ctx context.Context, records []models.AttendanceRecord) ([]string, error)
	ListBySession(ctx context.Context, courseID, sessionDate string) ([]models.AttendanceRecord, error)
	ListRange(ctx context.Context, courseID, from, to string) ([]models.AttendanceRecord, error)
	Stats(ctx context.Context, courseID string) (*models.AttendanceStats, error)
	DailyReport(ctx context.Context, courseID, from, to string) (models.DailyAttendanceReport, error)
	History(ctx context.Context, courseID, studentID string) ([]models.AttendanceHistoryRow, error)
}

type gradeStore interface {
	BatchUpsert(ctx context.Context, grades []models.GradeRecord) ([]string, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.GradeRecord, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(cfg, logr); err != nil {
		logr.Fatal("entry-sync stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	validate := validator.New()
	metrics := service.NewMetricsService()
	checks := map[string]handler.Pinger{}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer db.Close()
	checks["postgres"] = handler.PingFunc(db.PingContext)

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		if cfg.Drafts.Driver == config.DraftsRedis {
			return fmt.Errorf("redis drafts backend: %w", err)
		}
		logr.Warn("redis unavailable, read-view cache disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer redisClient.Close()
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	remote, err := buildRemotes(ctx, cfg, db, validate, logr)
	if err != nil {
		return err
	}
	defer remote.close()
	if remote.ping != nil {
		checks[cfg.Remote.Driver] = remote.ping
	}
	attendanceRemote, gradeRemote := remote.attendance, remote.grades

	drafts, err := buildDrafts(cfg, redisClient)
	if err != nil {
		return err
	}

	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.ViewCache.TTL, logr, cfg.ViewCache.Enabled && redisClient != nil)
	roster := service.NewRosterService(repository.NewRosterRepository(db), cacheSvc, cfg.ViewCache.RosterTTL, logr)

	engineOpts := []syncer.Option{syncer.WithInvalidator(cacheSvc), syncer.WithRecorder(metrics), syncer.WithLogger(logr)}
	attendanceEngine := syncer.NewAttendanceEngine(attendanceRemote, engineOpts...)
	gradeEngine := syncer.NewGradeEngine(gradeRemote, engineOpts...)

	dispatcher := service.NewAutoSaveDispatcher(jobs.QueueConfig{
		Workers:    cfg.AutoSave.Workers,
		MaxRetries: cfg.AutoSave.Retries,
	}, metrics, logr)
	scheduler := autosave.New(autosave.Config{
		Enabled:   cfg.AutoSave.Enabled,
		Threshold: cfg.AutoSave.Threshold,
		Debounce:  cfg.AutoSave.Debounce,
		Logger:    logr,
	}, func(scopeKey string) bool {
		return attendanceEngine.Pending(scopeKey) || gradeEngine.Pending(scopeKey)
	}, dispatcher.Trigger)

	attendanceSvc := service.NewAttendanceService(service.AttendanceServiceDeps{
		Drafts:    drafts,
		Roster:    roster,
		Remote:    attendanceRemote,
		Engine:    attendanceEngine,
		Scheduler: scheduler,
		Cache:     cacheSvc,
		Metrics:   metrics,
		ViewTTL:   cfg.ViewCache.TTL,
		Logger:    logr,
	})
	gradeSvc := service.NewGradeService(service.GradeServiceDeps{
		Drafts:    drafts,
		Roster:    roster,
		Remote:    gradeRemote,
		Engine:    gradeEngine,
		Scheduler: scheduler,
		Cache:     cacheSvc,
		Metrics:   metrics,
		ViewTTL:   cfg.ViewCache.TTL,
		Logger:    logr,
	})
	exportSvc := service.NewExportService(attendanceRemote, gradeRemote, roster, logr)
	authSvc := service.NewAuthService(cfg.JWT.Secret, logr)

	dispatcher.Register(models.WorkflowAttendance, attendanceSvc)
	dispatcher.Register(models.WorkflowGrades, gradeSvc)
	dispatcher.Start(context.Background())

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))

	handler.NewMetricsHandler(metrics, checks).Register(r)
	api := r.Group(cfg.APIPrefix, internalmiddleware.JWT(authSvc))
	handler.NewAttendanceHandler(attendanceSvc, exportSvc, validate).Register(api)
	handler.NewGradeHandler(gradeSvc, exportSvc, validate).Register(api)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env),
			zap.String("remote", cfg.Remote.Driver), zap.String("drafts", cfg.Drafts.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			logr.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	scheduler.Stop()
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logr.Warn("autosave queue drain", zap.Error(err))
	}

	var g errgroup.Group
	g.Go(func() error { return attendanceSvc.FlushAll(shutdownCtx) })
	g.Go(func() error { return gradeSvc.FlushAll(shutdownCtx) })
	if err := g.Wait(); err != nil {
		logr.Error("final flush incomplete, drafts kept locally", zap.Error(err))
	}
	logr.Info("entry-sync stopped")
	return nil
}

type remotes struct {
	attendance attendanceStore
	grades     gradeStore
	ping       handler.Pinger
	close      func()
}

func buildRemotes(ctx context.Context, cfg *config.Config, db *sqlx.DB, validate *validator.Validate, logr *zap.Logger) (*remotes, error) {
	switch cfg.Remote.Driver {
	case "", config.RemotePostgres:
		return &remotes{
			attendance: repository.NewAttendanceRepository(db, validate),
			grades:     repository.NewGradeRepository(db, validate),
			close:      func() {},
		}, nil
	case config.RemoteMongo:
		client, mdb, err := database.NewMongo(ctx, cfg.Mongo)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		attendance := repository.NewMongoAttendanceRepository(mdb, validate)
		grades := repository.NewMongoGradeRepository(mdb, validate)
		r := &remotes{
			attendance: attendance,
			grades:     grades,
			ping:       handler.PingFunc(func(ctx context.Context) error { return client.Ping(ctx, readpref.Primary()) }),
			close:      func() { disconnect(client, logr) },
		}
		if err := attendance.EnsureIndexes(ctx); err != nil {
			r.close()
			return nil, err
		}
		if err := grades.EnsureIndexes(ctx); err != nil {
			r.close()
			return nil, err
		}
		logr.Info("mongo sync target ready", zap.String("database", cfg.Mongo.Database))
		return r, nil
	default:
		return nil, fmt.Errorf("unknown REMOTE_DRIVER %q", cfg.Remote.Driver)
	}
}

func buildDrafts(cfg *config.Config, redisClient *redis.Client) (localstore.Store, error) {
	switch cfg.Drafts.Driver {
	case "", config.DraftsFile:
		return localstore.NewFileStore(cfg.Drafts.Dir)
	case config.DraftsRedis:
		return localstore.NewRedisStore(redisClient, "drafts:"), nil
	case config.DraftsMemory:
		return localstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown DRAFTS_DRIVER %q", cfg.Drafts.Driver)
	}
}

func disconnect(client *mongo.Client, logr *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logr.Warn("mongo disconnect", zap.Error(err))
	}
}
