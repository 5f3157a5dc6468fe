package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shiweiumichedu/autovet-app-pwa/internal/config"
	"github.com/shiweiumichedu/autovet-app-pwa/internal/delivery"
	"github.com/shiweiumichedu/autovet-app-pwa/internal/domain"
	"github.com/shiweiumichedu/autovet-app-pwa/internal/infrastructure"
	"github.com/shiweiumichedu/autovet-app-pwa/internal/repository"
	"github.com/shiweiumichedu/autovet-app-pwa/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := newLogger(cfg.LogMode)
	defer log.Sync()

	ctx := context.Background()

	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer dbPool.Close()

	storage, err := buildStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("unable to set up file storage", zap.Error(err))
	}

	var analyzer domain.Analyzer
	if cfg.VisionEndpoint != "" {
		analyzer = infrastructure.NewVisionClient(cfg.VisionEndpoint, cfg.VisionAPIKey, log)
	} else {
		log.Warn("VISION_API_URL not set, attachment analysis disabled")
		analyzer = disabledAnalyzer{}
	}

	var sessionCache domain.SessionCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal("unable to connect to redis", zap.Error(err))
		}
		sessionCache = infrastructure.NewRedisSessionCache(client)
	} else {
		log.Warn("REDIS_ADDR not set, using in-process session cache")
		sessionCache = infrastructure.NewMemorySessionCache()
	}

	repo := repository.NewPostgresRepository(dbPool)

	templateUC := usecase.NewTemplateUseCase(repo, log)
	sessionUC := usecase.NewSessionUseCase(repo, storage, templateUC, log)
	attachmentUC := usecase.NewAttachmentUseCase(repo, storage, analyzer, log)
	reportUC := usecase.NewReportUseCase(repo, storage, log)
	vinOCRUC := usecase.NewVINOCRUseCase(log)

	if cfg.LogMode != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	apiHandler := delivery.NewAPIHandler(sessionUC, templateUC, attachmentUC, reportUC, vinOCRUC, sessionCache, log)
	apiHandler.Register(router)

	adminHandler := delivery.NewAdminHandler(repo, os.Getenv("ADMIN_TOKEN"), log)
	adminHandler.Register(router)

	// Local file storage is served directly; S3 serves its own URLs.
	if _, ok := storage.(*infrastructure.FileSystemStorage); ok {
		router.Static("/uploads", cfg.UploadDir)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		log.Info("server starting", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}

	// Let in-flight attachment analysis settle before the pool closes.
	attachmentUC.Wait()
	log.Info("server stopped")
}

func newLogger(mode string) *zap.Logger {
	var log *zap.Logger
	var err error
	if mode == "dev" {
		log, err = zap.NewDevelopment()
	} else {
		log, err = zap.NewProduction()
	}
	if err != nil {
		panic(err)
	}
	return log
}

func buildStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (domain.FileStorage, error) {
	if cfg.S3AccessKey == "" && cfg.S3Endpoint == "" {
		log.Info("using filesystem storage", zap.String("dir", cfg.UploadDir))
		return infrastructure.NewFileSystemStorage(cfg.UploadDir)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.CredentialsProviderFunc(
			func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     cfg.S3AccessKey,
					SecretAccessKey: cfg.S3SecretKey,
				}, nil
			})))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := cfg.S3PublicBase
	if publicURL == "" {
		publicURL = "https://" + cfg.S3Bucket + ".s3." + cfg.S3Region + ".amazonaws.com"
	}
	log.Info("using s3 storage", zap.String("bucket", cfg.S3Bucket))
	return infrastructure.NewS3Storage(client, cfg.S3Bucket, publicURL), nil
}

type disabledAnalyzer struct{}

func (disabledAnalyzer) Analyze(ctx context.Context, payload []byte, mimeType, prompt string) (*domain.AnalysisResult, error) {
	return nil, errors.New("analysis is not configured")
}
