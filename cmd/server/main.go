package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/therapycenter/phoneauth/internal/clock"
	"github.com/therapycenter/phoneauth/internal/config"
	"github.com/therapycenter/phoneauth/internal/handlers"
	"github.com/therapycenter/phoneauth/internal/middleware"
	"github.com/therapycenter/phoneauth/internal/repository"
	"github.com/therapycenter/phoneauth/internal/service"
	"github.com/therapycenter/phoneauth/internal/sms"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logger.SetLevel(level)
	} else {
		logger.WithField("level", cfg.Log.Level).Warn("Unknown log level, using info")
	}

	ctx := context.Background()
	clk := clock.New()

	users, otps, closeStores, err := initStores(ctx, cfg, clk, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	defer closeStores()

	smsClient := sms.NewClient(&cfg.SMS, logger)

	otpService, err := service.NewOTPService(users, otps, smsClient, &cfg.OTP, clk, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTP service")
	}

	router := setupRouter(handlers.NewOTPHandlers(otpService, logger), logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
		return
	}

	logger.Info("Server exited")
}

// initStores builds the user store for the configured backend and the OTP
// store, which is either the same backend or Redis.
func initStores(
	ctx context.Context,
	cfg *config.Config,
	clk clock.Clocker,
	logger *logrus.Logger,
) (repository.UserRepository, repository.OTPRepository, func(), error) {
	var (
		users   repository.UserRepository
		otps    repository.OTPRepository
		closers []func()
	)

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.Storage.Backend {
	case config.BackendDynamoDB:
		client, err := initDynamoDB(ctx, cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		users = repository.NewDynamoUserRepository(client, cfg.DynamoDB.TableName, clk, logger)
		otps = repository.NewDynamoOTPRepository(client, cfg.DynamoDB.TableName, cfg.OTP.Retention, clk, logger)

	case config.BackendPostgres:
		pool, err := initPostgres(ctx, cfg, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		closers = append(closers, pool.Close)
		repo := repository.NewPostgresRepository(pool, clk, logger)
		users, otps = repo, repo

	case config.BackendMemory:
		logger.Warn("Using in-memory storage, data is lost on restart")
		repo := repository.NewMemoryRepository(clk)
		users, otps = repo, repo
	}

	if cfg.Storage.OTPStore == config.OTPStoreRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		otps = repository.NewRedisOTPRepository(client, cfg.OTP.Retention, clk, logger)
		logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis OTP store initialized")
	}

	return users, otps, closeAll, nil
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})
	logger.WithField("table", cfg.DynamoDB.TableName).Info("DynamoDB client initialized")
	return client, nil
}

func initPostgres(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	logger.Info("Postgres pool initialized")
	return pool, nil
}

func setupRouter(otpHandlers *handlers.OTPHandlers, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet, http.MethodOptions)

	otpHandlers.Register(router)

	return router
}
