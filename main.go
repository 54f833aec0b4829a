package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/movieservice/auth-service/handlers"
	"github.com/movieservice/auth-service/internal/accounts"
	"github.com/movieservice/auth-service/internal/auth"
	"github.com/movieservice/auth-service/internal/config"
	"github.com/movieservice/auth-service/internal/database"
	"github.com/movieservice/auth-service/internal/events"
	"github.com/movieservice/auth-service/internal/oauth"
	"github.com/movieservice/auth-service/internal/passwords"
	"github.com/movieservice/auth-service/internal/sessions"
	"github.com/movieservice/auth-service/internal/storage"
	"github.com/movieservice/auth-service/internal/tokens"
	"github.com/movieservice/auth-service/internal/users"
	"github.com/movieservice/auth-service/pkg/logger"
	"github.com/movieservice/auth-service/pkg/metrics"
)

// retry runs fn with exponential backoff to tolerate dependencies that start
// after the service.
func retry(name string, fn func() error) error {
	const maxAttempts = 5
	backoff := time.Second
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		logger.Warnf("attempt %d/%d: failed to connect to %s: %v", attempt, maxAttempts, name, err)
		if attempt < maxAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}

// cors allows the configured frontend to call the API with cookies.
func cors(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		h.Set("Vary", "Origin")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type stores struct {
	users    users.Repository
	sessions sessions.Cache
	closers  []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}
	var mongoDB *mongo.Database

	switch cfg.Database.Driver {
	case "memory":
		logger.Warnf("using in-memory credential store; data is lost on restart")
		st.users = users.NewMemoryRepository()
	case "mongo":
		var client *mongo.Client
		err := retry("MongoDB", func() error {
			var err error
			client, err = database.ConnectMongo(ctx, cfg.Database.URL, cfg.Database.Timeout)
			return err
		})
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = client.Disconnect(context.Background()) })
		mongoDB = client.Database(cfg.Database.Name)
		repo := users.NewMongoRepository(mongoDB)
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		st.users = repo
	default:
		dialect, err := database.ParseDialect(cfg.Database.Driver)
		if err != nil {
			return nil, err
		}
		if cfg.Database.AutoMigrate {
			if err := retry("database (migrate)", func() error { return database.Migrate(ctx, dialect, cfg.Database.URL) }); err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		var db *sql.DB
		if err := retry("database", func() error {
			var err error
			db, err = database.Open(ctx, dialect, cfg.Database.URL)
			return err
		}); err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = db.Close() })
		st.users = users.NewSQLRepository(db, dialect)
	}

	switch cfg.Session.Backend {
	case "mongo":
		cache := sessions.NewMongoCache(mongoDB.Collection("sessions"))
		if err := cache.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("session indexes: %w", err)
		}
		st.sessions = cache
	default:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := retry("Redis", func() error { return client.Ping(ctx).Err() }); err != nil {
			_ = client.Close()
			return nil, err
		}
		st.closers = append(st.closers, func() { _ = client.Close() })
		st.sessions = sessions.NewRedisCache(client)
	}
	return st, nil
}

func providers(ctx context.Context, cfg *config.Config) oauth.Registry {
	var list []oauth.Provider
	if cfg.OAuth.Kakao.Enabled() {
		list = append(list, oauth.NewKakao(cfg.OAuth.Kakao))
	}
	if cfg.OAuth.Google.Enabled() {
		list = append(list, oauth.NewGoogle(ctx, cfg.OAuth.Google))
	}
	reg := oauth.NewRegistry(list...)
	logger.Infof("oauth providers enabled: kakao=%v google=%v", cfg.OAuth.Kakao.Enabled(), cfg.OAuth.Google.Enabled())
	return reg
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: env=%s database=%s sessions=%s", cfg.Server.Environment, cfg.Database.Driver, cfg.Session.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to open stores: %v", err)
	}
	defer st.close()

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQP.URL != "" {
		publisher = events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Queue)
	}

	var avatars storage.AvatarStore
	if cfg.MinIO.Enabled() {
		s, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			logger.Warnf("avatar storage disabled: %v", err)
		} else {
			avatars = s
		}
	}

	userSvc := users.NewService(st.users, passwords.NewHasher(cfg.JWT.BcryptCost))
	tokenSvc := tokens.NewService(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL)
	resolver := accounts.NewResolver(st.users, publisher)
	authSvc := auth.NewService(userSvc, tokenSvc, st.sessions, resolver, providers(ctx, cfg))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterCollectors(reg)

	if cfg.Server.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), cors(cfg.Server.FrontendURL))

	deps := map[string]handlers.Pinger{
		"database": st.users,
		"sessions": st.sessions,
	}
	if avatars != nil {
		deps["storage"] = avatars
	}
	handlers.RegisterHealth(r, deps, reg)
	handlers.RegisterSwagger(r)

	api := r.Group(cfg.Server.APIPrefix)
	handlers.NewAuthHandler(authSvc).Register(api)
	handlers.NewOAuthHandler(cfg, authSvc).Register(api)
	handlers.NewUsersHandler(authSvc, userSvc, avatars).Register(api)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("Starting auth service on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
