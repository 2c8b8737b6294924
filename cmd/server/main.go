// Command flasky-server serves the blog JSON API and a gRPC health endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/reflection"

	"github.com/and161185/flasky/internal/config"
	"github.com/and161185/flasky/internal/limiter"
	"github.com/and161185/flasky/internal/mail"
	"github.com/and161185/flasky/internal/migrate"
	"github.com/and161185/flasky/internal/model"
	"github.com/and161185/flasky/internal/repository"
	"github.com/and161185/flasky/internal/repository/memory"
	"github.com/and161185/flasky/internal/repository/postgres"
	grpcserver "github.com/and161185/flasky/internal/server/grpc"
	httpserver "github.com/and161185/flasky/internal/server/http"
	"github.com/and161185/flasky/internal/service"
	"github.com/and161185/flasky/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const shutdownTimeout = 5 * time.Second

// main loads configuration, prepares storage and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	// Flags override the environment.
	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	flag.StringVar(&cfg.HealthAddr, "health-addr", cfg.HealthAddr, "gRPC health listen address")
	flag.StringVar(&cfg.DSN, "dsn", cfg.DSN, "PostgreSQL DSN")
	flag.StringVar(&cfg.Storage, "storage", cfg.Storage, "storage backend: postgres or memory")
	flag.BoolVar(&cfg.Dev, "dev", cfg.Dev, "development logging and gRPC reflection")
	deployOnly := flag.Bool("deploy-only", false, "migrate, seed roles and backfill self follows, then exit")
	flag.Parse()

	logger, _ := zap.NewProduction()
	if cfg.Dev {
		logger, _ = zap.NewDevelopment()
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("storage", cfg.Storage),
	)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, lim, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open storage", zap.Error(err))
	}
	defer closeStore()

	// Deploy steps are idempotent and run on every start.
	if err := service.NewRoleService(store.Roles).SeedRoles(ctx, model.DefaultRoles); err != nil {
		logger.Fatal("seed roles", zap.Error(err))
	}
	social := service.NewSocialService(store.Users, store.Follows, cfg.FollowersPerPage)
	n, err := social.BackfillSelfFollows(ctx)
	if err != nil {
		logger.Fatal("backfill self follows", zap.Error(err))
	}
	if n > 0 {
		logger.Info("self follows added", zap.Int64("count", n))
	}
	if *deployOnly {
		logger.Info("deploy complete")
		return
	}

	mailer, err := newMailer(cfg, logger)
	if err != nil {
		logger.Fatal("mailer", zap.Error(err))
	}
	defer mailer.Close()

	codec := token.NewCodec([]byte(cfg.SecretKey))
	svc := httpserver.Services{
		Auth: service.NewAuthService(store.Users, store.Roles, codec, mailer, service.AuthOptions{
			AdminEmail: cfg.AdminEmail,
			TokenTTL:   cfg.TokenTTL,
		}),
		Posts:    service.NewPostService(store.Posts, store.Users, cfg.PostsPerPage),
		Comments: service.NewCommentService(store.Comments, store.Posts, cfg.CommentsPerPage),
		Social:   social,
		Users:    service.NewUserService(store.Users, store.Roles, store.Posts),
	}

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpserver.New(svc, logger, httpserver.WithLimiter(lim)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcSrv := grpcserver.NewServer(logger)
	hs := grpcserver.NewHealth(store.Ping, 10*time.Second, logger)
	hs.Register(grpcSrv)
	if cfg.Dev {
		reflection.Register(grpcSrv)
	}
	go hs.Run(ctx)

	lis, err := net.Listen("tcp", cfg.HealthAddr)
	if err != nil {
		logger.Fatal("listen", zap.Error(err))
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening (http)", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("listening (grpc health)", zap.String("addr", cfg.HealthAddr))
		errCh <- grpcSrv.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		shutdown(httpSrv, grpcSrv.GracefulStop, grpcSrv.Stop, logger)
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func shutdown(httpSrv *http.Server, graceful, force func(), logger *zap.Logger) {
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		graceful()
		close(done)
	}()
	select {
	case <-done:
	case <-sctx.Done():
		force()
	}
}

// openStore prepares the storage backend together with a login limiter kept
// in the same place.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, limiter.Limiter, func(), error) {
	policy := limiter.Policy{Window: cfg.LoginWindow, MaxFails: cfg.LoginMaxFails, BlockFor: cfg.LoginBlockFor}
	if cfg.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		return memory.New(), limiter.NewMemory(policy), func() {}, nil
	}
	if err := migrate.Up(ctx, cfg.DSN); err != nil {
		return repository.Store{}, nil, nil, err
	}
	db, err := postgres.New(ctx, cfg.DSN, cfg.SlowQuery, logger)
	if err != nil {
		return repository.Store{}, nil, nil, err
	}
	return db.Store(), limiter.NewPG(db.Pool, policy), db.Close, nil
}

func newMailer(cfg *config.Config, logger *zap.Logger) (*mail.Async, error) {
	var tr mail.Transport = mail.LogTransport{Log: logger}
	if cfg.Mail.Enabled() {
		tr = mail.NewSMTPTransport(mail.SMTPConfig{
			Host:     cfg.Mail.Server,
			Port:     cfg.Mail.Port,
			UseTLS:   cfg.Mail.UseTLS,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
		})
	}
	return mail.NewAsync(tr, mail.Options{
		Sender:        cfg.Mail.Sender,
		SubjectPrefix: cfg.Mail.SubjectPrefix,
		BaseURL:       cfg.PublicURL,
	}, logger)
}
