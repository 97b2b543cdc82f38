package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"os"
	"runtime"
	"time"

	"acessolivre/internal/auth"
	"acessolivre/internal/config"
	"acessolivre/internal/db"
	"acessolivre/internal/domain/admins"
	"acessolivre/internal/domain/storage"
	redisx "acessolivre/internal/infra/cache/redis"
	"acessolivre/internal/metrics"
	"acessolivre/internal/moderation"
	"acessolivre/internal/objectstore"
	"acessolivre/internal/objectstore/cloudinary"
	"acessolivre/internal/objectstore/s3"
	"acessolivre/internal/places"
	"acessolivre/internal/ratelimiter"
	"acessolivre/internal/signedurl"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "0.4.0"

// NewLogger creates a new zap logger with color.
func NewLogger(level string) (*zap.SugaredLogger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), lvl)

	return zap.New(core).Sugar(), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "acessolivre",
		Short:        "Acesso Livre accessibility API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return migrate(cmd.Context())
		},
	})

	var email, password string
	createAdminCmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return createAdmin(cmd.Context(), email, password)
		},
	}
	createAdminCmd.Flags().StringVar(&email, "email", "", "administrator email")
	createAdminCmd.Flags().StringVar(&password, "password", "", "administrator password")
	_ = createAdminCmd.MarkFlagRequired("email")
	_ = createAdminCmd.MarkFlagRequired("password")
	root.AddCommand(createAdminCmd)

	return root
}

func bootstrap() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func migrate(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := db.New(cfg.DBAddr, cfg.DBMaxConns, cfg.DBMaxIdleTime)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		return err
	}
	logger.Info("schema is up to date")
	return nil
}

func createAdmin(ctx context.Context, email, password string) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()

	pool, err := db.New(cfg.DBAddr, cfg.DBMaxConns, cfg.DBMaxIdleTime)
	if err != nil {
		return err
	}
	defer pool.Close()

	a := &admins.Admin{Email: email}
	if err := a.Password.Set(password); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, admins.QueryTimeout)
	defer cancel()

	err = admins.NewRepository(pool).Create(ctx, a)
	switch {
	case errors.Is(err, admins.ErrDuplicateEmail):
		logger.Infow("administrator already exists", "email", email)
		return nil
	case err != nil:
		return err
	}
	logger.Infow("administrator created", "id", a.ID, "email", email)
	return nil
}

func newBackend(ctx context.Context, cfg *config.Config) (objectstore.Backend, error) {
	switch cfg.StorageBackend {
	case "cloudinary":
		return cloudinary.New(cfg.CloudinaryURL, cfg.CloudinaryFolder)
	case "s3":
		st, err := s3.New(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(ctx, cfg.StorageTimeout)
		defer cancel()
		if err := st.EnsureBucket(ctx, cfg.S3Region); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

func serve(ctx context.Context) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Infow("configuration loaded", "config", cfg.String())

	// Database
	pool, err := db.New(cfg.DBAddr, cfg.DBMaxConns, cfg.DBMaxIdleTime)
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	store := storage.NewContainer(pool)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	// Object storage
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	gateway := objectstore.NewGateway(backend, logger,
		objectstore.WithTimeout(cfg.StorageTimeout),
		objectstore.WithConcurrency(cfg.StorageConcurrency),
		objectstore.WithMetrics(m),
	)

	// Signed urls
	cacheOpts := []signedurl.Option{
		signedurl.WithSize(cfg.SignedURLCacheSize),
		signedurl.WithConcurrency(cfg.StorageConcurrency),
		signedurl.WithMetrics(m),
	}
	if cfg.RedisAddr != "" {
		remote := redisx.New(redisx.Config{Addr: cfg.RedisAddr, DB: cfg.RedisDB, Password: cfg.RedisPassword}, logger)
		defer remote.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := remote.Ping(pingCtx); err != nil {
			logger.Warnw("redis unavailable, signed urls cached in memory only", "error", err)
		}
		cancel()
		cacheOpts = append(cacheOpts, signedurl.WithRemote(remote))
	}
	urls := signedurl.New(gateway, logger, cacheOpts...)

	observer := moderation.NewObserver(logger, m)

	comments := moderation.NewService(moderation.Deps{
		Tx:        store,
		Locations: store.Locations,
		Comments:  store.Comments,
		Files:     gateway,
		URLs:      urls,
		Observer:  observer,
		URLExpiry: cfg.SignedURLExpiry,
	})
	locs := places.NewService(places.Deps{
		Tx:        store,
		Locations: store.Locations,
		Files:     gateway,
		URLs:      urls,
		Observer:  observer,
		URLExpiry: cfg.SignedURLExpiry,
	})

	rateLimit := ratelimiter.Config{
		RequestsPerTimeFrame: cfg.RateLimitRequests,
		TimeFrame:            5 * time.Second,
		Enabled:              cfg.RateLimitEnabled,
	}

	app := &application{
		config:        cfg,
		logger:        logger,
		admins:        store.Admins,
		comments:      comments,
		places:        locs,
		authenticator: auth.NewJWTAuthenticator(cfg.AuthTokenSecret, cfg.AuthTokenIss, cfg.AuthTokenExp),
		rateLimiter: ratelimiter.NewFixedWindowLimiter(
			rateLimit.RequestsPerTimeFrame,
			rateLimit.TimeFrame,
		),
		rateLimit: rateLimit,
		gatherer:  registry,
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		s := pool.Stat()
		return map[string]any{
			"total_conns":    s.TotalConns(),
			"idle_conns":     s.IdleConns(),
			"acquired_conns": s.AcquiredConns(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))
	expvar.Publish("signed_urls_cached", expvar.Func(func() any {
		return urls.Len()
	}))

	mux := app.mount()

	return app.run(mux)
}
