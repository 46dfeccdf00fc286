package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"spadeworker/internal/auth"
	"spadeworker/internal/config"
	"spadeworker/internal/db"
	"spadeworker/internal/maintenance"
	"spadeworker/internal/media"
	"spadeworker/internal/oauth"
	"spadeworker/internal/observability"
	"spadeworker/internal/project"
	"spadeworker/internal/user"
)

const bootstrapTimeout = 30 * time.Second

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Port    string
	Close   func() error
}

// Dependencies are the already-connected collaborators the router is built from.
type Dependencies struct {
	Config       config.Config
	DB           *sql.DB
	Logger       *observability.Logger
	Metrics      *observability.Metrics
	RefreshStore auth.RefreshTokenStore
	Images       media.ImageStore
	Providers    map[string]oauth.Provider
}

func Build(options Options) (*Runtime, error) {
	cfg, err := config.Load(options.LoadDotEnv)
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger()
	if err := observability.InitSentry(cfg.SentryDSN, cfg.Env); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	ctx, cancel := context.WithTimeout(context.Background(), bootstrapTimeout)
	defer cancel()

	database, err := db.Open(ctx, db.Options{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		ConnectAttempts: cfg.DBConnectAttempts,
	})
	if err != nil {
		return nil, err
	}

	closers := []func() error{database.Close}
	closeAll := func() error {
		observability.FlushSentry()
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}
	fail := func(err error) (*Runtime, error) {
		_ = closeAll()
		return nil, err
	}

	if options.RunMigrations || cfg.RunMigrationsOnStartup {
		results, err := db.RunMigrations(ctx, database)
		if err != nil {
			return fail(fmt.Errorf("run migrations: %w", err))
		}
		logger.Info("migrations_applied", map[string]any{"count": len(results)})
	}

	store, closeStore, err := newRefreshStore(ctx, cfg.RefreshStore, database)
	if err != nil {
		return fail(err)
	}
	if closeStore != nil {
		closers = append(closers, closeStore)
	}

	images, err := newImageStore(ctx, cfg.Images)
	if err != nil {
		return fail(err)
	}

	providers, err := oauth.NewProviders(ctx, cfg.OAuth2)
	if err != nil {
		return fail(err)
	}

	handler, err := NewHandler(Dependencies{
		Config:       cfg,
		DB:           database,
		Logger:       logger,
		Metrics:      observability.NewMetrics(),
		RefreshStore: store,
		Images:       images,
		Providers:    providers,
	})
	if err != nil {
		return fail(err)
	}

	logger.Info("bootstrap_complete", map[string]any{
		"env":           cfg.Env,
		"refresh_store": cfg.RefreshStore.Backend,
		"image_store":   cfg.Images.Backend,
		"providers":     len(providers),
	})

	return &Runtime{Handler: handler, Port: cfg.Port, Close: closeAll}, nil
}

func newRefreshStore(ctx context.Context, cfg config.RefreshStoreConfig, database *sql.DB) (auth.RefreshTokenStore, func() error, error) {
	switch cfg.Backend {
	case config.RefreshStoreRedis:
		client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return auth.NewRedisRefreshTokenStore(client, cfg.KeyPrefix), client.Close, nil
	case config.RefreshStoreMemory:
		return auth.NewMemoryRefreshTokenStore(), nil, nil
	default:
		return auth.NewPostgresRefreshTokenStore(database), nil, nil
	}
}

func newImageStore(ctx context.Context, cfg config.ImageConfig) (media.ImageStore, error) {
	switch cfg.Backend {
	case config.ImageStoreS3:
		store, err := media.NewS3Store(ctx, media.S3Options{
			Region:        cfg.S3.Region,
			Bucket:        cfg.S3.Bucket,
			Endpoint:      cfg.S3.Endpoint,
			AccessKey:     cfg.S3.AccessKey,
			SecretKey:     cfg.S3.SecretKey,
			PublicBaseURL: cfg.S3.PublicBaseURL,
			UsePathStyle:  cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3: %w", err)
		}
		return store, nil
	default:
		store, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			return nil, fmt.Errorf("init cloudinary: %w", err)
		}
		return store, nil
	}
}

// NewHandler wires every HTTP route on top of d.
func NewHandler(d Dependencies) (http.Handler, error) {
	cfg := d.Config
	logger := d.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	metrics := d.Metrics
	if metrics == nil {
		metrics = observability.NewMetrics()
	}

	codec, err := auth.NewCodec(cfg.Token.Secret, cfg.Token.AccessTTL, cfg.Token.RefreshTTL, auth.WithIssuer(cfg.Token.Issuer))
	if err != nil {
		return nil, fmt.Errorf("init token codec: %w", err)
	}

	cookies := auth.NewHTTPCookieJar(cfg.Cookie.Domain, cfg.Cookie.Secure)
	redirects := auth.NewRedirectValidator(cfg.OAuth2.AuthorizedRedirectURIs)
	authService := auth.NewService(codec, d.RefreshStore, metrics)
	authHandler := auth.NewHandler(authService, cookies, logger)
	authenticator := auth.NewAuthenticator(codec, logger)
	clientIPs := observability.ClientIPResolver{TrustedHops: cfg.RateLimit.TrustedProxyHops}
	limiter := auth.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, clientIPs)

	users := user.NewRepository(d.DB)
	userService := user.NewService(users)
	userHandler := user.NewHandler(userService, logger)

	oauthHandler := oauth.NewHandler(oauth.HandlerConfig{
		Providers: d.Providers,
		Cookies:   cookies,
		Redirects: redirects,
		Registrar: userService,
		Success: auth.NewSuccessHandler(auth.SuccessHandlerConfig{
			Codec:         codec,
			Store:         d.RefreshStore,
			Redirects:     redirects,
			Cookies:       cookies,
			DefaultTarget: cfg.OAuth2.DefaultTargetURL,
			Logger:        logger,
			Metrics:       metrics,
		}),
		Failure: auth.NewFailureHandler(redirects, cookies, cfg.OAuth2.DefaultTargetURL, logger),
		Logger:  logger,
	})

	projectService := project.NewService(project.NewRepository(d.DB), users, d.Images, project.DefaultThumbnail{
		Name: cfg.ProjectImages.DefaultThumbnailName,
		URI:  cfg.ProjectImages.DefaultThumbnailURI,
	}, logger)
	projectHandler := project.NewHandler(projectService, logger)
	uploadHandler := media.NewUploadHandler(d.Images, logger)

	// Redis keys expire on their own, so only stores that can purge get a cleanup job.
	var purger maintenance.ExpiredTokenPurger
	if p, ok := d.RefreshStore.(maintenance.ExpiredTokenPurger); ok {
		purger = p
	}
	cleanupHandler := maintenance.NewCleanupHandler(purger, logger, cfg.CronSecret, cfg.TokenCleanup.BatchSize)

	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(authenticator.Middleware)

	r.Get("/health", healthHandler(d.DB))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/internal/maintenance/cleanup", cleanupHandler.Handle)
	r.Post("/internal/maintenance/cleanup", cleanupHandler.Handle)

	r.With(limiter.Middleware).Get("/api/oauth2/authorization/{provider}", oauthHandler.Authorize)
	r.Get(oauth.CallbackPath+"{provider}", oauthHandler.Callback)
	r.With(limiter.Middleware).Post("/api/auth/refresh", authHandler.Refresh)

	r.Get("/api/projects", projectHandler.ListProjects)
	r.Get("/api/projects/{id}", projectHandler.GetProject)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuthenticated)

		r.Delete("/api/auth/logout", authHandler.Logout)
		r.Get("/api/users/me", userHandler.Me)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(user.RoleUser, user.RoleAdmin))

			r.Post("/api/images", uploadHandler.Upload)
			r.Post("/api/projects", projectHandler.CreateProject)
			r.Put("/api/projects/{id}", projectHandler.UpdateProject)
			r.Delete("/api/projects/{id}", projectHandler.DeleteProject)
			r.Post("/api/projects/{id}/likes", projectHandler.Like)
			r.Delete("/api/projects/{id}/likes", projectHandler.CancelLike)
			r.Post("/api/projects/{id}/subscribes", projectHandler.Subscribe)
			r.Delete("/api/projects/{id}/subscribes", projectHandler.CancelSubscribe)
		})
	})

	return observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, clientIPs, r)), nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if database == nil || database.PingContext(ctx) != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
