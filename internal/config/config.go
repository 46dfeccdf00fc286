package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	RefreshStorePostgres = "postgres"
	RefreshStoreRedis    = "redis"
	RefreshStoreMemory   = "memory"

	ImageStoreCloudinary = "cloudinary"
	ImageStoreS3         = "s3"
)

type Config struct {
	Env  string
	Port string

	DatabaseURL            string
	DBMaxOpenConns         int
	DBMaxIdleConns         int
	DBConnMaxLifetime      time.Duration
	DBConnMaxIdleTime      time.Duration
	DBConnectAttempts      int
	RunMigrationsOnStartup bool

	SentryDSN  string
	CronSecret string

	Token         TokenConfig
	OAuth2        OAuth2Config
	Cookie        CookieConfig
	RefreshStore  RefreshStoreConfig
	Images        ImageConfig
	RateLimit     RateLimitConfig
	TokenCleanup  CleanupConfig
	ProjectImages ProjectImageConfig
}

type TokenConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type OAuth2Config struct {
	AuthorizedRedirectURIs []string
	DefaultTargetURL       string
	CallbackBaseURL        string
	Providers              map[string]ProviderCredentials
}

type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

type CookieConfig struct {
	Secure bool
	Domain string
}

type RefreshStoreConfig struct {
	Backend   string
	RedisURL  string
	KeyPrefix string
}

type ImageConfig struct {
	Backend       string
	CloudinaryURL string
	S3            S3Config
}

type S3Config struct {
	Region        string
	Bucket        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
	UsePathStyle  bool
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	// TrustedProxyHops is the number of reverse proxies in front of the
	// service that append to X-Forwarded-For. Zero keys on the peer address.
	TrustedProxyHops int
}

type CleanupConfig struct {
	BatchSize int
}

type ProjectImageConfig struct {
	DefaultThumbnailName string
	DefaultThumbnailURI  string
}

// Load reads configuration from the process environment. When loadDotEnv is set
// a .env file in the working directory is applied first; a missing file is not an error.
func Load(loadDotEnv bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}
	if len(jwtSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 bytes")
	}

	cfg := Config{
		Env:  envOrDefault("APP_ENV", "development"),
		Port: envOrDefault("PORT", "8080"),

		DatabaseURL:            databaseURL,
		DBMaxOpenConns:         envIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:         envIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime:      envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime:      envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
		DBConnectAttempts:      envIntOrDefault("DB_CONNECT_ATTEMPTS", 5),
		RunMigrationsOnStartup: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),

		SentryDSN:  os.Getenv("SENTRY_DSN"),
		CronSecret: strings.TrimSpace(os.Getenv("CRON_SECRET")),

		Token: TokenConfig{
			Secret:     jwtSecret,
			Issuer:     envOrDefault("JWT_ISSUER", "spadeworker"),
			AccessTTL:  envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 30),
			RefreshTTL: envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 336),
		},
		OAuth2: OAuth2Config{
			AuthorizedRedirectURIs: envList("OAUTH2_AUTHORIZED_REDIRECT_URIS"),
			DefaultTargetURL:       envOrDefault("OAUTH2_DEFAULT_TARGET_URL", "/"),
			CallbackBaseURL:        strings.TrimRight(envOrDefault("OAUTH2_CALLBACK_BASE_URL", "http://localhost:8080"), "/"),
			Providers:              providerCredentials("google", "github", "naver", "kakao"),
		},
		Cookie: CookieConfig{
			Secure: EnvBoolOrDefault("COOKIE_SECURE", true),
			Domain: os.Getenv("COOKIE_DOMAIN"),
		},
		RefreshStore: RefreshStoreConfig{
			Backend:   strings.ToLower(envOrDefault("REFRESH_TOKEN_STORE", RefreshStorePostgres)),
			RedisURL:  os.Getenv("REDIS_URL"),
			KeyPrefix: envOrDefault("REDIS_KEY_PREFIX", "spadeworker:"),
		},
		Images: ImageConfig{
			Backend:       strings.ToLower(envOrDefault("IMAGE_STORE", ImageStoreCloudinary)),
			CloudinaryURL: os.Getenv("CLOUDINARY_URL"),
			S3: S3Config{
				Region:        envOrDefault("S3_REGION", "us-east-1"),
				Bucket:        os.Getenv("S3_BUCKET"),
				Endpoint:      os.Getenv("S3_ENDPOINT"),
				AccessKey:     os.Getenv("S3_ACCESS_KEY"),
				SecretKey:     os.Getenv("S3_SECRET_KEY"),
				PublicBaseURL: strings.TrimRight(os.Getenv("S3_PUBLIC_BASE_URL"), "/"),
				UsePathStyle:  EnvBoolOrDefault("S3_USE_PATH_STYLE", false),
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOrDefault("AUTH_RATE_LIMIT_RPS", 1),
			Burst:             envIntOrDefault("AUTH_RATE_LIMIT_BURST", 10),
			TrustedProxyHops:  envIntOrDefault("TRUSTED_PROXY_HOPS", 1),
		},
		TokenCleanup: CleanupConfig{
			BatchSize: envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		},
		ProjectImages: ProjectImageConfig{
			DefaultThumbnailName: envOrDefault("PROJECT_DEFAULT_THUMBNAIL_NAME", "default-project-thumbnail.png"),
			DefaultThumbnailURI:  envOrDefault("PROJECT_DEFAULT_THUMBNAIL_URI", "/static/images/default-project-thumbnail.png"),
		},
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.RefreshStore.Backend {
	case RefreshStorePostgres, RefreshStoreMemory:
	case RefreshStoreRedis:
		if c.RefreshStore.RedisURL == "" {
			return fmt.Errorf("missing required env: REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown REFRESH_TOKEN_STORE %q", c.RefreshStore.Backend)
	}

	switch c.Images.Backend {
	case ImageStoreCloudinary:
		if c.Images.CloudinaryURL == "" {
			return fmt.Errorf("missing required env: CLOUDINARY_URL")
		}
	case ImageStoreS3:
		if c.Images.S3.Bucket == "" || c.Images.S3.PublicBaseURL == "" {
			return fmt.Errorf("missing required env: S3_BUCKET and S3_PUBLIC_BASE_URL")
		}
	default:
		return fmt.Errorf("unknown IMAGE_STORE %q", c.Images.Backend)
	}

	return nil
}

func providerCredentials(names ...string) map[string]ProviderCredentials {
	providers := make(map[string]ProviderCredentials)
	for _, name := range names {
		prefix := "OAUTH2_" + strings.ToUpper(name) + "_"
		id := strings.TrimSpace(os.Getenv(prefix + "CLIENT_ID"))
		secret := strings.TrimSpace(os.Getenv(prefix + "CLIENT_SECRET"))
		if id == "" || secret == "" {
			continue
		}
		providers[name] = ProviderCredentials{ClientID: id, ClientSecret: secret}
	}
	return providers
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envList(name string) []string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil
	}

	var values []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			values = append(values, part)
		}
	}
	return values
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envFloatOrDefault(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
