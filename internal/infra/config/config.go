package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "BACK"

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Security  SecuritySettings  `mapstructure:"security"`
	Password  PasswordSettings  `mapstructure:"password"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	SMTP      SMTPSettings      `mapstructure:"smtp"`
	Twilio    TwilioSettings    `mapstructure:"twilio"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Ledger    LedgerSettings    `mapstructure:"ledger"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// URL is the public frontend base used to build links sent to users.
	URL             string        `mapstructure:"url"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	Schema            string        `mapstructure:"schema"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis backing the request rate limiter.
type RedisSettings struct {
	Enabled    bool   `mapstructure:"enabled"`
	URL        string `mapstructure:"url"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures the domain event producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

// JWTSettings mirrors the token settings of the legacy deployment, hence the minute and day units.
type JWTSettings struct {
	SecretKey                       string `mapstructure:"secret_key"`
	Algorithm                       string `mapstructure:"algorithm"`
	AccessTokenExpireMinutes        int    `mapstructure:"access_token_expire_minutes"`
	RefreshTokenExpireDays          int    `mapstructure:"refresh_token_expire_days"`
	PasswordResetTokenExpireMinutes int    `mapstructure:"password_reset_token_expire_minutes"`
}

func (s JWTSettings) AccessTokenTTL() time.Duration {
	return time.Duration(s.AccessTokenExpireMinutes) * time.Minute
}

func (s JWTSettings) RefreshTokenTTL() time.Duration {
	return time.Duration(s.RefreshTokenExpireDays) * 24 * time.Hour
}

func (s JWTSettings) PasswordResetTokenTTL() time.Duration {
	return time.Duration(s.PasswordResetTokenExpireMinutes) * time.Minute
}

// LongestTTL is the retention horizon of the used token ledger.
func (s JWTSettings) LongestTTL() time.Duration {
	longest := s.AccessTokenTTL()
	for _, ttl := range []time.Duration{s.RefreshTokenTTL(), s.PasswordResetTokenTTL()} {
		if ttl > longest {
			longest = ttl
		}
	}
	return longest
}

// SecuritySettings holds lockout and reset throttling knobs.
type SecuritySettings struct {
	MaxLoginAttempts      int `mapstructure:"max_login_attempts"`
	AccountLockoutMinutes int `mapstructure:"account_lockout_minutes"`
	MaxResetAttempts      int `mapstructure:"max_reset_attempts"`
	ResetLockoutMinutes   int `mapstructure:"reset_lockout_minutes"`
	PasswordHistorySize   int `mapstructure:"password_history_size"`
	ProfileHistorySize    int `mapstructure:"profile_history_size"`
}

type PasswordSettings struct {
	MinLength        int `mapstructure:"min_length"`
	MinStrengthScore int `mapstructure:"min_strength_score"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

type SMTPSettings struct {
	Server      string        `mapstructure:"server"`
	Port        int           `mapstructure:"port"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	SenderEmail string        `mapstructure:"sender_email"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Configured reports whether enough settings are present to send mail.
func (s SMTPSettings) Configured() bool {
	return s.Server != "" && s.SenderEmail != ""
}

type TwilioSettings struct {
	AccountSID     string        `mapstructure:"account_sid"`
	AuthToken      string        `mapstructure:"auth_token"`
	WhatsAppNumber string        `mapstructure:"whatsapp_number"`
	SellerNumber   string        `mapstructure:"seller_number"`
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

func (s TwilioSettings) Configured() bool {
	return s.AccountSID != "" && s.AuthToken != "" && s.WhatsAppNumber != ""
}

// StorageSettings configures the S3 compatible bucket (DigitalOcean Spaces) for product images.
type StorageSettings struct {
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	CDNEndpoint  string `mapstructure:"cdn_endpoint"`
	MaxImageSize int64  `mapstructure:"max_image_size"`
	ImageFolder  string `mapstructure:"image_folder"`
}

func (s StorageSettings) Configured() bool {
	return s.Bucket != "" && s.AccessKey != "" && s.SecretKey != ""
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// RateLimitSettings configures per IP request throttling on the public auth endpoints.
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
}

type LedgerSettings struct {
	// PurgeSchedule is a cron expression; empty disables the purge job.
	PurgeSchedule string `mapstructure:"purge_schedule"`
}

// legacyEnv maps config keys to the variable names used by the previous deployment's .env files.
var legacyEnv = map[string]string{
	"app.url":                                 "URL",
	"postgres.host":                           "POSTGRES_SERVER",
	"postgres.port":                           "POSTGRES_PORT",
	"postgres.user":                           "POSTGRES_USER",
	"postgres.password":                       "POSTGRES_PASSWORD",
	"postgres.database":                       "POSTGRES_DB",
	"jwt.secret_key":                          "SECRET_KEY",
	"jwt.algorithm":                           "ALGORITHM",
	"jwt.access_token_expire_minutes":         "ACCESS_TOKEN_EXPIRE_MINUTES",
	"jwt.refresh_token_expire_days":           "REFRESH_TOKEN_EXPIRE_DAYS",
	"jwt.password_reset_token_expire_minutes": "PASSWORD_RESET_TOKEN_EXPIRE_MINUTES",
	"security.max_login_attempts":             "MAX_LOGIN_ATTEMPTS",
	"security.account_lockout_minutes":        "ACCOUNT_LOCKOUT_MINUTES",
	"security.password_history_size":          "PASSWORD_HISTORY_SIZE",
	"password.min_length":                     "MIN_PASSWORD_LENGTH",
	"smtp.server":                             "SMTP_SERVER",
	"smtp.port":                               "SMTP_PORT",
	"smtp.username":                           "SMTP_USERNAME",
	"smtp.password":                           "SMTP_PASSWORD",
	"smtp.sender_email":                       "SENDER_EMAIL",
	"twilio.account_sid":                      "TWILIO_ACCOUNT_SID",
	"twilio.auth_token":                       "TWILIO_AUTH_TOKEN",
	"twilio.whatsapp_number":                  "TWILIO_WHATSAPP_NUMBER",
	"twilio.seller_number":                    "VENDEDOR_WHATSAPP_NUMBER",
	"storage.endpoint":                        "DO_SPACES_ENDPOINT",
	"storage.region":                          "DO_SPACES_REGION",
	"storage.bucket":                          "DO_SPACES_BUCKET",
	"storage.access_key":                      "DO_SPACES_KEY",
	"storage.secret_key":                      "DO_SPACES_SECRET",
	"storage.cdn_endpoint":                    "DO_SPACES_CDN_ENDPOINT",
	"storage.max_image_size":                  "DO_SPACES_MAX_IMAGE_SIZE",
}

var configKeys = []string{
	"app.name",
	"app.env",
	"app.host",
	"app.port",
	"app.url",
	"app.shutdown_timeout",
	"app.cors_origins",
	"postgres.host",
	"postgres.port",
	"postgres.user",
	"postgres.password",
	"postgres.database",
	"postgres.ssl_mode",
	"postgres.schema",
	"postgres.auto_migrate",
	"postgres.max_conns",
	"postgres.min_conns",
	"postgres.max_conn_lifetime",
	"postgres.max_conn_idle_time",
	"postgres.health_check_period",
	"redis.enabled",
	"redis.url",
	"redis.host",
	"redis.port",
	"redis.db",
	"redis.password",
	"redis.tls_enabled",
	"redis.key_prefix",
	"kafka.enabled",
	"kafka.brokers",
	"kafka.topic_prefix",
	"kafka.async",
	"jwt.secret_key",
	"jwt.algorithm",
	"jwt.access_token_expire_minutes",
	"jwt.refresh_token_expire_days",
	"jwt.password_reset_token_expire_minutes",
	"security.max_login_attempts",
	"security.account_lockout_minutes",
	"security.max_reset_attempts",
	"security.reset_lockout_minutes",
	"security.password_history_size",
	"security.profile_history_size",
	"password.min_length",
	"password.min_strength_score",
	"argon2.memory",
	"argon2.iterations",
	"argon2.parallelism",
	"argon2.salt_length",
	"argon2.key_length",
	"smtp.server",
	"smtp.port",
	"smtp.username",
	"smtp.password",
	"smtp.sender_email",
	"smtp.timeout",
	"twilio.account_sid",
	"twilio.auth_token",
	"twilio.whatsapp_number",
	"twilio.seller_number",
	"twilio.base_url",
	"twilio.timeout",
	"storage.endpoint",
	"storage.region",
	"storage.bucket",
	"storage.access_key",
	"storage.secret_key",
	"storage.cdn_endpoint",
	"storage.max_image_size",
	"storage.image_folder",
	"telemetry.tracing_enabled",
	"telemetry.otlp_endpoint",
	"telemetry.service_name",
	"telemetry.sampling_rate",
	"rate_limit.window_duration",
	"rate_limit.login_max_attempts",
	"rate_limit.password_reset_max_attempts",
	"ledger.purge_schedule",
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(envPrefix)

	setDefaults(v)

	if err := bindEnvs(v, configKeys); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "back")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8000)
	v.SetDefault("app.url", "http://localhost:3000")
	v.SetDefault("app.shutdown_timeout", "10s")
	v.SetDefault("app.cors_origins", []string{"*"})

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.database", "back")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.schema", "shop")
	v.SetDefault("postgres.auto_migrate", false)
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "back:ratelimit")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "shop")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.algorithm", "HS256")
	v.SetDefault("jwt.access_token_expire_minutes", 30)
	v.SetDefault("jwt.refresh_token_expire_days", 7)
	v.SetDefault("jwt.password_reset_token_expire_minutes", 30)

	v.SetDefault("security.max_login_attempts", 5)
	v.SetDefault("security.account_lockout_minutes", 15)
	v.SetDefault("security.max_reset_attempts", 3)
	v.SetDefault("security.reset_lockout_minutes", 15)
	v.SetDefault("security.password_history_size", 5)
	v.SetDefault("security.profile_history_size", 3)

	v.SetDefault("password.min_length", 8)
	v.SetDefault("password.min_strength_score", 0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 2)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("smtp.port", 465)
	v.SetDefault("smtp.timeout", "10s")

	v.SetDefault("twilio.base_url", "https://api.twilio.com")
	v.SetDefault("twilio.timeout", "10s")

	v.SetDefault("storage.region", "nyc3")
	v.SetDefault("storage.max_image_size", 10*1024*1024)
	v.SetDefault("storage.image_folder", "products")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "back")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 10)
	v.SetDefault("rate_limit.password_reset_max_attempts", 5)

	v.SetDefault("ledger.purge_schedule", "@daily")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		names := []string{envPrefix + "_" + envKey}
		if legacy, ok := legacyEnv[key]; ok {
			names = append(names, legacy)
		}
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

// Validate rejects configurations the services cannot run with.
func (c *AppConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.JWT.SecretKey) == "" {
		errs = append(errs, errors.New("jwt.secret_key (SECRET_KEY) is required"))
	}
	if c.JWT.Algorithm != "" && !strings.EqualFold(c.JWT.Algorithm, "HS256") {
		errs = append(errs, fmt.Errorf("jwt.algorithm %q is not supported, use HS256", c.JWT.Algorithm))
	}
	if c.JWT.AccessTokenExpireMinutes <= 0 || c.JWT.RefreshTokenExpireDays <= 0 || c.JWT.PasswordResetTokenExpireMinutes <= 0 {
		errs = append(errs, errors.New("jwt token lifetimes must be positive"))
	}
	if c.Security.MaxLoginAttempts <= 0 {
		errs = append(errs, errors.New("security.max_login_attempts must be positive"))
	}
	if c.Security.AccountLockoutMinutes <= 0 {
		errs = append(errs, errors.New("security.account_lockout_minutes must be positive"))
	}
	if c.Security.MaxResetAttempts <= 0 {
		errs = append(errs, errors.New("security.max_reset_attempts must be positive"))
	}
	if c.Security.PasswordHistorySize < 0 || c.Security.ProfileHistorySize < 0 {
		errs = append(errs, errors.New("password history sizes must not be negative"))
	}
	if !schemaName.MatchString(c.Postgres.Schema) {
		errs = append(errs, fmt.Errorf("postgres.schema %q must be a lowercase identifier", c.Postgres.Schema))
	}
	if c.Password.MinLength < 8 {
		errs = append(errs, errors.New("password.min_length must be at least 8"))
	}
	if c.Storage.MaxImageSize <= 0 {
		errs = append(errs, errors.New("storage.max_image_size must be positive"))
	}

	return errors.Join(errs...)
}

var schemaName = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// IsProduction reports whether the service runs with production settings.
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}
