package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	GrantOffline = "offline"
	GrantPerUser = "per-user"
)

type Config struct {
	AppEnv         string
	HTTPAddr       string
	MigrationsPath string

	// Supabase/hosted Postgres convenience:
	// - DATABASE_URL: runtime connection (often PgBouncer/pooler)
	// - DIRECT_URL: direct connection for migrations
	DatabaseURL string
	DirectURL   string

	// AppURL is the externally reachable URL of the app. Billing return URLs
	// and webhook addresses are built from it.
	AppURL string

	// RedisURL enables the plan cache when set.
	RedisURL string

	DB      DBConfig
	Log     LogConfig
	Session SessionConfig
	Shopify ShopifyConfig
	Billing BillingConfig
	Jobs    JobsConfig

	Webhooks   []WebhookConfig
	ScriptTags []ScriptTagConfig

	// AfterAuthenticate names the jobs run once OAuth completes.
	AfterAuthenticate []AfterAuthenticateJob
}

type DBConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
}

type LogConfig struct {
	Level  string
	Format string
}

type SessionConfig struct {
	Secret string
	Name   string
	Secure bool
	MaxAge int
}

type ShopifyConfig struct {
	APIKey     string
	APISecret  string
	GrantMode  string
	Scopes     []string
	APIVersion string
	APITimeout time.Duration

	// RedirectPath is the OAuth callback route, relative to AppURL.
	RedirectPath string

	// Namespace is stamped on shops at install when several apps share
	// one database.
	Namespace string

	// Credentials holds per-shop overrides of the app key/secret pair.
	Credentials map[string]Credentials
}

type Credentials struct {
	APIKey    string
	APISecret string
}

type BillingConfig struct {
	Enabled         bool
	FreemiumEnabled bool
	RedirectPath    string
	DefaultPlan     PlanDefaults
}

// PlanDefaults seeds the on-install plan.
type PlanDefaults struct {
	Type         string
	Name         string
	Price        string
	CappedAmount string
	Terms        string
	TrialDays    int
	Test         bool
}

type JobsConfig struct {
	WebhooksQueue   string
	ScriptTagsQueue string
	Workers         int
	Timeout         time.Duration
}

type WebhookConfig struct {
	Topic   string
	Address string
}

type ScriptTagConfig struct {
	Src   string
	Event string
}

type AfterAuthenticateJob struct {
	Job    string
	Inline bool
}

func Load() Config {
	// Convenience for local dev: load variables from .env if present.
	// In production, rely on real environment variables.
	_ = godotenv.Load()

	// Cloud Run sets PORT. Prefer it when HTTP_ADDR isn't explicitly set.
	httpAddr := os.Getenv("HTTP_ADDR")
	if httpAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			httpAddr = ":" + port
		} else {
			httpAddr = ":8081"
		}
	}

	appURL := strings.TrimRight(env("APP_URL", "http://localhost"+httpAddr), "/")

	return Config{
		AppEnv:         env("APP_ENV", "dev"),
		HTTPAddr:       httpAddr,
		MigrationsPath: os.Getenv("MIGRATIONS_PATH"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DirectURL:      os.Getenv("DIRECT_URL"),
		AppURL:         appURL,
		RedisURL:       os.Getenv("REDIS_URL"),
		DB: DBConfig{
			Host:     env("DB_HOST", "localhost"),
			Port:     env("DB_PORT", "5432"),
			Name:     env("DB_NAME", "shopifyapp"),
			User:     env("DB_USER", "shopifyapp"),
			Password: env("DB_PASSWORD", "shopifyapp"),
			SSLMode:  env("DB_SSLMODE", "disable"),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "json"),
		},
		Session: SessionConfig{
			Secret: env("SESSION_SECRET", "change-me-in-production"),
			Name:   env("SESSION_NAME", "shopify_app_session"),
			Secure: envBool("SESSION_SECURE", true),
			MaxAge: envInt("SESSION_MAX_AGE", 0),
		},
		Shopify: ShopifyConfig{
			APIKey:       os.Getenv("SHOPIFY_API_KEY"),
			APISecret:    os.Getenv("SHOPIFY_API_SECRET"),
			GrantMode:    grantMode(os.Getenv("SHOPIFY_API_GRANT_MODE")),
			Scopes:       envList("SHOPIFY_API_SCOPES", "read_products,write_products"),
			APIVersion:   env("SHOPIFY_API_VERSION", "2025-10"),
			APITimeout:   clampTimeout(envDuration("SHOPIFY_API_TIMEOUT", 20*time.Second)),
			RedirectPath: env("SHOPIFY_API_REDIRECT", "/authenticate"),
			Namespace:    os.Getenv("SHOPIFY_APP_NAMESPACE"),
			Credentials:  parseCredentials(envList("SHOPIFY_SHOP_CREDENTIALS", "")),
		},
		Billing: BillingConfig{
			Enabled:         envBool("SHOPIFY_BILLING_ENABLED", false),
			FreemiumEnabled: envBool("SHOPIFY_BILLING_FREEMIUM_ENABLED", false),
			RedirectPath:    env("SHOPIFY_BILLING_REDIRECT", "/billing/process"),
			DefaultPlan: PlanDefaults{
				Type:         env("SHOPIFY_BILLING_PLAN_TYPE", "recurring"),
				Name:         env("SHOPIFY_BILLING_PLAN_NAME", "Base Plan"),
				Price:        env("SHOPIFY_BILLING_PLAN_PRICE", "5.00"),
				CappedAmount: os.Getenv("SHOPIFY_BILLING_PLAN_CAPPED_AMOUNT"),
				Terms:        os.Getenv("SHOPIFY_BILLING_PLAN_TERMS"),
				TrialDays:    envInt("SHOPIFY_BILLING_PLAN_TRIAL_DAYS", 7),
				Test:         envBool("SHOPIFY_BILLING_PLAN_TEST", false),
			},
		},
		Jobs: JobsConfig{
			WebhooksQueue:   env("SHOPIFY_JOB_QUEUE_WEBHOOKS", "webhooks"),
			ScriptTagsQueue: env("SHOPIFY_JOB_QUEUE_SCRIPTTAGS", "scripttags"),
			Workers:         envInt("SHOPIFY_JOB_WORKERS", 2),
			Timeout:         envDuration("SHOPIFY_JOB_TIMEOUT", 30*time.Second),
		},
		Webhooks:   parseWebhooks(envList("SHOPIFY_WEBHOOKS", "")),
		ScriptTags: parseScriptTags(envList("SHOPIFY_SCRIPTTAGS", "")),

		AfterAuthenticate: parseAfterAuthenticate(envList("SHOPIFY_AFTER_AUTHENTICATE_JOBS", "")),
	}
}

// IsDev reports whether secrets may appear unredacted in logs.
func (c Config) IsDev() bool {
	return c.AppEnv == "dev"
}

// IsPerUser reports whether the app requests per-user (online) access tokens.
func (c ShopifyConfig) IsPerUser() bool {
	return c.GrantMode == GrantPerUser
}

// CredentialsFor resolves the API key/secret pair for a shop. Shops without an
// override use the app-wide pair.
func (c ShopifyConfig) CredentialsFor(domain string) (string, string) {
	if cr, ok := c.Credentials[strings.ToLower(domain)]; ok {
		return cr.APIKey, cr.APISecret
	}
	return c.APIKey, c.APISecret
}

func grantMode(v string) string {
	if strings.TrimSpace(strings.ToLower(v)) == GrantPerUser {
		return GrantPerUser
	}
	return GrantOffline
}

// The Admin API call timeout must stay within 10s..30s.
func clampTimeout(d time.Duration) time.Duration {
	switch {
	case d < 10*time.Second:
		return 10 * time.Second
	case d > 30*time.Second:
		return 30 * time.Second
	}
	return d
}

// parseCredentials reads entries shaped "shop.myshopify.com=key:secret".
func parseCredentials(entries []string) map[string]Credentials {
	out := map[string]Credentials{}
	for _, e := range entries {
		domain, pair, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		key, secret, ok := strings.Cut(pair, ":")
		if !ok || key == "" || secret == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(domain))] = Credentials{APIKey: key, APISecret: secret}
	}
	return out
}

// parseWebhooks reads entries shaped "app/uninstalled=https://app.example.com/webhook/app-uninstalled".
func parseWebhooks(entries []string) []WebhookConfig {
	var out []WebhookConfig
	for _, e := range entries {
		topic, addr, ok := strings.Cut(e, "=")
		if !ok || topic == "" || addr == "" {
			continue
		}
		out = append(out, WebhookConfig{Topic: strings.TrimSpace(topic), Address: strings.TrimSpace(addr)})
	}
	return out
}

// parseScriptTags reads entries shaped "https://cdn.example.com/app.js@onload".
// The event defaults to onload.
func parseScriptTags(entries []string) []ScriptTagConfig {
	var out []ScriptTagConfig
	for _, e := range entries {
		src, event, ok := strings.Cut(e, "@")
		if !ok || event == "" {
			event = "onload"
		}
		if src == "" {
			continue
		}
		out = append(out, ScriptTagConfig{Src: strings.TrimSpace(src), Event: strings.TrimSpace(event)})
	}
	return out
}

// parseAfterAuthenticate reads entries shaped "job" or "job@inline". Inline
// jobs run before the OAuth redirect, the rest go to the default queue.
func parseAfterAuthenticate(entries []string) []AfterAuthenticateJob {
	var out []AfterAuthenticateJob
	for _, e := range entries {
		name, mode, _ := strings.Cut(e, "@")
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		out = append(out, AfterAuthenticateJob{Job: name, Inline: strings.TrimSpace(mode) == "inline"})
	}
	return out
}

func env(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envList(key, fallbackCSV string) []string {
	v := os.Getenv(key)
	if v == "" {
		v = fallbackCSV
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
