package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database（未設定の場合はファイルバックエンドを使用する）
	DatabaseURL string

	// File backend
	DataDir string

	// OAuth（3つすべて設定された場合のみGoogleログインが有効になる）
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string
	GoogleEnabled      bool

	// Session
	SessionMaxAge int

	// Quota
	DefaultMaxMenus int

	// Rate Limit
	RateLimitGeneral int
	RateLimitPublish int

	// Worker
	SessionSweepInterval time.Duration

	// Admin（小文字正規化済みメールアドレスのリスト）
	AdminEmails []string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数はないが、Google OAuthの環境変数が部分的にのみ
// 設定されている場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.DataDir = getEnvString("DATA_DIR", "./data")

	// Google OAuthは全部設定か全部未設定のどちらかのみ許容する
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")

	var missing []string
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}
	switch len(missing) {
	case 0:
		cfg.GoogleEnabled = true
	case 3:
		cfg.GoogleEnabled = false
	default:
		return nil, fmt.Errorf("partial Google OAuth configuration, missing: %v", missing)
	}

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.DefaultMaxMenus = getEnvInt("DEFAULT_MAX_MENUS", 3)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPublish = getEnvInt("RATE_LIMIT_PUBLISH", 10)
	cfg.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour)
	cfg.AdminEmails = splitEmails(os.Getenv("ADMIN_EMAILS"))
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// IsAdmin は指定メールアドレスが管理者リストに含まれるかを返す。
// 比較は小文字正規化して行う。
func (c *Config) IsAdmin(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, admin := range c.AdminEmails {
		if admin == email {
			return true
		}
	}
	return false
}

// splitEmails はカンマ区切りのメールアドレスリストを分解し、小文字正規化する。
func splitEmails(v string) []string {
	if v == "" {
		return nil
	}
	var emails []string
	for _, e := range strings.Split(v, ",") {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			emails = append(emails, e)
		}
	}
	return emails
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
