package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Firebase
	FirebaseProjectID string

	// Zoho OAuth / CRM
	ZohoClientID     string
	ZohoClientSecret string
	ZohoRedirectURL  string
	ZohoAccountsBase string // リージョンごとのアカウントサーバー（例: https://accounts.zoho.com）
	ZohoAPIBase      string // リージョンごとのCRM APIサーバー（例: https://www.zohoapis.com）

	// Object Storage（プライマリ）
	S3Bucket        string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicBaseURL string

	// Object Storage（セカンダリ、任意）
	SecondaryS3Bucket    string
	SecondaryS3Region    string
	SecondaryS3AccessKey string
	SecondaryS3SecretKey string
	SecondaryS3Endpoint  string // S3互換ストア用のカスタムエンドポイント

	// External HTTP
	ExternalTimeout time.Duration

	// Upload
	UploadMaxSize int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitUpload  int

	// Server
	ServerPort string
	BaseURL    string

	// CORS
	CORSAllowedOrigin string
}

// ZohoConfigured はZoho連携に必要な設定が揃っているかどうかを返す。
func (c *Config) ZohoConfigured() bool {
	return c.ZohoClientID != "" && c.ZohoClientSecret != "" && c.ZohoRedirectURL != ""
}

// SecondaryStoreConfigured はセカンダリのオブジェクトストアが設定されているかどうかを返す。
func (c *Config) SecondaryStoreConfigured() bool {
	return c.SecondaryS3Bucket != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.FirebaseProjectID = os.Getenv("FIREBASE_PROJECT_ID")
	if cfg.FirebaseProjectID == "" {
		missing = append(missing, "FIREBASE_PROJECT_ID")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ZohoClientID = os.Getenv("ZOHO_CLIENT_ID")
	cfg.ZohoClientSecret = os.Getenv("ZOHO_CLIENT_SECRET")
	cfg.ZohoRedirectURL = os.Getenv("ZOHO_REDIRECT_URL")
	cfg.ZohoAccountsBase = getEnvString("ZOHO_ACCOUNTS_BASE", "https://accounts.zoho.com")
	cfg.ZohoAPIBase = getEnvString("ZOHO_API_BASE", "https://www.zohoapis.com")

	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.S3Region = getEnvString("S3_REGION", "us-east-1")
	cfg.S3AccessKey = os.Getenv("S3_ACCESS_KEY")
	cfg.S3SecretKey = os.Getenv("S3_SECRET_KEY")
	cfg.S3PublicBaseURL = os.Getenv("S3_PUBLIC_BASE_URL")

	cfg.SecondaryS3Bucket = os.Getenv("SECONDARY_S3_BUCKET")
	cfg.SecondaryS3Region = getEnvString("SECONDARY_S3_REGION", "us-east-1")
	cfg.SecondaryS3AccessKey = os.Getenv("SECONDARY_S3_ACCESS_KEY")
	cfg.SecondaryS3SecretKey = os.Getenv("SECONDARY_S3_SECRET_KEY")
	cfg.SecondaryS3Endpoint = os.Getenv("SECONDARY_S3_ENDPOINT")

	cfg.ExternalTimeout = getEnvDuration("EXTERNAL_TIMEOUT", 10*time.Second)
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", 10485760)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitUpload = getEnvInt("RATE_LIMIT_UPLOAD", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
