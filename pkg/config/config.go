package config

import (
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Email    EmailConfig
	Stripe   StripeConfig
	PhonePe  PhonePeConfig
	ChainPay ChainPayConfig
	Firebase FirebaseConfig
	Referral ReferralConfig
}

type ServerConfig struct {
	Port          string
	APIBaseURL    string
	ClientBaseURL string
}

type DatabaseConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
}

type RedisConfig struct {
	Addr     string
	Password string
}

type StorageConfig struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	CDNBaseURL string
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type PhonePeConfig struct {
	BaseURL    string
	MerchantID string
	SaltKey    string
	SaltIndex  string
}

type ChainPayConfig struct {
	BaseURL string
	APIKey  string
}

type FirebaseConfig struct {
	ProjectID string
	APIKey    string
}

type ReferralConfig struct {
	MinWithdrawal   decimal.Decimal
	BonusAmount     decimal.Decimal
	ShopURL         string
	ClaimWindowDays int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debugf("[Config] no .env file loaded: %v", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "3000"),
			APIBaseURL:    getEnv("API_BASE_URL", "http://localhost:3000/api"),
			ClientBaseURL: getEnv("CLIENT_BASE_URL", "http://localhost:5173"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DATABASE_URL", "postgres://postgres@localhost:5432/qrcard?sslmode=disable"),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-me"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Storage: StorageConfig{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			CDNBaseURL: getEnv("CDN_BASE_URL", "https://cdn.qrcard.app"),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", "QRCard <noreply@qrcard.app>"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		PhonePe: PhonePeConfig{
			BaseURL:    getEnv("PHONEPE_BASE_URL", "https://api-preprod.phonepe.com/apis/pg-sandbox"),
			MerchantID: getEnv("PHONEPE_MERCHANT_ID", ""),
			SaltKey:    getEnv("PHONEPE_SALT_KEY", ""),
			SaltIndex:  getEnv("PHONEPE_SALT_INDEX", "1"),
		},
		ChainPay: ChainPayConfig{
			BaseURL: getEnv("CHAINPAY_BASE_URL", "https://api.chainpay.io"),
			APIKey:  getEnv("CHAINPAY_API_KEY", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID: getEnv("FIREBASE_PROJECT_ID", ""),
			APIKey:    getEnv("FIREBASE_API_KEY", ""),
		},
		Referral: ReferralConfig{
			MinWithdrawal:   getDecimal("MIN_WITHDRAWAL_AMOUNT", "100"),
			BonusAmount:     getDecimal("REFERRAL_BONUS_AMOUNT", "50"),
			ShopURL:         getEnv("REWARD_SHOP_URL", "https://shop.qrcard.app/checkout"),
			ClaimWindowDays: getInt("REWARD_CLAIM_WINDOW_DAYS", 30),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}

func getDecimal(key, defaultValue string) decimal.Decimal {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil || d.IsNegative() {
		log.Warnf("[Config] invalid %s, using %s", key, defaultValue)
		return decimal.RequireFromString(defaultValue)
	}
	return d
}
