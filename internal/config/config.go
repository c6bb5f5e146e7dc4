package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries everything the bot reads from the environment.
type Config struct {
	TelegramToken    string
	MongoURI         string
	MongoDB          string
	Port             string
	JWTSecret        string
	SessionTTL       time.Duration
	SupportLine      string
	MpesaConsumerKey string
	MpesaSecret      string
	MpesaPasskey     string
	MpesaShortcode   string
	MpesaBaseURL     string
	MpesaCallbackURL string
}

// Load reads the environment. Call godotenv.Load before this in main.
func Load() (*Config, error) {
	cfg := &Config{
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		MongoURI:         os.Getenv("MONGOURI"),
		MongoDB:          getEnv("MONGO_DB", "bingwa"),
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		SessionTTL:       time.Duration(getEnvInt("SESSION_TTL_MINUTES", 10)) * time.Minute,
		SupportLine:      getEnv("SUPPORT_LINE", "0743518481"),
		MpesaConsumerKey: os.Getenv("MPESA_CONSUMER_KEY"),
		MpesaSecret:      os.Getenv("MPESA_CONSUMER_SECRET"),
		MpesaPasskey:     os.Getenv("MPESA_PASSKEY"),
		MpesaShortcode:   os.Getenv("MPESA_BUSINESS_SHORTCODE"),
		MpesaBaseURL:     getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
		MpesaCallbackURL: os.Getenv("MPESA_CALLBACK_URL"),
	}

	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGOURI not set")
	}
	if cfg.MpesaConsumerKey == "" || cfg.MpesaSecret == "" {
		return nil, fmt.Errorf("MPESA_CONSUMER_KEY or MPESA_CONSUMER_SECRET not set")
	}
	if cfg.MpesaShortcode == "" || cfg.MpesaPasskey == "" {
		return nil, fmt.Errorf("MPESA_BUSINESS_SHORTCODE or MPESA_PASSKEY not set")
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}
