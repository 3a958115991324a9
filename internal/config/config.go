package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	TokenSecret string
	// SessionTTL bounds bearer token validity from issuance.
	SessionTTL time.Duration
	// ProofWindow bounds how stale a signed proof's timestamp may be.
	ProofWindow time.Duration
	CORSOrigin  string
	// Content store (S3-compatible)
	StoreEndpoint  string
	StoreAccessKey string
	StoreSecretKey string
	StoreBucket    string
	StoreUseSSL    bool
	// Webhook providers
	AlchemySigningKey string
	QuickNodeToken    string
	// Redis - webhook delivery dedup cache, disabled when empty
	RedisURL string
}

func Load() Config {
	return Config{
		Addr:        getenv("API_ADDR", ":8585"),
		TokenSecret: getenv("INKPRESS_TOKEN_SECRET", "inkpress-dev-secret"),
		SessionTTL:  time.Duration(getenvInt("INKPRESS_SESSION_TTL_SECONDS", 7200)) * time.Second,
		ProofWindow: time.Duration(getenvInt("INKPRESS_PROOF_WINDOW_SECONDS", 60)) * time.Second,
		CORSOrigin:  getenv("INKPRESS_CORS_ORIGIN", "*"),

		StoreEndpoint:  getenv("STORE_ENDPOINT", "localhost:9000"),
		StoreAccessKey: getenv("STORE_ACCESS_KEY", "inkpress"),
		StoreSecretKey: getenv("STORE_SECRET_KEY", "inkpress"),
		StoreBucket:    getenv("STORE_BUCKET", "inkpress-content"),
		StoreUseSSL:    getenv("STORE_USE_SSL", "") == "true",

		AlchemySigningKey: getenv("ALCHEMY_SIGNING_KEY", ""),
		QuickNodeToken:    getenv("QUICKNODE_SECURITY_TOKEN", ""),

		// Redis - empty by default, dedup cache disabled if not configured
		RedisURL: getenv("REDIS_URL", ""),
	}
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
