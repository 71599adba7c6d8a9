package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	ServerAddr string
	PublicBase string // Absolute base URL used when generating manifests

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Arkiv entity store
	ArkivMode       string // "remote" or "memory" (injectable fake for dev/tests)
	ArkivGatewayURL string
	ArkivToken      string

	// Chain RPC and rental contract
	ChainRPCURL     string
	RentalContract  string
	ChainCallWindow int // seconds allowed per RPC call before the request is abandoned

	JWTSecret string

	// Cover art object storage
	MinioEndpoint   string
	MinioAccessKey  string
	MinioSecretKey  string
	MinioBucket     string
	MinioRegion     string
	MinioUseSSL     bool
	MinioPublicBase string // Base URL clients use to fetch covers

	UploadDir  string // Scratch directory for uploaded media before segmentation
	FFmpegPath string
	SegmentSec int // target segment duration in seconds
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		PublicBase: getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for credentials
		DBName:     getEnv("DB_NAME", "chainfm"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		ArkivMode:       getEnv("ARKIV_MODE", "remote"),
		ArkivGatewayURL: getEnv("ARKIV_GATEWAY_URL", "https://mendoza.hoodi.arkiv.network/rpc"),
		ArkivToken:      os.Getenv("ARKIV_TOKEN"),

		ChainRPCURL:     getEnv("CHAIN_RPC_URL", "https://mendoza-testnet-rpc.arkiv.network"),
		RentalContract:  os.Getenv("RENTAL_CONTRACT_ADDRESS"),
		ChainCallWindow: getEnvInt("CHAIN_CALL_WINDOW", 15),

		JWTSecret: getEnv("JWT_SECRET", "chainfm-dev-secret"),

		MinioEndpoint:   getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey:  getEnv("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:  os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:     getEnv("MINIO_BUCKET", "chainfm-covers"),
		MinioRegion:     getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:     getEnvBool("MINIO_USE_SSL", false),
		MinioPublicBase: getEnv("MINIO_PUBLIC_BASE", "http://127.0.0.1:9000"),

		UploadDir:  getEnv("UPLOAD_DIR", "uploads"),
		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),
		SegmentSec: getEnvInt("SEGMENT_SECONDS", 10),
	}
}
