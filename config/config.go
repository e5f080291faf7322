package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	HistoryBackendCSV      = "csv"
	HistoryBackendFirebase = "firebase"

	AlertGatewayLine     = "line"
	AlertGatewayTelegram = "telegram"
)

type Config struct {
	HTTPAddr      string
	Timezone      string
	GeminiAPIKey  string
	ReplyLanguage string

	// History log
	HistoryBackend             string
	HistoryFile                string
	HistoryDisplayLimit        int
	FirebaseDbUrl              string
	FirebaseServiceAccountJSON string
	FirebaseHistoryPath        string

	// Alert broadcast
	AlertGateway          string
	LineChannelToken      string
	LineAPIURL            string
	TelegramBotToken      string
	TelegramChatID        string
	TelegramStickerFileID string

	// Optional broker ingestion
	RabbitMQURL             string
	RabbitMQExchange        string
	RabbitMQReadingQueue    string
	RabbitMQEventRoutingKey string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		HTTPAddr:                   getEnv("HTTP_ADDR", ":8080"),
		Timezone:                   getEnv("TIMEZONE", "Asia/Taipei"),
		GeminiAPIKey:               getEnv("GEMINI_API_KEY", ""),
		ReplyLanguage:              getEnv("REPLY_LANGUAGE", "Traditional Chinese"),
		HistoryBackend:             strings.ToLower(getEnv("HISTORY_BACKEND", HistoryBackendCSV)),
		HistoryFile:                getEnv("HISTORY_FILE", "plant_history.csv"),
		HistoryDisplayLimit:        getEnvInt("HISTORY_DISPLAY_LIMIT", 7),
		FirebaseDbUrl:              getEnv("FIREBASE_DB_URL", ""),
		FirebaseServiceAccountJSON: getEnv("FIREBASE_SERVICE_ACCOUNT_JSON", ""),
		FirebaseHistoryPath:        getEnv("FIREBASE_HISTORY_PATH", "plant-history"),
		AlertGateway:               strings.ToLower(getEnv("ALERT_GATEWAY", AlertGatewayLine)),
		LineChannelToken:           getEnv("LINE_CHANNEL_ACCESS_TOKEN", ""),
		LineAPIURL:                 getEnv("LINE_API_URL", "https://api.line.me"),
		TelegramBotToken:           getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:             getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramStickerFileID:      getEnv("TELEGRAM_STICKER_FILE_ID", ""),
		RabbitMQURL:                getEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:           getEnv("RABBITMQ_EXCHANGE", "greenthumb"),
		RabbitMQReadingQueue:       getEnv("RABBITMQ_READING_QUEUE", "plant_readings"),
		RabbitMQEventRoutingKey:    getEnv("RABBITMQ_EVENT_ROUTING_KEY", "plant.diagnosis"),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the settings that have a fixed set of values
func (c *Config) Validate() error {
	switch c.HistoryBackend {
	case HistoryBackendCSV:
		if c.HistoryFile == "" {
			return fmt.Errorf("HISTORY_FILE is required for the csv history backend")
		}
	case HistoryBackendFirebase:
		if c.FirebaseDbUrl == "" || c.FirebaseServiceAccountJSON == "" {
			return fmt.Errorf("firebase history backend requires FIREBASE_DB_URL and FIREBASE_SERVICE_ACCOUNT_JSON")
		}
	default:
		return fmt.Errorf("unknown HISTORY_BACKEND %q", c.HistoryBackend)
	}

	switch c.AlertGateway {
	case AlertGatewayLine, AlertGatewayTelegram:
	default:
		return fmt.Errorf("unknown ALERT_GATEWAY %q", c.AlertGateway)
	}

	if c.HistoryDisplayLimit <= 0 {
		return fmt.Errorf("HISTORY_DISPLAY_LIMIT must be positive, got %d", c.HistoryDisplayLimit)
	}
	return nil
}

// LogFields returns the effective config for logging with secrets masked
func (c *Config) LogFields() []zap.Field {
	return []zap.Field{
		zap.String("http_addr", c.HTTPAddr),
		zap.String("timezone", c.Timezone),
		zap.String("gemini_api_key", mask(c.GeminiAPIKey)),
		zap.String("reply_language", c.ReplyLanguage),
		zap.String("history_backend", c.HistoryBackend),
		zap.String("history_file", c.HistoryFile),
		zap.Int("history_display_limit", c.HistoryDisplayLimit),
		zap.String("firebase_db_url", c.FirebaseDbUrl),
		zap.String("firebase_history_path", c.FirebaseHistoryPath),
		zap.String("alert_gateway", c.AlertGateway),
		zap.String("line_channel_token", mask(c.LineChannelToken)),
		zap.String("line_api_url", c.LineAPIURL),
		zap.String("telegram_bot_token", mask(c.TelegramBotToken)),
		zap.String("telegram_chat_id", c.TelegramChatID),
		zap.Bool("rabbitmq_enabled", c.RabbitMQURL != ""),
		zap.String("rabbitmq_exchange", c.RabbitMQExchange),
		zap.String("rabbitmq_reading_queue", c.RabbitMQReadingQueue),
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "****"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
