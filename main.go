package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greenthumb/api"
	"greenthumb/config"
	"greenthumb/log"
	"greenthumb/models"
	"greenthumb/services"

	"go.uber.org/zap"
)

func main() {
	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("Failed to load timezone", zap.String("timezone", cfg.Timezone), zap.Error(err))
	}
	time.Local = loc

	logger.Info("Configuration loaded", cfg.LogFields()...)

	if cfg.GeminiAPIKey == "" {
		logger.Fatal("GEMINI_API_KEY is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	history, err := services.OpenHistoryStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize history store", zap.Error(err))
	}

	gateway, err := newAlertGateway(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize alert gateway", zap.Error(err))
	}

	diagnoser, err := services.NewGeminiDiagnoser(ctx, cfg.GeminiAPIKey, cfg.ReplyLanguage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize diagnosis client", zap.Error(err))
	}

	dashboard := services.NewDashboard(diagnoser, services.NewAlertNotifier(gateway, logger), history, logger)
	sessions := services.NewSessionService(dashboard)

	var rabbitMQService *services.RabbitMQService
	if cfg.RabbitMQURL != "" {
		rabbitMQService, err = services.NewRabbitMQService(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to initialize RabbitMQ service", zap.Error(err))
		}
		dashboard.SetPublisher(rabbitMQService)
		go consumeReadings(ctx, rabbitMQService, sessions, logger)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(sessions, cfg.HistoryDisplayLimit, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Plant dashboard listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("Shutdown signal received, stopping services")
	case err := <-serverErr:
		logger.Error("HTTP server failed", zap.Error(err))
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown timed out", zap.Error(err))
	}

	if rabbitMQService != nil {
		if err := rabbitMQService.Close(); err != nil {
			logger.Error("Error closing RabbitMQ service", zap.Error(err))
		} else {
			logger.Info("RabbitMQ service closed")
		}
	}

	logger.Info("Plant dashboard stopped")
}

func newAlertGateway(cfg *config.Config, logger *zap.Logger) (services.BroadcastGateway, error) {
	if cfg.AlertGateway == config.AlertGatewayTelegram {
		telegram, err := services.NewTelegramBroadcaster(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.TelegramStickerFileID, logger)
		if err != nil {
			return nil, err
		}
		if err := telegram.SendStartupMessage(); err != nil {
			logger.Warn("Failed to send startup message", zap.Error(err))
		}
		return telegram, nil
	}

	if cfg.LineChannelToken == "" {
		// Alerts still get attempted and surface as send_failed
		logger.Warn("LINE_CHANNEL_ACCESS_TOKEN is not set")
	}
	return services.NewLineBroadcaster(logger, cfg.LineAPIURL, cfg.LineChannelToken, &http.Client{Timeout: 10 * time.Second})
}

// consumeReadings runs broker readings through the same session as the UI
func consumeReadings(ctx context.Context, rabbitMQService *services.RabbitMQService, sessions *services.SessionService, logger *zap.Logger) {
	readingChan := make(chan *models.ReadingMessage, 16)

	go func() {
		if err := rabbitMQService.Consume(ctx, readingChan); err != nil {
			logger.Error("RabbitMQ consumer stopped", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-readingChan:
			reading, image, err := services.ReadingFromMessage(msg)
			if err != nil {
				logger.Error("Invalid reading message",
					zap.String("device_id", msg.DeviceID),
					zap.Error(err))
				continue
			}

			result := sessions.Analyze(ctx, reading, image)
			if result.Err != nil {
				logger.Error("Broker reading failed",
					zap.String("device_id", msg.DeviceID),
					zap.Error(result.Err))
			}
		}
	}
}
