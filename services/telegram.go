package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	apperrors "greenthumb/errors"
	"greenthumb/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// TelegramBroadcaster sends alerts to a Telegram chat
type TelegramBroadcaster struct {
	bot           *tgbotapi.BotAPI
	chatID        int64
	stickerFileID string
	logger        *zap.Logger
}

// ErrMissingSticker means the Telegram gateway has no distress sticker to send
var ErrMissingSticker = errors.New("TELEGRAM_STICKER_FILE_ID is required for the telegram alert gateway")

// NewTelegramBroadcaster authorizes the bot against the default Bot API endpoint
func NewTelegramBroadcaster(token, chatID, stickerFileID string, logger *zap.Logger) (*TelegramBroadcaster, error) {
	if token == "" || chatID == "" {
		return nil, apperrors.ErrMissingCredentials
	}
	if stickerFileID == "" {
		return nil, ErrMissingSticker
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %w", err)
	}
	return newTelegramBroadcaster(bot, chatID, stickerFileID, logger)
}

func newTelegramBroadcaster(bot *tgbotapi.BotAPI, chatID, stickerFileID string, logger *zap.Logger) (*TelegramBroadcaster, error) {
	if stickerFileID == "" {
		return nil, ErrMissingSticker
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %w", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	return &TelegramBroadcaster{
		bot:           bot,
		chatID:        id,
		stickerFileID: stickerFileID,
		logger:        logger,
	}, nil
}

// Broadcast sends the alert text, then the configured distress sticker.
// Telegram addresses stickers by file id, so the LINE package/sticker pair is ignored here.
func (ts *TelegramBroadcaster) Broadcast(ctx context.Context, msg models.AlertMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := tgbotapi.NewMessage(ts.chatID, msg.Text)
	text.DisableWebPagePreview = true

	if _, err := ts.bot.Send(text); err != nil {
		return fmt.Errorf("error sending telegram message: %w", err)
	}

	if msg.Sticker != nil {
		sticker := tgbotapi.NewSticker(ts.chatID, tgbotapi.FileID(ts.stickerFileID))
		if _, err := ts.bot.Send(sticker); err != nil {
			return fmt.Errorf("error sending telegram sticker: %w", err)
		}
	}

	ts.logger.Info("Telegram alert sent",
		zap.Int64("chat_id", ts.chatID),
		zap.Bool("with_sticker", msg.Sticker != nil))
	return nil
}

// SendStartupMessage announces that the dashboard is running
func (ts *TelegramBroadcaster) SendStartupMessage() error {
	msg := tgbotapi.NewMessage(ts.chatID,
		"🟢 <b>GreenThumb dashboard started</b>\n\n"+
			"🌿 Low humidity alerts are active for this chat.")
	msg.ParseMode = "HTML"

	_, err := ts.bot.Send(msg)
	return err
}
