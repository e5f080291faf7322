package services

import (
	"context"
	"fmt"
	"net/http"

	apperrors "greenthumb/errors"
	"greenthumb/models"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"go.uber.org/zap"
)

// LineBroadcaster sends alerts through the LINE Messaging API broadcast endpoint
type LineBroadcaster struct {
	logger *zap.Logger
	api    *messaging_api.MessagingApiAPI
}

// NewLineBroadcaster creates a LINE gateway against apiURL. An empty token makes
// every broadcast fail with ErrMissingCredentials.
func NewLineBroadcaster(logger *zap.Logger, apiURL, token string, httpClient *http.Client) (*LineBroadcaster, error) {
	l := &LineBroadcaster{logger: logger}
	if token == "" {
		return l, nil
	}

	opts := []messaging_api.MessagingApiAPIOption{messaging_api.WithEndpoint(apiURL)}
	if httpClient != nil {
		opts = append(opts, messaging_api.WithHTTPClient(httpClient))
	}
	api, err := messaging_api.NewMessagingApiAPI(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("error creating LINE messaging client: %w", err)
	}
	l.api = api
	return l, nil
}

// Broadcast posts the text message followed by the sticker.
// Only 200 OK counts as delivered.
func (l *LineBroadcaster) Broadcast(ctx context.Context, msg models.AlertMessage) error {
	if l.api == nil {
		return apperrors.ErrMissingCredentials
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	messages := []messaging_api.MessageInterface{
		messaging_api.TextMessage{Text: msg.Text},
	}
	if msg.Sticker != nil {
		messages = append(messages, messaging_api.StickerMessage{
			PackageId: msg.Sticker.PackageID,
			StickerId: msg.Sticker.StickerID,
		})
	}

	retryKey := uuid.NewString()
	resp, _, err := l.api.BroadcastWithHttpInfo(&messaging_api.BroadcastRequest{Messages: messages}, retryKey)
	if err != nil {
		l.logger.Error("Failed to send LINE broadcast",
			zap.String("retry_key", retryKey),
			zap.Error(err))
		return fmt.Errorf("line broadcast failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		l.logger.Error("LINE broadcast API returned unexpected status",
			zap.Int("status_code", resp.StatusCode),
			zap.String("retry_key", retryKey))
		return fmt.Errorf("line broadcast API error: %s", resp.Status)
	}

	l.logger.Info("LINE broadcast sent",
		zap.Int("message_parts", len(messages)),
		zap.String("retry_key", retryKey))
	return nil
}
