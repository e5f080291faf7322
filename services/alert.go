package services

import (
	"context"
	"fmt"
	"time"

	apperrors "greenthumb/errors"
	"greenthumb/models"

	"go.uber.org/zap"
)

const (
	// HumidityAlertThreshold is the soil humidity (percent) below which an alert fires
	HumidityAlertThreshold = 20
	// AlertCooldown is the minimum gap between two broadcasts
	AlertCooldown = 60 * time.Second
)

// Distress sticker sent with every low-humidity broadcast
var DistressSticker = models.Sticker{PackageID: "446", StickerID: "2008"}

// BroadcastGateway delivers an alert to a messaging channel
type BroadcastGateway interface {
	Broadcast(ctx context.Context, msg models.AlertMessage) error
}

// AlertNotifier applies the low-humidity rule with a cooldown
type AlertNotifier struct {
	gateway BroadcastGateway
	logger  *zap.Logger
}

func NewAlertNotifier(gateway BroadcastGateway, logger *zap.Logger) *AlertNotifier {
	return &AlertNotifier{
		gateway: gateway,
		logger:  logger,
	}
}

// Check runs the threshold and cooldown rules without sending anything.
// eligible is true when a broadcast should be attempted.
func (n *AlertNotifier) Check(reading models.SensorReading, state *models.CooldownState, now time.Time) (models.AlertOutcome, bool) {
	if reading.Humidity >= HumidityAlertThreshold {
		return models.AlertOutcome{Kind: models.AlertNotTriggered}, false
	}

	elapsed := now.Unix() - state.LastAlertUnix
	window := int64(AlertCooldown / time.Second)
	if elapsed <= window {
		return models.AlertOutcome{
			Kind:       models.AlertSuppressedByCooldown,
			RetryAfter: time.Duration(window-elapsed+1) * time.Second,
		}, false
	}

	return models.AlertOutcome{}, true
}

// Send broadcasts the alert and advances the cooldown only on success
func (n *AlertNotifier) Send(ctx context.Context, reading models.SensorReading, state *models.CooldownState, now time.Time) models.AlertOutcome {
	msg := BuildAlertMessage(reading)

	if err := n.gateway.Broadcast(ctx, msg); err != nil {
		n.logger.Error("Failed to broadcast low humidity alert",
			zap.Int("humidity", reading.Humidity),
			zap.Error(err))
		return models.AlertOutcome{
			Kind:   models.AlertSendFailed,
			Reason: apperrors.NewNotifyError("alert broadcast failed", err),
		}
	}

	state.LastAlertUnix = now.Unix()

	n.logger.Info("Low humidity alert broadcast",
		zap.Int("humidity", reading.Humidity),
		zap.Int("temperature", reading.Temperature),
		zap.Int64("last_alert_unix", state.LastAlertUnix))

	return models.AlertOutcome{Kind: models.AlertSentWithSticker}
}

// MaybeAlert evaluates the rule and broadcasts when it fires
func (n *AlertNotifier) MaybeAlert(ctx context.Context, reading models.SensorReading, state *models.CooldownState, now time.Time) models.AlertOutcome {
	outcome, eligible := n.Check(reading, state, now)
	if !eligible {
		if outcome.Kind == models.AlertSuppressedByCooldown {
			n.logger.Debug("Throttling low humidity alert",
				zap.Int("humidity", reading.Humidity),
				zap.Duration("retry_after", outcome.RetryAfter))
		}
		return outcome
	}
	return n.Send(ctx, reading, state, now)
}

// BuildAlertMessage creates the fixed alert text and distress sticker
func BuildAlertMessage(reading models.SensorReading) models.AlertMessage {
	sticker := DistressSticker
	return models.AlertMessage{
		Text: fmt.Sprintf(
			"🚨 Plant SOS 🚨\n💧 Soil humidity is down to %d%% (below %d%%).\n🥀 I'm drying out, please water me now!",
			reading.Humidity, HumidityAlertThreshold),
		Sticker: &sticker,
	}
}
