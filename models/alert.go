package models

import (
	"fmt"
	"time"
)

// AlertOutcomeKind is the result of a low-humidity alert evaluation
type AlertOutcomeKind string

const (
	AlertNotTriggered         AlertOutcomeKind = "not_triggered"
	AlertSentWithSticker      AlertOutcomeKind = "sent_with_sticker"
	AlertSuppressedByCooldown AlertOutcomeKind = "suppressed_by_cooldown"
	AlertSendFailed           AlertOutcomeKind = "send_failed"
)

// AlertOutcome is what the notifier reports back to the dashboard
type AlertOutcome struct {
	Kind       AlertOutcomeKind `json:"kind"`
	Reason     error            `json:"-"`
	RetryAfter time.Duration    `json:"retry_after,omitempty"`
}

// Sticker is a package/sticker identifier pair sent alongside an alert
type Sticker struct {
	PackageID string `json:"package_id"`
	StickerID string `json:"sticker_id"`
}

// AlertMessage is the ordered set of parts broadcast for one alert
type AlertMessage struct {
	Text    string   `json:"text"`
	Sticker *Sticker `json:"sticker,omitempty"`
}

// GetOutcomeEmoji returns an emoji for the outcome
func (o *AlertOutcome) GetOutcomeEmoji() string {
	switch o.Kind {
	case AlertSentWithSticker:
		return "📣"
	case AlertSuppressedByCooldown:
		return "⏳"
	case AlertSendFailed:
		return "❌"
	default:
		return "🌿"
	}
}

// Notice renders the outcome for display
func (o *AlertOutcome) Notice() string {
	switch o.Kind {
	case AlertSentWithSticker:
		return "Low humidity alert broadcast"
	case AlertSuppressedByCooldown:
		return fmt.Sprintf("Alert cooldown active, next alert possible in %.0f seconds", o.RetryAfter.Seconds())
	case AlertSendFailed:
		if o.Reason != nil {
			return fmt.Sprintf("Alert broadcast failed: %v", o.Reason)
		}
		return "Alert broadcast failed"
	default:
		return "Humidity is fine, no alert needed"
	}
}
