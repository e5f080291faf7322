package services

import (
	"context"
	"strings"
	"sync"
	"time"

	apperrors "greenthumb/errors"
	"greenthumb/models"

	"go.uber.org/zap"
)

// EventPublisher receives every record after it reaches the log
type EventPublisher interface {
	PublishRecord(ctx context.Context, record models.HistoryRecord) error
}

// Dashboard runs one user action: alert check, diagnosis, logging
type Dashboard struct {
	diagnoser Diagnoser
	notifier  *AlertNotifier
	history   HistoryStore
	publisher EventPublisher
	now       func() time.Time
	logger    *zap.Logger
}

func NewDashboard(diagnoser Diagnoser, notifier *AlertNotifier, history HistoryStore, logger *zap.Logger) *Dashboard {
	return &Dashboard{
		diagnoser: diagnoser,
		notifier:  notifier,
		history:   history,
		now:       time.Now,
		logger:    logger,
	}
}

// SetPublisher wires an optional event sink for appended records
func (d *Dashboard) SetPublisher(p EventPublisher) {
	d.publisher = p
}

// SetClock replaces time.Now
func (d *Dashboard) SetClock(now func() time.Time) {
	d.now = now
}

// History returns the store the dashboard appends to
func (d *Dashboard) History() HistoryStore {
	return d.history
}

// Analyze handles one button press against session.
// A failed diagnosis stops the action before any alert is sent or record written.
// A failed broadcast is reported in the outcome and does not stop the action.
func (d *Dashboard) Analyze(ctx context.Context, session *models.Session, reading models.SensorReading, image *models.PlantImage) *models.ActionResult {
	result := &models.ActionResult{Reading: reading}

	if err := reading.Validate(); err != nil {
		result.Err = apperrors.NewValidationError("invalid sensor reading", err)
		return result
	}
	if image != nil && !models.AllowedImageTypes[image.MimeType] {
		result.Err = apperrors.NewValidationError("unsupported image type "+image.MimeType, nil)
		return result
	}

	now := d.now().Truncate(time.Second)

	outcome, eligible := d.notifier.Check(reading, &session.Cooldown, now)

	text, err := d.diagnoser.Diagnose(ctx, reading, image)
	if err != nil {
		if !apperrors.IsInference(err) {
			err = apperrors.NewInferenceError("diagnosis request failed", err)
		}
		d.logger.Error("Diagnosis failed",
			zap.Int("humidity", reading.Humidity),
			zap.Int("temperature", reading.Temperature),
			zap.Error(err))
		result.Err = err
		if !eligible {
			result.Alert = &outcome
		}
		return result
	}
	// CSV reads fold CRLF into LF, so store the folded form everywhere
	text = strings.ReplaceAll(text, "\r\n", "\n")
	result.Diagnosis = text
	// The row is stamped when the reply arrives; now stays the cooldown clock.
	stamped := d.now().Truncate(time.Second)

	if eligible {
		outcome = d.notifier.Send(ctx, reading, &session.Cooldown, now)
	}
	result.Alert = &outcome

	session.Diagnoses = append(session.Diagnoses, models.DiagnosisResult{
		Text:      text,
		Reading:   reading,
		HasImage:  image != nil,
		CreatedAt: stamped,
	})

	record := models.HistoryRecord{
		Timestamp:   stamped,
		Humidity:    reading.Humidity,
		Temperature: reading.Temperature,
		Diagnosis:   text,
	}
	if err := d.history.Append(ctx, record); err != nil {
		if !apperrors.IsStore(err) {
			err = apperrors.NewStoreError("failed to append history record", err)
		}
		d.logger.Error("Failed to write history record", zap.Error(err))
		result.Err = err
		return result
	}
	result.Record = &record

	if d.publisher != nil {
		if err := d.publisher.PublishRecord(ctx, record); err != nil {
			d.logger.Warn("Failed to publish history record", zap.Error(err))
		}
	}

	d.logger.Info("Diagnosis recorded",
		zap.Int("humidity", reading.Humidity),
		zap.Int("temperature", reading.Temperature),
		zap.Bool("has_image", image != nil),
		zap.String("alert", string(outcome.Kind)))
	return result
}

// SessionService owns the single dashboard session and runs one action at a time
type SessionService struct {
	dashboard *Dashboard
	session   *models.Session
	mu        sync.Mutex
}

func NewSessionService(dashboard *Dashboard) *SessionService {
	return &SessionService{
		dashboard: dashboard,
		session:   models.NewSession(),
	}
}

// Analyze runs an action on the shared session
func (s *SessionService) Analyze(ctx context.Context, reading models.SensorReading, image *models.PlantImage) *models.ActionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dashboard.Analyze(ctx, s.session, reading, image)
}

// Diagnoses returns the session replies newest first
func (s *SessionService) Diagnoses() []models.DiagnosisResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.RecentDiagnoses()
}

// Cooldown returns a copy of the current cooldown state
func (s *SessionService) Cooldown() models.CooldownState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Cooldown
}

// History returns the log behind the dashboard
func (s *SessionService) History() HistoryStore {
	return s.dashboard.History()
}

// Now returns the dashboard clock
func (s *SessionService) Now() time.Time {
	return s.dashboard.now()
}
