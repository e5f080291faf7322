package models

import (
	"fmt"
	"time"
)

// Valid ranges for the dashboard sliders
const (
	HumidityMin    = 0
	HumidityMax    = 100
	TemperatureMin = 10
	TemperatureMax = 40
)

// SensorReading is the pair of values supplied with every user action
type SensorReading struct {
	Humidity    int `json:"humidity"`
	Temperature int `json:"temperature"`
}

// Validate checks the reading against the slider ranges
func (r SensorReading) Validate() error {
	if r.Humidity < HumidityMin || r.Humidity > HumidityMax {
		return fmt.Errorf("humidity %d%% out of range [%d, %d]", r.Humidity, HumidityMin, HumidityMax)
	}
	if r.Temperature < TemperatureMin || r.Temperature > TemperatureMax {
		return fmt.Errorf("temperature %d°C out of range [%d, %d]", r.Temperature, TemperatureMin, TemperatureMax)
	}
	return nil
}

// PlantImage is an optional photo attached to a diagnosis request
type PlantImage struct {
	Data     []byte
	MimeType string
}

// Accepted photo types, matching the dashboard's uploader
var AllowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// HistoryRecord is one row of the health log. Immutable once written.
type HistoryRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Humidity    int       `json:"humidity"`
	Temperature int       `json:"temperature"`
	Diagnosis   string    `json:"diagnosis"`
}

// DiagnosisResult is a model reply kept for the lifetime of a session
type DiagnosisResult struct {
	Text      string        `json:"text"`
	Reading   SensorReading `json:"reading"`
	HasImage  bool          `json:"has_image"`
	CreatedAt time.Time     `json:"created_at"`
}

// CooldownState tracks the last successful alert broadcast.
// LastAlertUnix is epoch seconds; zero means no alert was ever sent.
type CooldownState struct {
	LastAlertUnix int64 `json:"last_alert_unix"`
}

// Session is the per-process dashboard state handed to each action
type Session struct {
	Cooldown  CooldownState
	Diagnoses []DiagnosisResult
}

// NewSession creates an empty session
func NewSession() *Session {
	return &Session{}
}

// RecentDiagnoses returns the session replies newest first
func (s *Session) RecentDiagnoses() []DiagnosisResult {
	out := make([]DiagnosisResult, 0, len(s.Diagnoses))
	for i := len(s.Diagnoses) - 1; i >= 0; i-- {
		out = append(out, s.Diagnoses[i])
	}
	return out
}

// ActionResult is everything one button press produces.
// Alert is nil when the action stopped before the alert step.
// Err carries an inference, validation or store error.
type ActionResult struct {
	Reading   SensorReading  `json:"reading"`
	Alert     *AlertOutcome  `json:"alert,omitempty"`
	Diagnosis string         `json:"diagnosis,omitempty"`
	Record    *HistoryRecord `json:"record,omitempty"`
	Err       error          `json:"-"`
}

// ReadingMessage is the broker wire format for a reading
type ReadingMessage struct {
	DeviceID    string    `json:"device_id,omitempty"`
	Humidity    int       `json:"humidity"`
	Temperature int       `json:"temperature"`
	ImageBase64 string    `json:"image_base64,omitempty"`
	ImageType   string    `json:"image_type,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
