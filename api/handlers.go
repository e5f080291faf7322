package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	apperrors "greenthumb/errors"
	"greenthumb/models"
	"greenthumb/services"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxUploadSize   = 10 * 1024 * 1024 // 10MB
	exportFileName  = "plant_history.csv"
	requestIDHeader = "X-Request-ID"
)

// DashboardHandlers serves the dashboard UI
type DashboardHandlers struct {
	sessions     *services.SessionService
	displayLimit int
	logger       *zap.Logger
}

type errorView struct {
	Type    apperrors.ErrorType `json:"type"`
	Message string              `json:"message"`
}

type alertView struct {
	Kind              models.AlertOutcomeKind `json:"kind"`
	Emoji             string                  `json:"emoji"`
	Notice            string                  `json:"notice"`
	RetryAfterSeconds int                     `json:"retry_after_seconds,omitempty"`
}

type analyzeResponse struct {
	RequestID string                `json:"request_id"`
	Reading   models.SensorReading  `json:"reading"`
	Diagnosis string                `json:"diagnosis,omitempty"`
	Alert     *alertView            `json:"alert,omitempty"`
	Record    *models.HistoryRecord `json:"record,omitempty"`
	Error     *errorView            `json:"error,omitempty"`
}

type cooldownResponse struct {
	Active            bool       `json:"active"`
	LastAlertAt       *time.Time `json:"last_alert_at,omitempty"`
	RetryAfterSeconds int64      `json:"retry_after_seconds,omitempty"`
}

func (h *DashboardHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Analyze takes humidity, temperature and an optional image as a multipart form
func (h *DashboardHandlers) Analyze(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set(requestIDHeader, requestID)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1024*1024)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil && err != http.ErrNotMultipart {
		respondWithError(w, apperrors.NewValidationError("invalid form", err))
		return
	}

	reading, err := parseReading(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	image, err := parseImage(r)
	if err != nil {
		respondWithError(w, err)
		return
	}

	result := h.sessions.Analyze(r.Context(), reading, image)

	resp := analyzeResponse{
		RequestID: requestID,
		Reading:   result.Reading,
		Diagnosis: result.Diagnosis,
		Record:    result.Record,
	}
	if result.Alert != nil {
		resp.Alert = &alertView{
			Kind:              result.Alert.Kind,
			Emoji:             result.Alert.GetOutcomeEmoji(),
			Notice:            result.Alert.Notice(),
			RetryAfterSeconds: int(result.Alert.RetryAfter / time.Second),
		}
	}

	status := http.StatusOK
	if result.Err != nil {
		status = apperrors.StatusCode(result.Err)
		resp.Error = &errorView{Type: apperrors.TypeOf(result.Err), Message: result.Err.Error()}
		h.logger.Warn("Dashboard action failed",
			zap.String("request_id", requestID),
			zap.Error(result.Err))
	}

	respondWithJSON(w, status, resp)
}

// ListDiagnoses returns this session's replies newest first
func (h *DashboardHandlers) ListDiagnoses(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.sessions.Diagnoses())
}

// ListHistory returns the most recent log records newest first
func (h *DashboardHandlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := h.displayLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondWithError(w, apperrors.NewValidationError("limit must be a positive integer", err))
			return
		}
		limit = n
	}

	records, err := services.MostRecent(r.Context(), h.sessions.History(), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

// ExportHistory streams the full log as a CSV download
func (h *DashboardHandlers) ExportHistory(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := services.ExportCSV(r.Context(), h.sessions.History(), &buf); err != nil {
		respondWithError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", exportFileName))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// GetCooldown reports whether a new alert could be sent right now
func (h *DashboardHandlers) GetCooldown(w http.ResponseWriter, r *http.Request) {
	state := h.sessions.Cooldown()
	resp := cooldownResponse{}

	if state.LastAlertUnix > 0 {
		last := time.Unix(state.LastAlertUnix, 0)
		resp.LastAlertAt = &last

		window := int64(services.AlertCooldown / time.Second)
		elapsed := h.sessions.Now().Unix() - state.LastAlertUnix
		if elapsed <= window {
			resp.Active = true
			resp.RetryAfterSeconds = window - elapsed + 1
		}
	}

	respondWithJSON(w, http.StatusOK, resp)
}

func parseReading(r *http.Request) (models.SensorReading, error) {
	humidity, err := strconv.Atoi(r.FormValue("humidity"))
	if err != nil {
		return models.SensorReading{}, apperrors.NewValidationError("humidity must be an integer", err)
	}
	temperature, err := strconv.Atoi(r.FormValue("temperature"))
	if err != nil {
		return models.SensorReading{}, apperrors.NewValidationError("temperature must be an integer", err)
	}
	return models.SensorReading{Humidity: humidity, Temperature: temperature}, nil
}

// parseImage reads the optional "image" part; the type is sniffed from the bytes
func parseImage(r *http.Request) (*models.PlantImage, error) {
	file, _, err := r.FormFile("image")
	if err == http.ErrMissingFile || err == http.ErrNotMultipart {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewValidationError("invalid image upload", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadSize+1))
	if err != nil {
		return nil, apperrors.NewValidationError("failed to read image", err)
	}
	if len(data) > maxUploadSize {
		return nil, apperrors.NewValidationError("image exceeds 10MB", nil)
	}
	if len(data) == 0 {
		return nil, nil
	}

	mimeType := http.DetectContentType(data)
	if !models.AllowedImageTypes[mimeType] {
		return nil, apperrors.NewValidationError("image must be a JPEG or PNG, got "+mimeType, nil)
	}
	return &models.PlantImage{Data: data, MimeType: mimeType}, nil
}

func respondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, err error) {
	respondWithJSON(w, apperrors.StatusCode(err), map[string]errorView{
		"error": {Type: apperrors.TypeOf(err), Message: err.Error()},
	})
}
