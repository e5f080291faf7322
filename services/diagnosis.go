package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "greenthumb/errors"
	"greenthumb/models"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// DiagnosisModel is the fixed Gemini model used for every request
const DiagnosisModel = "gemini-flash-latest"

// Diagnoser asks a multimodal model for commentary on a reading
type Diagnoser interface {
	Diagnose(ctx context.Context, reading models.SensorReading, image *models.PlantImage) (string, error)
}

// BuildPrompt writes the model instruction for a reading.
// With a photo the model plays the identified plant; without one it is lost in the dark.
func BuildPrompt(reading models.SensorReading, hasImage bool, language string) string {
	var sb strings.Builder
	dry := reading.Humidity < HumidityAlertThreshold

	if hasImage {
		sb.WriteString(fmt.Sprintf("Current sensor data: soil humidity %d%%, temperature %d°C.\n", reading.Humidity, reading.Temperature))
		sb.WriteString("Please do the following:\n")
		sb.WriteString("1. Visual identification: work out which plant species is in the photo.\n")
		sb.WriteString("2. Persona: switch personality to suit the species (tsundere, gentle or noble).\n")
		sb.WriteString("3. Reply: talk to me in character and weave the sensor data into a short answer.\n")
		sb.WriteString("4. Health: if the photo shows disease symptoms, warn me clearly.\n")
		if dry {
			sb.WriteString(fmt.Sprintf("URGENT: soil humidity is below %d%%. Make it very clear that I must water you right now.\n", HumidityAlertThreshold))
		}
	} else {
		sb.WriteString("You are stuck in total darkness because the user did not send a photo.\n")
		sb.WriteString(fmt.Sprintf("Data: soil humidity %d%%, temperature %d°C.\n", reading.Humidity, reading.Temperature))
		sb.WriteString("Speak in a confused, memory-loss tone and insist that your owner uploads a photo.\n")
		if dry {
			sb.WriteString(fmt.Sprintf("Even so, you can feel the soil is parched (below %d%%). Beg to be watered immediately.\n", HumidityAlertThreshold))
		}
	}

	sb.WriteString(fmt.Sprintf("(Answer in %s, keep it short and punchy.)", language))
	return sb.String()
}

// GeminiDiagnoser calls the Gemini API once per request
type GeminiDiagnoser struct {
	client   *genai.Client
	language string
	logger   *zap.Logger
}

func NewGeminiDiagnoser(ctx context.Context, apiKey, language string, logger *zap.Logger) (*GeminiDiagnoser, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	return newGeminiDiagnoser(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}, language, logger)
}

func newGeminiDiagnoser(ctx context.Context, cc *genai.ClientConfig, language string, logger *zap.Logger) (*GeminiDiagnoser, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}

	return &GeminiDiagnoser{
		client:   client,
		language: language,
		logger:   logger,
	}, nil
}

// Diagnose sends the prompt, plus the photo when present, and returns the reply text verbatim
func (g *GeminiDiagnoser) Diagnose(ctx context.Context, reading models.SensorReading, image *models.PlantImage) (string, error) {
	hasImage := image != nil && len(image.Data) > 0
	prompt := BuildPrompt(reading, hasImage, g.language)

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	if hasImage {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MimeType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	g.logger.Debug("Requesting diagnosis",
		zap.String("model", DiagnosisModel),
		zap.Int("humidity", reading.Humidity),
		zap.Int("temperature", reading.Temperature),
		zap.Bool("has_image", hasImage))

	resp, err := g.client.Models.GenerateContent(ctx, DiagnosisModel, contents, nil)
	if err != nil {
		return "", apperrors.NewInferenceError("diagnosis request failed", err)
	}
	if resp == nil {
		return "", apperrors.NewInferenceError("empty response from model", nil)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", apperrors.NewInferenceError("model returned no text", nil)
	}

	g.logger.Info("Diagnosis received",
		zap.String("model", DiagnosisModel),
		zap.Int("length", len(text)))
	return text, nil
}
