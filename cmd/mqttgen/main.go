package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"greenthumb/models"
	"greenthumb/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	interval   = flag.Duration("interval", 30*time.Second, "Time between readings")
	deviceID   = flag.String("device", "POT-MOCK-001", "Device ID for mock data")
	dry        = flag.Float64("dry", 0.2, "Probability of a dry-soil reading (0.0-1.0)")
	imagePath  = flag.String("image", "", "Optional JPEG or PNG attached to every reading")
	mqttBroker = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser   = flag.String("user", "greenthumb", "MQTT username")
	mqttPass   = flag.String("pass", "", "MQTT password")
	mqttTopic  = flag.String("topic", "plant_readings", "MQTT topic to publish to")
)

type MockReadingGenerator struct {
	deviceID       string
	dryProbability float64
	baseHumidity   int
	baseTemp       int
	image          string
	imageType      string
}

func NewMockReadingGenerator(deviceID string, dryProb float64, image []byte) *MockReadingGenerator {
	g := &MockReadingGenerator{
		deviceID:       deviceID,
		dryProbability: dryProb,
		baseHumidity:   55,
		baseTemp:       25,
	}
	if len(image) > 0 {
		g.image = base64.StdEncoding.EncodeToString(image)
		g.imageType = http.DetectContentType(image)
	}
	return g
}

// GenerateReading produces a reading inside the slider ranges
func (m *MockReadingGenerator) GenerateReading() *models.ReadingMessage {
	humidity := m.baseHumidity + rand.Intn(21) - 10
	if rand.Float64() < m.dryProbability {
		humidity = rand.Intn(services.HumidityAlertThreshold)
	}
	temperature := m.baseTemp + rand.Intn(7) - 3

	return &models.ReadingMessage{
		DeviceID:    m.deviceID,
		Humidity:    clamp(humidity, models.HumidityMin, models.HumidityMax),
		Temperature: clamp(temperature, models.TemperatureMin, models.TemperatureMax),
		ImageBase64: m.image,
		ImageType:   m.imageType,
		Timestamp:   time.Now(),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	var image []byte
	if *imagePath != "" {
		data, err := os.ReadFile(*imagePath)
		if err != nil {
			logger.Fatal("Failed to read image", zap.String("path", *imagePath), zap.Error(err))
		}
		if !models.AllowedImageTypes[http.DetectContentType(data)] {
			logger.Fatal("Image must be a JPEG or PNG", zap.String("path", *imagePath))
		}
		image = data
	}

	logger.Info("MQTT plant reading generator started",
		zap.String("device_id", *deviceID),
		zap.Duration("interval", *interval),
		zap.Float64("dry_probability", *dry),
		zap.Bool("with_image", image != nil),
		zap.String("mqtt_broker", *mqttBroker),
		zap.String("mqtt_topic", *mqttTopic),
	)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID(fmt.Sprintf("%s-generator", *deviceID))
	opts.SetUsername(*mqttUser)
	opts.SetPassword(*mqttPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	mqttClient := mqtt.NewClient(opts)
	if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	defer mqttClient.Disconnect(250)

	gen := NewMockReadingGenerator(*deviceID, *dry, image)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping generator")
		cancel()
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	sent, dryCount := 0, 0
	for {
		select {
		case <-ctx.Done():
			logger.Info("Generator stopped",
				zap.Int("total_messages", sent),
				zap.Int("dry_readings", dryCount))
			return

		case <-ticker.C:
			reading := gen.GenerateReading()

			payload, err := json.Marshal(reading)
			if err != nil {
				logger.Error("Failed to marshal reading", zap.Error(err))
				continue
			}

			token := mqttClient.Publish(*mqttTopic, 1, false, payload)
			if token.Wait() && token.Error() != nil {
				logger.Error("Failed to publish MQTT message",
					zap.Error(token.Error()),
					zap.Int("message_count", sent))
				continue
			}

			sent++
			if reading.Humidity < services.HumidityAlertThreshold {
				dryCount++
			}
			logger.Debug("Published reading",
				zap.Int("humidity", reading.Humidity),
				zap.Int("temperature", reading.Temperature))
		}
	}
}
