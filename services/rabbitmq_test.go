package services

import (
	"encoding/base64"
	"testing"
	"time"

	"greenthumb/models"

	"github.com/stretchr/testify/require"
)

func TestDecodeReadingMessage(t *testing.T) {
	msg, err := DecodeReadingMessage([]byte(`{"device_id":"pot-1","humidity":18,"temperature":27,"timestamp":"2026-10-15T08:00:00+08:00"}`))
	require.NoError(t, err)
	require.Equal(t, "pot-1", msg.DeviceID)
	require.Equal(t, 18, msg.Humidity)
	require.Equal(t, 27, msg.Temperature)
	require.False(t, msg.Timestamp.IsZero())
}

func TestDecodeReadingMessageDefaultsTimestamp(t *testing.T) {
	before := time.Now()
	msg, err := DecodeReadingMessage([]byte(`{"humidity":50,"temperature":20}`))
	require.NoError(t, err)
	require.False(t, msg.Timestamp.Before(before))
}

func TestDecodeReadingMessageRejects(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"humidity":150,"temperature":20}`,
		`{"humidity":50,"temperature":80}`,
	} {
		_, err := DecodeReadingMessage([]byte(body))
		require.Error(t, err, body)
	}
}

func TestReadingFromMessage(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	encoded := base64.StdEncoding.EncodeToString(png)
	// Line-wrapped the way some encoders emit it
	wrapped := encoded[:8] + "\n" + encoded[8:]

	reading, image, err := ReadingFromMessage(&models.ReadingMessage{Humidity: 12, Temperature: 30, ImageBase64: wrapped})
	require.NoError(t, err)
	require.Equal(t, models.SensorReading{Humidity: 12, Temperature: 30}, reading)
	require.NotNil(t, image)
	require.Equal(t, png, image.Data)
	require.Equal(t, "image/png", image.MimeType)

	_, image, err = ReadingFromMessage(&models.ReadingMessage{Humidity: 12, Temperature: 30})
	require.NoError(t, err)
	require.Nil(t, image)

	_, _, err = ReadingFromMessage(&models.ReadingMessage{Humidity: 12, Temperature: 30, ImageBase64: "%%%"})
	require.Error(t, err)
}
