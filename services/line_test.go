package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "greenthumb/errors"
	"greenthumb/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const lineBroadcastPath = "/v2/bot/message/broadcast"

// lineWireMessage is one entry of the broadcast body as LINE receives it
type lineWireMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	PackageID string `json:"packageId,omitempty"`
	StickerID string `json:"stickerId,omitempty"`
}

type lineWireBody struct {
	Messages []lineWireMessage `json:"messages"`
}

func newTestLineBroadcaster(t *testing.T, url, token string, client *http.Client) *LineBroadcaster {
	gw, err := NewLineBroadcaster(zap.NewNop(), url, token, client)
	require.NoError(t, err)
	return gw
}

func TestLineBroadcastPayload(t *testing.T) {
	var got lineWireBody
	var retryKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, lineBroadcastPath, r.URL.Path)
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		require.Contains(t, r.Header.Get("Content-Type"), "application/json")
		retryKey = r.Header.Get("X-Line-Retry-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	gw := newTestLineBroadcaster(t, srv.URL+"/", "secret-token", srv.Client())
	err := gw.Broadcast(context.Background(), BuildAlertMessage(models.SensorReading{Humidity: 12, Temperature: 31}))
	require.NoError(t, err)

	_, err = uuid.Parse(retryKey)
	require.NoError(t, err)

	require.Len(t, got.Messages, 2)
	require.Equal(t, "text", got.Messages[0].Type)
	require.Contains(t, got.Messages[0].Text, "12%")
	require.Equal(t, lineWireMessage{Type: "sticker", PackageID: DistressSticker.PackageID, StickerID: DistressSticker.StickerID}, got.Messages[1])
}

func TestLineBroadcastTextOnly(t *testing.T) {
	var got lineWireBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	gw := newTestLineBroadcaster(t, srv.URL, "token", srv.Client())
	require.NoError(t, gw.Broadcast(context.Background(), models.AlertMessage{Text: "hello"}))
	require.Len(t, got.Messages, 1)
	require.Equal(t, "text", got.Messages[0].Type)
}

func TestLineBroadcastErrorStatus(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			w.Write([]byte(`{"message":"nope"}`))
		}))

		gw := newTestLineBroadcaster(t, srv.URL, "token", srv.Client())
		err := gw.Broadcast(context.Background(), models.AlertMessage{Text: "hello"})
		require.Error(t, err, "status %d", status)
		require.Contains(t, err.Error(), "nope")
		srv.Close()
	}
}

func TestLineBroadcastOnlyOKCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	gw := newTestLineBroadcaster(t, srv.URL, "token", srv.Client())
	err := gw.Broadcast(context.Background(), models.AlertMessage{Text: "hello"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "202")
}

func TestLineBroadcastTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	gw := newTestLineBroadcaster(t, url, "token", nil)
	require.Error(t, gw.Broadcast(context.Background(), models.AlertMessage{Text: "hello"}))
}

func TestLineBroadcastMissingToken(t *testing.T) {
	gw := newTestLineBroadcaster(t, "https://api.line.me", "", nil)
	err := gw.Broadcast(context.Background(), models.AlertMessage{Text: "hello"})
	require.ErrorIs(t, err, apperrors.ErrMissingCredentials)
}
