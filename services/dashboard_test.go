package services

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	apperrors "greenthumb/errors"
	"greenthumb/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDiagnoser struct {
	calls  int
	images []*models.PlantImage
	err    error
	reply  string
	// during runs while the request is in flight
	during func()
}

func (d *fakeDiagnoser) Diagnose(_ context.Context, reading models.SensorReading, image *models.PlantImage) (string, error) {
	d.calls++
	d.images = append(d.images, image)
	if d.during != nil {
		d.during()
	}
	if d.err != nil {
		return "", d.err
	}
	if d.reply != "" {
		return d.reply, nil
	}
	if image == nil {
		return "Where am I? Send me a photo!", nil
	}
	return "A fern, and a thirsty one.", nil
}

type failingStore struct{}

func (failingStore) Append(context.Context, models.HistoryRecord) error {
	return errors.New("disk full")
}

func (failingStore) LoadAll(context.Context) ([]models.HistoryRecord, error) {
	return nil, errors.New("disk full")
}

type recordingPublisher struct {
	records []models.HistoryRecord
}

func (p *recordingPublisher) PublishRecord(_ context.Context, record models.HistoryRecord) error {
	p.records = append(p.records, record)
	return nil
}

type dashboardFixture struct {
	dashboard *Dashboard
	diagnoser *fakeDiagnoser
	gateway   *fakeGateway
	store     *CSVHistoryStore
	clock     time.Time
}

func newDashboardFixture(t *testing.T) *dashboardFixture {
	f := &dashboardFixture{
		diagnoser: &fakeDiagnoser{},
		gateway:   &fakeGateway{},
		store:     NewCSVHistoryStore(filepath.Join(t.TempDir(), "plant_history.csv"), zap.NewNop()),
		clock:     time.Date(2026, 10, 15, 14, 0, 0, 0, time.Local),
	}
	f.dashboard = NewDashboard(f.diagnoser, NewAlertNotifier(f.gateway, zap.NewNop()), f.store, zap.NewNop())
	f.dashboard.SetClock(func() time.Time { return f.clock })
	return f
}

func (f *dashboardFixture) records(t *testing.T) []models.HistoryRecord {
	records, err := f.store.LoadAll(context.Background())
	require.NoError(t, err)
	return records
}

func TestAnalyzeFirstDryActionSendsAlert(t *testing.T) {
	f := newDashboardFixture(t)
	session := models.NewSession()

	res := f.dashboard.Analyze(context.Background(), session, models.SensorReading{Humidity: 15, Temperature: 28}, nil)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Alert)
	require.Equal(t, models.AlertSentWithSticker, res.Alert.Kind)
	require.NotEmpty(t, res.Diagnosis)
	require.Equal(t, f.clock.Unix(), session.Cooldown.LastAlertUnix)
	require.Len(t, f.gateway.sent, 1)

	records := f.records(t)
	require.Len(t, records, 1)
	require.Equal(t, 15, records[0].Humidity)
	require.Equal(t, 28, records[0].Temperature)
	require.NotEmpty(t, records[0].Diagnosis)
	require.Len(t, session.Diagnoses, 1)
}

func TestAnalyzeRepeatWithinCooldownStillLogs(t *testing.T) {
	f := newDashboardFixture(t)
	session := models.NewSession()
	reading := models.SensorReading{Humidity: 15, Temperature: 28}

	first := f.dashboard.Analyze(context.Background(), session, reading, nil)
	require.Equal(t, models.AlertSentWithSticker, first.Alert.Kind)

	f.clock = f.clock.Add(5 * time.Second)
	second := f.dashboard.Analyze(context.Background(), session, reading, nil)
	require.NoError(t, second.Err)
	require.Equal(t, models.AlertSuppressedByCooldown, second.Alert.Kind)
	require.Equal(t, 56*time.Second, second.Alert.RetryAfter)
	require.NotEmpty(t, second.Diagnosis)

	require.Len(t, f.gateway.sent, 1)
	require.Len(t, f.records(t), 2)
	require.Equal(t, 2, f.diagnoser.calls)
	require.Equal(t, f.clock.Add(-5*time.Second).Unix(), session.Cooldown.LastAlertUnix)
}

func TestAnalyzeHumidReadingNoAlert(t *testing.T) {
	f := newDashboardFixture(t)
	session := models.NewSession()

	res := f.dashboard.Analyze(context.Background(), session, models.SensorReading{Humidity: 50, Temperature: 22}, nil)
	require.NoError(t, res.Err)
	require.Equal(t, models.AlertNotTriggered, res.Alert.Kind)
	require.Empty(t, f.gateway.sent)
	require.Zero(t, session.Cooldown.LastAlertUnix)
	require.Len(t, f.records(t), 1)
}

func TestAnalyzeInferenceFailure(t *testing.T) {
	f := newDashboardFixture(t)
	f.diagnoser.err = errors.New("dial tcp: connection refused")
	session := models.NewSession()
	session.Cooldown.LastAlertUnix = 1234

	res := f.dashboard.Analyze(context.Background(), session, models.SensorReading{Humidity: 15, Temperature: 28}, nil)
	require.Error(t, res.Err)
	require.True(t, apperrors.IsInference(res.Err))
	require.Nil(t, res.Alert)
	require.Nil(t, res.Record)
	require.Empty(t, f.records(t))
	require.Empty(t, f.gateway.sent)
	require.Empty(t, session.Diagnoses)
	require.Equal(t, int64(1234), session.Cooldown.LastAlertUnix)
}

func TestAnalyzeNotifyFailureDoesNotBlockLogging(t *testing.T) {
	f := newDashboardFixture(t)
	f.gateway.err = errors.New("401 Unauthorized")
	session := models.NewSession()

	res := f.dashboard.Analyze(context.Background(), session, models.SensorReading{Humidity: 5, Temperature: 35}, nil)
	require.NoError(t, res.Err)
	require.Equal(t, models.AlertSendFailed, res.Alert.Kind)
	require.True(t, apperrors.IsNotify(res.Alert.Reason))
	require.Zero(t, session.Cooldown.LastAlertUnix)
	require.Len(t, f.records(t), 1)
}

func TestAnalyzeStoreFailure(t *testing.T) {
	diagnoser := &fakeDiagnoser{}
	d := NewDashboard(diagnoser, NewAlertNotifier(&fakeGateway{}, zap.NewNop()), failingStore{}, zap.NewNop())
	session := models.NewSession()

	res := d.Analyze(context.Background(), session, models.SensorReading{Humidity: 50, Temperature: 22}, nil)
	require.Error(t, res.Err)
	require.True(t, apperrors.IsStore(res.Err))
	require.NotEmpty(t, res.Diagnosis)
	require.Nil(t, res.Record)

	// The session stays usable for the next action
	res = d.Analyze(context.Background(), session, models.SensorReading{Humidity: 51, Temperature: 22}, nil)
	require.True(t, apperrors.IsStore(res.Err))
	require.Equal(t, 2, diagnoser.calls)
}

func TestAnalyzeValidation(t *testing.T) {
	f := newDashboardFixture(t)
	session := models.NewSession()

	for _, reading := range []models.SensorReading{
		{Humidity: -1, Temperature: 20},
		{Humidity: 101, Temperature: 20},
		{Humidity: 50, Temperature: 9},
		{Humidity: 50, Temperature: 41},
	} {
		res := f.dashboard.Analyze(context.Background(), session, reading, nil)
		require.True(t, apperrors.IsValidation(res.Err), "%+v", reading)
	}

	res := f.dashboard.Analyze(context.Background(), session, models.SensorReading{Humidity: 50, Temperature: 20},
		&models.PlantImage{Data: []byte("GIF89a"), MimeType: "image/gif"})
	require.True(t, apperrors.IsValidation(res.Err))
	require.Zero(t, f.diagnoser.calls)
}

func TestAnalyzePassesImageAndPublishes(t *testing.T) {
	f := newDashboardFixture(t)
	pub := &recordingPublisher{}
	f.dashboard.SetPublisher(pub)
	session := models.NewSession()
	image := &models.PlantImage{Data: []byte{0xFF, 0xD8, 0xFF}, MimeType: "image/jpeg"}

	res := f.dashboard.Analyze(context.Background(), session, models.SensorReading{Humidity: 40, Temperature: 24}, image)
	require.NoError(t, res.Err)
	require.Equal(t, "A fern, and a thirsty one.", res.Diagnosis)
	require.Same(t, image, f.diagnoser.images[0])
	require.True(t, session.Diagnoses[0].HasImage)

	require.Len(t, pub.records, 1)
	require.Equal(t, *res.Record, pub.records[0])
}

func TestSessionServiceOrdering(t *testing.T) {
	f := newDashboardFixture(t)
	svc := NewSessionService(f.dashboard)

	svc.Analyze(context.Background(), models.SensorReading{Humidity: 15, Temperature: 28}, nil)
	f.clock = f.clock.Add(time.Minute)
	svc.Analyze(context.Background(), models.SensorReading{Humidity: 60, Temperature: 25}, nil)

	diagnoses := svc.Diagnoses()
	require.Len(t, diagnoses, 2)
	require.Equal(t, 60, diagnoses[0].Reading.Humidity)
	require.Equal(t, 15, diagnoses[1].Reading.Humidity)
	require.Equal(t, f.clock.Add(-time.Minute).Unix(), svc.Cooldown().LastAlertUnix)
}

func TestAnalyzeMultilineReplyRoundTrips(t *testing.T) {
	f := newDashboardFixture(t)
	f.diagnoser.reply = "I'm a monstera.\r\nWater me, \"please\", today!"
	session := models.NewSession()
	pub := &recordingPublisher{}
	f.dashboard.SetPublisher(pub)

	res := f.dashboard.Analyze(context.Background(), session, models.SensorReading{Humidity: 45, Temperature: 23}, nil)
	require.NoError(t, res.Err)
	require.Equal(t, "I'm a monstera.\nWater me, \"please\", today!", res.Diagnosis)

	records := f.records(t)
	requireSameRecords(t, []models.HistoryRecord{*res.Record}, records)
	requireSameRecords(t, pub.records, records)
	require.Equal(t, res.Diagnosis, session.Diagnoses[0].Text)
}

func TestAnalyzeStampsRecordAfterReply(t *testing.T) {
	f := newDashboardFixture(t)
	start := f.clock
	f.diagnoser.during = func() { f.clock = f.clock.Add(4 * time.Second) }
	session := models.NewSession()

	res := f.dashboard.Analyze(context.Background(), session, models.SensorReading{Humidity: 12, Temperature: 30}, nil)
	require.NoError(t, res.Err)
	require.Equal(t, models.AlertSentWithSticker, res.Alert.Kind)

	require.True(t, start.Add(4*time.Second).Equal(res.Record.Timestamp))
	require.True(t, start.Add(4*time.Second).Equal(session.Diagnoses[0].CreatedAt))
	require.Equal(t, start.Unix(), session.Cooldown.LastAlertUnix)
	require.True(t, res.Record.Timestamp.Equal(f.records(t)[0].Timestamp))
}
