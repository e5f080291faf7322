package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	apperrors "greenthumb/errors"
	"greenthumb/models"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// firebaseRecord is the JSON shape of a history entry in the Realtime Database
type firebaseRecord struct {
	Timestamp   string `json:"timestamp"`
	Humidity    int    `json:"humidity"`
	Temperature int    `json:"temperature"`
	Diagnosis   string `json:"diagnosis"`
}

// FirebaseHistoryStore keeps the log under one Realtime Database path.
// Entries are written with Push, whose keys sort in creation order.
type FirebaseHistoryStore struct {
	client *db.Client
	path   string
	logger *zap.Logger
}

func NewFirebaseHistoryStore(ctx context.Context, dbURL, serviceAccountJSON, path string, logger *zap.Logger) (*FirebaseHistoryStore, error) {
	conf := &firebase.Config{
		DatabaseURL: dbURL,
	}

	opt := option.WithCredentialsJSON([]byte(serviceAccountJSON))
	app, err := firebase.NewApp(ctx, conf, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting database client: %w", err)
	}

	logger.Info("Firebase history store ready", zap.String("path", path))

	return &FirebaseHistoryStore{
		client: client,
		path:   path,
		logger: logger,
	}, nil
}

func (fs *FirebaseHistoryStore) Append(ctx context.Context, record models.HistoryRecord) error {
	ref, err := fs.client.NewRef(fs.path).Push(ctx, toFirebaseRecord(record))
	if err != nil {
		return apperrors.NewStoreError("failed to push history record", err)
	}

	fs.logger.Debug("History record pushed",
		zap.String("key", ref.Key),
		zap.Time("timestamp", record.Timestamp))
	return nil
}

func (fs *FirebaseHistoryStore) LoadAll(ctx context.Context) ([]models.HistoryRecord, error) {
	var data map[string]firebaseRecord
	if err := fs.client.NewRef(fs.path).Get(ctx, &data); err != nil {
		return nil, apperrors.NewStoreError("failed to read history records", err)
	}
	return recordsFromFirebase(data)
}

func toFirebaseRecord(record models.HistoryRecord) firebaseRecord {
	return firebaseRecord{
		Timestamp:   record.Timestamp.Format(HistoryTimeLayout),
		Humidity:    record.Humidity,
		Temperature: record.Temperature,
		Diagnosis:   record.Diagnosis,
	}
}

// recordsFromFirebase orders entries by push key
func recordsFromFirebase(data map[string]firebaseRecord) ([]models.HistoryRecord, error) {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make([]models.HistoryRecord, 0, len(keys))
	for _, key := range keys {
		entry := data[key]
		ts, err := time.ParseInLocation(HistoryTimeLayout, entry.Timestamp, time.Local)
		if err != nil {
			return nil, apperrors.NewStoreError(fmt.Sprintf("corrupt history record %s", key), err)
		}
		records = append(records, models.HistoryRecord{
			Timestamp:   ts,
			Humidity:    entry.Humidity,
			Temperature: entry.Temperature,
			Diagnosis:   entry.Diagnosis,
		})
	}
	return records, nil
}
