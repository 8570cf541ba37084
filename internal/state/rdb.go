package state

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mthaddon/k8s-ingress-operator/internal/relation"
)

// relationRecordID is the primary key of the single cached payload row.
// The relation is single-peer, so one row is all there is.
const relationRecordID = "ingress"

// RelationRecord is the persistence model for the cached relation payload.
// Table name: relation_data
type RelationRecord struct {
	ID        string    `gorm:"primaryKey;type:text;not null"`
	Payload   string    `gorm:"type:text;not null"` // JSON encoded map[string]string
	UpdatedAt time.Time `gorm:"not null"`
}

func (RelationRecord) TableName() string { return "relation_data" }

// SQLiteStore is a Store backed by a local SQLite database.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore opens (or creates) the store at the given DSN and applies
// schema migrations. Supported DSN forms: a plain file path, or
// "sqlite:<dsn>" (":memory:" works for throwaway state).
func OpenSQLiteStore(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimPrefix(dsn, "sqlite:")
	if dsn == "" {
		return nil, errors.New("state store DSN is empty")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open state store %s", dsn)
	}

	if err := db.AutoMigrate(&RelationRecord{}); err != nil {
		return nil, errors.Wrap(err, "failed to migrate state store schema")
	}

	return &SQLiteStore{db: db}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (relation.Payload, error) {
	var rec RelationRecord

	err := s.db.WithContext(ctx).First(&rec, "id = ?", relationRecordID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return relation.Payload{}, nil
		}

		return nil, errors.Wrap(err, "failed to load cached relation data")
	}

	var payload relation.Payload
	if err := json.Unmarshal([]byte(rec.Payload), &payload); err != nil {
		return nil, errors.Wrap(err, "failed to decode cached relation data")
	}

	return payload, nil
}

// Save implements Store. The payload replaces any previously cached one in a
// single transaction.
func (s *SQLiteStore) Save(ctx context.Context, payload relation.Payload) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode relation data")
	}

	rec := RelationRecord{
		ID:        relationRecordID,
		Payload:   string(encoded),
		UpdatedAt: time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", relationRecordID).Delete(&RelationRecord{}).Error; err != nil {
			return err
		}

		return tx.Create(&rec).Error
	})
	if err != nil {
		return errors.Wrap(err, "failed to save relation data")
	}

	return nil
}
