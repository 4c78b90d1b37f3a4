package backup

import (
	"context"
	"fmt"

	"task-queue-api/internal/database"
	"task-queue-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SQLStore keeps records in the queue_backup table through gorm.
type SQLStore struct {
	db *gorm.DB
}

// NewSQLStore wraps a migrated database handle.
func NewSQLStore(db *gorm.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Put(ctx context.Context, key []byte) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.BackupEntry{Payload: key}).Error
}

func (s *SQLStore) Delete(ctx context.Context, key []byte) error {
	return s.db.WithContext(ctx).
		Where("payload = ?", key).
		Delete(&models.BackupEntry{}).Error
}

// Iterate streams records oldest first.
func (s *SQLStore) Iterate(ctx context.Context, fn func(key []byte) error) error {
	rows, err := s.db.WithContext(ctx).
		Model(&models.BackupEntry{}).
		Order("created_at asc").
		Rows()
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var entry models.BackupEntry
		if err := s.db.ScanRows(rows, &entry); err != nil {
			return fmt.Errorf("scan backup row: %w", err)
		}
		if err := fn(entry.Payload); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of stored records.
func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.BackupEntry{}).Count(&n).Error
	return n, err
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return database.Close(s.db)
}
