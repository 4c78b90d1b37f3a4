package models

import "time"

// BackupEntry is one durable record of a task that has been pushed and not yet
// completed. The primary key is the task's serialized form, so two tasks with the same
// payload share one record.
type BackupEntry struct {
	Payload   []byte    `gorm:"column:payload;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;index"`
}

// TableName specifies the table name for BackupEntry Model
func (BackupEntry) TableName() string {
	return "queue_backup"
}
