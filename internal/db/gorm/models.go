// Package gorm provides GORM-based database operations for nurturenote.
package gorm

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// Entry is a stored diary entry.
type Entry struct {
	ID             int64          `gorm:"primaryKey;autoIncrement"`
	CreatedAt      string         `gorm:"not null"`
	CreatedAtEpoch int64          `gorm:"index:idx_entries_created,sort:desc;not null;default:0"`
	Mood           string         `gorm:"not null"`
	Body           string         `gorm:"type:text;not null"`
	AnalysisJSON   sql.NullString `gorm:"column:analysis_json;type:text"`
}

func (Entry) TableName() string { return "entries" }

// BeforeCreate hook to ensure the sort key is set.
func (e *Entry) BeforeCreate(tx *gorm.DB) error {
	if e.CreatedAtEpoch == 0 {
		if t, err := time.Parse(time.RFC3339, e.CreatedAt); err == nil {
			e.CreatedAtEpoch = t.UnixMilli()
		} else {
			e.CreatedAtEpoch = time.Now().UnixMilli()
		}
	}
	return nil
}
