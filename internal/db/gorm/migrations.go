// Package gorm provides GORM-based database operations for nurturenote.
package gorm

import (
	"fmt"
	"time"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: entries table. AutoMigrate also adds columns missing
		// from databases created before analyses were stored.
		{
			ID: "001_entries",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Entry{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("entries")
			},
		},

		// Migration 002: sort keys for rows written without one
		{
			ID: "002_entries_epoch_backfill",
			Migrate: func(tx *gorm.DB) error {
				return backfillEpochs(tx)
			},
			Rollback: func(tx *gorm.DB) error {
				return nil
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}

func backfillEpochs(tx *gorm.DB) error {
	var rows []Entry
	if err := tx.Select("id", "created_at").Where("created_at_epoch = 0").Find(&rows).Error; err != nil {
		return err
	}
	for _, row := range rows {
		t, err := time.Parse(time.RFC3339, row.CreatedAt)
		if err != nil {
			continue
		}
		if err := tx.Model(&Entry{}).Where("id = ?", row.ID).
			Update("created_at_epoch", t.UnixMilli()).Error; err != nil {
			return err
		}
	}
	return nil
}
