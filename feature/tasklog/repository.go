package tasklog

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DefaultLimit is the number of entries returned when no limit is given.
const DefaultLimit = 100

// Repository reads and writes task log entries.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a repository on db.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the task log table.
func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("migrate task log: %w", err)
	}
	return nil
}

// Record stores e.
func (r *Repository) Record(ctx context.Context, e *Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

// Recent returns the newest entries, optionally restricted to one link.
func (r *Repository) Recent(ctx context.Context, linkID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if linkID != "" {
		q = q.Where("link_id = ?", linkID)
	}
	var out []Entry
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("query task log: %w", err)
	}
	return out, nil
}

// Prune deletes the entries created before cutoff.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&Entry{})
	if res.Error != nil {
		return 0, fmt.Errorf("prune task log: %w", res.Error)
	}
	return res.RowsAffected, nil
}
