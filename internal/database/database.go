package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/gluk-w/claworc/llm-router/internal/config"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	dbDir := filepath.Dir(dbPath)
	if dbDir != "" {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(
		&CompletionRecord{},
		&AttemptRecord{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return nil
}

func Close() error {
	if DB != nil {
		sqlDB, err := DB.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// RecordCompletion stores a request and its failed or skipped attempts in
// one transaction.
func RecordCompletion(rec *CompletionRecord, attempts []AttemptRecord) error {
	return DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("insert completion: %w", err)
		}
		if len(attempts) == 0 {
			return nil
		}
		for i := range attempts {
			attempts[i].RequestID = rec.RequestID
		}
		if err := tx.Create(&attempts).Error; err != nil {
			return fmt.Errorf("insert attempts: %w", err)
		}
		return nil
	})
}

type CompletionFilter struct {
	Provider string
	Since    time.Time
	Failed   bool
	Limit    int
}

// ListCompletions returns the newest completions matching f.
func ListCompletions(f CompletionFilter) ([]CompletionRecord, error) {
	q := DB.Model(&CompletionRecord{})
	if f.Provider != "" {
		q = q.Where("provider = ? OR requested_provider = ?", f.Provider, f.Provider)
	}
	if !f.Since.IsZero() {
		q = q.Where("created_at >= ?", f.Since)
	}
	if f.Failed {
		q = q.Where("success = ?", false)
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var out []CompletionRecord
	if err := q.Order("id desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return out, nil
}

// ListAttempts returns the attempts of one request in order.
func ListAttempts(requestID string) ([]AttemptRecord, error) {
	var out []AttemptRecord
	if err := DB.Where("request_id = ?", requestID).Order("seq asc").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}

// FailureCount is the number of failed attempts for one provider and
// failure type.
type FailureCount struct {
	Provider    string `json:"provider"`
	FailureType string `json:"failure_type"`
	Count       int64  `json:"count"`
}

// FailureCounts groups non-skipped attempts since the given time.
func FailureCounts(since time.Time) ([]FailureCount, error) {
	var out []FailureCount
	err := DB.Model(&AttemptRecord{}).
		Select("provider, failure_type, COUNT(*) as count").
		Where("skipped = ? AND attempted_at >= ?", false, since).
		Group("provider, failure_type").
		Order("count desc").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("count failures: %w", err)
	}
	return out, nil
}

// Prune deletes completions and attempts older than before.
func Prune(before time.Time) (int64, error) {
	var deleted int64
	err := DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("created_at < ?", before).Delete(&CompletionRecord{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return tx.Where("attempted_at < ?", before).Delete(&AttemptRecord{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	return deleted, nil
}
