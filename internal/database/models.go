package database

import (
	"time"

	"github.com/gluk-w/claworc/llm-router/internal/failover"
)

// CompletionRecord is one routed request, successful or not.
type CompletionRecord struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID          string    `gorm:"uniqueIndex;not null" json:"request_id"`
	ClientRequestID    string    `gorm:"index" json:"client_request_id,omitempty"` // caller's X-Request-Id, may repeat
	Kind               string    `gorm:"not null;default:complete" json:"kind"` // "complete" or "proxy"
	RequestedProvider  string    `gorm:"not null;index" json:"requested_provider"`
	RequestedModel     string    `gorm:"not null" json:"requested_model"`
	Provider           string    `gorm:"index" json:"provider"`
	Model              string    `json:"model"`
	ProfileID          string    `json:"profile_id,omitempty"`
	Success            bool      `gorm:"not null;default:false" json:"success"`
	FallbackUsed       bool      `gorm:"not null;default:false" json:"fallback_used"`
	Error              string    `json:"error,omitempty"`
	StatusCode         int       `gorm:"not null;default:0" json:"status_code"`
	InputTokens        int64     `gorm:"not null;default:0" json:"input_tokens"`
	OutputTokens       int64     `gorm:"not null;default:0" json:"output_tokens"`
	EstimatedCostMicro int64     `gorm:"not null;default:0" json:"estimated_cost_micro"` // microdollars
	DurationMs         int64     `gorm:"not null;default:0" json:"duration_ms"`
	CreatedAt          time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// AttemptRecord is a candidate that was skipped or failed while serving a
// CompletionRecord.
type AttemptRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID   string    `gorm:"not null;index" json:"request_id"`
	Seq         int       `gorm:"not null" json:"seq"`
	Provider    string    `gorm:"not null;index" json:"provider"`
	Model       string    `gorm:"not null" json:"model"`
	Skipped     bool      `gorm:"not null;default:false" json:"skipped"`
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	FailureType string    `gorm:"index" json:"failure_type,omitempty"`
	ProfileID   string    `json:"profile_id,omitempty"`
	AttemptedAt time.Time `gorm:"not null" json:"attempted_at"`
}

// AttemptRecords converts the attempt log of a routed request. RequestID is
// filled in by RecordCompletion.
func AttemptRecords(attempts []failover.Attempt) []AttemptRecord {
	out := make([]AttemptRecord, 0, len(attempts))
	for i, a := range attempts {
		out = append(out, AttemptRecord{
			Seq:         i,
			Provider:    a.Provider,
			Model:       a.Model,
			Skipped:     a.Skipped,
			Reason:      a.Reason,
			Error:       a.Error,
			FailureType: string(a.FailureType),
			ProfileID:   a.ProfileID,
			AttemptedAt: a.Timestamp,
		})
	}
	return out
}
