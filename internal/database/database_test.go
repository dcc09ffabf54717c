package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gluk-w/claworc/llm-router/internal/config"
	"github.com/gluk-w/claworc/llm-router/internal/failover"
	"github.com/gluk-w/claworc/llm-router/internal/failure"
)

// SetupTestDB initializes a test database.
func SetupTestDB(t *testing.T) func() {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "llm-router-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	config.Cfg.DatabasePath = filepath.Join(tmpDir, "test.db")

	if err := Init(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to init database: %v", err)
	}

	return func() {
		Close()
		os.RemoveAll(tmpDir)
	}
}

func TestDatabaseInit(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	for _, table := range []any{&CompletionRecord{}, &AttemptRecord{}} {
		if !DB.Migrator().HasTable(table) {
			t.Errorf("table for %T not created", table)
		}
	}
}

func TestRecordCompletion(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	rec := CompletionRecord{
		RequestID:         "req-1",
		RequestedProvider: "anthropic",
		RequestedModel:    "claude-sonnet-4-20250514",
		Provider:          "openai",
		Model:             "gpt-4o",
		Success:           true,
		FallbackUsed:      true,
		InputTokens:       12,
		OutputTokens:      3,
	}
	attempts := []AttemptRecord{
		{Seq: 0, Provider: "anthropic", Model: "claude-sonnet-4-20250514", Error: "upstream returned HTTP 429", FailureType: "rate_limit", AttemptedAt: time.Now()},
	}
	if err := RecordCompletion(&rec, attempts); err != nil {
		t.Fatalf("RecordCompletion failed: %v", err)
	}
	if rec.ID == 0 {
		t.Error("completion ID not assigned")
	}

	got, err := ListAttempts("req-1")
	if err != nil {
		t.Fatalf("ListAttempts failed: %v", err)
	}
	if len(got) != 1 || got[0].FailureType != "rate_limit" || got[0].RequestID != "req-1" {
		t.Errorf("ListAttempts = %+v", got)
	}

	// Duplicate request ids are rejected and nothing is half-written.
	dup := CompletionRecord{RequestID: "req-1", RequestedProvider: "openai", RequestedModel: "gpt-4o"}
	if err := RecordCompletion(&dup, []AttemptRecord{{Provider: "openai", Model: "gpt-4o", AttemptedAt: time.Now()}}); err == nil {
		t.Error("expected unique constraint violation")
	}
	got, _ = ListAttempts("req-1")
	if len(got) != 1 {
		t.Errorf("attempts after failed insert = %d, want 1", len(got))
	}
}

func TestListCompletions(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	records := []CompletionRecord{
		{RequestID: "a", RequestedProvider: "anthropic", RequestedModel: "m", Provider: "anthropic", Model: "m", Success: true},
		{RequestID: "b", RequestedProvider: "anthropic", RequestedModel: "m", Provider: "openai", Model: "gpt-4o", Success: true, FallbackUsed: true},
		{RequestID: "c", RequestedProvider: "groq", RequestedModel: "m", Success: false, Error: "all providers failed"},
	}
	for i := range records {
		if err := RecordCompletion(&records[i], nil); err != nil {
			t.Fatalf("RecordCompletion failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter CompletionFilter
		want   []string
	}{
		{name: "all newest first", filter: CompletionFilter{}, want: []string{"c", "b", "a"}},
		{name: "by provider", filter: CompletionFilter{Provider: "openai"}, want: []string{"b"}},
		{name: "requested provider counts", filter: CompletionFilter{Provider: "anthropic"}, want: []string{"b", "a"}},
		{name: "failed only", filter: CompletionFilter{Failed: true}, want: []string{"c"}},
		{name: "limit", filter: CompletionFilter{Limit: 1}, want: []string{"c"}},
		{name: "since future", filter: CompletionFilter{Since: time.Now().Add(time.Hour)}, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListCompletions(tt.filter)
			if err != nil {
				t.Fatalf("ListCompletions failed: %v", err)
			}
			var ids []string
			for _, r := range got {
				ids = append(ids, r.RequestID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("got %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("got %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}
}

func TestFailureCountsAndPrune(t *testing.T) {
	cleanup := SetupTestDB(t)
	defer cleanup()

	now := time.Now()
	old := now.Add(-48 * time.Hour)
	rec := CompletionRecord{RequestID: "r", RequestedProvider: "anthropic", RequestedModel: "m"}
	attempts := []AttemptRecord{
		{Seq: 0, Provider: "anthropic", Model: "m", FailureType: "rate_limit", AttemptedAt: now},
		{Seq: 1, Provider: "openai", Model: "m", Skipped: true, Reason: "no_api_key", AttemptedAt: now},
		{Seq: 2, Provider: "groq", Model: "m", FailureType: "auth", AttemptedAt: now},
		{Seq: 3, Provider: "anthropic", Model: "m", FailureType: "rate_limit", AttemptedAt: now},
		{Seq: 4, Provider: "anthropic", Model: "m", FailureType: "rate_limit", AttemptedAt: old},
	}
	if err := RecordCompletion(&rec, attempts); err != nil {
		t.Fatalf("RecordCompletion failed: %v", err)
	}

	counts, err := FailureCounts(now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("FailureCounts failed: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("FailureCounts = %+v, want 2 groups", counts)
	}
	if counts[0].Provider != "anthropic" || counts[0].Count != 2 {
		t.Errorf("top group = %+v, want anthropic x2", counts[0])
	}

	if _, err := Prune(now.Add(-24 * time.Hour)); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	var left int64
	DB.Model(&AttemptRecord{}).Count(&left)
	if left != 4 {
		t.Errorf("attempts after prune = %d, want 4", left)
	}
}

func TestAttemptRecords(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := AttemptRecords([]failover.Attempt{
		{Provider: "anthropic", Model: "claude-sonnet-4-20250514", Error: "HTTP 429", FailureType: failure.RateLimit, ProfileID: "anthropic:work", Timestamp: ts},
		{Provider: "groq", Model: "llama-3.3-70b-versatile", Skipped: true, Reason: failover.ReasonNoAPIKey, Timestamp: ts},
	})
	if len(recs) != 2 {
		t.Fatalf("len = %d, want 2", len(recs))
	}
	if recs[0].Seq != 0 || recs[1].Seq != 1 {
		t.Errorf("seq = %d,%d, want 0,1", recs[0].Seq, recs[1].Seq)
	}
	if recs[0].FailureType != "rate_limit" || recs[0].ProfileID != "anthropic:work" {
		t.Errorf("first record = %+v", recs[0])
	}
	if !recs[1].Skipped || recs[1].Reason != "no_api_key" {
		t.Errorf("second record = %+v", recs[1])
	}
	if !recs[0].AttemptedAt.Equal(ts) {
		t.Errorf("attempted_at = %v, want %v", recs[0].AttemptedAt, ts)
	}
}
