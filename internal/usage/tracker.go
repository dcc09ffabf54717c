// Package usage aggregates token and request counts per provider and
// calendar day (UTC) and estimates what they cost.
package usage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/gluk-w/claworc/llm-router/internal/providers"
)

const dateLayout = "2006-01-02"

type ModelUsage struct {
	Input    int64 `json:"input"`
	Output   int64 `json:"output"`
	Requests int   `json:"requests"`
}

// Entry is the running total for one provider on one day.
type Entry struct {
	Input        int64                  `json:"input"`
	Output       int64                  `json:"output"`
	Requests     int                    `json:"requests"`
	Models       map[string]*ModelUsage `json:"models"`
	FirstRequest time.Time              `json:"firstRequest"`
	LastRequest  time.Time              `json:"lastRequest"`
}

func (e *Entry) clone() *Entry {
	cp := *e
	cp.Models = make(map[string]*ModelUsage, len(e.Models))
	for id, m := range e.Models {
		mu := *m
		cp.Models[id] = &mu
	}
	return &cp
}

// Tracker is the in-memory usage cache. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	saveMu  sync.Mutex
	clock   func() time.Time
	entries map[string]*Entry
}

func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*Entry)}
}

// SetClock replaces the time source.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clock = now
}

func (t *Tracker) now() time.Time {
	if t.clock != nil {
		return t.clock().UTC()
	}
	return time.Now().UTC()
}

func key(provider, date string) string {
	return provider + ":" + date
}

// splitKey separates "provider:date".
func splitKey(k string) (provider, date string, ok bool) {
	i := strings.LastIndex(k, ":")
	if i <= 0 || i == len(k)-1 {
		return "", "", false
	}
	return k[:i], k[i+1:], true
}

// Today returns the current UTC date in the key format.
func (t *Tracker) Today() string {
	return t.now().Format(dateLayout)
}

// Track adds one request's tokens to today's entry for provider.
func (t *Tracker) Track(provider, model string, inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	k := key(provider, now.Format(dateLayout))
	e, ok := t.entries[k]
	if !ok {
		e = &Entry{Models: make(map[string]*ModelUsage), FirstRequest: now}
		t.entries[k] = e
	}
	e.Input += inputTokens
	e.Output += outputTokens
	e.Requests++
	e.LastRequest = now

	if model == "" {
		model = "unknown"
	}
	m, ok := e.Models[model]
	if !ok {
		m = &ModelUsage{}
		e.Models[model] = m
	}
	m.Input += inputTokens
	m.Output += outputTokens
	m.Requests++
}

// EstimateCost prices tokens at the average rate of every priced model in
// the provider's catalog. Unknown or unpriced providers cost zero.
func EstimateCost(provider string, inputTokens, outputTokens int64) float64 {
	p, ok := providers.Get(provider)
	if !ok {
		return 0
	}
	var in, out float64
	var n int
	for _, m := range p.Models {
		if m.Cost.InputPerMillion == 0 && m.Cost.OutputPerMillion == 0 {
			continue
		}
		in += m.Cost.InputPerMillion
		out += m.Cost.OutputPerMillion
		n++
	}
	if n == 0 {
		return 0
	}
	return price(providers.ModelCost{InputPerMillion: in / float64(n), OutputPerMillion: out / float64(n)}, inputTokens, outputTokens)
}

// EstimateCostForModel uses the model's own rate when the catalog knows it
// and falls back to EstimateCost otherwise.
func EstimateCostForModel(provider, model string, inputTokens, outputTokens int64) float64 {
	if m, ok := providers.FindModel(provider, model); ok {
		return price(m.Cost, inputTokens, outputTokens)
	}
	return EstimateCost(provider, inputTokens, outputTokens)
}

func price(c providers.ModelCost, inputTokens, outputTokens int64) float64 {
	return float64(inputTokens)/1e6*c.InputPerMillion + float64(outputTokens)/1e6*c.OutputPerMillion
}

// entryCost sums the per-model estimates of an entry.
func entryCost(provider string, e *Entry) float64 {
	var cost float64
	for model, m := range e.Models {
		cost += EstimateCostForModel(provider, model, m.Input, m.Output)
	}
	return cost
}

// SummaryRow is one provider's usage over a day or a range of days.
type SummaryRow struct {
	Provider string                `json:"provider"`
	Input    int64                 `json:"input"`
	Output   int64                 `json:"output"`
	Requests int                   `json:"requests"`
	Cost     float64               `json:"cost"`
	Models   map[string]ModelUsage `json:"models"`
}

func (r *SummaryRow) add(provider string, e *Entry) {
	r.Input += e.Input
	r.Output += e.Output
	r.Requests += e.Requests
	r.Cost += entryCost(provider, e)
	for id, m := range e.Models {
		mu := r.Models[id]
		mu.Input += m.Input
		mu.Output += m.Output
		mu.Requests += m.Requests
		r.Models[id] = mu
	}
}

func sortRows(rows []SummaryRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Requests != rows[j].Requests {
			return rows[i].Requests > rows[j].Requests
		}
		return rows[i].Provider < rows[j].Provider
	})
}

// Summary returns one row per provider active on date (today when empty),
// most requests first.
func (t *Tracker) Summary(date string) []SummaryRow {
	t.mu.Lock()
	defer t.mu.Unlock()
	if date == "" {
		date = t.now().Format(dateLayout)
	}

	rows := []SummaryRow{}
	for k, e := range t.entries {
		provider, d, ok := splitKey(k)
		if !ok || d != date {
			continue
		}
		row := SummaryRow{Provider: provider, Models: make(map[string]ModelUsage)}
		row.add(provider, e)
		rows = append(rows, row)
	}
	sortRows(rows)
	return rows
}

// DayTotal is the usage of every provider on one day.
type DayTotal struct {
	Date     string  `json:"date"`
	Input    int64   `json:"input"`
	Output   int64   `json:"output"`
	Requests int     `json:"requests"`
	Cost     float64 `json:"cost"`
}

// Report covers the last N days, today included.
type Report struct {
	From      string       `json:"from"`
	To        string       `json:"to"`
	Days      []DayTotal   `json:"days"`
	Providers []SummaryRow `json:"providers"`
	Requests  int          `json:"requests"`
	Input     int64        `json:"input"`
	Output    int64        `json:"output"`
	Cost      float64      `json:"cost"`
}

// MaxStatsDays caps the window Stats reports on.
const MaxStatsDays = 366

// Stats aggregates the last days days, clamped to [1, MaxStatsDays]. Days
// without usage are listed with zero totals.
func (t *Tracker) Stats(days int) Report {
	days = max(1, min(days, MaxStatsDays))
	t.mu.Lock()
	defer t.mu.Unlock()

	today := t.now().Truncate(24 * time.Hour)
	from := today.AddDate(0, 0, -(days - 1))
	rep := Report{From: from.Format(dateLayout), To: today.Format(dateLayout)}

	index := make(map[string]int, days)
	for d := from; !d.After(today); d = d.AddDate(0, 0, 1) {
		index[d.Format(dateLayout)] = len(rep.Days)
		rep.Days = append(rep.Days, DayTotal{Date: d.Format(dateLayout)})
	}

	byProvider := make(map[string]*SummaryRow)
	for k, e := range t.entries {
		provider, date, ok := splitKey(k)
		if !ok {
			continue
		}
		i, ok := index[date]
		if !ok {
			continue
		}
		cost := entryCost(provider, e)
		day := &rep.Days[i]
		day.Input += e.Input
		day.Output += e.Output
		day.Requests += e.Requests
		day.Cost += cost

		row, ok := byProvider[provider]
		if !ok {
			row = &SummaryRow{Provider: provider, Models: make(map[string]ModelUsage)}
			byProvider[provider] = row
		}
		row.add(provider, e)

		rep.Input += e.Input
		rep.Output += e.Output
		rep.Requests += e.Requests
		rep.Cost += cost
	}

	rep.Providers = make([]SummaryRow, 0, len(byProvider))
	for _, row := range byProvider {
		rep.Providers = append(rep.Providers, *row)
	}
	sortRows(rep.Providers)
	return rep
}

// Entries returns a deep copy of the cache keyed "provider:date".
func (t *Tracker) Entries() map[string]*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]*Entry, len(t.entries))
	for k, e := range t.entries {
		out[k] = e.clone()
	}
	return out
}

// Save writes the whole cache to path as indented JSON. The file is replaced
// atomically.
func (t *Tracker) Save(path string) error {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	data, err := json.MarshalIndent(t.entries, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode usage history: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create usage directory: %w", err)
	}
	if err := atomicwriter.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write usage history: %w", err)
	}
	return nil
}

// Load merges the history at path into the cache. Entries already in memory
// win over the file. A missing file is not an error.
func (t *Tracker) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read usage history: %w", err)
	}
	var loaded map[string]*Entry
	if err := json.Unmarshal(data, &loaded); err != nil {
		return fmt.Errorf("parse usage history: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for k, e := range loaded {
		if e == nil {
			continue
		}
		if _, ok := t.entries[k]; ok {
			continue
		}
		if e.Models == nil {
			e.Models = make(map[string]*ModelUsage)
		}
		t.entries[k] = e
	}
	return nil
}
