// Package authprofiles keeps named credentials per provider together with
// their usage statistics and cooldown timers.
//
// A Store is an explicit value: the service that loads it owns it and must
// call Save after mutating it. Methods are safe for concurrent use. Save
// replaces the file atomically, so two Stores loaded from the same directory
// overwrite each other on Save but never leave a partial file.
package authprofiles

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moby/sys/atomicwriter"

	"github.com/gluk-w/claworc/llm-router/internal/failure"
	"github.com/gluk-w/claworc/llm-router/internal/logutil"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
)

const (
	FileName       = "auth-profiles.json"
	CurrentVersion = 1
)

var (
	ErrInvalidProfileID = errors.New("invalid profile id")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrNilCredential    = errors.New("credential is required")
)

type UsageStats struct {
	LastUsed        time.Time    `json:"lastUsed,omitzero"`
	SuccessCount    int          `json:"successCount"`
	ErrorCount      int          `json:"errorCount"`
	LastFailure     time.Time    `json:"lastFailure,omitzero"`
	LastFailureType failure.Type `json:"lastFailureType,omitempty"`
	CooldownUntil   *time.Time   `json:"cooldownUntil"`
}

type Store struct {
	mu sync.Mutex
	// saveMu orders snapshots and writes so an older snapshot never lands last.
	saveMu sync.Mutex
	clock  func() time.Time

	Version    int                    `json:"version"`
	Profiles   map[string]*Profile    `json:"profiles"`
	Order      map[string][]string    `json:"order"`
	UsageStats map[string]*UsageStats `json:"usageStats"`
}

func NewStore() *Store {
	s := &Store{Version: CurrentVersion}
	s.normalize()
	return s
}

// SetClock replaces the time source. Tests use it to make cooldowns exact.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = now
}

func (s *Store) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

// ParseProfileID splits "<provider>:<label>" and checks the provider exists.
func ParseProfileID(profileID string) (provider, label string, err error) {
	if strings.Count(profileID, ":") != 1 {
		return "", "", fmt.Errorf("%w: %q must look like provider:label", ErrInvalidProfileID, profileID)
	}
	provider, label, _ = strings.Cut(profileID, ":")
	if provider == "" || label == "" {
		return "", "", fmt.Errorf("%w: %q must look like provider:label", ErrInvalidProfileID, profileID)
	}
	if _, ok := providers.Get(provider); !ok {
		return "", "", fmt.Errorf("%w: %w %q", ErrInvalidProfileID, providers.ErrUnknownProvider, provider)
	}
	return provider, label, nil
}

// AddProfile inserts or overwrites a profile and appends it to its
// provider's rotation order.
func (s *Store) AddProfile(profileID string, cred Credential) error {
	if cred == nil {
		return ErrNilCredential
	}
	provider, _, err := ParseProfileID(profileID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Profiles[profileID] = &Profile{
		Provider:   provider,
		Credential: cred,
		CreatedAt:  s.now(),
	}
	for _, id := range s.Order[provider] {
		if id == profileID {
			return nil
		}
	}
	s.Order[provider] = append(s.Order[provider], profileID)
	return nil
}

// RemoveProfile deletes the profile, its stats and its order entry.
func (s *Store) RemoveProfile(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.Profiles[profileID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	}
	delete(s.Profiles, profileID)
	delete(s.UsageStats, profileID)

	order := s.Order[p.Provider]
	kept := order[:0]
	for _, id := range order {
		if id != profileID {
			kept = append(kept, id)
		}
	}
	if len(kept) == 0 {
		delete(s.Order, p.Provider)
	} else {
		s.Order[p.Provider] = kept
	}
	return nil
}

// ListProfilesForProvider returns every profile id with the provider prefix,
// in rotation order first and then alphabetically for unordered ids.
func (s *Store) ListProfilesForProvider(provider string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(provider)
}

func (s *Store) listLocked(provider string) []string {
	prefix := provider + ":"
	seen := make(map[string]bool)
	var ids []string
	for _, id := range s.Order[provider] {
		if _, ok := s.Profiles[id]; ok && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	var rest []string
	for id := range s.Profiles {
		if strings.HasPrefix(id, prefix) && !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

func (s *Store) IsProfileInCooldown(profileID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inCooldownLocked(profileID, s.now())
}

func (s *Store) inCooldownLocked(profileID string, now time.Time) bool {
	st, ok := s.UsageStats[profileID]
	if !ok || st.CooldownUntil == nil {
		return false
	}
	return now.Before(*st.CooldownUntil)
}

func (s *Store) statsLocked(profileID string) *UsageStats {
	st, ok := s.UsageStats[profileID]
	if !ok {
		st = &UsageStats{}
		s.UsageStats[profileID] = st
	}
	return st
}

// MarkProfileUsed records a success: the error streak and any cooldown are
// cleared. Unknown profiles are ignored.
func (s *Store) MarkProfileUsed(profileID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Profiles[profileID]; !ok {
		return
	}
	st := s.statsLocked(profileID)
	st.LastUsed = s.now()
	st.SuccessCount++
	st.ErrorCount = 0
	st.CooldownUntil = nil
}

const (
	baseBackoff     = time.Minute
	maxBackoff      = time.Hour
	authCooldown    = 24 * time.Hour
	maxBillingDelay = 24 * time.Hour
	maxTimeoutDelay = 5 * time.Minute
)

// backoff is 1m * 5^(errorCount-1), capped at one hour.
func backoff(errorCount int) time.Duration {
	d := baseBackoff
	for i := 1; i < errorCount && d < maxBackoff; i++ {
		d *= 5
	}
	return min(d, maxBackoff)
}

// CooldownFor returns how long a profile rests after its errorCount-th
// consecutive failure of the given type.
func CooldownFor(ft failure.Type, errorCount int) time.Duration {
	b := backoff(errorCount)
	switch ft {
	case failure.Billing:
		return min(b*5, maxBillingDelay)
	case failure.Auth:
		// Bad credentials rarely fix themselves.
		return authCooldown
	case failure.RateLimit:
		return b
	case failure.Timeout:
		return min(b/2, maxTimeoutDelay)
	default:
		return b
	}
}

// MarkProfileFailure extends the error streak and puts the profile into a
// cooldown sized by the failure type. Unknown profiles are ignored.
func (s *Store) MarkProfileFailure(profileID string, ft failure.Type) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Profiles[profileID]; !ok {
		return
	}
	now := s.now()
	st := s.statsLocked(profileID)
	st.ErrorCount++
	st.LastFailure = now
	st.LastFailureType = ft
	until := now.Add(CooldownFor(ft, st.ErrorCount))
	st.CooldownUntil = &until
}

// ResetProfileCooldown clears the cooldown and error streak but keeps the
// success history. It is meant for operators.
func (s *Store) ResetProfileCooldown(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Profiles[profileID]; !ok {
		return fmt.Errorf("%w: %s", ErrProfileNotFound, profileID)
	}
	if st, ok := s.UsageStats[profileID]; ok {
		st.CooldownUntil = nil
		st.ErrorCount = 0
	}
	return nil
}

// OrderProfilesByAvailability puts available profiles first, least recently
// used first, followed by cooling profiles in order of recovery.
func (s *Store) OrderProfilesByAvailability(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderLocked(ids, s.now())
}

func (s *Store) orderLocked(ids []string, now time.Time) []string {
	var available, cooling []string
	for _, id := range ids {
		if s.inCooldownLocked(id, now) {
			cooling = append(cooling, id)
		} else {
			available = append(available, id)
		}
	}

	lastUsed := func(id string) time.Time {
		if st, ok := s.UsageStats[id]; ok {
			return st.LastUsed
		}
		return time.Time{}
	}
	sort.SliceStable(available, func(i, j int) bool {
		return lastUsed(available[i]).Before(lastUsed(available[j]))
	})
	sort.SliceStable(cooling, func(i, j int) bool {
		return s.UsageStats[cooling[i]].CooldownUntil.Before(*s.UsageStats[cooling[j]].CooldownUntil)
	})

	return append(available, cooling...)
}

// GetNextAvailableProfile returns the least recently used profile for the
// provider that is not cooling down.
func (s *Store) GetNextAvailableProfile(provider string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, id := range s.orderLocked(s.listLocked(provider), now) {
		if !s.inCooldownLocked(id, now) {
			return id, true
		}
	}
	return "", false
}

// ResolveAPIKeyForProfile returns the secret to send for the profile.
func (s *Store) ResolveAPIKeyForProfile(profileID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Profiles[profileID]
	if !ok {
		return "", false
	}
	secret := secretOf(p.Credential)
	return secret, secret != ""
}

// Stats returns a copy of the usage stats recorded for a profile.
func (s *Store) Stats(profileID string) (UsageStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.UsageStats[profileID]
	if !ok {
		return UsageStats{}, false
	}
	cp := *st
	if st.CooldownUntil != nil {
		until := *st.CooldownUntil
		cp.CooldownUntil = &until
	}
	return cp, true
}

// ProfileStats is the operator-facing view of one profile.
type ProfileStats struct {
	ID                  string         `json:"id"`
	Provider            string         `json:"provider"`
	Type                CredentialType `json:"type"`
	Secret              string         `json:"secret"`
	CreatedAt           time.Time      `json:"createdAt"`
	Usage               UsageStats     `json:"usage"`
	InCooldown          bool           `json:"inCooldown"`
	CooldownRemainingMs int64          `json:"cooldownRemainingMs"`
}

func (s *Store) GetProfileStats(profileID string) (ProfileStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileStatsLocked(profileID, s.now())
}

func (s *Store) profileStatsLocked(profileID string, now time.Time) (ProfileStats, bool) {
	p, ok := s.Profiles[profileID]
	if !ok {
		return ProfileStats{}, false
	}
	ps := ProfileStats{
		ID:        profileID,
		Provider:  p.Provider,
		Type:      p.Credential.Type(),
		Secret:    logutil.Mask(secretOf(p.Credential)),
		CreatedAt: p.CreatedAt,
	}
	if st, ok := s.UsageStats[profileID]; ok {
		ps.Usage = *st
		if st.CooldownUntil != nil {
			until := *st.CooldownUntil
			ps.Usage.CooldownUntil = &until
		}
		if s.inCooldownLocked(profileID, now) {
			ps.InCooldown = true
			ps.CooldownRemainingMs = st.CooldownUntil.Sub(now).Milliseconds()
		}
	}
	return ps, true
}

// AllProfileStats lists every profile, sorted by id.
func (s *Store) AllProfileStats() []ProfileStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	ids := make([]string, 0, len(s.Profiles))
	for id := range s.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]ProfileStats, 0, len(ids))
	for _, id := range ids {
		if ps, ok := s.profileStatsLocked(id, now); ok {
			out = append(out, ps)
		}
	}
	return out
}

// normalize fills nil maps, drops profiles whose id is not a valid
// "<provider>:<label>", takes each profile's provider from its id, and drops
// order entries that reference missing or foreign profiles, or repeat an id.
func (s *Store) normalize() {
	if s.Profiles == nil {
		s.Profiles = make(map[string]*Profile)
	}
	if s.Order == nil {
		s.Order = make(map[string][]string)
	}
	if s.UsageStats == nil {
		s.UsageStats = make(map[string]*UsageStats)
	}
	for id, p := range s.Profiles {
		if p == nil || p.Credential == nil {
			delete(s.Profiles, id)
			continue
		}
		provider, _, err := ParseProfileID(id)
		if err != nil {
			log.Printf("Dropping auth profile %s: %v", logutil.SanitizeForLog(id), err)
			delete(s.Profiles, id)
			delete(s.UsageStats, id)
			continue
		}
		p.Provider = provider
	}
	for provider, ids := range s.Order {
		seen := make(map[string]bool, len(ids))
		kept := make([]string, 0, len(ids))
		for _, id := range ids {
			if _, ok := s.Profiles[id]; !ok || seen[id] || !strings.HasPrefix(id, provider+":") {
				continue
			}
			seen[id] = true
			kept = append(kept, id)
		}
		if len(kept) == 0 {
			delete(s.Order, provider)
		} else {
			s.Order[provider] = kept
		}
	}
}

func Path(configDir string) string {
	return filepath.Join(configDir, FileName)
}

// Load reads auth-profiles.json from configDir. A missing file yields an
// empty store.
func Load(configDir string) (*Store, error) {
	data, err := os.ReadFile(Path(configDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewStore(), nil
		}
		return nil, fmt.Errorf("read auth profiles: %w", err)
	}

	s := &Store{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse auth profiles: %w", err)
	}
	if s.Version == 0 {
		s.Version = CurrentVersion
	}
	s.normalize()
	return s, nil
}

// Save writes the store to configDir as indented JSON.
func (s *Store) Save(configDir string) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.Lock()
	data, err := json.MarshalIndent(s, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode auth profiles: %w", err)
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := atomicwriter.WriteFile(Path(configDir), data, 0o600); err != nil {
		return fmt.Errorf("write auth profiles: %w", err)
	}
	return nil
}
