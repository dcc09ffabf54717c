package failover

import (
	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
)

// Skip reasons recorded on attempts that were never run.
const (
	ReasonNoAPIKey        = "no_api_key"
	ReasonNoAuth          = "no_auth"
	ReasonUnknownProvider = "unknown_provider"
)

// Credential is what a candidate will be called with.
type Credential struct {
	APIKey string
	// ProfileID is set when the key came from a named profile.
	ProfileID string
	// Source is "env: <VAR>", "profile: <id>" or "none".
	Source         string
	IsSubscription bool
	NoAuth         bool
}

// ResolveCredential picks the credential for provider: the environment
// default first, then the least recently used profile that is not cooling
// down. store may be nil. When nothing is usable it returns the skip reason.
func ResolveCredential(store *authprofiles.Store, provider string) (Credential, string, bool) {
	p, ok := providers.Get(provider)
	if !ok {
		return Credential{}, ReasonUnknownProvider, false
	}

	if def, ok := providers.ResolveDefaultCredential(p.Name); ok {
		return Credential{
			APIKey:         def.APIKey,
			Source:         def.Source,
			IsSubscription: def.IsSubscription,
			NoAuth:         def.NoAuth,
		}, "", true
	}

	if store != nil {
		if id, ok := store.GetNextAvailableProfile(p.Name); ok {
			if key, ok := store.ResolveAPIKeyForProfile(id); ok {
				return Credential{APIKey: key, ProfileID: id, Source: "profile: " + id}, "", true
			}
		}
	}

	if p.AuthMode == providers.AuthModeAPIKey {
		return Credential{}, ReasonNoAPIKey, false
	}
	return Credential{}, ReasonNoAuth, false
}
