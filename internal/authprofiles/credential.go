package authprofiles

import (
	"encoding/json"
	"fmt"
	"time"
)

type CredentialType string

const (
	TypeAPIKey CredentialType = "api_key"
	TypeToken  CredentialType = "token"
	TypeOAuth  CredentialType = "oauth"
)

// Credential is one of APIKeyCredential, TokenCredential or OAuthCredential.
type Credential interface {
	Type() CredentialType
	isCredential()
}

type APIKeyCredential struct {
	Key   string
	Email string
}

type TokenCredential struct {
	Token string
	// Expires is a unix millisecond timestamp, 0 when unknown.
	Expires int64
	Email   string
}

type OAuthCredential struct {
	Access  string
	Refresh string
	Expires int64
	Email   string
}

func (APIKeyCredential) Type() CredentialType { return TypeAPIKey }
func (TokenCredential) Type() CredentialType  { return TypeToken }
func (OAuthCredential) Type() CredentialType  { return TypeOAuth }

func (APIKeyCredential) isCredential() {}
func (TokenCredential) isCredential()  {}
func (OAuthCredential) isCredential()  {}

// secretOf returns the value sent to the provider for c.
func secretOf(c Credential) string {
	switch c := c.(type) {
	case APIKeyCredential:
		return c.Key
	case TokenCredential:
		return c.Token
	case OAuthCredential:
		return c.Access
	default:
		return ""
	}
}

// Profile is a named credential for one provider.
type Profile struct {
	Provider   string
	Credential Credential
	CreatedAt  time.Time
}

// profileJSON is the on-disk shape: a flat object tagged by "type".
type profileJSON struct {
	Type      CredentialType `json:"type"`
	Provider  string         `json:"provider"`
	Key       string         `json:"key,omitempty"`
	Token     string         `json:"token,omitempty"`
	Access    string         `json:"access,omitempty"`
	Refresh   string         `json:"refresh,omitempty"`
	Expires   int64          `json:"expires,omitempty"`
	Email     string         `json:"email,omitempty"`
	CreatedAt time.Time      `json:"createdAt,omitzero"`
}

func (p Profile) MarshalJSON() ([]byte, error) {
	out := profileJSON{Provider: p.Provider, CreatedAt: p.CreatedAt}
	switch c := p.Credential.(type) {
	case APIKeyCredential:
		out.Type, out.Key, out.Email = TypeAPIKey, c.Key, c.Email
	case TokenCredential:
		out.Type, out.Token, out.Expires, out.Email = TypeToken, c.Token, c.Expires, c.Email
	case OAuthCredential:
		out.Type, out.Access, out.Refresh, out.Expires, out.Email = TypeOAuth, c.Access, c.Refresh, c.Expires, c.Email
	default:
		return nil, fmt.Errorf("profile for %s has no credential", p.Provider)
	}
	return json.Marshal(out)
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var in profileJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	cred, err := credentialFromJSON(in)
	if err != nil {
		return err
	}
	p.Provider = in.Provider
	p.Credential = cred
	p.CreatedAt = in.CreatedAt
	return nil
}

func credentialFromJSON(in profileJSON) (Credential, error) {
	switch in.Type {
	case TypeAPIKey:
		return APIKeyCredential{Key: in.Key, Email: in.Email}, nil
	case TypeToken:
		return TokenCredential{Token: in.Token, Expires: in.Expires, Email: in.Email}, nil
	case TypeOAuth:
		return OAuthCredential{Access: in.Access, Refresh: in.Refresh, Expires: in.Expires, Email: in.Email}, nil
	default:
		return nil, fmt.Errorf("unknown credential type %q", in.Type)
	}
}

// ParseCredential builds a Credential from its type name and secret value.
// It is used by the admin API and the CLI.
func ParseCredential(typ, secret string) (Credential, error) {
	switch CredentialType(typ) {
	case TypeAPIKey, "":
		return APIKeyCredential{Key: secret}, nil
	case TypeToken:
		return TokenCredential{Token: secret}, nil
	case TypeOAuth:
		return OAuthCredential{Access: secret}, nil
	default:
		return nil, fmt.Errorf("unknown credential type %q", typ)
	}
}
