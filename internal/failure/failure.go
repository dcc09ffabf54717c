// Package failure classifies errors returned by LLM backends into the small
// taxonomy that drives credential cooldowns and fallback decisions.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Type is the classified reason a backend call failed.
type Type string

const (
	Auth      Type = "auth"
	RateLimit Type = "rate_limit"
	Billing   Type = "billing"
	Timeout   Type = "timeout"
	Unknown   Type = "unknown"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// StatusError is an upstream HTTP failure.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) HTTPStatus() int { return e.StatusCode }

var keywordFamilies = []struct {
	typ      Type
	keywords []string
}{
	{Auth, []string{"unauthorized", "invalid api key", "authentication"}},
	{RateLimit, []string{"rate limit", "too many requests", "quota exceeded"}},
	{Billing, []string{"billing", "payment", "insufficient", "credit"}},
	{Timeout, []string{"timeout", "etimedout", "econnreset", "socket hang up"}},
}

// Categorize inspects the status code carried by err, if any, and then the
// lower-cased error message. Unmatched errors are Unknown.
func Categorize(err error) Type {
	if err == nil {
		return Unknown
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		switch sc.HTTPStatus() {
		case 401:
			return Auth
		case 429:
			return RateLimit
		case 402:
			return Billing
		}
	}

	msg := strings.ToLower(err.Error())
	for _, fam := range keywordFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(msg, kw) {
				return fam.typ
			}
		}
	}
	return Unknown
}
