// Package failover runs a completion against a primary provider and, when it
// fails or has no usable credential, against substitute providers in order.
//
// Candidates are tried one at a time and never concurrently, so the attempt
// log is strictly ordered and no request is billed twice.
package failover

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/equivalence"
	"github.com/gluk-w/claworc/llm-router/internal/failure"
	"github.com/gluk-w/claworc/llm-router/internal/logutil"
)

var ErrNoRunFunc = errors.New("failover: run function is required")

// Candidate is one provider/model pair in the fallback chain.
type Candidate struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Attempt records a candidate that was skipped or failed.
type Attempt struct {
	Provider    string       `json:"provider"`
	Model       string       `json:"model"`
	Skipped     bool         `json:"skipped,omitempty"`
	Reason      string       `json:"reason,omitempty"`
	Error       string       `json:"error,omitempty"`
	FailureType failure.Type `json:"failureType,omitempty"`
	ProfileID   string       `json:"profileId,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

type FallbackEvent struct {
	From Candidate
	To   Candidate
}

type ErrorEvent struct {
	Provider    string
	Model       string
	Err         error
	FailureType failure.Type
	// WillRetry is true when another candidate follows.
	WillRetry bool
}

// RunFunc performs the actual backend call.
type RunFunc[T any] func(ctx context.Context, provider, model, apiKey string) (T, error)

type Options[T any] struct {
	Provider  string
	Model     string
	Fallbacks []string
	Run       RunFunc[T]

	// Store supplies named profiles. When nil and ConfigDir is set, the
	// store is loaded from ConfigDir. With neither, only environment
	// credentials are used.
	Store *authprofiles.Store
	// ConfigDir is where the store is persisted after every attempt that
	// used a profile.
	ConfigDir string
	// Resolver maps the primary model onto fallback providers. Nil uses
	// the package default.
	Resolver *equivalence.Resolver

	OnFallback func(FallbackEvent)
	OnError    func(ErrorEvent)
	// Now stamps attempts. Nil uses time.Now.
	Now func() time.Time
}

type Result[T any] struct {
	Result       T
	Provider     string
	Model        string
	Attempts     []Attempt
	FallbackUsed bool
}

// ExhaustedError is returned when no candidate succeeded.
type ExhaustedError struct {
	Attempts []Attempt
	errs     []error
}

func (e *ExhaustedError) Error() string {
	var parts []string
	for _, a := range e.Attempts {
		if a.Skipped {
			continue
		}
		parts = append(parts, a.Provider+": "+a.Error)
	}
	if len(parts) == 0 {
		return "all providers failed: no provider had a usable credential"
	}
	return "all providers failed: " + strings.Join(parts, ", ")
}

func (e *ExhaustedError) Unwrap() []error { return e.errs }

// Candidates builds the chain: the primary pair followed by each fallback
// provider with the closest equivalent model. A fallback without an
// equivalent keeps the primary model id.
func Candidates(resolver *equivalence.Resolver, provider, model string, fallbacks []string) []Candidate {
	if resolver == nil {
		resolver = equivalence.Default()
	}
	out := make([]Candidate, 0, len(fallbacks)+1)
	out = append(out, Candidate{Provider: provider, Model: model})
	for _, fb := range fallbacks {
		c := Candidate{Provider: fb, Model: model}
		if m, ok := resolver.FindEquivalentModel(provider, model, fb); ok {
			c.Model = m.ID
		}
		out = append(out, c)
	}
	return out
}

// Run tries each candidate in order and returns the first success. Every
// failure is classified, recorded and, when a profile was used, put into
// cooldown before the next candidate is tried. If ctx is cancelled the chain
// stops and ctx's error is returned.
func Run[T any](ctx context.Context, opts Options[T]) (*Result[T], error) {
	if opts.Run == nil {
		return nil, ErrNoRunFunc
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	store := opts.Store
	if store == nil && opts.ConfigDir != "" {
		s, err := authprofiles.Load(opts.ConfigDir)
		if err != nil {
			log.Printf("failover: auth profiles unavailable, using environment credentials only: %v", err)
		} else {
			store = s
		}
	}

	chain := Candidates(opts.Resolver, opts.Provider, opts.Model, opts.Fallbacks)
	primary := chain[0]
	var attempts []Attempt
	var errs []error

	for i, cand := range chain {
		cred, reason, ok := ResolveCredential(store, cand.Provider)
		if !ok {
			attempts = append(attempts, Attempt{
				Provider:  cand.Provider,
				Model:     cand.Model,
				Skipped:   true,
				Reason:    reason,
				Timestamp: now(),
			})
			continue
		}

		if i > 0 {
			log.Printf("failover: falling back from %s/%s to %s/%s",
				logutil.SanitizeForLog(primary.Provider), logutil.SanitizeForLog(primary.Model),
				logutil.SanitizeForLog(cand.Provider), logutil.SanitizeForLog(cand.Model))
			if opts.OnFallback != nil {
				opts.OnFallback(FallbackEvent{From: primary, To: cand})
			}
		}

		res, err := opts.Run(ctx, cand.Provider, cand.Model, cred.APIKey)
		if err == nil {
			if cred.ProfileID != "" {
				store.MarkProfileUsed(cred.ProfileID)
				persist(store, opts.ConfigDir)
			}
			return &Result[T]{
				Result:       res,
				Provider:     cand.Provider,
				Model:        cand.Model,
				Attempts:     attempts,
				FallbackUsed: cand.Provider != primary.Provider,
			}, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("failover: %s/%s: %w", cand.Provider, cand.Model, ctx.Err())
		}

		ft := failure.Categorize(err)
		attempts = append(attempts, Attempt{
			Provider:    cand.Provider,
			Model:       cand.Model,
			Error:       err.Error(),
			FailureType: ft,
			ProfileID:   cred.ProfileID,
			Timestamp:   now(),
		})
		errs = append(errs, err)
		log.Printf("failover: %s/%s failed (%s): %s",
			logutil.SanitizeForLog(cand.Provider), logutil.SanitizeForLog(cand.Model), ft, logutil.SanitizeForLog(err.Error()))

		if cred.ProfileID != "" {
			store.MarkProfileFailure(cred.ProfileID, ft)
			persist(store, opts.ConfigDir)
		}
		if opts.OnError != nil {
			opts.OnError(ErrorEvent{
				Provider:    cand.Provider,
				Model:       cand.Model,
				Err:         err,
				FailureType: ft,
				WillRetry:   i < len(chain)-1,
			})
		}
	}

	return nil, &ExhaustedError{Attempts: attempts, errs: errs}
}

func persist(store *authprofiles.Store, configDir string) {
	if configDir == "" {
		return
	}
	if err := store.Save(configDir); err != nil {
		log.Printf("failover: failed to save auth profiles: %v", err)
	}
}
