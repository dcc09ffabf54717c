// Package discovery lists every model the router can reach: the static
// catalog plus models reported by local model servers and hosted listing
// endpoints. Results are cached for a TTL.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gluk-w/claworc/llm-router/internal/authprofiles"
	"github.com/gluk-w/claworc/llm-router/internal/failover"
	"github.com/gluk-w/claworc/llm-router/internal/providers"
)

const DefaultTTL = 60 * time.Second

const (
	SourceCatalog = "catalog"
	SourceLocal   = "local"
	SourceRemote  = "remote"
)

// Model is one row of the model listing.
type Model struct {
	Ref           string `json:"ref"`
	Provider      string `json:"provider"`
	ID            string `json:"id"`
	DisplayName   string `json:"display_name"`
	Available     bool   `json:"available"`
	Reasoning     bool   `json:"reasoning"`
	ContextWindow int    `json:"context_window,omitempty"`
	Source        string `json:"source"`
}

type Options struct {
	// Store makes providers with a usable profile count as available.
	Store *authprofiles.Store
	// Local lists no-auth providers whose servers are probed, e.g. "ollama".
	Local []string
	// Remote lists hosted OpenAI-style providers whose /models endpoint is
	// queried when a credential is available.
	Remote  []string
	TTL     time.Duration
	Timeout time.Duration
	Client  *http.Client
}

type Lister struct {
	opts   Options
	client *http.Client
	now    func() time.Time

	mu      sync.Mutex
	cached  []Model
	fetched time.Time
	group   singleflight.Group
}

func New(opts Options) *Lister {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &Lister{opts: opts, client: client, now: time.Now}
}

// Invalidate forces the next listing to refresh.
func (l *Lister) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetched = time.Time{}
}

// ListAvailableModels returns the cached listing, refreshing it when older
// than the TTL. Concurrent callers share one refresh.
func (l *Lister) ListAvailableModels(ctx context.Context) []Model {
	l.mu.Lock()
	if !l.fetched.IsZero() && l.now().Sub(l.fetched) < l.opts.TTL {
		out := append([]Model(nil), l.cached...)
		l.mu.Unlock()
		return out
	}
	l.mu.Unlock()

	v, _, _ := l.group.Do("refresh", func() (any, error) {
		models := l.refresh(context.WithoutCancel(ctx))
		l.mu.Lock()
		l.cached = models
		l.fetched = l.now()
		l.mu.Unlock()
		return models, nil
	})
	return append([]Model(nil), v.([]Model)...)
}

func (l *Lister) refresh(ctx context.Context) []Model {
	rows := catalogRows(l.opts.Store)

	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	var mu sync.Mutex
	var found []Model
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range l.opts.Local {
		g.Go(func() error {
			models, err := l.probeLocal(gctx, name)
			if err != nil {
				log.Printf("discovery: %s unreachable: %v", name, err)
				return nil
			}
			mu.Lock()
			found = append(found, models...)
			mu.Unlock()
			return nil
		})
	}
	for _, name := range l.opts.Remote {
		g.Go(func() error {
			models, err := l.listRemote(gctx, name)
			if err != nil {
				log.Printf("discovery: listing %s models failed: %v", name, err)
				return nil
			}
			mu.Lock()
			found = append(found, models...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		seen[r.Ref] = true
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Ref < found[j].Ref })
	for _, m := range found {
		if seen[m.Ref] {
			continue
		}
		seen[m.Ref] = true
		rows = append(rows, m)
	}
	return rows
}

func catalogRows(store *authprofiles.Store) []Model {
	var rows []Model
	for _, name := range providers.Names() {
		p, _ := providers.Get(name)
		_, _, available := failover.ResolveCredential(store, name)
		for _, m := range p.Models {
			rows = append(rows, Model{
				Ref:           name + "/" + m.ID,
				Provider:      name,
				ID:            m.ID,
				DisplayName:   m.DisplayName,
				Available:     available,
				Reasoning:     m.Reasoning,
				ContextWindow: m.ContextWindow,
				Source:        SourceCatalog,
			})
		}
	}
	return rows
}

type ollamaTags struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

type openAIModels struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (l *Lister) probeLocal(ctx context.Context, name string) ([]Model, error) {
	p, ok := providers.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", providers.ErrUnknownProvider, name)
	}

	var ids []string
	if p.APIFamily == providers.FamilyOllama {
		var tags ollamaTags
		if err := l.getJSON(ctx, p.UpstreamURL+"/api/tags", nil, &tags); err != nil {
			return nil, err
		}
		for _, m := range tags.Models {
			ids = append(ids, m.Name)
		}
	} else {
		var list openAIModels
		if err := l.getJSON(ctx, p.BaseURL+"/models", nil, &list); err != nil {
			return nil, err
		}
		for _, m := range list.Data {
			ids = append(ids, m.ID)
		}
	}
	return rowsFor(p.Name, ids, SourceLocal), nil
}

func (l *Lister) listRemote(ctx context.Context, name string) ([]Model, error) {
	p, ok := providers.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", providers.ErrUnknownProvider, name)
	}
	if p.APIFamily != providers.FamilyOpenAI {
		return nil, fmt.Errorf("%s does not serve an OpenAI-style model listing", name)
	}
	cred, _, ok := failover.ResolveCredential(l.opts.Store, name)
	if !ok {
		return nil, nil
	}

	header := http.Header{}
	if cred.APIKey != "" {
		k, v := p.SetAuthHeader(cred.APIKey)
		header.Set(k, v)
	}
	var list openAIModels
	if err := l.getJSON(ctx, p.BaseURL+"/models", header, &list); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		ids = append(ids, m.ID)
	}
	return rowsFor(p.Name, ids, SourceRemote), nil
}

func rowsFor(provider string, ids []string, source string) []Model {
	rows := make([]Model, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		rows = append(rows, Model{
			Ref:         provider + "/" + id,
			Provider:    provider,
			ID:          id,
			DisplayName: id,
			Available:   true,
			Source:      source,
		})
	}
	return rows
}

func (l *Lister) getJSON(ctx context.Context, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
