package prompts

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Resolver resolves prompts with on-disk overrides.
// Resolution order: override file > embedded default.
type Resolver struct {
	store    *Store
	embedded map[string]EmbeddedPrompt
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewResolver creates a new prompt resolver. store may be nil, in which case
// only embedded defaults are served.
func NewResolver(store *Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		store:    store,
		embedded: make(map[string]EmbeddedPrompt),
		logger:   logger,
	}
}

// Register registers an embedded prompt.
// This should be called during initialization by each prompt package.
func (r *Resolver) Register(prompt EmbeddedPrompt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Compute hash if not provided
	if prompt.Hash == "" {
		prompt.Hash = HashText(prompt.Text)
	}

	// Extract variables if not provided
	if prompt.Variables == nil {
		prompt.Variables = ExtractVariables(prompt.Text)
	}

	r.embedded[prompt.Key] = prompt
	r.logger.Debug("registered embedded prompt", "key", prompt.Key, "vars", prompt.Variables)
}

// Resolve returns the override for key if one exists and is usable,
// otherwise the embedded default. A broken override is logged and ignored
// so one bad edit does not fail every page of a batch.
func (r *Resolver) Resolve(key string) (*ResolvedPrompt, error) {
	r.mu.RLock()
	embedded, ok := r.embedded[key]
	r.mu.RUnlock()

	if r.store != nil {
		override, err := r.store.Get(key)
		switch {
		case err != nil:
			r.logger.Warn("failed to check prompt override", "key", key, "error", err)
		case override != nil:
			if ok {
				if cerr := CheckOverride(override, embedded); cerr != nil {
					r.logger.Warn("ignoring prompt override", "key", key, "path", override.Path, "error", cerr)
					break
				}
			}
			return &ResolvedPrompt{
				Key:        key,
				Text:       override.Text,
				Variables:  ExtractVariables(override.Text),
				IsOverride: true,
				Hash:       HashText(override.Text),
			}, nil
		}
	}

	if !ok {
		return nil, fmt.Errorf("prompt not found: %s", key)
	}

	return &ResolvedPrompt{
		Key:       key,
		Text:      embedded.Text,
		Variables: embedded.Variables,
		Hash:      embedded.Hash,
	}, nil
}

// Render resolves key and executes it as a text/template with data. The
// returned hash identifies the template text, not the rendered output.
func (r *Resolver) Render(key string, data any) (string, string, error) {
	p, err := r.Resolve(key)
	if err != nil {
		return "", "", err
	}
	tmpl, err := parse(key, p.Text)
	if err != nil {
		return "", "", err
	}
	out, err := execute(tmpl, data)
	if err != nil {
		return "", "", err
	}
	return out, p.Hash, nil
}

// GetEmbedded returns the embedded default for a key (no override resolution).
func (r *Resolver) GetEmbedded(key string) (*EmbeddedPrompt, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.embedded[key]
	return &p, ok
}

// AllEmbedded returns all registered embedded prompts sorted by key.
func (r *Resolver) AllEmbedded() []EmbeddedPrompt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]EmbeddedPrompt, 0, len(r.embedded))
	for _, p := range r.embedded {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Key < result[j].Key })
	return result
}

// ExportAll writes every embedded default to the override directory, skipping
// keys that already have an override unless force is set. It returns the
// keys written.
func (r *Resolver) ExportAll(force bool) ([]string, error) {
	if r.store == nil {
		return nil, fmt.Errorf("store not configured")
	}

	var written []string
	for _, p := range r.AllEmbedded() {
		if !force {
			existing, err := r.store.Get(p.Key)
			if err != nil {
				return written, err
			}
			if existing != nil {
				continue
			}
		}
		if err := r.store.Set(p.Key, p.Text); err != nil {
			return written, fmt.Errorf("failed to export prompt %s: %w", p.Key, err)
		}
		written = append(written, p.Key)
	}

	r.logger.Info("exported prompts", "count", len(written), "dir", r.store.Dir())
	return written, nil
}
