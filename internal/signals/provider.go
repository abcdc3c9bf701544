package signals

import (
	"context"
	"sync"
)

// Provider returns the named signal values for a user. Values are
// normalized to [0,1]; signals absent from the returned map default to 0
// on the consumer side.
type Provider interface {
	Signals(ctx context.Context, userID string) (map[string]float64, error)
}

// Clamp bounds a signal value to [0,1]. Ordinary signal inputs are
// clamped rather than rejected.
func Clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Static is a fixed-map Provider used by tests and the CLI.
type Static struct {
	mu     sync.RWMutex
	byUser map[string]map[string]float64
}

// NewStatic creates an empty Static provider.
func NewStatic() *Static {
	return &Static{byUser: make(map[string]map[string]float64)}
}

// Set replaces the signal map for a user.
func (s *Static) Set(userID string, values map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := make(map[string]float64, len(values))
	for k, v := range values {
		m[k] = v
	}
	s.byUser[userID] = m
}

// Signals returns the configured values; unknown users get an empty map.
func (s *Static) Signals(ctx context.Context, userID string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.byUser[userID]
	if !ok {
		return map[string]float64{}, nil
	}
	out := make(map[string]float64, len(values))
	for k, v := range values {
		out[k] = v
	}
	return out, nil
}

// ActivitySource supplies the recent activity text window used by
// text-derived signals. Raw activity collection lives outside this core.
type ActivitySource interface {
	RecentText(ctx context.Context, userID string) ([]string, error)
}

// StaticSource is a fixed-window ActivitySource used by tests and the CLI.
type StaticSource struct {
	mu     sync.RWMutex
	byUser map[string][]string
}

// NewStaticSource creates an empty StaticSource.
func NewStaticSource() *StaticSource {
	return &StaticSource{byUser: make(map[string][]string)}
}

// SetText replaces the recent-activity window for a user.
func (s *StaticSource) SetText(userID string, window []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[userID] = append([]string(nil), window...)
}

// RecentText returns the configured window; unknown users get none.
func (s *StaticSource) RecentText(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.byUser[userID]...), nil
}

// ExtractorProvider derives text-based signals by running a named
// Extractor per signal over the user's recent activity window, merged on
// top of a base Provider's values. Extractor-derived values win on name
// collision.
type ExtractorProvider struct {
	base       Provider
	source     ActivitySource
	extractors map[string]Extractor
}

// NewExtractorProvider composes base signal values with text-derived ones.
// base may be nil when all signals are text-derived.
func NewExtractorProvider(base Provider, source ActivitySource, extractors map[string]Extractor) *ExtractorProvider {
	return &ExtractorProvider{base: base, source: source, extractors: extractors}
}

// Signals merges base and extracted values. Extraction runs
// synchronously over a small bounded window of recent activity and
// never touches the network.
func (p *ExtractorProvider) Signals(ctx context.Context, userID string) (map[string]float64, error) {
	out := make(map[string]float64)
	if p.base != nil {
		base, err := p.base.Signals(ctx, userID)
		if err != nil {
			return nil, err
		}
		for k, v := range base {
			out[k] = Clamp(v)
		}
	}

	if p.source == nil || len(p.extractors) == 0 {
		return out, nil
	}

	window, err := p.source.RecentText(ctx, userID)
	if err != nil {
		// Malformed or unavailable activity degrades to 0, not an error.
		return out, nil
	}
	if len(window) == 0 {
		// No recent activity: keep whatever the base provider supplied.
		return out, nil
	}

	for name, ex := range p.extractors {
		best := 0.0
		for _, text := range window {
			if v := ex.Extract(text); v > best {
				best = v
			}
		}
		out[name] = Clamp(best)
	}
	return out, nil
}
