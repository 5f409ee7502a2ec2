package memory

import (
	"context"
	"time"

	"github.com/united-manufacturing-hub/expiremap/v2/pkg/expiremap"

	"github.com/yndnr/autosave-go/internal/core/domain"
)

// DefaultCullInterval is how often expired pending entries are swept.
const DefaultCullInterval = time.Minute

// PendingCache holds pending input in process memory. Entries vanish on
// restart.
type PendingCache struct {
	entries *expiremap.ExpireMap[string, domain.Input]
}

// NewPendingCache creates a cache whose entries expire after ttl unless
// written with an explicit expiry.
func NewPendingCache(cullInterval, ttl time.Duration) *PendingCache {
	if cullInterval <= 0 {
		cullInterval = DefaultCullInterval
	}
	return &PendingCache{
		entries: expiremap.NewEx[string, domain.Input](cullInterval, ttl),
	}
}

// Get returns a copy of the cached input.
func (p *PendingCache) Get(_ context.Context, sessionID string) (domain.Input, bool, error) {
	in, ok := p.entries.Load(sessionID)
	if !ok || in == nil {
		return nil, false, nil
	}
	return cloneInput(*in), true, nil
}

// SetWithExpire replaces the cached input for sessionID.
func (p *PendingCache) SetWithExpire(_ context.Context, sessionID string, in domain.Input, ttl time.Duration) error {
	p.entries.SetEx(sessionID, cloneInput(in), ttl)
	return nil
}

// Delete drops the cached input for sessionID.
func (p *PendingCache) Delete(_ context.Context, sessionID string) error {
	p.entries.Delete(sessionID)
	return nil
}

// Len returns the number of cached entries, including expired ones not yet
// culled.
func (p *PendingCache) Len() int {
	return p.entries.Length()
}

func cloneInput(in domain.Input) domain.Input {
	out := make(domain.Input, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
