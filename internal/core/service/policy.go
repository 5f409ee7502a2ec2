package service

import (
	"sync"
)

// SerializationPolicy decides whether composed sub-entities of an entity
// type are inlined into snapshots (deep) or stored as references.
type SerializationPolicy interface {
	RequiresDeepSerialization(entityType string) bool
}

// TypePolicy requires deep serialization for a fixed set of entity types.
type TypePolicy struct {
	deep map[string]struct{}
}

// NewTypePolicy creates a policy from the configured entity types.
func NewTypePolicy(types []string) *TypePolicy {
	p := &TypePolicy{deep: make(map[string]struct{}, len(types))}
	for _, t := range types {
		if t != "" {
			p.deep[t] = struct{}{}
		}
	}
	return p
}

// RequiresDeepSerialization implements SerializationPolicy.
func (p *TypePolicy) RequiresDeepSerialization(entityType string) bool {
	_, ok := p.deep[entityType]
	return ok
}

// CachedPolicy asks the wrapped policy once per entity type.
type CachedPolicy struct {
	inner SerializationPolicy
	cache sync.Map // entity type -> bool
}

// NewCachedPolicy wraps inner with a per-type memo.
func NewCachedPolicy(inner SerializationPolicy) *CachedPolicy {
	return &CachedPolicy{inner: inner}
}

// RequiresDeepSerialization implements SerializationPolicy.
func (p *CachedPolicy) RequiresDeepSerialization(entityType string) bool {
	if v, ok := p.cache.Load(entityType); ok {
		return v.(bool)
	}
	deep := p.inner.RequiresDeepSerialization(entityType)
	v, _ := p.cache.LoadOrStore(entityType, deep)
	return v.(bool)
}
