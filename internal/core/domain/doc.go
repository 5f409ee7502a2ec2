// Package domain defines the core domain models for the autosave engine.
//
// Domain models are pure value objects without any IO dependencies or
// framework coupling. This package contains:
//
//   - Entity: the edited entity and its composed sub-entities
//   - Input: raw form input and volatile-key aware comparison
//   - Snapshot: durable autosave records and selection scopes
//   - Session: autosave session identity generation and resolution
//   - Errors: domain-specific error definitions
package domain
