package domain

import (
	"strings"
)

// Entity identity constraints.
const (
	MaxEntityTypeLength = 32
	MaxEntityIDLength   = 128
	MaxLangcodeLength   = 12
)

// EntityRef identifies an entity by type and id, e.g. node/42.
type EntityRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// String returns the "type/id" form of the reference.
func (r EntityRef) String() string {
	return r.Type + "/" + r.ID
}

// IsZero reports whether the reference carries no identity.
func (r EntityRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// ParseEntityRef parses a "type/id" string.
func ParseEntityRef(s string) (EntityRef, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok || typ == "" || id == "" {
		return EntityRef{}, ErrInvalidArgument.WithDetails("entity reference must be type/id")
	}
	return EntityRef{Type: typ, ID: id}, nil
}

// Entity is the in-progress edit of a structured entity as handed over by
// the form layer.
//
// Fields carries the entity's own field values. Composed holds nested
// sub-entities owned by this entity (paragraphs, inline blocks), keyed by
// the field that composes them.
type Entity struct {
	Type     string               `json:"entity_type_id"`
	ID       string               `json:"entity_id,omitempty"`
	Langcode string               `json:"langcode,omitempty"`
	New      bool                 `json:"is_new,omitempty"`
	Fields   map[string]any       `json:"fields,omitempty"`
	Composed map[string][]*Entity `json:"composed,omitempty"`

	// Stub marks an entity rebuilt from a shallow reference: only Type and
	// ID are known.
	Stub bool `json:"-"`
}

// Ref returns the entity's identity.
func (e *Entity) Ref() EntityRef {
	return EntityRef{Type: e.Type, ID: e.ID}
}

// HasComposed reports whether the entity owns any composed sub-entities.
func (e *Entity) HasComposed() bool {
	for _, children := range e.Composed {
		if len(children) > 0 {
			return true
		}
	}
	return false
}

// Validate checks identity constraints of the entity.
func (e *Entity) Validate() error {
	var violations []string

	if e.Type == "" {
		violations = append(violations, "entity_type_id is required")
	}
	if len(e.Type) > MaxEntityTypeLength {
		violations = append(violations, "entity_type_id exceeds 32 characters")
	}
	if !e.New && e.ID == "" {
		violations = append(violations, "entity_id is required for existing entities")
	}
	if len(e.ID) > MaxEntityIDLength {
		violations = append(violations, "entity_id exceeds 128 characters")
	}
	if len(e.Langcode) > MaxLangcodeLength {
		violations = append(violations, "langcode exceeds 12 characters")
	}
	if containsSeparator(e.Type, e.ID, e.Langcode) {
		violations = append(violations, "identity fields must not contain NUL bytes")
	}

	if len(violations) > 0 {
		return ErrInvalidArgument.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// Clone returns a deep copy of the entity tree. Field values are copied
// one level deep.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Fields != nil {
		clone.Fields = make(map[string]any, len(e.Fields))
		for k, v := range e.Fields {
			clone.Fields[k] = v
		}
	}
	if e.Composed != nil {
		clone.Composed = make(map[string][]*Entity, len(e.Composed))
		for field, children := range e.Composed {
			copied := make([]*Entity, len(children))
			for i, child := range children {
				copied[i] = child.Clone()
			}
			clone.Composed[field] = copied
		}
	}
	return &clone
}

func containsSeparator(values ...string) bool {
	for _, v := range values {
		if strings.IndexByte(v, 0) >= 0 {
			return true
		}
	}
	return false
}
