package codec

import (
	"github.com/goccy/go-json"

	"github.com/yndnr/autosave-go/internal/core/domain"
)

// entityDoc is the payload form of an entity.
type entityDoc struct {
	Type     string                `json:"type"`
	ID       string                `json:"id,omitempty"`
	Langcode string                `json:"langcode,omitempty"`
	New      bool                  `json:"new,omitempty"`
	Fields   map[string]any        `json:"fields,omitempty"`
	Composed map[string][]childDoc `json:"composed,omitempty"`
}

// childDoc holds either a reference (shallow) or an inlined entity (deep).
// Inlined entities are marshalled one level at a time, so the payload types
// never refer back to entityDoc.
type childDoc struct {
	Ref    *refDoc         `json:"ref,omitempty"`
	Entity json.RawMessage `json:"entity,omitempty"`
}

type refDoc struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

func toDoc(e *domain.Entity, deep bool, depth int) (*entityDoc, error) {
	if depth > maxDepth {
		return nil, domain.ErrCodecError.WithDetails("composed entities nested too deeply")
	}
	doc := &entityDoc{
		Type:     e.Type,
		ID:       e.ID,
		Langcode: e.Langcode,
		New:      e.New,
		Fields:   e.Fields,
	}
	if len(e.Composed) == 0 {
		return doc, nil
	}

	doc.Composed = make(map[string][]childDoc, len(e.Composed))
	for field, children := range e.Composed {
		docs := make([]childDoc, 0, len(children))
		for _, child := range children {
			if child == nil {
				continue
			}
			if !deep {
				if child.ID == "" {
					return nil, domain.ErrCodecError.WithDetails(
						"composed " + child.Type + " in " + field + " has no id; deep serialization is required")
				}
				docs = append(docs, childDoc{Ref: &refDoc{Type: child.Type, ID: child.ID}})
				continue
			}
			inlined, err := toDoc(child, true, depth+1)
			if err != nil {
				return nil, err
			}
			raw, err := json.Marshal(inlined)
			if err != nil {
				return nil, domain.ErrCodecError.WithDetails("marshal composed " + child.Type).WithCause(err)
			}
			docs = append(docs, childDoc{Entity: raw})
		}
		doc.Composed[field] = docs
	}
	return doc, nil
}

func fromDoc(doc *entityDoc, depth int) (*domain.Entity, error) {
	if depth > maxDepth {
		return nil, malformed("composed entities nested too deeply")
	}
	if doc.Type == "" {
		return nil, malformed("entity type missing")
	}
	e := &domain.Entity{
		Type:     doc.Type,
		ID:       doc.ID,
		Langcode: doc.Langcode,
		New:      doc.New,
		Fields:   doc.Fields,
	}
	if len(doc.Composed) == 0 {
		return e, nil
	}

	e.Composed = make(map[string][]*domain.Entity, len(doc.Composed))
	for field, docs := range doc.Composed {
		children := make([]*domain.Entity, 0, len(docs))
		for _, cd := range docs {
			switch {
			case len(cd.Entity) > 0:
				var inlined entityDoc
				if err := json.Unmarshal(cd.Entity, &inlined); err != nil {
					return nil, malformed("composed entry in " + field + " is not an entity")
				}
				child, err := fromDoc(&inlined, depth+1)
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			case cd.Ref != nil:
				children = append(children, &domain.Entity{Type: cd.Ref.Type, ID: cd.Ref.ID, Stub: true})
			default:
				return nil, malformed("composed entry in " + field + " is empty")
			}
		}
		e.Composed[field] = children
	}
	return e, nil
}
