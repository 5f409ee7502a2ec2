package codec

import (
	"bytes"
	"errors"
	"testing"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/pkg/crypto/adaptive"
)

func testCipher(t *testing.T) adaptive.Cipher {
	t.Helper()
	c, err := adaptive.New(bytes.Repeat([]byte{0x42}, adaptive.KeySize))
	if err != nil {
		t.Fatalf("adaptive.New() error = %v", err)
	}
	return c
}

func codecs(t *testing.T) map[string]*Codec {
	return map[string]*Codec{
		"plain":             New(Options{}),
		"compressed":        New(Options{Compress: true}),
		"sealed":            New(Options{Cipher: testCipher(t)}),
		"compressed+sealed": New(Options{Compress: true, Cipher: testCipher(t)}),
	}
}

func article() *domain.Entity {
	return &domain.Entity{
		Type:     "node",
		ID:       "42",
		Langcode: "en",
		Fields:   map[string]any{"title": "A", "promote": true, "weight": 3},
		Composed: map[string][]*domain.Entity{
			"field_paragraphs": {
				{
					Type:   "paragraph",
					ID:     "7",
					Fields: map[string]any{"text": "hello"},
					Composed: map[string][]*domain.Entity{
						"field_items": {{Type: "paragraph", ID: "8", Fields: map[string]any{"text": "nested"}}},
					},
				},
			},
		},
	}
}

// canonical compares entities through the canonical JSON form of their
// tree.
func canonical(t *testing.T, e *domain.Entity) string {
	t.Helper()
	b, err := domain.Input{"e": entityTree(e)}.Canonical()
	if err != nil {
		t.Fatalf("Canonical() error = %v", err)
	}
	return string(b)
}

func entityTree(e *domain.Entity) map[string]any {
	tree := map[string]any{
		"type":     e.Type,
		"id":       e.ID,
		"langcode": e.Langcode,
		"new":      e.New,
		"fields":   e.Fields,
	}
	composed := map[string]any{}
	for field, children := range e.Composed {
		list := make([]any, 0, len(children))
		for _, child := range children {
			list = append(list, entityTree(child))
		}
		composed[field] = list
	}
	tree["composed"] = composed
	return tree
}

func TestEntity_DeepRoundTrip(t *testing.T) {
	for name, c := range codecs(t) {
		t.Run(name, func(t *testing.T) {
			in := article()
			frame, err := c.EncodeEntity(in, true)
			if err != nil {
				t.Fatalf("EncodeEntity() error = %v", err)
			}

			h, err := Inspect(frame)
			if err != nil {
				t.Fatalf("Inspect() error = %v", err)
			}
			if !h.Deep() || h.Kind != KindEntity {
				t.Errorf("header = %+v", h)
			}

			out, err := c.DecodeEntity(frame)
			if err != nil {
				t.Fatalf("DecodeEntity() error = %v", err)
			}
			if got, want := canonical(t, out), canonical(t, in); got != want {
				t.Errorf("round trip mismatch:\n got  %s\n want %s", got, want)
			}
			nested := out.Composed["field_paragraphs"][0].Composed["field_items"][0]
			if nested.Stub || nested.Fields["text"] != "nested" {
				t.Errorf("deep mode should inline nested entities, got %+v", nested)
			}
		})
	}
}

func TestEntity_ShallowRoundTrip(t *testing.T) {
	for name, c := range codecs(t) {
		t.Run(name, func(t *testing.T) {
			in := article()
			frame, err := c.EncodeEntity(in, false)
			if err != nil {
				t.Fatalf("EncodeEntity() error = %v", err)
			}

			out, err := c.DecodeEntity(frame)
			if err != nil {
				t.Fatalf("DecodeEntity() error = %v", err)
			}
			if out.Type != "node" || out.ID != "42" || out.Langcode != "en" || out.Fields["title"] != "A" {
				t.Errorf("root entity = %+v", out)
			}

			child := out.Composed["field_paragraphs"][0]
			if !child.Stub || child.Type != "paragraph" || child.ID != "7" {
				t.Errorf("shallow child = %+v, want stub paragraph/7", child)
			}
			if child.Fields != nil || child.Composed != nil {
				t.Error("shallow child should carry identity only")
			}
		})
	}
}

func TestEntity_ShallowRequiresChildID(t *testing.T) {
	c := New(Options{})
	e := &domain.Entity{
		Type: "node",
		ID:   "42",
		Composed: map[string][]*domain.Entity{
			"field_paragraphs": {{Type: "paragraph", New: true}},
		},
	}

	if _, err := c.EncodeEntity(e, false); !errors.Is(err, domain.ErrCodecError) {
		t.Errorf("EncodeEntity(shallow) error = %v, want ErrCodecError", err)
	}
	if _, err := c.EncodeEntity(e, true); err != nil {
		t.Errorf("EncodeEntity(deep) error = %v", err)
	}
}

func TestEntity_DeepNewChildren(t *testing.T) {
	c := New(Options{Compress: true})
	leaf := &domain.Entity{Type: "paragraph", New: true, Fields: map[string]any{"text": "leaf"}}
	mid := &domain.Entity{
		Type:     "paragraph",
		New:      true,
		Composed: map[string][]*domain.Entity{"field_items": {leaf, leaf}},
	}
	in := &domain.Entity{
		Type:     "node",
		New:      true,
		Composed: map[string][]*domain.Entity{"field_paragraphs": {mid}},
	}

	frame, err := c.EncodeEntity(in, true)
	if err != nil {
		t.Fatalf("EncodeEntity() error = %v", err)
	}
	out, err := c.DecodeEntity(frame)
	if err != nil {
		t.Fatalf("DecodeEntity() error = %v", err)
	}
	if got, want := canonical(t, out), canonical(t, in); got != want {
		t.Errorf("round trip mismatch:\n got  %s\n want %s", got, want)
	}
	items := out.Composed["field_paragraphs"][0].Composed["field_items"]
	if len(items) != 2 || !items[1].New || items[1].Fields["text"] != "leaf" {
		t.Errorf("field_items = %+v", items)
	}
}

func TestEntity_DecodeMalformedInlined(t *testing.T) {
	c := New(Options{})
	tests := []struct {
		name    string
		payload string
	}{
		{"inlined not an object", `{"type":"node","composed":{"f":[{"entity":"x"}]}}`},
		{"inlined without type", `{"type":"node","composed":{"f":[{"entity":{"id":"1"}}]}}`},
		{"empty entry", `{"type":"node","composed":{"f":[{}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := writeFrame(FlagDeep, KindEntity, []byte(tt.payload))
			if _, err := c.DecodeEntity(frame); !errors.Is(err, domain.ErrCodecError) {
				t.Errorf("DecodeEntity() error = %v, want ErrCodecError", err)
			}
		})
	}
}

func TestFormState_RoundTrip(t *testing.T) {
	for name, c := range codecs(t) {
		t.Run(name, func(t *testing.T) {
			in := &domain.FormState{
				Storage: map[string]any{domain.InputKeyLastAutosave: int64(1700000000)},
				Input:   domain.Input{"title": "B", "tags": []any{"x", "y"}},
			}
			frame, err := c.EncodeFormState(in)
			if err != nil {
				t.Fatalf("EncodeFormState() error = %v", err)
			}
			out, err := c.DecodeFormState(frame)
			if err != nil {
				t.Fatalf("DecodeFormState() error = %v", err)
			}

			eq, err := out.Input.EquivalentTo(in.Input)
			if err != nil || !eq {
				t.Errorf("input mismatch: %v (err %v)", out.Input, err)
			}
			if ts, ok := out.LastAutosaveTimestamp(); !ok || ts != 1700000000 {
				t.Errorf("LastAutosaveTimestamp() = (%d, %v)", ts, ok)
			}
		})
	}
}

func TestInput_RoundTrip(t *testing.T) {
	c := New(Options{Compress: true})
	frame, err := c.EncodeInput(domain.Input{"title": "A", "count": 2})
	if err != nil {
		t.Fatalf("EncodeInput() error = %v", err)
	}
	out, err := c.DecodeInput(frame)
	if err != nil {
		t.Fatalf("DecodeInput() error = %v", err)
	}
	if eq, _ := out.EquivalentTo(domain.Input{"title": "A", "count": 2}); !eq {
		t.Errorf("DecodeInput() = %v", out)
	}

	empty, _ := c.EncodeInput(nil)
	if out, err := c.DecodeInput(empty); err != nil || out == nil || len(out) != 0 {
		t.Errorf("DecodeInput(nil input) = %v, %v", out, err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	c := New(Options{})
	good, _ := c.EncodeInput(domain.Input{"title": "A"})

	flipped := append([]byte(nil), good...)
	flipped[len(flipped)-1] ^= 0x01

	badVersion := append([]byte(nil), good...)
	badVersion[2] = 9

	tests := []struct {
		name  string
		frame []byte
	}{
		{"empty", nil},
		{"short", good[:4]},
		{"bad magic", append([]byte("XX"), good[2:]...)},
		{"bad version", badVersion},
		{"crc mismatch", flipped},
		{"json garbage", writeFrame(0, KindInput, []byte("{not json"))},
		{"bad zstd", writeFrame(FlagCompressed, KindInput, []byte("not zstd"))},
		{"sealed without cipher", writeFrame(FlagSealed, KindInput, []byte("x"))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.DecodeInput(tt.frame); !errors.Is(err, domain.ErrCodecError) {
				t.Errorf("DecodeInput() error = %v, want ErrCodecError", err)
			}
		})
	}
}

func TestDecode_WrongKind(t *testing.T) {
	c := New(Options{})
	frame, _ := c.EncodeInput(domain.Input{"title": "A"})
	if _, err := c.DecodeFormState(frame); !errors.Is(err, domain.ErrCodecError) {
		t.Errorf("DecodeFormState(input frame) error = %v, want ErrCodecError", err)
	}
}

func TestDecode_SealedTamperedHeader(t *testing.T) {
	c := New(Options{Cipher: testCipher(t)})
	frame, _ := c.EncodeInput(domain.Input{"title": "A"})

	// Setting the deep flag leaves the CRC valid but breaks the AEAD
	// additional data.
	frame[3] |= FlagDeep
	if _, err := c.DecodeInput(frame); !errors.Is(err, domain.ErrCodecError) {
		t.Errorf("DecodeInput() error = %v, want ErrCodecError", err)
	}
}

func TestDecode_PlainFrameWithCipherConfigured(t *testing.T) {
	plain := New(Options{})
	frame, _ := plain.EncodeInput(domain.Input{"title": "A"})

	sealed := New(Options{Cipher: testCipher(t)})
	if _, err := sealed.DecodeInput(frame); err != nil {
		t.Errorf("codec with cipher should read plain frames, got %v", err)
	}
}
