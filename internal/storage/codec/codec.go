// Package codec turns entities, form state and raw input into
// self-describing byte frames for the snapshot stores, and back.
package codec

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"

	"github.com/yndnr/autosave-go/internal/core/domain"
	"github.com/yndnr/autosave-go/pkg/crypto/adaptive"
)

// maxDepth bounds recursion through composed sub-entities in deep mode.
const maxDepth = 32

// maxDecodedSize bounds the decompressed payload size.
const maxDecodedSize = 64 << 20

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedSize))
)

// Options configures a Codec.
type Options struct {
	// Compress enables zstd compression of payloads.
	Compress bool

	// Cipher, when set, seals every payload. Frames written without a
	// cipher stay readable after one is configured.
	Cipher adaptive.Cipher
}

// Codec encodes and decodes snapshot blobs. It is safe for concurrent use.
type Codec struct {
	compress bool
	cipher   adaptive.Cipher
}

// New creates a codec.
func New(opts Options) *Codec {
	return &Codec{compress: opts.Compress, cipher: opts.Cipher}
}

// EncodeEntity encodes an entity. In shallow mode composed sub-entities
// are written as references and must carry an id; in deep mode they are
// inlined recursively.
func (c *Codec) EncodeEntity(e *domain.Entity, deep bool) ([]byte, error) {
	if e == nil {
		return nil, domain.ErrCodecError.WithDetails("entity is nil")
	}
	doc, err := toDoc(e, deep, 0)
	if err != nil {
		return nil, err
	}
	var flags byte
	if deep {
		flags |= FlagDeep
	}
	return c.encode(KindEntity, flags, doc)
}

// DecodeEntity decodes a frame produced by EncodeEntity. Shallow
// references come back as Stub entities.
func (c *Codec) DecodeEntity(frame []byte) (*domain.Entity, error) {
	var doc entityDoc
	if _, err := c.decode(frame, KindEntity, &doc); err != nil {
		return nil, err
	}
	return fromDoc(&doc, 0)
}

// EncodeFormState encodes the storage bag and raw input of a form.
func (c *Codec) EncodeFormState(fs *domain.FormState) ([]byte, error) {
	if fs == nil {
		return nil, domain.ErrCodecError.WithDetails("form state is nil")
	}
	return c.encode(KindFormState, 0, fs)
}

// DecodeFormState decodes a frame produced by EncodeFormState.
func (c *Codec) DecodeFormState(frame []byte) (*domain.FormState, error) {
	var fs domain.FormState
	if _, err := c.decode(frame, KindFormState, &fs); err != nil {
		return nil, err
	}
	if fs.Storage == nil {
		fs.Storage = map[string]any{}
	}
	if fs.Input == nil {
		fs.Input = domain.Input{}
	}
	return &fs, nil
}

// EncodeInput encodes raw form input.
func (c *Codec) EncodeInput(in domain.Input) ([]byte, error) {
	if in == nil {
		in = domain.Input{}
	}
	return c.encode(KindInput, 0, in)
}

// DecodeInput decodes a frame produced by EncodeInput.
func (c *Codec) DecodeInput(frame []byte) (domain.Input, error) {
	var in domain.Input
	if _, err := c.decode(frame, KindInput, &in); err != nil {
		return nil, err
	}
	if in == nil {
		in = domain.Input{}
	}
	return in, nil
}

func (c *Codec) encode(kind Kind, flags byte, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, domain.ErrCodecError.WithDetails("marshal " + kind.String()).WithCause(err)
	}

	if c.compress {
		flags |= FlagCompressed
		payload = zstdEncoder.EncodeAll(payload, make([]byte, 0, len(payload)/2))
	}
	if c.cipher != nil {
		flags |= FlagSealed
		payload, err = c.cipher.Seal(payload, header(flags, kind))
		if err != nil {
			return nil, domain.ErrCodecError.WithDetails("seal " + kind.String()).WithCause(err)
		}
	}
	return writeFrame(flags, kind, payload), nil
}

func (c *Codec) decode(frame []byte, want Kind, v any) (Header, error) {
	h, err := Inspect(frame)
	if err != nil {
		return Header{}, err
	}
	if h.Kind != want {
		return Header{}, malformed(fmt.Sprintf("expected %s frame, got %s", want, h.Kind))
	}

	payload := frame[headerSize:]
	if h.Sealed() {
		if c.cipher == nil {
			return Header{}, malformed("frame is sealed but no cipher is configured")
		}
		payload, err = c.cipher.Open(payload, header(h.Flags, h.Kind))
		if err != nil {
			return Header{}, domain.ErrCodecError.WithDetails("open payload").WithCause(err)
		}
	}
	if h.Compressed() {
		payload, err = zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return Header{}, domain.ErrCodecError.WithDetails("decompress payload").WithCause(err)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return Header{}, domain.ErrCodecError.WithDetails("unmarshal " + h.Kind.String()).WithCause(err)
	}
	return h, nil
}

func malformed(details string) error {
	return domain.ErrCodecError.WithDetails(details)
}
