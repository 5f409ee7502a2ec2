package codec

import (
	"encoding/binary"
	"hash/crc32"
)

// Frame layout:
//
//	offset 0  'A' 'S'   magic
//	offset 2  version   currently 1
//	offset 3  flags     bit0 zstd, bit1 sealed, bit2 deep
//	offset 4  kind      entity, form state or input
//	offset 5  crc32     IEEE over the stored payload, big-endian
//	offset 9  payload
const (
	magic0     = 'A'
	magic1     = 'S'
	version    = 1
	headerSize = 9
	aadSize    = 5
)

// Flag bits.
const (
	FlagCompressed byte = 1 << 0
	FlagSealed     byte = 1 << 1
	FlagDeep       byte = 1 << 2

	knownFlags = FlagCompressed | FlagSealed | FlagDeep
)

// Kind identifies what a frame holds.
type Kind byte

const (
	KindEntity    Kind = 1
	KindFormState Kind = 2
	KindInput     Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindFormState:
		return "form_state"
	case KindInput:
		return "input"
	default:
		return "unknown"
	}
}

// Header is the decoded fixed part of a frame.
type Header struct {
	Version byte
	Flags   byte
	Kind    Kind
	CRC     uint32
}

// Compressed reports whether the payload is zstd compressed.
func (h Header) Compressed() bool { return h.Flags&FlagCompressed != 0 }

// Sealed reports whether the payload is encrypted.
func (h Header) Sealed() bool { return h.Flags&FlagSealed != 0 }

// Deep reports whether an entity frame inlines composed sub-entities.
func (h Header) Deep() bool { return h.Flags&FlagDeep != 0 }

func writeFrame(flags byte, kind Kind, payload []byte) []byte {
	out := make([]byte, headerSize+len(payload))
	out[0], out[1], out[2], out[3], out[4] = magic0, magic1, version, flags, byte(kind)
	binary.BigEndian.PutUint32(out[5:headerSize], crc32.ChecksumIEEE(payload))
	copy(out[headerSize:], payload)
	return out
}

// header returns the bytes authenticated as additional data when sealing.
func header(flags byte, kind Kind) []byte {
	return []byte{magic0, magic1, version, flags, byte(kind)}
}

// Inspect parses and verifies the frame header without decoding the
// payload.
func Inspect(frame []byte) (Header, error) {
	if len(frame) < headerSize {
		return Header{}, malformed("frame too short")
	}
	if frame[0] != magic0 || frame[1] != magic1 {
		return Header{}, malformed("bad magic")
	}
	h := Header{
		Version: frame[2],
		Flags:   frame[3],
		Kind:    Kind(frame[4]),
		CRC:     binary.BigEndian.Uint32(frame[5:headerSize]),
	}
	if h.Version != version {
		return Header{}, malformed("unsupported version")
	}
	if h.Flags&^knownFlags != 0 {
		return Header{}, malformed("unknown flags")
	}
	if crc32.ChecksumIEEE(frame[headerSize:]) != h.CRC {
		return Header{}, malformed("checksum mismatch")
	}
	return h, nil
}
