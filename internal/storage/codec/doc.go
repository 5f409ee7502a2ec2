// Package codec turns entities, form state and raw input into
// self-describing byte frames for the snapshot stores, and back.
//
// Every frame starts with a 9-byte header (magic, version, flags, kind,
// CRC-32 of the stored payload) followed by a JSON payload that may be
// zstd compressed and sealed with an AEAD cipher. Sealing authenticates
// the header too, so flags cannot be flipped on stored data.
//
// Entities are encoded in one of two modes. Shallow mode writes composed
// sub-entities as {"ref":{"type","id"}} references and decodes them as
// stubs. Deep mode inlines them by value. Decoding keeps JSON numbers as
// json.Number so values survive a round trip unchanged.
//
// Every decoding failure is reported as domain.ErrCodecError.
package codec
