package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

const (
	// CompressionThreshold is the minimum payload size before compression is considered.
	CompressionThreshold = 2048

	// MaxPayloadSize is the maximum allowed uncompressed record size.
	MaxPayloadSize = 10 * 1024 * 1024 // 10MB

	// CurrentEnvelopeVersion is the current envelope schema version.
	CurrentEnvelopeVersion = 1
)

// Encoding identifies how an envelope payload is stored.
type Encoding string

const (
	EncodingIdentity Encoding = "identity"
	EncodingZstd     Encoding = "zstd"
)

var (
	// ErrPayloadTooLarge is returned when a record exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrDecompressionBomb is returned when decompressed size exceeds the limit.
	ErrDecompressionBomb = errors.New("decompressed payload exceeds maximum size")

	// ErrCorrupted is returned when payload digest verification fails.
	ErrCorrupted = errors.New("payload digest mismatch")
)

// Envelope is the stored form of a record.
type Envelope struct {
	Version  int      `json:"v"`
	Encoding Encoding `json:"encoding"`
	Digest   string   `json:"digest"`
	Size     uint64   `json:"size"`
	Payload  []byte   `json:"payload"`
}

// Codec compresses and verifies record payloads. It is safe for concurrent
// use.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mu      sync.RWMutex
}

// NewCodec creates a codec with a reusable zstd encoder and decoder.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxPayloadSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Codec{encoder: enc, decoder: dec}, nil
}

// Close releases encoder/decoder resources.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

// Encode compresses data when that makes it smaller and returns the envelope
// carrying it together with the digest of the uncompressed bytes.
func (c *Codec) Encode(data []byte) (Envelope, error) {
	if len(data) > MaxPayloadSize {
		return Envelope{}, ErrPayloadTooLarge
	}

	env := Envelope{
		Version:  CurrentEnvelopeVersion,
		Encoding: EncodingIdentity,
		Digest:   computeDigest(data),
		Size:     uint64(len(data)),
		Payload:  data,
	}
	if len(data) < CompressionThreshold {
		return env, nil
	}

	c.mu.RLock()
	enc := c.encoder
	c.mu.RUnlock()
	if enc == nil {
		return env, nil
	}

	compressed := enc.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return env, nil
	}
	env.Encoding = EncodingZstd
	env.Payload = compressed
	return env, nil
}

// Decode returns the verified, uncompressed payload of env.
func (c *Codec) Decode(env Envelope) ([]byte, error) {
	if env.Version != CurrentEnvelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}

	var data []byte
	switch env.Encoding {
	case EncodingIdentity:
		data = env.Payload
	case EncodingZstd:
		if env.Size > MaxPayloadSize {
			return nil, ErrDecompressionBomb
		}
		c.mu.RLock()
		dec := c.decoder
		c.mu.RUnlock()
		if dec == nil {
			return nil, errors.New("decoder not initialized")
		}
		decompressed, err := dec.DecodeAll(env.Payload, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}
		if uint64(len(decompressed)) > MaxPayloadSize {
			return nil, ErrDecompressionBomb
		}
		data = decompressed
	default:
		return nil, fmt.Errorf("unsupported encoding: %q", env.Encoding)
	}

	if computeDigest(data) != env.Digest {
		return nil, ErrCorrupted
	}
	return data, nil
}

// computeDigest computes sha256 digest in canonical format.
func computeDigest(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
