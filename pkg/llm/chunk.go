package llm

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrUndecodableChunk = errors.New("undecodable chunk")
	// ErrPartialChunk means the chunk held only the start of a character that
	// the next chunk completes.
	ErrPartialChunk = errors.New("chunk ends inside a character")
)

// SQLChunkDecoder decodes the UTF-8 text of one SQL endpoint stream. A
// character split across chunks is held back until its remaining bytes arrive,
// and invalid bytes are dropped without discarding the rest of the chunk.
// Use one decoder per stream.
type SQLChunkDecoder struct {
	pending []byte
}

func NewSQLChunkDecoder() *SQLChunkDecoder {
	return &SQLChunkDecoder{}
}

func (d *SQLChunkDecoder) Decode(b []byte) (string, error) {
	buf := make([]byte, 0, len(d.pending)+len(b))
	buf = append(append(buf, d.pending...), b...)
	d.pending = nil

	if n := incompleteSuffix(buf); n > 0 {
		d.pending = append([]byte(nil), buf[len(buf)-n:]...)
		buf = buf[:len(buf)-n]
	}
	if utf8.Valid(buf) {
		if len(buf) == 0 && len(d.pending) > 0 {
			return "", ErrPartialChunk
		}
		return string(buf), nil
	}

	var sb strings.Builder
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		if r != utf8.RuneError || size > 1 {
			sb.Write(buf[:size])
		}
		buf = buf[size:]
	}
	if sb.Len() == 0 {
		return "", ErrUndecodableChunk
	}
	return sb.String(), nil
}

// incompleteSuffix returns the length of a trailing multi-byte sequence that is
// a valid prefix of a character but not yet complete.
func incompleteSuffix(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if !utf8.RuneStart(b[len(b)-i]) {
			continue
		}
		if utf8.FullRune(b[len(b)-i:]) {
			return 0
		}
		return i
	}
	return 0
}

// DecodeExplainChunk decodes an explain endpoint payload of the form {"outputs": "..."}.
func DecodeExplainChunk(b []byte) (string, error) {
	var payload struct {
		Outputs *string `json:"outputs"`
	}
	if err := json.Unmarshal(b, &payload); err != nil {
		return "", errors.Join(ErrUndecodableChunk, err)
	}
	if payload.Outputs == nil {
		return "", ErrUndecodableChunk
	}
	return *payload.Outputs, nil
}

// Drain reads a chunk stream to completion, skipping chunks the decoder rejects.
func Drain(stream ChunkStream, decode func([]byte) (string, error)) (string, error) {
	defer stream.Close()
	var sb strings.Builder
	for stream.Next() {
		text, err := decode(stream.Current())
		if err != nil {
			continue
		}
		sb.WriteString(text)
	}
	return sb.String(), stream.Err()
}
