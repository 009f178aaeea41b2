package kasa

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultPort is the TCP port Kasa devices listen on for local commands.
	DefaultPort = 9999

	// initialKey seeds the XOR autokey cipher.
	initialKey byte = 171

	// headerSize is the length of the big-endian frame length prefix.
	headerSize = 4

	// maxFrameSize bounds the payload we are willing to read from a device.
	maxFrameSize = 1 << 20
)

// errFrameTooLarge is returned when a peer announces an oversized frame.
var errFrameTooLarge = errors.New("frame exceeds maximum size")

// Encrypt obfuscates a plaintext payload with the autokey cipher.
// Each output byte becomes the key for the next one.
func Encrypt(plain []byte) []byte {
	key := initialKey
	out := make([]byte, len(plain))

	for i, b := range plain {
		key ^= b
		out[i] = key
	}

	return out
}

// Decrypt reverses Encrypt.
func Decrypt(cipher []byte) []byte {
	key := initialKey
	out := make([]byte, len(cipher))

	for i, b := range cipher {
		out[i] = key ^ b
		key = b
	}

	return out
}

// WriteFrame encrypts payload and writes it with its length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload))) //nolint:gosec // Payloads are tiny JSON documents.
	copy(frame[headerSize:], Encrypt(payload))

	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	return nil
}

// ReadFrame reads one length-prefixed frame and returns the decrypted payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", errFrameTooLarge, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}

	return Decrypt(body), nil
}
