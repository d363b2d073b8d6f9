package utils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ParseKeypair decodes a serialized ed25519 keypair. Both common encodings are
// accepted: the JSON byte-array format used by solana-keygen, and a base58
// string.
func ParseKeypair(value string) (solana.PrivateKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("empty keypair")
	}
	if strings.HasPrefix(trimmed, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(trimmed), &ints); err != nil {
			return nil, fmt.Errorf("invalid keypair json: %w", err)
		}
		raw := make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("invalid keypair json: byte out of range at index %d", i)
			}
			raw[i] = byte(v)
		}
		if len(raw) != 64 {
			return nil, fmt.Errorf("invalid keypair length: got %d bytes, want 64", len(raw))
		}
		return solana.PrivateKey(raw), nil
	}
	key, err := solana.PrivateKeyFromBase58(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 keypair: %w", err)
	}
	if len(key) != 64 {
		return nil, fmt.Errorf("invalid keypair length: got %d bytes, want 64", len(key))
	}
	return key, nil
}

// SerializeKeypair renders a keypair in the JSON byte-array format understood
// by solana-keygen and ParseKeypair.
func SerializeKeypair(key solana.PrivateKey) string {
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	buf, _ := json.Marshal(ints)
	return string(buf)
}
