// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package stage

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Hash returns the canonical content hash of an artifact: the first 16
// hex characters of SHA-256 over its canonical JSON form. encoding/json
// marshals map keys in sorted order, so equal artifacts hash equally
// regardless of construction order.
func Hash(artifact any) (string, error) {
	data, err := json.Marshal(artifact)
	if err != nil {
		return "", fmt.Errorf("marshaling artifact for hashing: %w", err)
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)[:16], nil
}

// MustHash hashes an artifact known to marshal cleanly, such as a plain
// string. It panics on marshal failure.
func MustHash(artifact any) string {
	h, err := Hash(artifact)
	if err != nil {
		panic(err)
	}
	return h
}
