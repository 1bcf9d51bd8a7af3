package emit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Canonical produces a deterministic CBOR encoding of doc: same program in,
// same bytes out, across runs and across machines. Map keys are sorted by
// the encoder, so the non-deterministic iteration order of the entities map
// never leaks into the output.
func Canonical(doc *Document) ([]byte, error) {
	encMode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("create canonical encoder: %w", err)
	}
	data, err := encMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("canonical encoding failed: %w", err)
	}
	return data, nil
}

// Digest returns the hex SHA-256 of the canonical encoding. Build tooling
// compares digests to skip recompiles and to detect content drift.
func Digest(doc *Document) (string, error) {
	data, err := Canonical(doc)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
