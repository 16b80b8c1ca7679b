package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent = "critpath/event/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed ID of an event within a build.
//
// The arrival sequence number is part of the identity: the same record seen
// twice at different positions is two observations, while re-appending an
// already stored event at the same position is a no-op.
func EventID(buildID string, seq int64, ev Event) (string, error) {
	obj := map[string]any{
		"build_id": buildID,
		"seq":      seq,
		"event":    ev,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainEvent, canonical), nil
}

// MustEventID is like EventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustEventID(buildID string, seq int64, ev Event) string {
	id, err := EventID(buildID, seq, ev)
	if err != nil {
		panic(err)
	}
	return id
}
