package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content digests. The version suffix leaves room for
// changing the algorithm later.
const (
	DomainSnapshot = "viewflow/snapshot/v1"
	DomainTrace    = "viewflow/trace/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SnapshotDigest returns a stable digest of a declared state snapshot.
// Journal records carry it so two runs can be compared without storing state.
func SnapshotDigest(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("SnapshotDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainSnapshot, canonical), nil
}

// TraceDigest hashes an already canonical trace document.
func TraceDigest(canonical []byte) string {
	return hashWithDomain(DomainTrace, canonical)
}
