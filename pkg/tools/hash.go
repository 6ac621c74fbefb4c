package tools

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/gowebpki/jcs"
)

// ArgsHash returns the SHA-256 hex digest of the RFC 8785 canonical
// form of a tool's coerced arguments. Logically identical argument maps
// hash identically regardless of key order, so audit trails and span
// attributes correlate across hosts.
func ArgsHash(args map[string]any) string {
	raw, err := json.Marshal(args)
	if err != nil {
		return ""
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		canonical = raw
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}
