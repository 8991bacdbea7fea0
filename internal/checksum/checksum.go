// Package checksum computes content versions and matches them against
// HTTP entity tags for optimistic concurrency.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ETag formats version as a strong entity tag.
func ETag(version string) string {
	return `"` + version + `"`
}

// Matches reports whether an If-Match value admits version. The value may be
// a comma-separated list of quoted, weak (W/) or bare tags. "*" admits any
// existing version.
func Matches(ifMatch, version string) bool {
	for _, tag := range strings.Split(ifMatch, ",") {
		tag = strings.TrimSpace(tag)
		if tag == "*" {
			return version != ""
		}
		tag = strings.Trim(strings.TrimPrefix(tag, "W/"), `"`)
		if tag != "" && tag == version {
			return true
		}
	}
	return false
}
