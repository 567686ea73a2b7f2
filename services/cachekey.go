package services

import (
	"crypto/md5" //nolint:gosec // content addressing only, not security
	"encoding/hex"
	"strings"
)

// NormalizeQuery joins a song title and optional artist into the canonical
// query string used for both cache-key derivation and media resolution.
func NormalizeQuery(song, artist string) string {
	return strings.TrimSpace(strings.TrimSpace(song) + " " + strings.TrimSpace(artist))
}

// DeriveCacheKey maps a normalized query to the 32-hex-char identifier that
// names all cache artifacts for that query. Identical queries always produce
// identical keys; the digest is stable across restarts.
func DeriveCacheKey(query string) string {
	sum := md5.Sum([]byte(query)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}
