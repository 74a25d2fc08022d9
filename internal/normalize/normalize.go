// Package normalize canonicalizes listing text for matching and hashing.
package normalize

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// nameFingerprintLimit caps how many characters of the normalized name feed
// the identity fingerprint, so trailing banner noise cannot churn it.
const nameFingerprintLimit = 100

// stripControl removes Unicode control/format/surrogate characters, keeping
// newline and tab so they still separate words before whitespace collapsing.
var stripControl = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.In(r, unicode.C) && r != '\n' && r != '\t'
}))

// Text returns the canonical form of s: control characters stripped, all
// whitespace (including non-breaking spaces) collapsed to single ASCII
// spaces, trimmed, lower-cased. Text is idempotent.
func Text(s string) string {
	if s == "" {
		return ""
	}
	stripped, _, err := transform.String(stripControl, s)
	if err != nil {
		// runes.Remove never fails; fall back to the raw input if it ever does.
		stripped = s
	}
	return strings.ToLower(strings.Join(strings.Fields(stripped), " "))
}

// Fingerprint derives the deterministic identity-adjacent hash for a listing.
// It hashes host:port:<normalized name truncated to 100 chars> with SHA-256.
// The fingerprint tracks drift for debugging; (host, port) remains the key.
func Fingerprint(host string, port int, name string) string {
	n := []rune(Text(name))
	if len(n) > nameFingerprintLimit {
		n = n[:nameFingerprintLimit]
	}
	sum := sha256.Sum256(fmt.Appendf(nil, "%s:%d:%s", host, port, string(n)))
	return hex.EncodeToString(sum[:])
}

// ContentHash digests the operational fields of a sighting
// (players|mission|version). It is a cheap duplicate-snapshot detector,
// deliberately weak and never used for identity.
func ContentHash(playersCurrent *int, mission, version *string) string {
	sum := md5.Sum(fmt.Appendf(nil, "%s|%s|%s",
		intField(playersCurrent), strField(mission), strField(version)))
	return hex.EncodeToString(sum[:])
}

func intField(p *int) string {
	if p == nil {
		return ""
	}
	return fmt.Sprintf("%d", *p)
}

func strField(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
