// Package fixstore records verification failures, correlates them
// with the edits that fixed them, and replays stored patches for
// recurring errors under a learned success-rate gate.
package fixstore

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// Normalization replaces the variable parts of an error message so
// that two occurrences of the same underlying error hash identically
// regardless of file names, positions, literals, or addresses.
var (
	quotedRe     = regexp.MustCompile("`[^`]*`|'[^']*'|\"[^\"]*\"")
	hexAddrRe    = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	pathRe       = regexp.MustCompile(`[A-Za-z0-9_.~\-]*(/[A-Za-z0-9_.\-]+)+`)
	lineColRe    = regexp.MustCompile(`\d+:\d+`)
	numberRe     = regexp.MustCompile(`\b\d+\b`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Normalize reduces an error message to its shape: lowercased, with
// quoted literals, hex addresses, file paths, line:col pairs, and bare
// numbers replaced by placeholders, and whitespace collapsed.
func Normalize(message string) string {
	s := strings.ToLower(message)
	s = quotedRe.ReplaceAllString(s, "X")
	s = hexAddrRe.ReplaceAllString(s, "ADDR")
	s = pathRe.ReplaceAllString(s, "FILE")
	s = lineColRe.ReplaceAllString(s, "N:N")
	s = numberRe.ReplaceAllString(s, "N")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Signature returns the deterministic pattern key for an error:
// the category joined with a 12-hex-digit hash of the normalized
// message. Every store operation keys off this value.
func Signature(category, message string) string {
	return category + "-" + hash12(Normalize(message))
}

// hash12 returns the first 12 hex digits of the FNV-1a hash of s.
func hash12(s string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%016x", h.Sum64())[:12]
}
