package ingest

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf16"
)

// ErrBookmarkNotImplemented signals a recognized-but-unhandled encoding (the
// Bookmark variant). The caller should record the warning and skip the
// sample rather than fail the parse.
var ErrBookmarkNotImplemented = fmt.Errorf("bookmark record decoding is not implemented")

// DecodeDirectPath trims a direct Path/Value attribute (major >= 11). No
// further decoding is needed; the value is already a filesystem path.
func DecodeDirectPath(value string) string {
	return strings.TrimSpace(value)
}

// DecodeLegacySamplePath decodes the hex-encoded text of a <Data> element
// (major < 11) into a filesystem path. It auto-detects one of three binary
// layouts: UTF-16LE path bytes, a classic alias record with an embedded
// POSIX path, or a bookmark record (unimplemented).
func DecodeLegacySamplePath(hexText string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(strings.Join(strings.Fields(hexText), "")))
	if err != nil {
		return "", fmt.Errorf("invalid hex data: %w", err)
	}

	if looksLikeUTF16LEPath(raw) {
		return decodeUTF16LEPath(raw), nil
	}
	if path, ok := tryDecodeAliasRecord(raw); ok {
		return path, nil
	}
	return "", ErrBookmarkNotImplemented
}

// looksLikeUTF16LEPath applies the heuristic: at least 16 bytes, and every
// odd-indexed byte is zero (ASCII text encoded as UTF-16LE has a zero high
// byte for every code unit in the ASCII range).
func looksLikeUTF16LEPath(raw []byte) bool {
	if len(raw) < 16 || len(raw)%2 != 0 {
		return false
	}
	for i := 1; i < len(raw); i += 2 {
		if raw[i] != 0 {
			return false
		}
	}
	return true
}

func decodeUTF16LEPath(raw []byte) string {
	u16 := make([]uint16, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		u16 = append(u16, uint16(raw[i])|uint16(raw[i+1])<<8)
	}
	s := string(utf16.Decode(u16))
	return strings.TrimRight(s, "\x00")
}

// tryDecodeAliasRecord scans a classic Mac OS alias record for an embedded
// POSIX path. Alias records carry the path as a Pascal-style length-prefixed
// string inside a variable-layout binary blob; this extracts the first
// printable '/'-rooted run long enough to plausibly be a path, which is the
// same pragmatic heuristic applied to the UTF-16 case above.
func tryDecodeAliasRecord(raw []byte) (string, bool) {
	if len(raw) < 4 {
		return "", false
	}
	start := -1
	for i, b := range raw {
		if b == '/' {
			start = i
			break
		}
	}
	if start == -1 {
		return "", false
	}
	end := start
	for end < len(raw) && isPrintablePathByte(raw[end]) {
		end++
	}
	if end-start < 2 {
		return "", false
	}
	return string(raw[start:end]), true
}

func isPrintablePathByte(b byte) bool {
	return b >= 0x20 && b < 0x7f
}
