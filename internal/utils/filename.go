package utils

import (
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeFilename repairs client-supplied filenames that arrived mis-decoded as
// Latin-1. Browsers send UTF-8 bytes; some multipart stacks read them one byte
// per rune, turning "测试.jpg" into mojibake. Re-encoding those runes back to
// single bytes and re-reading as UTF-8 restores the original name. Names that
// don't survive the round trip are returned unchanged.
func DecodeFilename(name string) string {
	raw, err := charmap.ISO8859_1.NewEncoder().String(name)
	if err != nil {
		// name contains runes > 0xFF, so it was never Latin-1 mangled
		return name
	}
	if raw == name {
		// pure ASCII, nothing to repair
		return name
	}
	if !utf8.ValidString(raw) {
		return name
	}
	return raw
}
