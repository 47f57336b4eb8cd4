package cache

import (
	"fmt"
	"strconv"
)

// BuildKey derives the deterministic cache identity for a derivative from
// the source path and every parameter that affects rendered output. Absent
// dimensions render as the literal "auto", which no real value can collide
// with since widths and heights are formatted as decimal integers.
//
// Keys start with the source path followed by '|' so every derivative of
// one source shares a prefix; DeletePrefix invalidation relies on this.
func BuildKey(sourcePath string, width, height, quality int, format string) string {
	return fmt.Sprintf("%s|w=%s|h=%s|q=%d|f=%s", sourcePath, dimension(width), dimension(height), quality, format)
}

// KeyPrefix returns the prefix shared by every derivative of the given
// source path, for use with DerivativeCache.DeletePrefix.
func KeyPrefix(sourcePath string) string {
	return sourcePath + "|"
}

func dimension(v int) string {
	if v <= 0 {
		return "auto"
	}
	return strconv.Itoa(v)
}
