// Package utils provides small shared helpers for the PBS exporter.
package utils

// Label value length bounds for comment labels. Comments are free text and
// would otherwise blow up series identity; anything over maxLabelLen is cut
// down to truncatedLabelLen characters.
const (
	maxLabelLen       = 50
	truncatedLabelLen = 47
)

// TruncateLabel bounds a free-text label value. Values longer than 50
// characters are truncated to their first 47 characters. The cut is
// rune-based so multi-byte text is never split mid-character.
func TruncateLabel(s string) string {
	runes := []rune(s)
	if len(runes) <= maxLabelLen {
		return s
	}
	return string(runes[:truncatedLabelLen])
}
