package resource

import (
	"strings"

	"github.com/rs/zerolog"
)

// FileScheme is the optional prefix on resource patterns.
const FileScheme = "file://"

// Normalize strips the file scheme from a pattern. Other input is returned
// unchanged.
func Normalize(pattern string) string {
	return strings.TrimPrefix(pattern, FileScheme)
}

// ValidPatterns drops patterns that are empty or blank once normalized,
// logging each one, and removes duplicates while keeping first-seen order.
// The returned patterns are the caller's originals, not normalized forms.
func ValidPatterns(patterns []string, log zerolog.Logger) []string {
	seen := make(map[string]bool, len(patterns))
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(Normalize(p)) == "" {
			log.Warn().Str("pattern", p).Msg("skipping empty resource pattern")
			continue
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		valid = append(valid, p)
	}
	return valid
}
