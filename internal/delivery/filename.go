package delivery

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// filenameLimit caps the sanitized base name length, leaving headroom for
// the numeric suffix and extension within Telegram's filename limits.
const filenameLimit = 80

// BuildFilename derives the attachment filename for one track: sanitized
// base, a numeric suffix when the generation produced more than one track,
// and the extension taken from the source URL (".mp3" when absent).
func BuildFilename(base string, index, total int, rawURL string) string {
	name := SanitizeFilename(base)
	if name == "" {
		name = "track"
	}
	ext := ".mp3"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	if total > 1 {
		return fmt.Sprintf("%s_%d%s", name, index, ext)
	}
	return name + ext
}

// SanitizeFilename makes a user-supplied title safe for filesystems:
// forbidden characters become underscores, whitespace runs collapse to one
// space, the result is trimmed, truncated to filenameLimit, and stripped of
// trailing dots.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(`\/:*?"<>|`, r), r == '\n', r == '\r', r == '\t':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.Join(strings.Fields(b.String()), " ")
	cleaned = strings.TrimRight(strings.TrimSpace(cleaned), ".")
	if runes := []rune(cleaned); len(runes) > filenameLimit {
		cleaned = strings.TrimSpace(string(runes[:filenameLimit]))
		cleaned = strings.TrimRight(cleaned, ".")
	}
	return cleaned
}
