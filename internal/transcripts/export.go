package transcripts

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/soundscribe/backend/internal/models"
)

// ExportFilename derives the download name for a transcript export: the audio
// title, then the subject, then the stored file's base name, then a numeric
// fallback. The result always carries a .txt extension.
func ExportFilename(audio *models.Audio) string {
	base := strings.TrimSpace(audio.Name)
	if base == "" {
		base = strings.TrimSpace(audio.Subject)
	}
	if base == "" && audio.FilePath != "" {
		stored := filepath.Base(audio.FilePath)
		base = strings.TrimSuffix(stored, filepath.Ext(stored))
	}
	if base == "" {
		base = fmt.Sprintf("audio_%d", audio.ID)
	}
	return sanitizeFilename(base) + ".txt"
}

// sanitizeFilename strips characters that break header values or paths.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == '"' || r < 0x20:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ContentDisposition builds an attachment header that survives non-ASCII
// names: an ASCII fallback plus the RFC 5987 encoded form.
func ContentDisposition(filename string) string {
	ascii := make([]rune, 0, len(filename))
	for _, r := range filename {
		if r > 0x7e || r < 0x20 {
			ascii = append(ascii, '_')
			continue
		}
		ascii = append(ascii, r)
	}
	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`,
		string(ascii), url.PathEscape(filename))
}
