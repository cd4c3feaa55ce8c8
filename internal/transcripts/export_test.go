package transcripts

import (
	"strings"
	"testing"

	"github.com/soundscribe/backend/internal/models"
)

func TestExportFilename(t *testing.T) {
	cases := []struct {
		name  string
		audio models.Audio
		want  string
	}{
		{
			name:  "title wins",
			audio: models.Audio{ID: 1, Name: "weekly sync", Subject: "planning", FilePath: "audios/abc.mp3"},
			want:  "weekly sync.txt",
		},
		{
			name:  "subject when no title",
			audio: models.Audio{ID: 1, Name: "  ", Subject: "planning", FilePath: "audios/abc.mp3"},
			want:  "planning.txt",
		},
		{
			name:  "stored basename without extension",
			audio: models.Audio{ID: 1, FilePath: "audios/abc.mp3"},
			want:  "abc.txt",
		},
		{
			name:  "numeric fallback",
			audio: models.Audio{ID: 42},
			want:  "audio_42.txt",
		},
		{
			name:  "path separators stripped",
			audio: models.Audio{ID: 1, Name: `a/b\c"d`},
			want:  "a_b_c_d.txt",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ExportFilename(&c.audio); got != c.want {
				t.Errorf("ExportFilename = %q, want %q", got, c.want)
			}
		})
	}
}

func TestContentDisposition(t *testing.T) {
	got := ContentDisposition("جلسه هفتگی.txt")
	if !strings.HasPrefix(got, `attachment; filename="`) {
		t.Errorf("missing attachment prefix: %q", got)
	}
	if !strings.Contains(got, "filename*=UTF-8''") {
		t.Errorf("missing RFC 5987 form: %q", got)
	}
	if strings.ContainsAny(got[len(`attachment; filename="`):strings.Index(got, `"; filename*`)], "ج") {
		t.Errorf("ASCII fallback contains non-ASCII: %q", got)
	}

	plain := ContentDisposition("notes.txt")
	if !strings.Contains(plain, `filename="notes.txt"`) {
		t.Errorf("plain name mangled: %q", plain)
	}
}
