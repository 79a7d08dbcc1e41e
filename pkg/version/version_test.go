package version

import (
	"bytes"
	"testing"
)

func TestVersionFallbacks(t *testing.T) {
	saved := [3]string{tag, commit, date}
	t.Cleanup(func() { tag, commit, date = saved[0], saved[1], saved[2] })

	tests := []struct {
		name              string
		tag, commit, date string
		wantShort         string
		wantFull          string
	}{
		{"dev", "", "unknown", "unknown", "dev", "dev"},
		{"untagged", "", "abc1234", "2026-01-01", "abc1234", "abc1234 built 2026-01-01"},
		{"tagged", "v0.3.0", "abc1234", "2026-01-01", "v0.3.0", "v0.3.0 (abc1234) built 2026-01-01"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, commit, date = tt.tag, tt.commit, tt.date
			if got := String(); got != tt.wantShort {
				t.Errorf("String() = %q, want %q", got, tt.wantShort)
			}
			if got := Full(); got != tt.wantFull {
				t.Errorf("Full() = %q, want %q", got, tt.wantFull)
			}
			var buf bytes.Buffer
			Fprint(&buf, "textconf-server")
			if want := "textconf-server " + tt.wantFull + "\n"; buf.String() != want {
				t.Errorf("Fprint = %q, want %q", buf.String(), want)
			}
		})
	}
}
