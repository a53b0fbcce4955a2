package units

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		name string
		n    int64
		want string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 512, "512 B"},
		{"kib", 2048, "2.0 KiB"},
		{"mib", 5 << 20, "5.0 MiB"},
		{"fractional mib", 1536 << 10, "1.5 MiB"},
		{"gib", 3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatBytes(tt.n)
			if got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.n, got, tt.want)
			}
		})
	}
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		want string
	}{
		{"zero", 0, "0%"},
		{"half", 0.5, "50%"},
		{"done", 1, "100%"},
		{"below range", -0.2, "0%"},
		{"above range", 1.7, "100%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatProgress(tt.p)
			if got != tt.want {
				t.Errorf("FormatProgress(%v) = %q, want %q", tt.p, got, tt.want)
			}
		})
	}
}
