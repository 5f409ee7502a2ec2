package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressWriter(t *testing.T) {
	var dst, status bytes.Buffer
	p := NewProgressWriter(&dst, &status, "backup")

	for i := 0; i < 3; i++ {
		if _, err := p.Write(bytes.Repeat([]byte{'x'}, 1024)); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	p.Finish()

	if dst.Len() != 3072 || p.Written() != 3072 {
		t.Errorf("written = %d / %d, want 3072", dst.Len(), p.Written())
	}
	if !strings.HasSuffix(status.String(), "backup 3.0 KiB\n") {
		t.Errorf("status = %q", status.String())
	}
}

func TestProgressWriter_NoStatus(t *testing.T) {
	var dst bytes.Buffer
	p := NewProgressWriter(&dst, nil, "backup")
	p.Write([]byte("abc"))
	p.Finish()
	if dst.String() != "abc" {
		t.Errorf("dst = %q", dst.String())
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 << 20, "5.0 MiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
