package output

import (
	"fmt"
	"io"
	"time"
)

// ProgressWriter counts bytes written through it and reports the running
// total on a status writer, at most once per interval.
type ProgressWriter struct {
	dst      io.Writer
	status   io.Writer
	title    string
	interval time.Duration
	written  int64
	last     time.Time
}

// NewProgressWriter wraps dst. A nil status writer disables reporting.
func NewProgressWriter(dst, status io.Writer, title string) *ProgressWriter {
	return &ProgressWriter{dst: dst, status: status, title: title, interval: 200 * time.Millisecond}
}

// Write implements io.Writer.
func (p *ProgressWriter) Write(b []byte) (int, error) {
	n, err := p.dst.Write(b)
	p.written += int64(n)
	if p.status != nil && time.Since(p.last) >= p.interval {
		p.last = time.Now()
		fmt.Fprintf(p.status, "\r%s %s", p.title, FormatBytes(p.written))
	}
	return n, err
}

// Written returns the number of bytes passed through.
func (p *ProgressWriter) Written() int64 {
	return p.written
}

// Finish prints the final total and ends the status line.
func (p *ProgressWriter) Finish() {
	if p.status != nil {
		fmt.Fprintf(p.status, "\r%s %s\n", p.title, FormatBytes(p.written))
	}
}

// FormatBytes formats a byte count with binary units.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
