// Package streamutil provides small io.Reader/io.Writer wrappers used
// by the upload engines and sync worker. Every wrapper is a pure
// passthrough: it never buffers more than the caller's own read/write
// call, so backpressure flows through unchanged.
package streamutil

import "io"

// CountingReader wraps an io.Reader and tracks the number of bytes
// read so far, used to verify a received upload matches its declared
// size without holding the whole payload in memory.
type CountingReader struct {
	r     io.Reader
	count int64
}

func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{r: r}
}

func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.count += int64(n)
	return n, err
}

// Count returns the number of bytes read so far.
func (c *CountingReader) Count() int64 {
	return c.count
}

// CountingWriter is the write-side equivalent of CountingReader.
type CountingWriter struct {
	w     io.Writer
	count int64
}

func NewCountingWriter(w io.Writer) *CountingWriter {
	return &CountingWriter{w: w}
}

func (c *CountingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.count += int64(n)
	return n, err
}

func (c *CountingWriter) Count() int64 {
	return c.count
}

// ProgressFunc receives the cumulative bytes transferred and the total
// expected, when known (0 if not).
type ProgressFunc func(transferred, total int64)

// ProgressReader wraps an io.Reader and invokes onProgress as bytes
// are read, throttled so a caller can update a ProgressRecord every
// intervalPercent of total without hammering the progress store on
// every chunk. A zero total or intervalPercent disables throttling:
// onProgress fires on every read.
type ProgressReader struct {
	r               io.Reader
	total           int64
	intervalPercent int
	onProgress      ProgressFunc

	transferred  int64
	lastReported int64
}

func NewProgressReader(r io.Reader, total int64, intervalPercent int, onProgress ProgressFunc) *ProgressReader {
	return &ProgressReader{
		r:               r,
		total:           total,
		intervalPercent: intervalPercent,
		onProgress:      onProgress,
	}
}

func (p *ProgressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.transferred += int64(n)

	if p.onProgress != nil && p.shouldReport(err) {
		p.lastReported = p.transferred
		p.onProgress(p.transferred, p.total)
	}
	return n, err
}

func (p *ProgressReader) shouldReport(readErr error) bool {
	if readErr == io.EOF {
		return true
	}
	if p.total <= 0 || p.intervalPercent <= 0 {
		return true
	}

	step := p.total * int64(p.intervalPercent) / 100
	if step <= 0 {
		return true
	}
	return p.transferred-p.lastReported >= step
}

// Transferred returns the cumulative bytes read so far.
func (p *ProgressReader) Transferred() int64 {
	return p.transferred
}
