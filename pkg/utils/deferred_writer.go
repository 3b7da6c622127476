package utils

import (
	"bytes"
	"io"
	"sync"
)

// DeferredWriter buffers writes in memory until Flush is called. It exists
// so verbose agent output can be captured during a run and replayed after
// the live progress lines, instead of interleaving with them. Safe for
// concurrent use.
type DeferredWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write appends p to the internal buffer.
func (d *DeferredWriter) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Write(p)
}

// Len reports the number of buffered bytes not yet flushed.
func (d *DeferredWriter) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buf.Len()
}

// Flush writes everything buffered so far to w and resets the buffer.
// A flush of an empty buffer writes nothing.
func (d *DeferredWriter) Flush(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buf.Len() == 0 {
		return nil
	}

	_, err := d.buf.WriteTo(w)
	return err
}
