package record

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Writer encodes records as JSON lines.
type Writer struct {
	bw    *bufio.Writer
	enc   *json.Encoder
	count int64
}

// NewWriter wraps w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriterSize(w, 256*1024)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{bw: bw, enc: enc}
}

// Write appends one record line.
func (w *Writer) Write(rec Record) error {
	if err := w.enc.Encode(rec); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int64 { return w.count }

// Flush writes buffered data to the underlying writer.
func (w *Writer) Flush() error { return w.bw.Flush() }

// ScanIDs reads a JSON-lines artifact and calls fn with each record ID in file order.
func ScanIDs(r io.Reader, fn func(id uint64) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var head struct {
			ID *uint64 `json:"id"`
		}
		if err := json.Unmarshal(line, &head); err != nil {
			return fmt.Errorf("%w: line %d: %w", ErrMalformedRecord, lineNo, err)
		}
		if head.ID == nil {
			return fmt.Errorf("%w: line %d: missing id", ErrMalformedRecord, lineNo)
		}
		if err := fn(*head.ID); err != nil {
			return err
		}
	}
	return scanner.Err()
}
