// Package ndjson reads and writes newline-delimited JSON, one value per line.
package ndjson

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"os"

	"github.com/rotisserie/eris"
)

// maxLineSize bounds a single line. Mask geometries of large sheets can run to
// several megabytes.
const maxLineSize = 64 << 20

// Writer appends JSON values to an underlying stream, one per line.
type Writer struct {
	buf    *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
	count  int
}

// NewWriter wraps w. Close flushes but never closes w.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	return &Writer{buf: buf, enc: enc}
}

// Create truncates or creates the file at path and returns a Writer owning it.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ndjson: create %s", path)
	}
	w := NewWriter(f)
	w.closer = f
	return w, nil
}

// Write encodes v as a single line.
func (w *Writer) Write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return eris.Wrapf(err, "ndjson: encode line %d", w.count+1)
	}
	w.count++
	return nil
}

// Count returns the number of lines written so far.
func (w *Writer) Count() int { return w.count }

// Flush writes buffered lines to the underlying stream.
func (w *Writer) Flush() error {
	return eris.Wrap(w.buf.Flush(), "ndjson: flush")
}

// Close flushes and, when the Writer owns a file, closes it.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		if w.closer != nil {
			_ = w.closer.Close()
		}
		return err
	}
	if w.closer != nil {
		return eris.Wrap(w.closer.Close(), "ndjson: close")
	}
	return nil
}

// Decode yields one value per non-blank line of r. A malformed line ends the
// sequence with an error naming the line number.
func Decode[T any](r io.Reader) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		lineNo := 0
		for sc.Scan() {
			lineNo++
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			var v T
			if err := json.Unmarshal(line, &v); err != nil {
				yield(zero, eris.Wrapf(err, "ndjson: decode line %d", lineNo))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(zero, eris.Wrap(err, "ndjson: scan"))
		}
	}
}

// DecodeFile is Decode over the file at path. The file is closed when the
// sequence finishes or the consumer stops early.
func DecodeFile[T any](path string) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			var zero T
			yield(zero, eris.Wrapf(err, "ndjson: open %s", path))
			return
		}
		defer f.Close() //nolint:errcheck

		for v, err := range Decode[T](f) {
			if !yield(v, err) {
				return
			}
		}
	}
}
