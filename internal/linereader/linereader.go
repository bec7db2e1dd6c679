// Package linereader splits newline-delimited message streams. Lines over
// the size limit are discarded up to the next newline and reading goes on.
package linereader

import (
	"bufio"
	"io"
	"strings"
)

// DefaultMaxLineSize is the default maximum size (in bytes) of a single line.
const DefaultMaxLineSize = 1024 * 1024 // 1MB

const readBufferSize = 64 * 1024

// Reader yields non-empty lines with trailing "\r\n" or "\n" removed.
type Reader struct {
	br          *bufio.Reader
	maxLineSize int
	onOversized func(size int)
	buf         []byte
	skipped     int
}

// New wraps r. onOversized, if non-nil, is called with the full length of
// every line that was skipped for exceeding maxLineSize.
func New(r io.Reader, maxLineSize int, onOversized func(size int)) *Reader {
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	size := readBufferSize
	if maxLineSize < size {
		size = maxLineSize
	}
	return &Reader{
		br:          bufio.NewReaderSize(r, size),
		maxLineSize: maxLineSize,
		onOversized: onOversized,
	}
}

// Next returns the next line. It returns io.EOF once the input is exhausted
// and any other read error as is.
func (r *Reader) Next() (string, error) {
	for {
		size, err := r.readLine()
		if err != nil {
			return "", err
		}
		if size > r.maxLineSize {
			r.skipped++
			if r.onOversized != nil {
				r.onOversized(size)
			}
			continue
		}
		line := strings.TrimRight(string(r.buf), "\r")
		if line == "" {
			continue
		}
		return line, nil
	}
}

// Skipped returns how many oversized lines have been discarded.
func (r *Reader) Skipped() int { return r.skipped }

// readLine fills r.buf with one line, keeping at most maxLineSize bytes, and
// returns the line's real length.
func (r *Reader) readLine() (int, error) {
	r.buf = r.buf[:0]
	size := 0
	for {
		chunk, isPrefix, err := r.br.ReadLine()
		if err != nil {
			if size > 0 && err == io.EOF {
				return size, nil
			}
			return 0, err
		}
		size += len(chunk)
		if size <= r.maxLineSize {
			r.buf = append(r.buf, chunk...)
		}
		if !isPrefix {
			return size, nil
		}
	}
}
