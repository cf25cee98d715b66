// Package sipfilter provides the pre-decode separator filter and the
// post-parse predicate filters used to select which reassembled SIP
// messages a caller is interested in.
package sipfilter

import (
	"bufio"
	"io"
)

// SeparatorFilter wraps a reader, dropping any line that is exactly "--\n"
// or "--\r\n" so that concatenated dump files read as one continuous
// stream of frames. Partial matches ("---\n", "-- \n", "--x\n") pass
// through unchanged.
type SeparatorFilter struct {
	src *bufio.Reader
	buf []byte
	pos int
}

// StripSeparators wraps r with a SeparatorFilter.
func StripSeparators(r io.Reader) io.Reader {
	return &SeparatorFilter{src: bufio.NewReader(r)}
}

func isSeparatorLine(line []byte) bool {
	return string(line) == "--\n" || string(line) == "--\r\n"
}

// Read refills its internal buffer one line at a time, dropping separator
// lines, until it has at least len(p) bytes buffered or the source is
// exhausted, then serves from the buffer.
func (f *SeparatorFilter) Read(p []byte) (int, error) {
	if f.pos < len(f.buf) {
		return f.drain(p), nil
	}

	f.buf, f.pos = f.buf[:0], 0

	for len(f.buf) < len(p) {
		start := len(f.buf)
		line, err := f.src.ReadBytes('\n')
		f.buf = append(f.buf, line...)
		if isSeparatorLine(f.buf[start:]) {
			f.buf = f.buf[:start]
		}
		if err != nil {
			if len(f.buf) == 0 {
				return 0, err
			}
			return f.drain(p), nil
		}
	}

	return f.drain(p), nil
}

func (f *SeparatorFilter) drain(p []byte) int {
	n := copy(p, f.buf[f.pos:])
	f.pos += n
	if f.pos == len(f.buf) {
		f.buf, f.pos = f.buf[:0], 0
	}
	return n
}
