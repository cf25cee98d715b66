package frame

import (
	"bytes"
	"io"

	"github.com/rs/zerolog"
)

const (
	readChunk   = 64 * 1024
	sentinel    = "\x0B\n"
	dumpRestart = "dump started at "
)

// Decoder recovers Frame records from a raw byte stream. It is a
// single-consumer pull iterator: call Next repeatedly until it returns
// io.EOF. Per-record grammar errors are returned as *HeaderError and do not
// end the stream; only an I/O error or EOF is terminal.
//
// The declared byte count in a header line is not used to locate the
// sentinel: readBody always scans (findBoundary) for the next VT LF whose
// trailing bytes look like a real header, and compares the realised content
// length with the declared count only to log a mismatch. A VT LF inside
// content that is followed by header-like bytes therefore ends the record
// early.
type Decoder struct {
	r   io.Reader
	log zerolog.Logger

	buf    []byte
	eof    bool
	frames uint64
}

// NewDecoder wraps r. A nil logger disables diagnostic logging.
func NewDecoder(r io.Reader, log *zerolog.Logger) *Decoder {
	d := &Decoder{r: r, buf: make([]byte, 0, readChunk*2)}
	if log != nil {
		d.log = *log
	} else {
		d.log = zerolog.Nop()
	}
	return d
}

func (d *Decoder) fill() error {
	if d.eof {
		return nil
	}
	old := len(d.buf)
	d.buf = append(d.buf, make([]byte, readChunk)...)
	n, err := d.r.Read(d.buf[old:])
	d.buf = d.buf[:old+n]
	if err == io.EOF || n == 0 {
		d.eof = true
	}
	if err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (d *Decoder) drain(n int) { d.buf = d.buf[n:] }

// Next returns the next recovered Frame, a *HeaderError for one damaged
// record (the decoder has already resumed at the next boundary; call Next
// again), or io.EOF when the stream is exhausted.
func (d *Decoder) Next() (Frame, error) {
	if len(d.buf) == 0 && !d.eof {
		if err := d.fill(); err != nil {
			return Frame{}, err
		}
	}
	if len(d.buf) == 0 {
		return Frame{}, io.EOF
	}

	if d.frames == 0 {
		if err := d.skipToFirstHeader(); err != nil {
			return Frame{}, err
		}
		if len(d.buf) == 0 {
			return Frame{}, io.EOF
		}
	}

	if n := drainPadding(d.buf); n > 0 {
		d.drain(n)
		return d.Next()
	}

	if bytes.HasPrefix(d.buf, []byte(dumpRestart)) {
		if err := d.consumeLine(); err != nil {
			return Frame{}, err
		}
		return d.Next()
	}

	if err := d.needLine(); err != nil {
		return Frame{}, err
	}

	hdr, herr := parseHeader(d.buf)
	if herr != nil {
		d.log.Warn().Err(herr).Msg("failed to parse frame header, attempting recovery")
		pos, ok, err := d.findBoundary(0)
		if err != nil {
			return Frame{}, err
		}
		if ok {
			d.drain(pos + 2)
		} else {
			d.buf = nil
		}
		return Frame{}, herr
	}

	return d.readBody(hdr)
}

// needLine ensures the buffer contains a complete header line (or is at
// EOF), reading more data if necessary.
func (d *Decoder) needLine() error {
	for bytes.IndexByte(d.buf, '\n') < 0 && !d.eof {
		if err := d.fill(); err != nil {
			return err
		}
	}
	return nil
}

// consumeLine discards the dump-restart marker line through its LF; any LF
// padding after it is drained by the next call to Next.
func (d *Decoder) consumeLine() error {
	if err := d.needLine(); err != nil {
		return err
	}
	nl := bytes.IndexByte(d.buf, '\n')
	if nl < 0 {
		d.buf = nil
		return nil
	}
	d.drain(nl + 1)
	return nil
}

func drainPadding(buf []byte) int {
	n := 0
	for n < len(buf) {
		switch {
		case buf[n] == '\n':
			n++
		case buf[n] == '\r' && n+1 < len(buf) && buf[n+1] == '\n':
			n += 2
		default:
			return n
		}
	}
	return n
}

// skipToFirstHeader discards bytes until the buffer begins with a valid
// frame header. Used only before the very first frame of a stream.
func (d *Decoder) skipToFirstHeader() error {
	for {
		if validHeaderPrefix(d.buf) {
			return nil
		}
		idx := bytes.Index(d.buf, []byte(sentinel))
		if idx >= 0 {
			after := idx + 2
			if after >= len(d.buf) && !d.eof {
				if err := d.fill(); err != nil {
					return err
				}
				continue
			}
			if after < len(d.buf) && validHeaderPrefix(d.buf[after:]) {
				d.log.Warn().Int("skipped_bytes", after).Msg("skipped partial first frame")
				d.drain(after)
				return nil
			}
			d.drain(idx + 2)
			continue
		}
		if d.eof {
			d.log.Debug().Msg("no valid frame header found in entire input")
			d.buf = nil
			return nil
		}
		if err := d.fill(); err != nil {
			return err
		}
	}
}

// findBoundary locates the next VT LF at or after offset start whose
// trailing bytes, after any LF / CR LF padding, form a valid header prefix
// or a dump-restart marker (or, at EOF, nothing but padding). It returns
// the offset of the VT byte.
func (d *Decoder) findBoundary(start int) (pos int, ok bool, err error) {
	searchFrom := start
	for {
		idx := bytes.Index(d.buf[searchFrom:], []byte(sentinel))
		if idx < 0 {
			if d.eof {
				return 0, false, nil
			}
			if err := d.fill(); err != nil {
				return 0, false, err
			}
			continue
		}
		abs := searchFrom + idx
		after := abs + 2
		after += drainPadding(d.buf[after:])
		if after >= len(d.buf) {
			if d.eof {
				return abs, true, nil
			}
			if err := d.fill(); err != nil {
				return 0, false, err
			}
			continue
		}
		if validHeaderPrefix(d.buf[after:]) || bytes.HasPrefix(d.buf[after:], []byte(dumpRestart)) {
			return abs, true, nil
		}
		searchFrom = abs + 2
	}
}

// readBody extracts the content for a record whose header has already been
// parsed.
func (d *Decoder) readBody(hdr parsedHeader) (Frame, error) {
	contentStart := hdr.HeaderLen

	for {
		pos, ok, err := d.findBoundary(contentStart)
		if err != nil {
			return Frame{}, err
		}
		if ok {
			content := append([]byte(nil), d.buf[contentStart:pos]...)
			d.drain(pos + 2)
			d.frames++
			if len(content) != hdr.ByteCount {
				d.log.Debug().
					Int("expected", hdr.ByteCount).
					Int("actual", len(content)).
					Msg("frame content size mismatch")
			}
			return d.buildFrame(hdr, content), nil
		}

		if d.eof {
			end := len(d.buf)
			if end > contentStart && d.buf[end-1] == 0x0B {
				end--
			}
			content := append([]byte(nil), d.buf[contentStart:end]...)
			d.buf = nil
			d.frames++
			if len(content) != hdr.ByteCount {
				d.log.Debug().
					Int("expected", hdr.ByteCount).
					Int("actual", len(content)).
					Msg("last frame content size mismatch")
			}
			return d.buildFrame(hdr, content), nil
		}

		if err := d.fill(); err != nil {
			return Frame{}, err
		}
	}
}

func (d *Decoder) buildFrame(hdr parsedHeader, content []byte) Frame {
	return Frame{
		Direction: hdr.Direction,
		Transport: hdr.Transport,
		Address:   hdr.Address,
		Timestamp: hdr.Timestamp,
		ByteCount: hdr.ByteCount,
		Content:   content,
	}
}
