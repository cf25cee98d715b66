// Package reassemble reassembles stream-transport Frames into complete
// sip.SipMessages per (direction, peer) connection, splits aggregated
// messages sharing one record, and passes datagram-transport frames
// through untouched.
package reassemble

import (
	"bytes"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sipdump/dumpsip/frame"
	"github.com/sipdump/dumpsip/sip"
)

// bufferKey identifies one half-stream: the finest key that survives
// concurrent reads/writes on a single socket and still uniquely identifies
// which direction+peer a Frame belongs to (spec §4.3).
type bufferKey struct {
	direction frame.Direction
	peer      string
}

// connBuffer accumulates frame content for one bufferKey until complete SIP
// messages can be cut from it.
type connBuffer struct {
	id        string // google/uuid identifier, for log correlation across many frames
	content   []byte
	transport frame.Transport
	timestamp frame.Timestamp // timestamp of the first frame contributing to the in-progress message
	frames    int             // frames accumulated since the last extracted message, reset to 0 on extraction
	reported  bool            // whether frameCount has been reported for the message currently being cut from buf; reset on extraction
}

// Reassembler is a pull iterator over sip.SipMessage, fed by a
// *frame.Decoder. Call Next until it returns io.EOF.
type Reassembler struct {
	decoder *frame.Decoder
	log     zerolog.Logger

	buffers map[bufferKey]*connBuffer
	order   []bufferKey // insertion order, so end-of-stream flush is deterministic

	pending []sip.SipMessage
	done    bool
}

// NewReassembler wraps d. A nil logger disables diagnostic logging.
func NewReassembler(d *frame.Decoder, log *zerolog.Logger) *Reassembler {
	r := &Reassembler{decoder: d, buffers: make(map[bufferKey]*connBuffer)}
	if log != nil {
		r.log = *log
	} else {
		r.log = zerolog.Nop()
	}
	return r
}

// Next returns the next reassembled sip.SipMessage, a *frame.HeaderError
// forwarded from the decoder, or io.EOF once every buffer has been flushed.
func (r *Reassembler) Next() (sip.SipMessage, error) {
	for {
		if len(r.pending) > 0 {
			msg := r.pending[0]
			r.pending = r.pending[1:]
			return msg, nil
		}
		if r.done {
			return sip.SipMessage{}, io.EOF
		}

		f, err := r.decoder.Next()
		if err == io.EOF {
			r.flushAll()
			r.done = true
			if len(r.pending) == 0 {
				return sip.SipMessage{}, io.EOF
			}
			continue
		}
		if err != nil {
			return sip.SipMessage{}, err
		}

		r.ingest(f)
	}
}

func (r *Reassembler) ingest(f frame.Frame) {
	if !f.Transport.IsStream() {
		r.pending = append(r.pending, sip.SipMessage{
			Direction:  f.Direction,
			Transport:  f.Transport,
			Address:    f.Address,
			Timestamp:  f.Timestamp,
			Content:    f.Content,
			FrameCount: 1,
		})
		return
	}

	key := bufferKey{f.Direction, f.Address}
	buf, ok := r.buffers[key]
	if !ok {
		buf = &connBuffer{id: uuid.NewString(), transport: f.Transport}
		r.buffers[key] = buf
		r.order = append(r.order, key)
	}

	if len(buf.content) == 0 {
		buf.timestamp = f.Timestamp
	}
	buf.content = append(buf.content, f.Content...)
	buf.frames++

	r.log.Debug().
		Str("conn_id", buf.id).
		Str("peer", f.Address).
		Str("direction", f.Direction.String()).
		Int("frame_bytes", len(f.Content)).
		Msg("appended frame to connection buffer")

	for r.extract(key, buf) {
	}
}

// extract implements spec §4.3's per-buffer extract procedure: it cuts at
// most one complete message from buf and reports whether bytes remain for
// another attempt, so callers loop until it returns false.
func (r *Reassembler) extract(key bufferKey, buf *connBuffer) bool {
	if len(buf.content) == 0 {
		return false
	}

	if !isSipStart(buf.content) {
		if n := leadingCRLF(buf.content); n > 0 && isSipStart(buf.content[n:]) {
			buf.content = buf.content[n:]
		} else if skip, found := scanForSipStart(buf.content); found {
			r.log.Warn().
				Str("conn_id", buf.id).
				Int("skipped_bytes", skip).
				Msg("discarding non-SIP prefix on stream buffer")
			buf.content = buf.content[skip:]
		} else {
			return false
		}
	}

	headerEnd := bytes.Index(buf.content, crlfcrlf)
	if headerEnd < 0 {
		return false
	}

	contentLength := findContentLength(buf.content[:headerEnd])
	total := headerEnd + 4 + contentLength
	if len(buf.content) < total {
		return false
	}

	msgContent := buf.content[:total]
	frameCount := 0
	if !buf.reported {
		frameCount = buf.frames
		buf.reported = true
	}

	r.pending = append(r.pending, sip.SipMessage{
		Direction:  key.direction,
		Transport:  buf.transport,
		Address:    key.peer,
		Timestamp:  buf.timestamp,
		Content:    append([]byte(nil), msgContent...),
		FrameCount: frameCount,
	})

	rest := buf.content[total:]
	rest = rest[leadingCRLF(rest):]
	buf.content = append([]byte(nil), rest...)
	buf.frames = 0
	buf.reported = false
	return len(buf.content) > 0
}

func (r *Reassembler) flushAll() {
	for _, key := range r.order {
		buf := r.buffers[key]
		for r.extract(key, buf) {
		}
		if len(buf.content) > 0 {
			frameCount := 0
			if !buf.reported {
				frameCount = buf.frames
			}
			r.pending = append(r.pending, sip.SipMessage{
				Direction:  key.direction,
				Transport:  buf.transport,
				Address:    key.peer,
				Timestamp:  buf.timestamp,
				Content:    buf.content,
				FrameCount: frameCount,
			})
			buf.content = nil
		}
	}
}
