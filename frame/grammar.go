package frame

import (
	"bytes"
)

// validHeaderPrefix reports whether data begins with the ASCII pattern
// ("recv"|"sent") SP <1-10 digits> SP "bytes" SP — the conservative check
// spec §4.2 uses to disambiguate an in-content VT LF from a real record
// boundary. It deliberately does not validate the rest of the header
// (transport, address, timestamp): the boundary scan only needs
// to know "this looks like the start of a header", and checking more would
// make recovery slower without making it more correct.
func validHeaderPrefix(data []byte) bool {
	var rest []byte
	switch {
	case bytes.HasPrefix(data, []byte("recv ")):
		rest = data[5:]
	case bytes.HasPrefix(data, []byte("sent ")):
		rest = data[5:]
	default:
		return false
	}

	sp := bytes.IndexByte(rest, ' ')
	if sp <= 0 || sp > 10 {
		return false
	}
	for _, b := range rest[:sp] {
		if b < '0' || b > '9' {
			return false
		}
	}
	return bytes.HasPrefix(rest[sp:], []byte(" bytes "))
}

// parsedHeader holds the fields of one record's header line.
type parsedHeader struct {
	Direction Direction
	ByteCount int
	Transport Transport
	Address   string
	Timestamp Timestamp
	// HeaderLen is the number of bytes occupied by the header line itself,
	// including its terminating LF (or CR LF).
	HeaderLen int
}

// parseHeader parses one frame header line from the front of data.
//
//	("recv"|"sent") SP <digits> SP "bytes" SP ("from"|"to") SP <transport> "/" <address> SP "at" SP <timestamp> ":"
//
// optionally with CR before the terminating LF.
func parseHeader(data []byte) (parsedHeader, error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return parsedHeader{}, &HeaderError{Reason: "no newline in header"}
	}
	line := bytes.TrimSuffix(data[:nl], []byte("\r"))
	trimmed := bytes.TrimSuffix(line, []byte(":"))
	if len(trimmed) == len(line) {
		return parsedHeader{}, &HeaderError{Reason: "header does not end with ':'", Sample: boundedSample(data)}
	}
	line = trimmed

	var direction Direction
	switch {
	case bytes.HasPrefix(line, []byte("recv ")):
		direction = Received
	case bytes.HasPrefix(line, []byte("sent ")):
		direction = Sent
	default:
		return parsedHeader{}, &HeaderError{Reason: "expected 'recv' or 'sent'", Sample: boundedSample(data)}
	}
	pos := 5

	sp := bytes.IndexByte(line[pos:], ' ')
	if sp < 0 {
		return parsedHeader{}, &HeaderError{Reason: "no space after byte count", Sample: boundedSample(data)}
	}
	byteCount, ok := parseUint(line[pos : pos+sp])
	if !ok {
		return parsedHeader{}, &HeaderError{Reason: "invalid byte count", Sample: boundedSample(data)}
	}
	pos += sp + 1

	var expected []byte
	if direction == Received {
		expected = []byte("bytes from ")
	} else {
		expected = []byte("bytes to ")
	}
	if !bytes.HasPrefix(line[pos:], expected) {
		return parsedHeader{}, &HeaderError{Reason: "expected '" + string(expected) + "'", Sample: boundedSample(data)}
	}
	pos += len(expected)

	var transport Transport
	switch {
	case bytes.HasPrefix(line[pos:], []byte("tcp/")):
		transport, pos = TCP, pos+4
	case bytes.HasPrefix(line[pos:], []byte("udp/")):
		transport, pos = UDP, pos+4
	case bytes.HasPrefix(line[pos:], []byte("tls/")):
		transport, pos = TLS, pos+4
	case bytes.HasPrefix(line[pos:], []byte("wss/")):
		transport, pos = WSS, pos+4
	default:
		return parsedHeader{}, &HeaderError{Reason: "unknown transport", Sample: boundedSample(data)}
	}

	atMarker := []byte(" at ")
	atPos := bytes.Index(line[pos:], atMarker)
	if atPos < 0 {
		return parsedHeader{}, &HeaderError{Reason: "no ' at ' in header", Sample: boundedSample(data)}
	}
	address := string(line[pos : pos+atPos])
	pos += atPos + len(atMarker)

	ts, ok := parseTimestamp(line[pos:])
	if !ok {
		return parsedHeader{}, &HeaderError{Reason: "invalid timestamp", Sample: boundedSample(data)}
	}

	return parsedHeader{
		Direction: direction,
		ByteCount: byteCount,
		Transport: transport,
		Address:   address,
		Timestamp: ts,
		HeaderLen: nl + 1,
	}, nil
}

func boundedSample(data []byte) []byte {
	const max = 48
	if len(data) > max {
		return data[:max]
	}
	return data
}

func parseUint(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 10 {
		return 0, false
	}
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, true
}

func parseFixed(b []byte, width int) (int, bool) {
	if len(b) != width {
		return 0, false
	}
	return parseUint(b)
}

// parseTimestamp parses either HH:MM:SS.uuuuuu or YYYY-MM-DD HH:MM:SS.uuuuuu.
func parseTimestamp(b []byte) (Timestamp, bool) {
	if len(b) >= 26 && b[4] == '-' && b[7] == '-' && b[10] == ' ' {
		year, ok := parseFixed(b[0:4], 4)
		if !ok {
			return Timestamp{}, false
		}
		month, ok := parseFixed(b[5:7], 2)
		if !ok {
			return Timestamp{}, false
		}
		day, ok := parseFixed(b[8:10], 2)
		if !ok {
			return Timestamp{}, false
		}
		hour, minute, sec, usec, ok := parseTimeOfDay(b[11:])
		if !ok {
			return Timestamp{}, false
		}
		return Timestamp{HasDate: true, Year: year, Month: month, Day: day, Hour: hour, Minute: minute, Second: sec, Micro: usec}, true
	}

	hour, minute, sec, usec, ok := parseTimeOfDay(b)
	if !ok {
		return Timestamp{}, false
	}
	return Timestamp{Hour: hour, Minute: minute, Second: sec, Micro: usec}, true
}

// parseTimeOfDay parses exactly HH:MM:SS.uuuuuu (15 bytes), ignoring any
// trailing bytes beyond it.
func parseTimeOfDay(b []byte) (hour, minute, sec, usec int, ok bool) {
	if len(b) < 15 {
		return 0, 0, 0, 0, false
	}
	if b[2] != ':' || b[5] != ':' || b[8] != '.' {
		return 0, 0, 0, 0, false
	}
	hour, ok = parseFixed(b[0:2], 2)
	if !ok {
		return
	}
	minute, ok = parseFixed(b[3:5], 2)
	if !ok {
		return
	}
	sec, ok = parseFixed(b[6:8], 2)
	if !ok {
		return
	}
	usec, ok = parseFixed(b[9:15], 6)
	return
}
