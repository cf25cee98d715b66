package reassemble

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/sipdump/dumpsip/sip"
)

var crlfcrlf = []byte("\r\n\r\n")

// isSipStart reports whether data begins with a recognised SIP request or
// response start line (spec §4.3's "Recognised SIP starts").
func isSipStart(data []byte) bool {
	if bytes.HasPrefix(data, []byte("SIP/2.0 ")) {
		return true
	}
	for _, method := range sip.RecognisedMethods {
		if bytes.HasPrefix(data, []byte(method+" ")) {
			return true
		}
	}
	return false
}

// leadingCRLF returns the length of a run of leading CR LF pairs.
func leadingCRLF(data []byte) int {
	n := 0
	for bytes.HasPrefix(data[n:], []byte("\r\n")) {
		n += 2
	}
	return n
}

// scanForSipStart looks for the first CR LF whose following bytes are a
// recognised SIP start, returning the offset to discard up through.
func scanForSipStart(data []byte) (int, bool) {
	pos := 0
	for {
		idx := bytes.Index(data[pos:], []byte("\r\n"))
		if idx < 0 {
			return 0, false
		}
		abs := pos + idx + 2
		if abs >= len(data) {
			return 0, false
		}
		if isSipStart(data[abs:]) {
			return abs, true
		}
		pos = abs
	}
}

// findContentLength locates Content-Length (or its compact form "l") within
// a header region, case-insensitively. Returns 0 if absent, per SIP-over-
// stream framing (spec §4.3 step 4).
func findContentLength(headers []byte) int {
	pos := 0
	for pos < len(headers) {
		lineEnd := bytes.Index(headers[pos:], []byte("\r\n"))
		var line []byte
		if lineEnd < 0 {
			line = headers[pos:]
			pos = len(headers)
		} else {
			line = headers[pos : pos+lineEnd]
			pos += lineEnd + 2
		}

		if v, ok := headerLineValue(line, "Content-Length"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
			return 0
		}
		if v, ok := compactLineValue(line, 'l'); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				return n
			}
			return 0
		}
	}
	return 0
}

func headerLineValue(line []byte, name string) (string, bool) {
	if len(line) <= len(name)+1 {
		return "", false
	}
	if !strings.EqualFold(string(line[:len(name)]), name) {
		return "", false
	}
	if line[len(name)] != ':' {
		return "", false
	}
	return strings.TrimLeft(string(line[len(name)+1:]), " \t"), true
}

func compactLineValue(line []byte, compact byte) (string, bool) {
	if len(line) < 2 || line[0] != compact || line[1] != ':' {
		return "", false
	}
	return strings.TrimLeft(string(line[2:]), " \t"), true
}
