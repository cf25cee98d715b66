package sip

import (
	"bytes"
	"strconv"
)

var (
	crlf     = []byte("\r\n")
	crlfcrlf = []byte("\r\n\r\n")
)

// Parse turns a reassembled SipMessage into its structured form. Start-line
// errors are unrecoverable for this message and returned as *ParseError.
// Header parsing is always best-effort: a malformed header line is skipped
// rather than failing the whole message.
func Parse(msg SipMessage) (ParsedSipMessage, error) {
	content := msg.Content

	firstLineEnd := bytes.Index(content, crlf)
	if firstLineEnd < 0 {
		return ParsedSipMessage{}, &ParseError{Reason: "no CRLF in SIP message"}
	}

	startLine, err := parseStartLine(content[:firstLineEnd])
	if err != nil {
		return ParsedSipMessage{}, err
	}

	var headerBytes, body []byte
	if headerEnd := bytes.Index(content, crlfcrlf); headerEnd >= 0 {
		if headerEnd > firstLineEnd+1 {
			headerBytes = content[firstLineEnd+2 : headerEnd]
		}
		body = content[headerEnd+4:]
	} else {
		headerBytes = content[firstLineEnd+2:]
	}

	return ParsedSipMessage{
		Direction:  msg.Direction,
		Transport:  msg.Transport,
		Address:    msg.Address,
		Timestamp:  msg.Timestamp,
		StartLine:  startLine,
		Headers:    parseHeaders(headerBytes),
		Body:       body,
		FrameCount: msg.FrameCount,
	}, nil
}

func parseStartLine(line []byte) (StartLine, error) {
	const sipVersion = "SIP/2.0"
	if bytes.HasPrefix(line, []byte(sipVersion+" ")) {
		return parseStatusLine(line)
	}
	return parseRequestLine(line)
}

func parseStatusLine(line []byte) (StartLine, error) {
	afterVersion := line[len("SIP/2.0 "):]
	sp := bytes.IndexByte(afterVersion, ' ')
	if sp < 0 {
		return StartLine{}, &ParseError{Reason: "no space after status code"}
	}
	code, err := strconv.ParseUint(string(afterVersion[:sp]), 10, 16)
	if err != nil {
		return StartLine{}, &ParseError{Reason: "invalid status code"}
	}
	reason := string(afterVersion[sp+1:])
	return StartLine{IsResponse: true, StatusCode: uint16(code), Reason: reason}, nil
}

func parseRequestLine(line []byte) (StartLine, error) {
	firstSpace := bytes.IndexByte(line, ' ')
	if firstSpace < 0 {
		return StartLine{}, &ParseError{Reason: "no space in request line"}
	}
	method := string(line[:firstSpace])
	rest := line[firstSpace+1:]

	lastSpace := bytes.LastIndexByte(rest, ' ')
	if lastSpace < 0 {
		return StartLine{}, &ParseError{Reason: "no SIP version in request line"}
	}
	version := rest[lastSpace+1:]
	if string(version) != "SIP/2.0" {
		return StartLine{}, &ParseError{Reason: "expected SIP/2.0, got " + string(version)}
	}
	uri := string(rest[:lastSpace])
	return StartLine{Method: method, URI: uri}, nil
}

// parseHeaders walks the header region line by line, joining folded
// continuations (lines starting with SP or HT) into the value of the
// preceding header.
func parseHeaders(data []byte) []HeaderField {
	var headers []HeaderField
	if len(data) == 0 {
		return headers
	}

	pos := 0
	for pos < len(data) {
		lineEnd := indexOrEnd(data[pos:], crlf)
		line := data[pos : pos+lineEnd]
		pos += lineEnd + 2

		for pos < len(data) && (data[pos] == ' ' || data[pos] == '\t') {
			nextEnd := indexOrEnd(data[pos:], crlf)
			fold := trimLeadingWS(data[pos : pos+nextEnd])
			joined := make([]byte, 0, len(line)+1+len(fold))
			joined = append(joined, line...)
			joined = append(joined, ' ')
			joined = append(joined, fold...)
			line = joined
			pos += nextEnd + 2
		}

		if len(line) == 0 {
			continue
		}

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		name := string(line[:colon])
		var value string
		if colon+1 < len(line) {
			value = string(trimLeadingWS(line[colon+1:]))
		}
		headers = append(headers, HeaderField{Name: name, Value: value})
	}

	return headers
}

func indexOrEnd(data, sep []byte) int {
	if i := bytes.Index(data, sep); i >= 0 {
		return i
	}
	return len(data)
}

func trimLeadingWS(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	return b[i:]
}
