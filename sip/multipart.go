package sip

import (
	"bytes"
	"strings"
)

// IsMultipart reports whether the message's Content-Type begins with
// "multipart/" (case-insensitive).
func (m *ParsedSipMessage) IsMultipart() bool {
	ct, ok := m.ContentType()
	if !ok {
		return false
	}
	return strings.HasPrefix(strings.ToLower(ct), "multipart/")
}

// MultipartBoundary extracts the boundary= parameter from Content-Type,
// handling both quoted and unquoted forms. The attribute name match is
// case-insensitive; the boundary value itself is returned verbatim.
func (m *ParsedSipMessage) MultipartBoundary() (string, bool) {
	ct, ok := m.ContentType()
	if !ok {
		return "", false
	}
	return extractBoundary(ct)
}

// extractBoundary follows the generic ";key=value" parameter grammar: a
// case-insensitive attribute name, a value that is either quoted or
// delimited by ';' or end of string.
func extractBoundary(contentType string) (string, bool) {
	lower := strings.ToLower(contentType)
	idx := strings.Index(lower, "boundary=")
	if idx < 0 {
		return "", false
	}
	after := contentType[idx+len("boundary="):]

	if strings.HasPrefix(after, `"`) {
		rest := after[1:]
		end := strings.IndexByte(rest, '"')
		if end < 0 {
			return "", false
		}
		return rest[:end], true
	}

	end := strings.IndexByte(after, ';')
	if end < 0 {
		end = len(after)
	}
	boundary := strings.TrimSpace(after[:end])
	if boundary == "" {
		return "", false
	}
	return boundary, true
}

// BodyParts splits a multipart body into its MIME parts, purely lexically
// on the boundary delimiters — no MIME structure is validated beyond
// locating them.
func (m *ParsedSipMessage) BodyParts() ([]MimePart, bool) {
	boundary, ok := m.MultipartBoundary()
	if !ok {
		return nil, false
	}
	return splitMultipart(m.Body, boundary), true
}

func splitMultipart(body []byte, boundary string) []MimePart {
	open := []byte("--" + boundary)

	idx := bytes.Index(body, open)
	if idx < 0 {
		return nil
	}
	pos := idx + len(open)

	if bytes.HasPrefix(body[pos:], []byte("--")) {
		return nil
	}
	if bytes.HasPrefix(body[pos:], crlf) {
		pos += 2
	}

	var parts []MimePart
	for {
		next := bytes.Index(body[pos:], open)
		if next < 0 {
			break
		}
		end := pos + next
		if end >= pos+2 && bytes.HasSuffix(body[pos:end], crlf) {
			end -= 2
		}
		parts = append(parts, parseMimePart(body[pos:end]))

		pos = pos + next + len(open)
		if bytes.HasPrefix(body[pos:], []byte("--")) {
			break
		}
		if bytes.HasPrefix(body[pos:], crlf) {
			pos += 2
		}
	}

	return parts
}

func parseMimePart(data []byte) MimePart {
	if headerEnd := bytes.Index(data, crlfcrlf); headerEnd >= 0 {
		return MimePart{
			Headers: parseHeaders(data[:headerEnd]),
			Body:    data[headerEnd+4:],
		}
	}

	firstLineEnd := indexOrEnd(data, crlf)
	if bytes.IndexByte(data[:firstLineEnd], ':') >= 0 {
		return MimePart{Headers: parseHeaders(data), Body: nil}
	}
	return MimePart{Body: data}
}

// ContentType returns the part's Content-Type header, if present.
func (p *MimePart) ContentType() (string, bool) {
	return p.headerValue("Content-Type")
}

// ContentID returns the part's Content-ID header, if present.
func (p *MimePart) ContentID() (string, bool) {
	return p.headerValue("Content-ID")
}

// ContentDisposition returns the part's Content-Disposition header, if present.
func (p *MimePart) ContentDisposition() (string, bool) {
	return p.headerValue("Content-Disposition")
}

func (p *MimePart) headerValue(name string) (string, bool) {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}
