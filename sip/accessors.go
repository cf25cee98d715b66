package sip

import (
	"strconv"
	"strings"
)

// compactAliases maps a canonical header name to its compact single-letter
// form, per spec §4.4.
var compactAliases = map[string]string{
	"call-id":       "i",
	"content-type":  "c",
	"content-length": "l",
}

// headerValue returns the first value for name, checking both the
// canonical name and its compact alias (if any), case-insensitively.
func (m *ParsedSipMessage) headerValue(name string) (string, bool) {
	lower := strings.ToLower(name)
	compact := compactAliases[lower]
	for _, h := range m.Headers {
		hl := strings.ToLower(h.Name)
		if hl == lower || (compact != "" && hl == compact) {
			return h.Value, true
		}
	}
	return "", false
}

// CallID returns the Call-ID header value, resolving the "i" compact form.
func (m *ParsedSipMessage) CallID() (string, bool) {
	return m.headerValue("Call-ID")
}

// ContentType returns the Content-Type header value, resolving the "c"
// compact form.
func (m *ParsedSipMessage) ContentType() (string, bool) {
	return m.headerValue("Content-Type")
}

// ContentLength returns the Content-Length header value parsed as a
// number, resolving the "l" compact form.
func (m *ParsedSipMessage) ContentLength() (int, bool) {
	v, ok := m.headerValue("Content-Length")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

// CSeq returns the raw CSeq header value.
func (m *ParsedSipMessage) CSeq() (string, bool) {
	return m.headerValue("CSeq")
}

// Method returns the message's method: directly for a request, or recovered
// from the second token of the CSeq header for a response.
func (m *ParsedSipMessage) Method() (string, bool) {
	if !m.StartLine.IsResponse {
		return m.StartLine.Method, true
	}
	cseq, ok := m.CSeq()
	if !ok {
		return "", false
	}
	fields := strings.Fields(cseq)
	if len(fields) < 2 {
		return "", false
	}
	return fields[1], true
}

// BodyText returns Body decoded as UTF-8, replacing invalid sequences with
// the Unicode replacement character rather than failing.
func (m *ParsedSipMessage) BodyText() string {
	return strings.ToValidUTF8(string(m.Body), "�")
}

// IsRecognisedMethod reports whether method is one of the fourteen request
// methods spec §4.3 recognises as a SIP start.
func IsRecognisedMethod(method string) bool {
	for _, m := range RecognisedMethods {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}
