package sip

import (
	"strconv"
	"strings"
)

// Bytes rebuilds the wire form of the message: start line + CRLF +
// "name: value" CRLF per header in original order + CRLF + body.
// Reparsing the result reproduces the original message whose headers never
// contained folded continuations — folding is lost by this canonicalisation,
// as documented in spec §4.4.
func (m *ParsedSipMessage) Bytes() []byte {
	var b strings.Builder
	b.WriteString(m.StartLine.wireForm())
	b.WriteString("\r\n")
	for _, h := range m.Headers {
		b.WriteString(h.Name)
		b.WriteString(": ")
		b.WriteString(h.Value)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.Write(m.Body)
	return []byte(b.String())
}

func (s StartLine) wireForm() string {
	if s.IsResponse {
		return "SIP/2.0 " + strconv.FormatUint(uint64(s.StatusCode), 10) + " " + s.Reason
	}
	return s.Method + " " + s.URI + " SIP/2.0"
}
