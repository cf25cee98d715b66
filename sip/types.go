// Package sip parses SIP messages (produced by package reassemble) into
// their structured form: start line, ordered headers with folding and
// compact-form aliases resolved, body, and (for multipart bodies) MIME
// parts.
package sip

import (
	"fmt"

	"github.com/sipdump/dumpsip/frame"
)

// SipMessage is one complete SIP message after reassembly, before
// structural parsing.
type SipMessage struct {
	Direction  frame.Direction
	Transport  frame.Transport
	Address    string
	Timestamp  frame.Timestamp
	Content    []byte
	FrameCount int // how many Frames were concatenated to form this message; 0 for a message split from the same buffer in the same aggregation pass as one already reported
}

// StartLine classifies the first line of a SIP message.
type StartLine struct {
	IsResponse bool

	// Request fields
	Method string
	URI    string

	// Response fields
	StatusCode uint16
	Reason     string
}

func (s StartLine) String() string {
	if s.IsResponse {
		return fmt.Sprintf("%d %s", s.StatusCode, s.Reason)
	}
	return fmt.Sprintf("%s %s", s.Method, s.URI)
}

// HeaderField is one (name, value) pair as seen on the wire. Name retains
// its literal case; Value has leading whitespace trimmed and folded
// continuation lines joined.
type HeaderField struct {
	Name  string
	Value string
}

// ParsedSipMessage is a SipMessage with structured start line, headers, and
// body.
type ParsedSipMessage struct {
	Direction  frame.Direction
	Transport  frame.Transport
	Address    string
	Timestamp  frame.Timestamp
	StartLine  StartLine
	Headers    []HeaderField
	Body       []byte
	FrameCount int
}

// MimePart is one part of a multipart body: the same (headers, body) shape
// as the top-level message, without a start line.
type MimePart struct {
	Headers []HeaderField
	Body    []byte
}

// ParseError reports a SIP message whose start line could not be
// classified. Header parsing is always best-effort and never produces this
// error — a malformed header line is simply skipped.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "invalid SIP message: " + e.Reason
}

// RecognisedMethods is the set of request methods §4.3/§4.4 recognise as a
// SIP start line.
var RecognisedMethods = []string{
	"INVITE", "ACK", "BYE", "CANCEL", "OPTIONS",
	"REGISTER", "PRACK", "SUBSCRIBE", "NOTIFY",
	"PUBLISH", "INFO", "REFER", "MESSAGE", "UPDATE",
}
