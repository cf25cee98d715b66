package frame

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(direction, transport, address, content string) string {
	return direction + " " + itoa(len(content)) + " bytes " + prep(direction) + " " + transport + "/" + address +
		" at 12:00:00.000000:\n" + content + "\x0B\n"
}

func prep(direction string) string {
	if direction == "recv" {
		return "from"
	}
	return "to"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

func TestDecoderSingleFrame(t *testing.T) {
	in := record("recv", "udp", "127.0.0.1:5060", "OPTIONS sip:foo SIP/2.0\r\n\r\n")
	dec := NewDecoder(strings.NewReader(in), nil)

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Received, f.Direction)
	assert.Equal(t, UDP, f.Transport)
	assert.Equal(t, "127.0.0.1:5060", f.Address)
	assert.Equal(t, "OPTIONS sip:foo SIP/2.0\r\n\r\n", string(f.Content))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderMultipleFrames(t *testing.T) {
	in := record("recv", "tcp", "1.2.3.4:5060", "a") + record("sent", "tcp", "1.2.3.4:5060", "b")
	dec := NewDecoder(strings.NewReader(in), nil)

	f1, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "a", string(f1.Content))

	f2, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, Sent, f2.Direction)
	assert.Equal(t, "b", string(f2.Content))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderContentContainingSentinelLikeBytes(t *testing.T) {
	// The VT LF sentinel can occur inside body content (e.g. binary payload);
	// the decoder must only treat it as a boundary when followed by a valid
	// header or EOF.
	body := "before\x0B\nafter"
	in := record("recv", "udp", "1.1.1.1:5060", body)
	dec := NewDecoder(strings.NewReader(in), nil)

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, body, string(f.Content))
}

func TestDecoderPartialFirstFrameSkipped(t *testing.T) {
	garbage := "garbage\x0B\n"
	in := garbage + record("recv", "udp", "1.1.1.1:5060", "x")
	dec := NewDecoder(strings.NewReader(in), nil)

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", string(f.Content))
}

func TestDecoderDumpRestartMarkerSkipped(t *testing.T) {
	in := record("recv", "udp", "1.1.1.1:5060", "x") +
		"dump started at 2024-01-01 00:00:00\n" +
		record("recv", "udp", "1.1.1.1:5060", "y")
	dec := NewDecoder(strings.NewReader(in), nil)

	f1, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", string(f1.Content))

	f2, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "y", string(f2.Content))

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderInterFramePaddingDrained(t *testing.T) {
	in := record("recv", "udp", "1.1.1.1:5060", "x") + "\r\n\n" + record("recv", "udp", "1.1.1.1:5060", "y")
	dec := NewDecoder(strings.NewReader(in), nil)

	_, err := dec.Next()
	require.NoError(t, err)
	f2, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "y", string(f2.Content))
}

func TestDecoderUnrecognizedHeaderRecovers(t *testing.T) {
	// A header-shaped line (so the partial-first-frame skip does not apply)
	// with an unknown transport.
	in := "recv 1 bytes from xyz/1.1.1.1:5060 at 12:00:00.000000:\nz\x0B\n" + record("recv", "udp", "1.1.1.1:5060", "x")
	dec := NewDecoder(strings.NewReader(in), nil)

	_, err := dec.Next()
	var herr *HeaderError
	require.ErrorAs(t, err, &herr)

	f, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "x", string(f.Content))
}

func TestDecoderEmptyInput(t *testing.T) {
	dec := NewDecoder(strings.NewReader(""), nil)
	_, err := dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoderDateTimeTimestamp(t *testing.T) {
	in := "recv 1 bytes from udp/1.1.1.1:5060 at 2024-03-05 08:09:10.123456:\nx\x0B\n"
	dec := NewDecoder(strings.NewReader(in), nil)
	f, err := dec.Next()
	require.NoError(t, err)
	assert.True(t, f.Timestamp.HasDate)
	assert.Equal(t, 2024, f.Timestamp.Year)
	assert.Equal(t, 3, f.Timestamp.Month)
	assert.Equal(t, 5, f.Timestamp.Day)
}
