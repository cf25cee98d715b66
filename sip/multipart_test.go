package sip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMultipart(t *testing.T) {
	content := "INVITE sip:foo SIP/2.0\r\nContent-Type: multipart/mixed;boundary=xyz\r\n\r\n"
	parsed, err := Parse(msgOf(content))
	require.NoError(t, err)
	assert.True(t, parsed.IsMultipart())
}

func TestMultipartBoundaryQuoted(t *testing.T) {
	content := `INVITE sip:foo SIP/2.0` + "\r\n" +
		`Content-Type: multipart/mixed;boundary="abc123"` + "\r\n\r\n"
	parsed, err := Parse(msgOf(content))
	require.NoError(t, err)
	boundary, ok := parsed.MultipartBoundary()
	require.True(t, ok)
	assert.Equal(t, "abc123", boundary)
}

func TestMultipartBoundaryUnquoted(t *testing.T) {
	content := "INVITE sip:foo SIP/2.0\r\nContent-Type: multipart/mixed;boundary=abc123;charset=utf-8\r\n\r\n"
	parsed, err := Parse(msgOf(content))
	require.NoError(t, err)
	boundary, ok := parsed.MultipartBoundary()
	require.True(t, ok)
	assert.Equal(t, "abc123", boundary)
}

func TestBodyPartsSplitsMultipleParts(t *testing.T) {
	body := "--boundary1\r\n" +
		"Content-Type: application/sdp\r\n\r\n" +
		"v=0\r\n" +
		"--boundary1\r\n" +
		"Content-Type: application/resource-lists+xml\r\n\r\n" +
		"<xml/>\r\n" +
		"--boundary1--\r\n"
	content := "INVITE sip:foo SIP/2.0\r\nContent-Type: multipart/mixed;boundary=boundary1\r\nContent-Length: " +
		itoa(len(body)) + "\r\n\r\n" + body
	parsed, err := Parse(msgOf(content))
	require.NoError(t, err)

	parts, ok := parsed.BodyParts()
	require.True(t, ok)
	require.Len(t, parts, 2)

	ct0, ok := parts[0].ContentType()
	require.True(t, ok)
	assert.Equal(t, "application/sdp", ct0)
	assert.Equal(t, "v=0", string(parts[0].Body))

	ct1, ok := parts[1].ContentType()
	require.True(t, ok)
	assert.Equal(t, "application/resource-lists+xml", ct1)
	assert.Equal(t, "<xml/>", string(parts[1].Body))
}

func TestBodyPartsNoBoundaryFound(t *testing.T) {
	content := "INVITE sip:foo SIP/2.0\r\nContent-Type: multipart/mixed;boundary=zzz\r\n\r\nno boundary here"
	parsed, err := Parse(msgOf(content))
	require.NoError(t, err)
	parts, ok := parsed.BodyParts()
	assert.True(t, ok)
	assert.Nil(t, parts)
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
