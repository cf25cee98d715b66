package reassemble

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipdump/dumpsip/frame"
)

func record(direction, transport, address, content string) string {
	prep := "to"
	if direction == "recv" {
		prep = "from"
	}
	n := len(content)
	digits := "0"
	if n > 0 {
		var b []byte
		for n > 0 {
			b = append([]byte{byte('0' + n%10)}, b...)
			n /= 10
		}
		digits = string(b)
	}
	return direction + " " + digits + " bytes " + prep + " " + transport + "/" + address +
		" at 12:00:00.000000:\n" + content + "\x0B\n"
}

func newReassembler(t *testing.T, raw string) *Reassembler {
	t.Helper()
	dec := frame.NewDecoder(strings.NewReader(raw), nil)
	return NewReassembler(dec, nil)
}

func TestReassembleUDPPassthrough(t *testing.T) {
	raw := record("recv", "udp", "1.1.1.1:5060", "OPTIONS sip:foo SIP/2.0\r\nContent-Length: 0\r\n\r\n")
	r := newReassembler(t, raw)

	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, msg.FrameCount)
	assert.Contains(t, string(msg.Content), "OPTIONS")

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembleTCPFragmentedMessage(t *testing.T) {
	full := "NOTIFY sip:foo SIP/2.0\r\nContent-Length: 5\r\n\r\nhello"
	part1, part2 := full[:20], full[20:]
	raw := record("recv", "tcp", "2.2.2.2:5060", part1) + record("recv", "tcp", "2.2.2.2:5060", part2)
	r := newReassembler(t, raw)

	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, msg.FrameCount)
	assert.Equal(t, full, string(msg.Content))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembleAggregatedMessagesInOneFrame(t *testing.T) {
	msg1 := "OPTIONS sip:a SIP/2.0\r\nContent-Length: 0\r\n\r\n"
	msg2 := "OPTIONS sip:b SIP/2.0\r\nContent-Length: 0\r\n\r\n"
	raw := record("recv", "tcp", "3.3.3.3:5060", msg1+msg2)
	r := newReassembler(t, raw)

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, first.FrameCount)
	assert.Equal(t, msg1, string(first.Content))

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, second.FrameCount)
	assert.Equal(t, msg2, string(second.Content))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembleSecondMultiFrameMessageGetsOwnCount(t *testing.T) {
	msg1 := "NOTIFY sip:a SIP/2.0\r\nContent-Length: 5\r\n\r\nhello"
	msg2 := "NOTIFY sip:b SIP/2.0\r\nContent-Length: 5\r\n\r\nworld"
	m1part1, m1part2 := msg1[:20], msg1[20:]
	m2part1, m2part2 := msg2[:20], msg2[20:]
	raw := record("recv", "tcp", "6.6.6.6:5060", m1part1) +
		record("recv", "tcp", "6.6.6.6:5060", m1part2) +
		record("recv", "tcp", "6.6.6.6:5060", m2part1) +
		record("recv", "tcp", "6.6.6.6:5060", m2part2)
	r := newReassembler(t, raw)

	first, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, first.FrameCount)
	assert.Equal(t, msg1, string(first.Content))

	second, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, second.FrameCount)
	assert.Equal(t, msg2, string(second.Content))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReassembleDirectionChangeOnSamePeerIsIndependent(t *testing.T) {
	recvMsg := "OPTIONS sip:a SIP/2.0\r\nContent-Length: 0\r\n\r\n"
	sentMsg := "SIP/2.0 200 OK\r\nCSeq: 1 OPTIONS\r\nContent-Length: 0\r\n\r\n"
	raw := record("recv", "tcp", "4.4.4.4:5060", recvMsg) + record("sent", "tcp", "4.4.4.4:5060", sentMsg)
	r := newReassembler(t, raw)

	m1, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.Received, m1.Direction)

	m2, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, frame.Sent, m2.Direction)
	assert.Equal(t, 1, m2.FrameCount)
}

func TestReassembleFlushesIncompleteMessageAtEOF(t *testing.T) {
	partial := "OPTIONS sip:a SIP/2.0\r\nContent-Length: 10\r\n\r\nabc"
	raw := record("recv", "tcp", "5.5.5.5:5060", partial)
	r := newReassembler(t, raw)

	msg, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, partial, string(msg.Content))

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}
