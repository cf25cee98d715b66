package sipstats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipdump/dumpsip/sip"
)

func parsed(t *testing.T, content string) *sip.ParsedSipMessage {
	t.Helper()
	msg, err := sip.Parse(sip.SipMessage{Content: []byte(content)})
	require.NoError(t, err)
	return &msg
}

func TestCollectorRendersTotalsAndBreakdowns(t *testing.T) {
	c := NewCollector()

	invite := parsed(t, "INVITE sip:foo SIP/2.0\r\n\r\n")
	c.Observe(invite, true)

	ok := parsed(t, "SIP/2.0 200 OK\r\nCSeq: 1 INVITE\r\n\r\n")
	c.Observe(ok, true)

	notMatched := parsed(t, "OPTIONS sip:foo SIP/2.0\r\n\r\n")
	c.Observe(notMatched, false)

	c.ObserveError()

	var buf bytes.Buffer
	require.NoError(t, c.Render(&buf))
	out := buf.String()

	assert.Contains(t, out, "total: 4")
	assert.Contains(t, out, "matched: 2")
	assert.Contains(t, out, "parse errors: 1")
	assert.Contains(t, out, "INVITE: 2")
	assert.Contains(t, out, "200: 1")
}

func TestCollectorRegistryExposed(t *testing.T) {
	c := NewCollector()
	assert.NotNil(t, c.Registry())
}
