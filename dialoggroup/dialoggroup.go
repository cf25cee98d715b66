// Package dialoggroup expands a filtered view of a SIP capture into whole
// dialogs: every message sharing a Call-ID with at least one message that
// satisfied the active filters, in chronological order.
package dialoggroup

import (
	"sort"
	"strings"

	"github.com/sipdump/dumpsip/sip"
)

// dialogState accumulates every message seen for one Call-ID, whether or
// not it matched, plus enough bookkeeping to prune dialogs that finished
// without ever matching.
type dialogState struct {
	messages        []sip.SipMessage
	matched         bool
	sawBye          bool
	sawByeResponse  bool
}

// Group collects messages by Call-ID across a single pass and reports the
// dialogs that matched.
type Group struct {
	matches func(*sip.ParsedSipMessage) bool
	exclude func(*sip.ParsedSipMessage) bool

	dialogs map[string]*dialogState
}

// New builds a Group. matches decides whether a parsed message counts as a
// dialog-level match; exclude marks messages (e.g. default-excluded
// OPTIONS) that should never themselves trigger a match but still
// participate in BYE pruning.
func New(matches, exclude func(*sip.ParsedSipMessage) bool) *Group {
	return &Group{matches: matches, exclude: exclude, dialogs: make(map[string]*dialogState)}
}

// Add feeds one (raw, parsed) message pair into the group. parsed may be
// nil if structural parsing failed; such messages are dropped, matching
// the upstream CLI's "parse error" handling.
func (g *Group) Add(raw sip.SipMessage, parsed *sip.ParsedSipMessage) {
	if parsed == nil {
		return
	}

	callID, ok := parsed.CallID()
	if !ok {
		return
	}

	state, ok := g.dialogs[callID]
	if !ok {
		state = &dialogState{}
		g.dialogs[callID] = state
	}

	excluded := g.exclude != nil && g.exclude(parsed)
	if !excluded && g.matches(parsed) {
		state.matched = true
	}

	method, _ := parsed.Method()
	isByeRequest := !parsed.StartLine.IsResponse && strings.EqualFold(method, "BYE")
	isByeResponse := parsed.StartLine.IsResponse && strings.EqualFold(method, "BYE")
	if isByeRequest {
		state.sawBye = true
	}
	if isByeResponse {
		state.sawByeResponse = true
	}

	state.messages = append(state.messages, raw)

	if state.sawBye && state.sawByeResponse && !state.matched {
		delete(g.dialogs, callID)
	}
}

// Messages returns every message belonging to a dialog that matched at
// least once, sorted into chronological order across Call-IDs.
func (g *Group) Messages() []sip.SipMessage {
	var out []sip.SipMessage
	for _, state := range g.dialogs {
		if state.matched {
			out = append(out, state.messages...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Less(out[j].Timestamp)
	})
	return out
}
