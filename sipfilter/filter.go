package sipfilter

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sipdump/dumpsip/frame"
	"github.com/sipdump/dumpsip/sip"
)

// HeaderMatch pairs a header name with a regular expression its value must
// satisfy.
type HeaderMatch struct {
	Name    string
	Pattern *regexp.Regexp
}

// Options are the uncompiled, user-facing filter settings, one field per
// CLI predicate flag.
type Options struct {
	Methods     []string // case-insensitive; empty means "any method"
	Excludes    []string // case-insensitive
	AllMethods  bool     // disables the default OPTIONS exclusion
	CallID      string   // regex
	Direction   string   // "recv", "sent", or ""
	Address     string   // regex
	Headers     []string // "NAME=REGEX" pairs
	BodyGrep    string   // regex
	Grep        string   // regex against the reconstructed message
}

// Compiled is a ready-to-use predicate built from Options. Its zero value
// matches everything, OPTIONS included; Compile with zero Options excludes
// OPTIONS.
type Compiled struct {
	methods        []string
	excludes       []string
	excludeOptions bool
	callID         *regexp.Regexp
	direction      *frame.Direction
	address        *regexp.Regexp
	headers        []HeaderMatch
	bodyGrep       *regexp.Regexp
	grep           *regexp.Regexp
}

// Compile validates and compiles opts. A non-nil error names the offending
// pattern or flag value, suitable for direct display and a process exit
// code of 2.
func Compile(opts Options) (*Compiled, error) {
	c := &Compiled{excludeOptions: !opts.AllMethods}

	for _, m := range opts.Methods {
		c.methods = append(c.methods, strings.ToUpper(m))
		if strings.EqualFold(m, "OPTIONS") {
			c.excludeOptions = false
		}
	}
	for _, m := range opts.Excludes {
		c.excludes = append(c.excludes, strings.ToUpper(m))
	}

	var err error
	if opts.CallID != "" {
		if c.callID, err = compileRegex(opts.CallID, "call-id"); err != nil {
			return nil, err
		}
	}

	if opts.Direction != "" {
		var d frame.Direction
		switch opts.Direction {
		case "recv":
			d = frame.Received
		case "sent":
			d = frame.Sent
		default:
			return nil, fmt.Errorf("invalid direction %q: expected recv or sent", opts.Direction)
		}
		c.direction = &d
	}

	if opts.Address != "" {
		if c.address, err = compileRegex(opts.Address, "address"); err != nil {
			return nil, err
		}
	}

	for _, spec := range opts.Headers {
		eq := strings.IndexByte(spec, '=')
		if eq < 0 {
			return nil, fmt.Errorf("invalid header filter %q: expected NAME=REGEX", spec)
		}
		name := spec[:eq]
		re, err := compileRegex(spec[eq+1:], "header "+name)
		if err != nil {
			return nil, err
		}
		c.headers = append(c.headers, HeaderMatch{Name: name, Pattern: re})
	}

	if opts.BodyGrep != "" {
		if c.bodyGrep, err = compileRegex(opts.BodyGrep, "body-grep"); err != nil {
			return nil, err
		}
	}
	if opts.Grep != "" {
		if c.grep, err = compileRegex(opts.Grep, "grep"); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func compileRegex(pattern, label string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid %s regex %q: %w", label, pattern, err)
	}
	return re, nil
}

// IsExcluded reports whether msg is dropped purely on method grounds: the
// implicit default OPTIONS exclusion, or an explicit -exclude method.
// Dialog grouping needs this check in isolation from the rest of Matches,
// since an excluded message still participates in BYE/BYE-response pruning.
func (c *Compiled) IsExcluded(msg *sip.ParsedSipMessage) bool {
	method, _ := msg.Method()

	if c.excludeOptions && strings.EqualFold(method, "OPTIONS") {
		return true
	}
	for _, m := range c.excludes {
		if strings.EqualFold(m, method) {
			return true
		}
	}
	return false
}

// Matches reports whether msg satisfies every configured predicate.
func (c *Compiled) Matches(msg *sip.ParsedSipMessage) bool {
	if c.IsExcluded(msg) {
		return false
	}

	if len(c.methods) > 0 {
		method, _ := msg.Method()
		found := false
		for _, m := range c.methods {
			if strings.EqualFold(m, method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if c.callID != nil {
		cid, ok := msg.CallID()
		if !ok || !c.callID.MatchString(cid) {
			return false
		}
	}

	if c.direction != nil && msg.Direction != *c.direction {
		return false
	}

	if c.address != nil && !c.address.MatchString(msg.Address) {
		return false
	}

	for _, hm := range c.headers {
		matched := false
		for _, h := range msg.Headers {
			if strings.EqualFold(h.Name, hm.Name) && hm.Pattern.MatchString(h.Value) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if c.bodyGrep != nil && !c.bodyGrep.MatchString(msg.BodyText()) {
		return false
	}

	if c.grep != nil {
		full := msg.Bytes()
		if !c.grep.Match(full) {
			return false
		}
	}

	return true
}
