// Package sipstats accumulates per-run counters over a stream of parsed
// SIP messages and renders them as a human-readable summary, the same
// shape a plain text report would take without pulling in a full
// dashboard stack.
package sipstats

import (
	"fmt"
	"io"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sipdump/dumpsip/frame"
	"github.com/sipdump/dumpsip/sip"
)

// Collector accumulates run statistics as prometheus metrics, so the same
// counters that back the text summary can also be scraped if the caller
// exposes Registry() over HTTP.
type Collector struct {
	registry *prometheus.Registry

	total   prometheus.Counter
	matched prometheus.Counter
	errors  prometheus.Counter

	directions *prometheus.CounterVec
	methods    *prometheus.CounterVec
	statuses   *prometheus.CounterVec
}

// NewCollector builds a Collector with a private registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		total: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sipdump_messages_total",
			Help: "Total parsed SIP messages seen, matched or not.",
		}),
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sipdump_messages_matched_total",
			Help: "Parsed SIP messages that satisfied the active filters.",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sipdump_parse_errors_total",
			Help: "Messages that failed structural SIP parsing.",
		}),
		directions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sipdump_messages_by_direction_total",
			Help: "Matched messages by capture direction.",
		}, []string{"direction"}),
		methods: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sipdump_messages_by_method_total",
			Help: "Matched messages by SIP method.",
		}, []string{"method"}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sipdump_responses_by_code_total",
			Help: "Matched responses by status code.",
		}, []string{"code"}),
	}
	c.registry.MustRegister(c.total, c.matched, c.errors, c.directions, c.methods, c.statuses)
	return c
}

// Registry exposes the underlying prometheus.Registry, for callers that
// want to serve /metrics alongside the text summary.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveError records a message that failed structural parsing.
func (c *Collector) ObserveError() {
	c.total.Inc()
	c.errors.Inc()
}

// Observe records a successfully parsed message and whether it matched
// the active filters; unmatched messages still count toward total.
func (c *Collector) Observe(msg *sip.ParsedSipMessage, matched bool) {
	c.total.Inc()
	if !matched {
		return
	}
	c.matched.Inc()
	c.directions.WithLabelValues(msg.Direction.String()).Inc()

	if msg.StartLine.IsResponse {
		c.statuses.WithLabelValues(fmt.Sprintf("%d", msg.StartLine.StatusCode)).Inc()
	}
	if method, ok := msg.Method(); ok {
		c.methods.WithLabelValues(method).Inc()
	}
}

// Render writes the human-readable summary: totals, per-direction counts,
// methods sorted by frequency, and response codes sorted numerically.
func (c *Collector) Render(w io.Writer) error {
	mf, err := c.registry.Gather()
	if err != nil {
		return err
	}

	var total, matched, errs float64
	directions := map[string]float64{}
	methods := map[string]float64{}
	statuses := map[string]float64{}

	for _, fam := range mf {
		switch fam.GetName() {
		case "sipdump_messages_total":
			total = fam.GetMetric()[0].GetCounter().GetValue()
		case "sipdump_messages_matched_total":
			matched = fam.GetMetric()[0].GetCounter().GetValue()
		case "sipdump_parse_errors_total":
			errs = fam.GetMetric()[0].GetCounter().GetValue()
		case "sipdump_messages_by_direction_total":
			for _, m := range fam.GetMetric() {
				directions[labelValue(m, "direction")] = m.GetCounter().GetValue()
			}
		case "sipdump_messages_by_method_total":
			for _, m := range fam.GetMetric() {
				methods[labelValue(m, "method")] = m.GetCounter().GetValue()
			}
		case "sipdump_responses_by_code_total":
			for _, m := range fam.GetMetric() {
				statuses[labelValue(m, "code")] = m.GetCounter().GetValue()
			}
		}
	}

	fmt.Fprintf(w, "total: %d\n", int(total))
	fmt.Fprintf(w, "matched: %d\n", int(matched))
	if errs > 0 {
		fmt.Fprintf(w, "parse errors: %d\n", int(errs))
	}
	if n, ok := directions[frame.Received.String()]; ok {
		fmt.Fprintf(w, "recv: %d\n", int(n))
	}
	if n, ok := directions[frame.Sent.String()]; ok {
		fmt.Fprintf(w, "sent: %d\n", int(n))
	}

	if len(methods) > 0 {
		type kv struct {
			k string
			v float64
		}
		sorted := make([]kv, 0, len(methods))
		for k, v := range methods {
			sorted = append(sorted, kv{k, v})
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].v > sorted[j].v })
		fmt.Fprintln(w, "\nmethods:")
		for _, e := range sorted {
			fmt.Fprintf(w, "  %s: %d\n", e.k, int(e.v))
		}
	}

	if len(statuses) > 0 {
		codes := make([]string, 0, len(statuses))
		for k := range statuses {
			codes = append(codes, k)
		}
		sort.Strings(codes)
		fmt.Fprintln(w, "\nresponse codes:")
		for _, code := range codes {
			fmt.Fprintf(w, "  %s: %d\n", code, int(statuses[code]))
		}
	}

	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
