package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	uuid "github.com/satori/go.uuid"

	"github.com/sipdump/dumpsip/dialoggroup"
	"github.com/sipdump/dumpsip/frame"
	"github.com/sipdump/dumpsip/reassemble"
	"github.com/sipdump/dumpsip/sip"
	"github.com/sipdump/dumpsip/sipfilter"
	"github.com/sipdump/dumpsip/sipstats"
)

// multiFlag collects a repeatable string flag's occurrences in order.
type multiFlag []string

func (f *multiFlag) String() string { return strings.Join(*f, ",") }
func (f *multiFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	runID := uuid.Must(uuid.NewV4()).String()

	var (
		methods    multiFlag
		excludes   multiFlag
		headers    multiFlag
		callID     = flag.String("call-id", "", "match Call-ID by regex")
		direction  = flag.String("direction", "", "filter by direction (recv/sent)")
		address    = flag.String("address", "", "match address by regex")
		bodyGrep   = flag.String("body-grep", "", "match regex against message body")
		grep       = flag.String("grep", "", "match regex against full reconstructed message")
		dialog     = flag.Bool("dialog", false, "output all messages sharing Call-IDs with matched messages")
		allMethods = flag.Bool("all-methods", false, "include OPTIONS messages (excluded by default)")
		full       = flag.Bool("full", false, "show full SIP message content")
		headersOut = flag.Bool("headers", false, "show headers only, no body")
		bodyOut    = flag.Bool("body", false, "show body only")
		raw        = flag.Bool("raw", false, "show raw reassembled bytes (message layer)")
		frames     = flag.Bool("frames", false, "show raw frames (frame layer)")
		stats      = flag.Bool("stats", false, "show statistics summary")
		metricsAddr = flag.String("metrics-addr", "", "if set, serve /metrics on this address while running")
		verbose    = flag.Int("v", 0, "verbosity: 0=warn 1=info 2=debug 3=trace")
	)
	flag.Var(&methods, "method", "include SIP method (request + responses via CSeq), repeatable")
	flag.Var(&excludes, "exclude", "exclude SIP method (request + responses via CSeq), repeatable")
	flag.Var(&headers, "header", "match header value by regex (NAME=REGEX), repeatable")
	flag.Parse()

	log := newLogger(*verbose).With().Str("run_id", runID).Logger()

	if *dialog && (*raw || *frames) {
		fmt.Fprintln(os.Stderr, "-dialog is incompatible with -raw and -frames")
		os.Exit(2)
	}
	if *dialog && *stats {
		fmt.Fprintln(os.Stderr, "-dialog is incompatible with -stats")
		os.Exit(2)
	}

	filters, err := sipfilter.Compile(sipfilter.Options{
		Methods:    methods,
		Excludes:   excludes,
		AllMethods: *allMethods,
		CallID:     *callID,
		Direction:  *direction,
		Address:    *address,
		Headers:    headers,
		BodyGrep:   *bodyGrep,
		Grep:       *grep,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	collector := sipstats.NewCollector()
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, collector, log)
	}

	reader, err := openInput(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	reader = sipfilter.StripSeparators(reader)

	mode := outputMode{full: *full, headers: *headersOut, body: *bodyOut}

	switch {
	case *frames:
		runFrames(reader, log)
	case *raw:
		runRaw(reader, log)
	case *dialog:
		runDialog(reader, log, filters, mode)
	case *stats:
		runStats(reader, log, filters, collector)
		collector.Render(os.Stdout)
	default:
		runFiltered(reader, log, filters, mode, collector)
	}
}

func newLogger(verbose int) zerolog.Logger {
	level := zerolog.WarnLevel
	switch {
	case verbose >= 3:
		level = zerolog.TraceLevel
	case verbose == 2:
		level = zerolog.DebugLevel
	case verbose == 1:
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "2006-01-02 15:04:05.000",
	}).With().Timestamp().Logger().Level(level)
}

func serveMetrics(addr string, collector *sipstats.Collector, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	log.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

// openInput opens the CLI's positional file arguments, chaining several
// files (or stdin, spelled "-") into a single reader, matching the
// upstream tool's no-args-means-stdin convention.
func openInput(files []string) (io.Reader, error) {
	if len(files) == 0 || (len(files) == 1 && files[0] == "-") {
		return os.Stdin, nil
	}

	readers := make([]io.Reader, 0, len(files))
	for _, path := range files {
		if path == "-" {
			readers = append(readers, os.Stdin)
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		readers = append(readers, f)
	}
	if len(readers) == 1 {
		return readers[0], nil
	}
	return io.MultiReader(readers...), nil
}

type outputMode struct {
	full    bool
	headers bool
	body    bool
}

func formatSummary(msg *sip.ParsedSipMessage) string {
	methodOrStatus := msg.StartLine.String()
	callID, ok := msg.CallID()
	if !ok {
		callID = "-"
	}
	return fmt.Sprintf("%s %s %s/%s %s %s",
		msg.Timestamp, msg.Direction, msg.Transport, msg.Address, methodOrStatus, callID)
}

func formatFrameHeader(msg *sip.ParsedSipMessage) string {
	prep := "from"
	if msg.Direction == frame.Sent {
		prep = "to"
	}
	return fmt.Sprintf("%s %s %s/%s at %s (%d frames) %s",
		msg.Direction, prep, msg.Transport, msg.Address, msg.Timestamp, msg.FrameCount, msg.StartLine.String())
}

func printTrailingNewline(s string) {
	if !strings.HasSuffix(s, "\n") {
		fmt.Println()
	}
}

func outputMessage(mode outputMode, msg *sip.ParsedSipMessage) {
	switch {
	case mode.full:
		fmt.Println(formatFrameHeader(msg))
		content := string(msg.Bytes())
		fmt.Print(content)
		printTrailingNewline(content)
	case mode.headers:
		fmt.Println(formatFrameHeader(msg))
		fmt.Printf("%s\n", msg.StartLine.String())
		for _, h := range msg.Headers {
			fmt.Printf("%s: %s\n", h.Name, h.Value)
		}
	case mode.body:
		if len(msg.Body) > 0 {
			text := msg.BodyText()
			fmt.Print(text)
			printTrailingNewline(text)
		}
	default:
		fmt.Println(formatSummary(msg))
	}
}

func runFrames(r io.Reader, log zerolog.Logger) {
	dec := frame.NewDecoder(r, &log)
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("frame error")
			continue
		}
		prep := "from"
		if f.Direction == frame.Sent {
			prep = "to"
		}
		fmt.Printf("%s %d bytes %s %s/%s at %s\n",
			f.Direction, f.ByteCount, prep, f.Transport, f.Address, f.Timestamp)
		content := string(f.Content)
		fmt.Print(content)
		printTrailingNewline(content)
	}
}

func runRaw(r io.Reader, log zerolog.Logger) {
	dec := frame.NewDecoder(r, &log)
	reasm := reassemble.NewReassembler(dec, &log)
	for {
		msg, err := reasm.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("message error")
			continue
		}
		prep := "from"
		if msg.Direction == frame.Sent {
			prep = "to"
		}
		fmt.Printf("%s %s %s/%s at %s (%d frames, %d bytes)\n",
			msg.Direction, prep, msg.Transport, msg.Address, msg.Timestamp, msg.FrameCount, len(msg.Content))
		content := string(msg.Content)
		fmt.Print(content)
		printTrailingNewline(content)
	}
}

func runFiltered(r io.Reader, log zerolog.Logger, filters *sipfilter.Compiled, mode outputMode, collector *sipstats.Collector) {
	dec := frame.NewDecoder(r, &log)
	reasm := reassemble.NewReassembler(dec, &log)
	for {
		msg, err := reasm.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("message error")
			continue
		}
		parsed, err := sip.Parse(msg)
		if err != nil {
			collector.ObserveError()
			log.Error().Err(err).Msg("parse error")
			continue
		}
		matched := filters.Matches(&parsed)
		collector.Observe(&parsed, matched)
		if !matched {
			continue
		}
		outputMessage(mode, &parsed)
	}
}

func runStats(r io.Reader, log zerolog.Logger, filters *sipfilter.Compiled, collector *sipstats.Collector) {
	dec := frame.NewDecoder(r, &log)
	reasm := reassemble.NewReassembler(dec, &log)
	for {
		msg, err := reasm.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg("message error")
			continue
		}
		parsed, err := sip.Parse(msg)
		if err != nil {
			collector.ObserveError()
			continue
		}
		collector.Observe(&parsed, filters.Matches(&parsed))
	}
}

func runDialog(r io.Reader, log zerolog.Logger, filters *sipfilter.Compiled, mode outputMode) {
	dec := frame.NewDecoder(r, &log)
	reasm := reassemble.NewReassembler(dec, &log)
	group := dialoggroup.New(filters.Matches, filters.IsExcluded)

	for {
		msg, err := reasm.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Err(err).Msg("message error")
			continue
		}
		parsed, err := sip.Parse(msg)
		if err != nil {
			log.Error().Err(err).Msg("parse error")
			continue
		}
		group.Add(msg, &parsed)
	}

	for _, msg := range group.Messages() {
		parsed, err := sip.Parse(msg)
		if err != nil {
			log.Error().Err(err).Msg("parse error on output")
			continue
		}
		outputMessage(mode, &parsed)
	}
}
