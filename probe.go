package mdt

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Classification is the verdict of probing one port
type Classification int

const (
	ClassUnresponsive Classification = iota
	ClassUnknown
	ClassConfirmed
)

func (c Classification) String() string {
	switch c {
	case ClassConfirmed:
		return "confirmed-mdt"
	case ClassUnknown:
		return "unknown"
	default:
		return "unresponsive"
	}
}

// MarshalText encodes the classification by name for JSON and YAML output.
func (c Classification) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a classification name.
func (c *Classification) UnmarshalText(text []byte) error {
	switch string(text) {
	case "confirmed-mdt":
		*c = ClassConfirmed
	case "unknown":
		*c = ClassUnknown
	case "unresponsive":
		*c = ClassUnresponsive
	default:
		return fmt.Errorf("unknown classification %q", text)
	}
	return nil
}

// Confidence levels attached to probe results
const (
	ConfidenceNone      = 0.0
	ConfidenceIDHint    = 0.5
	ConfidenceNumeric   = 0.8
	ConfidenceModelSeen = 1.0
)

// ProbeResult is the outcome of one probe attempt. It is never modified
// after the prober returns it.
type ProbeResult struct {
	Port       string         `json:"port" yaml:"port"`
	Info       PortInfo       `json:"info" yaml:"info"`
	Class      Classification `json:"classification" yaml:"classification"`
	Model      string         `json:"model,omitempty" yaml:"model,omitempty"`
	Reply      string         `json:"reply,omitempty" yaml:"reply,omitempty"`
	Confidence float64        `json:"confidence" yaml:"confidence"`
	Elapsed    time.Duration  `json:"elapsed" yaml:"elapsed"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
}

// Confirmed reports whether the port hosts an MDT controller.
func (r ProbeResult) Confirmed() bool {
	return r.Class == ClassConfirmed
}

// ProbeOptions configures a Prober
type ProbeOptions struct {
	// Timeout bounds the whole query sequence on one port.
	Timeout time.Duration
	// QueryTimeout bounds each query round-trip.
	QueryTimeout time.Duration
	// Queries is the ordered identification sequence; queries only.
	Queries []string
	// EOL terminates every query.
	EOL string
	// EOLVariants lists further terminators tried for a query, in order,
	// when it gets no reply with EOL. Firmware revisions differ in the line
	// ending they accept. Nil selects DefaultEOLVariants.
	EOLVariants map[string][]string
	// Serial holds the line settings used to open candidate ports.
	Serial []Option
	// Open opens candidate ports; nil selects Open.
	Open   OpenFunc
	Logger zerolog.Logger
}

// DefaultEOLVariants retries the legacy X readback with LF and with no
// terminator at all.
var DefaultEOLVariants = map[string][]string{"XR?": {"\n", ""}}

// DefaultProbeOptions returns a 1s budget per port with 300ms per query.
func DefaultProbeOptions() ProbeOptions {
	return ProbeOptions{
		Timeout:      time.Second,
		QueryTimeout: 300 * time.Millisecond,
		Queries:      DefaultProbeQueries,
		EOL:          "\r",
		EOLVariants:  DefaultEOLVariants,
		Logger:       zerolog.Nop(),
	}
}

// Prober classifies serial ports by sending identification queries.
type Prober struct {
	opts ProbeOptions
}

// NewProber validates opts and returns a Prober. Zero fields take the
// defaults from DefaultProbeOptions.
func NewProber(opts ProbeOptions) (*Prober, error) {
	def := DefaultProbeOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.QueryTimeout <= 0 || opts.QueryTimeout > time.Second {
		opts.QueryTimeout = def.QueryTimeout
	}
	if len(opts.Queries) == 0 {
		opts.Queries = def.Queries
	}
	if opts.EOL == "" {
		opts.EOL = def.EOL
	}
	if opts.EOLVariants == nil {
		opts.EOLVariants = def.EOLVariants
	}
	if opts.Open == nil {
		opts.Open = Open
	}
	if err := ValidateQueries(opts.Queries); err != nil {
		return nil, err
	}
	if !isLineEnding(opts.EOL) {
		return nil, fmt.Errorf("%w: terminator %q", ErrUnsafeQuery, opts.EOL)
	}
	for q, eols := range opts.EOLVariants {
		for _, eol := range eols {
			if eol != "" && !isLineEnding(eol) {
				return nil, fmt.Errorf("%w: terminator %q for %s", ErrUnsafeQuery, eol, q)
			}
		}
	}
	return &Prober{opts: opts}, nil
}

// Probe opens the port, runs the query sequence and classifies the answer.
// Failures are reported in the result, never returned.
func (p *Prober) Probe(ctx context.Context, info PortInfo) ProbeResult {
	start := time.Now()
	log := p.opts.Logger.With().Str("port", info.Path).Logger()

	result := ProbeResult{Port: info.Path, Info: info, Class: ClassUnresponsive}
	finish := func() ProbeResult {
		result.Elapsed = time.Since(start)
		log.Debug().Stringer("class", result.Class).Dur("elapsed", result.Elapsed).Msg("probe finished")
		return result
	}

	if sessions.held(info.Path) {
		result.Error = fmt.Errorf("%w: %s", ErrPortBusy, info.Path).Error()
		return finish()
	}

	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	sp, err := p.opts.Open(info.Path, p.opts.Serial...)
	if err != nil {
		result.Error = fmt.Errorf("%w: %v", ErrPortUnavailable, err).Error()
		return finish()
	}
	defer sp.Close()

	result.Class = ClassUnknown
	var lastReply string
	for _, q := range p.opts.Queries {
		if ctx.Err() != nil {
			break
		}
		reply := p.ask(ctx, log, sp, q)
		if reply == "" {
			continue
		}
		id := Identify(reply)
		if id.MDT {
			result.Class = ClassConfirmed
			result.Model = id.Model
			result.Reply = reply
			result.Confidence = ConfidenceNumeric
			if id.Model != "" {
				result.Confidence = ConfidenceModelSeen
			}
			return finish()
		}
		lastReply = reply
	}

	result.Reply = lastReply
	if lastReply == "" {
		result.Error = ErrProbeTimeout.Error()
	}
	return finish()
}

// ask sends q with each configured terminator until one gets a reply.
func (p *Prober) ask(ctx context.Context, log zerolog.Logger, sp Port, q string) string {
	eols := append([]string{p.opts.EOL}, p.opts.EOLVariants[q]...)
	for _, eol := range eols {
		if ctx.Err() != nil {
			break
		}
		reply, err := p.query(ctx, sp, q, eol)
		if err != nil {
			log.Debug().Err(err).Str("query", q).Str("eol", strconv.Quote(eol)).Msg("probe query failed")
			continue
		}
		if reply != "" {
			return reply
		}
	}
	return ""
}

func isLineEnding(s string) bool {
	return s != "" && strings.Trim(s, "\r\n") == ""
}

func (p *Prober) query(ctx context.Context, sp Port, q, eol string) (string, error) {
	qctx, cancel := context.WithTimeout(ctx, p.opts.QueryTimeout)
	defer cancel()

	if err := sp.FlushInput(); err != nil {
		return "", err
	}
	if _, err := sp.WriteContext(qctx, []byte(q+eol)); err != nil {
		return "", err
	}
	raw, err := readReply(qctx, sp)
	if err != nil && len(raw) == 0 {
		if errors.Is(err, ErrReadTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrProbeTimeout, q)
		}
		return "", err
	}
	return cleanReply(raw, q), nil
}

// Known USB vendor IDs
const (
	vendorThorlabs = "1313"
	vendorFTDI     = "0403"
	vendorProlific = "067b"
	vendorSiLabs   = "10c4"
	vendorWCH      = "1a86"
)

var bridgeVendors = map[string]string{
	vendorFTDI:     "FTDI",
	vendorProlific: "Prolific",
	vendorSiLabs:   "Silicon Labs",
	vendorWCH:      "WCH",
}

// IdentifyByID classifies a port from its descriptor alone, without opening
// it. Generic USB-serial bridges stay unknown since MDT controllers often
// sit behind one.
func IdentifyByID(info PortInfo) ProbeResult {
	result := ProbeResult{Port: info.Path, Info: info, Class: ClassUnknown}

	text := strings.ToUpper(info.Manufacturer + " " + info.Product)
	if strings.EqualFold(info.VendorID, vendorThorlabs) || strings.Contains(text, "THORLABS") || modelPattern.MatchString(text) {
		result.Class = ClassConfirmed
		result.Confidence = ConfidenceIDHint
		if m := modelPattern.FindString(text); m != "" {
			result.Model = normalizeModel(m)
		}
		return result
	}

	if name, ok := bridgeVendors[strings.ToLower(info.VendorID)]; ok {
		result.Reply = "candidate " + name + " USB-serial bridge"
	}
	return result
}
