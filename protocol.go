package mdt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Op is an MDT controller operation
type Op int

const (
	OpIdentify Op = iota
	OpGetVoltage
	OpSetVoltage
	OpGetLimit
	OpRaw // free-form query text, used by probe query sets
)

const (
	opNameIdentify   = "identify"
	opNameGetVoltage = "get voltage"
	opNameSetVoltage = "set voltage"
	opNameGetLimit   = "get voltage limit"
	opNameRaw        = "query"
)

func (o Op) String() string {
	switch o {
	case OpIdentify:
		return opNameIdentify
	case OpGetVoltage:
		return opNameGetVoltage
	case OpSetVoltage:
		return opNameSetVoltage
	case OpGetLimit:
		return opNameGetLimit
	default:
		return opNameRaw
	}
}

// Command is a single request to the controller. Backends encode it in
// their own way; the serial backend uses Text.
type Command struct {
	Op    Op
	Axis  Axis
	Value float64
	Raw   string
}

// Response is the parsed reply to a Command.
type Response struct {
	Text  string
	Value float64
}

// Text returns the ASCII command understood by MDT693B/MDT694B firmware,
// without the line terminator.
func (c Command) Text() string {
	switch c.Op {
	case OpIdentify:
		return "id?"
	case OpGetVoltage:
		return strings.ToLower(string(c.Axis)) + "voltage?"
	case OpSetVoltage:
		return strings.ToLower(string(c.Axis)) + "voltage=" + strconv.FormatFloat(c.Value, 'f', 3, 64)
	case OpGetLimit:
		return "vlimit?"
	default:
		return c.Raw
	}
}

// Query reports whether the command leaves the device state unchanged.
func (c Command) Query() bool {
	switch c.Op {
	case OpIdentify, OpGetVoltage, OpGetLimit:
		return true
	case OpSetVoltage:
		return false
	default:
		return isQueryText(c.Raw)
	}
}

func isQueryText(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && strings.HasSuffix(s, "?") && !strings.ContainsAny(s, "=\r\n")
}

// Query builds a free-form query command.
func Query(text string) Command {
	return Command{Op: OpRaw, Raw: text}
}

// DefaultProbeQueries is the identification sequence sent to candidate
// ports: firmware id, SCPI-style id, X readback, legacy MDT693A X readback.
var DefaultProbeQueries = []string{"id?", "*IDN?", "xvoltage?", "XR?"}

// ValidateQueries rejects query sets containing anything that could change
// device state.
func ValidateQueries(queries []string) error {
	for _, q := range queries {
		if !isQueryText(q) {
			return fmt.Errorf("%w: %q", ErrUnsafeQuery, q)
		}
	}
	return nil
}

const promptByte = '>'

var (
	modelPattern     = regexp.MustCompile(`(?i)MDT\s*-?\s*69[34][AB]?`)
	signaturePattern = regexp.MustCompile(`(?i)MDT|THOR|69[34]`)
	decimalPattern   = regexp.MustCompile(`-?\d+\.\d+`)
	errorReplies     = []string{"CMD_NOT_DEFINED", "CMD_ARG_INVALID", "CMD_INVALID"}
)

// cleanReply strips the echoed command, prompts, brackets and surrounding
// whitespace from a raw controller reply.
func cleanReply(raw []byte, cmd string) string {
	s := string(bytes.ToValidUTF8(raw, nil))
	s = strings.TrimSpace(s)
	if cmd != "" && strings.HasPrefix(s, cmd) {
		s = strings.TrimSpace(s[len(cmd):])
	}
	s = strings.Trim(s, "\r\n >!*")
	s = strings.TrimSpace(strings.Trim(s, "[]"))
	return s
}

// parseNumber extracts the first decimal or integer value in a reply.
func parseNumber(reply string) (float64, error) {
	if m := decimalPattern.FindString(reply); m != "" {
		return strconv.ParseFloat(m, 64)
	}
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty reply")
	}
	return strconv.ParseFloat(fields[0], 64)
}

// deviceError returns an error when the reply is a firmware error string.
func deviceError(reply string) error {
	u := strings.ToUpper(reply)
	for _, e := range errorReplies {
		if strings.Contains(u, e) {
			return fmt.Errorf("%w: device replied %s", ErrDeviceCommand, e)
		}
	}
	return nil
}

// Identification is the verdict of the MDT response grammar on a reply.
type Identification struct {
	MDT     bool
	Model   string
	Numeric bool
}

// Identify applies the MDT response grammar: a model signature (MDT, THOR,
// 693/694) or a bare decimal voltage readback marks an MDT controller.
func Identify(reply string) Identification {
	if reply == "" {
		return Identification{}
	}
	if signaturePattern.MatchString(reply) {
		id := Identification{MDT: true}
		if m := modelPattern.FindString(reply); m != "" {
			id.Model = normalizeModel(m)
		}
		return id
	}
	if deviceError(reply) == nil && decimalPattern.MatchString(reply) {
		return Identification{MDT: true, Numeric: true}
	}
	return Identification{}
}

func normalizeModel(m string) string {
	m = strings.ToUpper(m)
	m = strings.NewReplacer(" ", "", "-", "", "\t", "").Replace(m)
	return m
}

// readReply reads from p until the prompt arrives, the line goes idle after
// some data, or ctx expires. Reads are synchronous: each one is bounded by
// the port's read timeout and ctx is checked in between, so no read is left
// running to consume the reply to the next command.
func readReply(ctx context.Context, p Port) ([]byte, error) {
	var buf []byte
	chunk := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			if len(buf) > 0 {
				return buf, nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %v", ErrReadTimeout, err)
			}
			return nil, err
		}

		n, err := p.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if bytes.IndexByte(buf, promptByte) >= 0 {
				return buf, nil
			}
			continue
		}
		if err != nil {
			return buf, err
		}
		if len(buf) > 0 {
			// read timeout with nothing new: the reply is complete
			return buf, nil
		}
	}
}
