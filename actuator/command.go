// Package actuator decodes switch commands and drives the output line with a
// default-deny policy: anything but an explicit activate command turns the
// output off.
package actuator

import (
	"fmt"
	"unicode/utf8"
)

// Kind classifies a decoded command.
type Kind int

const (
	// Unrecognized is any payload that is not one of the known literals.
	Unrecognized Kind = iota
	// Activate turns the output on.
	Activate
	// Deactivate turns the output off.
	Deactivate
)

func (k Kind) String() string {
	switch k {
	case Activate:
		return "activate"
	case Deactivate:
		return "deactivate"
	default:
		return "unrecognized"
	}
}

// Command is one decoded inbound payload. Raw is kept for diagnostics.
type Command struct {
	Kind Kind
	Raw  []byte
}

func (c Command) String() string {
	if c.Kind == Unrecognized {
		return fmt.Sprintf("unrecognized(%q)", c.Raw)
	}
	return c.Kind.String()
}

// Decoder matches payloads against the on and off literals.
type Decoder struct {
	On  string
	Off string
}

// DefaultDecoder matches the literals the rsw03 switch answers to.
func DefaultDecoder() Decoder {
	return Decoder{On: "rsw03_on", Off: "rsw03_off"}
}

// Decode maps payload to a Command. Matching is exact; payloads that are not
// valid UTF-8 are Unrecognized.
func (d Decoder) Decode(payload []byte) Command {
	cmd := Command{Kind: Unrecognized, Raw: payload}
	if !utf8.Valid(payload) {
		return cmd
	}
	switch string(payload) {
	case d.On:
		cmd.Kind = Activate
	case d.Off:
		cmd.Kind = Deactivate
	}
	return cmd
}
