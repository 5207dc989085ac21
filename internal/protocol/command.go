package protocol

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Inbound verbs sent by the host.
const (
	VerbPing              = "ping"
	VerbGUIConnected      = "gui-connected"
	VerbGUIDisconnected   = "gui-disconnected"
	VerbPedalboardChange  = "pedalboard-change"
	VerbPedalboardLoad    = "pedalboard-load"
	VerbPedalboardClear   = "pedalboard-clear"
	VerbPedalboardNameSet = "pedalboard-name-set"
	VerbTunerReading      = "tuner-reading"
	VerbSnapshotsList     = "snapshots-list"
	VerbProfileList       = "profile-list"
	VerbMenuItemChange    = "menu-item-change"
	VerbFileParamChanged  = "file-param-changed"
)

// VerbResponse prefixes every acknowledgement frame.
const VerbResponse = "response"

// Acknowledgement statuses.
const (
	StatusOK    = 0
	StatusError = -1
)

// Command is one decoded inbound frame.
type Command struct {
	Verb string
	Args Args
}

// ParseCommand splits a frame on single spaces into a verb and its arguments.
func ParseCommand(frame string) Command {
	parts := strings.Split(frame, " ")
	return Command{Verb: parts[0], Args: Args(parts[1:])}
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Verb
	}
	return c.Verb + " " + strings.Join(c.Args, " ")
}

// ArgError reports a missing or malformed positional argument.
type ArgError struct {
	Index int
	Want  string
	Value string
	Err   error
}

func (e *ArgError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("argument %d: missing %s", e.Index, e.Want)
	}
	return fmt.Sprintf("argument %d: invalid %s %q: %v", e.Index, e.Want, e.Value, e.Err)
}

func (e *ArgError) Unwrap() error { return e.Err }

// Args holds the positional arguments of a command.
type Args []string

// Len returns the number of arguments.
func (a Args) Len() int { return len(a) }

func (a Args) at(i int, want string) (string, error) {
	if i < 0 || i >= len(a) {
		return "", &ArgError{Index: i, Want: want}
	}
	return a[i], nil
}

// Int parses argument i as a decimal integer.
func (a Args) Int(i int) (int, error) {
	raw, err := a.at(i, "integer")
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &ArgError{Index: i, Want: "integer", Value: raw, Err: err}
	}
	return v, nil
}

// Float parses argument i as a decimal number.
func (a Args) Float(i int) (float64, error) {
	raw, err := a.at(i, "number")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ArgError{Index: i, Want: "number", Value: raw, Err: err}
	}
	return v, nil
}

// Text returns argument i verbatim.
func (a Args) Text(i int) (string, error) {
	return a.at(i, "text")
}

// Rest re-joins arguments i..n with single spaces, restoring free text that
// the splitter broke apart.
func (a Args) Rest(i int) (string, error) {
	if _, err := a.at(i, "text"); err != nil {
		return "", err
	}
	return strings.Join(a[i:], " "), nil
}

// Decoded returns argument i with percent-encoding removed.
func (a Args) Decoded(i int) (string, error) {
	raw, err := a.at(i, "text")
	if err != nil {
		return "", err
	}
	text, err := DecodeText(raw)
	if err != nil {
		return "", &ArgError{Index: i, Want: "percent-encoded text", Value: raw, Err: err}
	}
	return text, nil
}

// Menu parses argument i as a menu value: a literal containing a decimal
// point is a float, anything else an integer.
func (a Args) Menu(i int) (MenuValue, error) {
	raw, err := a.at(i, "menu value")
	if err != nil {
		return MenuValue{}, err
	}
	v, err := ParseMenuValue(raw)
	if err != nil {
		return MenuValue{}, &ArgError{Index: i, Want: "menu value", Value: raw, Err: err}
	}
	return v, nil
}

// MenuValue is either an integer or a float, as sniffed from the wire literal.
type MenuValue struct {
	Int     int64   `json:"int"`
	Float   float64 `json:"float"`
	IsFloat bool    `json:"is_float"`
}

// IntValue builds an integer menu value.
func IntValue(v int64) MenuValue { return MenuValue{Int: v, Float: float64(v)} }

// FloatValue builds a float menu value.
func FloatValue(v float64) MenuValue { return MenuValue{Int: int64(v), Float: v, IsFloat: true} }

// ParseMenuValue decodes a menu literal.
func ParseMenuValue(raw string) (MenuValue, error) {
	if strings.Contains(raw, ".") {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return MenuValue{}, err
		}
		return FloatValue(f), nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return MenuValue{}, err
	}
	return IntValue(n), nil
}

// String renders the value so that ParseMenuValue yields the same kind back.
func (v MenuValue) String() string {
	if !v.IsFloat {
		return strconv.FormatInt(v.Int, 10)
	}
	s := strconv.FormatFloat(v.Float, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// EncodeText percent-encodes free text so it survives space splitting.
func EncodeText(s string) string {
	return url.PathEscape(s)
}

// DecodeText reverses EncodeText.
func DecodeText(s string) (string, error) {
	return url.PathUnescape(s)
}
