package bridge

import (
	"fmt"

	"github.com/hmibridge/hmibridge/internal/protocol"
)

// Broadcaster delivers an encoded frame to every connected host.
type Broadcaster interface {
	Broadcast(frame string) int
}

// StateSink receives the parameter changes the HMI itself requests so the
// resolved pedal list stays current. *pedalboard.Tracker satisfies it.
type StateSink interface {
	ApplyControlValue(position int, symbol string, value float64) bool
	ApplyFilePath(instance, paramURI, path string) bool
}

// Commands is the outbound API used by the presentation layer. Every call
// is fire-and-forget: it returns how many peers the frame reached, and any
// acknowledgement arrives later as an ordinary inbound frame.
type Commands struct {
	out  Broadcaster
	sink StateSink
}

// NewCommands returns a command API writing to out. sink may be nil.
func NewCommands(out Broadcaster, sink StateSink) *Commands {
	return &Commands{out: out, sink: sink}
}

func (c *Commands) send(frame string) int {
	return c.out.Broadcast(frame)
}

func (c *Commands) LoadPedalboard(bank, index int) int {
	return c.send(protocol.EncodeLoadPedalboard(bank, index))
}

// SetParameter changes a control of the pedal at ordinal position instance.
func (c *Commands) SetParameter(instance int, symbol string, value float64) int {
	if c.sink != nil {
		c.sink.ApplyControlValue(instance, symbol, value)
	}
	return c.send(protocol.EncodeSetParameter(instance, symbol, value))
}

// SetFileParameter binds a file to a path parameter of the pedal at
// ordinal position instance.
func (c *Commands) SetFileParameter(instance int, uri, path string) int {
	if c.sink != nil {
		c.sink.ApplyFilePath(fmt.Sprint(instance), uri, path)
	}
	return c.send(protocol.EncodeSetFileParameter(instance, uri, path))
}

func (c *Commands) SavePedalboard() int { return c.send(protocol.EncodeSavePedalboard()) }

func (c *Commands) Tuner(on bool) int { return c.send(protocol.EncodeTuner(on)) }

func (c *Commands) TunerInput(input int) int { return c.send(protocol.EncodeTunerInput(input)) }

func (c *Commands) TunerReference(hz float64) int {
	return c.send(protocol.EncodeTunerReference(hz))
}

func (c *Commands) SnapshotLoad(index int) int { return c.send(protocol.EncodeSnapshotLoad(index)) }

func (c *Commands) SnapshotSave() int { return c.send(protocol.EncodeSnapshotSave()) }

func (c *Commands) SnapshotSaveAs(name string) int {
	return c.send(protocol.EncodeSnapshotSaveAs(name))
}

func (c *Commands) SnapshotDelete(index int) int {
	return c.send(protocol.EncodeSnapshotDelete(index))
}

func (c *Commands) SnapshotRename(index int, name string) int {
	return c.send(protocol.EncodeSnapshotRename(index, name))
}

// MenuItemSet sends a raw menu change; prefer the named setters below.
func (c *Commands) MenuItemSet(menuID int, value protocol.MenuValue) int {
	return c.send(protocol.EncodeMenuItemSet(menuID, value))
}

func (c *Commands) SetTempo(bpm float64) int { return c.send(protocol.EncodeTempo(bpm)) }

func (c *Commands) SetBeatsPerBar(beats int) int {
	return c.send(protocol.EncodeBeatsPerBar(beats))
}

func (c *Commands) SetPlayStatus(playing bool) int {
	return c.send(protocol.EncodePlayStatus(playing))
}

// SetBypass toggles true bypass on channel 1 or 2.
func (c *Commands) SetBypass(channel int, bypassed bool) (int, error) {
	if channel != 1 && channel != 2 {
		return 0, fmt.Errorf("bridge: bypass channel %d out of range", channel)
	}
	return c.send(protocol.EncodeBypass(channel, bypassed)), nil
}

func (c *Commands) SetQuickBypass(mode int) int {
	return c.send(protocol.EncodeQuickBypass(mode))
}

func (c *Commands) SetMIDIClockSource(source int) int {
	return c.send(protocol.EncodeMIDIClockSource(source))
}

func (c *Commands) SetMIDIClockSend(enabled bool) int {
	return c.send(protocol.EncodeMIDIClockSend(enabled))
}

func (c *Commands) ProfileLoad(index int) int { return c.send(protocol.EncodeProfileLoad(index)) }

func (c *Commands) ProfileStore(index int) int {
	return c.send(protocol.EncodeProfileStore(index))
}
