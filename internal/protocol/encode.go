package protocol

import (
	"strconv"
	"strings"
)

// Outbound verbs sent to the host.
const (
	VerbOutPedalboardLoad = "pedalboard-load"
	VerbParamSet          = "param-set"
	VerbFileParamSet      = "file-param-set"
	VerbPedalboardSave    = "pedalboard-save"
	VerbTunerOn           = "tuner-on"
	VerbTunerOff          = "tuner-off"
	VerbTunerInput        = "tuner-input"
	VerbTunerRefFreq      = "tuner-ref-freq"
	VerbSnapshotLoad      = "snapshot-load"
	VerbSnapshotSave      = "snapshot-save"
	VerbSnapshotSaveAs    = "snapshot-save-as"
	VerbSnapshotDelete    = "snapshot-delete"
	VerbSnapshotRename    = "snapshot-rename"
	VerbMenuItemSet       = "menu-item-set"
	VerbProfileLoad       = "profile-load"
	VerbProfileStore      = "profile-store"
)

// Menu item identifiers shared with the host.
const (
	MenuStereoLinkInput  = 0
	MenuStereoLinkOutput = 1
	MenuTunerMute        = 2
	MenuQuickBypass      = 3
	MenuPlayStatus       = 4
	MenuMIDIClockSource  = 5
	MenuMIDIClockSend    = 6
	MenuSnapshotPrgChg   = 7
	MenuPedalboardPrgChg = 8
	MenuTempo            = 9
	MenuBeatsPerBar      = 10
	MenuBypass1          = 11
	MenuBypass2          = 12
)

func frame(verb string, args ...string) string {
	var b strings.Builder
	b.WriteString(verb)
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	b.WriteByte(Sentinel)
	return b.String()
}

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func btoi(v bool) int {
	if v {
		return 1
	}
	return 0
}

// EncodeResponse builds an acknowledgement frame.
func EncodeResponse(status int, data ...string) string {
	args := append([]string{itoa(status)}, data...)
	return frame(VerbResponse, args...)
}

// EncodeLoadPedalboard asks the host to load pedalboard index of bank.
func EncodeLoadPedalboard(bank, index int) string {
	return frame(VerbOutPedalboardLoad, itoa(bank), itoa(index))
}

// EncodeSetParameter sets control symbol on the given instance.
func EncodeSetParameter(instance int, symbol string, value float64) string {
	return frame(VerbParamSet, itoa(instance), symbol, ftoa(value))
}

// EncodeSetFileParameter points a path-typed parameter at a file.
func EncodeSetFileParameter(instance int, uri, path string) string {
	return frame(VerbFileParamSet, itoa(instance), uri, path)
}

func EncodeSavePedalboard() string { return frame(VerbPedalboardSave) }

// EncodeTuner switches the tuner on or off.
func EncodeTuner(on bool) string {
	if on {
		return frame(VerbTunerOn)
	}
	return frame(VerbTunerOff)
}

func EncodeTunerInput(input int) string { return frame(VerbTunerInput, itoa(input)) }

func EncodeTunerReference(hz float64) string { return frame(VerbTunerRefFreq, ftoa(hz)) }

func EncodeSnapshotLoad(index int) string { return frame(VerbSnapshotLoad, itoa(index)) }

func EncodeSnapshotSave() string { return frame(VerbSnapshotSave) }

func EncodeSnapshotSaveAs(name string) string {
	return frame(VerbSnapshotSaveAs, EncodeText(name))
}

func EncodeSnapshotDelete(index int) string { return frame(VerbSnapshotDelete, itoa(index)) }

func EncodeSnapshotRename(index int, name string) string {
	return frame(VerbSnapshotRename, itoa(index), EncodeText(name))
}

// EncodeMenuItemSet sets a menu item; floats always carry a decimal point so
// the host can tell them from integers.
func EncodeMenuItemSet(menuID int, value MenuValue) string {
	return frame(VerbMenuItemSet, itoa(menuID), value.String())
}

func EncodeTempo(bpm float64) string {
	return EncodeMenuItemSet(MenuTempo, FloatValue(bpm))
}

func EncodeBeatsPerBar(beats int) string {
	return EncodeMenuItemSet(MenuBeatsPerBar, IntValue(int64(beats)))
}

func EncodePlayStatus(playing bool) string {
	return EncodeMenuItemSet(MenuPlayStatus, IntValue(int64(btoi(playing))))
}

// EncodeBypass toggles true bypass on channel 1 or 2.
func EncodeBypass(channel int, bypassed bool) string {
	id := MenuBypass1
	if channel == 2 {
		id = MenuBypass2
	}
	return EncodeMenuItemSet(id, IntValue(int64(btoi(bypassed))))
}

func EncodeQuickBypass(mode int) string {
	return EncodeMenuItemSet(MenuQuickBypass, IntValue(int64(mode)))
}

func EncodeMIDIClockSource(source int) string {
	return EncodeMenuItemSet(MenuMIDIClockSource, IntValue(int64(source)))
}

func EncodeMIDIClockSend(enabled bool) string {
	return EncodeMenuItemSet(MenuMIDIClockSend, IntValue(int64(btoi(enabled))))
}

func EncodeProfileLoad(index int) string { return frame(VerbProfileLoad, itoa(index)) }

func EncodeProfileStore(index int) string { return frame(VerbProfileStore, itoa(index)) }
