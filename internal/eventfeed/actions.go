package eventfeed

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hmibridge/hmibridge/internal/bridge"
	"github.com/hmibridge/hmibridge/internal/protocol"
)

// Command actions accepted from feed clients.
const (
	ActionLoadPedalboard   = "load_pedalboard"
	ActionSetParameter     = "set_parameter"
	ActionSetFileParameter = "set_file_parameter"
	ActionSavePedalboard   = "save_pedalboard"
	ActionTuner            = "tuner"
	ActionTunerInput       = "tuner_input"
	ActionTunerReference   = "tuner_reference"
	ActionSnapshotLoad     = "snapshot_load"
	ActionSnapshotSave     = "snapshot_save"
	ActionSnapshotSaveAs   = "snapshot_save_as"
	ActionSnapshotDelete   = "snapshot_delete"
	ActionSnapshotRename   = "snapshot_rename"
	ActionMenuItemSet      = "menu_item_set"
	ActionProfileLoad      = "profile_load"
	ActionProfileStore     = "profile_store"
	ActionSetTempo         = "set_tempo"
	ActionSetBeatsPerBar   = "set_beats_per_bar"
	ActionSetPlayStatus    = "set_play_status"
	ActionSetBypass        = "set_bypass"
	ActionSetQuickBypass   = "set_quick_bypass"
	ActionSetMIDIClockSrc  = "set_midi_clock_source"
	ActionSetMIDIClockSend = "set_midi_clock_send"
)

// ErrUnknownAction is returned for actions without a handler.
var ErrUnknownAction = errors.New("eventfeed: unknown action")

type commandArgs struct {
	Bank     *int        `json:"bank"`
	Index    *int        `json:"index"`
	Instance *int        `json:"instance"`
	MenuID   *int        `json:"menu_id"`
	On       *bool       `json:"on"`
	Value    json.Number `json:"value"`
	Symbol   string      `json:"symbol"`
	URI      string      `json:"uri"`
	Path     string      `json:"path"`
	Name     string      `json:"name"`
	Input    *int        `json:"input"`
	Hz       json.Number `json:"hz"`
	BPM      json.Number `json:"bpm"`
	Beats    *int        `json:"beats"`
	Playing  *bool       `json:"playing"`
	Channel  *int        `json:"channel"`
	Bypassed *bool       `json:"bypassed"`
	Mode     *int        `json:"mode"`
	Source   *int        `json:"source"`
	Enabled  *bool       `json:"enabled"`
}

func required[T any](v *T, field string) (T, error) {
	if v == nil {
		var zero T
		return zero, fmt.Errorf("missing %q", field)
	}
	return *v, nil
}

func nonEmpty(v, field string) (string, error) {
	if strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("missing %q", field)
	}
	return v, nil
}

func number(v json.Number, field string) (float64, error) {
	if v == "" {
		return 0, fmt.Errorf("missing %q", field)
	}
	f, err := v.Float64()
	if err != nil {
		return 0, fmt.Errorf("invalid %q: %w", field, err)
	}
	return f, nil
}

// execute runs one client command against cmds and returns the number of
// peers the resulting frame reached.
func execute(cmds *bridge.Commands, action string, raw json.RawMessage) (int, error) {
	var args commandArgs
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &args); err != nil {
			return 0, fmt.Errorf("decode args: %w", err)
		}
	}

	switch action {
	case ActionLoadPedalboard:
		bank, err := required(args.Bank, "bank")
		if err != nil {
			return 0, err
		}
		index, err := required(args.Index, "index")
		if err != nil {
			return 0, err
		}
		return cmds.LoadPedalboard(bank, index), nil

	case ActionSetParameter:
		instance, err := required(args.Instance, "instance")
		if err != nil {
			return 0, err
		}
		symbol, err := nonEmpty(args.Symbol, "symbol")
		if err != nil {
			return 0, err
		}
		value, err := args.Value.Float64()
		if err != nil {
			return 0, fmt.Errorf("invalid %q: %w", "value", err)
		}
		return cmds.SetParameter(instance, symbol, value), nil

	case ActionSetFileParameter:
		instance, err := required(args.Instance, "instance")
		if err != nil {
			return 0, err
		}
		uri, err := nonEmpty(args.URI, "uri")
		if err != nil {
			return 0, err
		}
		path, err := nonEmpty(args.Path, "path")
		if err != nil {
			return 0, err
		}
		return cmds.SetFileParameter(instance, uri, path), nil

	case ActionSavePedalboard:
		return cmds.SavePedalboard(), nil

	case ActionTuner:
		on, err := required(args.On, "on")
		if err != nil {
			return 0, err
		}
		return cmds.Tuner(on), nil

	case ActionTunerInput:
		input, err := required(args.Input, "input")
		if err != nil {
			return 0, err
		}
		return cmds.TunerInput(input), nil

	case ActionTunerReference:
		hz, err := number(args.Hz, "hz")
		if err != nil {
			return 0, err
		}
		return cmds.TunerReference(hz), nil

	case ActionSetTempo:
		bpm, err := number(args.BPM, "bpm")
		if err != nil {
			return 0, err
		}
		return cmds.SetTempo(bpm), nil

	case ActionSetBeatsPerBar:
		beats, err := required(args.Beats, "beats")
		if err != nil {
			return 0, err
		}
		return cmds.SetBeatsPerBar(beats), nil

	case ActionSetPlayStatus:
		playing, err := required(args.Playing, "playing")
		if err != nil {
			return 0, err
		}
		return cmds.SetPlayStatus(playing), nil

	case ActionSetBypass:
		channel, err := required(args.Channel, "channel")
		if err != nil {
			return 0, err
		}
		bypassed, err := required(args.Bypassed, "bypassed")
		if err != nil {
			return 0, err
		}
		return cmds.SetBypass(channel, bypassed)

	case ActionSetQuickBypass:
		mode, err := required(args.Mode, "mode")
		if err != nil {
			return 0, err
		}
		return cmds.SetQuickBypass(mode), nil

	case ActionSetMIDIClockSrc:
		source, err := required(args.Source, "source")
		if err != nil {
			return 0, err
		}
		return cmds.SetMIDIClockSource(source), nil

	case ActionSetMIDIClockSend:
		enabled, err := required(args.Enabled, "enabled")
		if err != nil {
			return 0, err
		}
		return cmds.SetMIDIClockSend(enabled), nil

	case ActionSnapshotLoad, ActionSnapshotDelete, ActionProfileLoad, ActionProfileStore:
		index, err := required(args.Index, "index")
		if err != nil {
			return 0, err
		}
		switch action {
		case ActionSnapshotLoad:
			return cmds.SnapshotLoad(index), nil
		case ActionSnapshotDelete:
			return cmds.SnapshotDelete(index), nil
		case ActionProfileLoad:
			return cmds.ProfileLoad(index), nil
		default:
			return cmds.ProfileStore(index), nil
		}

	case ActionSnapshotSave:
		return cmds.SnapshotSave(), nil

	case ActionSnapshotSaveAs:
		name, err := nonEmpty(args.Name, "name")
		if err != nil {
			return 0, err
		}
		return cmds.SnapshotSaveAs(name), nil

	case ActionSnapshotRename:
		index, err := required(args.Index, "index")
		if err != nil {
			return 0, err
		}
		name, err := nonEmpty(args.Name, "name")
		if err != nil {
			return 0, err
		}
		return cmds.SnapshotRename(index, name), nil

	case ActionMenuItemSet:
		id, err := required(args.MenuID, "menu_id")
		if err != nil {
			return 0, err
		}
		value, err := protocol.ParseMenuValue(args.Value.String())
		if err != nil {
			return 0, fmt.Errorf("invalid %q: %w", "value", err)
		}
		return cmds.MenuItemSet(id, value), nil
	}

	return 0, fmt.Errorf("%w %q", ErrUnknownAction, action)
}
