package bridge

import (
	"testing"

	"github.com/hmibridge/hmibridge/internal/protocol"
)

type recordingBroadcaster struct {
	frames []string
}

func (r *recordingBroadcaster) Broadcast(frame string) int {
	r.frames = append(r.frames, frame)
	return 1
}

type controlDelta struct {
	position int
	symbol   string
	value    float64
}

type fileDelta struct {
	instance, uri, path string
}

type recordingSink struct {
	controls []controlDelta
	files    []fileDelta
}

func (s *recordingSink) ApplyControlValue(position int, symbol string, value float64) bool {
	s.controls = append(s.controls, controlDelta{position, symbol, value})
	return true
}

func (s *recordingSink) ApplyFilePath(instance, uri, path string) bool {
	s.files = append(s.files, fileDelta{instance, uri, path})
	return true
}

func TestCommandsEncodeFrames(t *testing.T) {
	out := &recordingBroadcaster{}
	cmds := NewCommands(out, nil)

	cmds.LoadPedalboard(0, 5)
	cmds.SetParameter(2, "gain", 0.5)
	cmds.SetFileParameter(1, "urn:amp#model", "/models/lead.nam")
	cmds.SavePedalboard()
	cmds.Tuner(true)
	cmds.Tuner(false)
	cmds.TunerInput(2)
	cmds.TunerReference(442)
	cmds.SnapshotLoad(1)
	cmds.SnapshotSave()
	cmds.SnapshotSaveAs("Big Lead")
	cmds.SnapshotDelete(3)
	cmds.SnapshotRename(0, "Clean Tone")
	cmds.MenuItemSet(protocol.MenuStereoLinkInput, protocol.IntValue(1))
	cmds.SetTempo(98.5)
	cmds.SetBeatsPerBar(3)
	cmds.SetPlayStatus(true)
	cmds.SetQuickBypass(2)
	cmds.SetMIDIClockSource(1)
	cmds.SetMIDIClockSend(false)
	cmds.ProfileLoad(4)
	cmds.ProfileStore(4)

	want := []string{
		"pedalboard-load 0 5\x00",
		"param-set 2 gain 0.5\x00",
		"file-param-set 1 urn:amp#model /models/lead.nam\x00",
		"pedalboard-save\x00",
		"tuner-on\x00",
		"tuner-off\x00",
		"tuner-input 2\x00",
		"tuner-ref-freq 442\x00",
		"snapshot-load 1\x00",
		"snapshot-save\x00",
		"snapshot-save-as Big%20Lead\x00",
		"snapshot-delete 3\x00",
		"snapshot-rename 0 Clean%20Tone\x00",
		"menu-item-set 0 1\x00",
		"menu-item-set 9 98.5\x00",
		"menu-item-set 10 3\x00",
		"menu-item-set 4 1\x00",
		"menu-item-set 3 2\x00",
		"menu-item-set 5 1\x00",
		"menu-item-set 6 0\x00",
		"profile-load 4\x00",
		"profile-store 4\x00",
	}
	if len(out.frames) != len(want) {
		t.Fatalf("got %d frames, want %d: %q", len(out.frames), len(want), out.frames)
	}
	for i := range want {
		if out.frames[i] != want[i] {
			t.Errorf("frame %d = %q, want %q", i, out.frames[i], want[i])
		}
	}
}

func TestCommandsBypassChannel(t *testing.T) {
	out := &recordingBroadcaster{}
	cmds := NewCommands(out, nil)

	if _, err := cmds.SetBypass(1, true); err != nil {
		t.Fatalf("channel 1: %v", err)
	}
	if _, err := cmds.SetBypass(2, false); err != nil {
		t.Fatalf("channel 2: %v", err)
	}
	for _, ch := range []int{0, 3, -1} {
		if _, err := cmds.SetBypass(ch, true); err == nil {
			t.Fatalf("channel %d accepted", ch)
		}
	}
	if len(out.frames) != 2 || out.frames[0] != "menu-item-set 11 1\x00" || out.frames[1] != "menu-item-set 12 0\x00" {
		t.Fatalf("frames = %q", out.frames)
	}
}

func TestCommandsUpdateStateSink(t *testing.T) {
	sink := &recordingSink{}
	cmds := NewCommands(&recordingBroadcaster{}, sink)

	cmds.SetParameter(1, "level", -6)
	cmds.SetFileParameter(0, "urn:ir#file", "/irs/room.wav")
	cmds.SetTempo(100)

	if len(sink.controls) != 1 || sink.controls[0] != (controlDelta{1, "level", -6}) {
		t.Fatalf("controls = %+v", sink.controls)
	}
	if len(sink.files) != 1 || sink.files[0] != (fileDelta{"0", "urn:ir#file", "/irs/room.wav"}) {
		t.Fatalf("files = %+v", sink.files)
	}
}
