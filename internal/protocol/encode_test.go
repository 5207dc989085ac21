package protocol

import "testing"

func TestEncoders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"response ok", EncodeResponse(StatusOK), "response 0\x00"},
		{"response error", EncodeResponse(StatusError), "response -1\x00"},
		{"response data", EncodeResponse(StatusOK, "a", "b"), "response 0 a b\x00"},
		{"load pedalboard", EncodeLoadPedalboard(1, 4), "pedalboard-load 1 4\x00"},
		{"set parameter", EncodeSetParameter(2, "gain", 0.75), "param-set 2 gain 0.75\x00"},
		{"set file parameter", EncodeSetFileParameter(0, "urn:model", "/data/a.nam"), "file-param-set 0 urn:model /data/a.nam\x00"},
		{"save pedalboard", EncodeSavePedalboard(), "pedalboard-save\x00"},
		{"tuner on", EncodeTuner(true), "tuner-on\x00"},
		{"tuner off", EncodeTuner(false), "tuner-off\x00"},
		{"tuner input", EncodeTunerInput(2), "tuner-input 2\x00"},
		{"tuner reference", EncodeTunerReference(442), "tuner-ref-freq 442\x00"},
		{"snapshot load", EncodeSnapshotLoad(3), "snapshot-load 3\x00"},
		{"snapshot save", EncodeSnapshotSave(), "snapshot-save\x00"},
		{"snapshot save as", EncodeSnapshotSaveAs("Big Lead"), "snapshot-save-as Big%20Lead\x00"},
		{"snapshot delete", EncodeSnapshotDelete(1), "snapshot-delete 1\x00"},
		{"snapshot rename", EncodeSnapshotRename(1, "Verse A"), "snapshot-rename 1 Verse%20A\x00"},
		{"menu int", EncodeMenuItemSet(MenuQuickBypass, IntValue(2)), "menu-item-set 3 2\x00"},
		{"tempo", EncodeTempo(120), "menu-item-set 9 120.0\x00"},
		{"tempo fractional", EncodeTempo(97.5), "menu-item-set 9 97.5\x00"},
		{"beats per bar", EncodeBeatsPerBar(4), "menu-item-set 10 4\x00"},
		{"play", EncodePlayStatus(true), "menu-item-set 4 1\x00"},
		{"bypass 1", EncodeBypass(1, true), "menu-item-set 11 1\x00"},
		{"bypass 2", EncodeBypass(2, false), "menu-item-set 12 0\x00"},
		{"quick bypass", EncodeQuickBypass(1), "menu-item-set 3 1\x00"},
		{"clock source", EncodeMIDIClockSource(2), "menu-item-set 5 2\x00"},
		{"clock send", EncodeMIDIClockSend(true), "menu-item-set 6 1\x00"},
		{"profile load", EncodeProfileLoad(2), "profile-load 2\x00"},
		{"profile store", EncodeProfileStore(3), "profile-store 3\x00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestEncodedFramesParseBack(t *testing.T) {
	t.Parallel()

	frames, err := NewFrameReader(0).Feed([]byte(EncodeSnapshotRename(4, "Ambient Pad") + EncodeTempo(88)))
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %q", frames)
	}
	rename := ParseCommand(frames[0])
	name, err := rename.Args.Decoded(1)
	if err != nil || name != "Ambient Pad" {
		t.Fatalf("decoded name = %q, %v", name, err)
	}
	tempo := ParseCommand(frames[1])
	v, err := tempo.Args.Menu(1)
	if err != nil || !v.IsFloat || v.Float != 88 {
		t.Fatalf("tempo value = %+v, %v", v, err)
	}
}
