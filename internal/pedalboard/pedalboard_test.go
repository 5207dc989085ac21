package pedalboard

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hmibridge/hmibridge/internal/plugins"
)

const boardPrefixes = `@prefix doap: <http://usefulinc.com/ns/doap#> .
@prefix ingen: <http://drobilla.net/ns/ingen#> .
@prefix lv2: <http://lv2plug.in/ns/lv2core#> .
@prefix modpedal: <http://moddevices.com/ns/modpedal#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
`

type fakeResolver map[string]*plugins.PluginDescription

func (f fakeResolver) Get(_ context.Context, uri string) (*plugins.PluginDescription, bool) {
	d, ok := f[uri]
	return d, ok
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeBoard creates a pedalboard whose graph declares its blocks out of
// instance-number order.
func writeBoard(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name+".pedalboard")
	writeFile(t, filepath.Join(dir, "manifest.ttl"), boardPrefixes+`
<`+name+`.ttl> a ingen:Graph , modpedal:Pedalboard ;
    rdfs:seeAlso <`+name+`.ttl> .
`)
	writeFile(t, filepath.Join(dir, name+".ttl"), boardPrefixes+`
<> a ingen:Graph , modpedal:Pedalboard ;
    doap:name "Live `+name+`" .

<reverb_1> a ingen:Block ;
    lv2:prototype <urn:reverb> ;
    modpedal:instanceNumber 2 ;
    ingen:enabled false .

<reverb_1/mix> ingen:value 0.3 .

<fuzz_1> a ingen:Block ;
    lv2:prototype <urn:fuzz> ;
    modpedal:instanceNumber 0 .

<fuzz_1/gain> ingen:value 0.75 .
<fuzz_1/tone> ingen:value 4 .

<orphan> a ingen:Block ;
    modpedal:instanceNumber 9 .

<amp_1> a ingen:Block ;
    lv2:prototype <urn:amp> ;
    modpedal:instanceNumber 1 .
`)
	writeFile(t, StateFilePath(dir, 1), `urn:amp#model "/data/models/lead.nam"
urn:amp#ir "none"
urn:amp#cab ""
urn:amp#label "plain"
`)
	return dir
}

func TestLoadSortsByInstanceNumber(t *testing.T) {
	t.Parallel()

	dir := writeBoard(t, t.TempDir(), "gig")
	resolver := fakeResolver{
		"urn:fuzz": {URI: "urn:fuzz", Label: "Fuzz", Controls: []plugins.ControlParameter{
			{Symbol: "gain", Default: 0.5}, {Symbol: "level", Default: 0.2},
		}},
		"urn:amp": {URI: "urn:amp", Label: "Amp", Files: []plugins.FileParameter{
			{URI: "urn:amp#model", Label: "Model"}, {URI: "urn:amp#ir", Label: "IR"},
		}},
	}

	ctx := context.Background()
	pb, err := Load(ctx, dir, resolver)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	pedals, err := pb.Pedals(ctx)
	if err != nil {
		t.Fatalf("pedals: %v", err)
	}
	if pb.Name != "Live gig" {
		t.Fatalf("name = %q", pb.Name)
	}

	var names []string
	for _, p := range pedals {
		names = append(names, p.Name)
	}
	if len(names) != 3 || names[0] != "fuzz_1" || names[1] != "amp_1" || names[2] != "reverb_1" {
		t.Fatalf("pedal order = %v", names)
	}

	fuzz, amp, reverb := pedals[0], pedals[1], pedals[2]
	if !fuzz.Enabled || reverb.Enabled {
		t.Fatalf("enabled flags fuzz=%v reverb=%v", fuzz.Enabled, reverb.Enabled)
	}
	if fuzz.Values["gain"] != 0.75 || fuzz.Values["tone"] != 4 || reverb.Values["mix"] != 0.3 {
		t.Fatalf("unexpected values fuzz=%v reverb=%v", fuzz.Values, reverb.Values)
	}
	if v, ok := fuzz.Value("level"); !ok || v != 0.2 {
		t.Fatalf("expected default fallback for level, got %v %v", v, ok)
	}
	if fuzz.Plugin == nil || fuzz.Plugin.Label != "Fuzz" {
		t.Fatalf("fuzz not resolved: %+v", fuzz.Plugin)
	}
	if reverb.Plugin != nil {
		t.Fatal("expected unknown plugin to stay unresolved")
	}

	if len(amp.FilePaths) != 1 || amp.FilePaths["urn:amp#model"] != "/data/models/lead.nam" {
		t.Fatalf("state file paths = %v", amp.FilePaths)
	}
	files := amp.Files()
	if len(files) != 2 || files[0].Path != "/data/models/lead.nam" || files[1].Path != "" {
		t.Fatalf("files = %+v", files)
	}

	again, _ := pb.Pedals(ctx)
	if again[0] != pedals[0] {
		t.Fatal("expected cached pedal list")
	}
}

func TestApplyDeltasWithoutReparse(t *testing.T) {
	t.Parallel()

	dir := writeBoard(t, t.TempDir(), "deltas")
	ctx := context.Background()
	pb, err := Load(ctx, dir, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if pb.ApplyControlValue(0, "gain", 1) {
		t.Fatal("expected apply before resolve to fail")
	}
	if _, err := pb.Pedals(ctx); err != nil {
		t.Fatalf("pedals: %v", err)
	}

	// Remove the graph; deltas must not need it.
	if err := os.Remove(pb.graphFile); err != nil {
		t.Fatal(err)
	}

	if !pb.ApplyControlValue(0, "gain", 1) {
		t.Fatal("expected control delta to apply")
	}
	if pb.ApplyControlValue(7, "gain", 1) {
		t.Fatal("expected out of range position to fail")
	}
	if !pb.ApplyFilePath("/graph/amp_1", "urn:amp#ir", "/data/irs/room.wav") {
		t.Fatal("expected file delta by instance name")
	}
	if !pb.ApplyFilePath("2", "urn:reverb#sample", "/data/s.wav") {
		t.Fatal("expected file delta by position")
	}
	if pb.ApplyFilePath("missing", "urn:x", "/x") {
		t.Fatal("expected unknown instance to fail")
	}

	pedals, err := pb.Pedals(ctx)
	if err != nil {
		t.Fatalf("pedals: %v", err)
	}
	if pedals[0].Values["gain"] != 1 {
		t.Fatalf("gain = %v", pedals[0].Values["gain"])
	}
	if pedals[1].FilePaths["urn:amp#ir"] != "/data/irs/room.wav" {
		t.Fatalf("amp paths = %v", pedals[1].FilePaths)
	}
	if pedals[2].FilePaths["urn:reverb#sample"] != "/data/s.wav" {
		t.Fatalf("reverb paths = %v", pedals[2].FilePaths)
	}
}

func TestSnapshotDetachedFromLiveUpdates(t *testing.T) {
	t.Parallel()

	dir := writeBoard(t, t.TempDir(), "live")
	ctx := context.Background()
	pb, err := Load(ctx, dir, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, ok := pb.ControlValue(0, "gain"); ok {
		t.Fatal("expected no value before resolve")
	}

	snap, err := pb.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if v, ok := pb.ControlValue(0, "gain"); !ok || v != 0.75 {
		t.Fatalf("gain = %v %v", v, ok)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			pb.ApplyControlValue(0, "gain", float64(i))
			pb.ApplyFilePath("amp_1", "urn:amp#ir", "/data/irs/room.wav")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			pedals, err := pb.Snapshot(ctx)
			if err != nil {
				t.Errorf("snapshot: %v", err)
				return
			}
			for _, p := range pedals {
				_ = len(p.Values) + len(p.FilePaths)
			}
			pb.ControlValue(0, "gain")
		}
	}()
	wg.Wait()

	if snap[0].Values["gain"] != 0.75 {
		t.Fatalf("earlier snapshot changed: gain = %v", snap[0].Values["gain"])
	}
	if _, ok := snap[1].FilePaths["urn:amp#ir"]; ok {
		t.Fatal("earlier snapshot picked up file delta")
	}
	if v, _ := pb.ControlValue(0, "gain"); v != 199 {
		t.Fatalf("final gain = %v", v)
	}
	if _, ok := pb.ControlValue(9, "gain"); ok {
		t.Fatal("expected out of range position to miss")
	}
}

func TestLoadRejectsManifestWithoutGraph(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "empty.pedalboard")
	writeFile(t, filepath.Join(dir, "manifest.ttl"), boardPrefixes+`<urn:x> doap:name "x" .`)
	if _, err := Load(context.Background(), dir, nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := Load(context.Background(), filepath.Join(t.TempDir(), "none.pedalboard"), nil); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestParseStateLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line  string
		key   string
		value string
		ok    bool
	}{
		{`urn:a "/x/y.wav"`, "urn:a", "/x/y.wav", true},
		{`urn:a "with \"quote\"/f"`, "urn:a", `with "quote"/f`, true},
		{`urn:a   /bare/path`, "urn:a", "/bare/path", true},
		{`# comment`, "", "", false},
		{`lonely`, "", "", false},
	}
	for _, tt := range tests {
		key, value, ok := parseStateLine(tt.line)
		if ok != tt.ok || key != tt.key || value != tt.value {
			t.Fatalf("parseStateLine(%q) = %q %q %v", tt.line, key, value, ok)
		}
	}
	for _, v := range []string{"", "none", "plain"} {
		if isFilePath(v) {
			t.Fatalf("expected %q to be rejected", v)
		}
	}
}
