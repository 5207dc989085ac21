package plugins

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const ttlPrefixes = `@prefix lv2: <http://lv2plug.in/ns/lv2core#> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix doap: <http://usefulinc.com/ns/doap#> .
@prefix pprops: <http://lv2plug.in/ns/ext/port-props#> .
@prefix patch: <http://lv2plug.in/ns/ext/patch#> .
@prefix atom: <http://lv2plug.in/ns/ext/atom#> .
@prefix mod: <http://moddevices.com/ns/mod#> .
@prefix modgui: <http://moddevices.com/ns/modgui#> .
`

const fuzzURI = "http://example.org/plugins/fuzz"

func writeBundle(t *testing.T, root, name string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir bundle: %v", err)
	}
	for file, body := range files {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(ttlPrefixes+body), 0o644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}
	return dir
}

func fuzzBundle(t *testing.T, root string) string {
	return writeBundle(t, root, "fuzz.lv2", map[string]string{
		"manifest.ttl": `
<http://example.org/plugins/fuzz> a lv2:Plugin ;
    rdfs:seeAlso <fuzz.ttl> .
`,
		"fuzz.ttl": `
<http://example.org/plugins/fuzz>
    a lv2:Plugin ;
    doap:name "Fuzz Pedal" ;
    lv2:port [
        a lv2:ControlPort , lv2:InputPort ;
        lv2:index 2 ;
        lv2:symbol "mode" ;
        lv2:name "Mode" ;
        lv2:minimum 0 ;
        lv2:maximum 2 ;
        lv2:default 1 ;
        lv2:portProperty lv2:enumeration , lv2:integer ;
        lv2:scalePoint [ rdfs:label "Hot" ; rdf:value 2 ] ,
                       [ rdfs:label "Warm" ; rdf:value 1 ] ,
                       [ rdfs:label "Tepid" ; rdf:value 1 ] ,
                       [ rdfs:label "Off" ; rdf:value 0 ]
    ] , [
        a lv2:ControlPort , lv2:InputPort ;
        lv2:index 0 ;
        lv2:symbol "gain"
    ] , [
        a lv2:ControlPort , lv2:InputPort ;
        lv2:index 1 ;
        lv2:symbol "bypass" ;
        lv2:name "Bypass" ;
        lv2:portProperty lv2:toggled , pprops:trigger
    ] , [
        a lv2:ControlPort , lv2:OutputPort ;
        lv2:index 3 ;
        lv2:symbol "level" ;
        lv2:minimum -60.0 ;
        lv2:maximum 6.0
    ] , [
        a lv2:ControlPort , lv2:InputPort ;
        lv2:index 4 ;
        lv2:name "No Symbol"
    ] , [
        a lv2:AudioPort , lv2:InputPort ;
        lv2:index 5 ;
        lv2:symbol "in"
    ] ;
    patch:writable <http://example.org/plugins/fuzz#model> ,
                   <http://example.org/plugins/fuzz#ir> ,
                   <http://example.org/plugins/fuzz#volume> .

<http://example.org/plugins/fuzz#model>
    rdfs:label "Neural Model" ;
    rdfs:range atom:Path ;
    mod:fileTypes "nam,nammodel,aidadspmodel" .

<http://example.org/plugins/fuzz#ir>
    rdfs:range atom:Path ;
    mod:fileTypes mod:ir , mod:cabsim .

<http://example.org/plugins/fuzz#volume>
    rdfs:label "Volume" ;
    rdfs:range atom:Float .
`,
	})
}

func TestExtractControls(t *testing.T) {
	t.Parallel()

	bundle := fuzzBundle(t, t.TempDir())
	desc := Extract(fuzzURI, bundle)

	if desc.Label != "Fuzz Pedal" {
		t.Fatalf("expected doap:name label, got %q", desc.Label)
	}

	var symbols []string
	for _, c := range desc.Controls {
		symbols = append(symbols, c.Symbol)
	}
	if want := []string{"gain", "bypass", "mode", "level"}; !reflect.DeepEqual(symbols, want) {
		t.Fatalf("controls = %v, want %v", symbols, want)
	}

	gain := desc.Controls[0]
	if gain.Name != "gain" || gain.Minimum != 0 || gain.Maximum != 1 || gain.Default != 0 {
		t.Fatalf("expected defaulted gain port, got %+v", gain)
	}
	bypass := desc.Controls[1]
	if !bypass.Toggle || !bypass.Trigger || bypass.Integer || bypass.Enumeration {
		t.Fatalf("unexpected bypass flags %+v", bypass)
	}
	level := desc.Controls[3]
	if !level.Output || level.Minimum != -60 || level.Maximum != 6 {
		t.Fatalf("unexpected level port %+v", level)
	}

	mode := desc.Controls[2]
	if !mode.Enumeration || !mode.Integer || mode.Default != 1 {
		t.Fatalf("unexpected mode port %+v", mode)
	}
	wantPoints := []ScalePoint{{"Off", 0}, {"Warm", 1}, {"Tepid", 1}, {"Hot", 2}}
	if !reflect.DeepEqual(mode.ScalePoints, wantPoints) {
		t.Fatalf("scale points = %+v, want %+v", mode.ScalePoints, wantPoints)
	}
}

func TestExtractFileParameters(t *testing.T) {
	t.Parallel()

	desc := Extract(fuzzURI, fuzzBundle(t, t.TempDir()))

	want := []FileParameter{
		{URI: fuzzURI + "#model", Label: "Neural Model", FileTypes: []string{"nammodel", "aidadspmodel"}},
		{URI: fuzzURI + "#ir", Label: "ir", FileTypes: []string{"ir", "cabsim"}},
	}
	if !reflect.DeepEqual(desc.Files, want) {
		t.Fatalf("files = %+v, want %+v", desc.Files, want)
	}
}

func TestExtractWithoutGUIFallsBackToFragment(t *testing.T) {
	t.Parallel()

	bundle := writeBundle(t, t.TempDir(), "bare.lv2", map[string]string{
		"manifest.ttl": `
<http://example.org/plugins/bare-delay> a lv2:Plugin .
`,
	})

	desc := Extract("http://example.org/plugins/bare-delay", bundle)
	if desc == nil {
		t.Fatal("expected a description")
	}
	if desc.Label != "bare-delay" {
		t.Fatalf("expected fragment label, got %q", desc.Label)
	}
	if len(desc.Controls) != 0 || len(desc.Files) != 0 {
		t.Fatalf("expected empty parameter lists, got %+v", desc)
	}
}

func TestExtractSurvivesBrokenFiles(t *testing.T) {
	t.Parallel()

	bundle := writeBundle(t, t.TempDir(), "broken.lv2", map[string]string{
		"manifest.ttl": `<http://example.org/plugins/broken> a lv2:Plugin ; rdfs:seeAlso <broken.ttl> .`,
		"broken.ttl":   `<http://example.org/plugins/broken> lv2:port [ lv2:symbol "x" `,
		"modgui.ttl":   `this is not turtle`,
	})

	desc := Extract("http://example.org/plugins/broken#main", bundle)
	if desc.Label != "main" {
		t.Fatalf("expected fragment label, got %q", desc.Label)
	}
}

func TestExtractGUIScopedToPlugin(t *testing.T) {
	t.Parallel()

	bundle := writeBundle(t, t.TempDir(), "multi.lv2", map[string]string{
		"manifest.ttl": `
<http://example.org/plugins/chorus> a lv2:Plugin .
<http://example.org/plugins/flanger> a lv2:Plugin .
`,
		"modguis.ttl": `
<http://example.org/plugins/chorus> modgui:gui [
    modgui:label "Chorus" ;
    modgui:brand "Acme" ;
    modgui:thumbnail <modgui/thumb-chorus.png> ;
    modgui:screenshot <modgui/shot-chorus.png>
] .
<http://example.org/plugins/flanger> modgui:gui [
    modgui:label "Flanger" ;
    modgui:thumbnail <modgui/thumb-flanger.png>
] .
`,
	})

	chorus := Extract("http://example.org/plugins/chorus", bundle)
	if chorus.Label != "Chorus" || chorus.Brand != "Acme" {
		t.Fatalf("unexpected chorus GUI %+v", chorus)
	}
	if chorus.Thumbnail != filepath.Join(bundle, "modgui", "thumb-chorus.png") {
		t.Fatalf("thumbnail = %q", chorus.Thumbnail)
	}
	if chorus.Screenshot != filepath.Join(bundle, "modgui", "shot-chorus.png") {
		t.Fatalf("screenshot = %q", chorus.Screenshot)
	}

	flanger := Extract("http://example.org/plugins/flanger", bundle)
	if flanger.Label != "Flanger" || flanger.Brand != "" || flanger.Screenshot != "" {
		t.Fatalf("flanger picked up another plugin's GUI: %+v", flanger)
	}
}

func TestExtractGUIFromManifest(t *testing.T) {
	t.Parallel()

	bundle := writeBundle(t, t.TempDir(), "inline.lv2", map[string]string{
		"manifest.ttl": `
<http://example.org/plugins/tremolo> a lv2:Plugin ;
    doap:name "tremolo-internal" ;
    modgui:gui [ modgui:label "Tremolo" ] .
`,
	})

	desc := Extract("http://example.org/plugins/tremolo", bundle)
	if desc.Label != "Tremolo" {
		t.Fatalf("expected GUI label from manifest to win over doap:name, got %q", desc.Label)
	}
}

func TestNormalizeFileType(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"nam":         "nammodel",
		"NAMModel":    "nammodel",
		" wav ":       "audiosample",
		"audiosample": "audiosample",
		"sf2":         "sf2",
		"custom":      "custom",
	}
	for raw, want := range tests {
		if got := NormalizeFileType(raw); got != want {
			t.Fatalf("NormalizeFileType(%q) = %q, want %q", raw, got, want)
		}
	}
}
