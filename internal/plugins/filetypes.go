package plugins

import (
	"strings"

	"github.com/hmibridge/hmibridge/internal/ttl"
)

// Canonical file type tags understood by the file browser.
const (
	FileTypeNAMModel       = "nammodel"
	FileTypeAidaDSPModel   = "aidadspmodel"
	FileTypeAudioSample    = "audiosample"
	FileTypeAudioLoop      = "audioloop"
	FileTypeAudioRecording = "audiorecording"
	FileTypeAudioTrack     = "audiotrack"
	FileTypeCabSim         = "cabsim"
	FileTypeIR             = "ir"
	FileTypeSF2            = "sf2"
	FileTypeSFZ            = "sfz"
	FileTypeMIDIClip       = "midiclip"
	FileTypeMIDISong       = "midisong"
	FileTypeH2Drumkit      = "h2drumkit"
	FileTypeMLModel        = "mlmodel"
)

var fileTypeAliases = map[string]string{
	"nam":            FileTypeNAMModel,
	"nammodel":       FileTypeNAMModel,
	"aidadspmodel":   FileTypeAidaDSPModel,
	"aidax":          FileTypeAidaDSPModel,
	"wav":            FileTypeAudioSample,
	"audiosample":    FileTypeAudioSample,
	"audiosamples":   FileTypeAudioSample,
	"audioloop":      FileTypeAudioLoop,
	"audioloops":     FileTypeAudioLoop,
	"audiorecording": FileTypeAudioRecording,
	"audiotrack":     FileTypeAudioTrack,
	"audiotracks":    FileTypeAudioTrack,
	"cabsim":         FileTypeCabSim,
	"ir":             FileTypeIR,
	"sf2":            FileTypeSF2,
	"sfz":            FileTypeSFZ,
	"midiclip":       FileTypeMIDIClip,
	"midisong":       FileTypeMIDISong,
	"h2drumkit":      FileTypeH2Drumkit,
	"mlmodel":        FileTypeMLModel,
}

// NormalizeFileType maps a raw spelling onto the shared tag vocabulary.
// Unknown spellings are returned lower-cased.
func NormalizeFileType(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := fileTypeAliases[key]; ok {
		return canonical
	}
	return key
}

// fileTypesOf collects the tags of a mod:fileTypes property that may be a
// comma-separated literal or a set of IRIs. Duplicates are removed; order
// follows first appearance.
func fileTypesOf(values []ttl.Term) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(raw string) {
		tag := NormalizeFileType(raw)
		if tag == "" || seen[tag] {
			return
		}
		seen[tag] = true
		out = append(out, tag)
	}
	for _, v := range values {
		switch v.Kind {
		case ttl.KindLiteral:
			for _, part := range strings.Split(v.Value, ",") {
				add(part)
			}
		case ttl.KindIRI:
			add(v.Fragment())
		}
	}
	return out
}
