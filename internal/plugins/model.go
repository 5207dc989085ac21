// Package plugins discovers LV2 plugin bundles, extracts their parameter
// schemas and GUI assets, and caches the result on disk.
package plugins

// ScalePoint is one labelled value of an enumeration parameter.
type ScalePoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ControlParameter describes one numeric control port. It is immutable once
// extracted; live values are carried by pedal instances.
type ControlParameter struct {
	Symbol      string       `json:"symbol"`
	Name        string       `json:"name"`
	Minimum     float64      `json:"minimum"`
	Maximum     float64      `json:"maximum"`
	Default     float64      `json:"default"`
	Toggle      bool         `json:"toggle,omitempty"`
	Integer     bool         `json:"integer,omitempty"`
	Trigger     bool         `json:"trigger,omitempty"`
	Enumeration bool         `json:"enumeration,omitempty"`
	Output      bool         `json:"output,omitempty"`
	ScalePoints []ScalePoint `json:"scale_points,omitempty"`
}

// FileParameter describes a writable path-typed parameter. Path is only set
// on copies held by pedal instances.
type FileParameter struct {
	URI       string   `json:"uri"`
	Label     string   `json:"label"`
	FileTypes []string `json:"file_types,omitempty"`
	Path      string   `json:"path,omitempty"`
}

// PluginDescription is the extracted metadata of one plugin. Instances are
// shared by pointer and must not be modified.
type PluginDescription struct {
	URI        string             `json:"uri"`
	Bundle     string             `json:"bundle"`
	Label      string             `json:"label"`
	Brand      string             `json:"brand,omitempty"`
	Thumbnail  string             `json:"thumbnail,omitempty"`
	Screenshot string             `json:"screenshot,omitempty"`
	Controls   []ControlParameter `json:"controls"`
	Files      []FileParameter    `json:"files"`
}

// Control returns the control parameter with the given symbol.
func (d *PluginDescription) Control(symbol string) (ControlParameter, bool) {
	if d == nil {
		return ControlParameter{}, false
	}
	for _, c := range d.Controls {
		if c.Symbol == symbol {
			return c, true
		}
	}
	return ControlParameter{}, false
}
