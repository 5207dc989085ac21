package ttl

// Namespaces.
const (
	NSRDF      = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSRDFS     = "http://www.w3.org/2000/01/rdf-schema#"
	NSLV2      = "http://lv2plug.in/ns/lv2core#"
	NSPProps   = "http://lv2plug.in/ns/ext/port-props#"
	NSPatch    = "http://lv2plug.in/ns/ext/patch#"
	NSAtom     = "http://lv2plug.in/ns/ext/atom#"
	NSDOAP     = "http://usefulinc.com/ns/doap#"
	NSModGUI   = "http://moddevices.com/ns/modgui#"
	NSMod      = "http://moddevices.com/ns/mod#"
	NSIngen    = "http://drobilla.net/ns/ingen#"
	NSModPedal = "http://moddevices.com/ns/modpedal#"
)

const (
	RDFType  = NSRDF + "type"
	RDFValue = NSRDF + "value"

	RDFSLabel   = NSRDFS + "label"
	RDFSSeeAlso = NSRDFS + "seeAlso"
	RDFSRange   = NSRDFS + "range"
	RDFSComment = NSRDFS + "comment"

	LV2Plugin       = NSLV2 + "Plugin"
	LV2Port         = NSLV2 + "port"
	LV2ControlPort  = NSLV2 + "ControlPort"
	LV2InputPort    = NSLV2 + "InputPort"
	LV2OutputPort   = NSLV2 + "OutputPort"
	LV2Symbol       = NSLV2 + "symbol"
	LV2Name         = NSLV2 + "name"
	LV2Index        = NSLV2 + "index"
	LV2Minimum      = NSLV2 + "minimum"
	LV2Maximum      = NSLV2 + "maximum"
	LV2Default      = NSLV2 + "default"
	LV2PortProperty = NSLV2 + "portProperty"
	LV2Toggled      = NSLV2 + "toggled"
	LV2Integer      = NSLV2 + "integer"
	LV2Enumeration  = NSLV2 + "enumeration"
	LV2ScalePoint   = NSLV2 + "scalePoint"
	LV2Prototype    = NSLV2 + "prototype"
	LV2Binary       = NSLV2 + "binary"

	PPropsTrigger = NSPProps + "trigger"

	PatchWritable = NSPatch + "writable"
	AtomPath      = NSAtom + "Path"

	DOAPName = NSDOAP + "name"

	ModGUIGui        = NSModGUI + "gui"
	ModGUILabel      = NSModGUI + "label"
	ModGUIBrand      = NSModGUI + "brand"
	ModGUIThumbnail  = NSModGUI + "thumbnail"
	ModGUIScreenshot = NSModGUI + "screenshot"

	ModFileTypes = NSMod + "fileTypes"

	IngenBlock   = NSIngen + "Block"
	IngenGraph   = NSIngen + "Graph"
	IngenEnabled = NSIngen + "enabled"
	IngenValue   = NSIngen + "value"

	ModPedalPedalboard     = NSModPedal + "Pedalboard"
	ModPedalInstanceNumber = NSModPedal + "instanceNumber"
)
