package eventbus

import (
	"time"

	"github.com/hmibridge/hmibridge/internal/protocol"
)

// Topic identifies a logical channel on the bus.
type Topic string

// Topics carrying host notifications decoded by the dispatcher, plus bridge
// housekeeping.
const (
	TopicPedalboardChanged     Topic = "hmi.pedalboard.changed"
	TopicPedalboardLoaded      Topic = "hmi.pedalboard.loaded"
	TopicPedalboardCleared     Topic = "hmi.pedalboard.cleared"
	TopicPedalboardNameChanged Topic = "hmi.pedalboard.name_changed"
	TopicTunerReading          Topic = "hmi.tuner.reading"
	TopicSnapshotsList         Topic = "hmi.snapshots.list"
	TopicProfilesList          Topic = "hmi.profiles.list"
	TopicMenuItemChanged       Topic = "hmi.menu.item_changed"
	TopicFileParameterChanged  Topic = "hmi.file_parameter.changed"
	TopicPeersLifecycle        Topic = "bridge.peers.lifecycle"
)

// Source describes which component produced an event.
type Source string

const (
	SourceDispatcher Source = "dispatcher"
	SourceBridge     Source = "bridge"
	SourceEventFeed  Source = "event_feed"
	SourceUnknown    Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       any
}

// PedalboardChangedEvent reports that the host moved to another pedalboard slot.
type PedalboardChangedEvent struct {
	Index int `json:"index"`
}

// PedalboardLoadedEvent reports a finished pedalboard load.
type PedalboardLoadedEvent struct {
	Index      int    `json:"index"`
	Identifier string `json:"identifier"`
}

// PedalboardClearedEvent reports that the host emptied the current pedalboard.
type PedalboardClearedEvent struct{}

// PedalboardNameChangedEvent carries the current pedalboard's display name.
type PedalboardNameChangedEvent struct {
	Name string `json:"name"`
}

// TunerReadingEvent is one tuner sample.
type TunerReadingEvent struct {
	Frequency float64 `json:"frequency"`
	Note      string  `json:"note"`
	Cents     int     `json:"cents"`
}

// Snapshot is one entry of a snapshot list; Index is its list position.
type Snapshot struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// SnapshotsListEvent carries the snapshots of the current pedalboard.
type SnapshotsListEvent struct {
	Current   int        `json:"current"`
	Snapshots []Snapshot `json:"snapshots"`
}

// ProfilesListEvent carries the stored profiles.
type ProfilesListEvent struct {
	Current int      `json:"current"`
	Names   []string `json:"names"`
}

// MenuItemChangedEvent reports a host-side menu change (tempo, bypass, ...).
type MenuItemChangedEvent struct {
	MenuID int                `json:"menu_id"`
	Value  protocol.MenuValue `json:"value"`
}

// FileParameterChangedEvent reports a new file bound to a path parameter.
type FileParameterChangedEvent struct {
	Instance string `json:"instance"`
	ParamURI string `json:"param_uri"`
	Path     string `json:"path"`
}

// PeerState summarises connection lifecycle changes.
type PeerState string

const (
	PeerConnected    PeerState = "connected"
	PeerDisconnected PeerState = "disconnected"
)

// PeerLifecycleEvent notifies consumers about host connections.
type PeerLifecycleEvent struct {
	PeerID string    `json:"peer_id"`
	Remote string    `json:"remote"`
	State  PeerState `json:"state"`
	Reason string    `json:"reason,omitempty"`
}

// ---------------------------------------------------------------------------
// Typed topic descriptors
// ---------------------------------------------------------------------------

// Pedalboard groups pedalboard topic descriptors.
var Pedalboard = struct {
	Changed     TopicDef[PedalboardChangedEvent]
	Loaded      TopicDef[PedalboardLoadedEvent]
	Cleared     TopicDef[PedalboardClearedEvent]
	NameChanged TopicDef[PedalboardNameChangedEvent]
}{
	Changed:     NewTopicDef[PedalboardChangedEvent](TopicPedalboardChanged),
	Loaded:      NewTopicDef[PedalboardLoadedEvent](TopicPedalboardLoaded),
	Cleared:     NewTopicDef[PedalboardClearedEvent](TopicPedalboardCleared),
	NameChanged: NewTopicDef[PedalboardNameChangedEvent](TopicPedalboardNameChanged),
}

// Device groups the remaining host notification descriptors.
var Device = struct {
	Tuner         TopicDef[TunerReadingEvent]
	Snapshots     TopicDef[SnapshotsListEvent]
	Profiles      TopicDef[ProfilesListEvent]
	MenuItem      TopicDef[MenuItemChangedEvent]
	FileParameter TopicDef[FileParameterChangedEvent]
}{
	Tuner:         NewTopicDef[TunerReadingEvent](TopicTunerReading),
	Snapshots:     NewTopicDef[SnapshotsListEvent](TopicSnapshotsList),
	Profiles:      NewTopicDef[ProfilesListEvent](TopicProfilesList),
	MenuItem:      NewTopicDef[MenuItemChangedEvent](TopicMenuItemChanged),
	FileParameter: NewTopicDef[FileParameterChangedEvent](TopicFileParameterChanged),
}

// Peers groups connection lifecycle descriptors.
var Peers = struct {
	Lifecycle TopicDef[PeerLifecycleEvent]
}{
	Lifecycle: NewTopicDef[PeerLifecycleEvent](TopicPeersLifecycle),
}

// AllTopics lists every topic the bridge publishes, in a stable order.
func AllTopics() []Topic {
	return []Topic{
		TopicPedalboardChanged,
		TopicPedalboardLoaded,
		TopicPedalboardCleared,
		TopicPedalboardNameChanged,
		TopicTunerReading,
		TopicSnapshotsList,
		TopicProfilesList,
		TopicMenuItemChanged,
		TopicFileParameterChanged,
		TopicPeersLifecycle,
	}
}
