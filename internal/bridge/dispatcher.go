// Package bridge runs the host-facing side of the HMI protocol: it accepts
// host connections, acknowledges and dispatches inbound frames as bus events
// and broadcasts outbound commands.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/hmibridge/hmibridge/internal/eventbus"
	"github.com/hmibridge/hmibridge/internal/protocol"
)

// ErrUnknownVerb is returned for frames whose verb has no handler.
var ErrUnknownVerb = errors.New("bridge: unknown verb")

// handler validates args completely before publishing anything, so a
// rejected frame never produces an event.
type handler func(ctx context.Context, peer string, args protocol.Args) error

type verb struct {
	minArgs int
	handle  handler
}

// Dispatcher decodes frames into bus events and builds their acknowledgements.
type Dispatcher struct {
	bus   *eventbus.Bus
	verbs map[string]verb
}

// NewDispatcher returns a dispatcher publishing on bus.
func NewDispatcher(bus *eventbus.Bus) *Dispatcher {
	d := &Dispatcher{bus: bus}
	d.verbs = map[string]verb{
		protocol.VerbPing:              {0, d.ack},
		protocol.VerbGUIConnected:      {0, d.guiConnected},
		protocol.VerbGUIDisconnected:   {0, d.guiDisconnected},
		protocol.VerbPedalboardChange:  {1, d.pedalboardChange},
		protocol.VerbPedalboardLoad:    {2, d.pedalboardLoad},
		protocol.VerbPedalboardClear:   {0, d.pedalboardClear},
		protocol.VerbPedalboardNameSet: {1, d.pedalboardNameSet},
		protocol.VerbTunerReading:      {3, d.tunerReading},
		protocol.VerbSnapshotsList:     {1, d.snapshotsList},
		protocol.VerbProfileList:       {1, d.profileList},
		protocol.VerbMenuItemChange:    {2, d.menuItemChange},
		protocol.VerbFileParamChanged:  {3, d.fileParamChanged},
	}
	return d
}

// Dispatch handles one frame from peer and returns the acknowledgement
// frame to send back. It never fails: every error becomes a -1 status.
func (d *Dispatcher) Dispatch(ctx context.Context, peer, frame string) string {
	cmd := protocol.ParseCommand(frame)
	if err := d.Handle(ctx, peer, cmd); err != nil {
		if errors.Is(err, ErrUnknownVerb) {
			log.Printf("[Dispatcher] warning: unknown verb %q from %s", cmd.Verb, peer)
		} else {
			log.Printf("[Dispatcher] rejected %q from %s: %v", frame, peer, err)
		}
		return protocol.EncodeResponse(protocol.StatusError)
	}
	return protocol.EncodeResponse(protocol.StatusOK)
}

// Handle validates and executes cmd.
func (d *Dispatcher) Handle(ctx context.Context, peer string, cmd protocol.Command) error {
	v, ok := d.verbs[cmd.Verb]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownVerb, cmd.Verb)
	}
	if cmd.Args.Len() < v.minArgs {
		return &protocol.ArgError{Index: cmd.Args.Len(), Want: fmt.Sprintf("%d arguments for %s", v.minArgs, cmd.Verb)}
	}
	return v.handle(ctx, peer, cmd.Args)
}

// Verbs lists the verbs the dispatcher accepts.
func (d *Dispatcher) Verbs() []string {
	out := make([]string, 0, len(d.verbs))
	for name := range d.verbs {
		out = append(out, name)
	}
	return out
}

func (d *Dispatcher) ack(context.Context, string, protocol.Args) error { return nil }

func (d *Dispatcher) guiConnected(_ context.Context, peer string, _ protocol.Args) error {
	log.Printf("[Dispatcher] host GUI connected (%s)", peer)
	return nil
}

func (d *Dispatcher) guiDisconnected(_ context.Context, peer string, _ protocol.Args) error {
	log.Printf("[Dispatcher] host GUI disconnected (%s)", peer)
	return nil
}

func (d *Dispatcher) pedalboardChange(ctx context.Context, peer string, args protocol.Args) error {
	index, err := args.Int(0)
	if err != nil {
		return err
	}
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Pedalboard.Changed, eventbus.SourceDispatcher,
		eventbus.PedalboardChangedEvent{Index: index}, eventbus.WithCorrelationID(peer))
	return nil
}

func (d *Dispatcher) pedalboardLoad(ctx context.Context, peer string, args protocol.Args) error {
	index, err := args.Int(0)
	if err != nil {
		return err
	}
	identifier, err := args.Rest(1)
	if err != nil {
		return err
	}
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Pedalboard.Loaded, eventbus.SourceDispatcher,
		eventbus.PedalboardLoadedEvent{Index: index, Identifier: identifier}, eventbus.WithCorrelationID(peer))
	return nil
}

func (d *Dispatcher) pedalboardClear(ctx context.Context, peer string, _ protocol.Args) error {
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Pedalboard.Cleared, eventbus.SourceDispatcher,
		eventbus.PedalboardClearedEvent{}, eventbus.WithCorrelationID(peer))
	return nil
}

func (d *Dispatcher) pedalboardNameSet(ctx context.Context, peer string, args protocol.Args) error {
	name, err := args.Rest(0)
	if err != nil {
		return err
	}
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Pedalboard.NameChanged, eventbus.SourceDispatcher,
		eventbus.PedalboardNameChangedEvent{Name: name}, eventbus.WithCorrelationID(peer))
	return nil
}

func (d *Dispatcher) tunerReading(ctx context.Context, peer string, args protocol.Args) error {
	freq, err := args.Float(0)
	if err != nil {
		return err
	}
	note, err := args.Text(1)
	if err != nil {
		return err
	}
	cents, err := args.Int(2)
	if err != nil {
		return err
	}
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Device.Tuner, eventbus.SourceDispatcher,
		eventbus.TunerReadingEvent{Frequency: freq, Note: note, Cents: cents}, eventbus.WithCorrelationID(peer))
	return nil
}

// decodedNames percent-decodes args[from:].
func decodedNames(args protocol.Args, from int) ([]string, error) {
	names := make([]string, 0, args.Len()-from)
	for i := from; i < args.Len(); i++ {
		name, err := args.Decoded(i)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func (d *Dispatcher) snapshotsList(ctx context.Context, peer string, args protocol.Args) error {
	current, err := args.Int(0)
	if err != nil {
		return err
	}
	names, err := decodedNames(args, 1)
	if err != nil {
		return err
	}
	snapshots := make([]eventbus.Snapshot, len(names))
	for i, name := range names {
		snapshots[i] = eventbus.Snapshot{Index: i, Name: name}
	}
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Device.Snapshots, eventbus.SourceDispatcher,
		eventbus.SnapshotsListEvent{Current: current, Snapshots: snapshots}, eventbus.WithCorrelationID(peer))
	return nil
}

func (d *Dispatcher) profileList(ctx context.Context, peer string, args protocol.Args) error {
	current, err := args.Int(0)
	if err != nil {
		return err
	}
	names, err := decodedNames(args, 1)
	if err != nil {
		return err
	}
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Device.Profiles, eventbus.SourceDispatcher,
		eventbus.ProfilesListEvent{Current: current, Names: names}, eventbus.WithCorrelationID(peer))
	return nil
}

func (d *Dispatcher) menuItemChange(ctx context.Context, peer string, args protocol.Args) error {
	id, err := args.Int(0)
	if err != nil {
		return err
	}
	value, err := args.Menu(1)
	if err != nil {
		return err
	}
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Device.MenuItem, eventbus.SourceDispatcher,
		eventbus.MenuItemChangedEvent{MenuID: id, Value: value}, eventbus.WithCorrelationID(peer))
	return nil
}

func (d *Dispatcher) fileParamChanged(ctx context.Context, peer string, args protocol.Args) error {
	instance, err := args.Text(0)
	if err != nil {
		return err
	}
	uri, err := args.Text(1)
	if err != nil {
		return err
	}
	path, err := args.Rest(2)
	if err != nil {
		return err
	}
	eventbus.PublishWithOpts(ctx, d.bus, eventbus.Device.FileParameter, eventbus.SourceDispatcher,
		eventbus.FileParameterChangedEvent{Instance: instance, ParamURI: uri, Path: path}, eventbus.WithCorrelationID(peer))
	return nil
}
