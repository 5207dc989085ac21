package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/hmibridge/hmibridge/internal/eventfeed"
)

const feedReplyTimeout = 5 * time.Second

type feedMessage struct {
	Type      string          `json:"type"`
	Action    string          `json:"action,omitempty"`
	Args      json.RawMessage `json:"args,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func newSendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send <action> [json-args]",
		Short: "Send a command to the connected hosts through the daemon",
		Long: `Send a command to the connected hosts through the daemon's event feed.

Examples:
  hmibridge send load_pedalboard '{"bank":0,"index":2}'
  hmibridge send set_parameter '{"instance":1,"symbol":"gain","value":0.5}'
  hmibridge send tuner '{"on":true}'
  hmibridge send snapshot_save`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          sendCommand,
	}
}

func newWatchCommand() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:           "watch",
		Short:         "Stream host events from the daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          watchEvents,
	}
	watchCmd.Flags().Int("count", 0, "Exit after this many events (0 streams until interrupted)")
	return watchCmd
}

// dialFeed connects to the daemon feed and consumes the hello message.
func dialFeed(cmd *cobra.Command) (*websocket.Conn, error) {
	addr, err := feedAddr(cmd)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), "ws://"+addr+"/events", nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}

	conn.SetReadDeadline(time.Now().Add(feedReplyTimeout))
	var hello feedMessage
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if hello.Type != eventfeed.TypeHello {
		conn.Close()
		return nil, fmt.Errorf("unexpected first message %q", hello.Type)
	}
	conn.SetReadDeadline(time.Time{})
	return conn, nil
}

func sendCommand(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	msg := feedMessage{Type: eventfeed.TypeCommand, Action: args[0], Timestamp: time.Now().UTC()}
	if len(args) == 2 {
		if !json.Valid([]byte(args[1])) {
			return out.Error("Arguments must be a JSON object", nil)
		}
		msg.Args = json.RawMessage(args[1])
	}

	conn, err := dialFeed(cmd)
	if err != nil {
		return out.Error("Failed to reach daemon", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(msg); err != nil {
		return out.Error("Failed to send command", err)
	}

	// bus events may arrive before the reply
	deadline := time.Now().Add(feedReplyTimeout)
	for {
		conn.SetReadDeadline(deadline)
		var reply feedMessage
		if err := conn.ReadJSON(&reply); err != nil {
			return out.Error("No reply from daemon", err)
		}
		switch reply.Type {
		case eventfeed.TypeError:
			var text string
			if err := json.Unmarshal(reply.Data, &text); err != nil {
				text = string(reply.Data)
			}
			return out.Error(fmt.Sprintf("Command %s rejected", args[0]), fmt.Errorf("%s", text))
		case eventfeed.TypeCommandResult:
			var result eventfeed.CommandResult
			if err := json.Unmarshal(reply.Data, &result); err != nil {
				return out.Error("Malformed reply", err)
			}
			return out.Success(fmt.Sprintf("%s delivered to %d host(s)", args[0], result.Delivered),
				map[string]any{"action": args[0], "delivered": result.Delivered})
		}
	}
}

func watchEvents(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	limit, _ := cmd.Flags().GetInt("count")

	conn, err := dialFeed(cmd)
	if err != nil {
		return out.Error("Failed to reach daemon", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-cmd.Context().Done():
			conn.Close()
		case <-done:
		}
	}()

	o := cmd.OutOrStdout()
	for seen := 0; limit == 0 || seen < limit; {
		var msg feedMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if cmd.Context().Err() != nil {
				return nil
			}
			return out.Error("Event feed closed", err)
		}
		switch msg.Type {
		case eventfeed.TypeHello, eventfeed.TypeCommandResult, eventfeed.TypeError:
			continue
		}
		seen++

		if out.JSON() {
			line, err := json.Marshal(msg)
			if err != nil {
				return out.Error("Failed to encode event", err)
			}
			fmt.Fprintln(o, string(line))
			continue
		}
		fmt.Fprintf(o, "%s  %-22s %s\n", msg.Timestamp.Local().Format("15:04:05.000"), msg.Type, msg.Data)
	}
	return nil
}
