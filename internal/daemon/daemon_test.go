package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hmibridge/hmibridge/internal/config"
	configstore "github.com/hmibridge/hmibridge/internal/config/store"
	"github.com/hmibridge/hmibridge/internal/protocol"
	daemonruntime "github.com/hmibridge/hmibridge/internal/runtime"
	"github.com/hmibridge/hmibridge/internal/testutil"
)

const testInstance = "test"

const ttlPrefixes = `@prefix doap: <http://usefulinc.com/ns/doap#> .
@prefix ingen: <http://drobilla.net/ns/ingen#> .
@prefix lv2: <http://lv2plug.in/ns/lv2core#> .
@prefix modpedal: <http://moddevices.com/ns/modpedal#> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(ttlPrefixes+body), 0o644); err != nil {
		t.Fatal(err)
	}
}

// writeFixtures lays out one plugin bundle and one pedalboard using it.
func writeFixtures(t *testing.T, root string) (bundles, boards string) {
	t.Helper()
	bundles = filepath.Join(root, "lv2")
	boards = filepath.Join(root, "pedalboards")

	writeFile(t, filepath.Join(bundles, "fuzz.lv2", "manifest.ttl"), `
<urn:fuzz> a lv2:Plugin ;
    rdfs:seeAlso <fuzz.ttl> .
`)
	writeFile(t, filepath.Join(bundles, "fuzz.lv2", "fuzz.ttl"), `
<urn:fuzz> a lv2:Plugin ;
    doap:name "Fuzz" ;
    lv2:port [
        a lv2:ControlPort , lv2:InputPort ;
        lv2:index 0 ;
        lv2:symbol "gain" ;
        lv2:name "Gain" ;
        lv2:default 0.5 ;
        lv2:minimum 0 ;
        lv2:maximum 1
    ] .
`)

	board := filepath.Join(boards, "live.pedalboard")
	writeFile(t, filepath.Join(board, "manifest.ttl"), `
<live.ttl> a ingen:Graph , modpedal:Pedalboard ;
    rdfs:seeAlso <live.ttl> .
`)
	writeFile(t, filepath.Join(board, "live.ttl"), `
<> a ingen:Graph , modpedal:Pedalboard ;
    doap:name "Live Set" .

<fuzz_1> a ingen:Block ;
    lv2:prototype <urn:fuzz> ;
    modpedal:instanceNumber 0 .

<fuzz_1/gain> ingen:value 0.8 .
`)
	return bundles, boards
}

type harness struct {
	daemon *Daemon
	store  *configstore.Store
	boards string
	errCh  chan error
}

func startDaemon(t *testing.T, mutate func(*configstore.BridgeSettings)) *harness {
	t.Helper()
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)

	bundles, boards := writeFixtures(t, home)
	st := testutil.OpenStore(t, testInstance)

	settings := configstore.DefaultBridgeSettings()
	settings.ListenAddr = "127.0.0.1:0"
	settings.EventFeedAddr = "127.0.0.1:0"
	settings.BundleRoots = []string{bundles}
	settings.PedalboardsDir = boards
	if mutate != nil {
		mutate(&settings)
	}
	if err := st.SaveBridgeSettings(context.Background(), settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}

	d, err := New(Options{Store: st, SettingsInterval: 500 * time.Millisecond})
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}

	h := &harness{daemon: d, store: st, boards: boards, errCh: make(chan error, 1)}
	go func() { h.errCh <- d.Start() }()

	select {
	case <-d.Ready():
	case err := <-h.errCh:
		t.Fatalf("daemon exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not become ready")
	}
	t.Cleanup(func() { h.stop(t) })
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.daemon.Shutdown()
	select {
	case err := <-h.errCh:
		if err != nil {
			t.Errorf("daemon returned error: %v", err)
		}
		h.errCh <- nil
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func readFrame(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := r.ReadString(protocol.Sentinel)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestDaemonBridgesHostAndFeed(t *testing.T) {
	h := startDaemon(t, nil)
	d := h.daemon

	pidFile := config.GetInstancePaths(testInstance).PIDFile
	if pid, err := daemonruntime.ReadPIDFile(pidFile); err != nil || pid != os.Getpid() {
		t.Fatalf("pid file = %d, %v", pid, err)
	}
	if !IsRunning(testInstance) {
		t.Fatal("expected instance to report running")
	}

	host, err := net.Dial("tcp", d.BridgeAddr().String())
	if err != nil {
		t.Fatalf("dial bridge: %v", err)
	}
	defer host.Close()
	reader := bufio.NewReader(host)

	feed, _, err := websocket.DefaultDialer.Dial("ws://"+d.FeedAddr().String()+"/events", nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer feed.Close()
	var hello struct {
		Type string `json:"type"`
	}
	feed.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := feed.ReadJSON(&hello); err != nil || hello.Type != "hello" {
		t.Fatalf("hello = %+v, %v", hello, err)
	}

	eventually(t, "peer registration", func() bool { return len(d.Status().Peers) == 1 })

	board := filepath.Join(h.boards, "live.pedalboard")
	if _, err := host.Write([]byte("pedalboard-load 0 " + board + "\x00")); err != nil {
		t.Fatalf("write load: %v", err)
	}
	if ack := readFrame(t, host, reader); ack != "response 0\x00" {
		t.Fatalf("ack = %q", ack)
	}

	eventually(t, "pedalboard tracking", func() bool { return d.Status().Pedalboard != nil })
	st := d.Status()
	if st.Pedalboard.Name != "Live Set" || st.Pedalboard.Pedals != 1 || st.Pedalboard.Index != 0 {
		t.Fatalf("pedalboard status = %+v", st.Pedalboard)
	}
	if st.Plugins.Extractions != 1 || st.Plugins.ScanCount != 1 {
		t.Fatalf("plugin stats = %+v", st.Plugins)
	}
	if !st.Services[ServiceBridge] || !st.Services[ServiceEventFeed] || st.FeedClients != 1 {
		t.Fatalf("status = %+v", st)
	}

	var loaded struct {
		Type string `json:"type"`
	}
	feed.SetReadDeadline(time.Now().Add(2 * time.Second))
	for loaded.Type != "hmi.pedalboard.loaded" {
		if err := feed.ReadJSON(&loaded); err != nil {
			t.Fatalf("read feed: %v", err)
		}
	}

	if n := d.Commands().SetParameter(0, "gain", 0.25); n != 1 {
		t.Fatalf("delivered to %d peers", n)
	}
	if got := readFrame(t, host, reader); got != "param-set 0 gain 0.25\x00" {
		t.Fatalf("frame = %q", got)
	}
	pb, _ := d.relay.currentTracker().Current()
	if v, _ := pb.ControlValue(0, "gain"); v != 0.25 {
		t.Fatalf("tracked gain = %v", v)
	}

	if _, err := host.Write([]byte("pedalboard-clear\x00")); err != nil {
		t.Fatalf("write clear: %v", err)
	}
	readFrame(t, host, reader)
	eventually(t, "pedalboard cleared", func() bool { return d.Status().Pedalboard == nil })

	h.stop(t)
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatalf("pid file should be removed, stat err = %v", err)
	}
}

func TestDaemonStatusOverFeed(t *testing.T) {
	h := startDaemon(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+h.daemon.FeedAddr().String()+"/events", nil)
	if err != nil {
		t.Fatalf("dial feed: %v", err)
	}
	defer conn.Close()

	var hello struct {
		Data struct {
			Status Status `json:"status"`
		} `json:"data"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read hello: %v", err)
	}
	if hello.Data.Status.Instance != testInstance || hello.Data.Status.PID != os.Getpid() {
		t.Fatalf("status = %+v", hello.Data.Status)
	}

	raw, err := json.Marshal(h.daemon.Status())
	if err != nil {
		t.Fatalf("marshal status: %v", err)
	}
	if !strings.Contains(string(raw), `"services":{`) || strings.Contains(string(raw), `"pedalboard"`) {
		t.Fatalf("status json = %s", raw)
	}

	resp, err := http.Get("http://" + h.daemon.FeedAddr().String() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	for _, want := range []string{"hmibridge_feed_clients 1", "hmibridge_host_peers 0", "hmibridge_pedalboard_loaded 0"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestDaemonRestartsServicesOnSettingsChange(t *testing.T) {
	h := startDaemon(t, func(s *configstore.BridgeSettings) { s.EventFeedAddr = "" })
	d := h.daemon

	if d.FeedAddr() != nil {
		t.Fatal("feed should start disabled")
	}
	bridgeBefore := d.bridgeServer.Load()
	before := d.BridgeAddr().String()

	ctx := context.Background()
	if err := h.store.SetValue(ctx, configstore.KeyEventFeedAddr, "127.0.0.1:0"); err != nil {
		t.Fatalf("set feed addr: %v", err)
	}
	eventually(t, "feed restart", func() bool { return d.FeedAddr() != nil })
	if d.bridgeServer.Load() != bridgeBefore {
		t.Fatalf("bridge on %s restarted unexpectedly", before)
	}

	if err := h.store.SetValue(ctx, configstore.KeyMaxFrameBytes, "1024"); err != nil {
		t.Fatalf("set frame limit: %v", err)
	}
	eventually(t, "bridge restart", func() bool {
		return d.bridgeServer.Load() != bridgeBefore && d.BridgeAddr() != nil
	})
	if !d.ServiceHost().Running(ServiceBridge) {
		t.Fatal("bridge should be running after restart")
	}
}

func TestServicesToRestart(t *testing.T) {
	base := configstore.DefaultBridgeSettings()

	tests := []struct {
		name   string
		mutate func(*configstore.BridgeSettings)
		want   []string
	}{
		{"no change", func(*configstore.BridgeSettings) {}, nil},
		{"bundle roots", func(s *configstore.BridgeSettings) { s.BundleRoots = []string{"/opt/lv2"} }, []string{ServicePlugins}},
		{"cache path", func(s *configstore.BridgeSettings) { s.PluginCache = "/tmp/p.json" }, []string{ServicePlugins}},
		{"pedalboards", func(s *configstore.BridgeSettings) { s.PedalboardsDir = "/srv/boards" }, []string{ServiceStateSync}},
		{"write timeout", func(s *configstore.BridgeSettings) { s.WriteTimeout = time.Second }, []string{ServiceBridge}},
		{"feed and listener", func(s *configstore.BridgeSettings) {
			s.ListenAddr = ":1"
			s.EventFeedAddr = ""
		}, []string{ServiceBridge, ServiceEventFeed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := base
			next.BundleRoots = append([]string(nil), base.BundleRoots...)
			tt.mutate(&next)
			if got := servicesToRestart(base, next); !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("servicesToRestart = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunningPIDCleansStaleFile(t *testing.T) {
	t.Setenv(config.HomeEnv, t.TempDir())
	pidFile := config.GetInstancePaths(testInstance).PIDFile

	if pid, err := RunningPID(testInstance); err != nil || pid != 0 {
		t.Fatalf("no pid file: %d, %v", pid, err)
	}

	if err := daemonruntime.WritePIDFile(pidFile, 1<<30-1); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if IsRunning(testInstance) {
		t.Fatal("dead pid should not count as running")
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Fatal("stale pid file should be removed")
	}

	if err := Stop(testInstance, time.Second); err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("Stop on idle instance = %v", err)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without store")
	}
}
