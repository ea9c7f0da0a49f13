package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/led-sync/internal/config"
	"github.com/sweeney/led-sync/internal/connectivity"
	"github.com/sweeney/led-sync/internal/gpio"
	"github.com/sweeney/led-sync/internal/status"
	"github.com/sweeney/led-sync/internal/store"
	"github.com/sweeney/led-sync/internal/syncloop"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Only called from runLoop's goroutine.
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type rig struct {
	store   *store.FakeStore
	conn    *connectivity.Static
	writer  *gpio.FakeWriter
	loop    *syncloop.Loop
	tracker *status.Tracker
	logs    *bytes.Buffer
}

func newRig(t *testing.T, readCommand bool) *rig {
	t.Helper()
	r := &rig{
		store:  store.NewFakeStore(),
		conn:   connectivity.NewStatic(true),
		writer: gpio.NewFakeWriter(),
		logs:   &bytes.Buffer{},
	}
	logger := slog.New(slog.NewTextHandler(r.logs, nil))
	loop, err := syncloop.New(syncloop.Config{
		StatePath:       "bool",
		CommandPath:     "bool_cmd",
		PublishInterval: time.Second,
		PollInterval:    time.Second,
		ReadCommand:     readCommand,
	}, r.store, r.conn, gpio.NewDriver(r.writer, true, logger), t0)
	if err != nil {
		t.Fatalf("syncloop.New: %v", err)
	}
	r.loop = loop
	r.tracker = status.NewTracker(t0, status.Config{})
	return r
}

// run drives runLoop for nTicks with a 100ms clock starting at t0+100ms, then signals.
func (r *rig) run(t *testing.T, nTicks int, signal os.Signal) error {
	t.Helper()
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	clock := fakeClock(t0.Add(100*time.Millisecond), 100*time.Millisecond)
	logger := slog.New(slog.NewTextHandler(r.logs, nil))

	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), r.loop, r.tracker, clock, tick, sig, logger)
	}()

	for i := 0; i < nTicks; i++ {
		tick <- time.Time{}
	}
	sig <- signal

	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after signal")
		return nil
	}
}

func TestRunLoopAppliesRemoteCommand(t *testing.T) {
	r := newRig(t, true)
	r.store.Values["bool_cmd"] = true

	// 20 ticks = 2s: polls at 1s and 2s, publishes at 1s and 2s.
	if err := r.run(t, 20, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if !r.loop.State() {
		t.Fatal("expected DeviceState on after polling true")
	}
	if high, ok := r.writer.Last(); !ok || !high {
		t.Errorf("pin: got high=%v ok=%v, want high", high, ok)
	}

	// First publish precedes the poll in the same tick; the second carries the new state.
	if len(r.store.Sets) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(r.store.Sets))
	}
	if r.store.Sets[0].Value || !r.store.Sets[1].Value {
		t.Errorf("publishes: got %+v, want [false true]", r.store.Sets)
	}

	snap := r.tracker.Snapshot()
	if !snap.Loop.State || !snap.Online {
		t.Errorf("tracker: State=%v Online=%v", snap.Loop.State, snap.Online)
	}
	if snap.Loop.Counts.RemoteChanges != 1 {
		t.Errorf("RemoteChanges: got %d, want 1", snap.Loop.Counts.RemoteChanges)
	}
	if !strings.Contains(r.logs.String(), "command applied") {
		t.Error("expected command applied log")
	}
}

func TestRunLoopOfflineMakesNoCalls(t *testing.T) {
	r := newRig(t, true)
	r.conn.Set(false)

	if err := r.run(t, 30, syscall.SIGINT); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if r.store.Calls() != 0 {
		t.Errorf("expected no store calls while offline, got %d", r.store.Calls())
	}
	snap := r.tracker.Snapshot()
	if snap.Online {
		t.Error("tracker should report offline")
	}
	if snap.Loop.Counts.OfflineTicks != 30 {
		t.Errorf("OfflineTicks: got %d, want 30", snap.Loop.Counts.OfflineTicks)
	}
	if n := strings.Count(r.logs.String(), "offline, cloud sync paused"); n != 1 {
		t.Errorf("offline transition logged %d times, want 1", n)
	}
}

func TestRunLoopSurvivesStoreErrors(t *testing.T) {
	r := newRig(t, true)
	r.store.SetError = store.ErrBackendUnavailable
	r.store.GetError = store.ErrUnauthorized

	if err := r.run(t, 25, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	if r.loop.State() {
		t.Error("failed polls must not change DeviceState")
	}
	if len(r.writer.Levels) != 0 {
		t.Errorf("failed polls must not touch the pin, got writes %v", r.writer.Levels)
	}

	snap := r.tracker.Snapshot()
	// Failed timers stay due, so every tick from 1s retries.
	if snap.Loop.Counts.PublishFailures != 16 || snap.Loop.Counts.PollFailures != 16 {
		t.Errorf("failures: got %+v", snap.Loop.Counts)
	}
	if !errors.Is(snap.Loop.LastPollErr, store.ErrUnauthorized) {
		t.Errorf("LastPollErr: got %v", snap.Loop.LastPollErr)
	}
	logs := r.logs.String()
	if !strings.Contains(logs, "level=WARN msg=\"publish failed\"") || !strings.Contains(logs, "level=WARN msg=\"poll failed\"") {
		t.Errorf("expected WARN logs for failures, got:\n%s", logs)
	}
}

func TestRunLoopTracksConnectivity(t *testing.T) {
	r := newRig(t, false)
	if err := r.run(t, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if !r.tracker.Snapshot().Online {
		t.Fatal("tracker should report online after an online tick")
	}

	// A later offline tick flips the flag without resetting the loop statistics.
	r.conn.Set(false)
	if err := r.run(t, 1, syscall.SIGTERM); err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	snap := r.tracker.Snapshot()
	if snap.Online {
		t.Error("tracker should report offline after an offline tick")
	}
	if !snap.Started || snap.Loop.Counts.OfflineTicks != 1 {
		t.Errorf("Started=%v OfflineTicks=%d", snap.Started, snap.Loop.Counts.OfflineTicks)
	}
}

func TestRunLoopRecoversAfterOutage(t *testing.T) {
	r := newRig(t, false)
	r.store.SetError = store.ErrBackendUnavailable

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	clock := fakeClock(t0.Add(time.Second), time.Second)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(context.Background(), r.loop, nil, clock, tick, sig, discardLogger())
	}()

	tick <- time.Time{} // 1s: fails
	tick <- time.Time{} // 2s: fails
	tick <- time.Time{} // 3s: fails
	sig <- syscall.SIGTERM
	if err := <-errCh; err != nil {
		t.Fatalf("runLoop: %v", err)
	}
	if r.store.SetAttempts != 3 || len(r.store.Sets) != 0 {
		t.Fatalf("attempts=%d sets=%d", r.store.SetAttempts, len(r.store.Sets))
	}

	r.store.SetError = nil
	res := r.loop.Tick(context.Background(), t0.Add(4*time.Second))
	if !res.PublishAttempted || res.PublishErr != nil {
		t.Errorf("publish after recovery: %+v", res)
	}
}

func TestPrintState(t *testing.T) {
	fs := store.NewFakeStore()
	fs.Values["bool"] = true
	cfg := config.Config{StatePath: "bool", CommandPath: "bool_cmd", CallTimeout: time.Second}

	var out bytes.Buffer
	if err := printState(context.Background(), fs, cfg, &out); err != nil {
		t.Fatalf("printState: %v", err)
	}

	want := "state bool: ON\ncommand bool_cmd: (no value)\n"
	if out.String() != want {
		t.Errorf("output:\ngot  %q\nwant %q", out.String(), want)
	}
}

func TestPrintStateError(t *testing.T) {
	fs := store.NewFakeStore()
	fs.GetError = store.ErrUnauthorized
	cfg := config.Config{StatePath: "bool", CommandPath: "bool_cmd"}

	err := printState(context.Background(), fs, cfg, io.Discard)
	if !errors.Is(err, store.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if len(fs.Gets) != 1 {
		t.Errorf("expected to stop after the first failed read, got %d reads", len(fs.Gets))
	}
}

func TestRunRejectsPlaceholderConfig(t *testing.T) {
	cfg, err := config.Load(nil, func(string) string { return "" })
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	err = run(cfg, discardLogger())
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestOpenBackendRTDB(t *testing.T) {
	cfg := config.Config{
		Backend:        config.BackendRTDB,
		FirebaseAPIKey: "key",
		FirebaseDBURL:  "https://demo.firebaseio.com",
		CallTimeout:    time.Second,
	}
	b, err := openBackend(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("openBackend: %v", err)
	}
	defer b.close()

	if _, ok := b.store.(*store.RTDB); !ok {
		t.Errorf("store: got %T, want *store.RTDB", b.store)
	}
	if b.endpoint != cfg.FirebaseDBURL {
		t.Errorf("endpoint: got %q", b.endpoint)
	}
	if b.online != nil {
		t.Error("rtdb has no link state of its own")
	}
}

func TestOpenBackendUnknown(t *testing.T) {
	_, err := openBackend(context.Background(), config.Config{Backend: "redis"}, discardLogger())
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestConnectivityForUsesBackendLink(t *testing.T) {
	link := connectivity.NewStatic(false)
	cfg := config.Config{Backend: config.BackendMQTT, ConnectivityProbe: ""}

	conn := connectivityFor(cfg, &backend{online: link})
	if conn.Online() {
		t.Error("expected offline while the backend link is down")
	}
	link.Set(true)
	if !conn.Online() {
		t.Error("expected online once the backend link is up")
	}
}

func TestConnectivityForChecksSSID(t *testing.T) {
	t.Setenv(connectivity.EnvNetworkStatus, "connected")
	t.Setenv(connectivity.EnvNetworkType, "wifi")
	t.Setenv(connectivity.EnvNetworkWifiSSID, "neighbour")

	cfg := config.Config{WifiSSID: "home", ConnectivityProbe: ""}
	if connectivityFor(cfg, &backend{}).Online() {
		t.Error("expected offline on the wrong Wi-Fi network")
	}

	t.Setenv(connectivity.EnvNetworkWifiSSID, "home")
	if !connectivityFor(cfg, &backend{}).Online() {
		t.Error("expected online on the configured Wi-Fi network")
	}
}

func TestDisplayConfigHasNoSecrets(t *testing.T) {
	cfg := config.Config{
		Backend:        config.BackendRTDB,
		FirebaseAPIKey: "secret-key",
		FirebaseDBURL:  "https://demo.firebaseio.com",
		UserPassword:   "hunter2",
		WifiPassword:   "wifi-secret",
		StatePath:      "bool",
		StatePublish:   1500 * time.Millisecond,
	}

	data := string(status.FormatJSON(status.Snapshot{Config: displayConfig(cfg, cfg.FirebaseDBURL)}))
	for _, secret := range []string{"secret-key", "hunter2", "wifi-secret"} {
		if strings.Contains(data, secret) {
			t.Errorf("status JSON leaks %q", secret)
		}
	}
	if !strings.Contains(data, `"state_publish_ms": 1500`) {
		t.Errorf("expected publish interval in status JSON:\n%s", data)
	}
}

func TestNewLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, slog.LevelWarn)
	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}
