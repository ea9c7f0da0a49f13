package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	LED           string       `json:"led"`
	Online        bool         `json:"online"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Sync          SyncJSON     `json:"sync"`
	Counts        CountsJSON   `json:"counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SyncJSON reports the last successful publish and poll and the last failures.
type SyncJSON struct {
	LastPublish    string `json:"last_publish,omitempty"`
	LastPoll       string `json:"last_poll,omitempty"`
	LastPublishErr string `json:"last_publish_error,omitempty"`
	LastPollErr    string `json:"last_poll_error,omitempty"`
}

// CountsJSON is the JSON representation of loop counters.
type CountsJSON struct {
	Ticks           int `json:"ticks"`
	OfflineTicks    int `json:"offline_ticks"`
	Publishes       int `json:"publishes"`
	PublishFailures int `json:"publish_failures"`
	Polls           int `json:"polls"`
	PollFailures    int `json:"poll_failures"`
	RemoteChanges   int `json:"remote_changes"`
	LocalChanges    int `json:"local_changes"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Backend     string `json:"backend"`
	Endpoint    string `json:"endpoint"`
	StatePath   string `json:"state_path"`
	CommandPath string `json:"command_path"`
	ReadCommand bool   `json:"read_command"`
	PublishMs   int64  `json:"state_publish_ms"`
	PollMs      int64  `json:"command_poll_ms"`
	LEDPin      int    `json:"led_pin"`
	ActiveHigh  bool   `json:"led_active_high"`
	HTTPAddr    string `json:"http_addr"`
}

// LEDLabel renders a DeviceState for display.
func LEDLabel(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func buildInner(snap Snapshot) StatusInner {
	c := snap.Loop.Counts
	inner := StatusInner{
		LED:           LEDLabel(snap.Loop.State),
		Online:        snap.Online,
		Ready:         snap.Started,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     stamp(snap.StartTime),
		Timestamp:     stamp(snap.Now),
		Sync: SyncJSON{
			LastPublishErr: errText(snap.Loop.LastPublishErr),
			LastPollErr:    errText(snap.Loop.LastPollErr),
		},
		Counts: CountsJSON{
			Ticks:           c.Ticks,
			OfflineTicks:    c.OfflineTicks,
			Publishes:       c.Publishes,
			PublishFailures: c.PublishFailures,
			Polls:           c.Polls,
			PollFailures:    c.PollFailures,
			RemoteChanges:   c.RemoteChanges,
			LocalChanges:    c.LocalChanges,
		},
		Config: ConfigJSON{
			Backend:     snap.Config.Backend,
			Endpoint:    snap.Config.Endpoint,
			StatePath:   snap.Config.StatePath,
			CommandPath: snap.Config.CommandPath,
			ReadCommand: snap.Config.ReadCommand,
			PublishMs:   snap.Config.PublishMs,
			PollMs:      snap.Config.PollMs,
			LEDPin:      snap.Config.LEDPin,
			ActiveHigh:  snap.Config.ActiveHigh,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
	// Timer lasts equal the start time until the first success.
	if c.Publishes > 0 {
		inner.Sync.LastPublish = stamp(snap.Loop.LastPublish)
	}
	if c.Polls > 0 {
		inner.Sync.LastPoll = stamp(snap.Loop.LastPoll)
	}
	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatCompact returns single-line JSON, used for websocket frames.
func FormatCompact(snap Snapshot) []byte {
	data, _ := json.Marshal(StatusJSON{Status: buildInner(snap)})
	return data
}
