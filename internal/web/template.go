package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/led-sync/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"led": status.LEDLabel,
	"ago": func(t, now time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return now.Sub(t).Truncate(time.Second).String() + " ago"
	},
	"errOrNone": func(err error) string {
		if err == nil {
			return "none"
		}
		return err.Error()
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>LED Sync</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
</style>
</head>
<body>
<h1>LED Sync<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>State</h2>
<table>
<tr><th>LED</th><td id="led-state" class="{{if .Loop.State}}on{{else}}off{{end}}">{{led .Loop.State}}</td></tr>
<tr><th>Ready</th><td>{{if .Started}}yes{{else}}no{{end}}</td></tr>
</table>

<h2>Cloud</h2>
<table>
<tr><th>Online</th><td id="online" class="{{if .Online}}connected{{else}}disconnected{{end}}">{{if .Online}}online{{else}}offline{{end}}</td></tr>
<tr><th>Backend</th><td>{{.Config.Backend}}</td></tr>
<tr><th>Endpoint</th><td>{{.Config.Endpoint}}</td></tr>
<tr><th>Last publish</th><td>{{if .Loop.Counts.Publishes}}{{ago .Loop.LastPublish .Now}}{{else}}never{{end}}</td></tr>
<tr><th>Last poll</th><td>{{if not .Config.ReadCommand}}disabled{{else if .Loop.Counts.Polls}}{{ago .Loop.LastPoll .Now}}{{else}}never{{end}}</td></tr>
<tr><th>Publish error</th><td>{{errOrNone .Loop.LastPublishErr}}</td></tr>
<tr><th>Poll error</th><td>{{errOrNone .Loop.LastPollErr}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}: {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Counts</h2>
<table>
<tr><th>Publishes</th><td id="publishes">{{.Loop.Counts.Publishes}}</td></tr>
<tr><th>Publish failures</th><td>{{.Loop.Counts.PublishFailures}}</td></tr>
<tr><th>Polls</th><td id="polls">{{.Loop.Counts.Polls}}</td></tr>
<tr><th>Poll failures</th><td>{{.Loop.Counts.PollFailures}}</td></tr>
<tr><th>Remote changes</th><td>{{.Loop.Counts.RemoteChanges}}</td></tr>
<tr><th>Offline ticks</th><td>{{.Loop.Counts.OfflineTicks}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>State path</th><td>{{.Config.StatePath}} every {{.Config.PublishMs}}ms</td></tr>
<tr><th>Command path</th><td>{{if .Config.ReadCommand}}{{.Config.CommandPath}} every {{.Config.PollMs}}ms{{else}}disabled{{end}}</td></tr>
<tr><th>LED pin</th><td>{{.Config.LEDPin}} (active {{if .Config.ActiveHigh}}high{{else}}low{{end}})</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var ledEl = document.getElementById("led-state");
  var onlineEl = document.getElementById("online");
  var pubEl = document.getElementById("publishes");
  var pollEl = document.getElementById("polls");

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");

    ws.onopen = function() { setDot("ok", "live"); };
    ws.onerror = function() { setDot("err", "error"); };
    ws.onclose = function() {
      setDot("pending", "reconnecting");
      setTimeout(connect, 5000);
    };
    ws.onmessage = function(ev) {
      try {
        var s = JSON.parse(ev.data).status;
        ledEl.textContent = s.led;
        ledEl.className = s.led === "ON" ? "on" : "off";
        onlineEl.textContent = s.online ? "online" : "offline";
        onlineEl.className = s.online ? "connected" : "disconnected";
        pubEl.textContent = s.counts.publishes;
        pollEl.textContent = s.counts.polls;
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) error {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	return indexTmpl.Execute(w, data)
}
