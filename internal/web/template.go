package web

import (
	"fmt"
	"html/template"
	"io"
	"log"
	"time"

	"github.com/sweeney/watercontrol/internal/mqtt"
	"github.com/sweeney/watercontrol/internal/status"
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
	"volume": mqtt.FormatVolume,
	"stateClass": func(on bool) string {
		if on {
			return "on"
		}
		return "off"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Water Control</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.warn { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Water Control</h1>

<h2>Valves</h2>
<table>
<tr><th>Main water</th><td id="main-state" class="{{stateClass .Valves.MainSwitch}}">{{.Valves.MainState}}</td></tr>
<tr><th>Main output</th><td>{{if .Valves.MainOpen}}open{{else}}closed{{end}}{{if .Valves.MainRemaining}} ({{.Valves.MainRemaining}} ticks left){{end}}</td></tr>
<tr><th>Automatic watering</th><td id="automatic-state" class="{{stateClass .Valves.AutomaticSwitch}}">{{.Valves.AutomaticState}}</td></tr>
<tr><th>Automatic output</th><td>{{if .Valves.AutomaticOpen}}open{{else}}closed{{end}}{{if .Valves.AutomaticRemaining}} ({{.Valves.AutomaticRemaining}} ticks left){{end}}</td></tr>
<tr><th>Controller</th><td>{{.Phase}}</td></tr>
</table>

<h2>Water</h2>
<table>
<tr><th>Total used</th><td>{{volume .Totals.Lifetime}} l{{if .Unsaved}} <span class="warn">(not saved)</span>{{end}}</td></tr>
<tr><th>Current session</th><td>{{volume .Totals.Session}} l</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Identifier</th><td>{{.Config.Identifier}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.PeriodMs}}ms (x{{.Config.BackoffFactor}} after errors)</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>Database</th><td>{{.Config.Database}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPPort}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var mainEl = document.getElementById("main-state");
  var autoEl = document.getElementById("automatic-state");

  function setState(el, state) {
    el.textContent = state;
    el.className = state === "ON" ? "on" : "off";
  }

  setInterval(function() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(msg) {
      setState(mainEl, msg.status.main_water.state);
      setState(autoEl, msg.status.automatic_watering.state);
    }).catch(function() {});
  }, 5000);
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	if err := indexTmpl.Execute(w, data); err != nil {
		log.Printf("web: render index: %v", err)
	}
}
