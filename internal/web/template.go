package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/shego/hallscan/internal/status"
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
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Hall Scanner</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.fallback { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
input[type=number] { width: 4em; }
</style>
</head>
<body>
<h1>Hall Scanner</h1>

<h2>State</h2>
<table>
<tr><th>Calibrated</th><td>{{if .Calibrated}}yes{{else}}no{{end}}</td></tr>
<tr><th>SOCD</th><td id="socd" class="{{if .Arbitration}}on{{else}}off{{end}}">{{if .Arbitration}}Enabled{{else}}Disabled{{end}}
<form method="post" action="/socd/toggle" style="display:inline"><input type="hidden" name="redirect" value="1"><button>toggle</button></form></td></tr>
<tr><th>Pressed</th><td id="pressed">{{range $i, $k := .Active}}{{if $i}} {{end}}{{$k}}{{else}}none{{end}}</td></tr>
</table>

<h2>Keys</h2>
<table>
<tr><th>Key</th><th>Mux</th><th>Ch</th><th>Raw</th><th>Baseline</th><th>Threshold</th><th>%</th><th></th></tr>
{{range .Keys}}<tr class="{{if .Active}}on{{else if .Fallback}}fallback{{end}}">
<td>{{.Name}}</td><td>{{.Mux}}</td><td>{{.Channel}}</td><td>{{.Raw}}</td><td>{{.Baseline}}{{if .Fallback}}*{{end}}</td><td>{{.Threshold}}</td>
<td><form method="post" action="/threshold"><input type="hidden" name="redirect" value="1"><input type="hidden" name="key" value="{{.Name}}"><input type="number" name="percent" min="50" max="99" value="{{.Percent}}"></form></td>
<td>{{if .Held}}held{{end}}</td></tr>
{{end}}</table>
{{if .Fallbacks}}<p class="fallback">* {{.Fallbacks}} key(s) using fallback calibration</p>{{end}}

<h2>Counters</h2>
<table>
<tr><th>Passes</th><td>{{.Counts.Passes}}</td></tr>
<tr><th>Transitions</th><td>{{.Counts.Transitions}}</td></tr>
<tr><th>Events</th><td>{{.Counts.Events}}</td></tr>
<tr><th>Invalid samples</th><td>{{.Counts.InvalidSamples}}</td></tr>
<tr><th>Bus faults</th><td>{{.Counts.BusFaults}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{if .Config.Broker}}{{.Config.Broker}}{{else}}disabled{{end}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Poll</th><td>{{.Config.PollMs}}ms</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMs}}ms</td></tr>
<tr><th>Toggle cooldown</th><td>{{.Config.ToggleCooldownMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
{{if .Config.UARTPort}}<tr><th>UART</th><td>{{.Config.UARTPort}}</td></tr>{{end}}
</table>

<p><a href="/index.json">JSON</a></p>
<script>
(function() {
  var pressed = document.getElementById("pressed");
  var socd = document.getElementById("socd").firstChild;
  setInterval(function() {
    fetch("/index.json").then(function(r) { return r.json(); }).then(function(j) {
      pressed.textContent = j.status.pressed.length ? j.status.pressed.join(" ") : "none";
      socd.textContent = j.status.socd ? "Enabled" : "Disabled";
    }).catch(function() {});
  }, 250);
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
