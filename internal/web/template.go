package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/floor-mixer/internal/sensor"
	"github.com/sweeney/floor-mixer/internal/status"
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
	"temp": func(c float64) string {
		if c == sensor.Disconnected {
			return "disconnected"
		}
		return fmt.Sprintf("%.2f °C", c)
	},
	"onOff": func(b bool) string {
		if b {
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
<meta http-equiv="refresh" content="10">
<title>Floor Mixer</title>
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
</style>
</head>
<body>
<h1>Floor Mixer</h1>

<h2>Control</h2>
<table>
<tr><th>Target</th><td id="target">{{printf "%.1f" .Target}} °C</td></tr>
<tr><th>State</th><td id="state">{{.State}}</td></tr>
<tr><th>Relay up</th><td class="{{onOff .RelayUp}}">{{onOff .RelayUp}}</td></tr>
<tr><th>Relay down</th><td class="{{onOff .RelayDown}}">{{onOff .RelayDown}}</td></tr>
{{if or .RelayUp .RelayDown}}<tr><th>Pulse remaining</th><td id="pulse-remaining">{{.PulseRemaining.Milliseconds}}ms</td></tr>{{end}}
{{if .HasDecision}}<tr><th>Last pulse</th><td>{{.LastDecision.Pulse.Milliseconds}}ms</td></tr>{{end}}
<tr><th>Ready</th><td>{{if .Ready}}yes{{else}}no{{end}}</td></tr>
<tr><th>Faults</th><td>{{.Faults}}</td></tr>
</table>

<h2>Temperatures</h2>
<table>
{{range .Channels}}<tr><th>{{.Name}}</th><td>{{temp .C}}</td></tr>
{{end}}</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
{{if .Network}}<tr><th>Network</th><td>{{.Network.Status}} ({{.Network.Type}}{{if .Network.SSID}}, {{.Network.SSID}}{{end}})</td></tr>
<tr><th>IP</th><td>{{.Network.IP}}</td></tr>{{end}}
</table>

<h2>Cycle Counts</h2>
<table>
<tr><th>Raising</th><td>{{.Counts.Raising}}</td></tr>
<tr><th>Lowering</th><td>{{.Counts.Lowering}}</td></tr>
<tr><th>Holding</th><td>{{.Counts.Holding}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Read</th><td>{{.Config.ReadMs}}ms</td></tr>
<tr><th>Cycle</th><td>{{.Config.CycleMs}}ms</td></tr>
<tr><th>Relay check</th><td>{{.Config.RelayMs}}ms</td></tr>
<tr><th>Border</th><td>{{.Config.Border}} °C</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

type channelRow struct {
	Name string
	C    float64
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime   time.Duration
		Channels []channelRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	for _, ch := range sensor.Channels {
		data.Channels = append(data.Channels, channelRow{Name: ch.String(), C: snap.Temps[ch]})
	}
	indexTmpl.Execute(w, data)
}
