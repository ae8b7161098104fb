package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/docker/go-units"

	"github.com/sweeney/garage-monitor/internal/logic"
	"github.com/sweeney/garage-monitor/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": formatUptime,
	"ago":    logic.FormatDuration,
	"bytes":  func(b uint64) string { return units.BytesSize(float64(b)) },
}).Parse(indexHTML))

// formatUptime renders d as "1d 2h 3m 4s", dropping leading zero units.
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<meta http-equiv="refresh" content="10">
<title>Garage Door</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
.door { font-size: 2em; margin: 0.5em 0; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Garage Door</h1>

<p class="door" id="door">
{{- if eq .State "Open"}}🔴 Opened{{if .IsOpen}} {{ago .OpenAgo}} ago{{end}}
{{- else if eq .State "Closed"}}🟢 Closed
{{- else}}🔵 Unknown{{end -}}
</p>
{{if .Notified}}<p>Last alert sent {{ago .NotifiedAgo}} ago</p>{{end}}

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
<tr><th>Sample</th><td>{{.Config.SampleMs}}ms</td></tr>
<tr><th>Notify poll</th><td>{{.Config.NotifyPollMs}}ms</td></tr>
<tr><th>Close policy</th><td>{{.Config.ClosePolicy}}</td></tr>
</table>

<h2>Host</h2>
<table>
{{- with .Host}}
<tr><th>Uptime</th><td id="host-uptime">{{uptime .Uptime}}</td></tr>
<tr><th>Memory</th><td id="memory">{{bytes .MemUsed}} used {{bytes .MemFree}} free {{bytes .MemTotal}} total</td></tr>
{{- else}}
<tr><th>Uptime</th><td id="host-uptime">unknown</td></tr>
<tr><th>Memory</th><td id="memory">unknown</td></tr>
{{- end}}
</table>

<p><a href="/door.json">door.json</a> · <a href="/status.json">status.json</a> · <a href="/metrics">metrics</a></p>
</body>
</html>
`

type indexData struct {
	status.Snapshot
	State       string
	IsOpen      bool
	OpenAgo     time.Duration
	Notified    bool
	NotifiedAgo time.Duration
	Uptime      time.Duration
}

func renderHTML(w io.Writer, snap status.Snapshot) error {
	data := indexData{
		Snapshot: snap,
		State:    string(snap.Door.Door),
		Uptime:   snap.Uptime(),
	}
	if data.State == "" {
		data.State = string(logic.StateUnknown)
	}
	data.OpenAgo, data.IsOpen = snap.OpenFor()
	data.NotifiedAgo, data.Notified = snap.SinceNotified()
	return indexTmpl.Execute(w, data)
}
