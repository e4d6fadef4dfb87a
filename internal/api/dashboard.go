package api

import (
	"html/template"
	"net/http"
	"time"
)

// dashboardTemplate renders the operator dashboard (§4.H: "server-
// rendered, auto-refresh 30s"). Uses html/template directly, the way the
// teacher's internal/tenant Renderer calls ExecuteTemplate against a
// pre-parsed template set — per §9's "do not import a templating
// framework unless one is already present in the chosen runtime's
// standard toolkit", html/template is that toolkit entry.
var dashboardTemplate = template.Must(template.New("dashboard").Funcs(template.FuncMap{
	"mul100": func(f float64) float64 { return f * 100 },
}).Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>cancelwatch dashboard</title>
  <meta http-equiv="refresh" content="30">
  <style>
    body { font-family: system-ui, sans-serif; margin: 2rem; color: #1a1a1a; }
    table { border-collapse: collapse; width: 100%; margin-bottom: 2rem; }
    th, td { border-bottom: 1px solid #ddd; padding: 0.4rem 0.6rem; text-align: left; }
    th { background: #f4f4f4; }
    .enriched { color: #0a7a0a; }
    .non-enriched { color: #999; }
    h1, h2 { font-weight: 600; }
  </style>
</head>
<body>
  <h1>cancelwatch</h1>
  <h2>Summary</h2>
  <table>
    <tr><th>Total</th><th>Enriched</th><th>Non-enriched</th><th>Enrichment rate</th></tr>
    <tr>
      <td>{{.Stats.Total}}</td>
      <td>{{.Stats.Enriched}}</td>
      <td>{{.Stats.NonEnriched}}</td>
      <td>{{printf "%.1f%%" (mul100 .Stats.EnrichmentRate)}}</td>
    </tr>
  </table>

  <h2>Recent cancellations</h2>
  <table>
    <tr><th>RID</th><th>Observed</th><th>Origin</th><th>Destination</th><th>Reason</th><th>Enriched</th></tr>
    {{range .Recent}}
    <tr>
      <td>{{.RID}}</td>
      <td>{{.ObservedAt.Format "15:04:05"}}</td>
      <td>{{if .Origin}}{{.Origin.Tiploc}}{{end}}</td>
      <td>{{if .Destination}}{{.Destination.Tiploc}}{{end}}</td>
      <td>{{.ReasonText}}</td>
      <td class="{{if .DarwinEnriched}}enriched{{else}}non-enriched{{end}}">{{.DarwinEnriched}}</td>
    </tr>
    {{end}}
  </table>

  <h2>Top routes</h2>
  <table>
    <tr><th>Origin</th><th>Destination</th><th>Count</th><th>Last seen</th></tr>
    {{range .Routes}}
    <tr>
      <td>{{.Origin}}</td>
      <td>{{.Destination}}</td>
      <td>{{.Count}}</td>
      <td>{{.LastSeen.Format "15:04:05"}}</td>
    </tr>
    {{end}}
  </table>
</body>
</html>
`))

func (d Deps) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Stats   any
		Recent  any
		Routes  any
	}{
		Stats:  d.Cache.Stats(),
		Recent: d.Cache.Recent(50, time.Unix(0, 0).UTC()),
		Routes: d.Cache.ByRoute(),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTemplate.Execute(w, data); err != nil {
		http.Error(w, "dashboard render failed", http.StatusInternalServerError)
	}
}
