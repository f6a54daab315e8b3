package api

import (
	"html/template"
	"net/http"

	"go.uber.org/zap"
)

var dashboardTmpl = template.Must(template.New("dashboard").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Agent}}</title>
<style>
body { font-family: sans-serif; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
h1 { font-size: 1.4rem; }
code { background: #f4f4f4; padding: 0.1rem 0.3rem; border-radius: 3px; }
table { border-collapse: collapse; }
td { padding: 0.15rem 0.8rem 0.15rem 0; }
.badge { color: #fff; background: #2a7; padding: 0.1rem 0.5rem; border-radius: 3px; font-size: 0.85rem; }
form { margin: 1.5rem 0; }
input[type=url] { width: 28rem; padding: 0.3rem; }
</style>
</head>
<body>
<h1>{{.Agent}} <span class="badge">{{.Status}}</span></h1>
<table>
<tr><td>Version</td><td>{{.Version}}</td></tr>
<tr><td>Uptime</td><td>{{.UptimeSeconds}}s</td></tr>
<tr><td>Capabilities</td><td>{{range .Capabilities}}<code>{{.}}</code> {{end}}</td></tr>
</table>
<form action="/test" method="get">
<input type="url" name="url" placeholder="https://example.com" required>
<button type="submit">Analyze</button>
</form>
<h2>Endpoints</h2>
<ul>
{{range .Endpoints}}<li><code>{{.}}</code></li>
{{end}}</ul>
</body>
</html>
`))

// dashboard renders the HTML landing page with live status data.
func (s *Server) dashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboardTmpl.Execute(w, s.agent.Status()); err != nil {
		s.logger.Error("render dashboard", zap.Error(err))
	}
}
