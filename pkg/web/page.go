package web

import (
	"html/template"

	"github.com/gofiber/fiber/v2"
)

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	Running     bool
	CurrentCode string
	CodesSent   int
	Message     string
}

func (s *Server) renderIndex(c *fiber.Ctx, message string) error {
	st := s.Status()
	data := indexData{
		Running:     st.Active,
		CurrentCode: st.CurrentCode,
		CodesSent:   st.CodesSent,
		Message:     message,
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return indexTmpl.Execute(c.Response().BodyWriter(), data)
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>meterblink</title>
<style>
  body { font-family: system-ui, sans-serif; margin: 2rem auto; max-width: 960px; color: #222; }
  h1 { font-size: 1.4rem; }
  .panel { display: flex; gap: 2rem; align-items: flex-start; }
  .controls { min-width: 220px; }
  button { padding: 0.5rem 1.5rem; font-size: 1rem; margin-right: 0.5rem; }
  .status { margin: 1rem 0; }
  .message { color: #b00; margin: 0.5rem 0; }
  #current-pin { font-family: monospace; font-size: 1.6rem; }
  #preview { border: 1px solid #ccc; max-width: 640px; }
  #gallery { display: flex; flex-wrap: wrap; gap: 0.5rem; margin-top: 1.5rem; }
  #gallery img { width: 160px; border: 1px solid #ccc; }
</style>
</head>
<body>
<h1>meterblink</h1>

{{if .Message}}<p class="message">{{.Message}}</p>{{end}}

<div class="panel">
  <div class="controls">
    <form method="post" action="/">
      <button name="action" value="start" {{if .Running}}disabled{{end}}>Start</button>
      <button name="action" value="stop" {{if not .Running}}disabled{{end}}>Stop</button>
    </form>
    <div class="status">
      <p>State: <span id="state">{{if .Running}}running{{else}}idle{{end}}</span></p>
      <p>Current PIN: <span id="current-pin">{{if .CurrentCode}}{{.CurrentCode}}{{else}}----{{end}}</span></p>
      <p>Codes sent: <span id="codes-sent">{{.CodesSent}}</span></p>
    </div>
  </div>
  <img id="preview" src="/video_feed" alt="live preview">
</div>

<h2>Captured images</h2>
<div id="gallery"></div>

<script>
function applyStatus(st) {
  document.getElementById('state').textContent = st.running ? 'running' : 'idle';
  document.getElementById('current-pin').textContent = st.current_pin || '----';
  document.getElementById('codes-sent').textContent = st.codes_sent || 0;
}

function pollStatus() {
  fetch('/pin').then(r => r.json()).then(applyStatus).catch(() => {});
}

try {
  var ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws/status');
  ws.onmessage = function (ev) { applyStatus(JSON.parse(ev.data)); };
  ws.onerror = function () { setInterval(pollStatus, 2000); };
} catch (e) {
  setInterval(pollStatus, 2000);
}

function refreshGallery() {
  fetch('/images_list').then(r => r.json()).then(function (data) {
    var gallery = document.getElementById('gallery');
    gallery.innerHTML = '';
    (data.images || []).slice(-24).reverse().forEach(function (name) {
      var a = document.createElement('a');
      a.href = '/images/' + name;
      var img = document.createElement('img');
      img.src = '/images/' + name;
      img.loading = 'lazy';
      a.appendChild(img);
      gallery.appendChild(a);
    });
  }).catch(() => {});
}
refreshGallery();
setInterval(refreshGallery, 5000);
</script>
</body>
</html>
`
