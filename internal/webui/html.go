package webui

// indexHTML is the single-page viewer: the annotated stream plus a
// pointer bridge that forwards clicks to the selection protocol in
// frame-pixel coordinates.
const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>occusight</title>
<style>
  body { margin: 0; background: #111; color: #ddd; font-family: monospace; }
  #wrap { display: flex; flex-direction: column; align-items: center; padding: 12px; }
  #view { max-width: 100%; cursor: crosshair; }
  #status { padding: 8px; font-size: 13px; white-space: pre; }
</style>
</head>
<body>
<div id="wrap">
  <img id="view" src="/stream" alt="live view">
  <div id="status">connecting...</div>
</div>
<script>
const view = document.getElementById('view');
const status = document.getElementById('status');

let ws = null;
function connect() {
  const proto = location.protocol === 'https:' ? 'wss' : 'ws';
  ws = new WebSocket(proto + '://' + location.host + '/ws/pointer');
  ws.onclose = () => setTimeout(connect, 1000);
}
connect();

// Translate a mouse event on the scaled <img> into frame pixels.
function frameCoords(e) {
  const rect = view.getBoundingClientRect();
  const sx = view.naturalWidth / rect.width;
  const sy = view.naturalHeight / rect.height;
  return {
    x: (e.clientX - rect.left) * sx,
    y: (e.clientY - rect.top) * sy,
    frame_width: view.naturalWidth,
    frame_height: view.naturalHeight
  };
}

function send(kind, e) {
  if (!ws || ws.readyState !== WebSocket.OPEN) return;
  const c = frameCoords(e);
  ws.send(JSON.stringify({kind: kind, x: c.x, y: c.y,
    frame_width: c.frame_width, frame_height: c.frame_height}));
}

view.addEventListener('mousedown', e => {
  if (e.button === 0) send('down', e);
});
view.addEventListener('mouseup', e => {
  if (e.button === 0) send('up', e);
});
view.addEventListener('mousemove', e => send('move', e));
view.addEventListener('contextmenu', e => {
  e.preventDefault();
  send('alt-down', e);
});

async function poll() {
  try {
    const resp = await fetch('/api/status');
    const st = await resp.json();
    let line = 'domains: ' + st.domains.map(d => d.name).join(', ');
    if (st.counts) {
      line += '\ncounts: ' + JSON.stringify(st.counts);
    }
    if (st.selection && st.selection.active) {
      line += '\ndefining "' + st.selection.name + '" - click two corners (right-click resets)';
    }
    status.textContent = line;
  } catch (err) {
    status.textContent = 'status unavailable';
  }
}
setInterval(poll, 1000);
poll();
</script>
</body>
</html>
`
