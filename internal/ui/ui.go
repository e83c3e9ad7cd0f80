// Package ui provides the browser dashboard for a running instance.
package ui

import (
	"encoding/json"
	"html/template"
	"log"
	"net/http"
	"os/exec"
	"runtime"

	"turbofire/internal/config"
)

// ConfigStore is the part of *config.Manager the settings form edits.
type ConfigStore interface {
	Get() *config.Config
	Set(cfg *config.Config)
	Save() error
}

// Handler serves the dashboard page and the settings endpoints.
type Handler struct {
	configMgr ConfigStore
	mux       *http.ServeMux
}

// NewHandler creates a dashboard handler backed by configMgr.
func NewHandler(configMgr ConfigStore) *Handler {
	h := &Handler{configMgr: configMgr, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /{$}", h.handleIndex)
	h.mux.HandleFunc("GET /api/config", h.handleGetConfig)
	h.mux.HandleFunc("PUT /api/config", h.handlePutConfig)
	return h
}

// Routes lists the patterns the handler answers, for mounting on another mux.
func (h *Handler) Routes() []string {
	return []string{"GET /{$}", "GET /api/config", "PUT /api/config"}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, nil); err != nil {
		log.Printf("UI: Render failed: %v", err)
	}
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.configMgr.Get())
}

func (h *Handler) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	cfg := h.configMgr.Get()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 16<<10)).Decode(cfg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.configMgr.Set(cfg)
	if err := h.configMgr.Save(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(cfg)
}

// OpenBrowser opens url in the default browser.
func OpenBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "darwin":
		err = exec.Command("open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		err = exec.Command("xdg-open", url).Start()
	}
	if err != nil {
		log.Printf("Failed to open browser: %v", err)
	}
}

var tmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>turbofire</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #1a1a2e;
            color: #e2e8f0;
            min-height: 100vh;
            padding: 2rem;
        }
        .container { max-width: 720px; margin: 0 auto; }
        h1 { font-size: 1.75rem; margin-bottom: 1.5rem; color: #ff8c00; }
        .card {
            background: rgba(255,255,255,0.05);
            border: 1px solid rgba(255,255,255,0.1);
            border-radius: 12px;
            padding: 1.25rem;
            margin-bottom: 1.25rem;
        }
        .card h2 {
            font-size: 1.1rem;
            margin-bottom: 0.75rem;
            color: #fbbf24;
            display: flex;
            justify-content: space-between;
            align-items: center;
        }
        table { width: 100%; border-collapse: collapse; }
        td, th { padding: 0.4rem; text-align: left; }
        input[type=number] { width: 5rem; padding: 0.25rem; background: #0f0f1e; color: #e2e8f0; border: 1px solid #444; border-radius: 4px; }
        button {
            background: #ff8c00;
            color: #1a1a2e;
            border: none;
            border-radius: 6px;
            padding: 0.35rem 0.8rem;
            cursor: pointer;
            font-weight: 600;
        }
        button.danger { background: #ef4444; color: #fff; }
        .firing { color: #22c55e; }
        .muted { color: #94a3b8; }
        label { display: block; margin-bottom: 0.5rem; }
        #status-bar { position: fixed; bottom: 1rem; right: 1rem; padding: 0.5rem 1rem; border-radius: 6px; display: none; }
    </style>
</head>
<body>
<div class="container">
    <h1>turbofire</h1>

    <div class="card">
        <h2>Trigger <button onclick="designate()">Set trigger...</button></h2>
        <div id="trigger" class="muted">(none)</div>
    </div>

    <div class="card">
        <h2>Bindings</h2>
        <table>
            <thead><tr><th>Input</th><th>Interval (ms)</th><th>State</th><th></th></tr></thead>
            <tbody id="bindings"></tbody>
        </table>
    </div>

    <div class="card">
        <h2>Settings <button onclick="saveConfig()">Save</button></h2>
        <label>Default interval (ms) <input type="number" id="default_interval_ms" min="1" max="150"></label>
        <label>Key hold (ms) <input type="number" id="key_hold_ms" min="0" max="50"></label>
        <label><input type="checkbox" id="start_on_boot"> Start on login</label>
        <label><input type="checkbox" id="verbose_logging"> Verbose logging</label>
    </div>
</div>
<div id="status-bar"></div>
<script>
    const token = new URLSearchParams(location.search).get('token') || '';
    const headers = token ? {'Authorization': 'Bearer ' + token} : {};
    let state = {trigger: '', awaiting_designation: false, bindings: []};
    let config = null;

    function api(method, path, body) {
        const opts = {method: method, headers: Object.assign({'Content-Type': 'application/json'}, headers)};
        if (body !== undefined) opts.body = JSON.stringify(body);
        return fetch(path, opts);
    }

    function render() {
        const trig = document.getElementById('trigger');
        if (state.awaiting_designation) {
            trig.textContent = 'Press a key or mouse button...';
        } else {
            trig.textContent = state.trigger || '(none)';
        }

        const body = document.getElementById('bindings');
        body.innerHTML = '';
        if (state.bindings.length === 0) {
            body.innerHTML = '<tr><td colspan="4" class="muted">Hold the trigger and press another input to bind it.</td></tr>';
            return;
        }
        for (const b of state.bindings) {
            const tr = document.createElement('tr');
            const name = document.createElement('td');
            name.textContent = b.input;
            const iv = document.createElement('td');
            const field = document.createElement('input');
            field.type = 'number'; field.min = 1; field.max = 150; field.value = b.interval_ms;
            field.onchange = () => setInterval_(b.input, parseInt(field.value));
            iv.appendChild(field);
            const st = document.createElement('td');
            st.textContent = b.running ? 'firing' : 'idle';
            st.className = b.running ? 'firing' : 'muted';
            const act = document.createElement('td');
            const rm = document.createElement('button');
            rm.className = 'danger'; rm.textContent = 'Remove';
            rm.onclick = () => removeBinding(b.input);
            act.appendChild(rm);
            tr.append(name, iv, st, act);
            body.appendChild(tr);
        }
    }

    function upsert(b) {
        const i = state.bindings.findIndex(x => x.input === b.input);
        if (i >= 0) state.bindings[i] = b; else state.bindings.push(b);
    }

    function connect() {
        const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(scheme + location.host + '/ws' + (token ? '?token=' + encodeURIComponent(token) : ''));
        ws.onmessage = (ev) => {
            const msg = JSON.parse(ev.data);
            const p = msg.payload || {};
            switch (msg.type) {
                case 'snapshot':
                    state = {trigger: p.trigger || '', awaiting_designation: p.awaiting_designation, bindings: p.bindings || []};
                    break;
                case 'designation_pending':
                    state.awaiting_designation = true;
                    break;
                case 'trigger_changed':
                    state.trigger = p.trigger;
                    state.awaiting_designation = false;
                    break;
                case 'binding_added':
                case 'interval_changed':
                case 'running_changed':
                    upsert(p);
                    break;
                case 'binding_removed':
                    state.bindings = state.bindings.filter(x => x.input !== p.input);
                    break;
                case 'error':
                    showStatus(p.error, true);
                    break;
            }
            render();
        };
        ws.onclose = () => setTimeout(connect, 2000);
    }

    async function designate() {
        await api('POST', '/api/trigger/designate');
    }

    async function setInterval_(input, ms) {
        const res = await api('PUT', '/api/bindings/' + encodeURIComponent(input) + '/interval', {interval_ms: ms});
        if (!res.ok) showStatus('Failed to set interval', true);
    }

    async function removeBinding(input) {
        const res = await api('DELETE', '/api/bindings/' + encodeURIComponent(input));
        if (!res.ok) showStatus('Failed to remove binding', true);
    }

    async function loadConfig() {
        const res = await api('GET', '/api/config');
        config = await res.json();
        const g = config.general;
        document.getElementById('default_interval_ms').value = g.default_interval_ms;
        document.getElementById('key_hold_ms').value = g.key_hold_ms;
        document.getElementById('start_on_boot').checked = g.start_on_boot;
        document.getElementById('verbose_logging').checked = g.verbose_logging;
    }

    async function saveConfig() {
        const g = config.general;
        g.default_interval_ms = parseInt(document.getElementById('default_interval_ms').value);
        g.key_hold_ms = parseInt(document.getElementById('key_hold_ms').value);
        g.start_on_boot = document.getElementById('start_on_boot').checked;
        g.verbose_logging = document.getElementById('verbose_logging').checked;
        const res = await api('PUT', '/api/config', config);
        if (res.ok) {
            config = await res.json();
            showStatus('Settings saved', false);
        } else {
            showStatus(await res.text(), true);
        }
    }

    function showStatus(text, isError) {
        const bar = document.getElementById('status-bar');
        bar.textContent = text;
        bar.style.background = isError ? '#ef4444' : '#22c55e';
        bar.style.display = 'block';
        setTimeout(() => { bar.style.display = 'none'; }, 3000);
    }

    render();
    loadConfig();
    connect();
</script>
</body>
</html>
`))
