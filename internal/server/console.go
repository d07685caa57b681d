package server

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/callgate/internal/logging"
)

const consoleHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Callgate</title>
    <meta name="description" content="Inbound call screening console">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #09090b;
            --bg-subtle: #18181b;
            --border: #27272a;
            --text: #fafafa;
            --text-secondary: #a1a1aa;
            --accent: #22c55e;
            --red: #ef4444;
            --amber: #f59e0b;
        }

        body {
            font-family: -apple-system, 'Inter', sans-serif;
            background: var(--bg);
            color: var(--text);
            min-height: 100vh;
            font-size: 14px;
            line-height: 1.5;
        }

        .container { max-width: 720px; margin: 0 auto; padding: 0 24px; }

        header {
            border-bottom: 1px solid var(--border);
            padding: 16px 0;
        }
        .logo { font-size: 18px; font-weight: 600; }
        .logo span { color: var(--accent); }

        .card {
            background: var(--bg-subtle);
            border: 1px solid var(--border);
            border-radius: 8px;
            padding: 24px;
            margin-top: 24px;
        }
        .card h2 {
            font-size: 13px;
            font-weight: 500;
            color: var(--text-secondary);
            text-transform: uppercase;
            letter-spacing: 0.05em;
            margin-bottom: 16px;
        }

        .number {
            font-family: 'SF Mono', 'JetBrains Mono', monospace;
            font-size: 28px;
            font-weight: 500;
        }

        .level-row { display: flex; align-items: center; gap: 12px; margin-top: 8px; }
        .level-row input[type=number] {
            width: 80px;
            background: var(--bg);
            border: 1px solid var(--border);
            border-radius: 6px;
            color: var(--text);
            padding: 8px 12px;
            font-size: 16px;
        }
        .level-row button {
            background: var(--accent);
            border: none;
            border-radius: 6px;
            color: #052e16;
            font-weight: 600;
            padding: 9px 18px;
            cursor: pointer;
        }
        .cutoff { color: var(--text-secondary); }
        .error { color: var(--red); margin-top: 12px; }

        #feed { list-style: none; max-height: 360px; overflow-y: auto; }
        #feed li {
            display: flex;
            gap: 12px;
            padding: 8px 0;
            border-bottom: 1px solid var(--border);
            font-family: 'SF Mono', 'JetBrains Mono', monospace;
            font-size: 13px;
        }
        #feed .admitted { color: var(--accent); }
        #feed .rejected { color: var(--red); }
        #feed .failed_closed { color: var(--amber); }
        #feed .empty { color: var(--text-secondary); border: none; }
    </style>
</head>
<body>
    <header>
        <div class="container">
            <div class="logo">call<span>gate</span></div>
        </div>
    </header>
    <main class="container">
        <div class="card">
            <h2>Screened number</h2>
            <div class="number">{{.Number}}</div>
        </div>

        <div class="card">
            <h2>Screening level</h2>
            <form method="POST" action="/level">
                <div class="level-row">
                    <input type="number" name="level" min="0" max="10" value="{{.Level}}">
                    <button type="submit">Apply</button>
                    <span class="cutoff">callers with a risk score above {{.Cutoff}} are rejected</span>
                </div>
            </form>
            {{if .Error}}<div class="error">{{.Error}}</div>{{end}}
        </div>

        <div class="card">
            <h2>Live calls</h2>
            <ul id="feed">
                <li class="empty">Waiting for calls&hellip;</li>
            </ul>
        </div>
    </main>
    <script>
        const feed = document.getElementById('feed');
        let empty = true;

        function addRow(html) {
            if (empty) { feed.innerHTML = ''; empty = false; }
            const li = document.createElement('li');
            li.innerHTML = html;
            feed.prepend(li);
            while (feed.children.length > 50) feed.removeChild(feed.lastChild);
        }

        function escapeHtml(text) {
            const div = document.createElement('div');
            div.textContent = text;
            return div.innerHTML;
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/ws');
            ws.onmessage = (msg) => {
                const ev = JSON.parse(msg.data);
                const ts = new Date(ev.timestamp).toLocaleTimeString();
                if (ev.type === 'decision') {
                    const d = ev.data;
                    addRow('<span>' + ts + '</span>' +
                        '<span>' + escapeHtml(d.from || 'unknown') + '</span>' +
                        '<span class="' + d.decision + '">' + d.decision + '</span>' +
                        '<span>score ' + d.score + '</span>');
                } else if (ev.type === 'recording') {
                    addRow('<span>' + ts + '</span><span>recording relayed</span>' +
                        '<span>' + escapeHtml(ev.data.sessionId) + '</span>');
                }
            };
            ws.onclose = () => setTimeout(connect, 3000);
        }
        connect();
    </script>
</body>
</html>`

var consoleTmpl = template.Must(template.New("console").Parse(consoleHTML))

type consoleData struct {
	Number string
	Level  int
	Cutoff float64
	Error  string
}

// consoleHandler serves the operator console
func (s *Server) consoleHandler(c *gin.Context) {
	s.renderConsole(c, http.StatusOK, "")
}

func (s *Server) renderConsole(c *gin.Context, status int, errMsg string) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	err := consoleTmpl.Execute(c.Writer, consoleData{
		Number: s.cfg.Number,
		Level:  s.policy.Level(),
		Cutoff: s.policy.Cutoff(),
		Error:  errMsg,
	})
	if err != nil {
		logging.L(c.Request.Context()).Error("console render failed", "error", err)
	}
}
