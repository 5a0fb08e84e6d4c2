package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="fr">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Idea Sync</title>
  <style>
    :root {
      --ink: #102223;
      --paper: #f8f4ea;
      --card: #fffdf9;
      --line: #d7cbb3;
      --accent: #1f9d88;
      --accent-2: #e88a3d;
      --danger: #c2483f;
      --muted: #6f7d7d;
      --shadow: 0 18px 36px rgba(16, 34, 35, 0.16);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Space Grotesk", "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background:
        radial-gradient(1200px 500px at -5% -10%, rgba(232, 138, 61, 0.18), transparent 60%),
        radial-gradient(900px 500px at 110% -10%, rgba(31, 157, 136, 0.2), transparent 65%),
        linear-gradient(140deg, #fff9ef 0%, #f1f8f7 45%, #fffdf9 100%);
      min-height: 100vh;
      padding: 20px;
    }

    .shell {
      max-width: 1240px;
      margin: 0 auto;
      display: grid;
      gap: 14px;
      animation: rise 420ms ease-out;
    }

    .bar, .panel {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 16px;
      padding: 14px;
      box-shadow: var(--shadow);
    }

    h1 { margin: 0; font-size: clamp(1.2rem, 2vw, 1.75rem); letter-spacing: 0.02em; }
    .sub { margin-top: 6px; color: var(--muted); font-size: 0.9rem; }

    .controls {
      display: grid;
      gap: 10px;
      grid-template-columns: 1fr 1fr 0.8fr 0.5fr;
      margin-top: 12px;
    }

    input, textarea {
      width: 100%;
      border-radius: 10px;
      border: 1px solid var(--line);
      background: #ffffff;
      color: var(--ink);
      padding: 10px 12px;
      font-family: inherit;
      font-size: 0.92rem;
      outline: none;
    }

    input:focus, textarea:focus {
      border-color: var(--accent);
      box-shadow: 0 0 0 3px rgba(31, 157, 136, 0.15);
    }

    textarea { min-height: 180px; resize: vertical; line-height: 1.4; }
    textarea:disabled { background: #f3efe6; }

    button {
      border: 0;
      border-radius: 10px;
      padding: 10px 12px;
      font-family: inherit;
      font-weight: 700;
      cursor: pointer;
    }

    button:disabled { opacity: 0.55; cursor: wait; }

    .btn-primary {
      background: linear-gradient(125deg, var(--accent), #2ab399);
      color: #ffffff;
      box-shadow: 0 10px 18px rgba(31, 157, 136, 0.22);
    }

    .btn-secondary {
      background: linear-gradient(120deg, #f2ede2, #efe6d7);
      color: var(--ink);
      border: 1px solid var(--line);
    }

    .grid { display: grid; gap: 12px; grid-template-columns: repeat(3, 1fr); }

    .panel h2 {
      margin: 0 0 10px;
      font-size: 0.92rem;
      letter-spacing: 0.06em;
      text-transform: uppercase;
    }

    .banner {
      display: none;
      border: 1px solid var(--accent-2);
      border-left: 6px solid var(--accent-2);
      border-radius: 12px;
      background: #fff6ec;
      padding: 12px 14px;
      font-size: 0.88rem;
    }

    .banner.visible { display: block; }
    .banner ul { margin: 6px 0 0; padding-left: 18px; }

    .feed {
      margin: 0;
      padding: 0;
      list-style: none;
      display: grid;
      gap: 8px;
      max-height: 420px;
      overflow: auto;
    }

    .feed li {
      border: 1px solid #e3d9c4;
      border-left: 5px solid var(--muted);
      border-radius: 10px;
      padding: 9px 10px;
      background: #fffcf7;
      font-size: 0.85rem;
      line-height: 1.35;
    }

    .feed li.success { border-left-color: var(--accent); }
    .feed li.syncing { border-left-color: var(--accent-2); }
    .feed li.error { border-left-color: var(--danger); }
    .feed .meta { display: block; margin-top: 3px; font-size: 0.72rem; color: var(--muted); }
    .feed .reason { display: block; margin-top: 3px; color: var(--danger); }

    .ok { color: #0f8f53; }
    .warn { color: #b66a21; }
    .err { color: var(--danger); }

    .status-line {
      margin-top: 10px;
      font-size: 0.84rem;
      color: var(--muted);
      display: flex;
      flex-wrap: wrap;
      gap: 10px;
    }

    @keyframes rise {
      from { opacity: 0; transform: translateY(8px); }
      to { opacity: 1; transform: translateY(0); }
    }

    @media (max-width: 900px) {
      .controls, .grid { grid-template-columns: 1fr; }
    }
  </style>
</head>
<body>
  <main class="shell">
    <section class="bar">
      <h1>Idea Sync</h1>
      <div class="sub">One line per idea. Each line becomes a page in your Notion database, tagged with its section.</div>
      <div class="controls">
        <input id="secret" type="password" placeholder="Notion API key" autocomplete="off" />
        <input id="database" type="text" placeholder="Notion database id" autocomplete="off" />
        <input id="token" type="password" placeholder="Local API key (if configured)" autocomplete="off" />
        <button id="saveCreds" class="btn-secondary" type="button">Save</button>
      </div>
      <div class="status-line">
        <span>Credentials: <span id="credState">-</span></span>
        <span id="statusMessage">idle</span>
      </div>
    </section>

    <section id="networkBanner" class="banner">
      <strong>Connection Blocked</strong>
      <div>A network error occurred while reaching Notion. If it persists:</div>
      <ul>
        <li>verify the integration secret has access to the database</li>
        <li>ensure the database ID is correct</li>
        <li>check that the relay URL is reachable from this machine</li>
      </ul>
    </section>

    <section class="grid">
      <article class="panel"><h2>MON MOI</h2><textarea id="in-month"></textarea></article>
      <article class="panel"><h2>MES R&Eacute;SULTATS</h2><textarea id="in-results"></textarea></article>
      <article class="panel"><h2>MON PRODUIT</h2><textarea id="in-product"></textarea></article>
    </section>

    <section class="bar">
      <button id="sync" class="btn-primary" type="button">Sync to Notion</button>
      <button id="clearLog" class="btn-secondary" type="button">Clear Log</button>
    </section>

    <section class="panel">
      <h2>Sync Activity Feed <span id="count" class="sub">0 items logged</span></h2>
      <ul id="feed" class="feed"></ul>
    </section>
  </main>

  <script>
    (function () {
      const keys = ["month", "results", "product"];
      const records = new Map();

      const dom = {
        secret: document.getElementById("secret"),
        database: document.getElementById("database"),
        token: document.getElementById("token"),
        saveCreds: document.getElementById("saveCreds"),
        credState: document.getElementById("credState"),
        statusMessage: document.getElementById("statusMessage"),
        banner: document.getElementById("networkBanner"),
        sync: document.getElementById("sync"),
        clearLog: document.getElementById("clearLog"),
        count: document.getElementById("count"),
        feed: document.getElementById("feed"),
      };

      function getBase() {
        return window.location.origin;
      }

      function cid(prefix) {
        return prefix + "_" + Date.now() + "_" + Math.random().toString(16).slice(2, 8);
      }

      async function request(method, path, body) {
        const headers = { "X-Correlation-Id": cid("dash") };
        const token = dom.token.value.trim();
        if (token) {
          headers["Authorization"] = "Bearer " + token;
        }
        if (body !== undefined) {
          headers["Content-Type"] = "application/json";
        }
        const response = await fetch(getBase() + path, {
          method: method,
          headers: headers,
          body: body === undefined ? undefined : JSON.stringify(body),
        });
        const text = await response.text();
        let data;
        try {
          data = JSON.parse(text);
        } catch (err) {
          throw new Error("non-json response: " + text.slice(0, 220));
        }
        if (!response.ok) {
          const msg = data.message ? String(data.message) : response.statusText;
          throw new Error(msg);
        }
        return data;
      }

      function setStatus(text, cls) {
        dom.statusMessage.textContent = text;
        dom.statusMessage.className = cls || "";
      }

      function setBusy(busy) {
        dom.sync.disabled = busy;
        dom.sync.textContent = busy ? "Syncing..." : "Sync to Notion";
        keys.forEach(function (key) {
          document.getElementById("in-" + key).disabled = busy;
        });
      }

      function setWarning(raised) {
        dom.banner.className = raised ? "banner visible" : "banner";
      }

      function renderFeed() {
        const list = Array.from(records.values()).sort(function (a, b) {
          return a.createdAt < b.createdAt ? 1 : (a.createdAt > b.createdAt ? -1 : (a.id < b.id ? 1 : -1));
        });
        dom.count.textContent = list.length + " items logged";
        dom.feed.innerHTML = "";
        if (list.length === 0) {
          const item = document.createElement("li");
          item.textContent = "No activity yet. Add ideas above and sync!";
          dom.feed.appendChild(item);
          return;
        }
        list.forEach(function (record) {
          const item = document.createElement("li");
          item.className = record.status;
          item.textContent = record.text;
          const meta = document.createElement("span");
          meta.className = "meta";
          meta.textContent = record.category + " | " + record.status + " | " + new Date(record.updatedAt).toLocaleTimeString();
          item.appendChild(meta);
          if (record.error) {
            const reason = document.createElement("span");
            reason.className = "reason";
            reason.textContent = record.error;
            item.appendChild(reason);
          }
          dom.feed.appendChild(item);
        });
      }

      async function loadAll() {
        const creds = await request("GET", "/v1/credentials");
        dom.database.value = creds.collectionId || "";
        dom.secret.placeholder = creds.accessSecret || "Notion API key";
        dom.credState.textContent = creds.complete ? "configured" : "missing";
        dom.credState.className = creds.complete ? "ok" : "warn";

        const inputs = await request("GET", "/v1/inputs");
        keys.forEach(function (key) {
          document.getElementById("in-" + key).value = inputs.inputs[key] || "";
        });

        const activity = await request("GET", "/v1/activity");
        records.clear();
        activity.records.forEach(function (record) { records.set(record.id, record); });
        renderFeed();
        setBusy(activity.busy);
        setWarning(activity.networkWarning);
      }

      function connectStream() {
        const url = new URL(getBase().replace(/^http/, "ws") + "/v1/activity/stream");
        const token = dom.token.value.trim();
        if (token) {
          url.searchParams.set("token", token);
        }
        const socket = new WebSocket(url.toString());
        socket.onmessage = function (msg) {
          const event = JSON.parse(msg.data);
          switch (event.type) {
            case "connected":
              setBusy(event.busy);
              setWarning(event.networkWarning);
              break;
            case "record.created":
            case "record.updated":
              records.set(event.record.id, event.record);
              renderFeed();
              break;
            case "sync.busy":
              setBusy(event.busy);
              break;
            case "sync.network_warning":
              setWarning(event.networkWarning);
              break;
            case "input.cleared":
              keys.forEach(function (key) {
                const area = document.getElementById("in-" + key);
                if (area.dataset.category === event.category) {
                  area.value = "";
                }
              });
              break;
            case "log.cleared":
              loadAll().catch(function (err) { setStatus(err.message, "err"); });
              break;
          }
        };
        socket.onclose = function () {
          window.setTimeout(connectStream, 3000);
        };
      }

      async function saveInputs() {
        const inputs = {};
        keys.forEach(function (key) {
          inputs[key] = document.getElementById("in-" + key).value;
        });
        await request("PUT", "/v1/inputs", { inputs: inputs });
      }

      dom.saveCreds.addEventListener("click", async function () {
        try {
          const creds = await request("PUT", "/v1/credentials", {
            accessSecret: dom.secret.value.trim(),
            collectionId: dom.database.value.trim(),
          });
          dom.secret.value = "";
          dom.credState.textContent = creds.complete ? "configured" : "missing";
          dom.credState.className = creds.complete ? "ok" : "warn";
          setStatus("credentials saved", "ok");
        } catch (err) {
          setStatus(err.message, "err");
        }
      });

      dom.sync.addEventListener("click", async function () {
        try {
          await saveInputs();
          const summary = await request("POST", "/v1/sync");
          setStatus(summary.succeeded + " synced, " + summary.failed + " failed", summary.failed ? "warn" : "ok");
          keys.forEach(function (key) { document.getElementById("in-" + key).value = ""; });
        } catch (err) {
          setStatus(err.message, "err");
        }
      });

      dom.clearLog.addEventListener("click", async function () {
        try {
          await request("DELETE", "/v1/activity");
        } catch (err) {
          setStatus(err.message, "err");
        }
      });

      document.getElementById("in-month").dataset.category = "MON MOI";
      document.getElementById("in-results").dataset.category = "MES RÉSULTATS";
      document.getElementById("in-product").dataset.category = "MON PRODUIT";

      dom.token.value = window.localStorage.getItem("ideasync_dashboard_token") || "";
      dom.token.addEventListener("change", function () {
        window.localStorage.setItem("ideasync_dashboard_token", dom.token.value.trim());
        loadAll().catch(function (err) { setStatus(err.message, "err"); });
      });

      loadAll().catch(function (err) { setStatus(err.message, "err"); });
      connectStream();
    })();
  </script>
</body>
</html>`

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = fmt.Fprint(w, dashboardHTML)
}
