package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// Subscribe upgrades the request to a websocket and streams state snapshots
// for the caller's session. The session id comes from the X-Session-ID header
// or, for browser websocket clients that cannot set headers, the ?session
// query parameter.
func (a *App) Subscribe(w http.ResponseWriter, r *http.Request) {
	if id := r.URL.Query().Get("session"); id != "" && r.Header.Get(sessionHeader) == "" {
		r.Header.Set(sessionHeader, id)
	}
	b, err := a.session(r)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "session init failed")
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			_, ok := a.allowedOrigins[origin]
			return ok
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	b.attach(conn)
	defer func() {
		b.detach(conn)
		_ = conn.Close()
	}()

	// Send the current snapshot immediately so new subscribers don't wait
	// for the next state change.
	b.broadcast()

	// Drain client frames until the connection closes. Inbound messages are
	// ignored; all mutations go through the REST surface.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
