package handlers

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"promptpix/internal/batch"
	"promptpix/internal/domain"
	"promptpix/internal/workflow"
)

// sessionHeader scopes one browser tab to its own workflow engine. Requests
// without the header share the default session.
const sessionHeader = "X-Session-ID"

// stateEnvelope is the combined snapshot pushed to websocket subscribers and
// returned by the state endpoint.
type stateEnvelope struct {
	Workflow workflow.State       `json:"workflow"`
	Batch    []domain.BatchResult `json:"batch"`
}

// sessionBundle pairs the single-item workflow session with the batch
// orchestrator for one client, plus its websocket subscribers.
type sessionBundle struct {
	Workflow *workflow.Session
	Batch    *batch.Orchestrator

	mu    sync.Mutex
	conns map[*websocket.Conn]*sync.Mutex
}

func (b *sessionBundle) snapshot() stateEnvelope {
	return stateEnvelope{
		Workflow: b.Workflow.State(),
		Batch:    b.Batch.Results(),
	}
}

// broadcast pushes the current snapshot to every connected subscriber.
// Connections that fail to accept the write are dropped.
func (b *sessionBundle) broadcast() {
	b.mu.Lock()
	if len(b.conns) == 0 {
		b.mu.Unlock()
		return
	}
	payload, err := json.Marshal(b.snapshot())
	if err != nil {
		b.mu.Unlock()
		return
	}
	conns := make(map[*websocket.Conn]*sync.Mutex, len(b.conns))
	for c, l := range b.conns {
		conns[c] = l
	}
	b.mu.Unlock()

	for conn, lock := range conns {
		lock.Lock()
		err := conn.WriteMessage(websocket.TextMessage, payload)
		lock.Unlock()
		if err != nil {
			b.detach(conn)
			_ = conn.Close()
		}
	}
}

func (b *sessionBundle) attach(conn *websocket.Conn) {
	b.mu.Lock()
	b.conns[conn] = &sync.Mutex{}
	b.mu.Unlock()
}

func (b *sessionBundle) detach(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
}

// session returns the bundle for the request's session id, creating it on
// first use.
func (a *App) session(r *http.Request) (*sessionBundle, error) {
	id := r.Header.Get(sessionHeader)
	if id == "" {
		id = "default"
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok := a.sessions[id]; ok {
		return b, nil
	}

	bundle := &sessionBundle{conns: make(map[*websocket.Conn]*sync.Mutex)}
	logger := a.logger.With().Str("session", id).Logger()

	ws, err := workflow.NewSession(workflow.Options{
		Service:        a.svc,
		History:        a.hist,
		Logger:         &logger,
		RatingDebounce: a.ratingDebounce,
		Rand:           rand.New(rand.NewSource(a.rng.Int63())),
		OnChange:       bundle.broadcast,
	})
	if err != nil {
		return nil, err
	}
	orch, err := batch.NewOrchestrator(batch.Options{
		Service:  a.svc,
		History:  a.hist,
		Logger:   &logger,
		Rand:     rand.New(rand.NewSource(a.rng.Int63())),
		OnChange: bundle.broadcast,
	})
	if err != nil {
		return nil, err
	}
	bundle.Workflow = ws
	bundle.Batch = orch
	a.sessions[id] = bundle
	return bundle, nil
}
