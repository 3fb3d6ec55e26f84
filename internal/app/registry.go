package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dmelnik/streamcast/internal/core"
	"github.com/dmelnik/streamcast/internal/domain"
)

// Registry is the process-wide session map. One mutex is held for the
// whole of every logical operation (create, viewer add/remove, teardown,
// cull), so the map and every session's viewer set are never mutated
// concurrently. Sends to connections happen outside the lock, from
// snapshots taken under it.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.SessionID]*core.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.SessionID]*core.Session)}
}

// CreateSession generates a fresh session id and registers an empty
// session owned by the given streamer connection.
func (r *Registry) CreateSession(streamer core.SignalConnection) *core.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := domain.NewSessionID()
	sess := core.NewSession(id, streamer)
	r.sessions[id] = sess
	log.Info().Str("module", "app.registry").Str("session", string(id)).Msg("session created")
	return sess
}

func (r *Registry) Get(id domain.SessionID) (*core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	return sess, ok
}

// Remove deletes the session entry. No-op when absent.
func (r *Registry) Remove(id domain.SessionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// AddViewer registers a new viewer under the session, generating its id.
// It fails when the session is unknown or its streamer is no longer open;
// in both cases nothing is mutated. On success it returns the viewer id,
// the updated viewer count and the streamer connection to notify.
func (r *Registry) AddViewer(id domain.SessionID, conn core.SignalConnection) (domain.ViewerID, int, core.SignalConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return "", 0, nil, domain.ErrSessionNotFound
	}
	if !sess.Streamer().Open() {
		return "", 0, nil, domain.ErrStreamerGone
	}
	vid := domain.NewViewerID()
	sess.AddViewer(vid, conn)
	log.Info().Str("module", "app.registry").Str("session", string(id)).Str("viewer", string(vid)).Int("count", sess.ViewerCount()).Msg("viewer added")
	return vid, sess.ViewerCount(), sess.Streamer(), nil
}

// RemoveViewer drops the viewer from its session. It returns the updated
// viewer count and the streamer connection to notify; ok is false when
// the session or viewer is already gone (nothing to notify).
func (r *Registry) RemoveViewer(id domain.SessionID, vid domain.ViewerID) (int, core.SignalConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return 0, nil, false
	}
	if !sess.RemoveViewer(vid) {
		return 0, nil, false
	}
	log.Info().Str("module", "app.registry").Str("session", string(id)).Str("viewer", string(vid)).Int("count", sess.ViewerCount()).Msg("viewer removed")
	return sess.ViewerCount(), sess.Streamer(), true
}

// ViewerConns snapshots the session's viewer connections for fan-out.
// Empty when the session is absent.
func (r *Registry) ViewerConns(id domain.SessionID) []core.SignalConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	return sess.ViewerConns()
}

// StreamerConn returns the session's streamer connection.
func (r *Registry) StreamerConn(id domain.SessionID) (core.SignalConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.Streamer(), true
}

// Teardown removes the session and returns its viewer connections so the
// caller can notify and close them. Nil when the session is absent.
func (r *Registry) Teardown(id domain.SessionID) []core.SignalConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[id]
	if !ok {
		return nil
	}
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("session", string(id)).Int("viewers", sess.ViewerCount()).Msg("session removed")
	return sess.ViewerConns()
}

// CulledSession is one zombie session found by Cull.
type CulledSession struct {
	ID      domain.SessionID
	Viewers []core.SignalConnection
}

// Cull removes every session whose streamer connection is no longer
// open and returns them so the sweeper can notify orphaned viewers.
func (r *Registry) Cull() []CulledSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	var culled []CulledSession
	for id, sess := range r.sessions {
		if sess.Streamer().Open() {
			continue
		}
		culled = append(culled, CulledSession{ID: id, Viewers: sess.ViewerConns()})
		delete(r.sessions, id)
	}
	return culled
}
