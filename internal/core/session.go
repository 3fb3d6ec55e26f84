package core

import (
	"time"

	"github.com/dmelnik/streamcast/internal/domain"
)

// Session is one streamer connection plus its viewer set.
// It has no locking of its own: all mutation happens under the
// registry mutex, one logical operation at a time.
type Session struct {
	id       domain.SessionID
	streamer SignalConnection
	viewers  map[domain.ViewerID]SignalConnection
	created  time.Time
}

// NewSession fixes the streamer connection for the session's lifetime;
// it is never replaced.
func NewSession(id domain.SessionID, streamer SignalConnection) *Session {
	return &Session{
		id:       id,
		streamer: streamer,
		viewers:  make(map[domain.ViewerID]SignalConnection),
		created:  time.Now(),
	}
}

func (s *Session) ID() domain.SessionID       { return s.id }
func (s *Session) Streamer() SignalConnection { return s.streamer }
func (s *Session) CreatedAt() time.Time       { return s.created }

func (s *Session) ViewerCount() int { return len(s.viewers) }

func (s *Session) AddViewer(id domain.ViewerID, conn SignalConnection) {
	s.viewers[id] = conn
}

// RemoveViewer reports whether the viewer was present.
func (s *Session) RemoveViewer(id domain.ViewerID) bool {
	if _, ok := s.viewers[id]; !ok {
		return false
	}
	delete(s.viewers, id)
	return true
}

// ViewerConns returns a snapshot of the viewer connections for fan-out.
func (s *Session) ViewerConns() []SignalConnection {
	out := make([]SignalConnection, 0, len(s.viewers))
	for _, c := range s.viewers {
		out = append(out, c)
	}
	return out
}
