package domain

// Role is a connection's place in a session. A connection starts as
// Unassigned and moves exactly once to Streamer or Viewer, never back
// and never between the two.
type Role interface{ isRole() }

type Unassigned struct{}

type Streamer struct {
	Session SessionID
}

type Viewer struct {
	Session SessionID
	ID      ViewerID
}

func (Unassigned) isRole() {}
func (Streamer) isRole()   {}
func (Viewer) isRole()     {}
