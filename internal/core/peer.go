package core

import "github.com/dmelnik/streamcast/internal/domain"

// Peer binds one transport connection to its routing role.
// A peer is only ever touched from its own connection's read loop, so
// the role field needs no locking.
type Peer struct {
	id   domain.ConnID
	conn SignalConnection
	role domain.Role
}

func NewPeer(conn SignalConnection) *Peer {
	return &Peer{
		id:   domain.NewConnID(),
		conn: conn,
		role: domain.Unassigned{},
	}
}

func (p *Peer) ID() domain.ConnID      { return p.id }
func (p *Peer) Conn() SignalConnection { return p.conn }
func (p *Peer) Role() domain.Role      { return p.role }

// Assign moves the peer out of Unassigned. Role transitions are one-way;
// a second assignment is refused no matter the target role.
func (p *Peer) Assign(role domain.Role) error {
	if _, ok := p.role.(domain.Unassigned); !ok {
		return domain.ErrRoleAssigned
	}
	p.role = role
	return nil
}
