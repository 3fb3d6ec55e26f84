package app

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dmelnik/streamcast/internal/core"
	"github.com/dmelnik/streamcast/internal/domain"
)

// Relay routes signaling frames between a session's streamer and its
// viewers. The routing target is always derived from the sender's own
// role: streamer frames fan out to every viewer of its session, viewer
// frames go to its one streamer. Messages never carry routing metadata.
type Relay struct {
	registry  *Registry
	publicURL string
}

func NewRelay(registry *Registry, publicURL string) *Relay {
	return &Relay{
		registry:  registry,
		publicURL: strings.TrimRight(publicURL, "/"),
	}
}

// HandleMessage dispatches one inbound frame against the peer's role.
// Malformed payloads and unknown types are logged and ignored; the
// connection stays alive.
func (r *Relay) HandleMessage(p *core.Peer, data core.Frame) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("conn", string(p.ID())).Msg("bad json")
		return
	}

	switch env.Type {
	case "join-as-streamer":
		r.handleStreamerJoin(p)
	case "join-as-viewer":
		r.handleViewerJoin(p, data)
	case "offer":
		r.handleOffer(p, data)
	case "answer":
		r.handleAnswer(p, data)
	case "ice-candidate":
		r.handleCandidate(p, data)
	default:
		log.Warn().Str("module", "app.relay").Str("conn", string(p.ID())).Str("type", env.Type).Msg("unknown signal")
	}
}

func (r *Relay) handleStreamerJoin(p *core.Peer) {
	if _, ok := p.Role().(domain.Unassigned); !ok {
		r.sendJSON(p.Conn(), map[string]any{
			"type":    "error",
			"message": "role already assigned",
		})
		return
	}

	sess := r.registry.CreateSession(p.Conn())
	// Cannot fail: role checked above and nothing else touches this peer.
	_ = p.Assign(domain.Streamer{Session: sess.ID()})

	resp := struct {
		Type          string           `json:"type"`
		SessionID     domain.SessionID `json:"sessionId"`
		ViewerJoinURL string           `json:"viewerJoinUrl"`
	}{
		Type:          "session-created",
		SessionID:     sess.ID(),
		ViewerJoinURL: fmt.Sprintf("%s/watch/%s", r.publicURL, sess.ID()),
	}
	r.sendJSON(p.Conn(), resp)
	log.Info().Str("module", "app.relay").Str("conn", string(p.ID())).Str("session", string(sess.ID())).Msg("streamer joined")
}

func (r *Relay) handleViewerJoin(p *core.Peer, data core.Frame) {
	if _, ok := p.Role().(domain.Unassigned); !ok {
		r.sendJSON(p.Conn(), map[string]any{
			"type":    "error",
			"message": "role already assigned",
		})
		return
	}

	var payload struct {
		Type      string           `json:"type"`
		SessionID domain.SessionID `json:"sessionId"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad join payload")
		return
	}

	vid, count, streamer, err := r.registry.AddViewer(payload.SessionID, p.Conn())
	if err != nil {
		// The session id is single-use, so there is nothing to retry
		// against: tell the viewer and close.
		r.sendJSON(p.Conn(), map[string]any{
			"type":    "no-stream",
			"message": "no active stream for this session",
		})
		p.Conn().Close()
		log.Info().Err(err).Str("module", "app.relay").Str("conn", string(p.ID())).Str("session", string(payload.SessionID)).Msg("viewer join refused")
		return
	}
	_ = p.Assign(domain.Viewer{Session: payload.SessionID, ID: vid})

	r.notifyViewerChange(streamer, "viewer-joined", vid, count)

	resp := struct {
		Type      string           `json:"type"`
		SessionID domain.SessionID `json:"sessionId"`
		ViewerID  domain.ViewerID  `json:"viewerId"`
	}{
		Type:      "joined",
		SessionID: payload.SessionID,
		ViewerID:  vid,
	}
	r.sendJSON(p.Conn(), resp)
	log.Info().Str("module", "app.relay").Str("conn", string(p.ID())).Str("session", string(payload.SessionID)).Str("viewer", string(vid)).Msg("viewer joined")
}

func (r *Relay) handleOffer(p *core.Peer, data core.Frame) {
	role, ok := p.Role().(domain.Streamer)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("conn", string(p.ID())).Msg("offer from non-streamer")
		return
	}

	var payload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad offer payload")
		return
	}

	resp := struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{
		Type: "offer",
		SDP:  payload.SDP,
	}
	r.fanOut(role.Session, resp)
}

func (r *Relay) handleAnswer(p *core.Peer, data core.Frame) {
	role, ok := p.Role().(domain.Viewer)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("conn", string(p.ID())).Msg("answer from non-viewer")
		return
	}

	var payload struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad answer payload")
		return
	}

	resp := struct {
		Type     string          `json:"type"`
		ViewerID domain.ViewerID `json:"viewerId"`
		SDP      string          `json:"sdp"`
	}{
		Type:     "answer",
		ViewerID: role.ID,
		SDP:      payload.SDP,
	}
	r.forwardToStreamer(role.Session, resp)
}

func (r *Relay) handleCandidate(p *core.Peer, data core.Frame) {
	var payload struct {
		Type      string                  `json:"type"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Msg("bad candidate payload")
		return
	}

	switch role := p.Role().(type) {
	case domain.Streamer:
		resp := struct {
			Type      string                  `json:"type"`
			Candidate webrtc.ICECandidateInit `json:"candidate"`
		}{
			Type:      "ice-candidate",
			Candidate: payload.Candidate,
		}
		r.fanOut(role.Session, resp)
	case domain.Viewer:
		resp := struct {
			Type      string                  `json:"type"`
			ViewerID  domain.ViewerID         `json:"viewerId"`
			Candidate webrtc.ICECandidateInit `json:"candidate"`
		}{
			Type:      "ice-candidate",
			ViewerID:  role.ID,
			Candidate: payload.Candidate,
		}
		r.forwardToStreamer(role.Session, resp)
	default:
		log.Warn().Str("module", "app.relay").Str("conn", string(p.ID())).Msg("candidate before join")
	}
}

// HandleClose runs the role-dispatched teardown for a closed transport.
func (r *Relay) HandleClose(p *core.Peer) {
	switch role := p.Role().(type) {
	case domain.Streamer:
		viewers := r.registry.Teardown(role.Session)
		r.endViewers(viewers)
		log.Info().Str("module", "app.relay").Str("session", string(role.Session)).Int("viewers", len(viewers)).Msg("streamer closed, session torn down")
	case domain.Viewer:
		count, streamer, ok := r.registry.RemoveViewer(role.Session, role.ID)
		if !ok {
			return
		}
		r.notifyViewerChange(streamer, "viewer-left", role.ID, count)
	default:
		// Unassigned: nothing was registered.
	}
}

// endViewers tells each orphaned viewer the stream is over, then closes
// it. Hard teardown: the session id cannot be rejoined.
func (r *Relay) endViewers(viewers []core.SignalConnection) {
	for _, conn := range viewers {
		r.sendJSON(conn, map[string]any{"type": "stream-ended"})
		conn.Close()
	}
}

func (r *Relay) notifyViewerChange(streamer core.SignalConnection, typ string, vid domain.ViewerID, count int) {
	resp := struct {
		Type        string          `json:"type"`
		ViewerID    domain.ViewerID `json:"viewerId"`
		ViewerCount int             `json:"viewerCount"`
	}{
		Type:        typ,
		ViewerID:    vid,
		ViewerCount: count,
	}
	r.sendJSON(streamer, resp)
}

// fanOut sends the message to every currently open viewer of the
// session. Closed viewers are skipped; nothing is queued or retried.
func (r *Relay) fanOut(id domain.SessionID, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("fanout marshal")
		return
	}
	sent, dropped := 0, 0
	for _, conn := range r.registry.ViewerConns(id) {
		if !conn.Open() {
			dropped++
			continue
		}
		if err := conn.TrySend(b); err != nil {
			dropped++
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.relay").Str("session", string(id)).Int("sent", sent).Int("dropped", dropped).Msg("fanout")
}

// forwardToStreamer delivers a viewer-originated message to the
// session's streamer, dropping silently when the streamer is gone.
func (r *Relay) forwardToStreamer(id domain.SessionID, v any) {
	streamer, ok := r.registry.StreamerConn(id)
	if !ok || !streamer.Open() {
		log.Debug().Str("module", "app.relay").Str("session", string(id)).Msg("forward dropped, streamer gone")
		return
	}
	r.sendJSON(streamer, v)
}

func (r *Relay) sendJSON(conn core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("sendJSON marshal")
		return
	}
	if err := conn.TrySend(b); err != nil {
		log.Debug().Err(err).Str("module", "app.relay").Msg("send dropped")
	}
}
