package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dmelnik/streamcast/internal/core"
)

// writePump owns the socket: it closes it on exit, after draining any
// frames queued before Close.
func (ctl *SignalWSController) writePump(ctx context.Context, c *wsSignalConn) {
	defer c.conn.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Cfg.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump feeds inbound frames to the relay. On exit the close handler
// runs exactly once: it is what tears down the session (streamer) or
// drops the viewer from it.
func (ctl *SignalWSController) readPump(ctx context.Context, peer *core.Peer, c *wsSignalConn) {
	defer func() {
		c.Close()
		ctl.Relay.HandleClose(peer)
		log.Info().Str("module", "signal").Str("conn", string(peer.ID())).Msg("readPump closed")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(peer.ID())).Msg("readPump read error")
				return
			}
			ctl.Relay.HandleMessage(peer, core.Frame(data))
		}
	}
}
