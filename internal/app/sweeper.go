package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Sweeper is the backstop for transport failures that never fire a close
// event: on every tick it evicts sessions whose streamer connection is
// no longer open, running the same teardown as an explicit streamer
// close. It bounds how long a zombie session can stay in the registry.
type Sweeper struct {
	relay    *Relay
	interval time.Duration
}

func NewSweeper(relay *Relay, interval time.Duration) *Sweeper {
	return &Sweeper{relay: relay, interval: interval}
}

func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() int {
	culled := s.relay.registry.Cull()
	for _, c := range culled {
		s.relay.endViewers(c.Viewers)
		log.Info().Str("module", "app.sweeper").Str("session", string(c.ID)).Int("viewers", len(c.Viewers)).Msg("swept dead session")
	}
	if len(culled) > 0 {
		log.Info().Str("module", "app.sweeper").Int("sessions", len(culled)).Msg("sweep done")
	}
	return len(culled)
}
