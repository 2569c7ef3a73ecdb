// Package server - events.go streams the live interaction feed over a
// websocket. Dashboards subscribe here instead of polling /v1/quality.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog/log"
)

const eventWriteTimeout = 5 * time.Second

// handleEvents upgrades to a websocket and forwards interaction records
// as they are logged. A slow client is disconnected rather than allowed
// to back up the tracker.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	events, cancel := s.tracker.Subscribe()
	defer cancel()

	ctx := r.Context()
	for {
		select {
		case rec, ok := <-events:
			if !ok {
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, eventWriteTimeout)
			err := wsjson.Write(wctx, conn, rec)
			wcancel()
			if err != nil {
				log.Debug().Err(err).Msg("event feed client dropped")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
