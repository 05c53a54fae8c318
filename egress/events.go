// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package egress

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"

	"github.com/warden-foundation/warden/lib/codec"
)

// handleEvents upgrades to a websocket and streams decision records as
// they are published. Frames are JSON text by default; ?format=cbor
// switches to binary CBOR frames. The stream is forward-only: nothing
// published before the subscription is replayed.
func (a *controlAPI) handleEvents(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "cbor" {
		writeError(w, http.StatusBadRequest, "unknown format %q", format)
		return
	}

	// Subscribe before the handshake so nothing published during the
	// upgrade is missed.
	sub := a.events.Subscribe(0)
	if sub == nil {
		writeError(w, http.StatusServiceUnavailable, "shutting down")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		sub.Cancel()
		a.logger.Warn("event stream handshake failed", "error", err)
		return
	}
	defer conn.CloseNow()
	defer sub.Cancel()

	a.metrics.Subscribers.Inc()
	defer a.metrics.Subscribers.Dec()
	a.logger.Info("event subscriber connected", "format", format)

	ctx := r.Context()
	for {
		rec, ok := sub.Next(ctx)
		if !ok {
			conn.Close(websocket.StatusNormalClosure, "stream closed")
			return
		}

		var (
			frameType websocket.MessageType
			payload   []byte
		)
		if format == "cbor" {
			frameType = websocket.MessageBinary
			payload, err = codec.Marshal(rec)
		} else {
			frameType = websocket.MessageText
			payload, err = json.Marshal(rec)
		}
		if err != nil {
			a.logger.Error("encoding event failed", "id", rec.ID, "error", err)
			continue
		}

		if err := conn.Write(ctx, frameType, payload); err != nil {
			a.logger.Info("event subscriber disconnected", "error", err)
			return
		}
	}
}
