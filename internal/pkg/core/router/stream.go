/*
Copyright 2025 The CrossGate Authors
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const streamWriteTimeout = 10 * time.Second

// handleLogStream upgrades the connection and pushes every new invocation
// log entry to the client as JSON. A slow client misses entries rather
// than stalling the recorder; a failed write ends the stream.
func (rs *RouterService) handleLogStream(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if rs.opts.CORS.IsOriginAllowed(origin) {
				return true
			}
			return rs.opts.DomainRegistry != nil && rs.opts.DomainRegistry.IsAllowed(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rs.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	entries, cancel := rs.opts.InvokeLog.Subscribe(64)
	defer cancel()

	rs.logger.Debug("log stream connected", slog.String("remote", r.RemoteAddr))

	// Read pump: the stream never expects client messages, but reading
	// until error is the only way to notice a disconnect on an idle
	// connection after the hijack.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		conn.SetReadLimit(512)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-disconnected:
			return
		case <-r.Context().Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := conn.WriteJSON(entry); err != nil {
				rs.logger.Debug("log stream closed", slog.String("error", err.Error()))
				return
			}
		}
	}
}
