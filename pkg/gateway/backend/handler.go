// Copyright The TrustTunnel Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package backend wires the gateway's HTTP surface: the websocket upgrade
// endpoint the browser's real-time channel connects to, CORS handling for
// the configured origin, and a request-audit log line per connection
// (spec §6's external interface, generalized from the teacher's
// backend/handler.go one-shot RPC handler into a persistent per-connection
// upgrade-then-dispatch flow).
package backend

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"devbox-gateway/pkg/common/logutil"
	"devbox-gateway/pkg/gateway/monitor"
	"devbox-gateway/pkg/gateway/realtime"
)

var logger = logutil.GetLogger("gateway-backend")

// Config configures the gateway's HTTP surface.
type Config struct {
	// Port is decoded from backend_config but not read: the listener binds
	// the top-level host and port options (port 9000 when neither the
	// option nor PORT is set).
	Port int `toml:"port"`
	// AllowedOrigin is the single origin permitted to open the real-time
	// channel (spec §6, default "http://localhost").
	AllowedOrigin string `toml:"allowed_origin"`
}

// Handler upgrades incoming HTTP requests to websocket connections and
// hands them to a realtime.Dispatcher.
type Handler struct {
	config     *Config
	dispatcher *realtime.Dispatcher
	upgrader   websocket.Upgrader
}

// NewHandler builds a Handler around its configuration and dispatcher.
func NewHandler(c *Config, dispatcher *realtime.Dispatcher) *Handler {
	if c.AllowedOrigin == "" {
		c.AllowedOrigin = "http://localhost"
	}

	h := &Handler{config: c, dispatcher: dispatcher}

	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			return origin == "" || origin == h.config.AllowedOrigin
		},
	}

	return h
}

// Handle upgrades the connection and drives it until the client disconnects.
func (h *Handler) Handle(w http.ResponseWriter, r *http.Request) {
	requestLogger := logger.WithField("request_from", r.RemoteAddr)

	constructAuditInfo(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		requestLogger.Warnln("websocket upgrade error: ", err)

		return
	}
	defer conn.Close()

	requestLogger.Infoln("real-time channel established")

	h.dispatcher.Serve(conn)

	requestLogger.Infoln("real-time channel closed")
}

// Router builds the gateway's full HTTP surface: the websocket endpoint
// plus a CORS layer matching spec §6's configuration, both instrumented by
// monitor.WrapPrometheus.
func (h *Handler) Router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/ws", h.Handle)

	return monitor.WrapPrometheus(withCORS(h.config.AllowedOrigin, r))
}

// withCORS applies spec §6's fixed CORS policy: GET/POST/PUT/DELETE,
// Authorization and Content-Type headers, credentials enabled.
func withCORS(allowedOrigin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(w, r)
	})
}
