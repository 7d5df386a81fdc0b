// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package diag exposes an optional HTTP diagnostics endpoint for a
// development build: live charts of heap and goroutine counts via
// github.com/mkevac/debugcharts, alongside the board's own packet and
// retry counters. Package coordinator imports it for Counters, so it
// is linked into every build that uses the coordinator; the HTTP
// endpoint itself runs only once ListenAndServe is called, for
// debugging the stack against hal/sim or hal/linuxhw on a desktop.
package diag

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	_ "github.com/mkevac/debugcharts"
)

// Counters tracks the coordinator-level statistics worth watching
// live while driving the stack against a simulated or Linux-backed
// bus.
type Counters struct {
	PacketsSent     atomic.Int64
	PacketsReceived atomic.Int64
	Retries         atomic.Int64
	Timeouts        atomic.Int64
	Aborts          atomic.Int64
}

// Server serves debugcharts' handlers plus a small JSON snapshot of
// Counters on the given address until the process exits.
type Server struct {
	addr     string
	counters *Counters
}

// NewServer creates a diagnostics server; call ListenAndServe to run
// it.
func NewServer(addr string, counters *Counters) *Server {
	return &Server{addr: addr, counters: counters}
}

// ListenAndServe blocks serving debugcharts' default-mux handlers
// (registered by this package's blank import) plus /diag/counters.
func (s *Server) ListenAndServe() error {
	http.HandleFunc("/diag/counters", s.serveCounters)
	return http.ListenAndServe(s.addr, nil)
}

func (s *Server) serveCounters(w http.ResponseWriter, r *http.Request) {
	snapshot := struct {
		PacketsSent     int64 `json:"packets_sent"`
		PacketsReceived int64 `json:"packets_received"`
		Retries         int64 `json:"retries"`
		Timeouts        int64 `json:"timeouts"`
		Aborts          int64 `json:"aborts"`
	}{
		PacketsSent:     s.counters.PacketsSent.Load(),
		PacketsReceived: s.counters.PacketsReceived.Load(),
		Retries:         s.counters.Retries.Load(),
		Timeouts:        s.counters.Timeouts.Load(),
		Aborts:          s.counters.Aborts.Load(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
