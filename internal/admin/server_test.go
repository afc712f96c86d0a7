package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"netsir-sim/internal/logging"
	"netsir-sim/internal/sim"
	"netsir-sim/internal/telemetry"
)

type stubSource struct {
	status sim.Status
	rounds []telemetry.RoundRow
	nodes  []telemetry.NodeRow
}

func (s *stubSource) Status() sim.Status { return s.status }
func (s *stubSource) History() []telemetry.RoundRow { return s.rounds }
func (s *stubSource) NodeRows() []telemetry.NodeRow { return s.nodes }

func newTestServer() (*Server, *stubSource) {
	last := telemetry.RoundRow{Round: 2, Infected: 1, Susceptible: 2}
	src := &stubSource{
		status: sim.Status{RunID: "run-42", Running: true, Mode: "convergence", Nodes: 3, Round: 3, Last: &last},
		rounds: []telemetry.RoundRow{{Round: 0}, {Round: 1}, last},
		nodes: []telemetry.NodeRow{
			{NodeID: 1, State: "infected", Agents: 1},
			{NodeID: 2, State: "susceptible"},
			{NodeID: 3, State: "susceptible"},
		},
	}
	return NewServer(src, logging.Discard()), src
}

func TestHandleStatus(t *testing.T) {
	srv, _ := newTestServer()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code %d", w.Code)
	}
	var got sim.Status
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-42" || got.Last == nil || got.Last.Infected != 1 {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestHandleRounds(t *testing.T) {
	srv, _ := newTestServer()
	cases := []struct {
		query string
		code  int
		rows  int
	}{
		{"", http.StatusOK, 3},
		{"?from=1", http.StatusOK, 2},
		{"?from=9", http.StatusOK, 0},
		{"?from=x", http.StatusBadRequest, 0},
	}
	for _, tc := range cases {
		t.Run(tc.query, func(t *testing.T) {
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rounds"+tc.query, nil))
			if w.Code != tc.code {
				t.Fatalf("status code %d, want %d", w.Code, tc.code)
			}
			if tc.code != http.StatusOK {
				return
			}
			var rows []telemetry.RoundRow
			if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if rows == nil || len(rows) != tc.rows {
				t.Fatalf("got %d rows, want %d", len(rows), tc.rows)
			}
		})
	}
}

func TestHandleNodesFilter(t *testing.T) {
	srv, _ := newTestServer()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nodes?state=susceptible", nil))
	var rows []telemetry.NodeRow
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 susceptible nodes, got %d", len(rows))
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nodes?state=zombie", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown state should be rejected, got %d", w.Code)
	}
}

func TestHandleIndex(t *testing.T) {
	srv, _ := newTestServer()
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "run-42") || !strings.Contains(body, "Round 2") {
		t.Fatalf("index missing run details: %s", body)
	}

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestServerWithSimulator(t *testing.T) {
	s := sim.NewSimulator([]*sim.Node{sim.NewNode(1, sim.Recovered, sim.DefaultParams(), nil)}, nil, sim.Options{RunID: "live"})
	srv := NewServer(s, logging.Discard())
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rounds", nil))
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("expected empty history before the run, got %s", w.Body.String())
	}
}
