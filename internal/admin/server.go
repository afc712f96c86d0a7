package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"netsir-sim/internal/sim"
	"netsir-sim/internal/telemetry"
)

// Source is what the server reads from a running simulation.
type Source interface {
	Status() sim.Status
	History() []telemetry.RoundRow
	NodeRows() []telemetry.NodeRow
}

type Server struct {
	src Source
	tpl *template.Template
	mux *http.ServeMux
	log *slog.Logger
}

//go:embed templates/index.html
var content embed.FS

func NewServer(src Source, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	tpl := template.Must(template.New("index.html").ParseFS(content, "templates/index.html"))
	s := &Server{src: src, tpl: tpl, mux: http.NewServeMux(), log: log.With("component", "admin")}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/rounds", s.handleRounds)
	s.mux.HandleFunc("/nodes", s.handleNodes)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("admin server listening", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	hist := s.src.History()
	if len(hist) > 20 {
		hist = hist[len(hist)-20:]
	}
	data := struct {
		Status sim.Status
		Rounds []telemetry.RoundRow
	}{
		Status: s.src.Status(),
		Rounds: hist,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		s.log.Error("render index", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Status())
}

// handleRounds returns the round history, optionally starting at ?from=N.
func (s *Server) handleRounds(w http.ResponseWriter, r *http.Request) {
	hist := s.src.History()
	if v := r.URL.Query().Get("from"); v != "" {
		from, err := strconv.Atoi(v)
		if err != nil || from < 0 {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		out := hist[:0:0]
		for _, row := range hist {
			if row.Round >= from {
				out = append(out, row)
			}
		}
		hist = out
	}
	if hist == nil {
		hist = []telemetry.RoundRow{}
	}
	writeJSON(w, hist)
}

// handleNodes returns the latest node records, optionally filtered by ?state=.
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	rows := s.src.NodeRows()
	if st := r.URL.Query().Get("state"); st != "" {
		want, err := sim.ParseState(st)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out := rows[:0:0]
		for _, n := range rows {
			if strings.EqualFold(n.State, want.String()) {
				out = append(out, n)
			}
		}
		rows = out
	}
	if rows == nil {
		rows = []telemetry.NodeRow{}
	}
	writeJSON(w, rows)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
