// Package web provides the HTTP status page and runtime control endpoints.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/shego/hallscan/internal/scan"
	"github.com/shego/hallscan/internal/status"
	"github.com/shego/hallscan/internal/wiring"
)

// Server serves the status page over HTTP. Control requests are queued on
// a command channel and applied by the scan loop between passes.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	keys       *wiring.ChannelMap
	cmds       chan<- scan.Command
	log        zerolog.Logger
}

// New creates a Server that reads state from tracker and queues commands
// on cmds. Key names are resolved against keys.
func New(addr string, tracker *status.Tracker, keys *wiring.ChannelMap, cmds chan<- scan.Command, log zerolog.Logger) *Server {
	s := &Server{
		tracker: tracker,
		keys:    keys,
		cmds:    cmds,
		log:     log.With().Str("subsystem", "http").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/threshold", s.handleThreshold)
	mux.HandleFunc("/socd/toggle", s.handleToggle)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.log.Warn().Err(err).Msg("render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name := r.Form.Get("key")
	k, ok := s.keys.Lookup(name)
	if !ok {
		http.Error(w, "unknown key "+strconv.Quote(name), http.StatusNotFound)
		return
	}
	if _, mapped := s.keys.Location(k); !mapped {
		http.Error(w, "key "+strconv.Quote(name)+" is not wired", http.StatusConflict)
		return
	}
	percent, err := strconv.ParseUint(r.Form.Get("percent"), 10, 8)
	if err != nil {
		http.Error(w, "percent must be an integer between 0 and 255", http.StatusBadRequest)
		return
	}

	s.enqueue(w, r, scan.Command{Kind: scan.SetThreshold, Key: k, Percent: uint8(percent)})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.enqueue(w, r, scan.Command{Kind: scan.ToggleArbitration})
}

// enqueue never blocks on a stalled scan loop. Form posts carrying a
// redirect field are sent back to the status page.
func (s *Server) enqueue(w http.ResponseWriter, r *http.Request, cmd scan.Command) {
	select {
	case s.cmds <- cmd:
	default:
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
		return
	}
	s.log.Debug().Stringer("command", cmd.Kind).Str("remote", r.RemoteAddr).Msg("queued")

	if r.Header.Get("Accept") == "application/json" || r.Form.Get("redirect") == "" {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
