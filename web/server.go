// Package web publishes navigation state over REST and a websocket.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Bucknalla/go-truck-nav/display"
	"github.com/Bucknalla/go-truck-nav/nav"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/paulmach/orb/geojson"
)

const (
	writeWait  = 10 * time.Second
	clientSend = 64
)

// Backend is the navigation runtime the server exposes. *nav.Navigator
// implements it.
type Backend interface {
	State() nav.State
	Route() nav.Route
	Subscribe() <-chan nav.Event
	ResetDrivingTime() error
	AcceptAlternative() error
}

var _ Backend = (*nav.Navigator)(nil)

// Message is the websocket envelope.
type Message struct {
	Type string `json:"type"` // "state" or "event"
	Data any    `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan Message
}

type Server struct {
	backend  Backend
	logger   *slog.Logger
	upgrader websocket.Upgrader
	router   *mux.Router

	// StateInterval is how often the state is pushed without an event.
	StateInterval time.Duration

	mu        sync.Mutex
	clients   map[*client]bool
	panel     display.Panel
	tracks    Tracks
	vehicleID string
}

// NewServer creates the web surface for backend. staticDir, when not
// empty, is served at the root.
func NewServer(backend Backend, staticDir string) *Server {
	s := &Server{
		backend: backend,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // the dashboard may be served from elsewhere
			},
		},
		StateInterval: time.Second,
		clients:       make(map[*client]bool),
		panel:         display.PanelCollapsed,
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods("GET")
	api.HandleFunc("/view", s.handleView).Methods("GET")
	api.HandleFunc("/route", s.handleRoute).Methods("GET")
	api.HandleFunc("/trail", s.handleTrail).Methods("GET")
	api.HandleFunc("/vehicle", s.handleVehicle).Methods("GET")
	api.HandleFunc("/break/reset", s.handleResetBreak).Methods("POST")
	api.HandleFunc("/alternative/accept", s.handleAcceptAlternative).Methods("POST")
	api.HandleFunc("/panel", s.handleGetPanel).Methods("GET")
	api.HandleFunc("/panel", s.handlePanel).Methods("POST")
	api.HandleFunc("/ws", s.handleWebSocket)

	r.HandleFunc("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	s.router = r
	return s
}

// SetLogger sets the logger used by the server
func (s *Server) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Handler returns the HTTP handler of the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- server.ListenAndServe() }()
	s.logger.Info("web server listening", slog.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// Run forwards navigator events and periodic state to websocket clients
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	events := s.backend.Subscribe()
	ticker := time.NewTicker(s.StateInterval)
	defer ticker.Stop()
	defer s.closeClients()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				// Navigation ended; keep serving the last state.
				events = nil
				continue
			}
			s.broadcast(Message{Type: "event", Data: e})
			s.broadcast(Message{Type: "state", Data: s.backend.State()})
		case <-ticker.C:
			s.broadcast(Message{Type: "state", Data: s.backend.State()})
		}
	}
}

// broadcast queues m for every client. Slow clients miss messages rather
// than stalling the others.
func (s *Server) broadcast(m Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- m:
		default:
			s.logger.Debug("websocket client too slow, message dropped")
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		close(c.send)
		delete(s.clients, c)
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan Message, clientSend)}
	c.send <- Message{Type: "state", Data: s.backend.State()}

	s.mu.Lock()
	s.clients[c] = true
	s.logger.Info("websocket client connected", slog.Int("clients", len(s.clients)))
	s.mu.Unlock()

	go s.writePump(c)

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
	s.logger.Info("websocket client disconnected", slog.Int("clients", len(s.clients)))
	s.mu.Unlock()
}

func (s *Server) writePump(c *client) {
	defer c.conn.Close()
	for m := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(m); err != nil {
			s.logger.Debug("websocket write failed", slog.Any("error", err))
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, nav.ErrNavigatorNotRunning), errors.Is(err, nav.ErrNoAlternative):
		status = http.StatusConflict
	case errors.Is(err, ErrNoTracks), errors.Is(err, ErrNoTrail):
		status = http.StatusNotFound
	case errors.Is(err, ErrBadWindow):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.State())
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	panel := s.panel
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, struct {
		display.View
		Panel display.Panel `json:"panel"`
	}{display.Render(s.backend.State(), time.Now()), panel})
}

// handleRoute returns the active route as a GeoJSON feature collection: the
// line followed by one point per maneuver.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	route := s.backend.Route()
	fc := geojson.NewFeatureCollection()

	line := geojson.NewFeature(route.Polyline.LineString())
	line.Properties["distance_km"] = route.TotalKm()
	line.Properties["duration_min"] = route.DurationMin
	fc.Append(line)

	for i, in := range route.Instructions {
		f := geojson.NewFeature(in.Location.Point())
		f.Properties["step"] = i
		f.Properties["text"] = in.Text
		f.Properties["maneuver"] = in.Maneuver
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

func (s *Server) handleResetBreak(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.ResetDrivingTime(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleAcceptAlternative(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.AcceptAlternative(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

type panelRequest struct {
	SwipeDY float64 `json:"swipe_dy"` // pixels, negative is upwards
	Tap     bool    `json:"tap"`
	Show    bool    `json:"show"`
}

func (s *Server) handleGetPanel(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	panel := s.panel
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]display.Panel{"panel": panel})
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	var req panelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	s.mu.Lock()
	switch {
	case req.Show:
		s.panel = s.panel.Show()
	case req.Tap:
		s.panel = s.panel.Tap()
	default:
		s.panel = s.panel.Swipe(req.SwipeDY)
	}
	panel := s.panel
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]display.Panel{"panel": panel})
}
