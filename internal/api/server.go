package api

import (
	"encoding/json"
	"fmt"
	"image/png"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/quicktab/quicktab/internal/config"
	"github.com/quicktab/quicktab/internal/logger"
	"github.com/quicktab/quicktab/internal/registry"
	"github.com/quicktab/quicktab/internal/session"
	"github.com/quicktab/quicktab/internal/store"
)

// Server is the HTTP boundary toward the presentation layer. It transports
// session state and routes window actions; it renders nothing itself.
type Server struct {
	router    *mux.Router
	coord     *session.Coordinator
	reg       *registry.Registry
	configMgr *config.Manager
	db        *store.Store
	upgrader  websocket.Upgrader
}

// NewServer creates the API server.
func NewServer(coord *session.Coordinator, reg *registry.Registry, configMgr *config.Manager, db *store.Store) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		coord:     coord,
		reg:       reg,
		configMgr: configMgr,
		db:        db,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The presentation layer connects from localhost only.
				return true
			},
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/windows", s.handleGetWindows).Methods("GET")
	api.HandleFunc("/windows/{id}/preview", s.handleGetPreview).Methods("GET")
	api.HandleFunc("/windows/{id}/close", s.handleCloseWindow).Methods("POST")
	api.HandleFunc("/windows/{id}/minimize", s.handleMinimizeWindow).Methods("POST")

	api.HandleFunc("/session", s.handleGetSession).Methods("GET")
	api.HandleFunc("/session/stream", s.handleSessionStream)

	api.HandleFunc("/settings", s.handleGetSettings).Methods("GET")
	api.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start serves on the given port until the listener fails.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	logger.WithComponent("api").Info().Str("addr", addr).Msg("API server listening")
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleGetWindows(w http.ResponseWriter, r *http.Request) {
	windows, err := s.reg.Enumerate()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, windows)
}

func (s *Server) handleGetPreview(w http.ResponseWriter, r *http.Request) {
	id, err := windowID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	windows, err := s.reg.Enumerate()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	for _, rec := range windows {
		if rec.ID == id && rec.Preview != nil {
			w.Header().Set("Content-Type", "image/png")
			if err := png.Encode(w, rec.Preview); err != nil {
				logger.WithComponent("api").Warn().Err(err).Msg("Preview encode failed")
			}
			return
		}
	}
	http.Error(w, "no preview", http.StatusNotFound)
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	id, err := windowID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.coord.CloseWindow(id)
	writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleMinimizeWindow(w http.ResponseWriter, r *http.Request) {
	id, err := windowID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.coord.MinimizeWindow(id)
	writeJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.coord.Snapshot())
}

// handleSessionStream upgrades to a websocket and forwards coordinator
// events, starting with the current snapshot so the client can render
// immediately.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("api")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events := s.coord.Subscribe()
	defer s.coord.Unsubscribe(events)

	initial := session.Event{Kind: session.EventSessionUpdated, Session: s.coord.Snapshot()}
	if err := conn.WriteJSON(initial); err != nil {
		return
	}

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			log.Debug().Err(err).Msg("WebSocket write failed, dropping subscriber")
			return
		}
	}
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.db.Settings()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{
		"config":    s.configMgr.Get(),
		"overrides": settings,
	})
}

// handleUpdateSettings persists key/value overrides and applies them to
// the live config. Registry options pick them up on the next start.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var settings map[string]string
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for key, value := range settings {
		if err := s.db.SetSetting(key, value); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	s.configMgr.ApplyOverrides(settings)
	writeJSON(w, map[string]string{"status": "success"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "healthy"})
}

func windowID(r *http.Request) (uint32, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q", raw)
	}
	return uint32(id), nil
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("Response encode failed")
	}
}
