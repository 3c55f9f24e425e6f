// Package httpapi exposes the persisted monitoring state on a local HTTP
// endpoint, for dashboards or curl on the appliance itself.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/pialert/pialert/internal/maintain"
	"github.com/pialert/pialert/internal/state"
)

// Server serves read-only views over the state files. It never mutates
// them; only the monitoring passes write.
type Server struct {
	DownAlert        state.Store
	Monitor          state.Store
	MaintenanceState string
	Log              *zap.Logger
}

func NewServer(downAlert, monitor state.Store, maintenanceState string, log *zap.Logger) *Server {
	return &Server{
		DownAlert:        downAlert,
		Monitor:          monitor,
		MaintenanceState: maintenanceState,
		Log:              log,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/maintenance", s.handleMaintenance)
	return r
}

type statusResponse struct {
	DownAlert map[string]state.Record `json:"down_alert"`
	Monitor   map[string]state.Record `json:"monitor"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	da, err := s.DownAlert.All()
	if err != nil {
		s.fail(w, "down_alert state unreadable", err)
		return
	}
	mon, err := s.Monitor.All()
	if err != nil {
		s.fail(w, "monitor state unreadable", err)
		return
	}
	s.writeJSON(w, statusResponse{DownAlert: da, Monitor: mon})
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	results, err := maintain.ReadResults(s.MaintenanceState)
	if err != nil {
		s.fail(w, "maintenance state unreadable", err)
		return
	}
	s.writeJSON(w, results)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.Log.Warn("response_encode_failed", zap.Error(err))
	}
}

func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	s.Log.Error("status_api_error", zap.String("reason", msg), zap.Error(err))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.Log.Info("status_api_listening", zap.String("addr", addr))
	return srv.ListenAndServe()
}
