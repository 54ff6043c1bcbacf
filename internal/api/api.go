package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/space-status/internal/health"
	"github.com/thatsimonsguy/space-status/internal/model"
	"github.com/thatsimonsguy/space-status/internal/status"
)

type StatusService interface {
	Status(ctx context.Context, format string) (string, error)
	Entry(ctx context.Context) (model.CacheEntry, error)
}

type ChannelUpdates interface {
	SetUpdates(channel string, on bool) error
	UpdatesEnabled(channel string) (bool, error)
}

type HealthReporter interface {
	Snapshot() health.Snapshot
}

type Server struct {
	status   StatusService
	channels ChannelUpdates
	health   HealthReporter
	hub      *Hub
	http     *http.Server
}

type StatusResponse struct {
	Format  string `json:"format"`
	Message string `json:"message"`
}

type UpdatesResponse struct {
	Channel string `json:"channel"`
	Updates string `json:"updates"`
}

type UpdatesRequest struct {
	State string `json:"state"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(statusService StatusService, channels ChannelUpdates, hub *Hub) *Server {
	if hub == nil {
		hub = NewHub()
	}
	return &Server{
		status:   statusService,
		channels: channels,
		hub:      hub,
	}
}

// WithHealth exposes the sensor health tracker on /api/health.
func (s *Server) WithHealth(h HealthReporter) *Server {
	s.health = h
	return s
}

// Handler returns the API routes wrapped in the CORS handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	corsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})

	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/status/all", s.handleStatusAll)
	mux.HandleFunc("/api/status/stream", s.handleStream)
	mux.HandleFunc("/api/channels/", s.handleChannelOperations)
	mux.HandleFunc("/api/health", s.handleHealth)

	return corsHandler
}

// Start serves the API until Shutdown is called.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	format := r.URL.Query().Get("format")
	msg, err := s.status.Status(r.Context(), format)
	if errors.Is(err, status.ErrUnknownFormat) {
		s.writeError(w, http.StatusBadRequest, msg)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("format", format).Msg("Failed to get status")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if format == "" {
		format = status.FormatDefault
	}
	s.writeJSON(w, http.StatusOK, StatusResponse{Format: strings.ToLower(strings.TrimSpace(format)), Message: msg})
}

func (s *Server) handleStatusAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	entry, err := s.status.Entry(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to read cached status")
		s.writeError(w, http.StatusServiceUnavailable, status.NoStatusReply)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if s.health == nil {
		s.writeError(w, http.StatusNotFound, "Health tracking is not configured")
		return
	}

	snap := s.health.Snapshot()
	code := http.StatusOK
	if snap.Offline {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, snap)
}

func (s *Server) handleChannelOperations(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/channels/")
	parts := strings.Split(path, "/")

	if len(parts) != 2 || parts[0] == "" || parts[1] != "updates" {
		s.writeError(w, http.StatusNotFound, "Invalid path")
		return
	}
	if s.channels == nil {
		s.writeError(w, http.StatusNotFound, "Channel updates are not configured")
		return
	}

	channel := parts[0]
	switch r.Method {
	case http.MethodGet:
		s.getUpdates(w, channel)
	case http.MethodPut:
		s.setUpdates(w, r, channel)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) getUpdates(w http.ResponseWriter, channel string) {
	on, err := s.channels.UpdatesEnabled(channel)
	if err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to read channel updates")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, UpdatesResponse{Channel: channel, Updates: onOff(on)})
}

func (s *Server) setUpdates(w http.ResponseWriter, r *http.Request, channel string) {
	var req UpdatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var on bool
	switch strings.ToLower(strings.TrimSpace(req.State)) {
	case "on":
		on = true
	case "off":
		on = false
	default:
		s.writeError(w, http.StatusBadRequest, "Invalid state. Valid states: on, off")
		return
	}

	if err := s.channels.SetUpdates(channel, on); err != nil {
		log.Error().Err(err).Str("channel", channel).Msg("Failed to set channel updates")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Str("channel", channel).Str("updates", onOff(on)).Msg("Channel updates changed via API")
	s.writeJSON(w, http.StatusOK, UpdatesResponse{Channel: channel, Updates: onOff(on)})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
