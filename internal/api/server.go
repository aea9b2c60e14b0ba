package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/farandaway89/scada-ai-system/internal/models"
	"github.com/farandaway89/scada-ai-system/internal/repo"
	"github.com/farandaway89/scada-ai-system/internal/services"
	"github.com/farandaway89/scada-ai-system/internal/utils"
)

// wsSendBuffer bounds the per-client feed queue; slow clients lose their
// oldest items instead of stalling the pipeline.
const wsSendBuffer = 256

// Server exposes the facade over HTTP and websocket. All logic lives behind
// the facade; handlers only translate requests and responses.
type Server struct {
	logger   *slog.Logger
	facade   *services.Facade
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer builds the HTTP surface on addr.
func NewServer(logger *slog.Logger, addr string, facade *services.Facade) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger: logger,
		facade: facade,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/v1/sensors", s.handleSensors)
	mux.HandleFunc("GET /api/v1/current/{sensor}", s.handleCurrent)
	mux.HandleFunc("GET /api/v1/history/{sensor}", s.handleHistory)
	mux.HandleFunc("GET /api/v1/window/{sensor}", s.handleWindow)
	mux.HandleFunc("GET /api/v1/forecast/{sensor}", s.handleForecast)
	mux.HandleFunc("GET /api/v1/alerts", s.handleActiveAlerts)
	mux.HandleFunc("GET /api/v1/alerts/history", s.handleAlertHistory)
	mux.HandleFunc("POST /api/v1/alerts", s.handleRaiseManual)
	mux.HandleFunc("POST /api/v1/alerts/{id}/ack", s.handleAcknowledge)
	mux.HandleFunc("POST /api/v1/alerts/{id}/resolve", s.handleResolve)
	mux.HandleFunc("GET /api/v1/rejections", s.handleRejections)
	mux.HandleFunc("GET /ws", s.handleWebsocket)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", slog.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"stage_latency_p95": s.facade.StageLatencyP95().String(),
	})
}

func (s *Server) handleSensors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sensors": s.facade.Sensors()})
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	status, err := s.facade.Current(r.PathValue("sensor"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := utils.ParseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	readings, err := s.facade.History(r.Context(), r.PathValue("sensor"), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"readings": readings})
}

func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	sensorID := r.PathValue("sensor")
	window := s.facade.Window(sensorID)
	if len(window) == 0 {
		writeError(w, http.StatusNotFound, errors.New("no readings for sensor "+sensorID))
		return
	}

	resp := map[string]any{"readings": window}
	if rate, ok := s.facade.RateOfChange(sensorID); ok {
		resp["rate_of_change"] = rate
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	steps := 0
	if v := r.URL.Query().Get("steps"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		steps = parsed
	}

	forecast, err := s.facade.Forecast(r.PathValue("sensor"), steps)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, forecast)
}

func (s *Server) handleActiveAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.facade.ActiveAlerts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	from, to, err := utils.ParseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	alerts, err := s.facade.AlertHistory(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

type manualAlertRequest struct {
	SensorID string  `json:"sensor_id"`
	Severity string  `json:"severity"`
	Value    float64 `json:"value"`
	Message  string  `json:"message"`
}

func (s *Server) handleRaiseManual(w http.ResponseWriter, r *http.Request) {
	var req manualAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.SensorID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, errors.New("sensor_id and message are required"))
		return
	}

	severity, err := parseSeverity(req.Severity)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	event, created := s.facade.RaiseManual(r.Context(), req.SensorID, severity, req.Value, req.Message)
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, event)
}

// parseSeverity maps the request field onto a raisable severity. An empty
// field defaults to warning; anything else must name a real level so operator
// typos fail loudly instead of logging a misranked alert.
func parseSeverity(raw string) (models.Severity, error) {
	switch models.Severity(raw) {
	case "":
		return models.SeverityWarning, nil
	case models.SeverityWarning, models.SeverityCritical, models.SeverityEmergency:
		return models.Severity(raw), nil
	default:
		return models.SeverityNone, errors.New("severity must be warning, critical, or emergency")
	}
}

type actorRequest struct {
	Actor string `json:"actor"`
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	s.alertAction(w, r, s.facade.Acknowledge)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	s.alertAction(w, r, s.facade.Resolve)
}

func (s *Server) alertAction(w http.ResponseWriter, r *http.Request, action func(context.Context, string, string) error) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Actor == "" {
		writeError(w, http.StatusBadRequest, errors.New("actor is required"))
		return
	}

	if err := action(r.Context(), r.PathValue("id"), req.Actor); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRejections(w http.ResponseWriter, r *http.Request) {
	max := 50
	if v := r.URL.Query().Get("max"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			max = parsed
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rejections": s.facade.RecentRejections(max)})
}

// handleWebsocket streams the live reading/alert feed to one client.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	sub := s.facade.Subscribe(wsSendBuffer)
	defer s.facade.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read pump only watches for the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.logger.Info("websocket client connected", slog.String("remote", conn.RemoteAddr().String()))
	for {
		item, ok := sub.Next(ctx)
		if !ok {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(item); err != nil {
			s.logger.Debug("websocket write failed, client dropped", slog.Any("error", err))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
