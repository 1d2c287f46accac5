package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loadwatch/internal/alerts"
	"loadwatch/internal/anomaly"
	"loadwatch/internal/config"
	"loadwatch/internal/model"
	"loadwatch/internal/status"
)

type EngineControl interface {
	ClassifyServer(server string) (model.StatusReport, []model.Alert, bool)
	RunForecast(req model.ForecastRequest) ([]model.AnomalyRecord, error)
	Detect(metric string, actual, predicted []float64, timestamps []time.Time) ([]model.AnomalyRecord, error)
	Profiles() map[string]anomaly.Profile
	Reconfigure(cfg *config.Config)
	Mute(name string)
	Unmute(name string)
	Muted() []string
	Reset()
}

type Server struct {
	cfg       *config.Manager
	status    *status.Store
	alerts    *alerts.Store
	anomalies *anomaly.Store
	engine    EngineControl
	logger    *slog.Logger
	version   string
}

func Start(ctx context.Context, cfg *config.Manager, statusStore *status.Store, alertsStore *alerts.Store, anomalyStore *anomaly.Store, engine EngineControl, logger *slog.Logger, version string) *http.Server {
	if cfg == nil {
		return nil
	}
	current := cfg.Get().API
	if !current.Enabled {
		if logger != nil {
			logger.Info("api disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("api enabled", "addr", current.Addr)
	}
	server := &Server{
		cfg:       cfg,
		status:    statusStore,
		alerts:    alertsStore,
		anomalies: anomalyStore,
		engine:    engine,
		logger:    logger,
		version:   version,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", server.handleStatus)
	mux.HandleFunc("/api/v1/status/", server.handleStatus)
	mux.HandleFunc("/api/v1/classify/", server.handleClassify)
	mux.HandleFunc("/api/v1/alerts", server.handleAlerts)
	mux.HandleFunc("/api/v1/anomalies", server.handleAnomalies)
	mux.HandleFunc("/api/v1/detect", server.handleDetect)
	mux.HandleFunc("/api/v1/forecast", server.handleForecast)
	mux.HandleFunc("/api/v1/profiles", server.handleProfiles)
	mux.HandleFunc("/api/v1/config", server.handleConfig)
	mux.HandleFunc("/api/v1/admin/clear", server.handleClear)
	mux.HandleFunc("/api/v1/admin/mute", server.handleMute)
	mux.HandleFunc("/api/v1/admin/mute/", server.handleMute)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"version": server.version,
			"time":    time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{Addr: current.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("api server error", "err", err)
			}
		}
	}()
	return httpServer
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	server := strings.TrimPrefix(r.URL.Path, "/api/v1/status")
	server = strings.Trim(server, "/")
	if server != "" {
		report, ok := s.status.Get(server)
		if !ok {
			writeError(w, http.StatusNotFound, "unknown server")
			return
		}
		writeJSON(w, http.StatusOK, report)
		return
	}
	all := s.status.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"servers": all,
		"count":   len(all),
	})
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	server := strings.TrimPrefix(r.URL.Path, "/api/v1/classify/")
	server = strings.Trim(server, "/")
	if server == "" {
		writeError(w, http.StatusBadRequest, "server name required")
		return
	}
	report, admitted, ok := s.engine.ClassifyServer(server)
	if !ok {
		writeError(w, http.StatusNotFound, "no samples for server")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report": report,
		"alerts": admitted,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := queryInt(r, "limit")
	var list []model.Alert
	if sinceStr := r.URL.Query().Get("since"); sinceStr != "" {
		ts, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		list = s.alerts.Since(ts)
	} else if server := r.URL.Query().Get("server"); server != "" {
		list = s.alerts.ByServer(server, limit)
	} else {
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	limit := queryInt(r, "limit")
	var list []model.StoredAnomaly
	if server := r.URL.Query().Get("server"); server != "" {
		list = s.anomalies.ByServer(server, limit)
	} else {
		list = s.anomalies.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": list,
		"count":     len(list),
	})
}

type detectRequest struct {
	Metric     string      `json:"metric"`
	Actual     []float64   `json:"actual"`
	Predicted  []float64   `json:"predicted"`
	Timestamps []time.Time `json:"timestamps"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req detectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	records, err := s.engine.Detect(req.Metric, req.Actual, req.Predicted, req.Timestamps)
	if err != nil {
		if errors.Is(err, anomaly.ErrLengthMismatch) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.ForecastRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Server == "" || req.Metric == "" {
		writeError(w, http.StatusBadRequest, "server and metric required")
		return
	}
	records, err := s.engine.RunForecast(req)
	if err != nil {
		if errors.Is(err, anomaly.ErrLengthMismatch) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profiles": s.engine.Profiles(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Get())
	case http.MethodPut:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body failed")
			return
		}
		next := config.DefaultConfig()
		if err := json.Unmarshal(body, next); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := s.cfg.Update(next); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if s.engine != nil {
			s.engine.Reconfigure(next)
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, _ := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	var req struct {
		Target string `json:"target"`
	}
	_ = json.Unmarshal(body, &req)
	target := strings.ToLower(strings.TrimSpace(req.Target))
	if target == "" {
		target = "all"
	}
	switch target {
	case "all":
		s.alerts.Clear()
		s.anomalies.Clear()
		s.status.Clear()
		if s.engine != nil {
			s.engine.Reset()
		}
	case "alerts":
		s.alerts.Clear()
	case "anomalies":
		s.anomalies.Clear()
	case "status":
		s.status.Clear()
	default:
		writeError(w, http.StatusBadRequest, "unknown clear target")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleMute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"muted": s.engine.Muted()})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body failed")
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(body, &req); err != nil || strings.TrimSpace(req.Name) == "" {
			writeError(w, http.StatusBadRequest, "name required")
			return
		}
		s.engine.Mute(req.Name)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	case http.MethodDelete:
		name := strings.TrimPrefix(r.URL.Path, "/api/v1/admin/mute")
		name = strings.Trim(name, "/")
		if name == "" {
			writeError(w, http.StatusBadRequest, "name required")
			return
		}
		s.engine.Unmute(name)
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil || len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty or unreadable body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
