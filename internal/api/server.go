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

	"vibroscope/internal/alerts"
	"vibroscope/internal/config"
	"vibroscope/internal/engine"
	"vibroscope/internal/metrics"
	"vibroscope/internal/model"
)

// EngineControl is the engine surface exposed over HTTP.
type EngineControl interface {
	Stats() model.Counters
	Statistics() *engine.StatisticsEngine
	Calibration() *engine.Profile
	UpdateCalibration(p *engine.Profile) error
	Reset()
	Alerting() int
	StreamID() string
	RunID() string
	LastSeq() uint64
	QueueLen() int
}

// Summarizer computes a fresh summary when none has been reported yet.
type Summarizer interface {
	Summarize() model.Summary
}

type Server struct {
	cfg      *config.Manager
	metrics  *metrics.Store
	alerts   *alerts.Store
	engine   EngineControl
	reporter Summarizer
	logger   *slog.Logger
	version  string
}

type statusResponse struct {
	Status     string       `json:"status"`
	Time       string       `json:"time"`
	Version    string       `json:"version"`
	ConfigPath string       `json:"config_path"`
	StreamID   string       `json:"stream_id"`
	RunID      string       `json:"run_id"`
	LastSeq    uint64       `json:"last_seq"`
	QueueLen   int          `json:"queue_len"`
	Alerting   int          `json:"alerting"`
	Ingest     ingestStatus `json:"ingest"`
	API        apiStatus    `json:"api"`
	Engine     engineStatus `json:"engine"`
}

type ingestStatus struct {
	Directory bool `json:"directory"`
	REST      bool `json:"rest"`
	TCPStream bool `json:"tcp_stream"`
	Kafka     bool `json:"kafka"`
	Synthetic bool `json:"synthetic"`
}

type apiStatus struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
}

type engineStatus struct {
	WindowSize int    `json:"window_size"`
	RegionSize int    `json:"region_size"`
	StatMode   string `json:"stat_mode"`
	Metric     string `json:"metric"`
	Regions    int    `json:"regions"`
}

func New(cfg *config.Manager, metricsStore *metrics.Store, alertsStore *alerts.Store, eng EngineControl, reporter Summarizer, logger *slog.Logger, version string) *Server {
	return &Server{
		cfg:      cfg,
		metrics:  metricsStore,
		alerts:   alertsStore,
		engine:   eng,
		reporter: reporter,
		logger:   logger,
		version:  version,
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/counters", s.handleCounters)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/stats/region", s.handleRegion)
	mux.HandleFunc("/alerts", s.handleAlerts)
	mux.HandleFunc("/calibration", s.handleCalibration)
	mux.HandleFunc("/admin/clear", s.handleClear)
	mux.HandleFunc("/admin/reset", s.handleReset)
	return mux
}

func Start(ctx context.Context, s *Server) *http.Server {
	if s == nil || s.cfg == nil {
		return nil
	}
	current := s.cfg.Get().API
	if !current.Enabled {
		if s.logger != nil {
			s.logger.Info("api disabled")
		}
		return nil
	}
	if s.logger != nil {
		s.logger.Info("api enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{Addr: current.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Error("api server error", "err", err)
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
	cfg := s.cfg.Get()
	resp := statusResponse{
		Status:     "ok",
		Time:       time.Now().UTC().Format(time.RFC3339Nano),
		Version:    s.version,
		ConfigPath: s.cfg.Path(),
		StreamID:   s.engine.StreamID(),
		RunID:      s.engine.RunID(),
		LastSeq:    s.engine.LastSeq(),
		QueueLen:   s.engine.QueueLen(),
		Alerting:   s.engine.Alerting(),
		Ingest: ingestStatus{
			Directory: cfg.Ingest.Directory.Enabled,
			REST:      cfg.Ingest.REST.Enabled,
			TCPStream: cfg.Ingest.TCPStream.Enabled,
			Kafka:     cfg.Ingest.Kafka.Enabled,
			Synthetic: cfg.Ingest.Synthetic.Enabled,
		},
		API: apiStatus{Enabled: cfg.API.Enabled, Addr: cfg.API.Addr},
	}
	if p := s.engine.Calibration(); p != nil {
		resp.Engine = engineStatus{
			WindowSize: p.WindowSize,
			RegionSize: p.RegionSize,
			StatMode:   string(p.Mode()),
			Metric:     string(p.Metric),
		}
	}
	if st := s.engine.Statistics(); st != nil {
		resp.Engine.Regions = st.Len()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if summary, ok := s.metrics.Latest(); ok && r.URL.Query().Get("fresh") == "" {
		writeJSON(w, http.StatusOK, summary)
		return
	}
	if s.reporter == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.reporter.Summarize())
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	x, errX := strconv.Atoi(q.Get("x"))
	y, errY := strconv.Atoi(q.Get("y"))
	if errX != nil || errY != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "x and y must be integers"})
		return
	}
	st := s.engine.Statistics()
	if st == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	stat, ok := st.Snapshot(model.RegionID{X: x, Y: y})
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, stat)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	var list []model.AlertEvent
	switch {
	case q.Get("open") != "":
		list = s.alerts.Open()
	case q.Get("since") != "":
		ts, err := time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		list = s.alerts.Since(ts)
	default:
		list = s.alerts.List(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": list,
		"count":  len(list),
	})
}

// handleCalibration serves the active calibration and, on POST, validates
// a replacement, swaps it into the engine and saves it to the config file.
func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"calibration": s.cfg.Get().Calibration,
		})
	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		current := s.cfg.Get()
		cal := current.Calibration
		cal.Masks = append([]config.MaskRect(nil), current.Calibration.Masks...)
		if err := json.Unmarshal(body, &cal); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		profile, err := engine.NewProfile(cal)
		if err != nil {
			var cerr *engine.CalibrationError
			if errors.As(err, &cerr) {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid calibration", "violations": cerr.Violations})
				return
			}
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		next := *current
		next.Calibration = cal
		if err := s.cfg.Update(&next); err != nil {
			if s.logger != nil {
				s.logger.Error("calibration save failed", "err", err)
			}
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if err := s.engine.UpdateCalibration(profile); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		if s.logger != nil {
			s.logger.Info("calibration updated via api", "window_size", cal.WindowSize, "alert_threshold", cal.AlertThreshold)
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
		s.metrics.Clear()
		s.alerts.Clear()
	case "alerts":
		s.alerts.Clear()
	case "metrics", "stats":
		s.metrics.Clear()
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleReset drops buffered frames, statistics and alert states.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.engine.Reset()
	s.metrics.Clear()
	s.alerts.Clear()
	if s.logger != nil {
		s.logger.Info("engine reset via api", "stream_id", s.engine.StreamID())
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
