package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"vibroscope/internal/config"
	"vibroscope/internal/model"
)

type RESTServer struct {
	out    Submitter
	logger *slog.Logger
}

func StartREST(ctx context.Context, cfg *config.Manager, out Submitter, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	httpServer := &http.Server{Addr: current.Addr, Handler: NewRESTHandler(out, logger), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

func NewRESTHandler(out Submitter, logger *slog.Logger) http.Handler {
	server := &RESTServer{out: out, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("/frames", server.handleFrames)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// handleFrames takes one codec frame (application/octet-stream) or JSON
// frames with base64 pixel data.
func (s *RESTServer) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxFrameBytes*2))
	if err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	var (
		frames   []model.Frame
		failures []error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/octet-stream" || bytes.HasPrefix(body, []byte(frameMagic)) {
		f, err := UnmarshalFrame(body)
		if err != nil {
			writeFrameResult(w, http.StatusBadRequest, 0, []error{err})
			return
		}
		frames = append(frames, f)
	} else {
		frames, failures, err = ParseJSONFrames(body)
		if err != nil {
			writeFrameResult(w, http.StatusBadRequest, 0, []error{err})
			return
		}
	}
	for _, err := range failures {
		if s.logger != nil {
			s.logger.Warn("rest frame rejected", "err", err)
		}
	}

	accepted := 0
	for _, f := range frames {
		if !submit(s.out, f, "rest", s.logger) {
			writeFrameResult(w, http.StatusServiceUnavailable, accepted, failures)
			return
		}
		accepted++
	}
	writeFrameResult(w, http.StatusAccepted, accepted, failures)
}

func writeFrameResult(w http.ResponseWriter, status, accepted int, failures []error) {
	errs := make([]string, 0, len(failures))
	for _, err := range failures {
		errs = append(errs, err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": accepted,
		"failed":   len(failures),
		"errors":   errs,
	})
}
