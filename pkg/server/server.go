// Package server exposes classification over HTTP.
//
// Routes:
//
//	POST /v1/classify        multipart upload, field "file"
//	POST /v1/classify/path   form field "file_path", a WAV on the server
//	GET  /v1/model           summary of the serving model
//	POST /v1/model/reload    reload the current model from the registry
//	GET  /healthz            liveness
//
// Successful classifications answer {"prediction": {...}}; failures answer
// {"error": "..."} with a status derived from the error kind.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kehinde-elelu/aimechanics/pkg/features"
	"github.com/kehinde-elelu/aimechanics/pkg/history"
	"github.com/kehinde-elelu/aimechanics/pkg/inference"
	"github.com/kehinde-elelu/aimechanics/pkg/model"
	"github.com/kehinde-elelu/aimechanics/pkg/registry"
)

// DefaultMaxUploadBytes bounds uploaded recordings.
const DefaultMaxUploadBytes = 32 << 20

// ModelSource provides the model to serve after a reload.
// *registry.Registry satisfies it.
type ModelSource interface {
	LoadCurrent(ctx context.Context) (*model.TrainedModel, *registry.Record, error)
}

// Config controls a Server.
type Config struct {
	Addr           string
	MaxUploadBytes int64
	// UploadDir keeps a copy of every uploaded recording when set.
	UploadDir string
	// PathRoot restricts /v1/classify/path to files under it when set.
	PathRoot string
	Logger   *slog.Logger
}

// Server serves classification requests from an inference engine.
type Server struct {
	cfg     Config
	engine  *inference.Engine
	source  ModelSource
	history *history.Store
	log     *slog.Logger
	mux     *http.ServeMux
}

// New returns a server. source and hist may be nil: reload then answers
// 503 and classifications are not logged.
func New(cfg Config, engine *inference.Engine, source ModelSource, hist *history.Store) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		engine:  engine,
		source:  source,
		history: hist,
		log:     log,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /v1/classify", s.handleClassify)
	s.mux.HandleFunc("POST /v1/classify/path", s.handleClassifyPath)
	s.mux.HandleFunc("GET /v1/model", s.handleModel)
	s.mux.HandleFunc("POST /v1/model/reload", s.handleReload)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("server: listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Prediction is the body of a successful classification.
type Prediction struct {
	RequestID     string                   `json:"request_id"`
	ModelID       string                   `json:"model_id"`
	Label         string                   `json:"label"`
	Signal        string                   `json:"signal"`
	Confidence    float64                  `json:"confidence"`
	Probabilities []model.ClassProbability `json:"probabilities"`
	Source        string                   `json:"source,omitempty"`
}

// ModelInfo describes the serving model.
type ModelInfo struct {
	ID            string            `json:"id"`
	CreatedAt     time.Time         `json:"created_at"`
	SchemaVersion string            `json:"schema_version"`
	Classes       []string          `json:"classes"`
	Params        model.Hyperparams `json:"params"`
	CVScore       float64           `json:"cv_score"`
	Components    int               `json:"components"`
	TrainSize     int               `json:"train_size"`
}

func modelInfo(m *model.TrainedModel) ModelInfo {
	info := ModelInfo{
		ID:            m.ID,
		CreatedAt:     m.CreatedAt,
		SchemaVersion: m.SchemaVersion,
		Params:        m.Selection.Best,
		CVScore:       m.Selection.Score,
		Components:    m.Selection.Components,
		TrainSize:     m.Selection.TrainSize,
	}
	for _, c := range m.Classes {
		info.Classes = append(info.Classes, c.String())
	}
	return info
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooBig.Limit))
			return
		}
		s.writeError(w, http.StatusBadRequest, "missing multipart file field \"file\"")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}
	name := filepath.Base(header.Filename)
	s.classify(w, r, data, name)
	if s.cfg.UploadDir != "" {
		s.saveUpload(data, name)
	}
}

func (s *Server) handleClassifyPath(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSpace(r.FormValue("file_path"))
	if path == "" {
		s.writeError(w, http.StatusBadRequest, "missing form field \"file_path\"")
		return
	}
	if s.cfg.PathRoot != "" && !within(s.cfg.PathRoot, path) {
		s.writeError(w, http.StatusForbidden, "file_path outside the allowed root")
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		s.writeError(w, http.StatusBadRequest, "read file: "+err.Error())
		return
	}
	s.classify(w, r, data, path)
}

// within reports whether path resolves to a location under root. Symlinks
// are followed on both sides; a path that does not exist yet is checked
// through its nearest existing parent.
func within(root, path string) bool {
	absRoot, err := resolve(root)
	if err != nil {
		return false
	}
	abs, err := resolve(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, abs)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolve returns the absolute, symlink-free form of path. Missing trailing
// elements are kept as written after their existing parent is resolved.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	var missing []string
	for {
		resolved, err := filepath.EvalSymlinks(abs)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", err
		}
		missing = append(missing, filepath.Base(abs))
		abs = parent
	}
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request, data []byte, source string) {
	res, m, err := s.engine.ClassifyWAVModel(bytes.NewReader(data))
	if err != nil {
		s.writeClassifyError(w, err, source)
		return
	}
	modelID := m.ID
	p := Prediction{
		RequestID:     uuid.NewString(),
		ModelID:       modelID,
		Label:         res.Label.String(),
		Signal:        string(res.Signal),
		Confidence:    res.Confidence(),
		Probabilities: res.Probabilities,
		Source:        source,
	}
	if s.history != nil {
		e := history.NewEntry(res, modelID, source)
		e.RequestID = p.RequestID
		if _, err := s.history.Record(r.Context(), e); err != nil {
			s.log.Warn("server: history record failed", "request_id", p.RequestID, "error", err)
		}
	}
	s.log.Info("server: classified",
		"request_id", p.RequestID,
		"source", source,
		"label", p.Label,
		"confidence", p.Confidence)
	s.writeJSON(w, http.StatusOK, map[string]any{"prediction": p})
}

// statusFor maps classification errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, inference.ErrModelUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, model.ErrSchemaMismatch):
		return http.StatusConflict
	case errors.Is(err, features.ErrInvalidAudio):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) writeClassifyError(w http.ResponseWriter, err error, source string) {
	status := statusFor(err)
	if inference.IsRequestError(err) {
		s.log.Warn("server: request rejected", "source", source, "status", status, "error", err)
	} else {
		s.log.Error("server: classification failed", "source", source, "error", err)
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) saveUpload(data []byte, name string) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		s.log.Warn("server: upload dir", "error", err)
		return
	}
	ext := filepath.Ext(name)
	if ext == "" {
		ext = ".wav"
	}
	dest := filepath.Join(s.cfg.UploadDir, time.Now().UTC().Format("20060102T150405")+"-"+uuid.NewString()[:8]+ext)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		s.log.Warn("server: save upload", "path", dest, "error", err)
	}
}

func (s *Server) handleModel(w http.ResponseWriter, _ *http.Request) {
	m := s.engine.Model()
	if m == nil {
		s.writeError(w, http.StatusServiceUnavailable, inference.ErrModelUnavailable.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, modelInfo(m))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no model registry configured")
		return
	}
	m, _, err := s.source.LoadCurrent(r.Context())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, registry.ErrNoCurrent) || errors.Is(err, registry.ErrNotFound) {
			status = http.StatusServiceUnavailable
		}
		s.log.Error("server: reload failed", "error", err)
		s.writeError(w, status, err.Error())
		return
	}
	if err := m.CheckSchema(features.SchemaVersion, features.Dim); err != nil {
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	old := s.engine.Swap(m)
	previous := ""
	if old != nil {
		previous = old.ID
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"model": modelInfo(m), "previous": previous})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"model_loaded": s.engine.Model() != nil,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("server: encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
